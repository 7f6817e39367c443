package manager

import (
	"github.com/soundcore/audiopolicyd/internal/audio"
)

// RegisterEffect records an effect instance attached to a session on a
// stream. The policy only tracks effects for accounting; moving them is
// the audio flinger's job.
func (m *Manager) RegisterEffect(id int, io audio.IOHandle, session audio.Session, strategy audio.StrategyID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitLocked(); err != nil {
		return err
	}
	if _, dup := m.effects[id]; dup {
		return audio.Errorf(audio.CodeInvalidOperation, "effect %d already registered", id)
	}
	if io != 0 && m.reg.Output(io) == nil && m.reg.Input(io) == nil {
		return audio.Errorf(audio.CodeBadValue, "effect %d references unknown stream %d", id, io)
	}
	m.effects[id] = &effectDesc{ID: id, IO: io, Session: session, Strategy: strategy}
	return nil
}

// UnregisterEffect forgets a registered effect.
func (m *Manager) UnregisterEffect(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitLocked(); err != nil {
		return err
	}
	if _, ok := m.effects[id]; !ok {
		return audio.Errorf(audio.CodeNameNotFound, "effect %d is not registered", id)
	}
	delete(m.effects, id)
	return nil
}

// EffectsForSession lists the ids of effects registered on a session.
func (m *Manager) EffectsForSession(session audio.Session) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int
	for id, e := range m.effects {
		if e.Session == session {
			ids = append(ids, id)
		}
	}
	return ids
}
