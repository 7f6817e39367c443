package manager

import (
	"github.com/soundcore/audiopolicyd/internal/audio"
	"github.com/soundcore/audiopolicyd/internal/events"
	"github.com/soundcore/audiopolicyd/internal/hw"
	"github.com/soundcore/audiopolicyd/internal/mixtable"
	"github.com/soundcore/audiopolicyd/internal/registry"
)

// InputRequest carries one capture selection request.
type InputRequest struct {
	Attributes      audio.Attributes
	RequestedDevice audio.PortID
	Config          audio.Config
	Flags           audio.InputFlags
	RIID            int32
	Session         audio.Session
	UID             audio.UID
	UserID          audio.UserID
}

// InputResult is the capture selection outcome.
type InputResult struct {
	Input          audio.IOHandle
	PortID         audio.PortID
	SelectedDevice audio.PortID
	Source         audio.Source
	Config         audio.Config
}

// GetInputForAttr selects (and opens, shares, or preempts) the input
// stream for a capture request.
func (m *Manager) GetInputForAttr(req InputRequest) (*InputResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.syncMetricsLocked()
	if err := m.checkInitLocked(); err != nil {
		return nil, err
	}

	cl := &cleanup{}
	defer cl.run()

	attr := req.Attributes
	if attr.Source == audio.SourceDefault {
		attr.Source = audio.SourceMic
	}

	// Dynamic mix capture redirection.
	var device audio.Device
	mix := m.mixes.MatchInput(mixtable.Request{
		Attributes: attr,
		UID:        req.UID,
		UserID:     req.UserID,
		Session:    req.Session,
	})
	if mix != nil {
		device = audio.Device{Type: audio.DeviceInRemoteSubmix, Address: mix.Device.Address}
	} else if attr.Source == audio.SourceRemoteSubmix {
		addr, _ := attr.TagValue("addr")
		device = audio.Device{Type: audio.DeviceInRemoteSubmix, Address: addr}
	} else {
		var ok bool
		device, ok = m.engine.InputDeviceForAttributes(attr, m.availableInputDevicesLocked())
		if !ok {
			return nil, audio.Errorf(audio.CodeNameNotFound, "no routable input device for %s", attr.Source)
		}
	}
	if req.RequestedDevice != 0 {
		if desc := m.reg.FindDeviceByID(req.RequestedDevice); desc != nil && desc.Device.Type.IsInput() {
			device = desc.Device
		}
	}
	desc := m.deviceDescFor(device)
	if desc == nil {
		return nil, audio.Errorf(audio.CodeNameNotFound, "input device %s not available", device)
	}

	// Sharing against an input already open on the device.
	in := m.reg.InputForDevice(device)
	if in != nil {
		switch m.inputSharingLocked(in, req.Session, attr.Source) {
		case shareReuse:
			return m.recordInputClientLocked(in, desc, req, attr, cl)
		case sharePreempt:
			m.log.Info("preempting input for higher-priority source",
				"input", int32(in.Handle),
				"active_source", in.TopPrioritySource().String(),
				"new_source", attr.Source.String())
			m.closeInputLocked(in)
		case shareOpenNew:
		}
	}

	mp, cfg, err := m.inputMixPortLocked(desc, req.Flags, req.Config, device.Type == audio.DeviceInRemoteSubmix)
	if err != nil {
		return nil, err
	}

	handle, err := m.openInputRetry(mp.Module().Name, device, cfg, req.Flags, attr.Source)
	if err != nil {
		return nil, audio.NewError(audio.CodeInvalidOperation, "input open failed", err)
	}
	cl.arm(func() { _ = m.client.CloseInput(handle) })

	newIn := &registry.InputDesc{
		Handle:  handle,
		Module:  mp.Module(),
		MixPort: mp,
		Config:  cfg,
		Flags:   req.Flags,
		Device:  device,
		Source:  attr.Source,
		Clients: make(map[audio.PortID]*registry.InputClient),
	}
	if err := m.reg.AddInput(newIn); err != nil {
		return nil, err
	}
	cl.arm(func() { m.reg.RemoveInput(handle) })

	if err := m.installInputPatchLocked(newIn, cl); err != nil {
		return nil, err
	}
	return m.recordInputClientLocked(newIn, desc, req, attr, cl)
}

type shareDecision int

const (
	shareOpenNew shareDecision = iota
	shareReuse
	sharePreempt
)

// inputSharingLocked applies the capture sharing rules. With the fixed
// sharing logic, inputs on a device are shared across sessions and a
// higher-priority source preempts; the legacy behavior only shares
// within a session.
func (m *Manager) inputSharingLocked(in *registry.InputDesc, session audio.Session, source audio.Source) shareDecision {
	for _, c := range in.Clients {
		if c.Session == session {
			return shareReuse
		}
	}
	if !m.opts.FixedInputSharing {
		return shareOpenNew
	}
	if source == in.Source {
		return shareReuse
	}
	if source.Priority() <= in.TopPrioritySource().Priority() {
		return shareReuse
	}
	return sharePreempt
}

// recordInputClientLocked allocates the client record on an input and
// builds the result.
func (m *Manager) recordInputClientLocked(in *registry.InputDesc, desc *registry.DeviceDesc,
	req InputRequest, attr audio.Attributes, cl *cleanup) (*InputResult, error) {

	client := &registry.InputClient{
		PortID:     m.reg.NextPortID(),
		UID:        req.UID,
		Session:    req.Session,
		Attributes: attr,
		Config:     in.Config,
		Flags:      req.Flags,
		Source:     attr.Source,
		RIID:       req.RIID,
		Input:      in.Handle,
	}
	if err := m.reg.AddInputClient(client); err != nil {
		return nil, err
	}
	cl.disarm()
	m.log.Debug("input selected",
		"port_id", int32(client.PortID),
		"input", int32(in.Handle),
		"device", in.Device.Type.String(),
		"source", attr.Source.String())
	return &InputResult{
		Input:          in.Handle,
		PortID:         client.PortID,
		SelectedDevice: desc.ID,
		Source:         attr.Source,
		Config:         in.Config,
	}, nil
}

// optionalInputFlags is the fixed set relaxed during mix port search.
func optionalInputFlags(remoteSubmix bool) audio.InputFlags {
	opt := audio.InputFlagFast | audio.InputFlagRaw | audio.InputFlagVoipTx
	if remoteSubmix {
		opt |= audio.InputFlagDirect
	}
	return opt
}

// inputMixPortLocked searches the sink ports reachable from the device,
// relaxing optional flags one at a time when nothing matches outright.
func (m *Manager) inputMixPortLocked(desc *registry.DeviceDesc, flags audio.InputFlags,
	cfg audio.Config, remoteSubmix bool) (*hw.MixPort, audio.Config, error) {

	optional := optionalInputFlags(remoteSubmix)
	candidates := desc.Port.Module().ReachableMixPorts(desc.Port)

	attempts := []audio.InputFlags{flags}
	remaining := flags & optional
	for bit := audio.InputFlags(1); remaining != 0; bit <<= 1 {
		if remaining&bit == 0 {
			continue
		}
		remaining &^= bit
		attempts = append(attempts, attempts[len(attempts)-1]&^bit)
	}

	for _, attempt := range attempts {
		mp := bestInputMixPort(candidates, attempt, cfg, optional)
		if mp == nil {
			continue
		}
		final := cfg
		if !cfg.IsDefault() && !mp.SupportsConfig(cfg) {
			suggested, ok := mp.SuggestConfig(cfg)
			if !ok {
				continue
			}
			final = suggested
		} else if cfg.IsDefault() {
			if suggested, ok := mp.SuggestConfig(cfg); ok {
				final = suggested
			}
		}
		return mp, final, nil
	}
	return nil, cfg, audio.Errorf(audio.CodeBadValue,
		"no capture port reaches %s with flags %#x", desc.Device, int(flags))
}

func bestInputMixPort(candidates []*hw.MixPort, flags audio.InputFlags, cfg audio.Config, optional audio.InputFlags) *hw.MixPort {
	var best *hw.MixPort
	bestScore := -1
	required := flags &^ optional
	for _, mp := range candidates {
		if mp.Role != hw.RoleSink {
			continue
		}
		if !mp.InputFlags.Has(required) {
			continue
		}
		score := 0
		switch {
		case mp.InputFlags == flags:
			score += 400
		case mp.InputFlags.Has(flags):
			score += 300
		default:
			score += 200
		}
		if cfg.IsDefault() || mp.SupportsConfig(cfg) {
			score += 50
		} else if _, ok := mp.SuggestConfig(cfg); !ok {
			continue
		}
		if score > bestScore {
			bestScore = score
			best = mp
		}
	}
	return best
}

// StartInput marks a capture client active and reports the recording
// configuration.
func (m *Manager) StartInput(portID audio.PortID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.syncMetricsLocked()
	if err := m.checkInitLocked(); err != nil {
		return err
	}
	in, client := m.reg.InputClientByPort(portID)
	if client == nil {
		return audio.Errorf(audio.CodeNameNotFound, "unknown input port %d", portID)
	}
	if client.Active {
		return audio.Errorf(audio.CodeInvalidOperation, "port %d already started", portID)
	}
	if mp := in.MixPort; mp.MaxActiveCount > 0 && in.ActiveCount() >= mp.MaxActiveCount {
		return audio.Errorf(audio.CodeInvalidOperation,
			"capture port %q is at its active limit", mp.Name)
	}
	client.Active = true
	m.client.OnRecordingConfigurationUpdate(client.RIID, client.Source, in.Device, true)
	m.publish(events.RecordingConfigEvent{
		RIID:      client.RIID,
		Source:    client.Source.String(),
		Device:    in.Device.Type.String(),
		Active:    true,
		Timestamp: nowStamp(),
	})
	return nil
}

// StopInput marks a capture client inactive.
func (m *Manager) StopInput(portID audio.PortID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.syncMetricsLocked()
	if err := m.checkInitLocked(); err != nil {
		return err
	}
	in, client := m.reg.InputClientByPort(portID)
	if client == nil {
		return audio.Errorf(audio.CodeNameNotFound, "unknown input port %d", portID)
	}
	if !client.Active {
		return audio.Errorf(audio.CodeInvalidOperation, "port %d not started", portID)
	}
	client.Active = false
	m.client.OnRecordingConfigurationUpdate(client.RIID, client.Source, in.Device, false)
	m.publish(events.RecordingConfigEvent{
		RIID:      client.RIID,
		Source:    client.Source.String(),
		Device:    in.Device.Type.String(),
		Active:    false,
		Timestamp: nowStamp(),
	})
	return nil
}

// ReleaseInput drops the client record; the input and its patch are
// torn down with the last client.
func (m *Manager) ReleaseInput(portID audio.PortID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.syncMetricsLocked()
	if err := m.checkInitLocked(); err != nil {
		return err
	}
	in, client := m.reg.RemoveInputClient(portID)
	if client == nil {
		return audio.Errorf(audio.CodeInvalidOperation, "unknown input port %d", portID)
	}
	if in != nil && len(in.Clients) == 0 {
		m.closeInputLocked(in)
	}
	return nil
}

// closeInputLocked tears down an opened input and its patch, dropping
// any remaining client records.
func (m *Manager) closeInputLocked(in *registry.InputDesc) {
	for id := range in.Clients {
		m.reg.RemoveInputClient(id)
	}
	if in.PatchID != 0 {
		m.releasePatchLocked(in.PatchID)
		in.PatchID = 0
	}
	if err := m.client.CloseInput(in.Handle); err != nil {
		m.log.Warn("input close failed", "input", int32(in.Handle), "error", err)
	}
	m.reg.RemoveInput(in.Handle)
}
