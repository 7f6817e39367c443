package manager

import (
	"github.com/soundcore/audiopolicyd/internal/audio"
	"github.com/soundcore/audiopolicyd/internal/hw"
)

// MixerAttributes pins a device port to fixed stream attributes.
type MixerAttributes struct {
	Config   audio.Config
	Behavior audio.MixerBehavior
}

// SetPreferredMixerAttributes pins a device port to mixer attributes on
// behalf of a uid. The device must be routable through a port that can
// serve the pinned configuration.
func (m *Manager) SetPreferredMixerAttributes(portID audio.PortID, uid audio.UID, attrs MixerAttributes) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitLocked(); err != nil {
		return err
	}
	desc := m.reg.FindDeviceByID(portID)
	if desc == nil {
		return audio.Errorf(audio.CodeBadValue, "unknown device port %d", portID)
	}
	if !desc.Device.Type.IsOutput() {
		return audio.Errorf(audio.CodeBadValue, "device %s cannot play", desc.Device)
	}
	supported := false
	for _, mp := range desc.Port.Module().ReachableMixPorts(desc.Port) {
		if mp.Role == hw.RoleSource && mp.SupportsConfig(attrs.Config) {
			supported = true
			break
		}
	}
	if !supported {
		return audio.Errorf(audio.CodeBadValue,
			"no port reaching %s serves %s", desc.Device, attrs.Config)
	}
	m.preferredMixers[prefMixerKey{device: portID}] = &preferredMixer{
		UID:      uid,
		Config:   attrs.Config,
		Behavior: attrs.Behavior,
	}
	m.log.Info("preferred mixer attributes set",
		"device", desc.Device.Type.String(),
		"uid", int32(uid),
		"behavior", attrs.Behavior.String())
	return nil
}

// PreferredMixerAttributes reads the pin on a device port, if any.
func (m *Manager) PreferredMixerAttributes(portID audio.PortID) (MixerAttributes, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pm := m.preferredMixers[prefMixerKey{device: portID}]
	if pm == nil {
		return MixerAttributes{}, false
	}
	return MixerAttributes{Config: pm.Config, Behavior: pm.Behavior}, true
}

// ClearPreferredMixerAttributes removes a pin. Only the owning uid may
// clear it.
func (m *Manager) ClearPreferredMixerAttributes(portID audio.PortID, uid audio.UID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitLocked(); err != nil {
		return err
	}
	key := prefMixerKey{device: portID}
	pm := m.preferredMixers[key]
	if pm == nil {
		return audio.Errorf(audio.CodeNameNotFound, "no preferred mixer attributes on port %d", portID)
	}
	if pm.UID != uid {
		return audio.Errorf(audio.CodePermissionDenied,
			"preferred mixer attributes owned by another uid")
	}
	delete(m.preferredMixers, key)
	return nil
}

// GetSupportedMixerAttributes lists the attribute sets a device port
// can be pinned to, derived from the profiles of its reachable ports.
func (m *Manager) GetSupportedMixerAttributes(portID audio.PortID) ([]MixerAttributes, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitLocked(); err != nil {
		return nil, err
	}
	desc := m.reg.FindDeviceByID(portID)
	if desc == nil {
		return nil, audio.Errorf(audio.CodeBadValue, "unknown device port %d", portID)
	}
	var out []MixerAttributes
	for _, mp := range desc.Port.Module().ReachableMixPorts(desc.Port) {
		if mp.Role != hw.RoleSource {
			continue
		}
		behavior := audio.MixerBehaviorDefault
		if mp.OutputFlags.Has(audio.OutputFlagBitPerfect) {
			behavior = audio.MixerBehaviorBitPerfect
		}
		for _, p := range mp.Profiles {
			if p.IsEmpty() {
				continue
			}
			for _, rate := range p.SampleRates {
				for _, mask := range p.ChannelMasks {
					out = append(out, MixerAttributes{
						Config:   audio.Config{Format: p.Format, SampleRate: rate, ChannelMask: mask},
						Behavior: behavior,
					})
				}
			}
		}
	}
	return out, nil
}

// IsDirectOutputSupported reports whether a direct (non-mixed) path
// exists for the attributes and configuration.
func (m *Manager) IsDirectOutputSupported(attr audio.Attributes, cfg audio.Config) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return false
	}
	for _, mp := range m.directPortsForLocked(attr) {
		if mp.SupportsConfig(cfg) {
			return true
		}
	}
	return false
}

// DirectPlaybackSupport describes the direct path available for a
// request.
type DirectPlaybackSupport int

const (
	DirectPlaybackNone DirectPlaybackSupport = iota
	DirectPlaybackOffload
	DirectPlaybackBitstream
)

func (s DirectPlaybackSupport) String() string {
	switch s {
	case DirectPlaybackOffload:
		return "OFFLOAD"
	case DirectPlaybackBitstream:
		return "BITSTREAM"
	}
	return "NONE"
}

// GetDirectPlaybackSupport classifies the best direct path for the
// attributes and configuration.
func (m *Manager) GetDirectPlaybackSupport(attr audio.Attributes, cfg audio.Config) DirectPlaybackSupport {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return DirectPlaybackNone
	}
	best := DirectPlaybackNone
	for _, mp := range m.directPortsForLocked(attr) {
		if !mp.SupportsConfig(cfg) {
			continue
		}
		if mp.OutputFlags.Has(audio.OutputFlagCompressOffload) {
			return DirectPlaybackOffload
		}
		best = DirectPlaybackBitstream
	}
	return best
}

// GetDirectProfilesForAttributes collects the profiles of every direct
// port reaching the devices the attributes route to.
func (m *Manager) GetDirectProfilesForAttributes(attr audio.Attributes) []*hw.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return nil
	}
	var out []*hw.Profile
	for _, mp := range m.directPortsForLocked(attr) {
		for _, p := range mp.Profiles {
			if !p.IsEmpty() {
				out = append(out, p)
			}
		}
	}
	return out
}

// directPortsForLocked returns the direct source ports reaching the
// devices the engine selects for the attributes.
func (m *Manager) directPortsForLocked(attr audio.Attributes) []*hw.MixPort {
	devices := m.engine.OutputDevicesForAttributes(attr, m.availableOutputDevicesLocked())
	var out []*hw.MixPort
	seen := make(map[*hw.MixPort]struct{})
	for _, d := range devices {
		desc := m.deviceDescFor(d)
		if desc == nil {
			continue
		}
		for _, mp := range desc.Port.Module().ReachableMixPorts(desc.Port) {
			if mp.Role != hw.RoleSource || !mp.OutputFlags.Has(audio.OutputFlagDirect) {
				continue
			}
			if _, dup := seen[mp]; dup {
				continue
			}
			seen[mp] = struct{}{}
			out = append(out, mp)
		}
	}
	return out
}
