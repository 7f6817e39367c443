package manager

import (
	"github.com/soundcore/audiopolicyd/internal/audio"
	"github.com/soundcore/audiopolicyd/internal/hw"
	"github.com/soundcore/audiopolicyd/internal/registry"
)

// PortKind distinguishes the two halves of the port graph.
type PortKind int

const (
	PortKindDevice PortKind = iota
	PortKindMix
)

func (k PortKind) String() string {
	if k == PortKindMix {
		return "MIX"
	}
	return "DEVICE"
}

// AudioPort is the external view of one endpoint of the port graph.
type AudioPort struct {
	ID       audio.PortID
	Kind     PortKind
	Role     hw.PortRole
	Name     string
	Module   string
	Device   audio.Device
	Profiles []*hw.Profile
	// IOHandle is set for mix ports that are currently open.
	IOHandle audio.IOHandle
}

// ListAudioPorts snapshots every device and mix port, together with the
// port generation the snapshot was taken at.
func (m *Manager) ListAudioPorts() ([]AudioPort, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AudioPort
	for _, d := range m.reg.DeviceDescs() {
		out = append(out, deviceAudioPort(d))
	}
	for _, mod := range m.cfg.Modules {
		for _, mp := range mod.MixPorts {
			out = append(out, m.mixAudioPortLocked(mod, mp))
		}
	}
	return out, m.reg.PortGeneration()
}

// GetAudioPort resolves one port by id.
func (m *Manager) GetAudioPort(id audio.PortID) (AudioPort, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if desc := m.reg.FindDeviceByID(id); desc != nil {
		return deviceAudioPort(desc), nil
	}
	return AudioPort{}, audio.Errorf(audio.CodeNameNotFound, "no port with id %d", id)
}

// DeviceToAudioPort resolves the port descriptor a device would expose,
// whether or not it is connected. Repeated calls for the same device
// yield equal descriptors.
func (m *Manager) DeviceToAudioPort(device audio.Device, name string) (AudioPort, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitLocked(); err != nil {
		return AudioPort{}, err
	}
	if desc := m.reg.FindDevice(device); desc != nil {
		return deviceAudioPort(desc), nil
	}
	_, dp := m.cfg.FindDevicePort(device.Type, device.Address)
	if dp == nil {
		return AudioPort{}, audio.Errorf(audio.CodeNameNotFound, "no port declared for %s", device)
	}
	role := hw.RoleSink
	if device.Type.IsInput() {
		role = hw.RoleSource
	}
	if name == "" {
		name = dp.TagName
	}
	return AudioPort{
		Kind:     PortKindDevice,
		Role:     role,
		Name:     name,
		Module:   dp.Module().Name,
		Device:   device,
		Profiles: dp.Profiles,
	}, nil
}

func deviceAudioPort(d *registry.DeviceDesc) AudioPort {
	role := hw.RoleSink
	if d.Device.Type.IsInput() {
		role = hw.RoleSource
	}
	return AudioPort{
		ID:       d.ID,
		Kind:     PortKindDevice,
		Role:     role,
		Name:     d.Name,
		Module:   d.Port.Module().Name,
		Device:   d.Device,
		Profiles: d.Profiles,
	}
}

func (m *Manager) mixAudioPortLocked(mod *hw.Module, mp *hw.MixPort) AudioPort {
	p := AudioPort{
		Kind:     PortKindMix,
		Role:     mp.Role,
		Name:     mp.Name,
		Module:   mod.Name,
		Profiles: mp.Profiles,
	}
	if mp.Role == hw.RoleSource {
		for _, out := range m.reg.Outputs() {
			if out.MixPort == mp {
				p.IOHandle = out.Handle
				break
			}
		}
	} else {
		for _, in := range m.reg.Inputs() {
			if in.MixPort == mp {
				p.IOHandle = in.Handle
				break
			}
		}
	}
	return p
}
