package manager

import (
	"time"

	"github.com/soundcore/audiopolicyd/internal/audio"
	"github.com/soundcore/audiopolicyd/internal/engine"
	"github.com/soundcore/audiopolicyd/internal/events"
	"github.com/soundcore/audiopolicyd/internal/metrics"
	"github.com/soundcore/audiopolicyd/internal/registry"
)

// groupForAttributes resolves the volume group of a request: the
// strategy's declared group when the configuration names one, otherwise
// the group owning the legacy stream alias.
func (m *Manager) groupForAttributes(attr audio.Attributes) string {
	id := m.engine.StrategyForAttributes(attr)
	if st, ok := m.engine.StrategyByID(id); ok && st.VolumeGroup != "" {
		if m.vol.Group(st.VolumeGroup) != nil {
			return st.VolumeGroup
		}
	}
	return m.groupForStream(streamTypeForAttributes(attr))
}

// SetVolumeIndexForAttributes sets the index for the request's volume
// group on a device and pushes the resulting gains to every affected
// output.
func (m *Manager) SetVolumeIndexForAttributes(attr audio.Attributes, index int, device audio.DeviceType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitLocked(); err != nil {
		return err
	}
	group := m.groupForAttributes(attr)
	if group == "" {
		return audio.Errorf(audio.CodeBadValue, "no volume group for %s", attr.Usage)
	}
	if err := m.vol.SetIndex(group, device, index); err != nil {
		return err
	}
	for _, out := range m.reg.Outputs() {
		for _, d := range out.Devices {
			if d.Type == device {
				m.applyOutputVolumeLocked(out, 0)
				break
			}
		}
	}
	if g, ok := m.vol.GroupForStream(audio.StreamVoiceCall); ok && g.Name == group {
		m.applyVoiceVolumeForDeviceLocked(device)
	}
	metrics.SetVolumeIndex(group, device.String(), index)
	m.publish(events.VolumeChangedEvent{
		Group:     group,
		Device:    device.String(),
		Index:     index,
		Timestamp: nowStamp(),
	})
	return nil
}

// GetVolumeIndexForAttributes reads the stored index for the request's
// group on a device.
func (m *Manager) GetVolumeIndexForAttributes(attr audio.Attributes, device audio.DeviceType) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitLocked(); err != nil {
		return 0, err
	}
	group := m.groupForAttributes(attr)
	if group == "" {
		return 0, audio.Errorf(audio.CodeBadValue, "no volume group for %s", attr.Usage)
	}
	return m.vol.Index(group, device), nil
}

// SetMasterMute mutes or unmutes every output.
func (m *Manager) SetMasterMute(muted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitLocked(); err != nil {
		return err
	}
	if m.masterMute == muted {
		return nil
	}
	m.masterMute = muted
	for _, out := range m.reg.Outputs() {
		m.applyOutputVolumeLocked(out, 0)
	}
	return nil
}

// MasterMute reports the master mute state.
func (m *Manager) MasterMute() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.masterMute
}

// SetMicMute mutes capture globally via HAL parameters.
func (m *Manager) SetMicMute(muted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitLocked(); err != nil {
		return err
	}
	m.micMute = muted
	for _, in := range m.reg.Inputs() {
		key := "mic_mute=off"
		if muted {
			key = "mic_mute=on"
		}
		if err := m.client.SetParameters(in.Handle, key); err != nil {
			m.log.Warn("mic mute delivery failed", "input", int32(in.Handle), "error", err)
		}
	}
	return nil
}

// MicMute reports the capture mute state.
func (m *Manager) MicMute() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.micMute
}

// SetPhoneState switches the telephony state, preempting bit-perfect
// playback on entry into a call and re-evaluating all routing.
func (m *Manager) SetPhoneState(state audio.PhoneState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitLocked(); err != nil {
		return err
	}
	m.engine.SetPhoneState(state)
	if state != audio.PhoneStateNormal {
		m.closeBitPerfectOutputsLocked()
	}
	m.refreshRoutingLocked()
	for _, out := range m.reg.Outputs() {
		for _, c := range out.Clients {
			if c.Stream == audio.StreamVoiceCall {
				m.applyVoiceVolumeLocked(out)
				break
			}
		}
	}
	m.log.Info("phone state changed", "state", state.String())
	return nil
}

// PhoneState reports the current telephony state.
func (m *Manager) PhoneState() audio.PhoneState {
	return m.engine.PhoneState()
}

// SetForceUse sets a forced configuration and re-evaluates routing.
func (m *Manager) SetForceUse(usage audio.ForceUse, config audio.ForcedConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitLocked(); err != nil {
		return err
	}
	if err := m.engine.SetForceUse(usage, config); err != nil {
		return err
	}
	m.refreshRoutingLocked()
	return nil
}

// GetForceUse reads a forced configuration.
func (m *Manager) GetForceUse(usage audio.ForceUse) audio.ForcedConfig {
	return m.engine.ForceUse(usage)
}

// SetDeviceAbsoluteVolumeEnabled marks a device as applying its own
// gain for the stream's volume group. The driving stream is delivered
// to the HAL at unity from then on.
func (m *Manager) SetDeviceAbsoluteVolumeEnabled(device audio.DeviceType, stream audio.StreamType, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitLocked(); err != nil {
		return err
	}
	group := m.groupForStream(stream)
	if group == "" {
		return audio.Errorf(audio.CodeBadValue, "stream %s has no volume group", stream)
	}
	if err := m.vol.SetAbsolute(device, group, enabled); err != nil {
		return err
	}
	for _, out := range m.reg.Outputs() {
		for _, d := range out.Devices {
			if d.Type == device {
				m.applyOutputVolumeLocked(out, 0)
				break
			}
		}
	}
	return nil
}

// applyOutputVolumeLocked recomputes and delivers the gain of every
// active track on an output, honoring device mutes, master mute,
// internal mute, and absolute-volume devices.
func (m *Manager) applyOutputVolumeLocked(out *registry.OutputDesc, delay time.Duration) {
	if len(out.Devices) == 0 {
		return
	}
	devType := out.Devices[0].Type
	drivingGroup, absolute := m.vol.DrivingGroup(devType)

	if m.opts.PortVolumes {
		// Per-port path: one call per volume group, carrying the ports
		// of that group's tracks.
		type bucket struct {
			ports []audio.PortID
			gain  float64
			muted bool
		}
		buckets := make(map[string]*bucket)
		for _, c := range out.Clients {
			if !c.Active {
				continue
			}
			group := m.groupForStream(c.Stream)
			b, ok := buckets[group]
			if !ok {
				gain := m.vol.GainAmplitude(group, devType, m.vol.Index(group, devType))
				if absolute && group == drivingGroup {
					gain = 1.0
				}
				b = &bucket{
					gain:  gain,
					muted: m.vol.Muted(group, devType) || m.masterMute,
				}
				buckets[group] = b
			}
			muted := b.muted || c.InternalMute
			if c.InternalMute {
				// Internal mute is per track, so the port gets its own
				// delivery.
				if err := m.client.SetPortsVolume([]audio.PortID{c.PortID}, b.gain, muted, out.Handle, delay); err != nil {
					m.log.Warn("port volume delivery failed", "port", int32(c.PortID), "error", err)
				}
				continue
			}
			b.ports = append(b.ports, c.PortID)
		}
		for _, b := range buckets {
			if len(b.ports) == 0 {
				continue
			}
			if err := m.client.SetPortsVolume(b.ports, b.gain, b.muted, out.Handle, delay); err != nil {
				m.log.Warn("port volume delivery failed", "output", int32(out.Handle), "error", err)
			}
		}
		return
	}

	// Legacy stream-wise path: one call per distinct stream type.
	seen := make(map[audio.StreamType]bool)
	for _, c := range out.Clients {
		if !c.Active || seen[c.Stream] {
			continue
		}
		seen[c.Stream] = true
		group := m.groupForStream(c.Stream)
		gain := m.vol.GainAmplitude(group, devType, m.vol.Index(group, devType))
		if absolute && group == drivingGroup {
			gain = 1.0
		}
		muted := m.vol.Muted(group, devType) || m.masterMute || c.InternalMute
		if err := m.client.SetStreamVolume(c.Stream, gain, muted, out.Handle, delay); err != nil {
			m.log.Warn("stream volume delivery failed",
				"stream", c.Stream.String(), "output", int32(out.Handle), "error", err)
		}
	}
}

// applyVoiceVolumeLocked delivers the telephony volume for an output's
// routed device: Bluetooth SCO and LE endpoints attenuate remotely, so
// the HAL level is forced to unity for them.
func (m *Manager) applyVoiceVolumeLocked(out *registry.OutputDesc) {
	if len(out.Devices) == 0 {
		return
	}
	m.deliverVoiceVolumeLocked(out.Devices[0].Type)
}

func (m *Manager) applyVoiceVolumeForDeviceLocked(device audio.DeviceType) {
	for _, out := range m.reg.Outputs() {
		if len(out.Devices) == 0 || out.Devices[0].Type != device {
			continue
		}
		for _, c := range out.Clients {
			if c.Active && c.Stream == audio.StreamVoiceCall {
				m.deliverVoiceVolumeLocked(device)
				return
			}
		}
	}
}

func (m *Manager) deliverVoiceVolumeLocked(device audio.DeviceType) {
	gain := 1.0
	if !device.IsBluetoothSCO() && !device.IsBLE() {
		group := m.groupForStream(audio.StreamVoiceCall)
		gain = m.vol.GainAmplitude(group, device, m.vol.Index(group, device))
	}
	if err := m.client.SetVoiceVolume(gain, 0); err != nil {
		m.log.Warn("voice volume delivery failed", "error", err)
	}
}

// Strategies exposes the engine's strategy table for the read surface.
func (m *Manager) Strategies() []engine.Strategy {
	return m.engine.Strategies()
}
