package manager

import (
	"github.com/soundcore/audiopolicyd/internal/audio"
	"github.com/soundcore/audiopolicyd/internal/events"
	"github.com/soundcore/audiopolicyd/internal/hw"
	"github.com/soundcore/audiopolicyd/internal/registry"
)

// SetDeviceConnectionState connects or disconnects a device endpoint,
// updating the registry, the HAL, and every stream routed to it.
func (m *Manager) SetDeviceConnectionState(device audio.Device, state audio.ConnectionState,
	name string, encodedFormat audio.Format) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.syncMetricsLocked()
	if err := m.checkInitLocked(); err != nil {
		return err
	}
	if state == audio.DeviceConnected {
		return m.connectDeviceLocked(device, name, encodedFormat)
	}
	return m.disconnectDeviceLocked(device)
}

// GetDeviceConnectionState reports whether the endpoint is available.
func (m *Manager) GetDeviceConnectionState(device audio.Device) audio.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reg.FindDevice(device) != nil {
		return audio.DeviceConnected
	}
	return audio.DeviceDisconnected
}

func (m *Manager) connectDeviceLocked(device audio.Device, name string, encodedFormat audio.Format) error {
	if m.reg.FindDevice(device) != nil {
		return audio.Errorf(audio.CodeInvalidOperation, "device %s already connected", device)
	}
	mod, dp := m.cfg.FindDevicePort(device.Type, device.Address)
	if dp == nil {
		return audio.Errorf(audio.CodeInvalidOperation, "device %s not declared in configuration", device)
	}

	cl := &cleanup{}
	defer cl.run()

	profiles := m.resolveProfilesLocked(device, dp)
	desc := &registry.DeviceDesc{
		ID:       m.reg.NextPortID(),
		Device:   device,
		Name:     name,
		Port:     dp,
		Profiles: profiles,
	}
	if encodedFormat != audio.FormatDefault {
		desc.EncodedFormats = []audio.Format{encodedFormat}
	}

	// Probe must-keep-warm capture ports early so a HAL rejection shows
	// up at connect time. Opened probes are closed unconditionally.
	for _, mp := range mod.ReachableMixPorts(dp) {
		if !mp.KeepWarm || mp.Role != hw.RoleSink {
			continue
		}
		probeCfg, _ := mp.SuggestConfig(audio.Config{})
		handle, err := m.client.OpenInput(mod.Name, device, probeCfg, mp.InputFlags, audio.SourceMic)
		if err != nil {
			m.log.Warn("keep-warm probe rejected",
				"device", device.Type.String(), "port", mp.Name, "error", err)
			continue
		}
		if err := m.client.CloseInput(handle); err != nil {
			m.log.Warn("keep-warm probe close failed", "port", mp.Name, "error", err)
		}
	}

	if !m.simulateConnections {
		if err := m.client.SetDeviceConnectedState(device, true); err != nil {
			return audio.NewError(audio.CodeInvalidOperation, "HAL rejected device connection", err)
		}
		cl.arm(func() { _ = m.client.SetDeviceConnectedState(device, false) })
	}
	if err := m.reg.AddDevice(desc); err != nil {
		return err
	}
	cl.disarm()

	m.reg.BumpPortGeneration()
	m.client.OnAudioPortListUpdate()
	m.client.OnRoutingUpdated()
	m.publish(events.DeviceConnectionEvent{
		Device:    device.Type.String(),
		Address:   device.Address,
		Connected: true,
		Timestamp: nowStamp(),
	})
	m.publish(events.PortListChangedEvent{Generation: m.reg.PortGeneration(), Timestamp: nowStamp()})
	m.refreshRoutingLocked()
	m.log.Info("device connected", "device", device.Type.String(), "address", device.Address)
	return nil
}

func (m *Manager) disconnectDeviceLocked(device audio.Device) error {
	desc := m.reg.FindDevice(device)
	if desc == nil {
		return audio.Errorf(audio.CodeInvalidOperation, "device %s not connected", device)
	}

	// Close streams exclusively routed to the device; shrink the device
	// set of outputs that still have another route.
	for _, out := range m.reg.Outputs() {
		if !out.RoutedTo(device) {
			continue
		}
		if out.OnlyDevice(device) {
			if out.BitPerfect {
				m.postBitPerfectErrorLocked(out)
			}
			for id := range out.Clients {
				m.reg.RemoveOutputClient(id)
			}
			m.closeOutputLocked(out)
			continue
		}
		kept := out.Devices[:0]
		for _, d := range out.Devices {
			if d != device {
				kept = append(kept, d)
			}
		}
		out.Devices = kept
		cl := &cleanup{}
		if err := m.installOutputPatchLocked(out, cl); err != nil {
			cl.run()
			m.log.Warn("repatch after disconnect failed", "output", int32(out.Handle), "error", err)
		} else {
			cl.disarm()
		}
	}
	for _, in := range m.reg.Inputs() {
		if in.Device == device {
			m.closeInputLocked(in)
		}
	}
	for _, p := range m.reg.PatchesReferencing(device) {
		m.releasePatchLocked(p.ID)
	}

	if !desc.HALNotified && !m.simulateConnections {
		if err := m.client.SetDeviceConnectedState(device, false); err != nil {
			m.log.Warn("HAL disconnect broadcast failed", "device", device.Type.String(), "error", err)
		}
	}
	if _, err := m.reg.RemoveDevice(device); err != nil {
		return err
	}

	m.reg.BumpPortGeneration()
	m.client.OnAudioPortListUpdate()
	m.client.OnRoutingUpdated()
	m.publish(events.DeviceConnectionEvent{
		Device:    device.Type.String(),
		Address:   device.Address,
		Connected: false,
		Timestamp: nowStamp(),
	})
	m.publish(events.PortListChangedEvent{Generation: m.reg.PortGeneration(), Timestamp: nowStamp()})
	m.refreshRoutingLocked()
	m.log.Info("device disconnected", "device", device.Type.String(), "address", device.Address)
	return nil
}

// postBitPerfectErrorLocked notifies the bit-perfect track through the
// output's looper that its device went away.
func (m *Manager) postBitPerfectErrorLocked(out *registry.OutputDesc) {
	l, ok := m.loopers[out.Handle]
	if !ok {
		return
	}
	l.post(func() {
		m.client.OnRoutingUpdated()
		m.publish(events.RoutingChangedEvent{Timestamp: nowStamp()})
	})
}

// resolveProfilesLocked clones the template profiles, filling dynamic
// slots from the HAL for devices that report their own capabilities.
func (m *Manager) resolveProfilesLocked(device audio.Device, dp *hw.DevicePort) []*hw.Profile {
	profiles := make([]*hw.Profile, 0, len(dp.Profiles))
	hasDynamic := false
	for _, p := range dp.Profiles {
		if p.Dynamic {
			hasDynamic = true
			continue
		}
		profiles = append(profiles, p)
	}
	if !hasDynamic && !device.Type.HasDynamicProfiles() {
		return profiles
	}
	reported, err := m.client.ListDeviceProfiles(device)
	if err != nil {
		m.log.Warn("dynamic profile query failed", "device", device.Type.String(), "error", err)
		return profiles
	}
	for _, r := range reported {
		profiles = append(profiles, &hw.Profile{
			Format:       r.Format,
			SampleRates:  append([]int(nil), r.SampleRates...),
			ChannelMasks: append([]audio.ChannelMask(nil), r.ChannelMasks...),
			Dynamic:      true,
		})
	}
	return profiles
}

// PrepareToDisconnectExternalDevice warns the HAL that the device is
// about to go away. When the HAL does not support the call, the core
// broadcasts the disconnected state itself and records that the later
// disconnect must not repeat it. The call is idempotent.
func (m *Manager) PrepareToDisconnectExternalDevice(portID audio.PortID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitLocked(); err != nil {
		return err
	}
	desc := m.reg.FindDeviceByID(portID)
	if desc == nil {
		return audio.Errorf(audio.CodeBadValue, "unknown device port %d", portID)
	}
	if desc.HALNotified {
		return nil
	}
	err := m.client.PrepareToDisconnect(desc.Device)
	if audio.IsCode(err, audio.CodeInvalidOperation) {
		// Not supported by this HAL: fall back to a direct state
		// broadcast and make the later disconnect a no-op.
		if stateErr := m.client.SetDeviceConnectedState(desc.Device, false); stateErr != nil {
			return audio.NewError(audio.CodeInvalidOperation, "disconnect broadcast failed", stateErr)
		}
		desc.HALNotified = true
		return nil
	}
	if err != nil {
		return err
	}
	desc.HALNotified = true
	return nil
}

// SetConnectedState bypasses policy bookkeeping and talks directly to
// the HAL module.
func (m *Manager) SetConnectedState(device audio.Device, connected bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitLocked(); err != nil {
		return err
	}
	return m.client.SetDeviceConnectedState(device, connected)
}

// SetSimulateDeviceConnections toggles suppression of the HAL
// connection broadcast, used by tooling driving synthetic hot-plug.
func (m *Manager) SetSimulateDeviceConnections(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.simulateConnections = enabled
}

// HandleDeviceConfigChange re-reads a connected device's dynamic
// capabilities, for example after an HDMI EDID change.
func (m *Manager) HandleDeviceConfigChange(device audio.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitLocked(); err != nil {
		return err
	}
	desc := m.reg.FindDevice(device)
	if desc == nil {
		return audio.Errorf(audio.CodeInvalidOperation, "device %s not connected", device)
	}
	desc.Profiles = m.resolveProfilesLocked(device, desc.Port)
	m.reg.BumpPortGeneration()
	m.client.OnAudioPortListUpdate()
	m.publish(events.PortListChangedEvent{Generation: m.reg.PortGeneration(), Timestamp: nowStamp()})
	m.refreshRoutingLocked()
	return nil
}

// OnNewAudioModulesAvailable re-probes the configuration for attached
// devices whose module was not ready earlier. Newly materialized ports
// bump the generation counter so listeners re-query.
func (m *Manager) OnNewAudioModulesAvailable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return
	}
	added := 0
	for _, tag := range m.cfg.AttachedDevices {
		_, dp := m.cfg.DevicePortByTag(tag)
		if dp == nil || m.reg.FindDevice(dp.Device()) != nil {
			continue
		}
		desc := &registry.DeviceDesc{
			ID:       m.reg.NextPortID(),
			Device:   dp.Device(),
			Name:     dp.TagName,
			Port:     dp,
			Profiles: dp.Profiles,
		}
		if err := m.reg.AddDevice(desc); err != nil {
			continue
		}
		added++
	}
	if added > 0 {
		m.reg.BumpPortGeneration()
		m.client.OnAudioPortListUpdate()
		m.publish(events.PortListChangedEvent{Generation: m.reg.PortGeneration(), Timestamp: nowStamp()})
		m.log.Info("late hardware modules probed", "devices_added", added)
	}
}
