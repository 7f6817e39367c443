package manager

import (
	"github.com/soundcore/audiopolicyd/internal/audio"
	"github.com/soundcore/audiopolicyd/internal/events"
	"github.com/soundcore/audiopolicyd/internal/mixtable"
)

// RegisterPolicyMixes installs dynamic policy mixes atomically and
// materializes the remote submix endpoints loopback mixes capture
// through.
func (m *Manager) RegisterPolicyMixes(mixes []mixtable.Mix) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.syncMetricsLocked()
	if err := m.checkInitLocked(); err != nil {
		return err
	}
	if err := m.mixes.Register(mixes); err != nil {
		return err
	}

	cl := &cleanup{}
	defer cl.run()
	cl.arm(func() { _, _ = m.mixes.Unregister(mixes) })

	for i := range mixes {
		mix := mixes[i]
		if mix.RouteFlags&mixtable.RouteFlagLoopBack == 0 {
			continue
		}
		// The loopback pair lives on the software submix module: an
		// output endpoint the matched players render into, an input
		// endpoint the recording side captures from.
		outDev := audio.Device{Type: audio.DeviceOutRemoteSubmix, Address: mix.Device.Address}
		inDev := audio.Device{Type: audio.DeviceInRemoteSubmix, Address: mix.Device.Address}
		if m.reg.FindDevice(outDev) == nil {
			if err := m.connectDeviceLocked(outDev, "policy mix", audio.FormatDefault); err != nil {
				return err
			}
			dev := outDev
			cl.arm(func() { _ = m.disconnectDeviceLocked(dev) })
		}
		if m.reg.FindDevice(inDev) == nil {
			if err := m.connectDeviceLocked(inDev, "policy mix", audio.FormatDefault); err != nil {
				return err
			}
			dev := inDev
			cl.arm(func() { _ = m.disconnectDeviceLocked(dev) })
		}
		m.notifyMixStateLocked(mix.Device.Address, events.MixStateIdle)
	}
	cl.disarm()
	m.log.Info("policy mixes registered", "count", len(mixes))
	return nil
}

// UnregisterPolicyMixes removes mixes, closing any streams and patches
// they own and tearing down their submix endpoints.
func (m *Manager) UnregisterPolicyMixes(mixes []mixtable.Mix) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.syncMetricsLocked()
	if err := m.checkInitLocked(); err != nil {
		return err
	}
	removed, err := m.mixes.Unregister(mixes)
	for _, mix := range removed {
		m.releaseMixResourcesLocked(mix)
	}
	return err
}

// releaseMixResourcesLocked closes outputs owned by a mix and drops the
// remote submix endpoints no other registered mix still uses.
func (m *Manager) releaseMixResourcesLocked(mix *mixtable.Mix) {
	for _, out := range m.reg.Outputs() {
		if out.MixOrder != mix.Order() {
			continue
		}
		for id := range out.Clients {
			m.reg.RemoveOutputClient(id)
		}
		m.closeOutputLocked(out)
	}
	if mix.RouteFlags&mixtable.RouteFlagLoopBack == 0 {
		return
	}
	addrInUse := false
	for _, other := range m.mixes.Registered() {
		if other.RouteFlags&mixtable.RouteFlagLoopBack != 0 && other.Device.Address == mix.Device.Address {
			addrInUse = true
			break
		}
	}
	if addrInUse {
		return
	}
	outDev := audio.Device{Type: audio.DeviceOutRemoteSubmix, Address: mix.Device.Address}
	inDev := audio.Device{Type: audio.DeviceInRemoteSubmix, Address: mix.Device.Address}
	if m.reg.FindDevice(outDev) != nil {
		if err := m.disconnectDeviceLocked(outDev); err != nil {
			m.log.Warn("submix teardown failed", "device", outDev.String(), "error", err)
		}
	}
	if m.reg.FindDevice(inDev) != nil {
		if err := m.disconnectDeviceLocked(inDev); err != nil {
			m.log.Warn("submix teardown failed", "device", inDev.String(), "error", err)
		}
	}
	m.notifyMixStateLocked(mix.Device.Address, events.MixStateIdle)
}

// notifyMixStateLocked reports a mix activity transition to the HAL
// listener and the event bus, keyed by the mix device address.
func (m *Manager) notifyMixStateLocked(address string, state int) {
	registration := "addr=" + address
	m.client.OnDynamicPolicyMixStateUpdate(registration, state)
	m.publish(events.MixStateChangedEvent{
		Registration: registration,
		State:        state,
		Timestamp:    nowStamp(),
	})
}

// GetRegisteredPolicyMixes snapshots the registered mixes in order.
func (m *Manager) GetRegisteredPolicyMixes() []*mixtable.Mix {
	return m.mixes.Registered()
}

// SetUidDeviceAffinities restricts a uid's playback to the given
// devices, expressed internally as render mixes keyed on the uid.
func (m *Manager) SetUidDeviceAffinities(uid audio.UID, devices []audio.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitLocked(); err != nil {
		return err
	}
	if len(devices) == 0 {
		return audio.Errorf(audio.CodeBadValue, "empty device list for uid affinity")
	}
	if prior, ok := m.uidAffinityMixes[uid]; ok {
		if removed, err := m.mixes.Unregister(prior); err == nil {
			for _, mix := range removed {
				m.releaseMixResourcesLocked(mix)
			}
		}
		delete(m.uidAffinityMixes, uid)
	}
	mixes := make([]mixtable.Mix, 0, len(devices))
	for _, d := range devices {
		mixes = append(mixes, mixtable.Mix{
			Criteria:   []mixtable.Criterion{{Field: mixtable.FieldUID, UID: uid}},
			Type:       mixtable.MixTypePlayers,
			RouteFlags: mixtable.RouteFlagRender,
			Device:     d,
		})
	}
	if err := m.mixes.Register(mixes); err != nil {
		return err
	}
	m.uidAffinityMixes[uid] = mixes
	return nil
}

// RemoveUidDeviceAffinities lifts a uid affinity.
func (m *Manager) RemoveUidDeviceAffinities(uid audio.UID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitLocked(); err != nil {
		return err
	}
	prior, ok := m.uidAffinityMixes[uid]
	if !ok {
		return audio.Errorf(audio.CodeInvalidOperation, "no affinity registered for uid %d", uid)
	}
	removed, err := m.mixes.Unregister(prior)
	for _, mix := range removed {
		m.releaseMixResourcesLocked(mix)
	}
	delete(m.uidAffinityMixes, uid)
	return err
}

// SetUserIdDeviceAffinities restricts a platform user's playback to the
// given devices.
func (m *Manager) SetUserIdDeviceAffinities(userID audio.UserID, devices []audio.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitLocked(); err != nil {
		return err
	}
	if len(devices) == 0 {
		return audio.Errorf(audio.CodeBadValue, "empty device list for user affinity")
	}
	if prior, ok := m.userIDAffinityMixes[userID]; ok {
		if removed, err := m.mixes.Unregister(prior); err == nil {
			for _, mix := range removed {
				m.releaseMixResourcesLocked(mix)
			}
		}
		delete(m.userIDAffinityMixes, userID)
	}
	mixes := make([]mixtable.Mix, 0, len(devices))
	for _, d := range devices {
		mixes = append(mixes, mixtable.Mix{
			Criteria:   []mixtable.Criterion{{Field: mixtable.FieldUserID, UserID: userID}},
			Type:       mixtable.MixTypePlayers,
			RouteFlags: mixtable.RouteFlagRender,
			Device:     d,
		})
	}
	if err := m.mixes.Register(mixes); err != nil {
		return err
	}
	m.userIDAffinityMixes[userID] = mixes
	return nil
}

// RemoveUserIdDeviceAffinities lifts a user affinity.
func (m *Manager) RemoveUserIdDeviceAffinities(userID audio.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitLocked(); err != nil {
		return err
	}
	prior, ok := m.userIDAffinityMixes[userID]
	if !ok {
		return audio.Errorf(audio.CodeInvalidOperation, "no affinity registered for user %d", userID)
	}
	removed, err := m.mixes.Unregister(prior)
	for _, mix := range removed {
		m.releaseMixResourcesLocked(mix)
	}
	delete(m.userIDAffinityMixes, userID)
	return err
}

// Device role assignments pass through to the engine and re-evaluate
// routing.

func (m *Manager) SetDevicesRoleForStrategy(id audio.StrategyID, role audio.DeviceRole, devices []audio.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.engine.SetDevicesRoleForStrategy(id, role, devices); err != nil {
		return err
	}
	m.refreshRoutingLocked()
	return nil
}

func (m *Manager) AddDevicesRoleForStrategy(id audio.StrategyID, role audio.DeviceRole, devices []audio.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.engine.AddDevicesRoleForStrategy(id, role, devices); err != nil {
		return err
	}
	m.refreshRoutingLocked()
	return nil
}

func (m *Manager) RemoveDevicesRoleForStrategy(id audio.StrategyID, role audio.DeviceRole, devices []audio.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.engine.RemoveDevicesRoleForStrategy(id, role, devices); err != nil {
		return err
	}
	m.refreshRoutingLocked()
	return nil
}

func (m *Manager) ClearDevicesRoleForStrategy(id audio.StrategyID, role audio.DeviceRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.engine.ClearDevicesRoleForStrategy(id, role); err != nil {
		return err
	}
	m.refreshRoutingLocked()
	return nil
}

func (m *Manager) SetDevicesRoleForCapturePreset(preset audio.Source, role audio.DeviceRole, devices []audio.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine.SetDevicesRoleForCapturePreset(preset, role, devices)
}

func (m *Manager) AddDevicesRoleForCapturePreset(preset audio.Source, role audio.DeviceRole, devices []audio.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine.AddDevicesRoleForCapturePreset(preset, role, devices)
}

func (m *Manager) RemoveDevicesRoleForCapturePreset(preset audio.Source, role audio.DeviceRole, devices []audio.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine.RemoveDevicesRoleForCapturePreset(preset, role, devices)
}

func (m *Manager) ClearDevicesRoleForCapturePreset(preset audio.Source, role audio.DeviceRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine.ClearDevicesRoleForCapturePreset(preset, role)
}
