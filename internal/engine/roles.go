package engine

import (
	"github.com/soundcore/audiopolicyd/internal/audio"
)

// Role assignments pin or exclude devices for a strategy or for a
// capture preset. PREFERRED devices are consulted before engine
// defaults; DISABLED devices are filtered from every candidate list.

// SetDevicesRoleForStrategy replaces the device list assigned to the
// role for a strategy.
func (e *Engine) SetDevicesRoleForStrategy(id audio.StrategyID, role audio.DeviceRole, devices []audio.Device) error {
	if role == audio.DeviceRoleNone || len(devices) == 0 {
		return audio.Errorf(audio.CodeBadValue, "role %s with %d devices", role, len(devices))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	rm := e.strategyRoles[id]
	if rm == nil {
		rm = make(roleMap)
		e.strategyRoles[id] = rm
	}
	rm[role] = dedupeDevices(devices)
	return nil
}

// AddDevicesRoleForStrategy appends devices to the role list, skipping
// devices already present.
func (e *Engine) AddDevicesRoleForStrategy(id audio.StrategyID, role audio.DeviceRole, devices []audio.Device) error {
	if role == audio.DeviceRoleNone || len(devices) == 0 {
		return audio.Errorf(audio.CodeBadValue, "role %s with %d devices", role, len(devices))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	rm := e.strategyRoles[id]
	if rm == nil {
		rm = make(roleMap)
		e.strategyRoles[id] = rm
	}
	rm[role] = dedupeDevices(append(rm[role], devices...))
	return nil
}

// RemoveDevicesRoleForStrategy removes specific devices from the role
// list. Unknown devices are reported, not ignored.
func (e *Engine) RemoveDevicesRoleForStrategy(id audio.StrategyID, role audio.DeviceRole, devices []audio.Device) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	rm := e.strategyRoles[id]
	if rm == nil || len(rm[role]) == 0 {
		return audio.Errorf(audio.CodeNameNotFound, "no %s devices for strategy %d", role, id)
	}
	current := rm[role]
	for _, d := range devices {
		idx := indexOfDevice(current, d)
		if idx < 0 {
			return audio.Errorf(audio.CodeNameNotFound, "device %s not assigned to strategy %d", d, id)
		}
		current = append(current[:idx], current[idx+1:]...)
	}
	if len(current) == 0 {
		delete(rm, role)
	} else {
		rm[role] = current
	}
	return nil
}

// ClearDevicesRoleForStrategy drops the role assignment entirely.
func (e *Engine) ClearDevicesRoleForStrategy(id audio.StrategyID, role audio.DeviceRole) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	rm := e.strategyRoles[id]
	if rm == nil || rm[role] == nil {
		return audio.Errorf(audio.CodeNameNotFound, "no %s devices for strategy %d", role, id)
	}
	delete(rm, role)
	return nil
}

// DevicesRoleForStrategy returns the devices assigned to the role.
func (e *Engine) DevicesRoleForStrategy(id audio.StrategyID, role audio.DeviceRole) []audio.Device {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rm := e.strategyRoles[id]
	if rm == nil {
		return nil
	}
	out := make([]audio.Device, len(rm[role]))
	copy(out, rm[role])
	return out
}

// SetDevicesRoleForCapturePreset replaces the device list assigned to
// the role for a capture preset.
func (e *Engine) SetDevicesRoleForCapturePreset(preset audio.Source, role audio.DeviceRole, devices []audio.Device) error {
	if role == audio.DeviceRoleNone || len(devices) == 0 {
		return audio.Errorf(audio.CodeBadValue, "role %s with %d devices", role, len(devices))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	rm := e.presetRoles[preset]
	if rm == nil {
		rm = make(roleMap)
		e.presetRoles[preset] = rm
	}
	rm[role] = dedupeDevices(devices)
	return nil
}

// AddDevicesRoleForCapturePreset appends devices to the role list.
func (e *Engine) AddDevicesRoleForCapturePreset(preset audio.Source, role audio.DeviceRole, devices []audio.Device) error {
	if role == audio.DeviceRoleNone || len(devices) == 0 {
		return audio.Errorf(audio.CodeBadValue, "role %s with %d devices", role, len(devices))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	rm := e.presetRoles[preset]
	if rm == nil {
		rm = make(roleMap)
		e.presetRoles[preset] = rm
	}
	rm[role] = dedupeDevices(append(rm[role], devices...))
	return nil
}

// RemoveDevicesRoleForCapturePreset removes specific devices from the
// role list.
func (e *Engine) RemoveDevicesRoleForCapturePreset(preset audio.Source, role audio.DeviceRole, devices []audio.Device) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	rm := e.presetRoles[preset]
	if rm == nil || len(rm[role]) == 0 {
		return audio.Errorf(audio.CodeNameNotFound, "no %s devices for preset %s", role, preset)
	}
	current := rm[role]
	for _, d := range devices {
		idx := indexOfDevice(current, d)
		if idx < 0 {
			return audio.Errorf(audio.CodeNameNotFound, "device %s not assigned to preset %s", d, preset)
		}
		current = append(current[:idx], current[idx+1:]...)
	}
	if len(current) == 0 {
		delete(rm, role)
	} else {
		rm[role] = current
	}
	return nil
}

// ClearDevicesRoleForCapturePreset drops the role assignment entirely.
func (e *Engine) ClearDevicesRoleForCapturePreset(preset audio.Source, role audio.DeviceRole) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	rm := e.presetRoles[preset]
	if rm == nil || rm[role] == nil {
		return audio.Errorf(audio.CodeNameNotFound, "no %s devices for preset %s", role, preset)
	}
	delete(rm, role)
	return nil
}

// DevicesRoleForCapturePreset returns the devices assigned to the role.
func (e *Engine) DevicesRoleForCapturePreset(preset audio.Source, role audio.DeviceRole) []audio.Device {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rm := e.presetRoles[preset]
	if rm == nil {
		return nil
	}
	out := make([]audio.Device, len(rm[role]))
	copy(out, rm[role])
	return out
}

func dedupeDevices(devices []audio.Device) []audio.Device {
	var out []audio.Device
	for _, d := range devices {
		if indexOfDevice(out, d) < 0 {
			out = append(out, d)
		}
	}
	return out
}

func indexOfDevice(devices []audio.Device, d audio.Device) int {
	for i, v := range devices {
		if v == d {
			return i
		}
	}
	return -1
}
