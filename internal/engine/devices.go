package engine

import (
	"github.com/soundcore/audiopolicyd/internal/audio"
)

// mediaOrder is the default output candidate ranking for media-like
// strategies: last-connected removable devices outrank built-ins.
var mediaOrder = []audio.DeviceType{
	audio.DeviceOutBluetoothA2DP,
	audio.DeviceOutBLEHeadset,
	audio.DeviceOutBLESpeaker,
	audio.DeviceOutWiredHeadphone,
	audio.DeviceOutWiredHeadset,
	audio.DeviceOutUSBHeadset,
	audio.DeviceOutUSBDevice,
	audio.DeviceOutUSBAccessory,
	audio.DeviceOutHDMIARC,
	audio.DeviceOutHDMI,
	audio.DeviceOutAuxLine,
	audio.DeviceOutLineOut,
	audio.DeviceOutSpeaker,
}

var phoneOrder = []audio.DeviceType{
	audio.DeviceOutBLEHeadset,
	audio.DeviceOutBluetoothSCOHeadset,
	audio.DeviceOutBluetoothSCO,
	audio.DeviceOutWiredHeadset,
	audio.DeviceOutWiredHeadphone,
	audio.DeviceOutUSBHeadset,
	audio.DeviceOutUSBDevice,
	audio.DeviceOutEarpiece,
	audio.DeviceOutSpeaker,
}

// OutputDevicesForAttributes composes strategy resolution and device
// selection for a playback request.
func (e *Engine) OutputDevicesForAttributes(attr audio.Attributes, available []audio.Device) []audio.Device {
	return e.DevicesForStrategy(e.StrategyForAttributes(attr), available)
}

// DevicesForStrategy returns the ordered device candidates for a
// strategy given the currently available output devices. PREFERRED role
// devices come first; DISABLED role devices never appear.
func (e *Engine) DevicesForStrategy(id audio.StrategyID, available []audio.Device) []audio.Device {
	e.mu.RLock()
	phoneState := e.phoneState
	forceComm := e.forceUse[audio.ForceUseCommunication]
	forceMedia := e.forceUse[audio.ForceUseMedia]
	var preferred, disabled []audio.Device
	if rm := e.strategyRoles[id]; rm != nil {
		preferred = rm[audio.DeviceRolePreferred]
		disabled = rm[audio.DeviceRoleDisabled]
	}
	e.mu.RUnlock()

	var out []audio.Device
	for _, d := range preferred {
		if indexOfDevice(available, d) >= 0 {
			out = append(out, d)
		}
	}
	out = append(out, e.defaultsForStrategy(id, phoneState, forceComm, forceMedia, available)...)
	out = dedupeDevices(out)

	if len(disabled) == 0 {
		return out
	}
	filtered := out[:0]
	for _, d := range out {
		if indexOfDevice(disabled, d) < 0 {
			filtered = append(filtered, d)
		}
	}
	return filtered
}

func (e *Engine) defaultsForStrategy(id audio.StrategyID, phoneState audio.PhoneState,
	forceComm, forceMedia audio.ForcedConfig, available []audio.Device) []audio.Device {

	inCall := phoneState == audio.PhoneStateInCall ||
		phoneState == audio.PhoneStateInCommunication ||
		phoneState == audio.PhoneStateCallScreen

	switch id {
	case StrategyPhone:
		return e.phoneDevices(forceComm, available)

	case StrategyDTMF:
		if inCall {
			return e.phoneDevices(forceComm, available)
		}
		return pickByOrder(available, mediaOrder)

	case StrategySonification:
		// Ringtones and alarms must reach the speaker even when a
		// headset is connected; both devices are candidates.
		out := pickByType(available, audio.DeviceOutSpeaker)
		return append(out, pickByOrder(available, mediaOrder)...)

	case StrategySonificationRespectful:
		if inCall || phoneState == audio.PhoneStateRingtone {
			return e.phoneDevices(forceComm, available)
		}
		return pickByOrder(available, mediaOrder)

	case StrategyEnforcedAudible:
		out := pickByType(available, audio.DeviceOutSpeaker)
		return append(out, pickByOrder(available, mediaOrder)...)

	case StrategyTransmittedThroughSpeaker:
		return pickByType(available, audio.DeviceOutSpeaker)

	case StrategyAccessibility:
		if inCall || phoneState == audio.PhoneStateRingtone {
			return e.phoneDevices(forceComm, available)
		}
		return e.mediaDevices(forceMedia, available)

	case StrategyRerouting, StrategyPatch:
		// Routed exclusively through dynamic mixes or explicit patches.
		return nil
	}

	if inCall {
		// Media during a call follows the call routing.
		return e.phoneDevices(forceComm, available)
	}
	return e.mediaDevices(forceMedia, available)
}

func (e *Engine) phoneDevices(force audio.ForcedConfig, available []audio.Device) []audio.Device {
	switch force {
	case audio.ForceBtSco:
		out := pickByOrder(available, []audio.DeviceType{
			audio.DeviceOutBluetoothSCOHeadset,
			audio.DeviceOutBluetoothSCO,
		})
		if len(out) > 0 {
			return out
		}
		// SCO forced but absent: fall through to the normal order.
	case audio.ForceSpeaker:
		if out := pickByType(available, audio.DeviceOutSpeaker); len(out) > 0 {
			return out
		}
	}
	return pickByOrder(available, phoneOrder)
}

func (e *Engine) mediaDevices(force audio.ForcedConfig, available []audio.Device) []audio.Device {
	order := mediaOrder
	switch force {
	case audio.ForceSpeaker:
		if out := pickByType(available, audio.DeviceOutSpeaker); len(out) > 0 {
			return out
		}
	case audio.ForceNoBtA2dp:
		order = withoutType(order, audio.DeviceOutBluetoothA2DP)
	case audio.ForceDigitalDock, audio.ForceWiredAccessory:
		// Transient dock override: digital sinks first.
		front := []audio.DeviceType{audio.DeviceOutHDMI, audio.DeviceOutHDMIARC, audio.DeviceOutAuxLine}
		order = append(front, withoutTypes(order, front)...)
	}
	return pickByOrder(available, order)
}

// InputDeviceForAttributes selects the capture device for a request.
// Capture-preset PREFERRED assignments win when available; DISABLED
// assignments remove candidates.
func (e *Engine) InputDeviceForAttributes(attr audio.Attributes, available []audio.Device) (audio.Device, bool) {
	e.mu.RLock()
	forceComm := e.forceUse[audio.ForceUseCommunication]
	var preferred, disabled []audio.Device
	if rm := e.presetRoles[attr.Source]; rm != nil {
		preferred = rm[audio.DeviceRolePreferred]
		disabled = rm[audio.DeviceRoleDisabled]
	}
	e.mu.RUnlock()

	usable := available
	if len(disabled) > 0 {
		usable = nil
		for _, d := range available {
			if indexOfDevice(disabled, d) < 0 {
				usable = append(usable, d)
			}
		}
	}
	for _, d := range preferred {
		if indexOfDevice(usable, d) >= 0 {
			return d, true
		}
	}

	candidates := pickByOrder(usable, inputOrderForSource(attr.Source, forceComm))
	if len(candidates) == 0 {
		return audio.Device{}, false
	}
	return candidates[0], true
}

func inputOrderForSource(source audio.Source, forceComm audio.ForcedConfig) []audio.DeviceType {
	headsetFirst := []audio.DeviceType{
		audio.DeviceInBLEHeadset,
		audio.DeviceInWiredHeadset,
		audio.DeviceInUSBHeadset,
		audio.DeviceInUSBDevice,
		audio.DeviceInBuiltinMic,
	}
	switch source {
	case audio.SourceVoiceCommunication:
		if forceComm == audio.ForceBtSco {
			return append([]audio.DeviceType{audio.DeviceInBluetoothSCOHeadset}, headsetFirst...)
		}
		return headsetFirst
	case audio.SourceCamcorder:
		return []audio.DeviceType{audio.DeviceInBackMic, audio.DeviceInBuiltinMic}
	case audio.SourceRemoteSubmix:
		return []audio.DeviceType{audio.DeviceInRemoteSubmix}
	case audio.SourceFMTuner:
		return []audio.DeviceType{audio.DeviceInFMTuner}
	case audio.SourceVoiceCall, audio.SourceVoiceUplink, audio.SourceVoiceDownlink:
		return []audio.DeviceType{audio.DeviceInTelephonyRX}
	case audio.SourceEchoReference:
		return []audio.DeviceType{audio.DeviceInEchoReference}
	}
	return headsetFirst
}

func pickByType(available []audio.Device, t audio.DeviceType) []audio.Device {
	var out []audio.Device
	for _, d := range available {
		if d.Type == t {
			out = append(out, d)
		}
	}
	return out
}

func pickByOrder(available []audio.Device, order []audio.DeviceType) []audio.Device {
	var out []audio.Device
	for _, t := range order {
		out = append(out, pickByType(available, t)...)
	}
	return out
}

func withoutType(order []audio.DeviceType, t audio.DeviceType) []audio.DeviceType {
	out := make([]audio.DeviceType, 0, len(order))
	for _, v := range order {
		if v != t {
			out = append(out, v)
		}
	}
	return out
}

func withoutTypes(order []audio.DeviceType, ts []audio.DeviceType) []audio.DeviceType {
	out := make([]audio.DeviceType, 0, len(order))
	for _, v := range order {
		skip := false
		for _, t := range ts {
			if v == t {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, v)
		}
	}
	return out
}
