package audio

import (
	"fmt"
	"sort"
	"strings"
)

// DeviceType identifies a physical endpoint class. Output and input
// devices are distinct types even when they share hardware (a wired
// headset is both DeviceOutWiredHeadset and DeviceInWiredHeadset).
type DeviceType int

const (
	DeviceNone DeviceType = iota

	// Output devices.
	DeviceOutEarpiece
	DeviceOutSpeaker
	DeviceOutSpeakerSafe
	DeviceOutWiredHeadset
	DeviceOutWiredHeadphone
	DeviceOutBluetoothSCO
	DeviceOutBluetoothSCOHeadset
	DeviceOutBluetoothA2DP
	DeviceOutBLEHeadset
	DeviceOutBLESpeaker
	DeviceOutHDMI
	DeviceOutHDMIARC
	DeviceOutUSBDevice
	DeviceOutUSBHeadset
	DeviceOutUSBAccessory
	DeviceOutRemoteSubmix
	DeviceOutTelephonyTX
	DeviceOutBus
	DeviceOutAuxLine
	DeviceOutLineOut

	// Input devices.
	DeviceInBuiltinMic
	DeviceInBackMic
	DeviceInWiredHeadset
	DeviceInBluetoothSCOHeadset
	DeviceInBLEHeadset
	DeviceInUSBDevice
	DeviceInUSBHeadset
	DeviceInHDMI
	DeviceInRemoteSubmix
	DeviceInTelephonyRX
	DeviceInFMTuner
	DeviceInEchoReference
	DeviceInBus
)

var deviceTypeNames = map[DeviceType]string{
	DeviceNone:                   "AUDIO_DEVICE_NONE",
	DeviceOutEarpiece:            "AUDIO_DEVICE_OUT_EARPIECE",
	DeviceOutSpeaker:             "AUDIO_DEVICE_OUT_SPEAKER",
	DeviceOutSpeakerSafe:         "AUDIO_DEVICE_OUT_SPEAKER_SAFE",
	DeviceOutWiredHeadset:        "AUDIO_DEVICE_OUT_WIRED_HEADSET",
	DeviceOutWiredHeadphone:      "AUDIO_DEVICE_OUT_WIRED_HEADPHONE",
	DeviceOutBluetoothSCO:        "AUDIO_DEVICE_OUT_BLUETOOTH_SCO",
	DeviceOutBluetoothSCOHeadset: "AUDIO_DEVICE_OUT_BLUETOOTH_SCO_HEADSET",
	DeviceOutBluetoothA2DP:       "AUDIO_DEVICE_OUT_BLUETOOTH_A2DP",
	DeviceOutBLEHeadset:          "AUDIO_DEVICE_OUT_BLE_HEADSET",
	DeviceOutBLESpeaker:          "AUDIO_DEVICE_OUT_BLE_SPEAKER",
	DeviceOutHDMI:                "AUDIO_DEVICE_OUT_HDMI",
	DeviceOutHDMIARC:             "AUDIO_DEVICE_OUT_HDMI_ARC",
	DeviceOutUSBDevice:           "AUDIO_DEVICE_OUT_USB_DEVICE",
	DeviceOutUSBHeadset:          "AUDIO_DEVICE_OUT_USB_HEADSET",
	DeviceOutUSBAccessory:        "AUDIO_DEVICE_OUT_USB_ACCESSORY",
	DeviceOutRemoteSubmix:        "AUDIO_DEVICE_OUT_REMOTE_SUBMIX",
	DeviceOutTelephonyTX:         "AUDIO_DEVICE_OUT_TELEPHONY_TX",
	DeviceOutBus:                 "AUDIO_DEVICE_OUT_BUS",
	DeviceOutAuxLine:             "AUDIO_DEVICE_OUT_AUX_LINE",
	DeviceOutLineOut:             "AUDIO_DEVICE_OUT_LINE",
	DeviceInBuiltinMic:           "AUDIO_DEVICE_IN_BUILTIN_MIC",
	DeviceInBackMic:              "AUDIO_DEVICE_IN_BACK_MIC",
	DeviceInWiredHeadset:         "AUDIO_DEVICE_IN_WIRED_HEADSET",
	DeviceInBluetoothSCOHeadset:  "AUDIO_DEVICE_IN_BLUETOOTH_SCO_HEADSET",
	DeviceInBLEHeadset:           "AUDIO_DEVICE_IN_BLE_HEADSET",
	DeviceInUSBDevice:            "AUDIO_DEVICE_IN_USB_DEVICE",
	DeviceInUSBHeadset:           "AUDIO_DEVICE_IN_USB_HEADSET",
	DeviceInHDMI:                 "AUDIO_DEVICE_IN_HDMI",
	DeviceInRemoteSubmix:         "AUDIO_DEVICE_IN_REMOTE_SUBMIX",
	DeviceInTelephonyRX:          "AUDIO_DEVICE_IN_TELEPHONY_RX",
	DeviceInFMTuner:              "AUDIO_DEVICE_IN_FM_TUNER",
	DeviceInEchoReference:        "AUDIO_DEVICE_IN_ECHO_REFERENCE",
	DeviceInBus:                  "AUDIO_DEVICE_IN_BUS",
}

func (t DeviceType) String() string {
	if s, ok := deviceTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("AUDIO_DEVICE(%d)", int(t))
}

// ParseDeviceType resolves a configuration device type name.
func ParseDeviceType(s string) (DeviceType, bool) {
	for t, name := range deviceTypeNames {
		if name == s {
			return t, true
		}
	}
	return DeviceNone, false
}

// IsOutput reports whether t is an output (sink) device type.
func (t DeviceType) IsOutput() bool {
	return t > DeviceNone && t < DeviceInBuiltinMic
}

// IsInput reports whether t is an input (source) device type.
func (t DeviceType) IsInput() bool {
	return t >= DeviceInBuiltinMic
}

// IsBluetoothSCO reports whether t routes audio over a SCO link where the
// remote endpoint applies voice attenuation.
func (t DeviceType) IsBluetoothSCO() bool {
	switch t {
	case DeviceOutBluetoothSCO, DeviceOutBluetoothSCOHeadset, DeviceInBluetoothSCOHeadset:
		return true
	}
	return false
}

// IsBLE reports whether t is a Bluetooth LE audio device.
func (t DeviceType) IsBLE() bool {
	switch t {
	case DeviceOutBLEHeadset, DeviceOutBLESpeaker, DeviceInBLEHeadset:
		return true
	}
	return false
}

// SupportsAbsoluteVolume reports whether the device class can own its gain
// control (the host then drives the HAL at unity for the driving stream).
func (t DeviceType) SupportsAbsoluteVolume() bool {
	switch t {
	case DeviceOutUSBDevice, DeviceOutUSBHeadset, DeviceOutBluetoothA2DP,
		DeviceOutBLEHeadset, DeviceOutBLESpeaker, DeviceOutHDMIARC:
		return true
	}
	return false
}

// HasDynamicProfiles reports whether the device reports its supported
// formats only after connection (EDID, USB descriptors).
func (t DeviceType) HasDynamicProfiles() bool {
	switch t {
	case DeviceOutHDMI, DeviceOutHDMIARC, DeviceOutUSBDevice, DeviceOutUSBHeadset,
		DeviceInUSBDevice, DeviceInUSBHeadset, DeviceInHDMI:
		return true
	}
	return false
}

// Device is a physical endpoint: a type plus an optional address
// distinguishing instances (USB card, bus name, BT MAC).
type Device struct {
	Type    DeviceType
	Address string
}

func (d Device) String() string {
	if d.Address == "" {
		return d.Type.String()
	}
	return d.Type.String() + "@" + d.Address
}

// DeviceTypeSet is an unordered set of device types.
type DeviceTypeSet map[DeviceType]struct{}

// NewDeviceTypeSet builds a set from the given types.
func NewDeviceTypeSet(types ...DeviceType) DeviceTypeSet {
	s := make(DeviceTypeSet, len(types))
	for _, t := range types {
		s[t] = struct{}{}
	}
	return s
}

// Contains reports set membership.
func (s DeviceTypeSet) Contains(t DeviceType) bool {
	_, ok := s[t]
	return ok
}

func (s DeviceTypeSet) String() string {
	names := make([]string, 0, len(s))
	for t := range s {
		names = append(names, t.String())
	}
	sort.Strings(names)
	return "{" + strings.Join(names, ",") + "}"
}
