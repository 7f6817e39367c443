package audio

import (
	"fmt"
	"strings"
)

// Usage states why a client plays audio.
type Usage int

const (
	UsageUnknown Usage = iota
	UsageMedia
	UsageVoiceCommunication
	UsageVoiceCommunicationSignalling
	UsageAlarm
	UsageNotification
	UsageNotificationTelephonyRingtone
	UsageNotificationEvent
	UsageAssistanceAccessibility
	UsageAssistanceNavigationGuidance
	UsageAssistanceSonification
	UsageGame
	UsageVirtualSource
	UsageAssistant
	UsageCallAssistant
	UsageEmergency
	UsageSafety
	UsageVehicleStatus
	UsageAnnouncement
)

var usageNames = map[Usage]string{
	UsageUnknown:                       "UNKNOWN",
	UsageMedia:                         "MEDIA",
	UsageVoiceCommunication:            "VOICE_COMMUNICATION",
	UsageVoiceCommunicationSignalling:  "VOICE_COMMUNICATION_SIGNALLING",
	UsageAlarm:                         "ALARM",
	UsageNotification:                  "NOTIFICATION",
	UsageNotificationTelephonyRingtone: "NOTIFICATION_TELEPHONY_RINGTONE",
	UsageNotificationEvent:             "NOTIFICATION_EVENT",
	UsageAssistanceAccessibility:       "ASSISTANCE_ACCESSIBILITY",
	UsageAssistanceNavigationGuidance:  "ASSISTANCE_NAVIGATION_GUIDANCE",
	UsageAssistanceSonification:        "ASSISTANCE_SONIFICATION",
	UsageGame:                          "GAME",
	UsageVirtualSource:                 "VIRTUAL_SOURCE",
	UsageAssistant:                     "ASSISTANT",
	UsageCallAssistant:                 "CALL_ASSISTANT",
	UsageEmergency:                     "EMERGENCY",
	UsageSafety:                        "SAFETY",
	UsageVehicleStatus:                 "VEHICLE_STATUS",
	UsageAnnouncement:                  "ANNOUNCEMENT",
}

func (u Usage) String() string {
	if s, ok := usageNames[u]; ok {
		return s
	}
	return fmt.Sprintf("USAGE(%d)", int(u))
}

// ContentType states what a client plays.
type ContentType int

const (
	ContentUnknown ContentType = iota
	ContentSpeech
	ContentMusic
	ContentMovie
	ContentSonification
)

func (c ContentType) String() string {
	switch c {
	case ContentSpeech:
		return "SPEECH"
	case ContentMusic:
		return "MUSIC"
	case ContentMovie:
		return "MOVIE"
	case ContentSonification:
		return "SONIFICATION"
	}
	return "UNKNOWN"
}

// Source states what a client records.
type Source int

const (
	SourceDefault Source = iota
	SourceMic
	SourceVoiceUplink
	SourceVoiceDownlink
	SourceVoiceCall
	SourceCamcorder
	SourceVoiceRecognition
	SourceVoiceCommunication
	SourceRemoteSubmix
	SourceUnprocessed
	SourceVoicePerformance
	SourceEchoReference
	SourceFMTuner
	SourceHotword
)

var sourceNames = map[Source]string{
	SourceDefault:            "DEFAULT",
	SourceMic:                "MIC",
	SourceVoiceUplink:        "VOICE_UPLINK",
	SourceVoiceDownlink:      "VOICE_DOWNLINK",
	SourceVoiceCall:          "VOICE_CALL",
	SourceCamcorder:          "CAMCORDER",
	SourceVoiceRecognition:   "VOICE_RECOGNITION",
	SourceVoiceCommunication: "VOICE_COMMUNICATION",
	SourceRemoteSubmix:       "REMOTE_SUBMIX",
	SourceUnprocessed:        "UNPROCESSED",
	SourceVoicePerformance:   "VOICE_PERFORMANCE",
	SourceEchoReference:      "ECHO_REFERENCE",
	SourceFMTuner:            "FM_TUNER",
	SourceHotword:            "HOTWORD",
}

func (s Source) String() string {
	if n, ok := sourceNames[s]; ok {
		return n
	}
	return fmt.Sprintf("SOURCE(%d)", int(s))
}

// Priority ranks capture sources for input preemption. Higher wins.
func (s Source) Priority() int {
	switch s {
	case SourceVoiceCommunication:
		return 6
	case SourceCamcorder:
		return 5
	case SourceVoiceRecognition:
		return 4
	case SourceUnprocessed:
		return 3
	case SourceMic:
		return 2
	case SourceHotword:
		return 1
	}
	return 0
}

// AttrFlags are attribute-level flags carried by clients.
type AttrFlags int

const (
	AttrFlagAudibilityEnforced AttrFlags = 1 << iota
	AttrFlagBeacon
	AttrFlagHwAvSync
	AttrFlagLowLatency
	AttrFlagNoMediaProjection
)

// Attributes describe a playback or capture request.
type Attributes struct {
	Usage       Usage
	ContentType ContentType
	Source      Source
	Flags       AttrFlags
	// Tags carries free-form "key=value" entries separated by semicolons.
	Tags string
}

// TagValue returns the value of a "key=value" tag entry, if present.
func (a Attributes) TagValue(key string) (string, bool) {
	for _, tag := range strings.Split(a.Tags, ";") {
		if v, ok := strings.CutPrefix(tag, key+"="); ok {
			return v, true
		}
	}
	return "", false
}

func (a Attributes) String() string {
	return fmt.Sprintf("usage=%s content=%s source=%s flags=0x%x tags=%q",
		a.Usage, a.ContentType, a.Source, int(a.Flags), a.Tags)
}

// OutputFlags request characteristics of an output stream.
type OutputFlags int

const (
	OutputFlagDirect OutputFlags = 1 << iota
	OutputFlagPrimary
	OutputFlagFast
	OutputFlagDeepBuffer
	OutputFlagCompressOffload
	OutputFlagNonBlocking
	OutputFlagHwAvSync
	OutputFlagTTS
	OutputFlagRaw
	OutputFlagSync
	OutputFlagIEC958Nonaudio
	OutputFlagVoipRx
	OutputFlagMmapNoirq
	OutputFlagBitPerfect
)

// OutputFlagNone is the empty flag set.
const OutputFlagNone OutputFlags = 0

// Has reports whether all bits of other are set.
func (f OutputFlags) Has(other OutputFlags) bool { return f&other == other }

// InputFlags request characteristics of an input stream.
type InputFlags int

const (
	InputFlagFast InputFlags = 1 << iota
	InputFlagHwHotword
	InputFlagRaw
	InputFlagSync
	InputFlagMmapNoirq
	InputFlagVoipTx
	InputFlagHwAvSync
	InputFlagDirect
)

// InputFlagNone is the empty flag set.
const InputFlagNone InputFlags = 0

// Has reports whether all bits of other are set.
func (f InputFlags) Has(other InputFlags) bool { return f&other == other }

// StreamType is the legacy volume addressing alias.
type StreamType int

const (
	StreamVoiceCall StreamType = iota
	StreamSystem
	StreamRing
	StreamMusic
	StreamAlarm
	StreamNotification
	StreamBluetoothSCO
	StreamEnforcedAudible
	StreamDTMF
	StreamTTS
	StreamAccessibility
	StreamAssistant
	StreamRerouting
	StreamPatch
)

func (s StreamType) String() string {
	switch s {
	case StreamVoiceCall:
		return "VOICE_CALL"
	case StreamSystem:
		return "SYSTEM"
	case StreamRing:
		return "RING"
	case StreamMusic:
		return "MUSIC"
	case StreamAlarm:
		return "ALARM"
	case StreamNotification:
		return "NOTIFICATION"
	case StreamBluetoothSCO:
		return "BLUETOOTH_SCO"
	case StreamEnforcedAudible:
		return "ENFORCED_AUDIBLE"
	case StreamDTMF:
		return "DTMF"
	case StreamTTS:
		return "TTS"
	case StreamAccessibility:
		return "ACCESSIBILITY"
	case StreamAssistant:
		return "ASSISTANT"
	case StreamRerouting:
		return "REROUTING"
	case StreamPatch:
		return "PATCH"
	}
	return fmt.Sprintf("STREAM(%d)", int(s))
}

// PhoneState is the platform telephony state.
type PhoneState int

const (
	PhoneStateNormal PhoneState = iota
	PhoneStateRingtone
	PhoneStateInCall
	PhoneStateInCommunication
	PhoneStateCallScreen
)

func (p PhoneState) String() string {
	switch p {
	case PhoneStateNormal:
		return "NORMAL"
	case PhoneStateRingtone:
		return "RINGTONE"
	case PhoneStateInCall:
		return "IN_CALL"
	case PhoneStateInCommunication:
		return "IN_COMMUNICATION"
	case PhoneStateCallScreen:
		return "CALL_SCREEN"
	}
	return fmt.Sprintf("PHONE_STATE(%d)", int(p))
}

// ForceUse is a category whose forced configuration overrides the
// engine's default device choice.
type ForceUse int

const (
	ForceUseCommunication ForceUse = iota
	ForceUseMedia
	ForceUseRecord
	ForceUseDock
	ForceUseSystem
	ForceUseHdmiSystemAudio
	ForceUseEncodedSurround
	ForceUseVibrateRinging
	forceUseCount
)

// ForceUseCount is the number of force-use categories.
const ForceUseCount = int(forceUseCount)

func (u ForceUse) String() string {
	switch u {
	case ForceUseCommunication:
		return "FOR_COMMUNICATION"
	case ForceUseMedia:
		return "FOR_MEDIA"
	case ForceUseRecord:
		return "FOR_RECORD"
	case ForceUseDock:
		return "FOR_DOCK"
	case ForceUseSystem:
		return "FOR_SYSTEM"
	case ForceUseHdmiSystemAudio:
		return "FOR_HDMI_SYSTEM_AUDIO"
	case ForceUseEncodedSurround:
		return "FOR_ENCODED_SURROUND"
	case ForceUseVibrateRinging:
		return "FOR_VIBRATE_RINGING"
	}
	return fmt.Sprintf("FOR(%d)", int(u))
}

// ForcedConfig is a forced configuration value for a ForceUse category.
type ForcedConfig int

const (
	ForceNone ForcedConfig = iota
	ForceSpeaker
	ForceHeadphones
	ForceBtSco
	ForceBtA2dp
	ForceWiredAccessory
	ForceDigitalDock
	ForceNoBtA2dp
	ForceSystemEnforced
	ForceEncodedSurroundNever
	ForceEncodedSurroundAlways
	ForceEncodedSurroundManual
)

func (f ForcedConfig) String() string {
	switch f {
	case ForceNone:
		return "NONE"
	case ForceSpeaker:
		return "SPEAKER"
	case ForceHeadphones:
		return "HEADPHONES"
	case ForceBtSco:
		return "BT_SCO"
	case ForceBtA2dp:
		return "BT_A2DP"
	case ForceWiredAccessory:
		return "WIRED_ACCESSORY"
	case ForceDigitalDock:
		return "DIGITAL_DOCK"
	case ForceNoBtA2dp:
		return "NO_BT_A2DP"
	case ForceSystemEnforced:
		return "SYSTEM_ENFORCED"
	case ForceEncodedSurroundNever:
		return "ENCODED_SURROUND_NEVER"
	case ForceEncodedSurroundAlways:
		return "ENCODED_SURROUND_ALWAYS"
	case ForceEncodedSurroundManual:
		return "ENCODED_SURROUND_MANUAL"
	}
	return fmt.Sprintf("FORCE(%d)", int(f))
}

// MixerBehavior is the negotiated mixer mode for preferred mixer
// attributes.
type MixerBehavior int

const (
	MixerBehaviorDefault MixerBehavior = iota
	MixerBehaviorBitPerfect
)

func (b MixerBehavior) String() string {
	if b == MixerBehaviorBitPerfect {
		return "BIT_PERFECT"
	}
	return "DEFAULT"
}

// DeviceRole qualifies a role assignment for a strategy or capture preset.
type DeviceRole int

const (
	DeviceRoleNone DeviceRole = iota
	DeviceRolePreferred
	DeviceRoleDisabled
)

func (r DeviceRole) String() string {
	switch r {
	case DeviceRolePreferred:
		return "PREFERRED"
	case DeviceRoleDisabled:
		return "DISABLED"
	}
	return "NONE"
}

// ConnectionState is a device's availability as reported by the platform.
type ConnectionState int

const (
	DeviceDisconnected ConnectionState = iota
	DeviceConnected
)

func (s ConnectionState) String() string {
	if s == DeviceConnected {
		return "AVAILABLE"
	}
	return "UNAVAILABLE"
}
