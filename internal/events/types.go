package events

// Event type constants for kelindar/event.
const (
	TypeRoutingChanged uint32 = iota + 1
	TypePortListChanged
	TypePatchListChanged
	TypeMixStateChanged
	TypeRecordingConfig
	TypeDeviceConnection
	TypeVolumeChanged
	TypeConfigChanged
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// RoutingChangedEvent is published after a routing decision changed the
// device selection of one or more outputs or inputs.
type RoutingChangedEvent struct {
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for RoutingChangedEvent.
func (e RoutingChangedEvent) Type() uint32 { return TypeRoutingChanged }

// PortListChangedEvent is published when the set of audio ports changed,
// typically after device connection or disconnection.
type PortListChangedEvent struct {
	Generation uint64 `json:"generation" example:"17" doc:"Port list generation counter"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PortListChangedEvent.
func (e PortListChangedEvent) Type() uint32 { return TypePortListChanged }

// PatchListChangedEvent is published when an audio patch was created,
// updated or released.
type PatchListChangedEvent struct {
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PatchListChangedEvent.
func (e PatchListChangedEvent) Type() uint32 { return TypePatchListChanged }

// Mix activity states reported by MixStateChangedEvent.
const (
	MixStateIdle   = 0
	MixStateMixing = 1
)

// MixStateChangedEvent reports activity transitions of a registered
// dynamic policy mix, keyed by its device address registration.
type MixStateChangedEvent struct {
	Registration string `json:"registration" example:"addr=remote_submix_0" doc:"Mix registration identifier"`
	State        int    `json:"state" example:"1" doc:"0 idle, 1 mixing"`
	Timestamp    string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for MixStateChangedEvent.
func (e MixStateChangedEvent) Type() uint32 { return TypeMixStateChanged }

// RecordingConfigEvent reports a capture client becoming active or
// inactive on an input.
type RecordingConfigEvent struct {
	RIID      int32  `json:"riid" example:"3" doc:"Record client identifier"`
	Source    string `json:"source" example:"AUDIO_SOURCE_MIC" doc:"Capture source"`
	Device    string `json:"device" example:"AUDIO_DEVICE_IN_BUILTIN_MIC" doc:"Routed device"`
	Active    bool   `json:"active" example:"true" doc:"Whether the client is capturing"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for RecordingConfigEvent.
func (e RecordingConfigEvent) Type() uint32 { return TypeRecordingConfig }

// DeviceConnectionEvent represents device hotplug transitions.
type DeviceConnectionEvent struct {
	Device    string `json:"device" example:"AUDIO_DEVICE_OUT_WIRED_HEADSET" doc:"Device type name"`
	Address   string `json:"address" example:"card=1;device=0" doc:"Device address"`
	Connected bool   `json:"connected" example:"true" doc:"Whether the device is now available"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceConnectionEvent.
func (e DeviceConnectionEvent) Type() uint32 { return TypeDeviceConnection }

// VolumeChangedEvent is published after a volume index change was applied.
type VolumeChangedEvent struct {
	Group     string `json:"group" example:"media" doc:"Volume group name"`
	Device    string `json:"device" example:"AUDIO_DEVICE_OUT_SPEAKER" doc:"Device the index applies to"`
	Index     int    `json:"index" example:"7" doc:"New volume index"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for VolumeChangedEvent.
func (e VolumeChangedEvent) Type() uint32 { return TypeVolumeChanged }

// ConfigChangedEvent is published when a watched configuration document
// changed on disk. Policy configuration is never hot-reloaded; the event
// signals that a restart is required to pick up the change.
type ConfigChangedEvent struct {
	Path      string `json:"path" example:"/etc/audiopolicyd/audio_policy_configuration.xml" doc:"Changed file"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ConfigChangedEvent.
func (e ConfigChangedEvent) Type() uint32 { return TypeConfigChanged }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"manager" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
