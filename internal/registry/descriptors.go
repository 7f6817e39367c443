// Package registry owns every mutable runtime table of the policy
// manager: available devices, opened streams, port configs, patches,
// and client records. Entities reference each other by id only; the
// registry is the single owner (arena model).
package registry

import (
	"github.com/soundcore/audiopolicyd/internal/audio"
	"github.com/soundcore/audiopolicyd/internal/hw"
)

// DeviceDesc is a connected (or attached) device instance materialized
// from its configuration template.
type DeviceDesc struct {
	ID     audio.PortID
	Device audio.Device
	Name   string
	// Port is the configuration template the instance was cloned from.
	Port *hw.DevicePort
	// Profiles are the instance's capabilities. For dynamic-profile
	// devices they are filled from the HAL on connect.
	Profiles []*hw.Profile
	// EncodedFormats mirrors surround formats enabled manually on this
	// instance.
	EncodedFormats []audio.Format
	// HALNotified remembers that prepareToDisconnect already told the
	// HAL, making the later disconnect broadcast a no-op.
	HALNotified bool
}

// SupportsFormat reports whether the instance currently advertises f.
func (d *DeviceDesc) SupportsFormat(f audio.Format) bool {
	for _, p := range d.Profiles {
		if p.Format == f {
			return true
		}
	}
	return false
}

// OutputClient is a playback client record.
type OutputClient struct {
	PortID     audio.PortID
	UID        audio.UID
	Session    audio.Session
	Attributes audio.Attributes
	Config     audio.Config
	Flags      audio.OutputFlags
	Stream     audio.StreamType
	Strategy   audio.StrategyID
	Output     audio.IOHandle
	Active     bool
	// InternalMute is the per-track volume-multiplier flag reported to
	// the HAL separately from user volume.
	InternalMute bool
}

// InputClient is a capture client record.
type InputClient struct {
	PortID     audio.PortID
	UID        audio.UID
	Session    audio.Session
	Attributes audio.Attributes
	Config     audio.Config
	Flags      audio.InputFlags
	Source     audio.Source
	RIID       int32
	Input      audio.IOHandle
	Active     bool
}

// OutputDesc is an opened output stream.
type OutputDesc struct {
	Handle  audio.IOHandle
	Module  *hw.Module
	MixPort *hw.MixPort
	Config  audio.Config
	Flags   audio.OutputFlags
	Devices []audio.Device
	PatchID audio.PatchID
	Clients map[audio.PortID]*OutputClient
	// BitPerfect marks an output opened for a preferred-mixer
	// bit-perfect pin.
	BitPerfect bool
	MixOrder   int // registration order of the owning policy mix, -1 if none
}

// ActiveCount returns the number of started clients.
func (o *OutputDesc) ActiveCount() int {
	n := 0
	for _, c := range o.Clients {
		if c.Active {
			n++
		}
	}
	return n
}

// RoutedTo reports whether the output's device set contains d.
func (o *OutputDesc) RoutedTo(d audio.Device) bool {
	for _, dev := range o.Devices {
		if dev == d {
			return true
		}
	}
	return false
}

// OnlyDevice reports whether d is the output's single routed device.
func (o *OutputDesc) OnlyDevice(d audio.Device) bool {
	return len(o.Devices) == 1 && o.Devices[0] == d
}

// InputDesc is an opened input stream.
type InputDesc struct {
	Handle  audio.IOHandle
	Module  *hw.Module
	MixPort *hw.MixPort
	Config  audio.Config
	Flags   audio.InputFlags
	Device  audio.Device
	Source  audio.Source
	PatchID audio.PatchID
	Clients map[audio.PortID]*InputClient
}

// ActiveCount returns the number of started clients.
func (i *InputDesc) ActiveCount() int {
	n := 0
	for _, c := range i.Clients {
		if c.Active {
			n++
		}
	}
	return n
}

// TopPrioritySource returns the highest-priority source among the
// input's clients.
func (i *InputDesc) TopPrioritySource() audio.Source {
	top := audio.SourceDefault
	for _, c := range i.Clients {
		if c.Source.Priority() > top.Priority() {
			top = c.Source
		}
	}
	return top
}

// PortConfig is an active instantiation of a mix or device port.
type PortConfig struct {
	ID audio.PortID
	// Device is set for device port configs; MixPort for mix port
	// configs. Exactly one is meaningful.
	Device  audio.Device
	MixPort *hw.MixPort
	Config  audio.Config
	// Refs counts patches and streams referencing the config; it is
	// destroyed at zero.
	Refs int
}

// IsDevice reports whether the config instantiates a device port.
func (p *PortConfig) IsDevice() bool { return p.MixPort == nil }

// Patch is an active routing instruction.
type Patch struct {
	ID audio.PatchID
	// HALID is the identifier the collaborator returned for the patch.
	HALID audio.PatchID
	// Sources and Sinks are port config ids.
	Sources []audio.PortID
	Sinks   []audio.PortID
	// LatencyMs is reported by the HAL at creation.
	LatencyMs int
}
