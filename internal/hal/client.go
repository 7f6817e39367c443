// Package hal defines the collaborator interface the policy core uses
// to drive the audio server, plus an in-memory implementation for
// simulation and tests.
package hal

import (
	"time"

	"github.com/soundcore/audiopolicyd/internal/audio"
)

// DeviceProfile is one capability tuple a connected device reports.
type DeviceProfile struct {
	Format       audio.Format
	SampleRates  []int
	ChannelMasks []audio.ChannelMask
}

// PatchEnd is one endpoint of a patch request: either a device endpoint
// or an opened mix stream.
type PatchEnd struct {
	Device audio.Device
	MixIO  audio.IOHandle
	Config audio.Config
}

// PatchRequest describes a routing instruction for the HAL.
type PatchRequest struct {
	Sources []PatchEnd
	Sinks   []PatchEnd
}

// Client is the AudioPolicyClientInterface: every hardware-facing
// operation the policy core delegates. Implementations may block
// briefly; the manager calls them under its lock.
type Client interface {
	OpenOutput(module string, device audio.Device, cfg audio.Config, flags audio.OutputFlags) (audio.IOHandle, error)
	CloseOutput(handle audio.IOHandle) error
	OpenInput(module string, device audio.Device, cfg audio.Config, flags audio.InputFlags, source audio.Source) (audio.IOHandle, error)
	CloseInput(handle audio.IOHandle) error

	CreateAudioPatch(req PatchRequest) (audio.PatchID, int, error)
	ReleaseAudioPatch(id audio.PatchID) error

	SetStreamVolume(stream audio.StreamType, gain float64, muted bool, output audio.IOHandle, delay time.Duration) error
	SetPortsVolume(ports []audio.PortID, gain float64, muted bool, output audio.IOHandle, delay time.Duration) error
	SetVoiceVolume(gain float64, delay time.Duration) error

	SetDeviceConnectedState(device audio.Device, connected bool) error
	// PrepareToDisconnect warns the HAL that the device will go away.
	// CodeInvalidOperation means the HAL does not support the call.
	PrepareToDisconnect(device audio.Device) error
	// ListDeviceProfiles answers dynamic profile queries for
	// just-connected devices (EDID, USB descriptors).
	ListDeviceProfiles(device audio.Device) ([]DeviceProfile, error)

	SetParameters(io audio.IOHandle, keyValuePairs string) error

	// Listener notifications.
	OnAudioPortListUpdate()
	OnAudioPatchListUpdate()
	OnRoutingUpdated()
	OnDynamicPolicyMixStateUpdate(regID string, state int)
	OnRecordingConfigurationUpdate(riid int32, source audio.Source, device audio.Device, active bool)
}
