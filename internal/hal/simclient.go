package hal

import (
	"sync"
	"time"

	"github.com/soundcore/audiopolicyd/internal/audio"
)

// VolumeCall records one volume delivery to the HAL.
type VolumeCall struct {
	Stream audio.StreamType
	Ports  []audio.PortID
	Gain   float64
	Muted  bool
	Output audio.IOHandle
}

// SimClient is an in-memory Client used in simulate mode and tests. It
// records every call and can be scripted to fail.
type SimClient struct {
	mu sync.Mutex

	nextHandle  int32
	nextPatchID int32

	openOutputs map[audio.IOHandle]audio.Device
	openInputs  map[audio.IOHandle]audio.Device
	patches     map[audio.PatchID]PatchRequest

	deviceProfiles map[audio.Device][]DeviceProfile
	connected      map[audio.Device]bool

	// Scripted failures, consumed in order per operation name.
	failures map[string][]error

	OpenOutputCount   int
	CloseOutputCount  int
	OpenInputCount    int
	CloseInputCount   int
	CreatePatchCount  int
	ReleasePatchCount int
	VoiceVolume       float64
	VolumeCalls       []VolumeCall
	RoutingUpdates    int
	PortListUpdates   int
	PatchListUpdates  int
	MixStateUpdates   map[string]int
	RecordingUpdates  int
}

// NewSimClient creates an empty simulated client.
func NewSimClient() *SimClient {
	return &SimClient{
		openOutputs:     make(map[audio.IOHandle]audio.Device),
		openInputs:      make(map[audio.IOHandle]audio.Device),
		patches:         make(map[audio.PatchID]PatchRequest),
		deviceProfiles:  make(map[audio.Device][]DeviceProfile),
		connected:       make(map[audio.Device]bool),
		failures:        make(map[string][]error),
		MixStateUpdates: make(map[string]int),
	}
}

// SetDeviceProfiles scripts the dynamic profile answer for a device.
func (c *SimClient) SetDeviceProfiles(d audio.Device, profiles []DeviceProfile) {
	c.mu.Lock()
	c.deviceProfiles[d] = profiles
	c.mu.Unlock()
}

// FailNext scripts errors consumed by the next calls to the named
// operation ("OpenOutput", "OpenInput", "CreateAudioPatch", ...).
func (c *SimClient) FailNext(op string, errs ...error) {
	c.mu.Lock()
	c.failures[op] = append(c.failures[op], errs...)
	c.mu.Unlock()
}

func (c *SimClient) takeFailure(op string) error {
	queue := c.failures[op]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	c.failures[op] = queue[1:]
	return err
}

// OpenOutputDevices snapshots the devices of currently open outputs.
func (c *SimClient) OpenOutputDevices() []audio.Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]audio.Device, 0, len(c.openOutputs))
	for _, d := range c.openOutputs {
		out = append(out, d)
	}
	return out
}

// OpenInputCountNow returns the number of inputs currently open.
func (c *SimClient) OpenInputCountNow() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.openInputs)
}

// IsConnected reports the last connected state broadcast for a device.
func (c *SimClient) IsConnected(d audio.Device) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected[d]
}

// LastVolumeCall returns the most recent volume delivery matching the
// filter, or nil.
func (c *SimClient) LastVolumeCall(match func(VolumeCall) bool) *VolumeCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.VolumeCalls) - 1; i >= 0; i-- {
		if match(c.VolumeCalls[i]) {
			call := c.VolumeCalls[i]
			return &call
		}
	}
	return nil
}

func (c *SimClient) OpenOutput(module string, device audio.Device, cfg audio.Config, flags audio.OutputFlags) (audio.IOHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeFailure("OpenOutput"); err != nil {
		return 0, err
	}
	c.nextHandle++
	h := audio.IOHandle(c.nextHandle)
	c.openOutputs[h] = device
	c.OpenOutputCount++
	return h, nil
}

func (c *SimClient) CloseOutput(handle audio.IOHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.openOutputs[handle]; !ok {
		return audio.Errorf(audio.CodeBadValue, "output %d not open", handle)
	}
	delete(c.openOutputs, handle)
	c.CloseOutputCount++
	return nil
}

func (c *SimClient) OpenInput(module string, device audio.Device, cfg audio.Config, flags audio.InputFlags, source audio.Source) (audio.IOHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeFailure("OpenInput"); err != nil {
		return 0, err
	}
	c.nextHandle++
	h := audio.IOHandle(c.nextHandle)
	c.openInputs[h] = device
	c.OpenInputCount++
	return h, nil
}

func (c *SimClient) CloseInput(handle audio.IOHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.openInputs[handle]; !ok {
		return audio.Errorf(audio.CodeBadValue, "input %d not open", handle)
	}
	delete(c.openInputs, handle)
	c.CloseInputCount++
	return nil
}

func (c *SimClient) CreateAudioPatch(req PatchRequest) (audio.PatchID, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeFailure("CreateAudioPatch"); err != nil {
		return 0, 0, err
	}
	c.nextPatchID++
	id := audio.PatchID(c.nextPatchID)
	c.patches[id] = req
	c.CreatePatchCount++
	return id, 10, nil
}

func (c *SimClient) ReleaseAudioPatch(id audio.PatchID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.patches[id]; !ok {
		return audio.Errorf(audio.CodeBadValue, "patch %d not active", id)
	}
	delete(c.patches, id)
	c.ReleasePatchCount++
	return nil
}

func (c *SimClient) SetStreamVolume(stream audio.StreamType, gain float64, muted bool, output audio.IOHandle, delay time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.VolumeCalls = append(c.VolumeCalls, VolumeCall{Stream: stream, Gain: gain, Muted: muted, Output: output})
	return nil
}

func (c *SimClient) SetPortsVolume(ports []audio.PortID, gain float64, muted bool, output audio.IOHandle, delay time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.VolumeCalls = append(c.VolumeCalls, VolumeCall{Ports: ports, Gain: gain, Muted: muted, Output: output})
	return nil
}

func (c *SimClient) SetVoiceVolume(gain float64, delay time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.VoiceVolume = gain
	return nil
}

func (c *SimClient) SetDeviceConnectedState(device audio.Device, connected bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeFailure("SetDeviceConnectedState"); err != nil {
		return err
	}
	c.connected[device] = connected
	return nil
}

func (c *SimClient) PrepareToDisconnect(device audio.Device) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeFailure("PrepareToDisconnect"); err != nil {
		return err
	}
	return nil
}

func (c *SimClient) ListDeviceProfiles(device audio.Device) ([]DeviceProfile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeFailure("ListDeviceProfiles"); err != nil {
		return nil, err
	}
	return c.deviceProfiles[device], nil
}

func (c *SimClient) SetParameters(io audio.IOHandle, keyValuePairs string) error {
	return nil
}

func (c *SimClient) OnAudioPortListUpdate() {
	c.mu.Lock()
	c.PortListUpdates++
	c.mu.Unlock()
}

func (c *SimClient) OnAudioPatchListUpdate() {
	c.mu.Lock()
	c.PatchListUpdates++
	c.mu.Unlock()
}

func (c *SimClient) OnRoutingUpdated() {
	c.mu.Lock()
	c.RoutingUpdates++
	c.mu.Unlock()
}

func (c *SimClient) OnDynamicPolicyMixStateUpdate(regID string, state int) {
	c.mu.Lock()
	c.MixStateUpdates[regID] = state
	c.mu.Unlock()
}

func (c *SimClient) OnRecordingConfigurationUpdate(riid int32, source audio.Source, device audio.Device, active bool) {
	c.mu.Lock()
	c.RecordingUpdates++
	c.mu.Unlock()
}
