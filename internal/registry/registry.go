package registry

import (
	"sync"
	"sync/atomic"

	"github.com/soundcore/audiopolicyd/internal/audio"
	"github.com/soundcore/audiopolicyd/internal/hw"
)

// Registry is the mutable runtime state. The manager serializes all
// policy mutations; the registry carries its own lock so read-only
// observers (the HTTP surface) can snapshot safely.
type Registry struct {
	mu sync.RWMutex

	nextPortID  int32
	nextPatchID int32
	nextHandle  int32

	outDevices []*DeviceDesc
	inDevices  []*DeviceDesc

	outputs     map[audio.IOHandle]*OutputDesc
	inputs      map[audio.IOHandle]*InputDesc
	portConfigs map[audio.PortID]*PortConfig
	patches     map[audio.PatchID]*Patch

	// client port id -> owning stream handle
	outputClients map[audio.PortID]audio.IOHandle
	inputClients  map[audio.PortID]audio.IOHandle

	portGeneration atomic.Uint64
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		outputs:       make(map[audio.IOHandle]*OutputDesc),
		inputs:        make(map[audio.IOHandle]*InputDesc),
		portConfigs:   make(map[audio.PortID]*PortConfig),
		patches:       make(map[audio.PatchID]*Patch),
		outputClients: make(map[audio.PortID]audio.IOHandle),
		inputClients:  make(map[audio.PortID]audio.IOHandle),
	}
}

// NextPortID allocates a process-unique port id; never zero.
func (r *Registry) NextPortID() audio.PortID {
	return audio.PortID(atomic.AddInt32(&r.nextPortID, 1))
}

// NextPatchID allocates a process-unique patch id; never zero.
func (r *Registry) NextPatchID() audio.PatchID {
	return audio.PatchID(atomic.AddInt32(&r.nextPatchID, 1))
}

// NextIOHandle allocates a process-unique stream handle; never zero.
func (r *Registry) NextIOHandle() audio.IOHandle {
	return audio.IOHandle(atomic.AddInt32(&r.nextHandle, 1))
}

// PortGeneration returns the monotonically-rising counter bumped when
// the port topology changes.
func (r *Registry) PortGeneration() uint64 {
	return r.portGeneration.Load()
}

// BumpPortGeneration signals a topology change to listeners.
func (r *Registry) BumpPortGeneration() uint64 {
	return r.portGeneration.Add(1)
}

// --- devices ---

// AddDevice materializes a device instance. Re-adding the same
// type+address is rejected.
func (r *Registry) AddDevice(d *DeviceDesc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := &r.outDevices
	if d.Device.Type.IsInput() {
		list = &r.inDevices
	}
	for _, existing := range *list {
		if existing.Device == d.Device {
			return audio.Errorf(audio.CodeInvalidOperation, "device %s already connected", d.Device)
		}
	}
	*list = append(*list, d)
	return nil
}

// RemoveDevice drops a device instance and returns its descriptor.
func (r *Registry) RemoveDevice(d audio.Device) (*DeviceDesc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := &r.outDevices
	if d.Type.IsInput() {
		list = &r.inDevices
	}
	for i, existing := range *list {
		if existing.Device == d {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return existing, nil
		}
	}
	return nil, audio.Errorf(audio.CodeInvalidOperation, "device %s not connected", d)
}

// FindDevice returns the descriptor for a connected device.
func (r *Registry) FindDevice(d audio.Device) *DeviceDesc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findDeviceLocked(d)
}

func (r *Registry) findDeviceLocked(d audio.Device) *DeviceDesc {
	list := r.outDevices
	if d.Type.IsInput() {
		list = r.inDevices
	}
	for _, existing := range list {
		if existing.Device == d {
			return existing
		}
	}
	return nil
}

// FindDeviceByID returns the descriptor with the given port id.
func (r *Registry) FindDeviceByID(id audio.PortID) *DeviceDesc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.outDevices {
		if d.ID == id {
			return d
		}
	}
	for _, d := range r.inDevices {
		if d.ID == id {
			return d
		}
	}
	return nil
}

// AvailableOutputDevices returns the connected output endpoints.
func (r *Registry) AvailableOutputDevices() []audio.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]audio.Device, len(r.outDevices))
	for i, d := range r.outDevices {
		out[i] = d.Device
	}
	return out
}

// AvailableInputDevices returns the connected input endpoints.
func (r *Registry) AvailableInputDevices() []audio.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]audio.Device, len(r.inDevices))
	for i, d := range r.inDevices {
		out[i] = d.Device
	}
	return out
}

// DeviceDescs snapshots all connected device descriptors.
func (r *Registry) DeviceDescs() []*DeviceDesc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*DeviceDesc, 0, len(r.outDevices)+len(r.inDevices))
	out = append(out, r.outDevices...)
	out = append(out, r.inDevices...)
	return out
}

// --- outputs ---

// AddOutput installs an opened output. The mix port's max-open bound is
// enforced here.
func (r *Registry) AddOutput(o *OutputDesc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	maxOpen := o.MixPort.MaxOpenCount
	if maxOpen == 0 {
		maxOpen = 1
	}
	open := 0
	for _, existing := range r.outputs {
		if existing.MixPort == o.MixPort {
			open++
		}
	}
	if open >= maxOpen {
		return audio.Errorf(audio.CodeInvalidOperation,
			"mix port %q already has %d open outputs", o.MixPort.Name, open)
	}
	r.outputs[o.Handle] = o
	return nil
}

// RemoveOutput drops an output and its client index entries.
func (r *Registry) RemoveOutput(handle audio.IOHandle) *OutputDesc {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.outputs[handle]
	if o == nil {
		return nil
	}
	for portID := range o.Clients {
		delete(r.outputClients, portID)
	}
	delete(r.outputs, handle)
	return o
}

// Output returns the descriptor for a handle.
func (r *Registry) Output(handle audio.IOHandle) *OutputDesc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.outputs[handle]
}

// Outputs snapshots all opened outputs.
func (r *Registry) Outputs() []*OutputDesc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*OutputDesc, 0, len(r.outputs))
	for _, o := range r.outputs {
		out = append(out, o)
	}
	return out
}

// AddOutputClient records a client on its output.
func (r *Registry) AddOutputClient(c *OutputClient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.outputs[c.Output]
	if o == nil {
		return audio.Errorf(audio.CodeNameNotFound, "output %d not open", c.Output)
	}
	o.Clients[c.PortID] = c
	r.outputClients[c.PortID] = c.Output
	return nil
}

// OutputClientByPort resolves a client record and its output.
func (r *Registry) OutputClientByPort(portID audio.PortID) (*OutputDesc, *OutputClient) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handle, ok := r.outputClients[portID]
	if !ok {
		return nil, nil
	}
	o := r.outputs[handle]
	if o == nil {
		return nil, nil
	}
	return o, o.Clients[portID]
}

// RemoveOutputClient drops a client record.
func (r *Registry) RemoveOutputClient(portID audio.PortID) (*OutputDesc, *OutputClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	handle, ok := r.outputClients[portID]
	if !ok {
		return nil, nil
	}
	delete(r.outputClients, portID)
	o := r.outputs[handle]
	if o == nil {
		return nil, nil
	}
	c := o.Clients[portID]
	delete(o.Clients, portID)
	return o, c
}

// --- inputs ---

// AddInput installs an opened input.
func (r *Registry) AddInput(i *InputDesc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs[i.Handle] = i
	return nil
}

// RemoveInput drops an input and its client index entries.
func (r *Registry) RemoveInput(handle audio.IOHandle) *InputDesc {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.inputs[handle]
	if i == nil {
		return nil
	}
	for portID := range i.Clients {
		delete(r.inputClients, portID)
	}
	delete(r.inputs, handle)
	return i
}

// Input returns the descriptor for a handle.
func (r *Registry) Input(handle audio.IOHandle) *InputDesc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.inputs[handle]
}

// Inputs snapshots all opened inputs.
func (r *Registry) Inputs() []*InputDesc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*InputDesc, 0, len(r.inputs))
	for _, i := range r.inputs {
		out = append(out, i)
	}
	return out
}

// InputForDevice returns the opened input routed to the device, if any.
func (r *Registry) InputForDevice(d audio.Device) *InputDesc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, i := range r.inputs {
		if i.Device == d {
			return i
		}
	}
	return nil
}

// AddInputClient records a client on its input.
func (r *Registry) AddInputClient(c *InputClient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.inputs[c.Input]
	if i == nil {
		return audio.Errorf(audio.CodeNameNotFound, "input %d not open", c.Input)
	}
	i.Clients[c.PortID] = c
	r.inputClients[c.PortID] = c.Input
	return nil
}

// InputClientByPort resolves a client record and its input.
func (r *Registry) InputClientByPort(portID audio.PortID) (*InputDesc, *InputClient) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handle, ok := r.inputClients[portID]
	if !ok {
		return nil, nil
	}
	i := r.inputs[handle]
	if i == nil {
		return nil, nil
	}
	return i, i.Clients[portID]
}

// RemoveInputClient drops a client record.
func (r *Registry) RemoveInputClient(portID audio.PortID) (*InputDesc, *InputClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	handle, ok := r.inputClients[portID]
	if !ok {
		return nil, nil
	}
	delete(r.inputClients, portID)
	i := r.inputs[handle]
	if i == nil {
		return nil, nil
	}
	c := i.Clients[portID]
	delete(i.Clients, portID)
	return i, c
}

// --- port configs ---

// NewDevicePortConfig creates (or references) a port config for a
// device endpoint.
func (r *Registry) NewDevicePortConfig(d audio.Device, cfg audio.Config) *PortConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, pc := range r.portConfigs {
		if pc.IsDevice() && pc.Device == d && pc.Config == cfg {
			pc.Refs++
			return pc
		}
	}
	pc := &PortConfig{
		ID:     audio.PortID(atomic.AddInt32(&r.nextPortID, 1)),
		Device: d,
		Config: cfg,
		Refs:   1,
	}
	r.portConfigs[pc.ID] = pc
	return pc
}

// NewMixPortConfig creates a port config for a mix port instantiation.
func (r *Registry) NewMixPortConfig(mp *hw.MixPort, cfg audio.Config) *PortConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	pc := &PortConfig{
		ID:      audio.PortID(atomic.AddInt32(&r.nextPortID, 1)),
		MixPort: mp,
		Config:  cfg,
		Refs:    1,
	}
	r.portConfigs[pc.ID] = pc
	return pc
}

// ReleasePortConfig drops one reference; the config is destroyed at
// zero references.
func (r *Registry) ReleasePortConfig(id audio.PortID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pc := r.portConfigs[id]
	if pc == nil {
		return
	}
	pc.Refs--
	if pc.Refs <= 0 {
		delete(r.portConfigs, id)
	}
}

// PortConfig returns the config with the given id.
func (r *Registry) PortConfig(id audio.PortID) *PortConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.portConfigs[id]
}

// PortConfigs snapshots all active port configs.
func (r *Registry) PortConfigs() []*PortConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*PortConfig, 0, len(r.portConfigs))
	for _, pc := range r.portConfigs {
		out = append(out, pc)
	}
	return out
}

// --- patches ---

// AddPatch installs a patch after verifying every referenced port
// config exists.
func (r *Registry) AddPatch(p *Patch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range append(append([]audio.PortID{}, p.Sources...), p.Sinks...) {
		if r.portConfigs[id] == nil {
			return audio.Errorf(audio.CodeBadValue, "patch references unknown port config %d", id)
		}
	}
	r.patches[p.ID] = p
	return nil
}

// RemovePatch drops a patch and returns it.
func (r *Registry) RemovePatch(id audio.PatchID) *Patch {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.patches[id]
	delete(r.patches, id)
	return p
}

// Patch returns the patch with the given id.
func (r *Registry) Patch(id audio.PatchID) *Patch {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.patches[id]
}

// Patches snapshots all active patches.
func (r *Registry) Patches() []*Patch {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Patch, 0, len(r.patches))
	for _, p := range r.patches {
		out = append(out, p)
	}
	return out
}

// PatchesReferencing returns patches whose source or sink configs point
// at the device.
func (r *Registry) PatchesReferencing(d audio.Device) []*Patch {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Patch
	for _, p := range r.patches {
		for _, id := range append(append([]audio.PortID{}, p.Sources...), p.Sinks...) {
			pc := r.portConfigs[id]
			if pc != nil && pc.IsDevice() && pc.Device == d {
				out = append(out, p)
				break
			}
		}
	}
	return out
}
