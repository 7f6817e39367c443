package manager

import (
	"github.com/soundcore/audiopolicyd/internal/audio"
	"github.com/soundcore/audiopolicyd/internal/events"
	"github.com/soundcore/audiopolicyd/internal/hal"
	"github.com/soundcore/audiopolicyd/internal/metrics"
	"github.com/soundcore/audiopolicyd/internal/registry"
)

// installOutputPatchLocked wires an output's mix port to its device set
// with a single patch, updating (replacing) any previous patch on the
// output. Loop-back-and-render outputs carry both sinks in one patch.
func (m *Manager) installOutputPatchLocked(out *registry.OutputDesc, cl *cleanup) error {
	src := m.reg.NewMixPortConfig(out.MixPort, out.Config)
	cl.arm(func() { m.reg.ReleasePortConfig(src.ID) })

	sinkIDs := make([]audio.PortID, 0, len(out.Devices))
	halSinks := make([]hal.PatchEnd, 0, len(out.Devices))
	for _, d := range out.Devices {
		pc := m.reg.NewDevicePortConfig(d, out.Config)
		id := pc.ID
		cl.arm(func() { m.reg.ReleasePortConfig(id) })
		sinkIDs = append(sinkIDs, id)
		halSinks = append(halSinks, hal.PatchEnd{Device: d, Config: out.Config})
	}

	halID, latency, err := m.client.CreateAudioPatch(hal.PatchRequest{
		Sources: []hal.PatchEnd{{MixIO: out.Handle, Config: out.Config}},
		Sinks:   halSinks,
	})
	if err != nil {
		return audio.NewError(audio.CodeInvalidOperation, "patch creation failed", err)
	}
	cl.arm(func() { _ = m.client.ReleaseAudioPatch(halID) })

	previous := out.PatchID
	p := &registry.Patch{
		ID:        m.reg.NextPatchID(),
		HALID:     halID,
		Sources:   []audio.PortID{src.ID},
		Sinks:     sinkIDs,
		LatencyMs: latency,
	}
	if err := m.reg.AddPatch(p); err != nil {
		return err
	}
	cl.arm(func() {
		m.reg.RemovePatch(p.ID)
		out.PatchID = 0
	})
	out.PatchID = p.ID
	if previous != 0 {
		m.releasePatchLocked(previous)
	}
	m.client.OnAudioPatchListUpdate()
	m.publish(events.PatchListChangedEvent{Timestamp: nowStamp()})
	return nil
}

// installInputPatchLocked wires a device source to an input's mix port.
func (m *Manager) installInputPatchLocked(in *registry.InputDesc, cl *cleanup) error {
	src := m.reg.NewDevicePortConfig(in.Device, in.Config)
	cl.arm(func() { m.reg.ReleasePortConfig(src.ID) })
	sink := m.reg.NewMixPortConfig(in.MixPort, in.Config)
	cl.arm(func() { m.reg.ReleasePortConfig(sink.ID) })

	halID, latency, err := m.client.CreateAudioPatch(hal.PatchRequest{
		Sources: []hal.PatchEnd{{Device: in.Device, Config: in.Config}},
		Sinks:   []hal.PatchEnd{{MixIO: in.Handle, Config: in.Config}},
	})
	if err != nil {
		return audio.NewError(audio.CodeInvalidOperation, "patch creation failed", err)
	}
	cl.arm(func() { _ = m.client.ReleaseAudioPatch(halID) })

	previous := in.PatchID
	p := &registry.Patch{
		ID:        m.reg.NextPatchID(),
		HALID:     halID,
		Sources:   []audio.PortID{src.ID},
		Sinks:     []audio.PortID{sink.ID},
		LatencyMs: latency,
	}
	if err := m.reg.AddPatch(p); err != nil {
		return err
	}
	cl.arm(func() {
		m.reg.RemovePatch(p.ID)
		in.PatchID = 0
	})
	in.PatchID = p.ID
	if previous != 0 {
		m.releasePatchLocked(previous)
	}
	m.client.OnAudioPatchListUpdate()
	m.publish(events.PatchListChangedEvent{Timestamp: nowStamp()})
	return nil
}

// releasePatchLocked removes a patch, releases it at the HAL, and drops
// the port config references it held.
func (m *Manager) releasePatchLocked(id audio.PatchID) {
	p := m.reg.RemovePatch(id)
	if p == nil {
		return
	}
	if err := m.client.ReleaseAudioPatch(p.HALID); err != nil {
		m.log.Warn("patch release failed", "patch", int32(p.HALID), "error", err)
	}
	for _, pcID := range p.Sources {
		m.reg.ReleasePortConfig(pcID)
	}
	for _, pcID := range p.Sinks {
		m.reg.ReleasePortConfig(pcID)
	}
	m.client.OnAudioPatchListUpdate()
	m.publish(events.PatchListChangedEvent{Timestamp: nowStamp()})
}

// PatchEndpoint describes one end of an externally-requested patch:
// either a device endpoint or an opened stream.
type PatchEndpoint struct {
	Device *audio.Device
	MixIO  audio.IOHandle
	Config audio.Config
}

// CreateAudioPatch installs an explicit routing instruction, for
// example a device-to-device link requested by the platform.
func (m *Manager) CreateAudioPatch(sources, sinks []PatchEndpoint) (audio.PatchID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.syncMetricsLocked()
	if err := m.checkInitLocked(); err != nil {
		return 0, err
	}
	if len(sources) == 0 || len(sinks) == 0 {
		return 0, audio.Errorf(audio.CodeBadValue, "patch needs at least one source and one sink")
	}

	cl := &cleanup{}
	defer cl.run()

	build := func(ends []PatchEndpoint) ([]audio.PortID, []hal.PatchEnd, error) {
		ids := make([]audio.PortID, 0, len(ends))
		halEnds := make([]hal.PatchEnd, 0, len(ends))
		for _, e := range ends {
			if e.Device != nil {
				if m.deviceDescFor(*e.Device) == nil {
					return nil, nil, audio.Errorf(audio.CodeBadValue,
						"patch endpoint %s not available", *e.Device)
				}
				pc := m.reg.NewDevicePortConfig(*e.Device, e.Config)
				id := pc.ID
				cl.arm(func() { m.reg.ReleasePortConfig(id) })
				ids = append(ids, id)
				halEnds = append(halEnds, hal.PatchEnd{Device: *e.Device, Config: e.Config})
				continue
			}
			out := m.reg.Output(e.MixIO)
			if out == nil {
				return nil, nil, audio.Errorf(audio.CodeBadValue, "unknown stream %d", e.MixIO)
			}
			pc := m.reg.NewMixPortConfig(out.MixPort, e.Config)
			id := pc.ID
			cl.arm(func() { m.reg.ReleasePortConfig(id) })
			ids = append(ids, id)
			halEnds = append(halEnds, hal.PatchEnd{MixIO: e.MixIO, Config: e.Config})
		}
		return ids, halEnds, nil
	}

	srcIDs, halSrcs, err := build(sources)
	if err != nil {
		return 0, err
	}
	sinkIDs, halSinks, err := build(sinks)
	if err != nil {
		return 0, err
	}

	halID, latency, err := m.client.CreateAudioPatch(hal.PatchRequest{Sources: halSrcs, Sinks: halSinks})
	if err != nil {
		return 0, audio.NewError(audio.CodeInvalidOperation, "patch creation failed", err)
	}
	cl.arm(func() { _ = m.client.ReleaseAudioPatch(halID) })

	p := &registry.Patch{
		ID:        m.reg.NextPatchID(),
		HALID:     halID,
		Sources:   srcIDs,
		Sinks:     sinkIDs,
		LatencyMs: latency,
	}
	if err := m.reg.AddPatch(p); err != nil {
		return 0, err
	}
	cl.disarm()
	m.client.OnAudioPatchListUpdate()
	m.publish(events.PatchListChangedEvent{Timestamp: nowStamp()})
	return p.ID, nil
}

// ReleaseAudioPatch releases an externally-created patch.
func (m *Manager) ReleaseAudioPatch(id audio.PatchID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.syncMetricsLocked()
	if err := m.checkInitLocked(); err != nil {
		return err
	}
	if m.reg.Patch(id) == nil {
		return audio.Errorf(audio.CodeInvalidOperation, "patch %d not active", id)
	}
	m.releasePatchLocked(id)
	return nil
}

// refreshRoutingLocked re-evaluates the routing of every opened stream
// after a policy knob changed (phone state, force use, device role).
// Mix-owned outputs keep their mix targets.
func (m *Manager) refreshRoutingLocked() {
	changed := false
	available := m.availableOutputDevicesLocked()
	for _, out := range m.reg.Outputs() {
		if out.MixOrder >= 0 || len(out.Clients) == 0 {
			continue
		}
		var attr audio.Attributes
		for _, c := range out.Clients {
			attr = c.Attributes
			break
		}
		devices := m.engine.OutputDevicesForAttributes(attr, available)
		if len(devices) == 0 || sameDevices(out.Devices, devices[:1]) {
			continue
		}
		out.Devices = []audio.Device{devices[0]}
		cl := &cleanup{}
		if err := m.installOutputPatchLocked(out, cl); err != nil {
			cl.run()
			m.log.Warn("rerouting failed", "output", int32(out.Handle), "error", err)
			continue
		}
		cl.disarm()
		m.applyOutputVolumeLocked(out, 0)
		changed = true
	}
	if changed {
		metrics.IncRoutingChanges()
		m.client.OnRoutingUpdated()
		m.publish(events.RoutingChangedEvent{Timestamp: nowStamp()})
	}
}
