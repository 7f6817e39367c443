package manager

import (
	"math/bits"

	"github.com/soundcore/audiopolicyd/internal/audio"
	"github.com/soundcore/audiopolicyd/internal/events"
	"github.com/soundcore/audiopolicyd/internal/hw"
	"github.com/soundcore/audiopolicyd/internal/mixtable"
	"github.com/soundcore/audiopolicyd/internal/registry"
)

// OutputType classifies the opened output for the caller.
type OutputType int

const (
	OutputTypeRegular OutputType = iota
	OutputTypeTelephonyRX
	OutputTypeRemoteSubmix
	OutputTypeBitPerfect
)

func (t OutputType) String() string {
	switch t {
	case OutputTypeTelephonyRX:
		return "TELEPHONY_RX"
	case OutputTypeRemoteSubmix:
		return "REMOTE_SUBMIX"
	case OutputTypeBitPerfect:
		return "BIT_PERFECT"
	}
	return "REGULAR"
}

// OutputRequest carries one playback selection request.
type OutputRequest struct {
	Attributes      audio.Attributes
	Session         audio.Session
	UID             audio.UID
	UserID          audio.UserID
	Config          audio.Config
	Flags           audio.OutputFlags
	SelectedDevices []audio.PortID
}

// OutputResult is the selection outcome. A zero Output with a non-zero
// PortID means the request was not rejected but the caller should retry
// with the suggested Config.
type OutputResult struct {
	Output          audio.IOHandle
	PortID          audio.PortID
	Config          audio.Config
	SelectedDevices []audio.PortID
	Type            OutputType
	IsSpatialized   bool
	IsBitPerfect    bool
	Volume          float64
	Muted           bool
}

// GetOutputForAttr selects (and opens if needed) the output stream for
// a playback request, wiring the patch to the chosen devices.
func (m *Manager) GetOutputForAttr(req OutputRequest) (*OutputResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.syncMetricsLocked()
	if err := m.checkInitLocked(); err != nil {
		return nil, err
	}

	cl := &cleanup{}
	defer cl.run()

	outputType := OutputTypeRegular
	flags := req.Flags
	cfg := req.Config

	// Dynamic mix matching, first registered match wins.
	mix := m.mixes.MatchOutput(mixtable.Request{
		Attributes: req.Attributes,
		UID:        req.UID,
		UserID:     req.UserID,
		Session:    req.Session,
	})
	mixOrder := -1
	var devices []audio.Device
	if mix != nil {
		devices = mixTargetDevices(mix)
		mixOrder = mix.Order()
		if mix.RouteFlags&mixtable.RouteFlagLoopBack != 0 {
			outputType = OutputTypeRemoteSubmix
			if flags.Has(audio.OutputFlagMmapNoirq) && !m.mmapReachableLocked(devices[0]) {
				return nil, audio.Errorf(audio.CodeInvalidOperation,
					"mmap playback matched loopback mix without mmap-capable port")
			}
		}
		if !mix.Format.IsDefault() && cfg.IsDefault() {
			cfg = mix.Format
		}
	} else {
		devices = m.engine.OutputDevicesForAttributes(req.Attributes, m.availableOutputDevicesLocked())
		devices = m.applySelectedDevicesLocked(devices, req.SelectedDevices)
	}
	if len(devices) == 0 {
		devices = m.defaultOutputDevicesLocked()
	}
	if len(devices) == 0 {
		return nil, audio.Errorf(audio.CodeNameNotFound, "no routable output device")
	}
	primary := devices[0]
	if primary.Type == audio.DeviceOutTelephonyTX {
		outputType = OutputTypeTelephonyRX
	}

	// Preferred mixer attributes pin the device to fixed attributes.
	bitPerfect := false
	if mix == nil {
		if pm := m.preferredMixerForLocked(primary, req.UID, flags); pm != nil {
			if pm.Behavior == audio.MixerBehaviorBitPerfect && configCompatible(pm.Config, cfg) {
				if m.bitPerfectBlockedLocked() {
					return nil, audio.Errorf(audio.CodeInvalidOperation,
						"bit-perfect playback preempted by a higher-priority use case")
				}
				cfg = pm.Config
				flags |= audio.OutputFlagDirect | audio.OutputFlagBitPerfect
				bitPerfect = true
				outputType = OutputTypeBitPerfect
			}
		}
	}
	if flags.Has(audio.OutputFlagBitPerfect) && !bitPerfect {
		if m.bitPerfectBlockedLocked() {
			return nil, audio.Errorf(audio.CodeInvalidOperation,
				"bit-perfect playback preempted by a higher-priority use case")
		}
		bitPerfect = true
		outputType = OutputTypeBitPerfect
	}

	desc := m.deviceDescFor(primary)
	if desc == nil {
		return nil, audio.Errorf(audio.CodeNameNotFound, "device %s not available", primary)
	}
	module := desc.Port.Module()

	optional := audio.OutputFlagBitPerfect
	if primary.Type == audio.DeviceOutRemoteSubmix {
		optional |= audio.OutputFlagIEC958Nonaudio
	}
	mp := bestOutputMixPort(module.ReachableMixPorts(desc.Port), flags, cfg, optional)
	if mp == nil {
		return nil, audio.Errorf(audio.CodeNoInit,
			"no mix port reaches %s with flags %#x", primary, int(flags))
	}

	// Config negotiation: direct PCM requests get the suggestion back
	// with a valid port id and no open; offload and mixed paths retry
	// with the suggestion automatically.
	if !cfg.IsDefault() && !mp.SupportsConfig(cfg) {
		suggested, ok := mp.SuggestConfig(cfg)
		if !ok {
			return nil, audio.Errorf(audio.CodeNoInit, "port %q has no usable profile", mp.Name)
		}
		if flags.Has(audio.OutputFlagDirect) && !flags.Has(audio.OutputFlagCompressOffload) && !bitPerfect {
			return &OutputResult{
				PortID: m.reg.NextPortID(),
				Config: suggested,
				Type:   outputType,
			}, nil
		}
		cfg = suggested
	}
	if cfg.IsDefault() {
		if suggested, ok := mp.SuggestConfig(cfg); ok {
			cfg = suggested
		}
	}

	out, err := m.outputForPortLocked(mp, devices, flags, cfg, mixOrder, bitPerfect, cl)
	if err != nil {
		return nil, err
	}

	stream := streamTypeForAttributes(req.Attributes)
	client := &registry.OutputClient{
		PortID:     m.reg.NextPortID(),
		UID:        req.UID,
		Session:    req.Session,
		Attributes: req.Attributes,
		Config:     cfg,
		Flags:      flags,
		Stream:     stream,
		Strategy:   m.engine.StrategyForAttributes(req.Attributes),
		Output:     out.Handle,
	}
	if err := m.reg.AddOutputClient(client); err != nil {
		return nil, err
	}
	cl.arm(func() { m.reg.RemoveOutputClient(client.PortID) })

	group := m.groupForStream(stream)
	gain := m.vol.GainAmplitude(group, primary.Type, m.vol.Index(group, primary.Type))
	muted := m.vol.Muted(group, primary.Type) || m.masterMute

	selected := make([]audio.PortID, 0, len(devices))
	for _, d := range devices {
		if dd := m.deviceDescFor(d); dd != nil {
			selected = append(selected, dd.ID)
		}
	}

	cl.disarm()
	m.log.Debug("output selected",
		"port_id", int32(client.PortID),
		"output", int32(out.Handle),
		"device", primary.Type.String(),
		"type", outputType.String())
	return &OutputResult{
		Output:          out.Handle,
		PortID:          client.PortID,
		Config:          cfg,
		SelectedDevices: selected,
		Type:            outputType,
		IsBitPerfect:    bitPerfect,
		Volume:          gain,
		Muted:           muted,
	}, nil
}

// outputForPortLocked reuses an opened output keyed by (mix port,
// device set, flags, config) or opens a new one. A port at its open
// limit gets one of its outputs re-routed rather than a rejection.
func (m *Manager) outputForPortLocked(mp *hw.MixPort, devices []audio.Device,
	flags audio.OutputFlags, cfg audio.Config, mixOrder int, bitPerfect bool, cl *cleanup) (*registry.OutputDesc, error) {

	open := 0
	var samePortAndDevices *registry.OutputDesc
	for _, o := range m.reg.Outputs() {
		if o.MixPort != mp {
			continue
		}
		open++
		if !sameDevices(o.Devices, devices) || o.MixOrder != mixOrder {
			continue
		}
		samePortAndDevices = o
		if o.Flags == flags && o.Config == cfg && o.BitPerfect == bitPerfect {
			return o, nil
		}
	}
	if mp.MaxOpenCount > 0 && open >= mp.MaxOpenCount {
		if samePortAndDevices != nil {
			return samePortAndDevices, nil
		}
		// The port is exhausted: re-route one of its outputs to the
		// requested devices instead of rejecting the client.
		for _, o := range m.reg.Outputs() {
			if o.MixPort != mp {
				continue
			}
			o.Devices = append([]audio.Device(nil), devices...)
			o.MixOrder = mixOrder
			if err := m.installOutputPatchLocked(o, cl); err != nil {
				return nil, err
			}
			return o, nil
		}
	}

	handle, err := m.openOutputRetry(mp.Module().Name, devices[0], cfg, flags)
	if err != nil {
		return nil, audio.NewError(audio.CodeInvalidOperation, "output open failed", err)
	}
	cl.arm(func() { _ = m.client.CloseOutput(handle) })

	out := &registry.OutputDesc{
		Handle:     handle,
		Module:     mp.Module(),
		MixPort:    mp,
		Config:     cfg,
		Flags:      flags,
		Devices:    append([]audio.Device(nil), devices...),
		Clients:    make(map[audio.PortID]*registry.OutputClient),
		BitPerfect: bitPerfect,
		MixOrder:   mixOrder,
	}
	if err := m.reg.AddOutput(out); err != nil {
		return nil, err
	}
	cl.arm(func() { m.reg.RemoveOutput(handle) })

	if err := m.installOutputPatchLocked(out, cl); err != nil {
		return nil, err
	}
	m.loopers[handle] = newLooper()
	cl.arm(func() {
		if l, ok := m.loopers[handle]; ok {
			delete(m.loopers, handle)
			l.stop()
		}
	})
	return out, nil
}

// StartOutput marks a playback client active and applies the preemption
// and internal-mute rules against bit-perfect playback.
func (m *Manager) StartOutput(portID audio.PortID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.syncMetricsLocked()
	if err := m.checkInitLocked(); err != nil {
		return err
	}
	out, client := m.reg.OutputClientByPort(portID)
	if client == nil {
		return audio.Errorf(audio.CodeNameNotFound, "unknown output port %d", portID)
	}
	if client.Active {
		return audio.Errorf(audio.CodeInvalidOperation, "port %d already started", portID)
	}

	usage := client.Attributes.Usage
	if usage == audio.UsageAlarm || usage == audio.UsageNotificationTelephonyRingtone {
		if m.opts.ConcurrentBitPerfect {
			m.setBitPerfectMuteLocked(true)
		} else {
			m.closeBitPerfectOutputsLocked()
			// The output may have gone away with the preempted set.
			out, client = m.reg.OutputClientByPort(portID)
			if client == nil {
				return audio.Errorf(audio.CodeInvalidOperation, "output closed during preemption")
			}
		}
	} else if out.BitPerfect && !client.Flags.Has(audio.OutputFlagBitPerfect) {
		if usage == audio.UsageNotification {
			// The notification plays audibly; the bit-perfect track is
			// internally muted for its duration.
			for _, c := range out.Clients {
				if c.Flags.Has(audio.OutputFlagBitPerfect) {
					c.InternalMute = true
				}
			}
		} else {
			client.InternalMute = true
		}
	}

	client.Active = true
	if out.MixOrder >= 0 && out.ActiveCount() == 1 {
		if mix := m.mixes.ByOrder(out.MixOrder); mix != nil {
			m.notifyMixStateLocked(mix.Device.Address, events.MixStateMixing)
		}
	}
	m.applyOutputVolumeLocked(out, 0)
	if client.Stream == audio.StreamVoiceCall {
		m.applyVoiceVolumeLocked(out)
	}
	m.publish(events.RoutingChangedEvent{Timestamp: nowStamp()})
	return nil
}

// StopOutput marks a playback client inactive and lifts any internal
// mutes its activity imposed.
func (m *Manager) StopOutput(portID audio.PortID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.syncMetricsLocked()
	if err := m.checkInitLocked(); err != nil {
		return err
	}
	out, client := m.reg.OutputClientByPort(portID)
	if client == nil {
		return audio.Errorf(audio.CodeNameNotFound, "unknown output port %d", portID)
	}
	if !client.Active {
		return audio.Errorf(audio.CodeInvalidOperation, "port %d not started", portID)
	}
	client.Active = false
	client.InternalMute = false
	if out.MixOrder >= 0 && out.ActiveCount() == 0 {
		if mix := m.mixes.ByOrder(out.MixOrder); mix != nil {
			m.notifyMixStateLocked(mix.Device.Address, events.MixStateIdle)
		}
	}

	usage := client.Attributes.Usage
	if m.opts.ConcurrentBitPerfect &&
		(usage == audio.UsageAlarm || usage == audio.UsageNotificationTelephonyRingtone) &&
		!m.alarmClientActiveLocked() {
		m.setBitPerfectMuteLocked(false)
	}

	if out.BitPerfect && client.Attributes.Usage == audio.UsageNotification {
		stillMuting := false
		for _, c := range out.Clients {
			if c.Active && c.Attributes.Usage == audio.UsageNotification {
				stillMuting = true
				break
			}
		}
		if !stillMuting {
			for _, c := range out.Clients {
				if c.Flags.Has(audio.OutputFlagBitPerfect) {
					c.InternalMute = false
				}
			}
		}
	}
	m.applyOutputVolumeLocked(out, 0)
	return nil
}

// ReleaseOutput drops the client record; the output and its patch are
// torn down with the last client.
func (m *Manager) ReleaseOutput(portID audio.PortID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.syncMetricsLocked()
	if err := m.checkInitLocked(); err != nil {
		return err
	}
	out, client := m.reg.RemoveOutputClient(portID)
	if client == nil {
		return audio.Errorf(audio.CodeInvalidOperation, "unknown output port %d", portID)
	}
	if out != nil && len(out.Clients) == 0 {
		m.closeOutputLocked(out)
	}
	return nil
}

// closeOutputLocked tears down an opened output: patch, HAL stream,
// registry entry, and its looper.
func (m *Manager) closeOutputLocked(out *registry.OutputDesc) {
	if out.PatchID != 0 {
		m.releasePatchLocked(out.PatchID)
		out.PatchID = 0
	}
	if err := m.client.CloseOutput(out.Handle); err != nil {
		m.log.Warn("output close failed", "output", int32(out.Handle), "error", err)
	}
	m.reg.RemoveOutput(out.Handle)
	if l, ok := m.loopers[out.Handle]; ok {
		delete(m.loopers, out.Handle)
		go l.stop()
	}
}

// closeBitPerfectOutputsLocked preempts bit-perfect playback when a
// higher-priority use case starts. The tracks get an error callback via
// the output's looper.
func (m *Manager) closeBitPerfectOutputsLocked() {
	for _, out := range m.reg.Outputs() {
		if !out.BitPerfect {
			continue
		}
		handle := out.Handle
		if l, ok := m.loopers[handle]; ok {
			l.post(func() {
				m.publish(events.RoutingChangedEvent{Timestamp: nowStamp()})
				m.client.OnRoutingUpdated()
			})
		}
		for id := range out.Clients {
			m.reg.RemoveOutputClient(id)
		}
		m.closeOutputLocked(out)
		m.log.Info("bit-perfect output preempted", "output", int32(handle))
	}
}

// bitPerfectBlockedLocked reports whether a higher-priority use case
// currently forbids bit-perfect playback. In concurrent mode, alarms
// and ringtones mute the bit-perfect tracks instead of blocking them.
func (m *Manager) bitPerfectBlockedLocked() bool {
	if m.engine.PhoneState() != audio.PhoneStateNormal {
		return true
	}
	if m.opts.ConcurrentBitPerfect {
		return false
	}
	return m.alarmClientActiveLocked()
}

// alarmClientActiveLocked reports whether an alarm or telephony
// ringtone client is currently started on any output.
func (m *Manager) alarmClientActiveLocked() bool {
	for _, out := range m.reg.Outputs() {
		for _, c := range out.Clients {
			if !c.Active {
				continue
			}
			if c.Attributes.Usage == audio.UsageAlarm ||
				c.Attributes.Usage == audio.UsageNotificationTelephonyRingtone {
				return true
			}
		}
	}
	return false
}

// setBitPerfectMuteLocked internally mutes or unmutes every bit-perfect
// track, re-applying each output's volume.
func (m *Manager) setBitPerfectMuteLocked(muted bool) {
	for _, out := range m.reg.Outputs() {
		if !out.BitPerfect {
			continue
		}
		for _, c := range out.Clients {
			if c.Flags.Has(audio.OutputFlagBitPerfect) {
				c.InternalMute = muted
			}
		}
		m.applyOutputVolumeLocked(out, 0)
	}
}

// mixTargetDevices resolves a matched mix to routing targets: loopback
// goes to the paired remote submix, render to the declared device, and
// loop-back-and-render to both behind one patch.
func mixTargetDevices(mix *mixtable.Mix) []audio.Device {
	submix := audio.Device{Type: audio.DeviceOutRemoteSubmix, Address: mix.Device.Address}
	switch {
	case mix.RouteFlags == mixtable.RouteFlagLoopBack:
		return []audio.Device{submix}
	case mix.RouteFlags == mixtable.RouteFlagLoopBackAndRender:
		return []audio.Device{submix, mix.Device}
	default:
		return []audio.Device{mix.Device}
	}
}

// mmapReachableLocked reports whether the device can be served by an
// mmap-capable mix port.
func (m *Manager) mmapReachableLocked(d audio.Device) bool {
	desc := m.deviceDescFor(d)
	if desc == nil {
		mod, dp := m.cfg.FindDevicePort(d.Type, d.Address)
		if dp == nil {
			return false
		}
		for _, mp := range mod.ReachableMixPorts(dp) {
			if mp.Role == hw.RoleSource && mp.OutputFlags.Has(audio.OutputFlagMmapNoirq) {
				return true
			}
		}
		return false
	}
	for _, mp := range desc.Port.Module().ReachableMixPorts(desc.Port) {
		if mp.Role == hw.RoleSource && mp.OutputFlags.Has(audio.OutputFlagMmapNoirq) {
			return true
		}
	}
	return false
}

// applySelectedDevicesLocked reorders the strategy's device list so
// caller-selected devices come first, when they are compatible.
func (m *Manager) applySelectedDevicesLocked(devices []audio.Device, selected []audio.PortID) []audio.Device {
	if len(selected) == 0 {
		return devices
	}
	var preferred, rest []audio.Device
	for _, d := range devices {
		desc := m.deviceDescFor(d)
		picked := false
		if desc != nil {
			for _, id := range selected {
				if desc.ID == id {
					picked = true
					break
				}
			}
		}
		if picked {
			preferred = append(preferred, d)
		} else {
			rest = append(rest, d)
		}
	}
	if len(preferred) == 0 {
		return devices
	}
	return append(preferred, rest...)
}

// defaultOutputDevicesLocked falls back to the configuration's default
// output device when the engine has no candidate.
func (m *Manager) defaultOutputDevicesLocked() []audio.Device {
	if m.cfg.DefaultOutputDevice == "" {
		return nil
	}
	_, dp := m.cfg.DevicePortByTag(m.cfg.DefaultOutputDevice)
	if dp == nil {
		return nil
	}
	if m.deviceDescFor(dp.Device()) == nil {
		return nil
	}
	return []audio.Device{dp.Device()}
}

// bestOutputMixPort ranks candidate source ports: exact flag match over
// superset match (ignoring the optional set), exact profile support
// over an approximation, fewest extra flags, configuration order as the
// final tie-break.
func bestOutputMixPort(candidates []*hw.MixPort, flags audio.OutputFlags, cfg audio.Config, optional audio.OutputFlags) *hw.MixPort {
	var best *hw.MixPort
	bestScore := -1
	required := flags &^ optional
	for _, mp := range candidates {
		if mp.Role != hw.RoleSource {
			continue
		}
		if !mp.OutputFlags.Has(required) {
			continue
		}
		score := 0
		switch {
		case mp.OutputFlags == flags:
			score += 400
		case mp.OutputFlags.Has(flags):
			score += 300
		default:
			score += 200
		}
		if cfg.IsDefault() || mp.SupportsConfig(cfg) {
			score += 50
		} else if _, ok := mp.SuggestConfig(cfg); !ok {
			continue
		}
		score -= bits.OnesCount(uint(mp.OutputFlags &^ flags))
		if score > bestScore {
			bestScore = score
			best = mp
		}
	}
	return best
}

func (m *Manager) preferredMixerForLocked(d audio.Device, uid audio.UID, flags audio.OutputFlags) *preferredMixer {
	desc := m.deviceDescFor(d)
	if desc == nil {
		return nil
	}
	pm := m.preferredMixers[prefMixerKey{device: desc.ID}]
	if pm == nil {
		return nil
	}
	if pm.UID == uid || flags.Has(audio.OutputFlagBitPerfect) {
		return pm
	}
	return nil
}

// configCompatible reports whether the request either matches the
// pinned config exactly or leaves the field unset.
func configCompatible(pinned, requested audio.Config) bool {
	if requested.IsDefault() {
		return true
	}
	if requested.Format != audio.FormatDefault && requested.Format != pinned.Format {
		return false
	}
	if requested.SampleRate != 0 && requested.SampleRate != pinned.SampleRate {
		return false
	}
	if requested.ChannelMask != audio.ChannelNone && requested.ChannelMask != pinned.ChannelMask {
		return false
	}
	return true
}

func sameDevices(a, b []audio.Device) bool {
	if len(a) != len(b) {
		return false
	}
	for _, d := range a {
		found := false
		for _, e := range b {
			if d == e {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
