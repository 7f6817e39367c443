// Package manager implements the policy decision core: stream selection,
// patch management, device lifecycle, and volume delivery. Every public
// entry point serializes on a single mutex; the HAL collaborator is
// called while the lock is held under the assumption that it completes
// promptly.
package manager

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/soundcore/audiopolicyd/internal/audio"
	"github.com/soundcore/audiopolicyd/internal/engine"
	"github.com/soundcore/audiopolicyd/internal/events"
	"github.com/soundcore/audiopolicyd/internal/hal"
	"github.com/soundcore/audiopolicyd/internal/hw"
	"github.com/soundcore/audiopolicyd/internal/logging"
	"github.com/soundcore/audiopolicyd/internal/metrics"
	"github.com/soundcore/audiopolicyd/internal/mixtable"
	"github.com/soundcore/audiopolicyd/internal/registry"
	"github.com/soundcore/audiopolicyd/internal/volume"
)

// Options are the manager feature toggles. They are fixed at
// initialization and never hot-reloaded.
type Options struct {
	// FixedInputSharing enables the repaired capture sharing rules:
	// inputs on the same device are shared across sessions and
	// preempted by higher-priority sources.
	FixedInputSharing bool
	// ConcurrentBitPerfect keeps a bit-perfect output open while
	// lower-priority clients play on it, using internal mute.
	ConcurrentBitPerfect bool
	// PortVolumes delivers volume to the HAL per client port instead of
	// per legacy stream type.
	PortVolumes bool
	// SimulateDeviceConnections suppresses the HAL connection broadcast
	// so device hot-plug can be driven from tests and tooling.
	SimulateDeviceConnections bool
}

type prefMixerKey struct {
	device audio.PortID
}

// preferredMixer is a uid-owned pin of a device port to fixed mixer
// attributes.
type preferredMixer struct {
	UID      audio.UID
	Config   audio.Config
	Behavior audio.MixerBehavior
}

type effectDesc struct {
	ID       int
	IO       audio.IOHandle
	Session  audio.Session
	Strategy audio.StrategyID
}

// Manager is the audio policy decision core.
type Manager struct {
	mu sync.Mutex

	client hal.Client
	cfg    *hw.Config
	engine *engine.Engine
	mixes  *mixtable.Table
	reg    *registry.Registry
	vol    *volume.Table
	bus    *events.Bus
	opts   Options
	log    *slog.Logger

	initialized bool
	masterMute  bool
	micMute     bool

	// simulateConnections mirrors Options.SimulateDeviceConnections but
	// can be toggled by the test surface.
	simulateConnections bool

	preferredMixers map[prefMixerKey]*preferredMixer

	// affinity mixes registered on behalf of uid/userid affinity calls,
	// so they can be released when the affinity is removed.
	uidAffinityMixes    map[audio.UID][]mixtable.Mix
	userIDAffinityMixes map[audio.UserID][]mixtable.Mix

	effects map[int]*effectDesc

	loopers map[audio.IOHandle]*looper
}

// New builds a manager over a loaded hardware configuration and engine
// configuration, materializing attached devices into the registry.
func New(client hal.Client, cfg *hw.Config, engCfg *hw.EngineConfig, bus *events.Bus, opts Options) (*Manager, error) {
	if client == nil {
		return nil, audio.Errorf(audio.CodeNoInit, "no policy client")
	}
	if cfg == nil || engCfg == nil {
		return nil, audio.Errorf(audio.CodeNoInit, "configuration not loaded")
	}
	eng, err := engine.New(engCfg)
	if err != nil {
		return nil, audio.NewError(audio.CodeNoInit, "engine configuration rejected", err)
	}
	m := &Manager{
		client:              client,
		cfg:                 cfg,
		engine:              eng,
		reg:                 registry.New(),
		vol:                 volume.New(engCfg.VolumeGroups),
		bus:                 bus,
		opts:                opts,
		log:                 logging.GetLogger("manager"),
		simulateConnections: opts.SimulateDeviceConnections,
		preferredMixers:     make(map[prefMixerKey]*preferredMixer),
		uidAffinityMixes:    make(map[audio.UID][]mixtable.Mix),
		userIDAffinityMixes: make(map[audio.UserID][]mixtable.Mix),
		effects:             make(map[int]*effectDesc),
		loopers:             make(map[audio.IOHandle]*looper),
	}
	m.mixes = mixtable.New(m.mixReachable)

	for _, tag := range cfg.AttachedDevices {
		_, dp := cfg.DevicePortByTag(tag)
		if dp == nil {
			continue
		}
		desc := &registry.DeviceDesc{
			ID:       m.reg.NextPortID(),
			Device:   dp.Device(),
			Name:     dp.TagName,
			Port:     dp,
			Profiles: dp.Profiles,
		}
		if err := m.reg.AddDevice(desc); err != nil {
			return nil, audio.NewError(audio.CodeNoInit, "attached device rejected", err)
		}
	}
	m.reg.BumpPortGeneration()
	m.initialized = true
	m.log.Info("policy manager initialized",
		"modules", len(cfg.Modules),
		"attached_devices", len(cfg.AttachedDevices))
	return m, nil
}

// Close stops the per-output loopers. The manager is unusable after.
func (m *Manager) Close() {
	m.mu.Lock()
	loopers := m.loopers
	m.loopers = make(map[audio.IOHandle]*looper)
	m.initialized = false
	m.mu.Unlock()
	for _, l := range loopers {
		l.stop()
	}
}

// Registry exposes the runtime tables for read-only observers.
func (m *Manager) Registry() *registry.Registry { return m.reg }

// Engine exposes the policy engine for read-only observers.
func (m *Manager) Engine() *engine.Engine { return m.engine }

// Volumes exposes the volume table for read-only observers.
func (m *Manager) Volumes() *volume.Table { return m.vol }

func (m *Manager) checkInitLocked() error {
	if !m.initialized {
		return audio.Errorf(audio.CodeNoInit, "manager not initialized")
	}
	return nil
}

// mixReachable answers the mix table's registration question: the
// target device type must be declared and reachable from a mix port;
// loopback targets additionally need a capturable remote submix port.
func (m *Manager) mixReachable(device audio.Device, loopback bool) bool {
	mod, dp := m.cfg.FindDevicePort(device.Type, device.Address)
	if dp == nil {
		return false
	}
	if len(mod.ReachableMixPorts(dp)) == 0 {
		return false
	}
	if loopback {
		inMod, inPort := m.cfg.FindDevicePort(audio.DeviceInRemoteSubmix, "")
		if inPort == nil || len(inMod.ReachableMixPorts(inPort)) == 0 {
			return false
		}
	}
	return true
}

// syncMetricsLocked recomputes the state gauges from the registry.
// Called after every mutation that changes what the gauges count.
func (m *Manager) syncMetricsLocked() {
	byDevice := make(map[string]int)
	for _, d := range m.reg.DeviceDescs() {
		byDevice[d.Device.Type.String()]++
	}
	for t, n := range byDevice {
		metrics.SetConnectedDevices(t, n)
	}
	outs := m.reg.Outputs()
	metrics.SetOpenOutputs(len(outs))
	activeOut := 0
	for _, o := range outs {
		activeOut += o.ActiveCount()
	}
	metrics.SetActiveClients("output", activeOut)
	ins := m.reg.Inputs()
	metrics.SetOpenInputs(len(ins))
	activeIn := 0
	for _, in := range ins {
		activeIn += in.ActiveCount()
	}
	metrics.SetActiveClients("input", activeIn)
	metrics.SetActivePatches(len(m.reg.Patches()))
	byRoute := make(map[string]int)
	for _, mx := range m.mixes.Registered() {
		byRoute[mx.RouteFlags.String()]++
	}
	for r, n := range byRoute {
		metrics.SetPolicyMixes(r, n)
	}
}

// publish forwards an event to the bus when one is attached.
func (m *Manager) publish(ev events.Event) {
	if m.bus != nil {
		m.bus.Publish(ev)
	}
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// cleanup is a scoped rollback queue: every registry mutation arms an
// undo closure and the whole queue is disarmed only on the success
// path.
type cleanup struct {
	fns []func()
}

func (c *cleanup) arm(f func()) {
	c.fns = append(c.fns, f)
}

func (c *cleanup) disarm() {
	c.fns = nil
}

// run executes the armed undos in reverse order.
func (c *cleanup) run() {
	for i := len(c.fns) - 1; i >= 0; i-- {
		c.fns[i]()
	}
	c.fns = nil
}

// HAL open calls that race a transient server state mismatch return
// FAILED_TRANSACTION and are retried a bounded number of times.
const halOpenAttempts = 3

func retryBackoff() time.Duration {
	return 200*time.Millisecond + rand.N(300*time.Millisecond)
}

func (m *Manager) openOutputRetry(module string, device audio.Device, cfg audio.Config, flags audio.OutputFlags) (audio.IOHandle, error) {
	var handle audio.IOHandle
	var err error
	for attempt := 1; attempt <= halOpenAttempts; attempt++ {
		handle, err = m.client.OpenOutput(module, device, cfg, flags)
		if !audio.IsCode(err, audio.CodeFailedTransaction) {
			return handle, err
		}
		metrics.IncHALRetry("open_output")
		m.log.Warn("transient output open failure, retrying",
			"device", device.Type.String(), "attempt", attempt)
		if attempt < halOpenAttempts {
			time.Sleep(retryBackoff())
		}
	}
	return handle, err
}

func (m *Manager) openInputRetry(module string, device audio.Device, cfg audio.Config, flags audio.InputFlags, source audio.Source) (audio.IOHandle, error) {
	var handle audio.IOHandle
	var err error
	for attempt := 1; attempt <= halOpenAttempts; attempt++ {
		handle, err = m.client.OpenInput(module, device, cfg, flags, source)
		if !audio.IsCode(err, audio.CodeFailedTransaction) {
			return handle, err
		}
		metrics.IncHALRetry("open_input")
		m.log.Warn("transient input open failure, retrying",
			"device", device.Type.String(), "attempt", attempt)
		if attempt < halOpenAttempts {
			time.Sleep(retryBackoff())
		}
	}
	return handle, err
}

// availableDevicesForClient filters the available output devices through
// any affinity mixes registered for the client identity. Affinities are
// expressed as registered mixes, so the filter only has to honor the
// mix match result; this helper additionally excludes devices disabled
// by role assignments, which the engine applies itself.
func (m *Manager) availableOutputDevicesLocked() []audio.Device {
	return m.reg.AvailableOutputDevices()
}

func (m *Manager) availableInputDevicesLocked() []audio.Device {
	return m.reg.AvailableInputDevices()
}

// deviceDescFor finds the registry instance for a device endpoint.
func (m *Manager) deviceDescFor(d audio.Device) *registry.DeviceDesc {
	return m.reg.FindDevice(d)
}

// streamTypeForAttributes maps attributes to the legacy volume
// addressing alias.
func streamTypeForAttributes(attr audio.Attributes) audio.StreamType {
	if attr.Flags&audio.AttrFlagAudibilityEnforced != 0 {
		return audio.StreamEnforcedAudible
	}
	switch attr.Usage {
	case audio.UsageVoiceCommunication:
		return audio.StreamVoiceCall
	case audio.UsageVoiceCommunicationSignalling:
		return audio.StreamDTMF
	case audio.UsageAlarm:
		return audio.StreamAlarm
	case audio.UsageNotificationTelephonyRingtone:
		return audio.StreamRing
	case audio.UsageNotification, audio.UsageNotificationEvent:
		return audio.StreamNotification
	case audio.UsageAssistanceAccessibility:
		return audio.StreamAccessibility
	case audio.UsageAssistanceSonification:
		return audio.StreamSystem
	case audio.UsageAssistant:
		return audio.StreamAssistant
	case audio.UsageVirtualSource:
		return audio.StreamRerouting
	case audio.UsageMedia, audio.UsageGame, audio.UsageAssistanceNavigationGuidance,
		audio.UsageAnnouncement, audio.UsageVehicleStatus, audio.UsageSafety,
		audio.UsageEmergency, audio.UsageCallAssistant:
		return audio.StreamMusic
	}
	return audio.StreamMusic
}

// groupForStream resolves the volume group name a stream belongs to.
func (m *Manager) groupForStream(st audio.StreamType) string {
	if g, ok := m.vol.GroupForStream(st); ok {
		return g.Name
	}
	return ""
}
