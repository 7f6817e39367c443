// Package hw holds the immutable-after-load description of the audio
// hardware topology: modules, mix ports, device ports, profiles, routes,
// gain controls, and volume curves. Parsing lives in xml.go and
// engineconfig.go; nothing here mutates after Load returns.
package hw

import (
	"fmt"

	"github.com/soundcore/audiopolicyd/internal/audio"
)

// PortRole distinguishes the two ends of a route. A source mix port
// produces audio (playback); a sink mix port consumes it (capture).
type PortRole int

const (
	RoleSource PortRole = iota
	RoleSink
)

func (r PortRole) String() string {
	if r == RoleSink {
		return "sink"
	}
	return "source"
}

// Profile is one (format, channel masks, sample rates) tuple a port
// supports. Dynamic profiles start empty and are filled from the device
// when it connects.
type Profile struct {
	Name         string
	Format       audio.Format
	SampleRates  []int
	ChannelMasks []audio.ChannelMask
	Dynamic      bool
}

// IsEmpty reports whether the profile carries no usable capability yet
// (a dynamic profile before device connection).
func (p *Profile) IsEmpty() bool {
	return len(p.SampleRates) == 0 && len(p.ChannelMasks) == 0
}

// Supports reports whether the profile contains the exact requested
// triple. Unset request fields match anything.
func (p *Profile) Supports(cfg audio.Config) bool {
	if cfg.Format != audio.FormatDefault && cfg.Format != p.Format {
		return false
	}
	if cfg.SampleRate != 0 && !containsInt(p.SampleRates, cfg.SampleRate) {
		return false
	}
	if cfg.ChannelMask != audio.ChannelNone && !containsMask(p.ChannelMasks, cfg.ChannelMask) {
		return false
	}
	return !p.IsEmpty()
}

// Suggest returns the closest configuration the profile can serve for
// the request: requested fields are kept when supported, otherwise the
// profile's first declared value is substituted.
func (p *Profile) Suggest(cfg audio.Config) audio.Config {
	out := cfg
	out.Format = p.Format
	if cfg.SampleRate == 0 || !containsInt(p.SampleRates, cfg.SampleRate) {
		if len(p.SampleRates) > 0 {
			out.SampleRate = p.SampleRates[0]
		}
	}
	if cfg.ChannelMask == audio.ChannelNone || !containsMask(p.ChannelMasks, cfg.ChannelMask) {
		if len(p.ChannelMasks) > 0 {
			out.ChannelMask = p.ChannelMasks[0]
		}
	}
	return out
}

// GainSpec describes a hardware gain control attached to a device port.
type GainSpec struct {
	Name       string
	MinValueMB int
	MaxValueMB int
	StepMB     int
	DefaultMB  int
}

// MixPort is a software-visible endpoint declared by a module.
type MixPort struct {
	Name        string
	Role        PortRole
	OutputFlags audio.OutputFlags
	InputFlags  audio.InputFlags
	Profiles    []*Profile
	// MaxOpenCount bounds simultaneously opened streams on this port;
	// zero means unbounded. MaxActiveCount bounds started clients per
	// stream, zero likewise unbounded.
	MaxOpenCount   int
	MaxActiveCount int
	// KeepWarm marks capture ports that must be probed (opened and
	// immediately closed) when a routable device connects.
	KeepWarm bool

	module *Module
}

// Module returns the owning hardware module.
func (p *MixPort) Module() *Module { return p.module }

// SupportsConfig reports whether any profile accepts the exact config.
func (p *MixPort) SupportsConfig(cfg audio.Config) bool {
	for _, prof := range p.Profiles {
		if prof.Supports(cfg) {
			return true
		}
	}
	return false
}

// SuggestConfig returns a config the port can serve, preferring profiles
// that keep more of the request intact.
func (p *MixPort) SuggestConfig(cfg audio.Config) (audio.Config, bool) {
	for _, prof := range p.Profiles {
		if prof.Supports(cfg) {
			return prof.Suggest(cfg), true
		}
	}
	for _, prof := range p.Profiles {
		if !prof.IsEmpty() {
			return prof.Suggest(cfg), true
		}
	}
	return cfg, false
}

// DevicePort is a physical endpoint template declared by a module.
// Connected instances are materialized in the runtime registry.
type DevicePort struct {
	TagName  string
	Type     audio.DeviceType
	Role     PortRole
	Address  string
	Profiles []*Profile
	Gains    []GainSpec

	module *Module
}

// Module returns the owning hardware module.
func (p *DevicePort) Module() *Module { return p.module }

// Device returns the endpoint identity of the template.
func (p *DevicePort) Device() audio.Device {
	return audio.Device{Type: p.Type, Address: p.Address}
}

// Route declares which source ports can reach a sink port.
type Route struct {
	Sink    string
	Sources []string
}

// Module is one HAL module: a set of ports plus the routes between them.
type Module struct {
	Name        string
	Handle      audio.ModuleHandle
	MixPorts    []*MixPort
	DevicePorts []*DevicePort
	Routes      []Route
}

// MixPort looks up a mix port by name.
func (m *Module) MixPort(name string) *MixPort {
	for _, p := range m.MixPorts {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// DevicePort looks up a device port template by tag name.
func (m *Module) DevicePort(tag string) *DevicePort {
	for _, p := range m.DevicePorts {
		if p.TagName == tag {
			return p
		}
	}
	return nil
}

// DevicePortForType finds the template matching a device type and
// address. An empty template address matches any requested address.
func (m *Module) DevicePortForType(t audio.DeviceType, address string) *DevicePort {
	var fallback *DevicePort
	for _, p := range m.DevicePorts {
		if p.Type != t {
			continue
		}
		if p.Address == address {
			return p
		}
		if p.Address == "" && fallback == nil {
			fallback = p
		}
	}
	return fallback
}

// ReachableMixPorts returns the mix ports connected to the device port
// by a declared route, in configuration order.
func (m *Module) ReachableMixPorts(dp *DevicePort) []*MixPort {
	var out []*MixPort
	seen := make(map[string]struct{})
	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		if mp := m.MixPort(name); mp != nil {
			seen[name] = struct{}{}
			out = append(out, mp)
		}
	}
	for _, r := range m.Routes {
		if dp.Role == RoleSink && r.Sink == dp.TagName {
			// Playback: mix port sources feeding the device sink.
			for _, s := range r.Sources {
				add(s)
			}
		}
		if dp.Role == RoleSource && containsString(r.Sources, dp.TagName) {
			// Capture: the sink of a route fed by the device source.
			add(r.Sink)
		}
	}
	return out
}

// Config is the loaded hardware topology.
type Config struct {
	Modules []*Module
	// AttachedDevices are device port tags always present.
	AttachedDevices []string
	// DefaultOutputDevice is the tag of the fallback sink.
	DefaultOutputDevice string
}

// Module looks up a module by name.
func (c *Config) Module(name string) *Module {
	for _, m := range c.Modules {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// FindDevicePort locates the first template for a device type and
// address across all modules.
func (c *Config) FindDevicePort(t audio.DeviceType, address string) (*Module, *DevicePort) {
	for _, m := range c.Modules {
		if dp := m.DevicePortForType(t, address); dp != nil {
			return m, dp
		}
	}
	return nil, nil
}

// DevicePortByTag locates a template by its tag name.
func (c *Config) DevicePortByTag(tag string) (*Module, *DevicePort) {
	for _, m := range c.Modules {
		if dp := m.DevicePort(tag); dp != nil {
			return m, dp
		}
	}
	return nil, nil
}

// validate checks referential integrity after parsing.
func (c *Config) validate() error {
	if len(c.Modules) == 0 {
		return fmt.Errorf("configuration declares no modules")
	}
	names := make(map[string]struct{})
	for _, m := range c.Modules {
		if _, dup := names[m.Name]; dup {
			return fmt.Errorf("duplicate module %q", m.Name)
		}
		names[m.Name] = struct{}{}
		ports := make(map[string]struct{})
		for _, p := range m.MixPorts {
			if _, dup := ports[p.Name]; dup {
				return fmt.Errorf("module %q: duplicate port %q", m.Name, p.Name)
			}
			ports[p.Name] = struct{}{}
		}
		for _, p := range m.DevicePorts {
			if _, dup := ports[p.TagName]; dup {
				return fmt.Errorf("module %q: duplicate port %q", m.Name, p.TagName)
			}
			ports[p.TagName] = struct{}{}
		}
		for _, r := range m.Routes {
			if _, ok := ports[r.Sink]; !ok {
				return fmt.Errorf("module %q: route sink %q not declared", m.Name, r.Sink)
			}
			for _, s := range r.Sources {
				if _, ok := ports[s]; !ok {
					return fmt.Errorf("module %q: route source %q not declared", m.Name, s)
				}
			}
		}
	}
	for _, tag := range c.AttachedDevices {
		if _, dp := c.DevicePortByTag(tag); dp == nil {
			return fmt.Errorf("attached device %q not declared by any module", tag)
		}
	}
	if c.DefaultOutputDevice != "" {
		_, dp := c.DevicePortByTag(c.DefaultOutputDevice)
		if dp == nil {
			return fmt.Errorf("default output device %q not declared", c.DefaultOutputDevice)
		}
		if !dp.Type.IsOutput() {
			return fmt.Errorf("default output device %q is not an output", c.DefaultOutputDevice)
		}
	}
	return nil
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func containsMask(xs []audio.ChannelMask, x audio.ChannelMask) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func containsString(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
