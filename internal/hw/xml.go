package hw

import (
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/soundcore/audiopolicyd/internal/audio"
)

// XML document shapes for the audio policy configuration file. These
// mirror the on-disk schema only; Load converts them into the model
// types and validates.

type xmlPolicyConfig struct {
	XMLName             xml.Name    `xml:"audioPolicyConfiguration"`
	AttachedDevices     []string    `xml:"attachedDevices>item"`
	DefaultOutputDevice string      `xml:"defaultOutputDevice"`
	Modules             []xmlModule `xml:"modules>module"`
}

type xmlModule struct {
	Name        string          `xml:"name,attr"`
	MixPorts    []xmlMixPort    `xml:"mixPorts>mixPort"`
	DevicePorts []xmlDevicePort `xml:"devicePorts>devicePort"`
	Routes      []xmlRoute      `xml:"routes>route"`
}

type xmlMixPort struct {
	Name           string       `xml:"name,attr"`
	Role           string       `xml:"role,attr"`
	Flags          string       `xml:"flags,attr"`
	MaxOpenCount   string       `xml:"maxOpenCount,attr"`
	MaxActiveCount string       `xml:"maxActiveCount,attr"`
	KeepWarm       string       `xml:"keepWarm,attr"`
	Profiles       []xmlProfile `xml:"profile"`
}

type xmlDevicePort struct {
	TagName  string       `xml:"tagName,attr"`
	Type     string       `xml:"type,attr"`
	Role     string       `xml:"role,attr"`
	Address  string       `xml:"address,attr"`
	Profiles []xmlProfile `xml:"profile"`
	Gains    []xmlGain    `xml:"gains>gain"`
}

type xmlProfile struct {
	Name          string `xml:"name,attr"`
	Format        string `xml:"format,attr"`
	SamplingRates string `xml:"samplingRates,attr"`
	ChannelMasks  string `xml:"channelMasks,attr"`
	Dynamic       string `xml:"dynamic,attr"`
}

type xmlGain struct {
	Name       string `xml:"name,attr"`
	MinValueMB int    `xml:"minValueMB,attr"`
	MaxValueMB int    `xml:"maxValueMB,attr"`
	StepMB     int    `xml:"stepValueMB,attr"`
	DefaultMB  int    `xml:"defaultValueMB,attr"`
}

type xmlRoute struct {
	Sink    string `xml:"sink,attr"`
	Sources string `xml:"sources,attr"`
}

// Load reads and validates the audio policy configuration document.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy configuration: %w", err)
	}
	return Parse(data)
}

// Parse builds the configuration model from XML bytes.
func Parse(data []byte) (*Config, error) {
	var doc xmlPolicyConfig
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse policy configuration: %w", err)
	}

	cfg := &Config{
		AttachedDevices:     doc.AttachedDevices,
		DefaultOutputDevice: doc.DefaultOutputDevice,
	}
	for i, xm := range doc.Modules {
		m := &Module{
			Name:   xm.Name,
			Handle: audio.ModuleHandle(i + 1),
		}
		for _, xp := range xm.MixPorts {
			mp, err := parseMixPort(xm.Name, xp)
			if err != nil {
				return nil, err
			}
			mp.module = m
			m.MixPorts = append(m.MixPorts, mp)
		}
		for _, xp := range xm.DevicePorts {
			dp, err := parseDevicePort(xm.Name, xp)
			if err != nil {
				return nil, err
			}
			dp.module = m
			m.DevicePorts = append(m.DevicePorts, dp)
		}
		for _, xr := range xm.Routes {
			m.Routes = append(m.Routes, Route{
				Sink:    xr.Sink,
				Sources: splitList(xr.Sources),
			})
		}
		cfg.Modules = append(cfg.Modules, m)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseMixPort(module string, xp xmlMixPort) (*MixPort, error) {
	mp := &MixPort{Name: xp.Name}
	switch xp.Role {
	case "source", "":
		mp.Role = RoleSource
	case "sink":
		mp.Role = RoleSink
	default:
		return nil, fmt.Errorf("module %q: mix port %q: bad role %q", module, xp.Name, xp.Role)
	}
	if xp.Flags != "" {
		var err error
		if mp.Role == RoleSource {
			mp.OutputFlags, err = audio.ParseOutputFlags(xp.Flags)
		} else {
			mp.InputFlags, err = audio.ParseInputFlags(xp.Flags)
		}
		if err != nil {
			return nil, fmt.Errorf("module %q: mix port %q: %w", module, xp.Name, err)
		}
	}
	var err error
	if mp.MaxOpenCount, err = parseCount(xp.MaxOpenCount); err != nil {
		return nil, fmt.Errorf("module %q: mix port %q: maxOpenCount: %w", module, xp.Name, err)
	}
	if mp.MaxActiveCount, err = parseCount(xp.MaxActiveCount); err != nil {
		return nil, fmt.Errorf("module %q: mix port %q: maxActiveCount: %w", module, xp.Name, err)
	}
	mp.KeepWarm = xp.KeepWarm == "true"
	for _, prof := range xp.Profiles {
		p, err := parseProfile(prof)
		if err != nil {
			return nil, fmt.Errorf("module %q: mix port %q: %w", module, xp.Name, err)
		}
		mp.Profiles = append(mp.Profiles, p)
	}
	return mp, nil
}

func parseDevicePort(module string, xp xmlDevicePort) (*DevicePort, error) {
	t, ok := audio.ParseDeviceType(xp.Type)
	if !ok {
		return nil, fmt.Errorf("module %q: device port %q: unknown type %q", module, xp.TagName, xp.Type)
	}
	dp := &DevicePort{
		TagName: xp.TagName,
		Type:    t,
		Address: xp.Address,
	}
	switch xp.Role {
	case "sink":
		dp.Role = RoleSink
	case "source":
		dp.Role = RoleSource
	default:
		return nil, fmt.Errorf("module %q: device port %q: bad role %q", module, xp.TagName, xp.Role)
	}
	if dp.Role == RoleSink && !t.IsOutput() {
		return nil, fmt.Errorf("module %q: device port %q: input type with sink role", module, xp.TagName)
	}
	if dp.Role == RoleSource && !t.IsInput() {
		return nil, fmt.Errorf("module %q: device port %q: output type with source role", module, xp.TagName)
	}
	for _, prof := range xp.Profiles {
		p, err := parseProfile(prof)
		if err != nil {
			return nil, fmt.Errorf("module %q: device port %q: %w", module, xp.TagName, err)
		}
		dp.Profiles = append(dp.Profiles, p)
	}
	for _, g := range xp.Gains {
		dp.Gains = append(dp.Gains, GainSpec{
			Name:       g.Name,
			MinValueMB: g.MinValueMB,
			MaxValueMB: g.MaxValueMB,
			StepMB:     g.StepMB,
			DefaultMB:  g.DefaultMB,
		})
	}
	return dp, nil
}

func parseProfile(xp xmlProfile) (*Profile, error) {
	p := &Profile{Name: xp.Name, Dynamic: xp.Dynamic == "true"}
	if xp.Format != "" {
		f, ok := audio.ParseFormat(xp.Format)
		if !ok {
			return nil, fmt.Errorf("unknown format %q", xp.Format)
		}
		p.Format = f
	}
	for _, s := range splitList(xp.SamplingRates) {
		rate, err := strconv.Atoi(s)
		if err != nil || rate <= 0 {
			return nil, fmt.Errorf("bad sampling rate %q", s)
		}
		p.SampleRates = append(p.SampleRates, rate)
	}
	for _, s := range splitList(xp.ChannelMasks) {
		m, ok := audio.ParseChannelMask(s)
		if !ok {
			return nil, fmt.Errorf("unknown channel mask %q", s)
		}
		p.ChannelMasks = append(p.ChannelMasks, m)
	}
	if !p.Dynamic && p.IsEmpty() {
		return nil, fmt.Errorf("profile %q declares no rates or masks and is not dynamic", xp.Name)
	}
	return p, nil
}

func parseCount(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("bad count %q", s)
	}
	return n, nil
}

// splitList splits a comma-separated attribute value. Port names may
// contain spaces, so only the comma is a separator.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
