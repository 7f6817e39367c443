package hw

import (
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/soundcore/audiopolicyd/internal/audio"
)

// DeviceCategory buckets devices for volume curve selection.
type DeviceCategory int

const (
	CategorySpeaker DeviceCategory = iota
	CategoryHeadset
	CategoryEarpiece
	CategoryExtMedia
)

var deviceCategoryNames = map[string]DeviceCategory{
	"DEVICE_CATEGORY_SPEAKER":   CategorySpeaker,
	"DEVICE_CATEGORY_HEADSET":   CategoryHeadset,
	"DEVICE_CATEGORY_EARPIECE":  CategoryEarpiece,
	"DEVICE_CATEGORY_EXT_MEDIA": CategoryExtMedia,
}

func (c DeviceCategory) String() string {
	for name, cat := range deviceCategoryNames {
		if cat == c {
			return name
		}
	}
	return fmt.Sprintf("DEVICE_CATEGORY(%d)", int(c))
}

// CategoryForDevice buckets a device type for curve lookup.
func CategoryForDevice(t audio.DeviceType) DeviceCategory {
	switch t {
	case audio.DeviceOutSpeaker, audio.DeviceOutSpeakerSafe:
		return CategorySpeaker
	case audio.DeviceOutEarpiece:
		return CategoryEarpiece
	case audio.DeviceOutWiredHeadset, audio.DeviceOutWiredHeadphone,
		audio.DeviceOutBluetoothSCO, audio.DeviceOutBluetoothSCOHeadset,
		audio.DeviceOutBluetoothA2DP, audio.DeviceOutBLEHeadset,
		audio.DeviceOutUSBHeadset:
		return CategoryHeadset
	}
	return CategoryExtMedia
}

// CurvePoint maps a volume index to an attenuation in centi-dB style
// decibels; successive points are interpolated linearly.
type CurvePoint struct {
	Index int
	DB    float64
}

// VolumeGroup declares the index range and per-category curves shared by
// a set of legacy stream types.
type VolumeGroup struct {
	Name     string
	Streams  []audio.StreamType
	IndexMin int
	IndexMax int
	Curves   map[DeviceCategory][]CurvePoint
}

// AttributeRule matches request attributes to a product strategy. Zero
// fields are wildcards; a rule with all wildcards matches everything.
type AttributeRule struct {
	Usage       audio.Usage
	ContentType audio.ContentType
	Flags       audio.AttrFlags
}

// StrategyDecl declares a product strategy in the engine configuration.
type StrategyDecl struct {
	Name        string
	VolumeGroup string
	Rules       []AttributeRule
}

// EngineConfig is the parsed engine configuration document.
type EngineConfig struct {
	Strategies   []StrategyDecl
	VolumeGroups []*VolumeGroup
}

// VolumeGroupByName looks up a group.
func (c *EngineConfig) VolumeGroupByName(name string) *VolumeGroup {
	for _, g := range c.VolumeGroups {
		if g.Name == name {
			return g
		}
	}
	return nil
}

type xmlEngineConfig struct {
	XMLName      xml.Name             `xml:"audioPolicyEngineConfiguration"`
	VolumeGroups []xmlVolumeGroup     `xml:"volumeGroups>volumeGroup"`
	Strategies   []xmlProductStrategy `xml:"productStrategies>productStrategy"`
}

type xmlVolumeGroup struct {
	Name     string     `xml:"name,attr"`
	IndexMin int        `xml:"indexMin,attr"`
	IndexMax int        `xml:"indexMax,attr"`
	Streams  []string   `xml:"stream"`
	Curves   []xmlCurve `xml:"volume"`
}

type xmlCurve struct {
	DeviceCategory string   `xml:"deviceCategory,attr"`
	Points         []string `xml:"point"`
}

type xmlProductStrategy struct {
	Name        string              `xml:"name,attr"`
	VolumeGroup string              `xml:"volumeGroup,attr"`
	Attributes  []xmlAttributesRule `xml:"attributes"`
}

type xmlAttributesRule struct {
	Usage       string `xml:"usage,attr"`
	ContentType string `xml:"contentType,attr"`
	Flags       string `xml:"flags,attr"`
}

// LoadEngine reads and validates the engine configuration document.
func LoadEngine(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read engine configuration: %w", err)
	}
	return ParseEngine(data)
}

// ParseEngine builds the engine configuration from XML bytes.
func ParseEngine(data []byte) (*EngineConfig, error) {
	var doc xmlEngineConfig
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse engine configuration: %w", err)
	}
	cfg := &EngineConfig{}
	for _, xg := range doc.VolumeGroups {
		g, err := parseVolumeGroup(xg)
		if err != nil {
			return nil, err
		}
		cfg.VolumeGroups = append(cfg.VolumeGroups, g)
	}
	for _, xs := range doc.Strategies {
		decl := StrategyDecl{Name: xs.Name, VolumeGroup: xs.VolumeGroup}
		if decl.VolumeGroup != "" && cfg.VolumeGroupByName(decl.VolumeGroup) == nil {
			return nil, fmt.Errorf("strategy %q references unknown volume group %q", xs.Name, xs.VolumeGroup)
		}
		for _, xa := range xs.Attributes {
			rule := AttributeRule{}
			if xa.Usage != "" {
				u, ok := audio.ParseUsage(xa.Usage)
				if !ok {
					return nil, fmt.Errorf("strategy %q: unknown usage %q", xs.Name, xa.Usage)
				}
				rule.Usage = u
			}
			if xa.ContentType != "" {
				ct, ok := parseContentType(xa.ContentType)
				if !ok {
					return nil, fmt.Errorf("strategy %q: unknown content type %q", xs.Name, xa.ContentType)
				}
				rule.ContentType = ct
			}
			if xa.Flags == "AUDIBILITY_ENFORCED" {
				rule.Flags = audio.AttrFlagAudibilityEnforced
			}
			decl.Rules = append(decl.Rules, rule)
		}
		cfg.Strategies = append(cfg.Strategies, decl)
	}
	return cfg, nil
}

func parseVolumeGroup(xg xmlVolumeGroup) (*VolumeGroup, error) {
	if xg.IndexMax <= xg.IndexMin {
		return nil, fmt.Errorf("volume group %q: bad index range [%d,%d]", xg.Name, xg.IndexMin, xg.IndexMax)
	}
	g := &VolumeGroup{
		Name:     xg.Name,
		IndexMin: xg.IndexMin,
		IndexMax: xg.IndexMax,
		Curves:   make(map[DeviceCategory][]CurvePoint),
	}
	for _, s := range xg.Streams {
		st, ok := parseStreamType(s)
		if !ok {
			return nil, fmt.Errorf("volume group %q: unknown stream %q", xg.Name, s)
		}
		g.Streams = append(g.Streams, st)
	}
	for _, xc := range xg.Curves {
		cat, ok := deviceCategoryNames[xc.DeviceCategory]
		if !ok {
			return nil, fmt.Errorf("volume group %q: unknown device category %q", xg.Name, xc.DeviceCategory)
		}
		var points []CurvePoint
		last := -1
		for _, ps := range xc.Points {
			p, err := parseCurvePoint(ps)
			if err != nil {
				return nil, fmt.Errorf("volume group %q: %w", xg.Name, err)
			}
			if p.Index <= last {
				return nil, fmt.Errorf("volume group %q: curve points out of order at index %d", xg.Name, p.Index)
			}
			last = p.Index
			points = append(points, p)
		}
		if len(points) < 2 {
			return nil, fmt.Errorf("volume group %q: category %s needs at least two curve points", xg.Name, xc.DeviceCategory)
		}
		g.Curves[cat] = points
	}
	if len(g.Curves) == 0 {
		return nil, fmt.Errorf("volume group %q declares no curves", xg.Name)
	}
	return g, nil
}

// parseCurvePoint parses "index,millibels".
func parseCurvePoint(s string) (CurvePoint, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ",", 2)
	if len(parts) != 2 {
		return CurvePoint{}, fmt.Errorf("bad curve point %q", s)
	}
	idx, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return CurvePoint{}, fmt.Errorf("bad curve point index %q", s)
	}
	mb, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return CurvePoint{}, fmt.Errorf("bad curve point level %q", s)
	}
	return CurvePoint{Index: idx, DB: float64(mb) / 100.0}, nil
}

func parseStreamType(s string) (audio.StreamType, bool) {
	for st := audio.StreamVoiceCall; st <= audio.StreamPatch; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return 0, false
}

func parseContentType(s string) (audio.ContentType, bool) {
	for ct := audio.ContentUnknown; ct <= audio.ContentSonification; ct++ {
		if ct.String() == s {
			return ct, true
		}
	}
	return audio.ContentUnknown, false
}
