// Package volume maps volume indices to gains per (volume group,
// device) using the configuration's piecewise-linear curves, and tracks
// mute and absolute-volume state.
package volume

import (
	"math"
	"sync"

	"github.com/soundcore/audiopolicyd/internal/audio"
	"github.com/soundcore/audiopolicyd/internal/hw"
)

type key struct {
	group  string
	device audio.DeviceType
}

// Table is the volume state. The manager serializes mutations; reads
// from HAL-facing paths take the table lock.
type Table struct {
	mu            sync.RWMutex
	groups        []*hw.VolumeGroup
	streamToGroup map[audio.StreamType]*hw.VolumeGroup
	indices       map[key]int
	mutes         map[key]bool
	// absolute maps a device type to the group driving its on-device
	// volume, empty when the device is in normal mode.
	absolute map[audio.DeviceType]string
}

// New builds the table from the engine configuration's volume groups.
func New(groups []*hw.VolumeGroup) *Table {
	t := &Table{
		groups:        groups,
		streamToGroup: make(map[audio.StreamType]*hw.VolumeGroup),
		indices:       make(map[key]int),
		mutes:         make(map[key]bool),
		absolute:      make(map[audio.DeviceType]string),
	}
	for _, g := range groups {
		for _, st := range g.Streams {
			t.streamToGroup[st] = g
		}
	}
	return t
}

// Group looks up a volume group by name.
func (t *Table) Group(name string) *hw.VolumeGroup {
	for _, g := range t.groups {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// Groups returns the declared volume groups.
func (t *Table) Groups() []*hw.VolumeGroup { return t.groups }

// GroupForStream resolves the group owning a legacy stream type.
func (t *Table) GroupForStream(st audio.StreamType) (*hw.VolumeGroup, bool) {
	g, ok := t.streamToGroup[st]
	return g, ok
}

// SetIndex stores the volume index for (group, device).
func (t *Table) SetIndex(group string, device audio.DeviceType, index int) error {
	g := t.Group(group)
	if g == nil {
		return audio.Errorf(audio.CodeBadValue, "unknown volume group %q", group)
	}
	if index < g.IndexMin || index > g.IndexMax {
		return audio.Errorf(audio.CodeBadValue,
			"index %d outside [%d,%d] for group %q", index, g.IndexMin, g.IndexMax, group)
	}
	t.mu.Lock()
	t.indices[key{group, device}] = index
	t.mu.Unlock()
	return nil
}

// Index returns the stored index for (group, device), falling back to
// the group minimum.
func (t *Table) Index(group string, device audio.DeviceType) int {
	t.mu.RLock()
	idx, ok := t.indices[key{group, device}]
	t.mu.RUnlock()
	if ok {
		return idx
	}
	if g := t.Group(group); g != nil {
		return g.IndexMin
	}
	return 0
}

// GainDB interpolates the group's curve for the device category at the
// given index.
func (t *Table) GainDB(group string, device audio.DeviceType, index int) float64 {
	g := t.Group(group)
	if g == nil {
		return 0
	}
	curve := g.Curves[hw.CategoryForDevice(device)]
	if curve == nil {
		// Fall back to any declared curve rather than full gain.
		for _, c := range g.Curves {
			curve = c
			break
		}
	}
	if len(curve) == 0 {
		return 0
	}
	if index <= curve[0].Index {
		return curve[0].DB
	}
	last := curve[len(curve)-1]
	if index >= last.Index {
		return last.DB
	}
	for i := 1; i < len(curve); i++ {
		if index <= curve[i].Index {
			lo, hi := curve[i-1], curve[i]
			frac := float64(index-lo.Index) / float64(hi.Index-lo.Index)
			return lo.DB + frac*(hi.DB-lo.DB)
		}
	}
	return last.DB
}

// GainAmplitude converts the curve gain to a linear amplitude in [0,1].
func (t *Table) GainAmplitude(group string, device audio.DeviceType, index int) float64 {
	db := t.GainDB(group, device, index)
	amp := math.Pow(10, db/20)
	if amp > 1 {
		amp = 1
	}
	return amp
}

// SetMuted stores device-specific mute for a group.
func (t *Table) SetMuted(group string, device audio.DeviceType, muted bool) error {
	if t.Group(group) == nil {
		return audio.Errorf(audio.CodeBadValue, "unknown volume group %q", group)
	}
	t.mu.Lock()
	t.mutes[key{group, device}] = muted
	t.mu.Unlock()
	return nil
}

// Muted reports device-specific mute for a group.
func (t *Table) Muted(group string, device audio.DeviceType) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.mutes[key{group, device}]
}

// SetAbsolute marks or clears a device as absolute-volume, driven by
// the given group.
func (t *Table) SetAbsolute(device audio.DeviceType, group string, enabled bool) error {
	if !device.SupportsAbsoluteVolume() {
		return audio.Errorf(audio.CodeBadValue, "device %s cannot own volume", device)
	}
	if t.Group(group) == nil {
		return audio.Errorf(audio.CodeBadValue, "unknown volume group %q", group)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if enabled {
		t.absolute[device] = group
	} else if t.absolute[device] == group {
		delete(t.absolute, device)
	}
	return nil
}

// DrivingGroup returns the group driving an absolute-volume device, if
// the device is in absolute mode.
func (t *Table) DrivingGroup(device audio.DeviceType) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	g, ok := t.absolute[device]
	return g, ok
}
