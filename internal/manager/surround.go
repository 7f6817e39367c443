package manager

import (
	"slices"

	"github.com/soundcore/audiopolicyd/internal/audio"
	"github.com/soundcore/audiopolicyd/internal/events"
	"github.com/soundcore/audiopolicyd/internal/hw"
)

var surroundFormats = []audio.Format{
	audio.FormatAC3,
	audio.FormatEAC3,
	audio.FormatDTS,
	audio.FormatDTSHD,
	audio.FormatIEC61937,
}

// SurroundFormat pairs an encoded surround format with its
// manually-enabled state.
type SurroundFormat struct {
	Format  audio.Format
	Enabled bool
}

// GetSurroundFormats lists every encoded surround format the policy
// knows about together with whether it is manually enabled on any
// connected digital device.
func (m *Manager) GetSurroundFormats() []SurroundFormat {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SurroundFormat, 0, len(surroundFormats))
	for _, f := range surroundFormats {
		enabled := false
		for _, d := range m.reg.DeviceDescs() {
			if slices.Contains(d.EncodedFormats, f) {
				enabled = true
				break
			}
		}
		out = append(out, SurroundFormat{Format: f, Enabled: enabled})
	}
	return out
}

// GetReportedSurroundFormats lists the surround formats connected
// devices actually advertise in their profiles right now.
func (m *Manager) GetReportedSurroundFormats() []audio.Format {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []audio.Format
	for _, d := range m.reg.DeviceDescs() {
		if !isDigitalOutput(d.Device.Type) {
			continue
		}
		for _, p := range d.Profiles {
			if p.Format.IsSurround() && !slices.Contains(out, p.Format) {
				out = append(out, p.Format)
			}
		}
	}
	return out
}

// SetSurroundFormatEnabled adds or removes an encoded surround format
// from the profiles of connected digital devices. Only legal while the
// encoded-surround force setting is MANUAL.
func (m *Manager) SetSurroundFormatEnabled(format audio.Format, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitLocked(); err != nil {
		return err
	}
	if !format.IsSurround() {
		return audio.Errorf(audio.CodeBadValue, "%s is not a surround format", format)
	}
	if m.engine.ForceUse(audio.ForceUseEncodedSurround) != audio.ForceEncodedSurroundManual {
		return audio.Errorf(audio.CodeInvalidOperation,
			"surround formats are only adjustable in ENCODED_SURROUND_MANUAL mode")
	}
	changed := false
	for _, d := range m.reg.DeviceDescs() {
		if !isDigitalOutput(d.Device.Type) {
			continue
		}
		if enabled {
			if slices.Contains(d.EncodedFormats, format) {
				continue
			}
			d.EncodedFormats = append(d.EncodedFormats, format)
			if !d.SupportsFormat(format) {
				d.Profiles = append(d.Profiles, surroundProfile(format))
			}
			changed = true
		} else {
			idx := slices.Index(d.EncodedFormats, format)
			if idx < 0 {
				continue
			}
			d.EncodedFormats = slices.Delete(d.EncodedFormats, idx, idx+1)
			d.Profiles = slices.DeleteFunc(d.Profiles, func(p *hw.Profile) bool {
				return p.Format == format
			})
			changed = true
		}
	}
	if !changed {
		return nil
	}
	m.log.Info("surround format toggled", "format", format.String(), "enabled", enabled)
	m.reg.BumpPortGeneration()
	m.client.OnAudioPortListUpdate()
	m.publish(events.PortListChangedEvent{Generation: m.reg.PortGeneration(), Timestamp: nowStamp()})
	return nil
}

// surroundProfile builds the profile a manually enabled format exposes.
// Encoded streams carry their own channel layout, so the profile pins
// the common passthrough rates only.
func surroundProfile(format audio.Format) *hw.Profile {
	return &hw.Profile{
		Format:       format,
		SampleRates:  []int{32000, 44100, 48000},
		ChannelMasks: []audio.ChannelMask{audio.ChannelOut5Point1, audio.ChannelOut7Point1},
	}
}

func isDigitalOutput(t audio.DeviceType) bool {
	switch t {
	case audio.DeviceOutHDMI, audio.DeviceOutHDMIARC, audio.DeviceOutAuxLine:
		return true
	}
	return false
}
