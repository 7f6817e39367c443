package audio

import "fmt"

// Format is a sample encoding.
type Format int

const (
	FormatDefault Format = iota
	FormatPCM16
	FormatPCM24
	FormatPCM32
	FormatPCMFloat
	FormatAC3
	FormatEAC3
	FormatDTS
	FormatDTSHD
	FormatAAC
	FormatIEC61937
)

var formatNames = map[Format]string{
	FormatDefault:  "AUDIO_FORMAT_DEFAULT",
	FormatPCM16:    "AUDIO_FORMAT_PCM_16_BIT",
	FormatPCM24:    "AUDIO_FORMAT_PCM_24_BIT_PACKED",
	FormatPCM32:    "AUDIO_FORMAT_PCM_32_BIT",
	FormatPCMFloat: "AUDIO_FORMAT_PCM_FLOAT",
	FormatAC3:      "AUDIO_FORMAT_AC3",
	FormatEAC3:     "AUDIO_FORMAT_E_AC3",
	FormatDTS:      "AUDIO_FORMAT_DTS",
	FormatDTSHD:    "AUDIO_FORMAT_DTS_HD",
	FormatAAC:      "AUDIO_FORMAT_AAC_LC",
	FormatIEC61937: "AUDIO_FORMAT_IEC61937",
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return fmt.Sprintf("AUDIO_FORMAT(%d)", int(f))
}

// ParseFormat resolves a configuration format name.
func ParseFormat(s string) (Format, bool) {
	for f, name := range formatNames {
		if name == s {
			return f, true
		}
	}
	return FormatDefault, false
}

// IsPCM reports whether f is linear PCM.
func (f Format) IsPCM() bool {
	switch f {
	case FormatDefault, FormatPCM16, FormatPCM24, FormatPCM32, FormatPCMFloat:
		return true
	}
	return false
}

// IsSurround reports whether f is an encoded surround format eligible for
// the encoded-surround force-use setting.
func (f Format) IsSurround() bool {
	switch f {
	case FormatAC3, FormatEAC3, FormatDTS, FormatDTSHD, FormatIEC61937:
		return true
	}
	return false
}

// ChannelMask describes channel positions for one direction.
type ChannelMask int

const (
	ChannelNone ChannelMask = iota
	ChannelOutMono
	ChannelOutStereo
	ChannelOutQuad
	ChannelOut5Point1
	ChannelOut7Point1
	ChannelInMono
	ChannelInStereo
	ChannelIn5Point1
)

var channelMaskNames = map[ChannelMask]string{
	ChannelNone:       "AUDIO_CHANNEL_NONE",
	ChannelOutMono:    "AUDIO_CHANNEL_OUT_MONO",
	ChannelOutStereo:  "AUDIO_CHANNEL_OUT_STEREO",
	ChannelOutQuad:    "AUDIO_CHANNEL_OUT_QUAD",
	ChannelOut5Point1: "AUDIO_CHANNEL_OUT_5POINT1",
	ChannelOut7Point1: "AUDIO_CHANNEL_OUT_7POINT1",
	ChannelInMono:     "AUDIO_CHANNEL_IN_MONO",
	ChannelInStereo:   "AUDIO_CHANNEL_IN_STEREO",
	ChannelIn5Point1:  "AUDIO_CHANNEL_IN_5POINT1",
}

func (m ChannelMask) String() string {
	if s, ok := channelMaskNames[m]; ok {
		return s
	}
	return fmt.Sprintf("AUDIO_CHANNEL(%d)", int(m))
}

// ParseChannelMask resolves a configuration channel mask name.
func ParseChannelMask(s string) (ChannelMask, bool) {
	for m, name := range channelMaskNames {
		if name == s {
			return m, true
		}
	}
	return ChannelNone, false
}

// Count returns the number of channels in the mask.
func (m ChannelMask) Count() int {
	switch m {
	case ChannelOutMono, ChannelInMono:
		return 1
	case ChannelOutStereo, ChannelInStereo:
		return 2
	case ChannelOutQuad:
		return 4
	case ChannelOut5Point1, ChannelIn5Point1:
		return 6
	case ChannelOut7Point1:
		return 8
	}
	return 0
}

// Config is a concrete stream configuration requested by a client or
// negotiated against a profile.
type Config struct {
	Format      Format
	ChannelMask ChannelMask
	SampleRate  int
	FrameCount  int
}

// IsDefault reports whether every field is unset, leaving the choice to
// the policy manager.
func (c Config) IsDefault() bool {
	return c.Format == FormatDefault && c.ChannelMask == ChannelNone && c.SampleRate == 0
}

func (c Config) String() string {
	return fmt.Sprintf("%s/%s/%dHz", c.Format, c.ChannelMask, c.SampleRate)
}
