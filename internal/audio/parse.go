package audio

import (
	"fmt"
	"strings"
)

var outputFlagNames = map[string]OutputFlags{
	"AUDIO_OUTPUT_FLAG_DIRECT":           OutputFlagDirect,
	"AUDIO_OUTPUT_FLAG_PRIMARY":          OutputFlagPrimary,
	"AUDIO_OUTPUT_FLAG_FAST":             OutputFlagFast,
	"AUDIO_OUTPUT_FLAG_DEEP_BUFFER":      OutputFlagDeepBuffer,
	"AUDIO_OUTPUT_FLAG_COMPRESS_OFFLOAD": OutputFlagCompressOffload,
	"AUDIO_OUTPUT_FLAG_NON_BLOCKING":     OutputFlagNonBlocking,
	"AUDIO_OUTPUT_FLAG_HW_AV_SYNC":       OutputFlagHwAvSync,
	"AUDIO_OUTPUT_FLAG_TTS":              OutputFlagTTS,
	"AUDIO_OUTPUT_FLAG_RAW":              OutputFlagRaw,
	"AUDIO_OUTPUT_FLAG_SYNC":             OutputFlagSync,
	"AUDIO_OUTPUT_FLAG_IEC958_NONAUDIO":  OutputFlagIEC958Nonaudio,
	"AUDIO_OUTPUT_FLAG_VOIP_RX":          OutputFlagVoipRx,
	"AUDIO_OUTPUT_FLAG_MMAP_NOIRQ":       OutputFlagMmapNoirq,
	"AUDIO_OUTPUT_FLAG_BIT_PERFECT":      OutputFlagBitPerfect,
}

var inputFlagNames = map[string]InputFlags{
	"AUDIO_INPUT_FLAG_FAST":       InputFlagFast,
	"AUDIO_INPUT_FLAG_HW_HOTWORD": InputFlagHwHotword,
	"AUDIO_INPUT_FLAG_RAW":        InputFlagRaw,
	"AUDIO_INPUT_FLAG_SYNC":       InputFlagSync,
	"AUDIO_INPUT_FLAG_MMAP_NOIRQ": InputFlagMmapNoirq,
	"AUDIO_INPUT_FLAG_VOIP_TX":    InputFlagVoipTx,
	"AUDIO_INPUT_FLAG_HW_AV_SYNC": InputFlagHwAvSync,
	"AUDIO_INPUT_FLAG_DIRECT":     InputFlagDirect,
}

// ParseOutputFlags parses a "|"-separated flag list from configuration.
func ParseOutputFlags(s string) (OutputFlags, error) {
	var flags OutputFlags
	for _, part := range splitFlags(s) {
		f, ok := outputFlagNames[part]
		if !ok {
			return 0, fmt.Errorf("unknown output flag %q", part)
		}
		flags |= f
	}
	return flags, nil
}

// ParseInputFlags parses a "|"-separated flag list from configuration.
func ParseInputFlags(s string) (InputFlags, error) {
	var flags InputFlags
	for _, part := range splitFlags(s) {
		f, ok := inputFlagNames[part]
		if !ok {
			return 0, fmt.Errorf("unknown input flag %q", part)
		}
		flags |= f
	}
	return flags, nil
}

func splitFlags(s string) []string {
	var parts []string
	for _, p := range strings.Split(s, "|") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// ParseUsage resolves a usage name from configuration or mix criteria.
func ParseUsage(s string) (Usage, bool) {
	for u, name := range usageNames {
		if name == s {
			return u, true
		}
	}
	return UsageUnknown, false
}

// ParseSource resolves a capture source name.
func ParseSource(s string) (Source, bool) {
	for src, name := range sourceNames {
		if name == s {
			return src, true
		}
	}
	return SourceDefault, false
}
