// Package engine maps request attributes to product strategies and
// strategies to ordered device candidate lists, honoring phone state,
// force-use overrides, and role assignments.
package engine

import (
	"fmt"
	"sync"

	"github.com/soundcore/audiopolicyd/internal/audio"
	"github.com/soundcore/audiopolicyd/internal/hw"
)

// VendorStrategyIDStart is the first strategy id available to vendor
// configurations. Built-in ids are all below it.
const VendorStrategyIDStart audio.StrategyID = 1000

// Built-in product strategies.
const (
	StrategyNone audio.StrategyID = iota
	StrategyMedia
	StrategyPhone
	StrategySonification
	StrategySonificationRespectful
	StrategyDTMF
	StrategyEnforcedAudible
	StrategyAccessibility
	StrategyRerouting
	StrategyPatch
	StrategyTransmittedThroughSpeaker
)

var builtinStrategyNames = map[string]audio.StrategyID{
	"STRATEGY_MEDIA":                       StrategyMedia,
	"STRATEGY_PHONE":                       StrategyPhone,
	"STRATEGY_SONIFICATION":                StrategySonification,
	"STRATEGY_SONIFICATION_RESPECTFUL":     StrategySonificationRespectful,
	"STRATEGY_DTMF":                        StrategyDTMF,
	"STRATEGY_ENFORCED_AUDIBLE":            StrategyEnforcedAudible,
	"STRATEGY_ACCESSIBILITY":               StrategyAccessibility,
	"STRATEGY_REROUTING":                   StrategyRerouting,
	"STRATEGY_PATCH":                       StrategyPatch,
	"STRATEGY_TRANSMITTED_THROUGH_SPEAKER": StrategyTransmittedThroughSpeaker,
}

// StrategyName returns the configuration name of a built-in strategy.
func StrategyName(id audio.StrategyID) string {
	for name, sid := range builtinStrategyNames {
		if sid == id {
			return name
		}
	}
	return fmt.Sprintf("STRATEGY_VENDOR_%d", int32(id))
}

// Strategy is a resolved strategy: id, name, matching rules, and the
// volume group it feeds.
type Strategy struct {
	ID          audio.StrategyID
	Name        string
	VolumeGroup string
	Rules       []hw.AttributeRule
}

type roleMap map[audio.DeviceRole][]audio.Device

// Engine is the policy decision engine. All methods are safe for
// concurrent use; the manager additionally serializes callers.
type Engine struct {
	mu         sync.RWMutex
	phoneState audio.PhoneState
	forceUse   [audio.ForceUseCount]audio.ForcedConfig

	strategies []Strategy

	strategyRoles map[audio.StrategyID]roleMap
	presetRoles   map[audio.Source]roleMap
}

// New builds an engine from the engine configuration. Declared strategy
// names matching a built-in keep its id; unknown names are assigned
// vendor ids above VendorStrategyIDStart.
func New(cfg *hw.EngineConfig) (*Engine, error) {
	e := &Engine{
		strategyRoles: make(map[audio.StrategyID]roleMap),
		presetRoles:   make(map[audio.Source]roleMap),
	}
	nextVendor := VendorStrategyIDStart
	seen := make(map[string]struct{})
	if cfg != nil {
		for _, decl := range cfg.Strategies {
			if _, dup := seen[decl.Name]; dup {
				return nil, fmt.Errorf("duplicate strategy %q", decl.Name)
			}
			seen[decl.Name] = struct{}{}
			id, ok := builtinStrategyNames[decl.Name]
			if !ok {
				id = nextVendor
				nextVendor++
			}
			e.strategies = append(e.strategies, Strategy{
				ID:          id,
				Name:        decl.Name,
				VolumeGroup: decl.VolumeGroup,
				Rules:       decl.Rules,
			})
		}
	}
	return e, nil
}

// Strategies returns the declared strategies in configuration order.
func (e *Engine) Strategies() []Strategy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Strategy, len(e.strategies))
	copy(out, e.strategies)
	return out
}

// StrategyByID looks up a declared strategy.
func (e *Engine) StrategyByID(id audio.StrategyID) (Strategy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, s := range e.strategies {
		if s.ID == id {
			return s, true
		}
	}
	return Strategy{}, false
}

// SetPhoneState records the platform telephony state.
func (e *Engine) SetPhoneState(state audio.PhoneState) {
	e.mu.Lock()
	e.phoneState = state
	e.mu.Unlock()
}

// PhoneState returns the current telephony state.
func (e *Engine) PhoneState() audio.PhoneState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.phoneState
}

// SetForceUse records a forced configuration for a category.
func (e *Engine) SetForceUse(usage audio.ForceUse, config audio.ForcedConfig) error {
	if int(usage) < 0 || int(usage) >= audio.ForceUseCount {
		return audio.Errorf(audio.CodeBadValue, "force use category %d out of range", usage)
	}
	e.mu.Lock()
	e.forceUse[usage] = config
	e.mu.Unlock()
	return nil
}

// ForceUse returns the forced configuration for a category.
func (e *Engine) ForceUse(usage audio.ForceUse) audio.ForcedConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if int(usage) < 0 || int(usage) >= audio.ForceUseCount {
		return audio.ForceNone
	}
	return e.forceUse[usage]
}

// StrategyForAttributes resolves attributes to a strategy id. Declared
// rules are consulted in configuration order; built-in usage mapping is
// the fallback.
func (e *Engine) StrategyForAttributes(attr audio.Attributes) audio.StrategyID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, s := range e.strategies {
		for _, r := range s.Rules {
			if ruleMatches(r, attr) {
				return s.ID
			}
		}
	}
	return builtinStrategyFor(attr)
}

func ruleMatches(r hw.AttributeRule, attr audio.Attributes) bool {
	if r.Usage == audio.UsageUnknown && r.ContentType == audio.ContentUnknown && r.Flags == 0 {
		return false
	}
	if r.Usage != audio.UsageUnknown && r.Usage != attr.Usage {
		return false
	}
	if r.ContentType != audio.ContentUnknown && r.ContentType != attr.ContentType {
		return false
	}
	if r.Flags != 0 && attr.Flags&r.Flags != r.Flags {
		return false
	}
	return true
}

// builtinStrategyFor is the fallback attribute mapping: usage first,
// then content type, then flags.
func builtinStrategyFor(attr audio.Attributes) audio.StrategyID {
	if attr.Flags&audio.AttrFlagAudibilityEnforced != 0 {
		return StrategyEnforcedAudible
	}
	switch attr.Usage {
	case audio.UsageMedia, audio.UsageGame, audio.UsageAssistant,
		audio.UsageAssistanceNavigationGuidance, audio.UsageAnnouncement:
		return StrategyMedia
	case audio.UsageVoiceCommunication, audio.UsageCallAssistant:
		return StrategyPhone
	case audio.UsageVoiceCommunicationSignalling:
		return StrategyDTMF
	case audio.UsageAlarm, audio.UsageNotificationTelephonyRingtone:
		return StrategySonification
	case audio.UsageNotification, audio.UsageNotificationEvent:
		return StrategySonificationRespectful
	case audio.UsageAssistanceAccessibility:
		return StrategyAccessibility
	case audio.UsageAssistanceSonification:
		return StrategySonification
	case audio.UsageEmergency, audio.UsageSafety:
		return StrategyEnforcedAudible
	case audio.UsageVehicleStatus:
		return StrategyTransmittedThroughSpeaker
	case audio.UsageVirtualSource:
		return StrategyRerouting
	}
	switch attr.ContentType {
	case audio.ContentMusic, audio.ContentMovie:
		return StrategyMedia
	case audio.ContentSonification:
		return StrategySonification
	case audio.ContentSpeech:
		return StrategyMedia
	}
	return StrategyMedia
}
