package mixtable

import (
	"strings"
	"testing"

	"github.com/soundcore/audiopolicyd/internal/audio"
)

func allReachable(audio.Device, bool) bool { return true }

func loopbackMix(addr string) Mix {
	return Mix{
		Type:       MixTypePlayers,
		RouteFlags: RouteFlagLoopBack,
		Device:     audio.Device{Type: audio.DeviceOutRemoteSubmix, Address: addr},
		Criteria:   []Criterion{{Field: FieldUsage, Usage: audio.UsageMedia}},
	}
}

func TestRegister_Validation(t *testing.T) {
	cases := []struct {
		name    string
		mix     Mix
		code    audio.Code
		message string
	}{
		{
			name:    "no route flags",
			mix:     Mix{Type: MixTypePlayers},
			code:    audio.CodeBadValue,
			message: "no route flags",
		},
		{
			name: "loopback and render needs players",
			mix: Mix{
				Type:       MixTypeRecorders,
				RouteFlags: RouteFlagLoopBackAndRender,
			},
			code:    audio.CodeInvalidOperation,
			message: "LOOP_BACK_AND_RENDER",
		},
		{
			name: "include and exclude same field",
			mix: Mix{
				Type:       MixTypePlayers,
				RouteFlags: RouteFlagRender,
				Criteria: []Criterion{
					{Field: FieldUID, UID: 1000},
					{Field: FieldUID, UID: 1001, Exclude: true},
				},
			},
			code:    audio.CodeInvalidOperation,
			message: "both as match and exclude",
		},
		{
			name: "unknown criterion field",
			mix: Mix{
				Type:       MixTypePlayers,
				RouteFlags: RouteFlagRender,
				Criteria:   []Criterion{{Field: Field(42)}},
			},
			code:    audio.CodeBadValue,
			message: "unknown criterion field",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tbl := New(allReachable)
			err := tbl.Register([]Mix{tc.mix})
			if err == nil {
				t.Fatal("Expected registration to fail")
			}
			if !audio.IsCode(err, tc.code) {
				t.Errorf("Expected code %q, got %v", tc.code, err)
			}
			if !strings.Contains(err.Error(), tc.message) {
				t.Errorf("Expected error to mention %q, got %q", tc.message, err.Error())
			}
			if len(tbl.Registered()) != 0 {
				t.Error("Rejected mix must not be installed")
			}
		})
	}
}

func TestRegister_EmptySet(t *testing.T) {
	tbl := New(allReachable)
	if err := tbl.Register(nil); !audio.IsCode(err, audio.CodeBadValue) {
		t.Errorf("Expected BAD_VALUE, got %v", err)
	}
}

func TestRegister_Unreachable(t *testing.T) {
	tbl := New(func(d audio.Device, loopback bool) bool { return false })
	err := tbl.Register([]Mix{loopbackMix("a")})
	if !audio.IsCode(err, audio.CodeInvalidOperation) {
		t.Fatalf("Expected INVALID_OPERATION, got %v", err)
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("Unexpected error text: %v", err)
	}
}

func TestRegister_AtomicRollback(t *testing.T) {
	tbl := New(allReachable)
	good := loopbackMix("a")
	bad := Mix{Type: MixTypePlayers} // no route flags

	if err := tbl.Register([]Mix{good, bad}); err == nil {
		t.Fatal("Expected set registration to fail")
	}
	if got := len(tbl.Registered()); got != 0 {
		t.Errorf("Expected empty table after failed set, got %d mixes", got)
	}

	// A valid set still installs afterwards.
	if err := tbl.Register([]Mix{good}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if got := len(tbl.Registered()); got != 1 {
		t.Errorf("Expected 1 mix, got %d", got)
	}
}

func TestRegister_DuplicateIdentity(t *testing.T) {
	tbl := New(allReachable)
	m := loopbackMix("a")
	if err := tbl.Register([]Mix{m}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	err := tbl.Register([]Mix{m})
	if !audio.IsCode(err, audio.CodeInvalidOperation) {
		t.Fatalf("Expected INVALID_OPERATION, got %v", err)
	}
	if !strings.Contains(err.Error(), "already registered") {
		t.Errorf("Unexpected error text: %v", err)
	}

	// Duplicate inside a single set is also rejected.
	tbl2 := New(allReachable)
	if err := tbl2.Register([]Mix{m, m}); err == nil {
		t.Fatal("Expected duplicate-in-set rejection")
	}
}

func TestUnregister(t *testing.T) {
	tbl := New(allReachable)
	a := loopbackMix("a")
	b := loopbackMix("b")
	if err := tbl.Register([]Mix{a, b}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	removed, err := tbl.Unregister([]Mix{a})
	if err != nil {
		t.Fatalf("Unregister failed: %v", err)
	}
	if len(removed) != 1 || removed[0].Device.Address != "a" {
		t.Errorf("Removed = %v", removed)
	}
	if got := len(tbl.Registered()); got != 1 {
		t.Errorf("Expected 1 remaining mix, got %d", got)
	}

	if _, err := tbl.Unregister([]Mix{a}); !audio.IsCode(err, audio.CodeInvalidOperation) {
		t.Errorf("Expected INVALID_OPERATION for unknown mix, got %v", err)
	}
}

func TestMatchOutput_Criteria(t *testing.T) {
	tbl := New(allReachable)
	byUsage := Mix{
		Type:       MixTypePlayers,
		RouteFlags: RouteFlagLoopBack,
		Device:     audio.Device{Type: audio.DeviceOutRemoteSubmix, Address: "usage"},
		Criteria:   []Criterion{{Field: FieldUsage, Usage: audio.UsageMedia}},
	}
	byUID := Mix{
		Type:       MixTypePlayers,
		RouteFlags: RouteFlagRender,
		Device:     audio.Device{Type: audio.DeviceOutSpeaker},
		Criteria:   []Criterion{{Field: FieldUID, UID: 1000}},
	}
	notUID := Mix{
		Type:       MixTypePlayers,
		RouteFlags: RouteFlagLoopBack,
		Device:     audio.Device{Type: audio.DeviceOutRemoteSubmix, Address: "notuid"},
		Criteria:   []Criterion{{Field: FieldUID, UID: 2000, Exclude: true}},
	}
	if err := tbl.Register([]Mix{byUsage, byUID, notUID}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got := tbl.MatchOutput(Request{Attributes: audio.Attributes{Usage: audio.UsageMedia}, UID: 42})
	if got == nil || got.Device.Address != "usage" {
		t.Fatalf("Expected usage mix, got %v", got)
	}

	// First match by registration order: the UID mix wins for uid 1000
	// with a non-media usage.
	got = tbl.MatchOutput(Request{Attributes: audio.Attributes{Usage: audio.UsageGame}, UID: 1000})
	if got == nil || got.Device.Type != audio.DeviceOutSpeaker {
		t.Fatalf("Expected uid mix, got %v", got)
	}

	// Excluded uid falls past the exclusion mix to nothing.
	got = tbl.MatchOutput(Request{Attributes: audio.Attributes{Usage: audio.UsageGame}, UID: 2000})
	if got != nil {
		t.Fatalf("Expected no match for excluded uid, got %v", got)
	}

	// Any other uid matches the exclusion mix.
	got = tbl.MatchOutput(Request{Attributes: audio.Attributes{Usage: audio.UsageGame}, UID: 3000})
	if got == nil || got.Device.Address != "notuid" {
		t.Fatalf("Expected exclusion mix, got %v", got)
	}
}

func TestMatchOutput_AddressTag(t *testing.T) {
	tbl := New(allReachable)
	m := loopbackMix("cast")
	if err := tbl.Register([]Mix{m}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// The tag bypasses criteria entirely.
	req := Request{Attributes: audio.Attributes{
		Usage: audio.UsageGame,
		Tags:  "addr=cast",
	}}
	got := tbl.MatchOutput(req)
	if got == nil || got.Device.Address != "cast" {
		t.Fatalf("Expected tagged loopback mix, got %v", got)
	}

	req.Attributes.Tags = "addr=other"
	if got := tbl.MatchOutput(req); got != nil {
		t.Fatalf("Expected no match for unknown address, got %v", got)
	}
}

func TestMatchInput(t *testing.T) {
	tbl := New(allReachable)
	rec := Mix{
		Type:       MixTypeRecorders,
		RouteFlags: RouteFlagLoopBack,
		Device:     audio.Device{Type: audio.DeviceOutRemoteSubmix, Address: "rec"},
		Criteria:   []Criterion{{Field: FieldSource, Source: audio.SourceMic}},
	}
	play := loopbackMix("play")
	if err := tbl.Register([]Mix{rec, play}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got := tbl.MatchInput(Request{Attributes: audio.Attributes{Source: audio.SourceMic}})
	if got == nil || got.Device.Address != "rec" {
		t.Fatalf("Expected recorder mix, got %v", got)
	}
	if got := tbl.MatchInput(Request{Attributes: audio.Attributes{Source: audio.SourceCamcorder}}); got != nil {
		t.Fatalf("Expected no match for camcorder, got %v", got)
	}
	// Usage criteria never match capture requests.
	if got := tbl.MatchInput(Request{Attributes: audio.Attributes{Usage: audio.UsageMedia}}); got != nil {
		t.Fatalf("PLAYERS mix must not match input, got %v", got)
	}
}

func TestMixOrder(t *testing.T) {
	tbl := New(allReachable)
	if err := tbl.Register([]Mix{loopbackMix("a")}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := tbl.Register([]Mix{loopbackMix("b")}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	mixes := tbl.Registered()
	if mixes[0].Order() >= mixes[1].Order() {
		t.Errorf("Registration order not monotonic: %d then %d", mixes[0].Order(), mixes[1].Order())
	}
}
