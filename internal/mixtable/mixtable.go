// Package mixtable holds registered dynamic audio policy mixes and
// matches client requests against their criteria.
package mixtable

import (
	"fmt"
	"sync"

	"github.com/soundcore/audiopolicyd/internal/audio"
)

// MixType states which kind of clients a mix captures or reroutes.
type MixType int

const (
	MixTypePlayers MixType = iota
	MixTypeRecorders
)

func (t MixType) String() string {
	if t == MixTypeRecorders {
		return "RECORDERS"
	}
	return "PLAYERS"
}

// RouteFlags state what happens to matched streams.
type RouteFlags int

const (
	RouteFlagRender   RouteFlags = 1 << iota // play on the mix device
	RouteFlagLoopBack                        // capture through remote submix
)

// RouteFlagLoopBackAndRender both renders and loops back.
const RouteFlagLoopBackAndRender = RouteFlagRender | RouteFlagLoopBack

func (f RouteFlags) String() string {
	switch f {
	case RouteFlagRender:
		return "RENDER"
	case RouteFlagLoopBack:
		return "LOOP_BACK"
	case RouteFlagLoopBackAndRender:
		return "LOOP_BACK_AND_RENDER"
	}
	return fmt.Sprintf("ROUTE_FLAGS(%d)", int(f))
}

// Field is the attribute a criterion tests.
type Field int

const (
	FieldUsage Field = iota
	FieldSource
	FieldUID
	FieldUserID
	FieldSession
)

func (f Field) String() string {
	switch f {
	case FieldUsage:
		return "USAGE"
	case FieldSource:
		return "SOURCE"
	case FieldUID:
		return "UID"
	case FieldUserID:
		return "USERID"
	case FieldSession:
		return "SESSION_ID"
	}
	return fmt.Sprintf("FIELD(%d)", int(f))
}

// Criterion is one match rule. Exclude inverts it. Only the value field
// matching Field is meaningful.
type Criterion struct {
	Field   Field
	Exclude bool

	Usage   audio.Usage
	Source  audio.Source
	UID     audio.UID
	UserID  audio.UserID
	Session audio.Session
}

// Request carries the client identity a mix is matched against.
type Request struct {
	Attributes audio.Attributes
	UID        audio.UID
	UserID     audio.UserID
	Session    audio.Session
}

// Mix is a registered dynamic policy mix.
type Mix struct {
	Criteria   []Criterion
	Type       MixType
	RouteFlags RouteFlags
	// Device is the render target (RENDER) or the remote submix pair
	// address (LOOP_BACK).
	Device audio.Device
	Format audio.Config

	// order is the registration sequence used for first-match-wins.
	order int
}

// Order returns the registration sequence number.
func (m *Mix) Order() int { return m.order }

func (m *Mix) String() string {
	return fmt.Sprintf("mix{%s %s -> %s, %d criteria}", m.Type, m.RouteFlags, m.Device, len(m.Criteria))
}

// Reachability is the configuration question the table asks during
// registration: can the target device be reached from a suitable mix
// port.
type Reachability func(device audio.Device, loopback bool) bool

// Table is the registered mix set. All methods are safe for concurrent
// use.
type Table struct {
	mu    sync.RWMutex
	mixes []*Mix
	next  int
	reach Reachability
}

// New creates an empty table using the given reachability check.
func New(reach Reachability) *Table {
	return &Table{reach: reach}
}

// Register validates and installs a set of mixes atomically: when any
// mix is rejected none of the set is installed and prior registrations
// are untouched.
func (t *Table) Register(mixes []Mix) error {
	if len(mixes) == 0 {
		return audio.Errorf(audio.CodeBadValue, "empty mix set")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	staged := make([]*Mix, 0, len(mixes))
	for i := range mixes {
		m := mixes[i]
		if err := t.validateLocked(&m, staged); err != nil {
			return err
		}
		staged = append(staged, &m)
	}
	for _, m := range staged {
		m.order = t.next
		t.next++
		t.mixes = append(t.mixes, m)
	}
	return nil
}

func (t *Table) validateLocked(m *Mix, staged []*Mix) error {
	if m.RouteFlags&RouteFlagLoopBackAndRender == 0 {
		return audio.Errorf(audio.CodeBadValue, "mix has no route flags")
	}
	if m.RouteFlags == RouteFlagLoopBackAndRender && m.Type != MixTypePlayers {
		return audio.Errorf(audio.CodeInvalidOperation,
			"LOOP_BACK_AND_RENDER requires MIX_TYPE_PLAYERS")
	}
	if err := validateCriteria(m.Criteria); err != nil {
		return err
	}
	if t.reach != nil && !t.reach(m.Device, m.RouteFlags&RouteFlagLoopBack != 0) {
		return audio.Errorf(audio.CodeInvalidOperation,
			"mix device %s not reachable in configuration", m.Device)
	}
	for _, other := range t.mixes {
		if sameMixIdentity(other, m) {
			return audio.Errorf(audio.CodeInvalidOperation, "mix for %s already registered", m.Device)
		}
	}
	for _, other := range staged {
		if sameMixIdentity(other, m) {
			return audio.Errorf(audio.CodeInvalidOperation, "duplicate mix for %s in set", m.Device)
		}
	}
	return nil
}

// validateCriteria rejects sets where a field appears both as inclusive
// and exclusive.
func validateCriteria(criteria []Criterion) error {
	var include, exclude [FieldSession + 1]bool
	for _, c := range criteria {
		if c.Field < FieldUsage || c.Field > FieldSession {
			return audio.Errorf(audio.CodeBadValue, "unknown criterion field %d", c.Field)
		}
		if c.Exclude {
			exclude[c.Field] = true
		} else {
			include[c.Field] = true
		}
	}
	for f := FieldUsage; f <= FieldSession; f++ {
		if include[f] && exclude[f] {
			return audio.Errorf(audio.CodeInvalidOperation,
				"criterion %s used both as match and exclude", f)
		}
	}
	return nil
}

func sameMixIdentity(a, b *Mix) bool {
	return a.Device == b.Device && a.RouteFlags == b.RouteFlags && a.Type == b.Type
}

// Unregister removes mixes matching the given identities and returns
// the removed entries so the caller can release their routes. Unknown
// mixes are reported.
func (t *Table) Unregister(mixes []Mix) ([]*Mix, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var removed []*Mix
	for i := range mixes {
		idx := -1
		for j, m := range t.mixes {
			if sameMixIdentity(m, &mixes[i]) {
				idx = j
				break
			}
		}
		if idx < 0 {
			return removed, audio.Errorf(audio.CodeInvalidOperation,
				"mix for %s not registered", mixes[i].Device)
		}
		removed = append(removed, t.mixes[idx])
		t.mixes = append(t.mixes[:idx], t.mixes[idx+1:]...)
	}
	return removed, nil
}

// Registered returns a snapshot of the registered mixes in registration
// order.
func (t *Table) Registered() []*Mix {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Mix, len(t.mixes))
	copy(out, t.mixes)
	return out
}

// ByOrder returns the registered mix with the given sequence number,
// or nil when it was unregistered.
func (t *Table) ByOrder(order int) *Mix {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, m := range t.mixes {
		if m.order == order {
			return m
		}
	}
	return nil
}

// MatchOutput finds the first registered PLAYERS mix matching a
// playback request. A client tag "addr=<address>" forces the loopback
// mix with that address regardless of criteria.
func (t *Table) MatchOutput(req Request) *Mix {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if addr, ok := req.Attributes.TagValue("addr"); ok {
		for _, m := range t.mixes {
			if m.Type == MixTypePlayers && m.RouteFlags&RouteFlagLoopBack != 0 && m.Device.Address == addr {
				return m
			}
		}
	}
	for _, m := range t.mixes {
		if m.Type != MixTypePlayers {
			continue
		}
		if matchCriteria(m.Criteria, req, false) {
			return m
		}
	}
	return nil
}

// MatchInput finds the first registered RECORDERS mix matching a
// capture request.
func (t *Table) MatchInput(req Request) *Mix {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, m := range t.mixes {
		if m.Type != MixTypeRecorders {
			continue
		}
		if matchCriteria(m.Criteria, req, true) {
			return m
		}
	}
	return nil
}

// matchCriteria evaluates per field: inclusive criteria on a field form
// a set the value must belong to; exclusive criteria form a set it must
// avoid. Fields without criteria are wildcards.
func matchCriteria(criteria []Criterion, req Request, input bool) bool {
	type fieldState struct {
		hasInclude bool
		included   bool
		excluded   bool
	}
	var state [FieldSession + 1]fieldState
	for _, c := range criteria {
		hit := criterionValueMatches(c, req, input)
		fs := &state[c.Field]
		if c.Exclude {
			if hit {
				fs.excluded = true
			}
		} else {
			fs.hasInclude = true
			if hit {
				fs.included = true
			}
		}
	}
	for f := FieldUsage; f <= FieldSession; f++ {
		fs := state[f]
		if fs.excluded {
			return false
		}
		if fs.hasInclude && !fs.included {
			return false
		}
	}
	return true
}

func criterionValueMatches(c Criterion, req Request, input bool) bool {
	switch c.Field {
	case FieldUsage:
		return !input && c.Usage == req.Attributes.Usage
	case FieldSource:
		return input && c.Source == req.Attributes.Source
	case FieldUID:
		return c.UID == req.UID
	case FieldUserID:
		return c.UserID == req.UserID
	case FieldSession:
		return c.Session == req.Session
	}
	return false
}
