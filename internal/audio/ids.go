package audio

// Process-unique identifiers allocated by the policy manager. The zero
// value of every handle type means "none".
type (
	// PortID identifies a port, a port config, or a client record.
	PortID int32
	// PatchID identifies an active audio patch.
	PatchID int32
	// IOHandle identifies an opened output or input stream.
	IOHandle int32
	// ModuleHandle identifies a loaded hardware module.
	ModuleHandle int32
)

// StrategyID identifies a product strategy. Built-in strategies have ids
// below the vendor range.
type StrategyID int32

// Session groups clients that share routing and effects.
type Session int32

// SessionNone matches any session in mix criteria.
const SessionNone Session = 0

// UID is the client's numeric user id as reported by the platform.
type UID int32

// UserID is the platform multi-user identifier (not a uid).
type UserID int32
