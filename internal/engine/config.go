package engine

import "time"

// Role distinguishes the hub (server) from a spoke (client) in the star
// topology (spec.md §1).
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// Quirks describes nonstandard behavior of the emulated core that
// constrains the engine (spec.md §6).
type Quirks uint64

const (
	QuirkNoSavestates Quirks = 1 << iota
	QuirkInitialization
	QuirkEndianDependent
	QuirkPlatformDependent
	QuirkNoTransmission
)

func (q Quirks) Has(bit Quirks) bool { return q&bit != 0 }

// MaxRetries and RetryInterval bound the stall loop (spec.md §4.4 step 3,
// §5): MaxRetries consecutive stalls of up to RetryInterval each, beyond
// which the session is fatally stalled unless a peer holds PAUSE.
const (
	MaxRetries    = 16
	RetryInterval = 500 * time.Millisecond
)

// Config holds the session-wide parameters fixed at construction time.
type Config struct {
	Role Role

	Nick     string // ≤32 bytes
	Password string // ≤128 bytes

	DelayFrames uint32 // D
	CheckFrames uint32 // C, 0 disables CRC auditing

	Quirks Quirks

	NATTraversal bool // server only; actual traversal is an external collaborator
}
