// Package deltaframe implements the per-frame-slot ring buffer: one saved
// simulation state plus per-player real/simulated/local input, addressed by
// slot index so the sync engine can roll back to any still-live slot.
package deltaframe

import (
	"hash/crc32"

	"github.com/maxpoletaev/netplay/internal/ring"
	"github.com/maxpoletaev/netplay/internal/wire"
)

const MaxPlayers = wire.MaxPlayers

// PlayerSet is a bitset over logical player indices 0..15.
type PlayerSet uint32

func (s PlayerSet) Has(p int) bool   { return s&(1<<uint(p)) != 0 }
func (s *PlayerSet) Add(p int)       { *s |= 1 << uint(p) }
func (s *PlayerSet) Remove(p int)    { *s &^= 1 << uint(p) }
func (s PlayerSet) Count() int {
	n := 0
	for p := 0; p < MaxPlayers; p++ {
		if s.Has(p) {
			n++
		}
	}
	return n
}

// Frame is one slot of the ring: a saved core state plus the real,
// simulated, and local input known for that frame so far. A slot's "missing
// input" state is represented by HaveReal[p] == false, never by a sentinel
// input value (spec.md §9) — simulated input is semantically distinct from
// zero input.
type Frame struct {
	Used  bool
	Frame uint32

	State []byte

	RealInput      [MaxPlayers]wire.Input
	SimulatedInput [MaxPlayers]wire.Input
	HaveReal       [MaxPlayers]bool

	SelfState wire.Input
	HaveLocal bool

	// CRC is a peer-reported CRC that arrived before resimulation reached
	// this frame (nil means "nothing parked"). It is only stored; nothing
	// compares it once resimulation reaches the frame.
	CRC *uint32
}

// SaveFunc serializes the current core state into dst, returning false only
// when the core transiently cannot serialize yet (e.g. quirk
// INITIALIZATION before state size is known).
type SaveFunc func(dst *[]byte) (bool, error)

// Ring is the B = 2*D+1 slot window described in spec.md §3/§4.3.
type Ring struct {
	buf         *ring.Buffer[*Frame]
	delayFrames uint32
}

// NewRing allocates a ring sized for the given delay-frame budget. Per
// spec.md §9's open question, delayFrames == 0 degenerates to a
// single-slot, rollback-impossible ring; this is accepted as a silently
// lossy but still-correct configuration rather than rejected outright.
func NewRing(delayFrames uint32) *Ring {
	size := int(2*delayFrames + 1)

	buf := ring.New[*Frame](size)
	for i := 0; i < size; i++ {
		buf.Set(i, &Frame{})
	}

	return &Ring{buf: buf, delayFrames: delayFrames}
}

func (r *Ring) Size() int       { return r.buf.Cap() }
func (r *Ring) Next(i int) int  { return r.buf.Next(i) }
func (r *Ring) Prev(i int) int  { return r.buf.Prev(i) }
func (r *Ring) At(i int) *Frame { return r.buf.At(i) }

// Ready lazily (re)initializes slot ptr for frameNo, saving the core state
// into it. If the slot already holds frameNo, this is a cheap no-op — a
// frame is only (re)initialized the first time self_ptr reaches it, or when
// the ring has wrapped and the slot is being reused for a new frame.
func (r *Ring) Ready(ptr int, frameNo uint32, save SaveFunc) (bool, error) {
	f := r.buf.At(ptr)

	if f.Used && f.Frame == frameNo {
		return true, nil
	}

	f.Used = true
	f.Frame = frameNo
	f.HaveReal = [MaxPlayers]bool{}
	f.HaveLocal = false
	f.CRC = nil

	ok, err := save(&f.State)
	if err != nil {
		return false, err
	}

	return ok, nil
}

// CRC computes a deterministic hash over the self-state plus the real input
// of every player in connected, in increasing player-index order.
func CRC(f *Frame, connected PlayerSet) uint32 {
	h := crc32.NewIEEE()

	for _, w := range f.SelfState {
		writeU32(h, w)
	}

	for p := 0; p < MaxPlayers; p++ {
		if !connected.Has(p) {
			continue
		}
		for _, w := range f.RealInput[p] {
			writeU32(h, w)
		}
	}

	return h.Sum32()
}

func writeU32(h interface{ Write([]byte) (int, error) }, v uint32) {
	_, _ = h.Write([]byte{
		byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v),
	})
}
