package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/maxpoletaev/netplay/internal/deltaframe"
	"github.com/maxpoletaev/netplay/internal/wire"
)

// PreFrame ensures the current frame's slot is ready and records the local
// player's captured input into it (spec.md §4.4 step 1). local is ignored
// if the local participant isn't currently playing.
func (e *Engine) PreFrame(local Input) error {
	ok, err := e.buffer.Ready(e.selfPtr, e.selfFrameCount, e.saveFunc)
	if err != nil {
		return fmt.Errorf("engine: pre_frame: %w", err)
	}
	if !ok {
		// Transient: core can't serialize yet (quirk Initialization).
		return nil
	}

	f := e.buffer.At(e.selfPtr)

	if e.selfMode == ModePlaying {
		f.SelfState = local
		f.HaveLocal = true
	}

	return nil
}

// PostFrame drains the network, stalls if the network has fallen too far
// behind, simulates and steps one frame, handles any pending rollback, and
// performs periodic CRC auditing (spec.md §4.4 steps 2-6).
func (e *Engine) PostFrame() error {
	if err := e.pollNetInput(false); err != nil {
		return err
	}

	if err := e.stallUntilReady(); err != nil {
		return err
	}

	if err := e.advanceOneFrame(false); err != nil {
		return err
	}

	if err := e.sendCurInputAll(); err != nil {
		return err
	}

	if e.forceRewind {
		if err := e.rewindAndResimulate(); err != nil {
			return err
		}
	}

	if err := e.auditCRC(); err != nil {
		return err
	}

	return nil
}

// stallThreshold returns the self_frame_count - D used to decide whether
// the network has fallen behind far enough to require a stall (spec.md
// §4.4 step 3), saturating at 0 instead of underflowing.
func (e *Engine) stallThreshold() uint32 {
	if e.selfFrameCount < e.cfg.DelayFrames {
		return 0
	}
	return e.selfFrameCount - e.cfg.DelayFrames
}

func (e *Engine) stallUntilReady() error {
	e.updateUnreadPtr()

	retries := 0

	for e.unreadFrameCount <= e.stallThreshold() {
		if e.metrics != nil {
			e.metrics.ObserveStall()
		}

		if err := e.pollNetInput(true); err != nil {
			return err
		}

		e.updateUnreadPtr()
		if e.unreadFrameCount > e.stallThreshold() {
			break
		}

		retries++
		if retries > MaxRetries {
			if e.remotePaused {
				retries = 0
				continue
			}
			return fmt.Errorf("engine: stall exhausted after %d retries at frame %d", MaxRetries, e.selfFrameCount)
		}

		time.Sleep(RetryInterval)
	}

	return nil
}

// updateUnreadPtr recomputes unread_ptr/unread_frame_count as the minimum
// read_frame_count over every connected player, additionally lower-bounded
// by server_frame_count on clients with no connected players (spec.md
// §4.4 step 3).
func (e *Engine) updateUnreadPtr() {
	if e.cfg.Role == RoleServer && e.connectedPlayers == 0 {
		e.unreadPtr = e.selfPtr
		e.unreadFrameCount = e.selfFrameCount
		return
	}

	newPtr := 0
	newCount := uint32(math.MaxUint32)

	for p := 0; p < maxPlayers; p++ {
		if !e.connectedPlayers.Has(p) {
			continue
		}
		if e.readFrameCount[p] < newCount {
			newCount = e.readFrameCount[p]
			newPtr = e.readPtr[p]
		}
	}

	if e.cfg.Role == RoleClient && e.serverFrameCount < newCount {
		newCount = e.serverFrameCount
		newPtr = e.serverPtr
	}

	e.unreadPtr = newPtr
	e.unreadFrameCount = newCount
}

// simulateFrame fills in predicted input for every connected player that
// doesn't yet have real input for ptr. On a fresh simulation the whole
// input word triple is copied from the player's last known real input; on
// a resimulation pass only the direction bits are refreshed, since input
// duration is already correct in the predicted stream but press count is
// not — carrying over button presses during rollback causes audible
// re-triggering (spec.md §4.4 step 4).
func (e *Engine) simulateFrame(ptr int, resim bool) {
	f := e.buffer.At(ptr)

	for p := 0; p < maxPlayers; p++ {
		if !e.connectedPlayers.Has(p) || f.HaveReal[p] {
			continue
		}

		prev := e.buffer.Prev(e.readPtr[p])
		pframe := e.buffer.At(prev)

		if resim {
			kept := f.SimulatedInput[p][0] &^ directionMask
			kept |= pframe.RealInput[p][0] & directionMask
			f.SimulatedInput[p][0] = kept
		} else {
			f.SimulatedInput[p] = pframe.RealInput[p]
		}
	}
}

func (e *Engine) advanceOneFrame(resim bool) error {
	e.simulateFrame(e.selfPtr, resim)

	if err := e.core.Step(); err != nil {
		return fmt.Errorf("engine: core step failed: %w", err)
	}

	e.selfPtr = e.buffer.Next(e.selfPtr)
	e.selfFrameCount++

	ok, err := e.buffer.Ready(e.selfPtr, e.selfFrameCount, e.saveFunc)
	if err != nil {
		return fmt.Errorf("engine: ready after advance: %w", err)
	}
	_ = ok // transient failures surface again on the next PreFrame

	return nil
}

// frameFullyReal reports whether every connected player has real (not
// simulated) input at ptr.
func (e *Engine) frameFullyReal(ptr int) bool {
	f := e.buffer.At(ptr)

	for p := 0; p < maxPlayers; p++ {
		if e.connectedPlayers.Has(p) && !f.HaveReal[p] {
			return false
		}
	}

	return true
}

// rewindAndResimulate restores the other_ptr checkpoint into the core and
// replays forward to the frame we were at before the rewind was requested,
// substituting real input where it has since arrived. other_ptr then
// advances forward once per frame whose input turned out to be fully real;
// the first still-simulated frame leaves it pinned (spec.md §4.4 step 5,
// the Rewind invariant).
func (e *Engine) rewindAndResimulate() error {
	target := e.selfFrameCount

	e.isReplay = true
	e.replayPtr = e.selfPtr
	e.replayFrameCount = e.selfFrameCount

	e.selfPtr = e.otherPtr
	e.selfFrameCount = e.otherFrameCount

	if err := e.core.Deserialize(e.buffer.At(e.selfPtr).State); err != nil {
		e.isReplay = false
		return fmt.Errorf("engine: rewind deserialize failed: %w", err)
	}

	e.forceRewind = false

	if e.metrics != nil {
		e.metrics.ObserveRollback(target - e.selfFrameCount)
	}

	stillAdvancing := true

	for e.selfFrameCount < target {
		priorPtr := e.selfPtr

		if err := e.advanceOneFrame(true); err != nil {
			e.isReplay = false
			return err
		}

		if stillAdvancing {
			if e.frameFullyReal(priorPtr) {
				e.otherPtr = e.selfPtr
				e.otherFrameCount = e.selfFrameCount
			} else {
				stillAdvancing = false
			}
		}
	}

	e.isReplay = false

	if e.selfFrameCount != target {
		return fmt.Errorf("engine: rewind ended at frame %d, expected %d", e.selfFrameCount, target)
	}

	return nil
}

// auditCRC emits a CRC for the just-completed frame to every connection
// every check_frames frames (spec.md §4.4 step 6).
func (e *Engine) auditCRC() error {
	if e.cfg.CheckFrames == 0 || e.selfFrameCount%e.cfg.CheckFrames != 0 {
		return nil
	}

	crc := deltaframe.CRC(e.buffer.At(e.selfPtr), e.connectedPlayers)
	payload := wire.EncodeTwoU32(e.selfFrameCount, crc)

	for _, c := range e.connections {
		if !c.active || !c.mode.connected() {
			continue
		}
		if err := c.sendRaw(wire.CmdCRC, payload); err != nil {
			e.hangup(c, err)
		}
	}

	return nil
}

// FlipPort reports whether ports 0 and 1 should currently be swapped,
// honoring the replay shadow pointers while mid-rewind (spec.md §4.6.2
// FLIP_PLAYERS, supplemented feature #5 in SPEC_FULL.md).
func (e *Engine) FlipPort() bool {
	if e.flipFrame == 0 {
		return false
	}

	frame := e.selfFrameCount
	if e.isReplay {
		frame = e.replayFrameCount
	}

	return e.flip != (frame < e.flipFrame)
}
