package engine

import "github.com/maxpoletaev/netplay/internal/wire"

// Input is the per-player, per-frame payload: word 0 holds digital buttons
// (including the four directions), words 1-2 hold two analog-stick pairs.
type Input = wire.Input

// Digital button bits within Input[0], following the libretro joypad-ID
// convention (RETRO_DEVICE_ID_JOYPAD_*) so a real core's bit layout can be
// passed through unmodified.
const (
	ButtonB      = 1 << 0
	ButtonY      = 1 << 1
	ButtonSelect = 1 << 2
	ButtonStart  = 1 << 3
	ButtonUp     = 1 << 4
	ButtonDown   = 1 << 5
	ButtonLeft   = 1 << 6
	ButtonRight  = 1 << 7
	ButtonA      = 1 << 8
	ButtonX      = 1 << 9
	ButtonL      = 1 << 10
	ButtonR      = 1 << 11
)

// directionMask is the set of bits a resimulation pass is allowed to
// refresh from newly-arrived real input; every other bit keeps the value
// already predicted. See Engine.simulateFrame for the rationale (spec.md
// §4.4 step 4).
const directionMask = ButtonUp | ButtonDown | ButtonLeft | ButtonRight
