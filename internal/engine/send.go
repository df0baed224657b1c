package engine

import "github.com/maxpoletaev/netplay/internal/wire"

// broadcastExcept sends a raw command to every connected peer other than
// except (typically the connection a relayed command came from).
func (e *Engine) broadcastExcept(except *Connection, cmd wire.Command, payload []byte) {
	for _, c := range e.connections {
		if c == except || !c.active || !c.mode.connected() {
			continue
		}
		if err := c.sendRaw(cmd, payload); err != nil {
			e.hangup(c, err)
		}
	}
}

// sendInputFrame sends an INPUT command either to a single connection
// (only != nil) or to every connected peer except except, skipping a
// player's own connection so it never receives its own input echoed back
// (spec.md's send_input_frame).
func (e *Engine) sendInputFrame(only, except *Connection, frame, player uint32, state Input) {
	payload := wire.EncodeInput(frame, player, state)

	if only != nil {
		if err := only.sendRaw(wire.CmdInput, payload); err != nil {
			e.hangup(only, err)
		}
		return
	}

	for _, c := range e.connections {
		if c == except || !c.active || !c.mode.connected() {
			continue
		}
		if c.mode == ModePlaying && uint32(c.player) == player {
			continue
		}
		if err := c.sendRaw(wire.CmdInput, payload); err != nil {
			e.hangup(c, err)
		}
	}
}

// sendCurInput transmits the local participant's view of the current
// frame to one connection: on the server, every other player's already-
// known real input (or NOINPUT if the server itself isn't playing), then,
// if playing, the local player's own input (spec.md §4.6.1).
func (e *Engine) sendCurInput(c *Connection) error {
	f := e.buffer.At(e.selfPtr)

	if e.cfg.Role == RoleServer {
		for p := 0; p < maxPlayers; p++ {
			if c.mode == ModePlaying && uint32(c.player) == uint32(p) {
				continue
			}
			if !e.connectedPlayers.Has(p) {
				continue
			}
			if f.HaveReal[p] {
				e.sendInputFrame(c, nil, e.selfFrameCount, uint32(p), f.RealInput[p])
			}
		}

		if e.selfMode != ModePlaying {
			if err := c.sendRaw(wire.CmdNoInput, wire.EncodeU32(e.selfFrameCount)); err != nil {
				return err
			}
		}
	}

	if e.selfMode == ModePlaying {
		flags := uint32(e.selfPlayer)
		if e.cfg.Role == RoleServer {
			flags |= wire.InputBitServer
		}
		e.sendInputFrame(c, nil, e.selfFrameCount, flags, f.SelfState)
	}

	return c.sb.Flush(false)
}

// sendCurInputAll calls sendCurInput for every connected peer, used once
// per frame after advancing (spec.md §4.4 step 5).
func (e *Engine) sendCurInputAll() error {
	for _, c := range e.connections {
		if !c.active || !c.mode.connected() {
			continue
		}
		if err := e.sendCurInput(c); err != nil {
			e.hangup(c, err)
		}
	}
	return nil
}
