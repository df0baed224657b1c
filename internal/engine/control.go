package engine

import (
	"fmt"

	"github.com/maxpoletaev/netplay/internal/wire"
)

// Play asks the server to promote this connection from SPECTATING to an
// active player slot (client only; spec.md §4.5/§4.6.2 PLAY). The server
// arbitrates the actual slot assignment in cmdPlay; the reply arrives as a
// MODE command.
func (e *Engine) Play() error {
	if e.cfg.Role != RoleClient {
		return wire.NewProtocolError(wire.CmdPlay, "only a client may request PLAY")
	}
	if len(e.connections) == 0 || !e.connections[0].active {
		return fmt.Errorf("engine: not connected to a server")
	}

	return e.connections[0].sendRaw(wire.CmdPlay, nil)
}

// Spectate asks the server to demote this connection from PLAYING back to
// SPECTATING (client only; spec.md §4.6.2 SPECTATE).
func (e *Engine) Spectate() error {
	if e.cfg.Role != RoleClient {
		return wire.NewProtocolError(wire.CmdSpectate, "only a client may request SPECTATE")
	}
	if len(e.connections) == 0 || !e.connections[0].active {
		return fmt.Errorf("engine: not connected to a server")
	}

	return e.connections[0].sendRaw(wire.CmdSpectate, nil)
}

// FlipPlayers requests that ports 0 and 1 swap from the current frame
// onward. It is only meaningful for the server, which is the sole issuer
// of FLIP_PLAYERS (spec.md §4.6.2).
func (e *Engine) FlipPlayers() error {
	if e.cfg.Role != RoleServer {
		return wire.NewProtocolError(wire.CmdFlipPlayers, "only the server may flip players")
	}

	e.flip = !e.flip
	e.flipFrame = e.selfFrameCount

	payload := wire.EncodeU32(e.selfFrameCount)
	for _, c := range e.connections {
		if !c.active || !c.mode.connected() {
			continue
		}
		if err := c.sendRaw(wire.CmdFlipPlayers, payload); err != nil {
			e.hangup(c, err)
		}
	}

	return nil
}

// Pause marks the local participant as paused and tells every connected
// peer, exempting them from MaxRetries stall exhaustion until Resume.
func (e *Engine) Pause() error {
	e.localPaused = true

	for _, c := range e.connections {
		if !c.active || !c.mode.connected() {
			continue
		}
		if err := c.sendRaw(wire.CmdPause, []byte(e.cfg.Nick)); err != nil {
			e.hangup(c, err)
		}
	}

	return nil
}

// Resume reverses a prior Pause.
func (e *Engine) Resume() error {
	e.localPaused = false

	for _, c := range e.connections {
		if !c.active || !c.mode.connected() {
			continue
		}
		if err := c.sendRaw(wire.CmdResume, []byte(e.cfg.Nick)); err != nil {
			e.hangup(c, err)
		}
	}

	return nil
}

// RequestSavestate asks every connected peer for a fresh savestate (the
// client-initiated repair path of spec.md §4.7).
func (e *Engine) RequestSavestate() error {
	if e.savestateRequestOutstanding {
		return nil
	}
	e.savestateRequestOutstanding = true

	for _, c := range e.connections {
		if !c.active || !c.mode.connected() {
			continue
		}
		if err := c.sendRaw(wire.CmdRequestSavestate, nil); err != nil {
			e.hangup(c, err)
		}
	}

	return nil
}

// Disconnect tells every peer we're leaving and closes every connection.
func (e *Engine) Disconnect() error {
	for _, c := range e.connections {
		if !c.active {
			continue
		}
		_ = c.sendRaw(wire.CmdDisconnect, nil)
		e.hangup(c, nil)
	}

	return nil
}
