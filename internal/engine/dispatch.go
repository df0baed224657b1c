package engine

import (
	"errors"
	"fmt"

	"github.com/maxpoletaev/netplay/internal/deltaframe"
	"github.com/maxpoletaev/netplay/internal/wire"
)

var errPeerDisconnected = errors.New("engine: peer sent DISCONNECT")

// handleCommand dispatches one fully-decoded command for an already-
// connected (SPECTATING or PLAYING) peer (spec.md §4.6.2).
func (e *Engine) handleCommand(c *Connection, cmd wire.Command, payload []byte) error {
	switch cmd {
	case wire.CmdACK:
		return nil
	case wire.CmdNAK:
		return fmt.Errorf("engine: peer sent NAK")
	case wire.CmdDisconnect:
		e.hangup(c, nil)
		return errPeerDisconnected
	case wire.CmdInput:
		return e.cmdInput(c, payload)
	case wire.CmdNoInput:
		return e.cmdNoInput(payload)
	case wire.CmdFlipPlayers:
		return e.cmdFlipPlayers(payload)
	case wire.CmdSpectate:
		return e.cmdSpectate(c)
	case wire.CmdPlay:
		return e.cmdPlay(c)
	case wire.CmdMode:
		return e.cmdMode(c, payload)
	case wire.CmdCRC:
		return e.cmdCRC(c, payload)
	case wire.CmdRequestSavestate:
		return e.cmdRequestSavestate(c)
	case wire.CmdLoadSavestate:
		return e.cmdLoadSavestate(c, payload)
	case wire.CmdPause:
		return e.cmdPause(c)
	case wire.CmdResume:
		return e.cmdResume(c)
	default:
		return wire.NewProtocolError(cmd, "unknown command")
	}
}

// findFrame searches the ring backward from self_ptr for a used slot
// holding frame, as CRC auditing does (spec.md §4.6.2 CRC).
func (e *Engine) findFrame(frame uint32) (int, bool) {
	ptr := e.selfPtr

	for i := 0; i < e.buffer.Size(); i++ {
		f := e.buffer.At(ptr)
		if f.Used && f.Frame == frame {
			return ptr, true
		}
		ptr = e.buffer.Prev(ptr)
	}

	return 0, false
}

// cmdInput stores a player's real input for the one frame expected next
// from them (spec.md §4.6.2 INPUT). Frames older than expected are
// duplicates and silently dropped; frames newer than expected are
// out-of-order and rejected with NAK.
func (e *Engine) cmdInput(c *Connection, payload []byte) error {
	if len(payload) != wire.InputPayloadSize {
		return wire.NewProtocolError(wire.CmdInput, "bad payload size")
	}

	frame, playerOrFlags, state := wire.DecodeInput(payload)

	var player int
	var fromServer bool

	if e.cfg.Role == RoleServer {
		if c.mode != ModePlaying {
			return wire.NewProtocolError(wire.CmdInput, "input from non-playing connection")
		}
		player = c.player
	} else {
		fromServer = playerOrFlags&wire.InputBitServer != 0
		player = int(playerOrFlags &^ wire.InputBitServer)
	}

	if player < 0 || player >= maxPlayers || !e.connectedPlayers.Has(player) {
		return wire.NewProtocolError(wire.CmdInput, "player not connected")
	}

	switch {
	case frame < e.readFrameCount[player]:
		return nil // duplicate, already have it
	case frame > e.readFrameCount[player]:
		return wire.NewProtocolError(wire.CmdInput, "out-of-order frame")
	}

	ptr := e.readPtr[player]
	f := e.buffer.At(ptr)
	f.RealInput[player] = state
	f.HaveReal[player] = true

	e.readPtr[player] = e.buffer.Next(ptr)
	e.readFrameCount[player]++

	if e.cfg.Role == RoleServer && frame <= e.selfFrameCount {
		e.sendInputFrame(nil, c, frame, uint32(player), state)
	}

	if e.cfg.Role == RoleClient && fromServer {
		e.serverPtr = e.buffer.Next(e.serverPtr)
		e.serverFrameCount++
	}

	return nil
}

// cmdNoInput records that the server itself isn't playing this frame
// (client only; spec.md §4.6.1/§4.6.2 NOINPUT).
func (e *Engine) cmdNoInput(payload []byte) error {
	if e.cfg.Role != RoleClient {
		return wire.NewProtocolError(wire.CmdNoInput, "NOINPUT received by server")
	}
	if len(payload) != 4 {
		return wire.NewProtocolError(wire.CmdNoInput, "bad payload size")
	}

	frame := wire.DecodeU32(payload)
	if frame != e.serverFrameCount {
		return wire.NewProtocolError(wire.CmdNoInput, "frame mismatch")
	}

	e.serverPtr = e.buffer.Next(e.serverPtr)
	e.serverFrameCount++

	return nil
}

// cmdFlipPlayers toggles which of ports 0/1 the local/remote player occupies
// from flip_frame onward, forcing a rewind if that frame has already been
// simulated locally (client only; spec.md §4.6.2 FLIP_PLAYERS).
func (e *Engine) cmdFlipPlayers(payload []byte) error {
	if e.cfg.Role != RoleClient {
		return wire.NewProtocolError(wire.CmdFlipPlayers, "FLIP_PLAYERS received by server")
	}
	if len(payload) != 4 {
		return wire.NewProtocolError(wire.CmdFlipPlayers, "bad payload size")
	}

	frame := wire.DecodeU32(payload)
	if frame < e.serverFrameCount {
		return wire.NewProtocolError(wire.CmdFlipPlayers, "flip_frame precedes server_frame_count")
	}

	e.flip = !e.flip
	e.flipFrame = frame

	if frame < e.selfFrameCount {
		e.forceRewind = true
	}

	return nil
}

// cmdSpectate demotes the requesting connection's player to a spectator
// (server only; spec.md §4.6.2 SPECTATE).
func (e *Engine) cmdSpectate(c *Connection) error {
	if e.cfg.Role != RoleServer {
		return wire.NewProtocolError(wire.CmdSpectate, "SPECTATE received by client")
	}

	player := c.player
	if player < 0 {
		player = 0
	}

	if c.mode == ModePlaying {
		e.connectedPlayers.Remove(c.player)

		e.broadcastExcept(c, wire.CmdMode, wire.EncodeTwoU32(e.readFrameCount[c.player], uint32(c.player)))

		c.mode = ModeSpectating
		c.player = -1

		if e.metrics != nil {
			e.metrics.SetConnectedPlayers(e.connectedPlayers.Count())
		}
	}

	return c.sendRaw(wire.CmdMode, wire.EncodeTwoU32(0, uint32(player)|wire.ModeBitYou))
}

// cmdPlay promotes a spectating connection to the lowest free player slot,
// NAKing only the requester if none is free (server only; spec.md §4.6.2
// PLAY, supplemented feature #3).
func (e *Engine) cmdPlay(c *Connection) error {
	if e.cfg.Role != RoleServer {
		return wire.NewProtocolError(wire.CmdPlay, "PLAY received by client")
	}
	if c.mode == ModePlaying {
		return nil
	}

	slot := -1
	for p := 0; p < maxPlayers; p++ {
		if !e.connectedPlayers.Has(p) {
			slot = p
			break
		}
	}

	if slot < 0 {
		return c.sendRaw(wire.CmdNAK, nil)
	}

	c.mode = ModePlaying
	c.player = slot
	e.connectedPlayers.Add(slot)

	e.readPtr[slot] = e.buffer.Next(e.selfPtr)
	e.readFrameCount[slot] = e.selfFrameCount + 1

	frame := e.selfFrameCount + 1
	e.broadcastExcept(c, wire.CmdMode, wire.EncodeTwoU32(frame, uint32(slot)|wire.ModeBitPlaying))

	if err := c.sendRaw(wire.CmdMode, wire.EncodeTwoU32(frame, uint32(slot)|wire.ModeBitPlaying|wire.ModeBitYou)); err != nil {
		return err
	}

	if e.metrics != nil {
		e.metrics.SetConnectedPlayers(e.connectedPlayers.Count())
	}

	return nil
}

// cmdMode applies a player-slot change announced by the server (client
// only; spec.md §4.6.2 MODE).
func (e *Engine) cmdMode(c *Connection, payload []byte) error {
	if e.cfg.Role != RoleClient {
		return wire.NewProtocolError(wire.CmdMode, "MODE received by server")
	}
	if len(payload) != 8 {
		return wire.NewProtocolError(wire.CmdMode, "bad payload size")
	}

	frame, word := wire.DecodeTwoU32(payload)
	player := int(word & wire.ModePlayerMask)
	playing := word&wire.ModeBitPlaying != 0
	isYou := word&wire.ModeBitYou != 0

	if player >= maxPlayers {
		return wire.NewProtocolError(wire.CmdMode, "player out of range")
	}

	if frame < e.selfFrameCount {
		e.forceRewind = true
	}

	if isYou {
		if playing {
			if frame != e.serverFrameCount {
				return wire.NewProtocolError(wire.CmdMode, "frame does not match server_frame_count")
			}

			e.selfMode = ModePlaying
			e.selfPlayer = player

			if frame <= e.selfFrameCount {
				ptr := e.serverPtr
				for f := frame; f <= e.selfFrameCount; f++ {
					slot := e.buffer.At(ptr)
					slot.RealInput[player] = slot.SelfState
					slot.HaveReal[player] = true
					e.sendInputFrame(nil, nil, f, uint32(player), slot.SelfState)
					ptr = e.buffer.Next(ptr)
				}
			} else {
				ptr := e.selfPtr
				for f := e.selfFrameCount; f < frame; f++ {
					slot := e.buffer.At(ptr)
					slot.SelfState = Input{}
					slot.HaveLocal = true
					ptr = e.buffer.Next(ptr)
				}
			}
		} else {
			if e.selfMode != ModeSpectating {
				return wire.NewProtocolError(wire.CmdMode, "spectate confirmation while not spectating")
			}
		}
		return nil
	}

	if playing {
		e.connectedPlayers.Add(player)
		e.readPtr[player] = e.serverPtr
		e.readFrameCount[player] = e.serverFrameCount
	} else {
		e.connectedPlayers.Remove(player)
	}

	if e.metrics != nil {
		e.metrics.SetConnectedPlayers(e.connectedPlayers.Count())
	}

	return nil
}

// cmdCRC compares a peer-reported CRC against our own for the same frame,
// if it's already been resimulated, requesting a fresh savestate from the
// sender on mismatch; otherwise the CRC is only stored in the slot's
// Frame.CRC, and no later step compares it (spec.md §4.6.2 CRC).
func (e *Engine) cmdCRC(c *Connection, payload []byte) error {
	if len(payload) != 8 {
		return wire.NewProtocolError(wire.CmdCRC, "bad payload size")
	}

	frame, remoteCRC := wire.DecodeTwoU32(payload)

	ptr, found := e.findFrame(frame)
	if !found {
		return nil
	}

	f := e.buffer.At(ptr)

	if frame <= e.otherFrameCount {
		return e.checkCRC(c, f, remoteCRC)
	}

	cp := remoteCRC
	f.CRC = &cp

	return nil
}

func (e *Engine) checkCRC(c *Connection, f *deltaframe.Frame, remoteCRC uint32) error {
	localCRC := deltaframe.CRC(f, e.connectedPlayers)
	if localCRC == remoteCRC {
		return nil
	}

	if e.metrics != nil {
		e.metrics.ObserveCRCMismatch()
	}
	e.log.Errorf("netplay: CRC mismatch at frame %d: local=%08x remote=%08x", f.Frame, localCRC, remoteCRC)

	return c.sendRaw(wire.CmdRequestSavestate, nil)
}

// cmdRequestSavestate replies at once with a fresh LOAD_SAVESTATE, or with
// NAK if the core can't serialize at all (quirk NoSavestates). The send is
// synchronous and forceSendSavestate is held only for its duration, so every
// request received gets its own reply.
func (e *Engine) cmdRequestSavestate(c *Connection) error {
	if e.cfg.Quirks.Has(QuirkNoSavestates) {
		return c.sendRaw(wire.CmdNAK, nil)
	}
	if e.forceSendSavestate {
		return nil
	}

	e.forceSendSavestate = true
	defer func() { e.forceSendSavestate = false }()

	return e.sendSavestate(c)
}

func (e *Engine) sendSavestate(c *Connection) error {
	f := e.buffer.At(e.selfPtr)
	state := f.State

	if e.compressor != nil {
		compressed, err := e.compressor.Compress(state)
		if err != nil {
			return fmt.Errorf("engine: compressing savestate: %w", err)
		}
		return c.sendRaw(wire.CmdLoadSavestate, wire.EncodeLoadSavestate(e.selfFrameCount, uint32(len(state)), compressed))
	}

	return c.sendRaw(wire.CmdLoadSavestate, wire.EncodeLoadSavestate(e.selfFrameCount, uint32(len(state)), state))
}

// cmdLoadSavestate hard-syncs conn.player's authoritative state into the
// ring, realigning every other connected player's read pointer to match
// and forcing a rewind (spec.md §4.6.2 LOAD_SAVESTATE).
func (e *Engine) cmdLoadSavestate(c *Connection, payload []byte) error {
	if c.mode != ModePlaying {
		return wire.NewProtocolError(wire.CmdLoadSavestate, "LOAD_SAVESTATE from non-playing connection")
	}
	if len(payload) < 8 {
		return wire.NewProtocolError(wire.CmdLoadSavestate, "bad payload size")
	}

	frame, uncompressedSize, compressed := wire.DecodeLoadSavestateHeader(payload)

	if frame != e.readFrameCount[c.player] {
		return wire.NewProtocolError(wire.CmdLoadSavestate, "frame does not match read_frame_count")
	}
	if e.stateSize != 0 && int(uncompressedSize) != e.stateSize {
		return wire.NewProtocolError(wire.CmdLoadSavestate, "uncompressed_size mismatch")
	}
	if len(e.zbuffer) != 0 && len(compressed) > len(e.zbuffer) {
		return wire.NewProtocolError(wire.CmdLoadSavestate, "payload exceeds zbuffer")
	}

	state := compressed
	if e.compressor != nil {
		decompressed, err := e.compressor.Decompress(compressed, int(uncompressedSize))
		if err != nil {
			return fmt.Errorf("engine: decompressing savestate: %w", err)
		}
		state = decompressed
	}

	ptr := e.readPtr[c.player]
	target := e.buffer.At(ptr)
	target.Used = true
	target.Frame = frame
	target.State = state
	target.HaveReal = [maxPlayers]bool{}
	target.CRC = nil

	if frame > e.selfFrameCount {
		e.selfFrameCount = frame - 1
		e.selfPtr = e.buffer.Prev(ptr)
	}

	for p := 0; p < maxPlayers; p++ {
		if p == c.player || !e.connectedPlayers.Has(p) {
			continue
		}
		if frame > e.readFrameCount[p] {
			e.readPtr[p] = ptr
			e.readFrameCount[p] = frame
		}
	}

	e.otherPtr = ptr
	e.otherFrameCount = frame
	e.forceRewind = true
	e.savestateRequestOutstanding = false

	e.log.Infof("netplay: applied savestate from %s at frame %d", c.addr, frame)

	return nil
}

// cmdPause/cmdResume mirror a peer's pause state so the local stall loop can
// treat MaxRetries exhaustion as non-fatal (spec.md §5's remote_paused
// exception); the session is remote_paused iff any connection is paused.
// PAUSE is broadcast immediately; RESUME only once no connection remains
// paused and we aren't paused ourselves.
func (e *Engine) cmdPause(c *Connection) error {
	c.paused = true
	e.remotePaused = true

	e.broadcastExcept(c, wire.CmdPause, nil)

	return nil
}

func (e *Engine) cmdResume(c *Connection) error {
	c.paused = false

	anyPaused := e.localPaused
	for _, other := range e.connections {
		if other.active && other.paused {
			anyPaused = true
		}
	}
	e.remotePaused = anyPaused

	if !anyPaused {
		e.broadcastExcept(c, wire.CmdResume, nil)
	}

	return nil
}
