package engine

import (
	"encoding/binary"
	"fmt"

	"github.com/maxpoletaev/netplay/internal/deltaframe"
	"github.com/maxpoletaev/netplay/internal/wire"
)

// The exact handshake byte layout is left unspecified; this is a minimal,
// self-consistent scheme built on the existing ACK/NAK commands rather than
// inventing new wire commands. Every handshake message is an ACK whose
// payload starts with one stage byte.
const (
	handshakeStageHello stageByte = iota // initiator -> acceptor: nick, password
	handshakeStageSync                   // acceptor -> initiator: player, delay_frames, connected mask, savestate
)

type stageByte = byte

// beginHandshake is called once, right after a connection is created. Only
// the dialing side (the connection's initiator) speaks first.
func (e *Engine) beginHandshake(c *Connection, initiator bool) error {
	if !initiator {
		c.mode = ModeInit
		return nil
	}

	payload := encodeHello(e.cfg.Nick, e.cfg.Password)
	c.mode = ModePreNick

	return c.sendRaw(wire.CmdACK, payload)
}

func encodeHello(nick, password string) []byte {
	buf := make([]byte, 1+2+len(nick)+2+len(password))
	buf[0] = handshakeStageHello
	binary.BigEndian.PutUint16(buf[1:3], uint16(len(nick)))
	copy(buf[3:], nick)
	off := 3 + len(nick)
	binary.BigEndian.PutUint16(buf[off:off+2], uint16(len(password)))
	copy(buf[off+2:], password)
	return buf
}

func decodeHello(b []byte) (nick, password string, err error) {
	if len(b) < 3 {
		return "", "", wire.NewProtocolError(wire.CmdACK, "hello truncated")
	}
	nickLen := int(binary.BigEndian.Uint16(b[1:3]))
	if len(b) < 3+nickLen+2 {
		return "", "", wire.NewProtocolError(wire.CmdACK, "hello truncated")
	}
	nick = string(b[3 : 3+nickLen])
	off := 3 + nickLen
	passLen := int(binary.BigEndian.Uint16(b[off : off+2]))
	if len(b) < off+2+passLen {
		return "", "", wire.NewProtocolError(wire.CmdACK, "hello truncated")
	}
	password = string(b[off+2 : off+2+passLen])
	return nick, password, nil
}

func encodeSync(player int, delayFrames uint32, connected deltaframe.PlayerSet, frame uint32, savestate []byte) []byte {
	buf := make([]byte, 1+4+4+4+4+len(savestate))
	buf[0] = handshakeStageSync
	binary.BigEndian.PutUint32(buf[1:5], uint32(player))
	binary.BigEndian.PutUint32(buf[5:9], delayFrames)
	binary.BigEndian.PutUint32(buf[9:13], uint32(connected))
	binary.BigEndian.PutUint32(buf[13:17], frame)
	copy(buf[17:], savestate)
	return buf
}

func decodeSync(b []byte) (player int, delayFrames uint32, connected deltaframe.PlayerSet, frame uint32, savestate []byte, err error) {
	if len(b) < 17 {
		return 0, 0, 0, 0, nil, wire.NewProtocolError(wire.CmdACK, "sync truncated")
	}
	player = int(int32(binary.BigEndian.Uint32(b[1:5])))
	delayFrames = binary.BigEndian.Uint32(b[5:9])
	connected = deltaframe.PlayerSet(binary.BigEndian.Uint32(b[9:13]))
	frame = binary.BigEndian.Uint32(b[13:17])
	savestate = b[17:]
	return player, delayFrames, connected, frame, savestate, nil
}

// stepHandshake decodes one whole command for a connection still short of
// SPECTATING/PLAYING (spec.md §4.5's connection-mode lifecycle). It
// implements the server's acceptor side and the client's initiator side of
// the hello/sync exchange described above.
func (e *Engine) stepHandshake(c *Connection, block bool) error {
	hdrBuf := make([]byte, wire.HeaderSize)

	n, err := c.sb.Recv(hdrBuf, block)
	if err != nil {
		return err
	}
	if n < len(hdrBuf) {
		c.sb.RecvReset()
		return nil
	}

	hdr := wire.DecodeHeader(hdrBuf)

	var payload []byte
	if hdr.Size > 0 {
		payload = make([]byte, hdr.Size)
		n, err := c.sb.Recv(payload, block)
		if err != nil {
			return err
		}
		if n < len(payload) {
			c.sb.RecvReset()
			return nil
		}
	}
	c.sb.RecvFlush()

	if hdr.Cmd == wire.CmdNAK {
		return fmt.Errorf("engine: peer rejected handshake")
	}
	if hdr.Cmd == wire.CmdDisconnect {
		return fmt.Errorf("engine: peer disconnected during handshake")
	}
	if hdr.Cmd != wire.CmdACK {
		return wire.NewProtocolError(hdr.Cmd, "unexpected command before sync")
	}
	if len(payload) == 0 {
		return wire.NewProtocolError(hdr.Cmd, "empty handshake payload")
	}

	switch payload[0] {
	case handshakeStageHello:
		return e.handleHello(c, payload)
	case handshakeStageSync:
		return e.handleSync(c, payload)
	default:
		return wire.NewProtocolError(hdr.Cmd, "unknown handshake stage")
	}
}

// handleHello is the server-side acceptor reaction to an initiator's hello.
func (e *Engine) handleHello(c *Connection, payload []byte) error {
	if e.cfg.Role != RoleServer {
		return wire.NewProtocolError(wire.CmdACK, "hello received by non-server")
	}

	nick, password, err := decodeHello(payload)
	if err != nil {
		return err
	}

	if e.cfg.Password != "" && password != e.cfg.Password {
		_ = c.sendRaw(wire.CmdNAK, nil)
		return fmt.Errorf("engine: wrong password from %s", c.addr)
	}

	c.nick = nick

	var frame uint32
	var state []byte

	if !e.cfg.Quirks.Has(QuirkNoSavestates) {
		f := e.buffer.At(e.selfPtr)
		frame = e.selfFrameCount
		state = f.State

		if e.compressor != nil {
			compressed, err := e.compressor.Compress(state)
			if err != nil {
				return fmt.Errorf("engine: compressing sync savestate: %w", err)
			}
			state = compressed
		}
	}

	// New connections default to SPECTATING regardless of free player
	// slots (spec.md §4.5); promotion to PLAYING only ever happens through
	// a server-arbitrated PLAY request (cmdPlay) or an explicit Play call.
	c.mode = ModeSpectating

	payload = encodeSync(-1, e.cfg.DelayFrames, e.connectedPlayers, frame, state)
	if err := c.sendRaw(wire.CmdACK, payload); err != nil {
		return err
	}

	if e.metrics != nil {
		e.metrics.SetConnectedPlayers(e.connectedPlayers.Count())
	}

	e.log.Infof("netplay: %s joined as %s (player=%d)", c.addr, c.mode, c.player)

	return e.sendCurInput(c)
}

// handleSync is the client-side initiator reaction to the server's sync
// reply: it adopts the assigned player/spectator role and the server's
// current simulation state.
func (e *Engine) handleSync(c *Connection, payload []byte) error {
	if e.cfg.Role != RoleClient {
		return wire.NewProtocolError(wire.CmdACK, "sync received by non-client")
	}

	player, _, connected, frame, state, err := decodeSync(payload)
	if err != nil {
		return err
	}

	if len(state) > 0 {
		if e.compressor != nil {
			decompressed, err := e.compressor.Decompress(state, e.stateSize)
			if err != nil {
				return fmt.Errorf("engine: decompressing sync savestate: %w", err)
			}
			state = decompressed
		}

		if err := e.core.Deserialize(state); err != nil {
			return fmt.Errorf("engine: applying sync savestate: %w", err)
		}
	}

	e.selfFrameCount = frame
	e.otherFrameCount = frame
	e.otherPtr = e.selfPtr
	e.connectedPlayers = connected
	e.serverPtr = e.selfPtr
	e.serverFrameCount = frame

	for p := 0; p < maxPlayers; p++ {
		if connected.Has(p) {
			e.readPtr[p] = e.buffer.Next(e.selfPtr)
			e.readFrameCount[p] = frame + 1
		}
	}

	if player >= 0 {
		e.selfMode = ModePlaying
		e.selfPlayer = player
		c.mode = ModePlaying
		c.player = player
	} else {
		e.selfMode = ModeSpectating
		c.mode = ModeSpectating
	}

	e.log.Infof("netplay: joined server %s as %s (player=%d)", c.addr, e.selfMode, e.selfPlayer)

	return e.sendCurInput(c)
}
