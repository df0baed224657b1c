package engine

import (
	"errors"

	"github.com/maxpoletaev/netplay/internal/wire"
)

// pollNetInput drains every active connection once: handshake connections
// step their handshake, connected ones get as many whole commands as are
// currently buffered decoded (spec.md §4.4 step 2). With block=true, the
// very first read attempt on each connection is allowed to wait up to one
// sockbuf poll interval; this is combined with the caller's own
// RetryInterval sleep to produce the bounded select described in spec.md §5.
func (e *Engine) pollNetInput(block bool) error {
	for _, c := range e.connections {
		if !c.active {
			continue
		}

		if err := e.stepConnection(c, block); err != nil {
			e.hangup(c, err)
		}
	}

	return nil
}

// stepConnection decodes as many whole commands as are currently buffered
// on c. A partial command rewinds the read cursor and returns nil — it
// will be retried whole on a future poll.
func (e *Engine) stepConnection(c *Connection, block bool) error {
	if !c.mode.connected() {
		return e.stepHandshake(c, block)
	}

	for {
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

		if err := e.handleCommand(c, hdr.Cmd, payload); err != nil {
			var perr *wire.ProtocolError
			if errors.As(err, &perr) {
				_ = c.sendRaw(wire.CmdNAK, nil)
			}
			return err
		}

		c.sb.RecvFlush()
		block = false
	}
}

// hangup disconnects an active connection due to an error or explicit
// DISCONNECT, releasing its player slot and informing the other peers
// (spec.md §4.1's hangup, §5's cancellation semantics).
func (e *Engine) hangup(c *Connection, cause error) {
	if !c.active {
		return
	}

	if cause != nil {
		e.log.Warnf("netplay: connection %s hung up: %v", c.addr, cause)
	} else {
		e.log.Infof("netplay: connection %s disconnected", c.addr)
	}

	e.queue.Push("Netplay has disconnected. Will continue without connection.")
	c.close()

	if e.cfg.Role == RoleClient {
		e.selfMode = ModeNone
		e.connectedPlayers = 0
		e.queue.Push("disconnected")
		return
	}

	if c.mode == ModePlaying {
		e.connectedPlayers.Remove(c.player)

		payload := wire.EncodeTwoU32(e.readFrameCount[c.player], uint32(c.player))
		e.broadcastExcept(c, wire.CmdMode, payload)
	}

	if e.metrics != nil {
		e.metrics.SetConnectedPlayers(e.connectedPlayers.Count())
	}
}
