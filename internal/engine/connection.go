package engine

import (
	"net"

	"github.com/maxpoletaev/netplay/internal/sockbuf"
	"github.com/maxpoletaev/netplay/internal/wire"
)

// Mode is a connection's position in the handshake/play lifecycle
// (spec.md §4.5). The zero value, ModeNone, is both the pre-handshake and
// the post-disconnect terminal state.
type Mode int

const (
	ModeNone Mode = iota
	ModeInit
	ModePreNick
	ModePrePassword
	ModePreSync
	ModeSpectating
	ModePlaying
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeInit:
		return "init"
	case ModePreNick:
		return "pre-nick"
	case ModePrePassword:
		return "pre-password"
	case ModePreSync:
		return "pre-sync"
	case ModeSpectating:
		return "spectating"
	case ModePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// connected reports whether m is at or past the handshake (SPECTATING or
// PLAYING) — the point at which ordinary command dispatch, rather than
// handshake stepping, applies.
func (m Mode) connected() bool {
	return m == ModeSpectating || m == ModePlaying
}

// Connection is one peer link: the server holds many, a client holds
// exactly one (to the server).
type Connection struct {
	active bool
	raw    net.Conn
	addr   net.Addr
	sb     *sockbuf.Buffer

	mode   Mode
	player int // valid only while mode == ModePlaying
	paused bool
	nick   string
}

func newConnection(raw net.Conn, bufCap int) *Connection {
	return &Connection{
		active: true,
		raw:    raw,
		addr:   raw.RemoteAddr(),
		sb:     sockbuf.New(raw, bufCap),
		mode:   ModeInit,
		player: -1,
	}
}

// Addr returns the connection's remote address.
func (c *Connection) Addr() net.Addr { return c.addr }

// Nick returns the nick exchanged during the handshake, or "" before it
// completes.
func (c *Connection) Nick() string { return c.nick }

// Mode returns the connection's current lifecycle state.
func (c *Connection) Mode() Mode { return c.mode }

func (c *Connection) sendRaw(cmd wire.Command, payload []byte) error {
	if err := c.sb.Send(wire.EncodeHeader(cmd, len(payload))); err != nil {
		return err
	}
	if len(payload) > 0 {
		if err := c.sb.Send(payload); err != nil {
			return err
		}
	}
	return c.sb.Flush(false)
}

func (c *Connection) close() {
	c.active = false
	_ = c.raw.Close()
}
