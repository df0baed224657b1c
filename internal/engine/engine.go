// Package engine implements the synchronization engine, connection FSM,
// and command dispatcher described in spec.md §4: the frame ring buffer and
// delta-frame state machine, the rollback/resimulation rules, and the wire
// protocol's command handling. These three layers are kept in one package
// rather than split across internal/conn and internal/dispatch, mirroring
// the original implementation's single netplay_t translation unit — INPUT
// relay on the server is the only cross-connection mutation, and everything
// else is peer-local, so one owned connection table plus a broadcast
// helper is the natural shape (spec.md §9).
package engine

import (
	"fmt"
	"net"

	"github.com/maxpoletaev/netplay/internal/deltaframe"
	"github.com/maxpoletaev/netplay/internal/wire"
)

const maxPlayers = wire.MaxPlayers

// Engine is the process-wide live netplay state (spec.md §3's Session).
type Engine struct {
	cfg Config

	core        Core
	compressor  Compressor
	log         Logger
	queue       MessageQueue
	metrics     Metrics

	buffer           *deltaframe.Ring
	connectedPlayers deltaframe.PlayerSet

	readPtr        [maxPlayers]int
	readFrameCount [maxPlayers]uint32

	selfPtr        int
	selfFrameCount uint32

	otherPtr        int
	otherFrameCount uint32

	unreadPtr        int
	unreadFrameCount uint32

	// server_ptr/server_frame_count are meaningful for clients only.
	serverPtr        int
	serverFrameCount uint32

	selfMode   Mode
	selfPlayer int

	flip      bool
	flipFrame uint32

	localPaused  bool
	remotePaused bool

	stateSize int
	zbuffer   []byte

	forceRewind                 bool
	forceSendSavestate          bool
	savestateRequestOutstanding bool

	isReplay         bool
	replayPtr        int
	replayFrameCount uint32

	connections []*Connection

	closed bool
}

// New constructs an Engine. A nil logger/queue is replaced with a no-op
// implementation so call sites never need to nil-check them; a nil metrics
// is kept as nil and every use of it is nil-checked.
func New(cfg Config, core Core, compressor Compressor, log Logger, queue MessageQueue, metrics Metrics) *Engine {
	if log == nil {
		log = noopLogger{}
	}
	if queue == nil {
		queue = noopQueue{}
	}

	e := &Engine{
		cfg:        cfg,
		core:       core,
		compressor: compressor,
		log:        log,
		queue:      queue,
		metrics:    metrics,
		buffer:     deltaframe.NewRing(cfg.DelayFrames),
	}

	for p := range e.readPtr {
		e.readPtr[p] = -1
	}

	if cfg.Role == RoleServer {
		e.selfMode = ModePlaying
		e.selfPlayer = 0
		e.connectedPlayers.Add(0)
		e.readPtr[0] = e.selfPtr
	} else {
		e.selfMode = ModeNone
	}

	return e
}

// Role reports whether this engine is acting as server or client.
func (e *Engine) Role() Role { return e.cfg.Role }

// SelfMode reports the local participant's own connection mode.
func (e *Engine) SelfMode() Mode { return e.selfMode }

// SelfFrameCount reports the number of frames simulated locally so far.
func (e *Engine) SelfFrameCount() uint32 { return e.selfFrameCount }

// StateSize reports the core's serialized-state size, or 0 before it has
// become known (quirk Initialization).
func (e *Engine) StateSize() int { return e.stateSize }

// packetBufferSize approximates "one full saved-state transfer plus
// D*W input commands plus headers" (spec.md §4.1). Before the state size is
// known, a conservative floor is used; saveFunc re-sizes existing
// connections' buffers once it is.
func (e *Engine) packetBufferSize() int {
	stateSize := e.stateSize
	if stateSize == 0 {
		stateSize = 1 << 16
	}

	d := int(e.cfg.DelayFrames)
	return 2*stateSize + d*wire.WordsPerInput*4 + (d+1)*12
}

// AddConnection wraps a freshly accepted/dialed net.Conn as a Connection and
// adds it to the connection table. initiator is true for the end that
// dialed out (it speaks first in the handshake); false for the end that
// accepted the connection.
func (e *Engine) AddConnection(raw net.Conn, initiator bool) *Connection {
	c := newConnection(raw, e.packetBufferSize())
	e.connections = append(e.connections, c)

	if e.metrics != nil {
		c.sb.SetByteCounters(e.metrics.AddBytesSent, e.metrics.AddBytesRecv)
	}

	if err := e.beginHandshake(c, initiator); err != nil {
		e.log.Warnf("netplay: handshake init failed for %s: %v", c.addr, err)
	}

	if e.metrics != nil {
		e.metrics.SetConnectedPlayers(e.connectedPlayers.Count())
	}

	return c
}

// Connections returns the live connection table.
func (e *Engine) Connections() []*Connection {
	return e.connections
}

// Close releases every connection and its socket buffers. The engine must
// not be used afterwards.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	for _, c := range e.connections {
		if c.active {
			c.close()
		}
	}

	return nil
}

// saveFunc serializes the current core state, discovering the state size
// (and sizing zbuffer/send/recv rings) the first time it succeeds.
func (e *Engine) saveFunc(dst *[]byte) (bool, error) {
	size := e.core.SerializeSize()
	if size == 0 {
		// Quirk Initialization: the core can't report a size yet.
		return false, nil
	}

	if e.stateSize == 0 {
		e.stateSize = size
		e.zbuffer = make([]byte, 2*size)

		newBufCap := e.packetBufferSize()
		for _, c := range e.connections {
			c.sb.Resize(newBufCap)
		}
	}

	buf := make([]byte, size)
	if err := e.core.Serialize(buf); err != nil {
		return false, fmt.Errorf("engine: serialize failed: %w", err)
	}

	*dst = buf
	return true, nil
}
