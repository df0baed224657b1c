// Package netplay is the Session facade consumed by a host emulator: it
// owns the listening/dialing socket plumbing and wraps internal/engine's
// synchronization engine behind the five calls a per-frame runloop needs
// (spec.md §6's Session API).
package netplay

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/maxpoletaev/netplay/internal/compressor"
	"github.com/maxpoletaev/netplay/internal/engine"
	"github.com/maxpoletaev/netplay/internal/tcpopts"
)

// Re-exported so callers only need to import this one package.
type (
	Core         = engine.Core
	InputSource  = engine.InputSource
	Compressor   = engine.Compressor
	Logger       = engine.Logger
	MessageQueue = engine.MessageQueue
	Metrics      = engine.Metrics
	Quirks       = engine.Quirks
	Input        = engine.Input
)

const (
	QuirkNoSavestates   = engine.QuirkNoSavestates
	QuirkInitialization = engine.QuirkInitialization
	QuirkEndianDependent = engine.QuirkEndianDependent
	QuirkPlatformDependent = engine.QuirkPlatformDependent
	QuirkNoTransmission = engine.QuirkNoTransmission
)

// DefaultPort is the default TCP port netplay listens/dials on (spec.md §6).
const DefaultPort = 55435

// Options configures a new Session. Core is required; Logger, MessageQueue,
// Metrics, and Compressor are optional external collaborators (spec.md §1).
type Options struct {
	Server bool

	Nick     string
	Password string

	DelayFrames uint32
	CheckFrames uint32

	Quirks Quirks

	NATTraversal bool

	Core       Core
	Compressor Compressor
	Logger     Logger
	Queue      MessageQueue
	Metrics    Metrics

	// AcceptRate bounds how fast a server accepts new connections, guarding
	// against a connect flood (domain-stack addition beyond spec.md's core).
	AcceptRate rate.Limit
	AcceptBurst int
}

// Session is process-wide live netplay state (spec.md §3). Exactly one
// session is meaningful per process (spec.md §1's non-goal).
// handshakeBackoff is how long a remote address must wait before it may
// attempt another connection after one was accepted (domain-stack addition:
// a crude flood guard in front of the engine's own per-connection handshake).
const handshakeBackoff = 2 * time.Second

type Session struct {
	eng      *engine.Engine
	listener net.Listener
	limiter  *rate.Limiter
	recent   *cache.Cache
	cancel   context.CancelFunc
}

// New constructs a Session without yet opening any socket. Use Listen or
// Dial to establish the transport.
func New(opts Options) (*Session, error) {
	if opts.Core == nil {
		return nil, fmt.Errorf("netplay: Options.Core is required")
	}

	role := engine.RoleClient
	if opts.Server {
		role = engine.RoleServer
	}

	cfg := engine.Config{
		Role:         role,
		Nick:         opts.Nick,
		Password:     opts.Password,
		DelayFrames:  opts.DelayFrames,
		CheckFrames:  opts.CheckFrames,
		Quirks:       opts.Quirks,
		NATTraversal: opts.NATTraversal,
	}

	comp := opts.Compressor
	if comp == nil && !opts.Quirks.Has(engine.QuirkNoTransmission) {
		zc, err := compressor.New(0)
		if err == nil {
			comp = zc
		}
	}

	eng := engine.New(cfg, opts.Core, comp, opts.Logger, opts.Queue, opts.Metrics)

	burst := opts.AcceptBurst
	if burst <= 0 {
		burst = 4
	}
	rl := opts.AcceptRate
	if rl <= 0 {
		rl = 2
	}

	return &Session{
		eng:     eng,
		limiter: rate.NewLimiter(rl, burst),
		recent:  cache.New(handshakeBackoff, handshakeBackoff*2),
	}, nil
}

// Listen opens a dual-stack TCP listener on addr and starts an accept loop
// that hands every incoming connection to the engine (server role only).
func (s *Session) Listen(addr string) error {
	if s.eng.Role() != engine.RoleServer {
		return fmt.Errorf("netplay: Listen requires a server session")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	ln, err := tcpopts.Listen(ctx, addr)
	if err != nil {
		cancel()
		return err
	}
	s.listener = ln

	go s.acceptLoop(ctx)

	return nil
}

func (s *Session) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				continue
			}
		}

		if err := s.limiter.Wait(ctx); err != nil {
			_ = conn.Close()
			return
		}

		host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
		host = strings.TrimSpace(host)

		if _, hit := s.recent.Get(host); hit {
			_ = conn.Close()
			continue
		}
		s.recent.Set(host, struct{}{}, cache.DefaultExpiration)

		_ = tcpopts.SetNoDelay(conn)
		s.eng.AddConnection(conn, false)
	}
}

// Dial connects to a netplay server at addr (client role only).
func (s *Session) Dial(addr string) error {
	if s.eng.Role() != engine.RoleClient {
		return fmt.Errorf("netplay: Dial requires a client session")
	}

	conn, err := tcpopts.Dialer().DialContext(context.Background(), "tcp", addr)
	if err != nil {
		return fmt.Errorf("netplay: dial %s: %w", addr, err)
	}

	_ = tcpopts.SetNoDelay(conn)
	s.eng.AddConnection(conn, true)

	return nil
}

// PreFrame captures local input into the current frame slot (spec.md §4.4
// step 1).
func (s *Session) PreFrame(local Input) error {
	return s.eng.PreFrame(local)
}

// PostFrame drains the network, stalls/rewinds/resimulates as needed, and
// audits CRC (spec.md §4.4 steps 2-6).
func (s *Session) PostFrame() error {
	return s.eng.PostFrame()
}

// FlipPlayers swaps ports 0 and 1 from the current frame onward
// (server only; spec.md §6).
func (s *Session) FlipPlayers() error {
	return s.eng.FlipPlayers()
}

// Pause/Resume mark the local participant paused, exempting peers from
// stall-exhaustion while we catch up (spec.md §4.6.2 PAUSE/RESUME).
func (s *Session) Pause() error  { return s.eng.Pause() }
func (s *Session) Resume() error { return s.eng.Resume() }

// Play/Spectate request promotion to an active player slot or demotion back
// to spectating (client only; spec.md §4.5's SPECTATING<->PLAYING
// transition, server-arbitrated via PLAY/SPECTATE).
func (s *Session) Play() error     { return s.eng.Play() }
func (s *Session) Spectate() error { return s.eng.Spectate() }

// RequestSavestate asks every peer for a fresh savestate (spec.md §4.7's
// divergence-recovery path, exposed for a host-triggered resync).
func (s *Session) RequestSavestate() error {
	return s.eng.RequestSavestate()
}

// Disconnect tells every peer we're leaving and tears down the transport.
func (s *Session) Disconnect() error {
	err := s.eng.Disconnect()

	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}

	return err
}

// Free releases every connection without notifying peers. Use Disconnect
// for a graceful leave.
func (s *Session) Free() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}

	return s.eng.Close()
}

// SelfMode, SelfFrameCount, and Role expose read-only session status for
// a host's UI.
func (s *Session) SelfMode() string        { return s.eng.SelfMode().String() }
func (s *Session) SelfFrameCount() uint32   { return s.eng.SelfFrameCount() }
func (s *Session) IsServer() bool           { return s.eng.Role() == engine.RoleServer }

// retryBackoff mirrors spec.md §5's RETRY_MS between connection attempts
// when a host wants to keep redialing a server that isn't up yet.
const retryBackoff = 500 * time.Millisecond

// DialWithRetry attempts Dial up to attempts times, sleeping retryBackoff
// between failures. attempts <= 0 means unlimited (until ctx is done).
func (s *Session) DialWithRetry(ctx context.Context, addr string, attempts int) error {
	for i := 0; attempts <= 0 || i < attempts; i++ {
		if err := s.Dial(addr); err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBackoff):
		}
	}

	return fmt.Errorf("netplay: failed to dial %s after %d attempts", addr, attempts)
}
