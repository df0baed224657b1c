package engine

// Core is the opaque emulation-core collaborator (spec.md §1, §6): the
// engine drives it one frame at a time and asks it to serialize/deserialize
// its state for checkpoints and state transfer. It never inspects the
// meaning of the bytes it carries.
type Core interface {
	// Step runs the core forward exactly one frame.
	Step() error

	// SerializeSize returns the number of bytes Serialize needs, or 0 if
	// the core cannot yet report a size (quirk Initialization).
	SerializeSize() int

	// Serialize writes the core's current state into buf, which is
	// exactly SerializeSize() bytes long.
	Serialize(buf []byte) error

	// Deserialize restores the core's state from buf.
	Deserialize(buf []byte) error
}

// InputSource is the opaque controller-polling collaborator: once per
// frame the host calls PollInput, then reads back the local player's
// buttons/analog state via LocalInput.
type InputSource interface {
	PollInput()
	LocalInput() Input
}

// Compressor is the opaque compression-codec collaborator (spec.md §1): a
// stream with compress(in)->out / decompress(in)->out. The engine only
// calls it around LOAD_SAVESTATE transfers.
type Compressor interface {
	Compress(in []byte) ([]byte, error)
	Decompress(in []byte, uncompressedSize int) ([]byte, error)
}

// Logger is the opaque logging collaborator (spec.md §1's "logging
// facility"). Message text is free-form; level selection mirrors the
// teacher's [INFO]/[WARN]/[ERROR]/[DEBUG] tagging convention.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// MessageQueue is the opaque UI message queue collaborator (spec.md §1):
// a place to push short, user-facing status strings ("Player 2 has left").
type MessageQueue interface {
	Push(msg string)
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{}) {}
func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Warnf(string, ...interface{})  {}
func (noopLogger) Errorf(string, ...interface{}) {}

type noopQueue struct{}

func (noopQueue) Push(string) {}

// Metrics is the optional observability sink (spec.md's non-goal of
// excluding "metrics" as a *feature* does not exclude this ambient hook —
// see SPEC_FULL.md). A nil Metrics is valid; every call site nil-checks.
type Metrics interface {
	ObserveStall()
	ObserveRollback(frames uint32)
	ObserveCRCMismatch()
	SetConnectedPlayers(n int)
	AddBytesSent(n int)
	AddBytesRecv(n int)
}
