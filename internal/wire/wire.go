// Package wire implements the netplay command framing described in the
// protocol's wire format: every command is a big-endian
// `u32 cmd | u32 payload_size | payload[payload_size]`. Encoding helpers here
// are pure — they don't touch a socket — so that the transactional,
// partial-read-safe consumption lives entirely in internal/sockbuf.
package wire

import (
	"encoding/binary"
	"fmt"
)

// Command identifies the kind of a wire message.
type Command uint32

const (
	CmdACK Command = iota + 1
	CmdNAK
	CmdDisconnect
	CmdInput
	CmdNoInput
	CmdFlipPlayers
	CmdSpectate
	CmdPlay
	CmdMode
	CmdCRC
	CmdRequestSavestate
	CmdLoadSavestate
	CmdPause
	CmdResume
)

func (c Command) String() string {
	switch c {
	case CmdACK:
		return "ACK"
	case CmdNAK:
		return "NAK"
	case CmdDisconnect:
		return "DISCONNECT"
	case CmdInput:
		return "INPUT"
	case CmdNoInput:
		return "NOINPUT"
	case CmdFlipPlayers:
		return "FLIP_PLAYERS"
	case CmdSpectate:
		return "SPECTATE"
	case CmdPlay:
		return "PLAY"
	case CmdMode:
		return "MODE"
	case CmdCRC:
		return "CRC"
	case CmdRequestSavestate:
		return "REQUEST_SAVESTATE"
	case CmdLoadSavestate:
		return "LOAD_SAVESTATE"
	case CmdPause:
		return "PAUSE"
	case CmdResume:
		return "RESUME"
	default:
		return fmt.Sprintf("CMD(%d)", uint32(c))
	}
}

// WordsPerInput is the number of 32-bit words carried per player, per frame:
// buttons, then two analog-stick pairs.
const WordsPerInput = 3

// MaxPlayers bounds the logical controller-port index space (0..15).
const MaxPlayers = 16

// InputBitServer is OR'd into INPUT's player/flags word when the frame
// originated from the server's own player.
const InputBitServer = uint32(1) << 31

// MODE's second word packs a player index in the low 16 bits plus two flag
// bits above it.
const (
	ModePlayerMask  = 0xFFFF
	ModeBitPlaying  = uint32(1) << 16
	ModeBitYou      = uint32(1) << 17
)

// HeaderSize is the length in bytes of the cmd+size prefix.
const HeaderSize = 8

// Header is the decoded cmd+payload_size prefix of a command.
type Header struct {
	Cmd  Command
	Size uint32
}

// EncodeHeader writes the 8-byte header for a command with the given
// payload length.
func EncodeHeader(cmd Command, payloadLen int) []byte {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(cmd))
	binary.BigEndian.PutUint32(buf[4:8], uint32(payloadLen))
	return buf
}

// DecodeHeader parses an 8-byte header previously produced by EncodeHeader.
func DecodeHeader(b []byte) Header {
	return Header{
		Cmd:  Command(binary.BigEndian.Uint32(b[0:4])),
		Size: binary.BigEndian.Uint32(b[4:8]),
	}
}

// ProtocolError represents a violation of the wire protocol by a peer: wrong
// payload size, out-of-order frame, wrong role, or an unknown command. The
// dispatcher responds to one of these by sending NAK and disconnecting only
// the offending connection (spec.md §7).
type ProtocolError struct {
	Cmd    Command
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("wire: protocol violation on %s: %s", e.Cmd, e.Reason)
}

func NewProtocolError(cmd Command, reason string) error {
	return &ProtocolError{Cmd: cmd, Reason: reason}
}

// Input is the per-player payload: buttons, then two analog-stick pairs.
type Input [WordsPerInput]uint32

// EncodeInput builds the payload for an INPUT command.
func EncodeInput(frame, playerOrFlags uint32, state Input) []byte {
	buf := make([]byte, 8+WordsPerInput*4)
	binary.BigEndian.PutUint32(buf[0:4], frame)
	binary.BigEndian.PutUint32(buf[4:8], playerOrFlags)
	for i, w := range state {
		binary.BigEndian.PutUint32(buf[8+i*4:12+i*4], w)
	}
	return buf
}

// DecodeInput parses an INPUT payload. Callers must check len(b) themselves
// (cmd_size != WORDS_PER_FRAME*4 is a protocol violation, not a decode error).
func DecodeInput(b []byte) (frame, playerOrFlags uint32, state Input) {
	frame = binary.BigEndian.Uint32(b[0:4])
	playerOrFlags = binary.BigEndian.Uint32(b[4:8])
	for i := range state {
		state[i] = binary.BigEndian.Uint32(b[8+i*4 : 12+i*4])
	}
	return
}

// InputPayloadSize is the expected payload length of an INPUT command.
const InputPayloadSize = 8 + WordsPerInput*4

func EncodeU32(v uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return buf
}

func DecodeU32(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

func EncodeTwoU32(a, b uint32) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:4], a)
	binary.BigEndian.PutUint32(buf[4:8], b)
	return buf
}

func DecodeTwoU32(b []byte) (uint32, uint32) {
	return binary.BigEndian.Uint32(b[0:4]), binary.BigEndian.Uint32(b[4:8])
}

// EncodeLoadSavestate builds the payload for a LOAD_SAVESTATE command.
func EncodeLoadSavestate(frame, uncompressedSize uint32, compressed []byte) []byte {
	buf := make([]byte, 8+len(compressed))
	binary.BigEndian.PutUint32(buf[0:4], frame)
	binary.BigEndian.PutUint32(buf[4:8], uncompressedSize)
	copy(buf[8:], compressed)
	return buf
}

// DecodeLoadSavestateHeader parses the two fixed u32 fields, leaving the
// compressed payload as the remainder of b.
func DecodeLoadSavestateHeader(b []byte) (frame, uncompressedSize uint32, compressed []byte) {
	frame = binary.BigEndian.Uint32(b[0:4])
	uncompressedSize = binary.BigEndian.Uint32(b[4:8])
	compressed = b[8:]
	return
}
