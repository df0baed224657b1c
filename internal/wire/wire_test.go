package wire

import "testing"

func TestEncodeDecodeHeader(t *testing.T) {
	b := EncodeHeader(CmdInput, 42)
	if len(b) != HeaderSize {
		t.Fatalf("header length = %d, want %d", len(b), HeaderSize)
	}

	hdr := DecodeHeader(b)
	if hdr.Cmd != CmdInput {
		t.Errorf("cmd = %v, want %v", hdr.Cmd, CmdInput)
	}
	if hdr.Size != 42 {
		t.Errorf("size = %d, want 42", hdr.Size)
	}
}

func TestEncodeDecodeInput(t *testing.T) {
	want := Input{0x1234, 0xAABBCCDD, 7}
	b := EncodeInput(99, InputBitServer|3, want)

	if len(b) != InputPayloadSize {
		t.Fatalf("payload length = %d, want %d", len(b), InputPayloadSize)
	}

	frame, playerOrFlags, got := DecodeInput(b)
	if frame != 99 {
		t.Errorf("frame = %d, want 99", frame)
	}
	if playerOrFlags != InputBitServer|3 {
		t.Errorf("playerOrFlags = %#x, want %#x", playerOrFlags, InputBitServer|3)
	}
	if got != want {
		t.Errorf("state = %v, want %v", got, want)
	}
}

func TestEncodeDecodeTwoU32(t *testing.T) {
	b := EncodeTwoU32(11, 22)
	a, c := DecodeTwoU32(b)
	if a != 11 || c != 22 {
		t.Errorf("got (%d, %d), want (11, 22)", a, c)
	}
}

func TestEncodeDecodeLoadSavestate(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5}
	b := EncodeLoadSavestate(7, 100, payload)

	frame, size, compressed := DecodeLoadSavestateHeader(b)
	if frame != 7 {
		t.Errorf("frame = %d, want 7", frame)
	}
	if size != 100 {
		t.Errorf("size = %d, want 100", size)
	}
	if string(compressed) != string(payload) {
		t.Errorf("compressed = %v, want %v", compressed, payload)
	}
}

func TestProtocolError(t *testing.T) {
	err := NewProtocolError(CmdMode, "bad player index")

	var perr *ProtocolError
	if got := err.Error(); got == "" {
		t.Fatal("expected non-empty error string")
	}
	perr, ok := err.(*ProtocolError)
	if !ok {
		t.Fatalf("NewProtocolError did not return *ProtocolError, got %T", err)
	}
	if perr.Cmd != CmdMode {
		t.Errorf("Cmd = %v, want %v", perr.Cmd, CmdMode)
	}
}

func TestCommandString(t *testing.T) {
	cases := map[Command]string{
		CmdACK:   "ACK",
		CmdInput: "INPUT",
		CmdMode:  "MODE",
	}
	for cmd, want := range cases {
		if got := cmd.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", cmd, got, want)
		}
	}

	if got := Command(999).String(); got != "CMD(999)" {
		t.Errorf("unknown command String() = %q, want CMD(999)", got)
	}
}
