package netplay

import "testing"

type stubCore struct{}

func (stubCore) Step() error          { return nil }
func (stubCore) SerializeSize() int   { return 8 }
func (stubCore) Serialize([]byte) error   { return nil }
func (stubCore) Deserialize([]byte) error { return nil }

func TestNewRequiresCore(t *testing.T) {
	_, err := New(Options{})
	if err == nil {
		t.Fatal("expected an error when Options.Core is nil")
	}
}

func TestNewDefaultsToClientRole(t *testing.T) {
	sess, err := New(Options{Core: stubCore{}, Quirks: QuirkNoTransmission})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if sess.IsServer() {
		t.Error("Options.Server zero value should produce a client-role session")
	}
}

func TestNewClientRole(t *testing.T) {
	sess, err := New(Options{Core: stubCore{}, Server: false, Quirks: QuirkNoTransmission})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if sess.IsServer() {
		t.Error("expected a client-role session")
	}
	if sess.SelfFrameCount() != 0 {
		t.Errorf("SelfFrameCount() = %d, want 0 before any frame is simulated", sess.SelfFrameCount())
	}
}

func TestListenRejectsClientSession(t *testing.T) {
	sess, err := New(Options{Core: stubCore{}, Server: false, Quirks: QuirkNoTransmission})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := sess.Listen(":0"); err == nil {
		t.Fatal("expected Listen to reject a client-role session")
	}
}

func TestDialRejectsServerSession(t *testing.T) {
	sess, err := New(Options{Core: stubCore{}, Server: true, Quirks: QuirkNoTransmission})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := sess.Dial("127.0.0.1:0"); err == nil {
		t.Fatal("expected Dial to reject a server-role session")
	}
}
