package ring

import "testing"

func TestNextPrevWrap(t *testing.T) {
	b := New[int](3)

	if got := b.Next(2); got != 0 {
		t.Errorf("Next(2) = %d, want 0", got)
	}
	if got := b.Prev(0); got != 2 {
		t.Errorf("Prev(0) = %d, want 2", got)
	}
	if got := b.Next(0); got != 1 {
		t.Errorf("Next(0) = %d, want 1", got)
	}
}

func TestSetAt(t *testing.T) {
	b := New[string](4)
	b.Set(2, "hello")

	if got := b.At(2); got != "hello" {
		t.Errorf("At(2) = %q, want %q", got, "hello")
	}
	if got := b.At(0); got != "" {
		t.Errorf("At(0) = %q, want zero value", got)
	}
}

func TestCap(t *testing.T) {
	b := New[int](5)
	if got := b.Cap(); got != 5 {
		t.Errorf("Cap() = %d, want 5", got)
	}
}

func TestNewPanicsOnNonPositiveCapacity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for non-positive capacity")
		}
	}()
	New[int](0)
}
