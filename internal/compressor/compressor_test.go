package compressor

import "testing"

func TestCompressDecompressRoundTrip(t *testing.T) {
	z, err := New(0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer z.Close()

	original := make([]byte, 4096)
	for i := range original {
		original[i] = byte(i % 251)
	}

	compressed, err := z.Compress(original)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}

	decompressed, err := z.Decompress(compressed, len(original))
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}

	if len(decompressed) != len(original) {
		t.Fatalf("decompressed length = %d, want %d", len(decompressed), len(original))
	}
	for i := range original {
		if decompressed[i] != original[i] {
			t.Fatalf("byte %d = %d, want %d", i, decompressed[i], original[i])
		}
	}
}

func TestCompressEmptyInput(t *testing.T) {
	z, err := New(0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer z.Close()

	compressed, err := z.Compress(nil)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}

	decompressed, err := z.Decompress(compressed, 0)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if len(decompressed) != 0 {
		t.Fatalf("decompressed length = %d, want 0", len(decompressed))
	}
}
