package remote

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/zstd"
)

// compressZstd is the encoder side used by test servers.
func compressZstd(t *testing.T, data []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd.NewWriter: %v", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

func TestZstdRoundTrip(t *testing.T) {
	original := bytes.Repeat([]byte("dumb http transport compression test data\n"), 100)
	decompressed, err := decompressZstd(compressZstd(t, original))
	if err != nil {
		t.Fatalf("decompressZstd: %v", err)
	}
	if !bytes.Equal(decompressed, original) {
		t.Fatalf("round-trip mismatch: got %d bytes, want %d", len(decompressed), len(original))
	}
}

func TestZstdEmptyInput(t *testing.T) {
	decompressed, err := decompressZstd(compressZstd(t, nil))
	if err != nil {
		t.Fatalf("decompressZstd: %v", err)
	}
	if len(decompressed) != 0 {
		t.Fatalf("expected empty, got %d bytes", len(decompressed))
	}
}

func TestIsZstdEncoded(t *testing.T) {
	for enc, want := range map[string]bool{"zstd": true, "ZSTD": true, "gzip": false, "": false} {
		if got := isZstdEncoded(enc); got != want {
			t.Errorf("isZstdEncoded(%q) = %v, want %v", enc, got, want)
		}
	}
}
