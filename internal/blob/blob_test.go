package blob

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/untoldecay/beadcore/internal/beaderr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "blobs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	return New(dir)
}

func TestWriteAndReadBlob(t *testing.T) {
	store := newTestStore(t)

	content := []byte("Hello, blob store!")
	hash, err := store.Write(content)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if len(hash) != 64 {
		t.Errorf("hash length = %d, want 64", len(hash))
	}

	got, err := store.Read(hash)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("Read returned %q, want %q", got, content)
	}
}

func TestWriteBlobIsIdempotent(t *testing.T) {
	store := newTestStore(t)

	content := []byte("hello blob")
	hash1, err := store.Write(content)
	if err != nil {
		t.Fatalf("first Write failed: %v", err)
	}
	hash2, err := store.Write(content)
	if err != nil {
		t.Fatalf("second Write failed: %v", err)
	}
	if hash1 != hash2 {
		t.Errorf("hashes differ: %s vs %s", hash1, hash2)
	}

	// Exactly one file on disk.
	entries, err := os.ReadDir(store.dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 blob file, got %d", len(entries))
	}
}

func TestKnownHashVector(t *testing.T) {
	store := newTestStore(t)

	hash, err := store.Write([]byte("test"))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	want := "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
	if hash != want {
		t.Errorf("hash = %s, want %s", hash, want)
	}
}

func TestDifferentContentDifferentHash(t *testing.T) {
	store := newTestStore(t)

	hash1, err := store.Write([]byte("first content"))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	hash2, err := store.Write([]byte("second content"))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if hash1 == hash2 {
		t.Errorf("different content produced identical hash %s", hash1)
	}
}

func TestReadMissingBlob(t *testing.T) {
	store := newTestStore(t)

	missing := "0000000000000000000000000000000000000000000000000000000000000000"
	_, err := store.Read(missing)
	var notFound *beaderr.BlobNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected BlobNotFound, got %v", err)
	}
	if notFound.Hash != missing {
		t.Errorf("error hash = %s, want %s", notFound.Hash, missing)
	}
}

func TestValidateHash(t *testing.T) {
	tests := []struct {
		name string
		hash string
		ok   bool
	}{
		{"valid", "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08", true},
		{"too short", "tooshort", false},
		{"uppercase", "AAAA000000000000000000000000000000000000000000000000000000000000", false},
		{"non-hex", "zzzz000000000000000000000000000000000000000000000000000000000000", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHash(tt.hash)
			if tt.ok && err != nil {
				t.Errorf("ValidateHash(%q) = %v, want nil", tt.hash, err)
			}
			if !tt.ok {
				var invalid *beaderr.InvalidHash
				if !errors.As(err, &invalid) {
					t.Errorf("ValidateHash(%q) = %v, want InvalidHash", tt.hash, err)
				}
			}
		})
	}
}

func TestExists(t *testing.T) {
	store := newTestStore(t)

	hash, err := store.Write([]byte("present"))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	ok, err := store.Exists(hash)
	if err != nil || !ok {
		t.Errorf("Exists(%s) = %v, %v; want true, nil", hash, ok, err)
	}

	ok, err = store.Exists("1111111111111111111111111111111111111111111111111111111111111111")
	if err != nil || ok {
		t.Errorf("Exists(missing) = %v, %v; want false, nil", ok, err)
	}
}
