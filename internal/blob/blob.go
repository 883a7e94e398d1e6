// Package blob implements the content-addressed document store.
// Blobs live under .beads/blobs/<sha256-hex> and are immutable: a write
// of identical bytes is a no-op, so concurrent writers need no locking.
package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/untoldecay/beadcore/internal/beaderr"
	"github.com/untoldecay/beadcore/internal/debug"
)

// Store is a content-addressed blob directory.
type Store struct {
	dir string
}

// New returns a store rooted at dir (normally <repo>/.beads/blobs).
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Write stores content under its SHA-256 hash and returns the hash as
// 64 lowercase hex chars. Idempotent: if the blob already exists the
// bytes are not rewritten.
func (s *Store) Write(content []byte) (string, error) {
	hash := Hash(content)
	path := filepath.Join(s.dir, hash)

	if _, err := os.Stat(path); err == nil {
		return hash, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return "", beaderr.NewIO("create blob file", path, err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return "", beaderr.NewIO("write blob", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return "", beaderr.NewIO("sync blob", path, err)
	}
	if err := f.Close(); err != nil {
		return "", beaderr.NewIO("close blob", path, err)
	}

	debug.Logf("blob: wrote %s (%d bytes)", hash, len(content))
	return hash, nil
}

// Read returns the content stored under hash.
func (s *Store) Read(hash string) ([]byte, error) {
	if err := ValidateHash(hash); err != nil {
		return nil, err
	}
	path := filepath.Join(s.dir, hash)
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &beaderr.BlobNotFound{Hash: hash}
		}
		return nil, beaderr.NewIO("read blob", path, err)
	}
	return content, nil
}

// Exists reports whether a blob with the given hash is present.
func (s *Store) Exists(hash string) (bool, error) {
	if err := ValidateHash(hash); err != nil {
		return false, err
	}
	_, err := os.Stat(filepath.Join(s.dir, hash))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, beaderr.NewIO("stat blob", filepath.Join(s.dir, hash), err)
}

// Hash returns the SHA-256 of content as lowercase hex.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// ValidateHash checks that hash is exactly 64 lowercase hex characters.
func ValidateHash(hash string) error {
	if len(hash) != 64 {
		return &beaderr.InvalidHash{Hash: hash, Reason: "must be 64 characters"}
	}
	for _, c := range hash {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return &beaderr.InvalidHash{Hash: hash, Reason: "must contain only lowercase hexadecimal characters"}
		}
	}
	return nil
}
