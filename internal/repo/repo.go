// Package repo locates and initializes the on-disk layout of a beads
// repository: the .beads directory holding the event log, the derived
// cache, the blob store, and the docs workspace.
package repo

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"github.com/untoldecay/beadcore/internal/beaderr"
	"github.com/untoldecay/beadcore/internal/debug"
	"github.com/untoldecay/beadcore/internal/storage/sqlite"
)

// On-disk layout under the repository root.
const (
	BeadsDir     = ".beads"
	EventLogFile = "events.jsonl"
	CacheFile    = "beads.db"
	BlobsDir     = "blobs"
	DocsDir      = "docs"
	LockFile     = ".write.lock"
)

// Repo is a located beads repository. Root is the directory containing
// the .beads directory, not the .beads directory itself.
type Repo struct {
	Root string
}

// Dir returns the .beads directory path.
func (r *Repo) Dir() string {
	return filepath.Join(r.Root, BeadsDir)
}

// EventLogPath returns the path of the append-only event log.
func (r *Repo) EventLogPath() string {
	return filepath.Join(r.Dir(), EventLogFile)
}

// CachePath returns the path of the derived SQLite cache.
func (r *Repo) CachePath() string {
	return filepath.Join(r.Dir(), CacheFile)
}

// BlobsPath returns the content-addressed blob directory.
func (r *Repo) BlobsPath() string {
	return filepath.Join(r.Dir(), BlobsDir)
}

// DocsPath returns the editable docs workspace for one issue.
func (r *Repo) DocsPath(issueID string) string {
	return filepath.Join(r.Dir(), DocsDir, issueID)
}

// LockPath returns the write lock file path.
func (r *Repo) LockPath() string {
	return filepath.Join(r.Dir(), LockFile)
}

// Find walks up from the current working directory looking for a .beads
// directory, the same way git finds its .git.
func Find() (*Repo, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, beaderr.NewIO("determine working directory", ".", err)
	}
	return FindFrom(cwd)
}

// FindFrom walks up from start until it finds a directory containing
// .beads. Returns RepoNotFound with the searched paths when none of the
// ancestors has one.
func FindFrom(start string) (*Repo, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return nil, beaderr.NewIO("resolve path", start, err)
	}

	var searched []string
	for {
		searched = append(searched, dir)
		candidate := filepath.Join(dir, BeadsDir)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return &Repo{Root: dir}, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, &beaderr.RepoNotFound{Searched: searched}
		}
		dir = parent
	}
}

// Init creates a new repository at root with the given issue id prefix:
// the .beads directory, an empty event log, the cache with seeded
// metadata, the blob directory, and gitignore entries for the derived
// artifacts. Fails with RepoExists when root already has a .beads.
func Init(ctx context.Context, root, idPrefix string) (*Repo, error) {
	r := &Repo{Root: root}

	if _, err := os.Stat(r.Dir()); err == nil {
		return nil, &beaderr.RepoExists{Path: r.Dir()}
	}

	if err := os.MkdirAll(r.BlobsPath(), 0o755); err != nil {
		return nil, beaderr.NewIO("create repository directories", r.BlobsPath(), err)
	}

	// The log exists from the start so readers never special-case a
	// missing file against a missing repo.
	f, err := os.OpenFile(r.EventLogPath(), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, beaderr.NewIO("create event log", r.EventLogPath(), err)
	}
	f.Close()

	store, err := sqlite.Open(ctx, r.CachePath())
	if err != nil {
		return nil, err
	}
	defer store.Close()

	err = store.InTx(ctx, func(tx *sql.Tx) error {
		if err := sqlite.SetMeta(tx, sqlite.MetaIDPrefix, idPrefix); err != nil {
			return err
		}
		return sqlite.SetMeta(tx, sqlite.MetaLastIssueSerial, "0")
	})
	if err != nil {
		return nil, err
	}

	if err := ensureGitignore(root); err != nil {
		return nil, err
	}

	debug.Logf("repo: initialized %s with prefix %s", r.Dir(), idPrefix)
	return r, nil
}

// gitignoreEntries are the derived artifacts that must never be
// committed. The log itself is the shared source of truth and stays
// tracked.
var gitignoreEntries = []string{
	BeadsDir + "/" + CacheFile,
	BeadsDir + "/" + DocsDir + "/",
	BeadsDir + "/" + LockFile,
	BeadsDir + "/debug.log",
}

// ensureGitignore appends the missing derived-artifact entries to the
// root .gitignore, creating it when absent and never duplicating lines.
func ensureGitignore(root string) error {
	path := filepath.Join(root, ".gitignore")

	existing := map[string]bool{}
	content, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return beaderr.NewIO("read gitignore", path, err)
	}
	for _, line := range strings.Split(string(content), "\n") {
		existing[strings.TrimSpace(line)] = true
	}

	var missing []string
	for _, entry := range gitignoreEntries {
		if !existing[entry] {
			missing = append(missing, entry)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return beaderr.NewIO("open gitignore", path, err)
	}
	defer f.Close()

	var b strings.Builder
	if len(content) > 0 && !strings.HasSuffix(string(content), "\n") {
		b.WriteByte('\n')
	}
	for _, entry := range missing {
		b.WriteString(entry)
		b.WriteByte('\n')
	}
	if _, err := f.WriteString(b.String()); err != nil {
		return beaderr.NewIO("append to gitignore", path, err)
	}
	return nil
}

// LockWrite takes the repository write lock without blocking. The
// returned release function must be called when the mutation is done.
// A held lock surfaces as LockBusy rather than waiting, matching the
// short-lived invocation model.
func (r *Repo) LockWrite() (func(), error) {
	fl := flock.New(r.LockPath())
	locked, err := fl.TryLock()
	if err != nil {
		return nil, beaderr.NewIO("acquire write lock", r.LockPath(), err)
	}
	if !locked {
		return nil, &beaderr.LockBusy{Path: r.LockPath()}
	}
	return func() { _ = fl.Unlock() }, nil
}
