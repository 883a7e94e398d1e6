// Package beads implements the issue service: the public operations
// over a repository's event log, derived cache, and blob store. Every
// mutation appends an event first, then applies it to the cache through
// the same projection the replay engine uses, so the cache is always a
// fold of the log.
package beads

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/untoldecay/beadcore/internal/beaderr"
	"github.com/untoldecay/beadcore/internal/blob"
	"github.com/untoldecay/beadcore/internal/debug"
	"github.com/untoldecay/beadcore/internal/eventlog"
	"github.com/untoldecay/beadcore/internal/replay"
	"github.com/untoldecay/beadcore/internal/repo"
	"github.com/untoldecay/beadcore/internal/storage/sqlite"
	"github.com/untoldecay/beadcore/internal/types"
)

// Service is the issue engine over one repository.
type Service struct {
	Repo   *repo.Repo
	Store  *sqlite.Store
	Log    *eventlog.Log
	Blobs  *blob.Store
	engine *replay.Engine
}

// Open locates the repository from the working directory and opens a
// service over it. If the log has grown past the cache (an external
// merge, or a crash between append and commit), the cache catches up
// before the service is handed out.
func Open(ctx context.Context) (*Service, error) {
	r, err := repo.Find()
	if err != nil {
		return nil, err
	}
	return OpenRepo(ctx, r)
}

// OpenAt is Open starting the repository search from a given directory.
func OpenAt(ctx context.Context, start string) (*Service, error) {
	r, err := repo.FindFrom(start)
	if err != nil {
		return nil, err
	}
	return OpenRepo(ctx, r)
}

// OpenRepo opens a service over an already located repository.
func OpenRepo(ctx context.Context, r *repo.Repo) (*Service, error) {
	store, err := sqlite.Open(ctx, r.CachePath())
	if err != nil {
		return nil, err
	}

	log := eventlog.New(r.EventLogPath())
	s := &Service{
		Repo:   r,
		Store:  store,
		Log:    log,
		Blobs:  blob.New(r.BlobsPath()),
		engine: replay.New(log, store),
	}

	if err := s.catchUp(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the cache handle.
func (s *Service) Close() error {
	return s.Store.Close()
}

// Sync reconciles the cache with the log, incrementally by default or
// from scratch when full is set. Called after an external merge of the
// log has brought in new lines. Returns the number of events applied.
func (s *Service) Sync(ctx context.Context, full bool) (int, error) {
	release, err := s.Repo.LockWrite()
	if err != nil {
		return 0, err
	}
	defer release()

	if full {
		return s.engine.Full(ctx)
	}
	return s.engine.Incremental(ctx)
}

// catchUp applies any log suffix the cache has not seen yet.
func (s *Service) catchUp(ctx context.Context) error {
	behind, err := s.engine.Behind(ctx)
	if err != nil {
		return err
	}
	if !behind {
		return nil
	}
	applied, err := s.engine.Incremental(ctx)
	if err != nil {
		return err
	}
	debug.Logf("service: caught up %d events", applied)
	return nil
}

// appendAndApply is the single write path every mutation funnels
// through: append the event to the log, then in one cache transaction
// project it and advance the high-water marks. Returns the number of
// text-reference substitutions the projection performed.
func (s *Service) appendAndApply(ctx context.Context, e *types.Event) (int, error) {
	end, err := s.Log.Append(e)
	if err != nil {
		return 0, err
	}

	var repaired int
	err = s.Store.InTx(ctx, func(tx *sql.Tx) error {
		var err error
		repaired, err = replay.ApplyEvent(tx, e)
		if err != nil {
			return err
		}
		if err := sqlite.SetMeta(tx, sqlite.MetaLastEventID, e.EventID); err != nil {
			return err
		}
		return sqlite.SetMeta(tx, sqlite.MetaLastProcessedOffset, strconv.FormatInt(end, 10))
	})
	if err != nil {
		// The log is ahead of the cache now; the next open or sync
		// repairs via incremental replay.
		return 0, err
	}
	return repaired, nil
}

// lastEventID returns the id high-water mark, or "" before any event.
func (s *Service) lastEventID(ctx context.Context) (string, error) {
	id, _, err := s.Store.GetMeta(ctx, sqlite.MetaLastEventID)
	return id, err
}

// nextIssueID allocates the next issue id in its own transaction.
// Serials advance even when the subsequent create fails, so ids are
// never reused; gaps are expected and harmless.
func (s *Service) nextIssueID(ctx context.Context) (string, error) {
	var id string
	err := s.Store.InTx(ctx, func(tx *sql.Tx) error {
		prefix, found, err := sqlite.GetMetaTx(tx, sqlite.MetaIDPrefix)
		if err != nil {
			return err
		}
		if !found || prefix == "" {
			return &beaderr.MissingConfig{Key: sqlite.MetaIDPrefix}
		}

		raw, found, err := sqlite.GetMetaTx(tx, sqlite.MetaLastIssueSerial)
		if err != nil {
			return err
		}
		serial := 0
		if found && raw != "" {
			serial, err = strconv.Atoi(raw)
			if err != nil {
				return &beaderr.Database{Op: "parse last_issue_serial " + raw, Err: err}
			}
		}
		serial++

		if err := sqlite.SetMeta(tx, sqlite.MetaLastIssueSerial, strconv.Itoa(serial)); err != nil {
			return err
		}
		id = fmt.Sprintf("%s-%03d", prefix, serial)
		return nil
	})
	return id, err
}
