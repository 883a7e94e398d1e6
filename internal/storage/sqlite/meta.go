package sqlite

import (
	"context"
	"database/sql"

	"github.com/untoldecay/beadcore/internal/beaderr"
)

// Repo metadata keys stored in _meta.
const (
	MetaIDPrefix            = "id_prefix"
	MetaLastIssueSerial     = "last_issue_serial"
	MetaLastEventID         = "last_event_id"
	MetaLastProcessedOffset = "last_processed_offset"
)

// SetMeta upserts a metadata key inside a transaction.
func SetMeta(tx *sql.Tx, key, value string) error {
	_, err := tx.Exec(`
		INSERT INTO _meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return &beaderr.Database{Op: "set meta " + key, Err: err}
	}
	return nil
}

// GetMeta reads a metadata key. The second return is false when the
// key is absent.
func (s *Store) GetMeta(ctx context.Context, key string) (string, bool, error) {
	return getMeta(ctx, s.db, key)
}

// GetMetaTx reads a metadata key within a transaction, seeing writes
// made earlier in the same transaction.
func GetMetaTx(tx *sql.Tx, key string) (string, bool, error) {
	return getMeta(context.Background(), tx, key)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getMeta(ctx context.Context, q querier, key string) (string, bool, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM _meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, &beaderr.Database{Op: "get meta " + key, Err: err}
	}
	return value, true, nil
}
