package sqlite

import (
	"context"
	"database/sql"

	"github.com/untoldecay/beadcore/internal/beaderr"
)

// AddDependency inserts the edge issueID -> dependsOnID. Inserting an
// existing edge is a no-op. Cycle checking happens at the service
// layer; this is the raw edge write.
func AddDependency(tx *sql.Tx, issueID, dependsOnID string) error {
	_, err := tx.Exec(`
		INSERT OR IGNORE INTO dependencies (issue_id, depends_on_id) VALUES (?, ?)
	`, issueID, dependsOnID)
	if err != nil {
		return &beaderr.Database{Op: "add dependency", Err: err}
	}
	return nil
}

// RemoveDependency deletes the edge, failing when it does not exist.
func RemoveDependency(tx *sql.Tx, issueID, dependsOnID string) error {
	res, err := tx.Exec(`
		DELETE FROM dependencies WHERE issue_id = ? AND depends_on_id = ?
	`, issueID, dependsOnID)
	if err != nil {
		return &beaderr.Database{Op: "remove dependency", Err: err}
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return &beaderr.Database{Op: "remove dependency", Err: err}
	}
	if rows == 0 {
		return &beaderr.DependencyNotFound{From: issueID, To: dependsOnID}
	}
	return nil
}

// GetDependencies returns the ids this issue depends on (its blockers).
func (s *Store) GetDependencies(ctx context.Context, issueID string) ([]string, error) {
	return s.idColumn(ctx, `
		SELECT depends_on_id FROM dependencies WHERE issue_id = ? ORDER BY depends_on_id
	`, issueID)
}

// GetOpenDependencies returns the blockers that are not yet closed.
func (s *Store) GetOpenDependencies(ctx context.Context, issueID string) ([]string, error) {
	return s.idColumn(ctx, `
		SELECT d.depends_on_id
		FROM dependencies d
		JOIN issues i ON i.id = d.depends_on_id
		WHERE d.issue_id = ? AND i.status != 'closed'
		ORDER BY d.depends_on_id
	`, issueID)
}

// GetDependents returns the ids that depend on this issue.
func (s *Store) GetDependents(ctx context.Context, issueID string) ([]string, error) {
	return s.idColumn(ctx, `
		SELECT issue_id FROM dependencies WHERE depends_on_id = ? ORDER BY issue_id
	`, issueID)
}

// DependencyEdges returns the whole edge set as a forward adjacency
// map (issue -> ids it depends on). Graph traversals load the edge set
// once and walk in memory with an explicit work list, because the DAG
// invariant can be transiently broken by a merge import before replay
// re-establishes it.
func (s *Store) DependencyEdges(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT issue_id, depends_on_id FROM dependencies ORDER BY issue_id, depends_on_id
	`)
	if err != nil {
		return nil, &beaderr.Database{Op: "load dependency edges", Err: err}
	}
	defer rows.Close()

	edges := make(map[string][]string)
	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			return nil, &beaderr.Database{Op: "scan dependency edge", Err: err}
		}
		edges[from] = append(edges[from], to)
	}
	if err := rows.Err(); err != nil {
		return nil, &beaderr.Database{Op: "iterate dependency edges", Err: err}
	}
	return edges, nil
}

// ReverseDependencyEdges returns the edge set keyed by dependency
// target (id -> ids that depend on it), for dependent traversals.
func (s *Store) ReverseDependencyEdges(ctx context.Context) (map[string][]string, error) {
	forward, err := s.DependencyEdges(ctx)
	if err != nil {
		return nil, err
	}
	reverse := make(map[string][]string)
	for from, tos := range forward {
		for _, to := range tos {
			reverse[to] = append(reverse[to], from)
		}
	}
	return reverse, nil
}

// IssueExists reports whether an issue row is present in the cache.
func (s *Store) IssueExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM issues WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, &beaderr.Database{Op: "check issue " + id, Err: err}
	}
	return true, nil
}

// IssueExistsTx is IssueExists inside a transaction.
func IssueExistsTx(tx *sql.Tx, id string) (bool, error) {
	var one int
	err := tx.QueryRow(`SELECT 1 FROM issues WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, &beaderr.Database{Op: "check issue " + id, Err: err}
	}
	return true, nil
}

func (s *Store) idColumn(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &beaderr.Database{Op: "query ids", Err: err}
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &beaderr.Database{Op: "scan id", Err: err}
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, &beaderr.Database{Op: "iterate ids", Err: err}
	}
	return ids, nil
}
