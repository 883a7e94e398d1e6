package sqlite

import (
	"context"
	"database/sql"

	"github.com/untoldecay/beadcore/internal/beaderr"
)

// RepairTextReferences rewrites literal occurrences of a deleted issue
// id in the text of every other issue, replacing the id with
// "[deleted:<id>]" so readers can tell the target is gone. It returns
// the number of issues whose text changed. The deleted issue's own row
// is excluded; call this before removing the row or after, either
// works.
func RepairTextReferences(tx *sql.Tx, deletedID string) (int, error) {
	marker := "[deleted:" + deletedID + "]"
	res, err := tx.Exec(`
		UPDATE issues SET
			title = REPLACE(title, ?, ?),
			description = REPLACE(description, ?, ?),
			design = REPLACE(design, ?, ?),
			acceptance_criteria = REPLACE(acceptance_criteria, ?, ?),
			notes = REPLACE(notes, ?, ?),
			data = REPLACE(data, ?, ?)
		WHERE id != ? AND (
			title LIKE '%' || ? || '%'
			OR description LIKE '%' || ? || '%'
			OR design LIKE '%' || ? || '%'
			OR acceptance_criteria LIKE '%' || ? || '%'
			OR notes LIKE '%' || ? || '%'
			OR data LIKE '%' || ? || '%'
		)
	`, deletedID, marker, deletedID, marker, deletedID, marker,
		deletedID, marker, deletedID, marker, deletedID, marker,
		deletedID,
		deletedID, deletedID, deletedID, deletedID, deletedID, deletedID)
	if err != nil {
		return 0, &beaderr.Database{Op: "repair text references to " + deletedID, Err: err}
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, &beaderr.Database{Op: "repair text references to " + deletedID, Err: err}
	}
	return int(rows), nil
}

// CountTextReferences counts the issues (other than the target itself)
// whose text mentions the id literally, for delete impact previews. It
// runs outside any transaction so previews never take the write lock.
func (s *Store) CountTextReferences(ctx context.Context, id string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM issues
		WHERE id != ? AND (
			title LIKE '%' || ? || '%'
			OR description LIKE '%' || ? || '%'
			OR design LIKE '%' || ? || '%'
			OR acceptance_criteria LIKE '%' || ? || '%'
			OR notes LIKE '%' || ? || '%'
			OR data LIKE '%' || ? || '%'
		)
	`, id, id, id, id, id, id, id).Scan(&count)
	if err != nil {
		return 0, &beaderr.Database{Op: "count text references to " + id, Err: err}
	}
	return count, nil
}
