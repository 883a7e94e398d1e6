package sqlite

import (
	"context"
	"database/sql"

	"github.com/untoldecay/beadcore/internal/beaderr"
	"github.com/untoldecay/beadcore/internal/types"
)

// CreateLabel inserts a new label. Names are unique (case-sensitive);
// callers look up by name first and reuse the existing id.
func CreateLabel(tx *sql.Tx, label *types.Label) error {
	_, err := tx.Exec(`
		INSERT INTO labels (id, name, color, description) VALUES (?, ?, ?, ?)
	`, label.ID, label.Name, label.Color, label.Description)
	if err != nil {
		return &beaderr.Database{Op: "create label " + label.Name, Err: err}
	}
	return nil
}

// GetLabelByName returns the label with the given name, or nil.
func (s *Store) GetLabelByName(ctx context.Context, name string) (*types.Label, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, color, description FROM labels WHERE name = ?
	`, name)
	var label types.Label
	err := row.Scan(&label.ID, &label.Name, &label.Color, &label.Description)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &beaderr.Database{Op: "get label " + name, Err: err}
	}
	return &label, nil
}

// AddIssueLabel associates an issue with a label. Idempotent.
func AddIssueLabel(tx *sql.Tx, issueID, labelID string) error {
	_, err := tx.Exec(`
		INSERT OR IGNORE INTO issue_labels (issue_id, label_id) VALUES (?, ?)
	`, issueID, labelID)
	if err != nil {
		return &beaderr.Database{Op: "add issue label", Err: err}
	}
	return nil
}

// RemoveIssueLabel removes the association. The bool reports whether
// an association was actually there; the service turns false into its
// domain error.
func RemoveIssueLabel(tx *sql.Tx, issueID, labelID string) (bool, error) {
	res, err := tx.Exec(`
		DELETE FROM issue_labels WHERE issue_id = ? AND label_id = ?
	`, issueID, labelID)
	if err != nil {
		return false, &beaderr.Database{Op: "remove issue label", Err: err}
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, &beaderr.Database{Op: "remove issue label", Err: err}
	}
	return rows > 0, nil
}

// GetIssueLabels returns the labels attached to an issue, by name.
func (s *Store) GetIssueLabels(ctx context.Context, issueID string) ([]*types.Label, error) {
	return s.labelRows(ctx, `
		SELECT l.id, l.name, l.color, l.description
		FROM labels l
		JOIN issue_labels il ON l.id = il.label_id
		WHERE il.issue_id = ?
		ORDER BY l.name ASC
	`, issueID)
}

// GetAllLabels returns every label in the repo, by name.
func (s *Store) GetAllLabels(ctx context.Context) ([]*types.Label, error) {
	return s.labelRows(ctx, `
		SELECT id, name, color, description FROM labels ORDER BY name ASC
	`)
}

// GetIssuesByLabel returns the ids of issues carrying the label.
func (s *Store) GetIssuesByLabel(ctx context.Context, labelID string) ([]string, error) {
	return s.idColumn(ctx, `
		SELECT issue_id FROM issue_labels WHERE label_id = ? ORDER BY issue_id
	`, labelID)
}

func (s *Store) labelRows(ctx context.Context, query string, args ...any) ([]*types.Label, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &beaderr.Database{Op: "query labels", Err: err}
	}
	defer rows.Close()

	var labels []*types.Label
	for rows.Next() {
		var label types.Label
		if err := rows.Scan(&label.ID, &label.Name, &label.Color, &label.Description); err != nil {
			return nil, &beaderr.Database{Op: "scan label", Err: err}
		}
		labels = append(labels, &label)
	}
	if err := rows.Err(); err != nil {
		return nil, &beaderr.Database{Op: "iterate labels", Err: err}
	}
	return labels, nil
}
