package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/untoldecay/beadcore/internal/beaderr"
	"github.com/untoldecay/beadcore/internal/types"
)

const issueColumns = "id, title, kind, priority, status, created_at, description, design, acceptance_criteria, notes, data"

// UpsertIssue inserts or fully replaces an issue row.
func UpsertIssue(tx *sql.Tx, issue *types.Issue) error {
	data, err := encodeData(issue.Data)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO issues (id, title, kind, priority, status, created_at, description, design, acceptance_criteria, notes, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			kind = excluded.kind,
			priority = excluded.priority,
			status = excluded.status,
			created_at = excluded.created_at,
			description = excluded.description,
			design = excluded.design,
			acceptance_criteria = excluded.acceptance_criteria,
			notes = excluded.notes,
			data = excluded.data
	`, issue.ID, issue.Title, issue.Kind, issue.Priority, issue.Status, issue.CreatedAt,
		issue.Description, issue.Design, issue.AcceptanceCriteria, issue.Notes, data)
	if err != nil {
		return &beaderr.Database{Op: "upsert issue " + issue.ID, Err: err}
	}
	return nil
}

// GetIssue returns the issue with the given id, or nil when it is not
// in the cache (deleted issues are absent by design).
func (s *Store) GetIssue(ctx context.Context, id string) (*types.Issue, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE id = ?`, id)
	issue, err := scanIssue(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &beaderr.Database{Op: "get issue " + id, Err: err}
	}
	return issue, nil
}

// GetAllIssues returns every cached issue ordered by id.
func (s *Store) GetAllIssues(ctx context.Context) ([]*types.Issue, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+issueColumns+` FROM issues ORDER BY id ASC`)
	if err != nil {
		return nil, &beaderr.Database{Op: "list issues", Err: err}
	}
	defer rows.Close()

	var issues []*types.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, &beaderr.Database{Op: "scan issue", Err: err}
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, &beaderr.Database{Op: "iterate issues", Err: err}
	}
	return issues, nil
}

// GetReadyIssues returns open issues whose blockers are all closed,
// highest priority first (0 is the most urgent).
func (s *Store) GetReadyIssues(ctx context.Context) ([]*types.Issue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+issueColumns+` FROM issues
		WHERE status = 'open' AND NOT EXISTS (
			SELECT 1 FROM dependencies d
			JOIN issues b ON b.id = d.depends_on_id
			WHERE d.issue_id = issues.id AND b.status != 'closed'
		)
		ORDER BY priority ASC, id ASC
	`)
	if err != nil {
		return nil, &beaderr.Database{Op: "list ready issues", Err: err}
	}
	defer rows.Close()

	var issues []*types.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, &beaderr.Database{Op: "scan issue", Err: err}
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, &beaderr.Database{Op: "iterate issues", Err: err}
	}
	return issues, nil
}

// GetIssuesCreatedBetween returns issues with created_at strictly
// inside (after, before). Empty bounds are open. Timestamps compare
// lexicographically because they share a fixed-width UTC layout.
func (s *Store) GetIssuesCreatedBetween(ctx context.Context, after, before string) ([]*types.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE 1=1`
	var args []any
	if after != "" {
		query += ` AND created_at > ?`
		args = append(args, after)
	}
	if before != "" {
		query += ` AND created_at < ?`
		args = append(args, before)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &beaderr.Database{Op: "filter issues by created_at", Err: err}
	}
	defer rows.Close()

	var issues []*types.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, &beaderr.Database{Op: "scan issue", Err: err}
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, &beaderr.Database{Op: "iterate issues", Err: err}
	}
	return issues, nil
}

// ApplyIssueUpdate applies the present fields of a partial update to an
// existing row. Absent fields are untouched.
func ApplyIssueUpdate(tx *sql.Tx, id string, update *types.IssueUpdate) error {
	set := func(column string, value any) error {
		_, err := tx.Exec(`UPDATE issues SET `+column+` = ? WHERE id = ?`, value, id)
		if err != nil {
			return &beaderr.Database{Op: "update issue " + column, Err: err}
		}
		return nil
	}

	if update.Title != nil {
		if err := set("title", *update.Title); err != nil {
			return err
		}
	}
	if update.Kind != nil {
		if err := set("kind", *update.Kind); err != nil {
			return err
		}
	}
	if update.Priority != nil {
		if err := set("priority", *update.Priority); err != nil {
			return err
		}
	}
	if update.Status != nil {
		if err := set("status", *update.Status); err != nil {
			return err
		}
	}
	if update.Description != nil {
		if err := set("description", *update.Description); err != nil {
			return err
		}
	}
	if update.Design != nil {
		if err := set("design", *update.Design); err != nil {
			return err
		}
	}
	if update.AcceptanceCriteria != nil {
		if err := set("acceptance_criteria", *update.AcceptanceCriteria); err != nil {
			return err
		}
	}
	if update.Notes != nil {
		if err := set("notes", *update.Notes); err != nil {
			return err
		}
	}
	if update.Data != nil {
		data, err := encodeData(update.Data)
		if err != nil {
			return err
		}
		if err := set("data", data); err != nil {
			return err
		}
	}
	return nil
}

// DeleteIssue removes an issue row. Dependency edges and label
// assignments go with it via cascade.
func DeleteIssue(tx *sql.Tx, id string) error {
	if _, err := tx.Exec(`DELETE FROM issues WHERE id = ?`, id); err != nil {
		return &beaderr.Database{Op: "delete issue " + id, Err: err}
	}
	return nil
}

// ClearIssues truncates the issue projection ahead of a full replay.
// Dependencies and label assignments cascade away; the labels table
// itself survives because labels are cache-only entities.
func ClearIssues(tx *sql.Tx) error {
	if _, err := tx.Exec(`DELETE FROM issues`); err != nil {
		return &beaderr.Database{Op: "clear issues", Err: err}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (*types.Issue, error) {
	var issue types.Issue
	var data sql.NullString
	err := row.Scan(&issue.ID, &issue.Title, &issue.Kind, &issue.Priority, &issue.Status,
		&issue.CreatedAt, &issue.Description, &issue.Design, &issue.AcceptanceCriteria,
		&issue.Notes, &data)
	if err != nil {
		return nil, err
	}
	if data.Valid && data.String != "" {
		if err := json.Unmarshal([]byte(data.String), &issue.Data); err != nil {
			return nil, &beaderr.InvalidJSON{Context: "issue data column for " + issue.ID, Err: err}
		}
	}
	return &issue, nil
}

// encodeData serializes an issue data document for the TEXT column.
// Nil maps become SQL NULL.
func encodeData(data map[string]any) (any, error) {
	if data == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, &beaderr.InvalidJSON{Context: "issue data document", Err: err}
	}
	return string(encoded), nil
}
