package beads

import (
	"context"
	"database/sql"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/untoldecay/beadcore/internal/beaderr"
	"github.com/untoldecay/beadcore/internal/storage/sqlite"
	"github.com/untoldecay/beadcore/internal/types"
)

const maxLabelNameLength = 50

// ValidateLabelName enforces the label naming rules: 1 to 50 characters
// of [A-Za-z0-9_-] after trimming surrounding whitespace. Returns the
// normalized name.
func ValidateLabelName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", &beaderr.InvalidLabelName{Name: name, Reason: "name is empty"}
	}
	if len(trimmed) > maxLabelNameLength {
		return "", &beaderr.InvalidLabelName{Name: name, Reason: "name exceeds 50 characters"}
	}
	for _, c := range trimmed {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-':
		default:
			return "", &beaderr.InvalidLabelName{
				Name:   name,
				Reason: "only letters, digits, underscore and hyphen are allowed",
			}
		}
	}
	return trimmed, nil
}

// AddLabel attaches a label to an issue, creating the label on first
// use. Label identity is the name; re-adding an attached label is a
// no-op. Labels are cache-only entities and are not logged as events.
func (s *Service) AddLabel(ctx context.Context, issueID, name, color, description string) (*types.Label, error) {
	normalized, err := ValidateLabelName(name)
	if err != nil {
		return nil, err
	}

	release, err := s.Repo.LockWrite()
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.catchUp(ctx); err != nil {
		return nil, err
	}

	exists, err := s.Store.IssueExists(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &beaderr.IssueNotFound{ID: issueID}
	}

	label, err := s.Store.GetLabelByName(ctx, normalized)
	if err != nil {
		return nil, err
	}

	err = s.Store.InTx(ctx, func(tx *sql.Tx) error {
		if label == nil {
			label = &types.Label{
				ID:          ulid.Make().String(),
				Name:        normalized,
				Color:       color,
				Description: description,
			}
			if err := sqlite.CreateLabel(tx, label); err != nil {
				return err
			}
		}
		return sqlite.AddIssueLabel(tx, issueID, label.ID)
	})
	if err != nil {
		return nil, err
	}
	return label, nil
}

// RemoveLabel detaches a label from an issue by name.
func (s *Service) RemoveLabel(ctx context.Context, issueID, name string) error {
	normalized, err := ValidateLabelName(name)
	if err != nil {
		return err
	}

	release, err := s.Repo.LockWrite()
	if err != nil {
		return err
	}
	defer release()

	label, err := s.Store.GetLabelByName(ctx, normalized)
	if err != nil {
		return err
	}
	if label == nil {
		return &beaderr.LabelNotFound{Name: normalized}
	}

	return s.Store.InTx(ctx, func(tx *sql.Tx) error {
		removed, err := sqlite.RemoveIssueLabel(tx, issueID, label.ID)
		if err != nil {
			return err
		}
		if !removed {
			return &beaderr.LabelNotAttached{IssueID: issueID, Name: normalized}
		}
		return nil
	})
}

// GetIssueLabels returns the labels attached to an issue.
func (s *Service) GetIssueLabels(ctx context.Context, issueID string) ([]*types.Label, error) {
	if _, err := s.GetIssue(ctx, issueID); err != nil {
		return nil, err
	}
	return s.Store.GetIssueLabels(ctx, issueID)
}

// GetAllLabels returns every label in the repository.
func (s *Service) GetAllLabels(ctx context.Context) ([]*types.Label, error) {
	return s.Store.GetAllLabels(ctx)
}

// GetIssuesByLabel returns the ids of issues carrying the named label.
func (s *Service) GetIssuesByLabel(ctx context.Context, name string) ([]string, error) {
	label, err := s.Store.GetLabelByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if label == nil {
		return nil, &beaderr.LabelNotFound{Name: name}
	}
	return s.Store.GetIssuesByLabel(ctx, label.ID)
}
