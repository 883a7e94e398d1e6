package beads

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/untoldecay/beadcore/internal/beaderr"
	"github.com/untoldecay/beadcore/internal/eventlog"
	"github.com/untoldecay/beadcore/internal/types"
)

// CreateIssueRequest carries the fields of a new issue. Title is
// required; Kind defaults to task, Status to open.
type CreateIssueRequest struct {
	Title              string
	Kind               string
	Priority           int
	Status             string
	Description        string
	Design             string
	AcceptanceCriteria string
	Notes              string
	DependsOn          []string
	Data               map[string]any
}

// CreateIssue allocates the next issue id, appends a create event, and
// projects it. Dependency targets must already exist.
func (s *Service) CreateIssue(ctx context.Context, req *CreateIssueRequest) (*types.Issue, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, &beaderr.MissingRequiredField{Field: "title"}
	}
	kind := req.Kind
	if kind == "" {
		kind = types.KindTask
	}
	status := req.Status
	if status == "" {
		status = types.StatusOpen
	}

	release, err := s.Repo.LockWrite()
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.catchUp(ctx); err != nil {
		return nil, err
	}

	for _, target := range req.DependsOn {
		exists, err := s.Store.IssueExists(ctx, target)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, &beaderr.IssueNotFound{ID: target}
		}
	}

	id, err := s.nextIssueID(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := createEventPayload(req, kind, status)
	if err != nil {
		return nil, err
	}

	lastID, err := s.lastEventID(ctx)
	if err != nil {
		return nil, err
	}
	event := eventlog.NewEvent(types.OpCreate, id, payload, lastID)
	if _, err := s.appendAndApply(ctx, event); err != nil {
		return nil, err
	}

	return s.GetIssue(ctx, id)
}

// createEventPayload builds the create event data: the issue's data
// document overlaid with the column fields. The projection splits it
// back apart the same way.
func createEventPayload(req *CreateIssueRequest, kind, status string) (json.RawMessage, error) {
	payload := make(map[string]any, len(req.Data)+6)
	for k, v := range req.Data {
		payload[k] = v
	}
	payload["title"] = req.Title
	payload["kind"] = kind
	payload["priority"] = req.Priority
	payload["status"] = status
	if req.Description != "" {
		payload["description"] = req.Description
	}
	if req.Design != "" {
		payload["design"] = req.Design
	}
	if req.AcceptanceCriteria != "" {
		payload["acceptance_criteria"] = req.AcceptanceCriteria
	}
	if req.Notes != "" {
		payload["notes"] = req.Notes
	}
	if len(req.DependsOn) > 0 {
		payload["depends_on"] = req.DependsOn
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, &beaderr.InvalidJSON{Context: "create payload", Err: err}
	}
	return raw, nil
}

// UpdateIssue appends an update event carrying only the present fields
// and projects it. Empty updates are rejected before touching the log.
// Returns the updated issue, or nil when the update set status to
// "deleted" (the row is gone; use DeleteIssue for the impact report).
func (s *Service) UpdateIssue(ctx context.Context, id string, update *types.IssueUpdate) (*types.Issue, error) {
	if update == nil || update.IsEmpty() {
		return nil, &beaderr.EmptyUpdate{ID: id}
	}

	release, err := s.Repo.LockWrite()
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.catchUp(ctx); err != nil {
		return nil, err
	}

	exists, err := s.Store.IssueExists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &beaderr.IssueNotFound{ID: id}
	}

	if _, err := s.updateLocked(ctx, id, update); err != nil {
		return nil, err
	}

	if update.Status != nil && *update.Status == types.StatusDeleted {
		return nil, nil
	}
	return s.GetIssue(ctx, id)
}

// updateLocked appends and applies an update event. Callers hold the
// write lock and have verified the issue exists. Returns the number of
// text-reference substitutions (non-zero only for deletes).
func (s *Service) updateLocked(ctx context.Context, id string, update *types.IssueUpdate) (int, error) {
	raw, err := json.Marshal(update)
	if err != nil {
		return 0, &beaderr.InvalidJSON{Context: "update payload for " + id, Err: err}
	}

	lastID, err := s.lastEventID(ctx)
	if err != nil {
		return 0, err
	}
	event := eventlog.NewEvent(types.OpUpdate, id, raw, lastID)
	return s.appendAndApply(ctx, event)
}

// GetIssue returns the issue or IssueNotFound.
func (s *Service) GetIssue(ctx context.Context, id string) (*types.Issue, error) {
	issue, err := s.Store.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	if issue == nil {
		return nil, &beaderr.IssueNotFound{ID: id}
	}
	return issue, nil
}

// GetAllIssues returns every live issue ordered by id.
func (s *Service) GetAllIssues(ctx context.Context) ([]*types.Issue, error) {
	return s.Store.GetAllIssues(ctx)
}

// GetReadyIssues returns open issues with no open blockers, the
// natural "what can I work on" query.
func (s *Service) GetReadyIssues(ctx context.Context) ([]*types.Issue, error) {
	return s.Store.GetReadyIssues(ctx)
}
