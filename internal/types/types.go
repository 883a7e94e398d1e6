// Package types defines the domain model shared by the event log, the
// derived cache, and the issue service.
package types

import "encoding/json"

// Issue statuses recognized by validation helpers. The projection itself
// is permissive and stores whatever status string an event carries.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusReview     = "review"
	StatusClosed     = "closed"
	StatusDeleted    = "deleted"
)

// ValidStatuses lists the statuses the engine recognizes, in display order.
var ValidStatuses = []string{StatusOpen, StatusInProgress, StatusReview, StatusClosed, StatusDeleted}

// Issue kinds recognized by validation helpers.
const (
	KindBug     = "bug"
	KindFeature = "feature"
	KindTask    = "task"
	KindChore   = "chore"
	KindEpic    = "epic"
)

// ValidKinds lists the kinds the engine recognizes.
var ValidKinds = []string{KindBug, KindFeature, KindTask, KindChore, KindEpic}

// OpKind is the tagged variant discriminator of an event.
type OpKind string

const (
	OpCreate  OpKind = "create"
	OpUpdate  OpKind = "update"
	OpComment OpKind = "comment"
	OpLink    OpKind = "link"
	OpUnlink  OpKind = "unlink"
	OpArchive OpKind = "archive"
)

// KnownOp reports whether op is one of the recognized event kinds.
// Unknown ops make a log line unparseable and therefore fatal on replay.
func KnownOp(op OpKind) bool {
	switch op {
	case OpCreate, OpUpdate, OpComment, OpLink, OpUnlink, OpArchive:
		return true
	}
	return false
}

// Event is one line of the append-only log. Data is kept opaque so that
// reserved op kinds (comment, link, unlink, archive) round-trip untouched.
type Event struct {
	EventID string          `json:"event_id"`
	TS      string          `json:"ts"`
	Op      OpKind          `json:"op"`
	ID      string          `json:"id"`
	Actor   string          `json:"actor"`
	Data    json.RawMessage `json:"data"`
}

// Issue is a row of the derived cache.
type Issue struct {
	ID                 string         `json:"id"`
	Title              string         `json:"title"`
	Kind               string         `json:"kind"`
	Priority           int            `json:"priority"`
	Status             string         `json:"status"`
	CreatedAt          string         `json:"created_at"`
	Description        string         `json:"description,omitempty"`
	Design             string         `json:"design,omitempty"`
	AcceptanceCriteria string         `json:"acceptance_criteria,omitempty"`
	Notes              string         `json:"notes,omitempty"`
	Data               map[string]any `json:"data,omitempty"`
}

// IssueUpdate is a partial update. Nil fields are absent from both the
// update event payload and the cache mutation.
type IssueUpdate struct {
	Title              *string        `json:"title,omitempty"`
	Kind               *string        `json:"kind,omitempty"`
	Priority           *int           `json:"priority,omitempty"`
	Status             *string        `json:"status,omitempty"`
	Description        *string        `json:"description,omitempty"`
	Design             *string        `json:"design,omitempty"`
	AcceptanceCriteria *string        `json:"acceptance_criteria,omitempty"`
	Notes              *string        `json:"notes,omitempty"`
	Data               map[string]any `json:"data,omitempty"`
}

// IsEmpty reports whether the update carries no fields at all.
// Empty updates are rejected before anything is appended to the log.
func (u *IssueUpdate) IsEmpty() bool {
	return u.Title == nil &&
		u.Kind == nil &&
		u.Priority == nil &&
		u.Status == nil &&
		u.Description == nil &&
		u.Design == nil &&
		u.AcceptanceCriteria == nil &&
		u.Notes == nil &&
		u.Data == nil
}

// Label is a named tag. Names are unique per repo; the id is a
// time-ordered ULID so labels created on different machines keep
// distinct identities.
type Label struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color,omitempty"`
	Description string `json:"description,omitempty"`
}

// IssueRef is an id/title pair used in deletion previews.
type IssueRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// DeleteImpact describes what a deletion touched (or would touch, in
// preview mode): the issues removed, the issues that transitively
// depended on them, and how many text-reference substitutions occurred.
type DeleteImpact struct {
	IssuesToDelete    []IssueRef `json:"issues_to_delete"`
	BlockedIssues     []string   `json:"blocked_issues"`
	ReferencesUpdated int        `json:"references_updated"`
}

// DeleteFailure records a per-issue failure inside a batch delete.
type DeleteFailure struct {
	IssueID string `json:"issue_id"`
	Err     error  `json:"-"`
}

// BatchDeleteResult collects per-issue outcomes of a batch delete.
// A failed element never aborts the batch.
type BatchDeleteResult struct {
	Successes []string
	Failures  []DeleteFailure
}
