// Package beadcore provides the public API of the beads state engine:
// a local, file-backed issue tracker whose source of truth is an
// append-only JSONL event log, with a rebuildable SQLite cache and a
// content-addressed blob store beside it.
//
// Typical use:
//
//	repo, err := beadcore.InitRepo(ctx, ".", "bd")
//	svc, err := beadcore.Open(ctx)
//	issue, err := svc.CreateIssue(ctx, &beadcore.CreateIssueRequest{Title: "..."})
package beadcore

import (
	"context"

	"github.com/untoldecay/beadcore/internal/beads"
	"github.com/untoldecay/beadcore/internal/repo"
	"github.com/untoldecay/beadcore/internal/types"
)

// Service is the issue engine over one repository.
type Service = beads.Service

// CreateIssueRequest carries the fields of a new issue.
type CreateIssueRequest = beads.CreateIssueRequest

// Repo is a located beads repository on disk.
type Repo = repo.Repo

// Core domain types.
type (
	Issue             = types.Issue
	IssueUpdate       = types.IssueUpdate
	Label             = types.Label
	Event             = types.Event
	OpKind            = types.OpKind
	IssueRef          = types.IssueRef
	DeleteImpact      = types.DeleteImpact
	DeleteFailure     = types.DeleteFailure
	BatchDeleteResult = types.BatchDeleteResult
)

// Open locates the repository from the working directory and opens a
// service over it, catching the cache up with the log if needed.
func Open(ctx context.Context) (*Service, error) {
	return beads.Open(ctx)
}

// OpenAt is Open starting the repository search from a given directory.
func OpenAt(ctx context.Context, start string) (*Service, error) {
	return beads.OpenAt(ctx, start)
}

// InitRepo creates a new repository at root with the given issue id
// prefix.
func InitRepo(ctx context.Context, root, idPrefix string) (*Repo, error) {
	return repo.Init(ctx, root, idPrefix)
}

// FindRepo walks up from the working directory looking for a .beads
// directory, the same way git finds its .git.
func FindRepo() (*Repo, error) {
	return repo.Find()
}

// Validation helpers for callers that want to reject typos at the
// boundary; the engine itself accepts any status string.
var (
	ValidateStatus    = beads.ValidateStatus
	ValidateKind      = beads.ValidateKind
	ValidatePriority  = beads.ValidatePriority
	ValidateLabelName = beads.ValidateLabelName
)
