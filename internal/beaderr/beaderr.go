// Package beaderr defines the typed errors the engine returns. The core
// never prints; callers match with errors.As / errors.Is and render the
// structured fields however they like.
package beaderr

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
)

// RepoNotFound means no .beads directory was found walking up from the
// starting directory.
type RepoNotFound struct {
	Searched []string
}

func (e *RepoNotFound) Error() string {
	return fmt.Sprintf("beads repository not found (searched %d directories)", len(e.Searched))
}

// RepoExists means init was attempted over an existing repository.
type RepoExists struct {
	Path string
}

func (e *RepoExists) Error() string {
	return fmt.Sprintf("beads repository already exists at %s", e.Path)
}

// IssueNotFound means a lookup referenced an unknown issue id.
type IssueNotFound struct {
	ID string
}

func (e *IssueNotFound) Error() string {
	return fmt.Sprintf("issue %q not found", e.ID)
}

// BlobNotFound means a hash is referenced but the blob file is absent.
type BlobNotFound struct {
	Hash string
}

func (e *BlobNotFound) Error() string {
	return fmt.Sprintf("blob %s not found", e.Hash)
}

// InvalidHash means a hash string is syntactically malformed.
type InvalidHash struct {
	Hash   string
	Reason string
}

func (e *InvalidHash) Error() string {
	return fmt.Sprintf("invalid blob hash %q: %s", e.Hash, e.Reason)
}

// CircularDependency means a proposed edge would close a cycle.
// Cycle holds the full path, starting and ending at the same id.
type CircularDependency struct {
	Cycle []string
}

func (e *CircularDependency) Error() string {
	return fmt.Sprintf("dependency would create a cycle: %s", strings.Join(e.Cycle, " -> "))
}

// SelfDependency means an issue was asked to depend on itself.
type SelfDependency struct {
	ID string
}

func (e *SelfDependency) Error() string {
	return fmt.Sprintf("issue %s cannot depend on itself", e.ID)
}

// EmptyUpdate means update was called with no fields set.
type EmptyUpdate struct {
	ID string
}

func (e *EmptyUpdate) Error() string {
	return fmt.Sprintf("no updates specified for %s", e.ID)
}

// InvalidLabelName means a label name failed the character or length rules.
type InvalidLabelName struct {
	Name   string
	Reason string
}

func (e *InvalidLabelName) Error() string {
	return fmt.Sprintf("invalid label name %q: %s", e.Name, e.Reason)
}

// LabelNotFound means no label with the given name exists.
type LabelNotFound struct {
	Name string
}

func (e *LabelNotFound) Error() string {
	return fmt.Sprintf("label %q not found", e.Name)
}

// LabelNotAttached means a label exists but is not on the given issue.
type LabelNotAttached struct {
	IssueID string
	Name    string
}

func (e *LabelNotAttached) Error() string {
	return fmt.Sprintf("label %q is not attached to %s", e.Name, e.IssueID)
}

// DocumentNotFound means an issue has no attached document by that name.
type DocumentNotFound struct {
	IssueID string
	Name    string
}

func (e *DocumentNotFound) Error() string {
	return fmt.Sprintf("document %q not found on %s", e.Name, e.IssueID)
}

// DependencyNotFound means a remove targeted an edge that does not exist.
type DependencyNotFound struct {
	From string
	To   string
}

func (e *DependencyNotFound) Error() string {
	return fmt.Sprintf("dependency not found: %s does not depend on %s", e.From, e.To)
}

// InvalidEnumValue means a value fell outside the recognized set.
// Suggestion is the closest valid value when similarity >= 0.75, else "".
type InvalidEnumValue struct {
	Field      string
	Provided   string
	Suggestion string
	Valid      []string
}

func (e *InvalidEnumValue) Error() string {
	msg := fmt.Sprintf("invalid value %q for %s (valid: %s)", e.Provided, e.Field, strings.Join(e.Valid, ", "))
	if e.Suggestion != "" {
		msg += fmt.Sprintf("; did you mean %q?", e.Suggestion)
	}
	return msg
}

// MissingRequiredField means a required input (e.g. title) was empty.
type MissingRequiredField struct {
	Field string
}

func (e *MissingRequiredField) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}

// MissingConfig means _meta lacks a key the engine cannot run without,
// which indicates a corrupt or uninitialized repository.
type MissingConfig struct {
	Key string
}

func (e *MissingConfig) Error() string {
	return fmt.Sprintf("repository metadata missing %q (corrupt repo?)", e.Key)
}

// LockBusy means another process holds the repo write lock.
type LockBusy struct {
	Path string
}

func (e *LockBusy) Error() string {
	return fmt.Sprintf("another process holds the write lock at %s", e.Path)
}

// IO wraps a filesystem failure with the attempted action and path.
type IO struct {
	Action string
	Path   string
	Err    error
}

func (e *IO) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Action, e.Path, e.Err)
}

func (e *IO) Unwrap() error { return e.Err }

// PermissionDenied is an IO narrowed by the OS error code.
type PermissionDenied struct {
	IO
}

// DiskFull is an IO narrowed by the OS error code.
type DiskFull struct {
	IO
}

// NewIO wraps err with action context, narrowing to PermissionDenied or
// DiskFull when the underlying OS error says so.
func NewIO(action, path string, err error) error {
	io := IO{Action: action, Path: path, Err: err}
	switch {
	case errors.Is(err, os.ErrPermission):
		return &PermissionDenied{IO: io}
	case errors.Is(err, syscall.ENOSPC):
		return &DiskFull{IO: io}
	default:
		return &io
	}
}

// Database wraps a cache failure with the operation being performed.
type Database struct {
	Op  string
	Err error
}

func (e *Database) Error() string {
	return fmt.Sprintf("database error during %s: %v", e.Op, e.Err)
}

func (e *Database) Unwrap() error { return e.Err }

// InvalidJSON wraps a parse failure with the context it occurred in.
// On replay this is fatal: the log is treated as corrupt.
type InvalidJSON struct {
	Context string
	Err     error
}

func (e *InvalidJSON) Error() string {
	return fmt.Sprintf("invalid JSON in %s: %v", e.Context, e.Err)
}

func (e *InvalidJSON) Unwrap() error { return e.Err }
