package beads

import (
	"context"
	"os"
	"path/filepath"

	"github.com/untoldecay/beadcore/internal/beaderr"
	"github.com/untoldecay/beadcore/internal/debug"
	"github.com/untoldecay/beadcore/internal/types"
)

// documentsKey is where the name -> blob hash mapping lives inside an
// issue's data document.
const documentsKey = "documents"

// AttachDocument stores content in the blob store and records it on the
// issue under name. The mapping change flows through a normal update
// event, so attachments replay like any other mutation; the blob itself
// is content-addressed and shared.
func (s *Service) AttachDocument(ctx context.Context, issueID, name string, content []byte) (string, error) {
	issue, err := s.GetIssue(ctx, issueID)
	if err != nil {
		return "", err
	}

	hash, err := s.Blobs.Write(content)
	if err != nil {
		return "", err
	}

	data := cloneData(issue.Data)
	docs := documentsOf(data)
	if docs[name] == hash {
		// Same content already attached under this name.
		return hash, nil
	}
	docs[name] = hash
	data[documentsKey] = docs

	if _, err := s.UpdateIssue(ctx, issueID, &types.IssueUpdate{Data: data}); err != nil {
		return "", err
	}
	debug.Logf("docs: attached %s to %s as %s", name, issueID, hash)
	return hash, nil
}

// GetIssueDocuments returns the name -> blob hash mapping of an issue.
func (s *Service) GetIssueDocuments(ctx context.Context, issueID string) (map[string]string, error) {
	issue, err := s.GetIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	docs := map[string]string{}
	for name, hash := range documentsOf(issue.Data) {
		docs[name] = hash
	}
	return docs, nil
}

// ReadDocument returns the content of a named document.
func (s *Service) ReadDocument(ctx context.Context, issueID, name string) ([]byte, error) {
	hash, err := s.documentHash(ctx, issueID, name)
	if err != nil {
		return nil, err
	}
	return s.Blobs.Read(hash)
}

// CheckoutDocument materializes a document into the editable workspace
// at .beads/docs/<issue>/<name> and returns the path. The workspace is
// a derived artifact; SyncDocument pushes edits back.
func (s *Service) CheckoutDocument(ctx context.Context, issueID, name string) (string, error) {
	content, err := s.ReadDocument(ctx, issueID, name)
	if err != nil {
		return "", err
	}

	dir := s.Repo.DocsPath(issueID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", beaderr.NewIO("create docs workspace", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", beaderr.NewIO("write document", path, err)
	}
	return path, nil
}

// SyncDocument reads the workspace copy of a document and, if it
// changed, stores the new content and re-points the issue's mapping.
// Returns the current hash either way.
func (s *Service) SyncDocument(ctx context.Context, issueID, name string) (string, error) {
	current, err := s.documentHash(ctx, issueID, name)
	if err != nil {
		return "", err
	}

	path := filepath.Join(s.Repo.DocsPath(issueID), name)
	content, err := os.ReadFile(path)
	if err != nil {
		return "", beaderr.NewIO("read document workspace copy", path, err)
	}

	hash, err := s.AttachDocument(ctx, issueID, name, content)
	if err != nil {
		return "", err
	}
	if hash != current {
		debug.Logf("docs: synced %s on %s, %s -> %s", name, issueID, current, hash)
	}
	return hash, nil
}

func (s *Service) documentHash(ctx context.Context, issueID, name string) (string, error) {
	issue, err := s.GetIssue(ctx, issueID)
	if err != nil {
		return "", err
	}
	hash, ok := documentsOf(issue.Data)[name]
	if !ok {
		return "", &beaderr.DocumentNotFound{IssueID: issueID, Name: name}
	}
	return hash, nil
}

// documentsOf extracts the documents mapping from an issue data
// document, tolerating the map[string]any shape JSON decoding produces.
func documentsOf(data map[string]any) map[string]string {
	docs := map[string]string{}
	raw, ok := data[documentsKey].(map[string]any)
	if !ok {
		return docs
	}
	for name, value := range raw {
		if hash, ok := value.(string); ok {
			docs[name] = hash
		}
	}
	return docs
}

func cloneData(data map[string]any) map[string]any {
	clone := make(map[string]any, len(data)+1)
	for k, v := range data {
		clone[k] = v
	}
	return clone
}
