package beads

import (
	"context"
	"sort"

	"github.com/untoldecay/beadcore/internal/debug"
	"github.com/untoldecay/beadcore/internal/types"
)

// DeleteIssue soft-deletes one issue: an update event with status
// "deleted" is appended and projected, which removes the row from the
// cache, cascades its edges and label assignments away, and repairs
// text references. The log keeps the full history. Returns what the
// deletion touched.
func (s *Service) DeleteIssue(ctx context.Context, id string) (*types.DeleteImpact, error) {
	release, err := s.Repo.LockWrite()
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.catchUp(ctx); err != nil {
		return nil, err
	}
	return s.deleteLocked(ctx, id)
}

func (s *Service) deleteLocked(ctx context.Context, id string) (*types.DeleteImpact, error) {
	issue, err := s.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}

	reverse, err := s.Store.ReverseDependencyEdges(ctx)
	if err != nil {
		return nil, err
	}
	blocked := transitiveDependents(reverse, id)

	status := types.StatusDeleted
	repaired, err := s.updateLocked(ctx, id, &types.IssueUpdate{Status: &status})
	if err != nil {
		return nil, err
	}

	debug.Logf("delete: %s removed, %d dependents, %d references repaired", id, len(blocked), repaired)
	return &types.DeleteImpact{
		IssuesToDelete:    []types.IssueRef{{ID: id, Title: issue.Title}},
		BlockedIssues:     blocked,
		ReferencesUpdated: repaired,
	}, nil
}

// DeleteImpactPreview computes what deleting the given issues would
// touch, without mutating anything: the issues themselves, the live
// issues that transitively depend on them, and how many issues mention
// them in text.
func (s *Service) DeleteImpactPreview(ctx context.Context, ids []string) (*types.DeleteImpact, error) {
	impact := &types.DeleteImpact{}

	deleting := map[string]bool{}
	for _, id := range ids {
		issue, err := s.GetIssue(ctx, id)
		if err != nil {
			return nil, err
		}
		impact.IssuesToDelete = append(impact.IssuesToDelete, types.IssueRef{ID: id, Title: issue.Title})
		deleting[id] = true
	}

	reverse, err := s.Store.ReverseDependencyEdges(ctx)
	if err != nil {
		return nil, err
	}
	for _, dependent := range transitiveDependents(reverse, ids...) {
		if !deleting[dependent] {
			impact.BlockedIssues = append(impact.BlockedIssues, dependent)
		}
	}
	impact.BlockedIssues = sortIDs(impact.BlockedIssues)

	for _, id := range ids {
		count, err := s.Store.CountTextReferences(ctx, id)
		if err != nil {
			return nil, err
		}
		impact.ReferencesUpdated += count
	}
	return impact, nil
}

// DeleteCascade deletes an issue together with everything that
// transitively depends on it, dependents first. Each deletion is its
// own event and transaction; a failure on one issue is recorded and the
// cascade continues.
func (s *Service) DeleteCascade(ctx context.Context, id string) (*types.BatchDeleteResult, error) {
	release, err := s.Repo.LockWrite()
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.catchUp(ctx); err != nil {
		return nil, err
	}
	if _, err := s.GetIssue(ctx, id); err != nil {
		return nil, err
	}

	reverse, err := s.Store.ReverseDependencyEdges(ctx)
	if err != nil {
		return nil, err
	}

	// Dependents go before the issues they depend on, so no issue is
	// ever left pointing at an already-deleted blocker mid-cascade.
	order := append(transitiveDependents(reverse, id), id)

	result := &types.BatchDeleteResult{}
	for _, victim := range order {
		if _, err := s.deleteLocked(ctx, victim); err != nil {
			result.Failures = append(result.Failures, types.DeleteFailure{IssueID: victim, Err: err})
			continue
		}
		result.Successes = append(result.Successes, victim)
	}
	return result, nil
}

// DeleteBatch deletes each listed issue independently. Failures never
// abort the batch.
func (s *Service) DeleteBatch(ctx context.Context, ids []string) (*types.BatchDeleteResult, error) {
	release, err := s.Repo.LockWrite()
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.catchUp(ctx); err != nil {
		return nil, err
	}

	result := &types.BatchDeleteResult{}
	for _, id := range ids {
		if _, err := s.deleteLocked(ctx, id); err != nil {
			result.Failures = append(result.Failures, types.DeleteFailure{IssueID: id, Err: err})
			continue
		}
		result.Successes = append(result.Successes, id)
	}
	return result, nil
}

// transitiveDependents walks the reverse edge map from the roots with
// an explicit work list and returns every id that transitively depends
// on any root, deepest first so cascades can delete in this order. The
// roots themselves are excluded.
func transitiveDependents(reverse map[string][]string, roots ...string) []string {
	rootSet := map[string]bool{}
	for _, root := range roots {
		rootSet[root] = true
	}

	visited := map[string]bool{}
	var order []string
	work := append([]string{}, roots...)

	for len(work) > 0 {
		current := work[0]
		work = work[1:]
		for _, dependent := range reverse[current] {
			if visited[dependent] || rootSet[dependent] {
				continue
			}
			visited[dependent] = true
			order = append(order, dependent)
			work = append(work, dependent)
		}
	}

	// BFS yields nearest-first; reverse for deepest-first, then keep the
	// result deterministic for equal depths.
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// sortIDs is a small helper for deterministic previews.
func sortIDs(ids []string) []string {
	sorted := append([]string{}, ids...)
	sort.Strings(sorted)
	return sorted
}
