package beads

import (
	"context"
	"database/sql"

	"github.com/untoldecay/beadcore/internal/beaderr"
	"github.com/untoldecay/beadcore/internal/debug"
	"github.com/untoldecay/beadcore/internal/storage/sqlite"
)

// AddDependency records that issueID is blocked by dependsOnID. The
// edge set must stay a DAG, so the proposed edge is rejected when a
// path already leads from dependsOnID back to issueID.
//
// Dependency edges live in the cache only; they are captured in create
// event payloads but later mutations are not logged as events.
func (s *Service) AddDependency(ctx context.Context, issueID, dependsOnID string) error {
	if issueID == dependsOnID {
		return &beaderr.SelfDependency{ID: issueID}
	}

	release, err := s.Repo.LockWrite()
	if err != nil {
		return err
	}
	defer release()

	if err := s.catchUp(ctx); err != nil {
		return err
	}

	for _, id := range []string{issueID, dependsOnID} {
		exists, err := s.Store.IssueExists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return &beaderr.IssueNotFound{ID: id}
		}
	}

	edges, err := s.Store.DependencyEdges(ctx)
	if err != nil {
		return err
	}
	if cycle := findCycle(edges, issueID, dependsOnID); cycle != nil {
		return &beaderr.CircularDependency{Cycle: cycle}
	}

	return s.Store.InTx(ctx, func(tx *sql.Tx) error {
		return sqlite.AddDependency(tx, issueID, dependsOnID)
	})
}

// RemoveDependency deletes the edge, failing when it does not exist.
func (s *Service) RemoveDependency(ctx context.Context, issueID, dependsOnID string) error {
	release, err := s.Repo.LockWrite()
	if err != nil {
		return err
	}
	defer release()

	return s.Store.InTx(ctx, func(tx *sql.Tx) error {
		return sqlite.RemoveDependency(tx, issueID, dependsOnID)
	})
}

// GetDependencies returns the ids the issue is blocked by.
func (s *Service) GetDependencies(ctx context.Context, issueID string) ([]string, error) {
	if _, err := s.GetIssue(ctx, issueID); err != nil {
		return nil, err
	}
	return s.Store.GetDependencies(ctx, issueID)
}

// GetDependents returns the ids blocked by the issue.
func (s *Service) GetDependents(ctx context.Context, issueID string) ([]string, error) {
	if _, err := s.GetIssue(ctx, issueID); err != nil {
		return nil, err
	}
	return s.Store.GetDependents(ctx, issueID)
}

// GetOpenDependencies returns the issue's blockers that are not closed.
func (s *Service) GetOpenDependencies(ctx context.Context, issueID string) ([]string, error) {
	if _, err := s.GetIssue(ctx, issueID); err != nil {
		return nil, err
	}
	return s.Store.GetOpenDependencies(ctx, issueID)
}

// findCycle checks whether adding the edge from -> to would close a
// cycle: it walks the existing forward edges from `to` with an explicit
// work list, and if it reaches `from`, reconstructs the path. The
// returned cycle starts and ends at `from`, e.g.
// [bd-001, bd-003, bd-002, bd-001]. Nil when the edge is safe.
//
// The traversal is iterative on purpose: merged logs can leave the edge
// set transiently cyclic until a replay, and a recursive walk would
// overflow instead of terminating via the visited set.
func findCycle(edges map[string][]string, from, to string) []string {
	parent := map[string]string{}
	visited := map[string]bool{to: true}
	work := []string{to}

	for len(work) > 0 {
		current := work[0]
		work = work[1:]

		if current == from {
			// Path from `to` to `from` exists; the new edge closes it.
			path := []string{from}
			for node := from; node != to; node = parent[node] {
				path = append(path, parent[node])
			}
			// path is from..to reversed; rebuild as from, to, .., from.
			cycle := []string{from}
			for i := len(path) - 1; i >= 1; i-- {
				cycle = append(cycle, path[i])
			}
			cycle = append(cycle, from)
			debug.Logf("deps: edge %s -> %s rejected, cycle %v", from, to, cycle)
			return cycle
		}

		for _, next := range edges[current] {
			if visited[next] {
				continue
			}
			visited[next] = true
			parent[next] = current
			work = append(work, next)
		}
	}
	return nil
}
