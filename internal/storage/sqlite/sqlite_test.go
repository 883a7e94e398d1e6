package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/untoldecay/beadcore/internal/beaderr"
	"github.com/untoldecay/beadcore/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "beads.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func mustTx(t *testing.T, store *Store, fn func(tx *sql.Tx) error) {
	t.Helper()
	if err := store.InTx(context.Background(), fn); err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
}

func testIssue(id, title string) *types.Issue {
	return &types.Issue{
		ID:        id,
		Title:     title,
		Kind:      types.KindTask,
		Priority:  1,
		Status:    types.StatusOpen,
		CreatedAt: "2026-01-15T10:00:00.000Z",
	}
}

func TestMetaRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, found, err := store.GetMeta(ctx, MetaIDPrefix)
	if err != nil {
		t.Fatalf("get meta: %v", err)
	}
	if found {
		t.Fatal("expected missing key before first write")
	}

	mustTx(t, store, func(tx *sql.Tx) error {
		return SetMeta(tx, MetaIDPrefix, "bd")
	})
	mustTx(t, store, func(tx *sql.Tx) error {
		// Upsert replaces.
		return SetMeta(tx, MetaIDPrefix, "proj")
	})

	value, found, err := store.GetMeta(ctx, MetaIDPrefix)
	if err != nil {
		t.Fatalf("get meta: %v", err)
	}
	if !found || value != "proj" {
		t.Fatalf("expected proj, got %q (found=%v)", value, found)
	}
}

func TestGetMetaTxSeesUncommittedWrite(t *testing.T) {
	store := openTestStore(t)

	mustTx(t, store, func(tx *sql.Tx) error {
		if err := SetMeta(tx, MetaLastEventID, "01ARZ"); err != nil {
			return err
		}
		value, found, err := GetMetaTx(tx, MetaLastEventID)
		if err != nil {
			return err
		}
		if !found || value != "01ARZ" {
			t.Fatalf("expected in-tx read to see 01ARZ, got %q (found=%v)", value, found)
		}
		return nil
	})
}

func TestUpsertAndGetIssue(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	issue := testIssue("bd-001", "First issue")
	issue.Data = map[string]any{"documents": map[string]any{"spec.md": "abc"}}
	mustTx(t, store, func(tx *sql.Tx) error {
		return UpsertIssue(tx, issue)
	})

	got, err := store.GetIssue(ctx, "bd-001")
	if err != nil {
		t.Fatalf("get issue: %v", err)
	}
	if got == nil {
		t.Fatal("expected issue, got nil")
	}
	if got.Title != "First issue" || got.Kind != types.KindTask || got.Priority != 1 {
		t.Fatalf("unexpected issue: %+v", got)
	}
	docs, ok := got.Data["documents"].(map[string]any)
	if !ok || docs["spec.md"] != "abc" {
		t.Fatalf("data column did not round-trip: %+v", got.Data)
	}

	// Upsert with the same id replaces every column.
	issue.Title = "Renamed"
	issue.Status = types.StatusClosed
	mustTx(t, store, func(tx *sql.Tx) error {
		return UpsertIssue(tx, issue)
	})
	got, err = store.GetIssue(ctx, "bd-001")
	if err != nil {
		t.Fatalf("get issue after upsert: %v", err)
	}
	if got.Title != "Renamed" || got.Status != types.StatusClosed {
		t.Fatalf("upsert did not replace: %+v", got)
	}
}

func TestGetIssueMissingReturnsNil(t *testing.T) {
	store := openTestStore(t)

	got, err := store.GetIssue(context.Background(), "bd-404")
	if err != nil {
		t.Fatalf("get missing issue: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing issue, got %+v", got)
	}
}

func TestApplyIssueUpdatePartial(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	mustTx(t, store, func(tx *sql.Tx) error {
		return UpsertIssue(tx, testIssue("bd-001", "Original"))
	})

	status := types.StatusInProgress
	notes := "started work"
	mustTx(t, store, func(tx *sql.Tx) error {
		return ApplyIssueUpdate(tx, "bd-001", &types.IssueUpdate{Status: &status, Notes: &notes})
	})

	got, err := store.GetIssue(ctx, "bd-001")
	if err != nil {
		t.Fatalf("get issue: %v", err)
	}
	if got.Status != types.StatusInProgress || got.Notes != "started work" {
		t.Fatalf("update not applied: %+v", got)
	}
	if got.Title != "Original" {
		t.Fatalf("absent field was clobbered: %q", got.Title)
	}
}

func TestDeleteIssueCascades(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	mustTx(t, store, func(tx *sql.Tx) error {
		if err := UpsertIssue(tx, testIssue("bd-001", "a")); err != nil {
			return err
		}
		if err := UpsertIssue(tx, testIssue("bd-002", "b")); err != nil {
			return err
		}
		if err := AddDependency(tx, "bd-002", "bd-001"); err != nil {
			return err
		}
		if err := CreateLabel(tx, &types.Label{ID: "lbl1", Name: "urgent"}); err != nil {
			return err
		}
		return AddIssueLabel(tx, "bd-001", "lbl1")
	})

	mustTx(t, store, func(tx *sql.Tx) error {
		return DeleteIssue(tx, "bd-001")
	})

	deps, err := store.GetDependencies(ctx, "bd-002")
	if err != nil {
		t.Fatalf("get dependencies: %v", err)
	}
	if len(deps) != 0 {
		t.Fatalf("expected cascade to remove edge, got %v", deps)
	}
	issues, err := store.GetIssuesByLabel(ctx, "lbl1")
	if err != nil {
		t.Fatalf("get issues by label: %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("expected cascade to remove label assignment, got %v", issues)
	}
	// The label itself survives.
	label, err := store.GetLabelByName(ctx, "urgent")
	if err != nil {
		t.Fatalf("get label: %v", err)
	}
	if label == nil {
		t.Fatal("label should survive issue deletion")
	}
}

func TestDependencyEdges(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	mustTx(t, store, func(tx *sql.Tx) error {
		for _, id := range []string{"bd-001", "bd-002", "bd-003"} {
			if err := UpsertIssue(tx, testIssue(id, id)); err != nil {
				return err
			}
		}
		if err := AddDependency(tx, "bd-001", "bd-002"); err != nil {
			return err
		}
		return AddDependency(tx, "bd-001", "bd-003")
	})

	edges, err := store.DependencyEdges(ctx)
	if err != nil {
		t.Fatalf("load edges: %v", err)
	}
	if len(edges["bd-001"]) != 2 {
		t.Fatalf("expected two forward edges, got %v", edges["bd-001"])
	}

	reverse, err := store.ReverseDependencyEdges(ctx)
	if err != nil {
		t.Fatalf("load reverse edges: %v", err)
	}
	if len(reverse["bd-002"]) != 1 || reverse["bd-002"][0] != "bd-001" {
		t.Fatalf("unexpected reverse edges: %v", reverse)
	}
}

func TestRemoveDependencyMissing(t *testing.T) {
	store := openTestStore(t)

	mustTx(t, store, func(tx *sql.Tx) error {
		return UpsertIssue(tx, testIssue("bd-001", "a"))
	})

	err := store.InTx(context.Background(), func(tx *sql.Tx) error {
		return RemoveDependency(tx, "bd-001", "bd-002")
	})
	var notFound *beaderr.DependencyNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected DependencyNotFound, got %v", err)
	}
}

func TestGetOpenDependencies(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	mustTx(t, store, func(tx *sql.Tx) error {
		open := testIssue("bd-002", "open blocker")
		closed := testIssue("bd-003", "closed blocker")
		closed.Status = types.StatusClosed
		for _, issue := range []*types.Issue{testIssue("bd-001", "a"), open, closed} {
			if err := UpsertIssue(tx, issue); err != nil {
				return err
			}
		}
		if err := AddDependency(tx, "bd-001", "bd-002"); err != nil {
			return err
		}
		return AddDependency(tx, "bd-001", "bd-003")
	})

	open, err := store.GetOpenDependencies(ctx, "bd-001")
	if err != nil {
		t.Fatalf("get open dependencies: %v", err)
	}
	if len(open) != 1 || open[0] != "bd-002" {
		t.Fatalf("expected only the open blocker, got %v", open)
	}
}

func TestLabelAssignmentIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	mustTx(t, store, func(tx *sql.Tx) error {
		if err := UpsertIssue(tx, testIssue("bd-001", "a")); err != nil {
			return err
		}
		if err := CreateLabel(tx, &types.Label{ID: "lbl1", Name: "bug", Color: "#ff0000"}); err != nil {
			return err
		}
		if err := AddIssueLabel(tx, "bd-001", "lbl1"); err != nil {
			return err
		}
		return AddIssueLabel(tx, "bd-001", "lbl1")
	})

	labels, err := store.GetIssueLabels(ctx, "bd-001")
	if err != nil {
		t.Fatalf("get issue labels: %v", err)
	}
	if len(labels) != 1 || labels[0].Name != "bug" {
		t.Fatalf("expected single bug label, got %+v", labels)
	}
}

func TestRemoveIssueLabelReportsAbsence(t *testing.T) {
	store := openTestStore(t)

	mustTx(t, store, func(tx *sql.Tx) error {
		if err := UpsertIssue(tx, testIssue("bd-001", "a")); err != nil {
			return err
		}
		return CreateLabel(tx, &types.Label{ID: "lbl1", Name: "bug"})
	})

	mustTx(t, store, func(tx *sql.Tx) error {
		removed, err := RemoveIssueLabel(tx, "bd-001", "lbl1")
		if err != nil {
			return err
		}
		if removed {
			t.Fatal("expected removed=false for never-attached label")
		}
		return nil
	})
}

func TestRepairTextReferences(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	mustTx(t, store, func(tx *sql.Tx) error {
		target := testIssue("bd-001", "target")
		mentioner := testIssue("bd-002", "see bd-001 for context")
		mentioner.Notes = "blocked on bd-001 and bd-001 again"
		clean := testIssue("bd-003", "unrelated")
		for _, issue := range []*types.Issue{target, mentioner, clean} {
			if err := UpsertIssue(tx, issue); err != nil {
				return err
			}
		}
		return nil
	})

	var repaired int
	mustTx(t, store, func(tx *sql.Tx) error {
		var err error
		repaired, err = RepairTextReferences(tx, "bd-001")
		if err != nil {
			return err
		}
		return DeleteIssue(tx, "bd-001")
	})
	if repaired != 1 {
		t.Fatalf("expected 1 repaired issue, got %d", repaired)
	}

	got, err := store.GetIssue(ctx, "bd-002")
	if err != nil {
		t.Fatalf("get issue: %v", err)
	}
	if got.Title != "see [deleted:bd-001] for context" {
		t.Fatalf("title not repaired: %q", got.Title)
	}
	if got.Notes != "blocked on [deleted:bd-001] and [deleted:bd-001] again" {
		t.Fatalf("notes not repaired: %q", got.Notes)
	}

	clean, err := store.GetIssue(ctx, "bd-003")
	if err != nil {
		t.Fatalf("get issue: %v", err)
	}
	if clean.Title != "unrelated" {
		t.Fatalf("unrelated issue touched: %q", clean.Title)
	}
}

func TestCountTextReferences(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	mustTx(t, store, func(tx *sql.Tx) error {
		a := testIssue("bd-001", "target")
		b := testIssue("bd-002", "mentions bd-001")
		c := testIssue("bd-003", "also about bd-001")
		for _, issue := range []*types.Issue{a, b, c} {
			if err := UpsertIssue(tx, issue); err != nil {
				return err
			}
		}
		return nil
	})

	count, err := store.CountTextReferences(ctx, "bd-001")
	if err != nil {
		t.Fatalf("count references: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 referencing issues, got %d", count)
	}
}

func TestClearIssuesPreservesLabelsAndMeta(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	mustTx(t, store, func(tx *sql.Tx) error {
		if err := UpsertIssue(tx, testIssue("bd-001", "a")); err != nil {
			return err
		}
		if err := CreateLabel(tx, &types.Label{ID: "lbl1", Name: "keep"}); err != nil {
			return err
		}
		return SetMeta(tx, MetaIDPrefix, "bd")
	})

	mustTx(t, store, ClearIssues)

	issues, err := store.GetAllIssues(ctx)
	if err != nil {
		t.Fatalf("list issues: %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("expected empty projection, got %d issues", len(issues))
	}
	label, err := store.GetLabelByName(ctx, "keep")
	if err != nil {
		t.Fatalf("get label: %v", err)
	}
	if label == nil {
		t.Fatal("labels should survive a projection clear")
	}
	prefix, found, err := store.GetMeta(ctx, MetaIDPrefix)
	if err != nil || !found || prefix != "bd" {
		t.Fatalf("meta should survive a projection clear: %q %v %v", prefix, found, err)
	}
}
