package replay

import (
	"context"
	"encoding/json"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/untoldecay/beadcore/internal/eventlog"
	"github.com/untoldecay/beadcore/internal/storage/sqlite"
	"github.com/untoldecay/beadcore/internal/types"
)

type testEnv struct {
	log    *eventlog.Log
	store  *sqlite.Store
	engine *Engine
	lastID string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	log := eventlog.New(filepath.Join(dir, "events.jsonl"))
	store, err := sqlite.Open(context.Background(), filepath.Join(dir, "beads.db"))
	if err != nil {
		t.Fatalf("failed to open cache: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return &testEnv{log: log, store: store, engine: New(log, store)}
}

// event builds an event with a fresh, strictly increasing id. The
// payload is marshalled from any JSON-able value.
func (env *testEnv) event(t *testing.T, op types.OpKind, id string, payload any) *types.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	e := eventlog.NewEvent(op, id, raw, env.lastID)
	env.lastID = e.EventID
	return e
}

func (env *testEnv) append(t *testing.T, e *types.Event) {
	t.Helper()
	if _, err := env.log.Append(e); err != nil {
		t.Fatalf("failed to append event: %v", err)
	}
}

func createPayloadFor(title string) map[string]any {
	return map[string]any{"title": title, "kind": "task", "priority": 1, "status": "open"}
}

func TestFullReplayProjectsCreateAndUpdate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.append(t, env.event(t, types.OpCreate, "bd-001", createPayloadFor("First")))
	env.append(t, env.event(t, types.OpUpdate, "bd-001", map[string]any{"status": "in_progress", "notes": "started"}))

	applied, err := env.engine.Full(ctx)
	if err != nil {
		t.Fatalf("full replay failed: %v", err)
	}
	if applied != 2 {
		t.Fatalf("expected 2 events applied, got %d", applied)
	}

	issue, err := env.store.GetIssue(ctx, "bd-001")
	if err != nil {
		t.Fatalf("get issue: %v", err)
	}
	if issue == nil {
		t.Fatal("expected issue in cache")
	}
	if issue.Title != "First" || issue.Status != "in_progress" || issue.Notes != "started" {
		t.Fatalf("projection wrong: %+v", issue)
	}
	if issue.CreatedAt == "" {
		t.Fatal("created_at should come from the create event timestamp")
	}
}

func TestFullReplayDeterministicUnderShuffle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	events := []*types.Event{
		env.event(t, types.OpCreate, "bd-001", createPayloadFor("A")),
		env.event(t, types.OpCreate, "bd-002", createPayloadFor("B")),
		env.event(t, types.OpUpdate, "bd-001", map[string]any{"title": "A renamed"}),
		env.event(t, types.OpUpdate, "bd-002", map[string]any{"status": "closed"}),
	}

	// Write the log in reverse order, as a merge might leave it.
	for i := len(events) - 1; i >= 0; i-- {
		env.append(t, events[i])
	}

	if _, err := env.engine.Full(ctx); err != nil {
		t.Fatalf("full replay failed: %v", err)
	}
	shuffled, err := env.store.GetAllIssues(ctx)
	if err != nil {
		t.Fatalf("list issues: %v", err)
	}

	// Same events in file order in a second repo.
	ordered := newTestEnv(t)
	for _, e := range events {
		ordered.append(t, e)
	}
	if _, err := ordered.engine.Full(ctx); err != nil {
		t.Fatalf("full replay failed: %v", err)
	}
	sorted, err := ordered.store.GetAllIssues(ctx)
	if err != nil {
		t.Fatalf("list issues: %v", err)
	}

	if !reflect.DeepEqual(shuffled, sorted) {
		t.Fatalf("replay not deterministic:\nshuffled: %+v\nsorted: %+v", shuffled, sorted)
	}
}

func TestFullReplayIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.append(t, env.event(t, types.OpCreate, "bd-001", createPayloadFor("A")))
	env.append(t, env.event(t, types.OpUpdate, "bd-001", map[string]any{"priority": 3}))

	if _, err := env.engine.Full(ctx); err != nil {
		t.Fatalf("first replay failed: %v", err)
	}
	first, err := env.store.GetAllIssues(ctx)
	if err != nil {
		t.Fatalf("list issues: %v", err)
	}

	if _, err := env.engine.Full(ctx); err != nil {
		t.Fatalf("second replay failed: %v", err)
	}
	second, err := env.store.GetAllIssues(ctx)
	if err != nil {
		t.Fatalf("list issues: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("replay not idempotent:\nfirst: %+v\nsecond: %+v", first, second)
	}
}

func TestIncrementalCatchUpMatchesFull(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.append(t, env.event(t, types.OpCreate, "bd-001", createPayloadFor("A")))
	if applied, err := env.engine.Incremental(ctx); err != nil || applied != 1 {
		t.Fatalf("first incremental: applied=%d err=%v", applied, err)
	}

	env.append(t, env.event(t, types.OpUpdate, "bd-001", map[string]any{"status": "review"}))
	env.append(t, env.event(t, types.OpCreate, "bd-002", createPayloadFor("B")))
	if applied, err := env.engine.Incremental(ctx); err != nil || applied != 2 {
		t.Fatalf("second incremental: applied=%d err=%v", applied, err)
	}
	incremental, err := env.store.GetAllIssues(ctx)
	if err != nil {
		t.Fatalf("list issues: %v", err)
	}

	if _, err := env.engine.Full(ctx); err != nil {
		t.Fatalf("full replay failed: %v", err)
	}
	full, err := env.store.GetAllIssues(ctx)
	if err != nil {
		t.Fatalf("list issues: %v", err)
	}

	if !reflect.DeepEqual(incremental, full) {
		t.Fatalf("catch-up diverged from full replay:\nincremental: %+v\nfull: %+v", incremental, full)
	}
}

func TestIncrementalNoNewEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.append(t, env.event(t, types.OpCreate, "bd-001", createPayloadFor("A")))
	if _, err := env.engine.Incremental(ctx); err != nil {
		t.Fatalf("incremental failed: %v", err)
	}

	applied, err := env.engine.Incremental(ctx)
	if err != nil {
		t.Fatalf("incremental failed: %v", err)
	}
	if applied != 0 {
		t.Fatalf("expected no events applied, got %d", applied)
	}

	behind, err := env.engine.Behind(ctx)
	if err != nil {
		t.Fatalf("behind check failed: %v", err)
	}
	if behind {
		t.Fatal("engine should not report being behind")
	}
}

func TestIncrementalFallsBackOnOutOfOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	early := env.event(t, types.OpCreate, "bd-001", createPayloadFor("A"))
	late := env.event(t, types.OpCreate, "bd-002", createPayloadFor("B"))

	// Only the later event is in the log when the cache first catches up.
	env.append(t, late)
	if _, err := env.engine.Incremental(ctx); err != nil {
		t.Fatalf("incremental failed: %v", err)
	}

	// A merge then prepends history: the earlier event arrives after.
	env.append(t, early)
	if _, err := env.engine.Incremental(ctx); err != nil {
		t.Fatalf("incremental with fallback failed: %v", err)
	}

	issues, err := env.store.GetAllIssues(ctx)
	if err != nil {
		t.Fatalf("list issues: %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("expected both issues after fallback, got %d", len(issues))
	}

	lastID, _, err := env.store.GetMeta(ctx, sqlite.MetaLastEventID)
	if err != nil {
		t.Fatalf("get meta: %v", err)
	}
	if lastID != late.EventID {
		t.Fatalf("last_event_id should be the max id %s, got %s", late.EventID, lastID)
	}
}

func TestDeleteBranchRemovesRowAndRepairsText(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.append(t, env.event(t, types.OpCreate, "bd-001", createPayloadFor("See bd-002 for context")))
	env.append(t, env.event(t, types.OpCreate, "bd-002", createPayloadFor("Victim")))
	env.append(t, env.event(t, types.OpUpdate, "bd-002", map[string]any{"status": "deleted"}))

	if _, err := env.engine.Full(ctx); err != nil {
		t.Fatalf("full replay failed: %v", err)
	}

	gone, err := env.store.GetIssue(ctx, "bd-002")
	if err != nil {
		t.Fatalf("get issue: %v", err)
	}
	if gone != nil {
		t.Fatal("deleted issue should be absent from cache")
	}

	survivor, err := env.store.GetIssue(ctx, "bd-001")
	if err != nil {
		t.Fatalf("get issue: %v", err)
	}
	if survivor.Title != "See [deleted:bd-002] for context" {
		t.Fatalf("text reference not repaired: %q", survivor.Title)
	}
}

func TestCreateBornDeletedSkipped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	payload := createPayloadFor("Ghost")
	payload["status"] = "deleted"
	env.append(t, env.event(t, types.OpCreate, "bd-001", payload))

	if _, err := env.engine.Full(ctx); err != nil {
		t.Fatalf("full replay failed: %v", err)
	}
	issue, err := env.store.GetIssue(ctx, "bd-001")
	if err != nil {
		t.Fatalf("get issue: %v", err)
	}
	if issue != nil {
		t.Fatal("born-deleted issue must never reach the cache")
	}
}

func TestCreateProjectsDependencies(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.append(t, env.event(t, types.OpCreate, "bd-001", createPayloadFor("Blocker")))
	payload := createPayloadFor("Dependent")
	payload["depends_on"] = []string{"bd-001", "bd-404"}
	env.append(t, env.event(t, types.OpCreate, "bd-002", payload))

	if _, err := env.engine.Full(ctx); err != nil {
		t.Fatalf("full replay failed: %v", err)
	}

	deps, err := env.store.GetDependencies(ctx, "bd-002")
	if err != nil {
		t.Fatalf("get dependencies: %v", err)
	}
	// The edge to the missing bd-404 is skipped, not an error.
	if len(deps) != 1 || deps[0] != "bd-001" {
		t.Fatalf("expected single edge to bd-001, got %v", deps)
	}
}

func TestReservedOpsAreNoOps(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.append(t, env.event(t, types.OpCreate, "bd-001", createPayloadFor("A")))
	env.append(t, env.event(t, types.OpComment, "bd-001", map[string]any{"text": "hello"}))
	env.append(t, env.event(t, types.OpArchive, "bd-001", map[string]any{}))

	applied, err := env.engine.Full(ctx)
	if err != nil {
		t.Fatalf("full replay failed: %v", err)
	}
	if applied != 3 {
		t.Fatalf("reserved events must still count as applied, got %d", applied)
	}

	issue, err := env.store.GetIssue(ctx, "bd-001")
	if err != nil {
		t.Fatalf("get issue: %v", err)
	}
	if issue == nil || issue.Title != "A" || issue.Status != "open" {
		t.Fatalf("reserved ops must not touch the projection: %+v", issue)
	}
}

func TestCreatePreservesExtraPayloadAsData(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	payload := createPayloadFor("With data")
	payload["documents"] = map[string]any{"spec.md": "9f86d081"}
	env.append(t, env.event(t, types.OpCreate, "bd-001", payload))

	if _, err := env.engine.Full(ctx); err != nil {
		t.Fatalf("full replay failed: %v", err)
	}

	issue, err := env.store.GetIssue(ctx, "bd-001")
	if err != nil {
		t.Fatalf("get issue: %v", err)
	}
	docs, ok := issue.Data["documents"].(map[string]any)
	if !ok || docs["spec.md"] != "9f86d081" {
		t.Fatalf("extra payload keys should land in data: %+v", issue.Data)
	}
	if _, ok := issue.Data["title"]; ok {
		t.Fatal("column fields must not leak into data")
	}
}
