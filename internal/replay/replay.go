// Package replay reduces the event log onto the derived cache. The
// same projection function serves both replay and live writes, so the
// cache is always the fold of the log regardless of which path built it.
package replay

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/untoldecay/beadcore/internal/beaderr"
	"github.com/untoldecay/beadcore/internal/debug"
	"github.com/untoldecay/beadcore/internal/eventlog"
	"github.com/untoldecay/beadcore/internal/storage/sqlite"
	"github.com/untoldecay/beadcore/internal/types"
)

// Engine replays the log onto the cache, incrementally or fully.
type Engine struct {
	log   *eventlog.Log
	store *sqlite.Store
}

// New returns an engine over the given log and cache.
func New(log *eventlog.Log, store *sqlite.Store) *Engine {
	return &Engine{log: log, store: store}
}

// createPayload is the decoded data of a create event. Unknown keys are
// preserved separately as the issue's data document.
type createPayload struct {
	Title     string   `json:"title"`
	Kind      string   `json:"kind"`
	Priority  int      `json:"priority"`
	Status    string   `json:"status"`
	DependsOn []string `json:"depends_on"`
}

// overlayKeys are the create payload fields that map to issue columns.
// Everything else in the payload is the issue's data document.
var overlayKeys = []string{"title", "kind", "priority", "status", "depends_on",
	"description", "design", "acceptance_criteria", "notes"}

// Full rebuilds the cache from byte 0: clear the issue projection, read
// and sort the whole log, apply every event, then record the high-water
// marks. Returns the number of events applied.
func (e *Engine) Full(ctx context.Context) (int, error) {
	events, end, err := e.log.ReadAll()
	if err != nil {
		return 0, err
	}
	sortEvents(events)

	err = e.store.InTx(ctx, func(tx *sql.Tx) error {
		if err := sqlite.ClearIssues(tx); err != nil {
			return err
		}
		for i := range events {
			if _, err := ApplyEvent(tx, &events[i]); err != nil {
				return err
			}
		}
		if len(events) > 0 {
			if err := sqlite.SetMeta(tx, sqlite.MetaLastEventID, events[len(events)-1].EventID); err != nil {
				return err
			}
		}
		return sqlite.SetMeta(tx, sqlite.MetaLastProcessedOffset, strconv.FormatInt(end, 10))
	})
	if err != nil {
		return 0, err
	}

	debug.Logf("replay: full replay applied %d events, offset %d", len(events), end)
	return len(events), nil
}

// Incremental applies only the events past the stored byte offset. When
// a newly read event sorts at or below the stored last_event_id the log
// was reordered by a merge, and the engine falls back to a full replay.
func (e *Engine) Incremental(ctx context.Context) (int, error) {
	offset, err := e.storedOffset(ctx)
	if err != nil {
		return 0, err
	}

	events, end, err := e.log.ReadFrom(offset)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}
	sortEvents(events)

	lastID, _, err := e.store.GetMeta(ctx, sqlite.MetaLastEventID)
	if err != nil {
		return 0, err
	}
	if lastID != "" && events[0].EventID <= lastID {
		debug.Logf("replay: out-of-order event %s <= %s, falling back to full replay", events[0].EventID, lastID)
		return e.Full(ctx)
	}

	err = e.store.InTx(ctx, func(tx *sql.Tx) error {
		for i := range events {
			if _, err := ApplyEvent(tx, &events[i]); err != nil {
				return err
			}
		}
		if err := sqlite.SetMeta(tx, sqlite.MetaLastEventID, events[len(events)-1].EventID); err != nil {
			return err
		}
		return sqlite.SetMeta(tx, sqlite.MetaLastProcessedOffset, strconv.FormatInt(end, 10))
	})
	if err != nil {
		return 0, err
	}

	debug.Logf("replay: incremental replay applied %d events, offset %d", len(events), end)
	return len(events), nil
}

// Behind reports whether the log has grown past the processed offset,
// i.e. whether an incremental replay would apply anything.
func (e *Engine) Behind(ctx context.Context) (bool, error) {
	offset, err := e.storedOffset(ctx)
	if err != nil {
		return false, err
	}
	size, err := e.log.Size()
	if err != nil {
		return false, err
	}
	return size > offset, nil
}

func (e *Engine) storedOffset(ctx context.Context) (int64, error) {
	raw, found, err := e.store.GetMeta(ctx, sqlite.MetaLastProcessedOffset)
	if err != nil {
		return 0, err
	}
	if !found || raw == "" {
		return 0, nil
	}
	offset, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &beaderr.Database{Op: "parse last_processed_offset " + raw, Err: err}
	}
	return offset, nil
}

// sortEvents orders events by event_id. ULIDs are time-prefixed, so a
// plain string compare yields the total order collaborators agree on.
func sortEvents(events []types.Event) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].EventID < events[j].EventID
	})
}

// ApplyEvent projects one event onto the cache inside tx. The return is
// the number of issues whose text was rewritten, non-zero only for the
// delete branch of an update. Live writes in the issue service call
// this for the event they just appended, which keeps the cache equal to
// a replay of the log by construction.
func ApplyEvent(tx *sql.Tx, e *types.Event) (int, error) {
	switch e.Op {
	case types.OpCreate:
		return 0, applyCreate(tx, e)
	case types.OpUpdate:
		return applyUpdate(tx, e)
	case types.OpComment, types.OpLink, types.OpUnlink, types.OpArchive:
		// Reserved op kinds: preserved in the log, no projection yet.
		return 0, nil
	default:
		return 0, &beaderr.InvalidJSON{
			Context: "event " + e.EventID,
			Err:     &beaderr.InvalidEnumValue{Field: "op", Provided: string(e.Op)},
		}
	}
}

func applyCreate(tx *sql.Tx, e *types.Event) error {
	var payload createPayload
	if err := json.Unmarshal(e.Data, &payload); err != nil {
		return &beaderr.InvalidJSON{Context: "create payload for " + e.ID, Err: err}
	}
	if payload.Status == "" {
		payload.Status = types.StatusOpen
	}
	if payload.Status == types.StatusDeleted {
		// Born deleted: the issue never reaches the cache.
		return nil
	}

	var fields map[string]any
	if err := json.Unmarshal(e.Data, &fields); err != nil {
		return &beaderr.InvalidJSON{Context: "create payload for " + e.ID, Err: err}
	}

	issue := &types.Issue{
		ID:                 e.ID,
		Title:              payload.Title,
		Kind:               payload.Kind,
		Priority:           payload.Priority,
		Status:             payload.Status,
		CreatedAt:          e.TS,
		Description:        stringField(fields, "description"),
		Design:             stringField(fields, "design"),
		AcceptanceCriteria: stringField(fields, "acceptance_criteria"),
		Notes:              stringField(fields, "notes"),
		Data:               dataDocument(fields),
	}
	if err := sqlite.UpsertIssue(tx, issue); err != nil {
		return err
	}

	// Dependency edges declared at creation. An endpoint can be missing
	// when the target's create event sorts later (merged logs); the edge
	// is skipped then, on every replay path alike.
	for _, target := range payload.DependsOn {
		exists, err := sqlite.IssueExistsTx(tx, target)
		if err != nil {
			return err
		}
		if !exists {
			debug.Logf("replay: skipping edge %s -> %s, target not in cache", e.ID, target)
			continue
		}
		if err := sqlite.AddDependency(tx, e.ID, target); err != nil {
			return err
		}
	}
	return nil
}

func applyUpdate(tx *sql.Tx, e *types.Event) (int, error) {
	var update types.IssueUpdate
	if err := json.Unmarshal(e.Data, &update); err != nil {
		return 0, &beaderr.InvalidJSON{Context: "update payload for " + e.ID, Err: err}
	}

	if update.Status != nil && *update.Status == types.StatusDeleted {
		repaired, err := sqlite.RepairTextReferences(tx, e.ID)
		if err != nil {
			return 0, err
		}
		if err := sqlite.DeleteIssue(tx, e.ID); err != nil {
			return 0, err
		}
		return repaired, nil
	}

	// Updates to issues absent from the cache (already deleted, or never
	// created because they were born deleted) fall through harmlessly.
	return 0, sqlite.ApplyIssueUpdate(tx, e.ID, &update)
}

func stringField(fields map[string]any, key string) string {
	if s, ok := fields[key].(string); ok {
		return s
	}
	return ""
}

// dataDocument returns the payload keys that are not issue columns, or
// nil when there are none. This is the inverse of the overlay the
// service performs when it builds a create event.
func dataDocument(fields map[string]any) map[string]any {
	data := make(map[string]any, len(fields))
	for k, v := range fields {
		data[k] = v
	}
	for _, k := range overlayKeys {
		delete(data, k)
	}
	if len(data) == 0 {
		return nil
	}
	return data
}
