// Package eventlog implements the append-only JSONL event log, the
// single source of truth for a repo. Each line is one event; ordering
// across collaborators is re-established by sorting on event_id, so the
// file itself may be any interleaving after a merge.
package eventlog

import (
	"bufio"
	"encoding/json"
	"os"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/untoldecay/beadcore/internal/beaderr"
	"github.com/untoldecay/beadcore/internal/config"
	"github.com/untoldecay/beadcore/internal/debug"
	"github.com/untoldecay/beadcore/internal/types"
)

// maxLineBytes bounds a single log line. Event payloads are small JSON
// documents; anything near this size indicates corruption.
const maxLineBytes = 16 * 1024 * 1024

// Log is an append-only JSONL file of events.
type Log struct {
	path string
}

// New returns a log backed by the file at path.
func New(path string) *Log {
	return &Log{path: path}
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

// NewEvent builds an event targeting issueID. lastEventID, when known,
// guarantees the generated id is strictly greater, preserving
// single-writer ordering even within one millisecond.
func NewEvent(op types.OpKind, issueID string, data json.RawMessage, lastEventID string) *types.Event {
	return &types.Event{
		EventID: nextEventID(lastEventID),
		TS:      time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Op:      op,
		ID:      issueID,
		Actor:   config.Actor(),
		Data:    data,
	}
}

// nextEventID generates a ULID strictly greater than last (when last is
// a valid ULID). ULIDs are time-prefixed, so the loop only spins when
// two ids land in the same millisecond.
func nextEventID(last string) string {
	for {
		candidate := ulid.Make().String()
		if last == "" || candidate > last {
			return candidate
		}
	}
}

// Append serializes the event and appends it as one line. Returns the
// byte offset of the end of the written line, i.e. the next unread
// position for incremental replay.
func (l *Log) Append(e *types.Event) (int64, error) {
	encoded, err := json.Marshal(e)
	if err != nil {
		return 0, &beaderr.InvalidJSON{Context: "event serialization", Err: err}
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, beaderr.NewIO("open event log for append", l.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, beaderr.NewIO("stat event log", l.path, err)
	}
	start := info.Size()

	if _, err := f.Write(append(encoded, '\n')); err != nil {
		return 0, beaderr.NewIO("append to event log", l.path, err)
	}

	debug.Logf("eventlog: appended %s %s for %s at offset %d", e.Op, e.EventID, e.ID, start)
	return start + int64(len(encoded)) + 1, nil
}

// ReadFrom parses every event from the given byte offset to EOF.
// Blank lines are skipped; a line that is not a valid event is fatal
// (the log is treated as corrupt). Returns the events in file order and
// the offset one past the last line read.
func (l *Log) ReadFrom(offset int64) ([]types.Event, int64, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, offset, nil
		}
		return nil, 0, beaderr.NewIO("open event log", l.path, err)
	}
	defer f.Close()

	if offset > 0 {
		if _, err := f.Seek(offset, 0); err != nil {
			return nil, 0, beaderr.NewIO("seek event log", l.path, err)
		}
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var events []types.Event
	end := offset

	for scanner.Scan() {
		line := scanner.Bytes()
		end += int64(len(line)) + 1

		if len(line) == 0 || isBlank(line) {
			continue
		}

		var e types.Event
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, 0, &beaderr.InvalidJSON{Context: "event log line", Err: err}
		}
		if err := validateEvent(&e); err != nil {
			return nil, 0, err
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, beaderr.NewIO("read event log", l.path, err)
	}

	return events, end, nil
}

// ReadAll parses the whole log from byte 0.
func (l *Log) ReadAll() ([]types.Event, int64, error) {
	return l.ReadFrom(0)
}

// Size returns the current length of the log file in bytes.
func (l *Log) Size() (int64, error) {
	info, err := os.Stat(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, beaderr.NewIO("stat event log", l.path, err)
	}
	return info.Size(), nil
}

func validateEvent(e *types.Event) error {
	if _, err := ulid.ParseStrict(e.EventID); err != nil {
		return &beaderr.InvalidJSON{Context: "event_id " + e.EventID, Err: err}
	}
	if !types.KnownOp(e.Op) {
		return &beaderr.InvalidJSON{
			Context: "event " + e.EventID,
			Err: &beaderr.InvalidEnumValue{
				Field:    "op",
				Provided: string(e.Op),
				Valid:    []string{"create", "update", "comment", "link", "unlink", "archive"},
			},
		}
	}
	return nil
}

func isBlank(line []byte) bool {
	for _, c := range line {
		if c != ' ' && c != '\t' && c != '\r' {
			return false
		}
	}
	return true
}
