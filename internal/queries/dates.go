// Package queries implements read-side filters over the derived cache
// that go beyond simple key lookups, currently date-based filtering
// with natural language date parsing.
package queries

import (
	"context"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/untoldecay/beadcore/internal/beaderr"
	"github.com/untoldecay/beadcore/internal/config"
	"github.com/untoldecay/beadcore/internal/storage/sqlite"
	"github.com/untoldecay/beadcore/internal/types"
)

// createdAtLayout is the timestamp format events carry. Lexicographic
// compare of these strings equals chronological compare, so the filters
// push the comparison into SQL directly.
const createdAtLayout = "2006-01-02T15:04:05.000Z07:00"

// CreatedAfter returns the issues created strictly after t.
func CreatedAfter(ctx context.Context, store *sqlite.Store, t time.Time) ([]*types.Issue, error) {
	return store.GetIssuesCreatedBetween(ctx, t.UTC().Format(createdAtLayout), "")
}

// CreatedBefore returns the issues created strictly before t.
func CreatedBefore(ctx context.Context, store *sqlite.Store, t time.Time) ([]*types.Issue, error) {
	return store.GetIssuesCreatedBetween(ctx, "", t.UTC().Format(createdAtLayout))
}

// CreatedBetween returns the issues created in (after, before).
func CreatedBetween(ctx context.Context, store *sqlite.Store, after, before time.Time) ([]*types.Issue, error) {
	return store.GetIssuesCreatedBetween(ctx,
		after.UTC().Format(createdAtLayout), before.UTC().Format(createdAtLayout))
}

var parser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// ParseDate resolves a user-supplied date expression. It accepts
// RFC3339 timestamps, plain dates (2026-01-15), and natural language
// ("yesterday", "2 weeks ago") via the when parser, evaluated in the
// configured timezone.
func ParseDate(expr string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, expr); err == nil {
		return t, nil
	}

	loc := config.Timezone()
	if t, err := time.ParseInLocation("2006-01-02", expr, loc); err == nil {
		return t, nil
	}

	result, err := parser.Parse(expr, now.In(loc))
	if err == nil && result != nil {
		return result.Time, nil
	}
	return time.Time{}, &beaderr.InvalidEnumValue{
		Field:    "date",
		Provided: expr,
		Valid:    []string{"RFC3339", "YYYY-MM-DD", "natural language (e.g. \"2 weeks ago\")"},
	}
}
