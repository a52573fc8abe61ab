// Package sheets defines the activity log sink the worker writes to.
package sheets

import (
	"context"
	"strconv"
	"time"

	"finboard/internal/core"
)

// Header is the first row of the activity sheet.
var Header = []string{"timestamp", "type", "user", "resource", "resource_id", "session"}

// ActivityWriter appends activity events to a log.
type ActivityWriter interface {
	AppendActivity(ctx context.Context, ev core.ActivityEvent) error
}

// HeaderEnsurer is implemented by writers that need the header row in place
// before the first append.
type HeaderEnsurer interface {
	EnsureHeader(ctx context.Context) error
}

// Row flattens ev into the sheet columns, in Header order.
func Row(ev core.ActivityEvent) []string {
	id := ""
	if ev.ResourceID != 0 {
		id = strconv.FormatInt(ev.ResourceID, 10)
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return []string{
		ts.UTC().Format(time.RFC3339),
		string(ev.Type),
		ev.User,
		ev.Resource,
		id,
		ev.SessionID,
	}
}
