// Package storage implements the in-memory columnar event store partitioned
// by logical table. Each table holds an append-only sequence of segments, one
// per flushed ingest batch.
package storage

import (
	"strconv"
	"strings"

	"github.com/AryanB1/SmartQuery/pkg/types"
)

// PropsPrefix qualifies property columns in SQL (e.g. "props.region").
const PropsPrefix = "props."

// Row is a read-only view over a stored event. It exposes the four base
// columns plus property access by bare name or "props.<name>".
type Row struct {
	event *types.Event
}

// NewRow wraps an event in a row view.
func NewRow(e *types.Event) Row {
	return Row{event: e}
}

// Timestamp returns the event timestamp in milliseconds since epoch.
func (r Row) Timestamp() int64 {
	return r.event.TS
}

// Table returns the table the event was stored under.
func (r Row) Table() string {
	return r.event.Table
}

// UserID returns the user identifier, or "" when absent.
func (r Row) UserID() string {
	return r.event.UserID
}

// Event returns the event name.
func (r Row) Event() string {
	return r.event.Name
}

// Props returns the raw property map. Callers must not mutate it.
func (r Row) Props() map[string]string {
	return r.event.Props
}

// Property returns a single property value and whether it is present.
func (r Row) Property(key string) (string, bool) {
	return r.event.Property(key)
}

// Source returns the underlying event.
func (r Row) Source() *types.Event {
	return r.event
}

// Value resolves a column by name. Base columns are matched
// case-insensitively (ts/timestamp, table, userid/user_id, event); any other
// name is looked up in the property map, either bare or with the "props."
// prefix stripped, using the original casing. Missing values and empty
// optional fields resolve to nil.
func (r Row) Value(column string) any {
	switch strings.ToLower(column) {
	case "ts", "timestamp":
		return r.event.TS
	case "table":
		return r.event.Table
	case "userid", "user_id":
		if r.event.UserID == "" {
			return nil
		}
		return r.event.UserID
	case "event":
		return r.event.Name
	}

	key := column
	if len(column) > len(PropsPrefix) && strings.EqualFold(column[:len(PropsPrefix)], PropsPrefix) {
		key = column[len(PropsPrefix):]
	}
	if v, ok := r.event.Property(key); ok {
		return v
	}
	return nil
}

// StringValue resolves a column to its textual form for index building.
// The second return is false when the value is absent.
func (r Row) StringValue(column string) (string, bool) {
	v := r.Value(column)
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case int64:
		return strconv.FormatInt(val, 10), true
	default:
		return "", false
	}
}
