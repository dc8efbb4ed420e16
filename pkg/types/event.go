// Package types provides core data types for SmartQuery.
package types

import (
	"fmt"
	"strings"
	"time"
)

// DefaultTable is the table events are routed to when none is set.
const DefaultTable = "events"

// Event is the atomic record ingested into the engine.
type Event struct {
	// TS is the event timestamp in milliseconds since epoch
	TS int64 `json:"ts"`

	// Table is the logical table this event belongs to
	Table string `json:"table"`

	// UserID identifies the user who triggered the event (optional)
	UserID string `json:"userId"`

	// Name is the event name (e.g., "page_view", "purchase")
	Name string `json:"event"`

	// Props contains the event-specific string properties
	Props map[string]string `json:"props"`
}

// NewEvent creates an event with the current wall clock timestamp and the
// default table.
func NewEvent(userID, name string) *Event {
	return &Event{
		TS:     time.Now().UnixMilli(),
		Table:  DefaultTable,
		UserID: userID,
		Name:   name,
		Props:  make(map[string]string),
	}
}

// WithProperty sets a property and returns the event for chaining.
func (e *Event) WithProperty(key, value string) *Event {
	if e.Props == nil {
		e.Props = make(map[string]string)
	}
	e.Props[key] = value
	return e
}

// Property returns the value of a property and whether it is present.
func (e *Event) Property(key string) (string, bool) {
	if e.Props == nil {
		return "", false
	}
	v, ok := e.Props[key]
	return v, ok
}

// Valid reports whether the event carries the required fields.
func (e *Event) Valid() bool {
	return strings.TrimSpace(e.Name) != ""
}

// String returns a human-readable representation of the event.
func (e *Event) String() string {
	return fmt.Sprintf("Event{ts=%d, table=%s, userId=%s, event=%s, props=%v}",
		e.TS, e.Table, e.UserID, e.Name, e.Props)
}
