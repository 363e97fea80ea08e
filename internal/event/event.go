// Package event defines the unit that moves through the display pipeline.
package event

import "github.com/google/uuid"

// Priority orders events in the queue. Lower values are served first.
type Priority int

const (
	// High is an item from the external stream.
	High Priority = iota
	// Low is status or filler content.
	Low
)

// String returns "high" or "low".
func (p Priority) String() string {
	switch p {
	case High:
		return "high"
	case Low:
		return "low"
	}
	return "unknown"
}

// DisplayEvent is one screen's worth of content. It is immutable once
// enqueued. Lines are kept as received; fitting them to the display width
// happens at render time.
type DisplayEvent struct {
	// ID correlates log lines for one event.
	ID       string
	Priority Priority
	Line1    string
	Line2    string
	// Alert fires the indicator after rendering.
	Alert bool
}

// NewStreamEvent builds the High priority, alerting event for an item
// posted by author.
func NewStreamEvent(author, text string) DisplayEvent {
	return DisplayEvent{
		ID:       uuid.NewString(),
		Priority: High,
		Line1:    "@" + author + ":",
		Line2:    text,
		Alert:    true,
	}
}

// NewFiller builds a Low priority, non-alerting event.
func NewFiller(line1, line2 string) DisplayEvent {
	return DisplayEvent{
		ID:       uuid.NewString(),
		Priority: Low,
		Line1:    line1,
		Line2:    line2,
	}
}
