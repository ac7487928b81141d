// Package model defines the shared, fixed-shape records that flow between
// the dispatch core's components. Every record here is a plain struct with
// fixed fields — never a map[string]any payload — so an invalid shape is a
// compile error, not a runtime surprise.
package model

import "time"

// Priority is a closed range 0 (lowest) .. 9 (highest); 9 is served first.
type Priority int

const (
	PriorityLowest  Priority = 0
	PriorityDefault Priority = 5
	PriorityHighest Priority = 9
)

// Request is one inbound user message working its way from ingress through
// the Queue to the Dispatcher and back out as a reply or failure.
type Request struct {
	ID       string
	UserID   string
	Arrived  time.Time
	Text     string
	Channel  string
	Priority Priority
	Deadline time.Time

	// UserName and ChannelID are opaque display strings carried through for
	// dispatch logging/metadata; they never influence synthesis.
	UserName  string
	ChannelID string
}

// RemainingTime returns the time left until Deadline, which may be negative.
func (r Request) RemainingTime(now time.Time) time.Duration {
	return r.Deadline.Sub(now)
}
