// Package system provides a real clock implementation.
package system

import "time"

// Clock reports wall time in UTC for ingest window math.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
