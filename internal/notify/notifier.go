// Package notify publishes run-completion notifications so downstream
// consumers can react to fresh recall data without polling the database.
package notify

import (
	"context"
	"time"
)

// RunSummary describes one completed pipeline run.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Fetched    int       `json:"fetched"`
	Inserted   int       `json:"inserted"`
	Deduped    int       `json:"deduped"`
	Failed     bool      `json:"failed"`
	Error      string    `json:"error,omitempty"`
}

// Provider publishes run summaries.
type Provider interface {
	Publish(ctx context.Context, summary RunSummary) error
	Close() error
}

// NoOp discards notifications.
type NoOp struct{}

// Publish does nothing.
func (NoOp) Publish(context.Context, RunSummary) error { return nil }

// Close does nothing.
func (NoOp) Close() error { return nil }
