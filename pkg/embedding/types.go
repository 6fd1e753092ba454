// Package embedding implements C7 (embedding worker) and C8 (recall): a
// bounded single-worker queue that computes and stores embeddings for
// event/session/lesson text, content-addressed by SHA-256 so duplicate
// content is never re-embedded (spec.md §4.7).
package embedding

import "time"

// SourceType is the closed enum of things an embedding can describe.
type SourceType string

const (
	SourceEvent   SourceType = "event"
	SourceSession SourceType = "session"
	SourceLesson  SourceType = "lesson"
)

// Embedding is the persisted row (spec.md §3's Embedding entity).
type Embedding struct {
	ID          string
	TenantID    string
	SourceType  SourceType
	SourceID    string
	ContentHash string
	TextContent string
	Vector      []float32
	Model       string
	Dimensions  int
	CreatedAt   time.Time
}

// Job is one unit of work submitted to the worker's queue.
type Job struct {
	TenantID    string
	SourceType  SourceType
	SourceID    string
	TextContent string
}
