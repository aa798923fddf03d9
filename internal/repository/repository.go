package repository

import (
	"context"
	"time"

	"github.com/mr1hm/go-disaster-map/internal/models"
)

type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// Run records one refresh pass. Stale runs were superseded by a newer
// generation and their results were never published.
type Run struct {
	ID         string                `json:"id"`
	Generation uint64                `json:"generation"`
	Trigger    Trigger               `json:"trigger"`
	Status     models.Status         `json:"status"`
	EventCount int                   `json:"eventCount"`
	Fallback   bool                  `json:"fallback"`
	Stale      bool                  `json:"stale"`
	Sources    []models.SourceStatus `json:"sources"`
	StartedAt  time.Time             `json:"startedAt"`
	FinishedAt time.Time             `json:"finishedAt"`
}

func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

const (
	DefaultRunLimit = 20
	MaxRunLimit     = 500
)

type RunRepository interface {
	AddRun(ctx context.Context, r *Run) error
	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}
