package models

import "time"

type Status string

const (
	StatusIdle         Status = "idle"
	StatusLoading      Status = "loading"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// SourceStatus is the outcome of one upstream source during a refresh.
type SourceStatus struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Count int    `json:"count"`
	Error string `json:"error,omitempty"`
}

// Snapshot is one published aggregation result. A new snapshot replaces the
// previous one wholesale; nothing inside it is modified after publication.
type Snapshot struct {
	Generation uint64          `json:"generation"`
	Status     Status          `json:"status"`
	Events     []DisasterEvent `json:"events"`
	Sources    []SourceStatus  `json:"sources"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Find returns the event with the given id.
func (s *Snapshot) Find(id string) (DisasterEvent, bool) {
	if s == nil || id == "" {
		return DisasterEvent{}, false
	}
	for _, e := range s.Events {
		if e.ID == id {
			return e, true
		}
	}
	return DisasterEvent{}, false
}
