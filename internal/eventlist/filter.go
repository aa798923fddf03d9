// Package eventlist implements the event list panel: free-text search,
// severity and type filters, and summary statistics over the aggregated events.
package eventlist

import (
	"strings"

	"github.com/mr1hm/go-disaster-map/internal/models"
)

// SeverityAll disables severity filtering.
const SeverityAll = "all"

type Filter struct {
	Search   string           `json:"search"`
	Severity string           `json:"severity"`
	Type     models.EventType `json:"type,omitempty"` // empty for all types
}

func (f Filter) matches(e models.DisasterEvent) bool {
	if f.Severity != "" && f.Severity != SeverityAll && string(e.Severity) != f.Severity {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.Search == "" {
		return true
	}
	term := strings.ToLower(f.Search)
	return strings.Contains(strings.ToLower(e.Title), term) ||
		strings.Contains(strings.ToLower(e.Location.Address), term)
}

// Apply returns the matching events in their original relative order. The
// input slice is not modified.
func Apply(events []models.DisasterEvent, f Filter) []models.DisasterEvent {
	out := make([]models.DisasterEvent, 0, len(events))
	for _, e := range events {
		if f.matches(e) {
			out = append(out, e)
		}
	}
	return out
}

type Stats struct {
	Active          int     `json:"active"`
	Critical        int     `json:"critical"`
	EvacuationZones int     `json:"evacuationZones"`
	AffectedArea    float64 `json:"affectedArea"` // km²
}

func Summarize(events []models.DisasterEvent) Stats {
	s := Stats{Active: len(events)}
	for _, e := range events {
		if e.Severity == models.SeverityCritical {
			s.Critical++
		}
		if e.EvacuationRequired {
			s.EvacuationZones++
		}
		s.AffectedArea += e.AffectedArea
	}
	return s
}

type Entry struct {
	models.DisasterEvent
	Selected bool `json:"selected"`
}

func Entries(events []models.DisasterEvent, selectedID string) []Entry {
	out := make([]Entry, len(events))
	for i, e := range events {
		out[i] = Entry{DisasterEvent: e, Selected: selectedID != "" && e.ID == selectedID}
	}
	return out
}
