package models

import (
	"sort"
	"strings"
	"time"
)

type EventType string

const (
	EventTypeEarthquake EventType = "earthquake"
	EventTypeFlood      EventType = "flood"
	EventTypeFire       EventType = "fire"
	EventTypeStorm      EventType = "storm"
	EventTypeEmergency  EventType = "emergency"
)

func ParseEventType(s string) EventType {
	return EventType(strings.ToLower(strings.TrimSpace(s)))
}

func (t EventType) Valid() bool {
	switch t {
	case EventTypeEarthquake, EventTypeFlood, EventTypeFire, EventTypeStorm, EventTypeEmergency:
		return true
	}
	return false
}

// Severity is ordinal: low < medium < high < critical. Values outside the
// enumeration are kept as-is so renderers can fall back to the gray encoding.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func ParseSeverity(s string) Severity {
	return Severity(strings.ToLower(strings.TrimSpace(s)))
}

// Rank returns 1..4 for known severities and 0 otherwise.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

func (s Severity) Valid() bool {
	return s.Rank() > 0
}

type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
}

// Valid reports whether the coordinates are inside WGS84 bounds.
func (l Location) Valid() bool {
	return l.Lat >= -90 && l.Lat <= 90 && l.Lng >= -180 && l.Lng <= 180
}

// DisasterEvent is the normalized record shared by the map and list views.
// Events are never mutated after a source produces them.
type DisasterEvent struct {
	ID                 string    `json:"id"`
	Type               EventType `json:"type"`
	Severity           Severity  `json:"severity"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	Location           Location  `json:"location"`
	Timestamp          string    `json:"timestamp"`    // RFC3339
	AffectedArea       float64   `json:"affectedArea"` // km²
	EvacuationRequired bool      `json:"evacuationRequired"`
	Casualties         *int      `json:"casualties,omitempty"`
	Source             string    `json:"source,omitempty"`
}

// Time parses Timestamp. The zero time is returned when it cannot be parsed.
func (e DisasterEvent) Time() time.Time {
	t, err := time.Parse(time.RFC3339, e.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// SortByRecency orders events newest first. Events with unparsable
// timestamps go last; ties keep their original order.
func SortByRecency(events []DisasterEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		ti, tj := events[i].Time(), events[j].Time()
		if ti.IsZero() != tj.IsZero() {
			return !ti.IsZero()
		}
		return ti.After(tj)
	})
}
