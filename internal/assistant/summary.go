package assistant

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mr1hm/go-disaster-map/internal/ingestion"
	"github.com/mr1hm/go-disaster-map/internal/models"
)

const maxHighlights = 3

// Summary describes the part of a snapshot relevant to one question.
type Summary struct {
	Status     models.Status `json:"status"`
	Matching   int           `json:"matching"`
	Critical   int           `json:"critical"`
	Evacuation int           `json:"evacuation"`
	Highlights []string      `json:"highlights"`
	Demo       bool          `json:"demo"`
	// Place is the location filter that was applied, if any.
	Place      string        `json:"place,omitempty"`
}

// Summarize counts the snapshot events matching the intent's event type.
// location narrows the count to events whose address mentions it, unless no
// event address does, in which case it is ignored.
func Summarize(snap *models.Snapshot, intent Intent, location string) Summary {
	if snap == nil {
		return Summary{Status: models.StatusIdle}
	}
	s := Summary{Status: snap.Status}

	wantType, typed := intent.EventType()
	loc := strings.ToLower(strings.TrimSpace(location))
	if loc != "" && !mentioned(snap.Events, loc) {
		loc = ""
	}
	if loc != "" {
		s.Place = strings.TrimSpace(location)
	}

	var matched []models.DisasterEvent
	for _, e := range snap.Events {
		if e.ID == ingestion.FallbackID {
			s.Demo = true
			continue
		}
		if typed && e.Type != wantType {
			continue
		}
		if loc != "" && !strings.Contains(strings.ToLower(e.Location.Address), loc) {
			continue
		}
		matched = append(matched, e)
	}

	s.Matching = len(matched)
	for _, e := range matched {
		if e.Severity == models.SeverityCritical {
			s.Critical++
		}
		if e.EvacuationRequired {
			s.Evacuation++
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Severity.Rank() > matched[j].Severity.Rank()
	})
	for i := 0; i < len(matched) && i < maxHighlights; i++ {
		e := matched[i]
		s.Highlights = append(s.Highlights, fmt.Sprintf("%s (%s, %s)", e.Title, e.Severity, e.Location.Address))
	}
	return s
}

func mentioned(events []models.DisasterEvent, loc string) bool {
	for _, e := range events {
		if e.ID != ingestion.FallbackID && strings.Contains(strings.ToLower(e.Location.Address), loc) {
			return true
		}
	}
	return false
}

func (s Summary) String() string {
	if s.Demo && s.Matching == 0 {
		return "Live disaster feeds are currently unavailable, so no real-time events can be reported."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d matching active event", s.Matching)
	if s.Matching != 1 {
		b.WriteString("s")
	}
	if s.Critical > 0 {
		fmt.Fprintf(&b, ", %d critical", s.Critical)
	}
	if s.Evacuation > 0 {
		fmt.Fprintf(&b, ", %d with evacuation orders", s.Evacuation)
	}
	b.WriteString(".")
	for _, h := range s.Highlights {
		b.WriteString("\n- ")
		b.WriteString(h)
	}
	return b.String()
}
