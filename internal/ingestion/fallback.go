package ingestion

import (
	"fmt"
	"math"
	"time"

	"github.com/mr1hm/go-disaster-map/internal/models"
)

const FallbackID = "fallback-1"

// FallbackEvent is the placeholder shown when no source produced events, so
// the map is never blank.
func FallbackEvent(now time.Time) models.DisasterEvent {
	return models.DisasterEvent{
		ID:       FallbackID,
		Type:     models.EventTypeEarthquake,
		Severity: models.SeverityHigh,
		Title:    "API Unavailable - Using Demo Data",
		Location: models.Location{
			Lat:     40.7128,
			Lng:     -74.0060,
			Address: "Demo Location",
		},
		Timestamp:          models.FormatTimestamp(now),
		AffectedArea:       50,
		EvacuationRequired: false,
		Description:        "Real-time data unavailable. Please check your internet connection and API configuration.",
		Source:             "fallback",
	}
}

// DedupKey groups events reported by more than one source: same type, same
// coordinates to one decimal place (~11 km) and the same UTC hour.
func DedupKey(e models.DisasterEvent) string {
	// Tenths as integers, so -0.0 and 0.0 share a cell.
	lat := int(math.Round(e.Location.Lat * 10))
	lng := int(math.Round(e.Location.Lng * 10))
	bucket := e.Time().UTC().Truncate(time.Hour).Unix()
	return fmt.Sprintf("%s|%d|%d|%d", e.Type, lat, lng, bucket)
}

// Dedup keeps the first event per DedupKey, preserving order.
func Dedup(events []models.DisasterEvent) []models.DisasterEvent {
	seen := make(map[string]struct{}, len(events))
	out := make([]models.DisasterEvent, 0, len(events))
	for _, e := range events {
		k := DedupKey(e)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out
}
