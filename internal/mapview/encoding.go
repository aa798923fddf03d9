// Package mapview computes what the disaster map draws: marker glyphs and
// badges, severity colours, affected-area circles and the viewport.
package mapview

import (
	"math"

	"github.com/mr1hm/go-disaster-map/internal/models"
)

const (
	// MinCircleRadius keeps small-area events visible on the map.
	MinCircleRadius = 10

	DefaultZoom = 4
	FocusZoom   = 10
)

var glyphs = map[models.EventType]string{
	models.EventTypeEarthquake: "🌋",
	models.EventTypeFlood:      "🌊",
	models.EventTypeFire:       "🔥",
	models.EventTypeStorm:      "⛈️",
	models.EventTypeEmergency:  "🚨",
}

const defaultGlyph = "⚠️"

func Glyph(t models.EventType) string {
	if g, ok := glyphs[t]; ok {
		return g
	}
	return defaultGlyph
}

const DefaultColor = "#6B7280"

// Color maps severity to the marker and circle colour. Unknown severities
// get gray.
func Color(s models.Severity) string {
	switch s {
	case models.SeverityLow:
		return "#10B981"
	case models.SeverityMedium:
		return "#F59E0B"
	case models.SeverityHigh:
		return "#F97316"
	case models.SeverityCritical:
		return "#EF4444"
	default:
		return DefaultColor
	}
}

// CircleRadius is a presentation heuristic, not a physical scale:
// max(area/2, 10) map units.
func CircleRadius(affectedArea float64) float64 {
	return math.Max(affectedArea/2, MinCircleRadius)
}

type Marker struct {
	Glyph    string `json:"glyph"`
	Color    string `json:"color"`
	Pulse    bool   `json:"pulse"`
	Badge    bool   `json:"badge"`
	Selected bool   `json:"selected"`
}

func MarkerFor(e models.DisasterEvent, selectedID string) Marker {
	return Marker{
		Glyph:    Glyph(e.Type),
		Color:    Color(e.Severity),
		Pulse:    e.Severity == models.SeverityCritical,
		Badge:    e.EvacuationRequired,
		Selected: selectedID != "" && e.ID == selectedID,
	}
}

type Circle struct {
	Radius      float64 `json:"radius"`
	Color       string  `json:"color"`
	FillColor   string  `json:"fillColor"`
	Weight      int     `json:"weight"`
	Opacity     float64 `json:"opacity"`
	FillOpacity float64 `json:"fillOpacity"`
}

func CircleFor(e models.DisasterEvent) Circle {
	c := Color(e.Severity)
	return Circle{
		Radius:      CircleRadius(e.AffectedArea),
		Color:       c,
		FillColor:   c,
		Weight:      2,
		Opacity:     0.7,
		FillOpacity: 0.2,
	}
}
