package mapview

import (
	"github.com/mr1hm/go-disaster-map/internal/models"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// Render encodes every event as a GeoJSON point carrying its marker and
// affected-area circle styling. Order follows the input slice.
func Render(events []models.DisasterEvent, selectedID string) FeatureCollection {
	features := make([]Feature, 0, len(events))

	for _, e := range events {
		props := map[string]any{
			"id":                 e.ID,
			"type":               string(e.Type),
			"severity":           string(e.Severity),
			"title":              e.Title,
			"description":        e.Description,
			"address":            e.Location.Address,
			"timestamp":          e.Timestamp,
			"affectedArea":       e.AffectedArea,
			"evacuationRequired": e.EvacuationRequired,
			"source":             e.Source,
			"marker":             MarkerFor(e, selectedID),
			"circle":             CircleFor(e),
		}
		if e.Casualties != nil {
			props["casualties"] = *e.Casualties
		}

		features = append(features, Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: []float64{e.Location.Lng, e.Location.Lat},
			},
			Properties: props,
		})
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}
