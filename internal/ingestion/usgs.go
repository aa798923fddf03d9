package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mr1hm/go-disaster-map/internal/models"
)

type usgsResponse struct {
	Features []usgsFeature `json:"features"`
}

type usgsFeature struct {
	ID         string         `json:"id"`
	Properties usgsProperties `json:"properties"`
	Geometry   usgsGeometry   `json:"geometry"`
}
type usgsProperties struct {
	Mag     *float64 `json:"mag"`
	Place   string   `json:"place"`
	Time    int64    `json:"time"` // unix millis
	Title   string   `json:"title"`
	Tsunami int      `json:"tsunami"` // 0 or 1
}
type usgsGeometry struct {
	Coordinates []float64 `json:"coordinates"` // [lon, lat, depth]
}

func (a *Aggregator) pollUSGS(ctx context.Context, feedURL string, minMagnitude float64) ([]models.DisasterEvent, error) {
	body, err := a.get(ctx, usgsQueryURL(feedURL, minMagnitude))
	if err != nil {
		return nil, err
	}

	var data usgsResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("error decoding usgs response: %w", err)
	}

	events := make([]models.DisasterEvent, 0, len(data.Features))
	for _, f := range data.Features {
		if f.Properties.Mag == nil || len(f.Geometry.Coordinates) < 2 {
			continue
		}
		mag := *f.Properties.Mag
		if mag < minMagnitude {
			continue
		}

		loc := models.Location{
			Lng:     f.Geometry.Coordinates[0],
			Lat:     f.Geometry.Coordinates[1],
			Address: f.Properties.Place,
		}
		if !loc.Valid() {
			slog.Warn("usgs event has invalid coordinates", "id", f.ID, "lat", loc.Lat, "lng", loc.Lng)
			continue
		}

		title := f.Properties.Title
		if title == "" {
			title = fmt.Sprintf("M %.1f - %s", mag, f.Properties.Place)
		}

		depth := 0.0
		if len(f.Geometry.Coordinates) > 2 {
			depth = f.Geometry.Coordinates[2]
		}

		events = append(events, models.DisasterEvent{
			ID:                 "usgs_" + f.ID,
			Type:               models.EventTypeEarthquake,
			Severity:           magnitudeSeverity(mag),
			Title:              title,
			Description:        fmt.Sprintf("Magnitude %.1f earthquake at a depth of %.1f km.", mag, depth),
			Location:           loc,
			Timestamp:          models.FormatTimestamp(time.UnixMilli(f.Properties.Time)),
			AffectedArea:       magnitudeArea(mag),
			EvacuationRequired: mag >= 6 || f.Properties.Tsunami == 1,
			Source:             "usgs",
		})
	}

	return events, nil
}

// usgsQueryURL adds the magnitude filter when pointed at the FDSN query
// endpoint. Summary feeds take no parameters and are filtered locally.
func usgsQueryURL(feedURL string, minMagnitude float64) string {
	u, err := url.Parse(feedURL)
	if err != nil || !strings.HasSuffix(u.Path, "/query") {
		return feedURL
	}
	q := u.Query()
	q.Set("format", "geojson")
	q.Set("minmagnitude", strconv.FormatFloat(minMagnitude, 'f', -1, 64))
	u.RawQuery = q.Encode()
	return u.String()
}

func magnitudeSeverity(mag float64) models.Severity {
	switch {
	case mag >= 7:
		return models.SeverityCritical
	case mag >= 5.5:
		return models.SeverityHigh
	case mag >= 4:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// magnitudeArea is a rough felt-area estimate in km²: 10^(mag/2).
func magnitudeArea(mag float64) float64 {
	return math.Round(math.Pow(10, mag/2)*10) / 10
}
