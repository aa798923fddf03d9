package ingestion

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mr1hm/go-disaster-map/internal/models"
)

type gdacsRSS struct {
	Channel gdacsChannel `xml:"channel"`
}
type gdacsChannel struct {
	Items []gdacsItem `xml:"item"`
}
type gdacsItem struct {
	Title       string   `xml:"title"`
	Description string   `xml:"description"`
	Link        string   `xml:"link"`
	PubDate     string   `xml:"pubDate"`
	// Nil when the item has no geo:Point.
	Lat         *float64 `xml:"http://www.w3.org/2003/01/geo/wgs84_pos# Point>lat"`
	Lon         *float64 `xml:"http://www.w3.org/2003/01/geo/wgs84_pos# Point>long"`
	EventType   string   `xml:"http://www.gdacs.org eventtype"`
	AlertLevel  string   `xml:"http://www.gdacs.org alertlevel"`
	EventID     string   `xml:"http://www.gdacs.org eventid"`
	Country     string   `xml:"http://www.gdacs.org country"`
}

func (a *Aggregator) pollGDACS(ctx context.Context, url string) ([]models.DisasterEvent, error) {
	body, err := a.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var data gdacsRSS
	if err := xml.NewDecoder(bytes.NewReader(body)).Decode(&data); err != nil {
		return nil, fmt.Errorf("error decoding gdacs feed: %w", err)
	}

	events := make([]models.DisasterEvent, 0, len(data.Channel.Items))
	for _, item := range data.Channel.Items {
		if item.Lat == nil || item.Lon == nil {
			slog.Warn("GDACS event has no coordinates", "id", item.EventID)
			continue
		}
		loc := models.Location{Lat: *item.Lat, Lng: *item.Lon, Address: item.Country}
		if !loc.Valid() {
			slog.Warn("GDACS event has invalid coordinates", "id", item.EventID)
			continue
		}
		if loc.Address == "" {
			loc.Address = "Unknown location"
		}

		timestamp, err := time.Parse(time.RFC1123, item.PubDate)
		if err != nil {
			slog.Warn("GDACS timestamp parsing failed", "id", item.EventID, "error", err.Error())
			timestamp = a.clock.Now()
		}

		severity := mapGDACSAlertLevel(item.AlertLevel)
		events = append(events, models.DisasterEvent{
			ID:                 "gdacs_" + strings.ToLower(item.EventType) + "_" + item.EventID,
			Type:               mapGDACSEventType(item.EventType),
			Severity:           severity,
			Title:              item.Title,
			Description:        strings.TrimSpace(item.Description),
			Location:           loc,
			Timestamp:          models.FormatTimestamp(timestamp),
			AffectedArea:       severityArea(severity),
			EvacuationRequired: severity.Rank() >= models.SeverityHigh.Rank(),
			Source:             "gdacs",
		})
	}

	return events, nil
}

func mapGDACSEventType(eventType string) models.EventType {
	switch strings.ToUpper(eventType) {
	case "EQ":
		return models.EventTypeEarthquake
	case "FL":
		return models.EventTypeFlood
	case "WF":
		return models.EventTypeFire
	case "TC":
		return models.EventTypeStorm
	default:
		return models.EventTypeEmergency
	}
}

func mapGDACSAlertLevel(level string) models.Severity {
	switch strings.ToLower(level) {
	case "red":
		return models.SeverityCritical
	case "orange":
		return models.SeverityHigh
	default:
		return models.SeverityLow
	}
}
