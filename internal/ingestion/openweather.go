package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mr1hm/go-disaster-map/internal/models"
	"github.com/mr1hm/go-disaster-map/internal/worker"
)

var errMissingWeatherKey = errors.New("missing weather api key")

type owmResponse struct {
	ID      int64        `json:"id"`
	Name    string       `json:"name"`
	Dt      int64        `json:"dt"`
	Coord   owmCoord     `json:"coord"`
	Weather []owmWeather `json:"weather"`
	Wind    owmWind      `json:"wind"`
	Rain    owmRain      `json:"rain"`
	Sys     owmSys       `json:"sys"`
}
type owmCoord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}
type owmWeather struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
}
type owmWind struct {
	Speed float64 `json:"speed"` // m/s with units=metric
	Gust  float64 `json:"gust"`
}
type owmRain struct {
	OneHour float64 `json:"1h"`
}
type owmSys struct {
	Country string `json:"country"`
}

type cityResult struct {
	event *models.DisasterEvent
	err   error
}

func (a *Aggregator) pollOpenWeather(ctx context.Context, baseURL, apiKey string, cities []string) ([]models.DisasterEvent, error) {
	if apiKey == "" {
		return nil, errMissingWeatherKey
	}
	if len(cities) == 0 {
		return nil, nil
	}

	var (
		mu      sync.Mutex
		results = make(map[string]cityResult, len(cities))
	)

	stats := worker.Run(ctx, a.workers, cities, func(ctx context.Context, city string) error {
		ev, err := a.fetchCityWeather(ctx, baseURL, apiKey, city)
		mu.Lock()
		results[city] = cityResult{event: ev, err: err}
		mu.Unlock()
		return err
	})
	slog.Debug("weather fetch finished", "cities", len(cities), "fetched", stats.Processed, "failed", stats.Failed)

	var (
		events []models.DisasterEvent
		errs   []error
	)
	// Iterate cities, not the map, so output order is stable.
	for _, city := range cities {
		r, ok := results[city]
		if !ok {
			errs = append(errs, fmt.Errorf("%s: not fetched", city))
			continue
		}
		if r.err != nil {
			slog.Warn("weather fetch failed", "city", city, "error", r.err)
			errs = append(errs, fmt.Errorf("%s: %w", city, r.err))
			continue
		}
		if r.event != nil {
			events = append(events, *r.event)
		}
	}

	if len(errs) == len(cities) {
		return nil, errors.Join(errs...)
	}
	return events, nil
}

func (a *Aggregator) fetchCityWeather(ctx context.Context, baseURL, apiKey, city string) (*models.DisasterEvent, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing weather url: %w", err)
	}
	q := u.Query()
	q.Set("q", city)
	q.Set("appid", apiKey)
	q.Set("units", "metric")
	u.RawQuery = q.Encode()

	body, err := a.get(ctx, u.String())
	if err != nil {
		return nil, err
	}

	var data owmResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("error decoding weather response: %w", err)
	}

	hazard, ok := classifyWeather(data)
	if !ok {
		return nil, nil
	}

	loc := models.Location{
		Lat:     data.Coord.Lat,
		Lng:     data.Coord.Lon,
		Address: cityAddress(data, city),
	}
	if !loc.Valid() {
		return nil, fmt.Errorf("invalid coordinates %v,%v", loc.Lat, loc.Lng)
	}

	ts := a.clock.Now()
	if data.Dt > 0 {
		ts = time.Unix(data.Dt, 0)
	}

	id := strconv.FormatInt(data.ID, 10)
	if data.ID == 0 {
		id = strings.ToLower(strings.ReplaceAll(city, " ", "-"))
	}

	return &models.DisasterEvent{
		ID:                 "owm_" + id,
		Type:               hazard.eventType,
		Severity:           hazard.severity,
		Title:              hazard.title + " - " + loc.Address,
		Description:        hazard.detail,
		Location:           loc,
		Timestamp:          models.FormatTimestamp(ts),
		AffectedArea:       severityArea(hazard.severity),
		EvacuationRequired: hazard.severity == models.SeverityCritical,
		Source:             "openweather",
	}, nil
}

func cityAddress(data owmResponse, fallback string) string {
	name := data.Name
	if name == "" {
		name = fallback
	}
	if data.Sys.Country != "" {
		return name + ", " + data.Sys.Country
	}
	return name
}

type weatherHazard struct {
	eventType models.EventType
	severity  models.Severity
	title     string
	detail    string
}

// classifyWeather turns current conditions into a hazard. Condition codes
// follow the OpenWeatherMap table; calm weather reports ok=false.
func classifyWeather(data owmResponse) (weatherHazard, bool) {
	var best weatherHazard
	found := false
	consider := func(h weatherHazard) {
		if !found || h.severity.Rank() > best.severity.Rank() {
			best = h
			found = true
		}
	}

	for _, w := range data.Weather {
		desc := w.Description
		switch {
		case w.ID >= 200 && w.ID < 300:
			sev := models.SeverityMedium
			if w.ID == 202 || w.ID == 212 || w.ID == 221 || w.ID == 232 {
				sev = models.SeverityHigh
			}
			consider(weatherHazard{models.EventTypeStorm, sev, "Thunderstorm Warning", capitalize(desc)})
		case w.ID == 502 || w.ID == 503 || w.ID == 522 || w.ID == 531:
			consider(weatherHazard{models.EventTypeFlood, models.SeverityHigh, "Heavy Rain Flood Risk", capitalize(desc)})
		case w.ID == 504:
			consider(weatherHazard{models.EventTypeFlood, models.SeverityCritical, "Flash Flood Warning", capitalize(desc)})
		case w.ID == 511:
			consider(weatherHazard{models.EventTypeStorm, models.SeverityMedium, "Freezing Rain Advisory", capitalize(desc)})
		case w.ID == 711:
			consider(weatherHazard{models.EventTypeFire, models.SeverityMedium, "Smoke Advisory", capitalize(desc)})
		case w.ID == 762:
			consider(weatherHazard{models.EventTypeFire, models.SeverityHigh, "Volcanic Ash Warning", capitalize(desc)})
		case w.ID == 771:
			consider(weatherHazard{models.EventTypeStorm, models.SeverityHigh, "Squall Warning", capitalize(desc)})
		case w.ID == 781:
			consider(weatherHazard{models.EventTypeEmergency, models.SeverityCritical, "Tornado Emergency", capitalize(desc)})
		}
	}

	if rain := data.Rain.OneHour; rain >= 10 {
		sev := models.SeverityMedium
		switch {
		case rain >= 50:
			sev = models.SeverityCritical
		case rain >= 20:
			sev = models.SeverityHigh
		}
		consider(weatherHazard{models.EventTypeFlood, sev, "Flood Watch", fmt.Sprintf("Rainfall of %.1f mm in the last hour.", rain)})
	}

	if wind := max(data.Wind.Speed, data.Wind.Gust); wind >= 17 {
		sev := models.SeverityMedium
		switch {
		case wind >= 32.7:
			sev = models.SeverityCritical
		case wind >= 24.5:
			sev = models.SeverityHigh
		}
		consider(weatherHazard{models.EventTypeStorm, sev, "High Wind Warning", fmt.Sprintf("Wind speeds of %.1f m/s.", wind)})
	}

	return best, found
}

// severityArea is the default affected area in km² for sources that do not
// report one.
func severityArea(s models.Severity) float64 {
	switch s {
	case models.SeverityCritical:
		return 200
	case models.SeverityHigh:
		return 100
	case models.SeverityMedium:
		return 50
	default:
		return 20
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
