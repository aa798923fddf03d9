package ingestion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-disaster-map/internal/models"
)

func newWeatherServer(t *testing.T, byCity map[string]owmResponse) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("appid") != "test-key" {
			http.Error(w, `{"cod":401}`, http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("units") != "metric" {
			http.Error(w, "units", http.StatusBadRequest)
			return
		}
		data, ok := byCity[r.URL.Query().Get("q")]
		if !ok {
			http.Error(w, `{"cod":"404"}`, http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPollOpenWeather(t *testing.T) {
	srv := newWeatherServer(t, map[string]owmResponse{
		"Mumbai": {
			ID: 1275339, Name: "Mumbai", Dt: 1705329000,
			Coord:   owmCoord{Lat: 19.07, Lon: 72.88},
			Weather: []owmWeather{{ID: 502, Main: "Rain", Description: "heavy intensity rain"}},
			Rain:    owmRain{OneHour: 55},
			Sys:     owmSys{Country: "IN"},
		},
		"London": {
			ID: 2643743, Name: "London", Dt: 1705329000,
			Coord:   owmCoord{Lat: 51.51, Lon: -0.13},
			Weather: []owmWeather{{ID: 800, Main: "Clear", Description: "clear sky"}},
			Wind:    owmWind{Speed: 3},
		},
	})
	agg := newTestAggregator(Endpoints{OpenWeatherURL: srv.URL})

	events, err := agg.pollOpenWeather(context.Background(), srv.URL, "test-key", []string{"Mumbai", "London", "Atlantis"})
	require.NoError(t, err, "one failing city does not fail the source")
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "owm_1275339", ev.ID)
	assert.Equal(t, models.EventTypeFlood, ev.Type)
	assert.Equal(t, models.SeverityCritical, ev.Severity)
	assert.Equal(t, "Mumbai, IN", ev.Location.Address)
	assert.True(t, ev.EvacuationRequired)
	assert.Equal(t, 200.0, ev.AffectedArea)
}

func TestPollOpenWeather_AllCitiesFail(t *testing.T) {
	srv := newWeatherServer(t, nil)
	agg := newTestAggregator(Endpoints{})

	_, err := agg.pollOpenWeather(context.Background(), srv.URL, "wrong-key", []string{"Mumbai", "Delhi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Mumbai")
	assert.Contains(t, err.Error(), "Delhi")
}

func TestPollOpenWeather_MissingKey(t *testing.T) {
	agg := newTestAggregator(Endpoints{})
	_, err := agg.pollOpenWeather(context.Background(), "http://unused", "", []string{"Delhi"})
	assert.ErrorIs(t, err, errMissingWeatherKey)
}

func TestClassifyWeather(t *testing.T) {
	tests := []struct {
		name     string
		in       owmResponse
		wantOK   bool
		wantType models.EventType
		wantSev  models.Severity
	}{
		{"calm", owmResponse{Weather: []owmWeather{{ID: 800}}}, false, "", ""},
		{"thunderstorm", owmResponse{Weather: []owmWeather{{ID: 211, Description: "thunderstorm"}}}, true, models.EventTypeStorm, models.SeverityMedium},
		{"heavy thunderstorm", owmResponse{Weather: []owmWeather{{ID: 212}}}, true, models.EventTypeStorm, models.SeverityHigh},
		{"extreme rain", owmResponse{Weather: []owmWeather{{ID: 504}}}, true, models.EventTypeFlood, models.SeverityCritical},
		{"moderate rain volume", owmResponse{Rain: owmRain{OneHour: 12}}, true, models.EventTypeFlood, models.SeverityMedium},
		{"gale", owmResponse{Wind: owmWind{Speed: 18}}, true, models.EventTypeStorm, models.SeverityMedium},
		{"hurricane gusts", owmResponse{Wind: owmWind{Speed: 20, Gust: 35}}, true, models.EventTypeStorm, models.SeverityCritical},
		{"smoke", owmResponse{Weather: []owmWeather{{ID: 711}}}, true, models.EventTypeFire, models.SeverityMedium},
		{"tornado", owmResponse{Weather: []owmWeather{{ID: 781}}}, true, models.EventTypeEmergency, models.SeverityCritical},
		{"worst wins", owmResponse{Weather: []owmWeather{{ID: 211}}, Wind: owmWind{Speed: 26}}, true, models.EventTypeStorm, models.SeverityHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, ok := classifyWeather(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				return
			}
			assert.Equal(t, tt.wantType, h.eventType)
			assert.Equal(t, tt.wantSev, h.severity)
		})
	}
}
