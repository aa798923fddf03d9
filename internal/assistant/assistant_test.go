package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-disaster-map/internal/ingestion"
	"github.com/mr1hm/go-disaster-map/internal/models"
	"github.com/mr1hm/go-disaster-map/internal/observability"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		message    string
		intent     Intent
		confidence Confidence
	}{
		{"Is there earthquake activity in Delhi?", IntentEarthquake, ConfidenceMedium},
		{"Any seismic tremor or quake near Tokyo", IntentEarthquake, ConfidenceHigh},
		{"What's the flood risk in Assam?", IntentFlood, ConfidenceMedium},
		{"Current weather alerts for Mumbai? Is a cyclone coming?", IntentStorm, ConfidenceHigh},
		{"I smell smoke, is there a wildfire?", IntentFire, ConfidenceHigh},
		{"send an SMS to my family", IntentSendSMS, ConfidenceMedium},
		{"Call an ambulance", IntentCallEmergency, ConfidenceHigh},
		{"SOS! emergency!", IntentEmergency, ConfidenceHigh},
		{"hello there", IntentGeneral, ConfidenceLow},
		{"", IntentGeneral, ConfidenceLow},
		// Substrings of longer words do not count.
		{"recall the firewall settings", IntentGeneral, ConfidenceLow},
		// Ties go to the earlier hazard.
		{"help, earthquake", IntentEarthquake, ConfidenceMedium},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			intent, confidence := Classify(tt.message)
			assert.Equal(t, tt.intent, intent)
			assert.Equal(t, tt.confidence, confidence)
		})
	}
}

func testSnapshot() *models.Snapshot {
	return &models.Snapshot{
		Generation: 4,
		Status:     models.StatusConnected,
		Events: []models.DisasterEvent{
			{ID: "q1", Type: models.EventTypeEarthquake, Severity: models.SeverityMedium, Title: "M 4.8 - Honshu",
				Location: models.Location{Address: "Honshu, Japan"}},
			{ID: "q2", Type: models.EventTypeEarthquake, Severity: models.SeverityCritical, Title: "M 7.2 - Tokyo Bay",
				Location: models.Location{Address: "Tokyo, Japan"}, EvacuationRequired: true},
			{ID: "f1", Type: models.EventTypeFlood, Severity: models.SeverityHigh, Title: "Flood Warning - Mumbai",
				Location: models.Location{Address: "Mumbai, IN"}},
		},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(testSnapshot(), IntentEarthquake, "")
	assert.Equal(t, 2, s.Matching)
	assert.Equal(t, 1, s.Critical)
	assert.Equal(t, 1, s.Evacuation)
	require.Len(t, s.Highlights, 2)
	assert.True(t, strings.HasPrefix(s.Highlights[0], "M 7.2 - Tokyo Bay"), "critical events first")

	s = Summarize(testSnapshot(), IntentEarthquake, "tokyo")
	assert.Equal(t, 1, s.Matching)

	s = Summarize(testSnapshot(), IntentGeneral, "")
	assert.Equal(t, 3, s.Matching)

	s = Summarize(nil, IntentGeneral, "")
	assert.Equal(t, models.StatusIdle, s.Status)
	assert.Zero(t, s.Matching)
}

func TestSummarize_UnknownPlaceIsIgnored(t *testing.T) {
	s := Summarize(testSnapshot(), IntentEarthquake, "Current Location")
	assert.Equal(t, 2, s.Matching)
	assert.Empty(t, s.Place)

	s = Summarize(testSnapshot(), IntentEarthquake, " Tokyo ")
	assert.Equal(t, 1, s.Matching)
	assert.Equal(t, "Tokyo", s.Place)
}

func TestRequest_DecodesAnyLocation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Place
	}{
		{"string", `{"message":"hi","location":" Mumbai "}`, "Mumbai"},
		{"empty object", `{"message":"hi","location":{}}`, ""},
		{"coordinates", `{"message":"hi","location":{"lat":40.7,"lng":-74.0}}`, ""},
		{"null", `{"message":"hi","location":null}`, ""},
		{"number", `{"message":"hi","location":42}`, ""},
		{"missing", `{"message":"hi"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req Request
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))
			assert.Equal(t, "hi", req.Message)
			assert.Equal(t, tt.want, req.Location)
		})
	}
}

func TestSummarize_FallbackIsNotReported(t *testing.T) {
	snap := &models.Snapshot{
		Status: models.StatusDisconnected,
		Events: []models.DisasterEvent{ingestion.FallbackEvent(time.Now())},
	}

	s := Summarize(snap, IntentEarthquake, "")
	assert.True(t, s.Demo)
	assert.Zero(t, s.Matching)
	assert.Contains(t, s.String(), "unavailable")
}

type fakeGenerator struct {
	text   string
	err    error
	prompt string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.text, f.err
}

func TestAnswer_Rules(t *testing.T) {
	m := observability.NewMetricsForTesting()
	a := New(nil, m)

	resp := a.Answer(context.Background(), testSnapshot(), Request{Message: "Is there earthquake activity?", Location: " Tokyo "})

	assert.Equal(t, IntentEarthquake, resp.Intent)
	assert.Equal(t, ConfidenceMedium, resp.Confidence)
	assert.Equal(t, "Tokyo", resp.Location)
	assert.Equal(t, BackendRules, resp.Backend)
	assert.Contains(t, resp.Response, "1 matching active event, 1 critical")
	assert.Contains(t, resp.Response, "Drop, cover, and hold on")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AssistantQueries.WithLabelValues("earthquake", BackendRules)))
}

func TestAnswer_Gemini(t *testing.T) {
	gen := &fakeGenerator{text: "  Stay away from the coast.  "}
	a := New(gen, nil)

	resp := a.Answer(context.Background(), testSnapshot(), Request{Message: "flood risk in Mumbai?", Location: "Mumbai"})

	assert.Equal(t, BackendGemini, resp.Backend)
	assert.Equal(t, "Stay away from the coast.", resp.Response)
	assert.Contains(t, gen.prompt, "Detected intent: flood")
	assert.Contains(t, gen.prompt, "User location: Mumbai")
	assert.Contains(t, gen.prompt, "Flood Warning - Mumbai")
}

func TestAnswer_GeminiErrorFallsBack(t *testing.T) {
	for name, gen := range map[string]*fakeGenerator{
		"error": {err: errors.New("quota exceeded")},
		"empty": {text: "   "},
	} {
		t.Run(name, func(t *testing.T) {
			resp := New(gen, nil).Answer(context.Background(), testSnapshot(), Request{Message: "fire near me"})
			assert.Equal(t, BackendRules, resp.Backend)
			assert.Contains(t, resp.Response, "Fire safety")
		})
	}
}

func TestNewGeminiGenerator_RequiresKey(t *testing.T) {
	_, err := NewGeminiGenerator(context.Background(), "", "")
	assert.Error(t, err)
}
