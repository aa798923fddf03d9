package assistant

import (
	"strings"
	"unicode"

	"github.com/mr1hm/go-disaster-map/internal/models"
)

type Intent string

const (
	IntentEarthquake    Intent = "earthquake"
	IntentFlood         Intent = "flood"
	IntentStorm         Intent = "storm"
	IntentFire          Intent = "fire"
	IntentSendSMS       Intent = "send_sms"
	IntentCallEmergency Intent = "call_emergency"
	IntentEmergency     Intent = "emergency"
	IntentGeneral       Intent = "general"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// intentKeywords is checked in order; on equal hit counts the earlier
// intent wins.
var intentKeywords = []struct {
	intent   Intent
	keywords []string
}{
	{IntentEarthquake, []string{"earthquake", "earthquakes", "quake", "seismic", "tremor", "aftershock", "magnitude"}},
	{IntentFlood, []string{"flood", "floods", "flooding", "rainfall", "water level", "tsunami"}},
	{IntentStorm, []string{"storm", "storms", "weather", "cyclone", "hurricane", "typhoon", "tornado", "wind", "thunderstorm"}},
	{IntentFire, []string{"fire", "fires", "wildfire", "smoke", "burning"}},
	{IntentSendSMS, []string{"sms", "text message", "send message", "notify"}},
	{IntentCallEmergency, []string{"call", "phone", "dial", "ambulance", "911", "112"}},
	{IntentEmergency, []string{"emergency", "help", "sos", "evacuate", "evacuation", "danger"}},
}

// Classify picks the intent with the most keyword hits. Two or more hits is
// high confidence, one is medium, none falls back to general.
func Classify(message string) (Intent, Confidence) {
	text := " " + normalize(message) + " "

	best, bestHits := IntentGeneral, 0
	for _, entry := range intentKeywords {
		hits := 0
		for _, kw := range entry.keywords {
			if strings.Contains(text, " "+kw+" ") {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = entry.intent, hits
		}
	}

	switch {
	case bestHits >= 2:
		return best, ConfidenceHigh
	case bestHits == 1:
		return best, ConfidenceMedium
	default:
		return IntentGeneral, ConfidenceLow
	}
}

// normalize lowercases and collapses every run of non alphanumeric
// characters into one space.
func normalize(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ")
}

// EventType maps hazard intents to the event type they ask about.
func (i Intent) EventType() (models.EventType, bool) {
	switch i {
	case IntentEarthquake:
		return models.EventTypeEarthquake, true
	case IntentFlood:
		return models.EventTypeFlood, true
	case IntentStorm:
		return models.EventTypeStorm, true
	case IntentFire:
		return models.EventTypeFire, true
	default:
		return "", false
	}
}
