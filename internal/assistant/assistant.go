// Package assistant answers free-text safety questions against the current
// snapshot. A keyword classifier picks the intent; the reply text comes from
// Gemini when configured and from built-in safety guidance otherwise.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mr1hm/go-disaster-map/internal/models"
	"github.com/mr1hm/go-disaster-map/internal/observability"
)

const (
	BackendRules  = "rules"
	BackendGemini = "gemini"
)

type Request struct {
	Message  string `json:"message" binding:"required"`
	Location Place  `json:"location"`
}

// Place is the free-form location a client sends with a question. Clients
// send strings, objects or null; anything but a string decodes as empty.
type Place string

func (p *Place) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*p = ""
		return nil
	}
	*p = Place(strings.TrimSpace(s))
	return nil
}

type Response struct {
	Response   string     `json:"response"`
	Intent     Intent     `json:"intent"`
	Confidence Confidence `json:"confidence"`
	Location   string     `json:"location,omitempty"`
	Summary    Summary    `json:"summary"`
	Backend    string     `json:"backend"`
}

// Generator produces free text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Assistant struct {
	generator Generator
	metrics   *observability.Metrics
}

// New returns an assistant. generator and metrics may be nil.
func New(generator Generator, metrics *observability.Metrics) *Assistant {
	return &Assistant{generator: generator, metrics: metrics}
}

func (a *Assistant) Answer(ctx context.Context, snap *models.Snapshot, req Request) Response {
	intent, confidence := Classify(req.Message)
	place := strings.TrimSpace(string(req.Location))
	summary := Summarize(snap, intent, place)

	resp := Response{
		Intent:     intent,
		Confidence: confidence,
		Location:   place,
		Summary:    summary,
		Backend:    BackendRules,
		Response:   ruleResponse(intent, summary),
	}

	if a.generator != nil {
		text, err := a.generator.Generate(ctx, buildPrompt(req, intent, summary))
		switch {
		case err != nil:
			slog.Warn("assistant model failed, using built-in response", "intent", intent, "error", err)
		case strings.TrimSpace(text) == "":
			slog.Warn("assistant model returned empty text, using built-in response", "intent", intent)
		default:
			resp.Response = strings.TrimSpace(text)
			resp.Backend = BackendGemini
		}
	}

	if a.metrics != nil {
		a.metrics.AssistantQueries.WithLabelValues(string(intent), resp.Backend).Inc()
	}
	return resp
}

var guidance = map[Intent]string{
	IntentEarthquake:    "Earthquake safety:\n- Drop, cover, and hold on during shaking.\n- Move away from windows and heavy objects.\n- After shaking stops, check for injuries and hazards.",
	IntentFlood:         "Flood safety:\n- Move to higher ground immediately.\n- Avoid walking or driving through flood waters.\n- Listen to local alerts and updates.",
	IntentStorm:         "Severe weather safety:\n- Stay indoors during severe weather.\n- Secure loose objects outside.\n- Monitor official weather updates.",
	IntentFire:          "Fire safety:\n- Evacuate immediately if instructed.\n- Avoid smoke-filled areas.\n- Report any fire you see to emergency services.",
	IntentSendSMS:       "To alert your contacts, send a short message with your location and condition, then keep your phone line free.",
	IntentCallEmergency: "Dial your local emergency number. Give your location first, then describe the situation.",
	IntentEmergency:     "If you are in immediate danger, contact local emergency services and follow evacuation orders from officials.",
	IntentGeneral:       "I can report active earthquakes, floods, storms, and fires, and share safety guidance. Try asking about a hazard near a city.",
}

func ruleResponse(intent Intent, s Summary) string {
	text := guidance[intent]
	if _, typed := intent.EventType(); typed || intent == IntentEmergency || intent == IntentGeneral {
		text = s.String() + "\n\n" + text
	}
	return text
}

func buildPrompt(req Request, intent Intent, s Summary) string {
	var b strings.Builder
	b.WriteString("You are a disaster management assistant. Answer briefly and prioritise safety.\n")
	b.WriteString("Use only the live data below when describing current events.\n\n")
	fmt.Fprintf(&b, "Feed status: %s\n", s.Status)
	fmt.Fprintf(&b, "Detected intent: %s\n", intent)
	if loc := strings.TrimSpace(string(req.Location)); loc != "" {
		fmt.Fprintf(&b, "User location: %s\n", loc)
	}
	fmt.Fprintf(&b, "Live data: %s\n\n", s)
	fmt.Fprintf(&b, "Question: %s\n", req.Message)
	return b.String()
}
