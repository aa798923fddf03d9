package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-disaster-map/internal/assistant"
	"github.com/mr1hm/go-disaster-map/internal/broadcast"
	"github.com/mr1hm/go-disaster-map/internal/eventlist"
	"github.com/mr1hm/go-disaster-map/internal/mapview"
	"github.com/mr1hm/go-disaster-map/internal/models"
	"github.com/mr1hm/go-disaster-map/internal/observability"
	"github.com/mr1hm/go-disaster-map/internal/refresher"
	"github.com/mr1hm/go-disaster-map/internal/repository"
	"github.com/mr1hm/go-disaster-map/internal/view"
)

const chatTimeout = 20 * time.Second

// SnapshotSource is the part of the refresher the API reads from.
type SnapshotSource interface {
	Snapshot() *models.Snapshot
	Status() models.Status
	Refresh() (uint64, error)
	Loading() bool
}

type Handler struct {
	source      SnapshotSource
	runs        repository.RunRepository
	assistant   *assistant.Assistant
	broadcaster *broadcast.Broadcaster
	metrics     *observability.Metrics
}

func NewHandler(source SnapshotSource, runs repository.RunRepository, asst *assistant.Assistant, broadcaster *broadcast.Broadcaster, metrics *observability.Metrics) *Handler {
	if asst == nil {
		asst = assistant.New(nil, metrics)
	}
	return &Handler{
		source:      source,
		runs:        runs,
		assistant:   asst,
		broadcaster: broadcaster,
		metrics:     metrics,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	api.GET("/events", h.listEvents)
	api.GET("/events/:id", h.getEvent)
	api.GET("/map", h.getMap)
	api.GET("/status", h.status)
	api.POST("/refresh", h.refresh)
	api.GET("/refreshes", h.listRefreshes)
	api.POST("/ai/chat", h.chat)

	r.GET("/ws", h.stream)
	r.GET("/health", h.health)
}

type EventsResponse struct {
	Status      models.Status `json:"status"`
	Generation  uint64        `json:"generation"`
	LastUpdated *time.Time    `json:"lastUpdated"`
	view.List
}

type MapResponse struct {
	mapview.FeatureCollection
	Viewport mapview.Viewport      `json:"viewport"`
	Layers   []mapview.TileLayer   `json:"layers"`
	Legend   []mapview.LegendItem  `json:"legend"`
	Selected *models.DisasterEvent `json:"selected"`
}

type StatusResponse struct {
	Status      models.Status         `json:"status"`
	Generation  uint64                `json:"generation"`
	LastUpdated *time.Time            `json:"lastUpdated"`
	Sources     []models.SourceStatus `json:"sources"`
	Subscribers int                   `json:"subscribers"`

	// Refreshing is true while a manual refresh is in flight.
	Refreshing       bool   `json:"refreshing"`
	DroppedSnapshots uint64 `json:"droppedSnapshots"`
}

func (h *Handler) listEvents(c *gin.Context) {
	st, ok := parseState(c)
	if !ok {
		return
	}

	snap := h.source.Snapshot()
	page := view.Build(snap, st)

	c.JSON(http.StatusOK, EventsResponse{
		Status:      h.source.Status(),
		Generation:  snap.Generation,
		LastUpdated: lastUpdated(snap),
		List:        page.List,
	})
}

func (h *Handler) getMap(c *gin.Context) {
	st, ok := parseState(c)
	if !ok {
		return
	}

	page := view.Build(h.source.Snapshot(), st)

	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, MapResponse{
		FeatureCollection: page.Map.Events,
		Viewport:          page.Map.Viewport,
		Layers:            page.Map.Layers,
		Legend:            page.Map.Legend,
		Selected:          page.Map.Selected,
	})
}

func (h *Handler) getEvent(c *gin.Context) {
	id := c.Param("id")
	event, ok := h.source.Snapshot().Find(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}
	c.JSON(http.StatusOK, event)
}

func (h *Handler) status(c *gin.Context) {
	snap := h.source.Snapshot()
	resp := StatusResponse{
		Status:      h.source.Status(),
		Generation:  snap.Generation,
		LastUpdated: lastUpdated(snap),
		Sources:     snap.Sources,
		Refreshing:  h.source.Loading(),
	}
	if resp.Sources == nil {
		resp.Sources = []models.SourceStatus{}
	}
	if h.broadcaster != nil {
		resp.Subscribers = h.broadcaster.SubscriberCount()
		resp.DroppedSnapshots = h.broadcaster.Dropped()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) refresh(c *gin.Context) {
	gen, err := h.source.Refresh()
	switch {
	case errors.Is(err, refresher.ErrRefreshInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": "refresh already in progress"})
		return
	case errors.Is(err, refresher.ErrNotRunning):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "refresher is not running"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start refresh"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"generation": gen,
		"status":     models.StatusLoading,
	})
}

func (h *Handler) listRefreshes(c *gin.Context) {
	limit := repository.DefaultRunLimit
	if l := c.Query("limit"); l != "" {
		lim, err := strconv.Atoi(l)
		if err != nil || lim < 1 || lim > repository.MaxRunLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = lim
	}

	if h.runs == nil {
		c.JSON(http.StatusOK, []repository.Run{})
		return
	}

	runs, err := h.runs.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to fetch refresh history",
		})
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (h *Handler) chat(c *gin.Context) {
	var req assistant.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) || errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), chatTimeout)
	defer cancel()

	c.JSON(http.StatusOK, h.assistant.Answer(ctx, h.source.Snapshot(), req))
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// parseState reads q, severity, type and selected. It writes a 400 and
// returns false for an unknown severity or event type.
func parseState(c *gin.Context) (view.State, bool) {
	severity := strings.ToLower(strings.TrimSpace(c.Query("severity")))
	if severity != "" && severity != eventlist.SeverityAll && !models.ParseSeverity(severity).Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "severity must be one of all, low, medium, high, critical"})
		return view.State{}, false
	}
	eventType := models.ParseEventType(c.Query("type"))
	if eventType != "" && !eventType.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be one of earthquake, flood, fire, storm, emergency"})
		return view.State{}, false
	}

	return view.State{
		Filter: eventlist.Filter{
			Search:   c.Query("q"),
			Severity: severity,
			Type:     eventType,
		},
		SelectedID: c.Query("selected"),
	}, true
}

func lastUpdated(snap *models.Snapshot) *time.Time {
	if snap.UpdatedAt.IsZero() {
		return nil
	}
	t := snap.UpdatedAt
	return &t
}
