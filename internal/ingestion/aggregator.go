package ingestion

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/mr1hm/go-disaster-map/internal/models"
)

const (
	SourceUSGS        = "usgs"
	SourceOpenWeather = "openweather"
	SourceGDACS       = "gdacs"
)

// Options selects which sources a single aggregation pass queries.
type Options struct {
	IncludeEarthquakes     bool
	IncludeWeather         bool
	IncludeGlobalAlerts    bool
	Cities                 []string
	EarthquakeMinMagnitude float64
	WeatherAPIKey          string
	Dedup                  bool
}

type Endpoints struct {
	USGSURL        string
	OpenWeatherURL string
	GDACSURL       string
}

// Result of one aggregation pass. Events is never empty.
type Result struct {
	Events   []models.DisasterEvent
	Sources  []models.SourceStatus
	Status   models.Status
	Fallback bool
}

type Aggregator struct {
	endpoints Endpoints
	client    *http.Client
	clock     clockwork.Clock
	workers   int
}

type Option func(*Aggregator)

func WithHTTPClient(c *http.Client) Option {
	return func(a *Aggregator) { a.client = c }
}

func WithClock(c clockwork.Clock) Option {
	return func(a *Aggregator) { a.clock = c }
}

// WithWorkers bounds how many per-city weather requests run at once.
func WithWorkers(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.workers = n
		}
	}
}

func NewAggregator(endpoints Endpoints, opts ...Option) *Aggregator {
	a := &Aggregator{
		endpoints: endpoints,
		client:    &http.Client{Timeout: 15 * time.Second},
		clock:     clockwork.NewRealClock(),
		workers:   4,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type sourceJob struct {
	name  string
	fetch func(ctx context.Context) ([]models.DisasterEvent, error)
}

// Aggregate queries every enabled source concurrently and merges the results.
// Source failures never surface as an error: they are reported per source in
// Result.Sources, and when nothing usable comes back the result holds only
// the fallback event.
func (a *Aggregator) Aggregate(ctx context.Context, opts Options) Result {
	jobs := a.jobs(opts)

	statuses := make([]models.SourceStatus, len(jobs))
	batches := make([][]models.DisasterEvent, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	for i, job := range jobs {
		g.Go(func() error {
			slog.Debug("polling", "source", job.name)
			events, err := job.fetch(gctx)
			if err != nil {
				slog.Error("poll failed", "source", job.name, "error", err)
				statuses[i] = models.SourceStatus{Name: job.name, Error: err.Error()}
				return nil
			}
			statuses[i] = models.SourceStatus{Name: job.name, OK: true, Count: len(events)}
			batches[i] = events
			slog.Debug("poll complete", "source", job.name, "count", len(events))
			return nil
		})
	}
	_ = g.Wait() // jobs never return errors

	var merged []models.DisasterEvent
	for _, b := range batches {
		merged = append(merged, b...)
	}
	if opts.Dedup {
		merged = Dedup(merged)
	}

	if len(merged) == 0 {
		return Result{
			Events:   []models.DisasterEvent{FallbackEvent(a.clock.Now())},
			Sources:  statuses,
			Status:   models.StatusDisconnected,
			Fallback: true,
		}
	}

	models.SortByRecency(merged)
	return Result{
		Events:  merged,
		Sources: statuses,
		Status:  models.StatusConnected,
	}
}

func (a *Aggregator) jobs(opts Options) []sourceJob {
	var jobs []sourceJob
	if opts.IncludeEarthquakes {
		jobs = append(jobs, sourceJob{SourceUSGS, func(ctx context.Context) ([]models.DisasterEvent, error) {
			return a.pollUSGS(ctx, a.endpoints.USGSURL, opts.EarthquakeMinMagnitude)
		}})
	}
	if opts.IncludeWeather {
		jobs = append(jobs, sourceJob{SourceOpenWeather, func(ctx context.Context) ([]models.DisasterEvent, error) {
			return a.pollOpenWeather(ctx, a.endpoints.OpenWeatherURL, opts.WeatherAPIKey, opts.Cities)
		}})
	}
	if opts.IncludeGlobalAlerts {
		jobs = append(jobs, sourceJob{SourceGDACS, func(ctx context.Context) ([]models.DisasterEvent, error) {
			return a.pollGDACS(ctx, a.endpoints.GDACSURL)
		}})
	}
	return jobs
}
