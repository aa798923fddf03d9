// Package refresher drives the periodic aggregation cycle and owns the
// published snapshot.
//
// Every pass takes a new generation number. Starting a pass cancels the one
// before it, and a finished pass is only published when no newer pass has
// started since, so a slow response can never overwrite a newer one.
package refresher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-disaster-map/internal/eventlist"
	"github.com/mr1hm/go-disaster-map/internal/ingestion"
	"github.com/mr1hm/go-disaster-map/internal/models"
	"github.com/mr1hm/go-disaster-map/internal/observability"
	"github.com/mr1hm/go-disaster-map/internal/repository"
)

var (
	ErrRefreshInFlight = errors.New("refresh already in progress")
	ErrNotRunning      = errors.New("refresher is not running")
)

const storeTimeout = 5 * time.Second

type Source interface {
	Aggregate(ctx context.Context, opts ingestion.Options) ingestion.Result
}

// Notifier receives every published snapshot. It must not block.
type Notifier interface {
	Publish(snap *models.Snapshot)
}

// Sink forwards published snapshots downstream and reports how many events
// it wrote.
type Sink interface {
	Publish(ctx context.Context, snap *models.Snapshot) (int, error)
}

type Refresher struct {
	source   Source
	opts     ingestion.Options
	interval time.Duration
	clock    clockwork.Clock

	notifier Notifier
	sink     Sink
	store    repository.RunRepository
	metrics  *observability.Metrics

	current atomic.Pointer[models.Snapshot]

	mu            sync.Mutex
	status        models.Status
	generation    uint64
	published     uint64
	cancelPass    context.CancelFunc
	manualGen     uint64
	manualLoading bool
	ctx           context.Context
	cancel        context.CancelFunc

	wg sync.WaitGroup
}

type Option func(*Refresher)

func WithClock(c clockwork.Clock) Option {
	return func(r *Refresher) { r.clock = c }
}

func WithNotifier(n Notifier) Option {
	return func(r *Refresher) { r.notifier = n }
}

func WithSink(s Sink) Option {
	return func(r *Refresher) { r.sink = s }
}

func WithStore(s repository.RunRepository) Option {
	return func(r *Refresher) { r.store = s }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(r *Refresher) { r.metrics = m }
}

func New(source Source, opts ingestion.Options, interval time.Duration, options ...Option) *Refresher {
	r := &Refresher{
		source:   source,
		opts:     opts,
		interval: interval,
		clock:    clockwork.NewRealClock(),
		status:   models.StatusIdle,
	}
	for _, o := range options {
		o(r)
	}
	r.current.Store(&models.Snapshot{Status: models.StatusIdle, Events: []models.DisasterEvent{}})
	return r
}

// Start runs an initial pass and then one every interval until ctx is
// cancelled or Stop is called.
func (r *Refresher) Start(ctx context.Context) {
	r.mu.Lock()
	r.ctx, r.cancel = context.WithCancel(ctx)
	loopCtx := r.ctx
	r.mu.Unlock()

	r.wg.Add(1)
	go r.loop(loopCtx)
	slog.Info("refresher started", "interval", r.interval)
}

// Stop cancels any in-flight pass and waits for all goroutines to exit.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()
	r.wg.Wait()
	slog.Info("refresher stopped")
}

func (r *Refresher) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	r.runScheduled()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.runScheduled()
		}
	}
}

func (r *Refresher) runScheduled() {
	gen, ctx, cancel, err := r.begin(repository.TriggerScheduled)
	if err != nil {
		return
	}
	defer cancel()
	r.pass(ctx, gen, repository.TriggerScheduled)
}

// Refresh starts a manual pass in the background and returns its
// generation. Only one manual pass may be loading at a time.
func (r *Refresher) Refresh() (uint64, error) {
	gen, ctx, cancel, err := r.begin(repository.TriggerManual)
	if err != nil {
		if errors.Is(err, ErrRefreshInFlight) && r.metrics != nil {
			r.metrics.RejectedRefresh.Inc()
		}
		return 0, err
	}

	go func() {
		defer r.wg.Done()
		defer cancel()
		r.pass(ctx, gen, repository.TriggerManual)
	}()
	return gen, nil
}

func (r *Refresher) begin(trigger repository.Trigger) (uint64, context.Context, context.CancelFunc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx == nil || r.ctx.Err() != nil {
		return 0, nil, nil, ErrNotRunning
	}
	if trigger == repository.TriggerManual && r.manualLoading {
		return 0, nil, nil, ErrRefreshInFlight
	}

	if r.cancelPass != nil {
		r.cancelPass()
	}
	r.generation++
	ctx, cancel := context.WithCancel(r.ctx)
	r.cancelPass = cancel
	r.status = models.StatusLoading

	if trigger == repository.TriggerManual {
		r.manualGen = r.generation
		r.manualLoading = true
		// Added under mu so Stop cannot be waiting yet.
		r.wg.Add(1)
	}
	return r.generation, ctx, cancel, nil
}

func (r *Refresher) pass(ctx context.Context, gen uint64, trigger repository.Trigger) {
	started := r.clock.Now()
	slog.Debug("refresh started", "generation", gen, "trigger", trigger)

	res := r.source.Aggregate(ctx, r.opts)
	finished := r.clock.Now()

	snap := &models.Snapshot{
		Generation: gen,
		Status:     res.Status,
		Events:     res.Events,
		Sources:    res.Sources,
		UpdatedAt:  finished,
	}
	published := r.finish(snap, trigger, ctx.Err() != nil)

	run := &repository.Run{
		ID:         uuid.NewString(),
		Generation: gen,
		Trigger:    trigger,
		Status:     res.Status,
		EventCount: len(res.Events),
		Fallback:   res.Fallback,
		Stale:      !published,
		Sources:    res.Sources,
		StartedAt:  started,
		FinishedAt: finished,
	}
	r.record(ctx, run)

	if !published {
		slog.Info("discarded stale refresh", "generation", gen, "trigger", trigger)
		if r.metrics != nil {
			r.metrics.StaleRefreshes.Inc()
		}
		return
	}

	slog.Info("refresh complete",
		"generation", gen,
		"trigger", trigger,
		"status", res.Status,
		"events", len(res.Events),
		"fallback", res.Fallback,
		"duration", run.Duration())

	r.observe(snap, res.Fallback, run.Duration())
	if r.notifier != nil {
		r.notifier.Publish(snap)
	}
	if r.sink != nil {
		n, err := r.sink.Publish(ctx, snap)
		if err != nil {
			slog.Error("sink publish failed", "generation", gen, "error", err)
			if r.metrics != nil {
				r.metrics.PublishErrors.Inc()
			}
		} else if r.metrics != nil {
			r.metrics.EventsPublished.Add(float64(n))
		}
	}
}

// finish publishes snap unless its pass was cancelled or a newer pass has
// started. It reports whether the snapshot was published.
func (r *Refresher) finish(snap *models.Snapshot, trigger repository.Trigger, cancelled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if trigger == repository.TriggerManual && r.manualGen == snap.Generation {
		r.manualLoading = false
	}
	if cancelled || snap.Generation != r.generation || snap.Generation <= r.published {
		return false
	}

	r.published = snap.Generation
	r.current.Store(snap)
	r.status = snap.Status
	r.cancelPass = nil
	return true
}

func (r *Refresher) record(ctx context.Context, run *repository.Run) {
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	if err := r.store.AddRun(ctx, run); err != nil {
		slog.Error("failed to record refresh run", "generation", run.Generation, "error", err)
	}
}

func (r *Refresher) observe(snap *models.Snapshot, fallback bool, took time.Duration) {
	m := r.metrics
	if m == nil {
		return
	}
	m.RefreshesTotal.WithLabelValues(string(snap.Status)).Inc()
	m.RefreshDuration.Observe(took.Seconds())
	m.Generation.Set(float64(snap.Generation))

	stats := eventlist.Summarize(snap.Events)
	m.ActiveEvents.Set(float64(stats.Active))
	m.CriticalEvents.Set(float64(stats.Critical))
	if fallback {
		m.FallbackActive.Set(1)
	} else {
		m.FallbackActive.Set(0)
	}
	for _, s := range snap.Sources {
		m.SourceEvents.WithLabelValues(s.Name).Set(float64(s.Count))
		if !s.OK {
			m.SourceErrors.WithLabelValues(s.Name).Inc()
		}
	}
}

// Snapshot returns the latest published snapshot. It is never nil.
func (r *Refresher) Snapshot() *models.Snapshot {
	return r.current.Load()
}

// Status is loading while any pass is in flight, otherwise the status of
// the last published snapshot.
func (r *Refresher) Status() models.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Loading reports whether a manual refresh is in flight.
func (r *Refresher) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.manualLoading
}
