package refresher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mr1hm/go-disaster-map/internal/ingestion"
	"github.com/mr1hm/go-disaster-map/internal/models"
	"github.com/mr1hm/go-disaster-map/internal/observability"
	"github.com/mr1hm/go-disaster-map/internal/repository"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	testInterval = 5 * time.Minute
	waitTimeout  = 2 * time.Second
)

// fakeSource answers each call with one event named after the call number.
// Calls listed in hold block until their channel is closed.
type fakeSource struct {
	mu       sync.Mutex
	calls    int
	hold     map[int]chan struct{}
	honorCtx bool
	started  chan int
}

func newFakeSource() *fakeSource {
	return &fakeSource{hold: map[int]chan struct{}{}, started: make(chan int, 16)}
}

func (f *fakeSource) holdCall(n int) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.hold[n] = ch
	return ch
}

func (f *fakeSource) Aggregate(ctx context.Context, _ ingestion.Options) ingestion.Result {
	f.mu.Lock()
	f.calls++
	n := f.calls
	release := f.hold[n]
	honorCtx := f.honorCtx
	f.mu.Unlock()

	f.started <- n
	if release != nil {
		if honorCtx {
			select {
			case <-release:
			case <-ctx.Done():
				return ingestion.Result{
					Events:   []models.DisasterEvent{ingestion.FallbackEvent(time.Now())},
					Status:   models.StatusDisconnected,
					Fallback: true,
				}
			}
		} else {
			<-release
		}
	}

	return ingestion.Result{
		Events: []models.DisasterEvent{{
			ID:       fmt.Sprintf("evt-%d", n),
			Type:     models.EventTypeFlood,
			Severity: models.SeverityCritical,
		}},
		Sources: []models.SourceStatus{{Name: ingestion.SourceUSGS, OK: true, Count: 1}},
		Status:  models.StatusConnected,
	}
}

type recordingNotifier struct {
	ch chan *models.Snapshot
}

func (n *recordingNotifier) Publish(snap *models.Snapshot) { n.ch <- snap }

type fakeStore struct {
	mu   sync.Mutex
	runs []repository.Run
	ch   chan repository.Run
}

func (s *fakeStore) AddRun(_ context.Context, r *repository.Run) error {
	s.mu.Lock()
	s.runs = append(s.runs, *r)
	s.mu.Unlock()
	s.ch <- *r
	return nil
}

func (s *fakeStore) ListRuns(_ context.Context, _ int) ([]repository.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]repository.Run(nil), s.runs...), nil
}

type fakeSink struct {
	mu   sync.Mutex
	gens []uint64
	err  error
}

func (s *fakeSink) Publish(_ context.Context, snap *models.Snapshot) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.gens = append(s.gens, snap.Generation)
	return len(snap.Events), nil
}

type harness struct {
	r        *Refresher
	src      *fakeSource
	clock    *clockwork.FakeClock
	notified chan *models.Snapshot
	store    *fakeStore
	sink     *fakeSink
	metrics  *observability.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		src:      newFakeSource(),
		clock:    clockwork.NewFakeClockAt(time.Date(2024, 1, 15, 15, 0, 0, 0, time.UTC)),
		notified: make(chan *models.Snapshot, 16),
		store:    &fakeStore{ch: make(chan repository.Run, 16)},
		sink:     &fakeSink{},
		metrics:  observability.NewMetricsForTesting(),
	}
	h.r = New(h.src, ingestion.Options{IncludeEarthquakes: true}, testInterval,
		WithClock(h.clock),
		WithNotifier(&recordingNotifier{ch: h.notified}),
		WithStore(h.store),
		WithSink(h.sink),
		WithMetrics(h.metrics),
	)
	return h
}

func (h *harness) waitPublished(t *testing.T) *models.Snapshot {
	t.Helper()
	select {
	case snap := <-h.notified:
		return snap
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting for published snapshot")
		return nil
	}
}

func (h *harness) waitRun(t *testing.T) repository.Run {
	t.Helper()
	select {
	case run := <-h.store.ch:
		return run
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting for recorded run")
		return repository.Run{}
	}
}

func (h *harness) waitStarted(t *testing.T, want int) {
	t.Helper()
	select {
	case n := <-h.src.started:
		require.Equal(t, want, n)
	case <-time.After(waitTimeout):
		t.Fatalf("timeout waiting for call %d", want)
	}
}

func (h *harness) tick(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	h.clock.Advance(testInterval)
}

func TestRefresher_IdleBeforeStart(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, models.StatusIdle, h.r.Status())
	snap := h.r.Snapshot()
	require.NotNil(t, snap)
	assert.Zero(t, snap.Generation)
	assert.Empty(t, snap.Events)

	_, err := h.r.Refresh()
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestRefresher_InitialPassAndInterval(t *testing.T) {
	h := newHarness(t)
	h.r.Start(context.Background())
	defer h.r.Stop()

	snap := h.waitPublished(t)
	assert.Equal(t, uint64(1), snap.Generation)
	assert.Equal(t, models.StatusConnected, snap.Status)
	assert.Equal(t, "evt-1", snap.Events[0].ID)
	assert.Equal(t, h.clock.Now(), snap.UpdatedAt)

	h.tick(t)
	snap = h.waitPublished(t)
	assert.Equal(t, uint64(2), snap.Generation)
	assert.Equal(t, "evt-2", h.r.Snapshot().Events[0].ID)
	assert.Equal(t, models.StatusConnected, h.r.Status())

	run := h.waitRun(t)
	assert.Equal(t, repository.TriggerScheduled, run.Trigger)
	assert.False(t, run.Stale)
	assert.NotEmpty(t, run.ID)
}

func TestRefresher_ManualRefreshRejectedWhileLoading(t *testing.T) {
	h := newHarness(t)
	release := h.src.holdCall(2)

	h.r.Start(context.Background())
	defer h.r.Stop()
	h.waitPublished(t)

	gen, err := h.r.Refresh()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gen)
	h.waitStarted(t, 1)
	h.waitStarted(t, 2)

	assert.True(t, h.r.Loading())
	assert.Equal(t, models.StatusLoading, h.r.Status())

	_, err = h.r.Refresh()
	assert.ErrorIs(t, err, ErrRefreshInFlight)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RejectedRefresh))

	close(release)
	snap := h.waitPublished(t)
	assert.Equal(t, uint64(2), snap.Generation)
	assert.False(t, h.r.Loading())

	gen, err = h.r.Refresh()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), gen)
	h.waitPublished(t)
}

func TestRefresher_SlowOlderResultIsDiscarded(t *testing.T) {
	h := newHarness(t)
	release := h.src.holdCall(2)

	h.r.Start(context.Background())
	defer h.r.Stop()
	h.waitPublished(t)
	h.waitRun(t)

	_, err := h.r.Refresh()
	require.NoError(t, err)
	h.waitStarted(t, 1)
	h.waitStarted(t, 2)

	// A scheduled pass starts while the manual one is still outstanding.
	h.tick(t)
	snap := h.waitPublished(t)
	assert.Equal(t, uint64(3), snap.Generation)
	assert.Equal(t, models.StatusConnected, h.r.Status())
	assert.False(t, h.waitRun(t).Stale)

	// The older response arrives last and must not replace the newer one.
	close(release)
	run := h.waitRun(t)
	assert.Equal(t, uint64(2), run.Generation)
	assert.True(t, run.Stale)
	assert.Equal(t, repository.TriggerManual, run.Trigger)

	assert.Equal(t, uint64(3), h.r.Snapshot().Generation)
	assert.Equal(t, "evt-3", h.r.Snapshot().Events[0].ID)
	assert.False(t, h.r.Loading())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.StaleRefreshes))

	select {
	case snap := <-h.notified:
		t.Fatalf("stale generation %d was published", snap.Generation)
	default:
	}
}

func TestRefresher_NewerPassCancelsOlder(t *testing.T) {
	h := newHarness(t)
	h.src.honorCtx = true
	h.src.holdCall(2) // never released

	h.r.Start(context.Background())
	defer h.r.Stop()
	h.waitPublished(t)
	h.waitRun(t)

	_, err := h.r.Refresh()
	require.NoError(t, err)
	h.waitStarted(t, 1)
	h.waitStarted(t, 2)

	h.tick(t)

	var runs []repository.Run
	runs = append(runs, h.waitRun(t), h.waitRun(t))
	byGen := map[uint64]repository.Run{}
	for _, r := range runs {
		byGen[r.Generation] = r
	}
	assert.True(t, byGen[2].Stale, "cancelled pass is stale")
	assert.True(t, byGen[2].Fallback)
	assert.False(t, byGen[3].Stale)

	snap := h.waitPublished(t)
	assert.Equal(t, uint64(3), snap.Generation)
	assert.Equal(t, models.StatusConnected, snap.Status)
}

func TestRefresher_StopCancelsInFlightPass(t *testing.T) {
	h := newHarness(t)
	h.src.honorCtx = true
	h.src.holdCall(1)

	h.r.Start(context.Background())
	h.waitStarted(t, 1)
	assert.Equal(t, models.StatusLoading, h.r.Status())

	done := make(chan struct{})
	go func() {
		h.r.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("Stop did not return")
	}

	assert.Zero(t, h.r.Snapshot().Generation, "cancelled pass is never published")
	_, err := h.r.Refresh()
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestRefresher_SinkAndMetrics(t *testing.T) {
	h := newHarness(t)
	h.r.Start(context.Background())
	defer h.r.Stop()

	h.waitPublished(t)
	h.waitRun(t)

	// The sink runs after notification; Stop waits for it.
	h.r.Stop()

	h.sink.mu.Lock()
	assert.Equal(t, []uint64{1}, h.sink.gens)
	h.sink.mu.Unlock()

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RefreshesTotal.WithLabelValues("connected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ActiveEvents))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.CriticalEvents))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Generation))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EventsPublished))
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.FallbackActive))
}

func TestRefresher_SinkErrorCounted(t *testing.T) {
	h := newHarness(t)
	h.sink.err = errors.New("broker down")
	h.r.Start(context.Background())

	h.waitPublished(t)
	h.r.Stop()

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.PublishErrors))
	assert.Equal(t, uint64(1), h.r.Snapshot().Generation, "sink errors do not affect publication")
}
