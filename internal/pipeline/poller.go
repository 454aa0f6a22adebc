package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-lightning-service/internal/domain"
	"github.com/couchcryptid/storm-lightning-service/internal/observability"
	"github.com/couchcryptid/storm-lightning-service/internal/window"
)

// ErrTickInFlight is returned by Tick when another tick has not finished yet.
var ErrTickInFlight = errors.New("tick already in flight")

const (
	fetchInitial     = "initial"
	fetchIncremental = "incremental"
)

// Source fetches and decodes one batch of strikes.
type Source interface {
	Name() string
	Initial(ctx context.Context) (domain.Batch, error)
	Incremental(ctx context.Context, cursor domain.Cursor) (domain.Batch, error)
}

// Publisher receives the strikes each tick newly added to the window.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, mode string, strikes []domain.Strike) error
}

// State is the poller's position in its two-state lifecycle.
type State int

const (
	StateUninitialized State = iota
	StatePolling
)

func (s State) String() string {
	if s == StatePolling {
		return "polling"
	}
	return "uninitialized"
}

// Poller drives the fetch-decode-merge cycle on a fixed interval. It owns its
// ticker and cancel func; at most one tick runs at any time.
type Poller struct {
	source     Source
	store      *window.Store
	publishers []Publisher
	clock      clockwork.Clock
	interval   time.Duration
	logger     *slog.Logger
	metrics    *observability.Metrics

	ready       atomic.Bool
	initialized atomic.Bool
	inFlight    atomic.Bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// New creates a Poller. A nil clock means the real clock.
func New(source Source, store *window.Store, publishers []Publisher, clock clockwork.Clock, interval time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Poller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Poller{
		source:     source,
		store:      store,
		publishers: publishers,
		clock:      clock,
		interval:   interval,
		logger:     logger,
		metrics:    metrics,
	}
}

// CheckReadiness returns nil once the first batch has been applied to the window.
func (p *Poller) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no strike batch has been applied yet")
	}
	return nil
}

// State reports whether an initial fetch has succeeded.
func (p *Poller) State() State {
	if p.initialized.Load() {
		return StatePolling
	}
	return StateUninitialized
}

// Run fetches immediately, then once per interval until ctx is cancelled.
// Fetches never overlap; the ticker queues at most one tick while a fetch is
// in flight, so a slow fetch is followed by a single catch-up tick.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller started", "source", p.source.Name(), "interval", p.interval)
	p.metrics.PollerRunning.Set(1)
	defer p.metrics.PollerRunning.Set(0)

	p.runTick(ctx)

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			p.runTick(ctx)
		}
	}
}

// Start runs the poller in the background. Calling Start on a running or
// stopped poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil || p.stopped {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		_ = p.Run(ctx)
	}(p.done)
}

// Stop cancels the loop, waits for it to exit and closes the window so that no
// in-flight result can be applied afterwards. Stop is idempotent.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.stopped = true
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	p.store.Close()
}

// Tick runs one fetch-decode-merge cycle. It returns ErrTickInFlight without
// fetching when another tick is still running.
func (p *Poller) Tick(ctx context.Context) error {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.metrics.TicksSkipped.Inc()
		return ErrTickInFlight
	}
	defer p.inFlight.Store(false)
	return p.tick(ctx)
}

func (p *Poller) runTick(ctx context.Context) {
	if err := p.Tick(ctx); errors.Is(err, ErrTickInFlight) {
		p.logger.Debug("tick skipped, previous tick still in flight")
	}
}

func (p *Poller) tick(ctx context.Context) error {
	start := p.clock.Now()
	defer func() { p.metrics.TickDuration.Observe(p.clock.Since(start).Seconds()) }()

	cursor := p.store.Cursor()
	kind := fetchIncremental
	var (
		batch domain.Batch
		err   error
	)
	// No incremental request is ever issued without a cursor.
	if !p.initialized.Load() || !cursor.Valid() {
		kind = fetchInitial
		batch, err = p.source.Initial(ctx)
	} else {
		batch, err = p.source.Incremental(ctx, cursor)
	}

	if ctx.Err() != nil {
		p.metrics.Ticks.WithLabelValues(kind, "discarded").Inc()
		return ctx.Err()
	}

	var decodeErr *domain.DecodeError
	if err != nil && !errors.As(err, &decodeErr) {
		p.fail(kind, err)
		return err
	}

	p.metrics.StrikesDecoded.Add(float64(len(batch.Strikes)))
	p.metrics.RowsSkipped.Add(float64(batch.Skipped))

	apply := p.store.ApplyInitial
	if kind == fetchIncremental || decodeErr != nil {
		// A batch without a usable reference time must not blank the window.
		apply = p.store.ApplyIncremental
	}
	res, err := apply(batch)
	if err != nil {
		p.metrics.Ticks.WithLabelValues(kind, "discarded").Inc()
		return err
	}

	if decodeErr != nil {
		p.metrics.DecodeErrors.Inc()
		p.logger.Warn("batch discarded, bad reference time", "source", p.source.Name(), "error", decodeErr)
		p.store.RecordError(decodeErr)
	} else if kind == fetchInitial {
		if !p.initialized.Swap(true) {
			p.logger.Info("initial fetch complete", "source", p.source.Name(), "strikes", res.Size)
		}
	}
	p.ready.Store(true)

	p.metrics.StrikesAdded.Add(float64(len(res.Added)))
	p.metrics.StrikesEvicted.Add(float64(res.Evicted))
	p.metrics.WindowSize.Set(float64(res.Size))
	p.metrics.Ticks.WithLabelValues(kind, "success").Inc()

	p.logger.Debug("tick applied",
		"fetch", kind,
		"added", len(res.Added),
		"evicted", res.Evicted,
		"size", res.Size,
		"skipped_rows", batch.Skipped,
	)

	p.publish(ctx, res.Added)
	return nil
}

func (p *Poller) fail(kind string, err error) {
	p.logger.Error("tick failed", "fetch", kind, "kind", domain.ErrorKind(err), "error", err)
	p.metrics.Ticks.WithLabelValues(kind, "error").Inc()
	p.store.RecordError(err)
}

// publish hands added strikes to every publisher. Failures are logged and
// counted but never fail the tick.
func (p *Poller) publish(ctx context.Context, strikes []domain.Strike) {
	if len(strikes) == 0 {
		return
	}
	for _, pub := range p.publishers {
		if err := pub.Publish(ctx, p.source.Name(), strikes); err != nil {
			p.logger.Warn("publish failed", "publisher", pub.Name(), "error", err, "strikes", len(strikes))
			p.metrics.PublishErrors.WithLabelValues(pub.Name()).Inc()
			continue
		}
		p.metrics.Published.WithLabelValues(pub.Name()).Add(float64(len(strikes)))
	}
}
