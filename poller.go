package blockwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blockhost/blockwatch/internal/fetch"
	"github.com/blockhost/blockwatch/internal/synth"
)

const (
	defaultPollInterval = 10 * time.Second
	defaultFetchTimeout = 5 * time.Second
)

// Poller periodically fetches the block status of a hosted deployment
// and notifies observers exactly when the tracked block identifier
// changes.
//
// Poller is created with [New] and injected into consumers explicitly;
// there is no package-level instance. The typical lifecycle is:
//
//	p, err := blockwatch.New(blockwatch.WithEndpoint("https://api.example.com/api/status"))
//	if err != nil {
//	    slog.Error("failed to create poller", "error", err)
//	    os.Exit(1)
//	}
//
//	unsubscribe := p.Subscribe(func(snap blockwatch.Snapshot) {
//	    slog.Info("block changed", "block_id", snap.BlockID)
//	})
//	defer unsubscribe()
//
//	p.Start(ctx)
//	defer p.Stop()
//
// All methods are safe for concurrent use.
//
// A change is defined as inequality between the newly fetched BlockID and
// the previously stored one; the first completed poll always counts as a
// change. When a fetch fails and fallback is enabled (the default), the
// poller synthesizes a snapshot with a freshly randomized identifier and
// treats the resulting (likely, not guaranteed) inequality as a change
// trigger. Fetch failures never propagate to callers of Start or
// Subscribe.
type Poller struct {
	endpoint    string
	interval    time.Duration
	timeout     time.Duration
	headers     map[string]string
	fallback    bool
	synthesizer Synthesizer
	logger      *slog.Logger
	client      *fetch.Client

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	lastID    string
	last      Snapshot
	hasLast   bool
	observers []subscription
}

// subscription pairs an observer with the opaque handle its unsubscribe
// function removes it by.
type subscription struct {
	id string
	fn Observer
}

// New creates a [Poller] with the given options.
//
// An endpoint must be configured via [WithEndpoint]. Other options have
// sensible defaults:
//   - Poll interval: 10 seconds
//   - Fetch timeout: 5 seconds
//   - Fallback synthesis: enabled
//
// Returns an error if no endpoint is configured or if any option is
// invalid.
func New(opts ...Option) (*Poller, error) {
	cfg := &pollerConfig{
		interval: defaultPollInterval,
		timeout:  defaultFetchTimeout,
		fallback: true,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.endpoint == "" {
		return nil, errors.New("an endpoint is required")
	}
	parsed, err := url.Parse(cfg.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint URL: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, errors.New("endpoint URL must have a scheme (http:// or https://)")
	}

	// default to slog.Default() if no logger provided
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	synthesizer := cfg.synthesizer
	if synthesizer == nil {
		synthesizer = defaultSynthesizer()
	}

	p := &Poller{
		endpoint:    cfg.endpoint,
		interval:    cfg.interval,
		timeout:     cfg.timeout,
		headers:     cfg.headers,
		fallback:    cfg.fallback,
		synthesizer: synthesizer,
		logger:      logger,
		client:      fetch.NewClient(),
	}

	for _, fn := range cfg.observers {
		p.Subscribe(fn)
	}

	return p, nil
}

// defaultSynthesizer wraps a shared random generator as a [Synthesizer].
func defaultSynthesizer() Synthesizer {
	gen := synth.New()
	return func(prev Snapshot, seen bool) Snapshot {
		var prevHeight int64
		if seen {
			prevHeight = prev.Height
		}
		b := gen.Block(prevHeight)
		return Snapshot{
			BlockID:   b.BlockID,
			Height:    b.Height,
			Hash:      b.Hash,
			CreatedAt: b.CreatedAt,
			Active:    b.Active,
			Category:  b.Category,
			Synthetic: true,
		}
	}
}

// Start begins periodic polling in a background goroutine.
//
// Start is non-blocking: it performs one immediate poll, then continues
// at the configured interval until [Poller.Stop] is called or ctx is
// cancelled. If the poller is already running, Start logs a warning and
// is otherwise a no-op. A stopped poller can be started again.
//
// If ctx is nil, context.Background() is used as the parent context.
//
// Polls never overlap: each cycle runs synchronously on the polling
// goroutine, so a fetch that outlasts the interval delays the next tick
// rather than stacking in-flight requests.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		p.logger.Warn("poller already running", "endpoint", p.endpoint)
		return
	}
	p.running = true

	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go p.run(runCtx, done)
}

// Stop halts polling and cancels any in-flight fetch.
//
// Stop blocks until the polling goroutine has exited, so no observer is
// notified after Stop returns. Stop is idempotent: calling it on a
// poller that is not running (including before the first Start) is a
// safe no-op.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	cancel()
	<-done

	p.client.Close()
}

// Running reports whether the poller is currently polling.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Endpoint returns the configured status endpoint URL.
func (p *Poller) Endpoint() string {
	return p.endpoint
}

// Interval returns the configured duration between poll cycles.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Latest returns the most recent snapshot the poller has seen, real or
// synthetic. ok is false before the first completed poll.
func (p *Poller) Latest() (snap Snapshot, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.hasLast
}

// Subscribe registers an observer to be invoked with each new snapshot
// when the block identifier changes.
//
// The returned function removes exactly that registration; calling it
// more than once is a safe no-op. Removal during a notification fan-out
// takes effect on the next poll cycle, not the current one. Nil
// observers are silently ignored.
func (p *Poller) Subscribe(fn Observer) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	id := uuid.NewString()
	p.mu.Lock()
	p.observers = append(p.observers, subscription{id: id, fn: fn})
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			for i, sub := range p.observers {
				if sub.id == id {
					p.observers = append(p.observers[:i], p.observers[i+1:]...)
					break
				}
			}
		})
	}
}

// run is the polling loop. It polls once immediately, then on every tick
// until the context is cancelled.
func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll performs one fetch-compare-notify cycle.
//
// Failures never escape: a failed fetch either synthesizes a fallback
// snapshot (fallback enabled) or drops the cycle with a warning. A cycle
// interrupted by Stop produces no notification.
func (p *Poller) poll(ctx context.Context) {
	status, err := p.client.Fetch(ctx, p.endpoint, p.headers, p.timeout)

	// stop cancelled the fetch; a late cycle must not notify
	if ctx.Err() != nil {
		return
	}

	var snap Snapshot
	if err != nil {
		if !p.fallback {
			p.logger.Warn("status fetch failed",
				"endpoint", p.endpoint,
				"error", err,
			)
			return
		}
		prev, seen := p.Latest()
		snap = p.synthesizer(prev, seen)
		snap.Synthetic = true
		p.logger.Warn("status fetch failed, synthesized snapshot",
			"endpoint", p.endpoint,
			"block_id", snap.BlockID,
			"error", err,
		)
	} else {
		snap = Snapshot{
			BlockID:   status.BlockID,
			Height:    status.Height,
			Hash:      status.Hash,
			CreatedAt: status.CreatedAt,
			Active:    status.Active,
			Category:  status.Category,
		}
	}

	p.mu.Lock()
	if ctx.Err() != nil {
		p.mu.Unlock()
		return
	}
	changed := snap.BlockID != p.lastID
	if changed {
		p.lastID = snap.BlockID
	}
	p.last = snap
	p.hasLast = true

	// snapshot the registry so unsubscribes during the fan-out take
	// effect on the next cycle
	var subs []subscription
	if changed {
		subs = make([]subscription, len(p.observers))
		copy(subs, p.observers)
	}
	p.mu.Unlock()

	if !changed {
		p.logger.Debug("block unchanged", "block_id", snap.BlockID)
		return
	}

	p.logger.Info("block changed",
		"block_id", snap.BlockID,
		"height", snap.Height,
		"synthetic", snap.Synthetic,
	)
	for _, sub := range subs {
		p.notify(sub, snap)
	}
}

// notify invokes a single observer with panic recovery.
// If the observer panics, the full stack trace is logged with a
// correlation ID and the fan-out continues with the next observer.
func (p *Poller) notify(sub subscription, snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			p.logger.Error("observer panic",
				"correlation_id", correlationID,
				"block_id", snap.BlockID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	sub.fn(snap)
}
