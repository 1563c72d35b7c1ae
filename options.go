package blockwatch

import (
	"errors"
	"log/slog"
	"time"
)

// pollerConfig holds mutable state during Poller construction.
type pollerConfig struct {
	endpoint    string
	interval    time.Duration
	timeout     time.Duration
	headers     map[string]string
	fallback    bool
	synthesizer Synthesizer
	logger      *slog.Logger
	observers   []Observer
}

// Option is a function that configures a [Poller] instance during
// construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*pollerConfig) error

// WithEndpoint sets the URL of the status endpoint to poll.
//
// An endpoint is required; [New] fails without one. The URL must have a
// scheme (http:// or https://).
func WithEndpoint(url string) Option {
	return func(cfg *pollerConfig) error {
		if url == "" {
			return errors.New("endpoint cannot be empty")
		}
		cfg.endpoint = url
		return nil
	}
}

// WithInterval sets the time between poll cycles.
//
// Defaults to 10 seconds if not specified. A poll whose fetch outlasts
// the interval delays the next cycle rather than overlapping it.
//
// Returns an error if the duration is zero or negative.
func WithInterval(d time.Duration) Option {
	return func(cfg *pollerConfig) error {
		if d <= 0 {
			return errors.New("poll interval must be positive")
		}
		cfg.interval = d
		return nil
	}
}

// WithTimeout sets the per-request timeout for status fetches.
//
// Defaults to 5 seconds if not specified.
//
// Returns an error if the duration is zero or negative.
func WithTimeout(d time.Duration) Option {
	return func(cfg *pollerConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithHeaders sets custom HTTP headers sent with every status fetch,
// given as alternating key-value pairs.
//
// Example:
//
//	blockwatch.WithHeaders("Authorization", "Bearer token")
//
// Returns an error if an odd number of arguments is given.
func WithHeaders(pairs ...string) Option {
	return func(cfg *pollerConfig) error {
		if len(pairs)%2 != 0 {
			return errors.New("headers require an even number of arguments (key-value pairs)")
		}
		if cfg.headers == nil {
			cfg.headers = make(map[string]string, len(pairs)/2)
		}
		for i := 0; i < len(pairs); i += 2 {
			if pairs[i] == "" {
				return errors.New("header key cannot be empty")
			}
			cfg.headers[pairs[i]] = pairs[i+1]
		}
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the poller.
//
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *pollerConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithFallback controls whether a failed fetch synthesizes a local
// snapshot instead of being dropped.
//
// Fallback is enabled by default, preserving the demo's "always show
// something" behavior. Synthesized snapshots carry Synthetic=true and
// the failure is logged at Warn level, so masked backend outages remain
// visible to operators. Disable fallback to make failed polls produce no
// notification at all.
func WithFallback(enabled bool) Option {
	return func(cfg *pollerConfig) error {
		cfg.fallback = enabled
		return nil
	}
}

// WithSynthesizer sets a custom [Synthesizer] for fallback snapshots.
//
// If not specified, a randomized generator producing block_<hex>
// identifiers is used. The poller marks every synthesized snapshot
// Synthetic regardless of what the synthesizer returns.
//
// Returns an error if the synthesizer is nil.
func WithSynthesizer(s Synthesizer) Option {
	return func(cfg *pollerConfig) error {
		if s == nil {
			return errors.New("synthesizer cannot be nil")
		}
		cfg.synthesizer = s
		return nil
	}
}

// WithObserver registers an [Observer] at construction time.
//
// Equivalent to calling [Poller.Subscribe] after [New], except the
// registration cannot be removed. May be given multiple times; observers
// run in registration order. Nil observers are silently ignored.
func WithObserver(fn Observer) Option {
	return func(cfg *pollerConfig) error {
		if fn == nil {
			return nil // no-op for nil observer (safe to call)
		}
		cfg.observers = append(cfg.observers, fn)
		return nil
	}
}
