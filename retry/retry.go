// Package retry implements the attempt/retry/success/failure state machine
// used to wait for a predicate to become true, e.g. self-verifying the
// daemon is reachable right after boot. It is a direct port of the
// original daemon's try_connection (reccd/aio/connection.py), adapted to
// use go-pkgz/repeater for the underlying attempt/sleep mechanics.
package retry

import (
	"context"
	"time"

	"github.com/go-pkgz/repeater"
)

// DefaultDelay and DefaultMaxAttempts are used whenever an Option does not
// override them, matching the suggested defaults in spec.md §4.1.
const (
	DefaultDelay       = 3 * time.Second
	DefaultMaxAttempts = 10
)

// Predicate is polled by TryConnection. Any error it returns is treated
// identically to a false result — see the package doc on TryConnection.
type Predicate func(ctx context.Context) (bool, error)

// Callback reports an attempt index i and the configured max m, 0 <= i <= m.
type Callback func(i, m int)

type config struct {
	delay       time.Duration
	maxAttempts int
	tryCB       Callback
	retryCB     Callback
	successCB   Callback
	failureCB   Callback
}

// Option configures TryConnection. Missing callbacks are simply skipped.
type Option func(*config)

// WithDelay overrides the delay between attempts.
func WithDelay(d time.Duration) Option { return func(c *config) { c.delay = d } }

// WithMaxAttempts overrides the maximum number of attempts.
func WithMaxAttempts(n int) Option { return func(c *config) { c.maxAttempts = n } }

// WithTryCB fires before every attempt, including the first.
func WithTryCB(cb Callback) Option { return func(c *config) { c.tryCB = cb } }

// WithRetryCB fires after a failed attempt, before the inter-attempt sleep,
// only when another attempt remains.
func WithRetryCB(cb Callback) Option { return func(c *config) { c.retryCB = cb } }

// WithSuccessCB fires once, when the predicate returns true.
func WithSuccessCB(cb Callback) Option { return func(c *config) { c.successCB = cb } }

// WithFailureCB fires once when the loop ends without success: after every
// attempt has been exhausted, or after ctx cancellation stopped the loop.
func WithFailureCB(cb Callback) Option { return func(c *config) { c.failureCB = cb } }

// TryConnection attempts predicate up to maxAttempts times (default
// DefaultMaxAttempts), sleeping delay (default DefaultDelay) between
// attempts, and returns true as soon as predicate reports true.
//
// Any error raised by predicate is swallowed and treated exactly like a
// false result: this is intentional, not a bug. predicate is expected to
// observe transient transport errors (a connection refused while the peer
// is still starting up), and TryConnection is the buffer that absorbs
// those so callers never see them propagate out of a retry loop whose only
// job is "is it up yet". ctx cancellation is observed at the inter-attempt
// sleep point and aborts the loop immediately, returning false without
// invoking the failure callback a second time.
func TryConnection(ctx context.Context, predicate Predicate, opts ...Option) bool {
	cfg := config{delay: DefaultDelay, maxAttempts: DefaultMaxAttempts}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxAttempts <= 0 {
		cfg.maxAttempts = DefaultMaxAttempts
	}

	attempt := 0
	succeeded := false

	rep := repeater.NewDefault(cfg.maxAttempts, cfg.delay)
	err := rep.Do(ctx, func() error {
		i := attempt
		attempt++

		if cfg.tryCB != nil {
			cfg.tryCB(i, cfg.maxAttempts)
		}

		ok, _ := predicate(ctx) // predicate errors are swallowed, see doc above
		if ok {
			succeeded = true
			return nil
		}

		if i+1 < cfg.maxAttempts && cfg.retryCB != nil {
			cfg.retryCB(i+1, cfg.maxAttempts)
		}
		return errNotYet
	})

	if err == nil && succeeded {
		if cfg.successCB != nil {
			cfg.successCB(attempt-1, cfg.maxAttempts)
		}
		return true
	}

	if cfg.failureCB != nil {
		cfg.failureCB(cfg.maxAttempts, cfg.maxAttempts)
	}
	return false
}

// errNotYet signals repeater to retry; it never escapes TryConnection.
var errNotYet = &notYetError{}

type notYetError struct{}

func (*notYetError) Error() string { return "retry: predicate not satisfied yet" }
