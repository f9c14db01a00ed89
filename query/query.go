// Package query is the read-side policy wrapper over the transport
// adapter: a per-key response cache with a staleness window, a bounded
// retry budget that exempts auth failures and network errors, and a
// configurable behaviour for unauthorized results.
package query

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"sync"
	"time"

	cerrors "github.com/homobie/portal-go/internal/errors"
	"github.com/homobie/portal-go/transport"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	defaultStaleAfter  = 5 * time.Minute
	defaultMaxAttempts = 3
	defaultBackoff     = 250 * time.Millisecond
)

// UnauthorizedBehavior decides what a caller sees when a read query
// ends in an unrecoverable 401.
type UnauthorizedBehavior int

const (
	// UnauthorizedReturnNil resolves the query empty, leaving out
	// untouched. The session teardown has already happened in the
	// transport layer.
	UnauthorizedReturnNil UnauthorizedBehavior = iota
	// UnauthorizedLogout is the default for list queries: like
	// UnauthorizedReturnNil, the query resolves empty after the
	// session has been invalidated.
	UnauthorizedLogout
	// UnauthorizedError propagates the 401 to the caller.
	UnauthorizedError
)

// Config tunes the query client.
type Config struct {
	StaleAfter   time.Duration
	MaxAttempts  int
	Backoff      time.Duration
	Unauthorized UnauthorizedBehavior
}

type entry struct {
	data      json.RawMessage
	fetchedAt time.Time
}

// Client caches read queries over a transport.Client.
type Client struct {
	api *transport.Client
	cfg Config
	log zerolog.Logger

	nowTime func() time.Time

	mu    sync.Mutex
	cache map[string]*entry
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the query client's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(q *Client) { q.log = log }
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(q *Client) { q.nowTime = nowFunc }
}

// New creates a query client. Zero Config fields take their defaults:
// five-minute staleness, three attempts, unauthorized logs out.
func New(api *transport.Client, cfg Config, options ...Option) *Client {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaultStaleAfter
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	q := &Client{
		api:     api,
		cfg:     cfg,
		log:     zerolog.Nop(),
		nowTime: time.Now,
		cache:   make(map[string]*entry),
	}
	for _, opt := range options {
		opt(q)
	}
	return q
}

// Fetch resolves a read query. A cache entry fresher than StaleAfter
// is served without touching the network; otherwise the endpoint is
// fetched under the retry policy and the cache updated on success
// (last write wins by resolution order).
func (q *Client) Fetch(ctx context.Context, key, endpoint string, out any) error {
	q.mu.Lock()
	cached, ok := q.cache[key]
	if ok && q.nowTime().Sub(cached.fetchedAt) < q.cfg.StaleAfter {
		data := cached.data
		q.mu.Unlock()
		if out == nil {
			return nil
		}
		return errors.Wrap(json.Unmarshal(data, out), "[Client.Fetch] decode cached")
	}
	q.mu.Unlock()

	raw, err := q.fetchWithRetry(ctx, endpoint)
	if err != nil {
		if transport.StatusCode(err) == http.StatusUnauthorized {
			switch q.cfg.Unauthorized {
			case UnauthorizedError:
				return err
			default:
				// Session invalidation already happened in the
				// transport's 401 policy; resolve empty.
				return nil
			}
		}
		return err
	}

	q.mu.Lock()
	q.cache[key] = &entry{data: raw, fetchedAt: q.nowTime()}
	q.mu.Unlock()

	if out == nil || len(raw) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(raw, out), "[Client.Fetch] decode response")
}

// fetchWithRetry applies the retry budget: up to MaxAttempts, never
// for 401/403, never for classified network errors.
func (q *Client) fetchWithRetry(ctx context.Context, endpoint string) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt < q.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, jitter(q.cfg.Backoff)); err != nil {
				return nil, err
			}
			q.log.Debug().Str("endpoint", endpoint).Int("attempt", attempt+1).Msg("retrying query")
		}

		var raw json.RawMessage
		err := q.api.Get(ctx, endpoint, &raw)
		if err == nil {
			return raw, nil
		}
		lastErr = err

		if !retryable(err) {
			break
		}
	}
	return nil, lastErr
}

// Invalidate drops a cached query so the next Fetch refetches.
// Mutation call sites use this; mutations themselves go straight
// through the transport and never auto-retry.
func (q *Client) Invalidate(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.cache, key)
}

// InvalidateAll drops the entire cache.
func (q *Client) InvalidateAll() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cache = make(map[string]*entry)
}

func retryable(err error) bool {
	if transport.IsNetworkError(err) {
		return false
	}
	switch transport.StatusCode(err) {
	case http.StatusUnauthorized, http.StatusForbidden:
		return false
	}
	if cerrors.Is(err, context.Canceled) || cerrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

func jitter(base time.Duration) time.Duration {
	return base + time.Duration(rand.Int63n(int64(base)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
