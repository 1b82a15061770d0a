package kv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// ErrConnectionUnavailable indicates the backend is unreachable or the
// reconnect cooldown has not elapsed. It is recoverable: callers degrade to
// the local store for the current operation.
var ErrConnectionUnavailable = errors.New("kv: connection unavailable")

// ErrForbiddenContext indicates the Manager was invoked from an execution
// context that is not allowed to open backend connections. This is a
// programming error and is never retried.
var ErrForbiddenContext = errors.New("kv: store connections are server-side only")

// Options configures a Manager.
type Options struct {
	// URL is the redis connection URL, e.g. "redis://localhost:6379/0".
	URL string

	// ServerSide must be true for Acquire to dial at all. A Manager built
	// for a client-side context fails every call with ErrForbiddenContext.
	ServerSide bool

	// ReconnectCooldown is the minimum interval between failed connect
	// attempts. Within the window Acquire fails fast instead of redialing.
	ReconnectCooldown time.Duration

	// DialTimeout bounds a single connect-plus-ping attempt.
	DialTimeout time.Duration
}

// attempt is one shared connection-establishment attempt. Concurrent callers
// of Acquire during an in-progress dial all wait on the same attempt, so a
// down backend sees one dial, not a thundering herd.
type attempt struct {
	done  chan struct{}
	store Store
	err   error
}

// Manager owns the single process-wide connection to the remote key-value
// store. It is constructed explicitly at process start and shut down via
// Close; there is no package-level instance.
type Manager struct {
	opts Options

	mu          sync.Mutex
	store       Store
	client      *redis.Client
	inflight    *attempt
	lastAttempt time.Time

	// dial is swappable in tests.
	dial func(ctx context.Context) (Store, *redis.Client, error)
}

// NewManager builds a Manager. No connection is opened until the first
// Acquire call.
func NewManager(opts Options) *Manager {
	if opts.ReconnectCooldown <= 0 {
		opts.ReconnectCooldown = 5 * time.Second
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	m := &Manager{opts: opts}
	m.dial = m.dialRedis
	return m
}

// Acquire returns a ready Store handle. The first caller triggers a dial;
// concurrent callers share that attempt. After a failed attempt, calls within
// the reconnect cooldown fail fast with ErrConnectionUnavailable.
func (m *Manager) Acquire(ctx context.Context) (Store, error) {
	if !m.opts.ServerSide {
		return nil, ErrForbiddenContext
	}

	m.mu.Lock()
	if m.store != nil {
		s := m.store
		m.mu.Unlock()
		return s, nil
	}
	if m.inflight == nil {
		if !m.lastAttempt.IsZero() && time.Since(m.lastAttempt) < m.opts.ReconnectCooldown {
			m.mu.Unlock()
			return nil, ErrConnectionUnavailable
		}
		m.lastAttempt = time.Now()
		a := &attempt{done: make(chan struct{})}
		m.inflight = a
		go m.connect(a)
	}
	a := m.inflight
	m.mu.Unlock()

	select {
	case <-a.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if a.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionUnavailable, a.err)
	}
	return a.store, nil
}

// connect runs one dial attempt and publishes its result to all waiters.
func (m *Manager) connect(a *attempt) {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.DialTimeout)
	defer cancel()

	store, client, err := m.dial(ctx)

	m.mu.Lock()
	m.inflight = nil
	if err == nil {
		m.store = store
		m.client = client
		m.lastAttempt = time.Time{}
	}
	m.mu.Unlock()

	if err != nil {
		log.Warn().Err(err).Msg("kv connect failed")
	} else {
		log.Info().Msg("kv connected")
	}

	a.store, a.err = store, err
	close(a.done)
}

// dialRedis opens the redis client and verifies liveness with a ping before
// declaring the connection usable. Command retries inside the driver use
// capped exponential backoff.
func (m *Manager) dialRedis(ctx context.Context) (Store, *redis.Client, error) {
	ropts, err := redis.ParseURL(m.opts.URL)
	if err != nil {
		return nil, nil, err
	}
	ropts.MaxRetries = 3
	ropts.MinRetryBackoff = 100 * time.Millisecond
	ropts.MaxRetryBackoff = 3 * time.Second

	client := redis.NewClient(ropts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return redisStore{c: client}, client, nil
}

// Ping acquires a connection and probes backend liveness. It shares the
// Acquire path so the cooldown also bounds health-probe dials.
func (m *Manager) Ping(ctx context.Context) error {
	s, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	return s.Ping(ctx)
}

// Close releases the underlying connection. Safe to call when never connected.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store = nil
	if m.client != nil {
		c := m.client
		m.client = nil
		return c.Close()
	}
	return nil
}
