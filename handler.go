package redisession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jhfangying/RedisSessionHandler/lock"
)

// Handler drives one session lifecycle against Redis: open → read →
// write/refresh → close, with Destroy reachable anywhere after Open.
//
// A Handler belongs to exactly one request-handling execution and is not
// safe for concurrent use. Construct a fresh Handler per request; locks and
// the connection it owns are released exactly once, on Close.
type Handler struct {
	cfg     Config
	client  redis.UniversalClient
	locks   *lock.Manager
	guard   *identityGuard
	idGen   IDGenerator
	cookies CookieIssuer
	metrics *Metrics
	log     zerolog.Logger

	cookieName string
	prefix     string
	opened     bool
	closed     bool
	ownsClient bool
}

// Option customizes a Handler at construction time.
type Option func(*Handler)

// WithLogger attaches a zerolog logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// WithIDGenerator replaces the default [RandomGenerator].
func WithIDGenerator(g IDGenerator) Option {
	return func(h *Handler) { h.idGen = g }
}

// WithCookieIssuer attaches the collaborator that overwrites the client's
// session cookie after regeneration. Without one, Regenerate still mints and
// records a fresh identifier but cannot update the client.
func WithCookieIssuer(ci CookieIssuer) Option {
	return func(h *Handler) { h.cookies = ci }
}

// WithMetrics shares a metrics engine across handlers. Without one the
// handler creates a private engine from cfg.Metrics.
func WithMetrics(m *Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithClient injects an existing Redis client. The handler will ping it on
// Open but neither dials nor closes it; connection ownership stays with the
// caller.
func WithClient(client redis.UniversalClient) Option {
	return func(h *Handler) { h.client = client }
}

// NewHandler validates cfg and builds an unopened Handler.
func NewHandler(cfg Config, opts ...Option) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	h := &Handler{
		cfg:    cfg,
		guard:  newIdentityGuard(),
		idGen:  RandomGenerator{},
		log:    zerolog.Nop(),
		prefix: cfg.Connection.KeyPrefix,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.metrics == nil {
		h.metrics = NewMetrics(cfg.Metrics)
	}
	h.log = h.log.With().Str("component", "redisession").Logger()

	return h, nil
}

func (h *Handler) key(id string) string {
	return h.prefix + id
}

func (h *Handler) ready() error {
	if h.closed {
		return ErrHandlerClosed
	}
	if !h.opened {
		return ErrNotOpened
	}
	return nil
}

// Open establishes the Redis connection and records the cookie name used for
// later regeneration. It dials over TCP (Addr + DialTimeout) or a unix
// socket (SocketPath, no timeout), authenticates and selects a database only
// when non-default values are configured, then verifies the connection with
// a ping. All other lifecycle methods are undefined until Open succeeds.
func (h *Handler) Open(ctx context.Context, cookieName string) error {
	if h.closed {
		return ErrHandlerClosed
	}
	if h.opened {
		return ErrAlreadyOpened
	}

	if h.client == nil {
		opt := &redis.Options{
			Password: h.cfg.Connection.Password,
			DB:       h.cfg.Connection.DB,
		}
		if h.cfg.Connection.SocketPath != "" {
			opt.Network = "unix"
			opt.Addr = h.cfg.Connection.SocketPath
		} else {
			opt.Addr = h.cfg.Connection.Addr
			opt.DialTimeout = h.cfg.Connection.DialTimeout
		}
		h.client = redis.NewClient(opt)
		h.ownsClient = true
	}

	if err := h.client.Ping(ctx).Err(); err != nil {
		if h.ownsClient {
			_ = h.client.Close()
			h.client = nil
			h.ownsClient = false
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	h.locks = lock.New(h.client, h.prefix, lock.Options{
		TTL:            h.cfg.Lock.TTL,
		MinWait:        h.cfg.Lock.MinWait,
		MaxWait:        h.cfg.Lock.MaxWait,
		AcquireTimeout: h.cfg.Lock.AcquireTimeout,
		Logger:         h.log,
	})
	h.cookieName = cookieName
	h.opened = true
	h.metrics.Inc(MetricSessionOpened)
	h.log.Debug().Str("cookie", cookieName).Msg("session handler opened")

	return nil
}

// CreateID mints a fresh session identifier and records it as generated
// in-process, so a following Read trusts it without a store lookup.
func (h *Handler) CreateID(ctx context.Context) (string, error) {
	if err := h.ready(); err != nil {
		return "", err
	}

	id, err := h.idGen.Generate()
	if err != nil {
		return "", err
	}
	h.guard.recordGenerated(id)
	h.metrics.Inc(MetricIDGenerated)
	return id, nil
}

// Validate reports whether id is trustworthy for continued use. False means
// the identifier came from the request but has no backing record — either a
// session that expired server-side or a forged/fixated identifier — and the
// caller must Regenerate before proceeding.
//
// Regeneration is never performed inside Read; this explicit
// Validate/Regenerate pair is the only trigger point.
func (h *Handler) Validate(ctx context.Context, id string) (bool, error) {
	if err := h.ready(); err != nil {
		return false, err
	}
	must, err := h.mustRegenerate(ctx, id)
	if err != nil {
		return false, err
	}
	return !must, nil
}

// mustRegenerate is the fixation/staleness check: true only for identifiers
// not minted by this execution that have no record in the store.
func (h *Handler) mustRegenerate(ctx context.Context, id string) (bool, error) {
	if h.guard.isNew(id) {
		return false, nil
	}
	n, err := h.client.Exists(ctx, h.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 0, nil
}

// Regenerate mints a replacement identifier, records it as fresh, and
// overwrites the client's session cookie with the configured attributes
// (absolute expiry of now + cookie lifetime when one is configured,
// session-scoped otherwise). It returns the new identifier.
func (h *Handler) Regenerate(ctx context.Context) (string, error) {
	id, err := h.CreateID(ctx)
	if err != nil {
		return "", err
	}

	if h.cookies != nil {
		c := h.cfg.Session.Cookie
		var expiresAt time.Time
		if c.Lifetime > 0 {
			expiresAt = time.Now().Add(c.Lifetime)
		}
		h.cookies.SetCookie(h.cookieName, id, expiresAt, c.Path, c.Domain, c.Secure, c.HTTPOnly)
	}

	h.metrics.Inc(MetricIDRegenerated)
	h.log.Info().Str("session_id", id).Msg("session identifier regenerated")
	return id, nil
}

// Read acquires the session's lock (blocking with backoff) and returns the
// stored payload. Identifiers minted by this execution return an empty
// payload with no store round-trip: no record can exist for them yet. An
// absent record is an empty session, not an error.
func (h *Handler) Read(ctx context.Context, id string) (string, error) {
	if err := h.ready(); err != nil {
		return "", err
	}

	start := time.Now()
	if err := h.locks.Acquire(ctx, id); err != nil {
		if errors.Is(err, lock.ErrAcquireAborted) {
			h.metrics.Inc(MetricLockAborted)
		}
		return "", err
	}
	waited := time.Since(start)
	h.metrics.Inc(MetricLockAcquired)
	h.metrics.Observe(MetricLockWaitLatency, waited)
	if waited >= h.cfg.Lock.MinWait {
		h.metrics.Inc(MetricLockContention)
	}

	h.metrics.Inc(MetricSessionRead)
	if h.guard.isNew(id) {
		return "", nil
	}

	data, err := h.client.Get(ctx, h.key(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return data, nil
}

// Write persists data as the session record with the configured session TTL,
// refreshing expiry and overwriting any prior value unconditionally.
func (h *Handler) Write(ctx context.Context, id, data string) error {
	if err := h.ready(); err != nil {
		return err
	}

	if err := h.client.Set(ctx, h.key(id), data, h.cfg.Session.TTL).Err(); err != nil {
		h.log.Warn().Err(err).Str("session_id", id).Msg("session write rejected")
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	h.metrics.Inc(MetricSessionWritten)
	return nil
}

// UpdateTimestamp extends the record's TTL without rewriting the payload —
// the cheap path for sessions that were read but not modified. A missing
// record is not an error; there is simply nothing left to refresh.
func (h *Handler) UpdateTimestamp(ctx context.Context, id string) error {
	if err := h.ready(); err != nil {
		return err
	}

	if err := h.client.Expire(ctx, h.key(id), h.cfg.Session.TTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	h.metrics.Inc(MetricTimestampRefreshed)
	return nil
}

// Destroy deletes the session record and its lock key unconditionally.
// Absence of either key is not an error.
func (h *Handler) Destroy(ctx context.Context, id string) error {
	if err := h.ready(); err != nil {
		return err
	}

	if err := h.client.Del(ctx, h.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if err := h.locks.Release(ctx, id); err != nil {
		return err
	}
	h.metrics.Inc(MetricSessionDestroyed)
	h.log.Debug().Str("session_id", id).Msg("session destroyed")
	return nil
}

// Close releases every lock this handler holds and, when the handler dialed
// the connection itself, closes it. Close is idempotent; calls after the
// first are no-ops.
func (h *Handler) Close(ctx context.Context) error {
	if h.closed || !h.opened {
		h.closed = true
		return nil
	}
	h.closed = true

	err := h.locks.ReleaseAll(ctx)
	if h.ownsClient {
		if cerr := h.client.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: %v", ErrRedisUnavailable, cerr)
		}
	}
	h.log.Debug().Msg("session handler closed")
	return err
}

// GC reports success without touching anything: expiry is delegated entirely
// to Redis TTLs, so there is never a sweep to run.
func (h *Handler) GC(ctx context.Context, maxAge time.Duration) error {
	return nil
}

// MetricsSnapshot exposes the handler's metric engine state.
func (h *Handler) MetricsSnapshot() MetricsSnapshot {
	return h.metrics.Snapshot()
}
