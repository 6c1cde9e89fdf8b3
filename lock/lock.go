// Package lock provides per-session mutual exclusion across executions
// sharing one Redis instance. A lock is a SET NX key with an optional TTL;
// holding the key means exclusive ownership of the session it names.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	// ErrAcquireAborted is returned when lock acquisition is abandoned by
	// context cancellation or the configured acquire timeout.
	ErrAcquireAborted = errors.New("lock acquisition aborted")
	// ErrRedisUnavailable wraps transport-level Redis failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

const lockKeySuffix = "_lock"

// Options configures a [Manager].
type Options struct {
	// TTL bounds the lifetime of an acquired lock; 0 means no automatic
	// expiry (the lock lives until released explicitly).
	TTL time.Duration
	// MinWait is the first backoff interval after a failed attempt.
	// Defaults to 1ms.
	MinWait time.Duration
	// MaxWait caps the backoff interval. Defaults to 128ms.
	MaxWait time.Duration
	// AcquireTimeout bounds the total blocking time of one Acquire call;
	// 0 retries until the caller's context is done.
	AcquireTimeout time.Duration

	Logger zerolog.Logger
}

// Manager acquires and releases session locks for one execution. It tracks
// every lock it holds and releases all of them in one ReleaseAll call.
//
// A Manager belongs to a single execution context and is not safe for
// concurrent use; exclusion across executions is enforced by Redis.
type Manager struct {
	client  redis.UniversalClient
	prefix  string
	ttl     time.Duration
	minWait time.Duration
	maxWait time.Duration
	timeout time.Duration
	log     zerolog.Logger

	held []string
}

// New creates a Manager keyed under the given prefix.
func New(client redis.UniversalClient, prefix string, opts Options) *Manager {
	if opts.MinWait <= 0 {
		opts.MinWait = time.Millisecond
	}
	if opts.MaxWait < opts.MinWait {
		opts.MaxWait = 128 * time.Millisecond
		if opts.MaxWait < opts.MinWait {
			opts.MaxWait = opts.MinWait
		}
	}

	return &Manager{
		client:  client,
		prefix:  prefix,
		ttl:     opts.TTL,
		minWait: opts.MinWait,
		maxWait: opts.MaxWait,
		timeout: opts.AcquireTimeout,
		log:     opts.Logger.With().Str("component", "lock").Logger(),
	}
}

func (m *Manager) key(sessionID string) string {
	return m.prefix + sessionID + lockKeySuffix
}

// Acquire blocks until the lock for sessionID is obtained, sleeping between
// attempts with exponential backoff (MinWait doubling up to MaxWait; the
// interval never resets within one call). The lock key is created with
// SET NX and carries the configured TTL so that a crashed holder cannot
// wedge the session forever.
//
// Acquire returns [ErrAcquireAborted] when ctx is cancelled or the acquire
// timeout elapses, and a wrapped [ErrRedisUnavailable] on transport failure.
// On success the session is added to the held set consumed by ReleaseAll.
func (m *Manager) Acquire(ctx context.Context, sessionID string) error {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	key := m.key(sessionID)
	wait := m.minWait
	attempts := 0

	for {
		ok, err := m.client.SetNX(ctx, key, "", m.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", ErrAcquireAborted, ctx.Err())
			}
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if ok {
			m.held = append(m.held, sessionID)
			if attempts > 0 {
				m.log.Debug().Str("session_id", sessionID).Int("attempts", attempts).Msg("lock acquired after contention")
			}
			return nil
		}

		attempts++
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.log.Debug().Str("session_id", sessionID).Int("attempts", attempts).Msg("lock acquisition aborted")
			return fmt.Errorf("%w: %v", ErrAcquireAborted, ctx.Err())
		case <-timer.C:
		}
		wait = nextWait(wait, m.maxWait)
	}
}

// Release deletes the lock key for sessionID unconditionally and drops it
// from the held set. Absence of the key is not an error.
func (m *Manager) Release(ctx context.Context, sessionID string) error {
	for i, held := range m.held {
		if held == sessionID {
			m.held = append(m.held[:i], m.held[i+1:]...)
			break
		}
	}

	if err := m.client.Del(ctx, m.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// ReleaseAll deletes every held lock and empties the held set. It is the
// unconditional cleanup path: the set is cleared even when the DEL fails,
// leaving the lock TTL as the fallback. Calling it with nothing held is a
// no-op.
func (m *Manager) ReleaseAll(ctx context.Context) error {
	if len(m.held) == 0 {
		return nil
	}

	keys := make([]string, len(m.held))
	for i, sessionID := range m.held {
		keys[i] = m.key(sessionID)
	}
	m.held = m.held[:0]

	if err := m.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Held returns a copy of the session IDs whose locks this manager holds.
func (m *Manager) Held() []string {
	out := make([]string, len(m.held))
	copy(out, m.held)
	return out
}

// nextWait doubles the backoff interval, capped at max.
func nextWait(wait, max time.Duration) time.Duration {
	if wait >= max {
		return max
	}
	wait *= 2
	if wait > max {
		return max
	}
	return wait
}
