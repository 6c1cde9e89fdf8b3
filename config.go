package redisession

import (
	"errors"
	"time"
)

// Config groups every tunable of a session [Handler].
//
// Config instances are intended to be configured during initialization and
// then treated as immutable.
type Config struct {
	Connection ConnectionConfig
	Session    SessionConfig
	Lock       LockConfig
	Metrics    MetricsConfig
}

/*
====================================
CONNECTION CONFIG
====================================
*/

// ConnectionConfig is the precomputed connection tuple for the Redis store.
// Exactly one of Addr or SocketPath must be set; a socket connection takes
// no dial timeout (the two connection modes are mutually exclusive).
type ConnectionConfig struct {
	Addr        string        // host:port, e.g. "127.0.0.1:6379"
	SocketPath  string        // unix socket path, e.g. "/var/run/redis.sock"
	DialTimeout time.Duration // TCP dial timeout; 0 means the client default
	Password    string        // empty means do not AUTH
	DB          int           // 0 means do not SELECT a non-default database
	KeyPrefix   string        // namespace prepended to every session key
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls record lifetime and the session cookie attributes
// used when an identifier is regenerated.
type SessionConfig struct {
	TTL    time.Duration // record lifetime, refreshed on every write
	Cookie CookieConfig
}

// CookieConfig carries the attributes applied when the session cookie is
// overwritten after identifier regeneration. A zero Lifetime produces a
// session-scoped cookie (no Expires attribute).
type CookieConfig struct {
	Path     string
	Domain   string
	Lifetime time.Duration
	Secure   bool
	HTTPOnly bool
}

/*
====================================
LOCK CONFIG
====================================
*/

// LockConfig controls the per-session mutual-exclusion lock.
//
// TTL bounds how long a lock may exist before Redis expires it on its own;
// it is the safety valve for executions that die before Close. Zero means
// the lock never expires and must be released explicitly.
//
// Acquisition blocks and retries with exponential backoff: the wait starts
// at MinWait, doubles after every failed attempt, and is capped at MaxWait.
// AcquireTimeout bounds the total wait; zero retries forever.
type LockConfig struct {
	TTL            time.Duration
	MinWait        time.Duration
	MaxWait        time.Duration
	AcquireTimeout time.Duration
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig toggles the atomic counter engine and its latency histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration: a local Redis over TCP,
// 24-minute session TTL, 30-second lock TTL, and the 1ms→128ms backoff
// window.
func DefaultConfig() Config {
	return Config{
		Connection: ConnectionConfig{
			Addr:        "127.0.0.1:6379",
			DialTimeout: 2 * time.Second,
			KeyPrefix:   "sess:",
		},
		Session: SessionConfig{
			TTL: 1440 * time.Second,
			Cookie: CookieConfig{
				Path:     "/",
				HTTPOnly: true,
			},
		},
		Lock: LockConfig{
			TTL:     30 * time.Second,
			MinWait: time.Millisecond,
			MaxWait: 128 * time.Millisecond,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate reports the first configuration error found, or nil.
func (c *Config) Validate() error {
	// Connection
	if c.Connection.Addr == "" && c.Connection.SocketPath == "" {
		return errors.New("Connection requires Addr or SocketPath")
	}
	if c.Connection.Addr != "" && c.Connection.SocketPath != "" {
		return errors.New("Connection Addr and SocketPath are mutually exclusive")
	}
	if c.Connection.SocketPath != "" && c.Connection.DialTimeout != 0 {
		return errors.New("Connection DialTimeout does not apply to socket connections")
	}
	if c.Connection.DialTimeout < 0 {
		return errors.New("Connection DialTimeout must be >= 0")
	}
	if c.Connection.DB < 0 {
		return errors.New("Connection DB must be >= 0")
	}

	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.Cookie.Lifetime < 0 {
		return errors.New("Session Cookie Lifetime must be >= 0")
	}

	// Lock
	if c.Lock.TTL < 0 {
		return errors.New("Lock TTL must be >= 0")
	}
	if c.Lock.MinWait <= 0 {
		return errors.New("Lock MinWait must be > 0")
	}
	if c.Lock.MaxWait < c.Lock.MinWait {
		return errors.New("Lock MaxWait must be >= MinWait")
	}
	if c.Lock.AcquireTimeout < 0 {
		return errors.New("Lock AcquireTimeout must be >= 0")
	}

	return nil
}
