package redisession

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/jhfangying/RedisSessionHandler/lock"
)

type recordingIssuer struct {
	name, value  string
	path, domain string
	expiresAt    time.Time
	secure       bool
	httpOnly     bool
	calls        int
}

func (r *recordingIssuer) SetCookie(name, value string, expiresAt time.Time, path, domain string, secure, httpOnly bool) {
	r.name, r.value = name, value
	r.expiresAt = expiresAt
	r.path, r.domain = path, domain
	r.secure, r.httpOnly = secure, httpOnly
	r.calls++
}

func testConfig(addr string) Config {
	cfg := DefaultConfig()
	cfg.Connection.Addr = addr
	cfg.Lock.MinWait = time.Millisecond
	cfg.Lock.MaxWait = 4 * time.Millisecond
	return cfg
}

func newHandlerTest(t *testing.T, opts ...Option) (*Handler, *redis.Client, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	h, err := NewHandler(testConfig(mr.Addr()), opts...)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	if err := h.Open(context.Background(), "SESSIONID"); err != nil {
		t.Fatalf("open: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return h, rdb, mr, func() {
		_ = h.Close(context.Background())
		rdb.Close()
		mr.Close()
	}
}

func TestOpenFailsWhenRedisUnreachable(t *testing.T) {
	cfg := testConfig("127.0.0.1:1")
	cfg.Connection.DialTimeout = 100 * time.Millisecond

	h, err := NewHandler(cfg)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	if err := h.Open(context.Background(), "SESSIONID"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestOpenTwiceRejected(t *testing.T) {
	h, _, _, done := newHandlerTest(t)
	defer done()

	if err := h.Open(context.Background(), "SESSIONID"); !errors.Is(err, ErrAlreadyOpened) {
		t.Fatalf("expected ErrAlreadyOpened, got %v", err)
	}
}

func TestLifecycleMethodsRequireOpen(t *testing.T) {
	h, err := NewHandler(testConfig("127.0.0.1:6379"))
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	ctx := context.Background()

	if _, err := h.Read(ctx, "abc"); !errors.Is(err, ErrNotOpened) {
		t.Fatalf("read: expected ErrNotOpened, got %v", err)
	}
	if err := h.Write(ctx, "abc", "x"); !errors.Is(err, ErrNotOpened) {
		t.Fatalf("write: expected ErrNotOpened, got %v", err)
	}
	if _, err := h.Validate(ctx, "abc"); !errors.Is(err, ErrNotOpened) {
		t.Fatalf("validate: expected ErrNotOpened, got %v", err)
	}
	if err := h.Destroy(ctx, "abc"); !errors.Is(err, ErrNotOpened) {
		t.Fatalf("destroy: expected ErrNotOpened, got %v", err)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	h, _, mr, done := newHandlerTest(t)
	defer done()
	ctx := context.Background()

	if err := h.Write(ctx, "abc", "user=42|cart=3"); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := h.Read(ctx, "abc")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if data != "user=42|cart=3" {
		t.Fatalf("round trip mismatch: %q", data)
	}
	if ttl := mr.TTL("sess:abc"); ttl != 1440*time.Second {
		t.Fatalf("expected session TTL on record, got %v", ttl)
	}
}

func TestReadFreshIDSkipsStore(t *testing.T) {
	h, rdb, _, done := newHandlerTest(t)
	defer done()
	ctx := context.Background()

	id, err := h.CreateID(ctx)
	if err != nil {
		t.Fatalf("create id: %v", err)
	}
	data, err := h.Read(ctx, id)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if data != "" {
		t.Fatalf("expected empty payload for fresh id, got %q", data)
	}

	// Lock was still taken; no record key appeared.
	if n, _ := rdb.Exists(ctx, "sess:"+id+"_lock").Result(); n != 1 {
		t.Fatal("expected lock key for fresh id")
	}
	if n, _ := rdb.Exists(ctx, "sess:"+id).Result(); n != 0 {
		t.Fatal("fresh id read must not create a record")
	}
}

func TestReadMissingRecordReturnsEmpty(t *testing.T) {
	h, _, _, done := newHandlerTest(t)
	defer done()

	data, err := h.Read(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if data != "" {
		t.Fatalf("expected empty payload, got %q", data)
	}
}

func TestValidateAndRegenerateScenario(t *testing.T) {
	rec := &recordingIssuer{}
	h, rdb, _, done := newHandlerTest(t, WithCookieIssuer(rec))
	defer done()
	ctx := context.Background()

	// Externally supplied id with no backing record: untrustworthy.
	ok, err := h.Validate(ctx, "abc")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if ok {
		t.Fatal("expected validation failure for unknown external id")
	}

	newID, err := h.Regenerate(ctx)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if newID == "" || newID == "abc" {
		t.Fatalf("unexpected regenerated id %q", newID)
	}
	if rec.calls != 1 || rec.name != "SESSIONID" || rec.value != newID {
		t.Fatalf("cookie not overwritten: %+v", rec)
	}
	if !rec.expiresAt.IsZero() {
		t.Fatalf("expected session-scoped cookie, got expiry %v", rec.expiresAt)
	}
	if rec.path != "/" || !rec.httpOnly {
		t.Fatalf("cookie attributes not preserved: %+v", rec)
	}

	// The fresh id is trusted without a store lookup.
	ok, err = h.Validate(ctx, newID)
	if err != nil {
		t.Fatalf("validate new id: %v", err)
	}
	if !ok {
		t.Fatal("freshly minted id must validate")
	}
	data, err := h.Read(ctx, newID)
	if err != nil {
		t.Fatalf("read new id: %v", err)
	}
	if data != "" {
		t.Fatalf("expected empty payload, got %q", data)
	}
	if n, _ := rdb.Exists(ctx, "sess:"+newID).Result(); n != 0 {
		t.Fatal("fresh id read must not touch the store")
	}
}

func TestRegenerateCookieLifetime(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()

	rec := &recordingIssuer{}
	cfg := testConfig(mr.Addr())
	cfg.Session.Cookie.Lifetime = time.Hour
	h, err := NewHandler(cfg, WithCookieIssuer(rec))
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	ctx := context.Background()
	if err := h.Open(ctx, "SESSIONID"); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer h.Close(ctx)

	before := time.Now()
	if _, err := h.Regenerate(ctx); err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if rec.expiresAt.Before(before.Add(59*time.Minute)) || rec.expiresAt.After(before.Add(61*time.Minute)) {
		t.Fatalf("expected absolute expiry near now+1h, got %v", rec.expiresAt)
	}
}

func TestValidatePassesOnceRecordExists(t *testing.T) {
	h, _, _, done := newHandlerTest(t)
	defer done()
	ctx := context.Background()

	ok, err := h.Validate(ctx, "abc")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if ok {
		t.Fatal("expected failure before record exists")
	}

	if err := h.Write(ctx, "abc", "payload"); err != nil {
		t.Fatalf("write: %v", err)
	}
	ok, err = h.Validate(ctx, "abc")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !ok {
		t.Fatal("expected success once a record exists")
	}
}

func TestUpdateTimestampRefreshesTTLOnly(t *testing.T) {
	h, _, mr, done := newHandlerTest(t)
	defer done()
	ctx := context.Background()

	if err := h.Write(ctx, "abc", "payload"); err != nil {
		t.Fatalf("write: %v", err)
	}
	mr.FastForward(1000 * time.Second)
	if ttl := mr.TTL("sess:abc"); ttl != 440*time.Second {
		t.Fatalf("expected decayed TTL 440s, got %v", ttl)
	}

	if err := h.UpdateTimestamp(ctx, "abc"); err != nil {
		t.Fatalf("update timestamp: %v", err)
	}
	if ttl := mr.TTL("sess:abc"); ttl != 1440*time.Second {
		t.Fatalf("expected refreshed TTL, got %v", ttl)
	}
	data, err := h.Read(ctx, "abc")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if data != "payload" {
		t.Fatalf("payload changed by refresh: %q", data)
	}

	// Missing record: nothing to refresh, not an error.
	if err := h.UpdateTimestamp(ctx, "ghost"); err != nil {
		t.Fatalf("update timestamp on missing record: %v", err)
	}
}

func TestDestroyRemovesRecordAndLock(t *testing.T) {
	h, rdb, _, done := newHandlerTest(t)
	defer done()
	ctx := context.Background()

	if err := h.Write(ctx, "abc", "payload"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := h.Read(ctx, "abc"); err != nil {
		t.Fatalf("read: %v", err)
	}

	if err := h.Destroy(ctx, "abc"); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	for _, key := range []string{"sess:abc", "sess:abc_lock"} {
		n, err := rdb.Exists(ctx, key).Result()
		if err != nil {
			t.Fatalf("exists: %v", err)
		}
		if n != 0 {
			t.Fatalf("key %s survived destroy", key)
		}
	}

	// Destroying again is fine; absence is not an error.
	if err := h.Destroy(ctx, "abc"); err != nil {
		t.Fatalf("second destroy: %v", err)
	}

	// The destroyed id now fails validation and reads back empty.
	ok, err := h.Validate(ctx, "abc")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if ok {
		t.Fatal("destroyed id must require regeneration")
	}
	data, err := h.Read(ctx, "abc")
	if err != nil {
		t.Fatalf("read after destroy: %v", err)
	}
	if data != "" {
		t.Fatalf("expected empty payload, got %q", data)
	}
}

func TestCloseReleasesAllLocksAndIsIdempotent(t *testing.T) {
	h, rdb, _, done := newHandlerTest(t)
	defer done()
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if _, err := h.Read(ctx, id); err != nil {
			t.Fatalf("read %s: %v", id, err)
		}
	}

	if err := h.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	for _, id := range []string{"a", "b"} {
		n, err := rdb.Exists(ctx, "sess:"+id+"_lock").Result()
		if err != nil {
			t.Fatalf("exists: %v", err)
		}
		if n != 0 {
			t.Fatalf("lock %s survived close", id)
		}
	}

	if err := h.Close(ctx); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := h.Read(ctx, "a"); !errors.Is(err, ErrHandlerClosed) {
		t.Fatalf("expected ErrHandlerClosed after close, got %v", err)
	}
}

func TestGCIsANoOp(t *testing.T) {
	h, rdb, _, done := newHandlerTest(t)
	defer done()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := h.Write(ctx, id, "payload"); err != nil {
			t.Fatalf("write %s: %v", id, err)
		}
	}

	if err := h.GC(ctx, time.Nanosecond); err != nil {
		t.Fatalf("gc: %v", err)
	}
	for _, id := range []string{"a", "b", "c"} {
		n, err := rdb.Exists(ctx, "sess:"+id).Result()
		if err != nil {
			t.Fatalf("exists: %v", err)
		}
		if n != 1 {
			t.Fatalf("gc deleted record %s", id)
		}
	}
}

func TestMutualExclusionAcrossHandlers(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()
	ctx := context.Background()

	holder, err := NewHandler(testConfig(mr.Addr()))
	if err != nil {
		t.Fatalf("new holder: %v", err)
	}
	if err := holder.Open(ctx, "SESSIONID"); err != nil {
		t.Fatalf("open holder: %v", err)
	}
	if _, err := holder.Read(ctx, "abc"); err != nil {
		t.Fatalf("holder read: %v", err)
	}

	cfg := testConfig(mr.Addr())
	cfg.Lock.AcquireTimeout = 20 * time.Millisecond
	contender, err := NewHandler(cfg)
	if err != nil {
		t.Fatalf("new contender: %v", err)
	}
	if err := contender.Open(ctx, "SESSIONID"); err != nil {
		t.Fatalf("open contender: %v", err)
	}
	defer contender.Close(ctx)

	if _, err := contender.Read(ctx, "abc"); !errors.Is(err, lock.ErrAcquireAborted) {
		t.Fatalf("expected aborted acquisition while lock held, got %v", err)
	}

	if err := holder.Close(ctx); err != nil {
		t.Fatalf("holder close: %v", err)
	}
	if _, err := contender.Read(ctx, "abc"); err != nil {
		t.Fatalf("read after holder close: %v", err)
	}
}

func TestMetricsCountLifecycleEvents(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	h, _, _, done := newHandlerTest(t, WithMetrics(m))
	defer done()
	ctx := context.Background()

	if err := h.Write(ctx, "abc", "x"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := h.Read(ctx, "abc"); err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := h.Destroy(ctx, "abc"); err != nil {
		t.Fatalf("destroy: %v", err)
	}

	if got := m.Value(MetricSessionOpened); got != 1 {
		t.Fatalf("opened counter = %d", got)
	}
	if got := m.Value(MetricSessionWritten); got != 1 {
		t.Fatalf("written counter = %d", got)
	}
	if got := m.Value(MetricSessionRead); got != 1 {
		t.Fatalf("read counter = %d", got)
	}
	if got := m.Value(MetricLockAcquired); got != 1 {
		t.Fatalf("lock acquired counter = %d", got)
	}
	if got := m.Value(MetricSessionDestroyed); got != 1 {
		t.Fatalf("destroyed counter = %d", got)
	}
}
