// Command redisession-loadtest hammers a small set of sessions with many
// concurrent request lifecycles (open → read → write → close) to measure
// lock-contention behavior and end-to-end latency percentiles.
//
// Without -redis-addr (or REDIS_ADDR) it boots an embedded miniredis, which
// is enough for relative comparisons of backoff settings.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	redisession "github.com/jhfangying/RedisSessionHandler"
)

func main() {
	var (
		sessions    = flag.Int("sessions", 16, "number of distinct sessions to contend over")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "total request lifecycles to run")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "sess:", "session key prefix")
		minWait     = flag.Duration("min-wait", time.Millisecond, "initial lock backoff interval")
		maxWait     = flag.Duration("max-wait", 128*time.Millisecond, "maximum lock backoff interval")
		verbose     = flag.Bool("v", false, "log handler events")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	logger := zerolog.Nop()
	if *verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	cfg := redisession.DefaultConfig()
	cfg.Connection.Addr = addr
	cfg.Connection.KeyPrefix = *prefix
	cfg.Lock.MinWait = *minWait
	cfg.Lock.MaxWait = *maxWait

	metrics := redisession.NewMetrics(redisession.MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	sessionIDs := make([]string, *sessions)
	for i := range sessionIDs {
		sessionIDs[i] = fmt.Sprintf("load-%04d", i)
	}

	fmt.Printf("running %d lifecycles over %d sessions with %d workers...\n", *ops, *sessions, *concurrency)

	latencies := make([]time.Duration, *ops)
	var (
		next     int64
		mu       sync.Mutex
		failures int
		wg       sync.WaitGroup
	)

	start := time.Now()
	for w := 0; w < *concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for {
				mu.Lock()
				op := int(next)
				next++
				mu.Unlock()
				if op >= *ops {
					return
				}

				id := sessionIDs[op%len(sessionIDs)]
				opStart := time.Now()
				if err := runLifecycle(ctx, cfg, client, metrics, logger, id, op); err != nil {
					mu.Lock()
					failures++
					mu.Unlock()
					logger.Warn().Err(err).Str("session_id", id).Msg("lifecycle failed")
					continue
				}
				latencies[op] = time.Since(opStart)
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	fmt.Printf("done in %v (%.0f lifecycles/s, %d failures)\n", elapsed, float64(*ops)/elapsed.Seconds(), failures)
	fmt.Printf("latency p50=%v p90=%v p99=%v max=%v\n",
		percentile(latencies, 0.50),
		percentile(latencies, 0.90),
		percentile(latencies, 0.99),
		latencies[len(latencies)-1],
	)

	snap := metrics.Snapshot()
	fmt.Printf("locks acquired=%d contended=%d aborted=%d\n",
		snap.Counters[redisession.MetricLockAcquired],
		snap.Counters[redisession.MetricLockContention],
		snap.Counters[redisession.MetricLockAborted],
	)
}

// runLifecycle performs one full request-shaped session interaction.
func runLifecycle(
	ctx context.Context,
	cfg redisession.Config,
	client redis.UniversalClient,
	metrics *redisession.Metrics,
	logger zerolog.Logger,
	id string,
	op int,
) error {
	h, err := redisession.NewHandler(cfg,
		redisession.WithClient(client),
		redisession.WithMetrics(metrics),
		redisession.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	if err := h.Open(ctx, "SESSIONID"); err != nil {
		return err
	}
	defer func() { _ = h.Close(ctx) }()

	if _, err := h.Read(ctx, id); err != nil {
		return err
	}
	return h.Write(ctx, id, fmt.Sprintf("op=%d", op))
}

func percentile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * q)
	return sorted[idx]
}
