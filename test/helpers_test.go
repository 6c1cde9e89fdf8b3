//go:build integration
// +build integration

package test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	redisession "github.com/jhfangying/RedisSessionHandler"
)

func newIntegrationRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	return mr, rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func integrationConfig(addr string) redisession.Config {
	cfg := redisession.DefaultConfig()
	cfg.Connection.Addr = addr
	cfg.Lock.MinWait = time.Millisecond
	cfg.Lock.MaxWait = 8 * time.Millisecond
	return cfg
}

func openHandler(t *testing.T, cfg redisession.Config, opts ...redisession.Option) *redisession.Handler {
	t.Helper()

	h, err := redisession.NewHandler(cfg, opts...)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	if err := h.Open(context.Background(), "SESSIONID"); err != nil {
		t.Fatalf("open: %v", err)
	}
	return h
}
