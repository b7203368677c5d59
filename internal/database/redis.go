package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizrunner/internal/config"
)

const (
	connectAttempts = 5
	connectBackoff  = 2 * time.Second
)

// NewRedisClient creates a Redis client for the submit lock, the monitor
// channel and the ledger queue, and waits for it to answer a ping.
func NewRedisClient(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	// BLPop in the ledger worker blocks up to PollTimeout; reads must outlast it.
	opt.ReadTimeout = 5 * time.Second

	rdb := redis.NewClient(opt)

	ping := func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	if err := waitReady(ctx, log.With().Str("store", "redis").Logger(), ping); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info().
		Str("addr", opt.Addr).
		Int("db", opt.DB).
		Msg("Redis connected")

	return rdb, nil
}

// waitReady retries ping while the store is still starting up.
func waitReady(ctx context.Context, log zerolog.Logger, ping func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err = ping(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("Store not ready, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(connectBackoff):
		}
	}
	return err
}
