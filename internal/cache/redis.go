// Package cache holds the optional Redis client and the leaderboard
// standings cache built on it.
//
// Redis is never required. When REDIS_URL is empty or the server can't be
// reached, Open returns nil and every consumer treats a nil client as "no
// cache": reads miss, writes are dropped, the app keeps working.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/habit-tracker/internal/metrics"
)

type metricsHook struct{}

func (metricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (metricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, redis.Nil) {
			metrics.RedisErrors.WithLabelValues(cmd.Name()).Inc()
		}
		return err
	}
}

func (metricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if err != nil && !errors.Is(err, redis.Nil) {
			metrics.RedisErrors.WithLabelValues("pipeline").Inc()
		}
		return err
	}
}

// Open connects to Redis. addr is either a redis:// URL or host:port.
// It returns nil (and logs why) when Redis is disabled or unreachable.
func Open(ctx context.Context, addr string, logger *slog.Logger) *redis.Client {
	if addr == "" {
		logger.Info("redis disabled (REDIS_URL not set)")
		return nil
	}

	var opts *redis.Options
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			logger.Warn("invalid REDIS_URL, continuing without redis", slog.String("error", err.Error()))
			return nil
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}

	client := redis.NewClient(opts)
	client.AddHook(metricsHook{})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, continuing without redis",
			slog.String("addr", opts.Addr),
			slog.String("error", err.Error()),
		)
		_ = client.Close()
		return nil
	}

	logger.Info("redis connected", slog.String("addr", opts.Addr))
	return client
}
