package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/habit-tracker/internal/metrics"
	"github.com/sakif/habit-tracker/internal/model"
)

// Standings caches ranked leaderboard standings as JSON.
//
// Every leaderboard has a generation counter. Entries are stored under the
// generation that was current before the roster was read, and Invalidate
// bumps the counter, so standings computed from a roster that changed
// mid-read are written under a key no later reader looks up. Entries expire
// after ttl either way.
type Standings struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStandings returns a cache over rdb. A nil rdb or a zero ttl gives a
// cache that always misses.
func NewStandings(rdb *redis.Client, ttl time.Duration) *Standings {
	return &Standings{rdb: rdb, ttl: ttl}
}

func standingsKey(leaderboardID string, gen int64) string {
	return fmt.Sprintf("leaderboard:standings:%s:%d", leaderboardID, gen)
}

func generationKey(leaderboardID string) string {
	return "leaderboard:generation:" + leaderboardID
}

// generationTTL outlives every entry, so an expired counter that restarts at
// zero can't resurrect an old entry.
func (s *Standings) generationTTL() time.Duration {
	return s.ttl + 24*time.Hour
}

func (s *Standings) enabled() bool {
	return s != nil && s.rdb != nil && s.ttl > 0
}

// Generation returns the leaderboard's current generation. Read it before
// loading the roster. ok is false when the cache is disabled or Redis fails;
// skip caching then.
func (s *Standings) Generation(ctx context.Context, leaderboardID string) (int64, bool) {
	if !s.enabled() {
		return 0, false
	}
	gen, err := s.rdb.Get(ctx, generationKey(leaderboardID)).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, true
	case err != nil:
		return 0, false
	}
	return gen, true
}

// Get returns standings cached at gen. Any Redis error is treated as a miss.
func (s *Standings) Get(ctx context.Context, leaderboardID string, gen int64) ([]model.Standing, bool) {
	if !s.enabled() {
		return nil, false
	}

	raw, err := s.rdb.Get(ctx, standingsKey(leaderboardID, gen)).Bytes()
	if err != nil {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}

	var standings []model.Standing
	if err := json.Unmarshal(raw, &standings); err != nil {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return standings, true
}

// Put stores standings at gen for ttl.
func (s *Standings) Put(ctx context.Context, leaderboardID string, gen int64, standings []model.Standing) error {
	if !s.enabled() {
		return nil
	}
	raw, err := json.Marshal(standings)
	if err != nil {
		return fmt.Errorf("cache: encoding standings: %w", err)
	}
	if err := s.rdb.Set(ctx, standingsKey(leaderboardID, gen), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("cache: storing standings for %s: %w", leaderboardID, err)
	}
	return nil
}

// Invalidate moves the given leaderboards to a new generation.
func (s *Standings) Invalidate(ctx context.Context, leaderboardIDs ...string) error {
	if !s.enabled() || len(leaderboardIDs) == 0 {
		return nil
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range leaderboardIDs {
			pipe.Incr(ctx, generationKey(id))
			pipe.Expire(ctx, generationKey(id), s.generationTTL())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache: invalidating standings: %w", err)
	}
	return nil
}
