// Package metrics declares the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestDuration records request latency by method, chi route pattern and status.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "habits_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	// HabitCompletions counts completed habits by frequency.
	HabitCompletions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "habits_completions_total",
		Help: "Total number of habit completions",
	}, []string{"frequency"})

	// PointsAwarded counts points credited by habit completions.
	PointsAwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "habits_points_awarded_total",
		Help: "Total points awarded for habit completions",
	})

	// RequestsResolved counts friend and share request outcomes.
	// kind is "friend" or "share"; outcome is accepted, denied, noop or cancelled.
	RequestsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "habits_requests_resolved_total",
		Help: "Friend and share requests resolved, by kind and outcome",
	}, []string{"kind", "outcome"})

	// RequestsPruned counts pending requests removed by the retention job.
	RequestsPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "habits_requests_pruned_total",
		Help: "Pending requests deleted by the retention job",
	})

	// CacheLookups counts standings cache hits and misses.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "habits_standings_cache_lookups_total",
		Help: "Leaderboard standings cache lookups by result",
	}, []string{"result"})

	// RedisErrors counts failed Redis commands by command name.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "habits_redis_errors_total",
		Help: "Total number of Redis command errors",
	}, []string{"command"})

	// RemindersFired counts reminder notifications sent by the scheduler.
	RemindersFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "habits_reminders_fired_total",
		Help: "Habit reminders published",
	})
)
