package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/habit-tracker/internal/model"
	"github.com/sakif/habit-tracker/internal/notify"
	"github.com/sakif/habit-tracker/internal/repository/sqlite"
)

// =========================================================================
// SHARED HELPERS
// =========================================================================

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var userSeq atomic.Int64

// createUser stores an account with a unique email, so display names may repeat.
func createUser(t *testing.T, db *sqlite.DB, name string) *model.User {
	t.Helper()
	email := fmt.Sprintf("user%d@example.com", userSeq.Add(1))
	u := &model.User{DisplayName: name, Email: email, PasswordHash: "x"}
	require.NoError(t, db.CreateUser(context.Background(), u))
	return u
}

// recordingNotifier keeps every event per recipient.
type recordingNotifier struct {
	mu     sync.Mutex
	events map[string][]notify.Event
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{events: make(map[string][]notify.Event)}
}

func (n *recordingNotifier) Notify(_ context.Context, userID string, ev notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events[userID] = append(n.events[userID], ev)
}

func (n *recordingNotifier) For(userID string) []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Event(nil), n.events[userID]...)
}

type recordingScheduler struct {
	scheduled map[string]model.Habit
}

func newRecordingScheduler() *recordingScheduler {
	return &recordingScheduler{scheduled: make(map[string]model.Habit)}
}

func (s *recordingScheduler) ScheduleHabit(h model.Habit) error {
	s.scheduled[h.ID] = h
	return nil
}

func (s *recordingScheduler) UnscheduleHabit(habitID string) {
	delete(s.scheduled, habitID)
}

// mapCache is an in-process StandingsCache that counts invalidations. Only
// entries of the current generation are kept.
type mapCache struct {
	entries     map[string][]model.Standing
	gens        map[string]int64
	invalidated map[string]int
}

func newMapCache() *mapCache {
	return &mapCache{
		entries:     make(map[string][]model.Standing),
		gens:        make(map[string]int64),
		invalidated: make(map[string]int),
	}
}

func (c *mapCache) Generation(_ context.Context, id string) (int64, bool) {
	return c.gens[id], true
}

func (c *mapCache) Get(_ context.Context, id string, gen int64) ([]model.Standing, bool) {
	if gen != c.gens[id] {
		return nil, false
	}
	s, ok := c.entries[id]
	return s, ok
}

func (c *mapCache) Put(_ context.Context, id string, gen int64, s []model.Standing) error {
	if gen == c.gens[id] {
		c.entries[id] = s
	}
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, ids ...string) error {
	for _, id := range ids {
		delete(c.entries, id)
		c.gens[id]++
		c.invalidated[id]++
	}
	return nil
}

// clock is a settable time source for services with a now field.
type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }
