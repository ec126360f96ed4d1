// Package reminder schedules habit reminders and periodic maintenance jobs on
// a robfig/cron scheduler running in UTC.
//
// Recurring habits get one cron entry each, derived from the habit's
// frequency and start time. Reminders are delivered as notify events to the
// habit owner; presenting them on a device is the client's job.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sakif/habit-tracker/internal/metrics"
	"github.com/sakif/habit-tracker/internal/model"
	"github.com/sakif/habit-tracker/internal/notify"
)

// Notifier receives fired reminders. *notify.Publisher implements it.
type Notifier interface {
	Notify(ctx context.Context, userID string, ev notify.Event)
}

// ErrInPast is returned by ScheduleAt for a time that has already passed.
var ErrInPast = errors.New("reminder: time is in the past")

// Scheduler owns the cron instance and the habit → entry mapping.
type Scheduler struct {
	cron     *cron.Cron
	notifier Notifier
	logger   *slog.Logger

	mu     sync.Mutex
	habits map[string]cron.EntryID
}

// New creates a stopped scheduler. Call Start to begin firing.
func New(notifier Notifier, logger *slog.Logger) *Scheduler {
	cl := cronLogger{logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		notifier: notifier,
		logger:   logger,
		habits:   make(map[string]cron.EntryID),
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs, up to ctx's deadline.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("reminder scheduler stop timed out")
	}
}

// Len is the number of scheduled entries, jobs included.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Scheduled reports whether habitID currently has a recurring reminder.
func (s *Scheduler) Scheduled(habitID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.habits[habitID]
	return ok
}

// ScheduleAt fires ev to userID once at the given time.
func (s *Scheduler) ScheduleAt(at time.Time, userID string, ev notify.Event) (cron.EntryID, error) {
	return s.scheduleOnce(at, userID, ev, "")
}

// scheduleOnce adds a self-removing entry. A non-empty habitID is tracked
// like a recurring reminder until the entry fires.
func (s *Scheduler) scheduleOnce(at time.Time, userID string, ev notify.Event, habitID string) (cron.EntryID, error) {
	if !at.After(time.Now()) {
		return 0, ErrInPast
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	self := make(chan cron.EntryID, 1)
	id := s.cron.Schedule(onceSchedule{at: at.UTC()}, cron.FuncJob(func() {
		id := <-self
		s.fire(userID, ev)
		s.cron.Remove(id)
		if habitID != "" {
			s.forget(habitID, id)
		}
	}))
	self <- id
	if habitID != "" {
		s.habits[habitID] = id
	}
	return id, nil
}

// forget drops habitID's entry if it is still id.
func (s *Scheduler) forget(habitID string, id cron.EntryID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.habits[habitID] == id {
		delete(s.habits, habitID)
	}
}

// ScheduleHabit (re)schedules the reminder for h, replacing any previous
// entry. Recurring habits remind every period from their start time until
// their end time; a
// one-time habit starting in the future is reminded once at its start.
// Habits with reminders switched off, or nothing left to remind about, end
// up with no entry.
func (s *Scheduler) ScheduleHabit(h model.Habit) error {
	s.UnscheduleHabit(h.ID)

	now := time.Now()
	if !h.Reminders || h.Ended(now) {
		return nil
	}

	ev := reminderEvent(h)
	if h.IsOneTime() {
		if !h.StartTime.After(now) {
			return nil
		}
		if _, err := s.scheduleOnce(h.StartTime, h.OwnerID, ev, h.ID); err != nil {
			return fmt.Errorf("reminder: scheduling habit %s: %w", h.ID, err)
		}
		s.logger.Debug("one-time habit reminder scheduled",
			slog.String("habitID", h.ID),
			slog.Time("at", h.StartTime.UTC()),
		)
		return nil
	}

	spec, err := SpecFor(h)
	if err != nil {
		return err
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("reminder: parsing %q for habit %s: %w", spec, h.ID, err)
	}

	var end *time.Time
	if h.EndTime != nil {
		e := h.EndTime.UTC()
		end = &e
	}

	ownerID := h.OwnerID
	window := untilSchedule{next: sched, start: h.StartTime.UTC(), end: end}
	id := s.cron.Schedule(window, cron.FuncJob(func() {
		s.fire(ownerID, ev)
	}))

	s.mu.Lock()
	s.habits[h.ID] = id
	s.mu.Unlock()

	s.logger.Debug("habit reminder scheduled",
		slog.String("habitID", h.ID),
		slog.String("spec", spec),
	)
	return nil
}

func reminderEvent(h model.Habit) notify.Event {
	return notify.Event{
		Type:    notify.HabitReminder,
		Message: fmt.Sprintf("Time for %s", h.Name),
		RefID:   h.ID,
	}
}

// UnscheduleHabit removes the habit's reminder, if any.
func (s *Scheduler) UnscheduleHabit(habitID string) {
	s.mu.Lock()
	id, ok := s.habits[habitID]
	delete(s.habits, habitID)
	s.mu.Unlock()

	if ok {
		s.cron.Remove(id)
	}
}

// Every runs fn on a standard cron spec or "@every <duration>".
func (s *Scheduler) Every(spec string, fn func()) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(spec, fn)
	if err != nil {
		return 0, fmt.Errorf("reminder: adding job %q: %w", spec, err)
	}
	return id, nil
}

func (s *Scheduler) fire(userID string, ev notify.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ev.At = time.Now().UTC()
	s.notifier.Notify(ctx, userID, ev)
	metrics.RemindersFired.Inc()
}

// SpecFor derives the five-field cron spec for a recurring habit from its
// start time in UTC: daily at that clock time, weekly on that weekday,
// monthly on that day of the month. Months without that day are skipped.
func SpecFor(h model.Habit) (string, error) {
	start := h.StartTime.UTC()
	m, hr := start.Minute(), start.Hour()

	switch h.Frequency {
	case model.FrequencyDaily:
		return fmt.Sprintf("%d %d * * *", m, hr), nil
	case model.FrequencyWeekly:
		return fmt.Sprintf("%d %d * * %d", m, hr, int(start.Weekday())), nil
	case model.FrequencyMonthly:
		return fmt.Sprintf("%d %d %d * *", m, hr, start.Day()), nil
	default:
		return "", fmt.Errorf("reminder: habit %s has no recurrence", h.ID)
	}
}

// onceSchedule fires a single time.
type onceSchedule struct {
	at time.Time
}

func (o onceSchedule) Next(t time.Time) time.Time {
	if t.Before(o.at) {
		return o.at
	}
	return time.Time{}
}

// untilSchedule limits a schedule to [start, end). A zero Next never fires.
type untilSchedule struct {
	next  cron.Schedule
	start time.Time
	end   *time.Time
}

func (u untilSchedule) Next(t time.Time) time.Time {
	// cron schedules return the first activation strictly after their argument.
	if from := u.start.Truncate(time.Minute).Add(-time.Second); t.Before(from) {
		t = from
	}
	n := u.next.Next(t)
	if u.end != nil && !n.Before(*u.end) {
		return time.Time{}
	}
	return n
}

// cronLogger adapts slog to cron.Logger. Cron's info chatter goes to debug.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err.Error())...)
}
