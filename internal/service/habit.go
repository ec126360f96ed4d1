package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sakif/habit-tracker/internal/apperror"
	"github.com/sakif/habit-tracker/internal/metrics"
	"github.com/sakif/habit-tracker/internal/model"
	"github.com/sakif/habit-tracker/internal/repository"
	"github.com/sakif/habit-tracker/internal/rewards"
)

const (
	MaxHabitNameLength   = 100
	MaxDescriptionLength = 1000
)

// HabitInput carries the editable fields of a habit.
type HabitInput struct {
	Name        string
	Description string
	Frequency   model.Frequency
	StartTime   time.Time // zero means now
	EndTime     *time.Time
	BasePoints  int
	Reminders   *bool // nil means on
}

// Completion is the outcome of completing a habit.
type Completion struct {
	Habit        *model.Habit `json:"habit"`
	Awarded      int          `json:"awarded"`
	Leaderboards []string     `json:"leaderboards"` // ids credited with Awarded
}

// RewardPreview is what completing a habit now would earn.
type RewardPreview struct {
	Points      int  `json:"points"`
	StreakBonus int  `json:"streakBonus"`
	Total       int  `json:"total"`
	NextStreak  int  `json:"nextStreak"`
	Available   bool `json:"available"` // false when already completed this period or ended
}

// HabitService manages habits, completions and share grants.
type HabitService struct {
	habits    repository.HabitRepository
	shares    repository.ShareRepository
	reminders ReminderScheduler
	standings StandingsCache
	logger    *slog.Logger
	now       func() time.Time

	// completeMu serialises completions so two concurrent requests can't both
	// pass the once-per-period check and double-credit leaderboards.
	completeMu sync.Mutex
}

func NewHabitService(
	habits repository.HabitRepository,
	shares repository.ShareRepository,
	reminders ReminderScheduler,
	standings StandingsCache,
	logger *slog.Logger,
) *HabitService {
	if reminders == nil {
		reminders = noopScheduler{}
	}
	if standings == nil {
		standings = noopCache{}
	}
	return &HabitService{
		habits:    habits,
		shares:    shares,
		reminders: reminders,
		standings: standings,
		logger:    logger,
		now:       utcNow,
	}
}

func (s *HabitService) validate(in *HabitInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)

	if in.Name == "" {
		return apperror.ValidationFailed("name", "habit name is required")
	}
	if len(in.Name) > MaxHabitNameLength {
		return apperror.ValidationFailed("name",
			fmt.Sprintf("habit name must be %d characters or fewer", MaxHabitNameLength))
	}
	if len(in.Description) > MaxDescriptionLength {
		return apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or fewer", MaxDescriptionLength))
	}
	in.Frequency = model.Frequency(strings.ToLower(strings.TrimSpace(string(in.Frequency))))
	if in.Frequency == "none" || in.Frequency == "once" {
		in.Frequency = model.FrequencyNone
	}
	if !in.Frequency.Valid() {
		return apperror.ValidationFailed("frequency", "frequency must be daily, weekly, monthly or empty")
	}
	if in.BasePoints < 0 {
		return apperror.ValidationFailed("basePoints", "base points cannot be negative")
	}
	if in.StartTime.IsZero() {
		in.StartTime = s.now()
	}
	if in.EndTime != nil && !in.EndTime.After(in.StartTime) {
		return apperror.ValidationFailed("endTime", "end time must be after start time")
	}
	return nil
}

// Create adds a habit owned by ownerID and schedules its reminder.
func (s *HabitService) Create(ctx context.Context, ownerID string, in HabitInput) (*model.Habit, error) {
	if err := s.validate(&in); err != nil {
		return nil, err
	}

	h := &model.Habit{
		OwnerID:     ownerID,
		Name:        in.Name,
		Description: in.Description,
		Frequency:   in.Frequency,
		StartTime:   in.StartTime.UTC(),
		EndTime:     utcPtr(in.EndTime),
		BasePoints:  in.BasePoints,
		Reminders:   in.Reminders == nil || *in.Reminders,
	}
	if err := s.habits.CreateHabit(ctx, h); err != nil {
		return nil, fmt.Errorf("service/habit: creating habit: %w", err)
	}

	s.schedule(*h)
	s.logger.Info("habit created",
		slog.String("habitID", h.ID),
		slog.String("ownerID", ownerID),
	)
	return h, nil
}

// Get returns a habit the user owns or has been granted. Habits the user
// can't see are reported as not found.
func (s *HabitService) Get(ctx context.Context, userID, id string) (*model.Habit, error) {
	ok, err := s.habits.HasHabitAccess(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("service/habit: checking access to %s: %w", id, err)
	}
	if !ok {
		return nil, apperror.NotFound("habit", id)
	}

	h, err := s.habits.GetHabitByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/habit: getting %s: %w", id, err)
	}
	if h.OwnerID != userID {
		h.SharedWith = nil
	}
	refreshed := rewards.Refresh(*h, s.now())
	return &refreshed, nil
}

// List returns owned habits followed by habits shared with the user.
func (s *HabitService) List(ctx context.Context, userID string) ([]model.Habit, error) {
	habits, err := s.habits.ListHabitsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/habit: listing habits for %s: %w", userID, err)
	}
	now := s.now()
	for i := range habits {
		habits[i] = rewards.Refresh(habits[i], now)
	}
	if habits == nil {
		habits = []model.Habit{}
	}
	return habits, nil
}

// owned loads a habit for a mutation by its owner. Grantees get forbidden,
// strangers not found.
func (s *HabitService) owned(ctx context.Context, userID, id string) (*model.Habit, error) {
	h, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if h.OwnerID != userID {
		return nil, apperror.Forbidden("only the owner can change this habit")
	}
	return h, nil
}

// Update replaces the editable fields. Streak and completion state are kept.
func (s *HabitService) Update(ctx context.Context, userID, id string, in HabitInput) (*model.Habit, error) {
	h, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if in.StartTime.IsZero() {
		in.StartTime = h.StartTime
	}
	if err := s.validate(&in); err != nil {
		return nil, err
	}

	h.Name = in.Name
	h.Description = in.Description
	h.Frequency = in.Frequency
	h.StartTime = in.StartTime.UTC()
	h.EndTime = utcPtr(in.EndTime)
	h.BasePoints = in.BasePoints
	if in.Reminders != nil {
		h.Reminders = *in.Reminders
	}

	if err := s.habits.UpdateHabit(ctx, h); err != nil {
		return nil, fmt.Errorf("service/habit: updating %s: %w", id, err)
	}

	s.schedule(*h)
	refreshed := rewards.Refresh(*h, s.now())
	return &refreshed, nil
}

// Delete removes a habit together with its grants and pending share requests.
func (s *HabitService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	if err := s.habits.DeleteHabit(ctx, id); err != nil {
		return fmt.Errorf("service/habit: deleting %s: %w", id, err)
	}
	s.reminders.UnscheduleHabit(id)
	s.logger.Info("habit deleted", slog.String("habitID", id))
	return nil
}

// Complete marks the habit done for the current period, advances its streak
// and credits the award to every leaderboard the owner is on.
//
// The bonus is computed from the streak after this completion, so the 7th
// consecutive completion is the first to earn the week bonus.
func (s *HabitService) Complete(ctx context.Context, userID, id string) (*Completion, error) {
	s.completeMu.Lock()
	defer s.completeMu.Unlock()

	h, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	done, err := rewards.ApplyCompletion(*h, s.now())
	if err != nil {
		return nil, completionError(err)
	}
	awarded := rewards.Award(done)

	credited, err := s.habits.RecordCompletion(ctx, &done, awarded)
	if err != nil {
		return nil, fmt.Errorf("service/habit: recording completion of %s: %w", id, err)
	}

	if err := s.standings.Invalidate(ctx, credited...); err != nil {
		s.logger.Warn("standings cache invalidation failed", slog.String("error", err.Error()))
	}
	metrics.HabitCompletions.WithLabelValues(frequencyLabel(done.Frequency)).Inc()
	metrics.PointsAwarded.Add(float64(awarded))

	s.logger.Info("habit completed",
		slog.String("habitID", id),
		slog.Int("streak", done.CurrentStreak),
		slog.Int("awarded", awarded),
		slog.Int("leaderboards", len(credited)),
	)

	if credited == nil {
		credited = []string{}
	}
	return &Completion{Habit: &done, Awarded: awarded, Leaderboards: credited}, nil
}

// RewardPreview reports what completing the habit now would award, without
// changing anything.
func (s *HabitService) RewardPreview(ctx context.Context, userID, id string) (*RewardPreview, error) {
	h, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	next, err := rewards.ApplyCompletion(*h, s.now())
	if err != nil {
		if errors.Is(err, rewards.ErrAlreadyCompleted) || errors.Is(err, rewards.ErrHabitEnded) ||
			errors.Is(err, rewards.ErrNotStarted) {
			return &RewardPreview{NextStreak: h.CurrentStreak, Available: false}, nil
		}
		return nil, err
	}
	return &RewardPreview{
		Points:      rewards.PointsForCompletion(next),
		StreakBonus: rewards.StreakBonus(next),
		Total:       rewards.Award(next),
		NextStreak:  next.CurrentStreak,
		Available:   true,
	}, nil
}

// Unshare revokes granteeID's read access to the owner's habit.
func (s *HabitService) Unshare(ctx context.Context, ownerID, habitID, granteeID string) error {
	if _, err := s.owned(ctx, ownerID, habitID); err != nil {
		return err
	}
	if err := s.shares.RemoveShare(ctx, habitID, granteeID); err != nil {
		return fmt.Errorf("service/habit: unsharing %s from %s: %w", habitID, granteeID, err)
	}
	return nil
}

// ScheduleAll registers reminders for every recurring habit. Called once at
// start-up.
func (s *HabitService) ScheduleAll(ctx context.Context) (int, error) {
	habits, err := s.habits.ListReminderHabits(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("service/habit: loading reminder habits: %w", err)
	}
	for _, h := range habits {
		s.schedule(h)
	}
	return len(habits), nil
}

func (s *HabitService) schedule(h model.Habit) {
	if err := s.reminders.ScheduleHabit(h); err != nil {
		s.logger.Warn("scheduling reminder failed",
			slog.String("habitID", h.ID),
			slog.String("error", err.Error()),
		)
	}
}

func completionError(err error) error {
	switch {
	case errors.Is(err, rewards.ErrAlreadyCompleted):
		return apperror.Conflict("habit already completed for this period")
	case errors.Is(err, rewards.ErrHabitEnded):
		return apperror.Conflict("habit has ended")
	case errors.Is(err, rewards.ErrNotStarted):
		return apperror.Conflict("habit has not started yet")
	default:
		return err
	}
}

func frequencyLabel(f model.Frequency) string {
	if f == model.FrequencyNone {
		return "once"
	}
	return string(f)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
