package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/sakif/habit-tracker/internal/apperror"
	"github.com/sakif/habit-tracker/internal/model"
	"github.com/sakif/habit-tracker/internal/repository"
)

const MaxLeaderboardNameLength = 100

// LeaderboardService manages leaderboards and their rosters.
//
// Membership changes and manual point adjustments are admin-only, checked
// here against the stored admin id. Roster entries are keyed by user id; the
// participant names callers pass in are resolved against the roster's
// current display names.
type LeaderboardService struct {
	boards    repository.LeaderboardRepository
	users     repository.UserRepository
	standings StandingsCache
	logger    *slog.Logger
}

func NewLeaderboardService(
	boards repository.LeaderboardRepository,
	users repository.UserRepository,
	standings StandingsCache,
	logger *slog.Logger,
) *LeaderboardService {
	if standings == nil {
		standings = noopCache{}
	}
	return &LeaderboardService{
		boards:    boards,
		users:     users,
		standings: standings,
		logger:    logger,
	}
}

// Create makes a leaderboard administered by adminID. Every name must
// resolve to exactly one account; the roster keeps the given order, starts
// at zero points, and gets the creator appended when not already listed.
func (s *LeaderboardService) Create(ctx context.Context, adminID, name string, participantNames []string) (*model.Leaderboard, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "leaderboard name is required")
	}
	if len(name) > MaxLeaderboardNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("leaderboard name must be %d characters or fewer", MaxLeaderboardNameLength))
	}

	admin, err := s.users.GetUserByID(ctx, adminID)
	if err != nil {
		return nil, fmt.Errorf("service/leaderboard: loading admin %s: %w", adminID, err)
	}

	lb := &model.Leaderboard{Name: name, AdminID: admin.ID}
	seen := make(map[string]bool)
	for _, n := range participantNames {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true

		u, err := resolveUser(ctx, s.users, n)
		if err != nil {
			return nil, err
		}
		lb.Participants = append(lb.Participants, model.Participant{UserID: u.ID, DisplayName: u.DisplayName})
	}
	if !lb.HasMember(admin.ID) {
		lb.Participants = append(lb.Participants, model.Participant{UserID: admin.ID, DisplayName: admin.DisplayName})
	}

	if err := s.boards.CreateLeaderboard(ctx, lb); err != nil {
		return nil, fmt.Errorf("service/leaderboard: creating %q: %w", name, err)
	}

	s.logger.Info("leaderboard created",
		slog.String("leaderboardID", lb.ID),
		slog.String("adminID", admin.ID),
		slog.Int("participants", len(lb.Participants)),
	)
	return lb, nil
}

// Get returns a leaderboard visible to userID (its admin or a participant).
func (s *LeaderboardService) Get(ctx context.Context, userID, id string) (*model.Leaderboard, error) {
	lb, err := s.boards.GetLeaderboard(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/leaderboard: getting %s: %w", id, err)
	}
	if lb.AdminID != userID && !lb.HasMember(userID) {
		return nil, apperror.Forbidden("you are not on this leaderboard")
	}
	return lb, nil
}

// Standings returns the roster ranked by points. Served from the cache when
// possible. The cache generation is read before the roster so standings built
// from a roster that changes underneath are filed under a superseded
// generation.
func (s *LeaderboardService) Standings(ctx context.Context, userID, id string) ([]model.Standing, error) {
	gen, cacheable := s.standings.Generation(ctx, id)

	lb, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !cacheable {
		return Rank(lb.Participants), nil
	}
	if cached, ok := s.standings.Get(ctx, id, gen); ok {
		return cached, nil
	}

	ranked := Rank(lb.Participants)
	if err := s.standings.Put(ctx, id, gen, ranked); err != nil {
		s.logger.Warn("caching standings failed",
			slog.String("leaderboardID", id),
			slog.String("error", err.Error()),
		)
	}
	return ranked, nil
}

// Rank orders participants by points, highest first. Equal totals share a
// rank and keep their roster order; the next rank skips (1, 1, 3).
func Rank(participants []model.Participant) []model.Standing {
	standings := make([]model.Standing, len(participants))
	for i, p := range participants {
		standings[i] = model.Standing{Participant: p}
	}
	slices.SortStableFunc(standings, func(a, b model.Standing) int {
		return b.Points - a.Points
	})
	for i := range standings {
		if i > 0 && standings[i].Points == standings[i-1].Points {
			standings[i].Rank = standings[i-1].Rank
		} else {
			standings[i].Rank = i + 1
		}
	}
	return standings
}

func (s *LeaderboardService) ListForUser(ctx context.Context, userID string) ([]model.Leaderboard, error) {
	boards, err := s.boards.ListLeaderboardsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/leaderboard: listing for %s: %w", userID, err)
	}
	if boards == nil {
		boards = []model.Leaderboard{}
	}
	return boards, nil
}

// adminOnly loads the leaderboard and checks callerID administers it.
func (s *LeaderboardService) adminOnly(ctx context.Context, callerID, id string) (*model.Leaderboard, error) {
	lb, err := s.boards.GetLeaderboard(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/leaderboard: getting %s: %w", id, err)
	}
	if lb.AdminID != callerID {
		return nil, apperror.Forbidden("only the leaderboard admin can do that")
	}
	return lb, nil
}

// AddParticipant appends the account named displayName to the roster.
func (s *LeaderboardService) AddParticipant(ctx context.Context, callerID, id, displayName string) (*model.Leaderboard, error) {
	lb, err := s.adminOnly(ctx, callerID, id)
	if err != nil {
		return nil, err
	}
	u, err := resolveUser(ctx, s.users, displayName)
	if err != nil {
		return nil, err
	}
	if len(lb.ParticipantsNamed(u.DisplayName)) > 0 && !lb.HasMember(u.ID) {
		return nil, apperror.Conflict(fmt.Sprintf("another participant is already named %q", u.DisplayName))
	}

	if err := s.boards.AddParticipant(ctx, id, u.ID); err != nil {
		return nil, fmt.Errorf("service/leaderboard: adding %s: %w", u.ID, err)
	}
	s.invalidate(ctx, id)
	return s.boards.GetLeaderboard(ctx, id)
}

// RemoveParticipant drops the participant named participantName.
func (s *LeaderboardService) RemoveParticipant(ctx context.Context, callerID, id, participantName string) (*model.Leaderboard, error) {
	lb, err := s.adminOnly(ctx, callerID, id)
	if err != nil {
		return nil, err
	}
	p, err := findParticipant(lb, participantName)
	if err != nil {
		return nil, err
	}

	if err := s.boards.RemoveParticipant(ctx, id, p.UserID); err != nil {
		return nil, fmt.Errorf("service/leaderboard: removing %s: %w", p.UserID, err)
	}
	s.invalidate(ctx, id)
	return s.boards.GetLeaderboard(ctx, id)
}

// AddPoints adds amount to the named participant's total and returns the new
// total. Adjustments compose additively.
func (s *LeaderboardService) AddPoints(ctx context.Context, callerID, id, participantName string, amount int) (int, error) {
	if amount <= 0 {
		return 0, apperror.ValidationFailed("points", "points must be a positive number")
	}
	return s.adjust(ctx, callerID, id, participantName, amount)
}

// RemovePoints subtracts amount. Totals may go negative; nothing clamps them.
func (s *LeaderboardService) RemovePoints(ctx context.Context, callerID, id, participantName string, amount int) (int, error) {
	if amount <= 0 {
		return 0, apperror.ValidationFailed("points", "points must be a positive number")
	}
	return s.adjust(ctx, callerID, id, participantName, -amount)
}

// findParticipant resolves a display name to exactly one roster entry.
func findParticipant(lb *model.Leaderboard, name string) (model.Participant, error) {
	matches := lb.ParticipantsNamed(name)
	switch len(matches) {
	case 0:
		return model.Participant{}, apperror.NotFoundByName("participant", name)
	case 1:
		return matches[0], nil
	default:
		return model.Participant{}, apperror.Conflict(
			fmt.Sprintf("more than one participant is named %q", name))
	}
}

func (s *LeaderboardService) adjust(ctx context.Context, callerID, id, participantName string, delta int) (int, error) {
	lb, err := s.adminOnly(ctx, callerID, id)
	if err != nil {
		return 0, err
	}
	p, err := findParticipant(lb, participantName)
	if err != nil {
		return 0, err
	}

	total, err := s.boards.AdjustPoints(ctx, id, p.UserID, delta)
	if err != nil {
		return 0, fmt.Errorf("service/leaderboard: adjusting %s: %w", p.UserID, err)
	}
	s.invalidate(ctx, id)

	s.logger.Info("points adjusted",
		slog.String("leaderboardID", id),
		slog.String("participant", p.UserID),
		slog.Int("delta", delta),
		slog.Int("total", total),
	)
	return total, nil
}

// Delete removes a leaderboard. Admin only.
func (s *LeaderboardService) Delete(ctx context.Context, callerID, id string) error {
	if _, err := s.adminOnly(ctx, callerID, id); err != nil {
		return err
	}
	if err := s.boards.DeleteLeaderboard(ctx, id); err != nil {
		return fmt.Errorf("service/leaderboard: deleting %s: %w", id, err)
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *LeaderboardService) invalidate(ctx context.Context, id string) {
	if err := s.standings.Invalidate(ctx, id); err != nil {
		s.logger.Warn("standings cache invalidation failed",
			slog.String("leaderboardID", id),
			slog.String("error", err.Error()),
		)
	}
}
