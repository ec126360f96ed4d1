package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/sakif/habit-tracker/internal/apperror"
	"github.com/sakif/habit-tracker/internal/metrics"
	"github.com/sakif/habit-tracker/internal/model"
	"github.com/sakif/habit-tracker/internal/notify"
	"github.com/sakif/habit-tracker/internal/repository"
)

// ShareService runs the habit share workflow. It has the same states as the
// friend workflow; accepting grants the recipient read access to the habit.
// The grant is an association, so the owner's later edits reach the grantee.
type ShareService struct {
	habits   repository.HabitRepository
	friends  repository.FriendRepository
	shares   repository.ShareRepository
	notifier Notifier
	logger   *slog.Logger
}

func NewShareService(
	habits repository.HabitRepository,
	friends repository.FriendRepository,
	shares repository.ShareRepository,
	notifier Notifier,
	logger *slog.Logger,
) *ShareService {
	return &ShareService{
		habits:   habits,
		friends:  friends,
		shares:   shares,
		notifier: orNoopNotifier(notifier),
		logger:   logger,
	}
}

// Send offers one of the sender's habits to one of their friends.
func (s *ShareService) Send(ctx context.Context, senderID, habitID, recipientID string) (*model.HabitShareRequest, error) {
	if habitID == "" {
		return nil, apperror.ValidationFailed("habitId", "habit id is required")
	}
	if recipientID == "" {
		return nil, apperror.ValidationFailed("friendId", "friend id is required")
	}
	if recipientID == senderID {
		return nil, apperror.ValidationFailed("friendId", "you can't share a habit with yourself")
	}

	h, err := s.habits.GetHabitByID(ctx, habitID)
	if err != nil {
		return nil, fmt.Errorf("service/share: loading habit %s: %w", habitID, err)
	}
	if h.OwnerID != senderID {
		return nil, s.notOwner(ctx, h.ID, senderID)
	}

	friends, err := s.friends.AreFriends(ctx, senderID, recipientID)
	if err != nil {
		return nil, fmt.Errorf("service/share: checking friendship: %w", err)
	}
	if !friends {
		return nil, apperror.Forbidden("you can only share habits with friends")
	}
	if slices.Contains(h.SharedWith, recipientID) {
		return nil, apperror.Conflict("this habit is already shared with that friend")
	}

	req := &model.HabitShareRequest{
		HabitID:     h.ID,
		HabitName:   h.Name,
		SenderID:    senderID,
		RecipientID: recipientID,
	}
	if err := s.shares.CreateShareRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("service/share: creating request: %w", err)
	}

	s.notifier.Notify(ctx, recipientID, notify.Event{
		Type:    notify.ShareRequestReceived,
		Message: fmt.Sprintf("A friend wants to share %q with you", h.Name),
		RefID:   req.ID,
	})
	s.logger.Info("share request sent",
		slog.String("requestID", req.ID),
		slog.String("habitID", h.ID),
		slog.String("recipientID", recipientID),
	)
	return req, nil
}

// notOwner answers a non-owner the way HabitService does: grantees are told
// they can't, strangers don't learn the habit exists.
func (s *ShareService) notOwner(ctx context.Context, habitID, userID string) error {
	granted, err := s.habits.HasHabitAccess(ctx, habitID, userID)
	if err != nil {
		return fmt.Errorf("service/share: checking access to %s: %w", habitID, err)
	}
	if granted {
		return apperror.Forbidden("you can only share your own habits")
	}
	return apperror.NotFound("habit", habitID)
}

func (s *ShareService) ListIncoming(ctx context.Context, userID string) ([]model.HabitShareRequest, error) {
	reqs, err := s.shares.ListIncomingShareRequests(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/share: listing incoming for %s: %w", userID, err)
	}
	if reqs == nil {
		reqs = []model.HabitShareRequest{}
	}
	return reqs, nil
}

// Respond accepts or denies a share request addressed to recipientID.
// Missing requests, and requests whose habit was deleted meanwhile, resolve
// as a no-op.
func (s *ShareService) Respond(ctx context.Context, recipientID, requestID string, accept bool) (*model.Resolution, error) {
	noop := &model.Resolution{RequestID: requestID}

	req, err := s.shares.GetShareRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			metrics.RequestsResolved.WithLabelValues("share", "noop").Inc()
			return noop, nil
		}
		return nil, fmt.Errorf("service/share: loading request %s: %w", requestID, err)
	}
	if req.RecipientID != recipientID {
		return nil, apperror.Forbidden("only the recipient can respond to this request")
	}

	resolved, err := s.shares.ResolveShareRequest(ctx, requestID, accept)
	if err != nil {
		return nil, fmt.Errorf("service/share: resolving %s: %w", requestID, err)
	}
	if !resolved {
		metrics.RequestsResolved.WithLabelValues("share", "noop").Inc()
		return noop, nil
	}

	status := model.StatusDenied
	if accept {
		status = model.StatusAccepted
		s.notifier.Notify(ctx, req.SenderID, notify.Event{
			Type:    notify.ShareRequestAccepted,
			Message: fmt.Sprintf("Your friend accepted %q", req.HabitName),
			RefID:   req.HabitID,
		})
	}
	metrics.RequestsResolved.WithLabelValues("share", string(status)).Inc()

	s.logger.Info("share request resolved",
		slog.String("requestID", requestID),
		slog.String("status", string(status)),
	)
	return &model.Resolution{RequestID: requestID, Resolved: true, Status: status}, nil
}

// Cancel withdraws a share request the caller sent.
func (s *ShareService) Cancel(ctx context.Context, senderID, requestID string) error {
	req, err := s.shares.GetShareRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("service/share: loading request %s: %w", requestID, err)
	}
	if req.SenderID != senderID {
		return apperror.Forbidden("only the sender can cancel this request")
	}
	ok, err := s.shares.DeleteShareRequest(ctx, requestID)
	if err != nil {
		return fmt.Errorf("service/share: cancelling %s: %w", requestID, err)
	}
	if ok {
		metrics.RequestsResolved.WithLabelValues("share", "cancelled").Inc()
	}
	return nil
}
