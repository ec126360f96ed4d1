package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/habit-tracker/internal/apperror"
	"github.com/sakif/habit-tracker/internal/metrics"
	"github.com/sakif/habit-tracker/internal/model"
	"github.com/sakif/habit-tracker/internal/notify"
	"github.com/sakif/habit-tracker/internal/repository"
)

// FriendService runs the friend request workflow:
//
//	NONE → PENDING → ACCEPTED (friendship stored both ways, request deleted)
//	               → DENIED   (request deleted)
//
// Only pending requests are stored. The delete inside ResolveFriendRequest is
// the authoritative resolution, so a second response to the same request sees
// nothing to delete and resolves as a no-op.
type FriendService struct {
	users    repository.UserRepository
	friends  repository.FriendRepository
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewFriendService(
	users repository.UserRepository,
	friends repository.FriendRepository,
	notifier Notifier,
	logger *slog.Logger,
) *FriendService {
	return &FriendService{
		users:    users,
		friends:  friends,
		notifier: orNoopNotifier(notifier),
		logger:   logger,
		now:      utcNow,
	}
}

// Send addresses a friend request to the account with recipientName.
//
// A repeat request while one is already pending is stored as a second
// request; accepting either one creates the friendship.
func (s *FriendService) Send(ctx context.Context, senderID, recipientName string) (*model.FriendRequest, error) {
	sender, err := s.users.GetUserByID(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("service/friend: loading sender %s: %w", senderID, err)
	}
	recipient, err := resolveUser(ctx, s.users, recipientName)
	if err != nil {
		return nil, err
	}
	if recipient.ID == sender.ID {
		return nil, apperror.ValidationFailed("name", "you can't send a friend request to yourself")
	}

	already, err := s.friends.AreFriends(ctx, sender.ID, recipient.ID)
	if err != nil {
		return nil, fmt.Errorf("service/friend: checking friendship: %w", err)
	}
	if already {
		return nil, apperror.Conflict(fmt.Sprintf("you are already friends with %s", recipient.DisplayName))
	}

	req := &model.FriendRequest{
		SenderID:    sender.ID,
		SenderName:  sender.DisplayName,
		RecipientID: recipient.ID,
	}
	if err := s.friends.CreateFriendRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("service/friend: creating request: %w", err)
	}

	s.notifier.Notify(ctx, recipient.ID, notify.Event{
		Type:    notify.FriendRequestReceived,
		Message: fmt.Sprintf("%s sent you a friend request", sender.DisplayName),
		RefID:   req.ID,
	})
	s.logger.Info("friend request sent",
		slog.String("requestID", req.ID),
		slog.String("senderID", sender.ID),
		slog.String("recipientID", recipient.ID),
	)
	return req, nil
}

func (s *FriendService) ListIncoming(ctx context.Context, userID string) ([]model.FriendRequest, error) {
	reqs, err := s.friends.ListIncomingFriendRequests(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/friend: listing incoming for %s: %w", userID, err)
	}
	if reqs == nil {
		reqs = []model.FriendRequest{}
	}
	return reqs, nil
}

func (s *FriendService) ListSent(ctx context.Context, userID string) ([]model.FriendRequest, error) {
	reqs, err := s.friends.ListSentFriendRequests(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/friend: listing sent for %s: %w", userID, err)
	}
	if reqs == nil {
		reqs = []model.FriendRequest{}
	}
	return reqs, nil
}

// Respond accepts or denies a request addressed to recipientID. A request
// that no longer exists resolves as a no-op (Resolved == false).
func (s *FriendService) Respond(ctx context.Context, recipientID, requestID string, accept bool) (*model.Resolution, error) {
	noop := &model.Resolution{RequestID: requestID}

	req, err := s.friends.GetFriendRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			metrics.RequestsResolved.WithLabelValues("friend", "noop").Inc()
			return noop, nil
		}
		return nil, fmt.Errorf("service/friend: loading request %s: %w", requestID, err)
	}
	if req.RecipientID != recipientID {
		return nil, apperror.Forbidden("only the recipient can respond to this request")
	}

	resolved, err := s.friends.ResolveFriendRequest(ctx, requestID, accept)
	if err != nil {
		return nil, fmt.Errorf("service/friend: resolving %s: %w", requestID, err)
	}
	if !resolved {
		metrics.RequestsResolved.WithLabelValues("friend", "noop").Inc()
		return noop, nil
	}

	status := model.StatusDenied
	if accept {
		status = model.StatusAccepted
		s.notifyAccepted(ctx, req)
	}
	metrics.RequestsResolved.WithLabelValues("friend", string(status)).Inc()

	s.logger.Info("friend request resolved",
		slog.String("requestID", requestID),
		slog.String("status", string(status)),
	)
	return &model.Resolution{RequestID: requestID, Resolved: true, Status: status}, nil
}

func (s *FriendService) notifyAccepted(ctx context.Context, req *model.FriendRequest) {
	name := "Your friend"
	if u, err := s.users.GetUserByID(ctx, req.RecipientID); err == nil {
		name = u.DisplayName
	}
	s.notifier.Notify(ctx, req.SenderID, notify.Event{
		Type:    notify.FriendRequestAccepted,
		Message: fmt.Sprintf("%s accepted your friend request", name),
		RefID:   req.RecipientID,
	})
}

// Cancel withdraws a request the caller sent. Cancelling a request that was
// already resolved is a no-op.
func (s *FriendService) Cancel(ctx context.Context, senderID, requestID string) error {
	req, err := s.friends.GetFriendRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("service/friend: loading request %s: %w", requestID, err)
	}
	if req.SenderID != senderID {
		return apperror.Forbidden("only the sender can cancel this request")
	}
	ok, err := s.friends.DeleteFriendRequest(ctx, requestID)
	if err != nil {
		return fmt.Errorf("service/friend: cancelling %s: %w", requestID, err)
	}
	if ok {
		metrics.RequestsResolved.WithLabelValues("friend", "cancelled").Inc()
	}
	return nil
}

func (s *FriendService) ListFriends(ctx context.Context, userID string) ([]model.PublicUser, error) {
	friends, err := s.friends.ListFriends(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/friend: listing friends of %s: %w", userID, err)
	}
	if friends == nil {
		friends = []model.PublicUser{}
	}
	return friends, nil
}

// RemoveFriend ends a friendship in both directions. Existing habit grants
// are left alone; the owner revokes those separately.
func (s *FriendService) RemoveFriend(ctx context.Context, userID, friendID string) error {
	if err := s.friends.RemoveFriendship(ctx, userID, friendID); err != nil {
		return fmt.Errorf("service/friend: removing %s from %s: %w", friendID, userID, err)
	}
	s.logger.Info("friendship removed",
		slog.String("userID", userID),
		slog.String("friendID", friendID),
	)
	return nil
}

// Prune deletes friend and share requests that stayed pending longer than ttl.
func (s *FriendService) Prune(ctx context.Context, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		return 0, apperror.ValidationFailed("ttl", "retention period must be positive")
	}
	n, err := s.friends.PruneRequests(ctx, s.now().Add(-ttl))
	if err != nil {
		return 0, fmt.Errorf("service/friend: pruning requests: %w", err)
	}
	metrics.RequestsPruned.Add(float64(n))
	if n > 0 {
		s.logger.Info("pruned stale requests", slog.Int64("count", n), slog.Duration("ttl", ttl))
	}
	return n, nil
}
