// Package notify delivers per-user events over Redis pub/sub.
//
// Each user has one channel, notifications:user:<id>. Services publish after
// their write commits; the SSE handler subscribes for the connected user.
// Without Redis, publishing is a no-op and subscribing reports ErrUnavailable.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventType names what happened.
type EventType string

const (
	FriendRequestReceived EventType = "friend_request"
	FriendRequestAccepted EventType = "friend_accepted"
	ShareRequestReceived  EventType = "share_request"
	ShareRequestAccepted  EventType = "share_accepted"
	HabitReminder         EventType = "habit_reminder"
)

// ErrUnavailable is returned by Subscribe when Redis isn't configured.
var ErrUnavailable = errors.New("notify: redis not available")

// Event is the JSON payload published to a user's channel.
type Event struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
	RefID   string    `json:"refId,omitempty"` // request or habit id
	At      time.Time `json:"at"`
}

// Channel returns the Redis channel for userID.
func Channel(userID string) string {
	return "notifications:user:" + userID
}

// Publisher publishes and subscribes to user channels. A Publisher with a
// nil client is valid and drops everything.
type Publisher struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func NewPublisher(rdb *redis.Client, logger *slog.Logger) *Publisher {
	return &Publisher{rdb: rdb, logger: logger}
}

// Enabled reports whether events are actually delivered.
func (p *Publisher) Enabled() bool {
	return p != nil && p.rdb != nil
}

// Publish sends ev to userID's channel.
func (p *Publisher) Publish(ctx context.Context, userID string, ev Event) error {
	if !p.Enabled() {
		return nil
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notify: encoding event: %w", err)
	}
	if err := p.rdb.Publish(ctx, Channel(userID), payload).Err(); err != nil {
		return fmt.Errorf("notify: publishing to %s: %w", Channel(userID), err)
	}
	return nil
}

// Notify is Publish for callers that must not fail on delivery: errors are
// logged and dropped.
func (p *Publisher) Notify(ctx context.Context, userID string, ev Event) {
	if err := p.Publish(ctx, userID, ev); err != nil {
		p.logger.Warn("notification dropped",
			slog.String("userID", userID),
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
	}
}

// Subscribe streams events for userID until ctx is cancelled, then closes
// the returned channel. The subscription is confirmed before Subscribe
// returns, so events published afterwards are not missed.
func (p *Publisher) Subscribe(ctx context.Context, userID string) (<-chan Event, error) {
	if !p.Enabled() {
		return nil, ErrUnavailable
	}

	sub := p.rdb.Subscribe(ctx, Channel(userID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("notify: subscribing to %s: %w", Channel(userID), err)
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		defer sub.Close()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("notification subscriber panicked",
					slog.String("userID", userID),
					slog.Any("panic", r),
				)
			}
		}()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					p.logger.Warn("skipping malformed notification",
						slog.String("channel", msg.Channel),
						slog.String("error", err.Error()),
					)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
