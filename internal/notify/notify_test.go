package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPublisher(t *testing.T) (*miniredis.Miniredis, *Publisher) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return mr, NewPublisher(rdb, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "notifications:user:abc", Channel("abc"))
}

func TestPublishSubscribe(t *testing.T) {
	_, p := newTestPublisher(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := p.Subscribe(ctx, "bob")
	require.NoError(t, err)

	require.NoError(t, p.Publish(ctx, "alice", Event{Type: FriendRequestReceived, Message: "not for bob"}))
	require.NoError(t, p.Publish(ctx, "bob", Event{Type: FriendRequestReceived, Message: "alice wants to be friends", RefID: "req1"}))

	select {
	case ev := <-events:
		assert.Equal(t, FriendRequestReceived, ev.Type)
		assert.Equal(t, "req1", ev.RefID)
		assert.False(t, ev.At.IsZero(), "Publish should stamp the event time")
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-events:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond, "channel should close after cancel")
}

func TestSubscribe_SkipsMalformedPayloads(t *testing.T) {
	mr, p := newTestPublisher(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := p.Subscribe(ctx, "bob")
	require.NoError(t, err)

	mr.Publish(Channel("bob"), "{not json")
	require.NoError(t, p.Publish(ctx, "bob", Event{Type: HabitReminder, RefID: "h1"}))

	select {
	case ev := <-events:
		assert.Equal(t, HabitReminder, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestPublisher_WithoutRedis(t *testing.T) {
	p := NewPublisher(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	assert.False(t, p.Enabled())
	assert.NoError(t, p.Publish(ctx, "bob", Event{Type: HabitReminder}))
	p.Notify(ctx, "bob", Event{Type: HabitReminder})

	_, err := p.Subscribe(ctx, "bob")
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestNotify_LogsOnFailure(t *testing.T) {
	mr, p := newTestPublisher(t)
	mr.Close()

	// Must not panic or block with Redis gone.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p.Notify(ctx, "bob", Event{Type: HabitReminder})
}
