package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/habit-tracker/internal/apperror"
	"github.com/sakif/habit-tracker/internal/model"
)

func TestCreateAndGetHabit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")

	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	h := &model.Habit{
		OwnerID:     alice.ID,
		Name:        "Run",
		Description: "5k",
		Frequency:   model.FrequencyWeekly,
		StartTime:   time.Date(2024, 1, 1, 7, 30, 0, 0, time.UTC),
		EndTime:     &end,
		BasePoints:  20,
	}
	if err := db.CreateHabit(ctx, h); err != nil {
		t.Fatalf("CreateHabit() error = %v", err)
	}

	got, err := db.GetHabitByID(ctx, h.ID)
	if err != nil {
		t.Fatalf("GetHabitByID() error = %v", err)
	}
	if got.Name != "Run" || got.Description != "5k" || got.Frequency != model.FrequencyWeekly {
		t.Errorf("GetHabitByID() = %+v, fields don't match", got)
	}
	if !got.StartTime.Equal(h.StartTime) {
		t.Errorf("StartTime = %v, want %v", got.StartTime, h.StartTime)
	}
	if got.EndTime == nil || !got.EndTime.Equal(end) {
		t.Errorf("EndTime = %v, want %v", got.EndTime, end)
	}
	if got.LastCompletedAt != nil {
		t.Errorf("LastCompletedAt = %v, want nil", got.LastCompletedAt)
	}
}

func TestGetHabitByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetHabitByID(context.Background(), "missing")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("GetHabitByID() error = %v, want ErrNotFound", err)
	}
}

func TestUpdateHabit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	h := createTestHabit(t, db, alice.ID, "Read", model.FrequencyDaily)

	h.Name = "Read 20 pages"
	h.BasePoints = 15
	if err := db.UpdateHabit(ctx, h); err != nil {
		t.Fatalf("UpdateHabit() error = %v", err)
	}

	got, _ := db.GetHabitByID(ctx, h.ID)
	if got.Name != "Read 20 pages" || got.BasePoints != 15 {
		t.Errorf("after update got %+v", got)
	}

	missing := &model.Habit{ID: "missing", StartTime: time.Now()}
	if err := db.UpdateHabit(ctx, missing); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("UpdateHabit(missing) error = %v, want ErrNotFound", err)
	}
}

func TestDeleteHabit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	h := createTestHabit(t, db, alice.ID, "Read", model.FrequencyDaily)

	if err := db.DeleteHabit(ctx, h.ID); err != nil {
		t.Fatalf("DeleteHabit() error = %v", err)
	}
	if _, err := db.GetHabitByID(ctx, h.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("GetHabitByID() after delete error = %v, want ErrNotFound", err)
	}
	if err := db.DeleteHabit(ctx, h.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("second DeleteHabit() error = %v, want ErrNotFound", err)
	}
}

func TestListHabitsForUser_OwnedThenShared(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	own := createTestHabit(t, db, bob.ID, "Bob's habit", model.FrequencyDaily)
	shared := createTestHabit(t, db, alice.ID, "Alice's habit", model.FrequencyDaily)
	createTestHabit(t, db, alice.ID, "Private", model.FrequencyNone)

	grantShare(t, db, shared, alice.ID, bob.ID)

	got, err := db.ListHabitsForUser(ctx, bob.ID)
	if err != nil {
		t.Fatalf("ListHabitsForUser() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListHabitsForUser() returned %d habits, want 2", len(got))
	}
	if got[0].ID != own.ID || got[1].ID != shared.ID {
		t.Errorf("order = [%s %s], want [%s %s]", got[0].ID, got[1].ID, own.ID, shared.ID)
	}
	if len(got[1].SharedWith) != 0 {
		t.Errorf("grantee sees SharedWith = %v, want empty", got[1].SharedWith)
	}

	aliceHabits, _ := db.ListHabitsForUser(ctx, alice.ID)
	if len(aliceHabits) != 2 {
		t.Fatalf("alice has %d habits, want 2", len(aliceHabits))
	}
	if len(aliceHabits[0].SharedWith) != 1 || aliceHabits[0].SharedWith[0] != bob.ID {
		t.Errorf("owner SharedWith = %v, want [%s]", aliceHabits[0].SharedWith, bob.ID)
	}
}

func TestHasHabitAccess(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	carol := createTestUser(t, db, "carol")
	h := createTestHabit(t, db, alice.ID, "Run", model.FrequencyDaily)
	grantShare(t, db, h, alice.ID, bob.ID)

	tests := []struct {
		user string
		want bool
	}{
		{alice.ID, true},
		{bob.ID, true},
		{carol.ID, false},
	}
	for _, tt := range tests {
		got, err := db.HasHabitAccess(ctx, h.ID, tt.user)
		if err != nil {
			t.Fatalf("HasHabitAccess() error = %v", err)
		}
		if got != tt.want {
			t.Errorf("HasHabitAccess(%s) = %v, want %v", tt.user, got, tt.want)
		}
	}
}

func TestRecordCompletion_CreditsEveryLeaderboard(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	lb1 := createTestLeaderboard(t, db, "One", alice.ID, alice, bob)
	lb2 := createTestLeaderboard(t, db, "Two", bob.ID, alice)
	lb3 := createTestLeaderboard(t, db, "Three", bob.ID, bob)

	h := createTestHabit(t, db, alice.ID, "Run", model.FrequencyDaily)
	done := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	h.CurrentStreak = 1
	h.LastCompletedAt = &done

	credited, err := db.RecordCompletion(ctx, h, 10)
	if err != nil {
		t.Fatalf("RecordCompletion() error = %v", err)
	}
	if len(credited) != 2 {
		t.Errorf("credited %v, want 2 leaderboards", credited)
	}

	got, _ := db.GetHabitByID(ctx, h.ID)
	if got.CurrentStreak != 1 || got.LastCompletedAt == nil || !got.LastCompletedAt.Equal(done) {
		t.Errorf("habit after completion = %+v", got)
	}

	for _, tc := range []struct {
		lb   string
		user string
		want int
	}{
		{lb1.ID, alice.ID, 10},
		{lb1.ID, bob.ID, 0},
		{lb2.ID, alice.ID, 10},
		{lb3.ID, bob.ID, 0},
	} {
		if pts := pointsOf(t, db, tc.lb, tc.user); pts != tc.want {
			t.Errorf("points(%s,%s) = %d, want %d", tc.lb, tc.user, pts, tc.want)
		}
	}
}

func TestRecordCompletion_MissingHabitChangesNothing(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	lb := createTestLeaderboard(t, db, "One", alice.ID, alice)

	ghost := &model.Habit{ID: "missing", OwnerID: alice.ID, CurrentStreak: 1}
	if _, err := db.RecordCompletion(ctx, ghost, 10); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("RecordCompletion() error = %v, want ErrNotFound", err)
	}
	if pts := pointsOf(t, db, lb.ID, alice.ID); pts != 0 {
		t.Errorf("points = %d after failed completion, want 0", pts)
	}
}

func TestListReminderHabits(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice")
	createTestHabit(t, db, alice.ID, "Daily", model.FrequencyDaily)
	createTestHabit(t, db, alice.ID, "Once", model.FrequencyNone)
	upcoming := createTestHabit(t, db, alice.ID, "Upcoming", model.FrequencyNone)
	upcoming.StartTime = time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC)
	if err := db.UpdateHabit(context.Background(), upcoming); err != nil {
		t.Fatalf("UpdateHabit() error = %v", err)
	}
	quiet := createTestHabit(t, db, alice.ID, "Quiet", model.FrequencyWeekly)
	quiet.Reminders = false
	if err := db.UpdateHabit(context.Background(), quiet); err != nil {
		t.Fatalf("UpdateHabit() error = %v", err)
	}

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	got, err := db.ListReminderHabits(context.Background(), now)
	if err != nil {
		t.Fatalf("ListReminderHabits() error = %v", err)
	}
	if len(got) != 2 || got[0].Name != "Daily" || got[1].Name != "Upcoming" {
		t.Errorf("ListReminderHabits() = %+v, want Daily and Upcoming", got)
	}
}

// grantShare creates and accepts a share request.
func grantShare(t *testing.T, db *DB, h *model.Habit, ownerID, granteeID string) {
	t.Helper()
	ctx := context.Background()
	req := &model.HabitShareRequest{HabitID: h.ID, HabitName: h.Name, SenderID: ownerID, RecipientID: granteeID}
	if err := db.CreateShareRequest(ctx, req); err != nil {
		t.Fatalf("CreateShareRequest() error = %v", err)
	}
	if ok, err := db.ResolveShareRequest(ctx, req.ID, true); err != nil || !ok {
		t.Fatalf("ResolveShareRequest() = %v, %v", ok, err)
	}
}
