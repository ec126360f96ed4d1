package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/sakif/habit-tracker/internal/model"
	"github.com/sakif/habit-tracker/internal/rewards"
	"github.com/sakif/habit-tracker/internal/service"
)

type MigrateCmd struct{}

func (c *MigrateCmd) Run(a *app) error {
	if dir := filepath.Dir(a.dbPath); a.dbPath != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Fprintf(a.out, "schema up to date: %s\n", a.dbPath)
	return nil
}

// RewardCmd previews one completion. Streak is the streak before completing;
// the bonus is based on the streak the completion produces.
type RewardCmd struct {
	Base   int `help:"Base points of the habit." default:"10"`
	Streak int `help:"Current streak before this completion." default:"0"`
}

func (c *RewardCmd) Run(a *app) error {
	if c.Base < 0 {
		return fmt.Errorf("--base must not be negative")
	}
	if c.Streak < 0 {
		return fmt.Errorf("--streak must not be negative")
	}

	h := model.Habit{BasePoints: c.Base, CurrentStreak: c.Streak + 1}
	points := rewards.PointsForCompletion(h)
	bonus := rewards.StreakBonus(h)

	fmt.Fprintf(a.out, "streak:  %d -> %d\n", c.Streak, h.CurrentStreak)
	fmt.Fprintf(a.out, "points:  %d\n", points)
	fmt.Fprintf(a.out, "bonus:   %d\n", bonus)
	fmt.Fprintf(a.out, "total:   %d\n", points+bonus)
	return nil
}

type LeaderboardShowCmd struct {
	ID string `arg:"" help:"Leaderboard id."`
}

func (c *LeaderboardShowCmd) Run(a *app) error {
	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	lb, err := db.GetLeaderboard(context.Background(), c.ID)
	if err != nil {
		return fmt.Errorf("loading leaderboard %s: %w", c.ID, err)
	}

	fmt.Fprintf(a.out, "%s (%d participants)\n\n", lb.Name, len(lb.Participants))
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tNAME\tPOINTS\t")
	for _, s := range service.Rank(lb.Participants) {
		marker := ""
		if s.UserID == lb.AdminID {
			marker = " (admin)"
		}
		fmt.Fprintf(tw, "%d\t%s%s\t%d\t\n", s.Rank, s.DisplayName, marker, s.Points)
	}
	return tw.Flush()
}

type PruneCmd struct {
	OlderThan time.Duration `help:"Delete requests pending longer than this." default:"720h"`
}

func (c *PruneCmd) Run(a *app) error {
	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	friends := service.NewFriendService(db, db, nil, a.logger)
	n, err := friends.Prune(context.Background(), c.OlderThan)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "pruned %d pending requests older than %s\n", n, c.OlderThan)
	return nil
}
