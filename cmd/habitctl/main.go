// Command habitctl runs operator tasks against the habit tracker's SQLite
// database: migrations, reward previews, leaderboard dumps and request
// cleanup. It opens the same file the server uses; WAL mode lets both run at
// once.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/sakif/habit-tracker/internal/logging"
	sqliteRepo "github.com/sakif/habit-tracker/internal/repository/sqlite"
)

var cli struct {
	DB       string `help:"SQLite database path." env:"DB_PATH" default:"data/habits.db"`
	LogLevel string `help:"Log level (debug, info, warn, error)." env:"LOG_LEVEL" default:"warn"`

	Migrate MigrateCmd `cmd:"" help:"Create or upgrade the database schema."`
	Reward  RewardCmd  `cmd:"" help:"Show the points one completion would earn."`

	Leaderboard struct {
		Show LeaderboardShowCmd `cmd:"" help:"Print a leaderboard's standings."`
	} `cmd:"" help:"Inspect leaderboards."`

	Requests struct {
		Prune PruneCmd `cmd:"" help:"Delete pending friend and share requests older than a cutoff."`
	} `cmd:"" help:"Manage pending requests."`
}

// app is bound into every command's Run method.
type app struct {
	dbPath string
	out    io.Writer
	logger *slog.Logger
}

// openDB opens the database, running migrations on the way.
func (a *app) openDB() (*sqliteRepo.DB, error) {
	db, err := sqliteRepo.New(a.dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", a.dbPath, err)
	}
	return db, nil
}

func main() {
	// Same .env the server reads, so DB_PATH agrees without extra flags.
	_ = godotenv.Load()

	ctx := kong.Parse(&cli,
		kong.Name("habitctl"),
		kong.Description("Operator commands for the habit tracker."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)

	logger, closer, err := logging.New(cli.LogLevel, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	err = ctx.Run(&app{dbPath: cli.DB, out: os.Stdout, logger: logger})
	ctx.FatalIfErrorf(err)
}
