package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storyblok-sync/pkg/config"
	"github.com/angelmondragon/storyblok-sync/pkg/db"
	"github.com/angelmondragon/storyblok-sync/pkg/logger"
	"github.com/angelmondragon/storyblok-sync/pkg/migrate"
)

func main() {
	cmd := flag.String("cmd", "up", "up|down|status|version|create|validate")
	dir := flag.String("dir", "", "read migrations from this directory instead of the embedded set")
	name := flag.String("name", "", "migration name (create)")
	version := flag.String("version", "", "target version YYYYMMDDHHMMSS (version)")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "migrate", Format: "console"})
	ctx := logg.WithField(context.Background(), "cmd", *cmd)

	// Authoring commands work on files and never touch the database.
	switch *cmd {
	case "create":
		target := *dir
		if target == "" {
			target = migrate.SourceDir
		}
		path, err := migrate.CreateSQLMigration(target, *name, time.Now())
		exitOn(ctx, logg, "create migration", err)
		fmt.Println("created migration:", path)
		return
	case "validate":
		exitOn(ctx, logg, "validate migrations", migrate.Validate(source(*dir)))
		fmt.Println("migration validation passed")
		return
	}

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	exitOn(ctx, logg, "load config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx = logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	exitOn(ctx, logg, "bootstrap database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	exitOn(ctx, logg, "extract sql.DB", err)

	runner, err := migrate.NewRunner(sqlDB, source(*dir), logg)
	exitOn(ctx, logg, "build migration runner", err)

	switch *cmd {
	case "up":
		exitOn(ctx, logg, "migrate up", runner.Up(ctx))
	case "down":
		exitOn(ctx, logg, "migrate down", runner.Down(ctx))
	case "version":
		target, err := strconv.ParseInt(*version, 10, 64)
		exitOn(ctx, logg, "parse -version", err)
		exitOn(ctx, logg, "migrate to version", runner.ToVersion(ctx, target))
	case "status":
		rows, err := runner.Status(ctx)
		exitOn(ctx, logg, "migration status", err)
		printStatus(rows)
	default:
		exitOn(ctx, logg, "dispatch", fmt.Errorf("unknown -cmd value %q", *cmd))
	}
}

func source(dir string) fs.FS {
	if dir == "" {
		return migrate.Migrations()
	}
	return os.DirFS(dir)
}

func printStatus(rows []migrate.Status) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tSTATE\tFILE")
	for _, row := range rows {
		state := "pending"
		if row.Applied {
			state = "applied"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", row.Version, state, row.Path)
	}
	w.Flush()
}

func exitOn(ctx context.Context, logg *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, step+" failed", err)
	os.Exit(1)
}
