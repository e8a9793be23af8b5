package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/codex-k8s/grades-mcp-server/internal/config"
	"github.com/codex-k8s/grades-mcp-server/internal/log"
	"github.com/codex-k8s/grades-mcp-server/internal/seed"
	"github.com/codex-k8s/grades-mcp-server/internal/store/gormstore"
)

func main() {
	databaseURL := flag.String("database-url", "", "PostgreSQL DSN (defaults to GRADES_DATABASE_URL)")
	randSeed := flag.Uint64("rand-seed", 42, "Seed for generated grade values")
	skipReset := flag.Bool("skip-reset", false, "Keep existing rows instead of truncating")
	skipMigrate := flag.Bool("skip-migrate", false, "Do not migrate the schema first")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := log.New(cfg.LogLevel)

	dsn := cfg.DatabaseURL
	if *databaseURL != "" {
		dsn = *databaseURL
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	db, err := gormstore.Open(dsn, gormstore.Options{MaxOpenConns: 2, MaxIdleConns: 1}, logger)
	if err != nil {
		logger.Error("open store failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if !*skipMigrate {
		if err := db.Migrate(ctx); err != nil {
			logger.Error("migrate failed", "error", err)
			os.Exit(1)
		}
	}

	report, err := seed.Run(ctx, db, seed.Options{RandSeed: *randSeed, SkipReset: *skipReset})
	if err != nil {
		logger.Error("seed failed", "error", err)
		os.Exit(1)
	}
	logger.Info("seed completed", "grades", report.Grades)
	fmt.Println(report.String())
}
