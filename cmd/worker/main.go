// The worker binary runs the background cycle on a schedule.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/hireloop/hireloop/internal/app"
	"github.com/hireloop/hireloop/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	schedule := os.Getenv("CYCLE_SCHEDULE")
	if schedule == "" {
		schedule = "*/10 * * * *"
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		a.Cycle.Run(ctx)
	}); err != nil {
		return fmt.Errorf("cron schedule %q: %w", schedule, err)
	}

	a.Log.Info("worker started", "schedule", schedule)
	c.Start()

	// run one cycle immediately so a fresh deploy catches up
	a.Cycle.Run(ctx)

	<-ctx.Done()
	a.Log.Info("worker stopping")
	<-c.Stop().Done()
	return nil
}
