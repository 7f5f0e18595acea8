package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classattend/internal/attendance"
	"classattend/internal/config"
	"classattend/internal/directory"
	"classattend/internal/jobs"
	"classattend/internal/logger"
	"classattend/internal/notify"
	"classattend/internal/queue"
	"classattend/internal/report"
	"classattend/internal/sheets"
	"classattend/internal/store"
)

// Worker delivers queued notifications and republishes the sheet mirror,
// both on request and on a fixed interval.
func main() {
	cfg := config.Load()
	lg := logger.FromConfig("[worker] ", cfg.RollbarToken, cfg.Env, !cfg.Production())
	if rb, ok := lg.(*logger.Rollbar); ok {
		defer rb.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		lg.Info("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend == "memory" {
		log.Fatal("worker needs a shared queue; set QUEUE_BACKEND=redis (the api runs jobs itself with memory)")
	}

	db, err := store.NewDB(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		lg.Warn("redis at %s not reachable yet, consumer will keep retrying", cfg.RedisAddr)
	}
	rq := queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	rq.OnDrop(func(raw string, err error) {
		lg.Warn("dropping undecodable job %.80q: %v", raw, err)
	})

	mirror, err := jobs.NewMirror(ctx, cfg.Sheets, lg)
	if err != nil {
		log.Fatalf("sheets mirror init failed: %v", err)
	}

	reports := report.NewService(db, directory.NewRepository(db), attendance.NewRepository(db), cfg.WeeklyClasses)
	proc := jobs.NewProcessor(
		notify.Instrumented(notify.FromConfig(cfg.Email, lg)),
		reports,
		sheets.NewSynchronizer(mirror, lg, cfg.Sheets.PublishTimeout),
		cfg.MirrorKey,
		lg,
		cfg.Email.Timeout,
	)

	if cfg.Sheets.Enabled && cfg.Sheets.SyncInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.Sheets.SyncInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := proc.SyncWindow(ctx, cfg.Sheets.SyncWindowDays); err != nil {
						lg.Warn("periodic sync: %v", err)
					}
				case <-ctx.Done():
					return
				}
			}
		}()
		lg.Info("periodic sync every %s over %d days", cfg.Sheets.SyncInterval, cfg.Sheets.SyncWindowDays)
	}

	lg.Info("worker started, waiting for jobs on %s...", cfg.QueueKey)
	if err := proc.Run(ctx, rq); err != nil {
		log.Fatalf("%v", err)
	}
	lg.Info("worker stopped")
}
