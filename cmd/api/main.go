package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"classattend/internal/api"
	"classattend/internal/attendance"
	"classattend/internal/auth"
	"classattend/internal/config"
	"classattend/internal/directory"
	"classattend/internal/jobs"
	"classattend/internal/logger"
	"classattend/internal/notify"
	"classattend/internal/queue"
	"classattend/internal/report"
	"classattend/internal/session"
	"classattend/internal/sheets"
	"classattend/internal/store"
	"classattend/internal/users"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	lg := logger.FromConfig("[api] ", cfg.RollbarToken, cfg.Env, !cfg.Production())
	if rb, ok := lg.(*logger.Rollbar); ok {
		defer rb.Close()
	}

	db, err := store.NewDB(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	sessions, err := session.Open(cfg.SessionDBPath, cfg.StoreTimeout)
	if err != nil {
		return err
	}
	defer sessions.Close()

	ctx := context.Background()

	dirRepo := directory.NewRepository(db)
	dir := directory.NewService(dirRepo, lg)
	if n, err := dir.SeedSubjects(ctx, directory.DefaultSubjects); err != nil {
		return err
	} else if n > 0 {
		lg.Info("seeded %d subjects", n)
	}

	accounts := users.NewService(users.NewRepository(db), lg)
	if _, err := accounts.SeedDefaults(ctx); err != nil {
		return err
	}

	var (
		q           queue.Queue
		redisClient *store.Redis
		notifier    notify.Sender
	)
	if cfg.QueueBackend == "memory" {
		// no worker shares an in-memory queue, so jobs run in this process
		q = queue.NewInMemory(64)
		notifier = notify.Instrumented(notify.FromConfig(cfg.Email, lg))
	} else {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
		notifier = notify.NewQueued(q)
	}

	ledgerRepo := attendance.NewRepository(db)
	ledger := attendance.NewService(db, ledgerRepo, dirRepo, notifier, lg, attendance.Options{
		NotifyTimeout: cfg.Email.Timeout,
		NotifyPresent: cfg.Email.SendOnPresent,
		NotifyAbsent:  cfg.Email.SendOnAbsent,
	})
	defer ledger.Wait()

	reports := report.NewService(db, dirRepo, ledgerRepo, cfg.WeeklyClasses)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	if cfg.QueueBackend == "memory" {
		mirror, err := jobs.NewMirror(ctx, cfg.Sheets, lg)
		if err != nil {
			return err
		}
		syncer := sheets.NewSynchronizer(mirror, lg, cfg.Sheets.PublishTimeout)
		proc := jobs.NewProcessor(notifier, reports, syncer, cfg.MirrorKey, lg, cfg.Email.Timeout)
		go func() {
			if err := proc.Run(runCtx, q); err != nil {
				lg.Error("in-process jobs stopped: %v", err)
			}
		}()
	}

	signer := auth.NewSigner(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)

	h := api.New(api.Deps{
		Users:     accounts,
		Sessions:  sessions,
		Directory: dir,
		Ledger:    ledger,
		Reports:   reports,
		Devices:   auth.NewDevices(db, signer),
		Jobs:      q,
		Log:       lg,
		Health: func(ctx context.Context) map[string]bool {
			checks := map[string]bool{"db": db.PingContext(ctx) == nil}
			if redisClient != nil {
				checks["redis"] = redisClient.Healthy(ctx)
			}
			return checks
		},
		RateLimitPerMin: cfg.RateLimitPerMin,
		SecureCookies:   cfg.Production(),
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      h.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		lg.Info("starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	lg.Info("shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("server forced shutdown: %v", err)
	}

	lg.Info("server exited")
	return nil
}
