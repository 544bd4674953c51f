// Package main is the entry point of the mentor-hub API server.
//
// The server answers student chat messages with a pedagogical mentor,
// keeps a per-student monthly quota, serves published syllabi and exposes
// an administrator API for programs, prompts and usage.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"golang.org/x/sync/errgroup"

	"github.com/mentor-hub/mentor-hub/config"
	"github.com/mentor-hub/mentor-hub/internal/application/command"
	"github.com/mentor-hub/mentor-hub/internal/application/query"
	"github.com/mentor-hub/mentor-hub/internal/domain/program"
	"github.com/mentor-hub/mentor-hub/internal/domain/session"
	"github.com/mentor-hub/mentor-hub/internal/domain/summary"
	"github.com/mentor-hub/mentor-hub/internal/domain/syllabus"
	"github.com/mentor-hub/mentor-hub/internal/domain/usage"
	"github.com/mentor-hub/mentor-hub/internal/infrastructure/external/completion"
	"github.com/mentor-hub/mentor-hub/internal/infrastructure/messaging"
	"github.com/mentor-hub/mentor-hub/internal/infrastructure/persistence"
	"github.com/mentor-hub/mentor-hub/internal/infrastructure/persistence/redis"
	"github.com/mentor-hub/mentor-hub/internal/infrastructure/scheduler"
	"github.com/mentor-hub/mentor-hub/internal/infrastructure/scheduler/jobs"
	httpserver "github.com/mentor-hub/mentor-hub/internal/interface/http"
	"github.com/mentor-hub/mentor-hub/internal/interface/http/handlers"
	"github.com/mentor-hub/mentor-hub/pkg/circuitbreaker"
	"github.com/mentor-hub/mentor-hub/pkg/logger"
	"github.com/mentor-hub/mentor-hub/pkg/retry"
	"github.com/mentor-hub/mentor-hub/pkg/timeutil"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION & LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		AddCaller: cfg.App.Debug,
		Format:    cfg.Observability.LogFormat,
	}).With(logger.String("app", cfg.App.Name), logger.String("version", cfg.App.Version))

	schoolZone, err := timeutil.LoadZone(cfg.App.Timezone)
	if err != nil {
		return err
	}
	calendar := program.NewCalendar(schoolZone)
	log.Info("starting mentor-hub",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("timezone", cfg.App.Timezone),
		logger.String("database", cfg.Database.Driver()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := timeutil.SystemClock()

	// ─────────────────────────────────────────────────────────────────────────
	// 2. STORES
	// ─────────────────────────────────────────────────────────────────────────
	stores, err := persistence.Open(ctx, cfg.Database, persistence.Options{Migrate: true}, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		stores.Close()
	}()

	cache, err := openRedis(ctx, cfg, log)
	if err != nil {
		return err
	}
	if cache != nil {
		defer cache.Close()
	}

	var counter usage.Counter = stores.Usage
	var reporter query.UsageReporter = stores.Usage
	if cfg.UseRedisQuota() {
		counter = redis.NewUsageCounter(cache)
		// Redis counters cannot be listed.
		reporter = nil
	}

	var sessionStore session.Store
	var memorySessions *session.MemoryStore
	if cache != nil {
		sessionStore = redis.NewSessionStore(cache)
	} else {
		memorySessions = session.NewMemoryStore()
		sessionStore = memorySessions
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. COMPLETION BACKENDS
	// ─────────────────────────────────────────────────────────────────────────
	onBreaker := func(name string, from, to circuitbreaker.State) {
		log.Warn("circuit breaker state changed",
			logger.String("breaker", name), logger.String("from", from.String()), logger.String("to", to.String()))
	}

	mentor, err := completion.New(ctx, completion.Config{
		APIKey:    cfg.Completion.APIKey,
		BaseURL:   cfg.Completion.BaseURL,
		Model:     cfg.Completion.MentorModel,
		MaxTokens: cfg.Completion.MaxTokens,
		Timeout:   cfg.Completion.Timeout,
		Name:      "mentor",
	}, circuitbreaker.CompletionBreaker(cfg.Completion.BreakerThreshold, cfg.Completion.BreakerTimeout, onBreaker), log)
	if err != nil {
		return err
	}

	summarizer, err := completion.New(ctx, completion.Config{
		APIKey:    cfg.Completion.APIKey,
		BaseURL:   cfg.Completion.BaseURL,
		Model:     cfg.Completion.SummaryModel,
		MaxTokens: cfg.Completion.MaxTokens,
		Timeout:   cfg.Completion.SummaryTimeout,
		Name:      "summary",
	}, circuitbreaker.SummaryBreaker(onBreaker), log)
	if err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. SUMMARY QUEUE
	// ─────────────────────────────────────────────────────────────────────────
	updater := summary.NewUpdater(stores.Summaries, stores.Prompts, summarizer)
	queue := messaging.NewSummaryQueue(messaging.QueueConfig{
		Buffer:     100,
		JobTimeout: cfg.Completion.SummaryTimeout,
	}, updater.Update, log)
	if err := queue.Start(ctx); err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	governor := usage.NewGovernor(counter, clock)
	sessions := session.NewManager(sessionStore, cfg.Session.IdleTTL, calendar, clock)
	publisher := syllabus.NewPublisher(stores.Programs, clock)

	chat := command.NewSendMessageHandler(command.SendMessageDeps{
		Governor:     governor,
		MonthlyLimit: cfg.Quota.MonthlyLimit,
		Sessions:     sessions,
		Programs:     stores.Programs,
		Templates:    stores.Prompts,
		Configs:      stores.Prompts,
		Summaries:    stores.Summaries,
		Completer:    mentor,
		Queue:        queue,
		Features:     cfg.Features,
		Clock:        clock,
		Logger:       log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 6. READINESS
	// ─────────────────────────────────────────────────────────────────────────
	readiness := handlers.NewReadinessChecker(cfg.App.Version)
	readiness.AddCheck("database", handlers.PingCheck(stores))
	if cache != nil {
		readiness.AddCheck("redis", handlers.PingCheck(cache))
	}
	readiness.AddOptionalCheck("completion", handlers.PingCheck(mentor))

	// ─────────────────────────────────────────────────────────────────────────
	// 7. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpCfg := httpserver.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	httpCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpCfg.CookieName = cfg.HTTP.CookieName
	httpCfg.CookieSecure = cfg.HTTP.CookieSecure
	httpCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMin
	httpCfg.Version = cfg.App.Version

	var limiter httpserver.RateLimiter
	if cache != nil && cfg.HTTP.RateLimitPerMin > 0 {
		limiter = redis.NewRateLimiter(cache, cfg.HTTP.RateLimitPerMin, time.Minute)
	}

	server := httpserver.NewServer(httpCfg, httpserver.Dependencies{
		Chat:     chat,
		Sessions: command.NewSessionHandler(sessions, stores.Programs, clock, log),
		Publish:  command.NewPublishProgramHandler(publisher, log),
		Content:  command.NewContentHandler(stores.Programs, stores.Prompts, stores.Prompts, log),
		Editor:   command.NewEditProgramHandler(mentor, mentor, log),

		Syllabus: query.NewGetSyllabusHandler(publisher, cfg.Features),
		Health:   query.NewGetUsageStatusHandler(governor, cfg.Quota.MonthlyLimit, mentor, clock, log),
		Reader:   query.NewContentReader(stores.Programs, stores.Prompts, stores.Prompts, reporter, clock),

		Features:       cfg.Features,
		RateLimiter:    limiter,
		AdminKeyHashes: cfg.Admin.APIKeyHashes,
		Readiness:      readiness,
		Logger:         log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 8. BACKGROUND JOBS
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.New(log)
	if memorySessions != nil {
		if err := sched.Every(time.Minute, jobs.NewSweepSessionsJob(memorySessions, log)); err != nil {
			return err
		}
	}
	if reporter != nil {
		if err := sched.Every(24*time.Hour, jobs.NewUsageReportJob(stores.Usage, cfg.Quota.MonthlyLimit, clock, log)); err != nil {
			return err
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. RUN UNTIL SIGNAL
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(server.Start)
	g.Go(func() error { return sched.Start(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
			errs = append(errs, fmt.Errorf("scheduler stop: %w", err))
		}
		// In-flight summary updates finish before the stores close.
		if err := queue.Close(); err != nil {
			errs = append(errs, fmt.Errorf("summary queue close: %w", err))
		}
		m := queue.Metrics()
		log.Info("summary queue drained", logger.Int64("published", m.Published), logger.Int64("failed", m.Failed))
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("mentor-hub stopped")
	return nil
}

// openRedis connects when Redis is enabled. A Redis outage at startup is
// fatal only when usage counters live there.
func openRedis(ctx context.Context, cfg *config.Config, log *logger.Logger) (*redis.Cache, error) {
	if cfg.Redis.Disabled {
		log.Info("redis disabled, sessions kept in memory")
		return nil, nil
	}

	rcfg := redis.Config{
		URL:          cfg.Redis.URL,
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	}

	cache, err := retry.DoWithData(ctx, func(ctx context.Context) (*redis.Cache, error) {
		return redis.NewCache(ctx, rcfg)
	}, retry.WithMaxAttempts(3), retry.WithInitialDelay(500*time.Millisecond), retry.WithOnRetry(
		func(attempt int, err error, delay time.Duration) {
			log.Warn("redis not ready", logger.Int("attempt", attempt), logger.Err(err))
		}))
	if err != nil {
		if cfg.UseRedisQuota() {
			return nil, fmt.Errorf("redis is required for QUOTA_STORE=redis: %w", err)
		}
		log.Warn("redis unavailable, sessions kept in memory", logger.Err(err))
		return nil, nil
	}
	log.Info("redis connected")
	return cache, nil
}
