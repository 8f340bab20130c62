package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/beautydesk/salon-assistant/internal/agent"
	"github.com/beautydesk/salon-assistant/internal/api/router"
	"github.com/beautydesk/salon-assistant/internal/booking"
	"github.com/beautydesk/salon-assistant/internal/cache"
	"github.com/beautydesk/salon-assistant/internal/calendar"
	"github.com/beautydesk/salon-assistant/internal/chatwoot"
	appconfig "github.com/beautydesk/salon-assistant/internal/config"
	"github.com/beautydesk/salon-assistant/internal/conversation"
	"github.com/beautydesk/salon-assistant/internal/http/handlers"
	"github.com/beautydesk/salon-assistant/internal/jobs"
	"github.com/beautydesk/salon-assistant/internal/observability/metrics"
	"github.com/beautydesk/salon-assistant/internal/stats"
	"github.com/beautydesk/salon-assistant/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting salon assistant",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	appCache := cache.New(redisClient, logger)
	bookingStore := booking.NewStore(pool)
	conversationStore := conversation.NewStore(pool)
	statsStore := stats.NewStore(pool)

	chatwootClient := chatwoot.NewClient(
		cfg.ChatwootBaseURL, cfg.ChatwootAPIToken,
		cfg.ChatwootAccountID, cfg.ChatwootInboxID, logger)

	conversationAgent := agent.New(agent.Config{
		APIKey:    cfg.OpenAIAPIKey,
		Model:     cfg.OpenAIModel,
		SalonName: cfg.SalonName,
		Cache:     appCache,
		Refs:      bookingStore,
		RefTTL:    cfg.ReferenceCacheTTL,
		Logger:    logger,
	})

	pipelineMetrics := metrics.NewPipelineMetrics(nil)
	processor := conversation.NewProcessor(conversation.ProcessorConfig{
		GroupDelay:      cfg.MessageGroupDelay,
		LockTTL:         cfg.ProcessingLockTTL,
		AgentTimeout:    cfg.AgentTimeout,
		RateLimitMax:    cfg.RateLimitMaxMessages,
		RateLimitWindow: time.Duration(cfg.RateLimitWindowSeconds) * time.Second,
		PendingTTL:      cfg.PendingMessageTTL,
		ContextTTL:      cfg.ConversationCtxTTL,
		ContextWindow:   cfg.ContextWindowSize,
		ReferenceTTL:    cfg.ReferenceCacheTTL,
	}, appCache, conversationStore, chatwootClient, conversationAgent, statsStore, pipelineMetrics, logger)
	defer processor.Close()

	// Calendar reconciliation loop.
	if cfg.GoogleCalendarID != "" {
		gcal, err := calendar.NewGoogleClient(ctx, cfg.GoogleCredentialsPath, cfg.GoogleCalendarID, cfg.CalendarTimezone)
		if err != nil {
			logger.Error("failed to init google calendar", "error", err)
			os.Exit(1)
		}
		syncer, err := calendar.NewSyncer(calendar.SyncerConfig{
			Calendar:   gcal,
			DB:         pool,
			Metrics:    metrics.NewSyncMetrics(nil),
			Logger:     logger,
			PastDays:   cfg.CalendarSyncWindow.PastDays,
			FutureDays: cfg.CalendarSyncWindow.FutureDays,
			Interval:   cfg.CalendarSyncInterval,
		})
		if err != nil {
			logger.Error("failed to init calendar syncer", "error", err)
			os.Exit(1)
		}
		go syncer.Start(ctx)
	} else {
		logger.Warn("calendar sync disabled, GOOGLE_CALENDAR_ID not set")
	}

	// Daily reminder schedule in salon-local time.
	location, err := time.LoadLocation(cfg.CalendarTimezone)
	if err != nil {
		logger.Error("invalid timezone", "timezone", cfg.CalendarTimezone, "error", err)
		os.Exit(1)
	}
	reminderJob := jobs.NewReminderJob(bookingStore, chatwootClient, cfg.SalonName, location, logger)
	scheduler := cron.New(cron.WithLocation(location))
	if _, err := scheduler.AddFunc(cfg.DailyReminderCron, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := reminderJob.Run(jobCtx); err != nil {
			logger.Error("reminder job failed", "error", err)
		}
	}); err != nil {
		logger.Error("invalid reminder cron expression", "cron", cfg.DailyReminderCron, "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	webhookHandler := handlers.NewChatwootWebhookHandler(cfg.ChatwootWebhookSecret, processor, logger)
	healthHandler := handlers.NewHealthHandler(pool, appCache)

	r := router.New(&router.Config{
		Logger:         logger,
		Webhooks:       webhookHandler,
		Health:         healthHandler,
		MetricsHandler: promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
