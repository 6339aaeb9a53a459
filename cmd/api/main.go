package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/consult-funnel/cmd/mainconfig"
	"github.com/wolfman30/consult-funnel/internal/api/router"
	"github.com/wolfman30/consult-funnel/internal/app/bootstrap"
	appconfig "github.com/wolfman30/consult-funnel/internal/config"
	"github.com/wolfman30/consult-funnel/internal/conversation"
	"github.com/wolfman30/consult-funnel/internal/dialogue"
	httpmiddleware "github.com/wolfman30/consult-funnel/internal/http/middleware"
	"github.com/wolfman30/consult-funnel/internal/leads"
	"github.com/wolfman30/consult-funnel/internal/observability/metrics"
	"github.com/wolfman30/consult-funnel/internal/webchat"
	"github.com/wolfman30/consult-funnel/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting consult-funnel API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"llm_provider", cfg.LLMProvider,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := setupApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	// Create HTTP server. WriteTimeout stays above the generator timeout so a
	// slow model still gets its fallback reply out.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.GeneratorTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// app is everything the server needs, plus the teardown for it.
type app struct {
	handler http.Handler
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func setupMetrics() (http.Handler, *metrics.DialogueMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewDialogueMetrics(reg)
}

func setupApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*app, error) {
	a := &app{}
	healthChecks := map[string]router.HealthCheck{}

	scenario, err := dialogue.LoadScenario(cfg.ScenarioPath)
	if err != nil {
		return nil, err
	}

	var awsCfg *aws.Config
	if mainconfig.NeedsAWS(cfg) {
		loaded, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		awsCfg = &loaded
	}

	var redisClient *redis.Client
	if cfg.SessionStore == "redis" {
		redisClient = bootstrap.BuildRedisClient(ctx, cfg, logger, false)
	}
	if redisClient != nil {
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
		healthChecks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	store, err := bootstrap.BuildSessionStore(ctx, cfg, redisClient, awsCfg, logger)
	if err != nil {
		return nil, err
	}

	var leadRepo leads.Repository
	if cfg.LeadStore == "postgres" {
		pool, err := bootstrap.BuildPostgresPool(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		if pool != nil {
			a.closers = append(a.closers, pool.Close)
			healthChecks["postgres"] = pool.Ping
		}
		leadRepo, err = bootstrap.BuildLeadRepository(ctx, cfg, pool, logger)
		if err != nil {
			return nil, err
		}
	} else {
		leadRepo, err = bootstrap.BuildLeadRepository(ctx, cfg, nil, logger)
		if err != nil {
			return nil, err
		}
	}

	generator, err := bootstrap.BuildGenerator(ctx, cfg, scenario, awsCfg, logger)
	if err != nil {
		return nil, err
	}

	metricsHandler, dialogueMetrics := setupMetrics()
	orch := dialogue.NewOrchestrator(scenario, generator, logger,
		dialogue.WithGeneratorTimeout(cfg.GeneratorTimeout),
		dialogue.WithMetrics(dialogueMetrics),
	)

	opts := []conversation.ServiceOption{
		conversation.WithLeadRepository(leadRepo),
		conversation.WithServiceMetrics(dialogueMetrics),
		conversation.WithEventLogger(conversation.NewEventLogger(logger)),
	}
	if notifier := bootstrap.BuildNotifier(cfg, awsCfg, logger); notifier != nil {
		opts = append(opts, conversation.WithNotifier(notifier))
	}
	if archiver := bootstrap.BuildArchiver(cfg, awsCfg, logger); archiver != nil {
		opts = append(opts, conversation.WithArchiver(archiver))
	}
	svc := conversation.NewService(orch, store, logger, opts...)

	var limiter *httpmiddleware.RateLimiter
	if cfg.RateLimitPerSecond > 0 {
		limiter = httpmiddleware.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)
		a.closers = append(a.closers, limiter.Stop)
	}

	var leadsHandler *leads.Handler
	if cfg.AdminJWTSecret != "" {
		leadsHandler = leads.NewHandler(leadRepo, logger)
	} else {
		logger.Warn("ADMIN_JWT_SECRET not set; admin lead endpoints disabled")
	}

	a.handler = router.New(&router.Config{
		Logger:              logger,
		ConversationHandler: conversation.NewHandler(svc, logger),
		WebChatHandler:      webchat.NewHandler(svc, logger, webchat.WithFrameRateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst)),
		LeadsHandler:        leadsHandler,
		MetricsHandler:      metricsHandler,
		AdminAuthSecret:     cfg.AdminJWTSecret,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimiter:         limiter,
		HealthChecks:        healthChecks,
	})
	return a, nil
}
