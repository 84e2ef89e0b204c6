package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/habahaba/roundup-savings/internal/advisor"
	"github.com/habahaba/roundup-savings/internal/api/handlers"
	"github.com/habahaba/roundup-savings/internal/config"
	"github.com/habahaba/roundup-savings/internal/events/kafka"
	"github.com/habahaba/roundup-savings/internal/jobs"
	"github.com/habahaba/roundup-savings/internal/jobs/inmemory"
	"github.com/habahaba/roundup-savings/internal/logger"
	"github.com/habahaba/roundup-savings/internal/metrics"
	"github.com/habahaba/roundup-savings/internal/payments/paystack"
	"github.com/habahaba/roundup-savings/internal/roundup"
	"github.com/habahaba/roundup-savings/internal/savings"
	"github.com/habahaba/roundup-savings/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Parse command-line flags
	port := flag.String("port", cfg.Port, "HTTP server port (or set PORT env)")
	flag.Parse()

	// Initialize logger
	log := logger.NewWithLevel(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()
	m := metrics.New()

	backend, err := storage.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("Failed to open store")
	}
	defer backend.Close()
	log.Info().Str("driver", backend.Driver).Msg("Transaction store ready")

	// Decision engine, delegating to Gemini when configured
	engineOpts := []roundup.Option{roundup.WithLogger(logger.Component(log, "roundup"))}
	if cfg.AdvisorConfigured() {
		completer, err := advisor.NewGeminiCompleter(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Gemini client")
		}
		advisorOpts := []advisor.Option{
			advisor.WithRatePerMinute(cfg.AdvisorRatePerMinute),
			advisor.WithMetrics(m),
			advisor.WithLogger(logger.Component(log, "advisor")),
		}
		if backend.AdvisorSink != nil {
			advisorOpts = append(advisorOpts, advisor.WithOutputSink(backend.AdvisorSink))
		}
		engineOpts = append(engineOpts, roundup.WithAdvisor(advisor.NewProvider(completer, advisorOpts...), cfg.AdvisorTimeout))
		log.Info().Str("model", completer.Model()).Msg("Assisted decisions enabled")
	}
	engine := roundup.NewEngine(engineOpts...)

	// Payment gateway
	var gateway savings.PaymentGateway
	if cfg.PaystackSecretKey != "" {
		gateway = paystack.NewClient(cfg.PaystackSecretKey,
			paystack.WithBaseURL(cfg.PaystackBaseURL),
			paystack.WithCallbackURL(cfg.PaystackCallbackURL),
			paystack.WithEmailDomain(cfg.PaystackEmailDomain),
			paystack.WithLogger(logger.Component(log, "paystack")),
		)
	} else {
		log.Warn().Msg("No PAYSTACK_SECRET_KEY configured - using sandbox gateway")
		gateway = paystack.NewSandbox(logger.Component(log, "sandbox"))
	}

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.TransferQueueSize, jobStore,
		inmemory.WithWorkers(cfg.TransferWorkers),
		inmemory.WithLogger(logger.Component(log, "jobs")),
	)

	svcOpts := []savings.Option{
		savings.WithDispatcher(jobQueue),
		savings.WithMetrics(m),
		savings.WithLogger(logger.Component(log, "savings")),
	}
	if cfg.KafkaConfigured() {
		publisher := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer publisher.Close()
		svcOpts = append(svcOpts, savings.WithPublisher(publisher))
		log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("Publishing transaction events")
	}
	svc := savings.NewService(backend.Store, engine, gateway, svcOpts...)

	// Start transfer workers in background
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	var transferHandler jobs.JobHandler = jobs.NewTransferHandler(svc, logger.Component(log, "jobs"))
	if err := jobQueue.Start(workerCtx, transferHandler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start transfer workers")
	}
	log.Info().Int("workers", cfg.TransferWorkers).Msg("Transfer workers started")

	handler := newRouter(routes{
		roundups: handlers.NewRoundupsHandler(svc, cfg.AIEnabled),
		webhooks: handlers.NewWebhooksHandler(svc, cfg.PaystackSecretKey, cfg.AIEnabled),
		jobs:     handlers.NewJobsHandler(jobStore),
	}, cfg.APIKey, log)

	if cfg.APIKey == "" {
		log.Warn().Msg("No API_KEY configured - API is unauthenticated")
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight transfers
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
