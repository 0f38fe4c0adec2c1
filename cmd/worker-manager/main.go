// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"notification-workers/internal/common/broker"
	"notification-workers/internal/common/config"
	"notification-workers/internal/common/database"
	"notification-workers/internal/common/httpx"
	"notification-workers/internal/common/logger"
	"notification-workers/internal/dispatch"
	"notification-workers/internal/mailer"
	"notification-workers/internal/models"
	"notification-workers/internal/scheduler"
	"notification-workers/internal/store"
	"notification-workers/internal/templates"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("config load failed: %v", err))
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer log.Sync()

	log.Info("Starting worker manager...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		// Test the connection with context
		return pg.Ping(ctx)
	}, 15, 2*time.Second, log, "PostgreSQL connection")

	if err != nil {
		log.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	log.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	redis := database.NewRedis(cfg.Database.Redis)
	err = retryWithBackoff(func() error {
		return redis.Ping(ctx)
	}, 10, 2*time.Second, log, "Redis connection")

	if err != nil {
		log.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	log.Info("Redis connected successfully")

	// --- Init RabbitMQ with retry ---
	var queue *broker.Client
	err = retryWithBackoff(func() error {
		var err error
		queue, err = broker.New(cfg.RabbitMQ, log)
		return err
	}, 10, 2*time.Second, log, "RabbitMQ connection")

	if err != nil {
		log.Fatal("rabbitmq failed after retries", zap.Error(err))
	}
	defer queue.Close()
	log.Info("RabbitMQ connected successfully")

	// --- Init SMTP with retry ---
	var smtp *mailer.Mailer
	err = retryWithBackoff(func() error {
		var err error
		smtp, err = mailer.New(cfg.SMTP, log)
		return err
	}, 10, 2*time.Second, log, "SMTP connection")

	if err != nil {
		log.Fatal("smtp failed after retries", zap.Error(err))
	}
	defer smtp.Close()
	log.Info("SMTP connected successfully")

	// --- Wire the dispatch pipeline ---
	notifications := store.NewNotificationRepo(pg.DB)
	messages := store.NewMessageRepo(pg.DB)

	loader := templates.NewLoader(store.NewTemplateRepo(pg.DB))
	engine := templates.NewEngine(loader)

	users := dispatch.NewEnricher(
		httpx.NewClient(cfg.External.AuthURL, time.Duration(cfg.External.Timeout)*time.Millisecond),
	)

	dispatcher := dispatch.NewDispatcher(
		notifications, engine, users,
		dispatch.NewRedisDeduper(redis.Client),
		time.Duration(cfg.Dispatch.DedupTTL)*time.Second,
		log,
	)
	dispatcher.On(models.ChannelEmail, dispatch.NewEmailDeliverer(messages, smtp).Deliver)
	dispatcher.On(models.ChannelSMS, dispatch.NewSMSDeliverer(messages, log).Deliver)

	consumer := broker.NewConsumer(queue, cfg.RabbitMQ, log)
	if err := consumer.Register(dispatch.JobDispatch, dispatch.DispatchPayloadSchema, dispatcher.Handle); err != nil {
		log.Fatal("failed to register dispatch handler", zap.Error(err))
	}
	if err := consumer.Register(dispatch.JobDeliverEmail, dispatch.DeliverPayloadSchema,
		dispatcher.DeliverHandler(models.ChannelEmail)); err != nil {
		log.Fatal("failed to register deliver-email handler", zap.Error(err))
	}
	if err := consumer.Register(dispatch.JobDeliverSMS, dispatch.DeliverPayloadSchema,
		dispatcher.DeliverHandler(models.ChannelSMS)); err != nil {
		log.Fatal("failed to register deliver-sms handler", zap.Error(err))
	}
	if err := consumer.Register(dispatch.JobEnrichContact, dispatch.EnrichPayloadSchema,
		users.JobHandler(log)); err != nil {
		log.Fatal("failed to register enrich-contact handler", zap.Error(err))
	}

	go func() {
		if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatal("consumer stopped", zap.Error(err))
		}
	}()
	log.Info("Dispatch consumer started", zap.String("queue", cfg.RabbitMQ.Queue))

	// --- Recurrence scheduler ---
	sched := scheduler.New(
		notifications, queue,
		time.Duration(cfg.Dispatch.TickInterval)*time.Millisecond,
		log,
	)
	go sched.Run(ctx)
	log.Info("Recurrence scheduler started",
		zap.Int("tick_interval_ms", cfg.Dispatch.TickInterval))

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", cfg.HTTP.MetricsPort)
		log.Info("Health/Metrics server listening", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutdown signal received, stopping workers...")
	cancel()
	time.Sleep(2 * time.Second) // drain in-flight deliveries

	log.Info("Worker manager stopped gracefully")
}
