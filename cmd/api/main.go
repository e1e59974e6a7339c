package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/biosync/internal/api"
	"github.com/your-org/biosync/internal/api/ws"
	"github.com/your-org/biosync/internal/config"
	"github.com/your-org/biosync/internal/device"
	"github.com/your-org/biosync/internal/enroll"
	"github.com/your-org/biosync/internal/models"
	"github.com/your-org/biosync/internal/observability"
	"github.com/your-org/biosync/internal/persistence"
	"github.com/your-org/biosync/internal/queue"
	"github.com/your-org/biosync/internal/registry"
	"github.com/your-org/biosync/internal/retry"
	"github.com/your-org/biosync/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting biosync API service", "port", cfg.Server.Port)

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to MinIO
	archive, err := storage.NewTemplateArchive(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := archive.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Start event consumer to broadcast enrollment events via WebSocket
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create event consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumeEnrollments(ctx, "api-enrollments", func(ctx context.Context, msg jetstream.Msg) error {
		var ev models.EnrollmentEvent
		if err := json.Unmarshal(msg.Data(), &ev); err != nil {
			return err
		}
		hub.BroadcastEvent(&ev)
		return nil
	})
	if err != nil {
		slog.Warn("start enrollment event consumer", "error", err)
	}

	// Export stream backlog as a gauge.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if depth, err := producer.QueueDepth(ctx); err == nil {
					observability.EventQueueDepth.Set(float64(depth))
				}
			}
		}
	}()

	// Enrollment coordination: persistence client against this same
	// API, mapping registry on the shared pool, device client against
	// the hardware agent.
	records := persistence.NewClient(cfg.Persistence.BaseURL,
		persistence.WithRetry(cfg.Persistence.MaxAttempts, retry.Linear(cfg.Persistence.BackoffStep)),
		persistence.WithTimeout(cfg.Persistence.Timeout),
		persistence.WithAPIKey(cfg.Server.APIKey),
	)
	mappings := registry.NewPostgresRegistry(db.Pool())
	syncer := device.NewClient(device.Config{
		URL:        cfg.Device.URL,
		DeviceType: cfg.Device.DeviceType,
		DeviceID:   cfg.Device.DeviceID,
		Timeout:    cfg.Device.Timeout,
	})

	sessions := enroll.NewManager(enroll.Deps{
		Records:  records,
		Mappings: mappings,
		Device:   syncer,
		Events:   producer,
		DeviceID: cfg.Device.DeviceID,
	})

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		APIKey:   cfg.Server.APIKey,
		DB:       db,
		Archive:  archive,
		Producer: producer,
		Hub:      hub,
		Sessions: sessions,
		Registry: mappings,
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}
