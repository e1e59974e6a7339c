package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/your-org/biosync/internal/agent"
	"github.com/your-org/biosync/internal/config"
	"github.com/your-org/biosync/internal/observability"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	port := flag.Int("port", 8085, "agent listen port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting device agent", "device_id", cfg.Device.DeviceID, "port", *port)

	server := agent.NewServer(cfg.Device.DeviceID, agent.NewController())

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", *port),
		Handler:     server.Router(),
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		slog.Info("agent listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down agent...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("agent stopped")
}
