// Command cep4pollution-simulator publishes synthetic PM2.5, PM10 and humidity
// readings to an MQTT broker for the CEP pollution pipeline.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mbrazalez/CEP4Pollution/internal/app"
	"github.com/mbrazalez/CEP4Pollution/internal/config"
	"github.com/mbrazalez/CEP4Pollution/internal/logging"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

const appName = "cep4pollution-simulator"

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(logging.New(cfg, version, appName))
	slog.Info("simulator starting",
		"version", version,
		"env", cfg.AppEnv,
		"broker", fmt.Sprintf("%s:%d", cfg.MQTTBroker, cfg.MQTTPort),
		"max_events", cfg.MaxEvents,
		"interval", cfg.PublishInterval,
	)

	// SIGINT/SIGTERM stop the loop between events; the broker connection is still released.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = app.Run(ctx, cfg)
	switch {
	case errors.Is(err, context.Canceled):
		slog.Info("simulator interrupted")
	case err != nil:
		slog.Error("simulator failed", "error", err)
		os.Exit(1)
	default:
		slog.Info("simulator finished")
	}
}
