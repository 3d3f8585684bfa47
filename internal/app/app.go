package app

import (
	"context"
	"log/slog"

	"github.com/mbrazalez/CEP4Pollution/internal/config"
	"github.com/mbrazalez/CEP4Pollution/internal/event"
	"github.com/mbrazalez/CEP4Pollution/internal/journal"
	"github.com/mbrazalez/CEP4Pollution/internal/mqtt"
	"github.com/mbrazalez/CEP4Pollution/internal/simulator"
)

func Run(ctx context.Context, cfg config.Config) error {
	logger := slog.Default()

	logger.Info("initializing simulator",
		"mqtt_broker", cfg.MQTTBroker,
		"mqtt_port", cfg.MQTTPort,
		"mqtt_qos", cfg.MQTTQoS,
		"mqtt_connect_retries", cfg.MQTTConnectRetries,
		"publish_interval", cfg.PublishInterval,
		"max_events", cfg.MaxEvents,
		"stations", cfg.Stations,
		"shared_pollutant_draw", cfg.SharedPollutantDraw,
		"journal_path", cfg.JournalPath,
	)

	var opts []simulator.Option
	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := j.Close(); err != nil {
				logger.Error("journal close", "error", err)
			}
		}()
		opts = append(opts, simulator.WithRecorder(j))
	}

	gen := event.NewGenerator(cfg.Stations, event.WithSharedPollutantDraw(cfg.SharedPollutantDraw))
	client := mqtt.NewClient(cfg, logger)

	sim := simulator.New(cfg, client, gen, logger, opts...)
	stats, err := sim.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info("simulation complete",
		"connected", stats.Connected,
		"events", stats.Events,
		"publishes", stats.Publishes,
		"failed", stats.Failed,
	)
	return nil
}
