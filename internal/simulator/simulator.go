// Package simulator runs the publish loop: connect once, then every interval
// generate an event and publish its readings until the event ceiling is hit.
package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/mbrazalez/CEP4Pollution/internal/config"
	"github.com/mbrazalez/CEP4Pollution/internal/mqtt"
	"github.com/mbrazalez/CEP4Pollution/pkg/types"
)

// Publisher is the broker connection owned by a run.
type Publisher interface {
	Connect(ctx context.Context) error
	Publish(topic string, payload []byte) error
	Disconnect()
}

// Generator produces the readings of one tick.
type Generator interface {
	Next() types.Event
}

// Recorder keeps a record of publish attempts.
type Recorder interface {
	Record(ctx context.Context, topic string, r types.Reading, published bool) error
}

// Stats summarizes a run.
type Stats struct {
	Connected bool
	Events    int
	Publishes int
	Failed    int
}

type Simulator struct {
	cfg      config.Config
	pub      Publisher
	gen      Generator
	recorder Recorder
	logger   *slog.Logger

	wait func(ctx context.Context, d time.Duration) error
}

type Option func(*Simulator)

// WithRecorder records every publish attempt with r.
func WithRecorder(r Recorder) Option {
	return func(s *Simulator) { s.recorder = r }
}

func New(cfg config.Config, pub Publisher, gen Generator, logger *slog.Logger, opts ...Option) *Simulator {
	s := &Simulator{
		cfg:    cfg,
		pub:    pub,
		gen:    gen,
		logger: logger,
		wait:   sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run connects, publishes MaxEvents events and disconnects. A failed connect
// is logged and the loop runs anyway. The connection is released on every
// return path. Returns ctx.Err() if cancelled before the last event.
func (s *Simulator) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	defer s.pub.Disconnect()

	if err := s.pub.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		var ce *mqtt.ConnectError
		code := mqtt.NoReturnCode
		if errors.As(err, &ce) {
			code = ce.ReturnCode
		}
		s.logger.Error("failed to connect to mqtt broker, publishing anyway",
			"return_code", code,
			"error", err,
		)
	} else {
		stats.Connected = true
		s.logger.Info("connected to mqtt broker")
	}

	for stats.Events < s.cfg.MaxEvents {
		if err := s.wait(ctx, s.cfg.PublishInterval); err != nil {
			s.logger.Info("publishing interrupted", "events", stats.Events)
			return stats, err
		}

		ev := s.gen.Next()
		s.logger.Info("tick",
			"event", stats.Events+1,
			"timestamp", ev[types.TopicPM25].Timestamp,
			"station", ev[types.TopicPM25].Station,
		)

		for _, topic := range types.Topics {
			reading, ok := ev[topic]
			if !ok {
				continue
			}
			published := s.publish(topic, reading)
			stats.Publishes++
			if !published {
				stats.Failed++
			}
			s.record(ctx, topic, reading, published)
		}
		stats.Events++
	}

	s.logger.Info("publishing finished",
		"events", stats.Events,
		"publishes", stats.Publishes,
		"failed", stats.Failed,
	)
	return stats, nil
}

func (s *Simulator) publish(topic string, r types.Reading) bool {
	payload, err := json.Marshal(r)
	if err != nil {
		s.logger.Error("marshal reading", "topic", topic, "error", err)
		return false
	}
	if err := s.pub.Publish(topic, payload); err != nil {
		s.logger.Debug("publish failed", "topic", topic, "error", err)
		return false
	}
	return true
}

func (s *Simulator) record(ctx context.Context, topic string, r types.Reading, published bool) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, topic, r, published); err != nil {
		s.logger.Warn("journal write failed", "topic", topic, "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
