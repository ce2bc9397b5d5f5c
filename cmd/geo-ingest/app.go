package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/BearBump/GeoCore/internal/broker/messages"
	"github.com/BearBump/GeoCore/internal/services/tripstate"
	"github.com/go-chi/chi/v5"
)

type geoIngestOpts struct {
	httpAddr string

	trackingTopic string
	tripTopic     string
	consumerGroup string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(topic string, key, value []byte) error) error
}

// ingestHandler routes one Kafka message to the engine by topic. Errors
// propagate so the offset stays uncommitted and the message is redelivered.
func ingestHandler(ctx context.Context, opts geoIngestOpts, engine *tripstate.Engine) func(topic string, key, value []byte) error {
	return func(topic string, key, value []byte) error {
		switch topic {
		case opts.trackingTopic:
			var m messages.TruckTracked
			if err := json.Unmarshal(value, &m); err != nil {
				return err
			}
			return engine.ApplyTracking(ctx, m)
		case opts.tripTopic:
			var m messages.TripUpdated
			if err := json.Unmarshal(value, &m); err != nil {
				return err
			}
			return engine.ApplyTripUpdate(ctx, m)
		default:
			slog.Warn("message from unexpected topic, skipped", "topic", topic)
			return nil
		}
	}
}

func runGeoIngest(ctx context.Context, opts geoIngestOpts, engine *tripstate.Engine, consumer kafkaConsumer) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8081"
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	srv := &http.Server{Handler: r}
	httpErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()
	go func() {
		httpErr <- srv.Serve(lis)
	}()

	slog.Info("kafka consumer started",
		"topics", []string{opts.trackingTopic, opts.tripTopic}, "group", opts.consumerGroup)
	consumerErr := make(chan error, 1)
	go func() {
		consumerErr <- consumer.Consume(ctx, ingestHandler(ctx, opts, engine))
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-consumerErr:
		return err
	case err := <-httpErr:
		return err
	}
}
