package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/GeoCore/config"
	"github.com/BearBump/GeoCore/internal/broker/kafka"
	"github.com/BearBump/GeoCore/internal/cache/rediscache"
	"github.com/BearBump/GeoCore/internal/integrations/geoprovider/gmapshttp"
	"github.com/BearBump/GeoCore/internal/integrations/registry/corehttp"
	"github.com/BearBump/GeoCore/internal/services/notifygate"
	"github.com/BearBump/GeoCore/internal/services/tripstate"
	"github.com/BearBump/GeoCore/internal/storage/pgfleet"
	"github.com/joho/godotenv"
)

type geoIngestApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     geoIngestOpts
	engine   *tripstate.Engine
	consumer *kafka.Consumer
	producer *kafka.Producer
	closeDB  func()
}

func mustBootstrapGeoIngest() *geoIngestApp {
	_ = godotenv.Load()

	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	consumerGroup := cfg.GeoCore.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "geo-ingest"
	}
	trackingTopic := cfg.Kafka.TruckTrackedTopicName
	if trackingTopic == "" {
		trackingTopic = "truck.tracked"
	}
	tripTopic := cfg.Kafka.TripUpdatedTopicName
	if tripTopic == "" {
		tripTopic = "trip.updated"
	}
	broadcastTopic := cfg.Kafka.LocationBroadcastTopicName
	if broadcastTopic == "" {
		broadcastTopic = "geo.location"
	}
	notificationTopic := cfg.Kafka.GeoNotificationTopicName
	if notificationTopic == "" {
		notificationTopic = "geo.notifications"
	}

	notificationTTL := time.Duration(cfg.GeoCore.NotificationTTLSeconds) * time.Second
	if notificationTTL <= 0 {
		notificationTTL = 24 * time.Hour
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)
	gate := notifygate.New(rc, notificationTTL)

	budget := rediscache.NewCallBudget(rediscache.NewRateLimiter(redisAddr), int64(cfg.Provider.CallBudgetPerMinute))
	provider := gmapshttp.New(cfg.Provider.BaseURL, cfg.Provider.APIKey, budget)
	reg := corehttp.New(cfg.Registry.BaseURL)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)
	consumer := kafka.NewConsumer(brokers, []string{trackingTopic, tripTopic}, consumerGroup)

	engine := tripstate.NewEngine(st, gate, reg, provider, producer, tripstate.Topics{
		Broadcast:     broadcastTopic,
		Notifications: notificationTopic,
	}, slog.Default())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &geoIngestApp{
		ctx:    ctx,
		cancel: cancel,
		opts: geoIngestOpts{
			httpAddr:      cfg.GeoCore.IngestHTTPAddr,
			trackingTopic: trackingTopic,
			tripTopic:     tripTopic,
			consumerGroup: consumerGroup,
		},
		engine:   engine,
		consumer: consumer,
		producer: producer,
		closeDB:  st.Close,
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgfleet.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgfleet.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *geoIngestApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.producer != nil {
		_ = a.producer.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *geoIngestApp) Run() error {
	return runGeoIngest(a.ctx, a.opts, a.engine, a.consumer)
}
