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
	"github.com/BearBump/GeoCore/internal/api/geohttp"
	"github.com/BearBump/GeoCore/internal/cache/rediscache"
	"github.com/BearBump/GeoCore/internal/integrations/geoprovider/gmapshttp"
	"github.com/BearBump/GeoCore/internal/integrations/registry/corehttp"
	"github.com/BearBump/GeoCore/internal/services/congestion"
	"github.com/BearBump/GeoCore/internal/services/fleet"
	"github.com/BearBump/GeoCore/internal/services/geocode"
	"github.com/BearBump/GeoCore/internal/services/proximity"
	"github.com/BearBump/GeoCore/internal/storage/pgfleet"
	"github.com/joho/godotenv"
)

type geoAPIApp struct {
	ctx     context.Context
	cancel  context.CancelFunc
	opts    geoAPIOpts
	api     *geohttp.Server
	closeDB func()
}

func mustBootstrapGeoAPI() *geoAPIApp {
	_ = godotenv.Load()

	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.GeoCore.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	geocodeTTL := time.Duration(cfg.GeoCore.GeocodeTTLSeconds) * time.Second

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)

	budget := rediscache.NewCallBudget(rediscache.NewRateLimiter(redisAddr), int64(cfg.Provider.CallBudgetPerMinute))
	provider := gmapshttp.New(cfg.Provider.BaseURL, cfg.Provider.APIKey, budget)
	reg := corehttp.New(cfg.Registry.BaseURL)

	log := slog.Default()
	geocodeSvc := geocode.New(provider, rc, geocodeTTL)
	api := geohttp.New(
		proximity.New(st, provider, geocodeSvc, log),
		fleet.New(st, reg, provider, log),
		congestion.New(provider, log),
		geocodeSvc,
		st,
		log,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &geoAPIApp{
		ctx:     ctx,
		cancel:  cancel,
		opts:    geoAPIOpts{httpAddr: httpAddr},
		api:     api,
		closeDB: st.Close,
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

func (a *geoAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *geoAPIApp) Run() error {
	return runGeoAPI(a.ctx, a.opts, a.api)
}
