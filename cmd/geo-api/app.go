package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/BearBump/GeoCore/internal/api/geohttp"
)

type geoAPIOpts struct {
	httpAddr string

	onListen func(httpAddr string)
}

func runGeoAPI(ctx context.Context, opts geoAPIOpts, api *geohttp.Server) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8080"
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	srv := &http.Server{Handler: api.Router()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	slog.Info("HTTP server listening", "addr", lis.Addr().String())
	return srv.Serve(lis)
}
