// Command optimade-server serves the entry collections described by a YAML
// configuration file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nlstn/go-optimade"
	"github.com/nlstn/go-optimade/internal/config"
	"github.com/nlstn/go-optimade/internal/observability"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML configuration file (searched in ./, ./config and the user config dir when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}
	logger := cfg.Logger(os.Stderr)
	slog.SetDefault(logger)

	obs := observabilityConfig(cfg.Observability)

	service, err := optimade.NewService(optimade.ServiceConfig{
		BasePath:         cfg.Server.BasePath,
		DefaultPageLimit: cfg.Paging.DefaultPageLimit,
		MaxPageLimit:     cfg.Paging.MaxPageLimit,
		Logger:           logger,
	})
	if err != nil {
		log.Fatal("Failed to create service: ", err)
	}
	if err := service.SetObservability(*obs); err != nil {
		log.Fatal("Failed to configure observability: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	closers, err := registerCollections(ctx, service, cfg, logger)
	defer func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("Failed to close collection store", "error", err)
			}
		}
	}()
	if err != nil {
		logger.Error("Failed to set up collections", "error", err)
		return
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           service,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Shutdown did not complete", "error", err)
		}
	}()

	logger.Info("OPTIMADE server starting",
		"addr", cfg.Server.Addr,
		"base_path", cfg.Server.BasePath,
		"collections", service.Collections(),
		"grammars", service.GrammarVersions(),
		"observability", obs.Features.String())
	fmt.Printf("  Info:        http://localhost%s%s/info\n", cfg.Server.Addr, cfg.Server.BasePath)
	for _, name := range service.Collections() {
		fmt.Printf("  %-12s http://localhost%s%s/%s\n", name+":", cfg.Server.Addr, cfg.Server.BasePath, name)
	}

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server failed", "error", err)
	}
}

func observabilityConfig(c config.ObservabilityConfig) *observability.Config {
	obs := &observability.Config{ServiceName: c.ServiceName}
	if c.DetailedDBTracing {
		obs.Features |= observability.FeatureStatementSpans
	}
	if c.FilterTracing {
		obs.Features |= observability.FeatureFilterAttribute
	}
	if c.ServerTiming {
		obs.Features |= observability.FeatureServerTiming
	}
	return obs
}
