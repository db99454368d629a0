package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/nlstn/go-optimade"
	"github.com/nlstn/go-optimade/internal/collection/docstore"
	"github.com/nlstn/go-optimade/internal/collection/relational"
	"github.com/nlstn/go-optimade/internal/config"
)

// registerCollections opens the store of every configured collection,
// loads its data file and registers it. The returned closers release the
// database connections opened so far, also on error.
func registerCollections(ctx context.Context, service *optimade.Service, cfg *config.Config, logger *slog.Logger) ([]func() error, error) {
	var closers []func() error
	for _, cc := range cfg.Collections {
		var data []byte
		if cc.DataFile != "" {
			var err error
			if data, err = os.ReadFile(cc.DataFile); err != nil {
				return closers, fmt.Errorf("collection %q: %w", cc.Name, err)
			}
		}

		transformCfg := cc.Transform
		var backend optimade.Backend
		switch cc.Backend {
		case config.BackendMemory:
			store, err := docstore.New()
			if err != nil {
				return closers, err
			}
			if data != nil {
				if err := store.InsertJSON(data); err != nil {
					return closers, fmt.Errorf("collection %q: %w", cc.Name, err)
				}
			}
			backend = store

		case config.BackendSQLite, config.BackendPostgres:
			store, err := relational.Open(cc.Backend, cc.DSN,
				relational.WithLogger(logger.With("collection", cc.Name)),
				relational.WithSchema(&transformCfg),
				relational.WithObservability(service.Observability()))
			if err != nil {
				return closers, fmt.Errorf("collection %q: %w", cc.Name, err)
			}
			closers = append(closers, store.Close)
			if data != nil {
				if err := store.InsertJSON(ctx, data); err != nil {
					return closers, fmt.Errorf("collection %q: %w", cc.Name, err)
				}
			}
			backend = store

		default:
			return closers, fmt.Errorf("collection %q: unknown backend %q", cc.Name, cc.Backend)
		}

		if err := service.RegisterCollection(cc.Name, backend, &transformCfg); err != nil {
			return closers, err
		}
		logger.Info("Registered collection", "name", cc.Name, "backend", cc.Backend, "data_file", cc.DataFile)
	}
	return closers, nil
}
