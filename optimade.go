// Package optimade serves and queries OPTIMADE materials databases. It
// parses the OPTIMADE filter language, lowers filters for document and
// relational backends, and exposes entry collections over HTTP.
package optimade

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/nlstn/go-optimade/internal/collection"
	"github.com/nlstn/go-optimade/internal/grammar"
	"github.com/nlstn/go-optimade/internal/observability"
)

// ServiceConfig controls optional service behaviours.
type ServiceConfig struct {
	// BasePath is the path prefix collections are served under, e.g. "/v1".
	BasePath string
	// DefaultPageLimit applies when a request sets no page_limit.
	DefaultPageLimit int
	// MaxPageLimit caps page_limit.
	MaxPageLimit int
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// ObservabilityConfig configures tracing, metrics and Server-Timing.
type ObservabilityConfig = observability.Config

// Optional instrumentation, combined in ObservabilityConfig.Features.
const (
	StatementSpans  = observability.FeatureStatementSpans
	FilterAttribute = observability.FeatureFilterAttribute
	ServerTiming    = observability.FeatureServerTiming
)

// Service serves a set of entry collections.
type Service struct {
	cfg      ServiceConfig
	registry *grammar.Registry
	// collections holds registered collections keyed by endpoint name
	collections map[string]*collection.Collection
	mu          sync.RWMutex
	// observability is nil until SetObservability is called
	observability *observability.Config
	logger        *slog.Logger
}

// NewService creates a service without collections.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.DefaultPageLimit < 0 || cfg.MaxPageLimit < 0 {
		return nil, fmt.Errorf("optimade: page limits must not be negative")
	}
	if cfg.BasePath != "" {
		cfg.BasePath = "/" + strings.Trim(cfg.BasePath, "/")
	}

	registry, err := grammar.LoadEmbedded()
	if err != nil {
		return nil, fmt.Errorf("optimade: failed to load filter grammars: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		cfg:         cfg,
		registry:    registry,
		collections: make(map[string]*collection.Collection),
		logger:      logger,
	}, nil
}

// SetLogger sets a custom logger for the service and its collections.
// If not called, slog.Default() is used.
func (s *Service) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
	for _, c := range s.collections {
		c.SetLogger(logger)
	}
}

// SetObservability enables tracing, metrics and Server-Timing. It must be
// called before collections are registered.
func (s *Service) SetObservability(cfg ObservabilityConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.collections) > 0 {
		return fmt.Errorf("optimade: observability must be configured before collections are registered")
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "optimade-service"
	}
	cfg.Initialize()
	s.observability = &cfg
	return nil
}

// Observability returns the observability configuration, nil when unset.
func (s *Service) Observability() *ObservabilityConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.observability
}

// RegisterCollection serves backend under name. transformCfg declares the
// collection's fields and aliases; nil accepts every field.
func (s *Service) RegisterCollection(name string, backend Backend, transformCfg *TransformConfig) error {
	if strings.Contains(name, "/") {
		return fmt.Errorf("optimade: collection name %q must not contain '/'", name)
	}
	if name == "info" {
		return fmt.Errorf("optimade: collection name %q is reserved", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.collections[name]; exists {
		return fmt.Errorf("optimade: collection %q is already registered", name)
	}

	c, err := collection.New(name, backend, collection.Options{
		Registry:         s.registry,
		Transform:        transformCfg,
		DefaultPageLimit: s.cfg.DefaultPageLimit,
		MaxPageLimit:     s.cfg.MaxPageLimit,
		Logger:           s.logger,
		Observability:    s.observability,
	})
	if err != nil {
		return fmt.Errorf("optimade: %w", err)
	}
	s.collections[name] = c
	s.logger.Debug("registered collection", "collection", name, "backend", backend.Name())
	return nil
}

// Collections returns the registered collection names in sorted order.
func (s *Service) Collections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GrammarVersions lists the accepted filter grammar versions.
func (s *Service) GrammarVersions() []string {
	versions := s.registry.Versions()
	out := make([]string, len(versions))
	for i, v := range versions {
		out[i] = v.String()
	}
	return out
}

func (s *Service) collection(name string) (*collection.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return c, nil
}

// Find runs req against a collection and returns one page.
func (s *Service) Find(ctx context.Context, name string, req Request) (*Page, error) {
	c, err := s.collection(name)
	if err != nil {
		return nil, err
	}
	return c.Find(ctx, req)
}

// FindByID returns the page holding the entry with the given id.
func (s *Service) FindByID(ctx context.Context, name, id string, req Request) (*Page, error) {
	c, err := s.collection(name)
	if err != nil {
		return nil, err
	}
	return c.FindByID(ctx, id, req)
}
