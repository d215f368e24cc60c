package container

import (
	"fmt"
	"net/http"

	"github.com/jdsidebottom/foliumai/internal/config"
	"github.com/jdsidebottom/foliumai/internal/factory"
	"github.com/jdsidebottom/foliumai/internal/logger"
	"github.com/jdsidebottom/foliumai/internal/observer"
	"github.com/jdsidebottom/foliumai/internal/plantid"
	"github.com/jdsidebottom/foliumai/internal/service"
	"github.com/jdsidebottom/foliumai/internal/transport"
)

// Container holds all server dependencies
type Container struct {
	config          *config.Config
	publisher       *observer.EventPublisher
	metricsObserver *observer.MetricsObserver
	service         service.IdentificationService
	handler         http.Handler
}

// NewContainer builds the dependency graph from cfg. Client options are
// passed to the Plant.id client.
func NewContainer(cfg *config.Config, version string, clientOpts ...plantid.Option) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	client := factory.NewPlantIDClient(cfg, clientOpts...)

	identificationStrategy, err := factory.NewStrategyFactory(cfg, client).
		CreateStrategy(factory.StrategyType(cfg.Strategy))
	if err != nil {
		return nil, err
	}

	publisher := observer.NewEventPublisher()
	metricsObserver := observer.NewMetricsObserver()
	publisher.Subscribe(observer.NewLoggingObserver(logger.Logger))
	publisher.Subscribe(metricsObserver)

	svc := service.NewIdentificationService(identificationStrategy, publisher, service.Options{
		UpstreamTimeout: cfg.UpstreamTimeout,
		MaxImageKB:      cfg.MaxImageKB,
		APIKeyPresent:   cfg.HasAPIKey(),
	})
	handler := transport.NewHandler(svc, metricsObserver, cfg, version)

	return &Container{
		config:          cfg,
		publisher:       publisher,
		metricsObserver: metricsObserver,
		service:         svc,
		handler:         handler,
	}, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Service returns the identification service
func (c *Container) Service() service.IdentificationService {
	return c.service
}

// Close delivers pending event notifications and stops the publisher
func (c *Container) Close() {
	c.publisher.Close()
}
