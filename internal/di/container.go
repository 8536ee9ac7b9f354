package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/uniformfit/measure/internal/platform/config"
	pfirestore "github.com/uniformfit/measure/internal/platform/firestore"
	"github.com/uniformfit/measure/internal/platform/jobs"
	"github.com/uniformfit/measure/internal/platform/observability"
	"github.com/uniformfit/measure/internal/repositories"
	fsrepo "github.com/uniformfit/measure/internal/repositories/firestore"
	memrepo "github.com/uniformfit/measure/internal/repositories/memory"
	"github.com/uniformfit/measure/internal/services"
)

// Ports carries the boundary collaborators the engine depends on but does not
// own: the school backend's measurement data fetch, order submission, and
// final confirmation.
type Ports struct {
	MeasurementData repositories.MeasurementDataRepository
	Submitter       services.OrderSubmitter
	Confirmer       services.OrderConfirmer
}

// Services bundles the engine's service-layer contracts assembled by NewContainer.
type Services struct {
	Catalog     services.CatalogService
	Uniforms    services.UniformItemService
	Supplies    services.SupplyItemService
	Sessions    services.SessionService
	Measurement services.MeasurementService
}

// Container wires configuration, persistence, and the engine services for runtime use.
type Container struct {
	Config   config.Config
	Logger   *zap.Logger
	Services Services

	firestoreProvider *pfirestore.Provider
	pubsubClient      *pubsub.Client
}

// NewContainer constructs the runtime dependencies. Session snapshots persist
// to Firestore when a project is configured and session resume is enabled,
// falling back to the in-memory store otherwise; the export publisher is wired
// only when export jobs are enabled.
func NewContainer(ctx context.Context, cfg config.Config, ports Ports) (*Container, error) {
	if ports.MeasurementData == nil {
		return nil, errors.New("measurement data port is required")
	}
	if ports.Submitter == nil {
		return nil, errors.New("order submitter port is required")
	}
	if ports.Confirmer == nil {
		return nil, errors.New("order confirmer port is required")
	}

	logger, err := observability.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	events := observability.EventLogger(logger)

	container := &Container{Config: cfg, Logger: logger}

	var sessionRepo repositories.SessionSnapshotRepository
	if cfg.Features.EnableSessionResume && cfg.Firestore.ProjectID != "" {
		container.firestoreProvider = pfirestore.NewProvider(cfg.Firestore)
		repo, err := fsrepo.NewSessionSnapshotRepository(container.firestoreProvider, cfg.Session.Collection)
		if err != nil {
			return nil, fmt.Errorf("build session repository: %w", err)
		}
		sessionRepo = repo
	} else {
		sessionRepo = memrepo.NewSessionSnapshotRepository()
	}

	var exporter services.ExportJobPublisher
	if cfg.Features.EnableExportJobs && cfg.Jobs.ProjectID != "" && cfg.Jobs.ExportTopicID != "" {
		client, err := pubsub.NewClient(ctx, cfg.Jobs.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("build pubsub client: %w", err)
		}
		container.pubsubClient = client
		publisher, err := jobs.NewPubSubExportPublisher(client.Topic(cfg.Jobs.ExportTopicID))
		if err != nil {
			return nil, fmt.Errorf("build export publisher: %w", err)
		}
		exporter = publisher
	}

	svc, err := buildServices(cfg, ports, sessionRepo, exporter, events)
	if err != nil {
		return nil, err
	}
	container.Services = svc
	return container, nil
}

// Close releases the persistence and messaging clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.pubsubClient != nil {
		if err := c.pubsubClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pubsub client: %w", err))
		}
	}
	if c.firestoreProvider != nil {
		if err := c.firestoreProvider.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close firestore provider: %w", err))
		}
	}
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
	return errors.Join(errs...)
}

func buildServices(
	cfg config.Config,
	ports Ports,
	sessionRepo repositories.SessionSnapshotRepository,
	exporter services.ExportJobPublisher,
	events func(context.Context, string, map[string]any),
) (Services, error) {
	var svc Services

	catalog, err := services.NewCatalogService(services.CatalogServiceDeps{
		Repository: ports.MeasurementData,
		Clock:      time.Now,
		Location:   cfg.Locale.Location(),
		Logger:     events,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalog

	uniforms, err := services.NewUniformItemService(services.UniformItemServiceDeps{
		Clock:  time.Now,
		Logger: events,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build uniform item service: %w", err)
	}
	svc.Uniforms = uniforms

	supplies, err := services.NewSupplyItemService(services.SupplyItemServiceDeps{
		Clock:  time.Now,
		Logger: events,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build supply item service: %w", err)
	}
	svc.Supplies = supplies

	sessions, err := services.NewSessionService(services.SessionServiceDeps{
		Repository: sessionRepo,
		Clock:      time.Now,
		TTL:        cfg.Session.SnapshotTTL,
		Logger:     events,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build session service: %w", err)
	}
	svc.Sessions = sessions

	measurement, err := services.NewMeasurementService(services.MeasurementServiceDeps{
		Catalog:   catalog,
		Uniforms:  uniforms,
		Supplies:  supplies,
		Sessions:  sessions,
		Submitter: ports.Submitter,
		Confirmer: ports.Confirmer,
		Exporter:  exporter,
		Clock:     time.Now,
		Logger:    events,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build measurement service: %w", err)
	}
	svc.Measurement = measurement

	return svc, nil
}
