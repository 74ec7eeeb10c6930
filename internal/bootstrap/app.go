package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/cassiomorais/pixrelay/internal/controller"
	"github.com/cassiomorais/pixrelay/internal/domain/charge"
	"github.com/cassiomorais/pixrelay/internal/domain/idempotency"
	"github.com/cassiomorais/pixrelay/internal/infrastructure/config"
	"github.com/cassiomorais/pixrelay/internal/infrastructure/observability"
	"github.com/cassiomorais/pixrelay/internal/infrastructure/pix"
	infraRedis "github.com/cassiomorais/pixrelay/internal/infrastructure/redis"
	"github.com/cassiomorais/pixrelay/internal/repository/memory"
	"github.com/cassiomorais/pixrelay/internal/repository/postgres"
	redisrepo "github.com/cassiomorais/pixrelay/internal/repository/redis"
	"github.com/cassiomorais/pixrelay/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const retentionInterval = time.Hour

var (
	errInvalidBundle = errors.New("invalid certificate bundle or passphrase")
	errInvalidCA     = errors.New("invalid CA certificate")
)

// StatusStore is a charge.Repository that can report its own health.
type StatusStore interface {
	charge.Repository
	Ping(ctx context.Context) error
}

type App struct {
	Config      *config.Config
	Logger      zerolog.Logger
	Metrics     *observability.Metrics
	Registry    *prometheus.Registry
	Store       StatusStore
	Idempotency idempotency.Store
	Events      service.EventPublisher
	// Factory is nil while provider credentials are missing or unusable.
	Factory *pix.Factory
	Missing []string
	Pool    *pgxpool.Pool
	Redis   *redis.Client

	statusTable *postgres.StatusStore
	idemTable   *postgres.IdempotencyRepository
	tracer      *sdktrace.TracerProvider
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout)
	log.Logger = logger
	logger.Info().Str("service", serviceName).Str("store", cfg.Store.Backend).Msg("Starting")

	var tp *sdktrace.TracerProvider
	if cfg.Observability.EnableTracing {
		tp, err = observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			logger.Info().Msg("Tracing enabled")
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app, err := newApp(ctx, cfg, logger, reg, metricsNamespace)
	if err != nil {
		if tp != nil {
			_ = observability.Shutdown(context.Background(), tp)
		}
		return nil, err
	}
	app.tracer = tp
	return app, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, reg *prometheus.Registry, metricsNamespace string) (*App, error) {
	app := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Metrics:  observability.NewMetrics(metricsNamespace, reg),
		Events:   service.NopPublisher{},
	}

	if err := app.openStores(ctx); err != nil {
		app.Close()
		return nil, err
	}

	app.Missing = cfg.Provider.Missing()
	if len(app.Missing) > 0 {
		logger.Error().
			Strs("missing", app.Missing).
			Msg("Provider credentials missing, charge creation disabled")
		return app, nil
	}

	factory, err := NewProviderFactory(cfg.Provider, app.Metrics, logger)
	if err != nil {
		app.Missing = []string{unusableCredential(err)}
		logger.Error().
			Err(err).
			Strs("missing", app.Missing).
			Msg("Provider credentials unusable, charge creation disabled")
		return app, nil
	}
	app.Factory = factory
	logger.Info().Str("api_base", cfg.Provider.APIBase).Msg("Provider client ready")
	return app, nil
}

func (a *App) openStores(ctx context.Context) error {
	switch a.Config.Store.Backend {
	case config.StoreRedis:
		client, err := infraRedis.NewClient(ctx, &a.Config.Redis, a.Logger)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		a.Redis = client
		a.Store = redisrepo.NewStatusStore(client, a.Config.Store.Retention)
		a.Idempotency = redisrepo.NewIdempotencyStore(client)
		a.Events = infraRedis.NewEventProducer(client, a.Config.Redis.EventStream)
		a.Logger.Info().Msg("Connected to Redis")

	case config.StorePostgres:
		if a.Config.Database.AutoMigrate {
			if err := postgres.MigrateUp(a.Config.Database.MigrationURL()); err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
			a.Logger.Info().Msg("Database migrations applied")
		}
		pool, err := postgres.NewPool(ctx, &a.Config.Database, a.Logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		a.Pool = pool
		a.statusTable = postgres.NewStatusStore(pool, postgres.NewTxManager(pool))
		a.idemTable = postgres.NewIdempotencyRepository(pool)
		a.Store = a.statusTable
		a.Idempotency = a.idemTable
		a.Logger.Info().Msg("Connected to PostgreSQL")

	default:
		a.Store = memory.NewStatusStore()
		a.Idempotency = memory.NewIdempotencyStore()
		a.Logger.Warn().Msg("Using in-memory status store, charges are lost on restart")
	}
	return nil
}

// NewProviderFactory decodes the credential bundle and wires the mTLS
// transport, token cache and breaker shared by every provider call.
func NewProviderFactory(cfg config.ProviderConfig, metrics *observability.Metrics, logger zerolog.Logger) (*pix.Factory, error) {
	cert, err := pix.LoadBundle(cfg.CertificateBase64, cfg.CertificatePassphrase)
	if err != nil {
		return nil, fmt.Errorf("load provider certificate: %w: %w", errInvalidBundle, err)
	}
	roots, err := pix.LoadRootCAs(cfg.CACertBase64)
	if err != nil {
		return nil, fmt.Errorf("load provider CA: %w: %w", errInvalidCA, err)
	}

	transport := pix.NewTransport(cert, roots)
	tokens := pix.NewTokenCache(
		pix.NewHTTPClient(transport, cfg.RequestTimeout),
		cfg.OAuthURL,
		cfg.ClientID,
		cfg.ClientSecret,
		pix.WithScope(cfg.OAuthScope),
		pix.WithMargin(cfg.TokenMargin),
		pix.WithTokenMetrics(metrics),
		pix.WithTokenLogger(observability.Component(logger, "token")),
	)

	return pix.NewFactory(pix.FactoryConfig{
		APIBase:      cfg.APIBase,
		PixPath:      cfg.PixPath,
		FallbackPath: cfg.QRFallbackPath,
		Timeout:      cfg.RequestTimeout,
		Breaker: pix.BreakerConfig{
			MaxRequests:  cfg.BreakerMaxRequests,
			Interval:     cfg.BreakerInterval,
			Timeout:      cfg.BreakerTimeout,
			FailureRatio: cfg.BreakerFailureRatio,
			MinRequests:  cfg.BreakerMinRequests,
		},
	}, transport, tokens, metrics, observability.Component(logger, "pix")), nil
}

// unusableCredential names the setting behind a factory failure, in the same
// form health reports missing variables.
func unusableCredential(err error) string {
	if errors.Is(err, errInvalidCA) {
		return "PIXRELAY_PROVIDER_CA_CERT_BASE64 (invalid)"
	}
	return "PIXRELAY_PROVIDER_CERTIFICATE_BASE64 (invalid bundle or passphrase)"
}

// Handler wires the services and returns the HTTP router.
func (a *App) Handler() http.Handler {
	var clients service.ClientFactory
	if a.Factory != nil {
		clients = service.PixClientFactory(a.Factory)
	}

	charges := service.NewChargeService(
		clients,
		a.Store,
		a.Events,
		service.ChargeConfig{
			PixKey:     a.Config.Provider.PixKey,
			Expiration: a.Config.Provider.ChargeExpiration,
		},
		a.Metrics,
		observability.Component(a.Logger, "charges"),
	)
	webhooks := service.NewWebhookService(
		a.Store,
		a.Events,
		service.WebhookConfig{
			ChallengeHeader: a.Config.Webhook.ChallengeHeader,
			ChallengeQuery:  a.Config.Webhook.ChallengeQuery,
			ChallengeField:  a.Config.Webhook.ChallengeField,
		},
		a.Metrics,
		observability.Component(a.Logger, "webhook"),
	)

	return controller.NewRouter(controller.RouterDeps{
		Charges:          charges,
		Webhooks:         webhooks,
		Store:            a.Store,
		StoreBackend:     a.Config.Store.Backend,
		MissingEnv:       a.Missing,
		IdempotencyStore: a.Idempotency,
		IdempotencyTTL:   a.Config.Store.IdempotencyTTL,
		Metrics:          a.Metrics,
		Gatherer:         a.Registry,
		CORSConfig:       a.Config.Server.CORS,
		RateLimit:        a.Config.Server.RateLimit,
		JWTSecret:        a.Config.Auth.JWTSecret,
		WebhookMaxBody:   a.Config.Webhook.MaxBodyBytes,
		RequestTimeout:   a.Config.Server.WriteTimeout,
		Logger:           a.Logger,
	})
}

// RunRetention prunes old charges and expired idempotency keys until ctx is
// cancelled. Redis expires keys on its own and memory is process-scoped, so
// only the postgres backend has work to do.
func (a *App) RunRetention(ctx context.Context) error {
	if a.statusTable == nil {
		return nil
	}
	logger := observability.Component(a.Logger, "retention")

	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()

	for {
		a.pruneOnce(ctx, logger)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (a *App) pruneOnce(ctx context.Context, logger zerolog.Logger) {
	if a.Config.Store.Retention > 0 {
		cutoff := time.Now().UTC().Add(-a.Config.Store.Retention)
		n, err := a.statusTable.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to prune charges")
		} else if n > 0 {
			logger.Info().Int64("deleted", n).Msg("Pruned old charges")
		}
	}

	n, err := a.idemTable.Cleanup(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to clean up idempotency keys")
	} else if n > 0 {
		logger.Info().Int64("deleted", n).Msg("Cleaned up idempotency keys")
	}
}

func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := observability.Shutdown(ctx, a.tracer); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to flush traces")
		}
	}
}
