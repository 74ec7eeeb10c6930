package controller

import (
	"net/http"
	"time"

	"github.com/cassiomorais/pixrelay/internal/domain/idempotency"
	"github.com/cassiomorais/pixrelay/internal/infrastructure/config"
	"github.com/cassiomorais/pixrelay/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/pixrelay/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const defaultRequestTimeout = 90 * time.Second

type RouterDeps struct {
	Charges          ChargeService
	Webhooks         WebhookHandler
	Store            Pinger
	StoreBackend     string
	MissingEnv       []string
	IdempotencyStore idempotency.Store
	IdempotencyTTL   time.Duration
	Metrics          *observability.Metrics
	Gatherer         prometheus.Gatherer
	CORSConfig       config.CORSConfig
	RateLimit        int
	JWTSecret        string
	WebhookMaxBody   int64
	RequestTimeout   time.Duration
	Logger           zerolog.Logger
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.SecurityHeaders())
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.Store, deps.StoreBackend, deps.MissingEnv)
	chargeH := NewChargeController(deps.Charges)
	webhookH := NewWebhookController(deps.Webhooks, deps.WebhookMaxBody, observability.Component(deps.Logger, "webhook"))

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1/pix", func(r chi.Router) {
		// Providers call the webhook without our credentials.
		r.HandleFunc("/webhook", webhookH.Receive)
		r.HandleFunc("/webhook/pix", webhookH.Receive)

		r.Group(func(r chi.Router) {
			if deps.JWTSecret != "" {
				r.Use(customMW.RequireAuth(deps.JWTSecret))
			}

			create := []func(http.Handler) http.Handler{customMW.RateLimit(deps.RateLimit)}
			if deps.IdempotencyStore != nil {
				create = append(create, customMW.Idempotency(deps.IdempotencyStore, deps.IdempotencyTTL, deps.Logger))
			}

			r.With(create...).Post("/charges", chargeH.CreateCharge)
			r.Get("/status", chargeH.Status)
		})
	})

	return r
}
