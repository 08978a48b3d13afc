package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"commerce-access/internal/usecase"
)

// JobRunner is a background job that can also be triggered on demand.
type JobRunner interface {
	RunOnce(ctx context.Context) (int, error)
}

// WebhookDeduper remembers handled provider deliveries. Satisfied by redis.WebhookSeen.
type WebhookDeduper interface {
	Seen(ctx context.Context, id string) bool
	Mark(ctx context.Context, id string) error
}

type Deps struct {
	Payments usecase.PaymentUseCase
	Claims   usecase.ClaimUseCase
	Offers   usecase.OfferUseCase
	Users    usecase.UserUseCase
	Access   usecase.AccessUseCase

	Auth    *AuthManager
	Limiter Limiter
	Seen    WebhookDeduper

	Sweep     JobRunner
	Reconcile JobRunner

	// Health reports store reachability; nil means always healthy.
	Health func(ctx context.Context) error

	WebhookSecret  string
	AdminKey       string
	RateLimit      int
	RateWindow     time.Duration
	RequestTimeout time.Duration
}

type Server struct {
	d   Deps
	log *zerolog.Logger
}

func NewServer(d Deps, logger *zerolog.Logger) *Server {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 15 * time.Second
	}
	if d.RateWindow <= 0 {
		d.RateWindow = time.Minute
	}
	l := logger.With().Str("component", "api").Logger()
	return &Server{d: d, log: &l}
}

// Routes builds the HTTP handler of the service.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(TraceID(), Recover(s.log), RequestLog(s.log))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	limit := func(route string) Middleware {
		return RateLimit(s.d.Limiter, route, s.d.RateLimit, s.d.RateWindow, s.log)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Timeout(s.d.RequestTimeout))

		r.With(SharedSecret(s.d.WebhookSecret)).Post("/webhooks/payments", s.handleWebhook)

		r.With(s.d.Auth.OptionalCaller(), limit("checkout")).Post("/checkout", s.handleCheckout)
		r.With(s.d.Auth.OptionalCaller(), limit("oto")).Get("/oto/{code}", s.handleOtoPreview)

		r.Group(func(r chi.Router) {
			r.Use(s.d.Auth.RequireCaller())
			r.With(limit("verify")).Post("/payments/{id}/verify", s.handleVerify)
			r.With(limit("claim")).Post("/auth/claim", s.handleClaim)
			r.Get("/me/access", s.handleMyAccess)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(SharedSecret(s.d.AdminKey))
			r.Post("/sweep", s.handleRunJob("sweep", s.d.Sweep))
			r.Post("/reconcile", s.handleRunJob("reconcile", s.d.Reconcile))
			r.Get("/payments/{id}", s.handleAdminPayment)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.d.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.d.Health(ctx); err != nil {
			s.log.Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
