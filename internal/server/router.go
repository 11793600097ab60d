package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/diewo77/devispro/auth"
	"github.com/diewo77/devispro/internal/handlers"
	"github.com/diewo77/devispro/internal/middleware"
	"github.com/diewo77/devispro/internal/repository"
	"github.com/diewo77/devispro/internal/services"
)

// Deps are the collaborators the router is built from.
type Deps struct {
	Store   repository.Store
	Tokens  *auth.Authenticator
	Auth    *services.AuthService
	Quotes  *services.QuoteService
	Billing *services.BillingService
	Logger  *slog.Logger

	Version            string
	Features           map[string]bool
	CORSAllowedOrigins []string
	// RateLimitPerMinute bounds register and login attempts per client IP.
	RateLimitPerMinute int
}

// New constructs the root http.Handler with all routes and middlewares applied.
func New(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// RequireAuth also checks the token's user still exists.
	d.Tokens.SetUserVerifier(d.Auth.UserExists)
	d.Tokens.Unauthorized = handlers.Unauthorized

	authHandler := handlers.NewAuthHandler(d.Auth, logger)
	quoteHandler := handlers.NewQuoteHandler(d.Quotes, logger)
	billingHandler := handlers.NewBillingHandler(d.Billing, logger)
	health := handlers.NewHealthHandler(d.Store, d.Version, d.Features)

	limiter := middleware.NewRateLimiter(d.RateLimitPerMinute)
	limiter.Reject = handlers.RateLimited

	origins := d.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Metrics)
	r.Use(middleware.Logger(logger))
	r.Use(withRecover(logger))
	r.Use(middleware.Prefs)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Accept-Language"},
		ExposedHeaders: []string{"Content-Disposition", "X-PDF-Degraded"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handlers.Fail(w, r, http.StatusNotFound, "not_found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		handlers.Fail(w, r, http.StatusMethodNotAllowed, "method_not_allowed")
	})

	r.Get("/health", health.Health)
	r.Get("/healthz", health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", health.Health)
		r.Get("/healthz", health.Ready)
		r.Get("/test", health.Test)

		r.Group(func(r chi.Router) {
			r.Use(limiter.Middleware)
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
		})

		r.Post("/stripe-webhook", billingHandler.Webhook)

		r.Group(func(r chi.Router) {
			r.Use(d.Tokens.RequireAuth)
			r.Get("/user", authHandler.Me)
			r.Get("/me", authHandler.Me)
			r.Get("/credits", authHandler.Credits)

			r.Post("/create-checkout-session", billingHandler.Checkout)

			r.Route("/quotes", func(r chi.Router) {
				r.Get("/", quoteHandler.List)
				r.Post("/", quoteHandler.Create)
				r.Get("/{id}", quoteHandler.Get)
				r.Patch("/{id}/status", quoteHandler.UpdateStatus)
				r.Get("/{id}/pdf", quoteHandler.PDF)
				r.Get("/{id}/preview", quoteHandler.Preview)
			})
		})
	})
	return r
}

// withRecover turns a panicking handler into a JSON 500.
func withRecover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic recovered", "path", r.URL.Path, "panic", rec)
					handlers.Fail(w, r, http.StatusInternalServerError, "internal_error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
