/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the frontend
  5. httprate:   Per-IP limit on write routes only

ROUTE GROUPS:
  /api/contracts/*     Contracts, accounts, payments, cancellation
  /api/payments/*      Payment edit/delete
  /api/lots/*          Lot status projection
  /api/salespeople/*   Commission balance and payments
  /api/commissions     All commission balances
  /api/portfolio       Delinquency dashboard
  /api/scenarios/*     Demo scenarios
  /api/health          Liveness

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

// RouterConfig tunes the middleware stack.
type RouterConfig struct {
	AllowedOrigins []string

	// WriteRateLimit is requests per minute per IP on mutating routes.
	// Zero disables the limiter.
	WriteRateLimit int
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	writes := func(next http.Handler) http.Handler { return next }
	if cfg.WriteRateLimit > 0 {
		writes = httprate.Limit(cfg.WriteRateLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		// Contract routes
		r.Route("/contracts", func(r chi.Router) {
			r.With(writes).Post("/", h.CreateContract)
			r.Get("/{id}", h.GetContract)
			r.Get("/{id}/account", h.GetAccount)
			r.Get("/{id}/payments", h.ListPayments)

			r.Group(func(r chi.Router) {
				r.Use(writes)
				r.Post("/{id}/amend", h.AmendContract)
				r.Post("/{id}/payments", h.ApplyPayment)
				r.Post("/{id}/cancellation", h.RequestCancellation)
				r.Post("/{id}/cancel", h.CancelContract)
			})
		})

		// Payment routes
		r.Route("/payments", func(r chi.Router) {
			r.Use(writes)
			r.Put("/{id}", h.EditPayment)
			r.Delete("/{id}", h.DeletePayment)
		})

		r.Get("/lots/{id}/status", h.GetLotStatus)

		// Commission routes
		r.Route("/salespeople", func(r chi.Router) {
			r.Get("/{id}/commission", h.GetCommission)
			r.With(writes).Post("/{id}/commission-payments", h.RecordCommissionPayment)
		})
		r.Get("/commissions", h.ListCommissions)

		r.Get("/portfolio", h.GetPortfolio)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			if h.Seeder != nil {
				r.Post("/load", h.LoadScenario)
			}
		})
	})

	return r
}
