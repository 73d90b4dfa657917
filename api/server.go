/*
server.go - HTTP router and middleware configuration

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, copied into every log line
  2. hlog:       zerolog access log (method, url, status, size, duration)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the POS frontend

ROUTE GROUPS:
  /api/accounts/*       Customer accounts and their movements
  /api/movements/*      Edit / delete a single movement
  /api/sales/*          Direct sales
  /api/credit-notes/*   Credit notes
  /api/products/*       Catalog (stock levels)
  /api/reports/*        Dashboard and period totals
  /api/scenarios/*      Demo data loaders (scenarios.go)

SECURITY NOTE:
  No authentication middleware. The X-User header, when present, is stored
  as CreatedBy on new records.
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r.Use(middleware.RequestID)
	r.Use(hlog.NewHandler(h.log))
	r.Use(requestIDLogger)
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User"},
		AllowCredentials: false,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Post("/", h.CreateAccount)
			r.Get("/paid-off", h.ListPaidOffAccounts)
			r.Get("/{id}", h.GetAccount)
			r.Put("/{id}", h.UpdateAccount)
			r.Delete("/{id}", h.DeleteAccount)
			r.Get("/{id}/movements", h.ListMovements)
			r.Post("/{id}/movements", h.RecordMovement)
		})

		r.Route("/movements", func(r chi.Router) {
			r.Put("/{id}", h.UpdateMovement)
			r.Delete("/{id}", h.DeleteMovement)
		})

		r.Route("/sales", func(r chi.Router) {
			r.Get("/", h.ListSales)
			r.Post("/", h.RecordSale)
			r.Get("/available-for-credit-note", h.ListAvailableForCreditNote)
			r.Get("/{id}", h.GetSale)
			r.Put("/{id}", h.UpdateSale)
		})

		r.Route("/credit-notes", func(r chi.Router) {
			r.Get("/", h.ListCreditNotes)
			r.Post("/", h.RecordCreditNote)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.SaveProduct)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/summary", h.Summary)
			r.Get("/yearly", h.YearlyTotals)
			r.Get("/monthly", h.MonthlyTotals)
		})
	})

	return r
}

// requestIDLogger adds chi's request id to the request-scoped logger.
func requestIDLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			log := zerolog.Ctx(r.Context())
			log.UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("request_id", id)
			})
		}
		next.ServeHTTP(w, r)
	})
}
