package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nasirucode/xerosync/internal/config"
)

// setupRoutes creates the chi router with all endpoints mounted.
// The webhook endpoint is public and gated by signature verification; the
// admin API is gated by basic auth.
func (s *Server) setupRoutes() chi.Router {
	r := chi.NewRouter()

	// RequestID must come first so GetReqID works in the request logger.
	// accessLog wraps the response so Recoverer panics log the right status.
	r.Use(middleware.RequestID)
	r.Use(requestLoggerMiddleware(s.logger))
	r.Use(s.accessLogMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Handle(config.WebhookPath, s.webhook)

	if s.acme != nil {
		r.Handle("/.well-known/acme-challenge/*", s.acme.ChallengeHandler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.deps.Auth.Middleware)

		r.Get("/authorize-url", s.handleAuthorizeURL)
		r.Post("/authorize", s.handleAuthorize)
		r.Get("/status", s.handleStatus)

		r.Post("/sync/payments", s.handleSyncPayments)
		r.Post("/sync/voided", s.handleSyncVoided)

		r.Post("/invoices/{id}/push", s.handlePushInvoice)
		r.Post("/invoices/{id}/cancel", s.handleCancelInvoice)
		r.Post("/payments/{id}/push", s.handlePushPayment)
		r.Post("/contacts/{id}/push", s.handlePushContact)
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
