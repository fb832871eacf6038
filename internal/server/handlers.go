package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nasirucode/xerosync/internal/appctx"
	"github.com/nasirucode/xerosync/internal/mapper"
	"github.com/nasirucode/xerosync/internal/store"
	"github.com/nasirucode/xerosync/internal/sync"
	"github.com/nasirucode/xerosync/internal/xero"
)

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, map[string]string{"error": message})
}

// sendOpError maps domain errors onto HTTP statuses.
func sendOpError(w http.ResponseWriter, err error) {
	var me *mapper.MappingError
	var ae *xero.AuthError
	var ge *xero.GatewayError

	switch {
	case errors.Is(err, store.ErrNotFound):
		sendError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &me),
		errors.Is(err, sync.ErrUnresolvedContact),
		errors.Is(err, sync.ErrUnresolvedReference),
		errors.Is(err, sync.ErrAlreadySettled):
		sendError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &ae):
		sendError(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &ge):
		sendError(w, http.StatusBadGateway, err.Error())
	default:
		sendError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleAuthorizeURL(w http.ResponseWriter, r *http.Request) {
	u, err := s.deps.Tokens.AuthorizationURL(r.URL.Query().Get("state"))
	if err != nil {
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{"url": u})
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cred, err := s.deps.Tokens.ExchangeCode(r.Context(), req.Code)
	if err != nil {
		sendOpError(w, err)
		return
	}

	// Connection test is best-effort; authorization already succeeded.
	var orgName string
	if org, err := s.deps.Tokens.TestConnection(r.Context(), s.deps.Gateway); err == nil {
		orgName = org.Name
	} else {
		appctx.GetLogger(r.Context()).Warn("connection test failed", "error", err)
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"tenant_id":    cred.TenantID,
		"tenant_name":  cred.TenantName,
		"expires_at":   cred.ExpiresAt,
		"organisation": orgName,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"authorized":        false,
		"scheduler_enabled": s.cfg.SchedulerEnabled(),
		"store_driver":      s.deps.Store.Name(),
	}
	if cred, err := s.deps.Store.GetCredential(r.Context()); err == nil && cred.AccessToken != "" {
		status["authorized"] = true
		status["tenant_id"] = cred.TenantID
		status["tenant_name"] = cred.TenantName
		status["expires_at"] = cred.ExpiresAt
	}
	sendJSON(w, http.StatusOK, status)
}

func (s *Server) handleSyncPayments(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Engine.SyncInvoicePayments(r.Context())
	if err != nil {
		sendOpError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, res)
}

func (s *Server) handleSyncVoided(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Engine.SyncVoidedInvoices(r.Context())
	if err != nil {
		sendOpError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, res)
}

func (s *Server) handlePushInvoice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Engine.PushInvoice(r.Context(), id); err != nil {
		sendOpError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{"invoice": id, "result": "pushed"})
}

func (s *Server) handleCancelInvoice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Engine.CancelInvoice(r.Context(), id); err != nil {
		sendOpError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{"invoice": id, "result": "cancelled"})
}

func (s *Server) handlePushPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Engine.PushPayment(r.Context(), id); err != nil {
		sendOpError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{"payment": id, "result": "pushed"})
}

func (s *Server) handlePushContact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	remoteID, err := s.deps.Engine.PushContact(r.Context(), id)
	if err != nil {
		sendOpError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{"contact": id, "remote_id": remoteID})
}
