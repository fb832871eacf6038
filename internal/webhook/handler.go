// Package webhook implements the remote ledger webhook ingress: challenge
// echo for endpoint verification and HMAC-verified event delivery.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/nasirucode/xerosync/internal/appctx"
	"github.com/nasirucode/xerosync/internal/logutil"
	"github.com/nasirucode/xerosync/internal/xero"
)

// SignatureHeader carries the base64 HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Xero-Signature"

// maxBodyBytes bounds webhook request bodies.
const maxBodyBytes = 1 << 20

// EventSink consumes verified webhook events.
type EventSink interface {
	HandleEvent(ctx context.Context, ev xero.WebhookEvent) error
}

// Handler is the webhook HTTP endpoint. Signature verification gates event
// processing; once the signature is accepted the response is always 200 so
// the sender never retries deliveries that failed downstream.
type Handler struct {
	secret []byte
	sink   EventSink
	logger *slog.Logger
}

// NewHandler builds a webhook handler with the shared signing secret.
func NewHandler(secret string, sink EventSink, logger *slog.Logger) *Handler {
	return &Handler{
		secret: []byte(secret),
		sink:   sink,
		logger: logutil.NoopIfNil(logger),
	}
}

type eventsPayload struct {
	Events []xero.WebhookEvent `json:"events"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.serveChallenge(w, r)
	case http.MethodPost:
		h.serveEvents(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// serveChallenge echoes the verification challenge during endpoint setup.
func (h *Handler) serveChallenge(w http.ResponseWriter, r *http.Request) {
	challenge := r.URL.Query().Get("challenge")
	if challenge == "" {
		http.Error(w, "missing challenge", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

func (h *Handler) serveEvents(w http.ResponseWriter, r *http.Request) {
	logger, ok := appctx.LoggerFromContext(r.Context())
	if !ok {
		logger = h.logger
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusInternalServerError)
		return
	}

	if !h.verify(body, r.Header.Get(SignatureHeader)) {
		logger.Warn("webhook signature rejected", "remote_addr", r.RemoteAddr)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var payload eventsPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		// Signature was valid; a malformed payload is still acknowledged.
		logger.Warn("webhook payload not parseable", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, ev := range payload.Events {
		if err := h.sink.HandleEvent(r.Context(), ev); err != nil {
			logger.Error("failed to process webhook event",
				"category", ev.EventCategory, "type", ev.EventType,
				"resource_id", ev.ResourceID, "error", err)
		}
	}
	w.WriteHeader(http.StatusOK)
}

// verify checks the body signature in constant time.
func (h *Handler) verify(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
