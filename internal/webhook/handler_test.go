package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nasirucode/xerosync/internal/xero"
)

type captureSink struct {
	events []xero.WebhookEvent
	err    error
}

func (s *captureSink) HandleEvent(ctx context.Context, ev xero.WebhookEvent) error {
	s.events = append(s.events, ev)
	return s.err
}

const testSecret = "webhook-secret"

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestChallengeEcho(t *testing.T) {
	h := NewHandler(testSecret, &captureSink{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/xero?challenge=abc123", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "abc123" {
		t.Errorf("body = %q, want challenge echoed", got)
	}
}

func TestChallengeMissing(t *testing.T) {
	h := NewHandler(testSecret, &captureSink{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/xero", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestEventsDispatched(t *testing.T) {
	sink := &captureSink{}
	h := NewHandler(testSecret, sink, nil)

	body := `{"events":[` +
		`{"eventCategory":"INVOICE","eventType":"UPDATE","resourceId":"xinv-1","tenantId":"tenant-1"},` +
		`{"eventCategory":"INVOICE","eventType":"UPDATE","resourceId":"xinv-2","tenantId":"tenant-1"}]}`

	req := httptest.NewRequest(http.MethodPost, "/webhooks/xero", strings.NewReader(body))
	req.Header.Set(SignatureHeader, sign(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(sink.events) != 2 {
		t.Fatalf("events = %d, want 2", len(sink.events))
	}
	if sink.events[0].ResourceID != "xinv-1" || sink.events[1].ResourceID != "xinv-2" {
		t.Errorf("events = %+v", sink.events)
	}
}

func TestSignatureRejected(t *testing.T) {
	tests := []struct {
		name      string
		signature string
	}{
		{name: "missing signature", signature: ""},
		{name: "wrong signature", signature: sign("different body")},
		{name: "garbage signature", signature: "not-base64!!"},
	}

	body := `{"events":[{"eventCategory":"INVOICE","eventType":"UPDATE","resourceId":"xinv-1"}]}`
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &captureSink{}
			h := NewHandler(testSecret, sink, nil)

			req := httptest.NewRequest(http.MethodPost, "/webhooks/xero", strings.NewReader(body))
			if tt.signature != "" {
				req.Header.Set(SignatureHeader, tt.signature)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
			if len(sink.events) != 0 {
				t.Errorf("events dispatched despite bad signature")
			}
		})
	}
}

func TestSinkErrorStillAcknowledged(t *testing.T) {
	sink := &captureSink{err: errors.New("downstream broken")}
	h := NewHandler(testSecret, sink, nil)

	body := `{"events":[{"eventCategory":"INVOICE","eventType":"UPDATE","resourceId":"xinv-1"}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/xero", strings.NewReader(body))
	req.Header.Set(SignatureHeader, sign(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	// A delivered event must never be retried by the sender.
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 despite sink error", rec.Code)
	}
}

func TestMalformedPayloadAcknowledged(t *testing.T) {
	h := NewHandler(testSecret, &captureSink{}, nil)

	body := `{not json`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/xero", strings.NewReader(body))
	req.Header.Set(SignatureHeader, sign(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for signed but malformed payload", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := NewHandler(testSecret, &captureSink{}, nil)

	for _, method := range []string{http.MethodPut, http.MethodDelete, http.MethodPatch} {
		req := httptest.NewRequest(method, "/webhooks/xero", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s status = %d, want 405", method, rec.Code)
		}
	}
}
