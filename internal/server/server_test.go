package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nasirucode/xerosync/internal/auth"
	"github.com/nasirucode/xerosync/internal/config"
	"github.com/nasirucode/xerosync/internal/mapper"
	"github.com/nasirucode/xerosync/internal/store"
	"github.com/nasirucode/xerosync/internal/store/memory"
	"github.com/nasirucode/xerosync/internal/sync"
	"github.com/nasirucode/xerosync/internal/xero"
)

const webhookSecret = "test-webhook-secret"

type serverFixture struct {
	server *Server
	store  *memory.Driver
	router http.Handler
}

// newServerFixture wires a full server against the in-memory driver. The
// remote API is not reachable; tests exercising the gateway seed a fake
// upstream via the config URLs.
func newServerFixture(t *testing.T, upstream string) *serverFixture {
	t.Helper()

	cfg, err := config.Load(config.LoaderOptions{ModeFlag: "dev"})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.Xero.ClientID = "cid"
	cfg.Xero.ClientSecret = "cs"
	cfg.Xero.RedirectURI = "https://sync.example.com/callback"
	cfg.Xero.WebhookSecret = webhookSecret
	if upstream != "" {
		cfg.Xero.BaseURL = upstream + "/api"
		cfg.Xero.TokenURL = upstream + "/token"
		cfg.Xero.ConnectionsURL = upstream + "/connections"
	}

	db := memory.New()
	tokens := xero.NewTokenManager(&cfg.Xero, db, nil)
	gateway := xero.NewGateway(&cfg.Xero, tokens, db, nil)
	engine := sync.New(sync.Config{
		Invoices: db,
		Payments: db,
		Contacts: db,
		Gateway:  gateway,
		Policy: &mapper.AccountPolicy{
			Accounts:        db,
			DefaultLineCode: cfg.Sync.DefaultLineAccountCode,
			DefaultBankCode: cfg.Sync.DefaultBankAccountCode,
		},
		BaseCurrency: cfg.Xero.BaseCurrency,
	})
	authn, err := auth.New("admin", "s3cret")
	if err != nil {
		t.Fatalf("auth: %v", err)
	}

	srv, err := New(cfg, discardLogger(), &Deps{
		Tokens:  tokens,
		Gateway: gateway,
		Engine:  engine,
		Store:   db,
		Auth:    authn,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return &serverFixture{server: srv, store: db, router: srv.setupRoutes()}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (f *serverFixture) do(t *testing.T, method, path string, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if authed {
		req.SetBasicAuth("admin", "s3cret")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestNewValidatesDeps(t *testing.T) {
	cfg, err := config.Load(config.LoaderOptions{ModeFlag: "dev"})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if _, err := New(cfg, discardLogger(), nil); err == nil {
		t.Error("expected error for nil deps")
	}
	if _, err := New(cfg, discardLogger(), &Deps{}); !errors.Is(err, ErrMissingDep) {
		t.Errorf("err = %v, want ErrMissingDep", err)
	}
}

func TestHealthzIsPublic(t *testing.T) {
	f := newServerFixture(t, "")

	rec := f.do(t, http.MethodGet, "/healthz", "", false)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["status"] != "ok" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestAdminAPIRequiresAuth(t *testing.T) {
	f := newServerFixture(t, "")

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/status"},
		{http.MethodGet, "/api/authorize-url"},
		{http.MethodPost, "/api/sync/payments"},
		{http.MethodPost, "/api/invoices/SINV-0001/push"},
	}
	for _, p := range paths {
		rec := f.do(t, p.method, p.path, "", false)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: status = %d, want 401", p.method, p.path, rec.Code)
		}
	}
}

func TestStatusUnauthorized(t *testing.T) {
	f := newServerFixture(t, "")

	rec := f.do(t, http.MethodGet, "/api/status", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["authorized"] != false {
		t.Errorf("authorized = %v, want false", body["authorized"])
	}
	if body["store_driver"] != "memory" {
		t.Errorf("store_driver = %v", body["store_driver"])
	}
}

func TestStatusAuthorized(t *testing.T) {
	f := newServerFixture(t, "")
	err := f.store.SaveCredential(context.Background(), &store.Credential{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		TenantID:     "tenant-1",
		TenantName:   "Acme Org",
		ExpiresAt:    time.Now().Add(30 * time.Minute),
	})
	if err != nil {
		t.Fatalf("seed credential: %v", err)
	}

	rec := f.do(t, http.MethodGet, "/api/status", "", true)
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["authorized"] != true || body["tenant_name"] != "Acme Org" {
		t.Errorf("body = %v", body)
	}
}

func TestAuthorizeURLEndpoint(t *testing.T) {
	f := newServerFixture(t, "")

	rec := f.do(t, http.MethodGet, "/api/authorize-url?state=xyz", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	u := body["url"]
	if !strings.Contains(u, "client_id=cid") || !strings.Contains(u, "state=xyz") {
		t.Errorf("url = %q", u)
	}
}

func TestPushInvoiceNotFound(t *testing.T) {
	f := newServerFixture(t, "")

	rec := f.do(t, http.MethodPost, "/api/invoices/missing/push", "", true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCancelInvoiceLocalOnly(t *testing.T) {
	f := newServerFixture(t, "")
	err := f.store.CreateInvoice(context.Background(), &store.SalesInvoice{
		ID:          "SINV-0001",
		Customer:    "Acme Ltd",
		Status:      store.InvoiceSubmitted,
		Outstanding: 100,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := f.do(t, http.MethodPost, "/api/invoices/SINV-0001/cancel", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	inv, err := f.store.GetInvoice(context.Background(), "SINV-0001")
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if inv.Status != store.InvoiceCancelled {
		t.Errorf("Status = %q, want Cancelled", inv.Status)
	}
}

func TestSyncPaymentsEmpty(t *testing.T) {
	f := newServerFixture(t, "")

	// No unsettled synced invoices; the poll does not touch the remote API.
	rec := f.do(t, http.MethodPost, "/api/sync/payments", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var res sync.BatchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Processed != 0 || res.Failed != 0 {
		t.Errorf("result = %+v, want empty", res)
	}
}

func TestPushInvoiceEndToEnd(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/Invoices", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Invoices":[{"InvoiceID":"xinv-9","InvoiceNumber":"SINV-0001","Status":"AUTHORISED"}]}`))
	})
	upstream := httptest.NewServer(mux)
	defer upstream.Close()

	f := newServerFixture(t, upstream.URL)
	ctx := context.Background()
	err := f.store.SaveCredential(ctx, &store.Credential{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		TenantID:     "tenant-1",
		ExpiresAt:    time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("seed credential: %v", err)
	}
	err = f.store.CreateContact(ctx, &store.Contact{
		ID:              "CONT-1",
		FirstName:       "Ada",
		LastName:        "Lovelace",
		XeroContactID:   "xcont-1",
		LinkedCustomers: []string{"Acme Ltd"},
	})
	if err != nil {
		t.Fatalf("seed contact: %v", err)
	}
	err = f.store.CreateInvoice(ctx, &store.SalesInvoice{
		ID:          "SINV-0001",
		Customer:    "Acme Ltd",
		Currency:    "USD",
		PostingDate: time.Date(2023, 5, 7, 0, 0, 0, 0, time.UTC),
		GrandTotal:  100,
		Outstanding: 100,
		Status:      store.InvoiceSubmitted,
		Items:       []store.InvoiceItem{{Description: "Widget", Quantity: 2, Rate: 50}},
	})
	if err != nil {
		t.Fatalf("seed invoice: %v", err)
	}

	rec := f.do(t, http.MethodPost, "/api/invoices/SINV-0001/push", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	inv, err := f.store.GetInvoice(ctx, "SINV-0001")
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if inv.XeroInvoiceID != "xinv-9" {
		t.Errorf("XeroInvoiceID = %q, want xinv-9", inv.XeroInvoiceID)
	}
}

func TestWebhookMounted(t *testing.T) {
	f := newServerFixture(t, "")

	// Challenge handshake is public.
	rec := f.do(t, http.MethodGet, config.WebhookPath+"?challenge=ping", "", false)
	if rec.Code != http.StatusOK || rec.Body.String() != "ping" {
		t.Errorf("challenge: status = %d, body = %q", rec.Code, rec.Body.String())
	}

	// Signed delivery is accepted without basic auth.
	body := `{"events":[]}`
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write([]byte(body))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, config.WebhookPath, strings.NewReader(body))
	req.Header.Set("X-Xero-Signature", sig)
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Errorf("delivery: status = %d, want 200", res.Code)
	}

	// Unsigned delivery is rejected.
	req = httptest.NewRequest(http.MethodPost, config.WebhookPath, strings.NewReader(body))
	res = httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Errorf("unsigned: status = %d, want 401", res.Code)
	}
}
