package xero

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nasirucode/xerosync/internal/config"
	"github.com/nasirucode/xerosync/internal/store"
	"github.com/nasirucode/xerosync/internal/store/memory"
)

// tokenFixture is a configurable fake authorization server.
type tokenFixture struct {
	tokenStatus   int
	tokenBody     string
	tokenCalls    int
	connections   string
	lastGrantType string
	lastBasicUser string
}

func newTokenFixture() *tokenFixture {
	return &tokenFixture{
		tokenStatus: http.StatusOK,
		tokenBody:   `{"access_token":"at-1","refresh_token":"rt-1","expires_in":1800,"scope":"accounting.transactions"}`,
		connections: `[{"tenantId":"tenant-1","tenantName":"First Org"},{"tenantId":"tenant-2","tenantName":"Second Org"}]`,
	}
}

func (f *tokenFixture) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls++
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse token form: %v", err)
		}
		f.lastGrantType = r.PostFormValue("grant_type")
		f.lastBasicUser, _, _ = r.BasicAuth()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.tokenStatus)
		_, _ = w.Write([]byte(f.tokenBody))
	})
	mux.HandleFunc("/connections", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(f.connections))
	})
	return httptest.NewServer(mux)
}

func tokenTestConfig(srvURL string) *config.XeroConfig {
	return &config.XeroConfig{
		ClientID:         "client-id",
		ClientSecret:     "client-secret",
		RedirectURI:      "https://sync.example.com/callback",
		Scope:            "accounting.transactions",
		AuthURL:          srvURL + "/authorize",
		TokenURL:         srvURL + "/token",
		ConnectionsURL:   srvURL + "/connections",
		RequestTimeoutMS: 5000,
		MaxRetries:       1,
	}
}

func TestAuthorizationURL(t *testing.T) {
	cfg := tokenTestConfig("https://auth.example.com")
	m := NewTokenManager(cfg, memory.New(), nil)

	u, err := m.AuthorizationURL("state-1")
	if err != nil {
		t.Fatalf("AuthorizationURL: %v", err)
	}
	for _, want := range []string{"response_type=code", "client_id=client-id", "state=state-1"} {
		if !strings.Contains(u, want) {
			t.Errorf("authorization URL %q missing %q", u, want)
		}
	}

	// Missing client id fails fast.
	m2 := NewTokenManager(&config.XeroConfig{}, memory.New(), nil)
	if _, err := m2.AuthorizationURL(""); err == nil {
		t.Error("expected error for unconfigured client")
	}
}

func TestExchangeCodeSelectsFirstTenant(t *testing.T) {
	f := newTokenFixture()
	srv := f.server(t)
	defer srv.Close()

	creds := memory.New()
	m := NewTokenManager(tokenTestConfig(srv.URL), creds, nil)

	cred, err := m.ExchangeCode(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if f.lastGrantType != "authorization_code" {
		t.Errorf("grant_type = %q, want authorization_code", f.lastGrantType)
	}
	if f.lastBasicUser != "client-id" {
		t.Errorf("basic auth user = %q, want client-id", f.lastBasicUser)
	}
	if cred.TenantID != "tenant-1" || cred.TenantName != "First Org" {
		t.Errorf("tenant = %q/%q, want first connection", cred.TenantID, cred.TenantName)
	}

	saved, err := creds.GetCredential(context.Background())
	if err != nil {
		t.Fatalf("credential not persisted: %v", err)
	}
	if saved.AccessToken != "at-1" || saved.RefreshToken != "rt-1" {
		t.Errorf("persisted tokens = %q/%q", saved.AccessToken, saved.RefreshToken)
	}
}

func TestExchangeCodeExpired(t *testing.T) {
	f := newTokenFixture()
	f.tokenStatus = http.StatusBadRequest
	f.tokenBody = `{"error":"invalid_grant","error_description":"code expired"}`
	srv := f.server(t)
	defer srv.Close()

	m := NewTokenManager(tokenTestConfig(srv.URL), memory.New(), nil)
	_, err := m.ExchangeCode(context.Background(), "stale-code")
	if !IsAuthCode(err, AuthExpiredCode) {
		t.Fatalf("err = %v, want AuthExpiredCode", err)
	}
}

func TestExchangeCodeMissingCode(t *testing.T) {
	m := NewTokenManager(tokenTestConfig("https://auth.example.com"), memory.New(), nil)
	_, err := m.ExchangeCode(context.Background(), "")
	if !IsAuthCode(err, AuthInvalidRequest) {
		t.Fatalf("err = %v, want AuthInvalidRequest", err)
	}
}

func TestEnsureValidRefreshesNearExpiry(t *testing.T) {
	f := newTokenFixture()
	f.tokenBody = `{"access_token":"at-2","expires_in":1800}`
	srv := f.server(t)
	defer srv.Close()

	creds := memory.New()
	_ = creds.SaveCredential(context.Background(), &store.Credential{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiresAt:    time.Now().Add(time.Minute),
		TenantID:     "tenant-1",
		TenantName:   "First Org",
	})

	m := NewTokenManager(tokenTestConfig(srv.URL), creds, nil)
	cred, err := m.EnsureValid(context.Background())
	if err != nil {
		t.Fatalf("EnsureValid: %v", err)
	}
	if f.lastGrantType != "refresh_token" {
		t.Errorf("grant_type = %q, want refresh_token", f.lastGrantType)
	}
	if cred.AccessToken != "at-2" {
		t.Errorf("access token = %q, want at-2", cred.AccessToken)
	}
	// Rotation omitted the refresh token; the old one survives.
	if cred.RefreshToken != "rt-1" {
		t.Errorf("refresh token = %q, want rt-1", cred.RefreshToken)
	}
	if cred.TenantID != "tenant-1" || cred.TenantName != "First Org" {
		t.Errorf("tenant lost across refresh: %q/%q", cred.TenantID, cred.TenantName)
	}
}

func TestEnsureValidSkipsFreshToken(t *testing.T) {
	f := newTokenFixture()
	srv := f.server(t)
	defer srv.Close()

	creds := memory.New()
	_ = creds.SaveCredential(context.Background(), &store.Credential{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiresAt:    time.Now().Add(time.Hour),
	})

	m := NewTokenManager(tokenTestConfig(srv.URL), creds, nil)
	cred, err := m.EnsureValid(context.Background())
	if err != nil {
		t.Fatalf("EnsureValid: %v", err)
	}
	if cred.AccessToken != "at-1" {
		t.Errorf("access token = %q, want at-1", cred.AccessToken)
	}
	if f.tokenCalls != 0 {
		t.Errorf("token endpoint called %d times, want 0", f.tokenCalls)
	}
}

func TestEnsureValidFailsClosed(t *testing.T) {
	f := newTokenFixture()
	f.tokenStatus = http.StatusInternalServerError
	f.tokenBody = `{}`
	srv := f.server(t)
	defer srv.Close()

	creds := memory.New()
	_ = creds.SaveCredential(context.Background(), &store.Credential{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiresAt:    time.Now().Add(time.Minute),
	})

	m := NewTokenManager(tokenTestConfig(srv.URL), creds, nil)
	_, err := m.EnsureValid(context.Background())
	if !IsAuthCode(err, AuthRefreshFailed) {
		t.Fatalf("err = %v, want AuthRefreshFailed", err)
	}
}

func TestEnsureValidWithoutCredential(t *testing.T) {
	m := NewTokenManager(tokenTestConfig("https://auth.example.com"), memory.New(), nil)
	_, err := m.EnsureValid(context.Background())
	if !IsAuthCode(err, AuthUnauthorized) {
		t.Fatalf("err = %v, want AuthUnauthorized", err)
	}
}

func TestCredentialDefaultLifetime(t *testing.T) {
	m := NewTokenManager(tokenTestConfig("https://auth.example.com"), memory.New(), nil)
	fixed := time.Date(2023, 5, 7, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	cred := m.credentialFromToken(&tokenResponse{AccessToken: "at-1"})
	if want := fixed.Add(1800 * time.Second); !cred.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", cred.ExpiresAt, want)
	}
}

func TestClassifyTokenError(t *testing.T) {
	tests := []struct {
		status int
		oauth  string
		want   AuthCode
	}{
		{400, "invalid_grant", AuthExpiredCode},
		{400, "invalid_client", AuthInvalidClient},
		{400, "invalid_request", AuthInvalidRequest},
		{400, "", AuthInvalidRequest},
		{401, "", AuthInvalidClient},
		{429, "", AuthRateLimited},
		{500, "", AuthRemoteServerError},
		{418, "", AuthUnknown},
	}
	for _, tt := range tests {
		got := classifyTokenError(tt.status, tt.oauth, "")
		if got.Code != tt.want {
			t.Errorf("classifyTokenError(%d, %q) = %s, want %s", tt.status, tt.oauth, got.Code, tt.want)
		}
	}
}

// Keep the fixture honest: its canned payloads must stay valid JSON.
func TestFixturePayloads(t *testing.T) {
	f := newTokenFixture()
	var tok tokenResponse
	if err := json.Unmarshal([]byte(f.tokenBody), &tok); err != nil {
		t.Fatalf("fixture token body invalid: %v", err)
	}
	var conns []Connection
	if err := json.Unmarshal([]byte(f.connections), &conns); err != nil {
		t.Fatalf("fixture connections invalid: %v", err)
	}
}
