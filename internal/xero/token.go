package xero

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nasirucode/xerosync/internal/config"
	"github.com/nasirucode/xerosync/internal/logutil"
	"github.com/nasirucode/xerosync/internal/store"
)

// refreshWindow is how close to expiry a token is refreshed proactively.
const refreshWindow = 5 * time.Minute

// defaultTokenLifetime applies when the token response omits expires_in.
const defaultTokenLifetime = 1800 * time.Second

// TokenManager owns the OAuth 2.0 credential lifecycle: authorization-code
// exchange, refresh, expiry tracking, and tenant resolution.
type TokenManager struct {
	cfg    *config.XeroConfig
	creds  store.CredentialStore
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewTokenManager builds a token manager over the given credential store.
func NewTokenManager(cfg *config.XeroConfig, creds store.CredentialStore, logger *slog.Logger) *TokenManager {
	return &TokenManager{
		cfg:    cfg,
		creds:  creds,
		client: &http.Client{Timeout: time.Duration(cfg.RequestTimeoutMS) * time.Millisecond},
		logger: logutil.NoopIfNil(logger),
		now:    time.Now,
	}
}

// AuthorizationURL builds the OAuth authorization redirect URL.
// A random state is generated when none is given.
func (m *TokenManager) AuthorizationURL(state string) (string, error) {
	if m.cfg.ClientID == "" || m.cfg.RedirectURI == "" {
		return "", ErrConfig
	}
	if state == "" {
		state = uuid.NewString()
	}
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", m.cfg.ClientID)
	q.Set("redirect_uri", m.cfg.RedirectURI)
	q.Set("scope", m.cfg.Scope)
	q.Set("state", state)
	return m.cfg.AuthURL + "?" + q.Encode(), nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
}

type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ExchangeCode exchanges an authorization code for a credential, resolves
// the tenant, and persists the result. The first tenant connection returned
// by discovery is selected (documented policy; no disambiguation).
func (m *TokenManager) ExchangeCode(ctx context.Context, code string) (*store.Credential, error) {
	if m.cfg.ClientID == "" || m.cfg.ClientSecret == "" || m.cfg.RedirectURI == "" {
		return nil, ErrConfig
	}
	if code == "" {
		return nil, &AuthError{Code: AuthInvalidRequest, Detail: "authorization code is missing"}
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", m.cfg.RedirectURI)

	tok, err := m.postToken(ctx, form)
	if err != nil {
		return nil, err
	}

	cred := m.credentialFromToken(tok)
	if err := m.resolveTenant(ctx, cred); err != nil {
		return nil, err
	}
	if err := m.creds.SaveCredential(ctx, cred); err != nil {
		return nil, fmt.Errorf("failed to persist credential: %w", err)
	}

	m.logger.Info("authorized with remote ledger",
		"tenant_id", cred.TenantID,
		"tenant_name", cred.TenantName,
		"expires_at", cred.ExpiresAt)
	return cred, nil
}

// EnsureValid returns a usable credential, refreshing when the token is
// within the refresh window of expiry. Fails closed: a refresh failure
// surfaces AuthRefreshFailed and the credential must not be used.
func (m *TokenManager) EnsureValid(ctx context.Context) (*store.Credential, error) {
	cred, err := m.creds.GetCredential(ctx)
	if err != nil {
		return nil, &AuthError{Code: AuthUnauthorized,
			Detail: "no credential available, authorize the application first", Err: err}
	}
	if cred.AccessToken == "" {
		return nil, &AuthError{Code: AuthUnauthorized,
			Detail: "no access token available, authorize the application first"}
	}
	if m.now().After(cred.ExpiresAt.Add(-refreshWindow)) {
		refreshed, err := m.Refresh(ctx, cred)
		if err != nil {
			return nil, &AuthError{Code: AuthRefreshFailed,
				Detail: "failed to refresh access token, re-authorize the application", Err: err}
		}
		return refreshed, nil
	}
	return cred, nil
}

// Refresh exchanges the refresh token for a new credential and persists it.
// Used internally by the gateway for transparent retry; callers wanting the
// fail-closed contract use EnsureValid.
func (m *TokenManager) Refresh(ctx context.Context, cred *store.Credential) (*store.Credential, error) {
	if cred.RefreshToken == "" {
		return nil, &AuthError{Code: AuthRefreshFailed, Detail: "no refresh token available"}
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", cred.RefreshToken)

	tok, err := m.postToken(ctx, form)
	if err != nil {
		return nil, err
	}

	next := m.credentialFromToken(tok)
	// The authorization server may omit a rotated refresh token.
	if next.RefreshToken == "" {
		next.RefreshToken = cred.RefreshToken
	}
	next.TenantID = cred.TenantID
	next.TenantName = cred.TenantName

	if err := m.creds.SaveCredential(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed credential: %w", err)
	}

	m.logger.Debug("refreshed access token", "expires_at", next.ExpiresAt)
	return next, nil
}

// TestConnection fetches the organisation record as a connectivity check.
func (m *TokenManager) TestConnection(ctx context.Context, gw *Gateway) (*Organisation, error) {
	return gw.GetOrganisation(ctx)
}

func (m *TokenManager) credentialFromToken(tok *tokenResponse) *store.Credential {
	lifetime := defaultTokenLifetime
	if tok.ExpiresIn > 0 {
		lifetime = time.Duration(tok.ExpiresIn) * time.Second
	}
	return &store.Credential{
		ID:           store.CredentialID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    m.now().Add(lifetime),
		Scope:        tok.Scope,
	}
}

// postToken posts a form to the token endpoint with client Basic auth and
// classifies failures.
func (m *TokenManager) postToken(ctx context.Context, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(m.cfg.ClientID, m.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, &AuthError{Code: AuthUnknown, Detail: "token request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &AuthError{Code: AuthUnknown, Detail: "failed to read token response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var oauthErr tokenErrorResponse
		_ = json.Unmarshal(body, &oauthErr)
		return nil, classifyTokenError(resp.StatusCode, oauthErr.Error, oauthErr.ErrorDescription)
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, &AuthError{Code: AuthUnknown, Detail: "invalid token response", Err: err}
	}
	if tok.AccessToken == "" {
		return nil, &AuthError{Code: AuthUnknown, Detail: "no access token in response"}
	}
	return &tok, nil
}

// resolveTenant fetches tenant connections and attaches the first one.
func (m *TokenManager) resolveTenant(ctx context.Context, cred *store.Credential) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.ConnectionsURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return &AuthError{Code: AuthUnknown, Detail: "tenant discovery failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return &AuthError{Code: AuthUnknown, Status: resp.StatusCode,
			Detail: "tenant discovery failed: " + string(body)}
	}

	var connections []Connection
	if err := json.NewDecoder(resp.Body).Decode(&connections); err != nil {
		return &AuthError{Code: AuthUnknown, Detail: "invalid connections response", Err: err}
	}
	if len(connections) == 0 {
		return &AuthError{Code: AuthUnknown, Detail: "no tenant connections available"}
	}

	// Always the first connection in the returned order.
	cred.TenantID = connections[0].TenantID
	cred.TenantName = connections[0].TenantName
	return nil
}
