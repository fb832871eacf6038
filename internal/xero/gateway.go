package xero

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/nasirucode/xerosync/internal/config"
	"github.com/nasirucode/xerosync/internal/logutil"
	"github.com/nasirucode/xerosync/internal/store"
)

// maxResponseBytes bounds API response bodies.
const maxResponseBytes = 4 << 20

// Gateway executes authenticated requests against the remote ledger API.
// It owns token validity, single refresh-and-retry on 401, transient-error
// backoff, error classification, and optional request auditing.
type Gateway struct {
	cfg    *config.XeroConfig
	tokens *TokenManager
	client *http.Client
	audit  store.APILogStore
	logger *slog.Logger
}

// NewGateway builds a gateway. The audit store may be nil when auditing is
// disabled.
func NewGateway(cfg *config.XeroConfig, tokens *TokenManager, audit store.APILogStore, logger *slog.Logger) *Gateway {
	return &Gateway{
		cfg:    cfg,
		tokens: tokens,
		client: &http.Client{Timeout: time.Duration(cfg.RequestTimeoutMS) * time.Millisecond},
		audit:  audit,
		logger: logutil.NoopIfNil(logger),
	}
}

// Request executes one authenticated API call and returns the raw JSON body.
// A 401 from the API triggers exactly one token refresh and retry; a second
// 401 is terminal. 429 and 5xx responses are retried with exponential
// backoff before classification.
func (g *Gateway) Request(ctx context.Context, method, path string, body any, query url.Values) (json.RawMessage, error) {
	cred, err := g.tokens.EnsureValid(ctx)
	if err != nil {
		// AuthRefreshFailed and friends propagate unchanged.
		return nil, err
	}

	raw, status, err := g.execute(ctx, cred, method, path, body, query)
	if status == http.StatusUnauthorized {
		// Token invalidated server-side between check and call: refresh once.
		cred, err = g.tokens.Refresh(ctx, cred)
		if err != nil {
			return nil, &AuthError{Code: AuthRefreshFailed,
				Detail: "token refresh after 401 failed", Err: err}
		}
		raw, status, err = g.execute(ctx, cred, method, path, body, query)
		if status == http.StatusUnauthorized {
			return nil, &AuthError{Code: AuthUnauthorized, Status: status,
				Detail: "request unauthorized after token refresh"}
		}
	}
	return raw, err
}

// execute performs the HTTP call with transient-error backoff. It returns
// the response status alongside the error so Request can apply the 401 rule.
func (g *Gateway) execute(ctx context.Context, cred *store.Credential, method, path string, body any, query url.Values) (json.RawMessage, int, error) {
	u := strings.TrimRight(g.cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	type result struct {
		status int
		body   []byte
	}

	attempt := func() (result, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return result{}, backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
		req.Header.Set("Xero-Tenant-Id", cred.TenantID)

		resp, err := g.client.Do(req)
		if err != nil {
			if isTimeout(err) {
				return result{}, backoff.Permanent(&GatewayError{Code: GatewayTimeout, Err: err})
			}
			// Connection-level failures are worth a retry.
			return result{}, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return result{}, backoff.Permanent(fmt.Errorf("failed to read response: %w", err))
		}

		res := result{status: resp.StatusCode, body: data}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return res, classifyStatus(resp.StatusCode, string(data))
		}
		return res, nil
	}

	res, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(g.cfg.MaxRetries)),
	)

	g.writeAudit(ctx, method, u, payload, res.status, res.body, err)

	if err != nil {
		var ge *GatewayError
		if errors.As(err, &ge) {
			return nil, res.status, ge
		}
		if isTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
			return nil, res.status, &GatewayError{Code: GatewayTimeout, Err: err}
		}
		return nil, res.status, &GatewayError{Code: GatewayUnknown, Err: err}
	}

	if res.status == http.StatusUnauthorized {
		// Signalled via status; Request decides whether to refresh-and-retry.
		return nil, res.status, nil
	}
	if res.status < 200 || res.status >= 300 {
		return nil, res.status, classifyStatus(res.status, string(res.body))
	}
	return res.body, res.status, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// writeAudit persists an audit record when auditing is enabled. Audit
// failures are logged and swallowed, never failing the underlying call.
func (g *Gateway) writeAudit(ctx context.Context, method, u string, payload []byte, status int, respBody []byte, callErr error) {
	if !g.cfg.Audit || g.audit == nil {
		return
	}

	headers, _ := json.Marshal(map[string]string{
		"Accept":         "application/json",
		"Authorization":  "Bearer ***MASKED***",
		"Xero-Tenant-Id": "***MASKED***",
	})

	message := "Success"
	switch {
	case callErr != nil:
		message = "Error"
	case status >= 400:
		message = "Error"
	case status >= 300:
		message = "Redirect"
	}

	rec := &store.APILog{
		ID:       uuid.NewString(),
		Method:   method,
		URL:      u,
		Status:   status,
		Headers:  string(headers),
		Payload:  string(payload),
		Response: string(respBody),
		Message:  message,
	}
	if err := g.audit.AppendAPILog(ctx, rec); err != nil {
		g.logger.Warn("failed to write API audit record", "error", err)
	}
}

// Typed resource helpers.

// CreateInvoice creates an invoice and returns the remote record.
func (g *Gateway) CreateInvoice(ctx context.Context, inv Invoice) (*Invoice, error) {
	return g.postInvoice(ctx, "Invoices", inv)
}

// UpdateInvoice posts an update against an existing remote invoice.
func (g *Gateway) UpdateInvoice(ctx context.Context, invoiceID string, inv Invoice) (*Invoice, error) {
	return g.postInvoice(ctx, "Invoices/"+url.PathEscape(invoiceID), inv)
}

func (g *Gateway) postInvoice(ctx context.Context, path string, inv Invoice) (*Invoice, error) {
	raw, err := g.Request(ctx, http.MethodPost, path,
		map[string][]Invoice{"Invoices": {inv}}, nil)
	if err != nil {
		return nil, err
	}
	return firstInvoice(raw)
}

// GetInvoice fetches one invoice by remote id.
func (g *Gateway) GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	raw, err := g.Request(ctx, http.MethodGet, "Invoices/"+url.PathEscape(invoiceID), nil, nil)
	if err != nil {
		return nil, err
	}
	return firstInvoice(raw)
}

// ListInvoicesByIDs fetches a batch of invoices by remote id.
func (g *Gateway) ListInvoicesByIDs(ctx context.Context, ids []string) ([]Invoice, error) {
	q := url.Values{}
	q.Set("IDs", strings.Join(ids, ","))
	raw, err := g.Request(ctx, http.MethodGet, "Invoices", nil, q)
	if err != nil {
		return nil, err
	}
	var env invoicesEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid invoices response: %w", err)
	}
	return env.Invoices, nil
}

// ListInvoicesWhere fetches invoices matching a where-clause filter.
func (g *Gateway) ListInvoicesWhere(ctx context.Context, where string) ([]Invoice, error) {
	q := url.Values{}
	q.Set("where", where)
	raw, err := g.Request(ctx, http.MethodGet, "Invoices", nil, q)
	if err != nil {
		return nil, err
	}
	var env invoicesEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid invoices response: %w", err)
	}
	return env.Invoices, nil
}

// CreateContact creates a contact and returns the remote record.
func (g *Gateway) CreateContact(ctx context.Context, c Contact) (*Contact, error) {
	raw, err := g.Request(ctx, http.MethodPost, "Contacts",
		map[string][]Contact{"Contacts": {c}}, nil)
	if err != nil {
		return nil, err
	}
	var env contactsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid contacts response: %w", err)
	}
	if len(env.Contacts) == 0 {
		return nil, &GatewayError{Code: GatewayUnknown, Err: errors.New("empty contacts response")}
	}
	return &env.Contacts[0], nil
}

// ListContacts fetches contacts, optionally filtered by exact name.
func (g *Gateway) ListContacts(ctx context.Context, name string) ([]Contact, error) {
	var q url.Values
	if name != "" {
		q = url.Values{}
		q.Set("where", fmt.Sprintf("Name==%q", name))
	}
	raw, err := g.Request(ctx, http.MethodGet, "Contacts", nil, q)
	if err != nil {
		return nil, err
	}
	var env contactsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid contacts response: %w", err)
	}
	return env.Contacts, nil
}

// CreatePayment creates a payment and returns the remote record.
func (g *Gateway) CreatePayment(ctx context.Context, p Payment) (*Payment, error) {
	raw, err := g.Request(ctx, http.MethodPost, "Payments",
		map[string][]Payment{"Payments": {p}}, nil)
	if err != nil {
		return nil, err
	}
	var env paymentsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid payments response: %w", err)
	}
	if len(env.Payments) == 0 {
		return nil, &GatewayError{Code: GatewayUnknown, Err: errors.New("empty payments response")}
	}
	return &env.Payments[0], nil
}

// ListPaymentsForInvoice fetches the payments applied to a remote invoice.
func (g *Gateway) ListPaymentsForInvoice(ctx context.Context, invoiceID string) ([]Payment, error) {
	q := url.Values{}
	q.Set("where", WherePaymentsForInvoice(invoiceID))
	raw, err := g.Request(ctx, http.MethodGet, "Payments", nil, q)
	if err != nil {
		return nil, err
	}
	var env paymentsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid payments response: %w", err)
	}
	return env.Payments, nil
}

// GetOrganisation fetches the organisation record (connection test).
func (g *Gateway) GetOrganisation(ctx context.Context) (*Organisation, error) {
	raw, err := g.Request(ctx, http.MethodGet, "Organisation", nil, nil)
	if err != nil {
		return nil, err
	}
	var env organisationsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid organisation response: %w", err)
	}
	if len(env.Organisations) == 0 {
		return nil, &GatewayError{Code: GatewayUnknown, Err: errors.New("empty organisation response")}
	}
	return &env.Organisations[0], nil
}

func firstInvoice(raw json.RawMessage) (*Invoice, error) {
	var env invoicesEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid invoices response: %w", err)
	}
	if len(env.Invoices) == 0 {
		return nil, &GatewayError{Code: GatewayUnknown, Err: errors.New("empty invoices response")}
	}
	return &env.Invoices[0], nil
}
