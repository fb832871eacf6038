// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Config holds the full service configuration.
type Config struct {
	// Mode is the operating mode: prod or dev.
	Mode string `toml:"mode"`

	// ListenAddr is the address to listen on. Example: ":9330"
	ListenAddr string `toml:"listen_addr"`

	// PublicOrigin is the public origin (scheme + host + port) under which
	// the webhook endpoint is reachable. Example: "https://sync.example.com"
	PublicOrigin string `toml:"public_origin"`

	// Server holds server-level settings.
	Server ServerConfig `toml:"server"`

	// Xero holds remote ledger API and OAuth settings.
	Xero XeroConfig `toml:"xero"`

	// Sync holds reconciliation settings.
	Sync SyncConfig `toml:"sync"`

	// Store holds record store settings.
	Store StoreConfig `toml:"store"`

	// TLS configuration.
	TLS TLSConfig `toml:"tls"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging"`
}

// ServerConfig holds server-level settings.
type ServerConfig struct {
	// AdminUsername is the basic-auth username for the admin API.
	AdminUsername string `toml:"admin_username"`

	// AdminPassword is the basic-auth password for the admin API.
	// Hashed with bcrypt at startup; never logged.
	AdminPassword string `toml:"admin_password"`

	// ShutdownGraceSeconds bounds graceful shutdown. Default: 10.
	ShutdownGraceSeconds int `toml:"shutdown_grace_seconds"`
}

// XeroConfig holds remote ledger API and OAuth 2.0 settings.
type XeroConfig struct {
	// ClientID and ClientSecret are the OAuth 2.0 app credentials.
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`

	// RedirectURI is the OAuth redirect URI registered with the app.
	RedirectURI string `toml:"redirect_uri"`

	// WebhookSecret is the shared secret for webhook signature verification.
	WebhookSecret string `toml:"webhook_secret"`

	// Scope is the OAuth scope string. A default covering transactions,
	// contacts, settings and offline_access is applied when empty.
	Scope string `toml:"scope"`

	// BaseURL is the accounting API base. Default: the public endpoint.
	BaseURL string `toml:"base_url"`

	// AuthURL, TokenURL and ConnectionsURL are the OAuth endpoints.
	AuthURL        string `toml:"auth_url"`
	TokenURL       string `toml:"token_url"`
	ConnectionsURL string `toml:"connections_url"`

	// RequestTimeoutMS bounds a single outbound API call. Default: 15000.
	RequestTimeoutMS int `toml:"request_timeout_ms"`

	// MaxRetries bounds backoff retries for 429/5xx responses. Default: 3.
	MaxRetries int `toml:"max_retries"`

	// Audit enables request/response audit records in the store.
	Audit bool `toml:"audit"`

	// BaseCurrency is the owning company's base currency code.
	// Invoices in this currency omit CurrencyCode on push.
	BaseCurrency string `toml:"base_currency"`
}

// SyncConfig holds reconciliation settings.
type SyncConfig struct {
	// PaymentIntervalMinutes is the inbound payment poll interval. Default: 120.
	PaymentIntervalMinutes int `toml:"payment_interval_minutes"`

	// VoidedIntervalMinutes is the voided-invoice poll interval. Default: 30.
	VoidedIntervalMinutes int `toml:"voided_interval_minutes"`

	// SchedulerEnabled controls the periodic jobs. Manual triggers via the
	// admin API work regardless. Pointer for presence detection; nil = true.
	SchedulerEnabled *bool `toml:"scheduler_enabled"`

	// DefaultLineAccountCode is the fallback account code for invoice line
	// items without an explicit code. Default: "200".
	DefaultLineAccountCode string `toml:"default_line_account_code"`

	// DefaultBankAccountCode is the fallback account code for payment
	// receiving accounts without an explicit code. Default: "880".
	DefaultBankAccountCode string `toml:"default_bank_account_code"`
}

// StoreConfig holds record store settings.
type StoreConfig struct {
	// Driver is the store driver name: "sqlite" (default) or "memory".
	Driver string `toml:"driver"`

	// DataDir is the directory for persistent store data.
	DataDir string `toml:"data_dir"`

	// Drivers holds per-driver option maps, decoded by each driver.
	// Example: [store.drivers.sqlite] filename = "xerosync.db"
	Drivers map[string]map[string]any `toml:"drivers"`
}

// TLSConfig holds TLS settings for the public listener.
type TLSConfig struct {
	// Mode is one of: off, static, selfsigned, acme.
	Mode string `toml:"mode"`

	// CertFile and KeyFile are used in static mode.
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`

	// SelfSignedDir stores generated certificates in selfsigned mode.
	SelfSignedDir string `toml:"selfsigned_dir"`

	// ACME settings for acme mode.
	ACME ACMEConfig `toml:"acme"`
}

// ACMEConfig holds ACME certificate settings.
type ACMEConfig struct {
	// Domain is the domain to obtain a certificate for.
	Domain string `toml:"domain"`

	// Email is the ACME account email.
	Email string `toml:"email"`

	// StorageDir stores the ACME account and certificates.
	StorageDir string `toml:"storage_dir"`

	// Directory overrides the ACME directory URL (testing).
	Directory string `toml:"directory"`

	// UseStaging selects the Let's Encrypt staging directory.
	UseStaging bool `toml:"use_staging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `toml:"level"`
}

// WebhookPath is the fixed path of the webhook endpoint.
const WebhookPath = "/webhooks/xero"

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.PublicOrigin != "" {
		u, err := url.Parse(c.PublicOrigin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("public_origin must be a scheme://host origin, got %q", c.PublicOrigin)
		}
	}
	switch c.TLS.Mode {
	case "off", "static", "selfsigned", "acme":
	default:
		return fmt.Errorf("invalid tls.mode %q: must be one of off, static, selfsigned, acme", c.TLS.Mode)
	}
	if c.TLS.Mode == "static" && (c.TLS.CertFile == "" || c.TLS.KeyFile == "") {
		return fmt.Errorf("tls.mode=static requires cert_file and key_file")
	}
	if c.TLS.Mode == "acme" && (c.TLS.ACME.Domain == "" || c.TLS.ACME.Email == "") {
		return fmt.Errorf("tls.mode=acme requires acme.domain and acme.email")
	}
	switch c.Store.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("invalid store.driver %q: must be sqlite or memory", c.Store.Driver)
	}
	if c.Sync.PaymentIntervalMinutes <= 0 {
		return fmt.Errorf("sync.payment_interval_minutes must be positive")
	}
	if c.Sync.VoidedIntervalMinutes <= 0 {
		return fmt.Errorf("sync.voided_interval_minutes must be positive")
	}
	return nil
}

// Redacted returns a loggable view of the configuration with secrets masked.
func (c *Config) Redacted() map[string]any {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}
	return map[string]any{
		"mode":          c.Mode,
		"listen_addr":   c.ListenAddr,
		"public_origin": c.PublicOrigin,
		"server": map[string]any{
			"admin_username": c.Server.AdminUsername,
			"admin_password": mask(c.Server.AdminPassword),
		},
		"xero": map[string]any{
			"client_id":          c.Xero.ClientID,
			"client_secret":      mask(c.Xero.ClientSecret),
			"redirect_uri":       c.Xero.RedirectURI,
			"webhook_secret":     mask(c.Xero.WebhookSecret),
			"scope":              c.Xero.Scope,
			"base_url":           c.Xero.BaseURL,
			"request_timeout_ms": c.Xero.RequestTimeoutMS,
			"max_retries":        c.Xero.MaxRetries,
			"audit":              c.Xero.Audit,
			"base_currency":      c.Xero.BaseCurrency,
		},
		"sync": map[string]any{
			"payment_interval_minutes":  c.Sync.PaymentIntervalMinutes,
			"voided_interval_minutes":   c.Sync.VoidedIntervalMinutes,
			"scheduler_enabled":         c.SchedulerEnabled(),
			"default_line_account_code": c.Sync.DefaultLineAccountCode,
			"default_bank_account_code": c.Sync.DefaultBankAccountCode,
		},
		"store": map[string]any{
			"driver":   c.Store.Driver,
			"data_dir": c.Store.DataDir,
		},
		"tls": map[string]any{
			"mode": c.TLS.Mode,
		},
		"logging": map[string]any{
			"level": c.Logging.Level,
		},
	}
}

// SchedulerEnabled reports whether periodic jobs should run.
func (c *Config) SchedulerEnabled() bool {
	if c.Sync.SchedulerEnabled == nil {
		return true
	}
	return *c.Sync.SchedulerEnabled
}

// Hostname returns the host portion of PublicOrigin, or "" when unset.
func (c *Config) Hostname() string {
	u, err := url.Parse(c.PublicOrigin)
	if err != nil {
		return ""
	}
	return strings.Split(u.Host, ":")[0]
}
