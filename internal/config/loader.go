package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Mode represents the service operating mode.
type Mode string

const (
	ModeProd Mode = "prod"
	ModeDev  Mode = "dev"
)

// ParseMode parses a mode string, returning an error for invalid values.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "prod", "":
		return ModeProd, nil
	case "dev":
		return ModeDev, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be prod or dev", s)
	}
}

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is the path to a TOML config file (optional).
	// If provided but the file is missing or invalid, loading fails.
	ConfigPath string

	// ModeFlag is the --mode flag value (overrides config file mode).
	ModeFlag string

	// FlagOverrides are CLI flag values that override config file values.
	FlagOverrides FlagOverrides

	// Logger is used for warning messages (e.g. undecoded keys).
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// FlagOverrides holds CLI flag values that override config file values.
type FlagOverrides struct {
	ListenAddr   *string
	PublicOrigin *string
	TLSMode      *string
	StoreDriver  *string
	LoggingLevel *string
}

// DefaultScope is the OAuth scope requested during authorization.
const DefaultScope = "accounting.transactions accounting.contacts accounting.settings offline_access"

// Public API endpoints; overridable in config for tests.
const (
	DefaultBaseURL        = "https://api.xero.com/api.xro/2.0"
	DefaultAuthURL        = "https://login.xero.com/identity/connect/authorize"
	DefaultTokenURL       = "https://identity.xero.com/connect/token"
	DefaultConnectionsURL = "https://api.xero.com/connections"
)

// Load builds the effective configuration with precedence:
// mode preset -> TOML file -> CLI flags.
func Load(opts LoaderOptions) (*Config, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	// Mode from flag first so presets can be applied before the file.
	modeStr := opts.ModeFlag

	var file Config
	var haveFile bool
	if opts.ConfigPath != "" {
		data, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigPath, err)
		}
		md, err := toml.Decode(string(data), &file)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}
		for _, key := range md.Undecoded() {
			log.Warn("unknown config key", "key", key.String())
		}
		haveFile = true
		if modeStr == "" {
			modeStr = file.Mode
		}
	}

	mode, err := ParseMode(modeStr)
	if err != nil {
		return nil, err
	}

	cfg := preset(mode)
	if haveFile {
		mergeFile(cfg, &file)
	}
	applyFlags(cfg, opts.FlagOverrides)
	applyDefaults(cfg)
	cfg.Mode = string(mode)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// preset returns the baseline configuration for a mode.
func preset(mode Mode) *Config {
	cfg := &Config{
		ListenAddr: ":9330",
		TLS:        TLSConfig{Mode: "off"},
		Store:      StoreConfig{Driver: "sqlite", DataDir: ".xerosync"},
		Logging:    LoggingConfig{Level: "info"},
	}
	if mode == ModeDev {
		cfg.Store.Driver = "memory"
		cfg.Logging.Level = "debug"
		cfg.Xero.Audit = true
	}
	return cfg
}

// mergeFile overlays non-zero file values onto the preset.
func mergeFile(dst *Config, file *Config) {
	if file.ListenAddr != "" {
		dst.ListenAddr = file.ListenAddr
	}
	if file.PublicOrigin != "" {
		dst.PublicOrigin = file.PublicOrigin
	}
	if file.Server.AdminUsername != "" {
		dst.Server.AdminUsername = file.Server.AdminUsername
	}
	if file.Server.AdminPassword != "" {
		dst.Server.AdminPassword = file.Server.AdminPassword
	}
	if file.Server.ShutdownGraceSeconds != 0 {
		dst.Server.ShutdownGraceSeconds = file.Server.ShutdownGraceSeconds
	}

	x := &file.Xero
	if x.ClientID != "" {
		dst.Xero.ClientID = x.ClientID
	}
	if x.ClientSecret != "" {
		dst.Xero.ClientSecret = x.ClientSecret
	}
	if x.RedirectURI != "" {
		dst.Xero.RedirectURI = x.RedirectURI
	}
	if x.WebhookSecret != "" {
		dst.Xero.WebhookSecret = x.WebhookSecret
	}
	if x.Scope != "" {
		dst.Xero.Scope = x.Scope
	}
	if x.BaseURL != "" {
		dst.Xero.BaseURL = x.BaseURL
	}
	if x.AuthURL != "" {
		dst.Xero.AuthURL = x.AuthURL
	}
	if x.TokenURL != "" {
		dst.Xero.TokenURL = x.TokenURL
	}
	if x.ConnectionsURL != "" {
		dst.Xero.ConnectionsURL = x.ConnectionsURL
	}
	if x.RequestTimeoutMS != 0 {
		dst.Xero.RequestTimeoutMS = x.RequestTimeoutMS
	}
	if x.MaxRetries != 0 {
		dst.Xero.MaxRetries = x.MaxRetries
	}
	if x.Audit {
		dst.Xero.Audit = true
	}
	if x.BaseCurrency != "" {
		dst.Xero.BaseCurrency = x.BaseCurrency
	}

	s := &file.Sync
	if s.PaymentIntervalMinutes != 0 {
		dst.Sync.PaymentIntervalMinutes = s.PaymentIntervalMinutes
	}
	if s.VoidedIntervalMinutes != 0 {
		dst.Sync.VoidedIntervalMinutes = s.VoidedIntervalMinutes
	}
	if s.SchedulerEnabled != nil {
		dst.Sync.SchedulerEnabled = s.SchedulerEnabled
	}
	if s.DefaultLineAccountCode != "" {
		dst.Sync.DefaultLineAccountCode = s.DefaultLineAccountCode
	}
	if s.DefaultBankAccountCode != "" {
		dst.Sync.DefaultBankAccountCode = s.DefaultBankAccountCode
	}

	if file.Store.Driver != "" {
		dst.Store.Driver = file.Store.Driver
	}
	if file.Store.DataDir != "" {
		dst.Store.DataDir = file.Store.DataDir
	}
	if file.Store.Drivers != nil {
		dst.Store.Drivers = file.Store.Drivers
	}

	if file.TLS.Mode != "" {
		dst.TLS = file.TLS
	}
	if file.Logging.Level != "" {
		dst.Logging.Level = file.Logging.Level
	}
}

// applyFlags overlays CLI flag values. Flags win over file values.
func applyFlags(cfg *Config, f FlagOverrides) {
	if f.ListenAddr != nil && *f.ListenAddr != "" {
		cfg.ListenAddr = *f.ListenAddr
	}
	if f.PublicOrigin != nil && *f.PublicOrigin != "" {
		cfg.PublicOrigin = *f.PublicOrigin
	}
	if f.TLSMode != nil && *f.TLSMode != "" {
		cfg.TLS.Mode = *f.TLSMode
	}
	if f.StoreDriver != nil && *f.StoreDriver != "" {
		cfg.Store.Driver = *f.StoreDriver
	}
	if f.LoggingLevel != nil && *f.LoggingLevel != "" {
		cfg.Logging.Level = *f.LoggingLevel
	}
}

// applyDefaults fills remaining zero values that have universal defaults.
func applyDefaults(cfg *Config) {
	if cfg.Xero.Scope == "" {
		cfg.Xero.Scope = DefaultScope
	}
	if cfg.Xero.BaseURL == "" {
		cfg.Xero.BaseURL = DefaultBaseURL
	}
	if cfg.Xero.AuthURL == "" {
		cfg.Xero.AuthURL = DefaultAuthURL
	}
	if cfg.Xero.TokenURL == "" {
		cfg.Xero.TokenURL = DefaultTokenURL
	}
	if cfg.Xero.ConnectionsURL == "" {
		cfg.Xero.ConnectionsURL = DefaultConnectionsURL
	}
	if cfg.Xero.RequestTimeoutMS == 0 {
		cfg.Xero.RequestTimeoutMS = 15000
	}
	if cfg.Xero.MaxRetries == 0 {
		cfg.Xero.MaxRetries = 3
	}
	if cfg.Sync.PaymentIntervalMinutes == 0 {
		cfg.Sync.PaymentIntervalMinutes = 120
	}
	if cfg.Sync.VoidedIntervalMinutes == 0 {
		cfg.Sync.VoidedIntervalMinutes = 30
	}
	if cfg.Sync.DefaultLineAccountCode == "" {
		cfg.Sync.DefaultLineAccountCode = "200"
	}
	if cfg.Sync.DefaultBankAccountCode == "" {
		cfg.Sync.DefaultBankAccountCode = "880"
	}
	if cfg.Server.ShutdownGraceSeconds == 0 {
		cfg.Server.ShutdownGraceSeconds = 10
	}
	if cfg.TLS.SelfSignedDir == "" {
		cfg.TLS.SelfSignedDir = cfg.Store.DataDir + "/certs"
	}
	if cfg.TLS.ACME.StorageDir == "" {
		cfg.TLS.ACME.StorageDir = cfg.Store.DataDir + "/acme"
	}
}
