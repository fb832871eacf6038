// Package main is the entrypoint for the xerosync server.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nasirucode/xerosync/internal/auth"
	"github.com/nasirucode/xerosync/internal/config"
	"github.com/nasirucode/xerosync/internal/mapper"
	"github.com/nasirucode/xerosync/internal/scheduler"
	"github.com/nasirucode/xerosync/internal/server"
	"github.com/nasirucode/xerosync/internal/store"
	"github.com/nasirucode/xerosync/internal/sync"
	"github.com/nasirucode/xerosync/internal/xero"

	// Register store drivers
	_ "github.com/nasirucode/xerosync/internal/store/memory"
	_ "github.com/nasirucode/xerosync/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	modeFlag := flag.String("mode", "", "Operating mode: prod or dev (overrides config)")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	publicOrigin := flag.String("public-origin", "", "Public origin for the webhook endpoint (overrides config)")
	tlsMode := flag.String("tls-mode", "", "TLS mode: off, static, selfsigned, or acme (overrides config)")
	storeDriver := flag.String("store-driver", "", "Store driver: sqlite or memory (overrides config)")
	loggingLevel := flag.String("logging-level", "", "Log level: debug, info, warn, error (overrides config)")
	flag.Parse()

	// Bootstrap logger for config loading errors (uses default level)
	bootstrapLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		ModeFlag:   *modeFlag,
		FlagOverrides: config.FlagOverrides{
			ListenAddr:   listenAddr,
			PublicOrigin: publicOrigin,
			TLSMode:      tlsMode,
			StoreDriver:  storeDriver,
			LoggingLevel: loggingLevel,
		},
		Logger: bootstrapLogger,
	})
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Log effective config with secrets redacted
	logger.Info("effective configuration", "config", cfg.Redacted())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	driver, err := store.New(&store.DriverConfig{
		Driver:  cfg.Store.Driver,
		DataDir: cfg.Store.DataDir,
		Options: cfg.Store.Drivers[cfg.Store.Driver],
	})
	if err != nil {
		logger.Error("failed to create store", "error", err, "available", store.AvailableDrivers())
		os.Exit(1)
	}
	if err := driver.Init(ctx); err != nil {
		logger.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer driver.Close()

	tokens := xero.NewTokenManager(&cfg.Xero, driver, logger)

	var audit store.APILogStore
	if cfg.Xero.Audit {
		audit = driver
	}
	gateway := xero.NewGateway(&cfg.Xero, tokens, audit, logger)

	policy := &mapper.AccountPolicy{
		Accounts:        driver,
		DefaultLineCode: cfg.Sync.DefaultLineAccountCode,
		DefaultBankCode: cfg.Sync.DefaultBankAccountCode,
	}

	engine := sync.New(sync.Config{
		Invoices:     driver,
		Payments:     driver,
		Contacts:     driver,
		Gateway:      gateway,
		Policy:       policy,
		BaseCurrency: cfg.Xero.BaseCurrency,
		Logger:       logger,
	})

	authenticator, err := auth.New(cfg.Server.AdminUsername, cfg.Server.AdminPassword)
	if err != nil {
		logger.Error("failed to configure admin auth", "error", err)
		os.Exit(1)
	}

	srv, err := server.New(cfg, logger, &server.Deps{
		Tokens:  tokens,
		Gateway: gateway,
		Engine:  engine,
		Store:   driver,
		Auth:    authenticator,
	})
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	sched := scheduler.New(logger)
	if cfg.SchedulerEnabled() {
		sched.Add("payment-sync",
			time.Duration(cfg.Sync.PaymentIntervalMinutes)*time.Minute,
			func(ctx context.Context) error {
				_, err := engine.SyncInvoicePayments(ctx)
				return err
			})
		sched.Add("voided-sync",
			time.Duration(cfg.Sync.VoidedIntervalMinutes)*time.Minute,
			func(ctx context.Context) error {
				_, err := engine.SyncVoidedInvoices(ctx)
				return err
			})
		sched.Start(ctx)
	} else {
		logger.Info("scheduler disabled, periodic sync will not run")
	}

	go func() {
		if err := srv.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	logger.Info("server started, press Ctrl+C to stop")

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownGraceSeconds)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	sched.Wait()

	logger.Info("server stopped")
}
