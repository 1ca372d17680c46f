package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	auditpg "github.com/3tcapital/facturador/internal/adapters/audit/postgres"
	"github.com/3tcapital/facturador/internal/adapters/authority/afip"
	invoicepg "github.com/3tcapital/facturador/internal/adapters/invoice/postgres"
	sequencepg "github.com/3tcapital/facturador/internal/adapters/sequence/postgres"
	"github.com/3tcapital/facturador/internal/adapters/signer"
	ticketpg "github.com/3tcapital/facturador/internal/adapters/ticket/postgres"
	apphealth "github.com/3tcapital/facturador/internal/application/health"
	appinvoice "github.com/3tcapital/facturador/internal/application/invoice"
	appsequence "github.com/3tcapital/facturador/internal/application/sequence"
	appticket "github.com/3tcapital/facturador/internal/application/ticket"
	"github.com/3tcapital/facturador/internal/core/audit"
	"github.com/3tcapital/facturador/internal/core/ticket"
	"github.com/3tcapital/facturador/internal/infrastructure/cache"
	"github.com/3tcapital/facturador/internal/infrastructure/config"
	"github.com/3tcapital/facturador/internal/infrastructure/database"
	httpclient "github.com/3tcapital/facturador/internal/infrastructure/http"
	"github.com/3tcapital/facturador/internal/infrastructure/logger"
)

const certificateWarningWindow = 30 * 24 * time.Hour

// app holds the wired components shared by commands.
type app struct {
	cfg       config.AppConfig
	log       *slog.Logger
	pool      *pgxpool.Pool
	traced    *httpclient.TracedClient
	tickets   *appticket.Manager
	gateway   *appinvoice.Gateway
	allocator *appsequence.Allocator
	lifecycle *appinvoice.Lifecycle
	checks    []apphealth.Check
}

// loadBase reads configuration, builds a logger writing to w and opens the
// pool.
func loadBase(ctx context.Context, w io.Writer) (config.AppConfig, *slog.Logger, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, nil, fmt.Errorf("load config: %w", err)
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	log := logger.NewWithWriter(w, cfg.App.Name, level, cfg.App.Environment)

	pool, err := database.NewPool(ctx, database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		Database:        cfg.Database.Database,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return cfg, log, nil, fmt.Errorf("connect database: %w", err)
	}
	log.Info("Database connection established", "database", cfg.Database.Database)

	return cfg, log, pool, nil
}

// newApp wires every component needed to talk to the authority. Logs go to
// stderr so command output stays parseable.
func newApp(ctx context.Context) (*app, error) {
	cfg, log, pool, err := loadBase(ctx, os.Stderr)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, pool: pool}
	if err := a.wire(); err != nil {
		pool.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire() error {
	cfg := a.cfg.Authority
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("authority config: %w", err)
	}

	sign, err := a.buildSigner()
	if err != nil {
		return err
	}

	var auditRepo audit.Repository
	if a.cfg.Audit.Enabled {
		auditRepo = auditpg.NewRepository(a.pool, a.log)
	}
	a.traced = httpclient.NewTracedClient(&httpclient.TracedClientConfig{
		Timeout:         cfg.Timeout,
		AuditEnabled:    a.cfg.Audit.Enabled,
		LogRequestBody:  a.cfg.Audit.LogRequestBody,
		LogResponseBody: a.cfg.Audit.LogResponseBody,
		MaxBodySize:     a.cfg.Audit.MaxBodySize,
	}, a.log, auditRepo, "afip")

	wsaa := afip.NewWSAA(cfg.WSAAURL, a.traced, a.log)
	wsfe := afip.NewWSFE(afip.WSFEConfig{
		URL:                cfg.WSFEURL,
		Timeout:            cfg.Timeout,
		ReadRetries:        cfg.ReadRetries,
		RetryInterval:      cfg.RetryInterval,
		RateLimitRPS:       cfg.RateLimitRPS,
		BreakerMaxFailures: cfg.BreakerMaxFailures,
		BreakerCooldown:    cfg.BreakerCooldown,
	}, a.traced, a.log)

	a.tickets = appticket.NewManager(appticket.Config{
		Environment:   cfg.Environment,
		Service:       cfg.Service,
		RenewalMargin: cfg.RenewalMargin,
		Lifetime:      cfg.TicketLifetime,
		Retries:       cfg.TicketRetries,
		RetryInterval: cfg.RetryInterval,
	}, ticketpg.NewRepository(a.pool), cache.NewTicketCache(10*time.Minute), sign, wsaa, a.log)

	a.gateway = appinvoice.NewGateway(a.tickets, wsfe, cfg.Environment, cfg.TaxID)
	a.allocator = appsequence.NewAllocator(
		sequencepg.NewRepository(a.pool, a.cfg.Invoicing.SequenceLockTimeout), a.gateway, a.log)
	a.lifecycle = appinvoice.NewLifecycle(appinvoice.Config{
		TaxID:           cfg.TaxID,
		PointOfSale:     cfg.PointOfSale,
		InternalSeries:  a.cfg.Invoicing.InternalSeries,
		DefaultCurrency: a.cfg.Invoicing.DefaultCurrency,
	}, invoicepg.NewRepository(a.pool), a.allocator, a.gateway, auditpg.NewAuthorizationLog(a.pool), a.log)

	a.checks = []apphealth.Check{
		{Name: "database", Probe: a.pool.Ping},
		{Name: "authority", Probe: a.gateway.Ping},
	}

	a.log.Info("Authority configured",
		"environment", cfg.Environment,
		"wsaa_url", cfg.WSAAURL,
		"wsfe_url", cfg.WSFEURL,
		"point_of_sale", cfg.PointOfSale,
		"signer", cfg.SignerMode,
		"audit_enabled", a.cfg.Audit.Enabled)
	return nil
}

func (a *app) buildSigner() (ticket.Signer, error) {
	cfg := a.cfg.Authority
	if cfg.SignerMode == config.SignerOpenSSL {
		return signer.NewOpenSSL(cfg.OpenSSLPath, cfg.CertificatePath, cfg.KeyPath, cfg.Timeout, a.log), nil
	}

	var (
		creds *signer.Credentials
		err   error
	)
	if cfg.PKCS12Path != "" {
		creds, err = signer.LoadPKCS12(cfg.PKCS12Path, cfg.PKCS12Password)
	} else {
		creds, err = signer.LoadPEM(cfg.CertificatePath, cfg.KeyPath)
	}
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	if remaining := time.Until(creds.ExpiresAt()); remaining < certificateWarningWindow {
		a.log.Warn("Certificate close to expiry",
			"expires_at", creds.ExpiresAt(),
			"remaining_hours", int(remaining.Hours()))
	}
	return signer.NewNative(creds), nil
}

// close waits for pending audit writes and releases the pool.
func (a *app) close() {
	if a.traced != nil {
		a.traced.Wait()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
