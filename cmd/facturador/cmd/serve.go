package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	healthhttp "github.com/3tcapital/facturador/internal/adapters/http/health"
	invoicehttp "github.com/3tcapital/facturador/internal/adapters/http/invoice"
	statushttp "github.com/3tcapital/facturador/internal/adapters/http/status"
	apphealth "github.com/3tcapital/facturador/internal/application/health"
	"github.com/3tcapital/facturador/internal/infrastructure/database"
	"github.com/3tcapital/facturador/internal/infrastructure/http/middleware"
	"github.com/3tcapital/facturador/internal/infrastructure/http/server"
)

var (
	migrateOnStart bool
	batchWorkers   int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API until SIGINT or SIGTERM.

Invoice and status routes answer 503 when the authority stack cannot be
built, for instance when the certificate is missing; /health keeps
reporting the reason.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "Apply pending migrations before serving")
	serveCmd.Flags().IntVar(&batchWorkers, "batch-workers", 4, "Workers used by batch authorization")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log, pool, err := loadBase(ctx, os.Stdout)
	if err != nil {
		return err
	}
	a := &app{cfg: cfg, log: log, pool: pool}
	defer a.close()

	if migrateOnStart {
		if err := database.RunMigrations(ctx, pool, log); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	opts := server.Options{Config: cfg, Logger: log}

	checks := []apphealth.Check{{Name: "database", Probe: pool.Ping}}
	if err := a.wire(); err != nil {
		log.Error("Authority stack unavailable, invoice routes will answer 503", "error", err)
		checks = append(checks, apphealth.Check{
			Name:  "authority",
			Probe: func(context.Context) error { return err },
		})
	} else {
		checks = a.checks
		opts.InvoiceRoutes = invoicehttp.NewHandler(a.lifecycle, batchWorkers, log)
		opts.StatusRoutes = statushttp.NewHandler(a.tickets, a.allocator, log)
	}

	healthService := apphealth.NewService(apphealth.Metadata{
		Service:     cfg.App.Name,
		Version:     cfg.App.Version,
		Environment: cfg.App.Environment,
	}, log, checks...)
	opts.HealthHandler = http.HandlerFunc(healthhttp.NewHandler(healthService, log).Status)

	if cfg.Auth.Enabled {
		auth, err := middleware.NewJWTAuthenticator(cfg.Auth, log)
		if err != nil {
			return fmt.Errorf("init auth: %w", err)
		}
		opts.Auth = auth
	}

	srv, err := server.New(opts)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}
	defer srv.Close()

	return srv.Run(ctx)
}
