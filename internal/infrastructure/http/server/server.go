package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/3tcapital/facturador/internal/infrastructure/config"
	httperrors "github.com/3tcapital/facturador/internal/infrastructure/http"
	"github.com/3tcapital/facturador/internal/infrastructure/http/middleware"
)

// InvoiceRoutes serves the invoice endpoints.
type InvoiceRoutes interface {
	Create(w http.ResponseWriter, r *http.Request)
	Authorize(w http.ResponseWriter, r *http.Request)
	AuthorizeBatch(w http.ResponseWriter, r *http.Request)
	Get(w http.ResponseWriter, r *http.Request)
	Artifacts(w http.ResponseWriter, r *http.Request)
	Log(w http.ResponseWriter, r *http.Request)
}

// StatusRoutes serves the ticket and sequence endpoints.
type StatusRoutes interface {
	Ticket(w http.ResponseWriter, r *http.Request)
	Sequence(w http.ResponseWriter, r *http.Request)
	Sync(w http.ResponseWriter, r *http.Request)
}

// Options configures the HTTP server.
type Options struct {
	Config        config.AppConfig
	Logger        *slog.Logger
	HealthHandler http.Handler
	// Auth is optional; requests are not authenticated when nil.
	Auth *middleware.JWTAuthenticator
	// InvoiceRoutes and StatusRoutes are optional; their endpoints answer
	// 503 when nil.
	InvoiceRoutes InvoiceRoutes
	StatusRoutes  StatusRoutes
}

// Server wraps the configured net/http server.
type Server struct {
	cfg        config.AppConfig
	log        *slog.Logger
	httpServer *http.Server
	auth       *middleware.JWTAuthenticator
}

// New builds the router and the underlying HTTP server.
func New(opts Options) (*Server, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.HealthHandler == nil {
		return nil, errors.New("health handler is required")
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(opts.Logger))
	r.Use(chimw.Recoverer)
	if opts.Auth != nil {
		r.Use(opts.Auth.Middleware)
	}

	r.Method(http.MethodGet, "/health", opts.HealthHandler)

	operator := passThrough
	if opts.Auth != nil {
		operator = opts.Auth.RequireScope(opts.Config.Auth.OperatorScope)
	}
	// Routes that reach the authority may wait on a ticket renewal plus the
	// call itself.
	authorityBound := middleware.OperationTimeout(2 * opts.Config.Authority.Timeout)

	unavailable := unavailableHandler(opts.Logger)
	inv := opts.InvoiceRoutes
	r.Route("/invoices", func(r chi.Router) {
		if inv == nil {
			r.Handle("/*", unavailable)
			r.Handle("/", unavailable)
			return
		}
		r.Post("/", inv.Create)
		r.With(operator, authorityBound).Post("/authorize", inv.AuthorizeBatch)
		r.Get("/{id}", inv.Get)
		r.With(authorityBound).Post("/{id}/authorize", inv.Authorize)
		r.Get("/{id}/artifacts", inv.Artifacts)
		r.Get("/{id}/log", inv.Log)
	})

	st := opts.StatusRoutes
	if st == nil {
		r.Handle("/tickets/*", unavailable)
		r.Handle("/sequences/*", unavailable)
	} else {
		r.Get("/tickets/{environment}", st.Ticket)
		r.Get("/sequences/{scope}", st.Sequence)
		r.With(operator, authorityBound).Post("/sequences/{scope}/sync", st.Sync)
	}

	srv := &http.Server{
		Addr:         opts.Config.HTTP.Address(),
		Handler:      r,
		ReadTimeout:  opts.Config.HTTP.ReadTimeout,
		WriteTimeout: opts.Config.HTTP.WriteTimeout,
		IdleTimeout:  opts.Config.HTTP.IdleTimeout,
	}

	return &Server{cfg: opts.Config, log: opts.Logger, httpServer: srv, auth: opts.Auth}, nil
}

// Run serves until ctx is cancelled, then shuts down within the configured
// shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server started", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		s.log.Info("HTTP server shutting down")
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// Close releases background resources held by the server.
func (s *Server) Close() {
	if s.auth != nil {
		s.auth.Close()
	}
}

func passThrough(next http.Handler) http.Handler {
	return next
}

func unavailableHandler(log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, http.StatusServiceUnavailable, "service unavailable",
			[]string{"the invoicing core is not configured"}, log)
	})
}
