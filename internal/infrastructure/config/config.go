package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/3tcapital/facturador/internal/core/compliance"
	ierr "github.com/3tcapital/facturador/internal/errors"
)

// Authority environments.
const (
	EnvironmentTesting    = "homologacion"
	EnvironmentProduction = "produccion"
)

// Signer modes.
const (
	SignerNative  = "native"
	SignerOpenSSL = "openssl"
)

var defaultEndpoints = map[string]struct{ wsaa, wsfe string }{
	EnvironmentTesting: {
		wsaa: "https://wsaahomo.afip.gov.ar/ws/services/LoginCms",
		wsfe: "https://wswhomo.afip.gov.ar/wsfev1/service.asmx",
	},
	EnvironmentProduction: {
		wsaa: "https://wsaa.afip.gov.ar/ws/services/LoginCms",
		wsfe: "https://servicios1.afip.gov.ar/wsfev1/service.asmx",
	},
}

// AppConfig encapsulates all runtime configuration knobs.
type AppConfig struct {
	App       AppSettings
	HTTP      HTTPSettings
	Auth      AuthSettings
	Log       LogSettings
	Database  DatabaseSettings
	Audit     AuditSettings
	Authority AuthoritySettings
	Invoicing InvoicingSettings
}

type AppSettings struct {
	Name        string
	Version     string
	Environment string
}

type HTTPSettings struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type AuthSettings struct {
	Enabled     bool
	IssuerURI   string
	JWKSetURI   string
	ClockSkew   time.Duration
	BypassPaths []string

	// OperatorScope guards sequence synchronization and batch authorization.
	OperatorScope string
}

type LogSettings struct {
	Level string
}

type DatabaseSettings struct {
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type AuditSettings struct {
	Enabled         bool
	LogRequestBody  bool
	LogResponseBody bool
	MaxBodySize     int
}

// AuthoritySettings is the immutable configuration of the tax authority
// integration.
type AuthoritySettings struct {
	Environment        string
	TaxID              string
	PointOfSale        int
	CertificatePath    string
	KeyPath            string
	PKCS12Path         string
	PKCS12Password     string
	SignerMode         string
	OpenSSLPath        string
	WSAAURL            string
	WSFEURL            string
	Service            string
	Timeout            time.Duration
	ReadRetries        int
	TicketRetries      int
	RetryInterval      time.Duration
	RenewalMargin      time.Duration
	TicketLifetime     time.Duration
	RateLimitRPS       float64
	BreakerMaxFailures int
	BreakerCooldown    time.Duration
}

// InvoicingSettings configures local numbering.
type InvoicingSettings struct {
	InternalSeries      []string
	DefaultCurrency     string
	SequenceLockTimeout time.Duration
}

// Load resolves the application configuration from environment variables,
// reading a .env file first when present. Process environment wins.
func Load() (AppConfig, error) {
	_ = godotenv.Load()

	cfg := AppConfig{
		App: AppSettings{
			Name:        getEnv("APP_NAME", "facturador"),
			Version:     getEnv("APP_VERSION", "0.1.0"),
			Environment: getEnv("APP_ENV", "local"),
		},
		HTTP: HTTPSettings{
			Port:            getEnvAsInt("APP_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("HTTP_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("HTTP_WRITE_TIMEOUT", 90*time.Second),
			IdleTimeout:     getEnvAsDuration("HTTP_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvAsDuration("HTTP_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Auth: AuthSettings{
			Enabled:     getEnvAsBool("AUTH_ENABLED", true),
			IssuerURI:   strings.TrimSpace(os.Getenv("JWT_ISSUER_URI")),
			JWKSetURI:   strings.TrimSpace(os.Getenv("JWT_JWK_SET_URI")),
			ClockSkew:   getEnvAsDuration("AUTH_CLOCK_SKEW", 2*time.Minute),
			BypassPaths: getEnvAsCSV("AUTH_BYPASS_PATHS", []string{"/health"}),

			OperatorScope: getEnv("AUTH_OPERATOR_SCOPE", "facturador:operate"),
		},
		Log: LogSettings{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseSettings{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			Database:        getEnv("DB_NAME", "facturador"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Audit: AuditSettings{
			Enabled:         getEnvAsBool("AUDIT_ENABLED", true),
			LogRequestBody:  getEnvAsBool("AUDIT_LOG_REQUEST_BODY", false),
			LogResponseBody: getEnvAsBool("AUDIT_LOG_RESPONSE_BODY", false),
			MaxBodySize:     getEnvAsInt("AUDIT_MAX_BODY_SIZE", 102400),
		},
		Authority: AuthoritySettings{
			Environment:        strings.ToLower(getEnv("AUTHORITY_ENV", EnvironmentTesting)),
			TaxID:              strings.TrimSpace(os.Getenv("AUTHORITY_TAX_ID")),
			PointOfSale:        getEnvAsInt("AUTHORITY_POINT_OF_SALE", 0),
			CertificatePath:    strings.TrimSpace(os.Getenv("AUTHORITY_CERT_PATH")),
			KeyPath:            strings.TrimSpace(os.Getenv("AUTHORITY_KEY_PATH")),
			PKCS12Path:         strings.TrimSpace(os.Getenv("AUTHORITY_PKCS12_PATH")),
			PKCS12Password:     os.Getenv("AUTHORITY_PKCS12_PASSWORD"),
			SignerMode:         strings.ToLower(getEnv("AUTHORITY_SIGNER", SignerNative)),
			OpenSSLPath:        getEnv("AUTHORITY_OPENSSL_PATH", "openssl"),
			WSAAURL:            strings.TrimSpace(os.Getenv("AUTHORITY_WSAA_URL")),
			WSFEURL:            strings.TrimSpace(os.Getenv("AUTHORITY_WSFE_URL")),
			Service:            getEnv("AUTHORITY_SERVICE", "wsfe"),
			Timeout:            getEnvAsDuration("AUTHORITY_TIMEOUT", 30*time.Second),
			ReadRetries:        getEnvAsInt("AUTHORITY_READ_RETRIES", 3),
			TicketRetries:      getEnvAsInt("AUTHORITY_TICKET_RETRIES", 3),
			RetryInterval:      getEnvAsDuration("AUTHORITY_RETRY_INTERVAL", 2*time.Second),
			RenewalMargin:      getEnvAsDuration("AUTHORITY_RENEWAL_MARGIN", 10*time.Minute),
			TicketLifetime:     getEnvAsDuration("AUTHORITY_TICKET_LIFETIME", 12*time.Hour),
			RateLimitRPS:       getEnvAsFloat("AUTHORITY_RATE_LIMIT_RPS", 5),
			BreakerMaxFailures: getEnvAsInt("AUTHORITY_BREAKER_MAX_FAILURES", 5),
			BreakerCooldown:    getEnvAsDuration("AUTHORITY_BREAKER_COOLDOWN", 30*time.Second),
		},
		Invoicing: InvoicingSettings{
			InternalSeries:      getEnvAsCSV("INVOICING_INTERNAL_SERIES", []string{"X"}),
			DefaultCurrency:     getEnv("INVOICING_DEFAULT_CURRENCY", "PES"),
			SequenceLockTimeout: getEnvAsDuration("SEQUENCE_LOCK_TIMEOUT", 5*time.Second),
		},
	}

	endpoints, ok := defaultEndpoints[cfg.Authority.Environment]
	if !ok {
		return cfg, fmt.Errorf("invalid config: AUTHORITY_ENV must be %q or %q", EnvironmentTesting, EnvironmentProduction)
	}
	if cfg.Authority.WSAAURL == "" {
		cfg.Authority.WSAAURL = endpoints.wsaa
	}
	if cfg.Authority.WSFEURL == "" {
		cfg.Authority.WSFEURL = endpoints.wsfe
	}

	if cfg.Authority.SignerMode != SignerNative && cfg.Authority.SignerMode != SignerOpenSSL {
		return cfg, errors.New("invalid config: AUTHORITY_SIGNER must be 'native' or 'openssl'")
	}
	if cfg.Authority.ReadRetries < 0 || cfg.Authority.TicketRetries < 0 {
		return cfg, errors.New("invalid config: AUTHORITY_*_RETRIES must not be negative")
	}
	if cfg.Authority.RenewalMargin >= cfg.Authority.TicketLifetime {
		return cfg, errors.New("invalid config: AUTHORITY_RENEWAL_MARGIN must be shorter than AUTHORITY_TICKET_LIFETIME")
	}

	if cfg.Auth.Enabled {
		if cfg.Auth.IssuerURI == "" {
			return cfg, errors.New("invalid config: JWT_ISSUER_URI is required when AUTH_ENABLED=true")
		}
		if cfg.Auth.JWKSetURI == "" {
			return cfg, errors.New("invalid config: JWT_JWK_SET_URI is required when AUTH_ENABLED=true")
		}
	}

	return cfg, nil
}

// Validate checks the fields needed to talk to the authority. It is called
// when the authority stack is built rather than in Load, so commands that
// never reach the authority run without credentials.
func (a AuthoritySettings) Validate() error {
	if !compliance.ValidTaxID(a.TaxID) {
		return ierr.NewErrorf("AUTHORITY_TAX_ID %q is not a valid tax id", a.TaxID).
			WithHint("11 digits with a valid check digit").
			Mark(ierr.ErrConfiguration)
	}
	if a.PointOfSale <= 0 || a.PointOfSale > 99999 {
		return ierr.NewErrorf("AUTHORITY_POINT_OF_SALE %d out of range", a.PointOfSale).Mark(ierr.ErrConfiguration)
	}

	if a.PKCS12Path != "" {
		if a.SignerMode == SignerOpenSSL {
			return ierr.NewError("the openssl signer needs AUTHORITY_CERT_PATH and AUTHORITY_KEY_PATH, not a PKCS#12 bundle").
				Mark(ierr.ErrConfiguration)
		}
		return checkReadable("AUTHORITY_PKCS12_PATH", a.PKCS12Path)
	}
	if err := checkReadable("AUTHORITY_CERT_PATH", a.CertificatePath); err != nil {
		return err
	}
	return checkReadable("AUTHORITY_KEY_PATH", a.KeyPath)
}

func checkReadable(name, path string) error {
	if path == "" {
		return ierr.NewErrorf("%s is required", name).Mark(ierr.ErrConfiguration)
	}
	info, err := os.Stat(path)
	if err != nil {
		return ierr.WithError(err).WithMessagef("%s", name).Mark(ierr.ErrConfiguration)
	}
	if info.IsDir() {
		return ierr.NewErrorf("%s points to a directory", name).Mark(ierr.ErrConfiguration)
	}
	return nil
}

// Address returns the HTTP listen address in host:port form.
func (h HTTPSettings) Address() string {
	return fmt.Sprintf(":%d", h.Port)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsCSV(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	if len(values) == 0 {
		return fallback
	}
	return values
}
