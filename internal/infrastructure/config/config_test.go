package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	ierr "github.com/3tcapital/facturador/internal/errors"
)

func TestLoad_DefaultValues(t *testing.T) {
	// Clear all relevant env vars
	envVars := []string{
		"APP_NAME", "APP_VERSION", "APP_ENV", "APP_PORT",
		"HTTP_READ_TIMEOUT", "HTTP_WRITE_TIMEOUT", "HTTP_IDLE_TIMEOUT", "HTTP_SHUTDOWN_TIMEOUT",
		"AUTH_ENABLED", "JWT_ISSUER_URI", "JWT_JWK_SET_URI", "AUTH_CLOCK_SKEW", "AUTH_BYPASS_PATHS",
		"LOG_LEVEL", "AUTHORITY_ENV", "AUTHORITY_WSAA_URL", "AUTHORITY_WSFE_URL", "AUTHORITY_SIGNER",
		"AUTHORITY_RENEWAL_MARGIN", "AUTHORITY_TICKET_LIFETIME", "INVOICING_INTERNAL_SERIES",
	}

	for _, key := range envVars {
		os.Unsetenv(key)
	}

	// Set AUTH_ENABLED=false to avoid requiring JWT config
	os.Setenv("AUTH_ENABLED", "false")
	defer os.Unsetenv("AUTH_ENABLED")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.App.Name != "facturador" {
		t.Errorf("expected default app name 'facturador', got %q", cfg.App.Name)
	}

	if cfg.App.Version != "0.1.0" {
		t.Errorf("expected default version '0.1.0', got %q", cfg.App.Version)
	}

	if cfg.App.Environment != "local" {
		t.Errorf("expected default environment 'local', got %q", cfg.App.Environment)
	}

	if cfg.HTTP.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.HTTP.Port)
	}

	// We set AUTH_ENABLED=false in the test, so it should be false
	if cfg.Auth.Enabled != false {
		t.Errorf("expected auth enabled false (as set in test), got %v", cfg.Auth.Enabled)
	}

	if cfg.Authority.Environment != EnvironmentTesting {
		t.Errorf("expected testing environment by default, got %q", cfg.Authority.Environment)
	}
	if cfg.Authority.WSAAURL != "https://wsaahomo.afip.gov.ar/ws/services/LoginCms" {
		t.Errorf("unexpected default WSAA url %q", cfg.Authority.WSAAURL)
	}
	if cfg.Authority.RenewalMargin != 10*time.Minute {
		t.Errorf("expected renewal margin 10m, got %v", cfg.Authority.RenewalMargin)
	}
	if len(cfg.Invoicing.InternalSeries) != 1 || cfg.Invoicing.InternalSeries[0] != "X" {
		t.Errorf("expected internal series [X], got %v", cfg.Invoicing.InternalSeries)
	}
}

func TestLoad_WithCustomValues(t *testing.T) {
	// Set custom values
	os.Setenv("APP_NAME", "test-app")
	os.Setenv("APP_VERSION", "2.0.0")
	os.Setenv("APP_ENV", "production")
	os.Setenv("APP_PORT", "9090")
	os.Setenv("AUTH_ENABLED", "false")
	defer func() {
		os.Unsetenv("APP_NAME")
		os.Unsetenv("APP_VERSION")
		os.Unsetenv("APP_ENV")
		os.Unsetenv("APP_PORT")
		os.Unsetenv("AUTH_ENABLED")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.App.Name != "test-app" {
		t.Errorf("expected app name 'test-app', got %q", cfg.App.Name)
	}

	if cfg.App.Version != "2.0.0" {
		t.Errorf("expected version '2.0.0', got %q", cfg.App.Version)
	}

	if cfg.App.Environment != "production" {
		t.Errorf("expected environment 'production', got %q", cfg.App.Environment)
	}

	if cfg.HTTP.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.HTTP.Port)
	}

	if cfg.Auth.Enabled != false {
		t.Errorf("expected auth enabled false, got %v", cfg.Auth.Enabled)
	}
}

func TestLoad_AuthEnabled_MissingIssuerURI(t *testing.T) {
	os.Setenv("AUTH_ENABLED", "true")
	os.Unsetenv("JWT_ISSUER_URI")
	os.Unsetenv("JWT_JWK_SET_URI")
	defer func() {
		os.Unsetenv("AUTH_ENABLED")
	}()

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when AUTH_ENABLED=true and JWT_ISSUER_URI is missing")
	}

	if err.Error() != "invalid config: JWT_ISSUER_URI is required when AUTH_ENABLED=true" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestLoad_AuthEnabled_MissingJWKSetURI(t *testing.T) {
	os.Setenv("AUTH_ENABLED", "true")
	os.Setenv("JWT_ISSUER_URI", "https://issuer.example.com")
	os.Unsetenv("JWT_JWK_SET_URI")
	defer func() {
		os.Unsetenv("AUTH_ENABLED")
		os.Unsetenv("JWT_ISSUER_URI")
	}()

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when AUTH_ENABLED=true and JWT_JWK_SET_URI is missing")
	}

	if err.Error() != "invalid config: JWT_JWK_SET_URI is required when AUTH_ENABLED=true" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestHTTPSettings_Address(t *testing.T) {
	settings := HTTPSettings{Port: 8080}
	addr := settings.Address()

	if addr != ":8080" {
		t.Errorf("expected address ':8080', got %q", addr)
	}
}

func TestGetEnv(t *testing.T) {
	os.Setenv("TEST_KEY", "test-value")
	defer os.Unsetenv("TEST_KEY")

	value := getEnv("TEST_KEY", "default")
	if value != "test-value" {
		t.Errorf("expected 'test-value', got %q", value)
	}

	value = getEnv("NON_EXISTENT_KEY", "default-value")
	if value != "default-value" {
		t.Errorf("expected 'default-value', got %q", value)
	}
}

func TestGetEnvAsBool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		fallback bool
		expected bool
	}{
		{"true value", "true", false, true},
		{"false value", "false", true, false},
		{"True value", "True", false, true},
		{"FALSE value", "FALSE", true, false},
		{"invalid value", "invalid", true, true},
		{"missing key", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv("TEST_BOOL", tt.envValue)
				defer os.Unsetenv("TEST_BOOL")
			} else {
				os.Unsetenv("TEST_BOOL")
			}

			result := getEnvAsBool("TEST_BOOL", tt.fallback)
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		fallback int
		expected int
	}{
		{"valid int", "123", 0, 123},
		{"zero", "0", 999, 0},
		{"negative", "-10", 0, -10},
		{"invalid value", "not-a-number", 42, 42},
		{"missing key", "", 42, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv("TEST_INT", tt.envValue)
				defer os.Unsetenv("TEST_INT")
			} else {
				os.Unsetenv("TEST_INT")
			}

			result := getEnvAsInt("TEST_INT", tt.fallback)
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		fallback time.Duration
		expected time.Duration
	}{
		{"valid duration", "10s", 0, 10 * time.Second},
		{"minutes", "5m", 0, 5 * time.Minute},
		{"hours", "2h", 0, 2 * time.Hour},
		{"invalid value", "not-a-duration", 30 * time.Second, 30 * time.Second},
		{"empty value", "", 30 * time.Second, 30 * time.Second},
		{"missing key", "", 30 * time.Second, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv("TEST_DURATION", tt.envValue)
				defer os.Unsetenv("TEST_DURATION")
			} else {
				os.Unsetenv("TEST_DURATION")
			}

			result := getEnvAsDuration("TEST_DURATION", tt.fallback)
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestGetEnvAsCSV(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		fallback []string
		expected []string
	}{
		{
			name:     "single value",
			envValue: "value1",
			fallback: []string{"default"},
			expected: []string{"value1"},
		},
		{
			name:     "multiple values",
			envValue: "value1,value2,value3",
			fallback: []string{"default"},
			expected: []string{"value1", "value2", "value3"},
		},
		{
			name:     "with spaces",
			envValue: "value1, value2 , value3",
			fallback: []string{"default"},
			expected: []string{"value1", "value2", "value3"},
		},
		{
			name:     "empty values filtered",
			envValue: "value1,,value2, ,value3",
			fallback: []string{"default"},
			expected: []string{"value1", "value2", "value3"},
		},
		{
			name:     "empty string",
			envValue: "",
			fallback: []string{"default"},
			expected: []string{"default"},
		},
		{
			name:     "only spaces",
			envValue: " , , ",
			fallback: []string{"default"},
			expected: []string{"default"},
		},
		{
			name:     "missing key",
			envValue: "",
			fallback: []string{"default1", "default2"},
			expected: []string{"default1", "default2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv("TEST_CSV", tt.envValue)
				defer os.Unsetenv("TEST_CSV")
			} else {
				os.Unsetenv("TEST_CSV")
			}

			result := getEnvAsCSV("TEST_CSV", tt.fallback)
			if len(result) != len(tt.expected) {
				t.Errorf("expected %d values, got %d", len(tt.expected), len(result))
				return
			}

			for i, expected := range tt.expected {
				if result[i] != expected {
					t.Errorf("expected[%d] %q, got %q", i, expected, result[i])
				}
			}
		})
	}
}

func TestLoad_ProductionEndpoints(t *testing.T) {
	os.Setenv("AUTH_ENABLED", "false")
	os.Setenv("AUTHORITY_ENV", "PRODUCCION")
	os.Setenv("AUTHORITY_WSFE_URL", "https://wsfe.example.com/service.asmx")
	defer func() {
		os.Unsetenv("AUTH_ENABLED")
		os.Unsetenv("AUTHORITY_ENV")
		os.Unsetenv("AUTHORITY_WSFE_URL")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Authority.Environment != EnvironmentProduction {
		t.Errorf("expected %q, got %q", EnvironmentProduction, cfg.Authority.Environment)
	}
	if cfg.Authority.WSAAURL != "https://wsaa.afip.gov.ar/ws/services/LoginCms" {
		t.Errorf("unexpected WSAA url %q", cfg.Authority.WSAAURL)
	}
	if cfg.Authority.WSFEURL != "https://wsfe.example.com/service.asmx" {
		t.Errorf("explicit WSFE url should win, got %q", cfg.Authority.WSFEURL)
	}
}

func TestLoad_InvalidAuthorityEnvironment(t *testing.T) {
	os.Setenv("AUTH_ENABLED", "false")
	os.Setenv("AUTHORITY_ENV", "staging")
	defer func() {
		os.Unsetenv("AUTH_ENABLED")
		os.Unsetenv("AUTHORITY_ENV")
	}()

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for unknown authority environment")
	}
	if err.Error() != `invalid config: AUTHORITY_ENV must be "homologacion" or "produccion"` {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestLoad_InvalidSignerMode(t *testing.T) {
	os.Setenv("AUTH_ENABLED", "false")
	os.Setenv("AUTHORITY_SIGNER", "hsm")
	defer func() {
		os.Unsetenv("AUTH_ENABLED")
		os.Unsetenv("AUTHORITY_SIGNER")
	}()

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown signer mode")
	}
}

func TestLoad_RenewalMarginMustBeShorterThanLifetime(t *testing.T) {
	os.Setenv("AUTH_ENABLED", "false")
	os.Setenv("AUTHORITY_RENEWAL_MARGIN", "13h")
	defer func() {
		os.Unsetenv("AUTH_ENABLED")
		os.Unsetenv("AUTHORITY_RENEWAL_MARGIN")
	}()

	if _, err := Load(); err == nil {
		t.Fatal("expected error when the margin exceeds the ticket lifetime")
	}
}

func TestAuthoritySettings_Validate(t *testing.T) {
	dir := t.TempDir()
	cert := filepath.Join(dir, "cert.pem")
	key := filepath.Join(dir, "key.pem")
	for _, f := range []string{cert, key} {
		if err := os.WriteFile(f, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	valid := AuthoritySettings{
		TaxID:           "20123456786",
		PointOfSale:     3,
		CertificatePath: cert,
		KeyPath:         key,
		SignerMode:      SignerNative,
	}

	tests := []struct {
		name    string
		mutate  func(a *AuthoritySettings)
		wantErr bool
	}{
		{"valid", func(a *AuthoritySettings) {}, false},
		{"bad tax id", func(a *AuthoritySettings) { a.TaxID = "20123456780" }, true},
		{"missing point of sale", func(a *AuthoritySettings) { a.PointOfSale = 0 }, true},
		{"missing key", func(a *AuthoritySettings) { a.KeyPath = "" }, true},
		{"cert is a directory", func(a *AuthoritySettings) { a.CertificatePath = dir }, true},
		{"unreadable cert", func(a *AuthoritySettings) { a.CertificatePath = filepath.Join(dir, "nope.pem") }, true},
		{"pkcs12 bundle", func(a *AuthoritySettings) { a.PKCS12Path = cert; a.KeyPath = "" }, false},
		{"pkcs12 with openssl", func(a *AuthoritySettings) { a.PKCS12Path = cert; a.SignerMode = SignerOpenSSL }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := valid
			tt.mutate(&settings)

			err := settings.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err != nil && !ierr.IsConfiguration(err) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestGetEnvAsFloat(t *testing.T) {
	os.Setenv("TEST_FLOAT", "2.5")
	defer os.Unsetenv("TEST_FLOAT")

	if v := getEnvAsFloat("TEST_FLOAT", 1); v != 2.5 {
		t.Errorf("expected 2.5, got %v", v)
	}
	if v := getEnvAsFloat("MISSING_FLOAT", 1); v != 1 {
		t.Errorf("expected fallback 1, got %v", v)
	}
}
