package signer

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/3tcapital/facturador/internal/core/ticket"
	ierr "github.com/3tcapital/facturador/internal/errors"
)

const defaultOpenSSLTimeout = 15 * time.Second

// OpenSSL signs by running `openssl smime` with the certificate and key files.
type OpenSSL struct {
	binary   string
	certPath string
	keyPath  string
	timeout  time.Duration
	log      *slog.Logger
}

var _ ticket.Signer = (*OpenSSL)(nil)

// NewOpenSSL creates a signer that shells out to binary.
func NewOpenSSL(binary, certPath, keyPath string, timeout time.Duration, log *slog.Logger) *OpenSSL {
	if binary == "" {
		binary = "openssl"
	}
	if timeout <= 0 {
		timeout = defaultOpenSSLTimeout
	}
	return &OpenSSL{binary: binary, certPath: certPath, keyPath: keyPath, timeout: timeout, log: log}
}

// Sign pipes content through openssl and returns the DER output.
func (s *OpenSSL) Sign(ctx context.Context, content []byte) ([]byte, error) {
	path, err := exec.LookPath(s.binary)
	if err != nil {
		return nil, ierr.WithError(err).WithHint("install openssl or set AUTHORITY_SIGNER=native").Mark(ierr.ErrConfiguration)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path,
		"smime", "-sign",
		"-signer", s.certPath,
		"-inkey", s.keyPath,
		"-outform", "DER",
		"-nodetach", "-binary",
	)
	cmd.Stdin = bytes.NewReader(content)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	s.log.Debug("Signing login request with openssl", "binary", path)
	if err := cmd.Run(); err != nil {
		return nil, ierr.WithError(err).
			WithMessagef("openssl smime: %s", strings.TrimSpace(stderr.String())).
			Mark(ierr.ErrConfiguration)
	}
	if stdout.Len() == 0 {
		return nil, ierr.NewError("openssl produced no output").Mark(ierr.ErrConfiguration)
	}
	return stdout.Bytes(), nil
}
