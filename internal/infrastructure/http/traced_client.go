package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/3tcapital/facturador/internal/core/audit"
	ctxutil "github.com/3tcapital/facturador/internal/infrastructure/context"
	"github.com/3tcapital/facturador/internal/infrastructure/security"
)

// TracedClient wraps an HTTP client to log every exchange with the
// authority and persist a sanitized audit record of it.
type TracedClient struct {
	client       *http.Client
	log          *slog.Logger
	auditRepo    audit.Repository
	provider     string
	auditEnabled bool
	logReqBody   bool
	logRespBody  bool
	maxBodySize  int
	pending      sync.WaitGroup
}

// TracedClientConfig holds configuration for the traced HTTP client.
type TracedClientConfig struct {
	Timeout         time.Duration
	AuditEnabled    bool
	LogRequestBody  bool
	LogResponseBody bool
	MaxBodySize     int
	MaxConnsPerHost int
}

// NewTracedClient creates a traced client. auditRepo may be nil.
func NewTracedClient(cfg *TracedClientConfig, log *slog.Logger, auditRepo audit.Repository, provider string) *TracedClient {
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = 102400
	}
	maxConnsPerHost := cfg.MaxConnsPerHost
	if maxConnsPerHost == 0 {
		maxConnsPerHost = 10
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   maxConnsPerHost,
		MaxConnsPerHost:       maxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		ResponseHeaderTimeout: cfg.Timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &TracedClient{
		client: NewClient(&ClientConfig{
			Timeout:   cfg.Timeout,
			Transport: transport,
		}),
		log:          log,
		auditRepo:    auditRepo,
		provider:     provider,
		auditEnabled: cfg.AuditEnabled,
		logReqBody:   cfg.LogRequestBody,
		logRespBody:  cfg.LogResponseBody,
		maxBodySize:  cfg.MaxBodySize,
	}
}

// Do executes the request, logs it and persists the audit record in the
// background. The request and response bodies remain readable.
func (c *TracedClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	correlationID := ctxutil.GetCorrelationID(ctx)
	operation := c.extractOperation(req)
	start := time.Now()

	if correlationID != "" {
		req.Header.Set("X-Correlation-ID", correlationID)
	}

	var requestBody []byte
	if req.Body != nil {
		var err error
		requestBody, err = io.ReadAll(req.Body)
		if err != nil {
			c.log.Error("Failed to read request body for tracing",
				"error", err,
				"correlation_id", correlationID,
			)
		}
		req.Body = io.NopCloser(bytes.NewReader(requestBody))
	}

	c.logRequest(correlationID, operation, req, requestBody)

	resp, err := c.client.Do(req)
	duration := time.Since(start)

	var responseBody []byte
	if resp != nil && resp.Body != nil {
		responseBody, _ = io.ReadAll(resp.Body)
		resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(responseBody))
	}

	c.logResponse(correlationID, operation, req, resp, err, duration, responseBody)

	if !c.auditEnabled || c.auditRepo == nil {
		return resp, err
	}

	if correlationID == "" {
		correlationID = ctxutil.NewCorrelationID()
		c.log.Warn("Missing correlation ID, generated fallback",
			"fallback_id", correlationID,
			"operation", operation,
		)
	}

	record := c.buildAuditLog(correlationID, operation, req, resp, err, duration, requestBody, responseBody)

	// The request context ends with the call; the record must outlive it.
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		defer func() {
			if r := recover(); r != nil {
				c.log.Error("Panic in audit log persistence",
					"panic", r,
					"correlation_id", correlationID,
					"operation", operation,
				)
			}
		}()

		saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := c.auditRepo.Save(saveCtx, record); err != nil {
			c.log.Error("Failed to persist audit log",
				"error", err,
				"correlation_id", correlationID,
				"provider", c.provider,
				"operation", operation,
			)
		}
	}()

	return resp, err
}

// Wait blocks until pending audit records are persisted.
func (c *TracedClient) Wait() {
	c.pending.Wait()
}

func (c *TracedClient) logRequest(correlationID, operation string, req *http.Request, body []byte) {
	attrs := []any{
		"correlation_id", correlationID,
		"provider", c.provider,
		"operation", operation,
		"method", req.Method,
		"url", security.SanitizeURL(req.URL.String()),
	}
	if c.logReqBody && len(body) > 0 {
		attrs = append(attrs, "request_body", string(security.SanitizeBody(body, c.maxBodySize)))
	}
	c.log.Info("provider_request", attrs...)
}

func (c *TracedClient) logResponse(correlationID, operation string, req *http.Request, resp *http.Response, err error, duration time.Duration, body []byte) {
	attrs := []any{
		"correlation_id", correlationID,
		"provider", c.provider,
		"operation", operation,
		"method", req.Method,
		"url", security.SanitizeURL(req.URL.String()),
		"duration_ms", duration.Milliseconds(),
	}

	if err != nil {
		attrs = append(attrs, "error", err.Error())
		c.log.Error("provider_request_failed", attrs...)
		return
	}

	attrs = append(attrs, "status", resp.StatusCode, "response_size_bytes", len(body))
	if c.logRespBody && len(body) > 0 {
		attrs = append(attrs, "response_body", string(security.SanitizeBody(body, c.maxBodySize)))
	}

	// SOAP faults come back as 500 and are handled by the caller.
	if resp.StatusCode >= 400 {
		c.log.Warn("provider_response", attrs...)
		return
	}
	c.log.Info("provider_response", attrs...)
}

func (c *TracedClient) buildAuditLog(correlationID, operation string, req *http.Request, resp *http.Response, err error, duration time.Duration, requestBody, responseBody []byte) audit.ProviderAuditLog {
	record := audit.ProviderAuditLog{
		CorrelationID:  correlationID,
		Provider:       c.provider,
		Operation:      operation,
		RequestMethod:  req.Method,
		RequestURL:     security.SanitizeURL(req.URL.String()),
		RequestHeaders: security.SanitizeHeaders(req.Header),
		RequestBody:    security.SanitizeBody(requestBody, c.maxBodySize),
		DurationMs:     duration.Milliseconds(),
		CreatedAt:      time.Now(),
	}
	if resp != nil {
		status := resp.StatusCode
		record.ResponseStatus = &status
		record.ResponseHeaders = security.SanitizeHeaders(resp.Header)
		record.ResponseBody = security.SanitizeBody(responseBody, c.maxBodySize)
	}
	if err != nil {
		record.ErrorMessage = err.Error()
	}
	return record
}

// extractOperation names the exchange after the SOAPAction method, falling
// back to the last URL path segment.
func (c *TracedClient) extractOperation(req *http.Request) string {
	if action := strings.Trim(req.Header.Get("SOAPAction"), `"`); action != "" {
		if idx := strings.LastIndexAny(action, "/#"); idx >= 0 && idx < len(action)-1 {
			return action[idx+1:]
		}
		return action
	}

	parts := strings.Split(strings.Trim(req.URL.Path, "/"), "/")
	if last := parts[len(parts)-1]; last != "" {
		return strings.ToUpper(last[:1]) + last[1:]
	}
	return fmt.Sprintf("%s_%s", req.Method, c.provider)
}

// Client returns the underlying HTTP client.
func (c *TracedClient) Client() *http.Client {
	return c.client
}
