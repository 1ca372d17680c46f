package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/3tcapital/facturador/internal/core/audit"
	ierr "github.com/3tcapital/facturador/internal/errors"
)

// Repository stores sanitized authority exchanges in provider_audit_log.
type Repository struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewRepository creates the provider audit repository. log may be nil.
func NewRepository(pool *pgxpool.Pool, log *slog.Logger) *Repository {
	return &Repository{pool: pool, log: log}
}

// Save inserts one exchange.
func (r *Repository) Save(ctx context.Context, entry audit.ProviderAuditLog) error {
	const query = `
		INSERT INTO provider_audit_log (
			correlation_id, provider, operation, request_method, request_url,
			request_headers, request_body, response_status, response_headers,
			response_body, duration_ms, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	requestHeaders, err := json.Marshal(entry.RequestHeaders)
	if err != nil {
		return fmt.Errorf("marshal request headers: %w", err)
	}
	responseHeaders, err := json.Marshal(entry.ResponseHeaders)
	if err != nil {
		return fmt.Errorf("marshal response headers: %w", err)
	}

	var requestBody, responseBody any
	if len(entry.RequestBody) > 0 {
		requestBody = entry.RequestBody
	}
	if len(entry.ResponseBody) > 0 {
		responseBody = entry.ResponseBody
	}

	_, err = r.pool.Exec(ctx, query,
		entry.CorrelationID,
		entry.Provider,
		entry.Operation,
		entry.RequestMethod,
		entry.RequestURL,
		requestHeaders,
		requestBody,
		entry.ResponseStatus,
		responseHeaders,
		responseBody,
		entry.DurationMs,
		entry.ErrorMessage,
	)
	if err != nil {
		if r.log != nil {
			r.log.Error("failed to insert provider audit log",
				"correlation_id", entry.CorrelationID,
				"operation", entry.Operation,
				"error", err,
			)
		}
		return ierr.WithError(err).WithMessage("insert provider audit log").Mark(ierr.ErrDatabase)
	}

	if r.log != nil {
		r.log.Debug("provider audit log saved",
			"correlation_id", entry.CorrelationID,
			"operation", entry.Operation,
			"response_status", entry.ResponseStatus,
			"duration_ms", entry.DurationMs,
		)
	}
	return nil
}

// FindByCorrelationID lists exchanges newest first.
func (r *Repository) FindByCorrelationID(ctx context.Context, correlationID string) ([]audit.ProviderAuditLog, error) {
	const query = `
		SELECT id, correlation_id, provider, operation, request_method, request_url,
		       request_headers, request_body, response_status, response_headers,
		       response_body, duration_ms, error_message, created_at
		FROM provider_audit_log
		WHERE correlation_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, correlationID)
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("query provider audit log").Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var logs []audit.ProviderAuditLog
	for rows.Next() {
		var entry audit.ProviderAuditLog
		var requestHeaders, responseHeaders, requestBody, responseBody []byte

		if err := rows.Scan(
			&entry.ID,
			&entry.CorrelationID,
			&entry.Provider,
			&entry.Operation,
			&entry.RequestMethod,
			&entry.RequestURL,
			&requestHeaders,
			&requestBody,
			&entry.ResponseStatus,
			&responseHeaders,
			&responseBody,
			&entry.DurationMs,
			&entry.ErrorMessage,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan provider audit log: %w", err)
		}

		if err := json.Unmarshal(requestHeaders, &entry.RequestHeaders); err != nil {
			return nil, fmt.Errorf("unmarshal request headers: %w", err)
		}
		if err := json.Unmarshal(responseHeaders, &entry.ResponseHeaders); err != nil {
			return nil, fmt.Errorf("unmarshal response headers: %w", err)
		}
		entry.RequestBody = requestBody
		entry.ResponseBody = responseBody

		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate provider audit log: %w", err)
	}
	return logs, nil
}
