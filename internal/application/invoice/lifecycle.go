// Package invoice drives invoices from draft to authorization.
package invoice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/3tcapital/facturador/internal/core/audit"
	"github.com/3tcapital/facturador/internal/core/invoice"
	"github.com/3tcapital/facturador/internal/core/sequence"
	"github.com/3tcapital/facturador/internal/core/tax"
	ierr "github.com/3tcapital/facturador/internal/errors"
	ctxutil "github.com/3tcapital/facturador/internal/infrastructure/context"
)

// NumberAllocator hands out the next number of a scope.
type NumberAllocator interface {
	Next(ctx context.Context, scope sequence.Scope) (int64, error)
}

// Authorizer submits a document to the authority with the issuer's
// credentials.
type Authorizer interface {
	Authorize(ctx context.Context, req invoice.AuthorizationRequest) (*invoice.Authorization, error)
}

// Config holds the issuer settings applied to new drafts.
type Config struct {
	TaxID           string
	PointOfSale     int
	InternalSeries  []string
	DefaultCurrency string
}

// Lifecycle orchestrates draft creation and authorization.
type Lifecycle struct {
	cfg        Config
	repo       invoice.Repository
	allocator  NumberAllocator
	authorizer Authorizer
	authLog    audit.LogRepository
	log        *slog.Logger
	now        func() time.Time
}

// NewLifecycle creates the invoice lifecycle service.
func NewLifecycle(cfg Config, repo invoice.Repository, allocator NumberAllocator, authorizer Authorizer, authLog audit.LogRepository, log *slog.Logger) *Lifecycle {
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = invoice.DefaultCurrency
	}
	return &Lifecycle{
		cfg:        cfg,
		repo:       repo,
		allocator:  allocator,
		authorizer: authorizer,
		authLog:    authLog,
		log:        log,
		now:        time.Now,
	}
}

// CreateDraft validates the request, computes its totals and stores a new
// DRAFT. A request whose source reference already belongs to a stored
// invoice returns that invoice with created=false.
func (l *Lifecycle) CreateDraft(ctx context.Context, req DraftRequest) (*invoice.Invoice, bool, error) {
	if req.SourceReference != "" {
		existing, err := l.repo.FindBySourceReference(ctx, req.SourceReference)
		if err == nil {
			l.log.Info("Draft already exists for source reference",
				"invoice_id", existing.ID, "source_reference", req.SourceReference)
			return existing, false, nil
		}
		if !ierr.IsNotFound(err) {
			return nil, false, err
		}
	}

	if err := req.Validate(); err != nil {
		return nil, false, err
	}

	inv, err := l.buildDraft(req)
	if err != nil {
		return nil, false, err
	}

	stored, created, err := l.repo.Create(ctx, inv)
	if err != nil {
		l.log.Error("Failed to store draft", "error", err)
		return nil, false, fmt.Errorf("create draft: %w", err)
	}
	if created {
		l.log.Info("Draft created",
			"invoice_id", stored.ID,
			"doc_type", stored.DocType,
			"scope_key", stored.Scope(),
			"grand_total", stored.Totals.GrandTotal.StringFixed(2))
	}
	return stored, created, nil
}

func (l *Lifecycle) buildDraft(req DraftRequest) (*invoice.Invoice, error) {
	now := l.now()
	inv := &invoice.Invoice{
		ID:          uuid.New(),
		DocType:     req.DocType,
		PointOfSale: req.PointOfSale,
		Concept:     req.Concept,
		Currency:    strings.ToUpper(req.Currency),
		Quote:       req.Quote,
		PricingMode: req.PricingMode,
		State:       invoice.StateDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.SourceReference != "" {
		ref := req.SourceReference
		inv.SourceReference = &ref
	}

	if req.internal() {
		series := strings.ToUpper(strings.TrimSpace(req.Series))
		if !lo.ContainsBy(l.cfg.InternalSeries, func(s string) bool { return strings.EqualFold(s, series) }) {
			return nil, ierr.NewErrorf("series %q is not configured", series).
				WithHintf("configured series: %s", strings.Join(l.cfg.InternalSeries, ", ")).
				Mark(ierr.ErrValidation)
		}
		inv.Series = series
	} else {
		if !invoice.KnownDocType(req.DocType) {
			return nil, ierr.NewErrorf("doc type %d is not issued by the authority", req.DocType).
				WithHint("use 1-3, 6-8 or 11-13, or set a local series").
				Mark(ierr.ErrValidation)
		}
		if inv.PointOfSale == 0 {
			inv.PointOfSale = l.cfg.PointOfSale
		}
		if inv.PointOfSale <= 0 {
			return nil, ierr.NewError("point of sale is required").Mark(ierr.ErrValidation)
		}
	}

	receiver, err := invoice.ResolveReceiver(req.Receiver.DocType, req.Receiver.DocNumber, req.Receiver.TaxCondition)
	if err != nil {
		return nil, err
	}
	if inv.RequiresExternalAuthorization() {
		if err := invoice.ValidateReceiverFor(inv.DocType, receiver); err != nil {
			return nil, err
		}
	}
	inv.Receiver = receiver

	if inv.Currency == "" {
		inv.Currency = l.cfg.DefaultCurrency
	}
	if inv.Quote.IsZero() {
		if inv.Currency != invoice.DefaultCurrency {
			return nil, ierr.NewErrorf("currency %s requires a quote", inv.Currency).Mark(ierr.ErrValidation)
		}
		inv.Quote = decimal.NewFromInt(1)
	}

	inv.IssueDate = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if d := parseDate(req.IssueDate); d != nil {
		inv.IssueDate = *d
	}
	if inv.IncludesServices() {
		inv.ServiceFrom = parseDate(req.ServiceFrom)
		inv.ServiceTo = parseDate(req.ServiceTo)
		inv.PaymentDue = parseDate(req.PaymentDue)
	}

	inputs := make([]tax.LineInput, 0, len(req.Lines))
	for i, line := range req.Lines {
		code, err := tax.NormalizeRateCode(line.Rate)
		if err != nil {
			return nil, ierr.WithError(err).WithMessagef("line %d", i+1).Mark(ierr.ErrValidation)
		}
		inputs = append(inputs, tax.LineInput{Quantity: line.Quantity, UnitPrice: line.UnitPrice, RateCode: code})
	}
	amounts, totals, err := tax.Compute(req.PricingMode, inputs, req.OtherCharges)
	if err != nil {
		return nil, err
	}

	inv.Lines = make([]invoice.Line, len(amounts))
	for i, a := range amounts {
		inv.Lines[i] = invoice.Line{
			Description: req.Lines[i].Description,
			Quantity:    inputs[i].Quantity,
			UnitPrice:   inputs[i].UnitPrice,
			RateCode:    a.RateCode,
			NetAmount:   a.Net,
			TaxAmount:   a.Tax,
		}
	}
	inv.Totals = totals
	return inv, nil
}

// Authorize moves a DRAFT or REJECTED invoice to an authorized or rejected
// state. External documents keep their allocated number when the authority
// cannot be reached, so a later call resubmits the same number. Only one
// run per invoice proceeds at a time; a concurrent call fails with
// ErrInvalidState without reaching the authority.
func (l *Lifecycle) Authorize(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	release, err := l.repo.Lock(ctx, id)
	if err != nil {
		if ierr.IsInvalidState(err) {
			l.log.Warn("Authorization already in progress", "invoice_id", id)
		}
		return nil, err
	}
	defer release()

	inv, err := l.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !inv.State.CanAuthorize() {
		return nil, ierr.NewErrorf("invoice %s is %s", inv.ID, inv.State).
			WithReportableDetails(map[string]any{"state": string(inv.State)}).
			Mark(ierr.ErrInvalidState)
	}
	guard := inv.Guard()

	if inv.State == invoice.StateRejected {
		previous := inv.Number
		if err := inv.Reprocess(l.now()); err != nil {
			return nil, err
		}
		if err := l.save(ctx, inv, &guard); err != nil {
			return nil, fmt.Errorf("reprocess invoice: %w", err)
		}
		l.record(ctx, inv, audit.MethodReprocess, audit.OutcomeRejected, previous, "number detached for resubmission")
	}

	if err := l.check(inv); err != nil {
		return nil, err
	}

	if !inv.RequiresExternalAuthorization() {
		return l.authorizeLocally(ctx, inv, guard)
	}
	return l.authorizeExternally(ctx, inv, guard)
}

// save writes inv over the guarded row and moves the guard to the new
// state.
func (l *Lifecycle) save(ctx context.Context, inv *invoice.Invoice, guard *invoice.Guard) error {
	if err := l.repo.Update(ctx, inv, *guard); err != nil {
		return err
	}
	*guard = inv.Guard()
	return nil
}

func (l *Lifecycle) check(inv *invoice.Invoice) error {
	if err := tax.Reconcile(inv.LineAmounts(), inv.Totals); err != nil {
		return err
	}
	if inv.RequiresExternalAuthorization() {
		return invoice.ValidateReceiverFor(inv.DocType, inv.Receiver)
	}
	return nil
}

func (l *Lifecycle) authorizeLocally(ctx context.Context, inv *invoice.Invoice, guard invoice.Guard) (*invoice.Invoice, error) {
	n, err := l.allocator.Next(ctx, inv.Scope())
	if err != nil {
		return nil, err
	}
	if err := inv.AuthorizeLocally(n, l.now()); err != nil {
		return nil, err
	}
	if err := l.save(ctx, inv, &guard); err != nil {
		l.log.Error("Failed to store local authorization", "invoice_id", inv.ID, "number", n, "error", err)
		return nil, fmt.Errorf("store local authorization: %w", err)
	}

	l.record(ctx, inv, audit.MethodLocalSeries, audit.OutcomeLocal, inv.Number, "")
	l.log.Info("Invoice authorized locally", "invoice_id", inv.ID, "scope_key", inv.Scope(), "number", n)
	return inv, nil
}

func (l *Lifecycle) authorizeExternally(ctx context.Context, inv *invoice.Invoice, guard invoice.Guard) (*invoice.Invoice, error) {
	if inv.Number == nil {
		n, err := l.allocator.Next(ctx, inv.Scope())
		if err != nil {
			return nil, err
		}
		if err := inv.AssignNumber(n, l.now()); err != nil {
			return nil, err
		}
		if err := l.save(ctx, inv, &guard); err != nil {
			l.log.Error("Failed to store allocated number", "invoice_id", inv.ID, "number", n, "error", err)
			return nil, fmt.Errorf("store allocated number: %w", err)
		}
	}

	req := invoice.NewAuthorizationRequest(inv)
	result, err := l.authorizer.Authorize(ctx, req)
	if err != nil {
		l.record(ctx, inv, audit.MethodRequestAuthorization, audit.OutcomeFailed, inv.Number, err.Error())
		l.log.Warn("Authorization attempt failed",
			"invoice_id", inv.ID,
			"number", *inv.Number,
			"transport", ierr.IsTransport(err),
			"error", err)
		return nil, err
	}

	if err := inv.ApplyResult(*result, l.now()); err != nil {
		return nil, err
	}
	if err := l.save(ctx, inv, &guard); err != nil {
		l.log.Error("Failed to store authorization result",
			"invoice_id", inv.ID, "result", result.Result, "code", result.Code, "error", err)
		return nil, fmt.Errorf("store authorization result: %w", err)
	}

	outcome := audit.OutcomeApproved
	if inv.State == invoice.StateRejected {
		outcome = audit.OutcomeRejected
	}
	l.record(ctx, inv, audit.MethodRequestAuthorization, outcome, inv.Number, describe(result))
	l.log.Info("Authorization result applied",
		"invoice_id", inv.ID,
		"state", inv.State,
		"number", *inv.Number,
		"code", result.Code)
	return inv, nil
}

func describe(res *invoice.Authorization) string {
	parts := lo.Map(res.Observations, func(o invoice.Observation, _ int) string {
		return fmt.Sprintf("%d: %s", o.Code, o.Message)
	})
	if res.Code != "" {
		parts = append([]string{"code " + res.Code}, parts...)
	}
	return strings.Join(parts, "; ")
}

// record appends to the authorization log. A failed append is logged and
// does not fail the attempt.
func (l *Lifecycle) record(ctx context.Context, inv *invoice.Invoice, method string, outcome audit.Outcome, number *int64, detail string) {
	entry := audit.AuthorizationLogEntry{
		ID:            ulid.Make().String(),
		InvoiceID:     inv.ID,
		Method:        method,
		Outcome:       outcome,
		Detail:        detail,
		CorrelationID: ctxutil.GetCorrelationID(ctx),
		CreatedAt:     l.now(),
	}
	if number != nil {
		n := *number
		entry.Number = &n
	}
	if err := l.authLog.Append(ctx, entry); err != nil {
		l.log.Error("Failed to append authorization log", "invoice_id", inv.ID, "method", method, "error", err)
	}
}

// Get returns an invoice by id.
func (l *Lifecycle) Get(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	return l.repo.Get(ctx, id)
}

// Artifacts returns the barcode and QR URL of an externally authorized
// invoice.
func (l *Lifecycle) Artifacts(ctx context.Context, id uuid.UUID) (invoice.Artifacts, error) {
	inv, err := l.repo.Get(ctx, id)
	if err != nil {
		return invoice.Artifacts{}, err
	}
	return invoice.BuildArtifacts(inv, l.cfg.TaxID)
}

// AuthorizationLog lists every authorization attempt on an invoice, oldest
// first.
func (l *Lifecycle) AuthorizationLog(ctx context.Context, id uuid.UUID) ([]audit.AuthorizationLogEntry, error) {
	if _, err := l.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return l.authLog.ListByInvoice(ctx, id)
}
