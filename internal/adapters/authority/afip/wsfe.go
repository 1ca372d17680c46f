package afip

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/cenkalti/backoff/v4"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/3tcapital/facturador/internal/core/invoice"
	"github.com/3tcapital/facturador/internal/core/tax"
	ierr "github.com/3tcapital/facturador/internal/errors"
)

const (
	wsfeNS = "http://ar.gov.afip.dif.FEV1/"

	methodAuthorize      = "FECAESolicitar"
	methodLastAuthorized = "FECompUltimoAutorizado"
	methodDummy          = "FEDummy"

	dateLayout = "20060102"
	// otherChargesTributeID is the generic "other taxes" tribute code.
	otherChargesTributeID = 99
)

// WSFEConfig tunes the authorization client.
type WSFEConfig struct {
	URL                string
	Timeout            time.Duration
	ReadRetries        int
	RetryInterval      time.Duration
	RateLimitRPS       float64
	BreakerMaxFailures int
	BreakerCooldown    time.Duration
}

// WSFE is the electronic invoicing service client.
type WSFE struct {
	cfg     WSFEConfig
	client  Doer
	log     *slog.Logger
	limiter *rate.Limiter
	breaker *CircuitBreaker
}

var _ invoice.Authority = (*WSFE)(nil)

// NewWSFE creates the authorization client.
func NewWSFE(cfg WSFEConfig, client Doer, log *slog.Logger) *WSFE {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 2 * time.Second
	}

	limit := rate.Inf
	burst := 1
	if cfg.RateLimitRPS > 0 {
		limit = rate.Limit(cfg.RateLimitRPS)
		burst = max(1, int(cfg.RateLimitRPS))
	}

	return &WSFE{
		cfg:     cfg,
		client:  client,
		log:     log,
		limiter: rate.NewLimiter(limit, burst),
		breaker: NewCircuitBreaker(cfg.BreakerMaxFailures, cfg.BreakerCooldown),
	}
}

// Breaker exposes the breaker state for health reporting.
func (c *WSFE) Breaker() *CircuitBreaker {
	return c.breaker
}

// Authorize submits a single document with FECAESolicitar. It is never
// retried: a lost response may still have produced an authorization.
func (c *WSFE) Authorize(ctx context.Context, req invoice.AuthorizationRequest, creds invoice.Credentials) (*invoice.Authorization, error) {
	doc, body := newEnvelope("ar", wsfeNS)
	op := body.CreateElement("ar:" + methodAuthorize)
	addAuth(op, creds)

	feReq := op.CreateElement("ar:FeCAEReq")
	cab := feReq.CreateElement("ar:FeCabReq")
	addText(cab, "ar:CantReg", "1")
	addText(cab, "ar:PtoVta", strconv.Itoa(req.PointOfSale))
	addText(cab, "ar:CbteTipo", strconv.Itoa(req.DocType))
	buildDetail(feReq.CreateElement("ar:FeDetReq").CreateElement("ar:FECAEDetRequest"), req)

	resBody, err := c.invoke(ctx, methodAuthorize, doc)
	if err != nil {
		return nil, err
	}

	result := resBody.FindElement(".//" + methodAuthorize + "Result")
	if result == nil {
		return nil, ierr.NewError("FECAESolicitar response has no result").Mark(ierr.ErrAuthority)
	}
	return parseAuthorization(result, time.Now())
}

// LastAuthorized returns the last number the authority holds for the point
// of sale and doc type. Transport failures are retried.
func (c *WSFE) LastAuthorized(ctx context.Context, pointOfSale, docType int, creds invoice.Credentials) (int64, error) {
	var last int64
	operation := func() error {
		doc, body := newEnvelope("ar", wsfeNS)
		op := body.CreateElement("ar:" + methodLastAuthorized)
		addAuth(op, creds)
		addText(op, "ar:PtoVta", strconv.Itoa(pointOfSale))
		addText(op, "ar:CbteTipo", strconv.Itoa(docType))

		resBody, err := c.invoke(ctx, methodLastAuthorized, doc)
		if err != nil {
			if ierr.IsTransport(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		result := resBody.FindElement(".//" + methodLastAuthorized + "Result")
		if result == nil {
			return backoff.Permanent(ierr.NewError("FECompUltimoAutorizado response has no result").Mark(ierr.ErrAuthority))
		}
		if errs := parseMessages(result, "Errors", "Err"); len(errs) > 0 {
			return backoff.Permanent(authorityError(methodLastAuthorized, errs))
		}

		n, err := strconv.ParseInt(childText(result, "CbteNro"), 10, 64)
		if err != nil {
			return backoff.Permanent(ierr.WithError(err).WithMessage("parse CbteNro").Mark(ierr.ErrAuthority))
		}
		last = n
		return nil
	}

	if err := c.retry(ctx, methodLastAuthorized, operation); err != nil {
		return 0, err
	}
	return last, nil
}

// Ping calls FEDummy and fails unless every server reports OK.
func (c *WSFE) Ping(ctx context.Context) error {
	doc, body := newEnvelope("ar", wsfeNS)
	body.CreateElement("ar:" + methodDummy)

	resBody, err := c.invoke(ctx, methodDummy, doc)
	if err != nil {
		return err
	}

	var down []string
	for _, server := range []string{"AppServer", "DbServer", "AuthServer"} {
		if !strings.EqualFold(childText(resBody, server), "OK") {
			down = append(down, server)
		}
	}
	if len(down) > 0 {
		return ierr.NewErrorf("authorization service reports %s not OK", strings.Join(down, ", ")).
			Mark(ierr.ErrAuthority)
	}
	return nil
}

// invoke applies the rate limit, the breaker and the call timeout.
func (c *WSFE) invoke(ctx context.Context, method string, doc *etree.Document) (*etree.Element, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, ierr.WithError(err).WithMessage("rate limiter").Mark(ierr.ErrTransport)
	}

	var resBody *etree.Element
	var callErr error
	err := c.breaker.Execute(func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		resBody, callErr = call(callCtx, c.client, c.cfg.URL, wsfeNS+method, doc)
		if callErr != nil && ierr.IsTransport(callErr) {
			return callErr
		}
		return nil
	})
	if errors.Is(err, ErrBreakerOpen) {
		c.log.Warn("Authorization service breaker open, failing fast", "method", method)
		return nil, ierr.WithError(err).
			WithHint("the authorization service failed repeatedly, retry later").
			Mark(ierr.ErrTransport)
	}
	if callErr != nil {
		var fault *Fault
		if errors.As(callErr, &fault) {
			return nil, ierr.WithError(fault).Mark(ierr.ErrAuthority)
		}
		return nil, callErr
	}
	return resBody, nil
}

func (c *WSFE) retry(ctx context.Context, method string, operation backoff.Operation) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.RetryInterval), uint64(max(0, c.cfg.ReadRetries))),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		c.log.Warn("Retrying authorization service read",
			"method", method,
			"error", err,
			"wait", wait,
		)
	}
	return backoff.RetryNotify(operation, policy, notify)
}

func addAuth(op *etree.Element, creds invoice.Credentials) {
	auth := op.CreateElement("ar:Auth")
	addText(auth, "ar:Token", creds.Token)
	addText(auth, "ar:Sign", creds.Sign)
	addText(auth, "ar:Cuit", creds.TaxID)
}

// buildDetail fills FECAEDetRequest in schema order.
func buildDetail(det *etree.Element, req invoice.AuthorizationRequest) {
	totals := req.Totals
	number := strconv.FormatInt(req.Number, 10)

	addText(det, "ar:Concepto", strconv.Itoa(req.Concept))
	addText(det, "ar:DocTipo", strconv.Itoa(req.ReceiverDocType))
	addText(det, "ar:DocNro", strconv.FormatInt(req.ReceiverDocNumber, 10))
	addText(det, "ar:CbteDesde", number)
	addText(det, "ar:CbteHasta", number)
	addText(det, "ar:CbteFch", req.IssueDate.Format(dateLayout))
	addText(det, "ar:ImpTotal", amount(totals.GrandTotal))
	addText(det, "ar:ImpTotConc", amount(decimal.Zero))
	addText(det, "ar:ImpNeto", amount(totals.TaxedNet))
	addText(det, "ar:ImpOpEx", amount(totals.ExemptNet))
	addText(det, "ar:ImpTrib", amount(totals.OtherCharges))
	addText(det, "ar:ImpIVA", amount(totals.TaxTotal))
	if req.ServiceFrom != nil && req.ServiceTo != nil && req.PaymentDue != nil {
		addText(det, "ar:FchServDesde", req.ServiceFrom.Format(dateLayout))
		addText(det, "ar:FchServHasta", req.ServiceTo.Format(dateLayout))
		addText(det, "ar:FchVtoPago", req.PaymentDue.Format(dateLayout))
	}

	currency := req.Currency
	if currency == "" {
		currency = invoice.DefaultCurrency
	}
	quote := req.Quote
	if quote.IsZero() {
		quote = decimal.NewFromInt(1)
	}
	addText(det, "ar:MonId", currency)
	addText(det, "ar:MonCotiz", quote.String())
	if req.ReceiverTaxCondition > 0 {
		addText(det, "ar:CondicionIVAReceptorId", strconv.Itoa(req.ReceiverTaxCondition))
	}

	if totals.OtherCharges.IsPositive() {
		tribute := det.CreateElement("ar:Tributos").CreateElement("ar:Tributo")
		addText(tribute, "ar:Id", strconv.Itoa(otherChargesTributeID))
		addText(tribute, "ar:Desc", "Otros tributos")
		addText(tribute, "ar:BaseImp", amount(totals.TaxedNet))
		addText(tribute, "ar:Alic", amount(decimal.Zero))
		addText(tribute, "ar:Importe", amount(totals.OtherCharges))
	}

	buckets := lo.Filter(totals.Buckets, func(b tax.Bucket, _ int) bool { return !b.Code.IsExempt() })
	if len(buckets) == 0 {
		return
	}
	iva := det.CreateElement("ar:Iva")
	for _, b := range buckets {
		alic := iva.CreateElement("ar:AlicIva")
		addText(alic, "ar:Id", strconv.Itoa(int(b.Code)))
		addText(alic, "ar:BaseImp", amount(b.Base))
		addText(alic, "ar:Importe", amount(b.Amount))
	}
}

func amount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// parseAuthorization reads FECAESolicitarResult. A rejection is returned as
// a result. A response with errors but no verdict is an authority error.
func parseAuthorization(result *etree.Element, now time.Time) (*invoice.Authorization, error) {
	detail := result.FindElement(".//FECAEDetResponse")
	errs := parseMessages(result, "Errors", "Err")

	verdict := childText(detail, "Resultado")
	if verdict == "" {
		verdict = childText(result.FindElement(".//FeCabResp"), "Resultado")
	}
	if verdict == "" {
		if len(errs) > 0 {
			return nil, authorityError(methodAuthorize, errs)
		}
		return nil, ierr.NewError("FECAESolicitar response has no Resultado").Mark(ierr.ErrAuthority)
	}

	auth := &invoice.Authorization{
		Result:       invoice.ResultCode(verdict),
		Observations: append(parseMessages(detail, "Observaciones", "Obs"), errs...),
		ProcessedAt:  now,
	}

	if auth.Result == invoice.ResultApproved {
		auth.Code = childText(detail, "CAE")
		if auth.Code == "" {
			return nil, ierr.NewError("approved response has no CAE").Mark(ierr.ErrAuthority)
		}
		if due := childText(detail, "CAEFchVto"); due != "" {
			parsed, err := time.Parse(dateLayout, due)
			if err != nil {
				return nil, ierr.WithError(err).WithMessage("parse CAEFchVto").Mark(ierr.ErrAuthority)
			}
			auth.DueDate = &parsed
		}
	}

	return auth, nil
}

// parseMessages collects Code/Msg pairs under container/item.
func parseMessages(parent *etree.Element, container, item string) []invoice.Observation {
	if parent == nil {
		return nil
	}
	group := parent.FindElement(".//" + container)
	if group == nil {
		return nil
	}

	var out []invoice.Observation
	for _, el := range group.FindElements("./" + item) {
		code, _ := strconv.Atoi(childText(el, "Code"))
		out = append(out, invoice.Observation{Code: code, Message: childText(el, "Msg")})
	}
	return out
}

func authorityError(method string, errs []invoice.Observation) error {
	msgs := lo.Map(errs, func(o invoice.Observation, _ int) string {
		return strconv.Itoa(o.Code) + ": " + o.Message
	})
	return ierr.NewErrorf("%s returned errors: %s", method, strings.Join(msgs, "; ")).
		WithReportableDetails(map[string]any{"method": method, "errors": errs}).
		Mark(ierr.ErrAuthority)
}
