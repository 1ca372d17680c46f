// Package afip talks SOAP 1.1 to the authentication (WSAA) and electronic
// invoicing (WSFEv1) services.
package afip

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/beevik/etree"

	ierr "github.com/3tcapital/facturador/internal/errors"
)

const (
	soapEnvNS = "http://schemas.xmlsoap.org/soap/envelope/"
	// maxResponseSize bounds what is read from the authority.
	maxResponseSize = 4 << 20
)

// Doer executes HTTP requests. *http.Client and the traced client satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fault is a SOAP 1.1 fault returned by the authority.
type Fault struct {
	Code   string
	String string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("soap fault %s: %s", f.Code, f.String)
}

// Is reports whether the fault code ends with suffix, ignoring the namespace prefix.
func (f *Fault) Is(suffix string) bool {
	code := f.Code
	if i := strings.LastIndex(code, ":"); i >= 0 {
		code = code[i+1:]
	}
	return strings.EqualFold(code, suffix) || strings.HasSuffix(strings.ToLower(code), "."+strings.ToLower(suffix))
}

// newEnvelope returns an empty envelope and its Body element. The service
// namespace is bound to prefix.
func newEnvelope(prefix, namespace string) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	env := doc.CreateElement("soapenv:Envelope")
	env.CreateAttr("xmlns:soapenv", soapEnvNS)
	env.CreateAttr("xmlns:"+prefix, namespace)
	env.CreateElement("soapenv:Header")

	return doc, env.CreateElement("soapenv:Body")
}

// addText appends <prefix:tag>value</prefix:tag> to parent.
func addText(parent *etree.Element, tag, value string) *etree.Element {
	el := parent.CreateElement(tag)
	el.SetText(value)
	return el
}

// call posts the envelope and returns the response Body element. Network
// failures and 5xx statuses without a fault are ErrTransport. A SOAP fault
// is returned as *Fault.
func call(ctx context.Context, client Doer, url, action string, doc *etree.Document) (*etree.Element, error) {
	payload, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serialize envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("create request").Mark(ierr.ErrConfiguration)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", `"`+action+`"`)

	resp, err := client.Do(req)
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessagef("call %s", operationName(action, url)).
			WithHint("the authority did not answer, the call can be retried").
			Mark(ierr.ErrTransport)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("read response body").Mark(ierr.ErrTransport)
	}

	resDoc := etree.NewDocument()
	if err := resDoc.ReadFromBytes(body); err != nil {
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, ierr.NewErrorf("authority returned status %d", resp.StatusCode).Mark(ierr.ErrTransport)
		}
		return nil, ierr.WithError(err).
			WithMessagef("parse response (status %d)", resp.StatusCode).
			Mark(ierr.ErrAuthority)
	}

	if fault := resDoc.FindElement("//Fault"); fault != nil {
		return nil, &Fault{
			Code:   strings.TrimSpace(childText(fault, "faultcode")),
			String: strings.TrimSpace(childText(fault, "faultstring")),
		}
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, ierr.NewErrorf("authority returned status %d", resp.StatusCode).Mark(ierr.ErrTransport)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, ierr.NewErrorf("authority returned status %d", resp.StatusCode).Mark(ierr.ErrAuthority)
	}

	resBody := resDoc.FindElement("//Body")
	if resBody == nil {
		return nil, ierr.NewError("response has no soap body").Mark(ierr.ErrAuthority)
	}
	return resBody, nil
}

// childText returns the trimmed text of the first descendant named tag, in any namespace.
func childText(el *etree.Element, tag string) string {
	if el == nil {
		return ""
	}
	found := el.FindElement(".//" + tag)
	if found == nil {
		return ""
	}
	return strings.TrimSpace(found.Text())
}

func operationName(action, url string) string {
	if i := strings.LastIndex(action, "/"); i >= 0 && i < len(action)-1 {
		return action[i+1:]
	}
	if action != "" {
		return action
	}
	return url
}
