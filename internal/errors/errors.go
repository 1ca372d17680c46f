package errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Error kinds raised by the authorization core. Callers match them with
// errors.Is (or the Is* helpers) after the builder has marked the chain.
var (
	ErrConfiguration = newInternal(ErrCodeConfiguration, "configuration error")
	ErrTicket        = newInternal(ErrCodeTicket, "access ticket error")
	ErrSequence      = newInternal(ErrCodeSequence, "sequence allocation error")
	ErrValidation    = newInternal(ErrCodeValidation, "validation error")
	ErrTransport     = newInternal(ErrCodeTransport, "authority transport error")
	ErrInvalidState  = newInternal(ErrCodeInvalidState, "invalid state transition")
	ErrNotFound      = newInternal(ErrCodeNotFound, "resource not found")
	ErrDatabase      = newInternal(ErrCodeDatabase, "database error")
	ErrAuthority     = newInternal(ErrCodeAuthority, "authority error")

	statusCodeMap = map[error]int{
		ErrConfiguration: http.StatusInternalServerError,
		ErrTicket:        http.StatusBadGateway,
		ErrSequence:      http.StatusServiceUnavailable,
		ErrValidation:    http.StatusBadRequest,
		ErrTransport:     http.StatusGatewayTimeout,
		ErrInvalidState:  http.StatusConflict,
		ErrNotFound:      http.StatusNotFound,
		ErrDatabase:      http.StatusInternalServerError,
		ErrAuthority:     http.StatusBadGateway,
	}

	// statusPrecedence decides the status of errors carrying several marks.
	statusPrecedence = []error{
		ErrValidation, ErrNotFound, ErrInvalidState, ErrTransport,
		ErrTicket, ErrAuthority, ErrSequence, ErrConfiguration, ErrDatabase,
	}
)

const (
	ErrCodeConfiguration = "configuration_error"
	ErrCodeTicket        = "ticket_error"
	ErrCodeSequence      = "sequence_error"
	ErrCodeValidation    = "validation_error"
	ErrCodeTransport     = "transport_error"
	ErrCodeInvalidState  = "invalid_state"
	ErrCodeNotFound      = "not_found"
	ErrCodeDatabase      = "database_error"
	ErrCodeAuthority     = "authority_error"
)

// InternalError is a sentinel error kind.
type InternalError struct {
	Code    string
	Message string
	Err     error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is matches two InternalErrors by code.
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}
	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}
	return e.Code == t.Code
}

func newInternal(code, message string) *InternalError {
	return &InternalError{Code: code, Message: message}
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func IsConfiguration(err error) bool { return errors.Is(err, ErrConfiguration) }
func IsTicket(err error) bool        { return errors.Is(err, ErrTicket) }
func IsSequence(err error) bool      { return errors.Is(err, ErrSequence) }
func IsValidation(err error) bool    { return errors.Is(err, ErrValidation) }
func IsTransport(err error) bool     { return errors.Is(err, ErrTransport) }
func IsInvalidState(err error) bool  { return errors.Is(err, ErrInvalidState) }
func IsNotFound(err error) bool      { return errors.Is(err, ErrNotFound) }
func IsAuthority(err error) bool     { return errors.Is(err, ErrAuthority) }

// Hints returns the user-facing hints attached to err, outermost first.
func Hints(err error) []string {
	return errors.GetAllHints(err)
}

// HTTPStatusFromErr maps an error kind to the status code the HTTP adapter returns.
func HTTPStatusFromErr(err error) int {
	for _, e := range statusPrecedence {
		if errors.Is(err, e) {
			return statusCodeMap[e]
		}
	}
	return http.StatusInternalServerError
}
