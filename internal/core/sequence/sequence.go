// Package sequence defines the per-scope invoice number counters.
package sequence

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	ierr "github.com/3tcapital/facturador/internal/errors"
)

// Scope identifies one independent numbering sequence.
// External scopes look like "pos:3:type:6", internal ones like "series:X".
type Scope string

// ExternalScope is the scope of an authority-numbered document type at a
// point of sale.
func ExternalScope(pointOfSale, docType int) Scope {
	return Scope(fmt.Sprintf("pos:%d:type:%d", pointOfSale, docType))
}

// InternalScope is the scope of a locally numbered series.
func InternalScope(series string) Scope {
	return Scope("series:" + strings.ToUpper(series))
}

// IsExternal reports whether numbers in the scope are issued by the authority.
func (s Scope) IsExternal() bool {
	return strings.HasPrefix(string(s), "pos:")
}

func (s Scope) String() string {
	return string(s)
}

// ExternalParts returns the point of sale and doc type of an external scope.
func (s Scope) ExternalParts() (pointOfSale, docType int, err error) {
	parts := strings.Split(string(s), ":")
	if len(parts) != 4 || parts[0] != "pos" || parts[2] != "type" {
		return 0, 0, ierr.NewErrorf("scope %q is not an external scope", string(s)).Mark(ierr.ErrValidation)
	}
	pointOfSale, err = strconv.Atoi(parts[1])
	if err != nil || pointOfSale <= 0 {
		return 0, 0, ierr.NewErrorf("scope %q has an invalid point of sale", string(s)).Mark(ierr.ErrValidation)
	}
	docType, err = strconv.Atoi(parts[3])
	if err != nil || docType <= 0 {
		return 0, 0, ierr.NewErrorf("scope %q has an invalid document type", string(s)).Mark(ierr.ErrValidation)
	}
	return pointOfSale, docType, nil
}

// ParseScope validates a scope key received from outside.
func ParseScope(raw string) (Scope, error) {
	s := Scope(strings.TrimSpace(raw))
	if s.IsExternal() {
		if _, _, err := s.ExternalParts(); err != nil {
			return "", err
		}
		return s, nil
	}
	if series, ok := strings.CutPrefix(string(s), "series:"); ok && series != "" {
		return InternalScope(series), nil
	}
	return "", ierr.NewErrorf("invalid scope %q", raw).
		WithHint("use pos:<point of sale>:type:<doc type> or series:<letter>").
		Mark(ierr.ErrValidation)
}

// Counter is the persisted state of a scope.
type Counter struct {
	Scope      Scope     `json:"scope"`
	LastNumber int64     `json:"lastNumber"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// SeedFunc returns the initial last number for a scope that has no counter.
type SeedFunc func(ctx context.Context) (int64, error)

// SyncReport is the outcome of comparing a local counter with the authority.
type SyncReport struct {
	Scope   Scope `json:"scope"`
	Local   int64 `json:"local"`
	Remote  int64 `json:"remote"`
	Delta   int64 `json:"delta"`
	Updated bool  `json:"updated"`
}

// Store holds counters. Implementations must serialize Next and Overwrite
// for the same scope and never expose a partially applied increment.
type Store interface {
	// Next increments the scope's counter and returns the new value. The
	// seed is called when the counter does not exist yet.
	Next(ctx context.Context, scope Scope, seed SeedFunc) (int64, error)
	// Overwrite sets the counter to value under the scope lock, creating
	// it if needed, and returns the previous value (0 when absent).
	Overwrite(ctx context.Context, scope Scope, value int64) (previous int64, err error)
	// Get returns the counter or an error marked ErrNotFound.
	Get(ctx context.Context, scope Scope) (*Counter, error)
}
