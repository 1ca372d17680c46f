package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMark_MatchesKind(t *testing.T) {
	err := WithError(fmt.Errorf("dial tcp: timeout")).
		WithHint("authority unreachable").
		Mark(ErrTransport)

	assert.True(t, IsTransport(err))
	assert.False(t, IsValidation(err))
	assert.Contains(t, Hints(err), "authority unreachable")
}

func TestMark_SurvivesWrapping(t *testing.T) {
	err := NewError("unknown rate code").Mark(ErrValidation)
	wrapped := fmt.Errorf("create draft: %w", err)

	assert.True(t, IsValidation(wrapped))
	assert.Equal(t, http.StatusBadRequest, HTTPStatusFromErr(wrapped))
}

func TestHTTPStatusFromErr(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "not found", err: NewError("x").Mark(ErrNotFound), expected: http.StatusNotFound},
		{name: "invalid state", err: NewError("x").Mark(ErrInvalidState), expected: http.StatusConflict},
		{name: "transport", err: NewError("x").Mark(ErrTransport), expected: http.StatusGatewayTimeout},
		{name: "unmarked", err: fmt.Errorf("boom"), expected: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, HTTPStatusFromErr(tt.err))
		})
	}
}

func TestWithError_Nil(t *testing.T) {
	err := WithError(nil).Mark(ErrDatabase)
	assert.Error(t, err)
	assert.True(t, Is(err, ErrDatabase))
}
