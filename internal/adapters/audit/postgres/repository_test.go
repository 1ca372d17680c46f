package postgres

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3tcapital/facturador/internal/core/audit"
)

var (
	_ audit.Repository    = (*Repository)(nil)
	_ audit.LogRepository = (*AuthorizationLog)(nil)
)

func TestProviderAuditLog_HeadersRoundTripAsJSON(t *testing.T) {
	entry := audit.ProviderAuditLog{
		CorrelationID:  "01JAY8Q3Z9",
		Provider:       "afip",
		Operation:      "FECAESolicitar",
		RequestMethod:  "POST",
		RequestURL:     "https://wswhomo.afip.gov.ar/wsfev1/service.asmx",
		RequestHeaders: map[string]string{"SOAPAction": "http://ar.gov.afip.dif.FEV1/FECAESolicitar"},
		RequestBody:    json.RawMessage(`{"_raw":"<soap/>","_format":"xml"}`),
	}

	raw, err := json.Marshal(entry.RequestHeaders)
	require.NoError(t, err)

	var headers map[string]string
	require.NoError(t, json.Unmarshal(raw, &headers))
	assert.Equal(t, entry.RequestHeaders, headers)
	assert.True(t, json.Valid(entry.RequestBody))
}
