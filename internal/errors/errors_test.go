package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"user not found", ErrUserNotFound, http.StatusNotFound, "/errors/not-found"},
		{"license not found", ErrLicenseNotFound, http.StatusNotFound, "/errors/not-found"},
		{"days out of range", ErrDaysOutOfRange, http.StatusBadRequest, "/errors/validation-failed"},
		{"lifetime extension", ErrLifetimeExtension, http.StatusBadRequest, "/errors/validation-failed"},
		{"missing expiry", ErrMissingExpiry, http.StatusBadRequest, "/errors/validation-failed"},
		{"invalid type", ErrInvalidLicenseType, http.StatusBadRequest, "/errors/validation-failed"},
		{"cancelled", ErrLicenseCancelled, http.StatusConflict, "/errors/license-cancelled"},
		{"invalid transition", ErrInvalidTransition, http.StatusConflict, "/errors/invalid-transition"},
		{"validation unavailable", ErrValidationUnavailable, http.StatusServiceUnavailable, "/errors/validation-unavailable"},
		{"unknown", fmt.Errorf("disk on fire"), http.StatusInternalServerError, "/errors/internal-server-error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pd := MapServiceError(tt.err, "/api/licenses/abc", "trace-1")
			assert.Equal(t, tt.wantStatus, pd.Status)
			assert.Equal(t, tt.wantType, pd.Type)
			assert.Equal(t, "/api/licenses/abc", pd.Instance)
			assert.Equal(t, "trace-1", pd.Extensions["trace_id"])
		})
	}
}

func TestMapServiceError_WrappedSentinels(t *testing.T) {
	wrapped := fmt.Errorf("extend license: %w", ErrDaysOutOfRange)
	pd := MapServiceError(wrapped, "/api/licenses/abc/extend", "")
	assert.Equal(t, http.StatusBadRequest, pd.Status)
	_, hasTrace := pd.Extensions["trace_id"]
	assert.False(t, hasTrace)
}

func TestProblemDetails_MarshalIncludesExtensions(t *testing.T) {
	pd := NewValidationProblem("bad payload", "/api/licenses",
		ValidationFieldError{Field: "days", Message: "must be in range [1,365]"})
	pd.WithExtension("trace_id", "trace-9")

	raw, err := json.Marshal(pd)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &doc))

	assert.Equal(t, "/errors/validation-failed", doc["type"])
	assert.Equal(t, "Validation Failed", doc["title"])
	assert.EqualValues(t, http.StatusBadRequest, doc["status"])
	assert.Equal(t, "bad payload", doc["detail"])
	assert.Equal(t, "trace-9", doc["trace_id"])
	require.Contains(t, doc, "errors")
}
