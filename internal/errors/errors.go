// Package errors defines the error taxonomy for keygate and the RFC 7807
// problem-details responses the HTTP layer renders for it.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/render"
)

// Sentinel errors for the license domain. Handlers map these with errors.Is;
// services wrap them with context via fmt.Errorf and %w.
var (
	// Not-found conditions (404-equivalent, non-retryable).
	ErrUserNotFound    = errors.New("user not found")
	ErrLicenseNotFound = errors.New("license not found")

	// Validation conditions (bad input, non-retryable).
	ErrDaysOutOfRange     = errors.New("extension days out of range")
	ErrLifetimeExtension  = errors.New("lifetime license has no expiry to extend")
	ErrMissingExpiry      = errors.New("expiry date required for non-lifetime license")
	ErrInvalidLicenseType = errors.New("invalid license type")
	ErrLicenseCancelled   = errors.New("license is cancelled")
	ErrInvalidTransition  = errors.New("invalid license status transition")

	// Transport conditions (retried, then surfaced after exhaustion).
	ErrValidationUnavailable = errors.New("license validation unavailable")
)

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs.
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// Additional fields for extensibility
	Extensions map[string]interface{} `json:"-"`
}

// Render implements the render.Renderer interface.
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON custom marshaler to include extensions.
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{})

	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status

	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}

	for k, v := range pd.Extensions {
		data[k] = v
	}

	return json.Marshal(data)
}

// NewProblemDetails creates a new RFC 7807 compliant error.
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension adds an extension field to the problem details.
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	pd.Extensions[key] = value
	return pd
}

// ValidationFieldError describes a single failed field for problem details.
type ValidationFieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// NewValidationProblem creates a 400 problem for a bad request payload.
func NewValidationProblem(detail, instance string, fields ...ValidationFieldError) *ProblemDetails {
	pd := NewProblemDetails(
		http.StatusBadRequest,
		"/errors/validation-failed",
		"Validation Failed",
		detail,
		instance,
	)
	if len(fields) > 0 {
		pd.WithExtension("errors", fields)
	}
	return pd
}

// NewNotFoundProblem creates a 404 problem for a missing user or license.
func NewNotFoundProblem(detail, instance string) *ProblemDetails {
	return NewProblemDetails(
		http.StatusNotFound,
		"/errors/not-found",
		"Not Found",
		detail,
		instance,
	)
}

// NewInternalProblem creates a 500 problem for unexpected failures.
func NewInternalProblem(instance string) *ProblemDetails {
	return NewProblemDetails(
		http.StatusInternalServerError,
		"/errors/internal-server-error",
		"Internal Server Error",
		"An unexpected error occurred",
		instance,
	)
}

// MapServiceError converts a service-layer error into problem details. The
// mapping mirrors the taxonomy: not-found → 404, validation → 400,
// transport exhaustion → 503, anything else → 500.
func MapServiceError(err error, instance, traceID string) *ProblemDetails {
	var pd *ProblemDetails

	switch {
	case errors.Is(err, ErrUserNotFound):
		pd = NewNotFoundProblem("User not found", instance)
	case errors.Is(err, ErrLicenseNotFound):
		pd = NewNotFoundProblem("License not found", instance)
	case errors.Is(err, ErrDaysOutOfRange):
		pd = NewValidationProblem("Extension days must be between 1 and 365", instance,
			ValidationFieldError{Field: "days", Message: "must be in range [1,365]"})
	case errors.Is(err, ErrLifetimeExtension):
		pd = NewValidationProblem("Lifetime licenses have no expiry date to extend", instance)
	case errors.Is(err, ErrMissingExpiry):
		pd = NewValidationProblem("An expiry date is required for non-lifetime licenses", instance,
			ValidationFieldError{Field: "expires_at", Message: "required"})
	case errors.Is(err, ErrInvalidLicenseType):
		pd = NewValidationProblem("Unknown license type", instance,
			ValidationFieldError{Field: "type", Message: "must be one of trial, monthly, yearly, lifetime"})
	case errors.Is(err, ErrLicenseCancelled):
		pd = NewProblemDetails(
			http.StatusConflict,
			"/errors/license-cancelled",
			"License Cancelled",
			"A cancelled license is terminal; issue a new license instead",
			instance,
		)
	case errors.Is(err, ErrInvalidTransition):
		pd = NewProblemDetails(
			http.StatusConflict,
			"/errors/invalid-transition",
			"Invalid Status Transition",
			err.Error(),
			instance,
		)
	case errors.Is(err, ErrValidationUnavailable):
		pd = NewProblemDetails(
			http.StatusServiceUnavailable,
			"/errors/validation-unavailable",
			"Validation Unavailable",
			"The license authority could not be reached",
			instance,
		)
	default:
		pd = NewInternalProblem(instance)
	}

	if traceID != "" {
		pd.WithExtension("trace_id", traceID)
	}
	return pd
}
