package license

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	apperrors "keygate/internal/errors"
	"keygate/pkg/contracts/domain"
)

// ErrValidationUnavailable is returned when the server cannot be reached or
// keeps failing past the retry budget. It matches the server-side sentinel,
// so errors.Is works with either.
var ErrValidationUnavailable = apperrors.ErrValidationUnavailable

// Client talks to the keygate validation surface over HTTP. All requests go
// through the retry transport, so transient server failures are absorbed up
// to the configured budget.
type Client struct {
	baseURL   string
	transport *RetryTransport
	logger    *slog.Logger
}

// NewClient builds a validation client rooted at baseURL, e.g.
// "https://licenses.example.com/api".
func NewClient(baseURL string, transport *RetryTransport, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		transport: transport,
		logger:    logger,
	}
}

// Validate asks the server whether userID is currently entitled. A reachable
// server always yields a result, entitled or not; an error means the answer
// is unknown (network failure or exhausted retries).
func (c *Client) Validate(ctx context.Context, userID string) (*domain.EntitlementResult, error) {
	payload, err := json.Marshal(domain.ValidateEntitlementRequest{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("encode validation request: %w", err)
	}

	spec := RequestSpec{
		Method: http.MethodPost,
		URL:    c.baseURL + "/licenses/validate",
		Header: http.Header{
			"Content-Type": []string{"application/json"},
			"Accept":       []string{"application/json"},
		},
		Body: payload,
	}

	resp, err := c.transport.Do(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.WarnContext(ctx, "validation request rejected",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(body)))
		return nil, fmt.Errorf("%w: unexpected status %d", ErrValidationUnavailable, resp.StatusCode)
	}

	var result domain.EntitlementResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode validation response: %w", err)
	}
	return &result, nil
}
