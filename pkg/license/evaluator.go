package license

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"keygate/pkg/contracts/domain"
)

// Validator yields entitlement answers from the remote authority. *Client
// satisfies it; tests substitute fakes.
type Validator interface {
	Validate(ctx context.Context, userID string) (*domain.EntitlementResult, error)
}

// ReasonGracePeriod marks results honored offline inside the grace window.
const ReasonGracePeriod = "grace_period"

// Policy bounds how long the evaluator trusts cached verdicts: a successful
// remote check is reused for ValidationInterval, and honored offline for
// GracePeriod beyond its timestamp.
type Policy struct {
	ValidationInterval time.Duration
	GracePeriod        time.Duration
}

// DefaultPolicy mirrors the server's default license configuration.
func DefaultPolicy() Policy {
	return Policy{
		ValidationInterval: 24 * time.Hour,
		GracePeriod:        3 * 24 * time.Hour,
	}
}

// cacheEntry is one user's last successful remote verdict.
type cacheEntry struct {
	result        *domain.EntitlementResult
	lastSuccessAt time.Time
}

// Evaluator answers "is this user entitled right now" using cached remote
// results. Verdicts are cached per user: a successful remote check is
// trusted for the validation interval, and when the server is unreachable
// that user's last known valid answer is honored for the grace period,
// after which the evaluator fails closed.
//
// Only successful remote round trips refresh a user's cache timestamp. A
// grace pass deliberately does not, so the grace window stays anchored to
// the last real contact with the server.
type Evaluator struct {
	validator Validator
	policy    Policy
	logger    *slog.Logger
	nowFunc   func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewEvaluator builds an evaluator around validator. Interval and grace
// bounds come from policy.
func NewEvaluator(validator Validator, policy Policy, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		validator: validator,
		policy:    policy,
		logger:    logger,
		nowFunc:   time.Now,
		entries:   make(map[string]cacheEntry),
	}
}

// Check returns the current entitlement verdict for userID.
//
// Resolution order: a cache entry for userID younger than the validation
// interval wins without touching the network; otherwise the remote authority
// is asked and its answer cached; if the remote check fails and the user's
// cache holds a valid result inside the grace period, that result is
// honored; beyond grace the verdict is invalid and the error explains why.
func (e *Evaluator) Check(ctx context.Context, userID string) (*domain.EntitlementResult, error) {
	now := e.nowFunc()

	if cached := e.freshResult(userID, now); cached != nil {
		return cached, nil
	}

	result, err := e.validator.Validate(ctx, userID)
	if err == nil {
		e.store(userID, result, now)
		return result, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	e.mu.RLock()
	last, ok := e.entries[userID]
	e.mu.RUnlock()

	if ok && last.result.IsValid && now.Sub(last.lastSuccessAt) <= e.policy.GracePeriod {
		e.logger.WarnContext(ctx, "validation unreachable, honoring grace period",
			slog.String("user_id", userID),
			slog.Time("last_validated", last.lastSuccessAt),
			slog.String("error", err.Error()))
		grace := *last.result
		grace.Reason = ReasonGracePeriod
		grace.CheckedAt = now
		return &grace, nil
	}

	e.logger.ErrorContext(ctx, "validation unreachable beyond grace period",
		slog.String("user_id", userID),
		slog.String("error", err.Error()))
	return &domain.EntitlementResult{
		IsValid:   false,
		Reason:    "validation_unavailable",
		CheckedAt: now,
	}, fmt.Errorf("%w: %w", ErrValidationUnavailable, err)
}

// Invalidate drops every cached verdict, forcing the next Check of any user
// to go remote.
func (e *Evaluator) Invalidate() {
	e.mu.Lock()
	e.entries = make(map[string]cacheEntry)
	e.mu.Unlock()
}

// InvalidateUser drops one user's cached verdict.
func (e *Evaluator) InvalidateUser(userID string) {
	e.mu.Lock()
	delete(e.entries, userID)
	e.mu.Unlock()
}

// freshResult returns userID's cached result if it is inside the validation
// interval, else nil.
func (e *Evaluator) freshResult(userID string, now time.Time) *domain.EntitlementResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.entries[userID]
	if !ok {
		return nil
	}
	if now.Sub(entry.lastSuccessAt) > e.policy.ValidationInterval {
		return nil
	}
	cached := *entry.result
	return &cached
}

func (e *Evaluator) store(userID string, result *domain.EntitlementResult, now time.Time) {
	e.mu.Lock()
	e.entries[userID] = cacheEntry{result: result, lastSuccessAt: now}
	e.mu.Unlock()
}
