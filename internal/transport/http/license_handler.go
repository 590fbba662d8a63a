package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "keygate/internal/errors"
	"keygate/internal/infrastructure"
	"keygate/internal/services"
	"keygate/pkg/contracts/domain"
)

// LicenseHandler serves the administrative license surface and the
// entitlement validation endpoint.
type LicenseHandler struct {
	service services.LicenseService
	logger  *slog.Logger
}

// NewLicenseHandler creates a license handler.
func NewLicenseHandler(service services.LicenseService, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "license")),
	}
}

// ExtendLicenseRequest is the payload for extending a license expiry.
type ExtendLicenseRequest struct {
	Days int `json:"days" validate:"required"`
}

// RevokeLicenseRequest carries the optional audit reason for a revocation.
type RevokeLicenseRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ReconcileResponse reports how many rows a reconciliation sweep touched.
type ReconcileResponse struct {
	Reconciled int64     `json:"reconciled"`
	RanAt      time.Time `json:"ran_at"`
}

// Routes mounts the license endpoints.
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Post("/validate", h.Validate)
	r.Post("/reconcile", h.Reconcile)

	r.Route("/{licenseID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Delete)
		r.Post("/extend", h.Extend)
		r.Post("/revoke", h.Revoke)
		r.Post("/suspend", h.Suspend)
		r.Post("/reactivate", h.Reactivate)
	})

	return r
}

// Create handles POST /api/licenses.
func (h *LicenseHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("license-handler").Start(r.Context(), "license_handler.create")
	defer span.End()

	var req services.CreateLicenseRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.renderProblem(w, r, apperrors.NewValidationProblem("invalid JSON body", r.URL.Path))
		return
	}
	if err := validateStruct(&req); err != nil {
		h.renderProblem(w, r, apperrors.NewValidationProblem(err.Error(), r.URL.Path))
		return
	}

	license, err := h.service.CreateLicense(ctx, req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	span.SetAttributes(
		attribute.String("license.id", license.ID),
		attribute.String("license.type", string(license.Type)),
	)
	h.logger.InfoContext(ctx, "license created",
		slog.String("license_id", license.ID),
		slog.String("user_id", license.UserID),
		slog.String("type", string(license.Type)))

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, license)
}

// Get handles GET /api/licenses/{licenseID}.
func (h *LicenseHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetLicense(r.Context(), chi.URLParam(r, "licenseID"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	render.JSON(w, r, view)
}

// List handles GET /api/licenses with search, type, isActive, page and
// pageSize query parameters.
func (h *LicenseHandler) List(w http.ResponseWriter, r *http.Request) {
	q := listQueryFromRequest(r)
	resp, err := h.service.ListLicenses(r.Context(), q)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// Extend handles POST /api/licenses/{licenseID}/extend.
func (h *LicenseHandler) Extend(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("license-handler").Start(r.Context(), "license_handler.extend")
	defer span.End()

	var req ExtendLicenseRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.renderProblem(w, r, apperrors.NewValidationProblem("invalid JSON body", r.URL.Path))
		return
	}
	if err := validateStruct(&req); err != nil {
		h.renderProblem(w, r, apperrors.NewValidationProblem(err.Error(), r.URL.Path))
		return
	}

	licenseID := chi.URLParam(r, "licenseID")
	license, err := h.service.ExtendLicense(ctx, licenseID, req.Days)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	span.SetAttributes(attribute.Int("extend.days", req.Days))
	h.logger.InfoContext(ctx, "license extended",
		slog.String("license_id", licenseID),
		slog.Int("days", req.Days))

	render.JSON(w, r, license)
}

// Revoke handles POST /api/licenses/{licenseID}/revoke. Revoking an already
// cancelled license is a no-op and still answers 200.
func (h *LicenseHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RevokeLicenseRequest
	if r.ContentLength > 0 {
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			h.renderProblem(w, r, apperrors.NewValidationProblem("invalid JSON body", r.URL.Path))
			return
		}
	}

	licenseID := chi.URLParam(r, "licenseID")
	license, err := h.service.RevokeLicense(ctx, licenseID, req.Reason)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "license revoked",
		slog.String("license_id", licenseID),
		slog.String("reason", req.Reason))

	render.JSON(w, r, license)
}

// Suspend handles POST /api/licenses/{licenseID}/suspend.
func (h *LicenseHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	licenseID := chi.URLParam(r, "licenseID")
	license, err := h.service.SuspendLicense(r.Context(), licenseID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "license suspended", slog.String("license_id", licenseID))
	render.JSON(w, r, license)
}

// Reactivate handles POST /api/licenses/{licenseID}/reactivate.
func (h *LicenseHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	licenseID := chi.URLParam(r, "licenseID")
	license, err := h.service.ReactivateLicense(r.Context(), licenseID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "license reactivated", slog.String("license_id", licenseID))
	render.JSON(w, r, license)
}

// Delete handles DELETE /api/licenses/{licenseID}. Success is 204; a
// missing license is 404.
func (h *LicenseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	licenseID := chi.URLParam(r, "licenseID")
	if err := h.service.DeleteLicense(r.Context(), licenseID); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "license deleted", slog.String("license_id", licenseID))
	render.NoContent(w, r)
}

// Validate handles POST /api/licenses/validate. A denied entitlement is a
// normal 200 response with is_valid false; only transport or server faults
// produce errors.
func (h *LicenseHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("license-handler").Start(r.Context(), "license_handler.validate",
		trace.WithAttributes(attribute.String("http.route", "/api/licenses/validate")))
	defer span.End()

	var req domain.ValidateEntitlementRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.renderProblem(w, r, apperrors.NewValidationProblem("invalid JSON body", r.URL.Path))
		return
	}
	if err := validateStruct(&req); err != nil {
		h.renderProblem(w, r, apperrors.NewValidationProblem(err.Error(), r.URL.Path))
		return
	}

	result, err := h.service.ValidateForUser(ctx, req.UserID)
	if err != nil {
		span.RecordError(err)
		h.handleError(w, r, err)
		return
	}

	span.SetAttributes(
		attribute.Bool("entitlement.valid", result.IsValid),
		attribute.String("entitlement.reason", result.Reason),
	)
	h.logger.InfoContext(ctx, "entitlement validated",
		slog.String("user_id", req.UserID),
		slog.Bool("is_valid", result.IsValid),
		slog.String("reason", result.Reason))

	render.JSON(w, r, result)
}

// Reconcile handles POST /api/licenses/reconcile: it persists the expired
// status for active licenses whose expiry has passed.
func (h *LicenseHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	n, err := h.service.ReconcileExpired(ctx)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "expired licenses reconciled", slog.Int64("count", n))
	render.JSON(w, r, ReconcileResponse{Reconciled: n, RanAt: time.Now().UTC()})
}

func (h *LicenseHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	traceID := infrastructure.GetTraceID(ctx)

	h.logger.ErrorContext(ctx, "request failed",
		slog.String("error", err.Error()),
		slog.String("path", r.URL.Path),
		slog.String("method", r.Method))

	problem := apperrors.MapServiceError(err, r.URL.Path, traceID)
	_ = render.Render(w, r, problem)
}

func (h *LicenseHandler) renderProblem(w http.ResponseWriter, r *http.Request, problem *apperrors.ProblemDetails) {
	if traceID := infrastructure.GetTraceID(r.Context()); traceID != "" {
		problem.WithExtension("trace_id", traceID)
	}
	_ = render.Render(w, r, problem)
}
