package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "keygate/internal/errors"
	"keygate/internal/infrastructure"
	"keygate/internal/services"
)

// UserHandler serves user administration endpoints. Suspending a user
// gates entitlement for every license they hold without touching license
// rows.
type UserHandler struct {
	service services.LicenseService
	logger  *slog.Logger
}

// NewUserHandler creates a user handler.
func NewUserHandler(service services.LicenseService, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "user")),
	}
}

// CreateUserRequest is the payload for registering a user.
type CreateUserRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// Routes mounts the user endpoints.
func (h *UserHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Route("/{userID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/suspend", h.Suspend)
		r.Post("/unsuspend", h.Unsuspend)
	})

	return r
}

// Create handles POST /api/users.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateUserRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.renderProblem(w, r, apperrors.NewValidationProblem("invalid JSON body", r.URL.Path))
		return
	}
	if err := validateStruct(&req); err != nil {
		h.renderProblem(w, r, apperrors.NewValidationProblem(err.Error(), r.URL.Path))
		return
	}

	user, err := h.service.CreateUser(ctx, req.Email)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "user created", slog.String("user_id", user.ID))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, user)
}

// Get handles GET /api/users/{userID}.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	render.JSON(w, r, user)
}

// Suspend handles POST /api/users/{userID}/suspend.
func (h *UserHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	user, err := h.service.SuspendUser(r.Context(), userID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "user suspended", slog.String("user_id", userID))
	render.JSON(w, r, user)
}

// Unsuspend handles POST /api/users/{userID}/unsuspend.
func (h *UserHandler) Unsuspend(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	user, err := h.service.UnsuspendUser(r.Context(), userID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "user unsuspended", slog.String("user_id", userID))
	render.JSON(w, r, user)
}

func (h *UserHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	traceID := infrastructure.GetTraceID(ctx)

	h.logger.ErrorContext(ctx, "request failed",
		slog.String("error", err.Error()),
		slog.String("path", r.URL.Path),
		slog.String("method", r.Method))

	problem := apperrors.MapServiceError(err, r.URL.Path, traceID)
	_ = render.Render(w, r, problem)
}

func (h *UserHandler) renderProblem(w http.ResponseWriter, r *http.Request, problem *apperrors.ProblemDetails) {
	if traceID := infrastructure.GetTraceID(r.Context()); traceID != "" {
		problem.WithExtension("trace_id", traceID)
	}
	_ = render.Render(w, r, problem)
}
