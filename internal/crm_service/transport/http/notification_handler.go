package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"

	"github.com/crmkit/crm_services/internal/crm_service/domain"
)

// Notifications is the application surface exposed over HTTP.
type Notifications interface {
	Welcome(context.Context, *domain.WelcomeRequest) (*domain.Response, error)
	Recall(context.Context, *domain.RecallRequest) (*domain.Response, error)
	Remind(context.Context, *domain.RemindRequest) (*domain.Response, error)
}

// maxBodyBytes bounds request payloads; content id lists are the largest field.
const maxBodyBytes = 1 << 20

type NotificationHandler struct {
	app    Notifications
	logger *slog.Logger
}

func NewNotificationHandler(app Notifications, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{app: app, logger: logger.With("handler", "notification")}
}

// RegisterRoutes registers the notification endpoints with the given router.
func (h *NotificationHandler) RegisterRoutes(r chi.Router) {
	r.Post("/welcome", h.handleWelcome)
	r.Post("/recall", h.handleRecall)
	r.Post("/remind", h.handleRemind)
}

func (h *NotificationHandler) handleWelcome(w http.ResponseWriter, r *http.Request) {
	var req domain.WelcomeRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.app.Welcome(r.Context(), &req)
	h.respond(w, r, resp, err)
}

func (h *NotificationHandler) handleRecall(w http.ResponseWriter, r *http.Request) {
	var req domain.RecallRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.app.Recall(r.Context(), &req)
	h.respond(w, r, resp, err)
}

func (h *NotificationHandler) handleRemind(w http.ResponseWriter, r *http.Request) {
	var req domain.RemindRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.app.Remind(r.Context(), &req)
	h.respond(w, r, resp, err)
}

func (h *NotificationHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.logger.WarnContext(r.Context(), "Failed to decode request", "request_id", chi_middleware.GetReqID(r.Context()), "error", err)
		jsonError(w, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *NotificationHandler) respond(w http.ResponseWriter, r *http.Request, resp *domain.Response, err error) {
	ctx := r.Context()
	if err != nil {
		code := statusFor(err)
		msg := publicMessage(err)
		level := slog.LevelWarn
		if code >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		h.logger.Log(ctx, level, "Notification request failed", "request_id", chi_middleware.GetReqID(ctx), "path", r.URL.Path, "error", err)
		jsonError(w, msg, code)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidCohort):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrContentUnavailable),
		errors.Is(err, domain.ErrDeliveryUnavailable),
		errors.Is(err, domain.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage never exposes wrapped causes of server-side failures.
func publicMessage(err error) string {
	for _, known := range []error{
		domain.ErrCohortBackend,
		domain.ErrContentUnavailable,
		domain.ErrDeliveryUnavailable,
		domain.ErrShuttingDown,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	if errors.Is(err, domain.ErrInvalidRequest) || errors.Is(err, domain.ErrInvalidCohort) {
		return err.Error()
	}
	return "internal error"
}

func jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
