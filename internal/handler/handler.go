// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/race-registration/internal/model"
)

// Registrations is the registration engine as seen by HTTP.
type Registrations interface {
	CreateRegistration(ctx context.Context, actorUserID, eventID string, req model.CreateRegistrationRequest) (*model.Registration, error)
	CancelRegistration(ctx context.Context, registrationID, actorUserID string) (*model.Registration, error)
	GetRegistration(ctx context.Context, id, actorUserID string) (*model.Registration, error)
	ListEventRegistrations(ctx context.Context, eventID, actorUserID string) ([]model.Registration, error)
}

// Inventory answers kit stock queries.
type Inventory interface {
	CheckAvailability(ctx context.Context, kitItemID, size string, quantity int) error
}

// RegistrationHandler holds all HTTP handlers for the registration API.
type RegistrationHandler struct {
	regs   Registrations
	inv    Inventory
	logger *zap.Logger
}

// NewRegistrationHandler constructs a RegistrationHandler.
func NewRegistrationHandler(regs Registrations, inv Inventory, logger *zap.Logger) *RegistrationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationHandler{regs: regs, inv: inv, logger: logger}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, model.ErrAccessDenied):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError renders a service error. Internal errors are logged and
// never leak their message.
func (h *RegistrationHandler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("operation", op),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, status, "internal error")
		return
	}

	resp := model.ErrorResponse{Error: err.Error(), Code: model.Code(err)}
	var missing *model.MissingAnswersError
	if errors.As(err, &missing) {
		resp.MissingQuestionIDs = missing.QuestionIDs
	}
	writeJSON(w, status, resp)
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

// CreateRegistration handles POST /events/{id}/registrations
// Registers the caller (or the invited user) for the event.
func (h *RegistrationHandler) CreateRegistration(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "id")

	var req model.CreateRegistrationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	reg, err := h.regs.CreateRegistration(r.Context(), ActorFrom(r.Context()), eventID, req)
	if err != nil {
		h.writeServiceError(w, r, "create_registration", err)
		return
	}

	writeJSON(w, http.StatusCreated, reg)
}

// ListRegistrations handles GET /events/{id}/registrations.
// Only the caller's own and invited registrations are returned.
func (h *RegistrationHandler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.regs.ListEventRegistrations(r.Context(), chi.URLParam(r, "id"), ActorFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, "list_registrations", err)
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if regs == nil {
		regs = []model.Registration{}
	}

	writeJSON(w, http.StatusOK, regs)
}

// GetRegistration handles GET /registrations/{id}
func (h *RegistrationHandler) GetRegistration(w http.ResponseWriter, r *http.Request) {
	reg, err := h.regs.GetRegistration(r.Context(), chi.URLParam(r, "id"), ActorFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, "get_registration", err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// CancelRegistration handles POST /registrations/{id}/cancel
func (h *RegistrationHandler) CancelRegistration(w http.ResponseWriter, r *http.Request) {
	reg, err := h.regs.CancelRegistration(r.Context(), chi.URLParam(r, "id"), ActorFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, "cancel_registration", err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

type availabilityResponse struct {
	KitItemID string `json:"kit_item_id"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// KitAvailability handles GET /kit-items/{id}/availability?size=&quantity=
// Shortage is reported in the body with 200; unknown items are 404.
func (h *RegistrationHandler) KitAvailability(w http.ResponseWriter, r *http.Request) {
	kitID := chi.URLParam(r, "id")
	size := r.URL.Query().Get("size")
	quantity := 1
	if raw := r.URL.Query().Get("quantity"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "quantity must be an integer")
			return
		}
		quantity = n
	}

	resp := availabilityResponse{KitItemID: kitID, Size: model.NormalizeSize(size), Quantity: quantity, Available: true}
	err := h.inv.CheckAvailability(r.Context(), kitID, size, quantity)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrInsufficientStock), errors.Is(err, model.ErrUnknownSize):
		resp.Available = false
		resp.Reason = model.Code(err)
	default:
		h.writeServiceError(w, r, "kit_availability", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
