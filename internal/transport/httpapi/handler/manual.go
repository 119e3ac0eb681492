package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nmathey/finahack/internal/infra/gateway/finary"
)

// FinaryClientInterface defines the remote writes exposed through the local API
type FinaryClientInterface interface {
	CreateRealEstate(ctx context.Context, re finary.RealEstate) (*finary.RealEstate, error)
	UpdateRealEstate(ctx context.Context, id string, re finary.RealEstate) (*finary.RealEstate, error)
	DeleteRealEstate(ctx context.Context, id string) error
	CreateCrowdlending(ctx context.Context, cl finary.Crowdlending) (*finary.Crowdlending, error)
	UpdateCrowdlending(ctx context.Context, id string, cl finary.Crowdlending) (*finary.Crowdlending, error)
	DeleteCrowdlending(ctx context.Context, id string) error
	UpdateDisplayCurrency(ctx context.Context, code string) error
}

// ManualHandler relays manually declared assets and settings to Finary
type ManualHandler struct {
	client FinaryClientInterface
}

// NewManualHandler creates a new manual handler
func NewManualHandler(client FinaryClientInterface) *ManualHandler {
	return &ManualHandler{client: client}
}

// CurrencyRequest is the body of PUT /settings/currency
type CurrencyRequest struct {
	Currency string `json:"currency"`
}

// CreateRealEstate handles POST /real-estates
func (h *ManualHandler) CreateRealEstate(w http.ResponseWriter, r *http.Request) {
	var req finary.RealEstate
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Category == "" {
		respondError(w, "category is required", http.StatusBadRequest)
		return
	}

	created, err := h.client.CreateRealEstate(r.Context(), req)
	if err != nil {
		respondAppError(w, finary.ToAppError(err))
		return
	}
	respondJSON(w, created, http.StatusCreated)
}

// UpdateRealEstate handles PUT /real-estates/{id}
func (h *ManualHandler) UpdateRealEstate(w http.ResponseWriter, r *http.Request) {
	var req finary.RealEstate
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	updated, err := h.client.UpdateRealEstate(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondAppError(w, finary.ToAppError(err))
		return
	}
	respondJSON(w, updated, http.StatusOK)
}

// DeleteRealEstate handles DELETE /real-estates/{id}
func (h *ManualHandler) DeleteRealEstate(w http.ResponseWriter, r *http.Request) {
	if err := h.client.DeleteRealEstate(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondAppError(w, finary.ToAppError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateCrowdlending handles POST /crowdlendings
func (h *ManualHandler) CreateCrowdlending(w http.ResponseWriter, r *http.Request) {
	var req finary.Crowdlending
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	created, err := h.client.CreateCrowdlending(r.Context(), req)
	if err != nil {
		respondAppError(w, finary.ToAppError(err))
		return
	}
	respondJSON(w, created, http.StatusCreated)
}

// UpdateCrowdlending handles PUT /crowdlendings/{id}
func (h *ManualHandler) UpdateCrowdlending(w http.ResponseWriter, r *http.Request) {
	var req finary.Crowdlending
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	updated, err := h.client.UpdateCrowdlending(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondAppError(w, finary.ToAppError(err))
		return
	}
	respondJSON(w, updated, http.StatusOK)
}

// DeleteCrowdlending handles DELETE /crowdlendings/{id}
func (h *ManualHandler) DeleteCrowdlending(w http.ResponseWriter, r *http.Request) {
	if err := h.client.DeleteCrowdlending(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondAppError(w, finary.ToAppError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateCurrency handles PUT /settings/currency
func (h *ManualHandler) UpdateCurrency(w http.ResponseWriter, r *http.Request) {
	var req CurrencyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	code := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(code) != 3 {
		respondError(w, "currency must be a 3-letter ISO 4217 code", http.StatusBadRequest)
		return
	}

	if err := h.client.UpdateDisplayCurrency(r.Context(), code); err != nil {
		respondAppError(w, finary.ToAppError(err))
		return
	}
	respondJSON(w, CurrencyRequest{Currency: code}, http.StatusOK)
}
