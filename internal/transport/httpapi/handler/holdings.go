package handler

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nmathey/finahack/internal/platform/history"
	"github.com/nmathey/finahack/internal/platform/holdings"
	"github.com/nmathey/finahack/internal/platform/sync"
	"github.com/nmathey/finahack/pkg/logger"
)

// HoldingsServiceInterface defines the sync operations needed by HoldingsHandler
type HoldingsServiceInterface interface {
	Refresh(ctx context.Context) (*sync.Result, error)
	Assets(ctx context.Context) (*holdings.Cache, error)
	Annotate(ctx context.Context, key string, note holdings.Annotation) (*holdings.Cache, error)
	ImportAnnotations(ctx context.Context, records []holdings.NormalizedAsset) (int, error)
	Movers(ctx context.Context, r history.Range) (*history.Report, error)
}

// HoldingsHandler serves the cached asset list, its annotations and movers
type HoldingsHandler struct {
	service HoldingsServiceInterface
	logger  *logger.Logger
}

// NewHoldingsHandler creates a new holdings handler
func NewHoldingsHandler(service HoldingsServiceInterface, log *logger.Logger) *HoldingsHandler {
	return &HoldingsHandler{
		service: service,
		logger:  log.WithField("component", "holdings_handler"),
	}
}

// AssetsResponse is the cached asset list
type AssetsResponse struct {
	Assets      []holdings.NormalizedAsset `json:"assets"`
	LastRefresh *string                    `json:"last_refresh,omitempty"`
}

// ImportResponse reports how many cached assets an import changed
type ImportResponse struct {
	Records int `json:"records"`
	Changed int `json:"changed"`
}

// Sync handles POST /sync
func (h *HoldingsHandler) Sync(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Refresh(r.Context())
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, res, http.StatusOK)
}

// ListAssets handles GET /assets
func (h *HoldingsHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	cache, err := h.service.Assets(r.Context())
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, toAssetsResponse(cache), http.StatusOK)
}

// ExportCSV handles GET /assets/export.csv
func (h *HoldingsHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	cache, err := h.service.Assets(r.Context())
	if err != nil {
		respondAppError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="finary_assets.csv"`)
	if err := holdings.WriteCSV(w, cache.Assets); err != nil {
		// headers are already sent
		h.logger.Error("csv export failed", "error", err)
	}
}

// ImportCSV handles POST /assets/import.csv. Only the annotation columns of
// the uploaded export are applied.
func (h *HoldingsHandler) ImportCSV(w http.ResponseWriter, r *http.Request) {
	records, err := holdings.ReadCSV(http.MaxBytesReader(w, r.Body, 10<<20))
	if err != nil {
		respondError(w, "invalid CSV: "+err.Error(), http.StatusBadRequest)
		return
	}

	changed, err := h.service.ImportAnnotations(r.Context(), records)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, ImportResponse{Records: len(records), Changed: changed}, http.StatusOK)
}

// AnnotateAsset handles PATCH /assets/{key}
func (h *HoldingsHandler) AnnotateAsset(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || key == "" {
		respondError(w, "invalid asset key", http.StatusBadRequest)
		return
	}

	var note holdings.Annotation
	if err := decodeJSON(w, r, &note); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	cache, err := h.service.Annotate(r.Context(), key, note)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, toAssetsResponse(cache), http.StatusOK)
}

// GetMovers handles GET /movers?range=last_sync|week|month|year
func (h *HoldingsHandler) GetMovers(w http.ResponseWriter, r *http.Request) {
	rng, err := history.ParseRange(r.URL.Query().Get("range"))
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	report, err := h.service.Movers(r.Context(), rng)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, report, http.StatusOK)
}

func toAssetsResponse(cache *holdings.Cache) AssetsResponse {
	resp := AssetsResponse{Assets: []holdings.NormalizedAsset{}}
	if cache == nil {
		return resp
	}
	if cache.Assets != nil {
		resp.Assets = cache.Assets
	}
	if !cache.LastRefresh.IsZero() {
		at := cache.LastRefresh.UTC().Format(time.RFC3339)
		resp.LastRefresh = &at
	}
	return resp
}
