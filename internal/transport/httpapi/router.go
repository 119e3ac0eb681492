package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nmathey/finahack/internal/transport/httpapi/handler"
	"github.com/nmathey/finahack/internal/transport/httpapi/middleware"
	"github.com/nmathey/finahack/pkg/logger"
)

// Config holds router configuration
type Config struct {
	Logger          *logger.Logger
	AllowedOrigins  []string
	SessionHandler  *handler.SessionHandler
	HoldingsHandler *handler.HoldingsHandler
	ManualHandler   *handler.ManualHandler
	HealthHandler   *handler.HealthHandler
	// RateLimit overrides the default inbound limiter; nil keeps the default.
	RateLimit func(http.Handler) http.Handler
}

// NewRouter creates a new HTTP router
func NewRouter(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	rateLimit := cfg.RateLimit
	if rateLimit == nil {
		rateLimit = middleware.RateLimit()
	}

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(rateLimit)

	r.Get("/health", handler.GetHealth)
	if cfg.HealthHandler != nil {
		r.Get("/health/detailed", cfg.HealthHandler.GetHealthDetailed)
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.SessionHandler != nil {
			r.Get("/session", cfg.SessionHandler.GetSession)
			r.Post("/session/token", cfg.SessionHandler.PutToken)
		}

		if cfg.HoldingsHandler != nil {
			r.Post("/sync", cfg.HoldingsHandler.Sync)
			r.Get("/movers", cfg.HoldingsHandler.GetMovers)
			r.Route("/assets", func(r chi.Router) {
				r.Use(chimiddleware.Compress(5))
				r.Get("/", cfg.HoldingsHandler.ListAssets)
				r.Get("/export.csv", cfg.HoldingsHandler.ExportCSV)
				r.Post("/import.csv", cfg.HoldingsHandler.ImportCSV)
				// strict keys contain slashes
				r.Patch("/*", cfg.HoldingsHandler.AnnotateAsset)
			})
		}

		if cfg.ManualHandler != nil {
			r.Put("/settings/currency", cfg.ManualHandler.UpdateCurrency)
			r.Route("/real-estates", func(r chi.Router) {
				r.Post("/", cfg.ManualHandler.CreateRealEstate)
				r.Put("/{id}", cfg.ManualHandler.UpdateRealEstate)
				r.Delete("/{id}", cfg.ManualHandler.DeleteRealEstate)
			})
			r.Route("/crowdlendings", func(r chi.Router) {
				r.Post("/", cfg.ManualHandler.CreateCrowdlending)
				r.Put("/{id}", cfg.ManualHandler.UpdateCrowdlending)
				r.Delete("/{id}", cfg.ManualHandler.DeleteCrowdlending)
			})
		}
	})

	return r
}
