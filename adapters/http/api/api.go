// Package api provides the REST surface for schema and row operations.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/rowbase/rowbase/app"
	"github.com/rowbase/rowbase/pkg/respond"
)

// Handler serves the REST API.
type Handler struct {
	schemas     *app.SchemaService
	rows        *app.RowService
	keys        []string
	registry    *prometheus.Registry
	metricsPath string
	logger      zerolog.Logger
	version     string
}

// Options configures the handler.
type Options struct {
	Schemas *app.SchemaService
	Rows    *app.RowService
	APIKeys []string
	// Registry, when set, exposes Prometheus metrics at MetricsPath
	// ("/metrics" when empty).
	Registry    *prometheus.Registry
	MetricsPath string
	Logger      zerolog.Logger
	Version     string
}

// NewHandler creates the REST handler.
func NewHandler(opts Options) *Handler {
	path := opts.MetricsPath
	if path == "" {
		path = "/metrics"
	}
	return &Handler{
		schemas:     opts.Schemas,
		rows:        opts.Rows,
		keys:        opts.APIKeys,
		registry:    opts.Registry,
		metricsPath: path,
		logger:      opts.Logger.With().Str("component", "api").Logger(),
		version:     opts.Version,
	}
}

// Router builds the chi router. Health and metrics are open; everything
// under /v1 requires an API key. The realtime upgrade endpoint is mounted
// by the caller so this package stays free of websocket concerns.
func (h *Handler) Router(extra ...func(chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealth)
	if h.registry != nil {
		r.Handle(h.metricsPath, promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		for _, mount := range extra {
			mount(r)
		}
		r.Group(func(r chi.Router) {
			r.Use(h.requireAPIKey)

			r.Post("/tables", h.handleCreateTable)
			r.Get("/tables", h.handleListTables)
			r.Get("/tables/{tableID}", h.handleGetTable)
			r.Patch("/tables/{tableID}", h.handlePatchTable)
			r.Delete("/tables/{tableID}", h.handleDeleteTable)

			r.Post("/tables/{tableID}/columns", h.handleAddColumn)
			r.Patch("/tables/{tableID}/columns/{column}", h.handleAlterColumn)
			r.Delete("/tables/{tableID}/columns/{column}", h.handleDropColumn)

			r.Get("/tables/{tableID}/data", h.handleListRows)
			r.Post("/tables/{tableID}/data", h.handleInsertRow)
			r.Get("/tables/{tableID}/data/{rowID}", h.handleGetRow)
			r.Patch("/tables/{tableID}/data/{rowID}", h.handleUpdateRow)
			r.Delete("/tables/{tableID}/data/{rowID}", h.handleDeleteRow)
		})
	})
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}
