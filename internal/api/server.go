// Package api serves the dashboard pages and the JSON API behind them. Each
// browser gets its own workspace holding its page stores.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/mikana/dashboard/internal/export"
	"github.com/mikana/dashboard/internal/features"
	"github.com/mikana/dashboard/internal/forecastapi"
	"github.com/mikana/dashboard/internal/imagegen"
	"github.com/mikana/dashboard/internal/ingestion"
	"github.com/mikana/dashboard/internal/session"
	"github.com/mikana/dashboard/internal/store"
)

const (
	DefaultMaxWorkspaces = 256
	DefaultPresenceWeeks = 12
	chartCacheTTL        = 10 * time.Minute
)

type Config struct {
	Port         string
	Location     *time.Location
	Capabilities features.Capabilities
	// Fanout bounds historical lookups per submission.
	Fanout        int
	MaxWorkspaces int
	CORSOrigins   []string
}

type Server struct {
	store    *store.Store
	client   *forecastapi.Client
	catalog  *forecastapi.Catalog
	cfg      Config
	tmpl     *template.Template
	charts   *imagegen.Cache
	exporter *export.Composer
	spaces   *workspaces
}

func NewServer(st *store.Store, client *forecastapi.Client, catalog *forecastapi.Catalog, cfg Config) (*Server, error) {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxWorkspaces <= 0 {
		cfg.MaxWorkspaces = DefaultMaxWorkspaces
	}
	if cfg.Fanout <= 0 {
		cfg.Fanout = session.DefaultFanout
	}
	s := &Server{
		store:   st,
		client:  client,
		catalog: catalog,
		cfg:     cfg,
		tmpl:    newTemplates(),
		charts:  imagegen.NewCache(chartCacheTTL),
	}
	s.exporter = export.NewComposer(s.charts)
	spaces, err := newWorkspaces(cfg.MaxWorkspaces, s.openWorkspace)
	if err != nil {
		return nil, err
	}
	s.spaces = spaces
	return s, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /prediction", s.handlePredictionPage)
	mux.HandleFunc("GET /maintenance", s.handleMaintenancePage)
	mux.HandleFunc("GET /delivery", s.handleDeliveryPage)
	mux.HandleFunc("GET /hr", s.handleHRPage)
	mux.HandleFunc("GET /performance", s.handlePerformancePage)
	mux.HandleFunc("POST /theme", s.handleTheme)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/capabilities", s.handleAPICapabilities)
	mux.HandleFunc("GET /api/establishments", s.handleAPIEstablishments)
	mux.HandleFunc("GET /api/linen-types", s.handleAPILinenTypes)
	mux.HandleFunc("GET /api/articles", s.handleAPIArticles)

	mux.HandleFunc("GET /api/prediction", s.handleAPIPrediction)
	mux.HandleFunc("POST /api/prediction", s.handleAPIPredict)
	mux.HandleFunc("DELETE /api/prediction", s.handleAPIPredictionReset)
	mux.HandleFunc("GET /api/prediction/events", s.handleAPIPredictionEvents)
	mux.HandleFunc("GET /api/prediction/chart.png", s.handleAPIPredictionChart)
	mux.HandleFunc("GET /api/prediction/export", s.handleAPIExport)
	mux.HandleFunc("GET /api/charts/{name}", s.handleAPIChartImage)

	mux.HandleFunc("GET /api/history", s.handleAPIHistory)
	mux.HandleFunc("DELETE /api/history", s.handleAPIHistoryClear)

	mux.HandleFunc("GET /api/delivery", s.handleAPIDelivery)
	mux.HandleFunc("POST /api/delivery", s.handleAPIDeliveryPredict)
	mux.HandleFunc("DELETE /api/delivery", s.handleAPIDeliveryReset)
	mux.HandleFunc("GET /api/delivery/stats", s.handleAPIDeliveryStats)
	mux.HandleFunc("GET /api/delivery/history", s.handleAPIDeliveryHistory)
	mux.HandleFunc("GET /api/delivery/history/export", s.handleAPIDeliveryHistoryExport)

	mux.HandleFunc("GET /api/presences", s.handleAPIPresences)
	mux.HandleFunc("GET /api/analytics/seasonal", s.handleAPISeasonal)
	mux.HandleFunc("GET /api/analytics/weather", s.handleAPIWeather)

	mux.HandleFunc("GET /api/performance/overview", s.handleAPIOverview)
	mux.HandleFunc("GET /api/performance/metrics-history", s.handleAPIMetricsHistory)
	mux.HandleFunc("GET /api/performance/comparison", s.handleAPIComparison)
	mux.HandleFunc("POST /api/train/{module}", s.handleAPITrain)

	mux.HandleFunc("GET /api/upload", s.handleAPIUploadStatus)
	mux.HandleFunc("PUT /api/upload/module", s.handleAPIUploadModule)
	mux.HandleFunc("PUT /api/upload/mode", s.handleAPIUploadMode)
	mux.HandleFunc("POST /api/upload/files", s.handleAPIUploadAddFiles)
	mux.HandleFunc("DELETE /api/upload/files", s.handleAPIUploadRemoveFiles)
	mux.HandleFunc("POST /api/upload", s.handleAPIUploadSubmit)
	mux.HandleFunc("GET /api/upload/runs", s.handleAPIUploadRuns)
	mux.HandleFunc("GET /api/upload/health", s.handleAPIUploadHealth)

	if len(s.cfg.CORSOrigins) == 0 {
		return mux
	}
	return cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}).Handler(mux)
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
		s.spaces.purge()
	}()

	log.Printf("api: listening on :%s", s.cfg.Port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cat := s.catalog.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"workspaces":  s.spaces.len(),
		"catalogAt":   cat.UpdatedAt,
		"catalogSize": len(cat.Establishments) + len(cat.LinenTypes) + len(cat.Articles),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

// errorStatus maps a failure to the status returned to the browser. Upstream
// failures surface as 502 with the French banner in the body.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrSuperseded), errors.Is(err, ingestion.ErrUploadPending):
		return http.StatusConflict
	case errors.Is(err, ingestion.ErrEmptySelection), errors.Is(err, ingestion.ErrUnknownModule):
		return http.StatusBadRequest
	}
	switch forecastapi.KindOf(err) {
	case forecastapi.KindValidation:
		return http.StatusUnprocessableEntity
	case forecastapi.KindAborted:
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

type errorBody struct {
	Error *forecastapi.Error `json:"error,omitempty"`
	Text  string             `json:"message,omitempty"`
}

func writeError(w http.ResponseWriter, op string, err error) {
	status := errorStatus(err)
	var apiErr *forecastapi.Error
	if errors.As(err, &apiErr) {
		if status >= 500 {
			log.Printf("api: %s: %v", op, err)
		}
		writeJSON(w, status, errorBody{Error: apiErr})
		return
	}
	writeJSON(w, status, errorBody{Text: err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Text: msg})
}
