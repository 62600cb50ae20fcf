package api

import (
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mikana/dashboard/internal/charts"
	"github.com/mikana/dashboard/internal/features"
	"github.com/mikana/dashboard/internal/forecastapi"
	"github.com/mikana/dashboard/internal/ingestion"
	"github.com/mikana/dashboard/internal/models"
	"github.com/mikana/dashboard/internal/session"
)

type navItem struct {
	Path     string
	Label    string
	Active   bool
	Disabled bool
}

// pageData is shared by every page template; page handlers fill the fields
// they render.
type pageData struct {
	Title        string
	Dark         bool
	Palette      charts.Palette
	Nav          []navItem
	Capabilities features.Capabilities
	Catalog      forecastapi.CatalogSnapshot
	Today        string
	Error        string

	Prediction *predictionView
	History    []models.PredictionSession
	Delivery   *session.DeliverySnapshot
	Presences  []models.PresenceForecast
	Overview   *models.PerformanceOverview
	Training   []models.TrainingHistoryRow
	Uploads    *ingestion.Status
	Modules    []models.UploadModule

	Analytics  *analyticsView
	Deliveries *deliveryPageView
	Comparison *comparisonView
	ChartURL   string
}

// analyticsView holds the seasonal and weather sections of the prediction page.
type analyticsView struct {
	SeasonalURL  string
	Weather      []charts.ImpactBar
	WeatherError string
}

// deliveryPageView holds the statistics and server history of the delivery page.
type deliveryPageView struct {
	Stats        *deliveryStatsView
	TrendURL     string
	MonthlyURL   string
	OrderedURL   string
	StatsError   string
	History      []models.HistoryRecord
	HistoryError string
	PrevOffset   int
	NextOffset   int
	HasPrev      bool
	HasNext      bool
}

type legendItem struct {
	Name   string
	Hex    string
	Hidden bool
	Href   string
}

// comparisonView is the model comparison chart with its legend toggles.
type comparisonView struct {
	ChartURL string
	Legend   []legendItem
}

const deliveryHistoryPage = 10

func (s *Server) nav(current string) []navItem {
	items := []navItem{
		{Path: "/", Label: "Accueil"},
		{Path: "/prediction", Label: "Prévision des commandes"},
		{Path: "/maintenance", Label: "Maintenance", Disabled: !s.cfg.Capabilities.MaintenanceRoute},
		{Path: "/delivery", Label: "Livraisons"},
		{Path: "/hr", Label: "Ressources humaines"},
		{Path: "/performance", Label: "Performance"},
	}
	for i := range items {
		items[i].Active = items[i].Path == current
	}
	return items
}

func (s *Server) newPage(ws *Workspace, title, path string) pageData {
	dark, err := s.store.Theme(ws.ClientID)
	if err != nil {
		log.Printf("api: theme: %v", err)
	}
	return pageData{
		Title:        title,
		Dark:         dark,
		Palette:      charts.ThemePalette(dark),
		Nav:          s.nav(path),
		Capabilities: s.cfg.Capabilities,
		Catalog:      s.catalog.Snapshot(),
		Today:        time.Now().In(s.cfg.Location).Format(models.DateLayout),
	}
}

func (s *Server) render(w http.ResponseWriter, name string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		log.Printf("template error: %v", err)
	}
}

func errorMessage(err error) string {
	return forecastapi.AsError("page", err).Message()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	data := s.newPage(ws, "Tableau de bord", "/")
	data.History = ws.History.List()
	s.render(w, "index.html", data)
}

func (s *Server) handlePredictionPage(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	data := s.newPage(ws, "Prévision des commandes", "/prediction")
	view := newPredictionView(ws.Prediction.Snapshot())
	data.Prediction = &view
	data.History = ws.History.List()
	if view.Err != nil {
		data.Error = view.Err.Message()
	}
	data.Analytics = s.analytics(r, forecastapi.Scope{Establishment: view.Form.Establishment, LinenType: view.Form.LinenType})
	s.render(w, "prediction.html", data)
}

func (s *Server) analytics(r *http.Request, scope forecastapi.Scope) *analyticsView {
	q := url.Values{}
	if scope.Establishment != "" {
		q.Set("establishment", scope.Establishment)
	}
	if scope.LinenType != "" {
		q.Set("linenType", scope.LinenType)
	}
	view := &analyticsView{SeasonalURL: chartURL(chartSeasonal, q)}
	impact, err := s.client.FetchWeatherImpact(r.Context(), scope)
	if err != nil {
		log.Printf("api: weather impact: %v", err)
		view.WeatherError = errorMessage(err)
		return view
	}
	view.Weather = charts.WeatherImpact(*impact)
	return view
}

func (s *Server) handleMaintenancePage(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Capabilities.MaintenanceRoute {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	s.render(w, "maintenance.html", s.newPage(ws, "Maintenance", "/maintenance"))
}

func (s *Server) handleDeliveryPage(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	data := s.newPage(ws, "Livraisons", "/delivery")
	snap := ws.Delivery.Snapshot()
	data.Delivery = &snap
	if snap.Err != nil {
		data.Error = snap.Err.Message()
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil || offset < 0 {
		offset = 0
	}
	data.Deliveries = s.deliveryPage(r, offset)
	s.render(w, "delivery.html", data)
}

func (s *Server) deliveryPage(r *http.Request, offset int) *deliveryPageView {
	view := &deliveryPageView{
		TrendURL:   chartURL(chartDeliveryTrend, nil),
		MonthlyURL: chartURL(chartDeliveryMonthly, nil),
		OrderedURL: chartURL(chartOrderedDelivered, nil),
	}
	if stats, err := s.client.FetchDeliveryStats(r.Context()); err != nil {
		view.StatsError = errorMessage(err)
	} else {
		v := newDeliveryStatsView(stats)
		view.Stats = &v
	}
	rows, err := s.client.FetchHistory(r.Context(), deliveryHistoryPage, offset)
	if err != nil {
		view.HistoryError = errorMessage(err)
		return view
	}
	view.History = rows
	view.HasPrev = offset > 0
	view.PrevOffset = max(0, offset-deliveryHistoryPage)
	view.HasNext = len(rows) == deliveryHistoryPage
	view.NextOffset = offset + deliveryHistoryPage
	return view
}

func (s *Server) handleHRPage(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	data := s.newPage(ws, "Ressources humaines", "/hr")
	presences, err := s.client.PredictPresences(r.Context(), DefaultPresenceWeeks)
	if err != nil {
		data.Error = errorMessage(err)
	}
	data.Presences = presences
	if len(presences) > 0 {
		data.ChartURL = chartURL(chartPresences, url.Values{"weeks": {strconv.Itoa(DefaultPresenceWeeks)}})
	}
	s.render(w, "hr.html", data)
}

func (s *Server) handlePerformancePage(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	data := s.newPage(ws, "Performance", "/performance")
	overview, err := s.client.FetchPerformanceOverview(r.Context())
	if err != nil {
		data.Error = errorMessage(err)
	}
	data.Overview = overview
	if err == nil {
		data.Comparison = comparison(overview, parseHidden(r))
		rows, err := s.client.FetchMetricsHistory(r.Context())
		if err != nil {
			data.Error = errorMessage(err)
		}
		data.Training = rows
	}
	st := ws.Uploads.Status()
	data.Uploads = &st
	data.Modules = models.UploadModules
	s.render(w, "performance.html", data)
}

// comparison builds the model comparison section. Each legend entry links
// to the page with that series toggled.
func comparison(overview *models.PerformanceOverview, hidden map[string]bool) *comparisonView {
	chart := charts.ModelComparison(overview.Models, hidden)
	q := url.Values{}
	if v := hiddenValue(hidden); v != "" {
		q.Set("hidden", v)
	}
	view := &comparisonView{ChartURL: chartURL(chartModelComparison, q)}
	for _, series := range chart.Series {
		href := "/performance"
		if v := hiddenValue(charts.ToggleSeries(hidden, series.Name)); v != "" {
			href += "?" + url.Values{"hidden": {v}}.Encode()
		}
		view.Legend = append(view.Legend, legendItem{Name: series.Name, Hex: series.Hex, Hidden: series.Hidden, Href: href})
	}
	return view
}

// handleTheme flips the theme flag and returns to the page it came from.
func (s *Server) handleTheme(w http.ResponseWriter, r *http.Request) {
	id := clientID(w, r)
	dark, err := s.store.Theme(id)
	if err == nil {
		err = s.store.SetTheme(id, !dark)
	}
	if err != nil {
		log.Printf("api: toggle theme: %v", err)
		http.Error(w, "theme unavailable", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, backTo(r), http.StatusSeeOther)
}

// backTo returns the local path of the referring page, or "/".
func backTo(r *http.Request) string {
	ref, err := url.Parse(r.Referer())
	if err != nil || ref.Host != r.Host || !strings.HasPrefix(ref.Path, "/") {
		return "/"
	}
	return ref.Path
}
