package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/mikana/dashboard/internal/charts"
	"github.com/mikana/dashboard/internal/export"
	"github.com/mikana/dashboard/internal/forecastapi"
	"github.com/mikana/dashboard/internal/models"
	"github.com/mikana/dashboard/internal/session"
	"github.com/mikana/dashboard/internal/store"
)

const maxUploadMemory = 32 << 20

func (s *Server) handleAPICapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Capabilities)
}

func (s *Server) handleAPIEstablishments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"establishments": s.catalog.Establishments()})
}

func (s *Server) handleAPILinenTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"linenTypes": s.catalog.LinenTypes()})
}

func (s *Server) handleAPIArticles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"articles": s.catalog.Articles()})
}

// predictionView is the prediction snapshot with its derived charts.
type predictionView struct {
	session.Snapshot
	Chart charts.LineChart  `json:"chart"`
	Stats []charts.StatLine `json:"stats,omitempty"`
}

func newPredictionView(snap session.Snapshot) predictionView {
	return predictionView{
		Snapshot: snap,
		Chart:    charts.HistoricalLine(snap.Comparisons),
		Stats:    charts.StatLines(snap.ModelStats),
	}
}

func (s *Server) handleAPIPrediction(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newPredictionView(ws.Prediction.Snapshot()))
}

func (s *Server) handleAPIPredict(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	var req models.PredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Requête invalide.")
		return
	}
	snap, err := ws.Prediction.Submit(r.Context(), req)
	if errors.Is(err, session.ErrSuperseded) {
		writeJSON(w, http.StatusConflict, errorBody{Text: "Requête remplacée par une plus récente."})
		return
	}
	status := http.StatusOK
	if err != nil {
		status = errorStatus(err)
	}
	writeJSON(w, status, newPredictionView(snap))
}

func (s *Server) handleAPIPredictionReset(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	ws.Prediction.Reset()
	writeJSON(w, http.StatusOK, newPredictionView(ws.Prediction.Snapshot()))
}

// handleAPIPredictionEvents streams every state change of the prediction page
// as server-sent events until the client goes away.
func (s *Server) handleAPIPredictionEvents(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	updates, unsubscribe := ws.Prediction.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-r.Context().Done():
			return
		case snap, open := <-updates:
			if !open {
				return
			}
			b, err := json.Marshal(newPredictionView(snap))
			if err != nil {
				log.Printf("api: encode event: %v", err)
				return
			}
			fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", b)
			flusher.Flush()
		}
	}
}

func (s *Server) handleAPIPredictionChart(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	s.writeChart(w, r, charts.HistoricalLine(ws.Prediction.Snapshot().Comparisons))
}

func (s *Server) handleAPIExport(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		badRequest(w, "Format d'export inconnu.")
		return
	}
	snap := ws.Prediction.Snapshot()
	if len(snap.Predictions) == 0 {
		writeJSON(w, http.StatusConflict, errorBody{Text: "Aucune prédiction à exporter."})
		return
	}

	in := export.Input{
		Form:        snap.Form,
		Predictions: snap.Predictions,
		Comparisons: snap.Comparisons,
		Stats:       snap.ModelStats,
		History:     ws.History.List(),
		GeneratedAt: time.Now().In(s.cfg.Location).Truncate(time.Second),
	}
	if format == export.FormatPDF {
		scope := forecastapi.Scope{Establishment: snap.Form.Establishment, LinenType: snap.Form.LinenType}
		trends, err := s.client.FetchSeasonalTrends(r.Context(), scope)
		if err != nil {
			log.Printf("api: export without seasonal trends: %v", err)
		}
		in.Seasonal = trends
	}

	a, err := s.exporter.Compose(r.Context(), format, in)
	if err != nil {
		log.Printf("api: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Text: "Une erreur est survenue lors de l'export."})
		return
	}
	writeBlob(w, a.Name, a.ContentType, a.Data)
}

func writeBlob(w http.ResponseWriter, name, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func (s *Server) handleAPIHistory(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ws.History.List())
}

func (s *Server) handleAPIHistoryClear(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	if err := ws.History.Clear(); err != nil {
		log.Printf("api: clear history: %v", err)
		http.Error(w, "clear history failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAPIDelivery(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ws.Delivery.Snapshot())
}

func (s *Server) handleAPIDeliveryPredict(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	var form session.DeliveryForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		badRequest(w, "Requête invalide.")
		return
	}
	snap, err := ws.Delivery.Submit(r.Context(), form)
	if errors.Is(err, session.ErrSuperseded) {
		writeJSON(w, http.StatusConflict, errorBody{Text: "Requête remplacée par une plus récente."})
		return
	}
	status := http.StatusOK
	if err != nil {
		status = errorStatus(err)
	}
	writeJSON(w, status, snap)
}

func (s *Server) handleAPIDeliveryReset(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	ws.Delivery.Reset()
	writeJSON(w, http.StatusOK, ws.Delivery.Snapshot())
}

type deliveryStatsView struct {
	Stats              *models.DeliveryStats `json:"stats"`
	Trend              charts.LineChart      `json:"trend"`
	Monthly            charts.LineChart      `json:"monthly"`
	Distribution       []charts.PieSlice     `json:"distribution"`
	OrderedVsDelivered charts.LineChart      `json:"orderedVsDelivered"`
}

func (s *Server) handleAPIDeliveryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.client.FetchDeliveryStats(r.Context())
	if err != nil {
		writeError(w, "delivery stats", err)
		return
	}
	writeJSON(w, http.StatusOK, newDeliveryStatsView(stats))
}

func newDeliveryStatsView(stats *models.DeliveryStats) deliveryStatsView {
	return deliveryStatsView{
		Stats:              stats,
		Trend:              charts.DeliveryTrend(*stats),
		Monthly:            charts.MonthlyComparison(*stats),
		Distribution:       charts.ArticleDistribution(*stats),
		OrderedVsDelivered: charts.OrderedVsDelivered(*stats),
	}
}

func (s *Server) handleAPIDeliveryHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 10)
	if err != nil || limit <= 0 {
		badRequest(w, "Paramètre limit invalide.")
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil || offset < 0 {
		badRequest(w, "Paramètre offset invalide.")
		return
	}
	rows, err := s.client.FetchHistory(r.Context(), limit, offset)
	if err != nil {
		writeError(w, "delivery history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": rows})
}

func (s *Server) handleAPIDeliveryHistoryExport(w http.ResponseWriter, r *http.Request) {
	format := forecastapi.ExportFormat(r.URL.Query().Get("format"))
	if format != forecastapi.ExportExcel && format != forecastapi.ExportPDF {
		badRequest(w, "Format d'export inconnu.")
		return
	}
	blob, err := s.client.ExportHistory(r.Context(), format)
	if err != nil {
		writeError(w, "export history", err)
		return
	}
	writeBlob(w, blob.Filename, blob.ContentType, blob.Data)
}

func (s *Server) handleAPIPresences(w http.ResponseWriter, r *http.Request) {
	weeks, err := intParam(r, "weeks", DefaultPresenceWeeks)
	if err != nil {
		badRequest(w, "Paramètre weeks invalide.")
		return
	}
	forecasts, err := s.client.PredictPresences(r.Context(), weeks)
	if err != nil {
		writeError(w, "presences", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"forecasts": forecasts,
		"chart":     charts.PresenceChart(forecasts),
	})
}

func scopeOf(r *http.Request) forecastapi.Scope {
	q := r.URL.Query()
	return forecastapi.Scope{Establishment: q.Get("establishment"), LinenType: q.Get("linenType")}
}

func (s *Server) handleAPISeasonal(w http.ResponseWriter, r *http.Request) {
	trends, err := s.client.FetchSeasonalTrends(r.Context(), scopeOf(r))
	if err != nil {
		writeError(w, "seasonal trends", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  trends.Data,
		"chart": charts.SeasonalHeatmap(*trends),
	})
}

func (s *Server) handleAPIWeather(w http.ResponseWriter, r *http.Request) {
	impact, err := s.client.FetchWeatherImpact(r.Context(), scopeOf(r))
	if err != nil {
		writeError(w, "weather impact", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"impact": impact,
		"bars":   charts.WeatherImpact(*impact),
	})
}

func (s *Server) handleAPIOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := s.client.FetchPerformanceOverview(r.Context())
	if err != nil {
		writeError(w, "performance overview", err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (s *Server) handleAPIMetricsHistory(w http.ResponseWriter, r *http.Request) {
	rows, err := s.client.FetchMetricsHistory(r.Context())
	if err != nil {
		writeError(w, "metrics history", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleAPIComparison returns the model comparison chart; ?hidden=rmse,mae
// hides series the legend toggled off.
func (s *Server) handleAPIComparison(w http.ResponseWriter, r *http.Request) {
	overview, err := s.client.FetchPerformanceOverview(r.Context())
	if err != nil {
		writeError(w, "performance overview", err)
		return
	}
	writeJSON(w, http.StatusOK, charts.ModelComparison(overview.Models, parseHidden(r)))
}

func (s *Server) handleAPITrain(w http.ResponseWriter, r *http.Request) {
	module := models.UploadModule(r.PathValue("module"))
	if !module.Valid() {
		badRequest(w, "Module inconnu.")
		return
	}
	res, err := s.client.TrainModel(r.Context(), module)
	if err != nil {
		writeError(w, "train", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAPIUploadStatus(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ws.Uploads.Status())
}

func (s *Server) handleAPIUploadModule(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	var body struct {
		Module models.UploadModule `json:"module"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "Requête invalide.")
		return
	}
	if _, err := ws.Uploads.SetModule(r.Context(), body.Module); err != nil {
		writeError(w, "upload module", err)
		return
	}
	writeJSON(w, http.StatusOK, ws.Uploads.Status())
}

func (s *Server) handleAPIUploadMode(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	var body struct {
		Mode models.UploadMode `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "Requête invalide.")
		return
	}
	if body.Mode == models.UploadFolder && !s.cfg.Capabilities.FolderUpload {
		writeJSON(w, http.StatusForbidden, errorBody{Text: "L'import de dossier n'est pas disponible."})
		return
	}
	if err := ws.Uploads.SetMode(body.Mode); err != nil {
		badRequest(w, "Mode d'import inconnu.")
		return
	}
	writeJSON(w, http.StatusOK, ws.Uploads.Status())
}

// handleAPIUploadAddFiles reads a multipart form with repeated "files" parts
// and optional "paths" values in the same order.
func (s *Server) handleAPIUploadAddFiles(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		badRequest(w, "Formulaire d'import invalide.")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	files := make([]models.FileRef, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			badRequest(w, "Fichier illisible : "+fh.Filename)
			return
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			badRequest(w, "Fichier illisible : "+fh.Filename)
			return
		}
		files = append(files, models.FileRef{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Content:     content,
		})
	}
	paths := r.MultipartForm.Value["paths"]
	if len(paths) == 0 {
		paths = nil
	}
	if _, err := ws.Uploads.AddFiles(files, paths); err != nil {
		badRequest(w, "Chaque fichier doit avoir un chemin.")
		return
	}
	writeJSON(w, http.StatusOK, ws.Uploads.Status())
}

// handleAPIUploadRemoveFiles drops ?path=... or clears the whole selection.
func (s *Server) handleAPIUploadRemoveFiles(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	if p := r.URL.Query().Get("path"); p != "" {
		if !ws.Uploads.RemoveFile(p) {
			http.NotFound(w, r)
			return
		}
	} else {
		ws.Uploads.Clear()
	}
	writeJSON(w, http.StatusOK, ws.Uploads.Status())
}

func (s *Server) handleAPIUploadSubmit(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	status := http.StatusOK
	if _, err := ws.Uploads.Submit(r.Context()); err != nil {
		status = errorStatus(err)
	}
	writeJSON(w, status, ws.Uploads.Status())
}

type uploadRunView struct {
	ID         int64      `json:"id"`
	Module     string     `json:"module"`
	Mode       string     `json:"mode"`
	FileCount  int        `json:"fileCount"`
	TotalBytes int64      `json:"totalBytes"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Outcome    string     `json:"outcome"`
	HTTPStatus int64      `json:"httpStatus,omitempty"`
	Message    string     `json:"message,omitempty"`
}

func toUploadRunView(run store.UploadRun) uploadRunView {
	v := uploadRunView{
		ID:         run.ID,
		Module:     run.Module,
		Mode:       run.Mode,
		FileCount:  run.FileCount,
		TotalBytes: run.TotalBytes,
		StartedAt:  run.StartedAt,
		Outcome:    run.Outcome,
		HTTPStatus: run.HTTPStatus.Int64,
		Message:    run.Message.String,
	}
	if run.FinishedAt.Valid {
		t := run.FinishedAt.Time
		v.FinishedAt = &t
	}
	return v
}

func (s *Server) handleAPIUploadRuns(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	runs, err := s.store.GetRecentUploadRuns(ws.ClientID, 20)
	if err != nil {
		log.Printf("api: upload runs: %v", err)
		http.Error(w, "upload runs unavailable", http.StatusInternalServerError)
		return
	}
	views := make([]uploadRunView, len(runs))
	for i, run := range runs {
		views[i] = toUploadRunView(run)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAPIUploadHealth(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", 7)
	if err != nil || days <= 0 {
		badRequest(w, "Paramètre days invalide.")
		return
	}
	summary, err := s.store.GetUploadHealth(days)
	if err != nil {
		log.Printf("api: upload health: %v", err)
		http.Error(w, "upload health unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
