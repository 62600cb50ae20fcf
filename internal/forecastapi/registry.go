package forecastapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/mikana/dashboard/internal/models"
)

var trainSlugs = map[models.UploadModule]string{
	models.ModuleOrders:     "commandes",
	models.ModuleDeliveries: "livraisons",
	models.ModuleHR:         "rh",
}

// timestampLayouts covers the ISO variants the registry emits.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	models.DateLayout,
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

type wireMetrics struct {
	R2       *float64 `json:"r2"`
	TestR2   *float64 `json:"test_r2"`
	RMSE     *float64 `json:"rmse"`
	TestRMSE *float64 `json:"test_rmse"`
	MAE      *float64 `json:"mae"`
	TestMAE  *float64 `json:"test_mae"`
}

type wireModelEntry struct {
	ModelName string       `json:"model_name"`
	Timestamp string       `json:"timestamp"`
	R2Score   *float64     `json:"r2_score"`
	RMSE      *float64     `json:"rmse"`
	MAE       *float64     `json:"mae"`
	Metrics   *wireMetrics `json:"metrics"`
}

func firstOf(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func (w wireModelEntry) toEntry() (models.ModelRegistryEntry, error) {
	if w.ModelName == "" {
		return models.ModelRegistryEntry{}, errors.New("missing model_name")
	}
	e := models.ModelRegistryEntry{ModelName: w.ModelName, RMSE: w.RMSE, MAE: w.MAE}
	r2 := w.R2Score
	if w.Metrics != nil {
		r2 = firstOf(r2, w.Metrics.TestR2, w.Metrics.R2)
		e.RMSE = firstOf(e.RMSE, w.Metrics.TestRMSE, w.Metrics.RMSE)
		e.MAE = firstOf(e.MAE, w.Metrics.TestMAE, w.Metrics.MAE)
	}
	if r2 != nil {
		e.R2Score = *r2
	}
	if w.Timestamp != "" {
		ts, err := parseTimestamp(w.Timestamp)
		if err != nil {
			return models.ModelRegistryEntry{}, fmt.Errorf("%s: %w", w.ModelName, err)
		}
		e.Timestamp = ts
	}
	return e, nil
}

// FetchPerformanceOverview returns every registered model with its latest
// scores. The overall score is recomputed as the mean R² when absent.
func (c *Client) FetchPerformanceOverview(ctx context.Context) (*models.PerformanceOverview, error) {
	const op = "performance-overview"
	var resp struct {
		OverallPerformance *float64          `json:"overall_performance"`
		Models             *[]wireModelEntry `json:"models_metrics"`
		LastUpdate         string            `json:"last_update"`
	}
	if err := c.getJSON(ctx, serviceRegistry, op, "/api/performance/overview", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Models == nil {
		return nil, parseErrorf(op, "missing models_metrics")
	}

	out := &models.PerformanceOverview{Models: make([]models.ModelRegistryEntry, 0, len(*resp.Models))}
	for _, w := range *resp.Models {
		e, err := w.toEntry()
		if err != nil {
			return nil, parseError(op, err)
		}
		out.Models = append(out.Models, e)
	}
	if resp.OverallPerformance != nil {
		out.OverallPerformance = *resp.OverallPerformance
	} else {
		out.OverallPerformance = models.MeanR2(out.Models)
	}
	if resp.LastUpdate != "" {
		ts, err := parseTimestamp(resp.LastUpdate)
		if err != nil {
			return nil, parseError(op, err)
		}
		out.LastUpdate = ts
	}
	return out, nil
}

func (c *Client) FetchMetricsHistory(ctx context.Context) ([]models.TrainingHistoryRow, error) {
	const op = "metrics-history"
	var resp struct {
		Success *bool `json:"success"`
		Data    *[]struct {
			ID             int64    `json:"id"`
			ModelName      string   `json:"model_name"`
			R2Score        *float64 `json:"r2_score"`
			MAE            *float64 `json:"mae"`
			RMSE           *float64 `json:"rmse"`
			TrainingDate   string   `json:"training_date"`
			AdditionalInfo *string  `json:"additional_info"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, serviceRegistry, op, "/api/performance/metrics-history", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Success != nil && !*resp.Success {
		return nil, parseErrorf(op, "registry reported failure")
	}
	if resp.Data == nil {
		return nil, parseErrorf(op, "missing data")
	}

	rows := make([]models.TrainingHistoryRow, 0, len(*resp.Data))
	for _, d := range *resp.Data {
		ts, err := parseTimestamp(d.TrainingDate)
		if err != nil {
			return nil, parseError(op, err)
		}
		rows = append(rows, models.TrainingHistoryRow{
			ID:             d.ID,
			ModelName:      d.ModelName,
			R2Score:        d.R2Score,
			MAE:            d.MAE,
			RMSE:           d.RMSE,
			TrainingDate:   ts,
			AdditionalInfo: d.AdditionalInfo,
		})
	}
	return rows, nil
}

// TrainingResult is the registry's answer to a training trigger. Raw keeps
// the whole body since its shape differs per module.
type TrainingResult struct {
	Message string          `json:"message,omitempty"`
	Raw     json.RawMessage `json:"raw"`
}

func (c *Client) TrainModel(ctx context.Context, module models.UploadModule) (*TrainingResult, error) {
	const op = "train"
	slug, ok := trainSlugs[module]
	if !ok {
		return nil, ValidationError(op, fmt.Sprintf("Module inconnu : %s", module))
	}
	resp, err := c.do(ctx, call{service: serviceRegistry, op: op, method: http.MethodPost, path: "/api/performance/train-" + slug})
	if err != nil {
		return nil, err
	}
	var env struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp.body, &env); err != nil {
		return nil, parseError(op, fmt.Errorf("unmarshal: %w", err))
	}
	return &TrainingResult{Message: env.Message, Raw: json.RawMessage(resp.body)}, nil
}

type UploadResult struct {
	Status     string   `json:"status"`
	Message    string   `json:"message"`
	SavedFiles []string `json:"saved_files"`
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// UploadModuleFiles sends one ingestion batch. Parts are written in the order
// module, is_folder, then files/paths interleaved.
func (c *Client) UploadModuleFiles(ctx context.Context, job models.UploadJob) (*UploadResult, error) {
	const op = "upload"
	if !job.Module.Valid() {
		return nil, ValidationError(op, fmt.Sprintf("Module inconnu : %s", job.Module))
	}
	if len(job.Files) == 0 {
		return nil, ValidationError(op, "Aucun fichier sélectionné.")
	}
	if len(job.Files) != len(job.RelativePaths) {
		return nil, ValidationError(op, "Chaque fichier doit avoir un chemin.")
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("module", string(job.Module)); err != nil {
		return nil, ValidationError(op, err.Error())
	}
	if err := w.WriteField("is_folder", strconv.FormatBool(job.Mode == models.UploadFolder)); err != nil {
		return nil, ValidationError(op, err.Error())
	}
	for i, f := range job.Files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, quoteEscaper.Replace(f.Name)))
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, ValidationError(op, err.Error())
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, ValidationError(op, err.Error())
		}
		if err := w.WriteField("paths", job.RelativePaths[i]); err != nil {
			return nil, ValidationError(op, err.Error())
		}
	}
	if err := w.Close(); err != nil {
		return nil, ValidationError(op, err.Error())
	}

	resp, err := c.do(ctx, call{
		service:     serviceRegistry,
		op:          op,
		method:      http.MethodPost,
		path:        "/api/performance/upload",
		body:        buf.Bytes(),
		contentType: w.FormDataContentType(),
	})
	if err != nil {
		return nil, err
	}
	var out UploadResult
	if err := decode(op, resp.body, &out); err != nil {
		return nil, err
	}
	if out.Message == "" {
		return nil, parseErrorf(op, "missing message")
	}
	return &out, nil
}

// LastLogisticFile returns the name of the most recent monthly logistics
// file, or "" when the registry has none.
func (c *Client) LastLogisticFile(ctx context.Context) (string, error) {
	const op = "last-logistic-file"
	var resp struct {
		LastFile *string `json:"last_file"`
	}
	err := c.getJSON(ctx, serviceRegistry, op, "/api/performance/last-logistic-file", nil, &resp)
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Kind == KindHTTP && apiErr.Status == http.StatusNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if resp.LastFile == nil {
		return "", nil
	}
	return *resp.LastFile, nil
}
