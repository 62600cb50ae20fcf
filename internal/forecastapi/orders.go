package forecastapi

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"github.com/mikana/dashboard/internal/models"
)

// Forecast is the parsed answer of /api/predict.
type Forecast struct {
	Predictions []models.Prediction `json:"predictions"`
	ModelStats  *models.ModelStats  `json:"modelStats,omitempty"`
}

func (c *Client) ListEstablishments(ctx context.Context) ([]string, error) {
	var resp struct {
		Establishments *[]string `json:"establishments"`
	}
	if err := c.getJSON(ctx, serviceForecast, "establishments", "/api/establishments", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Establishments == nil {
		return nil, parseErrorf("establishments", "missing establishments")
	}
	return *resp.Establishments, nil
}

func (c *Client) ListLinenTypes(ctx context.Context) ([]string, error) {
	var resp struct {
		LinenTypes *[]string `json:"linenTypes"`
	}
	if err := c.getJSON(ctx, serviceForecast, "linen-types", "/api/linen-types", nil, &resp); err != nil {
		return nil, err
	}
	if resp.LinenTypes == nil {
		return nil, parseErrorf("linen-types", "missing linenTypes")
	}
	return *resp.LinenTypes, nil
}

func (c *Client) ListArticles(ctx context.Context) ([]string, error) {
	var resp struct {
		Articles *[]string `json:"articles"`
	}
	if err := c.getJSON(ctx, serviceForecast, "articles", "/api/articles", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Articles == nil {
		return nil, parseErrorf("articles", "missing articles")
	}
	return *resp.Articles, nil
}

type wirePredictionStats struct {
	Fiabilite string   `json:"fiabilite"`
	Tendance  *float64 `json:"tendance"`
}

// wirePrediction accepts both the French keys emitted by the Prophet model
// and the English aliases used by older service versions.
type wirePrediction struct {
	Date           string               `json:"date"`
	PredictedDate  string               `json:"predicted_date"`
	Prediction     *float64             `json:"prediction"`
	PredictedValue *float64             `json:"predicted_value"`
	Interval       *models.Interval     `json:"intervalle_confiance"`
	Tendance       *float64             `json:"tendance"`
	Weekly         *float64             `json:"composante_hebdomadaire"`
	Annual         *float64             `json:"composante_annuelle"`
	Reliability    string               `json:"reliability"`
	Stats          *wirePredictionStats `json:"statistiques"`
	Message        string               `json:"message"`
	ModelStats     *models.ModelStats   `json:"model_stats"`
}

type wireForecast struct {
	Predictions *[]wirePrediction  `json:"predictions"`
	ModelStats  *models.ModelStats `json:"model_stats"`
}

// PredictOrders issues one forecast request; the service picks daily
// granularity for both single and period requests.
func (c *Client) PredictOrders(ctx context.Context, req models.PredictionRequest) (*Forecast, error) {
	if req.Factors == nil {
		req.Factors = []string{}
	}
	var resp wireForecast
	if err := c.postJSON(ctx, serviceForecast, "predict", "/api/predict", req, &resp); err != nil {
		return nil, err
	}
	return parseForecast(resp)
}

func parseForecast(resp wireForecast) (*Forecast, error) {
	const op = "predict"
	if resp.Predictions == nil {
		return nil, parseErrorf(op, "missing predictions")
	}

	f := &Forecast{Predictions: make([]models.Prediction, 0, len(*resp.Predictions))}
	for i, w := range *resp.Predictions {
		p, err := w.toPrediction()
		if err != nil {
			return nil, parseErrorf(op, "prediction %d: %v", i, err)
		}
		f.Predictions = append(f.Predictions, p)
	}

	stats := resp.ModelStats
	if stats == nil && len(*resp.Predictions) > 0 {
		stats = (*resp.Predictions)[0].ModelStats
	}
	f.ModelStats = normalizeStats(stats)
	return f, nil
}

func (w wirePrediction) toPrediction() (models.Prediction, error) {
	date := w.Date
	if date == "" {
		date = w.PredictedDate
	}
	day, err := parseDay(date)
	if err != nil {
		return models.Prediction{}, err
	}

	value := w.Prediction
	if value == nil {
		value = w.PredictedValue
	}
	if value == nil {
		return models.Prediction{}, fmt.Errorf("missing value for %s", day)
	}
	if *value < 0 || math.IsNaN(*value) || math.IsInf(*value, 0) {
		return models.Prediction{}, fmt.Errorf("invalid value %v for %s", *value, day)
	}

	p := models.Prediction{
		Date:            day,
		Value:           *value,
		Trend:           w.Tendance,
		WeeklyComponent: w.Weekly,
		AnnualComponent: w.Annual,
		Message:         w.Message,
		Reliability:     reliability(w.Reliability),
	}
	if w.Interval != nil {
		if w.Interval.Min > w.Interval.Max {
			return models.Prediction{}, fmt.Errorf("confidence interval min %v > max %v", w.Interval.Min, w.Interval.Max)
		}
		ci := *w.Interval
		p.ConfidenceInterval = &ci
	}
	if w.Stats != nil {
		if p.Reliability == "" {
			p.Reliability = reliability(w.Stats.Fiabilite)
		}
		if p.Trend == nil {
			p.Trend = w.Stats.Tendance
		}
	}
	return p, nil
}

func reliability(s string) models.Reliability {
	switch s {
	case "basse", "low":
		return models.ReliabilityLow
	case "moyenne", "medium":
		return models.ReliabilityMedium
	case "haute", "high":
		return models.ReliabilityHigh
	}
	return ""
}

// normalizeStats keeps model statistics inside their documented ranges.
// Accuracy is derived from MAPE upstream and goes negative on poor fits.
func normalizeStats(s *models.ModelStats) *models.ModelStats {
	if s == nil {
		return nil
	}
	out := *s
	out.Accuracy = math.Max(0, math.Min(1, out.Accuracy))
	if out.ConfidenceLevel != nil && (*out.ConfidenceLevel < 0 || *out.ConfidenceLevel > 1) {
		out.ConfidenceLevel = nil
	}
	switch out.TrendDirection {
	case models.TrendUp, models.TrendDown, models.TrendStable:
	default:
		out.TrendDirection = ""
	}
	return &out
}

// parseDay accepts a calendar date or a timestamp and returns YYYY-MM-DD.
func parseDay(s string) (string, error) {
	if len(s) < len(models.DateLayout) {
		return "", fmt.Errorf("invalid date %q", s)
	}
	t, err := time.Parse(models.DateLayout, s[:len(models.DateLayout)])
	if err != nil {
		return "", fmt.Errorf("invalid date %q", s)
	}
	return t.Format(models.DateLayout), nil
}

// FetchHistoricalPoint returns the volumes recorded on the same day of the
// year in 2024 and 2023.
func (c *Client) FetchHistoricalPoint(ctx context.Context, q models.HistoricalQuery) (*models.HistoricalPoint, error) {
	const op = "historical-data"
	if q.Month < 1 || q.Month > 12 || q.Day < 1 || q.Day > 31 {
		return nil, ValidationError(op, fmt.Sprintf("jour invalide : %02d/%02d", q.Day, q.Month))
	}
	query := url.Values{}
	if q.Establishment != "" {
		query.Set("establishment", q.Establishment)
	}
	if q.LinenType != "" {
		query.Set("linenType", q.LinenType)
	}
	query.Set("month", strconv.Itoa(q.Month))
	query.Set("day", strconv.Itoa(q.Day))

	var resp struct {
		Value2024 *float64 `json:"value2024"`
		Value2023 *float64 `json:"value2023"`
	}
	if err := c.getJSON(ctx, serviceForecast, op, "/api/historical-data", query, &resp); err != nil {
		return nil, err
	}
	if resp.Value2024 == nil || resp.Value2023 == nil {
		return nil, parseErrorf(op, "missing historical values")
	}
	return &models.HistoricalPoint{Value2024: *resp.Value2024, Value2023: *resp.Value2023}, nil
}
