package forecastapi

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mikana/dashboard/internal/models"
)

// ExportFormat selects the server-side history export.
type ExportFormat string

const (
	ExportExcel ExportFormat = "excel"
	ExportPDF   ExportFormat = "pdf"
)

// Blob is a binary download relayed as-is to the operator.
type Blob struct {
	Data        []byte
	ContentType string
	Filename    string
}

func (c *Client) PredictDelivery(ctx context.Context, req models.DeliveryRequest) (*models.DeliveryPrediction, error) {
	const op = "predict-delivery"
	if req.Article == "" {
		return nil, ValidationError(op, "Veuillez sélectionner un article.")
	}
	if _, err := parseDay(req.Date); err != nil || len(req.Date) != len(models.DateLayout) {
		return nil, ValidationError(op, "La date doit être au format AAAA-MM-JJ.")
	}
	if req.Quantity < 0 {
		return nil, ValidationError(op, "La quantité commandée ne peut pas être négative.")
	}

	var resp struct {
		PredictedQuantity  *float64              `json:"predicted_quantity"`
		DeliveryRate       *float64              `json:"delivery_rate"`
		PredictionError    float64               `json:"prediction_error"`
		PredictionAccuracy float64               `json:"prediction_accuracy"`
		Recommendation     string                `json:"recommendation"`
		Status             models.DeliveryStatus `json:"status"`
	}
	if err := c.postJSON(ctx, serviceForecast, op, "/api/predict-delivery", req, &resp); err != nil {
		return nil, err
	}
	if resp.PredictedQuantity == nil || resp.DeliveryRate == nil {
		return nil, parseErrorf(op, "missing predicted_quantity or delivery_rate")
	}
	switch resp.Status {
	case models.DeliveryExcellent, models.DeliveryGood, models.DeliveryWarning:
	default:
		return nil, parseErrorf(op, "unknown status %q", resp.Status)
	}
	return &models.DeliveryPrediction{
		PredictedQuantity:  *resp.PredictedQuantity,
		DeliveryRate:       *resp.DeliveryRate,
		PredictionError:    resp.PredictionError,
		PredictionAccuracy: resp.PredictionAccuracy,
		Recommendation:     resp.Recommendation,
		Status:             resp.Status,
	}, nil
}

func (c *Client) FetchDeliveryStats(ctx context.Context) (*models.DeliveryStats, error) {
	var stats models.DeliveryStats
	if err := c.getJSON(ctx, serviceForecast, "delivery-stats", "/api/delivery-stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// FetchHistory pages through the server's delivery prediction log.
func (c *Client) FetchHistory(ctx context.Context, limit, offset int) ([]models.HistoryRecord, error) {
	const op = "history"
	if limit <= 0 || offset < 0 {
		return nil, ValidationError(op, "Pagination invalide.")
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))

	var resp struct {
		Data *[]models.HistoryRecord `json:"data"`
	}
	if err := c.getJSON(ctx, serviceForecast, op, "/api/history", query, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, parseErrorf(op, "missing data")
	}
	return *resp.Data, nil
}

// ExportHistory downloads the server-rendered history report.
func (c *Client) ExportHistory(ctx context.Context, format ExportFormat) (*Blob, error) {
	const op = "export-history"
	var ext, fallbackType string
	switch format {
	case ExportExcel:
		ext, fallbackType = "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ExportPDF:
		ext, fallbackType = "pdf", "application/pdf"
	default:
		return nil, ValidationError(op, fmt.Sprintf("Format d'export inconnu : %s", format))
	}

	resp, err := c.do(ctx, call{service: serviceForecast, op: op, method: http.MethodGet, path: "/api/export/" + string(format)})
	if err != nil {
		return nil, err
	}
	if len(resp.body) == 0 {
		return nil, parseErrorf(op, "empty export")
	}

	ct := resp.contentType
	if mt, _, err := mime.ParseMediaType(ct); err != nil || mt == "application/json" {
		ct = fallbackType
	}
	return &Blob{Data: resp.body, ContentType: ct, Filename: "historique_predictions." + ext}, nil
}
