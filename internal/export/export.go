// Package export snapshots the prediction page into downloadable PDF,
// spreadsheet and CSV artifacts. Artifacts are built fully in memory and
// depend only on their Input.
package export

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/mikana/dashboard/internal/charts"
	"github.com/mikana/dashboard/internal/imagegen"
	"github.com/mikana/dashboard/internal/metrics"
	"github.com/mikana/dashboard/internal/models"
)

type Format string

const (
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// ParseFormat accepts the format names used by the export menu.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "pdf":
		return FormatPDF, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	case "csv":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// Input is everything a report shows. GeneratedAt is printed in the report
// and stamped as the document date.
type Input struct {
	Form        models.PredictionRequest
	Predictions []models.Prediction
	Comparisons []models.HistoricalComparison
	Stats       *models.ModelStats
	History     []models.PredictionSession
	Seasonal    *models.SeasonalTrends
	GeneratedAt time.Time
}

type Artifact struct {
	Name        string
	ContentType string
	Data        []byte
}

// Rasterizer turns a chart into a PNG bitmap.
type Rasterizer interface {
	Render(chart charts.LineChart, opts imagegen.Options) ([]byte, error)
}

type Composer struct {
	charts Rasterizer
}

func NewComposer(r Rasterizer) *Composer {
	return &Composer{charts: r}
}

// Compose builds one artifact. Failures never yield a partial artifact.
func (c *Composer) Compose(ctx context.Context, format Format, in Input) (*Artifact, error) {
	start := time.Now()
	var (
		a   *Artifact
		err error
	)
	switch format {
	case FormatPDF:
		a, err = c.pdf(ctx, in)
	case FormatXLSX:
		a, err = workbook(in)
	case FormatCSV:
		a, err = predictionsCSV(in)
	default:
		err = fmt.Errorf("unknown export format %q", format)
	}
	if err != nil {
		metrics.ExportsTotal.WithLabelValues(string(format), "error").Inc()
		return nil, fmt.Errorf("export %s: %w", format, err)
	}
	metrics.ExportsTotal.WithLabelValues(string(format), "ok").Inc()
	metrics.ExportBytes.WithLabelValues(string(format)).Observe(float64(len(a.Data)))
	log.Printf("export: %s %s (%d bytes) in %v", format, a.Name, len(a.Data), time.Since(start).Round(time.Millisecond))
	return a, nil
}

// rasterize renders the report charts one after the other.
func (c *Composer) rasterize(ctx context.Context, in Input) (historical, seasonal []byte, err error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	historical, err = c.charts.Render(charts.HistoricalLine(in.Comparisons), imagegen.Options{})
	if err != nil {
		return nil, nil, fmt.Errorf("historical chart: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	var trends models.SeasonalTrends
	if in.Seasonal != nil {
		trends = *in.Seasonal
	}
	seasonal, err = c.charts.Render(charts.SeasonalHeatmap(trends), imagegen.Options{})
	if err != nil {
		return nil, nil, fmt.Errorf("seasonal chart: %w", err)
	}
	return historical, seasonal, nil
}

// Column headers of the Predictions projection, shared by CSV and XLSX.
var predictionHeader = []string{
	"date", "value", "confidence_min", "confidence_max",
	"trend", "weekly_component", "annual_component", "reliability", "message",
}

func predictionRow(p models.Prediction) []any {
	row := []any{p.Date, p.Value, nil, nil, optional(p.Trend), optional(p.WeeklyComponent), optional(p.AnnualComponent), string(p.Reliability), p.Message}
	if p.ConfidenceInterval != nil {
		row[2] = p.ConfidenceInterval.Min
		row[3] = p.ConfidenceInterval.Max
	}
	return row
}

var comparisonHeader = []string{"date", "prediction", "historical2024", "historical2023"}

func comparisonRow(c models.HistoricalComparison) []any {
	return []any{c.Date, c.Prediction, c.Historical2024, c.Historical2023}
}

var statsHeader = []string{
	"accuracy", "mape", "rmse", "mae",
	"confidence_level", "sample_size", "trend_direction", "trend_strength",
}

func statsRow(s models.ModelStats) []any {
	var sample any
	if s.SampleSize != nil {
		sample = *s.SampleSize
	}
	return []any{s.Accuracy, optional(s.MAPE), optional(s.RMSE), optional(s.MAE), optional(s.ConfidenceLevel), sample, string(s.TrendDirection), optional(s.TrendStrength)}
}

func optional(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// text formats a cell for delimited output. Absent values are empty.
func text(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	}
	return fmt.Sprint(v)
}

func orAll(s string) string {
	if s == "" {
		return "Tous"
	}
	return s
}
