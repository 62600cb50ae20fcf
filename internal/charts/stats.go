package charts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mikana/dashboard/internal/models"
)

// StatLine is one "key: value" line of the model statistics panel.
type StatLine struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// StatLines renders model statistics in a fixed key order. Absent optional
// fields are skipped.
func StatLines(s *models.ModelStats) []StatLine {
	if s == nil {
		return nil
	}
	lines := []StatLine{{Key: "accuracy", Label: "Précision", Value: Percent(s.Accuracy)}}
	add := func(key, label string, v *float64, format func(float64) string) {
		if v != nil {
			lines = append(lines, StatLine{Key: key, Label: label, Value: format(*v)})
		}
	}
	add("mape", "MAPE", s.MAPE, func(v float64) string { return Number(v, 2) + " %" })
	add("rmse", "RMSE", s.RMSE, func(v float64) string { return Number(v, 2) })
	add("mae", "MAE", s.MAE, func(v float64) string { return Number(v, 2) })
	add("confidence_level", "Niveau de confiance", s.ConfidenceLevel, Percent)
	if s.SampleSize != nil {
		lines = append(lines, StatLine{Key: "sample_size", Label: "Taille de l'échantillon", Value: strconv.Itoa(*s.SampleSize)})
	}
	if s.TrendDirection != "" {
		lines = append(lines, StatLine{Key: "trend_direction", Label: "Tendance", Value: TrendArrow(s.TrendDirection) + " " + TrendLabel(s.TrendDirection)})
	}
	add("trend_strength", "Force de la tendance", s.TrendStrength, func(v float64) string { return Number(v, 2) })
	return lines
}

// TrendArrow is the glyph shown next to a trend direction.
func TrendArrow(d models.TrendDirection) string {
	switch d {
	case models.TrendUp:
		return "↑"
	case models.TrendDown:
		return "↓"
	}
	return "→"
}

func TrendLabel(d models.TrendDirection) string {
	switch d {
	case models.TrendUp:
		return "hausse"
	case models.TrendDown:
		return "baisse"
	}
	return "stable"
}

func ReliabilityLabel(r models.Reliability) string {
	switch r {
	case models.ReliabilityLow:
		return "basse"
	case models.ReliabilityMedium:
		return "moyenne"
	case models.ReliabilityHigh:
		return "haute"
	}
	return ""
}

// Percent formats a ratio in [0,1] as a French percentage.
func Percent(ratio float64) string {
	return Number(ratio*100, 1) + " %"
}

// Number formats v in French notation: decimal comma, space between
// thousands.
func Number(v float64, decimals int) string {
	s := strconv.FormatFloat(v, 'f', decimals, 64)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteRune(' ')
		}
		b.WriteRune(r)
	}
	if frac != "" {
		b.WriteByte(',')
		b.WriteString(frac)
	}
	return b.String()
}

// Kilograms formats a volume for tables and reports.
func Kilograms(v float64) string {
	return fmt.Sprintf("%s kg", Number(v, 2))
}

// PresenceChart plots predicted presences with their confidence bounds.
func PresenceChart(forecasts []models.PresenceForecast) LineChart {
	chart := LineChart{Title: "Prévision des présences", Unit: "personnes"}
	pred := newSeries("predicted", ColorBlue, len(forecasts))
	low := newSeries("low", ColorSky, len(forecasts))
	high := newSeries("high", ColorViolet, len(forecasts))
	for _, f := range forecasts {
		chart.Labels = append(chart.Labels, f.Period)
		pred.Points = append(pred.Points, Point{f.Period, f.PredictedPresences})
		low.Points = append(low.Points, Point{f.Period, f.ConfidenceInterval[0]})
		high.Points = append(high.Points, Point{f.Period, f.ConfidenceInterval[1]})
	}
	chart.Series = []Series{pred, low, high}
	return chart
}
