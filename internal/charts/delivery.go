package charts

import (
	"image/color"
	"math"
	"strconv"

	"github.com/mikana/dashboard/internal/models"
)

// Pie slice labels.
const (
	SliceOrdered   = "ordered"
	SliceOvershoot = "overshoot"
	SliceForecast  = "forecast"
	SliceRemaining = "remaining"
)

type PieSlice struct {
	Label   string     `json:"label"`
	Value   float64    `json:"value"`
	Percent float64    `json:"percent"`
	Color   color.RGBA `json:"-"`
	Hex     string     `json:"color"`
}

// DeliveryPie splits max(ordered, delivered) into two non-negative slices:
// ordered plus overshoot when the delivery exceeds the order, forecast plus
// remaining otherwise.
func DeliveryPie(ordered, delivered float64) []PieSlice {
	ordered = math.Max(0, ordered)
	delivered = math.Max(0, delivered)

	var slices []PieSlice
	if delivered > ordered {
		slices = []PieSlice{
			{Label: SliceOrdered, Value: ordered, Color: ColorBlue},
			{Label: SliceOvershoot, Value: delivered - ordered, Color: ColorAmber},
		}
	} else {
		slices = []PieSlice{
			{Label: SliceForecast, Value: delivered, Color: ColorGreen},
			{Label: SliceRemaining, Value: ordered - delivered, Color: ColorRed},
		}
	}
	return withPercents(slices)
}

func withPercents(slices []PieSlice) []PieSlice {
	var total float64
	for _, s := range slices {
		total += s.Value
	}
	for i := range slices {
		if total > 0 {
			slices[i].Percent = slices[i].Value / total * 100
		}
		slices[i].Hex = Hex(slices[i].Color)
	}
	return slices
}

// Tone is the presentation class of a delivery rate.
type Tone string

const (
	ToneInfo      Tone = "info"
	ToneExcellent Tone = "excellent"
	ToneGood      Tone = "good"
	ToneWarning   Tone = "warning"
)

// DeliveryRateTone maps a delivery rate in percent to its display tone. It
// never replaces the status computed by the forecast service.
func DeliveryRateTone(rate float64) Tone {
	switch {
	case rate > 100:
		return ToneInfo
	case rate >= 95:
		return ToneExcellent
	case rate >= 85:
		return ToneGood
	}
	return ToneWarning
}

func (t Tone) Color() color.RGBA {
	switch t {
	case ToneInfo:
		return ColorSky
	case ToneExcellent:
		return ColorGreen
	case ToneGood:
		return ColorAmber
	}
	return ColorRed
}

func (t Tone) Hex() string { return Hex(t.Color()) }

// DeliveryTrend plots the yearly delivered volume.
func DeliveryTrend(stats models.DeliveryStats) LineChart {
	chart := LineChart{Title: "Évolution des livraisons", Unit: "kg"}
	s := newSeries("delivered", ColorBlue, len(stats.YearlyTrend))
	for _, y := range stats.YearlyTrend {
		label := strconv.Itoa(y.Year)
		chart.Labels = append(chart.Labels, label)
		s.Points = append(s.Points, Point{label, y.Delivered})
	}
	chart.Series = []Series{s}
	return chart
}

// MonthlyComparison plots the three reference years month by month.
func MonthlyComparison(stats models.DeliveryStats) LineChart {
	chart := LineChart{Title: "Comparaison mensuelle", Unit: "kg"}
	y22 := newSeries("2022", YearColor(2022), len(stats.MonthlyComparison))
	y23 := newSeries("2023", YearColor(2023), len(stats.MonthlyComparison))
	y24 := newSeries("2024", YearColor(2024), len(stats.MonthlyComparison))
	for _, m := range stats.MonthlyComparison {
		chart.Labels = append(chart.Labels, m.Month)
		y22.Points = append(y22.Points, Point{m.Month, m.Year2022})
		y23.Points = append(y23.Points, Point{m.Month, m.Year2023})
		y24.Points = append(y24.Points, Point{m.Month, m.Year2024})
	}
	chart.Series = []Series{y22, y23, y24}
	return chart
}

// ArticleDistribution is the share of delivered volume per article.
func ArticleDistribution(stats models.DeliveryStats) []PieSlice {
	slices := make([]PieSlice, 0, len(stats.ArticleDistribution))
	for i, a := range stats.ArticleDistribution {
		slices = append(slices, PieSlice{
			Label: a.Name,
			Value: math.Max(0, a.Value),
			Color: PieColors[i%len(PieColors)],
		})
	}
	return withPercents(slices)
}

// OrderedVsDelivered compares ordered and delivered volume per year.
func OrderedVsDelivered(stats models.DeliveryStats) LineChart {
	chart := LineChart{Title: "Commandé vs livré", Unit: "kg"}
	ordered := newSeries("ordered", ColorBlue, len(stats.OrderDeliveryComparison))
	delivered := newSeries("delivered", ColorGreen, len(stats.OrderDeliveryComparison))
	for _, c := range stats.OrderDeliveryComparison {
		label := strconv.Itoa(c.Year)
		chart.Labels = append(chart.Labels, label)
		ordered.Points = append(ordered.Points, Point{label, c.Ordered})
		delivered.Points = append(delivered.Points, Point{label, c.Delivered})
	}
	chart.Series = []Series{ordered, delivered}
	return chart
}
