// Package charts turns domain data into chart-ready series. Every function
// is pure; rendering happens in the templates and in imagegen.
package charts

import (
	"image/color"
	"math"
	"strconv"

	"github.com/mikana/dashboard/internal/models"
)

// Series names of the historical comparison chart.
const (
	SeriesPrediction = "prediction"
	Series2024       = "2024"
	Series2023       = "2023"
)

// MonthLabels are the French month abbreviations used on monthly axes.
var MonthLabels = [12]string{"Jan", "Fév", "Mar", "Avr", "Mai", "Juin", "Juil", "Août", "Sep", "Oct", "Nov", "Déc"}

type Point struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

type Series struct {
	Name   string     `json:"name"`
	Color  color.RGBA `json:"-"`
	Hex    string     `json:"color"`
	Points []Point    `json:"points"`
	Hidden bool       `json:"hidden,omitempty"`
}

func newSeries(name string, c color.RGBA, n int) Series {
	return Series{Name: name, Color: c, Hex: Hex(c), Points: make([]Point, 0, n)}
}

// LineChart is a set of series sharing the same ordered labels.
type LineChart struct {
	Title  string   `json:"title"`
	Unit   string   `json:"unit,omitempty"`
	Labels []string `json:"labels"`
	Series []Series `json:"series"`
}

// Empty reports whether the chart has no labels to draw.
func (c LineChart) Empty() bool { return len(c.Labels) == 0 }

// HistoricalLine plots the prediction against the same days in 2024 and
// 2023. A missing year is drawn as zero.
func HistoricalLine(rows []models.HistoricalComparison) LineChart {
	chart := LineChart{
		Title:  "Comparaison Historique",
		Unit:   "kg",
		Labels: make([]string, 0, len(rows)),
	}
	pred := newSeries(SeriesPrediction, ColorBlue, len(rows))
	y24 := newSeries(Series2024, ColorAmber, len(rows))
	y23 := newSeries(Series2023, ColorGreen, len(rows))
	for _, r := range rows {
		chart.Labels = append(chart.Labels, r.Date)
		pred.Points = append(pred.Points, Point{r.Date, r.Prediction})
		y24.Points = append(y24.Points, Point{r.Date, r.Historical2024})
		y23.Points = append(y23.Points, Point{r.Date, r.Historical2023})
	}
	chart.Series = []Series{pred, y24, y23}
	return chart
}

// SeasonalHeatmap plots one twelve-month series per year in thousands.
func SeasonalHeatmap(t models.SeasonalTrends) LineChart {
	chart := LineChart{
		Title:  "Tendances Saisonnières",
		Unit:   "milliers",
		Labels: MonthLabels[:],
	}
	for _, ys := range t.Data {
		s := newSeries(strconv.Itoa(ys.Year), YearColor(ys.Year), 12)
		for m := 0; m < 12; m++ {
			var v float64
			if m < len(ys.Values) {
				v = ys.Values[m] / 1000
			}
			s.Points = append(s.Points, Point{MonthLabels[m], v})
		}
		chart.Series = append(chart.Series, s)
	}
	return chart
}

// YearColor is the fixed legend color of a year. Years without an assigned
// color get hue = year mod 360.
func YearColor(year int) color.RGBA {
	switch year {
	case 2022:
		return ColorBlue
	case 2023:
		return ColorGreen
	case 2024:
		return ColorAmber
	}
	hue := year % 360
	if hue < 0 {
		hue += 360
	}
	return HSL(float64(hue), 0.70, 0.50)
}

// HSL converts hue in degrees and saturation/lightness in [0,1] to RGB.
func HSL(h, s, l float64) color.RGBA {
	c := (1 - math.Abs(2*l-1)) * s
	hp := math.Mod(h, 360) / 60
	x := c * (1 - math.Abs(math.Mod(hp, 2)-1))
	var r, g, b float64
	switch {
	case hp < 1:
		r, g, b = c, x, 0
	case hp < 2:
		r, g, b = x, c, 0
	case hp < 3:
		r, g, b = 0, c, x
	case hp < 4:
		r, g, b = 0, x, c
	case hp < 5:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	m := l - c/2
	to8 := func(v float64) uint8 { return uint8(math.Round((v + m) * 255)) }
	return color.RGBA{R: to8(r), G: to8(g), B: to8(b), A: 0xff}
}
