package api

import (
	"embed"
	"html/template"
	"math"

	"github.com/mikana/dashboard/internal/charts"
)

//go:embed templates/*
var templateFS embed.FS

// newTemplates creates and parses the HTML templates with custom functions.
func newTemplates() *template.Template {
	funcs := template.FuncMap{
		"deref": func(f *float64) float64 {
			if f == nil {
				return 0
			}
			return *f
		},
		"kg":          charts.Kilograms,
		"pct":         charts.Percent,
		"number":      charts.Number,
		"arrow":       charts.TrendArrow,
		"reliability": charts.ReliabilityLabel,
		"absPct": func(v float64) int {
			return int(math.Round(math.Min(1, math.Abs(v)) * 100))
		},
		"orAll": func(s string) string {
			if s == "" {
				return "Tous"
			}
			return s
		},
	}
	return template.Must(template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html"))
}
