package charts

import (
	"github.com/mikana/dashboard/internal/models"
)

// Model comparison series keys.
const (
	MetricR2   = "r2_score"
	MetricRMSE = "rmse"
	MetricMAE  = "mae"
)

// ModelComparison builds three parallel bar series across models. Series
// named in hidden are kept but flagged so the legend can toggle them back.
func ModelComparison(entries []models.ModelRegistryEntry, hidden map[string]bool) LineChart {
	chart := LineChart{Title: "Comparaison des modèles", Labels: make([]string, 0, len(entries))}
	r2 := newSeries(MetricR2, ColorBlue, len(entries))
	rmse := newSeries(MetricRMSE, ColorAmber, len(entries))
	mae := newSeries(MetricMAE, ColorGreen, len(entries))
	for _, e := range entries {
		chart.Labels = append(chart.Labels, e.ModelName)
		r2.Points = append(r2.Points, Point{e.ModelName, e.R2Score})
		rmse.Points = append(rmse.Points, Point{e.ModelName, deref(e.RMSE)})
		mae.Points = append(mae.Points, Point{e.ModelName, deref(e.MAE)})
	}
	chart.Series = []Series{r2, rmse, mae}
	for i := range chart.Series {
		chart.Series[i].Hidden = hidden[chart.Series[i].Name]
	}
	return chart
}

// ToggleSeries flips one legend entry and returns the new hidden set.
func ToggleSeries(hidden map[string]bool, name string) map[string]bool {
	out := make(map[string]bool, len(hidden)+1)
	for k, v := range hidden {
		if v {
			out[k] = true
		}
	}
	if out[name] {
		delete(out, name)
	} else {
		out[name] = true
	}
	return out
}

// Visible returns the series that are not hidden.
func (c LineChart) Visible() []Series {
	out := make([]Series, 0, len(c.Series))
	for _, s := range c.Series {
		if !s.Hidden {
			out = append(out, s)
		}
	}
	return out
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
