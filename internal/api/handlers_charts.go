package api

import (
	"errors"
	"log"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/mikana/dashboard/internal/charts"
	"github.com/mikana/dashboard/internal/imagegen"
)

// Chart images embedded by the pages, served from /api/charts/{name}.png.
const (
	chartSeasonal         = "seasonal"
	chartPresences        = "presences"
	chartDeliveryTrend    = "delivery-trend"
	chartDeliveryMonthly  = "delivery-monthly"
	chartOrderedDelivered = "ordered-delivered"
	chartModelComparison  = "model-comparison"
)

var errUnknownChart = errors.New("api: unknown chart")

// chartURL builds the image URL of a named chart.
func chartURL(name string, query url.Values) string {
	u := "/api/charts/" + name + ".png"
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// lineChart fetches the data behind a named chart and projects it.
func (s *Server) lineChart(r *http.Request, name string) (charts.LineChart, error) {
	ctx := r.Context()
	switch name {
	case chartSeasonal:
		trends, err := s.client.FetchSeasonalTrends(ctx, scopeOf(r))
		if err != nil {
			return charts.LineChart{}, err
		}
		return charts.SeasonalHeatmap(*trends), nil
	case chartPresences:
		weeks, err := intParam(r, "weeks", DefaultPresenceWeeks)
		if err != nil {
			weeks = DefaultPresenceWeeks
		}
		forecasts, err := s.client.PredictPresences(ctx, weeks)
		if err != nil {
			return charts.LineChart{}, err
		}
		return charts.PresenceChart(forecasts), nil
	case chartDeliveryTrend, chartDeliveryMonthly, chartOrderedDelivered:
		stats, err := s.client.FetchDeliveryStats(ctx)
		if err != nil {
			return charts.LineChart{}, err
		}
		switch name {
		case chartDeliveryTrend:
			return charts.DeliveryTrend(*stats), nil
		case chartDeliveryMonthly:
			return charts.MonthlyComparison(*stats), nil
		}
		return charts.OrderedVsDelivered(*stats), nil
	case chartModelComparison:
		overview, err := s.client.FetchPerformanceOverview(ctx)
		if err != nil {
			return charts.LineChart{}, err
		}
		return charts.ModelComparison(overview.Models, parseHidden(r)), nil
	}
	return charts.LineChart{}, errUnknownChart
}

func (s *Server) handleAPIChartImage(w http.ResponseWriter, r *http.Request) {
	name, ok := strings.CutSuffix(r.PathValue("name"), ".png")
	if !ok {
		http.NotFound(w, r)
		return
	}
	chart, err := s.lineChart(r, name)
	if errors.Is(err, errUnknownChart) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		writeError(w, "chart "+name, err)
		return
	}
	s.writeChart(w, r, chart)
}

// writeChart rasterizes chart in the caller's theme.
func (s *Server) writeChart(w http.ResponseWriter, r *http.Request, chart charts.LineChart) {
	dark, err := s.store.Theme(clientID(w, r))
	if err != nil {
		log.Printf("api: theme: %v", err)
	}
	png, err := s.charts.Render(chart, imagegen.Options{Dark: dark})
	if err != nil {
		log.Printf("api: chart: %v", err)
		http.Error(w, "chart unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(png)
}

// parseHidden reads ?hidden=rmse,mae into a set.
func parseHidden(r *http.Request) map[string]bool {
	hidden := map[string]bool{}
	for _, name := range strings.Split(r.URL.Query().Get("hidden"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			hidden[name] = true
		}
	}
	return hidden
}

// hiddenValue is the inverse of parseHidden, sorted for stable links.
func hiddenValue(hidden map[string]bool) string {
	var names []string
	for name, on := range hidden {
		if on {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return strings.Join(names, ",")
}
