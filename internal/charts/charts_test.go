package charts

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikana/dashboard/internal/models"
)

func TestHistoricalLine(t *testing.T) {
	chart := HistoricalLine([]models.HistoricalComparison{
		{Date: "2025-03-14", Prediction: 1820, Historical2024: 1755, Historical2023: 1680},
		{Date: "2025-03-15", Prediction: 1700},
	})

	require.Len(t, chart.Series, 3)
	assert.Equal(t, []string{"2025-03-14", "2025-03-15"}, chart.Labels)
	assert.Equal(t, SeriesPrediction, chart.Series[0].Name)
	assert.Equal(t, Series2024, chart.Series[1].Name)
	assert.Equal(t, Series2023, chart.Series[2].Name)
	for _, s := range chart.Series {
		assert.Len(t, s.Points, 2, "series %s", s.Name)
	}
	assert.Equal(t, 1755.0, chart.Series[1].Points[0].Value)
	assert.Equal(t, 0.0, chart.Series[2].Points[1].Value, "missing year is a zero point")
}

func TestSeasonalHeatmap(t *testing.T) {
	vals := make([]float64, 12)
	for i := range vals {
		vals[i] = float64(i+1) * 1000
	}
	chart := SeasonalHeatmap(models.SeasonalTrends{Data: []models.YearSeries{
		{Year: 2023, Values: vals},
		{Year: 2021, Values: vals},
	}})

	require.Len(t, chart.Series, 2)
	assert.Equal(t, "2023", chart.Series[0].Name)
	assert.Len(t, chart.Series[0].Points, 12)
	assert.Equal(t, 1.0, chart.Series[0].Points[0].Value)
	assert.Equal(t, 12.0, chart.Series[0].Points[11].Value)
	assert.Equal(t, ColorGreen, chart.Series[0].Color)
	assert.Equal(t, YearColor(2021), chart.Series[1].Color)
}

func TestYearColor(t *testing.T) {
	assert.Equal(t, color.RGBA{59, 130, 246, 255}, YearColor(2022))
	assert.Equal(t, color.RGBA{16, 185, 129, 255}, YearColor(2023))
	assert.Equal(t, color.RGBA{245, 158, 11, 255}, YearColor(2024))

	// 2025 mod 360 = 225: a blue hue, saturation 70%, lightness 50%.
	c := YearColor(2025)
	assert.Greater(t, c.B, c.R)
	assert.Greater(t, c.B, c.G)
	assert.Equal(t, HSL(225, 0.7, 0.5), c)
	assert.Equal(t, color.RGBA{217, 38, 38, 255}, HSL(0, 0.7, 0.5))
}

func TestDeliveryPie(t *testing.T) {
	tests := []struct {
		name      string
		ordered   float64
		delivered float64
		want      [2]PieSlice
	}{
		{"overshoot", 1000, 1120, [2]PieSlice{{Label: SliceOrdered, Value: 1000}, {Label: SliceOvershoot, Value: 120}}},
		{"shortfall", 1000, 900, [2]PieSlice{{Label: SliceForecast, Value: 900}, {Label: SliceRemaining, Value: 100}}},
		{"exact", 500, 500, [2]PieSlice{{Label: SliceForecast, Value: 500}, {Label: SliceRemaining, Value: 0}}},
		{"zero order", 0, 40, [2]PieSlice{{Label: SliceOrdered, Value: 0}, {Label: SliceOvershoot, Value: 40}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeliveryPie(tt.ordered, tt.delivered)
			require.Len(t, got, 2)
			for i := range got {
				assert.Equal(t, tt.want[i].Label, got[i].Label)
				assert.InDelta(t, tt.want[i].Value, got[i].Value, 1e-9)
				assert.GreaterOrEqual(t, got[i].Value, 0.0)
			}
			assert.InDelta(t, max(tt.ordered, tt.delivered), got[0].Value+got[1].Value, 1e-9)
		})
	}
}

func TestDeliveryRateTone(t *testing.T) {
	tests := []struct {
		rate float64
		want Tone
	}{
		{112, ToneInfo},
		{100.01, ToneInfo},
		{100, ToneExcellent},
		{95, ToneExcellent},
		{94.99, ToneGood},
		{85, ToneGood},
		{84.9, ToneWarning},
		{0, ToneWarning},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DeliveryRateTone(tt.rate), "rate %v", tt.rate)
	}
}

func TestClassifyImpact(t *testing.T) {
	tests := []struct {
		c    float64
		want ImpactBand
	}{
		{1, StrongPositive},
		{0.72, StrongPositive},
		{0.7, StrongPositive},
		{0.69, ModeratePositive},
		{0.3, ModeratePositive},
		{0.29, Weak},
		{0, Weak},
		{-0.1, Weak},
		{-0.29, Weak},
		{-0.3, ModerateNegative},
		{-0.45, ModerateNegative},
		{-0.69, ModerateNegative},
		{-0.7, StrongNegative},
		{-1, StrongNegative},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyImpact(tt.c), "c = %v", tt.c)
	}
}

func TestClassifyImpactIsTotal(t *testing.T) {
	for i := -1000; i <= 1000; i++ {
		c := float64(i) / 1000
		switch ClassifyImpact(c) {
		case StrongPositive, ModeratePositive, Weak, ModerateNegative, StrongNegative:
		default:
			t.Fatalf("no band for %v", c)
		}
	}
}

func TestWeatherImpactScenario(t *testing.T) {
	bars := WeatherImpact(models.WeatherImpact{
		Temperature:   models.ImpactFactor{Impact: 0.72},
		Precipitation: models.ImpactFactor{Impact: -0.1},
		Humidity:      models.ImpactFactor{Impact: -0.45},
	})
	require.Len(t, bars, 3)
	assert.Equal(t, StrongPositive, bars[0].Band)
	assert.Equal(t, Weak, bars[1].Band)
	assert.Equal(t, ModerateNegative, bars[2].Band)
	assert.Equal(t, "humidity", bars[2].Factor)
}

func TestModelComparisonToggle(t *testing.T) {
	rmse := 12.5
	entries := []models.ModelRegistryEntry{
		{ModelName: "Commandes", R2Score: 0.8, RMSE: &rmse},
		{ModelName: "RH", R2Score: 0.6},
	}

	chart := ModelComparison(entries, nil)
	require.Len(t, chart.Series, 3)
	assert.Len(t, chart.Visible(), 3)
	assert.Equal(t, 12.5, chart.Series[1].Points[0].Value)
	assert.Equal(t, 0.0, chart.Series[1].Points[1].Value)

	hidden := ToggleSeries(nil, MetricRMSE)
	chart = ModelComparison(entries, hidden)
	visible := chart.Visible()
	require.Len(t, visible, 2)
	assert.Equal(t, MetricR2, visible[0].Name)
	assert.Equal(t, MetricMAE, visible[1].Name)

	hidden = ToggleSeries(hidden, MetricRMSE)
	assert.Empty(t, hidden)
}

func TestArticleDistributionPercents(t *testing.T) {
	slices := ArticleDistribution(models.DeliveryStats{ArticleDistribution: []models.ArticleShare{
		{Name: "Draps", Value: 300},
		{Name: "Blouses", Value: 100},
	}})
	require.Len(t, slices, 2)
	assert.InDelta(t, 75, slices[0].Percent, 1e-9)
	assert.InDelta(t, 25, slices[1].Percent, 1e-9)
	assert.NotEqual(t, slices[0].Hex, slices[1].Hex)
}

func TestStatLinesOrder(t *testing.T) {
	mape, size := 8.25, 365
	lines := StatLines(&models.ModelStats{
		Accuracy:       0.915,
		MAPE:           &mape,
		SampleSize:     &size,
		TrendDirection: models.TrendDown,
	})
	keys := make([]string, len(lines))
	for i, l := range lines {
		keys[i] = l.Key
	}
	assert.Equal(t, []string{"accuracy", "mape", "sample_size", "trend_direction"}, keys)
	assert.Equal(t, "91,5 %", lines[0].Value)
	assert.Equal(t, "8,25 %", lines[1].Value)
	assert.Equal(t, "↓ baisse", lines[3].Value)
	assert.Nil(t, StatLines(nil))
}

func TestNumber(t *testing.T) {
	assert.Equal(t, "1 820,00", Number(1820, 2))
	assert.Equal(t, "-12 345 678,5", Number(-12345678.5, 1))
	assert.Equal(t, "999", Number(999, 0))
	assert.Equal(t, "1 820,00 kg", Kilograms(1820))
}
