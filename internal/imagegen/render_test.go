package imagegen

import (
	"bytes"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikana/dashboard/internal/charts"
	"github.com/mikana/dashboard/internal/models"
)

func sampleChart() charts.LineChart {
	return charts.HistoricalLine([]models.HistoricalComparison{
		{Date: "2025-03-01", Prediction: 1820.5, Historical2024: 1700, Historical2023: 1650},
		{Date: "2025-03-02", Prediction: 1790, Historical2024: 0, Historical2023: 1600},
		{Date: "2025-03-03", Prediction: 1905.25, Historical2024: 1880, Historical2023: 1720},
	})
}

func TestRenderLineChartIsDeterministic(t *testing.T) {
	a, err := RenderLineChart(sampleChart(), Options{})
	require.NoError(t, err)
	b, err := RenderLineChart(sampleChart(), Options{})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRenderLineChartDimensions(t *testing.T) {
	data, err := RenderLineChart(sampleChart(), Options{Width: 600, Height: 320, Dark: true})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 600, img.Bounds().Dx())
	assert.Equal(t, 320, img.Bounds().Dy())
}

func TestRenderLineChartEmpty(t *testing.T) {
	data, err := RenderLineChart(charts.HistoricalLine(nil), Options{})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, DefaultWidth, img.Bounds().Dx())
	assert.Equal(t, DefaultHeight, img.Bounds().Dy())
}

func TestRenderLineChartThemesDiffer(t *testing.T) {
	light, err := RenderLineChart(sampleChart(), Options{})
	require.NoError(t, err)
	dark, err := RenderLineChart(sampleChart(), Options{Dark: true})
	require.NoError(t, err)
	assert.NotEqual(t, light, dark)
}

func TestRenderLineChartTooSmall(t *testing.T) {
	_, err := RenderLineChart(sampleChart(), Options{Width: 100, Height: 100})
	assert.Error(t, err)
}

func TestYRange(t *testing.T) {
	lo, hi, step := yRange([]charts.Series{{Points: []charts.Point{{Value: 120}, {Value: 1905}}}})
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 500.0, step)
	assert.Equal(t, 2000.0, hi)

	lo, hi, step = yRange([]charts.Series{{Points: []charts.Point{{Value: -0.4}, {Value: 0.8}}}})
	assert.Equal(t, 0.5, step)
	assert.Equal(t, -0.5, lo)
	assert.Equal(t, 1.0, hi)

	lo, hi, _ = yRange(nil)
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 1.0, hi)
}

func TestCache(t *testing.T) {
	c := NewCache(time.Minute)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	first, err := c.Render(sampleChart(), Options{})
	require.NoError(t, err)

	key := Key(sampleChart(), Options{})
	cached, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, first, cached)

	dark := Key(sampleChart(), Options{Dark: true})
	assert.NotEqual(t, key, dark)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get(key)
	assert.False(t, ok)
}

func TestKeyIncludesSeriesColor(t *testing.T) {
	a := sampleChart()
	b := sampleChart()
	b.Series[0].Color = charts.ColorRed
	assert.NotEqual(t, Key(a, Options{}), Key(b, Options{}))
}
