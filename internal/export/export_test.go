package export

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/mikana/dashboard/internal/charts"
	"github.com/mikana/dashboard/internal/imagegen"
	"github.com/mikana/dashboard/internal/models"
)

func ptr[T any](v T) *T { return &v }

func sampleInput() Input {
	paris, _ := time.LoadLocation("Europe/Paris")
	if paris == nil {
		paris = time.UTC
	}
	return Input{
		Form: models.PredictionRequest{
			DateType:      models.DatePeriod,
			StartDate:     "2025-03-01",
			EndDate:       "2025-03-02",
			Establishment: "Hôtel Atlas",
		},
		Predictions: []models.Prediction{
			{Date: "2025-03-01", Value: 1820.5, ConfidenceInterval: &models.Interval{Min: 1700, Max: 1900}, Reliability: models.ReliabilityHigh},
			{Date: "2025-03-02", Value: 1790, Trend: ptr(12.5)},
		},
		Comparisons: []models.HistoricalComparison{
			{Date: "2025-03-01", Prediction: 1820.5, Historical2024: 1700, Historical2023: 1650},
			{Date: "2025-03-02", Prediction: 1790, Historical2024: 0, Historical2023: 1600},
		},
		Stats: &models.ModelStats{
			Accuracy:       0.91,
			MAPE:           ptr(8.4),
			SampleSize:     ptr(365),
			TrendDirection: models.TrendUp,
		},
		History: []models.PredictionSession{{
			Timestamp:     time.Date(2025, 2, 28, 9, 30, 0, 0, time.UTC),
			Establishment: "Hôtel Atlas",
			Predictions:   []models.SessionPoint{{Date: "2025-03-01", Value: 1800}},
		}},
		Seasonal: &models.SeasonalTrends{Data: []models.YearSeries{
			{Year: 2023, Values: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}},
			{Year: 2024, Values: []float64{12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1}},
		}},
		GeneratedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, paris),
	}
}

func newComposer() *Composer {
	return NewComposer(imagegen.NewCache(time.Minute))
}

func TestPDFIsByteStable(t *testing.T) {
	a, err := newComposer().Compose(context.Background(), FormatPDF, sampleInput())
	require.NoError(t, err)
	b, err := newComposer().Compose(context.Background(), FormatPDF, sampleInput())
	require.NoError(t, err)

	assert.Equal(t, "rapport-complet-predictions.pdf", a.Name)
	assert.Equal(t, "application/pdf", a.ContentType)
	assert.True(t, bytes.HasPrefix(a.Data, []byte("%PDF-")))
	assert.Equal(t, a.Data, b.Data)
}

func TestPDFChangesWithInput(t *testing.T) {
	in := sampleInput()
	a, err := newComposer().Compose(context.Background(), FormatPDF, in)
	require.NoError(t, err)

	in.Predictions[0].Value = 10
	b, err := newComposer().Compose(context.Background(), FormatPDF, in)
	require.NoError(t, err)
	assert.NotEqual(t, a.Data, b.Data)
}

func TestPDFLongHistoryPaginates(t *testing.T) {
	in := sampleInput()
	var points []models.SessionPoint
	for i := 0; i < 60; i++ {
		points = append(points, models.SessionPoint{Date: "2025-03-01", Value: float64(i)})
	}
	in.History = nil
	for i := 0; i < 10; i++ {
		in.History = append(in.History, models.PredictionSession{Timestamp: in.GeneratedAt, Predictions: points})
	}
	in.Stats = nil
	in.Seasonal = nil

	a, err := newComposer().Compose(context.Background(), FormatPDF, in)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(a.Data, []byte("%PDF-")))
}

func TestPDFCancelledBeforeRasterizing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a, err := newComposer().Compose(ctx, FormatPDF, sampleInput())
	require.Error(t, err)
	assert.Nil(t, a)
	assert.True(t, errors.Is(err, context.Canceled))
}

type failingRasterizer struct{ calls int }

func (f *failingRasterizer) Render(charts.LineChart, imagegen.Options) ([]byte, error) {
	f.calls++
	return nil, errors.New("boom")
}

func TestPDFStopsOnRasterFailure(t *testing.T) {
	r := &failingRasterizer{}
	a, err := NewComposer(r).Compose(context.Background(), FormatPDF, sampleInput())
	require.Error(t, err)
	assert.Nil(t, a)
	assert.Equal(t, 1, r.calls)
}

func TestWorkbookSheets(t *testing.T) {
	a, err := newComposer().Compose(context.Background(), FormatXLSX, sampleInput())
	require.NoError(t, err)
	assert.Equal(t, "rapport-predictions.xlsx", a.Name)

	f, err := excelize.OpenReader(bytes.NewReader(a.Data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Predictions", "HistoricalComparisons", "Statistics"}, f.GetSheetList())

	rows, err := f.GetRows("Predictions")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, predictionHeader, rows[0])
	assert.Equal(t, []string{"2025-03-01", "1820.5", "1700", "1900"}, rows[1][:4])
	assert.Equal(t, "high", rows[1][7])

	rows, err = f.GetRows("HistoricalComparisons")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"2025-03-02", "1790", "0", "1600"}, rows[2])

	rows, err = f.GetRows("Statistics")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, statsHeader, rows[0])
	assert.Equal(t, "0.91", rows[1][0])
	assert.Equal(t, "365", rows[1][5])
	assert.Equal(t, "up", rows[1][6])
}

func TestWorkbookOmitsStatisticsWithoutStats(t *testing.T) {
	in := sampleInput()
	in.Stats = nil
	a, err := newComposer().Compose(context.Background(), FormatXLSX, in)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(a.Data))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Predictions", "HistoricalComparisons"}, f.GetSheetList())
}

func TestWorkbookIsByteStable(t *testing.T) {
	a, err := newComposer().Compose(context.Background(), FormatXLSX, sampleInput())
	require.NoError(t, err)
	b, err := newComposer().Compose(context.Background(), FormatXLSX, sampleInput())
	require.NoError(t, err)

	assert.Equal(t, "rapport-predictions.xlsx", a.Name)
	assert.True(t, bytes.HasPrefix(a.Data, []byte("PK\x03\x04")))
	assert.True(t, bytes.Equal(a.Data, b.Data), "workbook bytes differ between runs")
}

func TestWorkbookCellLayoutIsStable(t *testing.T) {
	read := func() map[string][][]string {
		a, err := newComposer().Compose(context.Background(), FormatXLSX, sampleInput())
		require.NoError(t, err)
		f, err := excelize.OpenReader(bytes.NewReader(a.Data))
		require.NoError(t, err)
		defer f.Close()
		out := map[string][][]string{}
		for _, s := range f.GetSheetList() {
			rows, err := f.GetRows(s)
			require.NoError(t, err)
			out[s] = rows
		}
		return out
	}
	assert.Equal(t, read(), read())
}

func TestCSV(t *testing.T) {
	a, err := newComposer().Compose(context.Background(), FormatCSV, sampleInput())
	require.NoError(t, err)
	assert.Equal(t, "predictions.csv", a.Name)
	assert.Equal(t, "text/csv; charset=utf-8", a.ContentType)

	want := "date,value,confidence_min,confidence_max,trend,weekly_component,annual_component,reliability,message\n" +
		"2025-03-01,1820.5,1700,1900,,,,high,\n" +
		"2025-03-02,1790,,,12.5,,,,\n"
	assert.Equal(t, want, string(a.Data))
}

func TestCSVQuotesMessages(t *testing.T) {
	in := sampleInput()
	in.Predictions = []models.Prediction{{Date: "2025-03-01", Value: 1, Message: "jour férié, volume réduit"}}
	a, err := newComposer().Compose(context.Background(), FormatCSV, in)
	require.NoError(t, err)
	assert.Contains(t, string(a.Data), `"jour férié, volume réduit"`)
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"pdf": FormatPDF, "xlsx": FormatXLSX, "excel": FormatXLSX, "csv": FormatCSV} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("docx")
	assert.Error(t, err)
}
