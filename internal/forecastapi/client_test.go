package forecastapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikana/dashboard/internal/models"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{ForecastURL: srv.URL, RegistryURL: srv.URL, Timeout: 2 * time.Second})
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

func TestPredictOrders(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/predict", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, 200, `{"predictions":[
			{"date":"2024-03-01","prediction":120.5,"intervalle_confiance":{"min":100,"max":140},
			 "tendance":3.2,"statistiques":{"fiabilite":"haute"},
			 "model_stats":{"accuracy":0.91,"mape":8.5,"trend_direction":"up"}},
			{"predicted_date":"2024-03-02T00:00:00","predicted_value":98,"statistiques":{"fiabilite":"basse","tendance":-1}}
		]}`)
	}))

	f, err := c.PredictOrders(context.Background(), models.PredictionRequest{
		DateType: models.DatePeriod, StartDate: "2024-03-01", EndDate: "2024-03-02", Establishment: "E1",
	})
	require.NoError(t, err)

	assert.Equal(t, "period", got["dateType"])
	assert.Equal(t, "2024-03-01", got["date"])
	assert.Equal(t, []any{}, got["factors"])

	require.Len(t, f.Predictions, 2)
	p := f.Predictions[0]
	assert.Equal(t, "2024-03-01", p.Date)
	assert.Equal(t, 120.5, p.Value)
	require.NotNil(t, p.ConfidenceInterval)
	assert.Equal(t, models.Interval{Min: 100, Max: 140}, *p.ConfidenceInterval)
	assert.Equal(t, models.ReliabilityHigh, p.Reliability)
	require.NotNil(t, p.Trend)
	assert.Equal(t, 3.2, *p.Trend)

	p = f.Predictions[1]
	assert.Equal(t, "2024-03-02", p.Date)
	assert.Equal(t, 98.0, p.Value)
	assert.Equal(t, models.ReliabilityLow, p.Reliability)
	require.NotNil(t, p.Trend)
	assert.Equal(t, -1.0, *p.Trend)

	require.NotNil(t, f.ModelStats, "stats nested in the first prediction are lifted")
	assert.Equal(t, 0.91, f.ModelStats.Accuracy)
	assert.Equal(t, models.TrendUp, f.ModelStats.TrendDirection)
}

func TestPredictOrdersRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing predictions", `{"model_stats":{"accuracy":0.5}}`},
		{"negative value", `{"predictions":[{"date":"2024-03-01","prediction":-1}]}`},
		{"missing value", `{"predictions":[{"date":"2024-03-01"}]}`},
		{"bad date", `{"predictions":[{"date":"03/01/2024","prediction":1}]}`},
		{"inverted interval", `{"predictions":[{"date":"2024-03-01","prediction":1,"intervalle_confiance":{"min":5,"max":2}}]}`},
		{"not json", `<html>oops</html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, 200, tt.body)
			}))
			_, err := c.PredictOrders(context.Background(), models.PredictionRequest{DateType: models.DateSingle, StartDate: "2024-03-01"})
			require.Error(t, err)
			assert.Equal(t, KindParse, KindOf(err))
		})
	}
}

func TestModelStatsNormalized(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"predictions":[],"model_stats":{"accuracy":-0.4,"confidence_level":3,"trend_direction":"sideways"}}`)
	}))
	f, err := c.PredictOrders(context.Background(), models.PredictionRequest{DateType: models.DateSingle, StartDate: "2024-03-01"})
	require.NoError(t, err)
	require.NotNil(t, f.ModelStats)
	assert.Equal(t, 0.0, f.ModelStats.Accuracy)
	assert.Nil(t, f.ModelStats.ConfidenceLevel)
	assert.Empty(t, f.ModelStats.TrendDirection)
}

func TestHTTPErrorDetail(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		ctype      string
		body       string
		wantDetail string
	}{
		{"fastapi string detail", 400, "application/json", `{"detail":"Module invalide: x"}`, "Module invalide: x"},
		{"fastapi structured detail", 422, "application/json", `{"detail":[{"loc":["body"]}]}`, `[{"loc":["body"]}]`},
		{"html body", 502, "text/html", `<html><body><h1>Bad Gateway</h1></body></html>`, "Bad Gateway"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.ctype)
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			_, err := c.ListEstablishments(context.Background())
			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, KindHTTP, apiErr.Kind)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.wantDetail, apiErr.Detail)
		})
	}
}

func TestCancellationAndTimeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	t.Run("caller cancel is aborted", func(t *testing.T) {
		c := newTestClient(t, slow)
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()
		_, err := c.ListArticles(ctx)
		assert.True(t, IsAborted(err), "got %v", err)
	})

	t.Run("deadline is network", func(t *testing.T) {
		srv := httptest.NewServer(slow)
		t.Cleanup(srv.Close)
		c := New(Config{ForecastURL: srv.URL, Timeout: 30 * time.Millisecond})
		_, err := c.ListArticles(context.Background())
		assert.Equal(t, KindNetwork, KindOf(err))
	})
}

func TestValidatePredictionRequest(t *testing.T) {
	enabled := []string{"weather"}
	tests := []struct {
		name    string
		req     models.PredictionRequest
		wantErr bool
	}{
		{"single ok", models.PredictionRequest{DateType: models.DateSingle, StartDate: "2024-03-01"}, false},
		{"period ok", models.PredictionRequest{DateType: models.DatePeriod, StartDate: "2024-03-01", EndDate: "2024-03-01"}, false},
		{"period end before start", models.PredictionRequest{DateType: models.DatePeriod, StartDate: "2024-03-05", EndDate: "2024-03-01"}, true},
		{"period missing end", models.PredictionRequest{DateType: models.DatePeriod, StartDate: "2024-03-05"}, true},
		{"missing start", models.PredictionRequest{DateType: models.DateSingle}, true},
		{"bad start", models.PredictionRequest{DateType: models.DateSingle, StartDate: "01/03/2024"}, true},
		{"unknown date type", models.PredictionRequest{DateType: "week", StartDate: "2024-03-01"}, true},
		{"enabled factor", models.PredictionRequest{DateType: models.DateSingle, StartDate: "2024-03-01", Factors: []string{"weather"}}, false},
		{"disabled factor", models.PredictionRequest{DateType: models.DateSingle, StartDate: "2024-03-01", Factors: []string{"holidays"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePredictionRequest(tt.req, enabled)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, KindValidation, KindOf(err))
			assert.NotEmpty(t, AsError("predict", err).Message())
		})
	}
}

func TestFetchHistoricalPoint(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "3", q.Get("month"))
		assert.Equal(t, "1", q.Get("day"))
		assert.Equal(t, "E1", q.Get("establishment"))
		assert.Empty(t, q.Get("linenType"))
		writeJSON(w, 200, `{"value2024":110,"value2023":95}`)
	}))
	p, err := c.FetchHistoricalPoint(context.Background(), models.HistoricalQuery{Establishment: "E1", Month: 3, Day: 1})
	require.NoError(t, err)
	assert.Equal(t, models.HistoricalPoint{Value2024: 110, Value2023: 95}, *p)

	_, err = c.FetchHistoricalPoint(context.Background(), models.HistoricalQuery{Month: 13, Day: 1})
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestPredictPresencesRange(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, 200, `{"predictions":[{"period":"2024-W10","predicted_presences":42,"confidence_interval":[38,46]}]}`)
	}))

	for _, weeks := range []int{0, 53} {
		_, err := c.PredictPresences(context.Background(), weeks)
		assert.Equal(t, KindValidation, KindOf(err))
	}
	assert.Zero(t, calls.Load())

	got, err := c.PredictPresences(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, [2]float64{38, 46}, got[0].ConfidenceInterval)
}

func TestSeasonalTrendsRequiresTwelveMonths(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"data":[{"year":2023,"values":[1,2,3]}]}`)
	}))
	_, err := c.FetchSeasonalTrends(context.Background(), Scope{})
	assert.Equal(t, KindParse, KindOf(err))
}

func TestPerformanceOverview(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/performance/overview", r.URL.Path)
		writeJSON(w, 200, `{"models_metrics":[
			{"model_name":"Prédiction Commandes","timestamp":"2024-02-01T10:00:00","metrics":{"test_r2":0.8,"test_rmse":12,"test_mae":9}},
			{"model_name":"Gestion RH","timestamp":"2024-02-02 08:30:00","r2_score":0.6}
		],"last_update":"2024-02-03T12:00:00.123456"}`)
	}))
	o, err := c.FetchPerformanceOverview(context.Background())
	require.NoError(t, err)
	require.Len(t, o.Models, 2)
	assert.InDelta(t, 0.7, o.OverallPerformance, 1e-9)
	assert.Equal(t, 0.8, o.Models[0].R2Score)
	require.NotNil(t, o.Models[0].RMSE)
	assert.Equal(t, 12.0, *o.Models[0].RMSE)
	assert.Equal(t, 2024, o.LastUpdate.Year())
}

func TestTrainModelSlugs(t *testing.T) {
	var path string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		writeJSON(w, 200, `{"message":"Entraînement terminé"}`)
	}))
	for module, slug := range map[models.UploadModule]string{
		models.ModuleOrders:     "commandes",
		models.ModuleDeliveries: "livraisons",
		models.ModuleHR:         "rh",
	} {
		res, err := c.TrainModel(context.Background(), module)
		require.NoError(t, err)
		assert.Equal(t, "/api/performance/train-"+slug, path)
		assert.Equal(t, "Entraînement terminé", res.Message)
	}
	_, err := c.TrainModel(context.Background(), "payroll")
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestTrainModelRejectsNonObjectBody(t *testing.T) {
	for _, body := range []string{`["ok"]`, `"ok"`, `not json`} {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, 200, body)
		}))
		_, err := c.TrainModel(context.Background(), models.ModuleOrders)
		assert.Equal(t, KindParse, KindOf(err), body)
	}
}

func TestUploadModuleFilesMultipart(t *testing.T) {
	type part struct{ name, filename, value string }
	var parts []part
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mr, err := r.MultipartReader()
		require.NoError(t, err)
		for {
			p, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				break
			}
			require.NoError(t, err)
			b, _ := io.ReadAll(p)
			parts = append(parts, part{p.FormName(), p.FileName(), string(b)})
		}
		writeJSON(w, 200, `{"status":"success","message":"2 fichier(s) sauvegardé(s)","saved_files":["a.csv","b.csv"]}`)
	}))

	res, err := c.UploadModuleFiles(context.Background(), models.UploadJob{
		Module: models.ModuleOrders,
		Mode:   models.UploadFiles,
		Files: []models.FileRef{
			{Name: "a.csv", ContentType: "text/csv", Content: []byte("x,y\n1,2\n")},
			{Name: "b.csv", ContentType: "text/csv", Content: []byte("x,y\n3,4\n")},
		},
		RelativePaths: []string{"a.csv", "b.csv"},
	})
	require.NoError(t, err)
	assert.Equal(t, "2 fichier(s) sauvegardé(s)", res.Message)

	assert.Equal(t, []part{
		{"module", "", "orders"},
		{"is_folder", "", "false"},
		{"files", "a.csv", "x,y\n1,2\n"},
		{"paths", "", "a.csv"},
		{"files", "b.csv", "x,y\n3,4\n"},
		{"paths", "", "b.csv"},
	}, parts)
}

func TestLastLogisticFile(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, 200, `{"last_file":"LOGISTIQUE_2024_02.xlsx"}`)
		}))
		name, err := c.LastLogisticFile(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "LOGISTIQUE_2024_02.xlsx", name)
	})
	t.Run("404 means none", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, 404, `{"detail":"Aucun fichier logistique trouvé"}`)
		}))
		name, err := c.LastLogisticFile(context.Background())
		require.NoError(t, err)
		assert.Empty(t, name)
	})
}

func TestExportHistory(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/export/pdf", r.URL.Path)
		w.Header().Set("Content-Type", "application/pdf")
		io.WriteString(w, "%PDF-1.4 fake")
	}))
	blob, err := c.ExportHistory(context.Background(), ExportPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", blob.ContentType)
	assert.Equal(t, "historique_predictions.pdf", blob.Filename)

	_, err = c.ExportHistory(context.Background(), "docx")
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestCatalogWarmRetriesTransientFailures(t *testing.T) {
	var failures atomic.Int32
	failures.Store(2)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/articles" && failures.Add(-1) >= 0 {
			writeJSON(w, 503, `{"detail":"indisponible"}`)
			return
		}
		switch r.URL.Path {
		case "/api/establishments":
			writeJSON(w, 200, `{"establishments":["E1","E2"]}`)
		case "/api/linen-types":
			writeJSON(w, 200, `{"linenTypes":["Draps"]}`)
		case "/api/articles":
			writeJSON(w, 200, `{"articles":["Serviette"]}`)
		}
	}))

	cat := NewCatalog(c, time.Hour)
	cat.MaxElapsed = 10 * time.Second
	require.NoError(t, cat.Warm(context.Background()))
	snap := cat.Snapshot()
	assert.Equal(t, []string{"E1", "E2"}, snap.Establishments)
	assert.Equal(t, []string{"Serviette"}, cat.Articles())
}

func TestCatalogWarmStopsOnClientError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, 404, `{"detail":"not found"}`)
	}))
	cat := NewCatalog(c, time.Hour)
	err := cat.Warm(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindHTTP, KindOf(err))
	assert.LessOrEqual(t, calls.Load(), int32(3))
	assert.Empty(t, cat.Establishments())
}
