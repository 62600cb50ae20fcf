package forecastapi

import (
	"context"
	"fmt"
	"math"
	"net/url"

	"github.com/mikana/dashboard/internal/models"
)

// Scope narrows the analytics endpoints to one establishment and linen type.
// Empty fields mean all.
type Scope struct {
	Establishment string
	LinenType     string
}

func (s Scope) query() url.Values {
	q := url.Values{}
	if s.Establishment != "" {
		q.Set("establishment", s.Establishment)
	}
	if s.LinenType != "" {
		q.Set("linenType", s.LinenType)
	}
	return q
}

func (c *Client) FetchSeasonalTrends(ctx context.Context, scope Scope) (*models.SeasonalTrends, error) {
	const op = "seasonal-trends"
	var resp struct {
		Data *[]models.YearSeries `json:"data"`
	}
	if err := c.getJSON(ctx, serviceForecast, op, "/api/seasonal-trends", scope.query(), &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, parseErrorf(op, "missing data")
	}
	for _, ys := range *resp.Data {
		if len(ys.Values) != 12 {
			return nil, parseErrorf(op, "year %d has %d monthly values", ys.Year, len(ys.Values))
		}
	}
	return &models.SeasonalTrends{Data: *resp.Data}, nil
}

func (c *Client) FetchWeatherImpact(ctx context.Context, scope Scope) (*models.WeatherImpact, error) {
	const op = "weather-impact"
	var resp struct {
		Temperature   *models.ImpactFactor `json:"temperature"`
		Precipitation *models.ImpactFactor `json:"precipitation"`
		Humidity      *models.ImpactFactor `json:"humidity"`
	}
	if err := c.getJSON(ctx, serviceForecast, op, "/api/weather-impact", scope.query(), &resp); err != nil {
		return nil, err
	}
	if resp.Temperature == nil || resp.Precipitation == nil || resp.Humidity == nil {
		return nil, parseErrorf(op, "missing weather factor")
	}
	for name, f := range map[string]*models.ImpactFactor{
		"temperature":   resp.Temperature,
		"precipitation": resp.Precipitation,
		"humidity":      resp.Humidity,
	} {
		if math.IsNaN(f.Impact) || f.Impact < -1 || f.Impact > 1 {
			return nil, parseErrorf(op, "%s impact %v out of range", name, f.Impact)
		}
	}
	return &models.WeatherImpact{
		Temperature:   *resp.Temperature,
		Precipitation: *resp.Precipitation,
		Humidity:      *resp.Humidity,
	}, nil
}

// PredictPresences forecasts weekly workforce presence for the next weeks.
func (c *Client) PredictPresences(ctx context.Context, weeks int) ([]models.PresenceForecast, error) {
	const op = "predict-sarima"
	if weeks < 1 || weeks > 52 {
		return nil, ValidationError(op, fmt.Sprintf("Le nombre de semaines doit être compris entre 1 et 52 (reçu %d).", weeks))
	}
	var resp struct {
		Predictions *[]models.PresenceForecast `json:"predictions"`
	}
	in := struct {
		Weeks int `json:"weeks"`
	}{weeks}
	if err := c.postJSON(ctx, serviceForecast, op, "/api/predict-sarima", in, &resp); err != nil {
		return nil, err
	}
	if resp.Predictions == nil {
		return nil, parseErrorf(op, "missing predictions")
	}
	return *resp.Predictions, nil
}
