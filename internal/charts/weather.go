package charts

import (
	"github.com/mikana/dashboard/internal/models"
)

// ImpactBand is the textual reading of a correlation coefficient.
type ImpactBand string

const (
	StrongPositive   ImpactBand = "strong positive"
	ModeratePositive ImpactBand = "moderate positive"
	Weak             ImpactBand = "weak"
	ModerateNegative ImpactBand = "moderate negative"
	StrongNegative   ImpactBand = "strong negative"
)

// Label is the French wording shown on the dashboard.
func (b ImpactBand) Label() string {
	switch b {
	case StrongPositive:
		return "Forte corrélation positive"
	case ModeratePositive:
		return "Corrélation positive modérée"
	case ModerateNegative:
		return "Corrélation négative modérée"
	case StrongNegative:
		return "Forte corrélation négative"
	}
	return "Corrélation faible"
}

// ClassifyImpact maps c in [-1, 1] to exactly one band. Bands are closed
// toward the extremes: 0.7 is strong, 0.3 moderate, -0.3 moderate negative.
func ClassifyImpact(c float64) ImpactBand {
	switch {
	case c >= 0.7:
		return StrongPositive
	case c >= 0.3:
		return ModeratePositive
	case c <= -0.7:
		return StrongNegative
	case c <= -0.3:
		return ModerateNegative
	}
	return Weak
}

type ImpactBar struct {
	Factor string     `json:"factor"`
	Label  string     `json:"label"`
	Impact float64    `json:"impact"`
	Band   ImpactBand `json:"band"`
	Text   string     `json:"text"`
	Hex    string     `json:"color"`
}

// WeatherImpact returns the temperature, precipitation and humidity bars in
// that order.
func WeatherImpact(w models.WeatherImpact) []ImpactBar {
	bar := func(factor, label string, f models.ImpactFactor) ImpactBar {
		band := ClassifyImpact(f.Impact)
		c := ColorBlue
		if f.Impact < 0 {
			c = ColorRed
		}
		return ImpactBar{Factor: factor, Label: label, Impact: f.Impact, Band: band, Text: band.Label(), Hex: Hex(c)}
	}
	return []ImpactBar{
		bar("temperature", "Température", w.Temperature),
		bar("precipitation", "Précipitations", w.Precipitation),
		bar("humidity", "Humidité", w.Humidity),
	}
}
