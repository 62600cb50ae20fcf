// Package features holds the switches for affordances that exist in the
// dashboard but are not always offered to operators.
package features

import "slices"

// Factor is an additional forecasting factor the prediction form can offer.
type Factor struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Enabled bool   `json:"enabled"`
}

// Capabilities is the single source of truth for disabled-feature affordances.
type Capabilities struct {
	FolderUpload     bool     `json:"folderUpload"`
	MaintenanceRoute bool     `json:"maintenanceRoute"`
	Factors          []Factor `json:"factors"`
}

// KnownFactors lists every factor tag the forecast form knows about.
var KnownFactors = []Factor{
	{ID: "weather", Label: "Météo"},
	{ID: "holidays", Label: "Jours fériés"},
	{ID: "season", Label: "Saisonnalité"},
}

// Default returns the capabilities currently shipped: folder upload and the
// maintenance page are off and no additional factor is enabled.
func Default() Capabilities {
	return WithFactors(nil)
}

// WithFactors returns the default capabilities with the given factor tags
// enabled. Unknown tags are ignored.
func WithFactors(enabled []string) Capabilities {
	factors := make([]Factor, len(KnownFactors))
	for i, f := range KnownFactors {
		f.Enabled = slices.Contains(enabled, f.ID)
		factors[i] = f
	}
	return Capabilities{Factors: factors}
}

// EnabledFactors returns the enabled factor tags in declaration order.
func (c Capabilities) EnabledFactors() []string {
	var ids []string
	for _, f := range c.Factors {
		if f.Enabled {
			ids = append(ids, f.ID)
		}
	}
	return ids
}

func (c Capabilities) FactorEnabled(id string) bool {
	for _, f := range c.Factors {
		if f.ID == id {
			return f.Enabled
		}
	}
	return false
}
