package mapview

import (
	"fmt"
	"strings"

	"github.com/homeonmap/backend/internal/models"
)

// Preset is a named place the map can jump to.
type Preset struct {
	Name   string
	Center models.Pin
}

// DefaultCenter and DefaultZoom frame the tricity area.
var DefaultCenter = models.Pin{Lat: 30.7333, Lng: 76.7794}

const DefaultZoom = 12

var presets = []Preset{
	{Name: "Chandigarh", Center: DefaultCenter},
	{Name: "Mohali", Center: models.Pin{Lat: 30.7046, Lng: 76.7179}},
	{Name: "Panchkula", Center: models.Pin{Lat: 30.6942, Lng: 76.8606}},
	{Name: "Zirakpur", Center: models.Pin{Lat: 30.6425, Lng: 76.8173}},
	{Name: "Kharar", Center: models.Pin{Lat: 30.7460, Lng: 76.6450}},
	{Name: "New Chandigarh", Center: models.Pin{Lat: 30.8048, Lng: 76.7060}},
}

// Presets returns the gazetteer in display order.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// LookupPreset finds a preset by name, ignoring case and surrounding space.
func LookupPreset(name string) (Preset, error) {
	want := strings.TrimSpace(name)
	for _, p := range presets {
		if strings.EqualFold(p.Name, want) {
			return p, nil
		}
	}
	return Preset{}, fmt.Errorf("unknown place %q", name)
}
