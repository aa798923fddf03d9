package mapview

import "github.com/mr1hm/go-disaster-map/internal/models"

type Viewport struct {
	Center [2]float64 `json:"center"` // [lat, lng]
	Zoom   int        `json:"zoom"`
}

func DefaultViewport() Viewport {
	return Viewport{Center: [2]float64{40.7128, -74.0060}, Zoom: DefaultZoom}
}

// Focus pans to the event at the fixed selection zoom.
func Focus(e models.DisasterEvent) Viewport {
	return Viewport{Center: [2]float64{e.Location.Lat, e.Location.Lng}, Zoom: FocusZoom}
}

type TileLayer struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Attribution string `json:"attribution"`
	MaxZoom     int    `json:"maxZoom"`
	Default     bool   `json:"default,omitempty"`
}

func BaseLayers() []TileLayer {
	return []TileLayer{
		{
			Name:        "satellite",
			URL:         "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}",
			Attribution: "© Esri — Source: Esri, i-cubed, USDA, USGS, AEX, GeoEye, Getmapping, Aerogrid, IGN, IGP, UPR-EGP, and the GIS User Community",
			MaxZoom:     19,
			Default:     true,
		},
		{
			Name:        "street",
			URL:         "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
			Attribution: "© OpenStreetMap contributors",
			MaxZoom:     19,
		},
		{
			Name:        "terrain",
			URL:         "https://{s}.tile.opentopomap.org/{z}/{x}/{y}.png",
			Attribution: "© OpenTopoMap (CC-BY-SA)",
			MaxZoom:     17,
		},
		{
			Name:        "dark",
			URL:         "https://{s}.basemaps.cartocdn.com/dark_all/{z}/{x}/{y}{r}.png",
			Attribution: "© CartoDB",
			MaxZoom:     19,
		},
	}
}

type LegendItem struct {
	Severity models.Severity `json:"severity"`
	Color    string          `json:"color"`
}

// Legend lists severities from most to least urgent.
func Legend() []LegendItem {
	levels := []models.Severity{models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow}
	items := make([]LegendItem, len(levels))
	for i, s := range levels {
		items[i] = LegendItem{Severity: s, Color: Color(s)}
	}
	return items
}
