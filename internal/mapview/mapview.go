// Package mapview holds the server-side state of a map widget: viewport, tile layer,
// the user's own marker and a clearable layer of markers.
package mapview

import (
	"sync"

	"github.com/UnknownOlympus/compass/internal/models"
	"github.com/google/uuid"
)

// Initial viewport: a low-zoom world view.
const (
	InitialZoom = 2
	FocusZoom   = 13
)

// TileLayer describes the raster tiles a client should draw under the markers.
type TileLayer struct {
	URLTemplate string `json:"url"`
	Attribution string `json:"attribution"`
	MaxZoom     int    `json:"max_zoom"`
}

// SatelliteLayer is the Esri World Imagery layer.
var SatelliteLayer = TileLayer{
	URLTemplate: "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}",
	Attribution: "Tiles © Esri",
	MaxZoom:     18,
}

// View is the visible center and zoom level.
type View struct {
	Center models.Coordinates `json:"center"`
	Zoom   int                `json:"zoom"`
}

// Snapshot is an immutable copy of the map state.
type Snapshot struct {
	View       View            `json:"view"`
	Tiles      TileLayer       `json:"tiles"`
	UserMarker *models.Marker  `json:"user_marker,omitempty"`
	Markers    []models.Marker `json:"markers"`
}

// Map is safe for concurrent use.
type Map struct {
	mu      sync.RWMutex
	tiles   TileLayer
	view    View
	user    *models.Marker
	markers []models.Marker
}

// New returns a map centered on (0,0) at InitialZoom with the given tile layer attached.
func New(tiles TileLayer) *Map {
	return &Map{
		tiles:   tiles,
		view:    View{Zoom: InitialZoom},
		markers: []models.Marker{},
	}
}

// SetView moves the viewport. Zoom is clamped to the tile layer's range.
func (m *Map) SetView(center models.Coordinates, zoom int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.view = View{Center: center, Zoom: max(0, min(zoom, m.tiles.MaxZoom))}
}

// Center returns the current viewport center.
func (m *Map) Center() models.Coordinates {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.view.Center
}

// SetUserMarker places the user's own marker. It sits outside the marker layer and
// survives ClearMarkers.
func (m *Map) SetUserMarker(coords models.Coordinates, label string) models.Marker {
	marker := models.Marker{ID: uuid.New(), Kind: models.MarkerUser, Coordinates: coords, Label: label}

	m.mu.Lock()
	m.user = &marker
	m.mu.Unlock()

	return marker
}

// ClearMarkers removes every marker from the layer, whatever its kind.
func (m *Map) ClearMarkers() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.markers = []models.Marker{}
}

// AddMarker appends a marker to the layer.
func (m *Map) AddMarker(coords models.Coordinates, label string, kind models.MarkerKind) models.Marker {
	marker := models.Marker{ID: uuid.New(), Kind: kind, Coordinates: coords, Label: label}

	m.mu.Lock()
	m.markers = append(m.markers, marker)
	m.mu.Unlock()

	return marker
}

// Markers returns a copy of the layer.
func (m *Map) Markers() []models.Marker {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Marker, len(m.markers))
	copy(out, m.markers)
	return out
}

// Snapshot copies the whole map state.
func (m *Map) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		View:    m.view,
		Tiles:   m.tiles,
		Markers: make([]models.Marker, len(m.markers)),
	}
	copy(snap.Markers, m.markers)
	if m.user != nil {
		user := *m.user
		snap.UserMarker = &user
	}

	return snap
}
