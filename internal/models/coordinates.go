package models

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Coordinates represents a geographical point defined by its longitude and latitude.
type Coordinates struct {
	Latitude  float64 `json:"lat"` // Latitude of the geographical point.
	Longitude float64 `json:"lon"` // Longitude of the geographical point.
}

// Valid reports whether the point lies inside the WGS84 latitude and longitude ranges.
func (c Coordinates) Valid() bool {
	const maxLat, maxLon = 90, 180
	return c.Latitude >= -maxLat && c.Latitude <= maxLat && c.Longitude >= -maxLon && c.Longitude <= maxLon
}

// Point converts the coordinates into an orb.Point (longitude first).
func (c Coordinates) Point() orb.Point {
	return orb.Point{c.Longitude, c.Latitude}
}

// FromPoint builds Coordinates from an orb.Point.
func FromPoint(p orb.Point) Coordinates {
	return Coordinates{Latitude: p.Lat(), Longitude: p.Lon()}
}

func (c Coordinates) String() string {
	return fmt.Sprintf("%g,%g", c.Latitude, c.Longitude)
}
