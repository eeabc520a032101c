package geocoding

import (
	"context"
	"errors"
	"net/http"

	"github.com/UnknownOlympus/compass/internal/models"
)

// Geocoder converts between free-text locations and coordinates.
type Geocoder interface {
	// Geocode returns the first match for the query text.
	Geocode(ctx context.Context, text string) (*models.GeocodeResult, error)
	// Reverse returns the formatted address of the first feature at the point.
	Reverse(ctx context.Context, coords models.Coordinates) (string, error)
}

// PlacesSearcher looks up points of interest around a center point.
type PlacesSearcher interface {
	SearchPlaces(ctx context.Context, query PlacesQuery) ([]models.Place, error)
}

// Provider is a full geocoding backend: forward, reverse and places search.
type Provider interface {
	Geocoder
	PlacesSearcher
}

// IPLocator resolves an approximate position from an IP address.
type IPLocator interface {
	Locate(ctx context.Context, ip string) (*models.Coordinates, error)
}

// HTTPClient defines the interface for making HTTP requests.
// This allows for easy mocking in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Places search defaults.
const (
	DefaultRadius = 5000
	DefaultLimit  = 10
)

// PlacesQuery describes a circular places search.
type PlacesQuery struct {
	Category models.Category
	Center   models.Coordinates
	Radius   int // meters
	Limit    int
}

// withDefaults fills unset radius and limit.
func (q PlacesQuery) withDefaults() PlacesQuery {
	if q.Radius <= 0 {
		q.Radius = DefaultRadius
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	return q
}

// Errors shared by all providers.
var (
	ErrEmptyResponse = errors.New("geocoding API returned empty response")
	ErrInvalidCoords = errors.New("geocoding API returned invalid coordinates")
	ErrUnauthorized  = errors.New("geocoding API unauthorized (invalid API key)")
	ErrEmptyQuery    = errors.New("empty geocoding query")
	ErrEmptyCategory = errors.New("empty places category")
)
