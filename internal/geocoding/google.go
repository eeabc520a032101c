package geocoding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/UnknownOlympus/compass/internal/models"
	"googlemaps.github.io/maps"
)

// GoogleProvider is a struct that holds the client for Google Maps API
// and a logger for logging purposes. It is used to interact with the
// Google Maps geocoding and places services.
type GoogleProvider struct {
	client GoogleAPIClient // client is the Google Maps API client
	log    *slog.Logger    // log is the logger for logging operations
}

// GoogleAPIClient is the subset of *maps.Client the provider uses.
type GoogleAPIClient interface {
	Geocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
	ReverseGeocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
	NearbySearch(ctx context.Context, r *maps.NearbySearchRequest) (maps.PlacesSearchResponse, error)
}

// NewGoogleProvider initializes a new GoogleProvider with the given client and logger.
func NewGoogleProvider(client GoogleAPIClient, log *slog.Logger) *GoogleProvider {
	return &GoogleProvider{client: client, log: log}
}

// Geocode returns the first Google Maps match for text.
func (gp *GoogleProvider) Geocode(ctx context.Context, text string) (*models.GeocodeResult, error) {
	if text == "" {
		return nil, ErrEmptyQuery
	}

	gp.log.DebugContext(ctx, "Geocoding using Google Maps", "text", text)

	req := maps.GeocodingRequest{Address: text}
	results, err := gp.client.Geocode(ctx, &req)
	if err != nil {
		return nil, fmt.Errorf("failed to geocode address: %w", err)
	}

	if len(results) == 0 {
		return nil, ErrEmptyResponse
	}
	loc := results[0].Geometry.Location

	return &models.GeocodeResult{
		Coordinates: models.Coordinates{Latitude: loc.Lat, Longitude: loc.Lng},
		Formatted:   results[0].FormattedAddress,
	}, nil
}

// Reverse returns the formatted address of the first Google Maps result at coords.
func (gp *GoogleProvider) Reverse(ctx context.Context, coords models.Coordinates) (string, error) {
	req := maps.GeocodingRequest{LatLng: &maps.LatLng{Lat: coords.Latitude, Lng: coords.Longitude}}
	results, err := gp.client.ReverseGeocode(ctx, &req)
	if err != nil {
		return "", fmt.Errorf("failed to reverse geocode: %w", err)
	}

	if len(results) == 0 || results[0].FormattedAddress == "" {
		return "", ErrEmptyResponse
	}

	return results[0].FormattedAddress, nil
}

// SearchPlaces runs a nearby search using the category as keyword. Google returns up to
// twenty results per page; the list is cut to the query limit.
func (gp *GoogleProvider) SearchPlaces(ctx context.Context, query PlacesQuery) ([]models.Place, error) {
	if query.Category == "" {
		return nil, ErrEmptyCategory
	}
	query = query.withDefaults()

	req := maps.NearbySearchRequest{
		Location: &maps.LatLng{Lat: query.Center.Latitude, Lng: query.Center.Longitude},
		Radius:   uint(query.Radius),
		Keyword:  string(query.Category),
	}
	resp, err := gp.client.NearbySearch(ctx, &req)
	if err != nil {
		return nil, fmt.Errorf("failed to search nearby places: %w", err)
	}

	results := resp.Results
	if len(results) > query.Limit {
		results = results[:query.Limit]
	}

	places := make([]models.Place, 0, len(results))
	for _, result := range results {
		name := result.Name
		if name == "" {
			name = models.UnnamedPlace
		}
		address := result.Vicinity
		if address == "" {
			address = result.FormattedAddress
		}
		if address == "" {
			address = models.UnknownAddress
		}

		places = append(places, models.Place{
			Name:    name,
			Address: address,
			Coordinates: models.Coordinates{
				Latitude:  result.Geometry.Location.Lat,
				Longitude: result.Geometry.Location.Lng,
			},
		})
	}

	return places, nil
}
