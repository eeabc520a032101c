package geocoding

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/UnknownOlympus/compass/internal/models"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// GeoapifyBaseURL -- Geoapify API base URL.
const GeoapifyBaseURL = "https://api.geoapify.com"

// Geoapify API paths.
const (
	geoapifySearchPath  = "/v1/geocode/search"
	geoapifyReversePath = "/v1/geocode/reverse"
	geoapifyPlacesPath  = "/v2/places"
)

// GeoapifyProvider implements Provider using the Geoapify geocoding and places APIs.
// All responses are GeoJSON feature collections.
type GeoapifyProvider struct {
	client  HTTPClient   // HTTP client for making requests
	baseURL string       // Base URL for the Geoapify API
	apiKey  string       // API key
	log     *slog.Logger // Logger for logging operations
}

// NewGeoapifyProvider creates a new Geoapify provider with its own HTTP client.
func NewGeoapifyProvider(apiKey, baseURL string, timeout time.Duration, log *slog.Logger) *GeoapifyProvider {
	return NewGeoapifyProviderWithClient(&http.Client{Timeout: timeout}, apiKey, baseURL, log)
}

// NewGeoapifyProviderWithClient allows injecting custom HTTP client.
func NewGeoapifyProviderWithClient(client HTTPClient, apiKey, baseURL string, log *slog.Logger) *GeoapifyProvider {
	if baseURL == "" {
		baseURL = GeoapifyBaseURL
	}

	return &GeoapifyProvider{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		log:     log,
	}
}

// Geocode returns the coordinates and formatted address of the first match for text.
func (gp *GeoapifyProvider) Geocode(ctx context.Context, text string) (*models.GeocodeResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyQuery
	}

	gp.log.DebugContext(ctx, "Geocoding using Geoapify", "text", text)

	params := url.Values{}
	params.Set("text", text)

	fc, err := gp.fetch(ctx, geoapifySearchPath, params)
	if err != nil {
		return nil, err
	}
	if len(fc.Features) == 0 {
		return nil, ErrEmptyResponse
	}

	feature := fc.Features[0]
	point, ok := feature.Geometry.(orb.Point)
	if !ok {
		return nil, fmt.Errorf("%w: expected point geometry, got %T", ErrInvalidCoords, feature.Geometry)
	}

	return &models.GeocodeResult{
		Coordinates: models.FromPoint(point),
		Formatted:   stringProp(feature.Properties, "formatted", text),
	}, nil
}

// Reverse returns the formatted address of the first feature at coords.
func (gp *GeoapifyProvider) Reverse(ctx context.Context, coords models.Coordinates) (string, error) {
	gp.log.DebugContext(ctx, "Reverse geocoding using Geoapify", "lat", coords.Latitude, "lon", coords.Longitude)

	params := url.Values{}
	params.Set("lat", formatFloat(coords.Latitude))
	params.Set("lon", formatFloat(coords.Longitude))

	fc, err := gp.fetch(ctx, geoapifyReversePath, params)
	if err != nil {
		return "", err
	}
	if len(fc.Features) == 0 {
		return "", ErrEmptyResponse
	}

	formatted := stringProp(fc.Features[0].Properties, "formatted", "")
	if formatted == "" {
		return "", ErrEmptyResponse
	}

	return formatted, nil
}

// SearchPlaces queries the places endpoint with a circle filter around the query center.
// Features without a point geometry are skipped.
func (gp *GeoapifyProvider) SearchPlaces(ctx context.Context, query PlacesQuery) ([]models.Place, error) {
	if query.Category == "" {
		return nil, ErrEmptyCategory
	}
	query = query.withDefaults()

	params := url.Values{}
	params.Set("categories", string(query.Category))
	params.Set("filter", fmt.Sprintf("circle:%s,%s,%d",
		formatFloat(query.Center.Longitude), formatFloat(query.Center.Latitude), query.Radius))
	params.Set("limit", fmt.Sprintf("%d", query.Limit))

	fc, err := gp.fetch(ctx, geoapifyPlacesPath, params)
	if err != nil {
		return nil, err
	}

	places := make([]models.Place, 0, len(fc.Features))
	for _, feature := range fc.Features {
		point, ok := feature.Geometry.(orb.Point)
		if !ok {
			gp.log.WarnContext(ctx, "Skipping place without point geometry", "type", fmt.Sprintf("%T", feature.Geometry))
			continue
		}
		places = append(places, placeFromProperties(feature.Properties, point))
	}

	gp.log.DebugContext(ctx, "Geoapify places found", "category", query.Category, "count", len(places))

	return places, nil
}

// placeFromProperties builds a Place, falling back to address_line1 then formatted for the address.
func placeFromProperties(props geojson.Properties, point orb.Point) models.Place {
	name := stringProp(props, "name", models.UnnamedPlace)

	address := stringProp(props, "address_line1", "")
	if address == "" {
		address = stringProp(props, "formatted", models.UnknownAddress)
	}

	return models.Place{Name: name, Address: address, Coordinates: models.FromPoint(point)}
}

// stringProp returns the property as a string, or def when it is missing, empty or not a string.
func stringProp(props geojson.Properties, key, def string) string {
	if value, ok := props[key].(string); ok && value != "" {
		return value
	}

	return def
}

func (gp *GeoapifyProvider) fetch(ctx context.Context, path string, params url.Values) (*geojson.FeatureCollection, error) {
	reqURL, err := url.Parse(gp.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	params.Set("apiKey", gp.apiKey)
	reqURL.RawQuery = params.Encode()

	body, err := getJSON(ctx, gp.client, gp.log, "geoapify", reqURL, nil)
	if err != nil {
		return nil, err
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		gp.log.ErrorContext(ctx, "Failed to parse Geoapify response", "error", err, "body", string(body))
		return nil, fmt.Errorf("failed to decode geoapify response: %w", err)
	}

	return fc, nil
}
