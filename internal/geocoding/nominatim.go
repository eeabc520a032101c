package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/UnknownOlympus/compass/internal/models"
	"github.com/paulmach/orb/geo"
)

// NominatimBaseURL -- public Nominatim endpoint.
const NominatimBaseURL = "https://nominatim.openstreetmap.org"

// nominatimUserAgent MUST include valid contact info per Nominatim usage policy:
// https://operations.osmfoundation.org/policies/nominatim/
const nominatimUserAgent = "Compass-Places-Service/1.0 (https://github.com/UnknownOlympus/compass)"

// NominatimProvider implements the Provider interface using OpenStreetMap's Nominatim API.
// This is a free geocoding service with usage limits (1 request/second for fair use).
type NominatimProvider struct {
	client  HTTPClient   // HTTP client for making requests
	baseURL string       // Base URL for the Nominatim API
	log     *slog.Logger // Logger for logging operations
}

// nominatimResult represents one search or reverse result from Nominatim.
type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Address     struct {
		Road        string `json:"road"`
		HouseNumber string `json:"house_number"`
	} `json:"address"`
	Error string `json:"error"`
}

// NewNominatimProvider creates a new Nominatim geocoding provider.
func NewNominatimProvider(baseURL string, timeout time.Duration, log *slog.Logger) *NominatimProvider {
	return NewNominatimProviderWithClient(&http.Client{Timeout: timeout}, baseURL, log)
}

// NewNominatimProviderWithClient creates a Nominatim provider with a custom HTTP client.
// Useful for testing with mocked HTTP clients.
func NewNominatimProviderWithClient(client HTTPClient, baseURL string, log *slog.Logger) *NominatimProvider {
	if baseURL == "" {
		baseURL = NominatimBaseURL
	}

	return &NominatimProvider{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
	}
}

// Geocode converts free text to coordinates.
//
// Uses a progressive fallback strategy:
// 1. Try the full text
// 2. Drop the last comma-separated component
// 3. Drop the last two components
// 4. Try the first component only
func (np *NominatimProvider) Geocode(ctx context.Context, text string) (*models.GeocodeResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyQuery
	}

	np.log.DebugContext(ctx, "Geocoding using Nominatim", "text", text)

	variations := generateAddressFallbacks(text)
	for idx, variation := range variations {
		result, err := np.geocodeSingle(ctx, variation)
		if err == nil {
			if idx > 0 {
				np.log.InfoContext(ctx, "Geocoded using fallback text",
					"original", text,
					"fallback", variation,
					"fallback_level", idx)
			}
			return result, nil
		}

		// Anything other than an empty result is final.
		if !errors.Is(err, ErrEmptyResponse) {
			return nil, err
		}

		np.log.DebugContext(ctx, "Text variation returned no results, trying fallback",
			"variation", variation,
			"fallback_level", idx)
	}

	np.log.WarnContext(ctx, "All fallbacks exhausted", "text", text, "variations_tried", len(variations))
	return nil, ErrEmptyResponse
}

// Reverse returns the display name Nominatim assigns to the point.
func (np *NominatimProvider) Reverse(ctx context.Context, coords models.Coordinates) (string, error) {
	params := url.Values{}
	params.Set("lat", formatFloat(coords.Latitude))
	params.Set("lon", formatFloat(coords.Longitude))
	params.Set("format", "json")

	body, err := np.get(ctx, "/reverse", params)
	if err != nil {
		return "", err
	}

	var result nominatimResult
	if err = json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to decode nominatim response: %w", err)
	}

	if result.Error != "" || result.DisplayName == "" {
		return "", ErrEmptyResponse
	}

	return result.DisplayName, nil
}

// SearchPlaces maps the category leaf (e.g. "atm" in "service.financial.atm") to an
// amenity search bounded by a box that encloses the query circle.
func (np *NominatimProvider) SearchPlaces(ctx context.Context, query PlacesQuery) ([]models.Place, error) {
	if query.Category == "" {
		return nil, ErrEmptyCategory
	}
	query = query.withDefaults()

	category := string(query.Category)
	amenity := category[strings.LastIndex(category, ".")+1:]
	bound := geo.NewBoundAroundPoint(query.Center.Point(), float64(query.Radius))

	params := url.Values{}
	params.Set("amenity", amenity)
	params.Set("viewbox", fmt.Sprintf("%s,%s,%s,%s",
		formatFloat(bound.Left()), formatFloat(bound.Top()), formatFloat(bound.Right()), formatFloat(bound.Bottom())))
	params.Set("bounded", "1")
	params.Set("format", "json")
	params.Set("addressdetails", "1")
	params.Set("limit", strconv.Itoa(query.Limit))

	body, err := np.get(ctx, "/search", params)
	if err != nil {
		return nil, err
	}

	var results []nominatimResult
	if err = json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("failed to decode nominatim response: %w", err)
	}

	places := make([]models.Place, 0, len(results))
	for _, result := range results {
		coords, errCoords := result.coordinates()
		if errCoords != nil {
			np.log.WarnContext(ctx, "Skipping place with invalid coordinates", "error", errCoords)
			continue
		}

		name := result.Name
		if name == "" {
			name = models.UnnamedPlace
		}
		address := strings.TrimSpace(result.Address.Road + " " + result.Address.HouseNumber)
		if address == "" {
			address = result.DisplayName
		}
		if address == "" {
			address = models.UnknownAddress
		}

		places = append(places, models.Place{Name: name, Address: address, Coordinates: coords})
	}

	return places, nil
}

// geocodeSingle performs a single search request without fallback logic.
func (np *NominatimProvider) geocodeSingle(ctx context.Context, text string) (*models.GeocodeResult, error) {
	params := url.Values{}
	params.Set("q", text)
	params.Set("format", "json")
	params.Set("limit", "1")

	body, err := np.get(ctx, "/search", params)
	if err != nil {
		return nil, err
	}

	var results []nominatimResult
	if err = json.Unmarshal(body, &results); err != nil {
		np.log.ErrorContext(ctx, "Failed to parse Nominatim response", "error", err, "body", string(body))
		return nil, fmt.Errorf("failed to decode nominatim response: %w", err)
	}

	if len(results) == 0 {
		return nil, ErrEmptyResponse
	}

	coords, err := results[0].coordinates()
	if err != nil {
		return nil, err
	}

	return &models.GeocodeResult{Coordinates: coords, Formatted: results[0].DisplayName}, nil
}

func (np *NominatimProvider) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	reqURL, err := url.Parse(np.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	reqURL.RawQuery = params.Encode()

	np.log.DebugContext(ctx, "Nominatim request URL", "url", reqURL.String())

	return getJSON(ctx, np.client, np.log, "nominatim", reqURL, map[string]string{
		"User-Agent":      nominatimUserAgent,
		"Accept-Language": "en",
	})
}

func (r nominatimResult) coordinates() (models.Coordinates, error) {
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("%w: invalid latitude: %s", ErrInvalidCoords, r.Lat)
	}
	lon, err := strconv.ParseFloat(r.Lon, 64)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("%w: invalid longitude: %s", ErrInvalidCoords, r.Lon)
	}

	return models.Coordinates{Latitude: lat, Longitude: lon}, nil
}

// generateAddressFallbacks creates a list of progressively simpler text variations.
func generateAddressFallbacks(text string) []string {
	seen := make(map[string]bool)
	variations := []string{}

	addVariation := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			variations = append(variations, v)
		}
	}

	addVariation(text)

	parts := strings.Split(text, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	if len(parts) > 1 {
		addVariation(strings.Join(parts[:len(parts)-1], ", "))

		const lenComponents = 2
		if len(parts) > lenComponents {
			addVariation(strings.Join(parts[:len(parts)-2], ", "))
		}

		addVariation(parts[0])
	}

	return variations
}
