package geocoding

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"googlemaps.github.io/maps"
)

// ProviderType represents the type of geocoding provider.
type ProviderType string

const (
	// ProviderTypeGeoapify represents the Geoapify geocoding and places APIs.
	ProviderTypeGeoapify ProviderType = "geoapify"
	// ProviderTypeGoogle represents Google Maps geocoding and places APIs.
	ProviderTypeGoogle ProviderType = "google"
	// ProviderTypeNominatim represents OpenStreetMap Nominatim.
	ProviderTypeNominatim ProviderType = "nominatim"
)

// ProviderConfig holds configuration for creating a geocoding provider.
type ProviderConfig struct {
	Type    ProviderType  // Type of provider to create
	APIKey  string        // API key (Geoapify and Google)
	BaseURL string        // Base URL override (Geoapify and Nominatim); empty means the public endpoint
	Timeout time.Duration // HTTP timeout per request
	Logger  *slog.Logger  // Logger for the provider
}

// NewProvider creates a geocoding provider based on the provided configuration.
// It applies the Factory pattern to decouple provider instantiation from business logic.
//
// Supported provider types:
// - "geoapify": Geoapify geocoding and places (requires API key)
// - "google": Google Maps geocoding and nearby search (requires API key)
// - "nominatim": OpenStreetMap Nominatim (free, no API key required)
//
// Returns an error if the provider type is unsupported or if provider creation fails.
func NewProvider(config ProviderConfig) (Provider, error) {
	switch config.Type {
	case ProviderTypeGeoapify:
		return newGeoapifyProvider(config)
	case ProviderTypeGoogle:
		return newGoogleProvider(config)
	case ProviderTypeNominatim:
		return NewNominatimProvider(config.BaseURL, config.Timeout, config.Logger), nil
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", config.Type)
	}
}

func newGeoapifyProvider(config ProviderConfig) (Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("API key is required for Geoapify provider")
	}

	return NewGeoapifyProvider(config.APIKey, config.BaseURL, config.Timeout, config.Logger), nil
}

// newGoogleProvider creates a Google Maps provider.
func newGoogleProvider(config ProviderConfig) (Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("API key is required for Google provider")
	}

	client, err := maps.NewClient(maps.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Maps client: %w", err)
	}

	return NewGoogleProvider(client, config.Logger), nil
}
