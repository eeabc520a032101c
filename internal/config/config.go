package config

import (
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the configuration settings for the places service.
//
// Fields:
// - Env: The current environment (e.g., local, development, production).
// - HTTPPort: The port for the public JSON and websocket API.
// - HealthPort: The port for the monitoring server (/healthz, /metrics).
// - Provider: Which geocoding and places backend to use and how to reach it.
// - IPInfoURL: Base URL of the IP geolocation service used as a fallback.
// - LookupTimeout: Upper bound for every outbound lookup.
// - SessionTTL: Idle time after which a map session is evicted.
// - DefaultCategory: The category plotted right after a session is located.
type Config struct {
	Env             string         // Env is the current environment: local, development, production.
	HTTPPort        int            // HTTPPort is the public API port.
	HealthPort      int            // HealthPort is the monitoring server port.
	Provider        ProviderConfig // Provider holds the geocoding provider settings.
	IPInfoURL       string         // IPInfoURL is the ipinfo.io base URL.
	LookupTimeout   time.Duration  // LookupTimeout bounds each outbound request.
	SessionTTL      time.Duration  // SessionTTL is the idle eviction threshold.
	DefaultCategory string         // DefaultCategory is plotted on bootstrap.
}

// ProviderConfig struct holds the geocoding provider selection.
type ProviderConfig struct {
	Type    string // Type is geoapify, google or nominatim.
	APIKey  string // APIKey is required for geoapify and google.
	BaseURL string // BaseURL overrides the provider's public endpoint.
}

// MustLoad reads the configuration from the environment (and an optional .env file).
func MustLoad() *Config {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("COMPASS")
	v.AutomaticEnv()

	v.SetDefault("env", "production")
	v.SetDefault("http_port", "8000")
	v.SetDefault("health_port", "8080")
	v.SetDefault("provider_type", "geoapify")
	v.SetDefault("provider_key", "")
	v.SetDefault("provider_url", "")
	v.SetDefault("ipinfo_url", "https://ipinfo.io")
	v.SetDefault("lookup_timeout", "10s")
	v.SetDefault("session_ttl", "30m")
	v.SetDefault("default_category", "service.financial.atm")

	httpPort, err := strconv.Atoi(v.GetString("http_port"))
	if err != nil {
		panic("failed to parse port for api server from configuration")
	}

	healthPort, err := strconv.Atoi(v.GetString("health_port"))
	if err != nil {
		panic("failed to parse port for monitoring server from configuration")
	}

	lookupTimeout, err := time.ParseDuration(v.GetString("lookup_timeout"))
	if err != nil {
		panic("failed to parse lookup timeout from configuration")
	}

	sessionTTL, err := time.ParseDuration(v.GetString("session_ttl"))
	if err != nil {
		panic("failed to parse session ttl from configuration")
	}

	return &Config{
		Env:        v.GetString("env"),
		HTTPPort:   httpPort,
		HealthPort: healthPort,
		Provider: ProviderConfig{
			Type:    v.GetString("provider_type"),
			APIKey:  v.GetString("provider_key"),
			BaseURL: v.GetString("provider_url"),
		},
		IPInfoURL:       v.GetString("ipinfo_url"),
		LookupTimeout:   lookupTimeout,
		SessionTTL:      sessionTTL,
		DefaultCategory: v.GetString("default_category"),
	}
}
