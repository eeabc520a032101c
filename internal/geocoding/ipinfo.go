package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/UnknownOlympus/compass/internal/models"
)

// IPInfoBaseURL -- ipinfo.io API base URL.
const IPInfoBaseURL = "https://ipinfo.io"

// IPInfoLocator implements IPLocator using ipinfo.io.
type IPInfoLocator struct {
	client  HTTPClient
	baseURL string
	log     *slog.Logger
}

type ipinfoResponse struct {
	IP      string `json:"ip"`
	City    string `json:"city"`
	Country string `json:"country"`
	Loc     string `json:"loc"` // "lat,lon"
	Bogon   bool   `json:"bogon"`
}

// NewIPInfoLocator creates an ipinfo.io locator with its own HTTP client.
func NewIPInfoLocator(baseURL string, timeout time.Duration, log *slog.Logger) *IPInfoLocator {
	return NewIPInfoLocatorWithClient(&http.Client{Timeout: timeout}, baseURL, log)
}

// NewIPInfoLocatorWithClient allows injecting custom HTTP client.
func NewIPInfoLocatorWithClient(client HTTPClient, baseURL string, log *slog.Logger) *IPInfoLocator {
	if baseURL == "" {
		baseURL = IPInfoBaseURL
	}

	return &IPInfoLocator{client: client, baseURL: strings.TrimRight(baseURL, "/"), log: log}
}

// Locate returns the position ipinfo.io associates with ip. Empty, private and loopback
// addresses query the caller's own address instead.
func (il *IPInfoLocator) Locate(ctx context.Context, ip string) (*models.Coordinates, error) {
	path := "/json"
	if isPublicIP(ip) {
		path = "/" + ip + "/json"
	}

	reqURL, err := url.Parse(il.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	body, err := getJSON(ctx, il.client, il.log, "ipinfo", reqURL, nil)
	if err != nil {
		return nil, err
	}

	var resp ipinfoResponse
	if err = json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode ipinfo response: %w", err)
	}

	coords, err := parseLoc(resp.Loc)
	if err != nil {
		return nil, err
	}

	il.log.DebugContext(ctx, "IP location found", "ip", resp.IP, "city", resp.City, "country", resp.Country)

	return coords, nil
}

// parseLoc parses the "lat,lon" string ipinfo.io returns.
func parseLoc(loc string) (*models.Coordinates, error) {
	const locParts = 2

	parts := strings.Split(loc, ",")
	if len(parts) != locParts {
		return nil, fmt.Errorf("%w: malformed loc %q", ErrInvalidCoords, loc)
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid latitude: %s", ErrInvalidCoords, parts[0])
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid longitude: %s", ErrInvalidCoords, parts[1])
	}

	coords := models.Coordinates{Latitude: lat, Longitude: lon}
	if !coords.Valid() {
		return nil, fmt.Errorf("%w: out of range %q", ErrInvalidCoords, loc)
	}

	return &coords, nil
}

func isPublicIP(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}

	return !parsed.IsLoopback() && !parsed.IsPrivate() && !parsed.IsUnspecified() && !parsed.IsLinkLocalUnicast()
}
