package geocoding

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

// getJSON performs a GET request and returns the raw body of a 2xx response.
// 401 and 403 map to ErrUnauthorized; any other non-2xx status is returned with the body.
func getJSON(
	ctx context.Context,
	client HTTPClient,
	log *slog.Logger,
	name string,
	reqURL *url.URL,
	headers map[string]string,
) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s request: %w", name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices:
		// continue
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	default:
		log.ErrorContext(ctx, "API error", "api", name, "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("%s API returned status %d: %s", name, resp.StatusCode, string(body))
	}

	log.DebugContext(ctx, "API raw response", "api", name, "body", string(body))

	return body, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
