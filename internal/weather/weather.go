// Package weather looks up current conditions for a city via the
// OpenWeather API, for venue and date planning.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/planhub/planhub/internal/core"
	"github.com/planhub/planhub/internal/telemetry"
)

const (
	defaultBaseURL = "https://api.openweathermap.org/data/2.5"
	defaultTimeout = 10 * time.Second
)

// Conditions is the subset of the weather report the planner cares
// about.
type Conditions struct {
	City        string  `json:"city"`
	TempCelsius float64 `json:"temperature_celsius"`
	Conditions  string  `json:"conditions"`
	Humidity    int     `json:"humidity_percent"`
}

// Config configures a Client.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client queries OpenWeather. Safe for concurrent use.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a weather client. An empty API key is allowed;
// lookups then fail unauthenticated.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type apiResponse struct {
	Name string `json:"name"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Main string `json:"main"`
	} `json:"weather"`
}

// Current returns current conditions for a city. countryCode defaults
// to US when empty, matching the upstream API convention.
func (c *Client) Current(ctx context.Context, city, countryCode string) (*Conditions, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, core.Errorf(core.KindInvalidArgument, "city is required")
	}
	if countryCode == "" {
		countryCode = "US"
	}
	if c.apiKey == "" {
		return nil, core.Errorf(core.KindUnauthenticated, "weather api key not configured")
	}

	params := url.Values{}
	params.Set("q", city+","+countryCode)
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/weather?"+params.Encode(), nil)
	if err != nil {
		return nil, core.WrapError(core.KindInternal, "internal error", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		telemetry.IncRemoteAPIError("weather", 0)
		return nil, core.WrapError(core.KindUnavailable, "weather service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		telemetry.IncRemoteAPIError("weather", resp.StatusCode)
		return nil, mapStatus(resp.StatusCode, city, string(detail))
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, core.WrapError(core.KindUnavailable, "weather service returned a malformed response", err)
	}

	out := &Conditions{
		City:        body.Name,
		TempCelsius: math.Round(body.Main.Temp*10) / 10,
		Humidity:    body.Main.Humidity,
	}
	if len(body.Weather) > 0 {
		out.Conditions = body.Weather[0].Main
	}
	return out, nil
}

func mapStatus(status int, city, detail string) *core.Error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &core.Error{Kind: core.KindUnauthenticated, Message: "weather service rejected the api key", Err: errors.New(detail)}
	case status == http.StatusNotFound:
		return &core.Error{Kind: core.KindNotFound, Message: fmt.Sprintf("no weather data for city %q", city), Err: errors.New(detail)}
	case status == http.StatusTooManyRequests || status >= 500:
		return &core.Error{Kind: core.KindUnavailable, Message: fmt.Sprintf("weather service temporarily unavailable (HTTP %d)", status), Err: errors.New(detail)}
	default:
		return &core.Error{Kind: core.KindInternal, Message: "internal error", Err: fmt.Errorf("weather HTTP %d: %s", status, detail)}
	}
}
