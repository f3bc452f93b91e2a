package surfforecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/surf-ingest-service/internal/domain"
	"github.com/couchcryptid/surf-ingest-service/internal/fetch"
)

// DefaultBaseURL is the surf-forecast.com breaks endpoint.
const DefaultBaseURL = "https://es.surf-forecast.com/breaks"

// ErrMissingContent is returned when the envelope carries no HTML for the
// requested window. Callers treat it as transient.
var ErrMissingContent = errors.New("missing forecast content in upstream response")

// DefaultHeaders are sent with every forecast request.
func DefaultHeaders() http.Header {
	return http.Header{
		"Accept":          {"application/json"},
		"Accept-Language": {"es-ES,es;q=0.9,en;q=0.8"},
		"User-Agent":      {"Mozilla/5.0 (X11; Linux aarch64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"},
	}
}

// Client fetches forecast table fragments from surf-forecast.com.
type Client struct {
	fetcher *fetch.Client
	baseURL string
}

// NewClient creates a forecast client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration, rps float64) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		fetcher: fetch.NewClient(timeout, rps, DefaultHeaders()),
		baseURL: baseURL,
	}
}

// FetchHourly returns the 48 hour forecast table fragment for a spot.
func (c *Client) FetchHourly(ctx context.Context, slug string) (string, error) {
	return c.Fetch(ctx, slug, domain.SourceHourly)
}

// FetchGeneral returns the 7 day forecast table fragment for a spot.
func (c *Client) FetchGeneral(ctx context.Context, slug string) (string, error) {
	return c.Fetch(ctx, slug, domain.SourceGeneral)
}

// Fetch returns the table fragment for the given forecast window.
func (c *Client) Fetch(ctx context.Context, slug string, source domain.ForecastSource) (string, error) {
	var params url.Values
	var periodType string
	switch source {
	case domain.SourceHourly:
		periodType = "h"
		params = url.Values{"parts": {"basic"}, "period_types": {"h"}, "forecast_duration": {"48h"}}
	case domain.SourceGeneral:
		periodType = "p"
		params = url.Values{"parts": {"all"}, "period_types": {"p"}}
	default:
		return "", fmt.Errorf("unknown forecast source %q", source)
	}

	u := fmt.Sprintf("%s/%s/forecasts/data?%s", c.baseURL, url.PathEscape(slug), params.Encode())
	data, err := c.fetcher.Get(ctx, u)
	if err != nil {
		return "", fmt.Errorf("%s forecast for %s: %w", source, slug, err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("%s forecast for %s: decode envelope: %w", source, slug, err)
	}
	content := env.PeriodTypes[periodType].Parts.Basic.Content
	if content == "" {
		return "", fmt.Errorf("%s forecast for %s: %w", source, slug, ErrMissingContent)
	}
	return content, nil
}

// surf-forecast.com response envelope.

type envelope struct {
	PeriodTypes map[string]periodType `json:"period_types"`
}

type periodType struct {
	Parts struct {
		Basic struct {
			Content string `json:"content"`
		} `json:"basic"`
	} `json:"parts"`
}
