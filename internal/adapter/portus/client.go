package portus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/surf-ingest-service/internal/domain"
	"github.com/couchcryptid/surf-ingest-service/internal/fetch"
)

// DefaultBaseURL is the Portus real-time station endpoint.
const DefaultBaseURL = "https://portus.puertos.es/portussvr/api/RTData/station"

// Client fetches station readings from the Portus RTData API.
type Client struct {
	fetcher *fetch.Client
	baseURL string
}

// DefaultHeaders are sent with every station request.
func DefaultHeaders() http.Header {
	return http.Header{
		"Accept":          {"application/json, text/plain, */*"},
		"Accept-Language": {"en-US,en;q=0.9,es;q=0.8"},
		"Content-Type":    {"application/json;charset=UTF-8"},
		"Referer":         {"https://portus.puertos.es/"},
	}
}

// NewClient creates a Portus client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration, rps float64) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		fetcher: fetch.NewClient(timeout, rps, DefaultHeaders()),
		baseURL: baseURL,
	}
}

// FetchStation posts the target's body to its station endpoint and decodes
// the readings.
func (c *Client) FetchStation(ctx context.Context, target domain.BuoyTarget) ([]domain.PortusReading, error) {
	u := fmt.Sprintf("%s/%s?%s", c.baseURL, url.PathEscape(target.ID), url.Values{"locale": {"es"}}.Encode())

	data, err := c.fetcher.Post(ctx, u, []byte(target.Body))
	if err != nil {
		return nil, fmt.Errorf("station %s: %w", target.ID, err)
	}

	var readings []domain.PortusReading
	if err := json.Unmarshal(data, &readings); err != nil {
		return nil, fmt.Errorf("station %s: decode response: %w", target.ID, err)
	}
	return readings, nil
}
