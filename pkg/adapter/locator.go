package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// StaticLocator always reports the same location
type StaticLocator string

func (x StaticLocator) Locate(ctx context.Context) (string, error) {
	if x == "" {
		return "", goerr.New("static location is empty")
	}
	return string(x), nil
}

const DefaultGeoIPEndpoint = "https://ipinfo.io/json"

// IPLocator resolves the location of the host's public IP address
type IPLocator struct {
	endpoint string
	client   *http.Client
}

type IPLocatorOption func(*IPLocator)

func WithGeoIPEndpoint(url string) IPLocatorOption {
	return func(x *IPLocator) {
		x.endpoint = url
	}
}

func WithHTTPClient(c *http.Client) IPLocatorOption {
	return func(x *IPLocator) {
		x.client = c
	}
}

func NewIPLocator(opts ...IPLocatorOption) *IPLocator {
	x := &IPLocator{
		endpoint: DefaultGeoIPEndpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

type geoIPResponse struct {
	City    string `json:"city"`
	Region  string `json:"region"`
	Country string `json:"country"`
	Loc     string `json:"loc"`
}

// Locate returns "Latitude: <lat>, Longitude: <lng>, Address: <city, region, country>"
func (x *IPLocator) Locate(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, x.endpoint, nil)
	if err != nil {
		return "", goerr.Wrap(err, "failed to create geoip request", goerr.V("endpoint", x.endpoint))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := x.client.Do(req)
	if err != nil {
		return "", goerr.Wrap(err, "failed to query geoip", goerr.V("endpoint", x.endpoint))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", goerr.New("geoip returned unexpected status",
			goerr.V("endpoint", x.endpoint),
			goerr.V("status", resp.StatusCode))
	}

	var geo geoIPResponse
	if err := json.NewDecoder(resp.Body).Decode(&geo); err != nil {
		return "", goerr.Wrap(err, "failed to decode geoip response", goerr.V("endpoint", x.endpoint))
	}

	lat, lng, ok := strings.Cut(geo.Loc, ",")
	if !ok {
		return "", goerr.New("geoip response has no coordinates", goerr.V("loc", geo.Loc))
	}

	var parts []string
	for _, p := range []string{geo.City, geo.Region, geo.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	address := "N/A"
	if len(parts) > 0 {
		address = strings.Join(parts, ", ")
	}

	return fmt.Sprintf("Latitude: %s, Longitude: %s, Address: %s", lat, lng, address), nil
}
