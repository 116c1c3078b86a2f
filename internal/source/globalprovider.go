package source

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// DefaultGlobalProviderURL is the Electricity Maps API.
const DefaultGlobalProviderURL = "https://api.electricitymap.org"

// GlobalProviderPath is the latest carbon intensity endpoint.
const GlobalProviderPath = "/v3/carbon-intensity/latest"

// ProxyPrefix is where the local relay for the global provider is mounted.
const ProxyPrefix = "/api/metrics/v1/emission_factor/emaps"

// AuthTokenHeader carries the global provider access token.
const AuthTokenHeader = "auth-token"

// GlobalProviderProvider reads the current carbon intensity of a zone.
type GlobalProviderProvider struct {
	hc       *http.Client
	baseURL  string
	proxyURL string
}

// NewGlobalProvider creates the provider. When proxyURL is set, requests go
// to proxyURL+ProxyPrefix instead of baseURL.
func NewGlobalProvider(hc *http.Client, baseURL, proxyURL string) *GlobalProviderProvider {
	if baseURL == "" {
		baseURL = DefaultGlobalProviderURL
	}
	return &GlobalProviderProvider{
		hc:       hc,
		baseURL:  strings.TrimRight(baseURL, "/"),
		proxyURL: strings.TrimRight(proxyURL, "/"),
	}
}

type carbonIntensityResponse struct {
	Zone            string   `json:"zone"`
	CarbonIntensity *float64 `json:"carbonIntensity"`
}

// Intensity implements Provider.
func (p *GlobalProviderProvider) Intensity(ctx context.Context, req Request) (float64, error) {
	zone := strings.ToUpper(strings.TrimSpace(req.Zone))
	if zone == "" {
		return 0, ErrNoZone
	}

	header := http.Header{}
	if req.AccessToken != "" {
		header.Set(AuthTokenHeader, req.AccessToken)
	}

	var body carbonIntensityResponse
	if err := getJSON(ctx, p.hc, p.latestURL(zone), header, &body); err != nil {
		return 0, err
	}
	if body.CarbonIntensity == nil {
		return 0, ErrNoData
	}
	return *body.CarbonIntensity, nil
}

func (p *GlobalProviderProvider) latestURL(zone string) string {
	base := p.baseURL
	if p.proxyURL != "" {
		base = p.proxyURL + ProxyPrefix
	}
	return base + GlobalProviderPath + "?" + url.Values{"zone": {zone}}.Encode()
}
