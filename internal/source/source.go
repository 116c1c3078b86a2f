// Package source fetches the instantaneous grid emission factor (g/kWh)
// from one of several external carbon-intensity providers.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ID identifies an emission factor provider.
type ID string

const (
	// NationalGrid is the French national grid open-data series (RTE eco2mix).
	NationalGrid ID = "national-grid"
	// GlobalProvider is the Electricity Maps carbon-intensity-by-zone API.
	GlobalProvider ID = "global-provider"
)

var aliases = map[string]ID{
	"rte":   NationalGrid,
	"emaps": GlobalProvider,
}

var (
	// ErrUnknownSource is returned for an unrecognized provider identifier.
	ErrUnknownSource = errors.New("source: unknown emission factor source")
	// ErrNoData is returned when a provider answered without a usable value.
	ErrNoData = errors.New("source: no emission factor in response")
	// ErrNoZone is returned when a zone-based provider is called without a zone.
	ErrNoZone = errors.New("source: zone code required")
)

// StatusError is returned for a non-2xx provider response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("source: %s returned status %d", e.URL, e.Code)
}

// ParseID resolves a source identifier, accepting the short aliases
// "rte" and "emaps".
func ParseID(s string) (ID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch ID(s) {
	case NationalGrid, GlobalProvider:
		return ID(s), nil
	}
	if id, ok := aliases[s]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
}

// Request is the input of a single provider lookup.
type Request struct {
	Zone        string
	AccessToken string
}

// Provider returns a grid carbon intensity in g/kWh.
type Provider interface {
	Intensity(ctx context.Context, req Request) (float64, error)
}

// Client dispatches lookups to registered providers. Fetch never returns an
// error: every failure is logged and reported as "no value".
type Client struct {
	providers map[ID]Provider
	log       *slog.Logger
}

// Options configures the default providers of a Client.
type Options struct {
	HTTPClient        *http.Client
	NationalGridURL   string
	GlobalProviderURL string
	// ProxyURL, when set, routes global provider requests through a local
	// relay that attaches the access token server-side.
	ProxyURL string
	Now      func() time.Time
	Logger   *slog.Logger
}

// NewClient creates a Client with the national-grid and global-provider
// sources registered.
func NewClient(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	c := &Client{
		providers: make(map[ID]Provider),
		log:       log,
	}
	c.Register(NationalGrid, NewNationalGridProvider(hc, opts.NationalGridURL, opts.Now))
	c.Register(GlobalProvider, NewGlobalProvider(hc, opts.GlobalProviderURL, opts.ProxyURL))
	return c
}

// Register adds or replaces the provider for id.
func (c *Client) Register(id ID, p Provider) {
	c.providers[id] = p
}

// Fetch returns the current emission factor in g/kWh from the named source.
// ok is false if the source is unknown or the lookup failed for any reason.
func (c *Client) Fetch(ctx context.Context, source, zone, accessToken string) (float64, bool) {
	id, err := ParseID(source)
	if err != nil {
		c.log.Debug("emission factor source not recognized", "source", source)
		return 0, false
	}
	p, ok := c.providers[id]
	if !ok {
		c.log.Debug("emission factor source not registered", "source", id)
		return 0, false
	}

	v, err := p.Intensity(ctx, Request{Zone: zone, AccessToken: accessToken})
	if err != nil {
		c.log.Debug("emission factor request failed", "source", id, "zone", zone, "error", err)
		return 0, false
	}
	return v, true
}

func getJSON(ctx context.Context, hc *http.Client, url string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return &StatusError{Code: resp.StatusCode, URL: req.URL.Redacted()}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
