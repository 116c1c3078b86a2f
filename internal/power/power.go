// Package power reads CPU and GPU power draw from the local metrics endpoint.
package power

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sweeney/power-usage/internal/logic"
)

// Path is the power usage endpoint, relative to the metrics base URL.
const Path = "/power_usage"

// ErrStatus is returned when the endpoint answers with a non-2xx status.
var ErrStatus = errors.New("power: unexpected status")

// Device is one device entry of the endpoint payload, in watts.
type Device struct {
	Usage float64 `json:"usage"`
	Limit float64 `json:"limit"`
}

// Payload is the body served at Path. A device that is not measured is
// omitted.
type Payload struct {
	CPU *Device `json:"cpu,omitempty"`
	GPU *Device `json:"gpu,omitempty"`
}

// Sample converts a payload to the domain sample.
func (p Payload) Sample() logic.PowerSample {
	var s logic.PowerSample
	if p.CPU != nil {
		s.CPU = &logic.Reading{Usage: p.CPU.Usage, Limit: p.CPU.Limit}
	}
	if p.GPU != nil {
		s.GPU = &logic.Reading{Usage: p.GPU.Usage, Limit: p.GPU.Limit}
	}
	return s
}

// wireDevice distinguishes a missing usage from a zero one.
type wireDevice struct {
	Usage *float64 `json:"usage"`
	Limit *float64 `json:"limit"`
}

type wirePayload struct {
	CPU *wireDevice `json:"cpu"`
	GPU *wireDevice `json:"gpu"`
}

func (d *wireDevice) reading() *logic.Reading {
	if d == nil || d.Usage == nil {
		return nil
	}
	r := &logic.Reading{Usage: *d.Usage}
	if d.Limit != nil {
		r.Limit = *d.Limit
	}
	return r
}

// Client fetches samples from the metrics endpoint.
type Client struct {
	url string
	hc  *http.Client
}

// NewClient creates a Client for baseURL, e.g.
// "http://127.0.0.1:8080/api/metrics/v1". A nil hc uses a client with a 10s
// timeout.
func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{url: strings.TrimRight(baseURL, "/") + Path, hc: hc}
}

// URL returns the endpoint being polled.
func (c *Client) URL() string { return c.url }

// Fetch performs a single GET. A device whose usage is absent is reported
// as nil.
func (c *Client) Fetch(ctx context.Context) (logic.PowerSample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return logic.PowerSample{}, fmt.Errorf("power: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return logic.PowerSample{}, fmt.Errorf("power: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return logic.PowerSample{}, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	var body wirePayload
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return logic.PowerSample{}, fmt.Errorf("power: decode: %w", err)
	}
	return logic.PowerSample{CPU: body.CPU.reading(), GPU: body.GPU.reading()}, nil
}
