package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultNationalGridURL is the ODRÉ open-data portal.
const DefaultNationalGridURL = "https://odre.opendatasoft.com"

const nationalGridPath = "/api/records/1.0/search/"

// NationalGridProvider reads the latest CO2 rate of the eco2mix real-time
// national series. It ignores the zone: the series covers one country.
type NationalGridProvider struct {
	hc      *http.Client
	baseURL string
	now     func() time.Time
}

// NewNationalGridProvider creates the provider. Empty baseURL uses the
// public portal; nil now uses time.Now.
func NewNationalGridProvider(hc *http.Client, baseURL string, now func() time.Time) *NationalGridProvider {
	if baseURL == "" {
		baseURL = DefaultNationalGridURL
	}
	if now == nil {
		now = time.Now
	}
	return &NationalGridProvider{hc: hc, baseURL: strings.TrimRight(baseURL, "/"), now: now}
}

type eco2mixResponse struct {
	Records []struct {
		Fields struct {
			TauxCO2 *float64 `json:"taux_co2"`
		} `json:"fields"`
	} `json:"records"`
}

// Intensity implements Provider.
func (p *NationalGridProvider) Intensity(ctx context.Context, _ Request) (float64, error) {
	var body eco2mixResponse
	if err := getJSON(ctx, p.hc, p.searchURL(), nil, &body); err != nil {
		return 0, err
	}
	if len(body.Records) == 0 || body.Records[0].Fields.TauxCO2 == nil {
		return 0, ErrNoData
	}
	return *body.Records[0].Fields.TauxCO2, nil
}

func (p *NationalGridProvider) searchURL() string {
	today := p.now().UTC().Format("2006-01-02")
	q := url.Values{}
	q.Set("dataset", "eco2mix-national-tr")
	q.Set("facet", "date_heure")
	q.Set("start", "0")
	q.Set("rows", "1")
	q.Set("sort", "date_heure")
	q.Set("timezone", "Europe/Paris")
	q.Set("q", fmt.Sprintf("date_heure:[%s TO #now()] AND NOT #null(taux_co2)", today))
	return p.baseURL + nationalGridPath + "?" + q.Encode()
}
