package web

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sweeney/power-usage/internal/source"
)

// emissionsProxy relays global provider API calls so that the browser or a
// remote poller never needs the access token.
type emissionsProxy struct {
	upstream string
	token    string
	hc       *http.Client
	log      *slog.Logger
}

func newEmissionsProxy(upstream, token string, hc *http.Client) *emissionsProxy {
	if upstream == "" {
		upstream = source.DefaultGlobalProviderURL
	}
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &emissionsProxy{
		upstream: strings.TrimRight(upstream, "/"),
		token:    token,
		hc:       hc,
		log:      slog.Default(),
	}
}

func (p *emissionsProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, source.ProxyPrefix)
	if path == "" || path == "/" {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	// The configured token wins over one supplied by the caller.
	token := p.token
	if token == "" {
		token = q.Get("access_token")
	}
	if token == "" {
		token = r.Header.Get(source.AuthTokenHeader)
	}
	q.Del("access_token")

	target := p.upstream + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Header.Set("User-Agent", "power-usage")
	if token != "" {
		req.Header.Set(source.AuthTokenHeader, token)
	}

	resp, err := p.hc.Do(req)
	if err != nil {
		p.log.Debug("emission factor proxy request failed", "path", path, "error", err)
		writeError(w, http.StatusBadGateway, "upstream unavailable")
		return
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}
