// Package web provides the HTTP server for the power usage daemon: the
// status page, its JSON form, the local power usage endpoint, the emission
// factor proxy, Prometheus metrics and a WebSocket change stream.
package web

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sweeney/power-usage/internal/power"
	"github.com/sweeney/power-usage/internal/source"
	"github.com/sweeney/power-usage/internal/status"
)

// APIPrefix is the root of the metrics API.
const APIPrefix = "/api/metrics/v1"

// PayloadSource produces the local power usage payload.
type PayloadSource interface {
	Collect(ctx context.Context) power.Payload
}

// Server serves the status page and API over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	power      PayloadSource
	proxy      *emissionsProxy
	metrics    http.Handler
	hub        *Hub
	log        *slog.Logger
}

// Option configures optional routes.
type Option func(*Server)

// WithPowerSource serves APIPrefix+"/power_usage" from src.
func WithPowerSource(src PayloadSource) Option {
	return func(s *Server) { s.power = src }
}

// WithEmissionsProxy relays source.ProxyPrefix requests to upstream,
// attaching token when set.
func WithEmissionsProxy(upstream, token string, hc *http.Client) Option {
	return func(s *Server) { s.proxy = newEmissionsProxy(upstream, token, hc) }
}

// WithMetrics serves h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithHub serves the change stream at /ws.
func WithHub(h *Hub) Option {
	return func(s *Server) { s.hub = h }
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker, opts ...Option) *Server {
	s := &Server{tracker: tracker, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	if s.power != nil {
		mux.HandleFunc(APIPrefix+power.Path, s.handlePowerUsage)
	}
	if s.proxy != nil {
		mux.Handle(source.ProxyPrefix+"/", s.proxy)
		s.proxy.log = s.log
	}
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	if s.hub != nil {
		mux.Handle("/ws", s.hub)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.log.Warn("render status page", "error", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handlePowerUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.power.Collect(r.Context()))
}
