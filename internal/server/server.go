// Package server implements the HTTP server, middleware, and the protocol
// adapters: the legacy heartbeat and listing endpoints and the structured API.
package server

import (
	"html/template"
	"net/http"
	"time"

	"github.com/basictheprogram/crossfire-nexxus/assets"
	"github.com/basictheprogram/crossfire-nexxus/internal/config"
	"github.com/basictheprogram/crossfire-nexxus/internal/geoip"
	"github.com/basictheprogram/crossfire-nexxus/internal/security"
	"github.com/basictheprogram/crossfire-nexxus/internal/storage"
)

// New creates a Server instance with the provided storage, GeoIP provider,
// security pipeline, and configuration.
func New(store *storage.Repository, geo *geoip.Provider, pipe *security.Pipeline, cfg *config.Config) *Server {
	content, err := assets.ReadFile("templates/legacy.html")
	if err != nil {
		panic(err)
	}

	return &Server{
		storage:     store,
		geoip:       geo,
		pipeline:    pipe,
		legacyTmpl:  template.Must(template.New("legacy").Parse(string(content))),
		staleWindow: time.Duration(cfg.Registry.StaleWindow) * time.Second,
		maxBody:     cfg.Server.MaxBodySize,
		trustProxy:  cfg.Server.TrustProxy,
		guardCount:  cfg.Server.GuardCount,
		guardWindow: cfg.Server.GuardWindow,
	}
}

// Run configures the HTTP routes and returns the main handler.
func (s *Server) Run() http.Handler {
	mux := http.NewServeMux()

	// Legacy plain-text protocol
	mux.Handle("POST /meta_update.php", http.HandlerFunc(s.handleHeartbeat))
	mux.Handle("GET /meta_client.php", http.HandlerFunc(s.handleActiveListing))
	mux.Handle("GET /meta_html.php", http.HandlerFunc(s.handleFullListing))

	// Structured API
	mux.Handle("GET /api/servers", http.HandlerFunc(s.handleListServers))
	mux.Handle("GET /api/servers/{id}", http.HandlerFunc(s.handleGetServer))
	mux.Handle("PATCH /api/servers", http.HandlerFunc(s.handleUpsertServer))

	var handler http.Handler = mux
	if s.guardCount > 0 {
		handler = s.GuardMiddleware(handler)
	}

	return s.LoggingMiddleware(handler)
}

// country resolves the ISO country code for an IP, or "" when GeoIP is off.
func (s *Server) country(ip string) string {
	if s.geoip == nil {
		return ""
	}
	return s.geoip.CountryCode(ip)
}
