package server

import (
	"html/template"
	"time"

	"github.com/basictheprogram/crossfire-nexxus/internal/geoip"
	"github.com/basictheprogram/crossfire-nexxus/internal/security"
	"github.com/basictheprogram/crossfire-nexxus/internal/storage"
)

// Server holds the dependencies and configuration required to handle
// HTTP requests.
type Server struct {
	// storage provides access to the persistent registry and blacklist tables.
	storage *storage.Repository

	// geoip resolves client IP addresses to country codes.
	// It can be nil if country resolution is disabled.
	geoip *geoip.Provider

	// pipeline is the ordered security check chain applied to write requests.
	pipeline *security.Pipeline

	// legacyTmpl renders the legacy full-listing HTML page.
	legacyTmpl *template.Template

	// staleWindow is how recently a server must have heartbeated to appear
	// in the active listing.
	staleWindow time.Duration

	// maxBody caps the size of incoming request bodies.
	maxBody int64

	// guardCount and guardWindow parameterize the optional transport-level
	// per-IP burst guard. Zero guardCount disables it.
	guardCount  int
	guardWindow time.Duration

	// trustProxy indicates whether headers like X-Forwarded-For or
	// CF-Connecting-IP are trusted when resolving the client's real IP.
	trustProxy bool
}
