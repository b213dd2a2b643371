package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/basictheprogram/crossfire-nexxus/internal/models"
	"github.com/basictheprogram/crossfire-nexxus/internal/security"
	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
)

// handleHeartbeat processes a legacy form-encoded server heartbeat.
// The security pipeline runs first; a passing request is validated,
// normalized, and upserted into the registry.
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	ip := GetRealIP(r, s.trustProxy)

	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondText(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		respondText(w, http.StatusBadRequest, "Malformed request body")
		return
	}

	decision := s.pipeline.Evaluate(&security.Request{
		Context:  r.Context(),
		Header:   r.Header,
		ClientIP: ip,
		Host:     r.Host,
		Body:     body,
	})
	if decision.Rejected() {
		respondText(w, decision.Status, decision.Reason)
		return
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		respondText(w, http.StatusBadRequest, "Malformed request body")
		return
	}

	hostname := strings.TrimSpace(form.Get("hostname"))
	portStr := strings.TrimSpace(form.Get("port"))
	if hostname == "" || portStr == "" {
		respondText(w, http.StatusBadRequest, "Missing required fields hostname and/or port")
		return
	}

	port, ok := parsePort(portStr)
	if !ok {
		respondText(w, http.StatusBadRequest, "Invalid port value")
		return
	}

	record := models.Server{
		Hostname:    hostname,
		Port:        port,
		HTMLComment: strings.TrimSpace(form.Get("html_comment")),
		TextComment: strings.TrimSpace(form.Get("text_comment")),
		Archbase:    strings.TrimSpace(form.Get("archbase")),
		Mapbase:     strings.TrimSpace(form.Get("mapbase")),
		Codebase:    strings.TrimSpace(form.Get("codebase")),
		Flags:       strings.TrimSpace(form.Get("flags")),
		NumPlayers:  parseCounter(form.Get("num_players")),
		InBytes:     parseCounter(form.Get("in_bytes")),
		OutBytes:    parseCounter(form.Get("out_bytes")),
		Uptime:      parseCounter(form.Get("uptime")),
		Version:     strings.TrimSpace(form.Get("version")),
		SCVersion:   strings.TrimSpace(form.Get("sc_version")),
		CSVersion:   strings.TrimSpace(form.Get("cs_version")),
		CountryCode: s.country(ip),
	}

	stored, created, err := s.storage.UpsertServer(record)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			respondText(w, http.StatusBadRequest, "Invalid fields: "+strings.Join(verr.Fields, ", "))
			return
		}

		log.Error().Err(err).Str("hostname", hostname).Int("port", port).Msg("Failed to save server")
		respondText(w, http.StatusInternalServerError, "Database Error")
		return
	}

	log.Debug().
		Str("hostname", stored.Hostname).
		Int("port", stored.Port).
		Bool("created", created).
		Msg("Heartbeat saved")

	if created {
		respondText(w, http.StatusCreated, "Nexxus created "+stored.Hostname)
		return
	}
	respondText(w, http.StatusOK, "Nexxus updated "+stored.Hostname)
}

// handleActiveListing serves servers seen within the staleness window,
// one pipe-separated line per server, hostname ascending.
func (s *Server) handleActiveListing(w http.ResponseWriter, r *http.Request) {
	servers, err := s.storage.GetActiveServers(s.staleWindow, time.Now().UTC())
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch active servers")
		respondText(w, http.StatusInternalServerError, "Database Error")
		return
	}

	var buf bytes.Buffer
	for i := range servers {
		writeLegacyLine(&buf, &servers[i])
	}

	writeCached(w, r, "text/plain; charset=utf-8", buf.Bytes())
}

// handleFullListing serves every known server through the legacy HTML
// template, hostname ascending, with no staleness filtering.
func (s *Server) handleFullListing(w http.ResponseWriter, r *http.Request) {
	servers, err := s.storage.GetAllServers()
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch servers")
		respondText(w, http.StatusInternalServerError, "Database Error")
		return
	}

	var buf bytes.Buffer
	if err := s.legacyTmpl.Execute(&buf, servers); err != nil {
		log.Error().Err(err).Msg("Failed to render listing template")
		respondText(w, http.StatusInternalServerError, "Template Error")
		return
	}

	writeCached(w, r, "text/html; charset=utf-8", buf.Bytes())
}

// parsePort accepts only base-10 digit strings, like the historical clients sent.
func parsePort(s string) (int, bool) {
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}

	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}

	return port, true
}

// parseCounter coerces an optional numeric form field. Absent, empty, or
// unparseable values become 0; counters never go negative.
func parseCounter(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0
	}

	return n
}

// writeLegacyLine renders one server in the legacy pipe-separated layout.
func writeLegacyLine(buf *bytes.Buffer, s *models.Server) {
	fmt.Fprintf(buf, "%s|%d|%s|%s|%s|%s|%s|%d|%d|%d|%d|%s|%s|%s|%d\n",
		s.Hostname, s.Port, s.TextComment,
		s.Archbase, s.Mapbase, s.Codebase, s.Flags,
		s.NumPlayers, s.InBytes, s.OutBytes, s.Uptime,
		s.Version, s.SCVersion, s.CSVersion,
		s.LastUpdate.Unix(),
	)
}

// writeCached writes a listing body with an ETag fingerprint so polling
// legacy clients can skip unchanged payloads via If-None-Match.
func writeCached(w http.ResponseWriter, r *http.Request, contentType string, body []byte) {
	etag := fmt.Sprintf(`"%016x"`, xxhash.Sum64(body))

	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(body)
}

// respondText writes a plain text response as the legacy protocol requires.
func respondText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = fmt.Fprintln(w, message)
}
