package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/basictheprogram/crossfire-nexxus/internal/models"
	"github.com/basictheprogram/crossfire-nexxus/internal/security"
	"github.com/rs/zerolog/log"
)

// Structured API error codes.
const (
	codeInvalidRequest  = "INVALID_REQUEST"
	codeValidationError = "VALIDATION_ERROR"
	codeSecurityReject  = "SECURITY_REJECTED"
	codeServerNotFound  = "SERVER_NOT_FOUND"
	codeInternalError   = "INTERNAL_ERROR"
)

// apiError is the structured error payload of the modern API.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorResponse wraps an apiError.
type errorResponse struct {
	Error apiError `json:"error"`
}

// handleListServers returns every server record, hostname ascending.
func (s *Server) handleListServers(w http.ResponseWriter, _ *http.Request) {
	servers, err := s.storage.GetAllServers()
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch servers")
		writeAPIError(w, http.StatusInternalServerError, codeInternalError, "Internal server error")
		return
	}

	if servers == nil {
		servers = []models.Server{}
	}

	writeJSON(w, http.StatusOK, servers)
}

// handleGetServer returns one server record looked up by its entry id.
func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid server id")
		return
	}

	server, err := s.storage.GetServer(id)
	if err != nil {
		if errors.Is(err, models.ErrServerNotFound) {
			writeAPIError(w, http.StatusNotFound, codeServerNotFound, "Server not found")
			return
		}

		log.Error().Err(err).Int64("entry", id).Msg("Failed to fetch server")
		writeAPIError(w, http.StatusInternalServerError, codeInternalError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, server)
}

// handleUpsertServer creates or updates a server record from a JSON payload.
// Unlike the legacy heartbeat adapter, it answers 201 on updates as well;
// existing API clients depend on that.
func (s *Server) handleUpsertServer(w http.ResponseWriter, r *http.Request) {
	ip := GetRealIP(r, s.trustProxy)

	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeAPIError(w, http.StatusRequestEntityTooLarge, codeInvalidRequest, "Request body too large")
			return
		}
		writeAPIError(w, http.StatusBadRequest, codeInvalidRequest, "Malformed request body")
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
		writeAPIError(w, decision.Status, codeSecurityReject, decision.Reason)
		return
	}

	var update models.ServerUpdate
	if err := json.Unmarshal(body, &update); err != nil {
		writeAPIError(w, http.StatusBadRequest, codeInvalidRequest, "Malformed JSON body")
		return
	}

	var missing []string
	if strings.TrimSpace(update.Hostname) == "" {
		missing = append(missing, "hostname")
	}
	if update.Port == nil {
		missing = append(missing, "port")
	}
	if len(missing) > 0 {
		writeAPIError(w, http.StatusBadRequest, codeInvalidRequest,
			"Missing required fields: "+strings.Join(missing, ", "))
		return
	}

	record := update.Record()
	record.CountryCode = s.country(ip)

	stored, created, err := s.storage.UpsertServer(record)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			writeAPIError(w, http.StatusBadRequest, codeValidationError,
				"Invalid fields: "+strings.Join(verr.Fields, ", "))
			return
		}

		log.Error().Err(err).Str("hostname", update.Hostname).Msg("Failed to save server")
		writeAPIError(w, http.StatusInternalServerError, codeInternalError, "Internal server error")
		return
	}

	log.Debug().
		Str("hostname", stored.Hostname).
		Int("port", stored.Port).
		Bool("created", created).
		Msg("API upsert saved")

	writeJSON(w, http.StatusCreated, stored)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// writeAPIError writes a structured error response.
func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: apiError{Code: code, Message: message}})
}
