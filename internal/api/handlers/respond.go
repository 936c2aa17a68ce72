package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/assistgateway/internal/apperr"
)

type errorEnvelope struct {
	Error string      `json:"error"`
	Kind  apperr.Kind `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError is the only place failures become HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	kind := apperr.KindOf(err)

	attrs := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"kind", kind,
		"status", status,
		"request_id", middleware.GetReqID(r.Context()),
		"error", err,
	}
	switch kind {
	case apperr.KindInternal:
		slog.Error("request failed", attrs...)
	case apperr.KindUpstreamUnavailable, apperr.KindUpstreamError:
		slog.Warn("collaborator failed", attrs...)
	default:
		slog.Info("request rejected", attrs...)
	}

	writeJSON(w, status, errorEnvelope{Error: apperr.PublicMessage(err), Kind: kind})
}

// decodeJSON reads a JSON body. Any malformed or oversized body is invalid input.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.InvalidInput(fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		}
		return apperr.InvalidInput("invalid request body")
	}
	return nil
}
