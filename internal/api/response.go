package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/calltrail/calltrail/internal/errs"
	"github.com/calltrail/calltrail/internal/policy"
)

// envelope is the standard API response wrapper.
// All JSON responses use this format: { "data": ..., "error": ... }
type envelope struct {
	Data  any    `json:"data"`
	Error string `json:"error,omitempty"`
}

// writeJSON writes a JSON response with the given status code and data payload.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Data: data}); err != nil {
		slog.Error("failed to encode json response", "error", err)
	}
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Error: msg}); err != nil {
		slog.Error("failed to encode json error response", "error", err)
	}
}

// writeBlocked writes a policy packet with the given status. The packet
// rides in data so clients can render the reasons; the error message
// stays generic.
func writeBlocked(w http.ResponseWriter, status int, packet policy.Packet) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := envelope{Data: map[string]any{"packet": packet}, Error: "blocked by policy"}
	if status == http.StatusPreconditionRequired {
		resp.Error = "confirmation required"
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode policy response", "error", err)
	}
}

// writeDomainError maps typed domain errors to HTTP responses. A policy
// block becomes 423 Locked with the packet attached; unclassified errors
// become an opaque 500.
func writeDomainError(w http.ResponseWriter, err error) {
	var blocked *policy.BlockedError
	if errors.As(err, &blocked) {
		writeBlocked(w, http.StatusLocked, blocked.Packet)
		return
	}

	var notFound *errs.NotFoundError
	switch {
	case errs.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errs.IsAuthentication(err):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errs.IsConflict(err):
		writeError(w, http.StatusConflict, err.Error())
	case errs.IsConfiguration(err):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		slog.Error("unhandled error in request", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// maxBodyBytes limits request bodies to 1 MB.
const maxBodyBytes = 1 << 20

// readJSON decodes a single JSON object from the request body into dst.
// Returns an error message suitable for a 400 response, or "" on success.
func readJSON(r *http.Request, dst any) string {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		var maxBytesErr *http.MaxBytesError

		switch {
		case errors.Is(err, io.EOF):
			return "request body must not be empty"
		case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
			return "malformed json"
		case errors.As(err, &typeErr):
			if typeErr.Field != "" {
				return fmt.Sprintf("invalid type for field %q", typeErr.Field)
			}
			return "invalid type in request body"
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			field := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return "unknown field " + field
		case errors.As(err, &maxBytesErr):
			return "request body too large"
		default:
			return "invalid request body"
		}
	}

	// A second decode must hit EOF, otherwise the body held trailing data.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return "request body must contain a single json object"
	}

	return ""
}

// defaultLimit is the page size when no limit query param is given.
const defaultLimit = 20

// maxLimit caps the page size.
const maxLimit = 100

// Pagination holds validated limit/offset query params.
type Pagination struct {
	Limit  int
	Offset int
}

// PaginatedResponse wraps list results with paging metadata.
type PaginatedResponse struct {
	Items  any `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// parsePagination reads limit and offset query params, applying defaults
// and clamping. Returns an error message for a 400 response, or "".
func parsePagination(r *http.Request) (Pagination, string) {
	p := Pagination{Limit: defaultLimit}
	q := r.URL.Query()

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return p, "limit must be a positive integer"
		}
		if n > maxLimit {
			n = maxLimit
		}
		p.Limit = n
	}

	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return p, "offset must be a non-negative integer"
		}
		p.Offset = n
	}

	return p, ""
}
