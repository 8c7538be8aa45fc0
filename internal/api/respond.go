package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/hooky/internal/access"
	"github.com/mattjoyce/hooky/internal/capture"
	"github.com/mattjoyce/hooky/internal/storage"
)

const msgInternal = "internal server error"

func respondJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

// writeServiceError maps err onto a status code. Anything outside the
// known taxonomy is logged and reported as a bare 500.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		s.writeError(w, status, msgInternal)
		return
	}
	s.writeError(w, status, access.Message(err, http.StatusText(status)))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, access.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, access.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, access.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, access.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, access.ErrNotFound), errors.Is(err, storage.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, access.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, capture.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, capture.ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

// maxJSONBody caps management request bodies.
const maxJSONBody = 1 << 20

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return capture.ErrPayloadTooLarge
		}
		return access.BadRequest("Invalid JSON body")
	}
	return nil
}
