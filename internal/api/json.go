package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/frontmatter"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// parseErrResponse describes why a document was rejected by the parser.
type parseErrResponse struct {
	Error string `json:"error" validate:"required"`
	Kind  string `json:"kind" example:"missing_required_field" validate:"required"`
	Field string `json:"field,omitempty" example:"title"`
}

// writeError maps service and parser errors to HTTP responses.
func writeError(w http.ResponseWriter, op, path string, err error) {
	if kind := frontmatter.Kind(err); kind != "" {
		writeJSON(w, http.StatusUnprocessableEntity, parseErrResponse{
			Error: err.Error(),
			Kind:  kind,
			Field: frontmatter.Field(err),
		})
		return
	}
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody("post already exists"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("checksum mismatch"))
	case errors.Is(err, apperr.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	default:
		slog.Error(op+" failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
