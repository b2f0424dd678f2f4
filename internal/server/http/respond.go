package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/logtide/logtide/internal/errs"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps sentinel errors to status codes. Internal errors are
// logged with detail but reported opaquely.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, errs.ErrInvalid):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request"})
	case errors.Is(err, errs.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
	case errors.Is(err, errs.ErrDisabled):
		writeJSON(w, http.StatusForbidden, errorBody{Error: "account disabled"})
	case errors.Is(err, errs.ErrAccessDenied):
		writeJSON(w, http.StatusForbidden, errorBody{Error: "access denied"})
	case errors.Is(err, errs.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, errs.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody{Error: "already exists"})
	case errors.Is(err, errs.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "too many requests"})
	default:
		log.Error("internal error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return errs.ErrInvalid
	}
	return nil
}
