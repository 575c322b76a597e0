package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/akarpovs/roomdrop/internal/common"
)

// Wire error codes, shared with the client-side classifier.
const (
	CodeValidation         = "validation_error"
	CodeNotFound           = "not_found"
	CodeConflict           = "conflict"
	CodeExpired            = "expired"
	CodeIncompleteTransfer = "incomplete_transfer"
	CodeUnauthorized       = "unauthorized"
	CodeInternal           = "internal_error"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// classify maps the sentinel taxonomy onto an HTTP status and wire code.
// Unclassified failures surface as 500, which clients treat as transient.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, common.ErrConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, common.ErrExpired):
		return http.StatusGone, CodeExpired
	case errors.Is(err, common.ErrIncompleteTransfer):
		return http.StatusPreconditionFailed, CodeIncompleteTransfer
	case errors.Is(err, common.ErrUnauthorized):
		return http.StatusUnauthorized, CodeUnauthorized
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		// Do not leak internals to the wire.
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Code: code, Message: msg})
}
