package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"pilothouse-hq/ganymede/pkg/policy"
	"pilothouse-hq/ganymede/pkg/policy/store"
)

// errorResponse is the JSON body for all error responses.
type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, details ...string) {
	writeJSON(w, status, errorResponse{Error: message, Details: details})
}

// writeStoreError maps policy and store error types onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	var validation *policy.ValidationError
	if errors.As(err, &validation) {
		writeError(w, http.StatusUnprocessableEntity, "policy validation failed", validation.Problems...)
		return
	}
	var authority *policy.AuthorityError
	if errors.As(err, &authority) {
		writeError(w, http.StatusForbidden, authority.Error())
		return
	}
	var notFound *store.NotFoundError
	if errors.As(err, &notFound) {
		writeError(w, http.StatusNotFound, notFound.Error())
		return
	}
	var conflict *store.ConflictError
	if errors.As(err, &conflict) {
		writeError(w, http.StatusConflict, conflict.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// callerAuthority reads the caller's privilege level from the
// X-Ganymede-Authority header. A missing header means viewer.
func callerAuthority(r *http.Request) (policy.Authority, error) {
	header := r.Header.Get("X-Ganymede-Authority")
	if header == "" {
		return policy.AuthorityViewer, nil
	}
	return policy.ParseAuthority(header)
}
