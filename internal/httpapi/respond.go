package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Envelope is the uniform response body for every JSON endpoint.
type Envelope struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Data    any      `json:"data,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// Request failure kinds. Handlers wrap domain errors with one of these so the
// boundary can map them to a status code without matching on store-specific
// error strings.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrAuth       = errors.New("unauthorized")
	ErrPermission = errors.New("forbidden")
	ErrConflict   = errors.New("conflict")
	ErrDependency = errors.New("dependency failure")
)

// OK writes a success envelope.
func OK(w http.ResponseWriter, data any) {
	write(w, http.StatusOK, Envelope{Success: true, Data: data})
}

// Created writes a success envelope with 201.
func Created(w http.ResponseWriter, data any) {
	write(w, http.StatusCreated, Envelope{Success: true, Data: data})
}

// OKMessage writes a success envelope with a message and data.
func OKMessage(w http.ResponseWriter, message string, data any) {
	write(w, http.StatusOK, Envelope{Success: true, Message: message, Data: data})
}

// Fail maps err to a status code via the failure kinds and writes a failure
// envelope. Unclassified errors are treated as dependency failures.
func Fail(w http.ResponseWriter, err error) {
	if err == nil {
		err = ErrDependency
	}
	write(w, StatusFor(err), Envelope{Success: false, Message: err.Error(), Errors: []string{err.Error()}})
}

// FailStatus writes a failure envelope with an explicit status.
func FailStatus(w http.ResponseWriter, status int, message string) {
	write(w, status, Envelope{Success: false, Message: message, Errors: []string{message}})
}

// StatusFor resolves the HTTP status for a classified error.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func write(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
