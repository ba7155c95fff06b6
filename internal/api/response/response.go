// Package response writes the JSON bodies of the v1 API.
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type envelope struct {
	Data any `json:"data"`
}

// URLBody is the success body of submit and select endpoints: where the client goes next.
type URLBody struct {
	URL string `json:"url"`
}

type errorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody is the error object every failed request returns. Code mirrors the HTTP status
// except for duplicate submissions, which keep the legacy pair code=500, pgx_code=23505.
type ErrorBody struct {
	Code    int    `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
	PgxCode string `json:"pgx_code,omitempty"`
	URL     string `json:"url,omitempty"`
}

// JSON writes v unwrapped with status 200.
func JSON(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, v)
}

// Data writes v inside a {"data": ...} envelope with status 200.
func Data(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, envelope{Data: v})
}

// DataStatus writes v inside a {"data": ...} envelope with the given status.
func DataStatus(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, envelope{Data: v})
}

func Created(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusCreated, envelope{Data: v})
}

// Redirect writes {"url": url} with status 200.
func Redirect(w http.ResponseWriter, url string) {
	writeJSON(w, http.StatusOK, URLBody{URL: url})
}

func Error(w http.ResponseWriter, status int, reason, message string) {
	Fail(w, status, ErrorBody{Code: status, Reason: reason, Message: message})
}

// Fail writes body with the given HTTP status.
func Fail(w http.ResponseWriter, status int, body ErrorBody) {
	writeJSON(w, status, errorEnvelope{Error: body})
}

// Empty writes status with no body.
func Empty(w http.ResponseWriter, status int) {
	w.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}
