// Package httputil holds the JSON response helpers shared by the control
// surface and the health endpoints.
package httputil

import (
	"encoding/json"
	"log"
	"net/http"
)

// Failure is the body of every unsuccessful control response.
type Failure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode json response: %v", err)
	}
}

// WriteJSONOK writes a successful JSON response (200 OK).
func WriteJSONOK(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, data)
}

// WriteFailure writes {"success":false,"error":msg} with the given status.
func WriteFailure(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, Failure{Success: false, Error: msg})
}

// MethodNotAllowed writes a 405 response and advertises the allowed method.
func MethodNotAllowed(w http.ResponseWriter, allow string) {
	if allow != "" {
		w.Header().Set("Allow", allow)
	}
	WriteFailure(w, http.StatusMethodNotAllowed, "method not allowed")
}

// BadRequest writes a 400 Bad Request response with the given message.
func BadRequest(w http.ResponseWriter, msg string) {
	WriteFailure(w, http.StatusBadRequest, msg)
}

// InternalServerError writes a 500 Internal Server Error response.
func InternalServerError(w http.ResponseWriter, msg string) {
	WriteFailure(w, http.StatusInternalServerError, msg)
}
