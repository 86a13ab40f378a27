// Package respond writes the JSON response envelope used by all handlers.
package respond

import (
	"encoding/json"
	"net/http"
)

type response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func write(w http.ResponseWriter, status int, r response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(r)
}

func OK(w http.ResponseWriter, data any) {
	write(w, http.StatusOK, response{Success: true, Data: data})
}

func Created(w http.ResponseWriter, data any) {
	write(w, http.StatusCreated, response{Success: true, Data: data})
}

func Fail(w http.ResponseWriter, status int, err error) {
	write(w, status, response{Success: false, Error: err.Error()})
}
