package utils

import (
	"encoding/json"
	"log"
	"net/http"
)

// ErrorBody is the JSON shape of every API error
type ErrorBody struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[HTTP] Failed to encode response: %v", err)
	}
}

// RawJSON writes an already encoded body, e.g. a cache hit
func RawJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func Error(w http.ResponseWriter, status int, kind, message string) {
	JSON(w, status, ErrorBody{Error: kind, Message: message})
}
