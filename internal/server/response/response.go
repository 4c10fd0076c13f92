// Package response holds the JSON response helpers shared by all HTTP
// handlers.
package response

import (
	"encoding/json"
	"net/http"
)

// JSON writes v as the response body with the given status.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes an error body of the form {"error": code}.
func Error(w http.ResponseWriter, status int, code string) {
	JSON(w, status, map[string]interface{}{"error": code})
}

// ErrorWith writes an error body with extra fields alongside the code.
func ErrorWith(w http.ResponseWriter, status int, code string, extra map[string]interface{}) {
	body := map[string]interface{}{"error": code}
	for k, v := range extra {
		body[k] = v
	}
	JSON(w, status, body)
}
