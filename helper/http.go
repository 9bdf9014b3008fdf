package helper

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Errors []string `json:"errors"`
}

// JSONResponse writes data as a JSON response with the given status.
func JSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// JSONError writes an error response with the given status and message.
func JSONError(w http.ResponseWriter, statusCode int, message string) {
	JSONResponse(w, statusCode, &ErrorBody{Errors: []string{message}})
}
