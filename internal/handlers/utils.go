package handlers

import (
	"encoding/json"
	"net/http"

	"hls-ingest/internal/logging"
)

// writeJSON encodes v as JSON and writes it to the response writer.
// Any encoding or write errors are logged since we typically cannot
// recover from them in an HTTP handler context.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONResponse writes v as JSON with the given status code.
func writeJSONResponse(w http.ResponseWriter, v interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, v)
}

// writeJSONError writes an {"error": message} body with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONResponse(w, map[string]string{"error": message}, statusCode)
}

// writeJSONStatus writes a {"status": status} body with the given status code.
func writeJSONStatus(w http.ResponseWriter, status string, statusCode int) {
	writeJSONResponse(w, map[string]string{"status": status}, statusCode)
}
