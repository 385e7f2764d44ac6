package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"hls-ingest/internal/jobs"
	"hls-ingest/internal/logging"

	"github.com/gorilla/mux"
)

// ListJobs returns the most recent jobs. The optional limit query parameter
// is clamped to the ledger maximum.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSONError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	page, err := h.jobs.List(r.Context(), limit)
	if err != nil {
		logging.Error("Failed to list jobs: %v", err)
		writeJSONError(w, "Failed to list jobs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	writeJSONResponse(w, page, http.StatusOK)
}

// GetJob returns a single job by id.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	job, err := h.jobs.Get(r.Context(), id)
	if errors.Is(err, jobs.ErrNotFound) {
		writeJSONError(w, "Job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("Failed to get job %s: %v", logging.SanitizeField(id), err)
		writeJSONError(w, "Failed to get job", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	writeJSONResponse(w, job, http.StatusOK)
}
