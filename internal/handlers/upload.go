package handlers

import (
	"context"
	"net/http"

	"hls-ingest/internal/logging"
	"hls-ingest/internal/pipeline"
)

// JobIDHeader carries the job id of an upload on the response.
const JobIDHeader = "X-Job-ID"

// Upload receives a multipart video, transcodes it and responds with the
// stream and thumbnail URLs. Exactly one JSON body is written per request.
//
// The pipeline is detached from the request context once the upload has been
// received, so a client that disconnects mid-transcode does not leave a half
// written output tree behind. Engine work stays bounded by the stage timeout.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	up, err := h.pipeline.Receive(r)
	if err != nil {
		h.writePipelineError(w, err)
		return
	}
	w.Header().Set(JobIDHeader, up.ID)

	result, err := h.pipeline.Run(context.WithoutCancel(r.Context()), up)
	if err != nil {
		h.writePipelineError(w, err)
		return
	}

	writeJSONResponse(w, result, http.StatusOK)
}

func (h *Handlers) writePipelineError(w http.ResponseWriter, err error) {
	status := pipeline.StatusCode(err)
	if status >= http.StatusInternalServerError {
		logging.Error("Upload failed: %v", err)
	} else {
		logging.Debug("Upload rejected: %v", err)
	}
	writeJSONError(w, pipeline.PublicMessage(err), status)
}
