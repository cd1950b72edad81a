package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/camden-git/vidfaces/artifacts"
	"github.com/camden-git/vidfaces/gallery"
	"github.com/camden-git/vidfaces/pipeline"
	"github.com/camden-git/vidfaces/services"
	"github.com/camden-git/vidfaces/workers"
)

// APIErrorDetail represents a single error in the standardized error response.
type APIErrorDetail struct {
	Code   string `json:"code"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// APIErrorResponse represents the standardized error response body.
type APIErrorResponse struct {
	Errors []APIErrorDetail `json:"errors"`
}

// WriteAPIError writes a standardized error response with the given HTTP status, code, and detail.
func WriteAPIError(w http.ResponseWriter, httpStatus int, code string, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)

	resp := APIErrorResponse{
		Errors: []APIErrorDetail{
			{
				Code:   code,
				Status: strconv.Itoa(httpStatus),
				Detail: detail,
			},
		},
	}

	_ = json.NewEncoder(w).Encode(resp)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("Error encoding JSON response: %v", err)
		}
	}
}

// writeServiceError maps domain errors onto API errors. Anything unrecognized
// is logged and reported as an internal error.
func writeServiceError(w http.ResponseWriter, action string, err error) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		WriteAPIError(w, http.StatusRequestEntityTooLarge, "upload_too_large", "Upload exceeds the size limit")
	case errors.Is(err, services.ErrUnsupportedVideo):
		WriteAPIError(w, http.StatusBadRequest, "unsupported_video", "Only .mp4, .mov and .avi videos are accepted")
	case errors.Is(err, services.ErrMissingField):
		WriteAPIError(w, http.StatusBadRequest, "missing_field", err.Error())
	case errors.Is(err, gallery.ErrInvalidName):
		WriteAPIError(w, http.StatusBadRequest, "invalid_name", "Name must not be empty")
	case errors.Is(err, artifacts.ErrInvalidPath):
		WriteAPIError(w, http.StatusBadRequest, "invalid_path", "Invalid path")
	case errors.Is(err, artifacts.ErrNotFound), errors.Is(err, workers.ErrJobUnknown):
		WriteAPIError(w, http.StatusNotFound, "not_found", "Not found")
	case errors.Is(err, pipeline.ErrUnopenableVideo):
		WriteAPIError(w, http.StatusUnprocessableEntity, "unopenable_video", err.Error())
	case errors.Is(err, workers.ErrQueueFull), errors.Is(err, workers.ErrStopped):
		WriteAPIError(w, http.StatusServiceUnavailable, "queue_unavailable", err.Error())
	default:
		log.Printf("Error during %s: %v", action, err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", action+" failed")
	}
}
