package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/camden-git/vidfaces/services"
	"github.com/camden-git/vidfaces/workers"
)

// multipartMemory is how much of a multipart body is kept in memory before
// spilling to disk.
const multipartMemory = 32 << 20

// DefaultMaxUploadBytes applies when a handler has no explicit limit.
const DefaultMaxUploadBytes = 512 << 20

func uploadLimit(n int64) int64 {
	if n <= 0 {
		return DefaultMaxUploadBytes
	}
	return n
}

// VideoHandler accepts video uploads and report edits.
type VideoHandler struct {
	Videos         *services.VideoService
	Jobs           *workers.VideoProcessor
	MaxUploadBytes int64
}

// UploadVideo handles POST /upload-video. The video is processed within the
// request and the finished report is returned.
func (h *VideoHandler) UploadVideo(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, uploadLimit(h.MaxUploadBytes))
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeFormError(w, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "missing_field", "Field 'file' is required")
		return
	}
	defer file.Close()

	res, err := h.Videos.ProcessUpload(r.Context(), header.Filename, file, services.ProcessOptions{
		JobID: middleware.GetReqID(r.Context()),
	})
	if err != nil {
		writeServiceError(w, "video processing", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "success",
		"results":      res.Report,
		"results_path": res.ResultsPath,
	})
}

// QueueVideo handles POST /jobs/upload-video and returns immediately with a job id.
func (h *VideoHandler) QueueVideo(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, uploadLimit(h.MaxUploadBytes))
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeFormError(w, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "missing_field", "Field 'file' is required")
		return
	}
	defer file.Close()

	id, err := h.Jobs.Submit(header.Filename, file)
	if err != nil {
		writeServiceError(w, "queueing video", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": workers.StatusQueued, "job_id": id})
}

// GetJob handles GET /jobs/{id}.
func (h *VideoHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	st, err := h.Jobs.Status(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "job lookup", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type updateFaceRequest struct {
	FaceID      string `json:"face_id"`
	NewName     string `json:"new_name"`
	ResultsPath string `json:"results_path"`
}

// UpdateFace handles POST /update-face. Fields arrive as a form or as a JSON body.
func (h *VideoHandler) UpdateFace(w http.ResponseWriter, r *http.Request) {
	var req updateFaceRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
			return
		}
	} else {
		if mediaType == "multipart/form-data" {
			if err := r.ParseMultipartForm(multipartMemory); err != nil {
				writeFormError(w, err)
				return
			}
		}
		req.FaceID = r.FormValue("face_id")
		req.NewName = r.FormValue("new_name")
		req.ResultsPath = r.FormValue("results_path")
	}

	updated, err := h.Videos.Relabel(req.ResultsPath, req.FaceID, req.NewName)
	if err != nil {
		writeServiceError(w, "updating face", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "updated": updated})
}

func writeFormError(w http.ResponseWriter, err error) {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		WriteAPIError(w, http.StatusRequestEntityTooLarge, "upload_too_large", "Upload exceeds the size limit")
		return
	}
	WriteAPIError(w, http.StatusBadRequest, "invalid_form", "Expected a multipart form: "+err.Error())
}
