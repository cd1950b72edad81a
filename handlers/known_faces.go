package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/camden-git/vidfaces/services"
)

// KnownFaceHandler exposes the known-faces gallery.
type KnownFaceHandler struct {
	Gallery        *services.GalleryService
	MaxUploadBytes int64
}

// AddKnownFace handles POST /add-known-face with multipart fields name and file.
func (h *KnownFaceHandler) AddKnownFace(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, uploadLimit(h.MaxUploadBytes))
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeFormError(w, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		WriteAPIError(w, http.StatusBadRequest, "missing_field", "Field 'name' is required")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "missing_field", "Field 'file' is required")
		return
	}
	defer file.Close()

	display, err := h.Gallery.Add(name, file)
	if err != nil {
		writeServiceError(w, "adding known face", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "name": display})
}

// ListKnownFaces handles GET /list-known-faces.
func (h *KnownFaceHandler) ListKnownFaces(w http.ResponseWriter, r *http.Request) {
	names, err := h.Gallery.List()
	if err != nil {
		writeServiceError(w, "listing known faces", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"names": names, "count": len(names)})
}

// DeleteKnownFace handles DELETE /delete-known-face/{name}.
func (h *KnownFaceHandler) DeleteKnownFace(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	found, err := h.Gallery.Delete(name)
	if err != nil {
		writeServiceError(w, "deleting known face", err)
		return
	}
	if !found {
		WriteAPIError(w, http.StatusNotFound, "not_found", "Known face not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}
