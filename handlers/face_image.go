package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/camden-git/vidfaces/artifacts"
)

const assetCacheDuration = 24 * time.Hour

// FaceImageHandler serves persisted face crops.
type FaceImageHandler struct {
	Artifacts *artifacts.Store
}

// FaceImage handles GET /face-image/{id}; id may carry the .jpg suffix.
func (h *FaceImageHandler) FaceImage(w http.ResponseWriter, r *http.Request) {
	path, err := h.Artifacts.CropPath(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "face image lookup", err)
		return
	}
	serveAsset(w, r, path)
}

// GetFaceImage handles GET /get-face-image/*, where the rest of the path is
// relative to the data directory and must name a crop, e.g. faces/<id>.jpg.
func (h *FaceImageHandler) GetFaceImage(w http.ResponseWriter, r *http.Request) {
	relativePath := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	path, err := h.Artifacts.Resolve(relativePath)
	if err != nil {
		writeServiceError(w, "face image lookup", err)
		return
	}
	serveAsset(w, r, path)
}

func serveAsset(w http.ResponseWriter, r *http.Request, path string) {
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(assetCacheDuration.Seconds())))
	w.Header().Set("Expires", time.Now().Add(assetCacheDuration).Format(http.TimeFormat))
	http.ServeFile(w, r, path)
}
