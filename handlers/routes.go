package handlers

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/camden-git/vidfaces/realtime"
	"github.com/camden-git/vidfaces/services"
	"github.com/camden-git/vidfaces/workers"
)

// RouterDeps carries everything the HTTP surface needs. Jobs, Hub and DB are
// optional; their routes are only mounted when set.
type RouterDeps struct {
	Videos  *services.VideoService
	Gallery *services.GalleryService
	Jobs    *workers.VideoProcessor
	Hub     *realtime.Hub
	DB      *sql.DB

	AllowedOrigins []string
	MaxUploadBytes int64
	// RequestTimeout bounds every route except synchronous video processing.
	RequestTimeout time.Duration
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsHandler.Handler)

	videoHandler := &VideoHandler{Videos: d.Videos, Jobs: d.Jobs, MaxUploadBytes: d.MaxUploadBytes}
	knownFaceHandler := &KnownFaceHandler{Gallery: d.Gallery, MaxUploadBytes: d.MaxUploadBytes}
	faceImageHandler := &FaceImageHandler{Artifacts: d.Videos.Artifacts()}
	reportHandler := &ReportHandler{DB: d.DB, Artifacts: d.Videos.Artifacts()}

	// runs the whole pipeline inside the request
	r.Post("/upload-video", videoHandler.UploadVideo)

	if d.Hub != nil {
		r.Get("/ws", d.Hub.ServeWS)
	}

	r.Group(func(r chi.Router) {
		timeout := d.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		r.Use(middleware.Timeout(timeout))

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/add-known-face", knownFaceHandler.AddKnownFace)
		r.Get("/list-known-faces", knownFaceHandler.ListKnownFaces)
		r.Delete("/delete-known-face/{name}", knownFaceHandler.DeleteKnownFace)

		r.Post("/update-face", videoHandler.UpdateFace)

		r.Get("/face-image/{id}", faceImageHandler.FaceImage)
		r.Get("/get-face-image/*", faceImageHandler.GetFaceImage)

		r.Route("/reports", func(r chi.Router) {
			if d.DB != nil {
				r.Get("/", reportHandler.ListReports)
			}
			r.Get("/{name}", reportHandler.GetReport)
		})

		if d.Jobs != nil {
			r.Route("/jobs", func(r chi.Router) {
				r.Post("/upload-video", videoHandler.QueueVideo)
				r.Get("/{id}", videoHandler.GetJob)
			})
		}
	})

	return r
}
