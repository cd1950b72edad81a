package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/camden-git/vidfaces/handlers"
	"github.com/camden-git/vidfaces/realtime"
	"github.com/camden-git/vidfaces/services"
	"github.com/camden-git/vidfaces/workers"
)

const shutdownGracePeriod = 30 * time.Second

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if servePort != "" {
			cfg.Port = servePort
		}
		return runServer(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "Port to listen on (default: $PORT or 8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServer(ctx context.Context) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := realtime.NewHub()
	go hub.Run(hubCtx)

	videos := a.videoService(cfg, hub)
	log.Printf("Initializing video worker pool (Workers: %d, Queue Size: %d)...", cfg.NumVideoWorkers, cfg.VideoQueueSize)
	jobs := workers.NewVideoProcessor(videos, cfg.VideoQueueSize, cfg.NumVideoWorkers)

	router := handlers.NewRouter(handlers.RouterDeps{
		Videos:         videos,
		Gallery:        services.NewGalleryService(a.gallery, hub),
		Jobs:           jobs,
		Hub:            hub,
		DB:             a.sqlDB,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		MaxUploadBytes: cfg.MaxUploadBytes,
		RequestTimeout: cfg.RequestTimeout,
	})

	log.Printf("Using data directory: %s", cfg.DataDir)
	log.Printf("Using known faces directory: %s", cfg.KnownFacesDir)
	log.Printf("Using database: %s", cfg.DatabasePath)
	log.Printf("Sampling every %d frame(s), downsample %.2f, tolerance %.2f", cfg.FrameStride, cfg.DownsampleFactor, cfg.MatchTolerance)

	serverAddr := ":" + cfg.Port
	server := &http.Server{
		Addr:        serverAddr,
		Handler:     router,
		ReadTimeout: 10 * time.Minute,
		// synchronous uploads hold the response until the whole video is processed
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		fmt.Printf("Server starting on http://localhost:%s\n", cfg.Port)
		log.Printf("Server listening on %s", serverAddr)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		jobs.Stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during server shutdown: %v", err)
	}
	jobs.Stop()
	log.Println("Server stopped")
	return nil
}
