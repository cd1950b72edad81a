package cmd

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gorm.io/gorm"

	"github.com/camden-git/vidfaces/artifacts"
	"github.com/camden-git/vidfaces/config"
	"github.com/camden-git/vidfaces/database"
	"github.com/camden-git/vidfaces/gallery"
	"github.com/camden-git/vidfaces/media"
	"github.com/camden-git/vidfaces/pipeline"
	"github.com/camden-git/vidfaces/recognition"
	"github.com/camden-git/vidfaces/repository"
	"github.com/camden-git/vidfaces/services"
	"github.com/camden-git/vidfaces/vision"
)

// app holds the long-lived resources shared by serve and scan.
type app struct {
	db        *gorm.DB
	sqlDB     *sql.DB
	artifacts *artifacts.Store
	analyzer  *media.Analyzer
	matcher   *recognition.Matcher
	gallery   *gallery.Store
	reports   *repository.ReportRepository
}

func openCatalog(cfg config.Config) (*gorm.DB, *sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := database.InitGormDB(cfg.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return db, sqlDB, nil
}

// newApp opens the catalog, loads the vision models and builds the gallery index.
func newApp(cfg config.Config) (*app, error) {
	a := &app{}

	var err error
	a.db, a.sqlDB, err = openCatalog(cfg)
	if err != nil {
		return nil, err
	}
	a.reports = repository.NewReportRepository(a.db)

	a.artifacts, err = artifacts.NewStore(cfg.DataDir, cfg.ArtifactSubDirs())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize artifact store: %w", err)
	}

	log.Printf("Loading %s face detector and %s recognition model...", cfg.FaceDetector, cfg.RecognitionModelName)
	a.analyzer, err = media.NewAnalyzer(media.ModelConfig{
		Detector:             media.DetectorKind(cfg.FaceDetector),
		YuNetModelPath:       cfg.YuNetModelPath,
		SSDConfigPath:        cfg.SSDConfigPath,
		SSDModelPath:         cfg.SSDModelPath,
		RecognitionModelPath: cfg.RecognitionModelPath,
		RecognitionModelName: cfg.RecognitionModelName,
		ConfidenceThreshold:  float32(cfg.ConfidenceThreshold),
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load vision models: %w", err)
	}

	a.matcher = recognition.NewMatcher(cfg.MatchTolerance)
	a.gallery, err = gallery.NewStore(cfg.KnownFacesDir, a.analyzer, a.matcher)
	if err != nil {
		a.Close()
		return nil, err
	}
	res, err := a.gallery.LoadAll()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load known faces: %w", err)
	}
	for _, skipped := range res.Skipped {
		log.Printf("Warning: %v", skipped)
	}
	log.Printf("Loaded %d known face(s) from %s", res.Loaded, cfg.KnownFacesDir)
	return a, nil
}

func (a *app) videoService(cfg config.Config, events services.EventPublisher) *services.VideoService {
	return services.NewVideoService(a.analyzer, a.matcher, a.artifacts, a.reports, events, openVideo, pipeline.Options{
		Stride:           cfg.FrameStride,
		DownsampleFactor: cfg.DownsampleFactor,
	})
}

func (a *app) Close() error {
	var errs []error
	if a.analyzer != nil {
		errs = append(errs, a.analyzer.Close())
	}
	if a.sqlDB != nil {
		errs = append(errs, a.sqlDB.Close())
	}
	return errors.Join(errs...)
}

func openVideo(path string) (vision.FrameSource, error) {
	src, err := media.OpenVideo(path)
	if err != nil {
		return nil, err
	}
	return src, nil
}
