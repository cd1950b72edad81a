package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"

	"gorm.io/gorm"

	"github.com/camden-git/vidfaces/artifacts"
	"github.com/camden-git/vidfaces/models"
	"github.com/camden-git/vidfaces/pipeline"
	"github.com/camden-git/vidfaces/realtime"
	"github.com/camden-git/vidfaces/repository"
	"github.com/camden-git/vidfaces/vision"
)

var (
	ErrUnsupportedVideo = errors.New("services: unsupported video format")
	ErrMissingField     = errors.New("services: missing required field")
)

// progressEvery limits video.progress events to one per this many samples.
const progressEvery = 10

// VideoOpener opens a video file as a frame source.
type VideoOpener func(path string) (vision.FrameSource, error)

// EventPublisher receives realtime notifications.
type EventPublisher interface {
	Broadcast(event realtime.Event)
}

// ProcessOptions identify a run for events and let callers follow progress.
type ProcessOptions struct {
	JobID      string
	OnProgress func(pipeline.Progress)
}

// ProcessResult is a finished run: the report and the name it was stored under.
type ProcessResult struct {
	Report      *pipeline.Report
	ResultsPath string
}

// VideoService runs uploads through the detection pipeline, stores the
// resulting report and keeps the catalog in step with it.
type VideoService struct {
	detector   vision.Detector
	recognizer pipeline.Recognizer
	artifacts  *artifacts.Store
	reports    repository.ReportRepositoryInterface
	events     EventPublisher
	open       VideoOpener
	opts       pipeline.Options
}

// NewVideoService wires the pipeline collaborators. reports and events may be
// nil, in which case cataloging and notifications are skipped.
func NewVideoService(
	detector vision.Detector,
	recognizer pipeline.Recognizer,
	store *artifacts.Store,
	reports repository.ReportRepositoryInterface,
	events EventPublisher,
	open VideoOpener,
	opts pipeline.Options,
) *VideoService {
	return &VideoService{
		detector:   detector,
		recognizer: recognizer,
		artifacts:  store,
		reports:    reports,
		events:     events,
		open:       open,
		opts:       opts,
	}
}

// Artifacts exposes the store backing this service.
func (s *VideoService) Artifacts() *artifacts.Store { return s.artifacts }

// ProcessUpload copies an uploaded video into the temp area, processes it and
// removes the temp copy on every path out.
func (s *VideoService) ProcessUpload(ctx context.Context, filename string, data io.Reader, opts ProcessOptions) (*ProcessResult, error) {
	if !artifacts.IsAllowedVideo(filename) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVideo, filename)
	}
	tempPath, err := s.artifacts.SaveTemp(filepath.Ext(filename), data)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := s.artifacts.DeleteTemp(tempPath); err != nil {
			log.Printf("services: failed to remove temp upload %s: %v", tempPath, err)
		}
	}()
	return s.ProcessFile(ctx, filepath.Base(filename), tempPath, opts)
}

// ProcessFile runs the pipeline over a video already on disk.
func (s *VideoService) ProcessFile(ctx context.Context, sourceName, path string, opts ProcessOptions) (*ProcessResult, error) {
	result, err := s.process(ctx, sourceName, path, opts)
	if err != nil {
		s.publish(realtime.Event{
			Type:   realtime.EventVideoFailed,
			JobID:  opts.JobID,
			Source: sourceName,
			Error:  err.Error(),
		})
		return nil, err
	}
	s.publish(realtime.Event{
		Type:        realtime.EventVideoDone,
		JobID:       opts.JobID,
		Source:      sourceName,
		ResultsPath: result.ResultsPath,
		Extra: map[string]interface{}{
			"detections":   len(result.Report.Detections),
			"unique_faces": len(result.Report.UniqueFaces),
		},
	})
	return result, nil
}

func (s *VideoService) process(ctx context.Context, sourceName, path string, opts ProcessOptions) (*ProcessResult, error) {
	src, err := s.open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrUnopenableVideo, err)
	}
	defer src.Close()

	runOpts := s.opts
	runOpts.OnProgress = func(p pipeline.Progress) {
		if s.opts.OnProgress != nil {
			s.opts.OnProgress(p)
		}
		if opts.OnProgress != nil {
			opts.OnProgress(p)
		}
		if p.SamplesDone%progressEvery == 0 || p.SamplesDone == p.SamplesExpected {
			s.publish(realtime.Event{
				Type:   realtime.EventVideoProgress,
				JobID:  opts.JobID,
				Source: sourceName,
				Frame:  p.FrameIndex,
				Done:   p.SamplesDone,
				Total:  p.SamplesExpected,
			})
		}
	}

	report, err := pipeline.New(s.detector, s.recognizer, s.artifacts, runOpts).Run(ctx, src)
	if err != nil {
		return nil, err
	}

	name, err := s.artifacts.PersistReport(report)
	if err != nil {
		return nil, err
	}

	if s.reports != nil {
		record := &models.ReportRecord{
			ResultsPath:     name,
			SourceName:      sourceName,
			FPS:             report.VideoInfo.FPS,
			Duration:        report.VideoInfo.Duration,
			DetectionCount:  len(report.Detections),
			UniqueFaceCount: len(report.UniqueFaces),
		}
		if err := s.reports.Create(record); err != nil {
			// the report file is authoritative
			log.Printf("services: failed to catalog report %s: %v", name, err)
		}
	}

	log.Printf("services: processed %s into %s (%d detection(s))", sourceName, name, len(report.Detections))
	return &ProcessResult{Report: report, ResultsPath: name}, nil
}

// Relabel renames a face throughout a stored report and returns the number of
// detections changed. A face id absent from the report changes nothing.
func (s *VideoService) Relabel(resultsPath, faceID, newName string) (int, error) {
	faceID = strings.TrimSpace(faceID)
	newName = strings.TrimSpace(newName)
	if faceID == "" || newName == "" || resultsPath == "" {
		return 0, fmt.Errorf("%w: face_id, new_name and results_path are required", ErrMissingField)
	}

	var oldName string
	updated := 0
	_, err := s.artifacts.UpdateReport(resultsPath, func(r *pipeline.Report) error {
		for _, d := range r.Detections {
			if d.FaceID == faceID {
				oldName = d.Name
				break
			}
		}
		updated = pipeline.Relabel(r, faceID, newName)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if updated == 0 {
		log.Printf("services: relabel of %s in %s matched no detections", faceID, resultsPath)
		return 0, nil
	}

	if s.reports != nil {
		err := s.reports.RecordRelabel(resultsPath, &models.FaceRelabel{
			FaceID:  faceID,
			OldName: oldName,
			NewName: newName,
			Updated: updated,
		})
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("services: failed to record relabel of %s in %s: %v", faceID, resultsPath, err)
		}
	}

	s.publish(realtime.Event{
		Type:        realtime.EventFaceRelabeled,
		ResultsPath: resultsPath,
		FaceID:      faceID,
		Name:        newName,
		Extra:       map[string]interface{}{"old_name": oldName, "updated": updated},
	})
	return updated, nil
}

func (s *VideoService) publish(event realtime.Event) {
	if s.events != nil {
		s.events.Broadcast(event)
	}
}
