package pipeline

import (
	"errors"
	"fmt"
)

// ErrUnopenableVideo aborts a run before any frame is sampled.
var ErrUnopenableVideo = errors.New("pipeline: video cannot be opened")

var errEmptyFrame = errors.New("empty frame")

// Stages a sample can fail in.
const (
	StageDecode   = "decode"
	StageDetect   = "detect"
	StageIdentify = "identify"
	StagePersist  = "persist"
)

// SampleProcessingError is a recoverable failure of a single sampled frame.
type SampleProcessingError struct {
	FrameIndex int
	Stage      string
	Err        error
}

func (e *SampleProcessingError) Error() string {
	return fmt.Sprintf("pipeline: frame %d failed at %s: %v", e.FrameIndex, e.Stage, e.Err)
}

func (e *SampleProcessingError) Unwrap() error { return e.Err }
