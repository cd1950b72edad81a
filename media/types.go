package media

import (
	"image"

	"gocv.io/x/gocv"
)

// DetectorKind selects the face locator backing an Analyzer.
type DetectorKind string

const (
	DetectorYuNet DetectorKind = "yunet"
	DetectorSSD   DetectorKind = "ssd"
)

// ModelConfig points at the model files loaded by NewAnalyzer.
type ModelConfig struct {
	Detector DetectorKind

	YuNetModelPath string

	// res10 SSD face detector (Caffe)
	SSDConfigPath string
	SSDModelPath  string

	// face recognition network (ONNX), e.g. arcface or sface
	RecognitionModelPath string
	RecognitionModelName string

	ConfidenceThreshold float32
}

// faceLocator finds face rectangles in a BGR image.
type faceLocator interface {
	Locate(img gocv.Mat) ([]image.Rectangle, []float32, error)
	Close() error
}
