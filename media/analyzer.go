package media

import (
	"errors"
	"fmt"
	"image"
	"log"
	"sync"

	"github.com/camden-git/vidfaces/vision"
	"gocv.io/x/gocv"
)

// Analyzer combines a face locator with an embedder into a vision.Detector.
// OpenCV networks are not safe for concurrent use, so calls are serialized.
type Analyzer struct {
	mu       sync.Mutex
	locator  faceLocator
	embedder *Embedder
}

// NewAnalyzer loads the models named in cfg.
func NewAnalyzer(cfg ModelConfig) (*Analyzer, error) {
	var (
		locator faceLocator
		err     error
	)
	switch cfg.Detector {
	case DetectorSSD:
		locator, err = NewSSDDetector(cfg.SSDConfigPath, cfg.SSDModelPath, cfg.ConfidenceThreshold)
	case DetectorYuNet, "":
		locator, err = NewYuNetDetector(cfg.YuNetModelPath, cfg.ConfidenceThreshold)
	default:
		return nil, fmt.Errorf("media: unknown detector %q", cfg.Detector)
	}
	if err != nil {
		return nil, err
	}

	embedder, err := NewEmbedder(cfg.RecognitionModelPath, cfg.RecognitionModelName)
	if err != nil {
		locator.Close()
		return nil, err
	}
	return &Analyzer{locator: locator, embedder: embedder}, nil
}

// Detect implements vision.Detector. Boxes are in img's coordinate space.
func (a *Analyzer) Detect(img image.Image) ([]vision.Face, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("media: failed to convert image: %w", err)
	}
	defer mat.Close()

	a.mu.Lock()
	defer a.mu.Unlock()

	rects, scores, err := a.locator.Locate(mat)
	if err != nil {
		return nil, err
	}

	origin := img.Bounds().Min
	faces := make([]vision.Face, 0, len(rects))
	for i, rect := range rects {
		region := mat.Region(rect)
		emb, err := a.embedder.Extract(region)
		region.Close()
		if err != nil {
			log.Printf("media: dropping face at %v: %v", rect, err)
			continue
		}
		faces = append(faces, vision.Face{
			Box:        vision.BoxFromRect(rect.Add(origin)),
			Embedding:  emb,
			Confidence: scores[i],
		})
	}
	return faces, nil
}

func (a *Analyzer) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return errors.Join(a.locator.Close(), a.embedder.Close())
}
