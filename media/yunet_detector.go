package media

import (
	"fmt"
	"image"
	"log"
	"os"

	"gocv.io/x/gocv"
)

const (
	yunetNMSThreshold = 0.3
	yunetTopK         = 5000
	yunetScoreColumn  = 14
)

// YuNetDetector locates faces with OpenCV's FaceDetectorYN.
type YuNetDetector struct {
	detector  gocv.FaceDetectorYN
	threshold float32
}

func NewYuNetDetector(modelPath string, threshold float32) (*YuNetDetector, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("media: yunet model not found at %s: %w", modelPath, err)
	}
	// input size is reset for every frame
	d := gocv.NewFaceDetectorYNWithParams(
		modelPath,
		"",
		image.Pt(320, 320),
		threshold,
		yunetNMSThreshold,
		yunetTopK,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)
	log.Printf("media: loaded yunet detector from %s", modelPath)
	return &YuNetDetector{detector: d, threshold: threshold}, nil
}

// Locate returns face rectangles and their scores. Rows of the output are
// x, y, w, h, five landmark pairs, then the score.
func (d *YuNetDetector) Locate(img gocv.Mat) ([]image.Rectangle, []float32, error) {
	if img.Empty() {
		return nil, nil, fmt.Errorf("media: empty image")
	}
	d.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()
	d.detector.Detect(img, &faces)

	bounds := image.Rect(0, 0, img.Cols(), img.Rows())
	var rects []image.Rectangle
	var scores []float32
	for r := 0; r < faces.Rows(); r++ {
		score := faces.GetFloatAt(r, yunetScoreColumn)
		if score < d.threshold {
			continue
		}
		x := int(faces.GetFloatAt(r, 0))
		y := int(faces.GetFloatAt(r, 1))
		w := int(faces.GetFloatAt(r, 2))
		h := int(faces.GetFloatAt(r, 3))
		rect := image.Rect(x, y, x+w, y+h).Intersect(bounds)
		if rect.Empty() {
			continue
		}
		rects = append(rects, rect)
		scores = append(scores, score)
	}
	return rects, scores, nil
}

func (d *YuNetDetector) Close() error {
	d.detector.Close()
	return nil
}
