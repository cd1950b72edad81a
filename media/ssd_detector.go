package media

import (
	"fmt"
	"image"
	"log"

	"gocv.io/x/gocv"
)

// SSDDetector runs the res10 300x300 SSD face detector.
type SSDDetector struct {
	net           gocv.Net
	inputSize     image.Point
	mean          gocv.Scalar
	confThreshold float32
}

// NewSSDDetector loads the Caffe model and prefers CUDA when it is available.
func NewSSDDetector(configPath, modelPath string, threshold float32) (*SSDDetector, error) {
	if configPath == "" || modelPath == "" {
		return nil, fmt.Errorf("media: ssd detector needs both config and model paths")
	}
	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return nil, fmt.Errorf("media: failed to load ssd network: config=%s, model=%s", configPath, modelPath)
	}
	preferCUDA(&net, "ssd")

	if threshold <= 0 {
		threshold = 0.5
	}
	return &SSDDetector{
		net:           net,
		inputSize:     image.Pt(300, 300),
		mean:          gocv.NewScalar(104.0, 177.0, 123.0, 0),
		confThreshold: threshold,
	}, nil
}

// Locate parses the [1,1,N,7] detection output into pixel rectangles.
func (d *SSDDetector) Locate(img gocv.Mat) ([]image.Rectangle, []float32, error) {
	if img.Empty() {
		return nil, nil, fmt.Errorf("media: empty image")
	}
	imgW := float32(img.Cols())
	imgH := float32(img.Rows())

	blob := gocv.BlobFromImage(img, 1.0, d.inputSize, d.mean, false, false)
	defer blob.Close()
	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	sizes := out.Size()
	if len(sizes) != 4 || sizes[3] != 7 {
		return nil, nil, fmt.Errorf("media: unexpected ssd output shape %v", sizes)
	}
	n := sizes[2]
	if n == 0 {
		return nil, nil, nil
	}
	rows := out.Reshape(1, n)
	defer rows.Close()

	var rects []image.Rectangle
	var scores []float32
	for i := 0; i < n; i++ {
		conf := rows.GetFloatAt(i, 2)
		if conf <= d.confThreshold {
			continue
		}
		x0 := max(0, rows.GetFloatAt(i, 3)*imgW)
		y0 := max(0, rows.GetFloatAt(i, 4)*imgH)
		x1 := min(imgW, rows.GetFloatAt(i, 5)*imgW)
		y1 := min(imgH, rows.GetFloatAt(i, 6)*imgH)
		if x1 <= x0 || y1 <= y0 {
			continue
		}
		rects = append(rects, image.Rect(int(x0), int(y0), int(x1), int(y1)))
		scores = append(scores, conf)
	}
	return rects, scores, nil
}

func (d *SSDDetector) Close() error {
	return d.net.Close()
}

// preferCUDA switches net to CUDA, falling back to the CPU backend.
func preferCUDA(net *gocv.Net, name string) {
	backendErr := net.SetPreferableBackend(gocv.NetBackendCUDA)
	targetErr := net.SetPreferableTarget(gocv.NetTargetCUDA)
	if backendErr == nil && targetErr == nil {
		log.Printf("media: %s using CUDA backend", name)
		return
	}
	log.Printf("media: CUDA not available for %s (backend: %v, target: %v), using CPU", name, backendErr, targetErr)
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)
}
