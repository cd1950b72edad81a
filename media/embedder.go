package media

import (
	"fmt"
	"image"
	"log"
	"math"
	"os"

	"gocv.io/x/gocv"
)

// Embedder turns a face region into a unit-length embedding using a
// recognition network.
type Embedder struct {
	net       gocv.Net
	modelName string
	inputSize image.Point
	scale     float64
	mean      gocv.Scalar
	swapRB    bool
}

// NewEmbedder loads an ONNX recognition model. modelName selects the input
// geometry: "arcface" and "sface" use 112x112, "facenet" uses 160x160.
func NewEmbedder(modelPath, modelName string) (*Embedder, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("media: recognition model path is empty")
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("media: recognition model not found at %s: %w", modelPath, err)
	}
	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("media: failed to load recognition model %s", modelPath)
	}
	preferCUDA(&net, modelName)

	e := &Embedder{
		net:       net,
		modelName: modelName,
		inputSize: image.Pt(112, 112),
		scale:     1.0 / 128.0,
		mean:      gocv.NewScalar(127.5, 127.5, 127.5, 0),
		swapRB:    true,
	}
	switch modelName {
	case "facenet":
		e.inputSize = image.Pt(160, 160)
	case "sface":
		// sface normalizes internally
		e.scale = 1.0
		e.mean = gocv.NewScalar(0, 0, 0, 0)
	}
	log.Printf("media: loaded %s recognition model from %s", modelName, modelPath)
	return e, nil
}

// Extract returns the L2-normalized embedding of a BGR face region.
func (e *Embedder) Extract(face gocv.Mat) ([]float32, error) {
	if face.Empty() {
		return nil, fmt.Errorf("media: empty face region")
	}
	blob := gocv.BlobFromImage(face, e.scale, e.inputSize, e.mean, e.swapRB, false)
	defer blob.Close()

	e.net.SetInput(blob, "")
	out := e.net.Forward("")
	defer out.Close()

	flat := out.Reshape(1, 1)
	defer flat.Close()
	n := flat.Cols()
	if n == 0 {
		return nil, fmt.Errorf("media: %s produced an empty embedding", e.modelName)
	}
	emb := make([]float32, n)
	for i := range emb {
		emb[i] = flat.GetFloatAt(0, i)
	}
	return normalize(emb), nil
}

func (e *Embedder) Close() error {
	return e.net.Close()
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}
