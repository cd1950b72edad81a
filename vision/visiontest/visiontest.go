// Package visiontest provides deterministic vision.FrameSource and
// vision.Detector implementations for tests and local development.
package visiontest

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/camden-git/vidfaces/vision"
)

// Source serves solid frames. The red channel of frame i is i, which lets
// Detector recognize the frame it is looking at.
type Source struct {
	Rate     float64
	Frames   int
	Reported int
	Width    int
	Height   int

	pos    int
	closed bool
}

func NewSource(frames int, fps float64) *Source {
	return &Source{Rate: fps, Frames: frames, Reported: frames, Width: 32, Height: 32, pos: -1}
}

func (s *Source) FPS() float64    { return s.Rate }
func (s *Source) FrameCount() int { return s.Reported }

func (s *Source) Grab() bool {
	if s.closed || s.pos+1 >= s.Frames {
		return false
	}
	s.pos++
	return true
}

func (s *Source) Retrieve() (image.Image, error) {
	if s.pos < 0 {
		return nil, errors.New("visiontest: no frame grabbed")
	}
	if s.pos > 255 {
		return nil, fmt.Errorf("visiontest: frame %d cannot be encoded", s.pos)
	}
	img := image.NewRGBA(image.Rect(0, 0, s.Width, s.Height))
	c := color.RGBA{R: uint8(s.pos), A: 255}
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			img.Set(x, y, c)
		}
	}
	return img, nil
}

func (s *Source) Close() error {
	s.closed = true
	return nil
}

func (s *Source) Closed() bool { return s.closed }

// Detector reports one face on every frame listed in Embeddings. The face
// covers Box, or the middle half of the image when Box is empty.
type Detector struct {
	Embeddings map[int][]float32
	Box        image.Rectangle

	mu    sync.Mutex
	calls int
}

func (d *Detector) Detect(img image.Image) ([]vision.Face, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()

	b := img.Bounds()
	r, _, _, _ := img.At(b.Min.X, b.Min.Y).RGBA()
	emb, ok := d.Embeddings[int(r>>8)]
	if !ok {
		return nil, nil
	}
	box := d.Box
	if box.Empty() {
		box = image.Rect(b.Min.X+b.Dx()/4, b.Min.Y+b.Dy()/4, b.Max.X-b.Dx()/4, b.Max.Y-b.Dy()/4)
	}
	return []vision.Face{{Box: vision.BoxFromRect(box), Embedding: emb, Confidence: 1}}, nil
}

// Calls returns how many times Detect ran.
func (d *Detector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}
