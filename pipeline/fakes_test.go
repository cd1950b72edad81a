package pipeline

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/camden-git/vidfaces/vision"
)

// fakeSource serves solid-color frames; the red channel of frame i is i.
type fakeSource struct {
	fps       float64
	count     int
	reported  int
	w, h      int
	pos       int
	retrieves []int
	failAt    map[int]bool
}

func newFakeSource(frames int, fps float64) *fakeSource {
	return &fakeSource{fps: fps, count: frames, reported: frames, w: 40, h: 20, pos: -1}
}

func (s *fakeSource) FPS() float64    { return s.fps }
func (s *fakeSource) FrameCount() int { return s.reported }
func (s *fakeSource) Close() error    { return nil }

func (s *fakeSource) Grab() bool {
	if s.pos+1 >= s.count {
		return false
	}
	s.pos++
	return true
}

func (s *fakeSource) Retrieve() (image.Image, error) {
	s.retrieves = append(s.retrieves, s.pos)
	if s.failAt[s.pos] {
		return nil, fmt.Errorf("corrupt frame %d", s.pos)
	}
	img := image.NewRGBA(image.Rect(0, 0, s.w, s.h))
	c := color.RGBA{R: uint8(s.pos), A: 255}
	for y := 0; y < s.h; y++ {
		for x := 0; x < s.w; x++ {
			img.Set(x, y, c)
		}
	}
	return img, nil
}

// scriptedDetector returns the faces scripted for the frame whose index is
// encoded in the red channel.
type scriptedDetector struct {
	faces  map[int][]vision.Face
	failAt map[int]bool
	sizes  []image.Point
}

func (d *scriptedDetector) Detect(img image.Image) ([]vision.Face, error) {
	d.sizes = append(d.sizes, img.Bounds().Size())
	r, _, _, _ := img.At(img.Bounds().Min.X, img.Bounds().Min.Y).RGBA()
	idx := int(r >> 8)
	if d.failAt[idx] {
		return nil, errors.New("detector crashed")
	}
	return d.faces[idx], nil
}

type mapRecognizer map[float32]string

func (m mapRecognizer) Recognize(emb []float32) (string, error) {
	if len(emb) == 0 {
		return "", errors.New("empty embedding")
	}
	if name, ok := m[emb[0]]; ok {
		return name, nil
	}
	return "UNKNOWN", nil
}

type memCrops struct {
	mu      sync.Mutex
	crops   map[string]image.Rectangle
	order   []string
	deleted []string
	failOn  int
	calls   int
}

func newMemCrops() *memCrops {
	return &memCrops{crops: make(map[string]image.Rectangle), failOn: -1}
}

func (c *memCrops) PersistCrop(faceID string, img image.Image) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.calls == c.failOn {
		return "", errors.New("disk full")
	}
	c.crops[faceID] = img.Bounds()
	c.order = append(c.order, faceID)
	return "faces/" + faceID + ".jpg", nil
}

func (c *memCrops) DeleteCrop(faceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.crops, faceID)
	c.deleted = append(c.deleted, faceID)
	return nil
}

func seqIDs() func() string {
	n := 0
	return func() string {
		id := fmt.Sprintf("face-%d", n)
		n++
		return id
	}
}

func face(top, right, bottom, left int, emb float32) vision.Face {
	return vision.Face{
		Box:       vision.Box{Top: top, Right: right, Bottom: bottom, Left: left},
		Embedding: []float32{emb},
	}
}
