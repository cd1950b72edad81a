// Package vision holds the narrow types shared between the face pipeline and
// the model/video backends that implement it.
package vision

import (
	"image"
	"math"
)

// Box is a face rectangle in pixel coordinates, stored as top, right, bottom, left.
type Box struct {
	Top    int
	Right  int
	Bottom int
	Left   int
}

// BoxFromRect converts an image.Rectangle into a Box.
func BoxFromRect(r image.Rectangle) Box {
	return Box{Top: r.Min.Y, Right: r.Max.X, Bottom: r.Max.Y, Left: r.Min.X}
}

// Rect returns the box as an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.Left, b.Top, b.Right, b.Bottom)
}

// Array returns the box in report order.
func (b Box) Array() [4]int {
	return [4]int{b.Top, b.Right, b.Bottom, b.Left}
}

// Scale multiplies horizontal coordinates by sx and vertical ones by sy.
func (b Box) Scale(sx, sy float64) Box {
	return Box{
		Top:    int(math.Round(float64(b.Top) * sy)),
		Right:  int(math.Round(float64(b.Right) * sx)),
		Bottom: int(math.Round(float64(b.Bottom) * sy)),
		Left:   int(math.Round(float64(b.Left) * sx)),
	}
}

// Clamp limits the box to bounds.
func (b Box) Clamp(bounds image.Rectangle) Box {
	return BoxFromRect(b.Rect().Intersect(bounds))
}

// Empty reports whether the box has no area.
func (b Box) Empty() bool {
	return b.Right <= b.Left || b.Bottom <= b.Top
}

// Face is one detected face with its embedding.
type Face struct {
	Box        Box
	Embedding  []float32
	Confidence float32
}

// Detector finds faces in an image and returns one embedding per face.
// Boxes are in the coordinate space of the image passed in.
type Detector interface {
	Detect(img image.Image) ([]Face, error)
}

// FrameSource is a decoded video stream read strictly forward.
type FrameSource interface {
	// FPS is the nominal frame rate of the stream.
	FPS() float64
	// FrameCount is the frame count reported by the container, or <= 0 when unknown.
	FrameCount() int
	// Grab advances to the next frame and reports false at end of stream.
	Grab() bool
	// Retrieve returns the pixels of the frame most recently grabbed.
	Retrieve() (image.Image, error)
	Close() error
}
