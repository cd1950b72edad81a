package pipeline

import (
	"fmt"
	"image"
	"math"

	"github.com/camden-git/vidfaces/vision"
)

// DefaultStride is the number of frames between sample points.
const DefaultStride = 5

// Frame is one position in the stream. Only sample points carry pixels.
type Frame struct {
	Index  int
	Time   float64
	Sample bool
	Image  image.Image
	Err    error
}

// Sampler walks a FrameSource forward once, marking every stride-th frame as
// a sample point. A new pass needs a new Sampler over a new source.
type Sampler struct {
	src     vision.FrameSource
	stride  int
	fps     float64
	next    int
	pending bool
	done    bool
}

// NewSampler validates the source and positions it on the first frame. It
// fails with ErrUnopenableVideo when the stream has no usable frame rate or
// no frames.
func NewSampler(src vision.FrameSource, stride int) (*Sampler, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: no source", ErrUnopenableVideo)
	}
	if stride < 1 {
		stride = DefaultStride
	}
	fps := src.FPS()
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return nil, fmt.Errorf("%w: invalid frame rate %v", ErrUnopenableVideo, fps)
	}
	if !src.Grab() {
		return nil, fmt.Errorf("%w: no decodable frames", ErrUnopenableVideo)
	}
	return &Sampler{src: src, stride: stride, fps: fps, pending: true}, nil
}

// Next returns the next frame, or false once the stream is exhausted.
func (s *Sampler) Next() (Frame, bool) {
	if s.done {
		return Frame{}, false
	}
	if s.pending {
		s.pending = false
	} else if !s.src.Grab() {
		s.done = true
		return Frame{}, false
	}

	idx := s.next
	s.next++
	f := Frame{
		Index:  idx,
		Time:   float64(idx) / s.fps,
		Sample: idx%s.stride == 0,
	}
	if f.Sample {
		f.Image, f.Err = s.src.Retrieve()
		if f.Err == nil && f.Image == nil {
			f.Err = errEmptyFrame
		}
	}
	return f, true
}

func (s *Sampler) FPS() float64 { return s.fps }

func (s *Sampler) Stride() int { return s.stride }

// FramesRead is the number of frames consumed so far.
func (s *Sampler) FramesRead() int { return s.next }

// ExpectedSamples is ceil(frames/stride) for the reported frame count, or 0
// when the container does not report one.
func (s *Sampler) ExpectedSamples() int {
	n := s.src.FrameCount()
	if n <= 0 {
		return 0
	}
	return (n + s.stride - 1) / s.stride
}
