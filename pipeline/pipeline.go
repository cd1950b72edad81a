package pipeline

import (
	"context"
	"fmt"
	"image"
	"log"

	"github.com/camden-git/vidfaces/vision"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

// State is the position of a run in its lifecycle.
type State int

const (
	StateOpening State = iota
	StateSampling
	StateDetecting
	StateIdentifying
	StatePersisting
	StateFinalizing
	StateDone
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateSampling:
		return "sampling"
	case StateDetecting:
		return "detecting"
	case StateIdentifying:
		return "identifying"
	case StatePersisting:
		return "persisting"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Recognizer maps an embedding to a known name or the unknown label.
type Recognizer interface {
	Recognize(embedding []float32) (string, error)
}

// CropWriter persists a face crop and returns a reference to it. DeleteCrop
// removes a crop written for a sample that was later dropped.
type CropWriter interface {
	PersistCrop(faceID string, img image.Image) (string, error)
	DeleteCrop(faceID string) error
}

// Progress is reported after every sample point.
type Progress struct {
	FrameIndex      int
	SamplesDone     int
	SamplesExpected int
	Detections      int
	Err             error
}

// DefaultDownsampleFactor is the working resolution used by the server.
const DefaultDownsampleFactor = 0.5

// Options tune a Pipeline. A zero Stride falls back to DefaultStride.
type Options struct {
	Stride int
	// DownsampleFactor scales frames before detection; values outside (0,1),
	// including zero, disable it.
	DownsampleFactor float64
	OnProgress       func(Progress)
	OnState          func(State)
	// NewFaceID overrides uuid generation, mainly for tests.
	NewFaceID func() string
}

// Pipeline turns a frame source into a report. It holds no per-run state and
// may run several videos concurrently.
type Pipeline struct {
	detector   vision.Detector
	recognizer Recognizer
	crops      CropWriter
	opts       Options
}

func New(detector vision.Detector, recognizer Recognizer, crops CropWriter, opts Options) *Pipeline {
	if opts.Stride < 1 {
		opts.Stride = DefaultStride
	}
	if opts.NewFaceID == nil {
		opts.NewFaceID = uuid.NewString
	}
	return &Pipeline{detector: detector, recognizer: recognizer, crops: crops, opts: opts}
}

// SampleResult is the outcome of one sample point: its detections, or the
// reason it was dropped.
type SampleResult struct {
	FrameIndex int
	Detections []Detection
	CropRefs   []string
	Err        error
}

type run struct {
	p     *Pipeline
	state State
}

func (r *run) enter(s State) {
	r.state = s
	if r.p.opts.OnState != nil {
		r.p.opts.OnState(s)
	}
}

// Run processes src from its first frame to its last. Only an unopenable
// source or cancellation of ctx fails the run; failed samples are logged and
// skipped.
func (p *Pipeline) Run(ctx context.Context, src vision.FrameSource) (*Report, error) {
	r := &run{p: p}
	r.enter(StateOpening)

	sampler, err := NewSampler(src, p.opts.Stride)
	if err != nil {
		r.enter(StateErrored)
		return nil, err
	}

	r.enter(StateSampling)
	agg := NewAggregator()
	samples, skipped := 0, 0
	expected := sampler.ExpectedSamples()
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("pipeline: run canceled after %d frame(s): %w", sampler.FramesRead(), err)
		}
		frame, ok := sampler.Next()
		if !ok {
			break
		}
		if !frame.Sample {
			continue
		}

		res := r.processSample(frame)
		r.enter(StateSampling)
		samples++
		if res.Err != nil {
			skipped++
			log.Printf("pipeline: skipping sample: %v", res.Err)
		} else {
			for i, d := range res.Detections {
				agg.Record(d, res.CropRefs[i])
			}
		}
		if p.opts.OnProgress != nil {
			p.opts.OnProgress(Progress{
				FrameIndex:      frame.Index,
				SamplesDone:     samples,
				SamplesExpected: expected,
				Detections:      len(res.Detections),
				Err:             res.Err,
			})
		}
	}

	r.enter(StateFinalizing)
	frames := src.FrameCount()
	if frames <= 0 {
		frames = sampler.FramesRead()
	}
	report := agg.Finalize(VideoInfo{
		FPS:      sampler.FPS(),
		Duration: float64(frames) / sampler.FPS(),
	})
	log.Printf("pipeline: processed %d frame(s), %d sample(s), %d skipped, %d detection(s), %d unique face(s)",
		sampler.FramesRead(), samples, skipped, len(report.Detections), len(report.UniqueFaces))
	r.enter(StateDone)
	return report, nil
}

// processSample detects, identifies and persists every face in one sample.
// Any failure drops the whole sample so partial frames never reach the report.
// Every face is identified before any crop is written, and crops written
// before a persist failure are removed again.
func (r *run) processSample(frame Frame) SampleResult {
	fail := func(stage string, err error) SampleResult {
		return SampleResult{FrameIndex: frame.Index, Err: &SampleProcessingError{FrameIndex: frame.Index, Stage: stage, Err: err}}
	}
	if frame.Err != nil {
		return fail(StageDecode, frame.Err)
	}

	r.enter(StateDetecting)
	bounds := frame.Image.Bounds()
	working, sx, sy, scaled := r.p.downsample(frame.Image)
	faces, err := r.p.detector.Detect(working)
	if err != nil {
		return fail(StageDetect, err)
	}

	type identified struct {
		box  vision.Box
		name string
	}
	var found []identified
	for _, face := range faces {
		box := face.Box
		if scaled {
			// resized images start at the origin
			box = box.Scale(sx, sy)
			box = vision.BoxFromRect(box.Rect().Add(bounds.Min))
		}
		box = box.Clamp(bounds)
		if box.Empty() {
			log.Printf("pipeline: frame %d: dropping face with empty box %v", frame.Index, face.Box)
			continue
		}

		if len(found) == 0 {
			r.enter(StateIdentifying)
		}
		name, err := r.p.recognizer.Recognize(face.Embedding)
		if err != nil {
			return fail(StageIdentify, err)
		}
		found = append(found, identified{box: box, name: name})
	}

	res := SampleResult{FrameIndex: frame.Index}
	if len(found) == 0 {
		return res
	}
	r.enter(StatePersisting)
	for _, f := range found {
		faceID := r.p.opts.NewFaceID()
		ref, err := r.p.crops.PersistCrop(faceID, imaging.Crop(frame.Image, f.box.Rect()))
		if err != nil {
			r.discardCrops(frame.Index, res.Detections)
			return fail(StagePersist, err)
		}

		res.Detections = append(res.Detections, Detection{
			Frame:    frame.Index,
			Time:     frame.Time,
			FaceID:   faceID,
			Name:     f.name,
			Location: f.box.Array(),
		})
		res.CropRefs = append(res.CropRefs, ref)
	}
	return res
}

func (r *run) discardCrops(frameIndex int, written []Detection) {
	for _, d := range written {
		if err := r.p.crops.DeleteCrop(d.FaceID); err != nil {
			log.Printf("pipeline: frame %d: failed to remove crop %s: %v", frameIndex, d.FaceID, err)
		}
	}
}

// downsample returns the image detection runs on and, when it was resized,
// the factors mapping its coordinates back to the original frame.
func (p *Pipeline) downsample(img image.Image) (image.Image, float64, float64, bool) {
	f := p.opts.DownsampleFactor
	if f <= 0 || f >= 1 {
		return img, 1, 1, false
	}
	b := img.Bounds()
	w := int(float64(b.Dx()) * f)
	h := int(float64(b.Dy()) * f)
	if w < 1 || h < 1 {
		return img, 1, 1, false
	}
	small := imaging.Resize(img, w, h, imaging.Linear)
	return small, float64(b.Dx()) / float64(w), float64(b.Dy()) / float64(h), true
}
