package media

import (
	"fmt"
	"image"
	"log"

	"gocv.io/x/gocv"
)

// VideoSource reads a video file frame by frame through OpenCV. Every frame
// is decoded by the container, but conversion to an image.Image only happens
// when Retrieve is called.
type VideoSource struct {
	path    string
	capture *gocv.VideoCapture
	frame   gocv.Mat
}

// OpenVideo opens path for sequential reading.
func OpenVideo(path string) (*VideoSource, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("media: failed to open video %s: %w", path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("media: video %s could not be opened", path)
	}
	v := &VideoSource{path: path, capture: capture, frame: gocv.NewMat()}
	log.Printf("media: opened video %s (fps=%.2f, frames=%d)", path, v.FPS(), v.FrameCount())
	return v, nil
}

func (v *VideoSource) FPS() float64 {
	return v.capture.Get(gocv.VideoCaptureFPS)
}

func (v *VideoSource) FrameCount() int {
	return int(v.capture.Get(gocv.VideoCaptureFrameCount))
}

func (v *VideoSource) Grab() bool {
	if ok := v.capture.Read(&v.frame); !ok {
		return false
	}
	return !v.frame.Empty()
}

func (v *VideoSource) Retrieve() (image.Image, error) {
	if v.frame.Empty() {
		return nil, fmt.Errorf("media: no frame grabbed from %s", v.path)
	}
	img, err := v.frame.ToImage()
	if err != nil {
		return nil, fmt.Errorf("media: failed to convert frame from %s: %w", v.path, err)
	}
	return img, nil
}

func (v *VideoSource) Close() error {
	v.frame.Close()
	return v.capture.Close()
}
