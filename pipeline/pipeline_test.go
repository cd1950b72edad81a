package pipeline

import (
	"context"
	"image"
	"testing"

	"github.com/camden-git/vidfaces/vision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunTwoFrameScenario(t *testing.T) {
	src := newFakeSource(2, 10)
	det := &scriptedDetector{faces: map[int][]vision.Face{
		0: {face(2, 12, 10, 4, 1)},
	}}
	crops := newMemCrops()
	p := New(det, mapRecognizer{1: "Alice"}, crops, Options{Stride: 1, NewFaceID: seqIDs()})

	report, err := p.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 10.0, report.VideoInfo.FPS)
	assert.Equal(t, 0.2, report.VideoInfo.Duration)
	require.Len(t, report.Detections, 1)
	assert.Equal(t, Detection{Frame: 0, Time: 0, FaceID: "face-0", Name: "Alice", Location: [4]int{2, 12, 10, 4}}, report.Detections[0])
	assert.Equal(t, []UniqueFace{{ID: "face-0", Name: "Alice", ImagePath: "faces/face-0.jpg"}}, report.UniqueFaces)
	assert.Equal(t, image.Rect(0, 0, 8, 8), crops.crops["face-0"], "crop covers the detected box")
}

func TestRunUniqueFacesAndCrops(t *testing.T) {
	src := newFakeSource(12, 4)
	det := &scriptedDetector{faces: map[int][]vision.Face{
		0:  {face(0, 10, 10, 0, 9)},
		2:  {face(0, 10, 10, 0, 1), face(5, 30, 15, 20, 2)},
		4:  {face(0, 10, 10, 0, 1)},
		8:  {face(0, 10, 10, 0, 9), face(0, 10, 10, 0, 2)},
		10: {face(1, 11, 11, 1, 7)},
	}}
	crops := newMemCrops()
	p := New(det, mapRecognizer{1: "Alice", 2: "Bob"}, crops, Options{Stride: 2, NewFaceID: seqIDs()})

	report, err := p.Run(context.Background(), src)
	require.NoError(t, err)

	require.Len(t, report.Detections, 7)
	assert.Len(t, crops.order, 7, "every detection gets a crop")

	ids := map[string]bool{}
	for i, d := range report.Detections {
		assert.False(t, ids[d.FaceID], "face ids are never reused")
		ids[d.FaceID] = true
		if i > 0 {
			assert.GreaterOrEqual(t, d.Frame, report.Detections[i-1].Frame)
		}
	}

	assert.Equal(t, []UniqueFace{
		{ID: "face-0", Name: "UNKNOWN", ImagePath: "faces/face-0.jpg"},
		{ID: "face-1", Name: "Alice", ImagePath: "faces/face-1.jpg"},
		{ID: "face-2", Name: "Bob", ImagePath: "faces/face-2.jpg"},
	}, report.UniqueFaces)

	// each name's unique face is its earliest detection
	first := map[string]string{}
	for _, d := range report.Detections {
		if _, ok := first[d.Name]; !ok {
			first[d.Name] = d.FaceID
		}
	}
	for _, u := range report.UniqueFaces {
		assert.Equal(t, first[u.Name], u.ID)
	}
	assert.Len(t, report.UniqueFaces, len(first))
}

func TestRunSkipsFailedSamples(t *testing.T) {
	src := newFakeSource(4, 1)
	src.failAt = map[int]bool{3: true}
	det := &scriptedDetector{
		faces: map[int][]vision.Face{
			0: {face(0, 5, 5, 0, 1)},
			1: {face(0, 5, 5, 0, 1)},
			2: {face(0, 5, 5, 0, 2), face(0, 9, 9, 4, 2)},
		},
		failAt: map[int]bool{1: true},
	}
	crops := newMemCrops()
	crops.failOn = 3 // second face of frame 2
	var progress []Progress
	p := New(det, mapRecognizer{1: "Alice", 2: "Bob"}, crops, Options{
		Stride:     1,
		NewFaceID:  seqIDs(),
		OnProgress: func(pr Progress) { progress = append(progress, pr) },
	})

	report, err := p.Run(context.Background(), src)
	require.NoError(t, err)

	require.Len(t, report.Detections, 1)
	assert.Equal(t, "Alice", report.Detections[0].Name)
	assert.Len(t, report.UniqueFaces, 1)

	require.Len(t, progress, 4)
	assert.NoError(t, progress[0].Err)
	for i, stage := range map[int]string{1: StageDetect, 2: StagePersist, 3: StageDecode} {
		var spe *SampleProcessingError
		require.ErrorAs(t, progress[i].Err, &spe)
		assert.Equal(t, i, spe.FrameIndex)
		assert.Equal(t, stage, spe.Stage)
	}
	assert.Equal(t, 4, progress[3].SamplesDone)
	assert.Equal(t, 4, progress[3].SamplesExpected)

	// the crop written for the first face of frame 2 is removed with its sample
	assert.Equal(t, []string{"face-1"}, crops.deleted)
	assert.Len(t, crops.crops, 1)
	assert.Contains(t, crops.crops, report.Detections[0].FaceID)
}

func TestRunIdentifiesBeforePersisting(t *testing.T) {
	det := &scriptedDetector{faces: map[int][]vision.Face{
		0: {face(0, 4, 4, 0, 1), {Box: vision.Box{Top: 0, Right: 9, Bottom: 9, Left: 5}}},
	}}
	crops := newMemCrops()
	p := New(det, mapRecognizer{1: "Alice"}, crops, Options{Stride: 1, NewFaceID: seqIDs()})

	report, err := p.Run(context.Background(), newFakeSource(1, 1))
	require.NoError(t, err)
	assert.Empty(t, report.Detections)
	assert.Zero(t, crops.calls)
	assert.Empty(t, crops.crops)
}

func TestRunIdentifyFailureSkipsSample(t *testing.T) {
	src := newFakeSource(2, 1)
	det := &scriptedDetector{faces: map[int][]vision.Face{
		0: {{Box: vision.Box{Top: 0, Right: 4, Bottom: 4, Left: 0}}},
		1: {face(0, 4, 4, 0, 1)},
	}}
	p := New(det, mapRecognizer{1: "Alice"}, newMemCrops(), Options{Stride: 1, NewFaceID: seqIDs()})

	report, err := p.Run(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, report.Detections, 1)
	assert.Equal(t, 1, report.Detections[0].Frame)
}

func TestRunRescalesDownsampledBoxes(t *testing.T) {
	src := newFakeSource(1, 30)
	src.w, src.h = 100, 50
	det := &scriptedDetector{faces: map[int][]vision.Face{
		0: {face(5, 30, 20, 10, 1), face(-3, 60, 10, 45, 1)},
	}}
	p := New(det, mapRecognizer{1: "Alice"}, newMemCrops(), Options{Stride: 1, DownsampleFactor: 0.5, NewFaceID: seqIDs()})

	report, err := p.Run(context.Background(), src)
	require.NoError(t, err)

	require.Len(t, det.sizes, 1)
	assert.Equal(t, image.Pt(50, 25), det.sizes[0])
	require.Len(t, report.Detections, 2)
	assert.Equal(t, [4]int{10, 60, 40, 20}, report.Detections[0].Location)
	// out-of-frame geometry is clamped to the original frame
	assert.Equal(t, [4]int{0, 100, 20, 90}, report.Detections[1].Location)
}

func TestRunDropsEmptyBoxes(t *testing.T) {
	src := newFakeSource(1, 30)
	det := &scriptedDetector{faces: map[int][]vision.Face{0: {face(100, 200, 150, 180, 1)}}}
	crops := newMemCrops()
	p := New(det, mapRecognizer{}, crops, Options{Stride: 1})

	report, err := p.Run(context.Background(), src)
	require.NoError(t, err)
	assert.Empty(t, report.Detections)
	assert.Empty(t, crops.order)
}

func TestRunStates(t *testing.T) {
	var states []State
	det := &scriptedDetector{faces: map[int][]vision.Face{0: {face(0, 5, 5, 0, 1)}}}
	p := New(det, mapRecognizer{}, newMemCrops(), Options{Stride: 1, OnState: func(s State) { states = append(states, s) }})

	_, err := p.Run(context.Background(), newFakeSource(2, 10))
	require.NoError(t, err)
	assert.Equal(t, []State{
		StateOpening, StateSampling,
		StateDetecting, StateIdentifying, StatePersisting, StateSampling,
		StateDetecting, StateSampling,
		StateFinalizing, StateDone,
	}, states)

	states = nil
	_, err = p.Run(context.Background(), newFakeSource(0, 10))
	assert.ErrorIs(t, err, ErrUnopenableVideo)
	assert.Equal(t, []State{StateOpening, StateErrored}, states)
}

func TestRunDurationFallsBackToDecodedFrames(t *testing.T) {
	src := newFakeSource(3, 2)
	src.reported = 0
	p := New(&scriptedDetector{}, mapRecognizer{}, newMemCrops(), Options{Stride: 1})

	report, err := p.Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 1.5, report.VideoInfo.Duration)
	assert.NotNil(t, report.Detections)
	assert.NotNil(t, report.UniqueFaces)
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New(&scriptedDetector{}, mapRecognizer{}, newMemCrops(), Options{Stride: 1})

	_, err := p.Run(ctx, newFakeSource(3, 10))
	assert.ErrorIs(t, err, context.Canceled)
}
