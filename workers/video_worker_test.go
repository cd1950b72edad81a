package workers

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/vidfaces/artifacts"
	"github.com/camden-git/vidfaces/pipeline"
	"github.com/camden-git/vidfaces/recognition"
	"github.com/camden-git/vidfaces/services"
	"github.com/camden-git/vidfaces/vision"
	"github.com/camden-git/vidfaces/vision/visiontest"
)

func newService(t *testing.T, open services.VideoOpener) (*services.VideoService, *artifacts.Store) {
	t.Helper()
	store, err := artifacts.NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	matcher := recognition.NewMatcher(0)
	require.NoError(t, matcher.Replace([]recognition.KnownFace{{Name: "Alice", Embedding: []float32{1, 0}}}))
	detector := &visiontest.Detector{Embeddings: map[int][]float32{0: {1, 0}}}
	return services.NewVideoService(detector, matcher, store, nil, nil, open, pipeline.Options{Stride: 1}), store
}

func twoFrames(string) (vision.FrameSource, error) {
	return visiontest.NewSource(2, 10), nil
}

func tempCount(t *testing.T, store *artifacts.Store) int {
	t.Helper()
	entries, err := os.ReadDir(store.Dir(artifacts.AssetTypeTemp))
	require.NoError(t, err)
	return len(entries)
}

func waitForStatus(t *testing.T, vp *VideoProcessor, id, status string) JobState {
	t.Helper()
	var st JobState
	require.Eventually(t, func() bool {
		var err error
		st, err = vp.Status(id)
		return err == nil && st.Status == status
	}, 5*time.Second, 10*time.Millisecond)
	return st
}

func TestVideoProcessor_ProcessesJob(t *testing.T) {
	svc, store := newService(t, twoFrames)
	vp := NewVideoProcessor(svc, 4, 2)
	defer vp.Stop()

	id, err := vp.Submit("clip.mp4", strings.NewReader("video"))
	require.NoError(t, err)

	st := waitForStatus(t, vp, id, StatusDone)
	assert.Equal(t, "clip.mp4", st.SourceName)
	assert.True(t, strings.HasPrefix(st.ResultsPath, "results_"))
	assert.Equal(t, 2, st.SamplesExpected)
	assert.Equal(t, 2, st.SamplesDone)
	assert.Empty(t, st.Error)

	report, err := store.LoadReport(st.ResultsPath)
	require.NoError(t, err)
	assert.Len(t, report.Detections, 1)
	assert.Eventually(t, func() bool { return tempCount(t, store) == 0 }, time.Second, 10*time.Millisecond)
}

func TestVideoProcessor_FailedJob(t *testing.T) {
	svc, store := newService(t, func(string) (vision.FrameSource, error) { return visiontest.NewSource(0, 25), nil })
	vp := NewVideoProcessor(svc, 4, 1)
	defer vp.Stop()

	id, err := vp.Submit("empty.avi", strings.NewReader("video"))
	require.NoError(t, err)

	st := waitForStatus(t, vp, id, StatusFailed)
	assert.Contains(t, st.Error, "cannot be opened")
	assert.Eventually(t, func() bool { return tempCount(t, store) == 0 }, time.Second, 10*time.Millisecond)
}

func TestVideoProcessor_SubmitValidation(t *testing.T) {
	svc, store := newService(t, twoFrames)
	vp := NewVideoProcessor(svc, 4, 1)
	defer vp.Stop()

	_, err := vp.Submit("notes.txt", strings.NewReader("x"))
	assert.ErrorIs(t, err, services.ErrUnsupportedVideo)
	assert.Zero(t, tempCount(t, store))

	_, err = vp.Status("nope")
	assert.ErrorIs(t, err, ErrJobUnknown)
}

func TestVideoProcessor_QueueFull(t *testing.T) {
	gate := make(chan struct{})
	svc, store := newService(t, func(string) (vision.FrameSource, error) {
		<-gate
		return visiontest.NewSource(2, 10), nil
	})
	vp := NewVideoProcessor(svc, 1, 1)
	defer vp.Stop()

	first, err := vp.Submit("a.mp4", strings.NewReader("a"))
	require.NoError(t, err)
	waitForStatus(t, vp, first, StatusProcessing)

	second, err := vp.Submit("b.mp4", strings.NewReader("b"))
	require.NoError(t, err)

	_, err = vp.Submit("c.mp4", strings.NewReader("c"))
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 2, tempCount(t, store))

	close(gate)
	waitForStatus(t, vp, first, StatusDone)
	waitForStatus(t, vp, second, StatusDone)
}

func TestVideoProcessor_StopRejectsNewJobs(t *testing.T) {
	svc, store := newService(t, twoFrames)
	vp := NewVideoProcessor(svc, 4, 1)
	vp.Stop()
	vp.Stop()

	_, err := vp.Submit("clip.mov", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrStopped)
	assert.Zero(t, tempCount(t, store))
}

func TestVideoProcessor_SubmitDuringStop(t *testing.T) {
	svc, store := newService(t, twoFrames)
	vp := NewVideoProcessor(svc, 64, 2)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted []string
	)
	start := make(chan struct{})
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			id, err := vp.Submit(fmt.Sprintf("clip%d.mp4", i), strings.NewReader("video"))
			if err != nil {
				assert.ErrorIs(t, err, ErrStopped)
				return
			}
			mu.Lock()
			accepted = append(accepted, id)
			mu.Unlock()
		}(i)
	}
	close(start)
	vp.Stop()
	wg.Wait()

	for _, id := range accepted {
		st, err := vp.Status(id)
		require.NoError(t, err)
		assert.Contains(t, []string{StatusDone, StatusFailed}, st.Status, id)
	}
	assert.Zero(t, tempCount(t, store))
}
