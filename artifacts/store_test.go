package artifacts

import (
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/camden-git/vidfaces/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), map[AssetType]string{
		AssetTypeTemp:   "temp",
		AssetTypeFace:   "faces",
		AssetTypeReport: "reports",
	})
	require.NoError(t, err)
	return s
}

func TestNewStoreRejectsEscapingSubdir(t *testing.T) {
	_, err := NewStore(t.TempDir(), map[AssetType]string{AssetTypeFace: "../faces"})
	assert.Error(t, err)
}

func TestIsAllowedVideo(t *testing.T) {
	for name, want := range map[string]bool{
		"clip.mp4": true, "CLIP.MOV": true, "a.b.avi": true,
		"clip.mkv": false, "mp4": false, "": false,
	} {
		assert.Equal(t, want, IsAllowedVideo(name), name)
	}
}

func TestTempLifecycle(t *testing.T) {
	s := newTestStore(t)

	a, err := s.SaveTemp(".MP4", strings.NewReader("video bytes"))
	require.NoError(t, err)
	b, err := s.SaveTemp("mp4", strings.NewReader("other"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(filepath.Base(a), "temp_"))
	assert.Equal(t, ".mp4", filepath.Ext(a))

	require.NoError(t, s.DeleteTemp(a))
	assert.NoFileExists(t, a)
	assert.NoError(t, s.DeleteTemp(a), "deleting twice is fine")

	outside := filepath.Join(s.BasePath(), "reports", "x.json")
	assert.ErrorIs(t, s.DeleteTemp(outside), ErrInvalidPath)
}

func TestPersistCrop(t *testing.T) {
	s := newTestStore(t)
	ref, err := s.PersistCrop("abc", image.NewRGBA(image.Rect(0, 0, 6, 4)))
	require.NoError(t, err)
	assert.Equal(t, "faces/abc.jpg", ref)

	for _, id := range []string{"abc", "abc.jpg"} {
		p, err := s.CropPath(id)
		require.NoError(t, err)
		f, err := os.Open(p)
		require.NoError(t, err)
		cfg, err := jpeg.DecodeConfig(f)
		f.Close()
		require.NoError(t, err)
		assert.Equal(t, 6, cfg.Width)
	}

	_, err = s.CropPath("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.CropPath("../reports/x")
	assert.ErrorIs(t, err, ErrInvalidPath)
	_, err = s.PersistCrop("../evil", image.NewRGBA(image.Rect(0, 0, 1, 1)))
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestDeleteCrop(t *testing.T) {
	s := newTestStore(t)
	_, err := s.PersistCrop("abc", image.NewRGBA(image.Rect(0, 0, 2, 2)))
	require.NoError(t, err)

	require.NoError(t, s.DeleteCrop("abc"))
	_, err = s.CropPath("abc")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.DeleteCrop("abc"))
	assert.ErrorIs(t, s.DeleteCrop("../reports/x"), ErrInvalidPath)
}

func TestResolve(t *testing.T) {
	s := newTestStore(t)
	ref, err := s.PersistCrop("abc", image.NewRGBA(image.Rect(0, 0, 2, 2)))
	require.NoError(t, err)

	p, err := s.Resolve(ref)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.BasePath(), "faces", "abc.jpg"), p)

	_, err = s.Resolve("faces/none.jpg")
	assert.ErrorIs(t, err, ErrNotFound)
	for _, bad := range []string{"", "faces", "../etc/passwd", "faces/../../x", "/etc/passwd"} {
		_, err = s.Resolve(bad)
		assert.ErrorIs(t, err, ErrInvalidPath, bad)
	}
}

func TestResolveOnlyServesCrops(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, os.WriteFile(filepath.Join(s.BasePath(), "vidfaces.db"), []byte("sqlite"), 0o644))
	tempPath, err := s.SaveTemp(".mp4", strings.NewReader("video"))
	require.NoError(t, err)
	reportName, err := s.PersistReport(pipeline.NewReport(pipeline.VideoInfo{FPS: 10}))
	require.NoError(t, err)

	tempRel, err := filepath.Rel(s.BasePath(), tempPath)
	require.NoError(t, err)

	for _, rel := range []string{
		"vidfaces.db",
		filepath.ToSlash(tempRel),
		"reports/" + reportName,
		"faces/../vidfaces.db",
	} {
		_, err := s.Resolve(rel)
		assert.ErrorIs(t, err, ErrInvalidPath, rel)
	}
}

func TestReportRoundTripAndUpdate(t *testing.T) {
	s := newTestStore(t)
	r := pipeline.NewReport(pipeline.VideoInfo{FPS: 10, Duration: 0.2})
	r.Detections = append(r.Detections, pipeline.Detection{Frame: 0, FaceID: "f0", Name: "UNKNOWN", Location: [4]int{1, 2, 3, 4}})
	r.UniqueFaces = append(r.UniqueFaces, pipeline.UniqueFace{ID: "f0", Name: "UNKNOWN", ImagePath: "faces/f0.jpg"})

	name, err := s.PersistReport(r)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(name, "results_"))

	raw, err := os.ReadFile(filepath.Join(s.Dir(AssetTypeReport), name))
	require.NoError(t, err)
	for _, key := range []string{`"video_info"`, `"fps"`, `"duration"`, `"detections"`, `"frame"`, `"time"`, `"face_id"`, `"location"`, `"unique_faces"`, `"image_path"`} {
		assert.Contains(t, string(raw), key)
	}

	updated, err := s.UpdateReport(name, func(rep *pipeline.Report) error {
		pipeline.Relabel(rep, "f0", "Bob")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Bob", updated.UniqueFaces[0].Name)

	loaded, err := s.LoadReport(name)
	require.NoError(t, err)
	assert.Equal(t, updated, loaded)

	_, err = s.LoadReport("results_missing.json")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.LoadReport("../results.json")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestConcurrentReportUpdates(t *testing.T) {
	s := newTestStore(t)
	r := pipeline.NewReport(pipeline.VideoInfo{FPS: 1})
	for i := 0; i < 20; i++ {
		r.Detections = append(r.Detections, pipeline.Detection{FaceID: "f", Name: "a"})
	}
	name, err := s.PersistReport(r)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpdateReport(name, func(rep *pipeline.Report) error {
				rep.Detections = append(rep.Detections, pipeline.Detection{FaceID: "g"})
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	loaded, err := s.LoadReport(name)
	require.NoError(t, err)
	assert.Len(t, loaded.Detections, 30)
}
