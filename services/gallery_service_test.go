package services

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/vidfaces/gallery"
	"github.com/camden-git/vidfaces/realtime"
	"github.com/camden-git/vidfaces/recognition"
	"github.com/camden-git/vidfaces/vision/visiontest"
)

func redPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: 7, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestGalleryService_AddListDelete(t *testing.T) {
	matcher := recognition.NewMatcher(0)
	detector := &visiontest.Detector{Embeddings: map[int][]float32{7: {0.5, 0.5}}}
	store, err := gallery.NewStore(t.TempDir(), detector, matcher)
	require.NoError(t, err)
	events := &recordedEvents{}
	svc := NewGalleryService(store, events)

	name, err := svc.Add("jane doe", bytes.NewReader(redPNG(t)))
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", name)
	assert.Equal(t, 1, matcher.Len())

	names, err := svc.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"Jane Doe"}, names)

	found, err := svc.Delete("Nobody")
	require.NoError(t, err)
	assert.False(t, found)

	found, err = svc.Delete("Jane Doe")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Zero(t, matcher.Len())

	changes := events.ofType(realtime.EventGalleryChanged)
	require.Len(t, changes, 2)
	assert.Equal(t, "added", changes[0].Extra["action"])
	assert.Equal(t, "deleted", changes[1].Extra["action"])
	assert.Equal(t, "Jane Doe", changes[1].Name)
}
