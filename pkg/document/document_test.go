package document

import (
	"bytes"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 90, B: 160, A: 255})
		}
	}
	return img
}

func TestParsePageSize(t *testing.T) {
	p, err := ParsePageSize("letter")
	require.NoError(t, err)
	assert.Equal(t, Letter, p)

	_, err = ParsePageSize("B5")
	assert.Error(t, err)

	_, err = New(Options{PageSize: "B5"})
	assert.Error(t, err)
}

func TestLandscapeWidth(t *testing.T) {
	tests := []struct {
		size PageSize
		want float64
	}{
		{A4, 297},
		{A3, 420},
	}
	for _, tt := range tests {
		a, err := New(Options{PageSize: tt.size})
		require.NoError(t, err)
		assert.InDelta(t, tt.want, a.PageWidth(), 0.01)
	}
}

func TestImageHeightKeepsAspect(t *testing.T) {
	a, err := New(Options{})
	require.NoError(t, err)

	pw := a.PageWidth()
	assert.InDelta(t, pw*1080.0/1920.0, a.ImageHeight(1920, 1080), 1e-9)
	assert.InDelta(t, pw, a.ImageHeight(100, 100), 1e-9)
}

func TestOnePagePerAppend(t *testing.T) {
	a, err := New(Options{Title: "Ops"})
	require.NoError(t, err)
	assert.Equal(t, 1, a.PageCount())

	require.NoError(t, a.AppendPage("title", solid(64, 36)))
	assert.Equal(t, 1, a.PageCount())

	require.NoError(t, a.AppendPage("latency", solid(64, 36)))
	require.NoError(t, a.AppendPage("errors", solid(32, 32)))
	assert.Equal(t, 3, a.PageCount())

	pages := a.Pages()
	require.Len(t, pages, 3)
	assert.Equal(t, []string{"title", "latency", "errors"}, []string{pages[0].Label, pages[1].Label, pages[2].Label})
	pw := a.PageWidth()
	assert.InDelta(t, pw*36.0/64.0, pages[0].Height, 1e-9)
	assert.InDelta(t, pw, pages[2].Height, 1e-9)
	assert.InDelta(t, pw, pages[0].Width, 1e-9)

	out, err := a.Finalize()
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestDownscaleKeepsAspect(t *testing.T) {
	a, err := New(Options{MaxImageWidth: 40})
	require.NoError(t, err)
	require.NoError(t, a.AppendPage("wide", solid(80, 20)))
	assert.InDelta(t, a.PageWidth()*20.0/80.0, a.Pages()[0].Height, 0.5)
}

func TestFinalizeOnce(t *testing.T) {
	a, err := New(Options{Created: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	out, err := a.Finalize()
	require.NoError(t, err)
	assert.NotEmpty(t, out)

	_, err = a.Finalize()
	assert.ErrorIs(t, err, ErrFinalized)
	assert.ErrorIs(t, a.AppendPage("late", solid(2, 2)), ErrFinalized)
}

func TestAppendEmptyImage(t *testing.T) {
	a, err := New(Options{})
	require.NoError(t, err)
	assert.Error(t, a.AppendPage("empty", image.NewRGBA(image.Rect(0, 0, 0, 0))))
	assert.Empty(t, a.Pages())
}
