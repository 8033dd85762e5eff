package ioutils

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"normal-file.mp3", "normal-file.mp3"},
		{"file:with:colons", "file_with_colons"},
		{"AC/DC\\Back", "AC_DC_Back"},
		{"what?*", "what__"},
		{"trailing dots...", "trailing dots"},
		{"multiple   spaces", "multiple spaces"},
		{"  padded  ", "padded"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := SanitizeFileName(tt.input); got != tt.want {
				t.Errorf("SanitizeFileName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeFileNameBoundsLength(t *testing.T) {
	long := strings.Repeat("é", 200)
	got := SanitizeFileName(long)
	assert.LessOrEqual(t, len(got), maxNameLength)
	assert.True(t, strings.HasPrefix(long, got))
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "index.json")

	require.NoError(t, WriteFileAtomic(path, []byte(`{"a":1}`)))
	require.NoError(t, WriteFileAtomic(path, []byte(`{"a":2}`)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(data))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.mp3")
	dst := filepath.Join(dir, "out", "dst.mp3")
	require.NoError(t, os.WriteFile(src, []byte("audio"), 0o644))

	require.NoError(t, CopyFile(context.Background(), src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "audio", string(data))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, CopyFile(ctx, src, dst))
}

func TestPrepareArtwork(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 800, 400))
	for x := range 800 {
		for y := range 400 {
			src.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	svc := NewImageService()

	out, err := svc.PrepareArtwork(context.Background(), buf.Bytes(), 200)
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 100, img.Bounds().Dy())

	// smaller than the bound: converted, not enlarged
	out, err = svc.PrepareArtwork(context.Background(), buf.Bytes(), 1000)
	require.NoError(t, err)
	img, err = jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 800, img.Bounds().Dx())

	_, err = svc.PrepareArtwork(context.Background(), []byte("not an image"), 100)
	assert.Error(t, err)
}
