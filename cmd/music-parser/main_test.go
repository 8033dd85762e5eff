package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/handiism/music-parser/internal/download"
	"github.com/handiism/music-parser/internal/storage"
)

func TestCollectReferences(t *testing.T) {
	refs, err := collectReferences([]string{"never", "gonna", "give", "you", "up"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"never gonna give you up"}, refs)

	refs, err = collectReferences([]string{
		"https://youtu.be/dQw4w9WgXcQ",
		"spotify:track:abc",
		"https://open.spotify.com/album/xyz",
	}, nil)
	require.NoError(t, err)
	assert.Len(t, refs, 3)

	refs, err = collectReferences([]string{"-"}, strings.NewReader("numb\n\n https://youtu.be/x \n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"numb", "https://youtu.be/x"}, refs)
}

func TestConsoleSink(t *testing.T) {
	var buf bytes.Buffer
	sink := newConsoleSink(&buf, false, false, "")
	ctx := context.Background()

	require.NoError(t, sink.Notify(ctx, download.ProgressEvent{Line: download.BatchLine, Message: "Downloading 2 song(s)"}))
	require.NoError(t, sink.Notify(ctx, download.ProgressEvent{Line: download.UnitLine(0), Message: "Searching: a", Level: download.LevelVerbose}))
	require.NoError(t, sink.Notify(ctx, download.ProgressEvent{Line: download.UnitLine(0), Message: "Download failed for: a", Level: download.LevelError}))

	out := buf.String()
	assert.Contains(t, out, "› Downloading 2 song(s)")
	assert.NotContains(t, out, "Searching")
	assert.Contains(t, out, "✗ Download failed for: a")
	assert.NotContains(t, out, "\x1b[")
}

func TestConsoleSinkCopiesAttachments(t *testing.T) {
	src := filepath.Join(t.TempDir(), "song.mp3")
	require.NoError(t, os.WriteFile(src, []byte("audio"), 0o644))
	outDir := filepath.Join(t.TempDir(), "out")

	var buf bytes.Buffer
	sink := newConsoleSink(&buf, false, false, outDir)
	require.NoError(t, sink.Notify(context.Background(), download.ProgressEvent{Line: download.UnitLine(0), Attachment: src}))

	data, err := os.ReadFile(filepath.Join(outDir, "song.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "audio", string(data))
	assert.Equal(t, []string{filepath.Join(outDir, "song.mp3")}, sink.Delivered())
}

func TestPrintCacheEntries(t *testing.T) {
	cache, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cache.Path("a.mp3"), bytes.Repeat([]byte{1}, 2048), 0o644))
	require.NoError(t, cache.RecordCompletion("yt-a", "a.mp3"))

	var buf bytes.Buffer
	printCacheEntries(&buf, cache.Entries())
	out := buf.String()
	assert.Contains(t, out, "yt-a")
	assert.Contains(t, out, "a.mp3")
	assert.Contains(t, out, "2.0 kB")

	buf.Reset()
	printCacheEntries(&buf, nil)
	assert.Equal(t, "Cache is empty\n", buf.String())
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", path, "config", "init"})
	require.NoError(t, cmd.Execute())
	assert.FileExists(t, path)
	assert.Contains(t, out.String(), path)

	cmd = newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", path, "config", "init"})
	assert.Error(t, cmd.Execute())
}

func TestStopWritesSentinel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := "download_path = '" + filepath.ToSlash(filepath.Join(dir, "music")) + "'\n" +
		"state_dir = '" + filepath.ToSlash(filepath.Join(dir, "state")) + "'\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", path, "stop"})
	require.NoError(t, cmd.Execute())
	assert.FileExists(t, filepath.Join(dir, "state", "music-parser.stop"))
}
