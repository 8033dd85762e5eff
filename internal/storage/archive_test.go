package storage

import (
	"io"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readArchive(t *testing.T, path string) map[string]string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	out := make(map[string]string)
	for _, f := range r.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		out[f.Name] = string(data)
	}
	return out
}

func TestZipPacksArtifactsAndExtras(t *testing.T) {
	c, _ := newTestCache(t)
	writeArtifact(t, c, "A.mp3")
	writeArtifact(t, c, "B.mp3")

	path, err := c.Zip("My Playlist", []string{"A.mp3", "B.mp3"},
		ArchiveFile{Name: "My Playlist.m3u", Data: []byte("#EXTM3U\n")})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(c.Dir(), "archives"), filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "My Playlist-"))
	assert.Equal(t, path, c.ArchivePath("../../"+filepath.Base(path)))

	contents := readArchive(t, path)
	names := make([]string, 0, len(contents))
	for name := range contents {
		names = append(names, name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"A.mp3", "B.mp3", "My Playlist.m3u"}, names)
	assert.Equal(t, "data:A.mp3", contents["A.mp3"])
	assert.Equal(t, "#EXTM3U\n", contents["My Playlist.m3u"])
}

func TestZipNamesAreUnique(t *testing.T) {
	c, _ := newTestCache(t)
	writeArtifact(t, c, "A.mp3")

	first, err := c.Zip("bundle", []string{"A.mp3"})
	require.NoError(t, err)
	second, err := c.Zip("bundle", []string{"A.mp3"})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestZipDuplicateEntryNames(t *testing.T) {
	c, _ := newTestCache(t)
	writeArtifact(t, c, "A.mp3")

	path, err := c.Zip("dup", []string{"A.mp3", "A.mp3"})
	require.NoError(t, err)

	contents := readArchive(t, path)
	assert.Contains(t, contents, "A.mp3")
	assert.Contains(t, contents, "A (2).mp3")
}

func TestZipMissingFileFails(t *testing.T) {
	c, _ := newTestCache(t)

	_, err := c.Zip("bundle", []string{"Nope.mp3"})
	assert.Error(t, err)

	_, err = c.Zip("bundle", nil)
	assert.Error(t, err)
}

func TestEvictExpiredKeepsFreshArchives(t *testing.T) {
	c, _ := newTestCache(t)
	writeArtifact(t, c, "A.mp3")
	require.NoError(t, c.RecordCompletion("a", "A.mp3"))

	path, err := c.Zip("bundle", []string{"A.mp3"})
	require.NoError(t, err)

	_, err = c.EvictExpired()
	require.NoError(t, err)
	assert.FileExists(t, path)
}
