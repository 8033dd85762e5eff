package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

func newTestCache(t *testing.T, opts ...Option) (*Cache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	c, err := Open(t.TempDir(), opts...)
	require.NoError(t, err)
	return c, clock
}

func writeArtifact(t *testing.T, c *Cache, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(c.Path(name), []byte("data:"+name), 0o644))
}

func TestOpenSeedsReservedEntries(t *testing.T) {
	c, _ := newTestCache(t)

	self, ok := c.Lookup(KeySelf)
	require.True(t, ok)
	assert.Equal(t, IndexFileName, self.Filename)

	logEntry, ok := c.Lookup(KeyLog)
	require.True(t, ok)
	assert.Equal(t, "diagnostics.log", logEntry.Filename)
	assert.Equal(t, 2, c.Len())
}

func TestOpenUnavailable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := Open(filepath.Join(blocker, "cache"))
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	_, err = Open("")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestOpenCorruptIndexStartsFresh(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, IndexFileName), []byte("{not json"), 0o644))

	c, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())
}

func TestFindAfterRecordCompletion(t *testing.T) {
	c, _ := newTestCache(t)

	assert.False(t, c.Find("abc"))

	writeArtifact(t, c, "Song.mp3")
	require.NoError(t, c.RecordCompletion("abc", "Song.mp3"))
	assert.True(t, c.Find("abc"))

	require.NoError(t, os.Remove(c.Path("Song.mp3")))
	assert.False(t, c.Find("abc"), "Find must consult the file system")
}

func TestRecordCompletionRejectsBadInput(t *testing.T) {
	c, _ := newTestCache(t)

	assert.Error(t, c.RecordCompletion("", "a.mp3"))
	assert.ErrorIs(t, c.RecordCompletion(KeySelf, "a.mp3"), ErrReservedKey)
	assert.Error(t, c.RecordCompletion("id", "../escape.mp3"))
}

func TestRecordCompletionSameKeyLastWriterWins(t *testing.T) {
	c, clock := newTestCache(t)
	writeArtifact(t, c, "A.mp3")
	writeArtifact(t, c, "B.mp3")

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.RecordCompletion("same", "A.mp3"))
		}()
	}
	wg.Wait()

	later := clock.Now().Add(time.Minute)
	clock.Set(later)
	require.NoError(t, c.RecordCompletion("same", "B.mp3"))

	entry, ok := c.Lookup("same")
	require.True(t, ok)
	assert.Equal(t, "B.mp3", entry.Filename)
	assert.Equal(t, later, entry.Timestamp)
	assert.Equal(t, 3, c.Len())
}

func TestPresentIgnoresPartials(t *testing.T) {
	c, _ := newTestCache(t)

	writeArtifact(t, c, "Song.mp3.part")
	writeArtifact(t, c, "Song.temp.mp3")
	assert.False(t, c.Present("Song.mp3.part"))
	assert.False(t, c.Present("Song.temp.mp3"))
	assert.False(t, c.Present("Song.mp3"))

	writeArtifact(t, c, "Song.mp3")
	assert.True(t, c.Present("Song.mp3"))
	assert.False(t, c.Present("../Song.mp3"))
}

func TestPresentDottedTitles(t *testing.T) {
	c, _ := newTestCache(t)

	for _, name := range []string{"Symphony No.9.Part.2.mp3", "Mr.Temp.Remix.mp3", "Vol.1.Tmp Mix.mp3"} {
		writeArtifact(t, c, name)
		assert.True(t, c.Present(name), name)
	}

	writeArtifact(t, c, "Song.part-Frag3")
	assert.False(t, c.Present("Song.part-Frag3"))

	require.NoError(t, c.RecordCompletion("sym", "Symphony No.9.Part.2.mp3"))
	report, err := c.EvictExpired()
	require.NoError(t, err)
	assert.Equal(t, 1, report.PartialsKept)
	assert.Equal(t, 2, report.FilesRemoved)
	assert.True(t, c.Find("sym"))
}

func TestArtifactExtensionIsNeverPartial(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "song.m4a"), []byte("audio"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "song.webm"), []byte("audio"), 0o644))

	c, err := Open(dir)
	require.NoError(t, err)
	assert.False(t, c.Present("song.m4a"), "m4a is intermediate when mp3 is the target")

	c, err = Open(dir, WithArtifactExtension("M4A"))
	require.NoError(t, err)
	assert.True(t, c.Present("song.m4a"))
	assert.False(t, c.Present("song.webm"))
}

func TestMarkDelivered(t *testing.T) {
	c, _ := newTestCache(t)
	writeArtifact(t, c, "Song.mp3")
	require.NoError(t, c.RecordCompletion("abc", "Song.mp3"))

	require.NoError(t, c.MarkDelivered("abc"))
	first, _ := c.Lookup("abc")
	require.NoError(t, c.MarkDelivered("abc"))
	second, _ := c.Lookup("abc")
	assert.Equal(t, first, second)
	assert.True(t, second.Delivered)

	err := c.MarkDelivered("missing")
	assert.True(t, errors.Is(err, ErrNotIndexed))
}

func TestEvictExpiredScenario(t *testing.T) {
	c, clock := newTestCache(t)
	base := clock.Now()

	// E1: four days old, file present
	clock.Set(base.Add(-96 * time.Hour))
	writeArtifact(t, c, "Old.mp3")
	require.NoError(t, c.RecordCompletion("e1", "Old.mp3"))

	// E2: one day old, file missing
	clock.Set(base.Add(-24 * time.Hour))
	require.NoError(t, c.RecordCompletion("e2", "Gone.mp3"))

	// E3: fresh, kept
	clock.Set(base)
	writeArtifact(t, c, "Fresh.mp3")
	require.NoError(t, c.RecordCompletion("e3", "Fresh.mp3"))

	writeArtifact(t, c, "Stray.mp3")
	writeArtifact(t, c, "Downloading.webm.part")
	writeArtifact(t, c, "Converting.temp.mp3")

	report, err := c.EvictExpired()
	require.NoError(t, err)

	assert.False(t, c.Find("e1"))
	_, statErr := os.Stat(c.Path("Old.mp3"))
	assert.True(t, os.IsNotExist(statErr), "expired artifact must be deleted")

	_, ok := c.Lookup("e2")
	assert.False(t, ok)

	_, statErr = os.Stat(c.Path("Stray.mp3"))
	assert.True(t, os.IsNotExist(statErr), "orphan must be deleted")

	assert.FileExists(t, c.Path("Downloading.webm.part"))
	assert.FileExists(t, c.Path("Converting.temp.mp3"))
	assert.True(t, c.Find("e3"))

	_, ok = c.Lookup(KeySelf)
	assert.True(t, ok)
	_, ok = c.Lookup(KeyLog)
	assert.True(t, ok)

	assert.Equal(t, 2, report.EntriesRemoved)
	assert.Equal(t, 2, report.FilesRemoved)
	assert.Equal(t, 2, report.PartialsKept)
}

func TestEvictExpiredIdempotent(t *testing.T) {
	c, clock := newTestCache(t)
	writeArtifact(t, c, "A.mp3")
	require.NoError(t, c.RecordCompletion("a", "A.mp3"))
	clock.Set(clock.Now().Add(-100 * time.Hour))
	writeArtifact(t, c, "B.mp3")
	require.NoError(t, c.RecordCompletion("b", "B.mp3"))
	clock.Set(clock.Now().Add(100 * time.Hour))
	writeArtifact(t, c, "Orphan.mp3")

	_, err := c.EvictExpired()
	require.NoError(t, err)
	once := c.Entries()

	report, err := c.EvictExpired()
	require.NoError(t, err)
	twice := c.Entries()

	assert.Equal(t, once, twice)
	assert.Equal(t, EvictionReport{}, report)
}

func TestEvictExpiredRestoresReserved(t *testing.T) {
	c, _ := newTestCache(t)
	c.mu.Lock()
	delete(c.entries, KeySelf)
	delete(c.entries, KeyLog)
	c.mu.Unlock()

	_, err := c.EvictExpired()
	require.NoError(t, err)

	_, ok := c.Lookup(KeySelf)
	assert.True(t, ok)
	_, ok = c.Lookup(KeyLog)
	assert.True(t, ok)
}

func TestEvictDelivered(t *testing.T) {
	c, _ := newTestCache(t)
	writeArtifact(t, c, "A.mp3")
	writeArtifact(t, c, "B.mp3")
	require.NoError(t, c.RecordCompletion("a", "A.mp3"))
	require.NoError(t, c.RecordCompletion("b", "B.mp3"))
	require.NoError(t, c.MarkDelivered("a"))

	report, err := c.EvictDelivered()
	require.NoError(t, err)
	assert.Equal(t, 1, report.EntriesRemoved)

	assert.False(t, c.Find("a"))
	assert.True(t, c.Find("b"))
	_, ok := c.Lookup(KeySelf)
	assert.True(t, ok)
}

func TestPersistAndReload(t *testing.T) {
	c, _ := newTestCache(t)
	writeArtifact(t, c, "A.mp3")
	require.NoError(t, c.RecordCompletion("a", "A.mp3"))
	require.NoError(t, c.MarkDelivered("a"))
	require.NoError(t, c.Persist())
	require.NoError(t, c.Persist())

	raw, err := os.ReadFile(filepath.Join(c.Dir(), IndexFileName))
	require.NoError(t, err)
	var decoded map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "A.mp3", decoded["a"]["filename"])
	assert.Equal(t, true, decoded["a"]["delivered"])
	assert.Contains(t, decoded, KeySelf)

	reopened, err := Open(c.Dir())
	require.NoError(t, err)
	entry, ok := reopened.Lookup("a")
	require.True(t, ok)
	assert.True(t, entry.Delivered)
	assert.True(t, reopened.Find("a"))
}

func TestReset(t *testing.T) {
	c, _ := newTestCache(t)
	writeArtifact(t, c, "A.mp3")
	require.NoError(t, c.RecordCompletion("a", "A.mp3"))
	_, err := c.Zip("bundle", []string{"A.mp3"})
	require.NoError(t, err)

	require.NoError(t, c.Reset())

	assert.Equal(t, 2, c.Len())
	assert.NoFileExists(t, c.Path("A.mp3"))
	assert.NoDirExists(t, filepath.Join(c.Dir(), "archives"))
	assert.FileExists(t, filepath.Join(c.Dir(), IndexFileName))
}

func TestEntriesListing(t *testing.T) {
	c, _ := newTestCache(t)
	writeArtifact(t, c, "B.mp3")
	require.NoError(t, c.RecordCompletion("b", "B.mp3"))
	require.NoError(t, c.RecordCompletion("a", "Missing.mp3"))

	list := c.Entries()
	require.Len(t, list, 4)
	assert.True(t, isReserved(list[0].Key))
	assert.True(t, isReserved(list[1].Key))
	assert.Equal(t, "a", list[2].Key)
	assert.False(t, list[2].Exists)
	assert.Equal(t, "b", list[3].Key)
	assert.True(t, list[3].Exists)
	assert.Equal(t, int64(len("data:B.mp3")), list[3].Size)
}

func TestWatcherNotifiesSubscribers(t *testing.T) {
	c, _ := newTestCache(t)
	w, err := c.Watch()
	require.NoError(t, err)
	defer w.Close()

	ch, cancel := w.Subscribe()
	defer cancel()

	writeArtifact(t, c, "New.mp3")

	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("no notification after file creation")
	}
}
