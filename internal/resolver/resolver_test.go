package resolver

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectCandidate(t *testing.T) {
	cands := []Candidate{
		{ID: "a", Duration: 200},
		{ID: "b", Duration: 185},
		{ID: "c", Duration: 189},
		{ID: "d", Duration: 0},
	}

	tests := []struct {
		name string
		in   []Candidate
		hint float64
		want string
		ok   bool
	}{
		{"closest wins", cands, 187, "b", true},
		{"no hint takes first", cands, 0, "a", true},
		{"tie keeps earlier", []Candidate{{ID: "x", Duration: 190}, {ID: "y", Duration: 180}}, 185, "x", true},
		{"unknown durations take first", []Candidate{{ID: "x"}, {ID: "y"}}, 100, "x", true},
		{"empty", nil, 100, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SelectCandidate(tt.in, tt.hint)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}

type fakeRunner struct {
	mu       sync.Mutex
	output   []byte
	outErr   error
	startErr error
	waitErr  error
	calls    [][]string
	started  chan struct{}
}

func (f *fakeRunner) Output(ctx context.Context, binary string, args []string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{binary}, args...))
	f.mu.Unlock()
	return f.output, f.outErr
}

func (f *fakeRunner) Start(ctx context.Context, binary string, args []string) (func() error, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{binary}, args...))
	f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	return func() error {
		if f.started != nil {
			close(f.started)
		}
		return f.waitErr
	}, nil
}

func (f *fakeRunner) lastCall() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func TestIdentifyLink(t *testing.T) {
	runner := &fakeRunner{output: []byte(`{"id":"kXYiU_JCYtU","title":"Numb: Official Video","duration":187,"thumbnail":"https://i.ytimg.com/vi/kXYiU_JCYtU/maxresdefault.webp"}`)}
	y := NewYtDlp(Config{}, WithRunner(runner))

	id, err := y.Identify(context.Background(), Request{Link: "https://www.youtube.com/watch?v=kXYiU_JCYtU"})
	require.NoError(t, err)
	assert.Equal(t, "kXYiU_JCYtU", id.ExternalID)
	assert.Equal(t, "Numb_ Official Video [kXYiU_JCYtU].mp3", id.Filename)
	assert.Equal(t, 187.0, id.Duration)
	assert.True(t, strings.HasSuffix(id.Thumbnail, ".webp"))

	call := runner.lastCall()
	assert.Equal(t, "yt-dlp", call[0])
	assert.Contains(t, call, "--no-playlist")
	assert.Equal(t, "https://www.youtube.com/watch?v=kXYiU_JCYtU", call[len(call)-1])
}

func TestIdentifyQueryUsesDurationHint(t *testing.T) {
	runner := &fakeRunner{output: []byte(`{"_type":"playlist","entries":[
		{"id":"live","title":"Numb (Live)","duration":240},
		{"id":"studio","title":"Numb","duration":186,"thumbnails":[{"url":"small"},{"url":"large"}]},
		{"id":"cover","title":"Numb cover","duration":150}]}`)}
	y := NewYtDlp(Config{Candidates: 3}, WithRunner(runner))

	id, err := y.Identify(context.Background(), Request{Query: "Numb - Official Audio - Linkin Park", DurationHint: 187})
	require.NoError(t, err)
	assert.Equal(t, "studio", id.ExternalID)
	assert.Equal(t, "Numb [studio].mp3", id.Filename)
	assert.Equal(t, "large", id.Thumbnail)

	call := runner.lastCall()
	assert.Equal(t, "ytsearch3:Numb - Official Audio - Linkin Park", call[len(call)-1])
}

func TestIdentifySameTitleDifferentMedia(t *testing.T) {
	ctx := context.Background()
	first := NewYtDlp(Config{}, WithRunner(&fakeRunner{output: []byte(`{"id":"aaa","title":"Intro","duration":60}`)}))
	second := NewYtDlp(Config{}, WithRunner(&fakeRunner{output: []byte(`{"id":"bbb","title":"Intro","duration":90}`)}))

	a, err := first.Identify(ctx, Request{Link: "https://youtu.be/aaa"})
	require.NoError(t, err)
	b, err := second.Identify(ctx, Request{Link: "https://youtu.be/bbb"})
	require.NoError(t, err)

	assert.Equal(t, "Intro [aaa].mp3", a.Filename)
	assert.NotEqual(t, a.Filename, b.Filename)

	untitled := NewYtDlp(Config{}, WithRunner(&fakeRunner{output: []byte(`{"id":"ccc","duration":30}`)}))
	c, err := untitled.Identify(ctx, Request{Link: "https://youtu.be/ccc"})
	require.NoError(t, err)
	assert.Equal(t, "ccc.mp3", c.Filename)
}

func TestIdentifyFailures(t *testing.T) {
	tests := []struct {
		name   string
		runner *fakeRunner
		req    Request
	}{
		{"empty request", &fakeRunner{}, Request{}},
		{"runner error", &fakeRunner{outErr: errors.New("exit 1")}, Request{Query: "q"}},
		{"bad json", &fakeRunner{output: []byte("nope")}, Request{Query: "q"}},
		{"no results", &fakeRunner{output: []byte(`{"entries":[]}`)}, Request{Query: "q"}},
		{"missing id", &fakeRunner{output: []byte(`{"title":"x"}`)}, Request{Link: "https://youtu.be/x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewYtDlp(Config{}, WithRunner(tt.runner)).Identify(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrResolution)
		})
	}
}

func TestBeginDownload(t *testing.T) {
	runner := &fakeRunner{started: make(chan struct{})}
	y := NewYtDlp(Config{AudioFormat: "mp3", AudioQuality: "192K"}, WithRunner(runner))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, y.BeginDownload(ctx, "abc", "/cache/100% Song.mp3"))
	cancel()

	select {
	case <-runner.started:
	case <-time.After(time.Second):
		t.Fatal("download process was not awaited")
	}

	call := runner.lastCall()
	assert.Contains(t, call, "/cache/100%% Song.%(ext)s")
	assert.Contains(t, call, "192K")
	assert.Equal(t, "https://www.youtube.com/watch?v=abc", call[len(call)-1])
}

func TestBeginDownloadStartFailure(t *testing.T) {
	y := NewYtDlp(Config{}, WithRunner(&fakeRunner{startErr: errors.New("exec: not found")}))

	err := y.BeginDownload(context.Background(), "abc", "/cache/a.mp3")
	assert.ErrorIs(t, err, ErrDownloadStart)

	err = y.BeginDownload(context.Background(), "", "/cache/a.mp3")
	assert.ErrorIs(t, err, ErrDownloadStart)
}
