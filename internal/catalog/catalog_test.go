package catalog

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/handiism/music-parser/internal/http"
)

func TestParseLink(t *testing.T) {
	tests := []struct {
		link    string
		kind    Kind
		id      string
		wantErr bool
	}{
		{"https://open.spotify.com/track/4Q3N4Ct4zCuIHuZ65E3BD4?si=abc", KindTrack, "4Q3N4Ct4zCuIHuZ65E3BD4", false},
		{"https://open.spotify.com/intl-de/album/1ATL5GLyefJaxhQzSPVrLX", KindAlbum, "1ATL5GLyefJaxhQzSPVrLX", false},
		{"https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M", KindPlaylist, "37i9dQZF1DXcBWIGoYBM5M", false},
		{"spotify:track:4Q3N4Ct4zCuIHuZ65E3BD4", KindTrack, "4Q3N4Ct4zCuIHuZ65E3BD4", false},
		{"https://open.spotify.com/artist/0TnOYISbd1XYRBk9myaseg", 0, "", true},
		{"https://www.youtube.com/watch?v=kXYiU_JCYtU", 0, "", true},
		{"https://open.spotify.com/track/", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.link, func(t *testing.T) {
			kind, id, err := ParseLink(tt.link)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.id, id)
		})
	}
}

type fakeSpotify struct {
	srv        *httptest.Server
	tokenCalls atomic.Int32
}

func newFakeSpotify(t *testing.T) *fakeSpotify {
	t.Helper()
	f := &fakeSpotify{}
	mux := stdhttp.NewServeMux()

	mux.HandleFunc("/token", func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		f.tokenCalls.Add(1)
		user, pass, _ := r.BasicAuth()
		if user != "id" || pass != "secret" {
			w.WriteHeader(stdhttp.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"access_token":"tok","token_type":"Bearer","expires_in":3600}`)
	})

	authed := func(h stdhttp.HandlerFunc) stdhttp.HandlerFunc {
		return func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(stdhttp.StatusUnauthorized)
				return
			}
			h(w, r)
		}
	}

	mux.HandleFunc("/v1/tracks/t1", authed(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		fmt.Fprint(w, `{"id":"t1","name":"Numb","duration_ms":187000,
			"artists":[{"name":"Linkin Park"}],
			"album":{"name":"Meteora","images":[{"url":"small","width":64},{"url":"big","width":640}]},
			"external_urls":{"spotify":"https://open.spotify.com/track/t1"}}`)
	}))

	mux.HandleFunc("/v1/albums/a1", authed(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		fmt.Fprintf(w, `{"id":"a1","name":"Meteora","images":[{"url":"cover","width":300}],
			"tracks":{"items":[{"id":"x1","name":"Foreword","duration_ms":13000,"artists":[{"name":"Linkin Park"}]}],
			"next":"%s/v1/albums/a1/tracks?offset=1"}}`, f.srv.URL)
	}))
	mux.HandleFunc("/v1/albums/a1/tracks", authed(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		fmt.Fprint(w, `{"items":[{"id":"x2","name":"Don't Stay","duration_ms":187000,"artists":[{"name":"Linkin Park"}]}],"next":null}`)
	}))

	mux.HandleFunc("/v1/playlists/p1/tracks", authed(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		if r.URL.Query().Get("offset") == "" {
			fmt.Fprintf(w, `{"items":[{"track":{"id":"y1","name":"One","duration_ms":1000,"artists":[{"name":"A"}]}},{"track":null},
				{"track":{"id":"","name":"local","is_local":true}}],"next":"%s/v1/playlists/p1/tracks?offset=100"}`, f.srv.URL)
			return
		}
		fmt.Fprint(w, `{"items":[{"track":{"id":"y2","name":"Two","duration_ms":2000,"artists":[{"name":"B"},{"name":"C"}]}}],"next":null}`)
	}))

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeSpotify) client(id, secret string) *Spotify {
	hc := http.NewClient(http.WithBackoff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }))
	return NewSpotify(id, secret, WithHTTP(hc), WithEndpoints(f.srv.URL+"/v1", f.srv.URL+"/token"))
}

func TestSpotifyTrack(t *testing.T) {
	f := newFakeSpotify(t)
	sp := f.client("id", "secret")

	units, err := sp.Track(context.Background(), "https://open.spotify.com/track/t1")
	require.NoError(t, err)
	require.Len(t, units, 1)

	u := units[0]
	assert.Equal(t, "Numb", u.Name)
	assert.Equal(t, []string{"Linkin Park"}, u.Artists)
	assert.Equal(t, "Meteora", u.Album)
	assert.InDelta(t, 187.0, u.Duration, 0.001)
	assert.Equal(t, "big", u.Thumbnail)
	assert.Equal(t, "https://open.spotify.com/track/t1", u.CatalogLink)

	// the token is reused
	_, err = sp.Track(context.Background(), "https://open.spotify.com/track/t1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.tokenCalls.Load())
}

func TestSpotifyAlbumFollowsPaging(t *testing.T) {
	f := newFakeSpotify(t)
	units, err := f.client("id", "secret").Album(context.Background(), "https://open.spotify.com/album/a1")
	require.NoError(t, err)
	require.Len(t, units, 2)

	assert.Equal(t, "Foreword", units[0].Name)
	assert.Equal(t, "Don't Stay", units[1].Name)
	for _, u := range units {
		assert.Equal(t, "Meteora", u.Album)
		assert.Equal(t, "cover", u.Thumbnail)
	}
}

func TestSpotifyPlaylistSkipsUnplayable(t *testing.T) {
	f := newFakeSpotify(t)
	units, err := f.client("id", "secret").Playlist(context.Background(), "https://open.spotify.com/playlist/p1")
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "One", units[0].Name)
	assert.Equal(t, []string{"B", "C"}, units[1].Artists)
}

func TestSpotifyRejectsWrongKind(t *testing.T) {
	f := newFakeSpotify(t)
	_, err := f.client("id", "secret").Album(context.Background(), "https://open.spotify.com/track/t1")
	assert.Error(t, err)
}

func TestSpotifyCredentials(t *testing.T) {
	f := newFakeSpotify(t)

	_, err := f.client("", "").Track(context.Background(), "https://open.spotify.com/track/t1")
	assert.ErrorIs(t, err, ErrNoCredentials)

	_, err = f.client("id", "wrong").Track(context.Background(), "https://open.spotify.com/track/t1")
	assert.Error(t, err)
}
