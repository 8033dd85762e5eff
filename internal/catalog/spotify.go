package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/handiism/music-parser/internal/catalog/dto"
	"github.com/handiism/music-parser/internal/http"
	"github.com/handiism/music-parser/internal/logging"
	"github.com/handiism/music-parser/internal/model"
)

const (
	defaultAPIBase  = "https://api.spotify.com/v1"
	defaultTokenURL = "https://accounts.spotify.com/api/token"

	// maxPages bounds paging through very large playlists.
	maxPages = 100
)

// ErrNoCredentials is returned when client id or secret is missing.
var ErrNoCredentials = errors.New("catalog credentials not configured")

// Spotify expands Spotify track, album and playlist links into units
// using the client-credentials flow.
type Spotify struct {
	client       *http.Client
	clientID     string
	clientSecret string
	apiBase      string
	tokenURL     string
	logger       *slog.Logger
	now          func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// Option configures a Spotify client.
type Option func(*Spotify)

// WithEndpoints overrides the API and token URLs.
func WithEndpoints(apiBase, tokenURL string) Option {
	return func(s *Spotify) {
		s.apiBase = strings.TrimRight(apiBase, "/")
		s.tokenURL = tokenURL
	}
}

// WithHTTP sets the HTTP client.
func WithHTTP(client *http.Client) Option {
	return func(s *Spotify) { s.client = client }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Spotify) { s.logger = logging.NewComponentLogger(logger, "catalog") }
}

// NewSpotify creates a catalog client.
func NewSpotify(clientID, clientSecret string, opts ...Option) *Spotify {
	s := &Spotify{
		client:       http.NewClient(),
		clientID:     clientID,
		clientSecret: clientSecret,
		apiBase:      defaultAPIBase,
		tokenURL:     defaultTokenURL,
		logger:       logging.NewComponentLogger(nil, "catalog"),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Track returns the single unit for a track link.
func (s *Spotify) Track(ctx context.Context, link string) ([]*model.Unit, error) {
	id, err := expectKind(link, KindTrack)
	if err != nil {
		return nil, err
	}

	var track dto.Track
	if err := s.get(ctx, s.apiBase+"/tracks/"+url.PathEscape(id), &track); err != nil {
		return nil, fmt.Errorf("fetch track %s: %w", id, err)
	}
	return []*model.Unit{track.ToUnit("", "")}, nil
}

// Album returns one unit per album track, in album order.
func (s *Spotify) Album(ctx context.Context, link string) ([]*model.Unit, error) {
	id, err := expectKind(link, KindAlbum)
	if err != nil {
		return nil, err
	}

	var album dto.Album
	if err := s.get(ctx, s.apiBase+"/albums/"+url.PathEscape(id), &album); err != nil {
		return nil, fmt.Errorf("fetch album %s: %w", id, err)
	}
	artwork := dto.LargestImage(album.Images)

	var units []*model.Unit
	page := album.Tracks
	for pages := 0; ; pages++ {
		for i := range page.Items {
			units = append(units, page.Items[i].ToUnit(album.Name, artwork))
		}
		if page.Next == nil || *page.Next == "" || pages+1 >= maxPages {
			break
		}
		next := *page.Next
		page = dto.TrackPage{}
		if err := s.get(ctx, next, &page); err != nil {
			return units, fmt.Errorf("fetch album %s tracks: %w", id, err)
		}
	}

	s.logger.Debug("expanded album", logging.String("album", album.Name), logging.Int("tracks", len(units)))
	return units, nil
}

// Playlist returns one unit per playable playlist entry.
func (s *Spotify) Playlist(ctx context.Context, link string) ([]*model.Unit, error) {
	id, err := expectKind(link, KindPlaylist)
	if err != nil {
		return nil, err
	}

	next := s.apiBase + "/playlists/" + url.PathEscape(id) + "/tracks?limit=100"
	var units []*model.Unit
	for pages := 0; next != "" && pages < maxPages; pages++ {
		var page dto.PlaylistPage
		if err := s.get(ctx, next, &page); err != nil {
			return units, fmt.Errorf("fetch playlist %s: %w", id, err)
		}
		for _, item := range page.Items {
			if item.Track == nil || item.Track.IsLocal || item.Track.ID == "" {
				continue
			}
			units = append(units, item.Track.ToUnit("", ""))
		}
		next = ""
		if page.Next != nil {
			next = *page.Next
		}
	}

	s.logger.Debug("expanded playlist", logging.String("playlist_id", id), logging.Int("tracks", len(units)))
	return units, nil
}

func (s *Spotify) get(ctx context.Context, rawURL string, out any) error {
	token, err := s.accessToken(ctx)
	if err != nil {
		return err
	}
	err = s.client.GetJSON(ctx, rawURL, token, out)

	var statusErr *http.StatusError
	if errors.As(err, &statusErr) && statusErr.Code == 401 {
		s.invalidate()
		if token, err = s.accessToken(ctx); err != nil {
			return err
		}
		return s.client.GetJSON(ctx, rawURL, token, out)
	}
	return err
}

func (s *Spotify) accessToken(ctx context.Context) (string, error) {
	if s.clientID == "" || s.clientSecret == "" {
		return "", ErrNoCredentials
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Before(s.expiry) {
		return s.token, nil
	}

	var tok dto.Token
	form := url.Values{"grant_type": {"client_credentials"}}
	if err := s.client.PostForm(ctx, s.tokenURL, form, s.clientID, s.clientSecret, &tok); err != nil {
		return "", fmt.Errorf("catalog token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("catalog token: empty access token")
	}

	s.token = tok.AccessToken
	// refresh a minute early
	s.expiry = s.now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return s.token, nil
}

func (s *Spotify) invalidate() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

func expectKind(link string, want Kind) (string, error) {
	kind, id, err := ParseLink(link)
	if err != nil {
		return "", err
	}
	if kind != want {
		return "", fmt.Errorf("expected %s link, got %s", want, kind)
	}
	return id, nil
}
