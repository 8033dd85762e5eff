package dto

import (
	"github.com/handiism/music-parser/internal/model"
)

// Artist is a simplified Spotify artist object.
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Image is one rendition of cover art.
type Image struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ExternalURLs holds the public web links of an object.
type ExternalURLs struct {
	Spotify string `json:"spotify"`
}

// AlbumRef is the album object embedded in a full track.
type AlbumRef struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Images []Image `json:"images"`
}

// Track is a Spotify track object. Album is nil for tracks listed under
// an album.
type Track struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	DurationMS   int64        `json:"duration_ms"`
	Artists      []Artist     `json:"artists"`
	Album        *AlbumRef    `json:"album"`
	ExternalURLs ExternalURLs `json:"external_urls"`
	IsLocal      bool         `json:"is_local"`
}

// ToUnit converts the track to a catalog unit. albumName and artwork fill
// in for tracks that carry no album object.
func (t *Track) ToUnit(albumName, artwork string) *model.Unit {
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		if a.Name != "" {
			artists = append(artists, a.Name)
		}
	}

	link := t.ExternalURLs.Spotify
	if link == "" && t.ID != "" {
		link = "https://open.spotify.com/track/" + t.ID
	}

	u := model.NewCatalogUnit(t.Name, artists, float64(t.DurationMS)/1000, t.ID, link)
	u.Album = albumName
	u.Thumbnail = artwork
	if t.Album != nil {
		u.Album = t.Album.Name
		if art := LargestImage(t.Album.Images); art != "" {
			u.Thumbnail = art
		}
	}
	return u
}

// LargestImage returns the URL of the widest image.
func LargestImage(images []Image) string {
	best := -1
	url := ""
	for _, img := range images {
		if img.Width > best {
			best = img.Width
			url = img.URL
		}
	}
	return url
}
