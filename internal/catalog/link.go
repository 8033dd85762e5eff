package catalog

import (
	"fmt"
	"net/url"
	"strings"
)

// Kind is the type of catalog object a link points at.
type Kind int

const (
	KindTrack Kind = iota
	KindAlbum
	KindPlaylist
)

func (k Kind) String() string {
	switch k {
	case KindTrack:
		return "track"
	case KindAlbum:
		return "album"
	case KindPlaylist:
		return "playlist"
	default:
		return "unknown"
	}
}

// ParseLink extracts the object kind and id from an open.spotify.com URL
// or a spotify: URI. Locale prefixes such as /intl-de/ are skipped.
//
//	ParseLink("https://open.spotify.com/track/4Q3N4Ct4zCuIHuZ65E3BD4?si=x") // KindTrack, "4Q3N4Ct4zCuIHuZ65E3BD4"
func ParseLink(link string) (Kind, string, error) {
	link = strings.TrimSpace(link)

	var segments []string
	if rest, ok := strings.CutPrefix(link, "spotify:"); ok {
		segments = strings.Split(rest, ":")
	} else {
		u, err := url.Parse(link)
		if err != nil {
			return 0, "", fmt.Errorf("parse catalog link: %w", err)
		}
		if !IsCatalogHost(u.Host) {
			return 0, "", fmt.Errorf("not a catalog link: %s", link)
		}
		segments = strings.Split(strings.Trim(u.Path, "/"), "/")
	}

	for i := 0; i+1 < len(segments); i++ {
		id := segments[i+1]
		if id == "" {
			continue
		}
		switch segments[i] {
		case "track":
			return KindTrack, id, nil
		case "album":
			return KindAlbum, id, nil
		case "playlist":
			return KindPlaylist, id, nil
		}
	}
	return 0, "", fmt.Errorf("unsupported catalog link: %s", link)
}

// IsCatalogHost reports whether host serves catalog links.
func IsCatalogHost(host string) bool {
	host = strings.ToLower(host)
	return host == "open.spotify.com" || host == "play.spotify.com"
}
