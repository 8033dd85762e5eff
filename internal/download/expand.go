package download

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/handiism/music-parser/internal/catalog"
	"github.com/handiism/music-parser/internal/logging"
	"github.com/handiism/music-parser/internal/model"
)

// Catalog expands catalog links into units.
type Catalog interface {
	Track(ctx context.Context, link string) ([]*model.Unit, error)
	Album(ctx context.Context, link string) ([]*model.Unit, error)
	Playlist(ctx context.Context, link string) ([]*model.Unit, error)
}

// errNoCatalog is reported when a catalog link arrives without a configured
// catalog.
var errNoCatalog = errors.New("catalog not configured")

// referenceKind classifies one user-supplied reference.
type referenceKind int

const (
	refBlank referenceKind = iota
	refCatalog
	refMediaLink
	refUnsupported
	refQuery
)

func classify(reference string) referenceKind {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return refBlank
	}
	if strings.HasPrefix(reference, "spotify:") {
		return refCatalog
	}

	lower := strings.ToLower(reference)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return refQuery
	}

	u, err := url.Parse(reference)
	if err != nil || u.Host == "" {
		return refUnsupported
	}
	switch {
	case catalog.IsCatalogHost(u.Host):
		return refCatalog
	case isMediaLink(u):
		return refMediaLink
	default:
		return refUnsupported
	}
}

// isMediaLink accepts YouTube watch pages, shorts and youtu.be short links.
func isMediaLink(u *url.URL) bool {
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch host {
	case "youtu.be":
		return strings.Trim(u.Path, "/") != ""
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		if u.Path == "/watch" {
			return u.Query().Get("v") != ""
		}
		id, ok := strings.CutPrefix(u.Path, "/shorts/")
		return ok && strings.Trim(id, "/") != ""
	}
	return false
}

// Expand turns references into units, one reference per entry. Catalog
// links expand to their tracks, media links and free text to exactly one
// unit, other URLs to nothing. References that fail are reported and
// skipped. Units are indexed in order.
//
//	units, err := m.Expand(ctx, []string{"https://open.spotify.com/album/1DFixLWuPkv3KT3TnV35m3", "lofi beats"})
func (m *Manager) Expand(ctx context.Context, references []string) ([]*model.Unit, error) {
	rep := newReporter(m.sink, m.settings.NotifyTimeout(), m.logger)

	var units []*model.Unit
	for _, reference := range references {
		reference = strings.TrimSpace(reference)

		switch classify(reference) {
		case refBlank:
			continue
		case refQuery:
			units = append(units, model.NewQueryUnit(reference))
			rep.notify(ctx, ProgressEvent{Line: BatchLine, Message: "Identified a search query"})
		case refMediaLink:
			units = append(units, model.NewMediaLinkUnit(reference))
			rep.notify(ctx, ProgressEvent{Line: BatchLine, Message: "Identified a YouTube video"})
		case refUnsupported:
			m.logger.Info("unsupported reference", logging.String("reference", reference))
			rep.notify(ctx, ProgressEvent{Line: BatchLine, Message: "Unsupported link: " + reference, Level: LevelWarning})
		case refCatalog:
			expanded, kind, err := m.expandCatalog(ctx, reference)
			if err != nil {
				logging.WarnWithContext(m.logger, "catalog expansion failed", "catalog_expand_failed",
					logging.String("reference", reference),
					logging.Error(err),
					logging.String(logging.FieldImpact, "reference skipped"))
				rep.notify(ctx, ProgressEvent{Line: BatchLine, Message: "Could not read " + reference, Level: LevelError})
				continue
			}
			units = append(units, expanded...)
			rep.notify(ctx, ProgressEvent{Line: BatchLine, Message: "Identified a Spotify " + kind.String()})
		}
	}

	if len(units) == 0 {
		return nil, ErrNoValidInput
	}
	for i, u := range units {
		u.Index = i
	}
	return units, nil
}

func (m *Manager) expandCatalog(ctx context.Context, link string) ([]*model.Unit, catalog.Kind, error) {
	kind, _, err := catalog.ParseLink(link)
	if err != nil {
		return nil, kind, err
	}
	if m.catalog == nil {
		return nil, kind, errNoCatalog
	}

	var units []*model.Unit
	switch kind {
	case catalog.KindTrack:
		units, err = m.catalog.Track(ctx, link)
	case catalog.KindAlbum:
		units, err = m.catalog.Album(ctx, link)
	case catalog.KindPlaylist:
		units, err = m.catalog.Playlist(ctx, link)
	default:
		err = fmt.Errorf("unsupported catalog object %s", kind)
	}
	return units, kind, err
}
