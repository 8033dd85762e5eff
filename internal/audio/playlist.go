package audio

import (
	"fmt"
	"strings"

	"github.com/handiism/music-parser/internal/model"
)

// PlaylistFormat is a playlist file type.
type PlaylistFormat int

const (
	// FormatM3U is the plain or extended M3U format.
	FormatM3U PlaylistFormat = iota
	// FormatPLS is the Winamp PLS format.
	FormatPLS
)

// ParsePlaylistFormat maps a config value to a format, defaulting to M3U.
func ParsePlaylistFormat(s string) PlaylistFormat {
	if strings.EqualFold(strings.TrimSpace(s), "pls") {
		return FormatPLS
	}
	return FormatM3U
}

// Extension returns the file extension including the dot.
func (f PlaylistFormat) Extension() string {
	if f == FormatPLS {
		return ".pls"
	}
	return ".m3u"
}

// PlaylistCreator renders the playlist bundled with a multi-track archive.
// Entries are bare file names because the playlist sits next to the
// artifacts inside the archive.
type PlaylistCreator struct {
	format   PlaylistFormat
	extended bool
}

// NewPlaylistCreator creates a PlaylistCreator. extended adds #EXTINF
// lines to M3U output.
func NewPlaylistCreator(format PlaylistFormat, extended bool) *PlaylistCreator {
	return &PlaylistCreator{format: format, extended: extended}
}

// FileName returns the playlist file name for a bundle title.
func (p *PlaylistCreator) FileName(title string) string {
	return title + p.format.Extension()
}

// Create renders units that have a resolved Filename, in order.
func (p *PlaylistCreator) Create(units []*model.Unit) string {
	var entries []*model.Unit
	for _, u := range units {
		if u.Filename != "" {
			entries = append(entries, u)
		}
	}

	if p.format == FormatPLS {
		return p.pls(entries)
	}
	return p.m3u(entries)
}

func (p *PlaylistCreator) m3u(units []*model.Unit) string {
	var sb strings.Builder
	if p.extended {
		sb.WriteString("#EXTM3U\n")
	}
	for _, u := range units {
		if p.extended {
			fmt.Fprintf(&sb, "#EXTINF:%d,%s\n", length(u), title(u))
		}
		sb.WriteString(u.Filename + "\n")
	}
	return sb.String()
}

func (p *PlaylistCreator) pls(units []*model.Unit) string {
	var sb strings.Builder
	sb.WriteString("[playlist]\n")
	for i, u := range units {
		n := i + 1
		fmt.Fprintf(&sb, "File%d=%s\n", n, u.Filename)
		fmt.Fprintf(&sb, "Title%d=%s\n", n, title(u))
		fmt.Fprintf(&sb, "Length%d=%d\n", n, length(u))
	}
	fmt.Fprintf(&sb, "NumberOfEntries=%d\n", len(units))
	sb.WriteString("Version=2\n")
	return sb.String()
}

func title(u *model.Unit) string {
	if len(u.Artists) > 0 && u.Name != "" {
		return strings.Join(u.Artists, ", ") + " - " + u.Name
	}
	return u.DisplayName()
}

// length is the duration in whole seconds, -1 when unknown.
func length(u *model.Unit) int {
	if u.Duration <= 0 {
		return -1
	}
	return int(u.Duration)
}
