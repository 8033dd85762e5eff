package audio

import (
	"errors"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bogem/id3v2"

	"github.com/handiism/music-parser/internal/model"
)

// ErrUnsupportedFormat is returned for artifacts that cannot carry ID3 tags.
var ErrUnsupportedFormat = errors.New("artifact format does not support id3 tags")

// TagConfig selects what the Tagger writes.
type TagConfig struct {
	// ModifyTags writes title, artist, album and length frames.
	ModifyTags bool
	// EmbedArtwork writes an attached front cover picture when artwork
	// bytes are supplied.
	EmbedArtwork bool
}

// Tagger writes unit metadata into downloaded MP3 artifacts.
//
//	tagger := NewTagger(TagConfig{ModifyTags: true, EmbedArtwork: true})
//	err := tagger.Tag(cache.Path(u.Filename), u, jpegBytes)
type Tagger struct {
	config TagConfig
}

// NewTagger creates a new Tagger.
func NewTagger(config TagConfig) *Tagger {
	return &Tagger{config: config}
}

// Enabled reports whether Tag would write anything.
func (t *Tagger) Enabled() bool {
	return t != nil && (t.config.ModifyTags || t.config.EmbedArtwork)
}

// Tag updates the ID3 tag of the MP3 file at path. Artwork may be nil.
func (t *Tagger) Tag(path string, u *model.Unit, artwork []byte) error {
	if !strings.EqualFold(filepath.Ext(path), ".mp3") {
		return ErrUnsupportedFormat
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return err
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)

	if t.config.ModifyTags {
		writeTextFrames(tag, u)
	}
	if t.config.EmbedArtwork && len(artwork) > 0 {
		tag.DeleteFrames(tag.CommonID("Attached picture"))
		tag.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    "image/jpeg",
			PictureType: id3v2.PTFrontCover,
			Description: "Cover",
			Picture:     artwork,
		})
	}

	return tag.Save()
}

func writeTextFrames(tag *id3v2.Tag, u *model.Unit) {
	if u.Name != "" {
		tag.SetTitle(u.Name)
	}
	if len(u.Artists) > 0 {
		tag.SetArtist(strings.Join(u.Artists, ", "))
		tag.AddTextFrame("TPE2", id3v2.EncodingUTF8, u.Artists[0])
	}
	if u.Album != "" {
		tag.SetAlbum(u.Album)
	}
	if u.Duration > 0 {
		tag.AddTextFrame("TLEN", id3v2.EncodingUTF8, strconv.FormatInt(int64(u.Duration*1000), 10))
	}

	source := u.CatalogLink
	if source == "" {
		source = u.MediaLink
	}
	tag.DeleteFrames(tag.CommonID("Comments"))
	if source != "" {
		tag.AddCommentFrame(id3v2.CommentFrame{
			Encoding:    id3v2.EncodingUTF8,
			Language:    "eng",
			Description: "source",
			Text:        source,
		})
	}
}
