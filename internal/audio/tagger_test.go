package audio

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bogem/id3v2"

	"github.com/handiism/music-parser/internal/model"
)

func writeFakeMP3(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, bytes.Repeat([]byte{0xFF, 0xFB, 0x90, 0x00}, 64), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTagger_Tag(t *testing.T) {
	path := writeFakeMP3(t, "Numb.mp3")
	u := model.NewCatalogUnit("Numb", []string{"Linkin Park"}, 187, "t1", "https://open.spotify.com/track/t1")
	u.Album = "Meteora"

	tagger := NewTagger(TagConfig{ModifyTags: true, EmbedArtwork: true})
	if err := tagger.Tag(path, u, []byte("jpeg bytes")); err != nil {
		t.Fatalf("Tag() error = %v", err)
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer tag.Close()

	if tag.Title() != "Numb" {
		t.Errorf("Title = %q", tag.Title())
	}
	if tag.Artist() != "Linkin Park" {
		t.Errorf("Artist = %q", tag.Artist())
	}
	if tag.Album() != "Meteora" {
		t.Errorf("Album = %q", tag.Album())
	}
	if frames := tag.GetFrames(tag.CommonID("Attached picture")); len(frames) != 1 {
		t.Errorf("got %d picture frames, want 1", len(frames))
	}
}

func TestTagger_ArtworkOnly(t *testing.T) {
	path := writeFakeMP3(t, "a.mp3")
	u := model.NewQueryUnit("whatever")

	if err := NewTagger(TagConfig{EmbedArtwork: true}).Tag(path, u, []byte("img")); err != nil {
		t.Fatalf("Tag() error = %v", err)
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatal(err)
	}
	defer tag.Close()
	if tag.Title() != "" {
		t.Errorf("title written with ModifyTags off: %q", tag.Title())
	}
}

func TestTagger_RejectsNonMP3(t *testing.T) {
	err := NewTagger(TagConfig{ModifyTags: true}).Tag("/tmp/a.opus", model.NewQueryUnit("x"), nil)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestTagger_Enabled(t *testing.T) {
	var nilTagger *Tagger
	if nilTagger.Enabled() {
		t.Error("nil tagger must be disabled")
	}
	if NewTagger(TagConfig{}).Enabled() {
		t.Error("empty config must be disabled")
	}
	if !NewTagger(TagConfig{ModifyTags: true}).Enabled() {
		t.Error("ModifyTags must enable")
	}
}
