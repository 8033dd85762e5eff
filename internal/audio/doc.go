// Package audio post-processes finished artifacts.
//
// # ID3 Tagging
//
//	tagger := audio.NewTagger(audio.TagConfig{ModifyTags: true, EmbedArtwork: true})
//	err := tagger.Tag(path, unit, jpegBytes)
//
// Title, artist, album, length and the source link are taken from the
// unit; artwork is embedded as the front cover.
//
// # Playlists
//
// Multi-track bundles carry a playlist next to the artifacts:
//
//	creator := audio.NewPlaylistCreator(audio.FormatM3U, true)
//	content := creator.Create(units)
//
// Supported formats are M3U (optionally extended) and PLS.
package audio
