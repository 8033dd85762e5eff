// Package ioutils provides file system and image helpers.
//
// # File Operations
//
//	err := ioutils.CopyFile(ctx, "/cache/song.mp3", "/home/me/Downloads/song.mp3")
//	err := ioutils.WriteFileAtomic("/cache/index.json", data)
//
// # Filename Sanitization
//
// SanitizeFileName turns resolver titles into names that are safe on
// every common file system:
//
//	ioutils.SanitizeFileName("Song: Part 1/2") // "Song_ Part 1_2"
//
// # Artwork
//
// ImageService.PrepareArtwork scales thumbnails down and re-encodes them
// as JPEG for ID3 embedding.
package ioutils
