// Package logging builds the slog loggers used across music-parser.
//
// Console output goes through tint; the json format uses slog's JSON
// handler with ts/level/msg keys. NewFromSettings additionally appends
// to diagnostics.log inside the download directory.
package logging
