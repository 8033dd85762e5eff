// Package storage implements the content cache: a directory of finished
// audio artifacts plus an index mapping each resolver external id to its
// file.
//
// # Layout
//
//	<dir>/index.json        persisted index (reserved key SELF)
//	<dir>/diagnostics.log   diagnostic log (reserved key LOG)
//	<dir>/<title>.mp3       artifacts
//	<dir>/archives/*.zip    bundles produced by Zip
//
// The index is JSON:
//
//	{"kXYiU_JCYtU": {"filename": "Numb.mp3", "timestamp": "2024-05-01T10:00:00Z", "delivered": false}}
//
// # Lifecycle
//
//	cache, err := storage.Open(dir, storage.WithRetention(72*time.Hour))
//	report, err := cache.EvictExpired()   // start of every batch
//	cache.RecordCompletion(id, filename)  // artifact landed
//	cache.MarkDelivered(id)               // front-end confirmed delivery
//	cache.Persist()                       // end of every batch
//
// All methods are safe for concurrent use.
package storage
