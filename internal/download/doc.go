// Package download runs batches of units through the resolver and the
// content cache.
//
// # Batches
//
//	m := download.NewManager(settings, cache, ytdlp, download.WithSink(sink))
//	units, err := m.Expand(ctx, references)
//	result, err := m.RunBatch(ctx, units, download.BatchOptions{Deliver: true})
//	result, err = m.Retry(ctx, result, download.BatchOptions{Deliver: true})
//
// Every unit runs in its own goroutine but only max_concurrent_downloads
// of them hold a Gate slot at a time. A unit is resolved, served from the
// cache when possible, otherwise downloaded and polled for until its file
// appears or its timeout expires. RunBatch always waits for every unit.
//
// # Progress
//
// Progress flows to a ProgressSink as line-addressed events: BatchLine for
// batch-wide messages and UnitLine(i) per unit. Repeated identical text on
// a line is suppressed.
package download
