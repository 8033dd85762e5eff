// Package resolver defines the contract the orchestrator uses to identify
// media and start downloads, and implements it on top of yt-dlp.
//
// Downloads are fire-and-forget: BeginDownload starts yt-dlp and returns,
// and the caller watches the cache directory for the finished file.
package resolver
