package resolver

import (
	"context"
	"errors"
	"math"
)

var (
	// ErrResolution means the media could not be identified.
	ErrResolution = errors.New("resolution failed")

	// ErrDownloadStart means the resolver refused or failed to start a
	// download.
	ErrDownloadStart = errors.New("download could not start")
)

// Request describes what to identify. Exactly one of Link and Query is set.
type Request struct {
	Link         string
	Query        string
	DurationHint float64
}

// Identity is the resolver's answer for a Request.
type Identity struct {
	ExternalID string
	Filename   string
	Title      string
	Duration   float64
	Thumbnail  string
}

// Candidate is one search result.
type Candidate struct {
	ID        string
	Title     string
	Duration  float64
	Thumbnail string
}

// Resolver identifies media and starts downloads into the cache directory.
//
// BeginDownload returns once the download has been started; completion is
// only observable by the target file appearing at destPath.
type Resolver interface {
	Identify(ctx context.Context, req Request) (Identity, error)
	BeginDownload(ctx context.Context, externalID, destPath string) error
}

// SelectCandidate picks the candidate whose duration is closest to hint.
// With no positive hint, or on ties, the earliest candidate wins.
func SelectCandidate(candidates []Candidate, hint float64) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	if hint <= 0 {
		return candidates[0], true
	}

	best := 0
	bestDiff := math.Inf(1)
	for i, c := range candidates {
		if c.Duration <= 0 {
			continue
		}
		if diff := math.Abs(c.Duration - hint); diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	return candidates[best], true
}
