package model

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// SourceKind identifies where a Unit's reference came from.
type SourceKind int

const (
	// SourceCatalog units were expanded from a catalog (Spotify) link and
	// carry name, artists and a duration hint.
	SourceCatalog SourceKind = iota

	// SourceMediaLink units point directly at a media page (YouTube).
	SourceMediaLink

	// SourceQuery units are free-text searches.
	SourceQuery
)

// String returns the lowercase name of the source kind.
func (k SourceKind) String() string {
	switch k {
	case SourceCatalog:
		return "catalog"
	case SourceMediaLink:
		return "media_link"
	case SourceQuery:
		return "query"
	default:
		return "unknown"
	}
}

// Unit is one item to acquire within a batch.
//
// A Unit starts out identified only by its Index. ExternalID and Filename
// are filled in by Resolve once the resolver has identified the media.
// Only the worker processing the unit mutates it while a batch runs; the
// batch driver reads it after the worker has returned.
//
// Example:
//
//	u := model.NewCatalogUnit("Numb", []string{"Linkin Park"}, 187.0, "4Q3N4Ct4zCuIHuZ65E3BD4", link)
//	u.SearchQuery() // "Numb - Official Audio - Linkin Park"
type Unit struct {
	// Index is the position of the unit within its batch.
	Index int

	// Name is the track title, when known before resolution.
	Name string

	// Artists lists the performing artists (catalog units only).
	Artists []string

	// Album is the catalog album title (catalog units only).
	Album string

	// Duration is the expected length in seconds. Zero means unknown.
	Duration float64

	// CatalogID and CatalogLink identify the catalog track.
	CatalogID   string
	CatalogLink string

	// MediaLink is a direct media page URL.
	MediaLink string

	// Query is the free-text search as supplied by the user.
	Query string

	// ExternalID is the resolver's stable identifier. It doubles as the
	// content cache key.
	ExternalID string

	// Filename is the artifact file name inside the cache directory.
	Filename string

	// Thumbnail is an artwork URL reported by the resolver, if any.
	Thumbnail string

	// Retries counts failed download attempts. It never decreases.
	Retries int

	// Status is the current state machine tag.
	Status Status

	// Err is the last failure recorded for this unit.
	Err error

	source SourceKind
	mu     sync.Mutex
	logs   []string
}

// NewCatalogUnit creates a unit expanded from a catalog track.
func NewCatalogUnit(name string, artists []string, duration float64, catalogID, catalogLink string) *Unit {
	return &Unit{
		Name:        strings.TrimSpace(name),
		Artists:     artists,
		Duration:    duration,
		CatalogID:   catalogID,
		CatalogLink: catalogLink,
		Status:      StatusCreated,
		source:      SourceCatalog,
	}
}

// NewMediaLinkUnit creates a unit for a direct media link.
func NewMediaLinkUnit(link string) *Unit {
	return &Unit{
		MediaLink: strings.TrimSpace(link),
		Status:    StatusCreated,
		source:    SourceMediaLink,
	}
}

// NewQueryUnit creates a unit for a free-text search.
func NewQueryUnit(query string) *Unit {
	return &Unit{
		Query:  strings.TrimSpace(query),
		Status: StatusCreated,
		source: SourceQuery,
	}
}

// Source reports which kind of reference the unit was built from.
func (u *Unit) Source() SourceKind {
	return u.source
}

// SearchQuery returns the text handed to the resolver when the unit has
// no direct media link. Empty for media link units.
func (u *Unit) SearchQuery() string {
	switch u.source {
	case SourceQuery:
		return u.Query + " audio"
	case SourceCatalog:
		if len(u.Artists) == 0 {
			return u.Name + " - Official Audio"
		}
		return u.Name + " - Official Audio - " + strings.Join(u.Artists, ", ")
	default:
		return ""
	}
}

// DisplayName returns a human readable label for progress messages.
func (u *Unit) DisplayName() string {
	if u.Name != "" {
		if len(u.Artists) > 0 {
			return u.Name + " by " + strings.Join(u.Artists, ", ")
		}
		return u.Name
	}
	if u.Filename != "" {
		return strings.TrimSuffix(u.Filename, fileExt(u.Filename))
	}
	if u.MediaLink != "" {
		return u.MediaLink
	}
	return u.Query
}

// Resolve records the resolver's identification of the unit.
func (u *Unit) Resolve(externalID, filename string) {
	u.ExternalID = externalID
	u.Filename = filename
}

// Resolved reports whether Resolve has succeeded at least once.
func (u *Unit) Resolved() bool {
	return u.ExternalID != ""
}

// SetStatus moves the unit to the given state and records the transition.
func (u *Unit) SetStatus(status Status) {
	u.Status = status
	u.AddLog("status", status)
}

// Fail moves the unit to a terminal failure state.
func (u *Unit) Fail(status Status, err error) {
	u.Err = err
	u.SetStatus(status)
	if err != nil {
		u.AddLog("error", err)
	}
}

// RecordFailedAttempt increments the retry counter.
func (u *Unit) RecordFailedAttempt() int {
	u.Retries++
	return u.Retries
}

// AddLog appends a timestamped line to the unit's log trail.
func (u *Unit) AddLog(args ...any) {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}
	line := time.Now().UTC().Format("15:04:05.000") + " " + strings.Join(parts, " ")

	u.mu.Lock()
	u.logs = append(u.logs, line)
	u.mu.Unlock()
}

// Logs returns a copy of the log trail.
func (u *Unit) Logs() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]string, len(u.logs))
	copy(out, u.logs)
	return out
}

// LogTrail joins the log trail into a single block of text.
func (u *Unit) LogTrail() string {
	return strings.Join(u.Logs(), "\n")
}

func fileExt(name string) string {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return name[i:]
	}
	return ""
}
