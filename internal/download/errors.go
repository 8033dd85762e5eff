package download

import "errors"

var (
	// ErrNoValidInput means a batch or a set of references yielded no units.
	ErrNoValidInput = errors.New("no valid input")

	// ErrDownloadTimeout means the artifact did not appear in the cache
	// before the unit's deadline.
	ErrDownloadTimeout = errors.New("download timed out")

	// ErrRetriesExhausted means the unit used up its download attempts.
	ErrRetriesExhausted = errors.New("download retries exhausted")
)
