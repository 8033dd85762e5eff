package model

// Status is a Unit's position in the acquisition state machine.
//
//	created → resolving
//	resolving → resolution_failed | cache_hit | download_requested
//	download_requested → start_failed | polling
//	polling → completed | timed_out
//	cache_hit | completed → index_updated → delivery_pending → done
//	                                      → done (cache-only)
type Status string

const (
	StatusCreated           Status = "created"
	StatusResolving         Status = "resolving"
	StatusResolutionFailed  Status = "resolution_failed"
	StatusCacheHit          Status = "cache_hit"
	StatusDownloadRequested Status = "download_requested"
	StatusStartFailed       Status = "start_failed"
	StatusPolling           Status = "polling"
	StatusCompleted         Status = "completed"
	StatusTimedOut          Status = "timed_out"
	StatusIndexUpdated      Status = "index_updated"
	StatusDeliveryPending   Status = "delivery_pending"
	StatusDeliveryFailed    Status = "delivery_failed"
	StatusCanceled          Status = "canceled"
	StatusDone              Status = "done"
)

// Failed reports whether the status is a terminal failure.
func (s Status) Failed() bool {
	switch s {
	case StatusResolutionFailed, StatusStartFailed, StatusTimedOut, StatusDeliveryFailed, StatusCanceled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions happen from s.
func (s Status) Terminal() bool {
	return s == StatusDone || s.Failed()
}

// Visible collapses internal states to what front-ends show: every
// terminal failure reads as "failed".
func (s Status) Visible() string {
	if s.Failed() {
		return "failed"
	}
	return string(s)
}
