package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/handiism/music-parser/internal/logging"
	"github.com/handiism/music-parser/internal/model"
	"github.com/handiism/music-parser/internal/resolver"
)

// runUnit drives one unit to a terminal state while holding a gate slot.
// Nothing escapes: errors and panics become unit failures.
func (m *Manager) runUnit(ctx context.Context, rep *reporter, logger *slog.Logger, u *model.Unit, deliver, bundle bool) {
	logger = logger.With(logging.Int(logging.FieldUnitIndex, u.Index))

	if err := m.gate.Acquire(ctx); err != nil {
		m.fail(ctx, rep, logger, u, model.StatusCanceled, err)
		return
	}
	defer m.gate.Release()

	defer func() {
		if r := recover(); r != nil {
			m.fail(ctx, rep, logger, u, failureFor(u.Status), fmt.Errorf("panic: %v", r))
		}
	}()

	u.Err = nil
	u.AddLog("Started:", u.DisplayName())

	if !m.acquire(ctx, rep, logger, u) {
		return
	}

	if err := m.cache.RecordCompletion(u.ExternalID, u.Filename); err != nil {
		m.fail(ctx, rep, logger, u, model.StatusResolutionFailed, err)
		return
	}
	u.SetStatus(model.StatusIndexUpdated)
	if err := m.cache.Persist(); err != nil {
		logger.Warn("index persist failed", logging.Error(err))
	}

	switch {
	case !deliver:
		u.SetStatus(model.StatusDone)
		rep.notify(ctx, ProgressEvent{Line: UnitLine(u.Index), Message: "Download completed: " + u.DisplayName(), Level: LevelSuccess, Close: true})
	case bundle:
		u.SetStatus(model.StatusDeliveryPending)
		rep.notify(ctx, ProgressEvent{Line: UnitLine(u.Index), Message: "Download completed: " + u.DisplayName()})
	default:
		u.SetStatus(model.StatusDeliveryPending)
		m.deliver(ctx, rep, logger, u)
	}
}

// acquire resolves the unit and makes sure its artifact is in the cache.
// It reports false after failing the unit.
func (m *Manager) acquire(ctx context.Context, rep *reporter, logger *slog.Logger, u *model.Unit) bool {
	line := UnitLine(u.Index)

	u.SetStatus(model.StatusResolving)
	rep.notify(ctx, ProgressEvent{Line: line, Message: "Searching: " + u.DisplayName()})

	identity, err := m.resolver.Identify(ctx, resolver.Request{
		Link:         u.MediaLink,
		Query:        u.SearchQuery(),
		DurationHint: u.Duration,
	})
	if err != nil {
		m.fail(ctx, rep, logger, u, canceledOr(ctx, model.StatusResolutionFailed), err)
		return false
	}
	u.Resolve(identity.ExternalID, identity.Filename)
	if u.Thumbnail == "" {
		u.Thumbnail = identity.Thumbnail
	}
	if u.Duration <= 0 {
		u.Duration = identity.Duration
	}
	if u.Name == "" {
		u.Name = identity.Title
	}
	u.AddLog("Resolved:", u.ExternalID, u.Filename)

	if m.cache.Find(u.ExternalID) || m.cache.Present(u.Filename) {
		u.SetStatus(model.StatusCacheHit)
		u.AddLog("Indexed file found:", u.Filename)
		return true
	}

	if !m.begin(ctx, rep, logger, u) {
		return false
	}

	if err := m.poll(ctx, rep, u); err != nil {
		if errors.Is(err, ErrDownloadTimeout) {
			u.RecordFailedAttempt()
		}
		rep.notify(ctx, ProgressEvent{Line: line, Message: "Download couldn't complete: " + u.DisplayName(), Level: LevelWarning})
		m.fail(ctx, rep, logger, u, canceledOr(ctx, model.StatusTimedOut), err)
		return false
	}

	u.SetStatus(model.StatusCompleted)
	u.AddLog("Download completed:", u.DisplayName())
	m.tag(ctx, logger, u)
	return true
}

// begin asks the resolver to start the download. Units sharing an
// external id share one request.
func (m *Manager) begin(ctx context.Context, rep *reporter, logger *slog.Logger, u *model.Unit) bool {
	line := UnitLine(u.Index)

	if u.Retries >= m.settings.DownloadMaxRetries {
		rep.notify(ctx, ProgressEvent{Line: line, Message: "Download couldn't start: " + u.DisplayName(), Level: LevelWarning})
		m.fail(ctx, rep, logger, u, model.StatusStartFailed, fmt.Errorf("%w after %d attempts", ErrRetriesExhausted, u.Retries))
		return false
	}

	if m.settings.EvictDeliveredBeforeDownload {
		if report, err := m.cache.EvictDelivered(); err != nil {
			logger.Warn("evicting delivered entries failed", logging.Error(err))
		} else if report.EntriesRemoved > 0 {
			logger.Debug("evicted delivered entries", logging.Int("entries", report.EntriesRemoved))
		}
	}

	u.SetStatus(model.StatusDownloadRequested)
	u.AddLog("Downloader try:", u.Retries)

	_, err, shared := m.flight.Do(u.ExternalID, func() (any, error) {
		return nil, m.resolver.BeginDownload(ctx, u.ExternalID, m.cache.Path(u.Filename))
	})
	if shared {
		u.AddLog("Download request shared:", u.ExternalID)
	}
	if err != nil {
		u.RecordFailedAttempt()
		rep.notify(ctx, ProgressEvent{Line: line, Message: "Download couldn't start: " + u.DisplayName(), Level: LevelWarning})
		m.fail(ctx, rep, logger, u, canceledOr(ctx, model.StatusStartFailed), err)
		return false
	}

	rep.notify(ctx, ProgressEvent{Line: line, Message: "Download started: " + u.DisplayName(), Level: LevelVerbose})
	return true
}

// poll waits for the artifact to appear. The deadline starts here; the
// watcher, when present, only shortens the wait between checks.
func (m *Manager) poll(ctx context.Context, rep *reporter, u *model.Unit) error {
	u.SetStatus(model.StatusPolling)
	line := UnitLine(u.Index)

	var wake <-chan struct{}
	if m.watcher != nil {
		ch, unsubscribe := m.watcher.Subscribe()
		defer unsubscribe()
		wake = ch
	}

	deadline := time.NewTimer(m.settings.DownloadTimeout())
	defer deadline.Stop()
	ticker := time.NewTicker(m.pollInterval())
	defer ticker.Stop()

	for face := 0; ; face = (face + 1) % len(clockFaces) {
		if m.cache.Present(u.Filename) {
			return nil
		}
		rep.notify(ctx, ProgressEvent{
			Line:    line,
			Message: fmt.Sprintf("Downloading (%s) : %s", clockFaces[face], u.DisplayName()),
			Level:   LevelVerbose,
		})

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			if m.cache.Present(u.Filename) {
				return nil
			}
			return fmt.Errorf("%w after %s", ErrDownloadTimeout, m.settings.DownloadTimeout())
		case <-ticker.C:
		case <-wake:
		}
	}
}

func (m *Manager) pollInterval() time.Duration {
	if d := m.settings.PollInterval(); d > 0 {
		return d
	}
	return time.Second
}

// canceledOr reports canceled when ctx has ended, status otherwise.
func canceledOr(ctx context.Context, status model.Status) model.Status {
	if ctx.Err() != nil {
		return model.StatusCanceled
	}
	return status
}

// failureFor maps the stage a unit was in to the failure it ends with.
func failureFor(status model.Status) model.Status {
	switch status {
	case model.StatusDownloadRequested:
		return model.StatusStartFailed
	case model.StatusPolling:
		return model.StatusTimedOut
	case model.StatusCacheHit, model.StatusCompleted, model.StatusIndexUpdated, model.StatusDeliveryPending:
		return model.StatusDeliveryFailed
	default:
		return model.StatusResolutionFailed
	}
}
