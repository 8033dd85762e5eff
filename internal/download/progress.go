package download

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/handiism/music-parser/internal/logging"
)

// ProgressLevel indicates the severity/type of a progress message.
type ProgressLevel int

const (
	LevelInfo ProgressLevel = iota
	LevelVerbose
	LevelWarning
	LevelError
	LevelSuccess
)

// String returns the lowercase level name.
func (l ProgressLevel) String() string {
	switch l {
	case LevelVerbose:
		return "verbose"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelSuccess:
		return "success"
	default:
		return "info"
	}
}

// BatchLine is the progress line carrying batch-wide messages.
const BatchLine = "batch"

// UnitLine returns the progress line owned by the unit at index.
func UnitLine(index int) string {
	return fmt.Sprintf("unit-%d", index)
}

// ProgressEvent is one update for a front-end.
//
// Events with the same Line replace each other (a chat front-end edits the
// message in place). Attachment is the path of a file to deliver; Close
// means the line is finished and may be removed.
type ProgressEvent struct {
	Line       string
	Message    string
	Level      ProgressLevel
	Attachment string
	Close      bool
}

// ProgressSink receives progress events. Implementations must be safe
// for concurrent use.
type ProgressSink interface {
	Notify(ctx context.Context, event ProgressEvent) error
}

// ProgressFunc adapts a function to a ProgressSink.
type ProgressFunc func(ctx context.Context, event ProgressEvent) error

// Notify calls f.
func (f ProgressFunc) Notify(ctx context.Context, event ProgressEvent) error {
	return f(ctx, event)
}

type nopSink struct{}

func (nopSink) Notify(context.Context, ProgressEvent) error { return nil }

// reporter serializes text updates to a sink and drops edits that would
// not change a line. Attachments are sent outside the lock so a slow
// upload does not hold back other lines.
type reporter struct {
	sink    ProgressSink
	timeout time.Duration
	logger  *slog.Logger

	mu   sync.Mutex
	last map[string]string
}

func newReporter(sink ProgressSink, timeout time.Duration, logger *slog.Logger) *reporter {
	if sink == nil {
		sink = nopSink{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &reporter{
		sink:    sink,
		timeout: timeout,
		logger:  logger,
		last:    make(map[string]string),
	}
}

// notify delivers event. The returned error only matters for attachments;
// text failures are logged and otherwise ignored.
func (r *reporter) notify(ctx context.Context, event ProgressEvent) error {
	if event.Attachment != "" {
		return r.send(ctx, event)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !event.Close && event.Line != "" && r.last[event.Line] == event.Message {
		return nil
	}
	if err := r.send(ctx, event); err != nil {
		return err
	}
	if event.Close {
		delete(r.last, event.Line)
	} else if event.Line != "" {
		r.last[event.Line] = event.Message
	}
	return nil
}

func (r *reporter) send(ctx context.Context, event ProgressEvent) error {
	ctx = context.WithoutCancel(ctx)
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if err := r.sink.Notify(ctx, event); err != nil {
		logging.WarnWithContext(r.logger, "progress update failed", "progress_notify_failed",
			logging.String("line", event.Line),
			logging.Bool("attachment", event.Attachment != ""),
			logging.Error(err),
			logging.String(logging.FieldImpact, "front-end shows stale progress"))
		return err
	}
	return nil
}

// clockFaces rotate through polling messages so successive edits differ.
var clockFaces = []string{"🕛", "🕐", "🕑", "🕒", "🕓", "🕔", "🕕", "🕖", "🕗", "🕘", "🕙", "🕚"}
