package triage

import (
	"context"
	"log/slog"

	"github.com/joshsymonds/chronotriage/internal/gmail"
)

// Sink receives prioritized threads that need attention from a person.
type Sink interface {
	Push(ctx context.Context, id gmail.ThreadID, priority string) error
}

// LogSink records pushes in the log.
type LogSink struct{ Logger *slog.Logger }

func (s LogSink) Push(ctx context.Context, id gmail.ThreadID, priority string) error {
	if s.Logger != nil {
		s.Logger.InfoContext(ctx, "push", "thread", id, "priority", priority)
	}
	return nil
}

// Push is one delivered notification.
type Push struct {
	Thread   gmail.ThreadID
	Priority string
}

// ChanSink delivers pushes on a channel, blocking until the receiver is ready.
type ChanSink chan Push

func (s ChanSink) Push(ctx context.Context, id gmail.ThreadID, priority string) error {
	select {
	case s <- Push{Thread: id, Priority: priority}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
