package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/aisconsent/internal/consent/domain"
	"github.com/aussiebroadwan/aisconsent/internal/consent/store"
)

// ActionSink receives one entry per AIS request.
type ActionSink interface {
	Record(ctx context.Context, e domain.ActionLogEntry) error
}

// ActionLogger is the fire-and-forget side of the audit trail. Log must not
// block and must not fail the request it describes.
type ActionLogger interface {
	Log(e domain.ActionLogEntry)
}

// StoreSink writes entries to the consent store's action log.
type StoreSink struct {
	Store store.Store
}

func (s StoreSink) Record(ctx context.Context, e domain.ActionLogEntry) error {
	return s.Store.ActionLog().AppendAction(ctx, e)
}

// MultiSink records to every sink and joins their errors.
type MultiSink []ActionSink

func (m MultiSink) Record(ctx context.Context, e domain.ActionLogEntry) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AsyncActionLogger hands entries to a single worker goroutine through a
// buffered channel. When the buffer is full the entry is dropped and a
// warning logged.
type AsyncActionLogger struct {
	Sink    ActionSink
	Logger  *slog.Logger
	Timeout time.Duration // per Record call

	mu      sync.RWMutex // guards closed against sends on a closed ch
	closed  bool
	ch      chan domain.ActionLogEntry
	dropped atomic.Int64
	doneCh  chan struct{}
}

// NewAsyncActionLogger starts the worker. buffer <= 0 defaults to 256.
func NewAsyncActionLogger(sink ActionSink, logger *slog.Logger, buffer int) *AsyncActionLogger {
	if buffer <= 0 {
		buffer = 256
	}
	l := &AsyncActionLogger{
		Sink:    sink,
		Logger:  logger,
		Timeout: 5 * time.Second,
		ch:      make(chan domain.ActionLogEntry, buffer),
		doneCh:  make(chan struct{}),
	}
	go l.run()
	return l
}

// Log enqueues e without blocking.
func (l *AsyncActionLogger) Log(e domain.ActionLogEntry) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		l.dropped.Add(1)
		return
	}
	select {
	case l.ch <- e:
	default:
		n := l.dropped.Add(1)
		l.Logger.Warn("action log buffer full, entry dropped",
			"consent_id", e.ConsentID, "action_status", e.ActionStatus, "dropped_total", n)
	}
}

// Dropped returns how many entries were discarded.
func (l *AsyncActionLogger) Dropped() int64 { return l.dropped.Load() }

// Close stops accepting entries and waits until the queued ones are
// recorded.
func (l *AsyncActionLogger) Close() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.ch)
	}
	l.mu.Unlock()

	<-l.doneCh
}

func (l *AsyncActionLogger) run() {
	defer close(l.doneCh)

	for e := range l.ch {
		ctx, cancel := context.WithTimeout(context.Background(), l.Timeout)
		if err := l.Sink.Record(ctx, e); err != nil {
			l.Logger.Error("failed to record action", "consent_id", e.ConsentID, "error", err)
		}
		cancel()
	}
}
