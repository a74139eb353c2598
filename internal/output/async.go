package output

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nao1215/politecrawl/internal/model"
)

// item is one unit of work for the writer goroutine.
type item struct {
	rec *model.FetchRecord
	run *model.RunSummary
}

// Async decouples workers from a Sink with a bounded queue drained by a
// single goroutine. Write blocks for at most the write timeout when the
// queue is full; once the backend fails, every later Write returns
// ErrSinkUnwritable.
type Async struct {
	inner   Sink
	queue   chan item
	timeout time.Duration
	logger  *slog.Logger

	done chan struct{}

	// mu guards closed against concurrent enqueues. The writer goroutine
	// never takes it.
	mu     sync.RWMutex
	closed bool

	errMu   sync.Mutex
	failErr error
	written atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

// NewAsync starts the writer goroutine for inner.
func NewAsync(inner Sink, queueSize int, writeTimeout time.Duration, logger *slog.Logger) *Async {
	if queueSize <= 0 {
		queueSize = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Async{
		inner:   inner,
		queue:   make(chan item, queueSize),
		timeout: writeTimeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for it := range a.queue {
		if a.failed() != nil {
			continue
		}
		var err error
		switch {
		case it.rec != nil:
			err = a.inner.Write(context.Background(), it.rec)
		case it.run != nil:
			if rr, ok := a.inner.(RunRecorder); ok {
				err = rr.SaveRun(context.Background(), it.run)
			}
		}
		if err != nil {
			a.logger.Error("output sink failed", "error", err)
			a.errMu.Lock()
			a.failErr = err
			a.errMu.Unlock()
			continue
		}
		if it.rec != nil {
			a.written.Add(1)
		}
	}
}

func (a *Async) failed() error {
	a.errMu.Lock()
	defer a.errMu.Unlock()
	return a.failErr
}

// Write validates r and queues it. Invalid records are rejected with
// ErrInvalidRecord and do not poison the sink.
func (a *Async) Write(ctx context.Context, r *model.FetchRecord) error {
	if err := Validate(r); err != nil {
		return err
	}
	return a.enqueue(ctx, item{rec: r})
}

// SaveRun queues the run summary behind every record written so far.
// Backends that do not store summaries ignore it.
func (a *Async) SaveRun(ctx context.Context, s *model.RunSummary) error {
	return a.enqueue(ctx, item{run: s})
}

func (a *Async) enqueue(ctx context.Context, it item) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return ErrSinkClosed
	}
	if err := a.failed(); err != nil {
		return fmt.Errorf("%w: %w", ErrSinkUnwritable, err)
	}

	select {
	case a.queue <- it:
		return nil
	default:
	}

	timer := time.NewTimer(a.timeout)
	defer timer.Stop()
	select {
	case a.queue <- it:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: queue full for %s", ErrSinkUnwritable, a.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Written returns the number of records the backend accepted.
func (a *Async) Written() int {
	return int(a.written.Load())
}

// Path returns the backend's file path, or "" when it has none.
func (a *Async) Path() string {
	if p, ok := a.inner.(Pather); ok {
		return p.Path()
	}
	return ""
}

// Close drains the queue and closes the backend. It returns
// ErrSinkUnwritable when a write failed along the way.
func (a *Async) Close() error {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
		<-a.done

		errClose := a.inner.Close()
		if err := a.failed(); err != nil {
			a.closeErr = fmt.Errorf("%w: %w", ErrSinkUnwritable, err)
			return
		}
		if errClose != nil {
			a.closeErr = fmt.Errorf("%w: %w", ErrSinkUnwritable, errClose)
		}
	})
	return a.closeErr
}

var _ Sink = (*Async)(nil)

// IsFatal reports whether err means the sink can no longer be used.
func IsFatal(err error) bool {
	return errors.Is(err, ErrSinkUnwritable)
}
