package frontier

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/nao1215/politecrawl/internal/model"
)

// Readiness reports when a domain may next be fetched.
// A zero time means immediately.
type Readiness interface {
	ReadyAt(domain string) time.Time
}

// PopResult describes the outcome of Pop.
type PopResult int

const (
	// Popped means a task was returned and counted as in flight.
	Popped PopResult = iota
	// NotReady means tasks are queued but none is ready yet.
	NotReady
	// Empty means nothing is queued.
	Empty
)

// Frontier is the shared, concurrency-safe task queue of a crawl.
type Frontier struct {
	maxDepth int
	ready    Readiness
	now      func() time.Time

	mu       sync.Mutex
	queues   map[string]*taskHeap
	visited  map[string]struct{}
	seq      uint64
	size     int
	inFlight int
	closed   bool

	// changed is closed and replaced on every state change to wake waiters.
	changed chan struct{}
}

// Option configures a Frontier.
type Option func(*Frontier)

// WithClock replaces time.Now for readiness decisions in Next.
func WithClock(now func() time.Time) Option {
	return func(f *Frontier) {
		f.now = now
	}
}

// New creates an empty frontier. Tasks deeper than maxDepth are refused.
// ready may be nil, in which case every domain is always ready.
func New(maxDepth int, ready Readiness, opts ...Option) *Frontier {
	f := &Frontier{
		maxDepth: maxDepth,
		ready:    ready,
		now:      time.Now,
		queues:   make(map[string]*taskHeap),
		visited:  make(map[string]struct{}),
		changed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Push admits a newly discovered task. It returns false when the task is
// too deep, its URL was already seen in this run, or the frontier is closed.
func (f *Frontier) Push(task model.CrawlTask) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed || task.Depth > f.maxDepth {
		return false
	}
	if _, seen := f.visited[task.URL]; seen {
		return false
	}
	f.visited[task.URL] = struct{}{}
	f.enqueueLocked(task)
	return true
}

// Requeue puts an already admitted task back, held until notBefore.
// It bypasses the visited check and gives the task a fresh sequence number.
func (f *Frontier) Requeue(task model.CrawlTask, notBefore time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false
	}
	task.NotBefore = notBefore
	f.enqueueLocked(task)
	return true
}

func (f *Frontier) enqueueLocked(task model.CrawlTask) {
	f.seq++
	task.Seq = f.seq

	q, ok := f.queues[task.Domain]
	if !ok {
		q = &taskHeap{}
		f.queues[task.Domain] = q
	}
	heap.Push(q, task)
	f.size++
	f.notifyLocked()
}

// Pop removes the best ready task at now. A popped task is in flight until
// Done is called for it.
func (f *Frontier) Pop(now time.Time) (model.CrawlTask, PopResult) {
	f.mu.Lock()
	defer f.mu.Unlock()

	task, res, _ := f.popLocked(now)
	return task, res
}

// popLocked selects the highest-priority head among ready domains.
// When nothing is ready it also returns the earliest instant something will be.
func (f *Frontier) popLocked(now time.Time) (model.CrawlTask, PopResult, time.Time) {
	if f.size == 0 {
		return model.CrawlTask{}, Empty, time.Time{}
	}

	var (
		best     *taskHeap
		bestHead *model.CrawlTask
		earliest time.Time
	)
	for domain, q := range f.queues {
		if q.Len() == 0 {
			continue
		}
		head := &(*q)[0]

		at := head.NotBefore
		if f.ready != nil {
			if r := f.ready.ReadyAt(domain); r.After(at) {
				at = r
			}
		}
		if at.After(now) {
			if earliest.IsZero() || at.Before(earliest) {
				earliest = at
			}
			continue
		}
		if bestHead == nil || before(head, bestHead) {
			best, bestHead = q, head
		}
	}

	if best == nil {
		return model.CrawlTask{}, NotReady, earliest
	}

	task := heap.Pop(best).(model.CrawlTask) //nolint:forcetypeassert // taskHeap holds CrawlTask only
	if best.Len() == 0 {
		delete(f.queues, task.Domain)
	}
	f.size--
	f.inFlight++
	task.NotBefore = time.Time{}
	return task, Popped, time.Time{}
}

// Next blocks until a task is ready and returns it.
// It returns ErrDrained when nothing is queued or in flight, ErrClosed after
// Close, and ctx.Err() when ctx is cancelled.
func (f *Frontier) Next(ctx context.Context) (model.CrawlTask, error) {
	for {
		if err := ctx.Err(); err != nil {
			return model.CrawlTask{}, err
		}

		now := f.now()
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			return model.CrawlTask{}, ErrClosed
		}
		task, res, next := f.popLocked(now)
		if res == Popped {
			f.mu.Unlock()
			return task, nil
		}
		if res == Empty && f.inFlight == 0 {
			f.mu.Unlock()
			return model.CrawlTask{}, ErrDrained
		}
		changed := f.changed
		f.mu.Unlock()

		var (
			timer   *time.Timer
			timeout <-chan time.Time
		)
		if res == NotReady && !next.IsZero() {
			timer = time.NewTimer(next.Sub(now))
			timeout = timer.C
		}

		select {
		case <-ctx.Done():
		case <-changed:
		case <-timeout:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// Done marks one popped task as finished. Any follow-up Push or Requeue
// for it must happen before Done, so the frontier never looks drained early.
func (f *Frontier) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.inFlight > 0 {
		f.inFlight--
	}
	f.notifyLocked()
}

// Close stops the frontier. Push and Requeue become no-ops and Next returns ErrClosed.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	f.notifyLocked()
}

func (f *Frontier) notifyLocked() {
	close(f.changed)
	f.changed = make(chan struct{})
}

// Len returns the number of queued tasks.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size
}

// InFlight returns the number of popped tasks not yet marked Done.
func (f *Frontier) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

// Visited returns the number of distinct URLs admitted so far.
func (f *Frontier) Visited() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}

// Seen reports whether url has been admitted in this run.
func (f *Frontier) Seen(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.visited[url]
	return ok
}

// Domains returns the number of domains with queued tasks.
func (f *Frontier) Domains() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queues)
}
