package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job is one local file waiting to be imported.
type Job struct {
	Path        string
	SubmittedAt time.Time
	TraceID     string
}

// PathImporter is the part of Importer the queue needs.
type PathImporter interface {
	ImportPath(ctx context.Context, p string) (Result, error)
}

// Queue imports inbox files on a fixed pool of workers.
type Queue struct {
	imp     PathImporter
	logger  *slog.Logger
	workers int
	timeout time.Duration
	done    func(Result)

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type QueueOption func(*Queue)

func WithWorkers(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithImportTimeout(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// OnImported is called after every successful import, from the worker
// goroutine.
func OnImported(fn func(Result)) QueueOption {
	return func(q *Queue) { q.done = fn }
}

func NewQueue(imp PathImporter, logger *slog.Logger, opts ...QueueOption) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		imp:     imp,
		logger:  logger,
		workers: 2,
		timeout: 2 * time.Minute,
		done:    func(Result) {},
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("ingest.queue.worker_started", "worker_id", workerID)

				for job := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					res, err := q.imp.ImportPath(ctx, job.Path)
					cancel()

					if err != nil {
						q.logger.Error("ingest.queue.failed",
							"worker_id", workerID, "path", job.Path, "trace_id", job.TraceID, "error", err)
						continue
					}
					q.logger.Info("ingest.queue.imported",
						"worker_id", workerID, "path", job.Path, "destination", res.Destination,
						"deduplicated", res.Deduplicated, "wait_ms", time.Since(job.SubmittedAt).Milliseconds())
					q.done(res)
				}

				q.logger.Debug("ingest.queue.worker_stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Enqueue blocks when the queue is full. After Shutdown it drops the job.
func (q *Queue) Enqueue(_ context.Context, p string) {
	job := Job{Path: p, SubmittedAt: time.Now(), TraceID: uuid.NewString()}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("ingest.queue.closed", "path", p)
		return
	}
	select {
	case q.ch <- job:
	default:
		q.logger.Warn("ingest.queue.backpressure", "path", p)
		q.ch <- job
	}
}

// Shutdown stops accepting jobs and waits for the workers to drain the
// queue or for ctx to end.
func (q *Queue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("ingest.queue.shutdown_interrupted")
	case <-done:
		q.logger.Info("ingest.queue.drained")
	}
}

// Feed enqueues every path from events until the channel closes or ctx
// ends.
func (q *Queue) Feed(ctx context.Context, events <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-events:
			if !ok {
				return
			}
			q.Enqueue(ctx, p)
		}
	}
}
