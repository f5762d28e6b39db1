package inmemory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	infraBQ "github.com/dvloznov/statement-extractor/internal/infra/bigquery"
	"github.com/dvloznov/statement-extractor/internal/jobs"
)

// Queue buffers run summaries and writes them to a sink from background
// workers, so a slow audit store never delays a response. It implements
// infraBQ.Recorder and is safe for concurrent use.
type Queue struct {
	items      chan infraBQ.RunSummary
	sink       infraBQ.Recorder
	maxRetries int
	backoff    time.Duration
	log        zerolog.Logger

	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

var _ infraBQ.Recorder = (*Queue)(nil)

// NewQueue starts workers that drain into sink. bufferSize bounds how many
// summaries wait before Record starts rejecting.
func NewQueue(sink infraBQ.Recorder, bufferSize, workers int, log zerolog.Logger) *Queue {
	if bufferSize <= 0 {
		bufferSize = jobs.DefaultBufferSize
	}
	if workers <= 0 {
		workers = jobs.DefaultWorkers
	}
	q := &Queue{
		items:      make(chan infraBQ.RunSummary, bufferSize),
		sink:       sink,
		maxRetries: jobs.DefaultMaxRetries,
		backoff:    time.Second,
		log:        log,
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Record enqueues s without blocking.
func (q *Queue) Record(_ context.Context, s infraBQ.RunSummary) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return jobs.ErrQueueClosed
	}
	select {
	case q.items <- s:
		return nil
	default:
		q.dropped.Add(1)
		return jobs.ErrQueueFull
	}
}

// Dropped is the number of summaries rejected because the buffer was full.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for s := range q.items {
		q.process(s)
	}
}

// process writes one summary, retrying with linear backoff.
func (q *Queue) process(s infraBQ.RunSummary) {
	for attempt := 0; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := q.sink.Record(ctx, s)
		cancel()
		if err == nil {
			return
		}
		if attempt >= q.maxRetries {
			q.log.Error().Err(err).Str("request_id", s.RequestID).Int("attempts", attempt+1).Msg("giving up on run record")
			return
		}
		q.log.Warn().Err(err).Str("request_id", s.RequestID).Int("attempt", attempt+1).Msg("retrying run record")
		time.Sleep(time.Duration(attempt+1) * q.backoff)
	}
}

// Stop rejects new records and waits for buffered ones to be written.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.items)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue and closes the sink.
func (q *Queue) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := q.Stop(ctx); err != nil {
		return err
	}
	return q.sink.Close()
}
