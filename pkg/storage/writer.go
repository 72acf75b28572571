package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type write struct {
	record  *Record
	flushed chan struct{}
}

// Writer saves records on its own goroutine so callers never wait on the
// store. Writes are applied in the order they were queued.
type Writer struct {
	store   Store
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	queue  chan write
	done   chan struct{}
}

// NewWriter starts a writer with room for buffer pending records.
func NewWriter(store Store, timeout time.Duration, buffer int) *Writer {
	w := &Writer{
		store:   store,
		timeout: timeout,
		queue:   make(chan write, buffer),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// Save queues a record. It returns false when the writer is closed or its
// buffer is full; the record is dropped in both cases.
func (w *Writer) Save(record *Record) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	select {
	case w.queue <- write{record: record}:
		return true
	default:
		return false
	}
}

// Flush waits until every record queued before it has been written.
func (w *Writer) Flush() {
	flushed := make(chan struct{})
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.queue <- write{flushed: flushed}
	w.mu.Unlock()
	<-flushed
}

// Close writes what is queued and stops the writer. It is safe to call more
// than once.
func (w *Writer) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
}

func (w *Writer) run() {
	defer close(w.done)
	for job := range w.queue {
		if job.flushed != nil {
			close(job.flushed)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		if err := w.store.Save(ctx, job.record); err != nil {
			log.Warn().Err(err).Str("session", job.record.ID).Msg("failed to persist session")
		}
		cancel()
	}
}
