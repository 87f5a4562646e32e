package store

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// AuditWriter mirrors audit events to Postgres asynchronously so the
// grading path never blocks on the database.
type AuditWriter struct {
	db   *DB
	ch   chan *Event
	wg   sync.WaitGroup
	done chan struct{}
}

// NewAuditWriter creates a buffered writer over db.
func NewAuditWriter(db *DB, bufferSize int) *AuditWriter {
	if bufferSize < 1 {
		bufferSize = 1000
	}
	return &AuditWriter{
		db:   db,
		ch:   make(chan *Event, bufferSize),
		done: make(chan struct{}),
	}
}

// Start launches the background writer.
func (w *AuditWriter) Start() {
	w.wg.Add(1)
	go w.processLoop()
}

// Log enqueues an event, dropping it if the buffer is full.
func (w *AuditWriter) Log(ev *Event) {
	select {
	case w.ch <- ev:
	default:
		log.Warn().Str("user_id", ev.UserID).Msg("audit mirror buffer full, dropping event")
	}
}

// Flush stops the writer and drains buffered events, bounded by timeout.
func (w *AuditWriter) Flush(timeout time.Duration) {
	close(w.done)

	doneCh := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		log.Info().Msg("audit mirror flushed")
	case <-time.After(timeout):
		log.Warn().Msg("audit mirror flush timed out")
	}
}

func (w *AuditWriter) processLoop() {
	defer w.wg.Done()

	for {
		select {
		case ev := <-w.ch:
			w.writeWithRetry(ev)
		case <-w.done:
			for {
				select {
				case ev := <-w.ch:
					w.writeWithRetry(ev)
				default:
					return
				}
			}
		}
	}
}

func (w *AuditWriter) writeWithRetry(ev *Event) {
	const maxRetries = 3

	for attempt := 0; attempt <= maxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := w.db.LogEvent(ctx, ev)
		cancel()

		if err == nil {
			return
		}

		if attempt < maxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond
			log.Warn().
				Err(err).
				Str("user_id", ev.UserID).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("audit mirror write failed, retrying")
			time.Sleep(backoff)
		} else {
			log.Error().
				Err(err).
				Str("user_id", ev.UserID).
				Msg("audit mirror write failed permanently after retries")
		}
	}
}
