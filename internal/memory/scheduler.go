package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// markerKind labels the mutating operation that requested a batch save.
// Markers carry no persisted data: the payload written at flush time is
// always the current buffer contents.
type markerKind string

const (
	markerAdd   markerKind = "add"
	markerPrune markerKind = "prune"
)

// writeMarker is a pending-write signal. Multiple markers coalesce into a
// single durable write.
type writeMarker struct {
	kind  markerKind
	count int // messages added or removed, for observability only
	at    time.Time
}

// batchScheduler coalesces write requests, debounces them, and hands off to
// the persist function under a single-writer lock.
//
// It is a two-state machine: Idle (no markers, no timer) and Pending (at
// least one marker queued with the debounce timer armed, or a flush in
// flight). Reaching maxBatch markers flushes immediately, cancelling the
// timer. A flush requested while another is in flight is dropped: the
// in-flight write reads the buffer when it runs, so the request is
// coalesced, not lost.
type batchScheduler struct {
	delay    time.Duration
	maxBatch int
	persist  func(ctx context.Context) error
	logger   *slog.Logger
	metrics  *Metrics
	now      func() time.Time

	mu      sync.Mutex
	markers []writeMarker
	timer   *time.Timer
	saving  bool
	dirty   bool          // a failed flush left unsaved state behind
	done    chan struct{} // closed when the in-flight flush completes
}

func newBatchScheduler(delay time.Duration, maxBatch int, persist func(ctx context.Context) error, logger *slog.Logger, metrics *Metrics, now func() time.Time) *batchScheduler {
	return &batchScheduler{
		delay:    delay,
		maxBatch: maxBatch,
		persist:  persist,
		logger:   logger,
		metrics:  metrics,
		now:      now,
	}
}

// Enqueue records a pending-write marker. The first marker arms the
// debounce timer; hitting maxBatch flushes immediately.
func (s *batchScheduler) Enqueue(kind markerKind, count int) {
	s.mu.Lock()
	s.markers = append(s.markers, writeMarker{kind: kind, count: count, at: s.now()})

	if len(s.markers) >= s.maxBatch {
		s.stopTimerLocked()
		s.mu.Unlock()
		go s.flush(context.Background())
		return
	}

	if s.timer == nil && !s.saving {
		s.timer = time.AfterFunc(s.delay, s.onTimer)
	}
	s.mu.Unlock()
}

func (s *batchScheduler) onTimer() {
	s.mu.Lock()
	s.timer = nil
	s.mu.Unlock()
	s.flush(context.Background())
}

func (s *batchScheduler) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// flush consumes the marker queue and runs one durable write. If a write is
// already in flight the request is dropped (coalesced). On failure the
// scheduler is marked dirty so a later flush retries the unsaved state, but
// no timer is re-armed: the next trigger is a new marker or a forced flush.
func (s *batchScheduler) flush(ctx context.Context) {
	s.mu.Lock()
	if s.saving {
		s.metrics.CoalescedFlushes.Inc()
		s.mu.Unlock()
		return
	}
	if len(s.markers) == 0 && !s.dirty {
		s.mu.Unlock()
		return
	}
	batch := s.beginFlushLocked()
	s.mu.Unlock()

	s.finishFlush(batch, s.persist(ctx))
}

// beginFlushLocked snapshot-clears the marker queue and takes the
// single-writer lock. Caller must hold s.mu.
func (s *batchScheduler) beginFlushLocked() []writeMarker {
	batch := s.markers
	s.markers = nil
	s.dirty = false
	s.saving = true
	s.done = make(chan struct{})
	s.stopTimerLocked()
	return batch
}

func (s *batchScheduler) finishFlush(batch []writeMarker, err error) {
	s.mu.Lock()
	s.saving = false
	done := s.done
	if err != nil {
		// Treat the queue as non-empty again so a future flush retries.
		s.dirty = true
		s.logger.Error("batch flush failed", "markers", len(batch), "error", err)
	} else if len(s.markers) > 0 && s.timer == nil {
		// Markers arrived during the write; make sure they get flushed.
		s.timer = time.AfterFunc(s.delay, s.onTimer)
	}
	s.mu.Unlock()
	close(done)
}

// ForceFlush cancels any armed debounce timer, waits out an in-flight
// write, and synchronously flushes whatever is pending. The returned error
// is the persist failure (or ctx cancellation while waiting); callers at
// the subsystem boundary absorb it.
func (s *batchScheduler) ForceFlush(ctx context.Context) error {
	for {
		s.mu.Lock()
		s.stopTimerLocked()

		if s.saving {
			done := s.done
			s.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if len(s.markers) == 0 && !s.dirty {
			s.mu.Unlock()
			return nil
		}

		batch := s.beginFlushLocked()
		s.mu.Unlock()

		err := s.persist(ctx)
		s.finishFlush(batch, err)
		return err
	}
}

// PendingMarkers returns the current queue length. Exported within the
// package for tests and status reporting.
func (s *batchScheduler) PendingMarkers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.markers)
}
