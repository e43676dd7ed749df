package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/sentinel/pkg/config"
	"mercator-hq/sentinel/pkg/decision"
)

// Recorder records terminal decisions asynchronously. Record returns
// immediately; a background worker drains to the store. A full buffer
// drops the record and counts the drop instead of delaying admission.
type Recorder struct {
	store   Store
	enabled bool

	recordCh chan *Record
	done     chan struct{}
	wg       sync.WaitGroup

	dropped atomic.Int64
	written atomic.Int64

	writeTimeout time.Duration
	logger       *slog.Logger
}

// NewRecorder creates and starts a recorder. With auditing disabled it
// still accepts Record calls and discards them.
func NewRecorder(store Store, cfg *config.AuditConfig, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default().With("component", "audit")
	}
	buffer := cfg.AsyncBuffer
	if buffer <= 0 {
		buffer = 1000
	}

	r := &Recorder{
		store:        store,
		enabled:      cfg.Enabled && store != nil,
		recordCh:     make(chan *Record, buffer),
		done:         make(chan struct{}),
		writeTimeout: 5 * time.Second,
		logger:       logger,
	}

	if r.enabled {
		r.wg.Add(1)
		go r.worker()
		logger.Info("audit recorder started", "buffer", buffer)
	}
	return r
}

// Record enqueues a terminal decision for persistence. Never blocks.
func (r *Recorder) Record(d *decision.Decision) {
	if !r.enabled || d == nil {
		return
	}

	rec := RecordFromDecision(d)
	select {
	case r.recordCh <- rec:
	default:
		n := r.dropped.Add(1)
		if n == 1 || n%100 == 0 {
			r.logger.Warn("audit buffer full, dropping records", "dropped_total", n)
		}
	}
}

// Dropped returns how many records were dropped due to a full buffer.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Written returns how many records were written to the store.
func (r *Recorder) Written() int64 {
	return r.written.Load()
}

// Close drains the buffer and stops the worker.
func (r *Recorder) Close() error {
	if !r.enabled {
		return nil
	}
	close(r.done)
	r.wg.Wait()
	r.logger.Info("audit recorder stopped",
		"written", r.written.Load(), "dropped", r.dropped.Load())
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case rec := <-r.recordCh:
			r.write(rec)

		case <-r.done:
			// Drain whatever was enqueued before shutdown.
			for {
				select {
				case rec := <-r.recordCh:
					r.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(rec *Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()

	if err := r.store.Save(ctx, rec); err != nil {
		r.logger.Error("audit write failed", "record_id", rec.ID, "error", err)
		return
	}
	r.written.Add(1)
}
