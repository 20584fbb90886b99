package bootstrap

import (
	"context"
	"sync"
	"time"

	"github.com/artpar/lexgate/domain/usage"
	"github.com/artpar/lexgate/ports"
	"github.com/rs/zerolog"
)

// TelemetryRecorder buffers telemetry records and writes them in batches to the store.
type TelemetryRecorder struct {
	store         ports.TelemetryStore
	logger        zerolog.Logger
	buffer        []usage.Record
	mu            sync.Mutex
	batchSize     int
	flushInterval time.Duration
	stopCh        chan struct{}
	loopWG        sync.WaitGroup
	writesWG      sync.WaitGroup
	closeOnce     sync.Once
}

// NewTelemetryRecorder creates a new batching telemetry recorder.
func NewTelemetryRecorder(store ports.TelemetryStore, batchSize int, flushInterval time.Duration, logger zerolog.Logger) *TelemetryRecorder {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 10 * time.Second
	}

	r := &TelemetryRecorder{
		store:         store,
		logger:        logger,
		buffer:        make([]usage.Record, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		stopCh:        make(chan struct{}),
	}

	r.loopWG.Add(1)
	go r.flushLoop()

	return r
}

// Record queues a record. A full buffer is written in the background.
func (r *TelemetryRecorder) Record(rec usage.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, rec)
	if len(r.buffer) >= r.batchSize {
		r.writeAsync(r.takeLocked())
	}
}

// Flush writes queued records and waits for the write.
func (r *TelemetryRecorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	batch := r.takeLocked()
	r.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	return r.store.RecordBatch(ctx, batch)
}

func (r *TelemetryRecorder) takeLocked() []usage.Record {
	if len(r.buffer) == 0 {
		return nil
	}
	batch := make([]usage.Record, len(r.buffer))
	copy(batch, r.buffer)
	r.buffer = r.buffer[:0]
	return batch
}

func (r *TelemetryRecorder) writeAsync(batch []usage.Record) {
	r.writesWG.Add(1)
	go func() {
		defer r.writesWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := r.store.RecordBatch(ctx, batch); err != nil {
			r.logger.Error().Err(err).Int("records", len(batch)).Msg("telemetry batch write failed")
		}
	}()
}

func (r *TelemetryRecorder) flushLoop() {
	defer r.loopWG.Done()
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Flush(context.Background()); err != nil {
				r.logger.Error().Err(err).Msg("telemetry flush failed")
			}
		case <-r.stopCh:
			return
		}
	}
}

// Close stops the recorder, waits for pending writes and flushes remaining records.
func (r *TelemetryRecorder) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.stopCh)
		r.loopWG.Wait()
		r.writesWG.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err = r.Flush(ctx)
	})
	return err
}

// Ensure interface compliance.
var _ ports.TelemetryRecorder = (*TelemetryRecorder)(nil)
