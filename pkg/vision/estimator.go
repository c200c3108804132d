package vision

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/chromatrack/chromatrack/pkg/config"
	"github.com/chromatrack/chromatrack/pkg/media"
)

// ColorSegmentationEstimator drains the frame queue on its own goroutine
// and publishes each detection into the shared cell. CPU-bound analysis
// therefore never runs on the network receive path; the queue absorbs the
// rate mismatch. A frame with no in-band pixels keeps the previous
// estimate. The worker exits after draining whatever was queued ahead of
// the termination sentinel.
type ColorSegmentationEstimator struct {
	queue *media.FrameQueue
	cell  *EstimateCell
	band  config.HSVBand
	log   *zap.Logger

	processed atomic.Int64
	missed    atomic.Int64
	onResult  func(missed bool)

	started atomic.Bool
	done    chan struct{}
}

// NewColorSegmentationEstimator wires the worker to its queue and cell
func NewColorSegmentationEstimator(queue *media.FrameQueue, cell *EstimateCell, band config.HSVBand, log *zap.Logger) *ColorSegmentationEstimator {
	return &ColorSegmentationEstimator{
		queue: queue,
		cell:  cell,
		band:  band,
		log:   log,
		done:  make(chan struct{}),
	}
}

// OnResult registers an observer invoked once per analyzed frame. Must be
// set before Start.
func (e *ColorSegmentationEstimator) OnResult(fn func(missed bool)) {
	e.onResult = fn
}

// Start launches the worker goroutine. Subsequent calls are no-ops.
func (e *ColorSegmentationEstimator) Start() {
	if !e.started.CompareAndSwap(false, true) {
		return
	}
	go e.run()
}

// Done closes when the worker has observed the termination sentinel and
// exited.
func (e *ColorSegmentationEstimator) Done() <-chan struct{} {
	return e.done
}

// Wait blocks until the worker has exited
func (e *ColorSegmentationEstimator) Wait() {
	<-e.done
}

// Stats reports how many frames were analyzed and how many had no
// detectable region.
func (e *ColorSegmentationEstimator) Stats() (processed, missed int64) {
	return e.processed.Load(), e.missed.Load()
}

func (e *ColorSegmentationEstimator) run() {
	defer close(e.done)
	for {
		f, ok := e.queue.Dequeue()
		if !ok {
			e.log.Info("estimator drained",
				zap.Int64("processed", e.processed.Load()),
				zap.Int64("missed", e.missed.Load()))
			return
		}
		e.processed.Add(1)

		det, found := Locate(f, e.band)
		if e.onResult != nil {
			e.onResult(!found)
		}
		if !found {
			e.missed.Add(1)
			e.log.Debug("no in-band region, estimate retained", zap.Int64("tick", f.Timestamp))
			continue
		}
		e.cell.Set(det.X, det.Y)
		e.log.Debug("target located",
			zap.Int64("tick", f.Timestamp),
			zap.Int("x", det.X),
			zap.Int("y", det.Y),
			zap.Float64("radius", det.Radius))
	}
}
