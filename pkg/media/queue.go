package media

import (
	"sync/atomic"

	apperrors "github.com/chromatrack/chromatrack/pkg/errors"
)

// FrameQueue hands frames from the ingestion loop to the analysis worker.
// Single producer, single consumer; ownership of a frame transfers fully on
// dequeue. Terminate is the only cross-worker cancellation primitive: after
// it, the consumer drains whatever was enqueued before and then observes
// end-of-stream. Enqueue never blocks; a full queue rejects the frame so a
// slow analyzer can never stall the network receive path.
type FrameQueue struct {
	ch         chan *Frame
	terminated atomic.Bool
}

// NewFrameQueue creates a queue holding at most capacity frames
func NewFrameQueue(capacity int) *FrameQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &FrameQueue{ch: make(chan *Frame, capacity)}
}

// Enqueue offers one frame to the consumer. Producer-side only; must not
// race with Terminate.
func (q *FrameQueue) Enqueue(f *Frame) error {
	if q.terminated.Load() {
		return apperrors.NewAppError(apperrors.ErrCodeChannelClosed, "frame queue terminated")
	}
	select {
	case q.ch <- f:
		return nil
	default:
		return apperrors.NewAppErrorf(apperrors.ErrCodeQueueFull, "frame queue full (capacity %d)", cap(q.ch))
	}
}

// Dequeue blocks for the next frame. ok is false once the queue has been
// terminated and drained.
func (q *FrameQueue) Dequeue() (f *Frame, ok bool) {
	f, ok = <-q.ch
	return f, ok
}

// Terminate marks end-of-stream. Idempotent. Frames enqueued before the
// call remain dequeueable.
func (q *FrameQueue) Terminate() {
	if q.terminated.CompareAndSwap(false, true) {
		close(q.ch)
	}
}

// Terminated reports whether Terminate has been called
func (q *FrameQueue) Terminated() bool {
	return q.terminated.Load()
}

// Len returns the number of frames currently buffered
func (q *FrameQueue) Len() int {
	return len(q.ch)
}
