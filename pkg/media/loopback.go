package media

import (
	"context"
	"io"
	"sync"

	apperrors "github.com/chromatrack/chromatrack/pkg/errors"
)

// LoopbackSession is an in-process Session. NewLoopbackPair wires two of
// them back to back: frames and text sent on one side arrive on the other.
// Both channels are open from construction, so OnOpen handlers fire at
// registration. Used by tests and the single-process loopback example.
type LoopbackSession struct {
	in   chan *Frame
	out  chan *Frame
	peer *LoopbackSession

	mu     sync.Mutex
	textFn func(string)

	done      chan struct{}
	closeOnce sync.Once
}

// NewLoopbackPair returns two connected sessions buffering at most buffer
// frames per direction.
func NewLoopbackPair(buffer int) (*LoopbackSession, *LoopbackSession) {
	if buffer <= 0 {
		buffer = 1
	}
	ab := make(chan *Frame, buffer)
	ba := make(chan *Frame, buffer)
	a := &LoopbackSession{in: ba, out: ab, done: make(chan struct{})}
	b := &LoopbackSession{in: ab, out: ba, done: make(chan struct{})}
	a.peer = b
	b.peer = a
	return a, b
}

// ReceiveFrame returns the next frame from the peer. After the peer closes,
// frames already in flight are drained before io.EOF is reported.
func (s *LoopbackSession) ReceiveFrame(ctx context.Context) (*Frame, error) {
	select {
	case f := <-s.in:
		return f, nil
	case <-s.peer.done:
		select {
		case f := <-s.in:
			return f, nil
		default:
			return nil, io.EOF
		}
	case <-s.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendFrame delivers one frame to the peer, blocking while the direction
// buffer is full.
func (s *LoopbackSession) SendFrame(ctx context.Context, f *Frame) error {
	select {
	case <-s.done:
		return apperrors.NewAppError(apperrors.ErrCodeSessionClosed, "loopback session closed")
	case <-s.peer.done:
		return apperrors.NewAppError(apperrors.ErrCodeSessionClosed, "loopback peer closed")
	default:
	}
	select {
	case s.out <- f:
		return nil
	case <-s.done:
		return apperrors.NewAppError(apperrors.ErrCodeSessionClosed, "loopback session closed")
	case <-s.peer.done:
		return apperrors.NewAppError(apperrors.ErrCodeSessionClosed, "loopback peer closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendText invokes the peer's text handler on the caller's goroutine.
// Text sent before the peer registers a handler is dropped.
func (s *LoopbackSession) SendText(_ context.Context, text string) error {
	select {
	case <-s.done:
		return apperrors.NewAppError(apperrors.ErrCodeChannelClosed, "loopback session closed")
	case <-s.peer.done:
		return apperrors.NewAppError(apperrors.ErrCodeChannelClosed, "loopback peer closed")
	default:
	}
	s.peer.mu.Lock()
	fn := s.peer.textFn
	s.peer.mu.Unlock()
	if fn != nil {
		fn(text)
	}
	return nil
}

// OnText registers the inbound text handler
func (s *LoopbackSession) OnText(fn func(string)) {
	s.mu.Lock()
	s.textFn = fn
	s.mu.Unlock()
}

// OnOpen fires fn immediately; loopback channels have no opening handshake
func (s *LoopbackSession) OnOpen(fn func()) {
	if fn == nil {
		return
	}
	select {
	case <-s.done:
	default:
		fn()
	}
}

// Close ends the session. Idempotent; the peer observes end-of-stream after
// draining in-flight frames.
func (s *LoopbackSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return nil
}
