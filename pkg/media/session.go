package media

import "context"

// Session is the media session boundary: an inbound frame stream, an
// outbound frame stream, and a bidirectional text channel. Implementations
// own codec and wire-format concerns; callers only see decoded frames.
//
// ReceiveFrame returns io.EOF once the peer's stream has ended and all
// delivered frames have been consumed. Close is idempotent and safe to call
// during teardown regardless of session state.
type Session interface {
	ReceiveFrame(ctx context.Context) (*Frame, error)
	SendFrame(ctx context.Context, f *Frame) error
	SendText(ctx context.Context, text string) error
	OnText(fn func(text string))
	OnOpen(fn func())
	Close() error
}
