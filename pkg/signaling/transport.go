package signaling

import "context"

// Transport carries signaling messages between exactly two peers over an
// out-of-band channel. One side listens, the other dials; Connect blocks
// until the peer is attached. Implementations map transport-level stream
// end (EOF, reset, local close) to a Termination message from Receive, and
// surface malformed records as errors so the caller can discard them and
// keep reading. Close is idempotent.
type Transport interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, m Message) error
	Receive(ctx context.Context) (Message, error)
	Close() error
}
