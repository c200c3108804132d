package signaling

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/chromatrack/chromatrack/pkg/constants"
	apperrors "github.com/chromatrack/chromatrack/pkg/errors"
	"go.uber.org/zap"
)

// TCPTransport exchanges newline-delimited JSON signaling records over a
// raw TCP socket bound to an explicit address. The listening side accepts
// exactly one peer; the dialing side retries until it lands. This is the
// default signaling transport.
type TCPTransport struct {
	addr   string
	listen bool

	mu   sync.Mutex
	ln   net.Listener
	conn net.Conn
	r    *bufio.Reader

	wmu       sync.Mutex
	closed    chan struct{}
	closeOnce sync.Once
	log       *zap.Logger
}

// NewTCPListener creates the listening side of the signaling socket
func NewTCPListener(addr string, log *zap.Logger) *TCPTransport {
	return &TCPTransport{addr: addr, listen: true, closed: make(chan struct{}), log: log}
}

// NewTCPDialer creates the dialing side of the signaling socket
func NewTCPDialer(addr string, log *zap.Logger) *TCPTransport {
	return &TCPTransport{addr: addr, listen: false, closed: make(chan struct{}), log: log}
}

// Connect attaches the single peer: accept once when listening, dial with
// retries otherwise.
func (t *TCPTransport) Connect(ctx context.Context) error {
	select {
	case <-t.closed:
		return apperrors.NewAppError(apperrors.ErrCodeSignalingTransportClosed, "transport closed")
	default:
	}
	if t.listen {
		return t.accept(ctx)
	}
	return t.dial(ctx)
}

func (t *TCPTransport) accept(ctx context.Context) error {
	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return apperrors.WrapError(apperrors.ErrCodeConnectionFailed, err)
	}
	t.mu.Lock()
	t.ln = ln
	t.mu.Unlock()

	t.log.Info("signaling listener waiting for peer", zap.String("addr", t.addr))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-t.closed:
			ln.Close()
		case <-done:
		}
	}()

	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperrors.WrapError(apperrors.ErrCodeConnectionFailed, err)
	}
	// one peer per session
	ln.Close()
	t.attach(conn)
	return nil
}

func (t *TCPTransport) dial(ctx context.Context) error {
	var d net.Dialer
	var lastErr error
	for attempt := 0; attempt < constants.SignalingDialRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.closed:
			return apperrors.NewAppError(apperrors.ErrCodeSignalingTransportClosed, "transport closed")
		default:
		}
		conn, err := d.DialContext(ctx, "tcp", t.addr)
		if err == nil {
			t.attach(conn)
			return nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.closed:
			return apperrors.NewAppError(apperrors.ErrCodeSignalingTransportClosed, "transport closed")
		case <-time.After(constants.SignalingDialRetryDelay):
		}
	}
	return apperrors.WrapError(apperrors.ErrCodeConnectionTimeout, lastErr).
		WithDetails("attempts", constants.SignalingDialRetries)
}

// BoundAddr reports the address the listener actually bound, which can
// differ from the configured one when port 0 was requested. Empty until
// Connect has opened the socket.
func (t *TCPTransport) BoundAddr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ln != nil {
		return t.ln.Addr().String()
	}
	return ""
}

func (t *TCPTransport) attach(conn net.Conn) {
	t.mu.Lock()
	t.conn = conn
	t.r = bufio.NewReader(conn)
	t.mu.Unlock()
	t.log.Info("signaling peer connected",
		zap.String("local", conn.LocalAddr().String()),
		zap.String("remote", conn.RemoteAddr().String()))
}

// Send writes one record followed by a newline
func (t *TCPTransport) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(m)
	if err != nil {
		return err
	}
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return apperrors.NewAppError(apperrors.ErrCodeConnectionFailed, "signaling transport not connected")
	}
	t.wmu.Lock()
	defer t.wmu.Unlock()
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return apperrors.WrapError(apperrors.ErrCodeSignalingTransportClosed, err)
	}
	return nil
}

// Receive blocks for the next record. Stream end (EOF, reset, local close)
// is reported as a Termination message; malformed records come back as
// errors so the caller can discard them and keep the loop alive.
func (t *TCPTransport) Receive(ctx context.Context) (Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	r := t.r
	t.mu.Unlock()
	if r == nil {
		return nil, apperrors.NewAppError(apperrors.ErrCodeConnectionFailed, "signaling transport not connected")
	}
	for {
		line, err := r.ReadBytes('\n')
		if err != nil {
			if isStreamEnd(err) {
				t.log.Debug("signaling stream ended", zap.Error(err))
				return Termination{}, nil
			}
			return nil, apperrors.WrapError(apperrors.ErrCodeSignalingTransportClosed, err)
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		return Decode(line)
	}
}

// Close tears the socket down. Idempotent; a blocked Receive observes
// Termination.
func (t *TCPTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.mu.Lock()
		if t.conn != nil {
			t.conn.Close()
		}
		if t.ln != nil {
			t.ln.Close()
		}
		t.mu.Unlock()
		t.log.Debug("signaling transport closed", zap.String("addr", t.addr))
	})
	return nil
}

func isStreamEnd(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return false
}
