package signaling

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/chromatrack/chromatrack/pkg/constants"
	apperrors "github.com/chromatrack/chromatrack/pkg/errors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSTransport carries the same one-record-per-message vocabulary over a
// WebSocket. The listening side hosts a single-endpoint HTTP server and
// accepts the first peer that upgrades; the dialing side retries until the
// endpoint is reachable. Selected with SIGNALING_SCHEME=ws.
type WSTransport struct {
	addr   string
	path   string
	url    string
	listen bool

	upgrader websocket.Upgrader
	srv      *http.Server

	mu        sync.Mutex
	conn      *websocket.Conn
	boundAddr string

	connCh    chan *websocket.Conn
	wmu       sync.Mutex
	closed    chan struct{}
	closeOnce sync.Once
	log       *zap.Logger
}

// NewWSListener creates the hosting side of the WebSocket signaling channel
func NewWSListener(addr, path string, log *zap.Logger) *WSTransport {
	return &WSTransport{
		addr:   addr,
		path:   path,
		listen: true,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		connCh: make(chan *websocket.Conn, 1),
		closed: make(chan struct{}),
		log:    log,
	}
}

// NewWSDialer creates the dialing side; url is the ws:// endpoint
func NewWSDialer(url string, log *zap.Logger) *WSTransport {
	return &WSTransport{
		url:    url,
		closed: make(chan struct{}),
		log:    log,
	}
}

func (t *WSTransport) Connect(ctx context.Context) error {
	select {
	case <-t.closed:
		return apperrors.NewAppError(apperrors.ErrCodeSignalingTransportClosed, "transport closed")
	default:
	}
	if t.listen {
		return t.serve(ctx)
	}
	return t.dial(ctx)
}

func (t *WSTransport) serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(t.path, func(w http.ResponseWriter, r *http.Request) {
		conn, err := t.upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.log.Warn("signaling upgrade failed", zap.Error(err))
			return
		}
		select {
		case t.connCh <- conn:
		default:
			// one peer per session
			conn.Close()
		}
	})

	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return apperrors.WrapError(apperrors.ErrCodeConnectionFailed, err)
	}
	t.mu.Lock()
	t.boundAddr = ln.Addr().String()
	t.mu.Unlock()
	t.srv = &http.Server{Handler: mux}
	go func() {
		if err := t.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.log.Warn("signaling http server stopped", zap.Error(err))
		}
	}()

	t.log.Info("signaling websocket waiting for peer",
		zap.String("addr", t.addr), zap.String("path", t.path))

	select {
	case conn := <-t.connCh:
		t.attach(conn)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.closed:
		return apperrors.NewAppError(apperrors.ErrCodeSignalingTransportClosed, "transport closed")
	}
}

func (t *WSTransport) dial(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < constants.SignalingDialRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.closed:
			return apperrors.NewAppError(apperrors.ErrCodeSignalingTransportClosed, "transport closed")
		default:
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.url, nil)
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
func (t *WSTransport) BoundAddr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.boundAddr
}

func (t *WSTransport) attach(conn *websocket.Conn) {
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	t.log.Info("signaling peer connected", zap.String("remote", conn.RemoteAddr().String()))
}

func (t *WSTransport) Send(ctx context.Context, m Message) error {
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
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return apperrors.WrapError(apperrors.ErrCodeSignalingTransportClosed, err)
	}
	return nil
}

func (t *WSTransport) Receive(ctx context.Context) (Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil, apperrors.NewAppError(apperrors.ErrCodeConnectionFailed, "signaling transport not connected")
	}
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if isWSStreamEnd(err) {
				t.log.Debug("signaling stream ended", zap.Error(err))
				return Termination{}, nil
			}
			return nil, apperrors.WrapError(apperrors.ErrCodeSignalingTransportClosed, err)
		}
		if mt != websocket.TextMessage || len(data) == 0 {
			continue
		}
		return Decode(data)
	}
}

func (t *WSTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.mu.Lock()
		if t.conn != nil {
			deadline := time.Now().Add(time.Second)
			_ = t.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			t.conn.Close()
		}
		t.mu.Unlock()
		if t.srv != nil {
			t.srv.Close()
		}
		t.log.Debug("signaling transport closed")
	})
	return nil
}

func isWSStreamEnd(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
