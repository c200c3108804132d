package rtc

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/chromatrack/chromatrack/pkg/constants"
	apperrors "github.com/chromatrack/chromatrack/pkg/errors"
	"github.com/chromatrack/chromatrack/pkg/media"
	"github.com/chromatrack/chromatrack/pkg/signaling"
)

// Outbound frames are dropped once this much data sits unacknowledged in
// the frame channel, so a slow peer degrades the stream instead of growing
// the process heap.
const maxBufferedFrameBytes = 4 << 20

// Provider is the WebRTC media session. Frames travel as chunked binary
// records over one reliable ordered data channel, tracking feedback as text
// over a second one. The same value implements the negotiation contract, so
// the signaling state machine drives offer and answer exchange directly.
//
// The initiator opens both channels before the offer is created; the
// responder adopts them when pion announces them.
type Provider struct {
	opt  *Option
	role signaling.Role
	conn *Connection
	log  *zap.Logger

	assembler *FrameAssembler
	frames    chan *media.Frame

	mu           sync.RWMutex
	frameDC      *webrtc.DataChannel
	feedbackDC   *webrtc.DataChannel
	textFn       func(string)
	openFn       func()
	frameOpen    bool
	feedbackOpen bool
	readyFired   bool

	ready     chan struct{}
	framesEOF chan struct{}
	eofOnce   sync.Once
	closed    chan struct{}
	closeOnce sync.Once
}

var (
	_ media.Session        = (*Provider)(nil)
	_ signaling.Negotiator = (*Provider)(nil)
)

func NewProvider(opt *Option, role signaling.Role, log *zap.Logger) (*Provider, error) {
	if opt == nil {
		opt = DefaultOption()
	}
	if log == nil {
		log = zap.NewNop()
	}

	conn := NewConnection(opt, log)
	if err := conn.Create(); err != nil {
		return nil, apperrors.WrapError(apperrors.ErrCodeConnectionFailed, err)
	}

	p := &Provider{
		opt:       opt,
		role:      role,
		conn:      conn,
		log:       log,
		assembler: NewFrameAssembler(opt.GetMaxFrameBytes()),
		frames:    make(chan *media.Frame, constants.FrameInboxCapacity),
		ready:     make(chan struct{}),
		framesEOF: make(chan struct{}),
		closed:    make(chan struct{}),
	}

	if role == signaling.RoleInitiator {
		frameDC, err := conn.CreateDataChannel(opt.GetFrameChannelLabel())
		if err != nil {
			conn.Close()
			return nil, apperrors.WrapError(apperrors.ErrCodeConnectionFailed, err)
		}
		feedbackDC, err := conn.CreateDataChannel(opt.GetFeedbackChannelLabel())
		if err != nil {
			conn.Close()
			return nil, apperrors.WrapError(apperrors.ErrCodeConnectionFailed, err)
		}
		p.bindFrameChannel(frameDC)
		p.bindFeedbackChannel(feedbackDC)
	} else {
		conn.OnDataChannel(func(dc *webrtc.DataChannel) {
			switch dc.Label() {
			case opt.GetFrameChannelLabel():
				p.bindFrameChannel(dc)
			case opt.GetFeedbackChannelLabel():
				p.bindFeedbackChannel(dc)
			default:
				log.Warn("unexpected data channel", zap.String("label", dc.Label()))
				dc.Close()
			}
		})
	}

	go p.watchConnection()
	return p, nil
}

func (p *Provider) watchConnection() {
	select {
	case <-p.conn.Done():
		p.markEOF()
	case <-p.closed:
	}
}

func (p *Provider) bindFrameChannel(dc *webrtc.DataChannel) {
	p.mu.Lock()
	p.frameDC = dc
	p.mu.Unlock()

	dc.OnOpen(func() {
		p.log.Info("frame channel open", zap.String("label", dc.Label()))
		p.channelOpened(&p.frameOpen)
	})
	dc.OnClose(func() {
		p.log.Info("frame channel closed", zap.String("label", dc.Label()))
		p.markEOF()
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		p.ingest(msg.Data)
	})
}

func (p *Provider) bindFeedbackChannel(dc *webrtc.DataChannel) {
	p.mu.Lock()
	p.feedbackDC = dc
	p.mu.Unlock()

	dc.OnOpen(func() {
		p.log.Info("feedback channel open", zap.String("label", dc.Label()))
		p.channelOpened(&p.feedbackOpen)
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		p.mu.RLock()
		fn := p.textFn
		p.mu.RUnlock()
		if fn != nil {
			fn(string(msg.Data))
		}
	})
}

// channelOpened flips one of the open flags and fires the ready signal once
// both channels are up.
func (p *Provider) channelOpened(flag *bool) {
	p.mu.Lock()
	*flag = true
	fire := p.frameOpen && p.feedbackOpen && !p.readyFired
	if fire {
		p.readyFired = true
	}
	fn := p.openFn
	p.mu.Unlock()

	if fire {
		close(p.ready)
		if fn != nil {
			fn()
		}
	}
}

func (p *Provider) ingest(record []byte) {
	frame, err := p.assembler.Push(record)
	if err != nil {
		p.log.Warn("frame stream corrupt, record dropped", zap.Error(err))
		return
	}
	if frame == nil {
		return
	}
	select {
	case p.frames <- frame:
	case <-p.closed:
	}
}

func (p *Provider) markEOF() {
	p.eofOnce.Do(func() { close(p.framesEOF) })
}

// ReceiveFrame blocks until a frame arrives. Frames delivered before the
// stream ended are drained first; after that it reports io.EOF.
func (p *Provider) ReceiveFrame(ctx context.Context) (*media.Frame, error) {
	select {
	case f := <-p.frames:
		return f, nil
	case <-p.framesEOF:
		return p.drainOrEOF()
	case <-p.closed:
		return p.drainOrEOF()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Provider) drainOrEOF() (*media.Frame, error) {
	select {
	case f := <-p.frames:
		return f, nil
	default:
		return nil, io.EOF
	}
}

// SendFrame encodes the frame and writes its records to the frame channel.
// When the channel backlog exceeds maxBufferedFrameBytes the frame is
// rejected with QUEUE_FULL rather than queued.
func (p *Provider) SendFrame(ctx context.Context, f *media.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	dc := p.frameDC
	p.mu.RUnlock()

	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return apperrors.NewAppError(apperrors.ErrCodeChannelClosed, "frame channel not open")
	}
	if dc.BufferedAmount()+uint64(len(f.Data)) > maxBufferedFrameBytes {
		return apperrors.NewAppErrorf(apperrors.ErrCodeQueueFull,
			"frame channel backlog at %d bytes", dc.BufferedAmount())
	}

	records, err := EncodeFrame(f, p.opt.GetFrameChunkSize())
	if err != nil {
		return err
	}
	for _, record := range records {
		if err := dc.Send(record); err != nil {
			return apperrors.WrapError(apperrors.ErrCodeChannelClosed, err)
		}
	}
	return nil
}

func (p *Provider) SendText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	dc := p.feedbackDC
	p.mu.RUnlock()

	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return apperrors.NewAppError(apperrors.ErrCodeChannelClosed, "feedback channel not open")
	}
	if err := dc.SendText(text); err != nil {
		return apperrors.WrapError(apperrors.ErrCodeChannelClosed, err)
	}
	return nil
}

func (p *Provider) OnText(fn func(text string)) {
	p.mu.Lock()
	p.textFn = fn
	p.mu.Unlock()
}

func (p *Provider) OnOpen(fn func()) {
	p.mu.Lock()
	fired := p.readyFired
	p.openFn = fn
	p.mu.Unlock()

	if fired && fn != nil {
		fn()
	}
}

// WaitForConnection polls until the peer connection reports connected, then
// waits for both data channels to open.
func (p *Provider) WaitForConnection(ctx context.Context) error {
	connected := false
	for i := 0; i < constants.MaxConnectionRetries; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		state := p.conn.GetState()
		if state == webrtc.PeerConnectionStateConnected {
			p.log.Info("webrtc connection established")
			connected = true
			break
		}
		if i%constants.ConnectionStateLogInterval == 0 {
			p.log.Info("waiting for connection", zap.String("state", state.String()))
		}
		time.Sleep(constants.ConnectionRetryDelay)
	}
	if !connected {
		return apperrors.NewAppErrorf(apperrors.ErrCodeConnectionTimeout,
			"connection timeout after %d retries", constants.MaxConnectionRetries)
	}

	select {
	case <-p.ready:
		return nil
	case <-p.closed:
		return apperrors.NewAppError(apperrors.ErrCodeSessionClosed, "session closed while waiting for channels")
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.opt.GetICETimeout()):
		return apperrors.NewAppError(apperrors.ErrCodeConnectionTimeout, "data channels did not open")
	}
}

// Done is closed when the underlying peer connection reaches a terminal
// state.
func (p *Provider) Done() <-chan struct{} {
	return p.conn.Done()
}

func (p *Provider) ConnectionState() webrtc.PeerConnectionState {
	return p.conn.GetState()
}

// CreateOffer implements the negotiation contract for the initiator side.
func (p *Provider) CreateOffer(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.conn.CreateOfferAndGather()
}

// CreateAnswer implements the negotiation contract for the responder side.
func (p *Provider) CreateAnswer(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.conn.CreateAnswerAndGather()
}

func (p *Provider) SetRemoteDescription(ctx context.Context, kind signaling.DescriptionKind, payload string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var sdpType webrtc.SDPType
	switch kind {
	case signaling.KindOffer:
		sdpType = webrtc.SDPTypeOffer
	case signaling.KindAnswer:
		sdpType = webrtc.SDPTypeAnswer
	default:
		return apperrors.NewAppErrorf(apperrors.ErrCodeInvalidInput, "unknown description kind %q", kind)
	}

	return p.conn.SetRemoteDescription(webrtc.SessionDescription{
		Type: sdpType,
		SDP:  payload,
	})
}

func (p *Provider) AddCandidate(ctx context.Context, c signaling.IceCandidate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	init := webrtc.ICECandidateInit{Candidate: c.Candidate}
	if c.SDPMid != "" {
		mid := c.SDPMid
		init.SDPMid = &mid
	}
	if c.SDPMLineIndex != nil {
		idx := uint16(*c.SDPMLineIndex)
		init.SDPMLineIndex = &idx
	}
	return p.conn.AddICECandidate(init)
}

// LocalCandidates returns nil: candidates are gathered before the local
// description is sent, so they ride inside the SDP instead of trickling.
func (p *Provider) LocalCandidates() <-chan signaling.IceCandidate {
	return nil
}

// Close shuts both channels and the peer connection down. Idempotent.
func (p *Provider) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		p.markEOF()

		p.mu.RLock()
		frameDC, feedbackDC := p.frameDC, p.feedbackDC
		p.mu.RUnlock()

		if frameDC != nil {
			if cerr := frameDC.Close(); cerr != nil {
				p.log.Debug("frame channel close", zap.Error(cerr))
			}
		}
		if feedbackDC != nil {
			if cerr := feedbackDC.Close(); cerr != nil {
				p.log.Debug("feedback channel close", zap.Error(cerr))
			}
		}
		err = p.conn.Close()
	})
	return err
}
