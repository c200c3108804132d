package rtc

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

// Connection wraps one pion peer connection. It owns the pc lifecycle and
// the ICE candidate bookkeeping; data channel plumbing lives in Provider.
//
// Remote candidates may arrive before the remote description is set. pion
// rejects those, so they are held in a pending list and replayed once
// SetRemoteDescription succeeds.
type Connection struct {
	opt *Option
	log *zap.Logger

	mu sync.RWMutex
	pc *webrtc.PeerConnection

	candidates []webrtc.ICECandidateInit
	pending    []webrtc.ICECandidateInit
	remoteSet  bool

	stopChannel chan struct{}
}

func NewConnection(opt *Option, log *zap.Logger) *Connection {
	if opt == nil {
		opt = DefaultOption()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Connection{
		opt:         opt,
		log:         log,
		stopChannel: make(chan struct{}),
	}
}

// Create builds the peer connection and registers its event handlers.
func (c *Connection) Create() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pc != nil {
		return fmt.Errorf("peer connection already created")
	}

	config := webrtc.Configuration{
		ICEServers: c.opt.GetICEServers(),
	}

	pc, err := webrtc.NewPeerConnection(config)
	if err != nil {
		logrus.WithError(err).Error("Failed to create peer connection")
		return err
	}

	c.pc = pc
	c.registerEventHandlers()
	return nil
}

func (c *Connection) registerEventHandlers() {
	c.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		c.mu.Lock()
		c.candidates = append(c.candidates, candidate.ToJSON())
		c.mu.Unlock()
		c.log.Debug("local ice candidate gathered",
			zap.String("candidate", candidate.String()))
	})

	c.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.log.Debug("connection state changed", zap.String("state", state.String()))

		switch state {
		case webrtc.PeerConnectionStateConnected:
			c.log.Info("peer connection established")
		case webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed:
			c.log.Info("peer connection lost", zap.String("state", state.String()))
			c.mu.Lock()
			c.closeStopLocked()
			c.mu.Unlock()
		}
	})
}

func (c *Connection) closeStopLocked() {
	select {
	case <-c.stopChannel:
	default:
		close(c.stopChannel)
	}
}

// Done is closed once the connection reaches a terminal state, either from
// a pion state change or an explicit Close.
func (c *Connection) Done() <-chan struct{} {
	return c.stopChannel
}

func (c *Connection) snapshot() *webrtc.PeerConnection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pc
}

// CreateOfferAndGather produces the local offer with all ICE candidates
// embedded: it sets the local description and blocks until gathering
// completes or the ICE timeout fires.
func (c *Connection) CreateOfferAndGather() (string, error) {
	pc := c.snapshot()
	if pc == nil {
		return "", fmt.Errorf("peer connection is nil")
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	if err := c.waitForGathering(pc); err != nil {
		return "", err
	}

	local := pc.LocalDescription()
	if local == nil {
		return "", fmt.Errorf("local description is nil after gathering")
	}
	c.log.Debug("offer gathered", zap.Int("candidates", c.CandidateCount()))
	return local.SDP, nil
}

// CreateAnswerAndGather mirrors CreateOfferAndGather for the responder side.
// The remote offer must already be set.
func (c *Connection) CreateAnswerAndGather() (string, error) {
	pc := c.snapshot()
	if pc == nil {
		return "", fmt.Errorf("peer connection is nil")
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	if err := c.waitForGathering(pc); err != nil {
		return "", err
	}

	local := pc.LocalDescription()
	if local == nil {
		return "", fmt.Errorf("local description is nil after gathering")
	}
	c.log.Debug("answer gathered", zap.Int("candidates", c.CandidateCount()))
	return local.SDP, nil
}

func (c *Connection) waitForGathering(pc *webrtc.PeerConnection) error {
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	select {
	case <-time.After(c.opt.GetICETimeout()):
		return fmt.Errorf("ICE gathering timeout after %s", c.opt.GetICETimeout())
	case <-gatherComplete:
	}
	if c.CandidateCount() == 0 {
		c.log.Warn("no ICE candidates generated")
	}
	return nil
}

// SetRemoteDescription installs the peer's description and replays any
// candidates that arrived before it.
func (c *Connection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	pc := c.snapshot()
	if pc == nil {
		return fmt.Errorf("peer connection is nil")
	}

	if err := pc.SetRemoteDescription(desc); err != nil {
		return err
	}

	c.mu.Lock()
	c.remoteSet = true
	queued := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, init := range queued {
		if err := pc.AddICECandidate(init); err != nil {
			logrus.WithError(err).WithField("candidate", init.Candidate).Warn("Failed to add ICE candidate")
		}
	}
	if len(queued) > 0 {
		c.log.Debug("replayed queued ice candidates", zap.Int("count", len(queued)))
	}
	return nil
}

// AddICECandidate accepts a remote candidate in any signaling state. Before
// the remote description is known the candidate is queued.
func (c *Connection) AddICECandidate(init webrtc.ICECandidateInit) error {
	c.mu.Lock()
	if c.pc == nil {
		c.mu.Unlock()
		return fmt.Errorf("peer connection is nil")
	}
	if !c.remoteSet {
		c.pending = append(c.pending, init)
		c.mu.Unlock()
		c.log.Debug("ice candidate queued until remote description",
			zap.String("candidate", init.Candidate))
		return nil
	}
	pc := c.pc
	c.mu.Unlock()

	return pc.AddICECandidate(init)
}

// GetCandidates returns the raw candidate strings gathered so far.
func (c *Connection) GetCandidates() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []string
	for _, candidate := range c.candidates {
		out = append(out, candidate.Candidate)
	}
	return out
}

func (c *Connection) CandidateCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.candidates)
}

func (c *Connection) GetState() webrtc.PeerConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.pc == nil {
		return webrtc.PeerConnectionStateNew
	}
	return c.pc.ConnectionState()
}

func (c *Connection) GetSignalingState() webrtc.SignalingState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.pc == nil {
		return webrtc.SignalingStateStable
	}
	return c.pc.SignalingState()
}

// CreateDataChannel opens a reliable ordered channel. Must be called before
// the offer is created so the channel is negotiated in the SDP.
func (c *Connection) CreateDataChannel(label string) (*webrtc.DataChannel, error) {
	pc := c.snapshot()
	if pc == nil {
		return nil, fmt.Errorf("peer connection is nil")
	}
	return pc.CreateDataChannel(label, nil)
}

// OnDataChannel registers the callback for channels opened by the peer.
func (c *Connection) OnDataChannel(f func(*webrtc.DataChannel)) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.pc != nil {
		c.pc.OnDataChannel(f)
	}
}

// Close tears the peer connection down. Safe to call more than once.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeStopLocked()

	if c.pc != nil {
		err := c.pc.Close()
		c.pc = nil
		return err
	}
	return nil
}
