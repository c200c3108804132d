package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/chromatrack/chromatrack/pkg/errors"
	"github.com/chromatrack/chromatrack/pkg/feedback"
	"github.com/chromatrack/chromatrack/pkg/media"
	"github.com/chromatrack/chromatrack/pkg/metrics"
	"github.com/chromatrack/chromatrack/pkg/signaling"
	"github.com/chromatrack/chromatrack/pkg/simulator"
)

// SenderConfig assembles one sending session. Transport, Negotiator, Media
// and Simulator are required; for the WebRTC provider the Negotiator and
// Media fields are the same value.
type SenderConfig struct {
	ID                  string
	Transport           signaling.Transport
	Negotiator          signaling.Negotiator
	Media               media.Session
	Simulator           *simulator.MotionSimulator
	SkipPostNegotiation bool
	Metrics             *metrics.Metrics
	Log                 *zap.Logger
}

// Sender owns the initiator side of a session: it drives the handshake,
// streams simulated frames at the configured rate, and scores the tracking
// feedback the peer returns against the simulator's ground truth.
type Sender struct {
	id      string
	machine *signaling.StateMachine
	sess    media.Session
	sim     *simulator.MotionSimulator
	loop    *feedback.TrackingFeedbackLoop
	mtr     *metrics.Metrics
	log     *zap.Logger

	framesSent    atomic.Int64
	framesDropped atomic.Int64

	peerClosed chan struct{}
	peerOnce   sync.Once
	closed     chan struct{}
	closeOnce  sync.Once
}

func NewSender(cfg SenderConfig) (*Sender, error) {
	if cfg.Transport == nil || cfg.Negotiator == nil || cfg.Media == nil || cfg.Simulator == nil {
		return nil, apperrors.NewAppError(apperrors.ErrCodeInvalidInput,
			"sender requires transport, negotiator, media session and simulator")
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}

	s := &Sender{
		id:         newSessionID(cfg.ID),
		sess:       cfg.Media,
		sim:        cfg.Simulator,
		loop:       feedback.NewTrackingFeedbackLoop(cfg.Simulator.State, cfg.Metrics, log),
		mtr:        cfg.Metrics,
		log:        log,
		peerClosed: make(chan struct{}),
		closed:     make(chan struct{}),
	}

	s.machine = signaling.NewStateMachine(signaling.MachineConfig{
		Role:                signaling.RoleInitiator,
		SkipPostNegotiation: cfg.SkipPostNegotiation,
	}, cfg.Transport, cfg.Negotiator, log)

	s.machine.OnStateChange(func(_, to signaling.State) {
		if to == signaling.StateClosed {
			s.peerOnce.Do(func() { close(s.peerClosed) })
		}
	})
	attachMetrics(s.machine, cfg.Metrics)

	cfg.Media.OnOpen(func() {
		log.Info("media channels open, feedback loop ready", zap.String("session_id", s.id))
	})
	cfg.Media.OnText(func(text string) {
		// parse failures are counted and logged by the loop itself
		_, _ = s.loop.HandleMessage(text)
	})

	return s, nil
}

func (s *Sender) ID() string { return s.id }

// State reports the signaling handshake position
func (s *Sender) State() signaling.State { return s.machine.State() }

// Feedback exposes the tracking feedback loop for status reporting
func (s *Sender) Feedback() *feedback.TrackingFeedbackLoop { return s.loop }

// Stats returns frames streamed and frames dropped on send backlog
func (s *Sender) Stats() (sent, dropped int64) {
	return s.framesSent.Load(), s.framesDropped.Load()
}

// Run performs the handshake and streams frames until the peer leaves, the
// context is canceled, or Close is called. Peer departure and local close
// are orderly: Run returns nil for both.
func (s *Sender) Run(ctx context.Context) error {
	select {
	case <-s.closed:
		return nil
	default:
	}
	if s.mtr != nil {
		s.mtr.RecordSessionStart()
	}
	start := time.Now()
	defer func() {
		if s.mtr != nil {
			s.mtr.RecordSessionStop(time.Since(start).Seconds())
		}
	}()
	defer s.Close()

	s.log.Info("sender session starting", zap.String("session_id", s.id))

	runErr := make(chan error, 1)
	go func() { runErr <- s.machine.Run(ctx) }()

	select {
	case <-s.machine.Negotiated():
	case err := <-runErr:
		if err != nil {
			return err
		}
		s.log.Info("signaling ended before negotiation", zap.String("session_id", s.id))
		return nil
	case <-s.closed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := waitForMedia(ctx, s.sess, s.log); err != nil {
		return err
	}

	s.log.Info("streaming frames",
		zap.String("session_id", s.id),
		zap.Duration("frame_interval", s.sim.FrameDuration()))

	ticker := time.NewTicker(s.sim.FrameDuration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closed:
			return nil
		case <-s.peerClosed:
			s.log.Info("peer closed signaling, stopping stream", zap.String("session_id", s.id))
			return nil
		case <-ticker.C:
			if !s.sendOneFrame(ctx) {
				return nil
			}
		}
	}
}

// sendOneFrame ships the current simulation frame and advances the clock.
// A backlogged send drops the frame but time still moves; only a dead
// session stops the stream.
func (s *Sender) sendOneFrame(ctx context.Context) bool {
	f := s.sim.Frame()
	err := s.sess.SendFrame(ctx, f)
	switch {
	case err == nil:
		s.framesSent.Add(1)
		if s.mtr != nil {
			s.mtr.RecordFrameSent(len(f.Data))
		}
	case isCode(err, apperrors.ErrCodeQueueFull):
		s.framesDropped.Add(1)
		if s.mtr != nil {
			s.mtr.RecordFrameDropped("backlog")
		}
		s.log.Debug("frame dropped on send backlog", zap.Int64("tick", f.Timestamp))
	case isCode(err, apperrors.ErrCodeChannelClosed) || isCode(err, apperrors.ErrCodeSessionClosed):
		s.log.Info("media session closed, stopping stream", zap.Error(err))
		return false
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		s.log.Warn("frame send failed, stopping stream", zap.Error(err))
		return false
	}
	s.sim.Advance()
	return true
}

// Close tears the session down: best-effort termination to the peer, then
// signaling and media teardown. Idempotent.
func (s *Sender) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)

		termCtx, cancel := context.WithTimeout(context.Background(), terminationTimeout)
		defer cancel()
		if err := s.machine.SendTermination(termCtx); err != nil {
			s.log.Debug("termination send", zap.Error(err))
		}

		s.machine.Close()
		if err := s.sess.Close(); err != nil {
			s.log.Debug("media session close", zap.Error(err))
		}

		accepted, rejected := s.loop.Stats()
		s.log.Info("sender session closed",
			zap.String("session_id", s.id),
			zap.Int64("frames_sent", s.framesSent.Load()),
			zap.Int64("frames_dropped", s.framesDropped.Load()),
			zap.Int64("feedback_accepted", accepted),
			zap.Int64("feedback_rejected", rejected))
	})
	return nil
}
