package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chromatrack/chromatrack/pkg/config"
	apperrors "github.com/chromatrack/chromatrack/pkg/errors"
	"github.com/chromatrack/chromatrack/pkg/media"
	"github.com/chromatrack/chromatrack/pkg/metrics"
	"github.com/chromatrack/chromatrack/pkg/pipeline"
	"github.com/chromatrack/chromatrack/pkg/render"
	"github.com/chromatrack/chromatrack/pkg/signaling"
)

// ReceiverConfig assembles one receiving session. Transport, Negotiator
// and Media are required; zero pipeline knobs fall back to defaults.
type ReceiverConfig struct {
	ID                  string
	Transport           signaling.Transport
	Negotiator          signaling.Negotiator
	Media               media.Session
	Band                config.HSVBand
	QueueCapacity       int
	FeedbackInterval    time.Duration
	RenderInterval      time.Duration
	Renderer            render.Renderer
	SkipPostNegotiation bool
	Metrics             *metrics.Metrics
	Log                 *zap.Logger
}

// Receiver owns the responder side of a session: it answers the handshake,
// then runs the frame ingestion pipeline until the stream ends.
type Receiver struct {
	id      string
	machine *signaling.StateMachine
	sess    media.Session
	pipe    *pipeline.FrameIngestionPipeline
	mtr     *metrics.Metrics
	log     *zap.Logger

	peerClosed chan struct{}
	peerOnce   sync.Once
	closed     chan struct{}
	closeOnce  sync.Once
}

func NewReceiver(cfg ReceiverConfig) (*Receiver, error) {
	if cfg.Transport == nil || cfg.Negotiator == nil || cfg.Media == nil {
		return nil, apperrors.NewAppError(apperrors.ErrCodeInvalidInput,
			"receiver requires transport, negotiator and media session")
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := &Receiver{
		id:         newSessionID(cfg.ID),
		sess:       cfg.Media,
		mtr:        cfg.Metrics,
		log:        log,
		peerClosed: make(chan struct{}),
		closed:     make(chan struct{}),
	}

	r.machine = signaling.NewStateMachine(signaling.MachineConfig{
		Role:                signaling.RoleResponder,
		SkipPostNegotiation: cfg.SkipPostNegotiation,
	}, cfg.Transport, cfg.Negotiator, log)

	r.machine.OnStateChange(func(_, to signaling.State) {
		if to == signaling.StateClosed {
			r.peerOnce.Do(func() { close(r.peerClosed) })
		}
	})
	attachMetrics(r.machine, cfg.Metrics)

	r.pipe = pipeline.New(cfg.Media, pipeline.Config{
		Band:             cfg.Band,
		QueueCapacity:    cfg.QueueCapacity,
		FeedbackInterval: cfg.FeedbackInterval,
		RenderInterval:   cfg.RenderInterval,
		Renderer:         cfg.Renderer,
		Metrics:          cfg.Metrics,
	}, log)

	return r, nil
}

func (r *Receiver) ID() string { return r.id }

// State reports the signaling handshake position
func (r *Receiver) State() signaling.State { return r.machine.State() }

// Pipeline exposes the ingestion pipeline for status reporting
func (r *Receiver) Pipeline() *pipeline.FrameIngestionPipeline { return r.pipe }

// Run answers the handshake and ingests frames until the stream ends, the
// context is canceled, or Close is called. Stream end is orderly and
// returns nil.
func (r *Receiver) Run(ctx context.Context) error {
	select {
	case <-r.closed:
		return nil
	default:
	}
	if r.mtr != nil {
		r.mtr.RecordSessionStart()
	}
	start := time.Now()
	defer func() {
		if r.mtr != nil {
			r.mtr.RecordSessionStop(time.Since(start).Seconds())
		}
	}()
	defer r.Close()

	r.log.Info("receiver session starting", zap.String("session_id", r.id))

	runErr := make(chan error, 1)
	go func() { runErr <- r.machine.Run(ctx) }()

	select {
	case <-r.machine.Negotiated():
	case err := <-runErr:
		if err != nil {
			return err
		}
		r.log.Info("signaling ended before negotiation", zap.String("session_id", r.id))
		return nil
	case <-r.closed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := waitForMedia(ctx, r.sess, r.log); err != nil {
		return err
	}

	// a signaling bye can precede the media-level stream end; closing the
	// session surfaces EOF to the pipeline instead of waiting out the
	// transport timeout
	go func() {
		select {
		case <-r.peerClosed:
			r.sess.Close()
		case <-r.pipe.Done():
		case <-r.closed:
		}
	}()

	r.log.Info("ingesting frames", zap.String("session_id", r.id))
	return r.pipe.Run(ctx)
}

// Close tears the session down: best-effort termination to the peer, then
// signaling and media teardown. Idempotent.
func (r *Receiver) Close() error {
	r.closeOnce.Do(func() {
		close(r.closed)

		termCtx, cancel := context.WithTimeout(context.Background(), terminationTimeout)
		defer cancel()
		if err := r.machine.SendTermination(termCtx); err != nil {
			r.log.Debug("termination send", zap.Error(err))
		}

		r.machine.Close()
		if err := r.sess.Close(); err != nil {
			r.log.Debug("media session close", zap.Error(err))
		}

		received, dropped, fedBack := r.pipe.Stats()
		r.log.Info("receiver session closed",
			zap.String("session_id", r.id),
			zap.Int64("frames_received", received),
			zap.Int64("frames_dropped", dropped),
			zap.Int64("feedback_sent", fedBack))
	})
	return nil
}
