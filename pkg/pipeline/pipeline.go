package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/chromatrack/chromatrack/pkg/config"
	"github.com/chromatrack/chromatrack/pkg/constants"
	apperrors "github.com/chromatrack/chromatrack/pkg/errors"
	"github.com/chromatrack/chromatrack/pkg/feedback"
	"github.com/chromatrack/chromatrack/pkg/media"
	"github.com/chromatrack/chromatrack/pkg/metrics"
	"github.com/chromatrack/chromatrack/pkg/render"
	"github.com/chromatrack/chromatrack/pkg/vision"
)

// Config tunes one ingestion pipeline. Zero values fall back to defaults;
// a nil Renderer runs headless.
type Config struct {
	Band             config.HSVBand
	QueueCapacity    int
	FeedbackInterval time.Duration
	RenderInterval   time.Duration
	Renderer         render.Renderer
	Metrics          *metrics.Metrics
}

// FrameIngestionPipeline receives frames from the peer session and fans
// them out: every frame is offered to the estimator through the bounded
// queue (dropped, never blocking, when analysis lags), the latest estimate
// is sent back on the feedback gate, and frames are rendered best effort
// on the independent render gate. On exit the pipeline pushes the
// termination sentinel and waits for the estimator to drain.
type FrameIngestionPipeline struct {
	sess  media.Session
	queue *media.FrameQueue
	cell  *vision.EstimateCell
	est   *vision.ColorSegmentationEstimator
	rend  render.Renderer
	mtr   *metrics.Metrics
	log   *zap.Logger

	feedbackInterval time.Duration
	renderInterval   time.Duration

	received atomic.Int64
	dropped  atomic.Int64
	fedBack  atomic.Int64

	stopOnce sync.Once
	done     chan struct{}
}

// New assembles a pipeline over a connected session
func New(sess media.Session, cfg Config, log *zap.Logger) *FrameIngestionPipeline {
	if cfg.Band == (config.HSVBand{}) {
		cfg.Band = config.DefaultScenario().Band
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = constants.DefaultFrameQueueCapacity
	}
	if cfg.FeedbackInterval <= 0 {
		cfg.FeedbackInterval = constants.DefaultFeedbackInterval
	}
	if cfg.RenderInterval <= 0 {
		cfg.RenderInterval = constants.DefaultRenderInterval
	}
	if cfg.Renderer == nil {
		cfg.Renderer = render.NopRenderer{}
	}

	queue := media.NewFrameQueue(cfg.QueueCapacity)
	cell := &vision.EstimateCell{}
	p := &FrameIngestionPipeline{
		sess:             sess,
		queue:            queue,
		cell:             cell,
		est:              vision.NewColorSegmentationEstimator(queue, cell, cfg.Band, log),
		rend:             cfg.Renderer,
		mtr:              cfg.Metrics,
		log:              log,
		feedbackInterval: cfg.FeedbackInterval,
		renderInterval:   cfg.RenderInterval,
		done:             make(chan struct{}),
	}
	if mtr := cfg.Metrics; mtr != nil {
		p.est.OnResult(func(missed bool) { mtr.RecordFrameAnalyzed(missed) })
	}
	return p
}

// Run drives the pipeline until the frame stream ends or the context is
// canceled. Stream end and transport loss both exit cleanly; only
// cancellation is an error to the caller.
func (p *FrameIngestionPipeline) Run(ctx context.Context) error {
	p.est.Start()
	defer p.shutdown()

	feedbackGate := time.NewTicker(p.feedbackInterval)
	defer feedbackGate.Stop()
	renderGate := time.NewTicker(p.renderInterval)
	defer renderGate.Stop()

	for {
		f, err := p.sess.ReceiveFrame(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.log.Info("frame stream ended",
					zap.Int64("received", p.received.Load()),
					zap.Int64("dropped", p.dropped.Load()))
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.log.Warn("frame receive failed, closing pipeline", zap.Error(err))
			return nil
		}
		p.received.Add(1)
		if p.mtr != nil {
			p.mtr.RecordFrameReceived()
		}

		if err := p.queue.Enqueue(f); err != nil {
			// analysis is behind: drop rather than stall the receive path
			p.dropped.Add(1)
			if p.mtr != nil {
				p.mtr.RecordFrameDropped(dropReason(err))
			}
			p.log.Debug("frame dropped", zap.Int64("tick", f.Timestamp), zap.Error(err))
		}

		select {
		case <-feedbackGate.C:
			p.sendFeedback(ctx)
		default:
		}

		select {
		case <-renderGate.C:
			p.render(f)
		default:
		}
	}
}

// Done closes once the pipeline has fully shut down
func (p *FrameIngestionPipeline) Done() <-chan struct{} {
	return p.done
}

// Estimate returns the latest published estimate
func (p *FrameIngestionPipeline) Estimate() (x, y int, ok bool) {
	return p.cell.Get()
}

// Stats reports the pipeline counters
func (p *FrameIngestionPipeline) Stats() (received, dropped, fedBack int64) {
	return p.received.Load(), p.dropped.Load(), p.fedBack.Load()
}

// EstimatorStats reports the analyzer counters
func (p *FrameIngestionPipeline) EstimatorStats() (processed, missed int64) {
	return p.est.Stats()
}

func (p *FrameIngestionPipeline) sendFeedback(ctx context.Context) {
	x, y, ok := p.cell.Get()
	if !ok {
		return
	}
	msg := feedback.FormatEstimate(x, y)
	if err := p.sess.SendText(ctx, msg); err != nil {
		p.log.Warn("feedback send failed", zap.Error(err))
		return
	}
	p.fedBack.Add(1)
	if p.mtr != nil {
		p.mtr.RecordFeedbackSent()
	}
	p.log.Debug("feedback sent", zap.String("estimate", msg))
}

func (p *FrameIngestionPipeline) render(f *media.Frame) {
	x, y, ok := p.cell.Get()
	hud := render.HUD{Tick: f.Timestamp, EstimateX: x, EstimateY: y, HasEstimate: ok}
	if err := p.rend.Render(f, hud); err != nil {
		p.log.Warn("render failed", zap.Error(err))
	}
}

func (p *FrameIngestionPipeline) shutdown() {
	p.stopOnce.Do(func() {
		p.queue.Terminate()
		p.est.Wait()
		p.rend.Close()
		processed, missed := p.est.Stats()
		p.log.Info("pipeline stopped",
			zap.Int64("received", p.received.Load()),
			zap.Int64("dropped", p.dropped.Load()),
			zap.Int64("analyzed", processed),
			zap.Int64("misses", missed),
			zap.Int64("feedback_sent", p.fedBack.Load()))
		close(p.done)
	})
}

func dropReason(err error) string {
	if appErr, ok := apperrors.AsAppError(err); ok {
		switch appErr.Code {
		case apperrors.ErrCodeQueueFull:
			return "queue_full"
		case apperrors.ErrCodeChannelClosed:
			return "terminated"
		}
	}
	return "other"
}
