package feedback

import (
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/chromatrack/chromatrack/pkg/constants"
	"github.com/chromatrack/chromatrack/pkg/metrics"
	"github.com/chromatrack/chromatrack/pkg/simulator"
)

// TrackingReport is one scored feedback message
type TrackingReport struct {
	Sequence   int64     `json:"sequence"`
	Tick       int64     `json:"tick"`
	EstimateX  float64   `json:"estimate_x"`
	EstimateY  float64   `json:"estimate_y"`
	TruthX     float64   `json:"truth_x"`
	TruthY     float64   `json:"truth_y"`
	Error      float64   `json:"error"`
	ReceivedAt time.Time `json:"received_at"`
}

// TrackingFeedbackLoop consumes raw estimate payloads from the peer,
// scores them against live ground truth, and retains a rolling window of
// reports for the status API. A payload that fails the strict parse is
// rejected and counted; the loop keeps serving later messages.
type TrackingFeedbackLoop struct {
	truth func() simulator.TargetState
	mtr   *metrics.Metrics
	log   *zap.Logger

	reports  *gocache.Cache
	seq      atomic.Int64
	accepted atomic.Int64
	rejected atomic.Int64
}

// NewTrackingFeedbackLoop wires the loop to its ground-truth source.
// Metrics may be nil.
func NewTrackingFeedbackLoop(truth func() simulator.TargetState, mtr *metrics.Metrics, log *zap.Logger) *TrackingFeedbackLoop {
	return &TrackingFeedbackLoop{
		truth:   truth,
		mtr:     mtr,
		log:     log,
		reports: gocache.New(constants.ReportRetention, constants.ReportSweepInterval),
	}
}

// HandleMessage scores one raw feedback payload
func (l *TrackingFeedbackLoop) HandleMessage(text string) (TrackingReport, error) {
	x, y, err := ParseEstimate(text)
	if err != nil {
		l.rejected.Add(1)
		if l.mtr != nil {
			l.mtr.RecordFeedbackResult(false)
		}
		l.log.Warn("rejected feedback payload", zap.String("payload", clip(text)), zap.Error(err))
		return TrackingReport{}, err
	}

	st := l.truth()
	report := TrackingReport{
		Sequence:   l.seq.Add(1),
		Tick:       st.Tick,
		EstimateX:  x,
		EstimateY:  y,
		TruthX:     st.X,
		TruthY:     st.Y,
		Error:      TrackingError(x, y, st.X, st.Y),
		ReceivedAt: time.Now(),
	}
	l.accepted.Add(1)
	if l.mtr != nil {
		l.mtr.RecordFeedbackResult(true)
		l.mtr.RecordTrackingError(report.Error)
	}
	l.reports.Set(strconv.FormatInt(report.Sequence, 10), report, gocache.DefaultExpiration)

	l.log.Info("tracking feedback",
		zap.Int64("tick", report.Tick),
		zap.Float64("estimate_x", x),
		zap.Float64("estimate_y", y),
		zap.Float64("truth_x", st.X),
		zap.Float64("truth_y", st.Y),
		zap.Float64("error_px", report.Error))
	return report, nil
}

// RecentReports returns the retained reports ordered by sequence
func (l *TrackingFeedbackLoop) RecentReports() []TrackingReport {
	items := l.reports.Items()
	out := make([]TrackingReport, 0, len(items))
	for _, it := range items {
		if r, ok := it.Object.(TrackingReport); ok {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// Stats reports how many payloads were accepted and rejected
func (l *TrackingFeedbackLoop) Stats() (accepted, rejected int64) {
	return l.accepted.Load(), l.rejected.Load()
}
