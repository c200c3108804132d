package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/chromatrack/chromatrack/pkg/errors"
	"github.com/chromatrack/chromatrack/pkg/media"
	"github.com/chromatrack/chromatrack/pkg/metrics"
	"github.com/chromatrack/chromatrack/pkg/signaling"
)

// How long teardown waits for the best-effort termination message to flush
const terminationTimeout = time.Second

// connectionWaiter is implemented by media sessions that need time to
// establish their data path after negotiation, such as the WebRTC
// provider. The in-memory loopback session is usable immediately and does
// not implement it.
type connectionWaiter interface {
	WaitForConnection(ctx context.Context) error
}

func newSessionID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func waitForMedia(ctx context.Context, sess media.Session, log *zap.Logger) error {
	waiter, ok := sess.(connectionWaiter)
	if !ok {
		return nil
	}
	if err := waiter.WaitForConnection(ctx); err != nil {
		return err
	}
	log.Info("media path established")
	return nil
}

// attachMetrics wires machine observability hooks into the instrument set
func attachMetrics(m *signaling.StateMachine, mtr *metrics.Metrics) {
	if mtr == nil {
		return
	}
	m.OnProtocolError(func(error) { mtr.RecordProtocolError() })
	m.OnMessage(func(direction string, msg signaling.Message) {
		mtr.RecordSignalingMessage(direction, signaling.MessageType(msg))
	})
}

func isCode(err error, code apperrors.ErrorCode) bool {
	appErr, ok := apperrors.AsAppError(err)
	return ok && appErr.Code == code
}
