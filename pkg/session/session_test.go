package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chromatrack/chromatrack/pkg/config"
	apperrors "github.com/chromatrack/chromatrack/pkg/errors"
	"github.com/chromatrack/chromatrack/pkg/media"
	"github.com/chromatrack/chromatrack/pkg/signaling"
	"github.com/chromatrack/chromatrack/pkg/simulator"
)

// memTransport is an in-memory signaling duplex with TCP-like close
// semantics: a closed end surfaces Termination to its reader.
type memTransport struct {
	peer      *memTransport
	in        chan signaling.Message
	closed    chan struct{}
	closeOnce sync.Once
}

func newTransportPair() (*memTransport, *memTransport) {
	a := &memTransport{in: make(chan signaling.Message, 16), closed: make(chan struct{})}
	b := &memTransport{in: make(chan signaling.Message, 16), closed: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

func (t *memTransport) Connect(ctx context.Context) error { return nil }

func (t *memTransport) Send(ctx context.Context, msg signaling.Message) error {
	select {
	case <-t.closed:
		return apperrors.NewAppError(apperrors.ErrCodeSignalingTransportClosed, "transport closed")
	case <-t.peer.closed:
		return apperrors.NewAppError(apperrors.ErrCodeSignalingTransportClosed, "peer transport closed")
	default:
	}
	select {
	case t.peer.in <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *memTransport) Receive(ctx context.Context) (signaling.Message, error) {
	select {
	case msg := <-t.in:
		return msg, nil
	case <-t.closed:
		return signaling.Termination{}, nil
	case <-t.peer.closed:
		return signaling.Termination{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *memTransport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

// loopNegotiator satisfies the negotiation contract without a real media
// provider; the loopback media pair is usable regardless of descriptions.
type loopNegotiator struct {
	offerErr error

	mu         sync.Mutex
	remoteKind signaling.DescriptionKind
	candidates []signaling.IceCandidate
}

func (n *loopNegotiator) CreateOffer(ctx context.Context) (string, error) {
	if n.offerErr != nil {
		return "", n.offerErr
	}
	return "offer-sdp", nil
}

func (n *loopNegotiator) CreateAnswer(ctx context.Context) (string, error) {
	return "answer-sdp", nil
}

func (n *loopNegotiator) SetRemoteDescription(ctx context.Context, kind signaling.DescriptionKind, payload string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.remoteKind = kind
	return nil
}

func (n *loopNegotiator) AddCandidate(ctx context.Context, c signaling.IceCandidate) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.candidates = append(n.candidates, c)
	return nil
}

func (n *loopNegotiator) LocalCandidates() <-chan signaling.IceCandidate { return nil }

func testScenario() *config.Scenario {
	scn := config.DefaultScenario()
	scn.ScreenWidth = 320
	scn.ScreenHeight = 240
	scn.Radius = 15
	scn.StartX, scn.StartY = 60, 60
	scn.VelocityX, scn.VelocityY = 3, 2
	return scn
}

func TestSessionEndToEnd_Loopback(t *testing.T) {
	senderTr, receiverTr := newTransportPair()
	senderMedia, receiverMedia := media.NewLoopbackPair(64)
	scn := testScenario()
	sim := simulator.New(scn, 200, zap.NewNop())

	sender, err := NewSender(SenderConfig{
		Transport:  senderTr,
		Negotiator: &loopNegotiator{},
		Media:      senderMedia,
		Simulator:  sim,
		Log:        zap.NewNop(),
	})
	require.NoError(t, err)

	receiver, err := NewReceiver(ReceiverConfig{
		Transport:        receiverTr,
		Negotiator:       &loopNegotiator{},
		Media:            receiverMedia,
		Band:             scn.Band,
		QueueCapacity:    64,
		FeedbackInterval: 25 * time.Millisecond,
		RenderInterval:   time.Hour,
		Log:              zap.NewNop(),
	})
	require.NoError(t, err)

	ctx := context.Background()
	senderDone := make(chan error, 1)
	receiverDone := make(chan error, 1)
	go func() { senderDone <- sender.Run(ctx) }()
	go func() { receiverDone <- receiver.Run(ctx) }()

	require.Eventually(t, func() bool {
		accepted, _ := sender.Feedback().Stats()
		return accepted >= 2
	}, 5*time.Second, 10*time.Millisecond, "feedback never flowed back to the sender")

	require.NoError(t, sender.Close())

	select {
	case err := <-senderDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sender did not stop")
	}
	select {
	case err := <-receiverDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("receiver did not stop")
	}

	sent, _ := sender.Stats()
	assert.Positive(t, sent)

	received, _, fedBack := receiver.Pipeline().Stats()
	assert.Positive(t, received)
	assert.Positive(t, fedBack)

	_, _, ok := receiver.Pipeline().Estimate()
	require.True(t, ok, "no estimate was ever published")

	reports := sender.Feedback().RecentReports()
	require.NotEmpty(t, reports)
	for _, rep := range reports {
		assert.Less(t, rep.Error, 100.0,
			"tracking error out of range at sequence %d", rep.Sequence)
	}

	assert.Equal(t, signaling.StateClosed, sender.State())
	assert.Equal(t, signaling.StateClosed, receiver.State())
}

func TestSender_NegotiationFailure(t *testing.T) {
	senderTr, _ := newTransportPair()
	senderMedia, _ := media.NewLoopbackPair(4)

	sender, err := NewSender(SenderConfig{
		Transport:  senderTr,
		Negotiator: &loopNegotiator{offerErr: errors.New("no codecs in common")},
		Media:      senderMedia,
		Simulator:  simulator.New(testScenario(), 60, zap.NewNop()),
		Log:        zap.NewNop(),
	})
	require.NoError(t, err)

	err = sender.Run(context.Background())
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeNegotiationFailed, appErr.Code)
}

func TestReceiver_TerminationBeforeNegotiation(t *testing.T) {
	_, receiverTr := newTransportPair()
	_, receiverMedia := media.NewLoopbackPair(4)

	receiver, err := NewReceiver(ReceiverConfig{
		Transport:  receiverTr,
		Negotiator: &loopNegotiator{},
		Media:      receiverMedia,
		Log:        zap.NewNop(),
	})
	require.NoError(t, err)

	receiverTr.in <- signaling.Termination{}

	done := make(chan error, 1)
	go func() { done <- receiver.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("receiver did not exit on early termination")
	}
	assert.Equal(t, signaling.StateClosed, receiver.State())
}

func TestSender_MissingDependencies(t *testing.T) {
	_, err := NewSender(SenderConfig{})
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, appErr.Code)

	_, err = NewReceiver(ReceiverConfig{})
	require.Error(t, err)
}

func TestSender_CloseIdempotent(t *testing.T) {
	senderTr, _ := newTransportPair()
	senderMedia, _ := media.NewLoopbackPair(4)

	sender, err := NewSender(SenderConfig{
		Transport:  senderTr,
		Negotiator: &loopNegotiator{},
		Media:      senderMedia,
		Simulator:  simulator.New(testScenario(), 60, zap.NewNop()),
		Log:        zap.NewNop(),
	})
	require.NoError(t, err)

	require.NoError(t, sender.Close())
	require.NoError(t, sender.Close())

	// a closed session exits immediately
	done := make(chan error, 1)
	go func() { done <- sender.Run(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not observe the closed session")
	}
}

func TestSender_ContextCanceled(t *testing.T) {
	senderTr, _ := newTransportPair()
	senderMedia, _ := media.NewLoopbackPair(4)

	sender, err := NewSender(SenderConfig{
		Transport:  senderTr,
		Negotiator: &loopNegotiator{},
		Media:      senderMedia,
		Simulator:  simulator.New(testScenario(), 60, zap.NewNop()),
		Log:        zap.NewNop(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = sender.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSessionIDs_AssignedWhenOmitted(t *testing.T) {
	senderTr, receiverTr := newTransportPair()
	senderMedia, receiverMedia := media.NewLoopbackPair(4)

	sender, err := NewSender(SenderConfig{
		Transport:  senderTr,
		Negotiator: &loopNegotiator{},
		Media:      senderMedia,
		Simulator:  simulator.New(testScenario(), 60, zap.NewNop()),
		Log:        zap.NewNop(),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, sender.ID())

	receiver, err := NewReceiver(ReceiverConfig{
		ID:         "fixed-id",
		Transport:  receiverTr,
		Negotiator: &loopNegotiator{},
		Media:      receiverMedia,
		Log:        zap.NewNop(),
	})
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", receiver.ID())
}
