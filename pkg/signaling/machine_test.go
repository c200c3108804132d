package signaling

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/chromatrack/chromatrack/pkg/errors"
)

type scriptEvent struct {
	msg Message
	err error
}

// scriptTransport feeds a machine a fixed sequence of incoming events and
// records everything it sends.
type scriptTransport struct {
	incoming chan scriptEvent

	mu   sync.Mutex
	sent []Message

	closed    chan struct{}
	closeOnce sync.Once
}

func newScriptTransport(events ...scriptEvent) *scriptTransport {
	tr := &scriptTransport{
		incoming: make(chan scriptEvent, 32),
		closed:   make(chan struct{}),
	}
	for _, ev := range events {
		tr.incoming <- ev
	}
	return tr
}

func (s *scriptTransport) Connect(ctx context.Context) error { return nil }

func (s *scriptTransport) Send(ctx context.Context, m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, m)
	return nil
}

func (s *scriptTransport) Receive(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return Termination{}, nil
	case ev := <-s.incoming:
		return ev.msg, ev.err
	}
}

func (s *scriptTransport) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *scriptTransport) sentMessages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *scriptTransport) countSent(pred func(Message) bool) int {
	n := 0
	for _, m := range s.sentMessages() {
		if pred(m) {
			n++
		}
	}
	return n
}

type fakeNegotiator struct {
	mu          sync.Mutex
	offerCalls  int
	answerCalls int
	remoteSet   []SessionDescription
	candidates  []IceCandidate

	localCh   chan IceCandidate
	offerErr  error
	answerErr error
	remoteErr error
}

func (f *fakeNegotiator) CreateOffer(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offerCalls++
	if f.offerErr != nil {
		return "", f.offerErr
	}
	return "local-offer-sdp", nil
}

func (f *fakeNegotiator) CreateAnswer(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answerCalls++
	if f.answerErr != nil {
		return "", f.answerErr
	}
	return "local-answer-sdp", nil
}

func (f *fakeNegotiator) SetRemoteDescription(ctx context.Context, kind DescriptionKind, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remoteErr != nil {
		return f.remoteErr
	}
	f.remoteSet = append(f.remoteSet, SessionDescription{Kind: kind, Payload: payload})
	return nil
}

func (f *fakeNegotiator) AddCandidate(ctx context.Context, c IceCandidate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, c)
	return nil
}

func (f *fakeNegotiator) LocalCandidates() <-chan IceCandidate { return f.localCh }

func (f *fakeNegotiator) remoteDescriptions() []SessionDescription {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SessionDescription, len(f.remoteSet))
	copy(out, f.remoteSet)
	return out
}

func (f *fakeNegotiator) addedCandidates() []IceCandidate {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]IceCandidate, len(f.candidates))
	copy(out, f.candidates)
	return out
}

type transitionLog struct {
	mu     sync.Mutex
	states []State
	errs   []error
}

func (l *transitionLog) attach(m *StateMachine) {
	m.OnStateChange(func(from, to State) {
		l.mu.Lock()
		l.states = append(l.states, to)
		l.mu.Unlock()
	})
	m.OnProtocolError(func(err error) {
		l.mu.Lock()
		l.errs = append(l.errs, err)
		l.mu.Unlock()
	})
}

func (l *transitionLog) visited() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]State, len(l.states))
	copy(out, l.states)
	return out
}

func (l *transitionLog) protocolErrors() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]error, len(l.errs))
	copy(out, l.errs)
	return out
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateConnected, "connected"},
		{StateAwaitingRemoteDescription, "awaiting_remote_description"},
		{StateLocalDescriptionSet, "local_description_set"},
		{StateNegotiated, "negotiated"},
		{StateClosed, "closed"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
		})
	}
}

func TestStateMachine_InitiatorHandshake(t *testing.T) {
	tr := newScriptTransport(
		scriptEvent{msg: SessionDescription{Kind: KindAnswer, Payload: "remote-answer-sdp"}},
		scriptEvent{msg: Termination{}},
	)
	neg := &fakeNegotiator{}
	m := NewStateMachine(MachineConfig{Role: RoleInitiator}, tr, neg, zap.NewNop())

	log := &transitionLog{}
	log.attach(m)

	require.NoError(t, m.Run(context.Background()))

	assert.Equal(t, []State{
		StateConnected,
		StateLocalDescriptionSet,
		StateAwaitingRemoteDescription,
		StateNegotiated,
		StateClosed,
	}, log.visited())
	assert.Empty(t, log.protocolErrors())

	sent := tr.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, SessionDescription{Kind: KindOffer, Payload: "local-offer-sdp"}, sent[0])

	assert.Equal(t, 1, neg.offerCalls)
	assert.Equal(t, 0, neg.answerCalls)
	assert.Equal(t, []SessionDescription{{Kind: KindAnswer, Payload: "remote-answer-sdp"}}, neg.remoteDescriptions())

	select {
	case <-m.Negotiated():
	default:
		t.Fatal("Negotiated channel not closed after handshake")
	}
}

func TestStateMachine_ResponderHandshake(t *testing.T) {
	tr := newScriptTransport(
		scriptEvent{msg: SessionDescription{Kind: KindOffer, Payload: "remote-offer-sdp"}},
		scriptEvent{msg: Termination{}},
	)
	neg := &fakeNegotiator{}
	m := NewStateMachine(MachineConfig{Role: RoleResponder}, tr, neg, zap.NewNop())

	log := &transitionLog{}
	log.attach(m)

	require.NoError(t, m.Run(context.Background()))

	assert.Equal(t, []State{
		StateConnected,
		StateAwaitingRemoteDescription,
		StateLocalDescriptionSet,
		StateNegotiated,
		StateClosed,
	}, log.visited())

	sent := tr.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, SessionDescription{Kind: KindAnswer, Payload: "local-answer-sdp"}, sent[0])

	assert.Equal(t, 1, neg.answerCalls)
	assert.Equal(t, []SessionDescription{{Kind: KindOffer, Payload: "remote-offer-sdp"}}, neg.remoteDescriptions())
}

func TestStateMachine_DuplicateAnswerDoesNotRenegotiate(t *testing.T) {
	tr := newScriptTransport(
		scriptEvent{msg: SessionDescription{Kind: KindAnswer, Payload: "remote-answer-sdp"}},
		scriptEvent{msg: SessionDescription{Kind: KindAnswer, Payload: "stale-answer-sdp"}},
		scriptEvent{msg: Termination{}},
	)
	neg := &fakeNegotiator{}
	m := NewStateMachine(MachineConfig{Role: RoleInitiator}, tr, neg, zap.NewNop())

	log := &transitionLog{}
	log.attach(m)

	require.NoError(t, m.Run(context.Background()))

	// exactly one remote description applied, the stale one reported
	assert.Len(t, neg.remoteDescriptions(), 1)
	errs := log.protocolErrors()
	require.Len(t, errs, 1)
	appErr, ok := apperrors.AsAppError(errs[0])
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeSignalingProtocol, appErr.Code)
	assert.Equal(t, StateClosed, m.State())
}

func TestStateMachine_OutOfOrderAnswerThenOffer(t *testing.T) {
	tr := newScriptTransport(
		scriptEvent{msg: SessionDescription{Kind: KindAnswer, Payload: "premature-answer"}},
		scriptEvent{msg: SessionDescription{Kind: KindOffer, Payload: "remote-offer-sdp"}},
		scriptEvent{msg: Termination{}},
	)
	neg := &fakeNegotiator{}
	m := NewStateMachine(MachineConfig{Role: RoleResponder}, tr, neg, zap.NewNop())

	log := &transitionLog{}
	log.attach(m)

	require.NoError(t, m.Run(context.Background()))

	// the premature answer is discarded, the real offer still lands
	assert.Len(t, log.protocolErrors(), 1)
	assert.Equal(t, []SessionDescription{{Kind: KindOffer, Payload: "remote-offer-sdp"}}, neg.remoteDescriptions())
	assert.Equal(t, 1, neg.answerCalls)
}

func TestStateMachine_CandidatesAcceptedInAnyState(t *testing.T) {
	early := IceCandidate{Candidate: "candidate:1 1 UDP 1 10.0.0.1 9 typ host"}
	late := IceCandidate{Candidate: "candidate:2 1 UDP 1 10.0.0.2 9 typ host", SDPMid: "0"}
	tr := newScriptTransport(
		scriptEvent{msg: early},
		scriptEvent{msg: SessionDescription{Kind: KindOffer, Payload: "remote-offer-sdp"}},
		scriptEvent{msg: late},
		scriptEvent{msg: Termination{}},
	)
	neg := &fakeNegotiator{}
	m := NewStateMachine(MachineConfig{Role: RoleResponder}, tr, neg, zap.NewNop())

	require.NoError(t, m.Run(context.Background()))

	assert.Equal(t, []IceCandidate{early, late}, neg.addedCandidates())
}

func TestStateMachine_MalformedMessagesDiscarded(t *testing.T) {
	malformed := apperrors.NewAppError(apperrors.ErrCodeSignalingMalformed, "unknown message type \"renegotiate\"")
	tr := newScriptTransport(
		scriptEvent{err: malformed},
		scriptEvent{msg: SessionDescription{Kind: KindAnswer, Payload: "remote-answer-sdp"}},
		scriptEvent{msg: Termination{}},
	)
	neg := &fakeNegotiator{}
	m := NewStateMachine(MachineConfig{Role: RoleInitiator}, tr, neg, zap.NewNop())

	log := &transitionLog{}
	log.attach(m)

	require.NoError(t, m.Run(context.Background()))

	assert.Len(t, log.protocolErrors(), 1)
	assert.Len(t, neg.remoteDescriptions(), 1)
	assert.Equal(t, StateClosed, m.State())
}

func TestStateMachine_TerminationBeforeNegotiation(t *testing.T) {
	tr := newScriptTransport(scriptEvent{msg: Termination{}})
	neg := &fakeNegotiator{}
	m := NewStateMachine(MachineConfig{Role: RoleResponder}, tr, neg, zap.NewNop())

	require.NoError(t, m.Run(context.Background()))

	assert.Equal(t, StateClosed, m.State())
	assert.Empty(t, tr.sentMessages())
	select {
	case <-m.Negotiated():
		t.Fatal("Negotiated channel closed without a handshake")
	default:
	}
}

func TestStateMachine_TransportLossIsOrderlyClose(t *testing.T) {
	lost := apperrors.NewAppError(apperrors.ErrCodeSignalingTransportClosed, "connection reset by peer")
	tr := newScriptTransport(scriptEvent{err: lost})
	neg := &fakeNegotiator{}
	m := NewStateMachine(MachineConfig{Role: RoleResponder}, tr, neg, zap.NewNop())

	require.NoError(t, m.Run(context.Background()))
	assert.Equal(t, StateClosed, m.State())
}

func TestStateMachine_SkipPostNegotiation(t *testing.T) {
	tr := newScriptTransport(
		scriptEvent{msg: SessionDescription{Kind: KindAnswer, Payload: "remote-answer-sdp"}},
	)
	neg := &fakeNegotiator{}
	m := NewStateMachine(MachineConfig{Role: RoleInitiator, SkipPostNegotiation: true}, tr, neg, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after negotiation with SkipPostNegotiation set")
	}
	assert.Equal(t, StateNegotiated, m.State())
}

func TestStateMachine_LocalCandidatesForwarded(t *testing.T) {
	c1 := IceCandidate{Candidate: "candidate:1 1 UDP 1 10.0.0.1 9 typ host"}
	c2 := IceCandidate{Candidate: "candidate:2 1 UDP 1 10.0.0.2 9 typ host"}

	neg := &fakeNegotiator{localCh: make(chan IceCandidate, 2)}
	neg.localCh <- c1
	neg.localCh <- c2
	close(neg.localCh)

	tr := newScriptTransport(
		scriptEvent{msg: SessionDescription{Kind: KindAnswer, Payload: "remote-answer-sdp"}},
	)
	m := NewStateMachine(MachineConfig{Role: RoleInitiator}, tr, neg, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()

	isCandidate := func(msg Message) bool {
		_, ok := msg.(IceCandidate)
		return ok
	}
	assert.Eventually(t, func() bool {
		return tr.countSent(isCandidate) == 2
	}, 5*time.Second, 10*time.Millisecond)

	tr.incoming <- scriptEvent{msg: Termination{}}
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not finish")
	}
}

func TestStateMachine_RunContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := newScriptTransport()
	neg := &fakeNegotiator{}
	m := NewStateMachine(MachineConfig{Role: RoleResponder}, tr, neg, zap.NewNop())

	err := m.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStateMachine_CloseIdempotent(t *testing.T) {
	tr := newScriptTransport()
	neg := &fakeNegotiator{}
	m := NewStateMachine(MachineConfig{Role: RoleInitiator}, tr, neg, zap.NewNop())

	assert.NoError(t, m.Close())
	assert.NoError(t, m.Close())
	assert.Equal(t, StateClosed, m.State())
}

func TestStateMachine_CloseUnblocksRun(t *testing.T) {
	tr := newScriptTransport(
		scriptEvent{msg: SessionDescription{Kind: KindOffer, Payload: "remote-offer-sdp"}},
	)
	neg := &fakeNegotiator{}
	m := NewStateMachine(MachineConfig{Role: RoleResponder}, tr, neg, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()

	select {
	case <-m.Negotiated():
	case <-time.After(5 * time.Second):
		t.Fatal("handshake never completed")
	}

	require.NoError(t, m.Close())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	assert.Equal(t, StateClosed, m.State())
}

func TestStateMachine_ConcurrentStateReads(t *testing.T) {
	tr := newScriptTransport(
		scriptEvent{msg: SessionDescription{Kind: KindAnswer, Payload: "remote-answer-sdp"}},
		scriptEvent{msg: Termination{}},
	)
	neg := &fakeNegotiator{}
	m := NewStateMachine(MachineConfig{Role: RoleInitiator}, tr, neg, zap.NewNop())

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func() {
			defer func() { done <- true }()
			for j := 0; j < 100; j++ {
				_ = m.State()
			}
		}()
	}

	require.NoError(t, m.Run(context.Background()))

	for i := 0; i < 10; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Timeout waiting for concurrent state readers")
		}
	}
}

func BenchmarkStateMachine_Handshake(b *testing.B) {
	for i := 0; i < b.N; i++ {
		tr := newScriptTransport(
			scriptEvent{msg: SessionDescription{Kind: KindAnswer, Payload: "remote-answer-sdp"}},
			scriptEvent{msg: Termination{}},
		)
		m := NewStateMachine(MachineConfig{Role: RoleInitiator}, tr, &fakeNegotiator{}, zap.NewNop())
		if err := m.Run(context.Background()); err != nil {
			b.Fatal(err)
		}
	}
}
