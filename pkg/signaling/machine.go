package signaling

import (
	"context"
	"errors"
	"sync"

	apperrors "github.com/chromatrack/chromatrack/pkg/errors"
	"go.uber.org/zap"
)

// Role names the two ends of a handshake
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// State is the handshake position of one session
type State int32

const (
	StateIdle State = iota
	StateConnected
	StateAwaitingRemoteDescription
	StateLocalDescriptionSet
	StateNegotiated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnected:
		return "connected"
	case StateAwaitingRemoteDescription:
		return "awaiting_remote_description"
	case StateLocalDescriptionSet:
		return "local_description_set"
	case StateNegotiated:
		return "negotiated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Negotiator is the slice of the media session the handshake drives.
// CreateOffer and CreateAnswer both synthesize the description and install
// it locally before returning its payload. Candidates handed to
// AddCandidate must be accepted in any negotiation state; implementations
// queue them internally until a remote description exists.
// LocalCandidates may return nil when the provider does not trickle.
type Negotiator interface {
	CreateOffer(ctx context.Context) (string, error)
	CreateAnswer(ctx context.Context) (string, error)
	SetRemoteDescription(ctx context.Context, kind DescriptionKind, payload string) error
	AddCandidate(ctx context.Context, c IceCandidate) error
	LocalCandidates() <-chan IceCandidate
}

// MachineConfig selects the role and loop behavior for one handshake
type MachineConfig struct {
	Role Role

	// SkipPostNegotiation exits the receive loop as soon as the session is
	// negotiated instead of consuming candidates until Termination. Used
	// for controlled shutdown; it is a switch, not a timeout.
	SkipPostNegotiation bool
}

// StateMachine drives the offer/answer/candidate handshake for one session.
// Transitions are strictly sequential: Run owns them from a single
// goroutine, and at most one description negotiation is in flight.
type StateMachine struct {
	role                Role
	skipPostNegotiation bool
	transport           Transport
	neg                 Negotiator
	log                 *zap.Logger

	mu      sync.Mutex
	state   State
	stateFn func(from, to State)
	protoFn func(error)
	msgFn   func(direction string, msg Message)

	negotiated     chan struct{}
	negotiatedOnce sync.Once
	closeOnce      sync.Once
}

// NewStateMachine assembles a machine over an unconnected transport
func NewStateMachine(cfg MachineConfig, transport Transport, neg Negotiator, log *zap.Logger) *StateMachine {
	return &StateMachine{
		role:                cfg.Role,
		skipPostNegotiation: cfg.SkipPostNegotiation,
		transport:           transport,
		neg:                 neg,
		log:                 log,
		state:               StateIdle,
		negotiated:          make(chan struct{}),
	}
}

// State returns the current handshake state
func (m *StateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnStateChange registers a transition observer. Set before Run.
func (m *StateMachine) OnStateChange(fn func(from, to State)) {
	m.mu.Lock()
	m.stateFn = fn
	m.mu.Unlock()
}

// OnProtocolError registers an observer for discarded messages. Set before
// Run.
func (m *StateMachine) OnProtocolError(fn func(error)) {
	m.mu.Lock()
	m.protoFn = fn
	m.mu.Unlock()
}

// OnMessage registers an observer for every message crossing the
// transport, direction "sent" or "received". Set before Run.
func (m *StateMachine) OnMessage(fn func(direction string, msg Message)) {
	m.mu.Lock()
	m.msgFn = fn
	m.mu.Unlock()
}

// Negotiated is closed once the session reaches Negotiated
func (m *StateMachine) Negotiated() <-chan struct{} {
	return m.negotiated
}

func (m *StateMachine) observe(direction string, msg Message) {
	m.mu.Lock()
	fn := m.msgFn
	m.mu.Unlock()
	if fn != nil {
		fn(direction, msg)
	}
}

func (m *StateMachine) setState(to State) {
	m.mu.Lock()
	from := m.state
	m.state = to
	fn := m.stateFn
	m.mu.Unlock()
	if from == to {
		return
	}
	m.log.Info("signaling state changed",
		zap.String("role", string(m.role)),
		zap.String("from", from.String()),
		zap.String("to", to.String()))
	if fn != nil {
		fn(from, to)
	}
	if to == StateNegotiated {
		m.negotiatedOnce.Do(func() { close(m.negotiated) })
	}
}

func (m *StateMachine) protocolError(err error) {
	m.mu.Lock()
	fn := m.protoFn
	m.mu.Unlock()
	m.log.Warn("signaling protocol error", zap.String("role", string(m.role)), zap.Error(err))
	if fn != nil {
		fn(err)
	}
}

// Run connects the transport and drives the handshake until Termination,
// context cancellation, or (when configured) the post-negotiation skip.
// Malformed and out-of-order messages are reported and discarded; the loop
// survives them. Stream end always maps to the Closed state.
func (m *StateMachine) Run(ctx context.Context) error {
	if err := m.transport.Connect(ctx); err != nil {
		return err
	}
	m.setState(StateConnected)

	if ch := m.neg.LocalCandidates(); ch != nil {
		go m.forwardCandidates(ctx, ch)
	}

	switch m.role {
	case RoleInitiator:
		offer, err := m.neg.CreateOffer(ctx)
		if err != nil {
			return apperrors.WrapError(apperrors.ErrCodeNegotiationFailed, err)
		}
		m.setState(StateLocalDescriptionSet)
		if err := m.transport.Send(ctx, SessionDescription{Kind: KindOffer, Payload: offer}); err != nil {
			return err
		}
		m.observe("sent", SessionDescription{Kind: KindOffer, Payload: offer})
		m.setState(StateAwaitingRemoteDescription)
	case RoleResponder:
		m.setState(StateAwaitingRemoteDescription)
	default:
		return apperrors.NewAppErrorf(apperrors.ErrCodeInvalidInput, "unknown role %q", m.role)
	}

	return m.receiveLoop(ctx)
}

func (m *StateMachine) receiveLoop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, err := m.transport.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if appErr, ok := apperrors.AsAppError(err); ok && appErr.Code == apperrors.ErrCodeSignalingMalformed {
				m.protocolError(err)
				continue
			}
			// transport loss: orderly close, not a fatal abort
			m.log.Warn("signaling receive failed", zap.Error(err))
			m.setState(StateClosed)
			return nil
		}
		m.observe("received", msg)

		switch v := msg.(type) {
		case SessionDescription:
			m.handleDescription(ctx, v)
		case IceCandidate:
			// queued against the media session regardless of negotiation state
			if err := m.neg.AddCandidate(ctx, v); err != nil {
				m.protocolError(apperrors.WrapError(apperrors.ErrCodeSignalingProtocol, err))
			}
		case Termination:
			m.setState(StateClosed)
			return nil
		}

		if m.skipPostNegotiation && m.State() == StateNegotiated {
			m.log.Info("skipping post-negotiation signaling loop", zap.String("role", string(m.role)))
			return nil
		}
	}
}

func (m *StateMachine) handleDescription(ctx context.Context, sd SessionDescription) {
	state := m.State()
	switch {
	case m.role == RoleInitiator && state == StateAwaitingRemoteDescription && sd.Kind == KindAnswer:
		if err := m.neg.SetRemoteDescription(ctx, sd.Kind, sd.Payload); err != nil {
			m.protocolError(apperrors.WrapError(apperrors.ErrCodeNegotiationFailed, err))
			return
		}
		m.setState(StateNegotiated)

	case m.role == RoleResponder && state == StateAwaitingRemoteDescription && sd.Kind == KindOffer:
		if err := m.neg.SetRemoteDescription(ctx, sd.Kind, sd.Payload); err != nil {
			m.protocolError(apperrors.WrapError(apperrors.ErrCodeNegotiationFailed, err))
			return
		}
		answer, err := m.neg.CreateAnswer(ctx)
		if err != nil {
			m.protocolError(apperrors.WrapError(apperrors.ErrCodeNegotiationFailed, err))
			return
		}
		m.setState(StateLocalDescriptionSet)
		if err := m.transport.Send(ctx, SessionDescription{Kind: KindAnswer, Payload: answer}); err != nil {
			m.protocolError(err)
			return
		}
		m.observe("sent", SessionDescription{Kind: KindAnswer, Payload: answer})
		m.setState(StateNegotiated)

	default:
		// covers out-of-order answers, unexpected offers, and duplicate
		// answers after Negotiated; exactly one exchange per session
		m.protocolError(apperrors.NewAppErrorf(apperrors.ErrCodeSignalingProtocol,
			"unexpected %s in state %s", sd.Kind, state))
	}
}

func (m *StateMachine) forwardCandidates(ctx context.Context, ch <-chan IceCandidate) {
	for {
		select {
		case <-ctx.Done():
			return
		case cand, ok := <-ch:
			if !ok {
				return
			}
			if err := m.transport.Send(ctx, cand); err != nil {
				m.log.Warn("failed to forward local candidate", zap.Error(err))
				return
			}
			m.observe("sent", cand)
		}
	}
}

// SendTermination tells the peer the session is over. Best-effort; the
// transport may already be gone during teardown.
func (m *StateMachine) SendTermination(ctx context.Context) error {
	if err := m.transport.Send(ctx, Termination{}); err != nil {
		return err
	}
	m.observe("sent", Termination{})
	return nil
}

// Close releases the transport and parks the machine in Closed. Idempotent.
func (m *StateMachine) Close() error {
	m.closeOnce.Do(func() {
		m.transport.Close()
		m.setState(StateClosed)
	})
	return nil
}
