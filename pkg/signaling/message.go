package signaling

import (
	"encoding/json"

	"github.com/chromatrack/chromatrack/pkg/constants"
	apperrors "github.com/chromatrack/chromatrack/pkg/errors"
)

// DescriptionKind distinguishes the two halves of a negotiation
type DescriptionKind string

const (
	KindOffer  DescriptionKind = constants.MessageOffer
	KindAnswer DescriptionKind = constants.MessageAnswer
)

// Message is the closed signaling vocabulary. Exactly three variants exist:
// SessionDescription, IceCandidate and Termination. The interface is sealed
// so dispatch is an exhaustive type switch, never an open-ended payload.
type Message interface {
	isSignalingMessage()
}

// SessionDescription carries an offer or answer with an opaque descriptor
// payload (SDP when the WebRTC provider is in play).
type SessionDescription struct {
	Kind    DescriptionKind
	Payload string
}

// IceCandidate carries one opaque connectivity descriptor
type IceCandidate struct {
	Candidate     string
	SDPMid        string
	SDPMLineIndex *int
}

// Termination is the end-of-stream sentinel. Once observed, the handshake
// loop ends and no further messages are read.
type Termination struct{}

func (SessionDescription) isSignalingMessage() {}
func (IceCandidate) isSignalingMessage()       {}
func (Termination) isSignalingMessage()        {}

// MessageType returns the wire type tag of a message
func MessageType(m Message) string {
	switch v := m.(type) {
	case SessionDescription:
		return string(v.Kind)
	case IceCandidate:
		return constants.MessageCandidate
	case Termination:
		return constants.MessageBye
	default:
		return "unknown"
	}
}

// wireMessage is the one-object-per-line JSON shape shared by every
// transport.
type wireMessage struct {
	Type          string `json:"type"`
	SDP           string `json:"sdp,omitempty"`
	Candidate     string `json:"candidate,omitempty"`
	SDPMid        string `json:"sdpMid,omitempty"`
	SDPMLineIndex *int   `json:"sdpMLineIndex,omitempty"`
}

// Encode serializes a message to its wire form
func Encode(m Message) ([]byte, error) {
	var w wireMessage
	switch v := m.(type) {
	case SessionDescription:
		w.Type = string(v.Kind)
		w.SDP = v.Payload
	case IceCandidate:
		w.Type = constants.MessageCandidate
		w.Candidate = v.Candidate
		w.SDPMid = v.SDPMid
		w.SDPMLineIndex = v.SDPMLineIndex
	case Termination:
		w.Type = constants.MessageBye
	default:
		return nil, apperrors.NewAppErrorf(apperrors.ErrCodeInvalidInput, "unencodable message %T", m)
	}
	return json.Marshal(w)
}

// Decode parses one wire record into the closed vocabulary. Anything that
// is not one of the three variants is a malformed-message error, never a
// Termination.
func Decode(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, apperrors.WrapError(apperrors.ErrCodeSignalingMalformed, err)
	}
	switch w.Type {
	case constants.MessageOffer, constants.MessageAnswer:
		if w.SDP == "" {
			return nil, apperrors.NewAppErrorf(apperrors.ErrCodeSignalingMalformed, "%s without a session descriptor", w.Type)
		}
		return SessionDescription{Kind: DescriptionKind(w.Type), Payload: w.SDP}, nil
	case constants.MessageCandidate:
		if w.Candidate == "" {
			return nil, apperrors.NewAppError(apperrors.ErrCodeSignalingMalformed, "candidate without a descriptor")
		}
		return IceCandidate{Candidate: w.Candidate, SDPMid: w.SDPMid, SDPMLineIndex: w.SDPMLineIndex}, nil
	case constants.MessageBye:
		return Termination{}, nil
	default:
		return nil, apperrors.NewAppErrorf(apperrors.ErrCodeSignalingMalformed, "unknown message type %q", w.Type)
	}
}
