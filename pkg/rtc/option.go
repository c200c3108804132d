package rtc

import (
	"fmt"
	"time"

	"github.com/pion/webrtc/v3"

	"github.com/chromatrack/chromatrack/pkg/constants"
)

// Option carries the peer connection settings shared by both sides of a
// session. Zero fields are filled with defaults by NewProvider, so callers
// only set what they want to change.
type Option struct {
	ICEServers []webrtc.ICEServer `json:"iceServers"`
	StreamID   string             `json:"streamId"`
	ICETimeout time.Duration      `json:"iceTimeout"`

	// Labels of the two data channels. The frame channel carries chunked
	// binary frames, the feedback channel carries text estimates.
	FrameChannelLabel    string `json:"frameChannelLabel"`
	FeedbackChannelLabel string `json:"feedbackChannelLabel"`

	FrameChunkSize int `json:"frameChunkSize"`
	MaxFrameBytes  int `json:"maxFrameBytes"`
}

// DefaultOption returns the stock configuration: Google STUN, the standard
// channel labels, and 16 KiB frame chunks.
func DefaultOption() *Option {
	return &Option{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
		StreamID:             constants.DefaultStreamID,
		ICETimeout:           constants.DefaultICETimeout,
		FrameChannelLabel:    constants.FrameChannelLabel,
		FeedbackChannelLabel: constants.FeedbackChannelLabel,
		FrameChunkSize:       constants.FrameChunkSize,
		MaxFrameBytes:        constants.MaxFrameBytes,
	}
}

// OptionWithSTUN builds an Option from a list of STUN URLs, falling back to
// the defaults when the list is empty.
func OptionWithSTUN(urls []string) *Option {
	opt := DefaultOption()
	if len(urls) > 0 {
		opt.ICEServers = []webrtc.ICEServer{{URLs: urls}}
	}
	return opt
}

func (o *Option) GetICEServers() []webrtc.ICEServer {
	if o == nil || len(o.ICEServers) == 0 {
		return DefaultOption().ICEServers
	}
	return o.ICEServers
}

func (o *Option) GetStreamID() string {
	if o == nil || o.StreamID == "" {
		return constants.DefaultStreamID
	}
	return o.StreamID
}

func (o *Option) GetICETimeout() time.Duration {
	if o == nil || o.ICETimeout <= 0 {
		return constants.DefaultICETimeout
	}
	return o.ICETimeout
}

func (o *Option) GetFrameChannelLabel() string {
	if o == nil || o.FrameChannelLabel == "" {
		return constants.FrameChannelLabel
	}
	return o.FrameChannelLabel
}

func (o *Option) GetFeedbackChannelLabel() string {
	if o == nil || o.FeedbackChannelLabel == "" {
		return constants.FeedbackChannelLabel
	}
	return o.FeedbackChannelLabel
}

func (o *Option) GetFrameChunkSize() int {
	if o == nil || o.FrameChunkSize <= 0 {
		return constants.FrameChunkSize
	}
	return o.FrameChunkSize
}

func (o *Option) GetMaxFrameBytes() int {
	if o == nil || o.MaxFrameBytes <= 0 {
		return constants.MaxFrameBytes
	}
	return o.MaxFrameBytes
}

func (o *Option) String() string {
	return fmt.Sprintf("Option{StreamID: %s, ICEServers: %d, ICETimeout: %s, Channels: [%s %s], ChunkSize: %d}",
		o.GetStreamID(), len(o.GetICEServers()), o.GetICETimeout(),
		o.GetFrameChannelLabel(), o.GetFeedbackChannelLabel(), o.GetFrameChunkSize())
}
