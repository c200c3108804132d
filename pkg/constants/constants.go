package constants

import "time"

const (
	DefaultSignalingHost = "0.0.0.0"
	DefaultSignalingPort = 1234
	DefaultSignalingPath = "/signal"

	SignalingSchemeTCP = "tcp"
	SignalingSchemeWS  = "ws"
)

const (
	MessageOffer     = "offer"
	MessageAnswer    = "answer"
	MessageCandidate = "candidate"
	MessageBye       = "bye"
)

// Simulation defaults: a radius-20 green disc bouncing inside an 800x600
// canvas at 60 frames per second.
const (
	DefaultScreenWidth  = 800
	DefaultScreenHeight = 600
	DefaultTargetRadius = 20.0
	DefaultFrameRate    = 60

	DefaultStartX    = 20.0
	DefaultStartY    = 20.0
	DefaultVelocityX = 10.0
	DefaultVelocityY = 21.0
)

// Detection band for the stock green target, in OpenCV HSV ranges
// (hue 0..179, saturation and value 0..255).
const (
	DefaultHueLower = 35
	DefaultSatLower = 100
	DefaultValLower = 100
	DefaultHueUpper = 85
	DefaultSatUpper = 255
	DefaultValUpper = 255
)

const (
	DefaultFeedbackInterval = 500 * time.Millisecond
	DefaultRenderInterval   = 200 * time.Millisecond

	// Frames buffered between the receive path and the analyzer before
	// drops start.
	DefaultFrameQueueCapacity = 16
)

const (
	DefaultICETimeout          = 10 * time.Second
	ConnectionStateLogInterval = 10
	MaxConnectionRetries       = 100
	ConnectionRetryDelay       = 50 * time.Millisecond

	SignalingDialRetries    = 40
	SignalingDialRetryDelay = 250 * time.Millisecond
)

const (
	FrameChannelLabel    = "frames"
	FeedbackChannelLabel = "feedback"
	DefaultStreamID      = "chromatrack"
)

// Frames travel over a reliable ordered data channel as a header record
// followed by fixed-size chunks. 16 KiB stays under the message size every
// SCTP implementation accepts.
const (
	FrameChunkSize = 16 * 1024
	MaxFrameBytes  = 32 << 20

	FrameInboxCapacity = 32
)

// Retention window for tracking reports kept for the status API
const (
	ReportRetention     = 5 * time.Minute
	ReportSweepInterval = 10 * time.Minute
)

// Default Value: tcp
const ENV_SIGNALING_SCHEME = "SIGNALING_SCHEME"

// Default Value: 0.0.0.0
const ENV_SIGNALING_HOST = "SIGNALING_HOST"

// Default Value: 1234
const ENV_SIGNALING_PORT = "SIGNALING_PORT"

// Default Value: /signal
const ENV_SIGNALING_PATH = "SIGNALING_PATH"

const ENV_SCENARIO_FILE = "SCENARIO_FILE"
const ENV_FRAME_RATE = "FRAME_RATE"
const ENV_FEEDBACK_INTERVAL_MS = "FEEDBACK_INTERVAL_MS"
const ENV_RENDER_INTERVAL_MS = "RENDER_INTERVAL_MS"
const ENV_RENDER_DIR = "RENDER_DIR"
const ENV_SKIP_POST_NEGOTIATION = "SKIP_POST_NEGOTIATION"
const ENV_HTTP_ADDR = "HTTP_ADDR"
const ENV_STUN_SERVERS = "STUN_SERVERS"
const ENV_LOG_LEVEL = "LOG_LEVEL"
const ENV_LOG_FILE = "LOG_FILE"
