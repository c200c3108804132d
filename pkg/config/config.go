package config

import (
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/chromatrack/chromatrack/pkg/constants"
	"github.com/chromatrack/chromatrack/pkg/logger"
	"github.com/chromatrack/chromatrack/pkg/utils"
)

// SignalingConfig addresses the out-of-band signaling socket. The scheme
// selects the transport: "tcp" for the raw socket, "ws" for WebSocket.
type SignalingConfig struct {
	Scheme string `json:"scheme"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Path   string `json:"path"`
}

// Addr returns the host:port form used by the TCP transport
func (c SignalingConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// URL returns the ws:// form used by the WebSocket transport
func (c SignalingConfig) URL() string {
	return "ws://" + c.Addr() + c.Path
}

var GlobalConfig *Config

// Config holds the full process configuration. It is passed explicitly to
// session construction; nothing below reads a default address at use time.
type Config struct {
	Signaling SignalingConfig
	Log       logger.LogConfig
	Mode      string `env:"MODE"`

	// Simulation
	FrameRate    int    `env:"FRAME_RATE"`
	ScenarioFile string `env:"SCENARIO_FILE"`

	// Pacing. Feedback and render intervals are intentionally independent.
	FeedbackInterval time.Duration `env:"FEEDBACK_INTERVAL_MS"`
	RenderInterval   time.Duration `env:"RENDER_INTERVAL_MS"`
	RenderDir        string        `env:"RENDER_DIR"`

	// Session behavior
	SkipPostNegotiation bool     `env:"SKIP_POST_NEGOTIATION"`
	STUNServers         []string `env:"STUN_SERVERS"`

	// Debug HTTP server; empty disables it
	HTTPAddr string `env:"HTTP_ADDR"`
}

func Load() error {
	mode := utils.GetStringOrDefault("MODE", "development")
	err := utils.LoadEnv(mode)
	if err != nil {
		log.Printf("Note: .env file not found or failed to load: %v (using default values)", err)
	}
	GlobalConfig = &Config{
		Signaling: SignalingConfig{
			Scheme: utils.GetStringOrDefault(constants.ENV_SIGNALING_SCHEME, constants.SignalingSchemeTCP),
			Host:   utils.GetStringOrDefault(constants.ENV_SIGNALING_HOST, constants.DefaultSignalingHost),
			Port:   utils.GetIntOrDefault(constants.ENV_SIGNALING_PORT, constants.DefaultSignalingPort),
			Path:   utils.GetStringOrDefault(constants.ENV_SIGNALING_PATH, constants.DefaultSignalingPath),
		},
		Log: logger.LogConfig{
			Level:      utils.GetStringOrDefault(constants.ENV_LOG_LEVEL, "info"),
			Filename:   utils.GetStringOrDefault(constants.ENV_LOG_FILE, "./logs/chromatrack.log"),
			MaxSize:    utils.GetIntOrDefault("LOG_MAX_SIZE", 100),
			MaxAge:     utils.GetIntOrDefault("LOG_MAX_AGE", 30),
			MaxBackups: utils.GetIntOrDefault("LOG_MAX_BACKUPS", 5),
			Daily:      utils.GetBoolOrDefault("LOG_DAILY", true),
		},
		Mode:                mode,
		FrameRate:           utils.GetIntOrDefault(constants.ENV_FRAME_RATE, constants.DefaultFrameRate),
		ScenarioFile:        utils.GetStringOrDefault(constants.ENV_SCENARIO_FILE, ""),
		FeedbackInterval:    time.Duration(utils.GetIntOrDefault(constants.ENV_FEEDBACK_INTERVAL_MS, int(constants.DefaultFeedbackInterval/time.Millisecond))) * time.Millisecond,
		RenderInterval:      time.Duration(utils.GetIntOrDefault(constants.ENV_RENDER_INTERVAL_MS, int(constants.DefaultRenderInterval/time.Millisecond))) * time.Millisecond,
		RenderDir:           utils.GetStringOrDefault(constants.ENV_RENDER_DIR, ""),
		SkipPostNegotiation: utils.GetBoolOrDefault(constants.ENV_SKIP_POST_NEGOTIATION, false),
		STUNServers:         splitList(utils.GetStringOrDefault(constants.ENV_STUN_SERVERS, "stun:stun.l.google.com:19302")),
		HTTPAddr:            utils.GetStringOrDefault(constants.ENV_HTTP_ADDR, ""),
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
