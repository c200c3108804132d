package bootstrap

import (
	"fmt"
	"os"
	"strings"

	"github.com/chromatrack/chromatrack/pkg/config"
	"github.com/chromatrack/chromatrack/pkg/logger"
	"go.uber.org/zap"
)

// LogConfigInfo Print global configuration information
func LogConfigInfo() {
	logger.Info("system config load finished")

	logger.Info("signaling config",
		zap.String("scheme", config.GlobalConfig.Signaling.Scheme),
		zap.String("addr", config.GlobalConfig.Signaling.Addr()),
		zap.String("path", config.GlobalConfig.Signaling.Path),
	)

	logger.Info("session config",
		zap.Int("frame_rate", config.GlobalConfig.FrameRate),
		zap.String("scenario_file", config.GlobalConfig.ScenarioFile),
		zap.Duration("feedback_interval", config.GlobalConfig.FeedbackInterval),
		zap.Duration("render_interval", config.GlobalConfig.RenderInterval),
		zap.Strings("stun_servers", config.GlobalConfig.STUNServers),
	)

	logger.Info("log config",
		zap.String("log_level", config.GlobalConfig.Log.Level),
		zap.String("log_filename", config.GlobalConfig.Log.Filename),
		zap.Int("log_max_size", config.GlobalConfig.Log.MaxSize),
		zap.Int("log_max_age", config.GlobalConfig.Log.MaxAge),
		zap.Int("log_max_backups", config.GlobalConfig.Log.MaxBackups),
	)
}

const defaultBanner = `  ____  _   _  ____    ___   __  __    _    _____  ____      _      ____  _  __
 / ___|| | | ||  _ \  / _ \ |  \/  |  / \  |_   _||  _ \    / \    / ___|| |/ /
| |    | |_| || |_) || | | || |\/| | / _ \   | |  | |_) |  / _ \  | |    | ' /
| |___ |  _  ||  _ < | |_| || |  | |/ ___ \  | |  |  _ <  / ___ \ | |___ | . \
 \____||_| |_||_| \_\ \___/ |_|  |_/_/   \_\ |_|  |_| \_\/_/   \_\ \____||_|\_\`

// EnsureBannerFile writes the default banner when the file does not exist
func EnsureBannerFile(filename string, defaultText string) error {
	if _, err := os.Stat(filename); err == nil {
		return nil
	}
	content := defaultBanner + "\n"
	if defaultText != "" {
		content += ":: " + defaultText + " ::\n"
	}
	return os.WriteFile(filename, []byte(content), 0644)
}

// PrintBannerFromFile Read file and print, auto-generate if file doesn't exist
func PrintBannerFromFile(filename string, defaultText string) error {
	// Ensure banner file exists, generate if it doesn't
	if err := EnsureBannerFile(filename, defaultText); err != nil {
		return fmt.Errorf("failed to ensure banner file: %w", err)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	lines := strings.Split(string(data), "\n")

	colors := []string{
		"\x1b[38;5;165m",
		"\x1b[38;5;189m",
		"\x1b[38;5;207m",
		"\x1b[38;5;219m",
		"\x1b[38;5;225m",
		"\x1b[38;5;231m",
	}

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		color := colors[i%len(colors)]
		fmt.Println(color + line + "\x1b[0m")
	}
	return nil
}
