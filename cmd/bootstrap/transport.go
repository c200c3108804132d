package bootstrap

import (
	"go.uber.org/zap"

	"github.com/chromatrack/chromatrack/pkg/config"
	"github.com/chromatrack/chromatrack/pkg/constants"
	"github.com/chromatrack/chromatrack/pkg/signaling"
)

// BuildSignalingTransport constructs the signaling transport the config
// names. listen selects the accepting side; the other peer dials.
func BuildSignalingTransport(cfg *config.Config, listen bool, log *zap.Logger) signaling.Transport {
	sig := cfg.Signaling
	if sig.Scheme == constants.SignalingSchemeWS {
		if listen {
			return signaling.NewWSListener(sig.Addr(), sig.Path, log)
		}
		return signaling.NewWSDialer(sig.URL(), log)
	}
	if listen {
		return signaling.NewTCPListener(sig.Addr(), log)
	}
	return signaling.NewTCPDialer(sig.Addr(), log)
}
