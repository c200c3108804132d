package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/chromatrack/chromatrack/cmd/bootstrap"
	"github.com/chromatrack/chromatrack/pkg/config"
	"github.com/chromatrack/chromatrack/pkg/logger"
	"github.com/chromatrack/chromatrack/pkg/metrics"
	"github.com/chromatrack/chromatrack/pkg/render"
	"github.com/chromatrack/chromatrack/pkg/rtc"
	"github.com/chromatrack/chromatrack/pkg/session"
	"github.com/chromatrack/chromatrack/pkg/signaling"
	"github.com/chromatrack/chromatrack/pkg/web"
)

func main() {
	// 1. Parse Command Line Parameters
	mode := flag.String("mode", "", "running environment (development, test, production)")
	addr := flag.String("addr", "", "signaling address override (host:port)")
	scheme := flag.String("scheme", "", "signaling transport override (tcp, ws)")
	listen := flag.Bool("listen", false, "accept the signaling connection instead of dialing")
	scenario := flag.String("scenario", "", "path to scenario .yaml (optional, sets the detection band)")
	renderDir := flag.String("render-dir", "", "snapshot output directory override")
	httpAddr := flag.String("http", "", "debug HTTP address override")
	flag.Parse()
	os.Setenv("MODE", *mode)

	// 2. Load Global Configuration
	if err := config.Load(); err != nil {
		panic("config load failed: " + err.Error())
	}
	cfg := config.GlobalConfig

	// 3. Load Log Configuration
	if err := logger.Init(&cfg.Log, cfg.Mode); err != nil {
		panic(err)
	}

	// 4. Print Banner
	if err := bootstrap.PrintBannerFromFile("banner.txt", "receiver"); err != nil {
		log.Fatalf("unload banner: %v", err)
	}

	// 5. Apply Command Line Overrides
	applyOverrides(cfg, *addr, *scheme, *scenario, *renderDir, *httpAddr)

	// 6. Print Configuration
	bootstrap.LogConfigInfo()

	// 7. Load Scenario For The Detection Band
	scn, err := config.LoadScenario(cfg.ScenarioFile)
	if err != nil {
		logger.Error("scenario load failed", zap.Error(err))
		return
	}

	// 8. Build Signaling Transport
	transport := bootstrap.BuildSignalingTransport(cfg, *listen, logger.Lg)

	// 9. Build WebRTC Media Provider
	provider, err := rtc.NewProvider(rtc.OptionWithSTUN(cfg.STUNServers), signaling.RoleResponder, logger.Lg)
	if err != nil {
		logger.Error("media provider setup failed", zap.Error(err))
		return
	}

	// 10. Build Snapshot Renderer When Configured
	mtr := metrics.New()
	var renderer render.Renderer
	if cfg.RenderDir != "" {
		if err := bootstrap.SeedRenderDir(cfg.RenderDir); err != nil {
			logger.Error("render dir setup failed", zap.Error(err))
			return
		}
		renderer, err = render.NewSnapshotRenderer(cfg.RenderDir, mtr, logger.Lg)
		if err != nil {
			logger.Error("renderer setup failed", zap.Error(err))
			return
		}
	}

	// 11. Build Receiver Session
	receiver, err := session.NewReceiver(session.ReceiverConfig{
		Transport:           transport,
		Negotiator:          provider,
		Media:               provider,
		Band:                scn.Band,
		FeedbackInterval:    cfg.FeedbackInterval,
		RenderInterval:      cfg.RenderInterval,
		Renderer:            renderer,
		SkipPostNegotiation: cfg.SkipPostNegotiation,
		Metrics:             mtr,
		Log:                 logger.Lg,
	})
	if err != nil {
		logger.Error("receiver setup failed", zap.Error(err))
		return
	}

	// 12. Debug HTTP Server
	if cfg.HTTPAddr != "" {
		srv := web.New(web.Config{
			Addr:     cfg.HTTPAddr,
			Receiver: receiver,
			Metrics:  mtr,
			Log:      logger.Lg,
		})
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	// 13. Run Until Finished Or Interrupted
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		logger.Info("signal received, shutting down", zap.String("signal", s.String()))
		cancel()
	}()

	if err := receiver.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("receiver exited with error", zap.Error(err))
		return
	}
	received, dropped, fedBack := receiver.Pipeline().Stats()
	logger.Info("receiver finished",
		zap.Int64("frames_received", received),
		zap.Int64("frames_dropped", dropped),
		zap.Int64("frames_fed_back", fedBack))
}

func applyOverrides(cfg *config.Config, addr, scheme, scenario, renderDir, httpAddr string) {
	if addr != "" {
		host, portStr, err := net.SplitHostPort(addr)
		if err == nil {
			if port, perr := strconv.Atoi(portStr); perr == nil {
				cfg.Signaling.Host = host
				cfg.Signaling.Port = port
			}
		} else {
			logger.Warn("ignoring malformed -addr override", zap.String("addr", addr))
		}
	}
	if scheme != "" {
		cfg.Signaling.Scheme = scheme
	}
	if scenario != "" {
		cfg.ScenarioFile = scenario
	}
	if renderDir != "" {
		cfg.RenderDir = renderDir
	}
	if httpAddr != "" {
		cfg.HTTPAddr = httpAddr
	}
}
