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
	"github.com/chromatrack/chromatrack/pkg/rtc"
	"github.com/chromatrack/chromatrack/pkg/session"
	"github.com/chromatrack/chromatrack/pkg/signaling"
	"github.com/chromatrack/chromatrack/pkg/simulator"
	"github.com/chromatrack/chromatrack/pkg/web"
)

func main() {
	// 1. Parse Command Line Parameters
	mode := flag.String("mode", "", "running environment (development, test, production)")
	addr := flag.String("addr", "", "signaling address override (host:port)")
	scheme := flag.String("scheme", "", "signaling transport override (tcp, ws)")
	listen := flag.Bool("listen", true, "accept the signaling connection instead of dialing")
	scenario := flag.String("scenario", "", "path to scenario .yaml (optional)")
	initSeed := flag.Bool("init", false, "write the default scenario file if missing")
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
	if err := bootstrap.PrintBannerFromFile("banner.txt", "sender"); err != nil {
		log.Fatalf("unload banner: %v", err)
	}

	// 5. Apply Command Line Overrides
	applyOverrides(cfg, *addr, *scheme, *scenario, *httpAddr)

	// 6. Print Configuration
	bootstrap.LogConfigInfo()

	// 7. Seed Defaults
	if *initSeed {
		if cfg.ScenarioFile == "" {
			cfg.ScenarioFile = "scenario.yaml"
		}
		wrote, err := bootstrap.SeedScenarioFile(cfg.ScenarioFile)
		if err != nil {
			logger.Error("scenario seed failed", zap.Error(err))
			return
		}
		if wrote {
			logger.Info("wrote default scenario", zap.String("path", cfg.ScenarioFile))
		}
	}

	// 8. Load Scenario
	scn, err := config.LoadScenario(cfg.ScenarioFile)
	if err != nil {
		logger.Error("scenario load failed", zap.Error(err))
		return
	}

	// 9. Build Signaling Transport
	transport := bootstrap.BuildSignalingTransport(cfg, *listen, logger.Lg)

	// 10. Build WebRTC Media Provider
	provider, err := rtc.NewProvider(rtc.OptionWithSTUN(cfg.STUNServers), signaling.RoleInitiator, logger.Lg)
	if err != nil {
		logger.Error("media provider setup failed", zap.Error(err))
		return
	}

	// 11. Build Sender Session
	mtr := metrics.New()
	sim := simulator.New(scn, cfg.FrameRate, logger.Lg)
	sender, err := session.NewSender(session.SenderConfig{
		Transport:           transport,
		Negotiator:          provider,
		Media:               provider,
		Simulator:           sim,
		SkipPostNegotiation: cfg.SkipPostNegotiation,
		Metrics:             mtr,
		Log:                 logger.Lg,
	})
	if err != nil {
		logger.Error("sender setup failed", zap.Error(err))
		return
	}

	// 12. Debug HTTP Server
	if cfg.HTTPAddr != "" {
		srv := web.New(web.Config{
			Addr:    cfg.HTTPAddr,
			Sender:  sender,
			Metrics: mtr,
			Log:     logger.Lg,
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

	if err := sender.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("sender exited with error", zap.Error(err))
		return
	}
	sent, dropped := sender.Stats()
	logger.Info("sender finished", zap.Int64("frames_sent", sent), zap.Int64("frames_dropped", dropped))
}

func applyOverrides(cfg *config.Config, addr, scheme, scenario, httpAddr string) {
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
	if httpAddr != "" {
		cfg.HTTPAddr = httpAddr
	}
}
