package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chromatrack/chromatrack/pkg/config"
	"github.com/chromatrack/chromatrack/pkg/logger"
	"github.com/chromatrack/chromatrack/pkg/media"
	"github.com/chromatrack/chromatrack/pkg/session"
	"github.com/chromatrack/chromatrack/pkg/signaling"
	"github.com/chromatrack/chromatrack/pkg/simulator"
)

// Runs both peers of a tracking session in one process: real TCP signaling
// over localhost, in-memory media, a few seconds of streaming, then the
// scored tracking reports.

const signalingAddr = "127.0.0.1:19707"

// localNegotiator stands in for the WebRTC provider. The in-memory media
// pair is connected from the start, so negotiation only has to agree.
type localNegotiator struct{}

func (localNegotiator) CreateOffer(ctx context.Context) (string, error) { return "loopback-offer", nil }

func (localNegotiator) CreateAnswer(ctx context.Context) (string, error) {
	return "loopback-answer", nil
}

func (localNegotiator) SetRemoteDescription(ctx context.Context, kind signaling.DescriptionKind, payload string) error {
	return nil
}
func (localNegotiator) AddCandidate(ctx context.Context, c signaling.IceCandidate) error { return nil }
func (localNegotiator) LocalCandidates() <-chan signaling.IceCandidate                   { return nil }

func main() {
	logger.Init(&logger.LogConfig{Level: "warn"}, "development")

	scn := config.DefaultScenario()
	sim := simulator.New(scn, 30, logger.Lg)
	senderMedia, receiverMedia := media.NewLoopbackPair(16)

	sender, err := session.NewSender(session.SenderConfig{
		Transport:  signaling.NewTCPListener(signalingAddr, logger.Lg),
		Negotiator: localNegotiator{},
		Media:      senderMedia,
		Simulator:  sim,
		Log:        logger.Lg,
	})
	if err != nil {
		logger.Error("sender setup failed", zap.Error(err))
		return
	}

	receiver, err := session.NewReceiver(session.ReceiverConfig{
		Transport:        signaling.NewTCPDialer(signalingAddr, logger.Lg),
		Negotiator:       localNegotiator{},
		Media:            receiverMedia,
		Band:             scn.Band,
		FeedbackInterval: 100 * time.Millisecond,
		Log:              logger.Lg,
	})
	if err != nil {
		logger.Error("receiver setup failed", zap.Error(err))
		return
	}

	ctx := context.Background()
	receiverDone := make(chan error, 1)
	senderDone := make(chan error, 1)
	go func() { senderDone <- sender.Run(ctx) }()
	time.Sleep(200 * time.Millisecond) // let the listener come up
	go func() { receiverDone <- receiver.Run(ctx) }()

	time.Sleep(5 * time.Second)
	sender.Close()
	<-senderDone
	<-receiverDone

	sent, dropped := sender.Stats()
	received, _, fedBack := receiver.Pipeline().Stats()
	fmt.Printf("frames: sent=%d dropped=%d received=%d feedback=%d\n", sent, dropped, received, fedBack)

	for _, r := range sender.Feedback().RecentReports() {
		fmt.Printf("#%-3d estimate=(%.0f, %.0f) truth=(%.1f, %.1f) error=%.2fpx\n",
			r.Sequence, r.EstimateX, r.EstimateY, r.TruthX, r.TruthY, r.Error)
	}
}
