package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chromatrack/chromatrack/pkg/metrics"
	"github.com/chromatrack/chromatrack/pkg/session"
)

// Config selects what the debug server exposes. Exactly one of Sender or
// Receiver is usually set; the other side's routes answer 404.
type Config struct {
	Addr     string
	Sender   *session.Sender
	Receiver *session.Receiver
	Metrics  *metrics.Metrics
	// Gatherer overrides the default registry on /metrics, mainly for tests
	Gatherer prometheus.Gatherer
	Log      *zap.Logger
}

// Server exposes health, Prometheus metrics, and session introspection
// over HTTP while a streaming session runs.
type Server struct {
	router   *gin.Engine
	srv      *http.Server
	sender   *session.Sender
	receiver *session.Receiver
	log      *zap.Logger
	started  time.Time
}

func New(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false

	s := &Server{
		router:   router,
		sender:   cfg.Sender,
		receiver: cfg.Receiver,
		log:      log,
		started:  time.Now(),
	}

	if cfg.Metrics != nil {
		router.Use(requestMetrics(cfg.Metrics))
	}

	gatherer := cfg.Gatherer
	s.setupRoutes(gatherer)

	s.srv = &http.Server{
		Addr:           cfg.Addr,
		Handler:        router,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	return s
}

func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	s.router.GET("/healthz", s.handleHealth)

	if gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	} else {
		s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := s.router.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/reports", s.handleReports)
		api.GET("/estimate", s.handleEstimate)
	}
}

// requestMetrics records method, route, status, and latency for every request
func requestMetrics(mtr *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		mtr.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start).Seconds())
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	switch {
	case s.sender != nil:
		sent, dropped := s.sender.Stats()
		accepted, rejected := s.sender.Feedback().Stats()
		c.JSON(http.StatusOK, gin.H{
			"session_id":        s.sender.ID(),
			"role":              "sender",
			"signaling_state":   s.sender.State().String(),
			"frames_sent":       sent,
			"frames_dropped":    dropped,
			"feedback_accepted": accepted,
			"feedback_rejected": rejected,
		})
	case s.receiver != nil:
		received, dropped, fedBack := s.receiver.Pipeline().Stats()
		processed, missed := s.receiver.Pipeline().EstimatorStats()
		x, y, ok := s.receiver.Pipeline().Estimate()
		payload := gin.H{
			"session_id":      s.receiver.ID(),
			"role":            "receiver",
			"signaling_state": s.receiver.State().String(),
			"frames_received": received,
			"frames_dropped":  dropped,
			"frames_fed_back": fedBack,
			"frames_analyzed": processed,
			"analysis_misses": missed,
		}
		if ok {
			payload["estimate"] = gin.H{"x": x, "y": y}
		}
		c.JSON(http.StatusOK, payload)
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no session attached"})
	}
}

func (s *Server) handleReports(c *gin.Context) {
	if s.sender == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "tracking reports live on the sender side"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": s.sender.Feedback().RecentReports()})
}

func (s *Server) handleEstimate(c *gin.Context) {
	if s.receiver == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "estimates live on the receiver side"})
		return
	}
	x, y, ok := s.receiver.Pipeline().Estimate()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"detected": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"detected": true, "x": x, "y": y})
}

// Handler exposes the routing tree, mainly for tests
func (s *Server) Handler() http.Handler { return s.router }

// Start serves in the background until Shutdown
func (s *Server) Start() {
	go func() {
		s.log.Info("debug server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("debug server run failed", zap.Error(err))
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
