package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/telekom/nekomail/pkg/config"
	"github.com/telekom/nekomail/pkg/metrics"
	"github.com/telekom/nekomail/pkg/ratelimit"
	"github.com/telekom/nekomail/pkg/version"
)

// shutdownTimeout bounds how long in-flight requests may take after Listen's
// context is cancelled.
const shutdownTimeout = 15 * time.Second

type APIController interface {
	BasePath() string
	Register(rg *gin.RouterGroup) error
	Handlers() []gin.HandlerFunc
}

type Server struct {
	gin    *gin.Engine
	config config.Config
	log    *zap.SugaredLogger

	// ipRateLimiter protects every route from request floods
	ipRateLimiter *ratelimit.BucketLimiter
}

func NewServer(log *zap.Logger, cfg config.Config, debug bool) *Server {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		ginzap.Ginzap(log, time.RFC3339, true),
		ginzap.RecoveryWithZap(log, true),
	)

	if len(cfg.Server.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
			log.Sugar().Warnw("Invalid trusted proxies, forwarding headers are ignored", "error", err)
			_ = engine.SetTrustedProxies(nil)
		}
	} else {
		_ = engine.SetTrustedProxies(nil)
	}

	ipLimiter := ratelimit.NewBucketLimiter(ratelimit.DefaultBucketConfig())
	engine.Use(
		securityHeaders(debug),
		requestLogger(log.Sugar()),
		ipLimiter.Middleware("/healthz", "/metrics", "/favicon.ico"),
		ServeAssets("/"),
	)

	if debug {
		engine.Use(
			cors.New(cors.Config{
				AllowOrigins: []string{"http://localhost:5173", "http://127.0.0.1:8080"},
				AllowMethods: []string{"GET", "POST", "OPTIONS"},
				AllowHeaders: []string{"Origin", "Content-Type", RequestIDHeader},
				MaxAge:       12 * time.Hour,
			}),
		)
	}

	s := &Server{
		gin:           engine,
		config:        cfg,
		log:           log.Sugar(),
		ipRateLimiter: ipLimiter,
	}

	engine.GET("/", s.getInfo)
	engine.GET("/healthz", s.getHealth)
	engine.GET("/version", s.getVersion)
	engine.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Not found"})
	})

	return s
}

func (s *Server) RegisterAll(controllers []APIController) error {
	for _, c := range controllers {
		if err := c.Register(s.gin.Group(c.BasePath(), c.Handlers()...)); err != nil {
			return err
		}
	}
	return nil
}

// Handler returns the engine for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.gin
}

// Listen serves until ctx is cancelled and then shuts down gracefully.
// TLS is used when both certificate and key are configured.
func (s *Server) Listen(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Server.ListenAddress,
		Handler:           s.gin,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// slowdown (up to 3s) plus the 10s delivery deadline must fit
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.config.Server.TLSCertFile != "" && s.config.Server.TLSKeyFile != "" {
			s.log.Infow("Listening with TLS", "address", srv.Addr)
			err = srv.ListenAndServeTLS(s.config.Server.TLSCertFile, s.config.Server.TLSKeyFile)
		} else {
			s.log.Infow("Listening", "address", srv.Addr)
			err = srv.ListenAndServe()
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// Close stops the background goroutines owned by the server.
func (s *Server) Close() {
	if s.ipRateLimiter != nil {
		s.ipRateLimiter.Stop()
	}
}

// EndpointInfo describes the send endpoint on the index route.
type EndpointInfo struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
	Note        string `json:"note"`
}

// InfoResponse is returned by GET /.
type InfoResponse struct {
	Message  string       `json:"message"`
	Endpoint EndpointInfo `json:"endpoint"`
}

func (s *Server) getInfo(c *gin.Context) {
	c.JSON(http.StatusOK, InfoResponse{
		Message: "Nekomailer API",
		Endpoint: EndpointInfo{
			Method:      http.MethodPost,
			Path:        SendPath,
			Description: "Send an email with a subject, message and optional template (default, announcement, registration)",
			Note:        "Limited to 15 requests per 15 minutes per IP; requests after the 5th are slowed down",
		},
	})
}

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getVersion(c *gin.Context) {
	c.JSON(http.StatusOK, version.GetBuildInfo())
}
