// Package health serves the liveness and readiness endpoints used by hosted
// deployments.
package health

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/m3rciful/instarepost/core/buildinfo"
	"github.com/m3rciful/instarepost/core/logger"
)

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

// Options configures the health server.
type Options struct {
	Listen string
	Port   int
	// Checks run on /ready, keyed by name.
	Checks map[string]Check
	// Stats adds extra fields to /health, e.g. active dialogs.
	Stats func() map[string]any
}

// Server is a small gin HTTP server with /health and /ready.
type Server struct {
	opts    Options
	started time.Time
	engine  *gin.Engine
	srv     *http.Server
}

// NewServer builds the router; call Start to listen.
func NewServer(opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{opts: opts, started: time.Now()}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/", s.health)
	r.HEAD("/", s.health)
	r.GET("/health", s.health)
	r.GET("/ready", s.ready)
	s.engine = r
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) health(c *gin.Context) {
	body := gin.H{
		"status":  "ok",
		"version": buildinfo.Version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	}
	if s.opts.Stats != nil {
		for k, v := range s.opts.Stats() {
			body[k] = v
		}
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	results := gin.H{}
	for name, check := range s.opts.Checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}
	state := "ok"
	if status != http.StatusOK {
		state = "fail"
	}
	c.JSON(status, gin.H{"status": state, "checks": results})
}

// Start listens in the background until ctx is done or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.opts.Listen, strconv.Itoa(s.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.srv = &http.Server{Handler: s.engine, ReadHeaderTimeout: 5 * time.Second}

	logger.Health.Info("health server listening",
		slog.String("event", "health.listen"),
		slog.String("addr", ln.Addr().String()),
	)
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Health.Error("health server stopped",
				slog.String("event", "health.serve"),
				slog.String("err", err.Error()),
			)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
