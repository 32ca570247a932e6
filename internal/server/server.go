package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ogctl/ogctl/internal/controller"
	"github.com/ogctl/ogctl/internal/logging"
	"github.com/ogctl/ogctl/internal/poller"
)

const (
	// DefaultListen is the default bridge address.
	DefaultListen = "127.0.0.1:8470"

	shutdownTimeout = 10 * time.Second
)

// Controller is the part of controller.Client the bridge uses.
type Controller interface {
	GetVars(ctx context.Context) (*controller.Vars, error)
	GetOptions(ctx context.Context) (*controller.Options, error)
	ChangeOptions(ctx context.Context, params *controller.Params) (controller.Outcome, error)
	GetLog(ctx context.Context) (*controller.LogData, error)
	ClearLog(ctx context.Context) (controller.Outcome, error)
	Send(ctx context.Context, cmd controller.Command) (controller.Outcome, error)
	Toggle(ctx context.Context) (controller.Command, controller.Outcome, error)
}

// Config holds the bridge configuration
type Config struct {
	Listen       string
	PollInterval time.Duration
	CertPath     string // TLS is enabled when both paths are set
	KeyPath      string
	RecordPath   string // JSONL file receiving every status update (empty = disabled)
	ReadOnly     bool   // reject commands and option changes
}

// Server bridges one controller to local HTTP and WebSocket clients.
type Server struct {
	config *Config
	ctl    Controller
	hub    *Hub
	router http.Handler

	mu     sync.RWMutex
	latest *Snapshot

	httpServer *http.Server
	listener   net.Listener
}

// New creates a bridge for ctl.
func New(config *Config, ctl Controller) (*Server, error) {
	if ctl == nil {
		return nil, errors.New("server: controller is required")
	}
	if config.Listen == "" {
		config.Listen = DefaultListen
	}
	if config.PollInterval <= 0 {
		config.PollInterval = poller.DefaultInterval
	}

	s := &Server{
		config: config,
		ctl:    ctl,
		hub:    NewHub(),
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler serving the REST API and /ws.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the websocket client hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start listens on the configured address, polls the controller and blocks
// until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Listen, err)
	}

	if s.config.CertPath != "" && s.config.KeyPath != "" {
		tlsConfig, err := NewTLSConfig(s.config.CertPath, s.config.KeyPath)
		if err != nil {
			_ = listener.Close()
			return err
		}
		logging.Info("TLS enabled", zap.Any("tls_info", GetTLSInfo(tlsConfig)))
		listener = tls.NewListener(listener, tlsConfig)
	}
	return s.Serve(ctx, listener)
}

// Serve runs the bridge on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	pollCtx, stopPolling := context.WithCancel(ctx)
	defer stopPolling()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = poller.New(s.ctl.GetVars, s.config.PollInterval).Run(pollCtx, s.publish)
	}()

	logging.Info("Bridge listening",
		zap.String("addr", listener.Addr().String()),
		zap.Duration("poll_interval", s.config.PollInterval),
		zap.Bool("read_only", s.config.ReadOnly),
	)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.httpServer.Serve(listener)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logging.Info("Shutdown requested, stopping bridge...")
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}

	stopPolling()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	wg.Wait()
	return serveErr
}

// Shutdown stops accepting requests and closes every websocket client.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.CloseAll()
	defer logging.Sync()
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		logging.Warn("Shutdown timeout, forcing close", zap.Error(err))
		return s.httpServer.Close()
	}
	logging.Info("All connections closed gracefully")
	return nil
}

// Addr returns the listener address once serving.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// GetActiveConnections returns the number of connected websocket clients
func (s *Server) GetActiveConnections() int {
	return s.hub.Count()
}

// Latest returns the most recent status snapshot, or nil before the first poll.
func (s *Server) Latest() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// publish stores a poll result and fans it out. Updates arrive in completion
// order, so the last one delivered wins.
func (s *Server) publish(u poller.Update) {
	snap := newSnapshot(u)

	s.mu.Lock()
	if u.Err != nil && s.latest != nil {
		// Keep the last good state visible alongside the error.
		snap.Vars = s.latest.Vars
	}
	s.latest = snap
	s.mu.Unlock()

	if s.config.RecordPath != "" {
		RecordSnapshot(s.config.RecordPath, snap)
	}
	s.hub.Broadcast(snap)
}
