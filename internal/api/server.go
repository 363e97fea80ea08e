package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/tickerbox/internal/supervisor"
)

const (
	readTimeout  = 5 * time.Second
	writeTimeout = 5 * time.Second
	idleTimeout  = 60 * time.Second
)

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("api: server already started")

// Status is the body of GET /status.
type Status struct {
	QueueSize    int                         `json:"queue_size"`
	WatcherState string                      `json:"watcher_state"`
	Components   []supervisor.ComponentStats `json:"components"`
}

// StatusProvider reports the current pipeline status.
type StatusProvider interface {
	Status() Status
}

// Logger defines the logging interface for the API server.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures the server. Status is required.
type Options struct {
	Host   string
	Port   int
	Status StatusProvider
	Logger Logger
}

// Server is the status HTTP server.
type Server struct {
	addr   string
	status StatusProvider
	logger Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer creates a server. It does not listen until Start.
func NewServer(opts Options) *Server {
	s := &Server{
		addr:   net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		status: opts.Status,
		logger: opts.Logger,
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	return s
}

// Start binds the listen address and serves in the background. Request
// contexts derive from ctx.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return ErrAlreadyStarted
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	s.logger.Info("API server started", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down, waiting for in-flight requests until ctx ends.
// It is a no-op if the server was never started.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
