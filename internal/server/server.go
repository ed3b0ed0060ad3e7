package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/joseph-ayodele/w2-reporter/internal/async"
	"github.com/joseph-ayodele/w2-reporter/internal/common"
)

// Server owns the HTTP listener, the optional gRPC health listener and the
// processing queue, and shuts them down together.
type Server struct {
	cfg        common.ServerConfig
	httpServer *http.Server
	grpcServer *grpc.Server
	health     *health.Server
	queue      async.Queue
	logger     *slog.Logger
}

func New(cfg common.ServerConfig, version string, queue async.Queue, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	h := NewHandler(queue, cfg.MaxUploadBytes, version, logger)
	s := &Server{
		cfg: cfg,
		httpServer: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      h.Routes(),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		queue:  queue,
		logger: logger,
	}
	if cfg.GRPCAddr != "" {
		s.grpcServer, s.health = NewHealthServer()
	}
	return s
}

// Run serves until ctx is done or a listener fails, then shuts down:
// health flips to NOT_SERVING, HTTP drains, queued documents finish.
func (s *Server) Run(ctx context.Context) error {
	httpLis, err := net.Listen("tcp", s.cfg.HTTPAddr)
	if err != nil {
		return common.NewAppError("LISTEN_ERROR", "listen http on "+s.cfg.HTTPAddr, err)
	}
	var grpcLis net.Listener
	if s.grpcServer != nil {
		grpcLis, err = net.Listen("tcp", s.cfg.GRPCAddr)
		if err != nil {
			_ = httpLis.Close()
			return common.NewAppError("LISTEN_ERROR", "listen grpc on "+s.cfg.GRPCAddr, err)
		}
	}
	return s.Serve(ctx, httpLis, grpcLis)
}

// Serve is Run on existing listeners. grpcLis may be nil.
func (s *Server) Serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	errCh := make(chan error, 2)

	s.logger.Info("http listening", "addr", httpLis.Addr().String())
	go func() {
		if err := s.httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	if s.grpcServer != nil && grpcLis != nil {
		s.logger.Info("grpc health listening", "addr", grpcLis.Addr().String())
		go func() {
			if err := s.grpcServer.Serve(grpcLis); err != nil {
				errCh <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info("shutting down...")
	case runErr = <-errCh:
		s.logger.Error("listener failed", "error", runErr)
	}

	s.shutdown()
	return runErr
}

func (s *Server) shutdown() {
	if s.health != nil {
		s.health.Shutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("http shutdown", "error", err)
	}
	if s.queue != nil {
		s.queue.Shutdown(ctx)
	}
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
	s.logger.Info("stopped")
}
