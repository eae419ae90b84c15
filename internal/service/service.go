package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dcr-tools/dcr/internal/config"
	"github.com/dcr-tools/dcr/internal/health"
	"github.com/dcr-tools/dcr/internal/metrics"
	"github.com/dcr-tools/dcr/internal/server"
	"github.com/dcr-tools/dcr/internal/util"
)

var ErrNotInitialized = errors.New("service not initialized - call Initialize() first")

// Service is the root lifecycle owner for dcr
type Service struct {
	cfg config.Config

	// Lifecycle state
	started         chan struct{}
	stopped         chan struct{}
	shutdown        chan struct{}
	shutdownStarted atomic.Bool

	listener   net.Listener
	httpServer *fasthttp.Server
	health     *health.State

	logger *zap.Logger
}

// New creates a new Service with the given configuration
func New(cfg config.Config, baseLogger *zap.Logger) *Service {
	return &Service{
		cfg:      cfg,
		started:  make(chan struct{}),
		stopped:  make(chan struct{}),
		shutdown: make(chan struct{}),
		logger:   baseLogger.Named("service"),
	}
}

// UseListener makes the service accept connections on ln instead of binding
// cfg.Addr(). Must be called before Initialize.
func (s *Service) UseListener(ln net.Listener) {
	s.listener = ln
}

// Initialize sets up the service components (idempotent)
func (s *Service) Initialize(ctx context.Context) error {
	if s.httpServer != nil {
		return nil
	}
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	log := s.logger.Sugar()
	log.Info("initializing HTTP server")

	hs := health.New(s.cfg.Healthcheck, s.logger)
	h, err := server.NewHandler(s.cfg, hs, metrics.New(hs.Healthy), s.logger)
	if err != nil {
		return fmt.Errorf("failed to create server handler: %w", err)
	}

	if s.listener == nil {
		var lc net.ListenConfig
		ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr())
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr(), err)
		}
		s.listener = ln
	}

	s.health = hs
	s.httpServer = server.NewServer(s.cfg, h, s.logger)
	return nil
}

// Addr returns the address the service accepts connections on, or nil
// before Initialize.
func (s *Service) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run starts the service and blocks until shutdown
func (s *Service) Run(ctx context.Context) error {
	log := s.logger.Sugar()

	select {
	case <-s.started:
		log.Errorw("service already started")
		return nil
	default:
	}

	if s.httpServer == nil {
		return ErrNotInitialized
	}

	log.Infow("starting service",
		"addr", s.listener.Addr().String(),
		"base_path", s.cfg.BasePath,
		"version", util.Version()+s.cfg.Stamp,
		"healthcheck", s.health.String(),
		"logger_endpoint", s.cfg.Logger,
	)

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		log.Info("starting HTTP server")
		if err := s.httpServer.Serve(s.listener); err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		select {
		case <-s.shutdown:
			log.Infow("initiating graceful shutdown", "timeout", s.cfg.ShutdownTimeout)
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
			defer cancel()
			if err := s.httpServer.ShutdownWithContext(sctx); err != nil {
				log.Warnw("in-flight requests abandoned", "error", err)
			}
			return nil
		case <-egCtx.Done():
			log.Info("context canceled, forcing immediate shutdown")
			if s.shutdownStarted.CompareAndSwap(false, true) {
				close(s.shutdown)
			}
			// Context canceled = immediate hard shutdown, no grace period
			hard, cancel := context.WithCancel(context.Background())
			cancel()
			if err := s.httpServer.ShutdownWithContext(hard); err != nil && !errors.Is(err, context.Canceled) {
				log.Errorw("failed to close HTTP server", "error", err)
			}
			return egCtx.Err()
		}
	})

	eg.Go(func() error {
		return s.handleSignals(egCtx)
	})

	close(s.started)

	err := eg.Wait()

	s.stop()

	return err
}

// Shutdown initiates graceful shutdown of the service (non-blocking)
func (s *Service) Shutdown() {
	log := s.logger.Sugar()
	log.Info("shutdown requested")

	// Use atomic CAS to ensure only one shutdown
	if !s.shutdownStarted.CompareAndSwap(false, true) {
		log.Debug("already shutting down")
		return
	}

	close(s.shutdown)
}

// stop performs final cleanup after shutdown
func (s *Service) stop() {
	log := s.logger.Sugar()
	log.Info("stopping service")

	select {
	case <-s.stopped:
		log.Debug("service already stopped")
	default:
		close(s.stopped)
	}
}

// IsStarted returns true if the service has been started
func (s *Service) IsStarted() bool {
	select {
	case <-s.started:
		return true
	default:
		return false
	}
}

// IsStopped returns true if the service has been stopped
func (s *Service) IsStopped() bool {
	select {
	case <-s.stopped:
		return true
	default:
		return false
	}
}

// IsRunning returns true if the service is running (started but not stopped)
func (s *Service) IsRunning() bool {
	return s.IsStarted() && !s.IsStopped()
}

// handleSignals turns SIGINT and SIGTERM into a graceful shutdown
func (s *Service) handleSignals(ctx context.Context) error {
	log := s.logger.Sugar()
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(ch)

	select {
	case <-s.shutdown:
		return nil
	case <-ctx.Done():
		return nil
	case sig := <-ch:
		log.Infow("received signal, starting graceful shutdown", "signal", sig.String())
		s.Shutdown()
		return nil
	}
}
