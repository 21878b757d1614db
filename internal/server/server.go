package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"chorusd/internal/config"
	"chorusd/internal/extraction"
	"chorusd/internal/ingest"
	"chorusd/internal/jobs"
	"chorusd/internal/logging"
	"chorusd/internal/storage"
)

// Extractor runs the extraction pipeline for an admitted identifier.
type Extractor interface {
	Extract(ctx context.Context, identifier string, req extraction.Request) (extraction.Result, error)
}

// Server exposes the HTTP API and owns the retention sweeper. It enforces
// single-instance execution through a lock file.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	intake    *ingest.Intake
	extractor Extractor
	store     *storage.Manager
	jobs      *jobs.Store

	lockPath string
	lock     *flock.Flock

	listener net.Listener
	server   *http.Server
	cancel   context.CancelFunc
}

// New wires a server over the given collaborators.
func New(cfg *config.Config, intake *ingest.Intake, extractor Extractor, store *storage.Manager, jobsStore *jobs.Store, logger *slog.Logger) (*Server, error) {
	if cfg == nil || intake == nil || extractor == nil || store == nil {
		return nil, errors.New("server requires config, intake, extractor, and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "chorusd.lock")
	srv := &Server{
		cfg:       cfg,
		logger:    logging.WithComponent(logger, "server"),
		intake:    intake,
		extractor: extractor,
		store:     store,
		jobs:      jobsStore,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}

	token := strings.TrimSpace(cfg.Paths.APIToken)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/extract", authMiddleware(token, srv.handleExtract))
	mux.HandleFunc("/api/download/", authMiddleware(token, srv.handleDownload))
	mux.HandleFunc("/api/cleanup/", authMiddleware(token, srv.handleCleanup))
	mux.HandleFunc("/api/jobs", authMiddleware(token, srv.handleJobs))
	mux.HandleFunc("/api/jobs/", authMiddleware(token, srv.handleJob))
	mux.HandleFunc("/api/status", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("/api/formats", authMiddleware(token, srv.handleFormats))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// LockPath returns the single-instance lock file path.
func (s *Server) LockPath() string {
	return s.lockPath
}

// Start acquires the instance lock, binds the listener, and launches the
// serve and sweeper goroutines. It returns once the server is listening.
func (s *Server) Start(ctx context.Context) error {
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another chorusd instance is already running")
	}

	listener, err := net.Listen("tcp", s.cfg.Paths.APIBind)
	if err != nil {
		_ = s.lock.Unlock()
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go s.runSweeper(runCtx)
	go func() {
		<-runCtx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Stop shuts the server down and releases the instance lock.
func (s *Server) Stop() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
	if err := s.lock.Unlock(); err != nil {
		s.logger.Warn("failed to release instance lock", logging.Error(err))
	}
}

// Addr reports the bound address, or empty before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// runSweeper periodically removes artifacts older than the retention window
// and prunes their job records.
func (s *Server) runSweeper(ctx context.Context) {
	interval := time.Duration(s.cfg.Retention.SweepIntervalMins) * time.Minute
	maxAge := time.Duration(s.cfg.Retention.ArtifactHours) * time.Hour
	// artifact_hours 0 disables retention entirely.
	if interval <= 0 || maxAge <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx, maxAge)
		}
	}
}

func (s *Server) sweep(ctx context.Context, maxAge time.Duration) {
	for _, scope := range storage.Scopes() {
		result := storage.CleanStale(ctx, s.store.Dir(scope), maxAge, s.logger)
		if len(result.Removed) > 0 {
			s.logger.Info("retention sweep",
				logging.String(logging.FieldScope, string(scope)),
				logging.Int("removed", len(result.Removed)),
			)
		}
	}
	if s.jobs != nil {
		if removed, err := s.jobs.DeleteOlderThan(ctx, time.Now().Add(-maxAge)); err != nil {
			s.logger.Warn("job record sweep failed", logging.Error(err))
		} else if removed > 0 {
			s.logger.Info("job record sweep", logging.Int64("removed", removed))
		}
	}
}
