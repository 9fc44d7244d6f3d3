package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"trafficlens/internal/config"
	"trafficlens/internal/logging"
	"trafficlens/internal/runstore"
)

const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 15 * time.Second
	minWriteTimeout   = 30 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// ErrAlreadyRunning reports that another server holds the lock.
var ErrAlreadyRunning = errors.New("another trafficlens server is already running")

// Daemon owns the HTTP server lifecycle and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *runstore.Store
	handler http.Handler

	lockPath string
	lock     *flock.Flock

	mu       sync.Mutex
	running  atomic.Bool
	server   *http.Server
	listener net.Listener
	errCh    chan error
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool   `json:"running"`
	Address      string `json:"address,omitempty"`
	DatabasePath string `json:"databasePath"`
	LockFilePath string `json:"lockFilePath"`
}

// New constructs a daemon. store may be nil when run history is disabled.
func New(cfg *config.Config, store *runstore.Store, handler http.Handler, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || handler == nil {
		return nil, errors.New("daemon requires config and handler")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		handler:  handler,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the lock, closes out runs orphaned by a previous process,
// and begins serving on the configured bind address.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}

	if d.store != nil {
		if n, err := d.store.FailInterrupted(ctx); err != nil {
			d.logger.Warn("could not close out interrupted runs", logging.Error(err))
		} else if n > 0 {
			d.logger.Info("marked interrupted runs as failed", logging.Int64("count", n))
		}
	}

	bind := strings.TrimSpace(d.cfg.Paths.APIBind)
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("api listen: %w", err)
	}

	d.listener = listener
	d.server = &http.Server{
		Handler:           d.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout(d.cfg),
		IdleTimeout:       idleTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	d.errCh = make(chan error, 1)
	go func(srv *http.Server, errCh chan<- error) {
		err := srv.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("api server error", logging.Error(err))
			errCh <- err
		}
		close(errCh)
	}(d.server, d.errCh)

	d.running.Store(true)
	d.logger.Info("trafficlens server started",
		logging.String(logging.FieldEventType, "server_start"),
		logging.String("address", listener.Addr().String()),
		logging.String("lock", d.lockPath),
	)
	return nil
}

// Errors delivers a fatal serve error, if any, and is closed once serving
// stops.
func (d *Daemon) Errors() <-chan error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.errCh
}

// Addr returns the bound listener address, or "" when stopped.
func (d *Daemon) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listener == nil {
		return ""
	}
	return d.listener.Addr().String()
}

// Stop gracefully shuts the server down and releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.server.Shutdown(ctx); err != nil {
		d.logger.Warn("api server shutdown", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release server lock", logging.Error(err))
	}
	d.server = nil
	d.listener = nil
	d.running.Store(false)
	d.logger.Info("trafficlens server stopped", logging.String(logging.FieldEventType, "server_stop"))
}

// Close stops the server and closes the run store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status reports the daemon's runtime information.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		Address:      d.Addr(),
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
	}
}

// writeTimeout leaves room for the model call plus stage pacing.
func writeTimeout(cfg *config.Config) time.Duration {
	budget := time.Duration(cfg.Gemini.TimeoutSeconds)*time.Second +
		cfg.ExtractionDwell() + 4*cfg.StageDwell() + minWriteTimeout
	return max(budget, minWriteTimeout)
}
