package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"tether/internal/config"
	"tether/internal/index"
	"tether/internal/logging"
	"tether/internal/protocol"
)

// Daemon is the process-wide state of the server side: workspace root,
// server-local storage, the index store, and the listening socket. Request
// handlers mutate it only during dispatch.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *index.Store
	scanner    *index.Scanner
	dispatcher *protocol.Dispatcher[*Daemon]

	lockPath string
	lock     *flock.Flock

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New acquires the single-instance lock, binds the listening socket, and
// wires the request handlers. The daemon does not accept connections until
// Serve.
func New(ctx context.Context, cfg *config.Config, store *index.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("server daemon requires config and index store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "tetherd.lock")
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("another tetherd instance holds %s", lockPath)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", cfg.Remote.ServerPort))
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("listen: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "server"),
		store:      store,
		scanner:    index.NewScanner(cfg.Paths.Workspace, cfg.Index.Exclude, logger),
		dispatcher: protocol.NewDispatcher[*Daemon](),
		lockPath:   lockPath,
		lock:       lock,
		listener:   listener,
		ctx:        serverCtx,
		cancel:     cancel,
	}
	registerHandlers(d.dispatcher)
	return d, nil
}

// Addr returns the bound listen address.
func (d *Daemon) Addr() string {
	return d.listener.Addr().String()
}

// Workspace returns the indexed workspace root.
func (d *Daemon) Workspace() string {
	return d.cfg.Paths.Workspace
}

// Serve starts accepting connections until Close or context cancellation.
// One connection is fully handled before the next accept; there is no
// per-connection concurrency.
func (d *Daemon) Serve() {
	d.logger.Info("server listening",
		logging.String("addr", d.Addr()),
		logging.String("workspace", d.cfg.Paths.Workspace))
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			conn, err := d.listener.Accept()
			if err != nil {
				if d.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return
				}
				d.logger.Error("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "server_accept_failed"))
				return
			}
			d.handleConn(conn)
		}
	}()
}

// Close stops the accept loop and releases the instance lock.
func (d *Daemon) Close() {
	d.cancel()
	_ = d.listener.Close()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release instance lock",
			logging.String("lock", d.lockPath),
			logging.Error(err))
	}
}

// handleConn performs the read → decode → dispatch sequence for one
// connection. Errors are logged and the connection dropped; the listen
// loop is unaffected.
func (d *Daemon) handleConn(conn net.Conn) {
	defer conn.Close()

	connID := uuid.NewString()
	buf, err := protocol.ReadMessage(conn)
	if err != nil {
		d.logger.Warn("connection read failed",
			logging.String(logging.FieldConnID, connID),
			logging.Error(err))
		return
	}
	if err := d.dispatcher.Dispatch(d.ctx, buf, conn, d); err != nil {
		d.logger.Warn("dispatch failed",
			logging.String(logging.FieldConnID, connID),
			logging.Error(err),
			logging.String(logging.FieldEventType, "server_dispatch_failed"))
	}
}
