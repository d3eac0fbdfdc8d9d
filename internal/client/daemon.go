package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tether/internal/config"
	"tether/internal/logging"
	"tether/internal/protocol"
)

// dialRetryInterval paces connection attempts while the tunnel is still
// coming up.
const dialRetryInterval = 200 * time.Millisecond

// fingerprintFile is the cache file holding the last observed index
// fingerprint.
const fingerprintFile = "fingerprint"

// Daemon is the process-wide state of the client side: workspace, cache
// directory, the open server connection, and the last observed index
// fingerprint.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	dispatcher *protocol.Dispatcher[*Daemon]

	server net.Conn

	// currentIndexHash has a single writer (UpdateIndexHash); atomic so
	// the push listener goroutine may read it safely.
	currentIndexHash atomic.Uint64
	fingerprintPath  string

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New prepares the client daemon: the cache directory is created and any
// persisted fingerprint from a previous run is loaded. No connection is
// made until Connect.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("client daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := os.MkdirAll(cfg.Paths.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		cfg:             cfg,
		logger:          logging.NewComponentLogger(logger, "client"),
		dispatcher:      protocol.NewDispatcher[*Daemon](),
		fingerprintPath: filepath.Join(cfg.Paths.CacheDir, fingerprintFile),
		ctx:             ctx,
		cancel:          cancel,
	}
	// No push handlers are wired yet: every recognized tag arriving on
	// the listen port reaches the dispatcher's unsupported branch.

	if fp, err := d.loadFingerprint(); err != nil {
		cancel()
		return nil, err
	} else {
		d.currentIndexHash.Store(fp)
	}
	return d, nil
}

// Connect dials addr, retrying until the context expires. The tunnel may
// still be starting when the client comes up, so refused connections are
// retried, not fatal.
func (d *Daemon) Connect(ctx context.Context, addr string) error {
	if d.server != nil {
		_ = d.server.Close()
		d.server = nil
	}
	var lastErr error
	for {
		dialer := net.Dialer{Timeout: dialRetryInterval}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			d.server = conn
			d.logger.Info("connected to server", logging.String("addr", addr))
			return nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			if lastErr == nil {
				lastErr = ctx.Err()
			}
			return fmt.Errorf("connect to server at %s: %w", addr, lastErr)
		case <-time.After(dialRetryInterval):
		}
	}
}

// ConnectTunnel dials the local entrance of the ssh tunnel.
func (d *Daemon) ConnectTunnel(ctx context.Context) error {
	return d.Connect(ctx, fmt.Sprintf("127.0.0.1:%d", d.cfg.Remote.ClientPort))
}

// Send encodes and writes one message to the open server connection. The
// write is complete when Send returns; TCP conns need no explicit flush.
func (d *Daemon) Send(msg protocol.Message) error {
	if d.server == nil {
		return errors.New("client is not connected")
	}
	buf, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	if _, err := d.server.Write(buf); err != nil {
		return fmt.Errorf("send %s: %w", msg.MessageType(), err)
	}
	return nil
}

// Receive reads one reply from the server connection and decodes it as M.
// A reply carrying a different known tag fails with ErrTypeMismatch.
func Receive[M protocol.Message](d *Daemon) (M, error) {
	var msg M
	if d.server == nil {
		return msg, errors.New("client is not connected")
	}
	buf, err := protocol.ReadMessage(d.server)
	if err != nil {
		return msg, err
	}
	return protocol.Decode[M](buf)
}

// CurrentIndexHash returns the last index fingerprint a successful reply
// confirmed.
func (d *Daemon) CurrentIndexHash() uint64 {
	return d.currentIndexHash.Load()
}

// UpdateIndexHash records hash as the current index fingerprint and
// persists it. This is the fingerprint's only writer and must be called
// strictly after a successful reply, never speculatively.
func (d *Daemon) UpdateIndexHash(hash uint64) error {
	d.currentIndexHash.Store(hash)
	return d.persistFingerprint(hash)
}

// RequestIndex performs one full index exchange: send the request with the
// last observed fingerprint, receive the reply, and only then move the
// fingerprint forward.
func (d *Daemon) RequestIndex(ctx context.Context) (protocol.IndexResponse, error) {
	prev := d.CurrentIndexHash()
	if err := d.Send(protocol.NewIndexRequest(prev, d.cfg.Paths.Workspace)); err != nil {
		return protocol.IndexResponse{}, err
	}
	resp, err := Receive[protocol.IndexResponse](d)
	if err != nil {
		return protocol.IndexResponse{}, err
	}
	if err := d.UpdateIndexHash(resp.Hash); err != nil {
		return protocol.IndexResponse{}, err
	}
	d.logger.Info("index refreshed",
		logging.Uint64("prev_hash", prev),
		logging.Uint64("hash", resp.Hash),
		logging.Int64("files", resp.FileCount),
		logging.Bool("changed", resp.Changed))
	return resp, nil
}

// ListenPush binds the listen port for server-initiated connections.
func (d *Daemon) ListenPush() error {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", d.cfg.Remote.ListenPort))
	if err != nil {
		return fmt.Errorf("listen for pushes: %w", err)
	}
	d.listener = listener
	return nil
}

// PushAddr returns the bound push listen address, empty before ListenPush.
func (d *Daemon) PushAddr() string {
	if d.listener == nil {
		return ""
	}
	return d.listener.Addr().String()
}

// ServePush accepts push connections until Close. The loop mirrors the
// server session: one connection fully handled before the next accept,
// per-connection errors logged and dropped.
func (d *Daemon) ServePush() {
	if d.listener == nil {
		return
	}
	d.logger.Info("listening for pushes", logging.String("addr", d.PushAddr()))
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			conn, err := d.listener.Accept()
			if err != nil {
				if d.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return
				}
				d.logger.Error("push accept failed", logging.Error(err))
				return
			}
			d.handlePush(conn)
		}
	}()
}

func (d *Daemon) handlePush(conn net.Conn) {
	defer conn.Close()

	connID := uuid.NewString()
	buf, err := protocol.ReadMessage(conn)
	if err != nil {
		d.logger.Warn("push read failed",
			logging.String(logging.FieldConnID, connID),
			logging.Error(err))
		return
	}
	if err := d.dispatcher.Dispatch(d.ctx, buf, conn, d); err != nil {
		d.logger.Warn("push dispatch failed",
			logging.String(logging.FieldConnID, connID),
			logging.Error(err),
			logging.String(logging.FieldEventType, "client_dispatch_failed"))
	}
}

// Close tears down the server connection and the push listener.
func (d *Daemon) Close() {
	d.cancel()
	if d.listener != nil {
		_ = d.listener.Close()
	}
	d.wg.Wait()
	if d.server != nil {
		_ = d.server.Close()
		d.server = nil
	}
}

func (d *Daemon) loadFingerprint() (uint64, error) {
	data, err := os.ReadFile(d.fingerprintPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read fingerprint cache: %w", err)
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return 0, nil
	}
	fp, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse fingerprint cache %q: %w", trimmed, err)
	}
	return fp, nil
}

// persistFingerprint writes atomically (temp file + rename) so a crashed
// write never leaves a corrupt cache.
func (d *Daemon) persistFingerprint(hash uint64) error {
	data := []byte(strconv.FormatUint(hash, 10) + "\n")
	tmpPath := d.fingerprintPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write fingerprint cache: %w", err)
	}
	if err := os.Rename(tmpPath, d.fingerprintPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace fingerprint cache: %w", err)
	}
	return nil
}
