package tunnel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tether/internal/logging"
)

// State is the supervisor's lifecycle position. Transitions are
// Idle → Starting → Running, Running → Starting on respawn, and any state
// → Stopping → Stopped exactly once.
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
)

// maxConsecutiveFailures bounds crash-restarts. Once more than this many
// spawns in a row end in a failed exit, the supervisor gives up
// permanently; recovering requires constructing a new one.
const maxConsecutiveFailures = 5

var (
	// ErrSpawn indicates the external ssh process could not be started.
	ErrSpawn = errors.New("tunnel process spawn failed")

	// ErrRetryExhausted indicates the consecutive-failure limit was hit
	// and the supervisor stopped restarting.
	ErrRetryExhausted = errors.New("tunnel retry limit exhausted")
)

// Options configures a Supervisor.
type Options struct {
	Host       string
	RemotePath string
	Workspace  string
	ServerPort int
	ClientPort int

	// Grace is the wait between spawning the process and the first
	// liveness poll. PollInterval bounds both crash detection and
	// shutdown latency.
	Grace        time.Duration
	PollInterval time.Duration

	// Launch overrides process spawning; nil means spawn ssh.
	Launch LaunchFunc

	Logger *slog.Logger
}

// Supervisor owns the background monitor task that keeps the ssh tunnel
// alive. Construct with New, then call Start; Stop blocks until the monitor
// has exited and no tunnel process remains.
type Supervisor struct {
	opts   Options
	launch LaunchFunc
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	started bool
	termErr error
	done    chan struct{}
}

// New builds a Supervisor in StateIdle. Nothing is spawned until Start.
func New(opts Options) (*Supervisor, error) {
	if opts.Launch == nil {
		if opts.Host == "" {
			return nil, errors.New("tunnel: host is required")
		}
		opts.Launch = sshLauncher(opts)
	}
	if opts.Grace <= 0 {
		opts.Grace = 2 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		opts:   opts,
		launch: opts.Launch,
		logger: logging.NewComponentLogger(opts.Logger, "tunnel"),
		ctx:    ctx,
		cancel: cancel,
		state:  StateIdle,
		done:   make(chan struct{}),
	}, nil
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the terminal error after the monitor has given up, nil
// otherwise. ErrRetryExhausted is the only terminal error.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.termErr
}

// Start launches the monitor goroutine. Calling Start on a supervisor
// whose monitor is already running (or finished) is a no-op.
func (s *Supervisor) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.state = StateStarting
	s.mu.Unlock()

	go s.monitor()
}

// Stop requests shutdown and blocks until the monitor goroutine has
// observed it and exited, killing any live tunnel process on the way out.
// Latency is bounded by the poll interval. Safe to call more than once.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.started {
		s.state = StateStopped
		s.mu.Unlock()
		s.cancel()
		return
	}
	if s.state != StateStopped {
		s.state = StateStopping
	}
	s.mu.Unlock()

	s.cancel()
	<-s.done
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	// Stopping is set by Stop; the monitor only finalizes to Stopped.
	if s.state == StateStopping && state != StateStopped {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.mu.Unlock()
}

func (s *Supervisor) fail(err error) {
	s.mu.Lock()
	s.termErr = err
	s.mu.Unlock()
}

// monitor is the single background task owning the tunnel process. It
// respawns clean exits indefinitely, counts consecutive failed exits
// against maxConsecutiveFailures, and exits when the supervisor context is
// canceled.
func (s *Supervisor) monitor() {
	defer func() {
		s.setState(StateStopped)
		close(s.done)
	}()

	failures := 0
	for s.ctx.Err() == nil {
		s.setState(StateStarting)
		proc, err := s.launch()
		if err != nil {
			failures++
			s.logger.Error("tunnel spawn failed",
				logging.Error(err),
				logging.Int("consecutive_failures", failures),
				logging.String(logging.FieldEventType, "tunnel_spawn_failed"))
			if failures > maxConsecutiveFailures {
				s.giveUp()
				return
			}
			if !s.sleep(s.opts.PollInterval) {
				return
			}
			continue
		}

		s.logger.Info("tunnel process spawned",
			logging.String("host", s.opts.Host),
			logging.String(logging.FieldEventType, "tunnel_spawned"))

		if !s.sleep(s.opts.Grace) {
			_ = proc.Kill()
			return
		}
		s.setState(StateRunning)

		for {
			exited, exitErr := proc.Poll()
			if exited {
				if exitErr == nil {
					// Clean exit: intentional short-lived invocation,
					// respawn without counting it as a failure.
					s.logger.Info("tunnel process exited cleanly, respawning",
						logging.String(logging.FieldEventType, "tunnel_respawn"))
					break
				}
				failures++
				s.logger.Warn("tunnel process failed",
					logging.Error(exitErr),
					logging.Int("consecutive_failures", failures),
					logging.String(logging.FieldEventType, "tunnel_process_failed"),
					logging.String(logging.FieldErrorHint, "check ssh connectivity to the configured host"))
				if failures > maxConsecutiveFailures {
					s.giveUp()
					return
				}
				break
			}

			failures = 0
			if s.ctx.Err() != nil {
				_ = proc.Kill()
				return
			}
			if !s.sleep(s.opts.PollInterval) {
				_ = proc.Kill()
				return
			}
		}
	}
}

func (s *Supervisor) giveUp() {
	err := fmt.Errorf("%w: %d consecutive failures", ErrRetryExhausted, maxConsecutiveFailures+1)
	s.fail(err)
	s.logger.Error("giving up on tunnel",
		logging.Error(err),
		logging.String(logging.FieldEventType, "tunnel_retry_exhausted"),
		logging.String(logging.FieldErrorHint, "restart the client daemon once connectivity is back"))
}

// sleep waits for d and reports false when shutdown was requested instead.
func (s *Supervisor) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
