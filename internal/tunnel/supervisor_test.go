package tunnel

import (
	"errors"
	"sync"
	"testing"
	"time"

	"tether/internal/logging"
)

type fakeProcess struct {
	mu      sync.Mutex
	exited  bool
	exitErr error
	killed  bool
}

func (p *fakeProcess) Poll() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited, p.exitErr
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killed = true
	p.exited = true
	return nil
}

func (p *fakeProcess) wasKilled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

type fakeLauncher struct {
	mu     sync.Mutex
	spawns int
	next   func(spawn int) (Process, error)
}

func (l *fakeLauncher) launch() (Process, error) {
	l.mu.Lock()
	l.spawns++
	spawn := l.spawns
	next := l.next
	l.mu.Unlock()
	return next(spawn)
}

func (l *fakeLauncher) spawnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spawns
}

func newTestSupervisor(t *testing.T, launch LaunchFunc) *Supervisor {
	t.Helper()
	sup, err := New(Options{
		Launch:       launch,
		Grace:        time.Millisecond,
		PollInterval: time.Millisecond,
		Logger:       logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return sup
}

func waitForState(t *testing.T, sup *Supervisor, want State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if sup.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state = %v, want %v", sup.State(), want)
}

func TestNewRequiresHostWithoutLauncher(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("New accepted empty options")
	}
}

func TestSupervisorGivesUpAfterConsecutiveProcessFailures(t *testing.T) {
	launcher := &fakeLauncher{next: func(int) (Process, error) {
		return &fakeProcess{exited: true, exitErr: errors.New("exit status 255")}, nil
	}}
	sup := newTestSupervisor(t, launcher.launch)

	sup.Start()
	waitForState(t, sup, StateStopped)

	if got := launcher.spawnCount(); got != 6 {
		t.Fatalf("spawn count = %d, want 6", got)
	}
	if !errors.Is(sup.Err(), ErrRetryExhausted) {
		t.Fatalf("Err = %v, want ErrRetryExhausted", sup.Err())
	}
	sup.Stop()
}

func TestSupervisorGivesUpAfterConsecutiveSpawnFailures(t *testing.T) {
	launcher := &fakeLauncher{next: func(int) (Process, error) {
		return nil, ErrSpawn
	}}
	sup := newTestSupervisor(t, launcher.launch)

	sup.Start()
	waitForState(t, sup, StateStopped)

	if got := launcher.spawnCount(); got != 6 {
		t.Fatalf("spawn count = %d, want 6", got)
	}
	if !errors.Is(sup.Err(), ErrRetryExhausted) {
		t.Fatalf("Err = %v, want ErrRetryExhausted", sup.Err())
	}
	sup.Stop()
}

func TestSupervisorRespawnsAfterCleanExit(t *testing.T) {
	stable := &fakeProcess{}
	launcher := &fakeLauncher{next: func(spawn int) (Process, error) {
		if spawn == 1 {
			return &fakeProcess{exited: true}, nil
		}
		return stable, nil
	}}
	sup := newTestSupervisor(t, launcher.launch)

	sup.Start()

	// A second spawn happens and the clean exit is not held against the
	// failure budget.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if launcher.spawnCount() >= 2 && sup.State() == StateRunning {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if got := launcher.spawnCount(); got < 2 {
		t.Fatalf("spawn count = %d, want at least 2", got)
	}
	if err := sup.Err(); err != nil {
		t.Fatalf("Err = %v, want nil", err)
	}

	sup.Stop()
	if !stable.wasKilled() {
		t.Fatal("live process survived Stop")
	}
}

func TestSupervisorFailureCountResetsWhileRunning(t *testing.T) {
	// Alternate failed exits with a healthy process: the budget must never
	// accumulate across a successful run.
	var mu sync.Mutex
	var healthy *fakeProcess
	launcher := &fakeLauncher{next: func(spawn int) (Process, error) {
		if spawn%2 == 1 {
			return &fakeProcess{exited: true, exitErr: errors.New("exit status 1")}, nil
		}
		p := &fakeProcess{}
		mu.Lock()
		healthy = p
		mu.Unlock()
		return p, nil
	}}
	sup := newTestSupervisor(t, launcher.launch)

	sup.Start()
	waitForState(t, sup, StateRunning)

	// Let the healthy process run a few polls, then fail it. The budget
	// was reset while it ran, so the next failed exit is failure one, not
	// failure two.
	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	p := healthy
	mu.Unlock()
	p.mu.Lock()
	p.exited = true
	p.exitErr = errors.New("exit status 1")
	p.mu.Unlock()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if launcher.spawnCount() >= 4 && sup.State() == StateRunning {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if err := sup.Err(); err != nil {
		t.Fatalf("Err = %v, want nil", err)
	}
	sup.Stop()
}

func TestSupervisorStopKillsLiveProcess(t *testing.T) {
	proc := &fakeProcess{}
	launcher := &fakeLauncher{next: func(int) (Process, error) {
		return proc, nil
	}}
	sup := newTestSupervisor(t, launcher.launch)

	sup.Start()
	waitForState(t, sup, StateRunning)

	sup.Stop()
	if sup.State() != StateStopped {
		t.Fatalf("state after Stop = %v, want %v", sup.State(), StateStopped)
	}
	if !proc.wasKilled() {
		t.Fatal("process survived Stop")
	}
}

func TestSupervisorStopBeforeStart(t *testing.T) {
	launcher := &fakeLauncher{next: func(int) (Process, error) {
		t.Fatal("launch must not run")
		return nil, nil
	}}
	sup := newTestSupervisor(t, launcher.launch)

	sup.Stop()
	if sup.State() != StateStopped {
		t.Fatalf("state = %v, want %v", sup.State(), StateStopped)
	}
}

func TestSupervisorStartIsIdempotent(t *testing.T) {
	proc := &fakeProcess{}
	launcher := &fakeLauncher{next: func(int) (Process, error) {
		return proc, nil
	}}
	sup := newTestSupervisor(t, launcher.launch)

	sup.Start()
	sup.Start()
	waitForState(t, sup, StateRunning)

	if got := launcher.spawnCount(); got != 1 {
		t.Fatalf("spawn count = %d, want 1", got)
	}
	sup.Stop()
}
