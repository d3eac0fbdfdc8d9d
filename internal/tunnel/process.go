package tunnel

import (
	"fmt"
	"os/exec"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Process is the liveness surface of one spawned tunnel process. Poll
// reports whether the process has exited and, if so, whether it failed.
// Implementations are owned exclusively by the monitor goroutine.
type Process interface {
	Poll() (exited bool, err error)
	Kill() error
}

// LaunchFunc spawns one tunnel process. Supervisor tests inject fakes here;
// production uses the ssh launcher below.
type LaunchFunc func() (Process, error)

// sshLauncher returns a LaunchFunc spawning `ssh` with the forward and
// remote command derived from opts.
func sshLauncher(opts Options) LaunchFunc {
	return func() (Process, error) {
		cmd := exec.Command("ssh", sshArgs(opts)...)
		// Own process group so Kill reaps ssh and anything it forked.
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
		}
		p := &osProcess{cmd: cmd, done: make(chan struct{})}
		go func() {
			p.err = cmd.Wait()
			close(p.done)
		}()
		return p, nil
	}
}

type osProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error

	killOnce sync.Once
	killErr  error
}

func (p *osProcess) Poll() (bool, error) {
	select {
	case <-p.done:
		return true, p.err
	default:
		return false, nil
	}
}

func (p *osProcess) Kill() error {
	p.killOnce.Do(func() {
		p.killErr = unix.Kill(-p.cmd.Process.Pid, unix.SIGKILL)
		<-p.done
	})
	return p.killErr
}
