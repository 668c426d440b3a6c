package ollama

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultStopGrace = 2 * time.Second
	stderrTailBytes  = 4096
)

// ProcessConfig describes the background runtime process.
type ProcessConfig struct {
	Bin       string
	Args      []string
	Env       []string
	Stdout    io.Writer
	Stderr    io.Writer
	StopGrace time.Duration
}

// Process is a started runtime child. Exited is closed once it terminates.
type Process struct {
	cmd   *exec.Cmd
	grace time.Duration
	log   zerolog.Logger
	tail  *tailBuffer

	done    chan struct{}
	mu      sync.Mutex
	waitErr error
}

// Serve returns the default config for `<bin> serve` with stdio inherited.
func Serve(bin string) ProcessConfig {
	if bin == "" {
		bin = "ollama"
	}
	return ProcessConfig{Bin: bin, Args: []string{"serve"}, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Start launches the process and a watcher that records its exit.
func Start(cfg ProcessConfig, log zerolog.Logger) (*Process, error) {
	if cfg.Bin == "" {
		return nil, errors.New("runtime binary is empty")
	}
	cmd := exec.Command(cfg.Bin, cfg.Args...)
	if len(cfg.Env) > 0 {
		cmd.Env = cfg.Env
	}
	tail := &tailBuffer{max: stderrTailBytes}
	cmd.Stdout = cfg.Stdout
	if cfg.Stderr != nil {
		cmd.Stderr = io.MultiWriter(cfg.Stderr, tail)
	} else {
		cmd.Stderr = tail
	}
	grace := cfg.StopGrace
	if grace <= 0 {
		grace = defaultStopGrace
	}
	// Grandchildren may hold the stderr pipe open after the runtime dies.
	cmd.WaitDelay = grace
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cfg.Bin, err)
	}
	p := &Process{cmd: cmd, grace: grace, log: log, tail: tail, done: make(chan struct{})}
	log.Info().Str("bin", cfg.Bin).Strs("args", cfg.Args).Int("pid", cmd.Process.Pid).Msg("runtime started")
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.waitErr = err
		p.mu.Unlock()
		close(p.done)
	}()
	return p, nil
}

func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Exited is closed when the process has terminated.
func (p *Process) Exited() <-chan struct{} { return p.done }

// Err returns the wait error once the process has exited.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}

// StderrTail returns the last bytes the process wrote to stderr.
func (p *Process) StderrTail() string { return p.tail.String() }

// Stop sends SIGTERM, then kills the process after the grace period.
func (p *Process) Stop() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	_ = p.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-p.done:
		p.log.Info().Int("pid", p.Pid()).Msg("runtime stopped")
	case <-time.After(p.grace):
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("kill pid %d: %w", p.Pid(), err)
		}
		<-p.done
		p.log.Warn().Int("pid", p.Pid()).Dur("grace", p.grace).Msg("runtime killed after grace period")
	}
	return nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, b...)
	if len(t.buf) > t.max {
		t.buf = append([]byte(nil), t.buf[len(t.buf)-t.max:]...)
	}
	return len(b), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
