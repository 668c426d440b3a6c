package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ExecFunc replaces the current process. It only returns on failure.
type ExecFunc func(path string, argv []string, env []string) error

// Handoff transfers control to the server command.
type Handoff struct {
	Argv []string
	Env  []string
	// Exec defaults to the platform implementation (execve on unix).
	Exec ExecFunc
}

// ParseCommand splits a command line on whitespace.
func ParseCommand(s string) []string { return strings.Fields(s) }

// DefaultCommand is the running executable with the serve subcommand.
func DefaultCommand() ([]string, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	return []string{exe, "serve"}, nil
}

// WithEnv returns environ with each key in kv set, replacing earlier values.
func WithEnv(environ []string, kv map[string]string) []string {
	out := make([]string, 0, len(environ)+len(kv))
	for _, e := range environ {
		k, _, _ := strings.Cut(e, "=")
		if _, ok := kv[k]; ok {
			continue
		}
		out = append(out, e)
	}
	for k, v := range kv {
		out = append(out, k+"="+v)
	}
	return out
}

// Run resolves the binary on PATH and execs it. On success it never returns.
func (h Handoff) Run() error {
	if len(h.Argv) == 0 {
		return errors.New("handoff: empty server command")
	}
	path, err := exec.LookPath(h.Argv[0])
	if err != nil {
		return fmt.Errorf("handoff: %w", err)
	}
	env := h.Env
	if env == nil {
		env = os.Environ()
	}
	run := h.Exec
	if run == nil {
		run = platformExec
	}
	if err := run(path, h.Argv, env); err != nil {
		return fmt.Errorf("handoff exec %s: %w", path, err)
	}
	return nil
}
