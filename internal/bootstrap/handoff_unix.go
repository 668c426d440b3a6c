//go:build unix

package bootstrap

import "syscall"

func platformExec(path string, argv []string, env []string) error {
	return syscall.Exec(path, argv, env)
}
