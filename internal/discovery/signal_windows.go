//go:build windows

package discovery

import "syscall"

func parseSyscallSignal(name string) syscall.Signal {
	return syscall.SIGTERM
}
