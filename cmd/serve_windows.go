//go:build windows

package cmd

import (
	"os"
	"os/exec"
	"syscall"
)

// setDaemonAttrs is a no-op; there is no session to detach from.
func setDaemonAttrs(_ *exec.Cmd) {}

// shutdownSignals are the signals that trigger a graceful server shutdown.
func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// Only SIGKILL is delivered reliably; stop falls back to it after the timeout.
func sigTERM() syscall.Signal { return syscall.SIGTERM }

func sigKILL() syscall.Signal { return syscall.SIGKILL }
