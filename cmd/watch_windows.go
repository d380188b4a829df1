//go:build windows

package cmd

import (
	"os"
	"os/exec"
)

// setDaemonAttrs is a no-op on Windows (no Setsid equivalent).
func setDaemonAttrs(_ *exec.Cmd) {}

// shutdownSignals returns the OS signals that end a foreground watch.
func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}
