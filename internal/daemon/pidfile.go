// Package daemon keeps a single progress watcher process per client.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// PIDFile records which process is currently watching a session.
type PIDFile struct {
	Path string
}

// NewPIDFile creates a PIDFile manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Write writes the current process's PID to the file.
func (p *PIDFile) Write() error {
	return p.WritePID(os.Getpid())
}

// WritePID writes the given PID to the file.
func (p *PIDFile) WritePID(pid int) error {
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("create PID directory: %w", err)
	}
	return os.WriteFile(p.Path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// Read reads the PID from the file.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}
	return pid, nil
}

// Remove deletes the PID file.
func (p *PIDFile) Remove() error {
	return os.Remove(p.Path)
}

// Terminate stops the live process named in the file, unless it is this
// process. It returns the stopped PID, or 0 when nothing was running.
func (p *PIDFile) Terminate() (int, error) {
	pid, running := p.IsRunning()
	if !running || pid == os.Getpid() {
		return 0, nil
	}
	if err := terminate(pid); err != nil {
		return 0, fmt.Errorf("stop watcher %d: %w", pid, err)
	}
	return pid, nil
}

// Claim makes this process the only watcher. Any previous live watcher is
// stopped first. It returns the PID of the stopped watcher, if any.
func (p *PIDFile) Claim() (int, error) {
	prev, err := p.Terminate()
	if err != nil {
		return 0, err
	}
	if err := p.Write(); err != nil {
		return prev, fmt.Errorf("write PID file: %w", err)
	}
	return prev, nil
}

// Release removes the file if it still names this process. A file taken
// over by a newer watcher is left alone.
func (p *PIDFile) Release() error {
	pid, err := p.Read()
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if pid != os.Getpid() {
		return nil
	}
	return p.Remove()
}
