// Package nvim presents change artifacts in Neovim's diff mode.
package nvim

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/neovim/go-client/nvim"
)

// ErrNoInstance is returned when no running Neovim can be reached.
var ErrNoInstance = errors.New("no running neovim instance")

// addressEnv lists the variables a running Neovim exports to its children,
// newest first.
var addressEnv = []string{"NVIM", "NVIM_LISTEN_ADDRESS"}

// Manager handles the connection to a running Neovim instance.
type Manager struct {
	nvim *nvim.Nvim
	addr string
}

// Address returns the socket of the Neovim instance the process runs under,
// or "" when there is none.
func Address() string {
	for _, key := range addressEnv {
		if addr := os.Getenv(key); addr != "" {
			return addr
		}
	}
	return ""
}

// New connects to the running Neovim instance named by the environment.
func New() (*Manager, error) {
	addr := Address()
	if addr == "" {
		return nil, ErrNoInstance
	}
	v, err := nvim.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to neovim at %s: %w", addr, err)
	}
	return &Manager{nvim: v, addr: addr}, nil
}

// Close disconnects from Neovim.
func (m *Manager) Close() {
	if m.nvim != nil {
		m.nvim.Close()
	}
}

// OpenDiff opens before and after side by side in a new tab in diff mode.
func (m *Manager) OpenDiff(before, after, title string) error {
	var escBefore, escAfter string
	if err := m.nvim.Call("fnameescape", &escBefore, before); err != nil {
		return fmt.Errorf("failed to escape %s: %w", before, err)
	}
	if err := m.nvim.Call("fnameescape", &escAfter, after); err != nil {
		return fmt.Errorf("failed to escape %s: %w", after, err)
	}

	b := m.nvim.NewBatch()
	b.Command("tabnew " + escBefore)
	b.Command("setlocal readonly nomodifiable")
	b.Command("diffthis")
	b.Command("vertical rightbelow split " + escAfter)
	b.Command("setlocal readonly nomodifiable")
	b.Command("diffthis")
	b.SetTabpageVar(0, "xmlpatch_title", title)
	if err := b.Execute(); err != nil {
		return fmt.Errorf("failed to open diff in neovim: %w", err)
	}
	return nil
}

// Launch runs a foreground Neovim in diff mode on the two files, attached
// to the current terminal, and waits for it to exit.
func Launch(before, after string) error {
	path, err := exec.LookPath("nvim")
	if err != nil {
		return fmt.Errorf("nvim not found in PATH: %w", err)
	}
	cmd := exec.Command(path, "-R", "-d", before, after)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("nvim exited with error: %w", err)
	}
	return nil
}
