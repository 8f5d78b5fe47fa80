// Package cli wires the xmlpatch commands.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sokinpui/xmlpatch/internal/config"
	"github.com/sokinpui/xmlpatch/internal/logging"
	"github.com/sokinpui/xmlpatch/internal/source"
	"github.com/sokinpui/xmlpatch/internal/ui"
	"github.com/sokinpui/xmlpatch/xmlpatch"
)

// Config holds all the command-line flag values.
type Config struct {
	Dir          string
	Debug        bool
	NoAnimation  bool
	MaxFileSize  int64
	MaxTotalSize int64

	// apply
	Yes    bool
	DryRun bool

	// diff
	Print bool

	// copy
	Instructions string
	Selection    []string
	Stdout       bool
	Tokens       bool
	TokenModel   string
}

// Input supplies LLM output and receives emitted XML.
type Input interface {
	GetContent() (string, source.Origin, error)
	Deliver(text string) error
}

type app struct {
	cfg   Config
	in    Input
	flags *pflag.FlagSet
	// interactive reports whether the TUI may be used.
	interactive func() bool
}

// NewRootCmd builds the command tree reading input from in.
func NewRootCmd(in Input) *cobra.Command {
	return newRootCmd(in, func() bool { return ui.IsTTY(os.Stderr) })
}

func newRootCmd(in Input, interactive func() bool) *cobra.Command {
	a := &app{in: in, interactive: interactive}

	cmd := &cobra.Command{
		Use:   "xmlpatch",
		Short: "Apply LLM file changes written in an XML dialect, and export the workspace for prompts",
		Long: `xmlpatch compiles an LLM reply written as <file path="..." action="create|rewrite|delete">
elements into a change set, lets you review and apply it, and serializes the
workspace into the same dialect so it can be pasted into the next prompt.

Input is read from stdin when piped, otherwise from the clipboard.

Example: pbpaste | xmlpatch apply`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&a.cfg.Dir, "dir", "C", "", "Workspace root (default: current directory).")
	pf.BoolVar(&a.cfg.Debug, "debug", false, "Write JSON debug logs under <root>/"+config.StateDir+"/logs.")
	pf.BoolVar(&a.cfg.NoAnimation, "no-animation", false, "Disable loading spinner and progress updates.")
	pf.Int64Var(&a.cfg.MaxFileSize, "max-file-size", 0, "Skip files larger than this many bytes when emitting (default from config, 1 MiB).")
	pf.Int64Var(&a.cfg.MaxTotalSize, "max-total-size", 0, "Stop embedding file content after this many bytes (0: unbounded).")
	a.flags = pf

	cmd.AddCommand(a.newApplyCmd(), a.newDiffCmd(), a.newTreeCmd(), a.newCopyCmd())
	return cmd
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	cmd := NewRootCmd(source.New())
	if err := cmd.Execute(); err != nil {
		var detailed *xmlpatch.DetailedError
		if errors.As(err, &detailed) {
			fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", detailed.Stack)
		}
		ui.Error("Error: %v", err)
		return 1
	}
	return 0
}

// settings loads the workspace config and applies flag overrides.
func (a *app) settings(root string) (config.Settings, error) {
	s, err := config.Load(root)
	if err != nil {
		return s, err
	}
	if a.flags.Changed("max-file-size") {
		s.MaxFileSize = a.cfg.MaxFileSize
	}
	if a.flags.Changed("max-total-size") {
		s.MaxTotalSize = a.cfg.MaxTotalSize
	}
	return s, nil
}

// session creates a Session for the configured workspace. The returned
// function closes the debug log.
func (a *app) session(opts xmlpatch.Options) (*xmlpatch.Session, func(), error) {
	root := a.cfg.Dir
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, nil, fmt.Errorf("could not get current working directory: %w", err)
		}
		root = wd
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, nil, err
	}

	settings, err := a.settings(root)
	if err != nil {
		return nil, nil, err
	}

	logs, err := logging.New(filepath.Join(root, config.StateDir), a.cfg.Debug)
	if err != nil {
		ui.Warning("Debug logging disabled: %v", err)
	}
	if logs.Enabled {
		ui.Info("Logging to %s", logs.Path)
	}

	opts.Root = root
	opts.Settings = &settings
	opts.Logger = logs.Logger.With("pid", os.Getpid())
	s, err := xmlpatch.New(opts)
	if err != nil {
		_ = logs.Close()
		return nil, nil, err
	}
	return s, func() { _ = logs.Close() }, nil
}

// readInput fetches the LLM reply, returning "" when there is nothing to do.
func (a *app) readInput() (string, error) {
	content, origin, err := a.in.GetContent()
	if err != nil {
		return "", err
	}
	ui.Header("--- Reading from %s ---", origin)
	if content == "" {
		ui.Warning("Source is empty. Nothing to process.")
	}
	return content, nil
}

func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
