package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sokinpui/xmlpatch/internal/diff"
	"github.com/sokinpui/xmlpatch/internal/emit"
	"github.com/sokinpui/xmlpatch/internal/nvim"
	"github.com/sokinpui/xmlpatch/internal/tree"
	"github.com/sokinpui/xmlpatch/internal/tui"
	"github.com/sokinpui/xmlpatch/internal/ui"
	"github.com/sokinpui/xmlpatch/model"
	"github.com/sokinpui/xmlpatch/xmlpatch"
)

// DefaultTokenModel is the tokenizer used by copy --tokens.
const DefaultTokenModel = "gpt-4o"

func (a *app) newApplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Compile LLM output and apply the selected changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runApply(cmd)
		},
	}
	cmd.Flags().BoolVarP(&a.cfg.Yes, "yes", "y", false, "Apply every change without review.")
	cmd.Flags().BoolVarP(&a.cfg.DryRun, "dry-run", "n", false, "List the compiled changes and apply nothing.")
	return cmd
}

func (a *app) runApply(cmd *cobra.Command) error {
	ctx := cmd.Context()
	s, closeLog, err := a.session(xmlpatch.Options{Viewer: viewer()})
	if err != nil {
		return err
	}
	defer closeLog()

	changes, ok, err := a.compile(ctx, s)
	if err != nil || !ok {
		return err
	}

	if a.cfg.DryRun {
		lines := make([]ui.ChangeLine, len(changes))
		for i, c := range changes {
			st := diff.LineStats(c)
			lines[i] = ui.ChangeLine{Change: c, Added: st.Added, Removed: st.Removed}
		}
		ui.PrintChanges(out(cmd), lines)
		s.Handle(ctx, xmlpatch.CancelChanges{})
		return nil
	}

	if !a.cfg.Yes {
		if !a.interactive() {
			return errors.New("not attached to a terminal; pass --yes to apply without review")
		}
		return a.review(ctx, s)
	}

	all := make([]int, len(changes))
	for i := range all {
		all[i] = i
	}
	var bar *ui.ProgressBar
	if a.interactive() && !a.cfg.NoAnimation {
		bar = ui.NewProgressBar(len(all), "Applying")
		s.SetApplyProgress(bar.Set)
	}
	applied, err := xmlpatch.Expect[xmlpatch.ChangesApplied](s.Handle(ctx, xmlpatch.ConfirmApply{Selected: all}))
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return err
	}
	ui.PrintSummary(out(cmd), applied.Summary)
	return failedErr(applied.Report)
}

func (a *app) review(ctx context.Context, s *xmlpatch.Session) error {
	m := tui.NewReview(ctx, s, nil)
	p := tea.NewProgram(m, tea.WithInputTTY(), tea.WithOutput(os.Stderr))
	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("error running program: %w", err)
	}
	r := final.(tui.Review)
	if err := r.Err(); err != nil {
		return err
	}
	if summary, applied := r.Summary(); applied && len(summary.Failed) > 0 {
		return fmt.Errorf("%d change(s) failed", len(summary.Failed))
	}
	return nil
}

// compile reads the input and compiles it into the session's pending set.
// ok is false when there is nothing to review.
func (a *app) compile(ctx context.Context, s *xmlpatch.Session) ([]model.FileChange, bool, error) {
	content, err := a.readInput()
	if err != nil || content == "" {
		return nil, false, err
	}
	shown, err := xmlpatch.Expect[xmlpatch.DisplayChanges](s.Handle(ctx, xmlpatch.ApplyXML{Raw: content}))
	if err != nil {
		return nil, false, fmt.Errorf("failed to compile changes: %w", err)
	}
	for _, w := range shown.Warnings {
		ui.Warning("Warning: %s", w)
	}
	if len(shown.Changes) == 0 {
		ui.Info("No valid changes were generated. Nothing to do.")
		return nil, false, nil
	}
	return shown.Changes, true, nil
}

func failedErr(r model.ApplyReport) error {
	if n := len(r.Failed); n > 0 {
		return fmt.Errorf("%d change(s) failed", n)
	}
	return nil
}

// viewer opens diffs in the Neovim instance the command runs under, if any.
func viewer() xmlpatch.DiffViewer {
	if nvim.Address() == "" {
		return nil
	}
	return func(before, after, title string) error {
		m, err := nvim.New()
		if err != nil {
			return err
		}
		defer m.Close()
		return m.OpenDiff(before, after, title)
	}
}

func (a *app) newDiffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <index>",
		Short: "Compile LLM output and show the diff of one change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index %q: %w", args[0], err)
			}
			return a.runDiff(cmd, index)
		},
	}
	cmd.Flags().BoolVarP(&a.cfg.Print, "print", "p", false, "Print a unified diff instead of opening neovim.")
	return cmd
}

func (a *app) runDiff(cmd *cobra.Command, index int) error {
	ctx := cmd.Context()
	opts := xmlpatch.Options{}
	if !a.cfg.Print {
		opts.Viewer = viewer()
	}
	s, closeLog, err := a.session(opts)
	if err != nil {
		return err
	}
	defer closeLog()

	if _, ok, err := a.compile(ctx, s); err != nil || !ok {
		return err
	}
	opened, err := xmlpatch.Expect[xmlpatch.DiffOpened](s.Handle(ctx, xmlpatch.ViewDiff{Index: index}))
	if err != nil {
		return err
	}
	if opened.Shown {
		ui.Success("Opened %s in neovim.", opened.Title)
		return nil
	}
	if !a.cfg.Print && a.interactive() {
		if err := nvim.Launch(opened.Before, opened.After); err == nil {
			return nil
		}
	}
	fmt.Fprint(out(cmd), opened.Preview)
	return nil
}

func (a *app) newTreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Print the workspace file map and its biggest files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, closeLog, err := a.session(xmlpatch.Options{})
			if err != nil {
				return err
			}
			defer closeLog()

			shown, err := xmlpatch.Expect[xmlpatch.DisplayFileTree](s.Handle(cmd.Context(), xmlpatch.GetFileTree{}))
			if err != nil {
				return err
			}
			w := out(cmd)
			fmt.Fprint(w, tree.RenderFileMap(filepath.Base(s.Root()), shown.Tree.Nodes))
			if len(shown.Tree.BiggestFiles) > 0 {
				fmt.Fprintln(w, "\nBiggest files:")
				ui.PrintBiggestFiles(w, shown.Tree.BiggestFiles)
			}
			return nil
		},
	}
}

func (a *app) newCopyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "copy",
		Short: "Serialize workspace files as XML and copy them to the clipboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runCopy(cmd)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&a.cfg.Instructions, "instructions", "i", "", "Instructions appended to the document.")
	f.StringArrayVarP(&a.cfg.Selection, "select", "s", nil, "File or directory to include (can be repeated; default: everything).")
	f.BoolVar(&a.cfg.Stdout, "stdout", false, "Print the document instead of copying it.")
	f.BoolVar(&a.cfg.Tokens, "tokens", false, "Report an estimated token count.")
	f.StringVar(&a.cfg.TokenModel, "token-model", DefaultTokenModel, "Model whose tokenizer --tokens uses.")
	return cmd
}

func (a *app) runCopy(cmd *cobra.Command) error {
	ctx := cmd.Context()
	animate := a.interactive() && !a.cfg.NoAnimation

	var program *tea.Program
	opts := xmlpatch.Options{}
	if animate {
		opts.Events = func(e xmlpatch.Event) {
			if program != nil {
				program.Send(e)
			}
		}
	}
	if !a.cfg.Stdout {
		opts.Deliver = a.in.Deliver
	}
	s, closeLog, err := a.session(opts)
	if err != nil {
		return err
	}
	defer closeLog()

	selection, err := a.selection(s.Root())
	if err != nil {
		return err
	}

	run := func() (xmlpatch.ProcessingComplete, error) {
		return xmlpatch.Expect[xmlpatch.ProcessingComplete](s.Handle(ctx, xmlpatch.CopyFileTreeOutput{
			Instructions: a.cfg.Instructions,
			Selection:    selection,
		}))
	}

	var done xmlpatch.ProcessingComplete
	if animate {
		program = tea.NewProgram(tui.NewProgress(run), tea.WithOutput(os.Stderr), tea.WithInput(nil))
		final, err := program.Run()
		if err != nil {
			return fmt.Errorf("error running program: %w", err)
		}
		done, err = final.(tui.Progress).Result()
		if err != nil {
			return err
		}
	} else {
		done, err = run()
		if err != nil {
			return err
		}
	}

	if a.cfg.Stdout {
		fmt.Fprint(out(cmd), done.XML)
	} else if done.Delivered {
		ui.Success("Copied %d file(s) to the clipboard (%s).", done.Included, ui.HumanSize(int64(len(done.XML))))
	}
	if done.Skipped > 0 {
		ui.Warning("Skipped %d file(s) over the size limits.", done.Skipped)
	}
	if a.cfg.Tokens {
		n, err := emit.CountTokens(done.XML, a.cfg.TokenModel)
		if err != nil {
			ui.Warning("Token count unavailable: %v", err)
		} else {
			ui.Info("Estimated tokens: %d", n)
		}
	}
	return nil
}

// selection converts --select values into workspace-relative selections.
func (a *app) selection(root string) ([]model.Selection, error) {
	var sel []model.Selection
	for _, raw := range a.cfg.Selection {
		abs := raw
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(root, raw)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("invalid selection %q: %w", raw, err)
		}
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			return nil, fmt.Errorf("invalid selection %q: %w", raw, err)
		}
		sel = append(sel, model.Selection{Path: filepath.ToSlash(rel), IsDirectory: info.IsDir()})
	}
	return sel, nil
}
