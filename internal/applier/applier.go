// Package applier writes a selected subset of a change set to disk.
package applier

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/sokinpui/xmlpatch/internal/fs"
	"github.com/sokinpui/xmlpatch/model"
)

// ProgressUpdate is called after each processed change.
type ProgressUpdate func(current, total int)

// Applier performs whole-file writes and deletes inside one workspace.
type Applier struct {
	resolver *fs.PathResolver
	logger   *slog.Logger
	progress ProgressUpdate
}

// New creates an Applier bound to the resolver's workspace.
func New(resolver *fs.PathResolver, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Applier{resolver: resolver, logger: logger}
}

// SetProgressCallback sets a function to be called for progress updates.
func (a *Applier) SetProgressCallback(cb ProgressUpdate) {
	a.progress = cb
}

// Apply writes every change whose Index is in selected, in change order.
// Failures are recorded per item and never stop the remaining changes.
func (a *Applier) Apply(changes []model.FileChange, selected map[int]bool) model.ApplyReport {
	var todo []model.FileChange
	for _, c := range changes {
		if selected[c.Index] {
			todo = append(todo, c)
		}
	}

	var report model.ApplyReport
	if len(todo) == 0 {
		report.NothingApplied = true
		return report
	}

	total := len(todo)
	if a.progress != nil {
		a.progress(0, total)
	}

	for i, c := range todo {
		out, err := a.applyOne(c)
		if err != nil {
			a.logger.Warn("change failed", "index", c.Index, "path", c.FilePath, "error", err)
			report.Failed = append(report.Failed, model.Failure{
				Index:    c.Index,
				FilePath: c.FilePath,
				Err:      err.Error(),
			})
		} else {
			a.logger.Info("change applied", "index", c.Index, "path", out.path, "action", c.Action)
			switch out.kind {
			case created:
				report.Created = append(report.Created, out.path)
			case modified:
				report.Modified = append(report.Modified, out.path)
			case deleted:
				report.Deleted = append(report.Deleted, out.path)
			}
		}
		if a.progress != nil {
			a.progress(i+1, total)
		}
	}
	return report
}

type outcomeKind int

const (
	created outcomeKind = iota
	modified
	deleted
)

type outcome struct {
	path string
	kind outcomeKind
}

func (a *Applier) applyOne(c model.FileChange) (outcome, error) {
	abs, err := a.resolver.Resolve(c.FilePath)
	if err != nil {
		return outcome{}, err
	}
	rel := a.resolver.Rel(abs)

	if c.Action == model.ActionDelete {
		info, err := os.Lstat(abs)
		if err != nil {
			return outcome{}, fmt.Errorf("failed to delete: %w", err)
		}
		if info.IsDir() {
			return outcome{}, fmt.Errorf("failed to delete: %s is a directory", rel)
		}
		if err := os.Remove(abs); err != nil {
			return outcome{}, fmt.Errorf("failed to delete: %w", err)
		}
		return outcome{path: rel, kind: deleted}, nil
	}

	existed, err := fs.Exists(abs)
	if err != nil {
		return outcome{}, fmt.Errorf("failed to stat: %w", err)
	}
	if err := fs.AtomicWrite(abs, []byte(c.After)); err != nil {
		return outcome{}, fmt.Errorf("failed to write: %w", err)
	}
	if existed {
		return outcome{path: rel, kind: modified}, nil
	}
	return outcome{path: rel, kind: created}, nil
}

// Indexes converts a list of selected indexes into a set.
func Indexes(idx []int) map[int]bool {
	set := make(map[int]bool, len(idx))
	for _, i := range idx {
		set[i] = true
	}
	return set
}
