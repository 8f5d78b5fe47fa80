package model

import "fmt"

// Action is the kind of mutation a FileChange performs.
type Action string

const (
	ActionCreate  Action = "create"
	ActionRewrite Action = "rewrite"
	ActionDelete  Action = "delete"
)

// ParseAction maps an attribute value onto an Action.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionCreate, ActionRewrite, ActionDelete:
		return Action(s), nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// FileChange represents a single proposed change to a file.
type FileChange struct {
	// FilePath is the normalized path, "./" relative or absolute.
	FilePath    string
	Action      Action
	Description string
	// Before is the file content at compile time, empty when absent.
	Before string
	// After is the desired content, always empty for deletes.
	After string
	// Index is the position in the change set and the selection key.
	Index    int
	Selected bool
}

// WorkspaceNode is a file or directory in the workspace tree.
type WorkspaceNode struct {
	Path        string
	Name        string
	IsDirectory bool
	Size        int64
	Children    []*WorkspaceNode
	Selected    bool
	Expanded    bool
}

// Tree is the result of a workspace walk.
type Tree struct {
	Nodes        []*WorkspaceNode
	BiggestFiles []*WorkspaceNode
}

// Selection is one entry the user picked for emission.
type Selection struct {
	Path        string
	IsDirectory bool
}

// ApplyReport holds the outcome of applying a change set.
type ApplyReport struct {
	Created  []string
	Modified []string
	Deleted  []string
	Failed   []Failure
	// NothingApplied is set when the selection matched no change.
	NothingApplied bool
}

// Failure is a single change that could not be applied.
type Failure struct {
	Index    int
	FilePath string
	Err      string
}

// Applied returns the number of successful operations.
func (r ApplyReport) Applied() int {
	return len(r.Created) + len(r.Modified) + len(r.Deleted)
}

// Summary holds the results of an operation for display.
type Summary struct {
	Created  []string
	Modified []string
	Deleted  []string
	Failed   []string
	Message  string
}

// SummaryFromReport flattens a report for display.
func SummaryFromReport(r ApplyReport) Summary {
	s := Summary{
		Created:  r.Created,
		Modified: r.Modified,
		Deleted:  r.Deleted,
	}
	for _, f := range r.Failed {
		s.Failed = append(s.Failed, fmt.Sprintf("%s: %s", f.FilePath, f.Err))
	}
	if r.NothingApplied {
		s.Message = "No changes selected. Nothing applied."
	}
	return s
}
