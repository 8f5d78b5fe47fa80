package xmlpatch

import (
	"context"
	"fmt"

	"github.com/sokinpui/xmlpatch/model"
)

// Config for using xmlpatch as a library.
type Config struct {
	// Root is the workspace root; empty means the working directory.
	Root string
	// Settings overrides the workspace config file when non-nil.
	Settings *Settings
}

// Apply compiles content and applies every resulting change. Compile
// warnings are returned as the summary message when nothing was produced.
func Apply(ctx context.Context, content string, config Config) (model.Summary, error) {
	s, err := New(Options{Root: config.Root, Settings: config.Settings})
	if err != nil {
		return model.Summary{}, fmt.Errorf("failed to initialize xmlpatch session: %w", err)
	}

	compiled, err := Expect[DisplayChanges](s.Handle(ctx, ApplyXML{Raw: content}))
	if err != nil {
		return model.Summary{}, err
	}
	if len(compiled.Changes) == 0 {
		msg := "No changes found. Nothing applied."
		if len(compiled.Warnings) > 0 {
			msg = compiled.Warnings[0]
		}
		return model.Summary{Message: msg}, nil
	}

	all := make([]int, len(compiled.Changes))
	for i := range all {
		all[i] = i
	}
	applied, err := Expect[ChangesApplied](s.Handle(ctx, ConfirmApply{Selected: all}))
	if err != nil {
		return model.Summary{}, err
	}
	return applied.Summary, nil
}

// Compile parses content into a change set without touching the workspace.
func Compile(ctx context.Context, content string, config Config) ([]model.FileChange, []string, error) {
	s, err := New(Options{Root: config.Root, Settings: config.Settings})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize xmlpatch session: %w", err)
	}
	compiled, err := Expect[DisplayChanges](s.Handle(ctx, ApplyXML{Raw: content}))
	if err != nil {
		return nil, nil, err
	}
	return compiled.Changes, compiled.Warnings, nil
}

// Emit serializes the selected workspace files as an XML document.
func Emit(ctx context.Context, instructions string, selection []model.Selection, config Config) (string, error) {
	s, err := New(Options{Root: config.Root, Settings: config.Settings})
	if err != nil {
		return "", fmt.Errorf("failed to initialize xmlpatch session: %w", err)
	}
	done, err := Expect[ProcessingComplete](s.Handle(ctx, CopyFileTreeOutput{
		Instructions: instructions,
		Selection:    selection,
	}))
	if err != nil {
		return "", err
	}
	return done.XML, nil
}

// Expect unwraps a Response into the expected type or its error.
func Expect[T Response](resp Response) (T, error) {
	var zero T
	switch r := resp.(type) {
	case ErrorResponse:
		return zero, r.Err
	case T:
		return r, nil
	default:
		return zero, fmt.Errorf("unexpected response %T", resp)
	}
}
