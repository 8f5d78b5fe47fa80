// Package xmlpatch drives a workspace through the XML change dialect:
// compiling LLM replies into change sets, applying them, and emitting the
// workspace as XML for the next prompt.
package xmlpatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/sokinpui/xmlpatch/internal/applier"
	"github.com/sokinpui/xmlpatch/internal/config"
	"github.com/sokinpui/xmlpatch/internal/diff"
	"github.com/sokinpui/xmlpatch/internal/emit"
	"github.com/sokinpui/xmlpatch/internal/fs"
	"github.com/sokinpui/xmlpatch/internal/parser"
	"github.com/sokinpui/xmlpatch/internal/tree"
	"github.com/sokinpui/xmlpatch/model"
)

var (
	// ErrInvalidSelection is returned for indexes that name no pending change.
	ErrInvalidSelection = errors.New("invalid selection")
	// ErrBusy is returned when a batch operation is already running.
	ErrBusy = errors.New("another operation is in progress")
)

// Settings are the workspace tunables read from the config file.
type Settings = config.Settings

// DefaultSettings returns the built-in Settings.
func DefaultSettings() Settings {
	return config.Default()
}

// DetailedError enhances a standard error with a stack trace.
type DetailedError struct {
	Err   error
	Stack []byte
}

func (e *DetailedError) Error() string {
	return e.Err.Error()
}

func (e *DetailedError) Unwrap() error { return e.Err }

// DiffViewer presents two snapshot files side by side.
type DiffViewer func(before, after, title string) error

// Deliverer hands emitted XML to the host, typically the clipboard.
type Deliverer func(text string) error

// Options configures a Session. Only Root is required.
type Options struct {
	// Root is the workspace root; empty means the working directory.
	Root string
	// Settings overrides the workspace config file when non-nil.
	Settings *Settings
	Logger   *slog.Logger
	Viewer   DiffViewer
	Deliver  Deliverer
	// Events receives emission progress. It is called synchronously.
	Events func(Event)
	// DiffDir holds diff artifacts; empty means the system temp dir.
	DiffDir string
}

// Session owns the pending change set for one workspace.
type Session struct {
	resolver     *fs.PathResolver
	compiler     *parser.Compiler
	applier      *applier.Applier
	materializer *diff.Materializer
	builder      *tree.Builder
	emitter      *emit.Emitter
	settings     config.Settings
	logger       *slog.Logger
	viewer       DiffViewer
	deliver      Deliverer
	events       func(Event)

	busy    atomic.Bool
	mu      sync.Mutex
	pending []model.FileChange
}

// New creates a Session for opts.Root.
func New(opts Options) (*Session, error) {
	resolver, err := fs.NewPathResolver(opts.Root)
	if err != nil {
		return nil, err
	}
	root := resolver.Root()

	var settings config.Settings
	if opts.Settings != nil {
		settings = *opts.Settings
	} else {
		settings, err = config.Load(root)
		if err != nil {
			return nil, err
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ignore, err := fs.BuildIgnoreFilter(root, settings.IgnoreFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load ignore rules: %w", err)
	}
	builder := tree.NewBuilder(root, tree.Options{
		ExcludeDirs:  settings.ExcludeDirs,
		Ignore:       ignore,
		BiggestFiles: settings.BiggestFiles,
	}, logger.With("component", "tree"))

	events := opts.Events
	if events == nil {
		events = func(Event) {}
	}

	return &Session{
		resolver:     resolver,
		compiler:     parser.NewCompiler(resolver, logger.With("component", "parser")),
		applier:      applier.New(resolver, logger.With("component", "applier")),
		materializer: diff.NewMaterializer(opts.DiffDir),
		builder:      builder,
		emitter: emit.New(root, builder, emit.Options{
			MaxFileSize:      settings.MaxFileSize,
			MaxTotalSize:     settings.MaxTotalSize,
			BatchSize:        settings.BatchSize,
			BinaryExtensions: settings.BinaryExtensions,
		}, logger.With("component", "emit")),
		settings: settings,
		logger:   logger,
		viewer:   opts.Viewer,
		deliver:  opts.Deliver,
		events:   events,
	}, nil
}

// Root returns the absolute workspace root.
func (s *Session) Root() string {
	return s.resolver.Root()
}

// Pending returns a copy of the pending change set.
func (s *Session) Pending() []model.FileChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.FileChange(nil), s.pending...)
}

// SetApplyProgress reports per-change progress of ConfirmApply.
func (s *Session) SetApplyProgress(cb func(current, total int)) {
	s.applier.SetProgressCallback(cb)
}

// Handle dispatches one request. It never panics; failures come back as
// ErrorResponse.
func (s *Session) Handle(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			err := &DetailedError{
				Err:   fmt.Errorf("internal panic: %v", r),
				Stack: debug.Stack(),
			}
			s.logger.Error("request panicked", "request", fmt.Sprintf("%T", req), "error", err, "stack", string(err.Stack))
			resp = ErrorResponse{Err: err}
		}
	}()

	switch r := req.(type) {
	case ApplyXML:
		return s.batch(func() Response { return s.applyXML(r) })
	case ConfirmApply:
		return s.batch(func() Response { return s.confirmApply(r) })
	case CancelChanges:
		return s.cancel()
	case ViewDiff:
		return s.viewDiff(r)
	case GetFileTree:
		return s.batch(func() Response { return s.fileTree(ctx) })
	case CopyFileTreeOutput:
		return s.batch(func() Response { return s.copyOutput(ctx, r) })
	default:
		return ErrorResponse{Err: fmt.Errorf("unsupported request %T", req)}
	}
}

// batch runs fn unless another batch operation is in flight.
func (s *Session) batch(fn func() Response) Response {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrorResponse{Err: ErrBusy}
	}
	defer s.busy.Store(false)
	return fn()
}

func (s *Session) applyXML(r ApplyXML) Response {
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()

	outcome, err := s.compiler.Compile(r.Raw)
	if err != nil {
		s.logger.Warn("compile failed", "error", err)
		return ErrorResponse{Err: err}
	}
	for _, w := range outcome.Warnings {
		s.logger.Warn("compile warning", "warning", w)
	}

	s.mu.Lock()
	s.pending = outcome.Changes
	s.mu.Unlock()

	return DisplayChanges{
		Changes:  append([]model.FileChange(nil), outcome.Changes...),
		Warnings: outcome.Warnings,
	}
}

func (s *Session) confirmApply(r ConfirmApply) Response {
	s.mu.Lock()
	changes := s.pending
	s.mu.Unlock()

	for _, idx := range r.Selected {
		if idx < 0 || idx >= len(changes) {
			return ErrorResponse{Err: fmt.Errorf("%w: no change with index %d", ErrInvalidSelection, idx)}
		}
	}

	report := s.applier.Apply(changes, applier.Indexes(r.Selected))

	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()

	s.logger.Info("apply finished",
		"created", len(report.Created),
		"modified", len(report.Modified),
		"deleted", len(report.Deleted),
		"failed", len(report.Failed))
	return ChangesApplied{Report: report, Summary: model.SummaryFromReport(report)}
}

func (s *Session) cancel() Response {
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
	return ChangesCleared{}
}

func (s *Session) viewDiff(r ViewDiff) Response {
	s.mu.Lock()
	changes := s.pending
	s.mu.Unlock()

	if r.Index < 0 || r.Index >= len(changes) {
		return ErrorResponse{Err: fmt.Errorf("%w: no change with index %d", ErrInvalidSelection, r.Index)}
	}
	change := changes[r.Index]

	artifacts, err := s.materializer.Materialize(change)
	if err != nil {
		return ErrorResponse{Err: err}
	}
	resp := DiffOpened{
		Index:   r.Index,
		Before:  artifacts.Before,
		After:   artifacts.After,
		Title:   artifacts.Title,
		Preview: diff.Unified(change, 3),
	}
	if s.viewer != nil {
		if err := s.viewer(artifacts.Before, artifacts.After, artifacts.Title); err != nil {
			return ErrorResponse{Err: fmt.Errorf("failed to open diff: %w", err)}
		}
		resp.Shown = true
	}
	return resp
}

func (s *Session) fileTree(ctx context.Context) Response {
	t, err := s.builder.Build(ctx)
	if err != nil {
		return ErrorResponse{Err: err}
	}
	return DisplayFileTree{Tree: t}
}

func (s *Session) copyOutput(ctx context.Context, r CopyFileTreeOutput) Response {
	s.events(ProcessingStarted{})

	res, err := s.emitter.Emit(ctx, r.Instructions, r.Selection, func(processed, total int) {
		s.events(ProcessingProgress{Processed: processed, Total: total})
	})
	if err != nil {
		return ErrorResponse{Err: err}
	}

	done := ProcessingComplete{
		XML:      res.XML,
		Included: res.Included,
		Skipped:  res.Skipped,
		Bytes:    res.Bytes,
	}
	if s.deliver != nil {
		if err := s.deliver(res.XML); err != nil {
			return ErrorResponse{Err: err}
		}
		done.Delivered = true
	}
	s.events(done)
	return done
}
