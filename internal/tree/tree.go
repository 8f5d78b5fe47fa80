// Package tree walks a workspace and builds the hierarchical file model.
package tree

import (
	"context"
	"fmt"
	iofs "io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sokinpui/xmlpatch/internal/fs"
	"github.com/sokinpui/xmlpatch/model"
)

// Options controls what the walk keeps.
type Options struct {
	// ExcludeDirs are directory names skipped wherever they appear.
	ExcludeDirs []string
	Ignore      fs.IgnoreFilter
	// BiggestFiles is the size of the biggest-files index.
	BiggestFiles int
	// StatWorkers bounds concurrent stat calls.
	StatWorkers int
}

// Builder produces model.Tree snapshots of a workspace.
type Builder struct {
	root   string
	opts   Options
	logger *slog.Logger
}

// NewBuilder creates a Builder for root.
func NewBuilder(root string, opts Options, logger *slog.Logger) *Builder {
	if opts.Ignore == nil {
		opts.Ignore = func(string) bool { return false }
	}
	if opts.BiggestFiles <= 0 {
		opts.BiggestFiles = 10
	}
	if opts.StatWorkers <= 0 {
		opts.StatWorkers = 8
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{root: root, opts: opts, logger: logger}
}

type fileEntry struct {
	rel    string
	size   int64
	statOK bool
}

// Build walks the workspace and returns the sorted tree and biggest-files index.
func (b *Builder) Build(ctx context.Context) (model.Tree, error) {
	files, err := b.Files(ctx)
	if err != nil {
		return model.Tree{}, err
	}

	entries, err := b.stat(ctx, files)
	if err != nil {
		return model.Tree{}, err
	}

	nodes, fileNodes := assemble(entries)
	sortNodes(nodes)

	return model.Tree{
		Nodes:        nodes,
		BiggestFiles: biggest(entries, fileNodes, b.opts.BiggestFiles),
	}, nil
}

// Files returns the slash separated relative paths of every retained file in
// walk order.
func (b *Builder) Files(ctx context.Context) ([]string, error) {
	excluded := make(map[string]struct{}, len(b.opts.ExcludeDirs))
	for _, d := range b.opts.ExcludeDirs {
		excluded[d] = struct{}{}
	}

	var files []string
	err := filepath.WalkDir(b.root, func(path string, d iofs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == b.root {
				return err
			}
			b.logger.Debug("skipping unreadable entry", "path", path, "err", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == b.root {
			return nil
		}

		rel, err := filepath.Rel(b.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if _, skip := excluded[d.Name()]; skip || b.opts.Ignore(rel) || b.opts.Ignore(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if b.opts.Ignore(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", b.root, err)
	}
	return files, nil
}

func (b *Builder) stat(ctx context.Context, files []string) ([]fileEntry, error) {
	entries := make([]fileEntry, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.StatWorkers)

	for i, rel := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			entries[i] = fileEntry{rel: rel}
			info, err := os.Stat(filepath.Join(b.root, filepath.FromSlash(rel)))
			if err != nil {
				b.logger.Debug("stat failed", "path", rel, "err", err)
				return nil
			}
			entries[i].size = info.Size()
			entries[i].statOK = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

// assemble materializes each directory once, keyed by its cumulative path.
func assemble(entries []fileEntry) ([]*model.WorkspaceNode, []*model.WorkspaceNode) {
	root := &model.WorkspaceNode{IsDirectory: true}
	dirs := map[string]*model.WorkspaceNode{"": root}
	fileNodes := make([]*model.WorkspaceNode, len(entries))

	for i, e := range entries {
		segments := strings.Split(e.rel, "/")
		parent := root
		for depth := 0; depth < len(segments)-1; depth++ {
			key := strings.Join(segments[:depth+1], "/")
			dir, ok := dirs[key]
			if !ok {
				dir = &model.WorkspaceNode{
					Path:        key,
					Name:        segments[depth],
					IsDirectory: true,
					Selected:    true,
				}
				dirs[key] = dir
				parent.Children = append(parent.Children, dir)
			}
			parent = dir
		}
		node := &model.WorkspaceNode{
			Path:     e.rel,
			Name:     segments[len(segments)-1],
			Size:     e.size,
			Selected: true,
		}
		parent.Children = append(parent.Children, node)
		fileNodes[i] = node
	}
	return root.Children, fileNodes
}

// sortNodes orders directories before files, each group by name, recursively.
func sortNodes(nodes []*model.WorkspaceNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].IsDirectory != nodes[j].IsDirectory {
			return nodes[i].IsDirectory
		}
		return nodes[i].Name < nodes[j].Name
	})
	for _, n := range nodes {
		if n.IsDirectory {
			sortNodes(n.Children)
		}
	}
}

func biggest(entries []fileEntry, fileNodes []*model.WorkspaceNode, n int) []*model.WorkspaceNode {
	var sized []*model.WorkspaceNode
	for i, e := range entries {
		if e.statOK {
			sized = append(sized, fileNodes[i])
		}
	}
	sort.SliceStable(sized, func(i, j int) bool {
		return sized[i].Size > sized[j].Size
	})
	if len(sized) > n {
		sized = sized[:n]
	}
	return sized
}

// Walk calls fn for every node depth first, parents before children.
func Walk(nodes []*model.WorkspaceNode, fn func(*model.WorkspaceNode)) {
	for _, n := range nodes {
		fn(n)
		if n.IsDirectory {
			Walk(n.Children, fn)
		}
	}
}
