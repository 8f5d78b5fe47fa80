// Package emit serializes a selected view of the workspace into the XML
// change dialect, bounded by per-file and total size ceilings.
package emit

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/sokinpui/xmlpatch/internal/parser"
	"github.com/sokinpui/xmlpatch/internal/tree"
	"github.com/sokinpui/xmlpatch/model"
)

// RootElement encloses every emitted document.
const RootElement = "workspace"

// Progress is invoked with (processed, total) at batch boundaries.
type Progress func(processed, total int)

// Options bounds an emission.
type Options struct {
	MaxFileSize int64
	// MaxTotalSize enables the cumulative ceiling when positive.
	MaxTotalSize     int64
	BatchSize        int
	BinaryExtensions []string
	ReadWorkers      int
}

// Result is an emitted document plus bookkeeping.
type Result struct {
	XML      string
	Included int
	Skipped  int
	// Bytes counts embedded file content only.
	Bytes int64
}

// Emitter produces XML documents for one workspace.
type Emitter struct {
	rootName string
	root     string
	builder  *tree.Builder
	opts     Options
	binary   map[string]struct{}
	logger   *slog.Logger
}

// New creates an Emitter. The builder supplies both the file map and the
// candidate file list, so ignore rules apply identically to both.
func New(root string, builder *tree.Builder, opts Options, logger *slog.Logger) *Emitter {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.ReadWorkers <= 0 {
		opts.ReadWorkers = 8
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	binary := make(map[string]struct{}, len(binaryExtensions)+len(opts.BinaryExtensions))
	for _, ext := range append(binaryExtensions, opts.BinaryExtensions...) {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		binary[ext] = struct{}{}
	}
	return &Emitter{
		rootName: filepath.Base(root),
		root:     root,
		builder:  builder,
		opts:     opts,
		binary:   binary,
		logger:   logger,
	}
}

type candidate struct {
	path string
	size int64
}

type fileResult struct {
	content string
	err     error
	read    bool
}

// Emit builds the document for instructions and selection. An empty
// selection includes every non-ignored, non-binary file.
func (e *Emitter) Emit(ctx context.Context, instructions string, selection []model.Selection, progress Progress) (Result, error) {
	t, err := e.builder.Build(ctx)
	if err != nil {
		return Result{}, err
	}

	files := e.collect(t.Nodes, selection)
	total := len(files)
	if progress != nil {
		progress(0, total)
	}

	var body strings.Builder
	res := Result{}
	exhausted := false

	for start := 0; start < total; start += e.opts.BatchSize {
		end := min(start+e.opts.BatchSize, total)
		batch := files[start:end]

		var results []fileResult
		if !exhausted {
			results, err = e.readBatch(ctx, batch)
			if err != nil {
				return Result{}, err
			}
		}

		for i, f := range batch {
			if exhausted {
				writeSkip(&body, f.path, fmt.Sprintf("total output limit of %d bytes reached", e.opts.MaxTotalSize))
				res.Skipped++
				continue
			}
			r := results[i]
			switch {
			case !r.read:
				writeSkip(&body, f.path, fmt.Sprintf("file size %d bytes exceeds limit of %d bytes", f.size, e.opts.MaxFileSize))
				res.Skipped++
			case r.err != nil:
				e.logger.Debug("read failed", "path", f.path, "err", r.err)
				writeSkip(&body, f.path, "file could not be read")
				res.Skipped++
			case !utf8.ValidString(r.content):
				writeSkip(&body, f.path, "file is not valid UTF-8 text")
				res.Skipped++
			case !xmlText(r.content):
				writeSkip(&body, f.path, "file contains characters not allowed in XML")
				res.Skipped++
			case e.opts.MaxFileSize > 0 && int64(len(r.content)) > e.opts.MaxFileSize:
				writeSkip(&body, f.path, fmt.Sprintf("file size %d bytes exceeds limit of %d bytes", len(r.content), e.opts.MaxFileSize))
				res.Skipped++
			case e.opts.MaxTotalSize > 0 && res.Bytes+int64(len(r.content)) > e.opts.MaxTotalSize:
				exhausted = true
				writeSkip(&body, f.path, fmt.Sprintf("total output limit of %d bytes reached", e.opts.MaxTotalSize))
				res.Skipped++
			default:
				writeFile(&body, f.path, r.content)
				res.Bytes += int64(len(r.content))
				res.Included++
			}
		}

		if progress != nil {
			progress(end, total)
		}
		runtime.Gosched()
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
	}

	var doc strings.Builder
	doc.WriteString("<" + RootElement + ">\n")
	doc.WriteString("<file_map>\n")
	doc.WriteString(escape(tree.RenderFileMap(e.rootName, t.Nodes)))
	doc.WriteString("</file_map>\n")
	doc.WriteString(body.String())
	doc.WriteString("<usage_instructions>\n")
	doc.WriteString(escape(usageInstructions))
	doc.WriteString("</usage_instructions>\n")
	if s := strings.TrimSpace(instructions); s != "" {
		doc.WriteString("<user_instructions>\n")
		doc.WriteString(escape(s))
		doc.WriteString("\n</user_instructions>\n")
	}
	doc.WriteString("</" + RootElement + ">\n")

	res.XML = doc.String()
	return res, nil
}

// collect returns the included, non-binary files sorted by path.
func (e *Emitter) collect(nodes []*model.WorkspaceNode, selection []model.Selection) []candidate {
	var files []candidate
	tree.Walk(nodes, func(n *model.WorkspaceNode) {
		if n.IsDirectory || e.isBinary(n.Path) {
			return
		}
		if len(selection) > 0 && !Selected(n.Path, selection) {
			return
		}
		files = append(files, candidate{path: n.Path, size: n.Size})
	})
	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })
	return files
}

func (e *Emitter) isBinary(path string) bool {
	_, ok := e.binary[strings.ToLower(filepath.Ext(path))]
	return ok
}

// readBatch reads every file of a batch that is under the per-file ceiling.
func (e *Emitter) readBatch(ctx context.Context, batch []candidate) ([]fileResult, error) {
	results := make([]fileResult, len(batch))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.ReadWorkers)

	for i, f := range batch {
		if e.opts.MaxFileSize > 0 && f.size > e.opts.MaxFileSize {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(filepath.Join(e.root, filepath.FromSlash(f.path)))
			results[i] = fileResult{content: string(data), err: err, read: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Selected reports whether path is chosen explicitly or lies under a
// selected directory. Directory matching is by whole path segments.
func Selected(path string, selection []model.Selection) bool {
	path = cleanRel(path)
	for _, s := range selection {
		sel := cleanRel(s.Path)
		if s.IsDirectory {
			if sel == "" || strings.HasPrefix(path, sel+"/") {
				return true
			}
			continue
		}
		if sel == path {
			return true
		}
	}
	return false
}

func cleanRel(p string) string {
	p = filepath.ToSlash(p)
	p = strings.TrimPrefix(p, "./")
	p = strings.Trim(p, "/")
	if p == "." {
		return ""
	}
	return p
}

func writeFile(b *strings.Builder, path, content string) {
	fmt.Fprintf(b, "<file path=\"%s\" action=\"rewrite\"><change><description>Current content of %s</description>",
		escapeAttr(path), escape(path))
	b.WriteString(parser.ContentElement(content))
	b.WriteString("</change></file>\n")
}

func writeSkip(b *strings.Builder, path, reason string) {
	fmt.Fprintf(b, "<!-- Skipped %s: %s -->\n", commentSafe(path), reason)
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
)

func escape(s string) string     { return textEscaper.Replace(sanitize(s)) }
func escapeAttr(s string) string { return attrEscaper.Replace(sanitize(s)) }

func commentSafe(s string) string {
	s = sanitize(s)
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "- -")
	}
	return s
}

// xmlText reports whether every character of s may appear in an XML 1.0
// document. s must be valid UTF-8.
func xmlText(s string) bool {
	for _, r := range s {
		if !xmlChar(r) {
			return false
		}
	}
	return true
}

func xmlChar(r rune) bool {
	switch {
	case r == '\t', r == '\n', r == '\r':
		return true
	case r >= 0x20 && r <= 0xD7FF, r >= 0xE000 && r <= 0xFFFD, r >= 0x10000 && r <= utf8.MaxRune:
		return true
	}
	return false
}

// sanitize replaces invalid UTF-8 and characters XML cannot carry with U+FFFD.
func sanitize(s string) string {
	if utf8.ValidString(s) && xmlText(s) {
		return s
	}
	s = strings.ToValidUTF8(s, string(utf8.RuneError))
	return strings.Map(func(r rune) rune {
		if xmlChar(r) {
			return r
		}
		return utf8.RuneError
	}, s)
}
