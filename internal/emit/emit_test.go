package emit

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/xmlpatch/internal/fs"
	"github.com/sokinpui/xmlpatch/internal/parser"
	"github.com/sokinpui/xmlpatch/internal/tree"
	"github.com/sokinpui/xmlpatch/model"
)

func writeTestFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestEmitter(t *testing.T, root string, opts Options) *Emitter {
	t.Helper()
	ignore, err := fs.BuildIgnoreFilter(root, ".gitignore")
	require.NoError(t, err)
	b := tree.NewBuilder(root, tree.Options{ExcludeDirs: []string{"node_modules"}, Ignore: ignore}, nil)
	return New(root, b, opts, nil)
}

func TestEmit_RoundTrip(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"main.go":          "package main\n\nfunc main() {\n\tif a < b && b > c {\n\t}\n}\n",
		"README.md":        "# Title\n\n```go\nx := 1\n```\n",
		"lib/util.js":      "export const eq = (a, b) => a === b;",
		"lib/crlf.txt":     "line one\r\nline two\r\n",
		"lib/cdata.xml":    "<x><![CDATA[a]]></x>",
		"docs/leading.md":  "\n\nstarts with blank lines",
		"docs/trailing.md": "ends with blank lines\n\n\n",
		"web/page.html":    "<content>x</content>\n",
		"web/emit.go":      "b.WriteString(\"\\n===</content></change></file>\\n\")\n",
		"web/fence.txt":    "a\n===\n</content>\nb",
		"web/equals.txt":   "===\n===\n",
		"web/crlf-end.txt": "x\r\n\r\n",
	}
	for rel, content := range files {
		writeTestFile(t, root, rel, content)
	}
	writeTestFile(t, root, "logo.png", "\x89PNG")
	writeTestFile(t, root, "node_modules/x/index.js", "ignored")
	writeTestFile(t, root, ".gitignore", "*.log\n")
	writeTestFile(t, root, "debug.log", "ignored")
	files[".gitignore"] = "*.log\n"

	e := newTestEmitter(t, root, Options{MaxFileSize: 1 << 20})
	res, err := e.Emit(context.Background(), "", nil, nil)
	require.NoError(t, err)

	resolver, err := fs.NewPathResolver(root)
	require.NoError(t, err)
	outcome, err := parser.NewCompiler(resolver, nil).Compile(res.XML)
	require.NoError(t, err)

	got := make(map[string]string)
	for _, ch := range outcome.Changes {
		assert.Equal(t, model.ActionRewrite, ch.Action)
		got[strings.TrimPrefix(ch.FilePath, "./")] = ch.After
	}
	assert.Equal(t, files, got)
	assert.Equal(t, len(files), res.Included)
}

func TestEmit_NonXMLTextIsSkipped(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "latin1.txt", "caf\xe9\n")
	writeTestFile(t, root, "ansi.txt", "\x1b[31mred\x1b[0m\n")
	writeTestFile(t, root, "feed.txt", "page\fbreak\n")
	writeTestFile(t, root, "ok.txt", "fine\n")

	res, err := newTestEmitter(t, root, Options{}).Emit(context.Background(), "", nil, nil)
	require.NoError(t, err)

	assert.Contains(t, res.XML, "<!-- Skipped latin1.txt: file is not valid UTF-8 text -->")
	assert.Contains(t, res.XML, "<!-- Skipped ansi.txt: file contains characters not allowed in XML -->")
	assert.Contains(t, res.XML, "<!-- Skipped feed.txt: file contains characters not allowed in XML -->")
	assert.Equal(t, 1, res.Included)
	assert.Equal(t, 3, res.Skipped)

	resolver, err := fs.NewPathResolver(root)
	require.NoError(t, err)
	outcome, err := parser.NewCompiler(resolver, nil).Compile(res.XML)
	require.NoError(t, err)
	require.Len(t, outcome.Changes, 1)
	assert.Equal(t, "./ok.txt", outcome.Changes[0].FilePath)
	assert.Equal(t, "fine\n", outcome.Changes[0].After)
}

func TestEmit_NonXMLInstructionsAreReplaced(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "a.txt", "alpha")

	res, err := newTestEmitter(t, root, Options{}).Emit(context.Background(), "fix \x1b this \xff", nil, nil)
	require.NoError(t, err)
	assert.Contains(t, res.XML, "fix \uFFFD this \uFFFD")

	resolver, err := fs.NewPathResolver(root)
	require.NoError(t, err)
	_, err = parser.NewCompiler(resolver, nil).Compile(res.XML)
	require.NoError(t, err)
}

func TestEmit_Layout(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "a.txt", "alpha")

	e := newTestEmitter(t, root, Options{})
	res, err := e.Emit(context.Background(), "Please refactor <everything>", nil, nil)
	require.NoError(t, err)

	doc := res.XML
	assert.True(t, strings.HasPrefix(doc, "<workspace>\n<file_map>\n"))
	assert.True(t, strings.HasSuffix(doc, "</workspace>\n"))

	fileMap := strings.Index(doc, "<file_map>")
	file := strings.Index(doc, `<file path="a.txt" action="rewrite">`)
	usage := strings.Index(doc, "<usage_instructions>")
	user := strings.Index(doc, "<user_instructions>")
	assert.True(t, fileMap < file && file < usage && usage < user)

	assert.Contains(t, doc, "<content>===\nalpha\n===</content>")
	assert.Contains(t, doc, "Please refactor &lt;everything&gt;")
	assert.Contains(t, doc, "&lt;changes&gt;")
}

func TestEmit_NoInstructionsBlockWhenEmpty(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "a.txt", "alpha")

	res, err := newTestEmitter(t, root, Options{}).Emit(context.Background(), "  ", nil, nil)
	require.NoError(t, err)
	assert.NotContains(t, res.XML, "<user_instructions>")
}

func TestEmit_DirectorySelectionUsesSegments(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "lib/a.js", "a")
	writeTestFile(t, root, "lib2/b.js", "b")
	writeTestFile(t, root, "top.txt", "t")

	e := newTestEmitter(t, root, Options{})
	res, err := e.Emit(context.Background(), "", []model.Selection{{Path: "lib", IsDirectory: true}}, nil)
	require.NoError(t, err)

	assert.Contains(t, res.XML, `<file path="lib/a.js"`)
	assert.NotContains(t, res.XML, `<file path="lib2/b.js"`)
	assert.NotContains(t, res.XML, `<file path="top.txt"`)
	// The file map is independent of the selection.
	assert.Contains(t, res.XML, "lib2/")
	assert.Equal(t, 1, res.Included)
}

func TestEmit_SelectedBinaryIsDropped(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "img/logo.png", "png")
	writeTestFile(t, root, "img/notes.txt", "n")

	e := newTestEmitter(t, root, Options{})
	res, err := e.Emit(context.Background(), "", []model.Selection{
		{Path: "img/logo.png"},
		{Path: "./img/notes.txt"},
	}, nil)
	require.NoError(t, err)

	assert.NotContains(t, res.XML, `<file path="img/logo.png"`)
	assert.Contains(t, res.XML, `<file path="img/notes.txt"`)
	assert.Contains(t, res.XML, "logo.png\n")
}

func TestEmit_PerFileCeiling(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "big.txt", strings.Repeat("x", 100))
	writeTestFile(t, root, "small.txt", "tiny")

	e := newTestEmitter(t, root, Options{MaxFileSize: 50, MaxTotalSize: 10})
	res, err := e.Emit(context.Background(), "", nil, nil)
	require.NoError(t, err)

	assert.Contains(t, res.XML, "<!-- Skipped big.txt: file size 100 bytes exceeds limit of 50 bytes -->")
	assert.NotContains(t, res.XML, `<file path="big.txt"`)
	// The skipped file does not count toward the total ceiling.
	assert.Contains(t, res.XML, `<file path="small.txt"`)
	assert.Equal(t, int64(4), res.Bytes)
	assert.Equal(t, 1, res.Skipped)
}

func TestEmit_TotalCeiling(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "a.txt", "aaaa")
	writeTestFile(t, root, "b.txt", "bbbb")
	writeTestFile(t, root, "c.txt", "c")

	e := newTestEmitter(t, root, Options{MaxTotalSize: 6, BatchSize: 1})
	res, err := e.Emit(context.Background(), "", nil, nil)
	require.NoError(t, err)

	assert.Contains(t, res.XML, `<file path="a.txt"`)
	assert.Contains(t, res.XML, "<!-- Skipped b.txt: total output limit of 6 bytes reached -->")
	assert.Contains(t, res.XML, "<!-- Skipped c.txt: total output limit of 6 bytes reached -->")
	assert.Equal(t, 1, res.Included)
	assert.Equal(t, 2, res.Skipped)
}

func TestEmit_ProgressPerBatch(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 5; i++ {
		writeTestFile(t, root, string(rune('a'+i))+".txt", "x")
	}

	var calls [][2]int
	e := newTestEmitter(t, root, Options{BatchSize: 2})
	_, err := e.Emit(context.Background(), "", nil, func(processed, total int) {
		calls = append(calls, [2]int{processed, total})
	})
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{0, 5}, {2, 5}, {4, 5}, {5, 5}}, calls)
}

func TestSelected(t *testing.T) {
	sel := []model.Selection{
		{Path: "lib", IsDirectory: true},
		{Path: "./docs/readme.md"},
	}
	assert.True(t, Selected("lib/a.js", sel))
	assert.True(t, Selected("lib/deep/b.js", sel))
	assert.False(t, Selected("lib2/b.js", sel))
	assert.False(t, Selected("lib", sel))
	assert.True(t, Selected("docs/readme.md", sel))
	assert.False(t, Selected("docs/other.md", sel))
	assert.True(t, Selected("anything", []model.Selection{{Path: ".", IsDirectory: true}}))
}
