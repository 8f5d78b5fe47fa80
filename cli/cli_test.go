package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/xmlpatch/internal/parser"
	"github.com/sokinpui/xmlpatch/internal/source"
	"github.com/sokinpui/xmlpatch/xmlpatch"
)

func init() {
	color.NoColor = true
}

type fakeInput struct {
	content   string
	delivered string
}

func (f *fakeInput) GetContent() (string, source.Origin, error) {
	return f.content, source.OriginStdin, nil
}

func (f *fakeInput) Deliver(text string) error {
	f.delivered = text
	return nil
}

const scenario = `<changes>
<file path="new.txt" action="create"><change><content>===
hello
===</content></change></file>
<file path="old.txt" action="delete"></file>
</changes>`

func workspace(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func run(t *testing.T, in *fakeInput, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(in, func() bool { return false })
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestApply_Yes(t *testing.T) {
	root := workspace(t, map[string]string{"old.txt": "bye"})

	out, err := run(t, &fakeInput{content: scenario}, "apply", "--yes", "-C", root)

	require.NoError(t, err)
	assert.Contains(t, out, "Created 1 file(s):\n  - new.txt")
	assert.Contains(t, out, "Deleted 1 file(s):\n  - old.txt")
	data, err := os.ReadFile(filepath.Join(root, "new.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestApply_DryRun(t *testing.T) {
	root := workspace(t, map[string]string{"old.txt": "bye"})

	out, err := run(t, &fakeInput{content: scenario}, "apply", "--dry-run", "-C", root)

	require.NoError(t, err)
	assert.Contains(t, out, "[0] create  ./new.txt +1 -0")
	assert.Contains(t, out, "[1] delete  ./old.txt +0 -1")
	_, err = os.Stat(filepath.Join(root, "new.txt"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "old.txt"))
	assert.NoError(t, err)
}

func TestApply_RequiresTerminalOrYes(t *testing.T) {
	root := workspace(t, nil)

	_, err := run(t, &fakeInput{content: scenario}, "apply", "-C", root)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
}

func TestApply_EmptyInput(t *testing.T) {
	_, err := run(t, &fakeInput{}, "apply", "--yes", "-C", workspace(t, nil))
	assert.NoError(t, err)
}

func TestApply_Malformed(t *testing.T) {
	_, err := run(t, &fakeInput{content: `<file path="a" action="create"><change><content`}, "apply", "--yes", "-C", workspace(t, nil))

	require.Error(t, err)
	assert.True(t, errors.Is(err, parser.ErrMalformed))
}

func TestApply_PartialFailure(t *testing.T) {
	root := workspace(t, nil)

	out, err := run(t, &fakeInput{content: scenario}, "apply", "--yes", "-C", root)

	require.Error(t, err)
	assert.Equal(t, "1 change(s) failed", err.Error())
	assert.Contains(t, out, "Created 1 file(s)")
	assert.Contains(t, out, "Failed to process 1 file(s):\n  - ./old.txt:")
}

func TestDiff_Print(t *testing.T) {
	root := workspace(t, map[string]string{"old.txt": "bye\n"})

	out, err := run(t, &fakeInput{content: scenario}, "diff", "1", "--print", "-C", root)

	require.NoError(t, err)
	assert.Contains(t, out, "--- a/old.txt\n+++ /dev/null\n")
	assert.Contains(t, out, "-bye\n")
}

func TestDiff_InvalidIndex(t *testing.T) {
	_, err := run(t, &fakeInput{content: scenario}, "diff", "5", "--print", "-C", workspace(t, nil))
	assert.ErrorIs(t, err, xmlpatch.ErrInvalidSelection)

	_, err = run(t, &fakeInput{content: scenario}, "diff", "one", "-C", workspace(t, nil))
	assert.Error(t, err)
}

func TestTree(t *testing.T) {
	root := workspace(t, map[string]string{
		"src/main.go":      "package main\n",
		"node_modules/x.js": "x",
	})

	out, err := run(t, &fakeInput{}, "tree", "-C", root)

	require.NoError(t, err)
	assert.Contains(t, out, filepath.Base(root)+"/\n")
	assert.Contains(t, out, "└── src/\n    └── main.go\n")
	assert.NotContains(t, out, "node_modules")
	assert.Contains(t, out, "Biggest files:")
	assert.Contains(t, out, "src/main.go")
}

func TestCopy_Stdout(t *testing.T) {
	root := workspace(t, map[string]string{"lib/a.js": "a\n", "lib2/b.js": "b\n"})

	out, err := run(t, &fakeInput{}, "copy", "--stdout", "-s", "lib", "-i", "add tests", "-C", root)

	require.NoError(t, err)
	assert.Contains(t, out, `<file path="lib/a.js" action="rewrite">`)
	assert.NotContains(t, out, `<file path="lib2/b.js"`)
	assert.Contains(t, out, "add tests")
}

func TestCopy_Clipboard(t *testing.T) {
	root := workspace(t, map[string]string{"a.txt": "a\n"})
	in := &fakeInput{}

	out, err := run(t, in, "copy", "-C", root)

	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Contains(t, in.delivered, `<file path="a.txt" action="rewrite">`)
}

func TestCopy_SizeFlags(t *testing.T) {
	root := workspace(t, map[string]string{"big.txt": "0123456789"})

	out, err := run(t, &fakeInput{}, "copy", "--stdout", "--max-file-size", "3", "-C", root)

	require.NoError(t, err)
	assert.Contains(t, out, "<!-- Skipped big.txt")
	assert.NotContains(t, out, "0123456789")
}

func TestCopy_InvalidSelection(t *testing.T) {
	_, err := run(t, &fakeInput{}, "copy", "--stdout", "-s", "missing", "-C", workspace(t, nil))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid selection")
}
