package fs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathResolver_Normalize(t *testing.T) {
	r, err := NewPathResolver(t.TempDir())
	require.NoError(t, err)

	tests := []struct {
		in   string
		want string
	}{
		{"a.txt", "./a.txt"},
		{"./a.txt", "./a.txt"},
		{"src//pkg/./x.go", "./src/pkg/x.go"},
		{"../up.txt", "../up.txt"},
		{"a/../../up.txt", "../up.txt"},
		{"/abs/path/../file", "/abs/file"},
		{"  spaced.txt ", "./spaced.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Normalize(tt.in))
		})
	}
}

func TestPathResolver_Resolve(t *testing.T) {
	root := t.TempDir()
	r, err := NewPathResolver(root)
	require.NoError(t, err)

	got, err := r.Resolve("./dir/a.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "dir", "a.txt"), got)

	got, err = r.Resolve(filepath.Join(root, "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "b.txt"), got)

	_, err = r.Resolve("../escape.txt")
	assert.True(t, errors.Is(err, ErrOutsideWorkspace))

	_, err = r.Resolve("/etc/passwd")
	assert.True(t, errors.Is(err, ErrOutsideWorkspace))

	_, err = r.Resolve("./")
	assert.Error(t, err)

	assert.Equal(t, "dir/a.txt", r.Rel(filepath.Join(root, "dir", "a.txt")))
}

func TestPathResolver_ResolveSymlinks(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "real.txt"), []byte("in"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("out"), 0o644))
	require.NoError(t, os.Symlink("real.txt", filepath.Join(root, "link.txt")))
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(root, "secret.txt")))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "ext")))

	r, err := NewPathResolver(root)
	require.NoError(t, err)

	got, err := r.Resolve("./link.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "link.txt"), got)

	_, err = r.Resolve("./secret.txt")
	assert.True(t, errors.Is(err, ErrOutsideWorkspace))

	_, err = r.Resolve("./ext/new.txt")
	assert.True(t, errors.Is(err, ErrOutsideWorkspace))

	assert.Equal(t, "", r.ReadSnapshot("./secret.txt"))
}

func TestPathResolver_ReadSnapshot(t *testing.T) {
	root := t.TempDir()
	r, err := NewPathResolver(root)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("content"), 0o644))

	assert.Equal(t, "content", r.ReadSnapshot("./a.txt"))
	assert.Equal(t, "", r.ReadSnapshot("./missing.txt"))
	assert.Equal(t, "", r.ReadSnapshot("../a.txt"))
}

func TestAtomicWrite(t *testing.T) {
	root := t.TempDir()

	t.Run("creates parents", func(t *testing.T) {
		path := filepath.Join(root, "x", "y", "z.txt")
		require.NoError(t, AtomicWrite(path, []byte("new")))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "new", string(data))
	})

	t.Run("truncates and keeps mode", func(t *testing.T) {
		path := filepath.Join(root, "script.sh")
		require.NoError(t, os.WriteFile(path, []byte("a much longer original"), 0o755))
		require.NoError(t, AtomicWrite(path, []byte("short")))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "short", string(data))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
	})

	t.Run("writes through symlinks", func(t *testing.T) {
		target := filepath.Join(root, "target.txt")
		link := filepath.Join(root, "link.txt")
		require.NoError(t, os.WriteFile(target, []byte("old"), 0o600))
		require.NoError(t, os.Symlink("target.txt", link))
		require.NoError(t, AtomicWrite(link, []byte("new")))

		info, err := os.Lstat(link)
		require.NoError(t, err)
		assert.True(t, info.Mode()&os.ModeSymlink != 0)

		data, err := os.ReadFile(target)
		require.NoError(t, err)
		assert.Equal(t, "new", string(data))

		info, err = os.Stat(target)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("refuses directories", func(t *testing.T) {
		dir := filepath.Join(root, "adir")
		require.NoError(t, os.Mkdir(dir, 0o755))
		assert.Error(t, AtomicWrite(dir, []byte("x")))
	})
}

func TestBuildIgnoreFilter(t *testing.T) {
	t.Run("missing file ignores nothing", func(t *testing.T) {
		filter, err := BuildIgnoreFilter(t.TempDir(), "")
		require.NoError(t, err)
		assert.False(t, filter("anything.go"))
	})

	t.Run("rules are applied", func(t *testing.T) {
		root := t.TempDir()
		rules := "*.log\nbuild/\n/secret.txt\n"
		require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte(rules), 0o644))

		filter, err := BuildIgnoreFilter(root, ".gitignore")
		require.NoError(t, err)

		assert.True(t, filter("debug.log"))
		assert.True(t, filter("nested/trace.log"))
		assert.True(t, filter("build/out.bin"))
		assert.True(t, filter("./secret.txt"))
		assert.False(t, filter("main.go"))
		assert.False(t, filter("buildinfo.go"))
		assert.False(t, filter("."))
	})

	t.Run("inline rules", func(t *testing.T) {
		filter := IgnoreFilterFromLines("*.tmp")
		assert.True(t, filter("a.tmp"))
		assert.False(t, filter("a.txt"))
	})
}
