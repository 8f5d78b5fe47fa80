package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideWorkspace is returned when a path resolves outside the workspace root.
var ErrOutsideWorkspace = errors.New("path is outside the workspace")

const sep = string(filepath.Separator)

// PathResolver canonicalizes paths against a single workspace root.
type PathResolver struct {
	root string
	// evaluated is root with symlinks evaluated.
	evaluated string
}

// NewPathResolver creates a new PathResolver. An empty root means the
// current working directory.
func NewPathResolver(root string) (*PathResolver, error) {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("could not get current working directory: %w", err)
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid workspace root %q: %w", root, err)
	}
	evaluated, err := filepath.EvalSymlinks(abs)
	if err != nil {
		evaluated = abs
	}
	return &PathResolver{root: abs, evaluated: evaluated}, nil
}

// Root returns the absolute workspace root.
func (r *PathResolver) Root() string {
	return r.root
}

// Normalize canonicalizes a user supplied path. Absolute paths are cleaned,
// relative ones are cleaned and prefixed with "./" unless they already
// climb out with "../". No boundary check is made here; see Resolve.
func (r *PathResolver) Normalize(rawPath string) string {
	p := filepath.FromSlash(strings.TrimSpace(rawPath))
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	cleaned := filepath.Clean(p)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+sep) {
		return cleaned
	}
	if cleaned == "." {
		return "." + sep
	}
	return "." + sep + cleaned
}

// Resolve returns the absolute location of a normalized path, rejecting
// anything that escapes the workspace root or names the root itself.
func (r *PathResolver) Resolve(path string) (string, error) {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(r.root, path)
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(r.root, abs)
	if err != nil {
		return "", fmt.Errorf("failed to compute workspace-relative path for %q: %w", path, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+sep) {
		return "", fmt.Errorf("%q: %w", path, ErrOutsideWorkspace)
	}
	if rel == "." {
		return "", fmt.Errorf("%q resolves to the workspace root", path)
	}

	target, err := evalExisting(abs)
	if err != nil {
		return "", fmt.Errorf("failed to resolve symlinks for %q: %w", path, err)
	}
	if !within(r.evaluated, target) {
		return "", fmt.Errorf("%q links to %s: %w", path, target, ErrOutsideWorkspace)
	}
	return abs, nil
}

// evalExisting evaluates symlinks along the longest existing prefix of abs
// and appends the missing remainder unchanged.
func evalExisting(abs string) (string, error) {
	var missing []string
	p := abs
	for {
		resolved, err := filepath.EvalSymlinks(p)
		if err == nil {
			return filepath.Join(append([]string{resolved}, missing...)...), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return abs, nil
		}
		missing = append([]string{filepath.Base(p)}, missing...)
		p = parent
	}
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+sep)
}

// Rel converts an absolute path to a slash separated workspace-relative one.
// Paths that cannot be made relative are returned unchanged.
func (r *PathResolver) Rel(abs string) string {
	rel, err := filepath.Rel(r.root, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}

// ReadSnapshot returns the current content of a workspace file. Any failure,
// including a path outside the workspace, yields the empty string.
func (r *PathResolver) ReadSnapshot(path string) string {
	abs, err := r.Resolve(path)
	if err != nil {
		return ""
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return ""
	}
	return string(data)
}

// Exists reports whether a path exists without following symlinks.
func Exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// AtomicWrite replaces the content of path using a temp file + rename,
// creating missing parent directories. An existing file keeps its mode, and
// a symlink stays in place while its target is replaced.
func AtomicWrite(path string, data []byte) error {
	if target, err := filepath.EvalSymlinks(path); err == nil {
		path = target
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	perm := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		if info.IsDir() {
			return fmt.Errorf("%s is a directory", path)
		}
		perm = info.Mode().Perm()
	}

	tmpFile, err := os.CreateTemp(dir, ".xmlpatch-tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	tmpFile = nil
	return nil
}
