package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// DefaultIgnoreFile is the ignore-rules file read from the workspace root.
const DefaultIgnoreFile = ".gitignore"

// IgnoreFilter reports whether a slash separated workspace-relative path is ignored.
type IgnoreFilter func(relPath string) bool

// BuildIgnoreFilter compiles the ignore file at the workspace root. A missing
// file yields a filter that ignores nothing.
func BuildIgnoreFilter(root, ignoreFile string) (IgnoreFilter, error) {
	if ignoreFile == "" {
		ignoreFile = DefaultIgnoreFile
	}
	path := filepath.Join(root, ignoreFile)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return func(string) bool { return false }, nil
		}
		return nil, fmt.Errorf("failed to stat ignore file: %w", err)
	}

	rules, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s: %w", ignoreFile, err)
	}
	return newIgnoreFilter(rules), nil
}

// IgnoreFilterFromLines compiles rules given inline.
func IgnoreFilterFromLines(lines ...string) IgnoreFilter {
	return newIgnoreFilter(ignore.CompileIgnoreLines(lines...))
}

func newIgnoreFilter(rules *ignore.GitIgnore) IgnoreFilter {
	return func(relPath string) bool {
		p := strings.TrimPrefix(filepath.ToSlash(relPath), "./")
		if p == "" || p == "." {
			return false
		}
		return rules.MatchesPath(p)
	}
}
