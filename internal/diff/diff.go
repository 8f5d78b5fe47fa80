// Package diff materializes before/after snapshots of a change for an
// external comparison view and renders unified text previews.
package diff

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/sokinpui/xmlpatch/model"
)

// Artifacts are the two write-once files holding a change's snapshots.
type Artifacts struct {
	Before string
	After  string
	// Title labels the comparison, e.g. "./src/main.go (rewrite)".
	Title string
}

// Materializer writes artifacts under a scratch directory.
type Materializer struct {
	dir string
}

// NewMaterializer creates a Materializer. An empty dir means a
// subdirectory of the system temp dir.
func NewMaterializer(dir string) *Materializer {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "xmlpatch-diff")
	}
	return &Materializer{dir: dir}
}

// Materialize writes change.Before and change.After verbatim into two
// uniquely named files. The target file is never touched.
func (m *Materializer) Materialize(change model.FileChange) (Artifacts, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return Artifacts{}, fmt.Errorf("failed to create diff directory: %w", err)
	}

	id := uuid.NewString()
	base := filepath.Base(change.FilePath)
	a := Artifacts{
		Before: filepath.Join(m.dir, fmt.Sprintf("%s.before.%s", id, base)),
		After:  filepath.Join(m.dir, fmt.Sprintf("%s.after.%s", id, base)),
		Title:  fmt.Sprintf("%s (%s)", change.FilePath, change.Action),
	}
	if err := os.WriteFile(a.Before, []byte(change.Before), 0o444); err != nil {
		return Artifacts{}, fmt.Errorf("failed to write before snapshot: %w", err)
	}
	if err := os.WriteFile(a.After, []byte(change.After), 0o444); err != nil {
		_ = os.Remove(a.Before)
		return Artifacts{}, fmt.Errorf("failed to write after snapshot: %w", err)
	}
	return a, nil
}

// Remove deletes both artifacts, ignoring ones already gone.
func (a Artifacts) Remove() {
	_ = os.Remove(a.Before)
	_ = os.Remove(a.After)
}

// Line types of a line diff.
const (
	LineContext = ' '
	LineAdded   = '+'
	LineRemoved = '-'
)

// Line is one line of a line diff.
type Line struct {
	Type    byte
	Text    string
	OldLine int
	NewLine int
}

// Lines computes a line level diff of before and after.
func Lines(before, after string) []Line {
	dmp := diffmatchpatch.New()
	beforeChars, afterChars, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(beforeChars, afterChars, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var lines []Line
	oldLine, newLine := 1, 1
	for _, d := range diffs {
		chunk := strings.Split(d.Text, "\n")
		if len(chunk) > 0 && chunk[len(chunk)-1] == "" {
			chunk = chunk[:len(chunk)-1]
		}
		for _, text := range chunk {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				lines = append(lines, Line{Type: LineContext, Text: text, OldLine: oldLine, NewLine: newLine})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				lines = append(lines, Line{Type: LineRemoved, Text: text, OldLine: oldLine})
				oldLine++
			case diffmatchpatch.DiffInsert:
				lines = append(lines, Line{Type: LineAdded, Text: text, NewLine: newLine})
				newLine++
			}
		}
	}
	return lines
}

// Stats counts added and removed lines.
type Stats struct {
	Added   int
	Removed int
}

func (s Stats) String() string {
	return fmt.Sprintf("+%d -%d", s.Added, s.Removed)
}

// LineStats summarizes the diff of a change.
func LineStats(change model.FileChange) Stats {
	var s Stats
	for _, l := range Lines(change.Before, change.After) {
		switch l.Type {
		case LineAdded:
			s.Added++
		case LineRemoved:
			s.Removed++
		}
	}
	return s
}

// Unified renders a change as a unified diff with the given context size.
func Unified(change model.FileChange, context int) string {
	lines := Lines(change.Before, change.After)

	var b strings.Builder
	name := strings.TrimPrefix(filepath.ToSlash(change.FilePath), "./")
	oldName, newName := "a/"+name, "b/"+name
	if change.Action == model.ActionCreate {
		oldName = "/dev/null"
	}
	if change.Action == model.ActionDelete {
		newName = "/dev/null"
	}
	fmt.Fprintf(&b, "--- %s\n+++ %s\n", oldName, newName)

	for _, h := range hunks(lines, context) {
		writeHunk(&b, lines[h[0]:h[1]])
	}
	return b.String()
}

// hunks groups changed lines with their surrounding context into
// [start, end) ranges over lines.
func hunks(lines []Line, context int) [][2]int {
	var ranges [][2]int
	for i, l := range lines {
		if l.Type == LineContext {
			continue
		}
		start := max(0, i-context)
		end := min(len(lines), i+context+1)
		if n := len(ranges); n > 0 && start <= ranges[n-1][1] {
			ranges[n-1][1] = max(ranges[n-1][1], end)
			continue
		}
		ranges = append(ranges, [2]int{start, end})
	}
	return ranges
}

func writeHunk(b *strings.Builder, lines []Line) {
	oldStart, newStart := 0, 0
	oldCount, newCount := 0, 0
	for _, l := range lines {
		if l.Type != LineAdded {
			if oldStart == 0 {
				oldStart = l.OldLine
			}
			oldCount++
		}
		if l.Type != LineRemoved {
			if newStart == 0 {
				newStart = l.NewLine
			}
			newCount++
		}
	}
	fmt.Fprintf(b, "@@ -%d,%d +%d,%d @@\n", oldStart, oldCount, newStart, newCount)
	for _, l := range lines {
		b.WriteByte(l.Type)
		b.WriteString(l.Text)
		b.WriteByte('\n')
	}
}
