package source

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
)

// Origin names where content was read from.
type Origin string

const (
	OriginStdin     Origin = "stdin"
	OriginClipboard Origin = "clipboard"
)

// SourceProvider determines and retrieves the source content.
type SourceProvider struct {
	stdin     *os.File
	readClip  func() (string, error)
	writeClip func(string) error
}

// New creates a new SourceProvider.
func New() *SourceProvider {
	return &SourceProvider{
		stdin:     os.Stdin,
		readClip:  clipboard.ReadAll,
		writeClip: clipboard.WriteAll,
	}
}

// IsPiped reports whether stdin is a pipe or file rather than a terminal.
func (sp *SourceProvider) IsPiped() bool {
	stat, err := sp.stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// GetContent retrieves content from stdin (if piped) or the clipboard.
// Whitespace-only content is returned as "".
func (sp *SourceProvider) GetContent() (string, Origin, error) {
	if sp.IsPiped() {
		content, err := io.ReadAll(sp.stdin)
		if err != nil {
			return "", OriginStdin, fmt.Errorf("failed to read from stdin: %w", err)
		}
		return blankToEmpty(string(content)), OriginStdin, nil
	}

	content, err := sp.readClip()
	if err != nil {
		return "", OriginClipboard, fmt.Errorf("failed to read from clipboard: %w", err)
	}
	return blankToEmpty(content), OriginClipboard, nil
}

// Deliver copies text to the system clipboard.
func (sp *SourceProvider) Deliver(text string) error {
	if err := sp.writeClip(text); err != nil {
		return fmt.Errorf("failed to write to clipboard: %w", err)
	}
	return nil
}

func blankToEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return s
}
