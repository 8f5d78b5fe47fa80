// Package parser compiles the XML change dialect produced by an LLM into an
// ordered change set.
package parser

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/beevik/etree"

	"github.com/sokinpui/xmlpatch/model"
)

// ErrMalformed marks input that could not be parsed as markup at all.
var ErrMalformed = errors.New("malformed markup")

// Warnings attached to a ParseOutcome that is valid but empty or suspicious.
const (
	WarnNoFiles   = "no <file> elements found"
	WarnNoChanges = "no usable changes found"
)

// ErrorKind classifies a ParseError.
type ErrorKind int

const (
	KindMalformed ErrorKind = iota
)

// ParseError is returned when the input cannot be compiled.
type ParseError struct {
	Kind ErrorKind
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %v", ErrMalformed, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrMalformed) match.
func (e *ParseError) Is(target error) bool {
	return target == ErrMalformed && e.Kind == KindMalformed
}

// ParseOutcome is a compiled change set plus any non-fatal warnings.
type ParseOutcome struct {
	Changes  []model.FileChange
	Warnings []string
}

// Empty reports whether the outcome carries no changes.
func (o ParseOutcome) Empty() bool { return len(o.Changes) == 0 }

// Workspace normalizes paths and supplies before-snapshots.
type Workspace interface {
	Normalize(rawPath string) string
	ReadSnapshot(path string) string
}

// Compiler turns raw LLM output into FileChange records.
type Compiler struct {
	ws     Workspace
	logger *slog.Logger
}

// NewCompiler creates a Compiler reading snapshots through ws.
func NewCompiler(ws Workspace, logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Compiler{ws: ws, logger: logger}
}

// Compile parses raw text into an ordered change set. On malformed input it
// returns an empty outcome and a *ParseError.
func (c *Compiler) Compile(raw string) (ParseOutcome, error) {
	text := RepairRoot(RepairFences(UnwrapMarkdown(raw)))

	doc := etree.NewDocument()
	doc.ReadSettings.Permissive = true
	if err := doc.ReadFromString(text); err != nil {
		c.logger.Debug("parse failed", "err", err)
		return ParseOutcome{}, &ParseError{Kind: KindMalformed, Err: err}
	}
	root := doc.Root()
	if root == nil {
		return ParseOutcome{}, &ParseError{Kind: KindMalformed, Err: errors.New("document has no root element")}
	}

	files := root.FindElements("//file")
	if len(files) == 0 {
		return ParseOutcome{Warnings: []string{WarnNoFiles}}, nil
	}

	var changes []model.FileChange
	for _, fileEl := range files {
		changes = append(changes, c.extractFile(fileEl)...)
	}
	if len(changes) == 0 {
		return ParseOutcome{Warnings: []string{WarnNoChanges}}, nil
	}

	for i := range changes {
		changes[i].Index = i
		changes[i].Selected = true
	}

	outcome := ParseOutcome{Changes: changes}
	if dups := duplicatePaths(changes); len(dups) > 0 {
		outcome.Warnings = append(outcome.Warnings,
			fmt.Sprintf("multiple changes target the same file, later ones win: %s", strings.Join(dups, ", ")))
	}
	return outcome, nil
}

func (c *Compiler) extractFile(fileEl *etree.Element) []model.FileChange {
	rawPath := strings.TrimSpace(fileEl.SelectAttrValue("path", ""))
	rawAction := strings.ToLower(strings.TrimSpace(fileEl.SelectAttrValue("action", "")))
	if rawPath == "" || rawAction == "" {
		return nil
	}
	action, err := model.ParseAction(rawAction)
	if err != nil {
		c.logger.Warn("skipping file element", "path", rawPath, "err", err)
		return nil
	}
	filePath := c.ws.Normalize(rawPath)
	fileDescription := elementText(fileEl.SelectElement("description"))

	if action == model.ActionDelete {
		return []model.FileChange{newChange(filePath, action, fileDescription, c.ws.ReadSnapshot(filePath), "")}
	}

	before := ""
	if action == model.ActionRewrite {
		before = c.ws.ReadSnapshot(filePath)
	}

	changeEls := fileEl.SelectElements("change")
	if len(changeEls) == 0 {
		return []model.FileChange{newChange(filePath, action, fileDescription, before, "")}
	}

	var out []model.FileChange
	for _, changeEl := range changeEls {
		contentEl := changeEl.SelectElement("content")
		if contentEl == nil {
			continue
		}
		description := elementText(changeEl.SelectElement("description"))
		if description == "" {
			description = fileDescription
		}
		after := trimFenceNewlines(elementText(contentEl))
		out = append(out, newChange(filePath, action, description, before, after))
	}
	return out
}

// newChange builds a FileChange, turning a rewrite with no content into a delete.
func newChange(filePath string, action model.Action, description, before, after string) model.FileChange {
	if action == model.ActionRewrite && strings.TrimSpace(after) == "" {
		action = model.ActionDelete
	}
	if action == model.ActionDelete {
		after = ""
	}
	description = strings.TrimSpace(description)
	if description == "" {
		description = defaultDescription(action, filePath)
	}
	return model.FileChange{
		FilePath:    filePath,
		Action:      action,
		Description: description,
		Before:      before,
		After:       after,
	}
}

func defaultDescription(action model.Action, filePath string) string {
	switch action {
	case model.ActionCreate:
		return "Create " + filePath
	case model.ActionDelete:
		return "Delete " + filePath
	default:
		return "Rewrite " + filePath
	}
}

// elementText concatenates every character data child, CDATA included.
func elementText(el *etree.Element) string {
	if el == nil {
		return ""
	}
	var b strings.Builder
	for _, tok := range el.Child {
		if cd, ok := tok.(*etree.CharData); ok {
			b.WriteString(cd.Data)
		}
	}
	return b.String()
}

// trimFenceNewlines drops the single line break that follows an opening
// fence and the one preceding the closing fence.
func trimFenceNewlines(s string) string {
	switch {
	case strings.HasPrefix(s, "\r\n"):
		s = s[2:]
	case strings.HasPrefix(s, "\n"):
		s = s[1:]
	}
	switch {
	case strings.HasSuffix(s, "\r\n"):
		s = s[:len(s)-2]
	case strings.HasSuffix(s, "\n"):
		s = s[:len(s)-1]
	}
	return s
}

func duplicatePaths(changes []model.FileChange) []string {
	seen := make(map[string]int, len(changes))
	for _, ch := range changes {
		seen[ch.FilePath]++
	}
	var dups []string
	for p, n := range seen {
		if n > 1 {
			dups = append(dups, p)
		}
	}
	sort.Strings(dups)
	return dups
}
