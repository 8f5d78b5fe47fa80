package parser

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// codeBlock is a fenced code block found in a markdown reply.
type codeBlock struct {
	Lang    string
	Content string
}

// extractCodeBlocks walks the markdown AST and returns every fenced code block.
func extractCodeBlocks(source []byte) ([]codeBlock, error) {
	var blocks []codeBlock
	root := goldmark.DefaultParser().Parse(text.NewReader(source))

	walker := func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fenced, ok := node.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		var block codeBlock
		if fenced.Info != nil {
			block.Lang = strings.TrimSpace(string(fenced.Info.Text(source)))
		}
		var content bytes.Buffer
		lines := fenced.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			content.Write(line.Value(source))
		}
		block.Content = content.String()

		blocks = append(blocks, block)
		return ast.WalkSkipChildren, nil
	}

	if err := ast.Walk(root, walker); err != nil {
		return nil, err
	}
	return blocks, nil
}

// UnwrapMarkdown returns the markup carried by an LLM reply. Replies that
// already start with markup are returned unchanged. Otherwise fenced code
// blocks holding <file> elements are concatenated; if that loses elements
// or splits a <content> element across blocks (a fence nested in file content
// closed the block early) the span from the first '<' to the last '>' is used
// instead.
func UnwrapMarkdown(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.HasPrefix(trimmed, "<") {
		return raw
	}
	want := strings.Count(raw, "<file")
	if want == 0 {
		return raw
	}

	if joined, ok := joinFileBlocks(raw, want); ok {
		return joined
	}

	start := strings.Index(raw, "<")
	end := strings.LastIndex(raw, ">")
	if start < 0 || end < start {
		return raw
	}
	return raw[start : end+1]
}

// joinFileBlocks concatenates the code blocks holding <file> elements. It
// fails unless every such block is self-contained and together they carry
// all want elements.
func joinFileBlocks(raw string, want int) (string, bool) {
	blocks, err := extractCodeBlocks([]byte(raw))
	if err != nil {
		return "", false
	}
	var parts []string
	for _, b := range blocks {
		if !strings.Contains(b.Content, "<file") {
			continue
		}
		if !balancedContent(b.Content) {
			return "", false
		}
		parts = append(parts, b.Content)
	}
	joined := strings.Join(parts, "\n")
	if len(parts) == 0 || strings.Count(joined, "<file") != want {
		return "", false
	}
	return joined, true
}

func balancedContent(s string) bool {
	return strings.Count(s, "<content") == strings.Count(s, "</content>")
}
