package parser

import (
	"regexp"
	"strings"
)

const (
	fenceMarker = "==="
	// SyntheticRoot wraps input lacking a single root element.
	SyntheticRoot = "changes"

	cdataOpen    = "<![CDATA["
	cdataClose   = "]]>"
	contentClose = "</content>"
)

var (
	contentOpen = regexp.MustCompile(`<content(?:\s[^>]*)?>`)
	fenceClose  = regexp.MustCompile(`===[ \t\r\n]*</content>`)
	xmlDecl     = regexp.MustCompile(`^\s*<\?xml[^>]*\?>`)
	leadingTag  = regexp.MustCompile(`^<([A-Za-z_][\w.\-]*)`)
)

// RepairFences rewrites every fenced <content> region so its payload becomes
// literal character data. A region opening with "===" ends at the first
// "===" followed by "</content>"; any other region holding at least two
// markers keeps the text strictly between its first and last marker.
// Existing CDATA sections and regions without markers are untouched.
func RepairFences(text string) string {
	var b strings.Builder
	rest := text
	for {
		open := contentOpen.FindStringIndex(rest)
		cd := strings.Index(rest, cdataOpen)
		if cd >= 0 && (open == nil || cd < open[0]) {
			end := strings.Index(rest[cd:], cdataClose)
			if end < 0 {
				b.WriteString(rest)
				return b.String()
			}
			end += cd + len(cdataClose)
			b.WriteString(rest[:end])
			rest = rest[end:]
			continue
		}
		if open == nil {
			b.WriteString(rest)
			return b.String()
		}

		b.WriteString(rest[:open[1]])
		rest = rest[open[1]:]
		payload, n, ok := fencedPayload(rest)
		if !ok {
			continue
		}
		b.WriteString(literal(payload))
		b.WriteString(contentClose)
		rest = rest[n:]
	}
}

// fencedPayload reads the fenced payload of a content region whose open tag
// ends right before s. n is the length of s consumed through </content>.
func fencedPayload(s string) (payload string, n int, ok bool) {
	body := strings.TrimLeft(s, " \t\r\n")
	if strings.HasPrefix(body, fenceMarker) {
		start := len(s) - len(body) + len(fenceMarker)
		if loc := fenceClose.FindStringIndex(s[start:]); loc != nil {
			return s[start : start+loc[0]], start + loc[1], true
		}
	}

	end := strings.Index(s, contentClose)
	if end < 0 {
		return "", 0, false
	}
	inner := s[:end]
	if strings.Contains(inner, cdataOpen) || strings.Count(inner, fenceMarker) < 2 {
		return "", 0, false
	}
	first := strings.Index(inner, fenceMarker)
	last := strings.LastIndex(inner, fenceMarker)
	return inner[first+len(fenceMarker) : last], end + len(contentClose), true
}

// ContentElement encodes text as a <content> element that the compiler
// reads back verbatim. The "===" fence is used unless the text itself would
// close it early, in which case the text is written as CDATA.
func ContentElement(text string) string {
	if !fenceClose.MatchString(text) {
		return "<content>" + fenceMarker + "\n" + text + "\n" + fenceMarker + contentClose
	}
	return "<content>" + literal("\n"+text+"\n") + contentClose
}

// literal encodes s as CDATA. Carriage returns are emitted as character
// references so XML line-end normalization does not rewrite them, and "]]>"
// is split across sections.
func literal(s string) string {
	var b strings.Builder
	for i, part := range strings.Split(s, "\r") {
		if i > 0 {
			b.WriteString("&#13;")
		}
		if part == "" {
			continue
		}
		b.WriteString("<![CDATA[")
		b.WriteString(strings.ReplaceAll(part, "]]>", "]]]]><![CDATA[>"))
		b.WriteString("]]>")
	}
	return b.String()
}

// RepairRoot wraps text in a synthetic root element unless it already has
// one. A document starting with a bare <file> is always wrapped.
func RepairRoot(text string) string {
	body := strings.TrimSpace(xmlDecl.ReplaceAllString(text, ""))
	if hasRoot(body) {
		return text
	}
	return "<" + SyntheticRoot + ">\n" + body + "\n</" + SyntheticRoot + ">"
}

func hasRoot(body string) bool {
	m := leadingTag.FindStringSubmatch(body)
	if m == nil || m[1] == "file" {
		return false
	}
	return strings.HasSuffix(body, "</"+m[1]+">")
}
