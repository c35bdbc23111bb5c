package feed

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// sanitizeHTML strips all markup from description/summary fields,
// dropping <script> and <style> subtrees entirely (and, with them,
// any inline event handlers or javascript: URLs they might carry;
// those only ever live in attributes, and attributes never survive
// this pass). Remaining text is collapsed to single spaces between
// tokens, matching the "plain text preserved" policy in spec §4.B.
func sanitizeHTML(input string) string {
	if input == "" {
		return ""
	}

	tokenizer := html.NewTokenizer(strings.NewReader(input))
	var b strings.Builder
	skipDepth := 0

	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			break
		}

		tok := tokenizer.Token()
		switch tt {
		case html.StartTagToken:
			if tok.DataAtom == atom.Script || tok.DataAtom == atom.Style {
				skipDepth++
			}
		case html.EndTagToken:
			if (tok.DataAtom == atom.Script || tok.DataAtom == atom.Style) && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth == 0 {
				writeCollapsed(&b, tok.Data)
			}
		}
	}

	return strings.TrimSpace(b.String())
}

// writeCollapsed appends s to b, collapsing internal whitespace runs
// to a single space and ensuring exactly one space separates it from
// whatever was already written.
func writeCollapsed(b *strings.Builder, s string) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return
	}
	if b.Len() > 0 {
		b.WriteByte(' ')
	}
	b.WriteString(strings.Join(fields, " "))
}
