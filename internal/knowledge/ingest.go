package knowledge

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ParseMarkdown splits a markdown knowledge document into per-section
// snippets. Each snippet covers the prose under one heading; content before
// the first heading is grouped under the document title.
func ParseMarkdown(source []byte, sourceName string) []Snippet {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(source))

	var snippets []Snippet
	var title string
	section := ""
	var buf strings.Builder

	flush := func() {
		content := strings.TrimSpace(buf.String())
		buf.Reset()
		if content == "" {
			return
		}
		// Stable IDs so re-ingesting a file overwrites instead of duplicating.
		snippets = append(snippets, Snippet{
			ID:      SnippetID(sourceName, section, len(snippets)),
			Content: content,
			Metadata: SnippetMetadata{
				Source:  sourceName,
				Title:   title,
				Section: section,
			},
		})
	}

	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		if heading, ok := node.(*ast.Heading); ok {
			flush()
			headingText := nodeText(heading, source)
			if heading.Level == 1 && title == "" {
				title = headingText
			}
			section = headingText
			continue
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(nodeText(node, source))
	}
	flush()

	return snippets
}

// nodeText collects the plain text of a node and its descendants.
func nodeText(node ast.Node, source []byte) string {
	var sb strings.Builder
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte('\n')
			}
		case *ast.ListItem:
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

// SnippetID builds a stable snippet ID from a source name and section,
// used when re-ingesting should overwrite rather than duplicate.
func SnippetID(sourceName, section string, index int) string {
	return fmt.Sprintf("%s#%s-%d", sourceName, strings.ToLower(strings.ReplaceAll(section, " ", "-")), index)
}
