package ingest

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var _ Extractor = MarkdownExtractor{}

// MarkdownExtractor converts Markdown to plain text by parsing it and
// walking the AST, so formatting markers, link targets, and raw HTML never
// leak into the indexed text. Code block contents are kept verbatim.
type MarkdownExtractor struct{}

func (MarkdownExtractor) Extract(content []byte) (string, error) {
	doc := goldmark.DefaultParser().Parse(text.NewReader(content))

	var out strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		// Block boundaries become paragraph breaks.
		if _, ok := n.(*ast.Document); !ok && n.Type() == ast.TypeBlock && out.Len() > 0 {
			out.WriteString("\n\n")
		}
		switch node := n.(type) {
		case *ast.Text:
			out.Write(node.Segment.Value(content))
			if node.HardLineBreak() || node.SoftLineBreak() {
				out.WriteByte('\n')
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				out.Write(seg.Value(content))
			}
		case *ast.AutoLink:
			out.Write(node.URL(content))
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.String()), nil
}
