package ingest

import (
	"bytes"
	"strings"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"
)

var _ Extractor = HTMLExtractor{}

// HTMLExtractor extracts the readable article text from an HTML document
// using readability, falling back to plain tag stripping when the page has
// no identifiable article body.
type HTMLExtractor struct{}

func (HTMLExtractor) Extract(content []byte) (string, error) {
	article, err := readability.FromReader(bytes.NewReader(content), nil)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return strings.TrimSpace(article.TextContent), nil
	}
	return stripTags(string(content)), nil
}

// stripTags removes HTML tags and skips script/style bodies. Entities are
// left alone; NFC normalization and whitespace collapsing happen later in
// ExtractFile.
func stripTags(content string) string {
	var result strings.Builder
	result.Grow(len(content))

	inTag := false
	skipDepth := 0 // inside <script> or <style>
	var tagName strings.Builder

	i := 0
	for i < len(content) {
		r, size := utf8.DecodeRuneInString(content[i:])

		if r == '<' {
			inTag = true
			tagName.Reset()
			i += size
			continue
		}
		if inTag {
			if r == '>' {
				inTag = false
				name := tagName.String()
				if fields := strings.Fields(name); len(fields) > 0 {
					name = fields[0]
				}
				switch strings.ToLower(name) {
				case "script", "style":
					skipDepth++
				case "/script", "/style":
					if skipDepth > 0 {
						skipDepth--
					}
				case "p", "/p", "div", "/div", "br", "li", "/li", "tr", "/tr",
					"h1", "h2", "h3", "h4", "h5", "h6",
					"/h1", "/h2", "/h3", "/h4", "/h5", "/h6":
					result.WriteByte('\n')
				}
			} else {
				tagName.WriteRune(r)
			}
			i += size
			continue
		}
		if skipDepth == 0 {
			result.WriteRune(r)
		}
		i += size
	}

	return result.String()
}
