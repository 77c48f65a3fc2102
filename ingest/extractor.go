package ingest

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Extractor converts raw file content to plain text. Implementations return
// an empty string (not an error) for readable-but-empty documents; an error
// means the content itself is unreadable or corrupt.
type Extractor interface {
	Extract(content []byte) (string, error)
}

// ContentType identifies the document format for extraction.
type ContentType string

const (
	TypePlainText ContentType = "text/plain"
	TypeHTML      ContentType = "text/html"
	TypeMarkdown  ContentType = "text/markdown"
	TypePDF       ContentType = "application/pdf"
)

// ContentTypeFromExtension maps file extensions to content types. Unknown
// extensions are treated as plain text.
func ContentTypeFromExtension(ext string) ContentType {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "pdf":
		return TypePDF
	case "html", "htm":
		return TypeHTML
	case "md", "markdown":
		return TypeMarkdown
	default:
		return TypePlainText
	}
}

// ExtractorFor returns the extractor for a content type.
func ExtractorFor(ct ContentType) Extractor {
	switch ct {
	case TypePDF:
		return PDFExtractor{}
	case TypeHTML:
		return HTMLExtractor{}
	case TypeMarkdown:
		return MarkdownExtractor{}
	default:
		return PlainTextExtractor{}
	}
}

// ExtractFile extracts plain text from content, picking the extractor from
// the filename extension. The result is NFC-normalized and has its
// whitespace collapsed, ready for chunking.
func ExtractFile(content []byte, filename string) (string, error) {
	ext := ""
	if idx := strings.LastIndexByte(filename, '.'); idx >= 0 {
		ext = filename[idx+1:]
	}
	extractor := ExtractorFor(ContentTypeFromExtension(ext))
	text, err := extractor.Extract(content)
	if err != nil {
		return "", err
	}
	return Normalize(text), nil
}

// PlainTextExtractor returns content as-is.
type PlainTextExtractor struct{}

func (PlainTextExtractor) Extract(content []byte) (string, error) {
	return string(content), nil
}

// Normalize applies Unicode NFC normalization and collapses runs of blank
// lines, so visually identical text embeds identically regardless of the
// source encoding.
func Normalize(text string) string {
	return collapseWhitespace(norm.NFC.String(text))
}

// collapseWhitespace trims every line and limits consecutive blank lines to
// one, preserving paragraph breaks for the chunker.
func collapseWhitespace(text string) string {
	var result strings.Builder
	emptyCount := 0

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if result.Len() > 0 {
				emptyCount++
			}
			continue
		}
		if result.Len() > 0 {
			result.WriteByte('\n')
			if emptyCount > 0 {
				result.WriteByte('\n')
			}
		}
		result.WriteString(trimmed)
		emptyCount = 0
	}

	return strings.TrimSpace(result.String())
}
