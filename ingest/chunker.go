// Package ingest provides text extraction and chunking for document
// indexing. Extractors turn raw file content into plain text; chunkers
// split that text into overlapping windows sized for embedding.
package ingest

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ChunkerOption configures a chunker implementation.
type ChunkerOption func(*chunkerConfig)

type chunkerConfig struct {
	chunkSize int
	overlap   int
}

func defaultChunkerConfig() chunkerConfig {
	return chunkerConfig{chunkSize: 1000, overlap: 200}
}

// WithChunkSize sets the maximum characters per chunk (default: 1000).
func WithChunkSize(n int) ChunkerOption {
	return func(c *chunkerConfig) { c.chunkSize = n }
}

// WithOverlap sets the overlap between consecutive chunks in characters
// (default: 200). Overlap must be smaller than the chunk size.
func WithOverlap(n int) ChunkerOption {
	return func(c *chunkerConfig) { c.overlap = n }
}

// RecursiveChunker splits text into overlapping windows of at most chunkSize
// characters, preferring paragraph boundaries, then sentence boundaries
// (abbreviation, decimal-number, and CJK punctuation aware), then word
// boundaries, before falling back to hard character cuts. Consecutive chunks
// share an overlap suffix so context is not lost at window edges.
type RecursiveChunker struct {
	chunkSize int
	overlap   int
}

// NewRecursiveChunker creates a RecursiveChunker with the given options.
func NewRecursiveChunker(opts ...ChunkerOption) *RecursiveChunker {
	cfg := defaultChunkerConfig()
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.overlap >= cfg.chunkSize {
		cfg.overlap = cfg.chunkSize / 5
	}
	return &RecursiveChunker{chunkSize: cfg.chunkSize, overlap: cfg.overlap}
}

// Chunk splits text into overlapping chunks. Empty or whitespace-only input
// yields nil; input no longer than the chunk size yields a single chunk
// equal to the trimmed input.
func (rc *RecursiveChunker) Chunk(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= rc.chunkSize {
		return []string{text}
	}
	segments := splitRecursive(text, rc.chunkSize)
	return mergeWithOverlap(segments, rc.chunkSize, rc.overlap)
}

// splitRecursive breaks text into segments each at most maxChars long,
// trying paragraph boundaries first, then sentences, then words.
func splitRecursive(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= maxChars {
		return []string{text}
	}

	paragraphs := strings.Split(text, "\n\n")
	if len(paragraphs) > 1 {
		var segments []string
		for _, p := range paragraphs {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if len(p) <= maxChars {
				segments = append(segments, p)
			} else {
				segments = append(segments, splitOnSentences(p, maxChars)...)
			}
		}
		return segments
	}

	if segments := splitOnSentences(text, maxChars); len(segments) > 1 {
		return segments
	}

	return splitOnWords(text, maxChars)
}

func splitOnSentences(text string, maxChars int) []string {
	boundaries := sentenceBoundaries(text)
	if len(boundaries) == 0 {
		return splitOnWords(text, maxChars)
	}

	var segments []string
	flush := func(seg string) {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			return
		}
		if len(seg) <= maxChars {
			segments = append(segments, seg)
		} else {
			segments = append(segments, splitOnWords(seg, maxChars)...)
		}
	}

	start := 0
	lastGood := -1
	for _, b := range boundaries {
		if len(text[start:b]) <= maxChars {
			lastGood = b
			continue
		}
		if lastGood > start {
			flush(text[start:lastGood])
			start = lastGood
			if len(text[start:b]) <= maxChars {
				lastGood = b
			} else {
				lastGood = -1
			}
		} else {
			flush(text[start:b])
			start = b
			lastGood = -1
		}
	}
	if lastGood > start {
		flush(text[start:lastGood])
		start = lastGood
	}
	flush(text[start:])

	return segments
}

// abbreviations that should NOT end a sentence.
var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true,
	"prof": true, "sr": true, "jr": true,
	"vs": true, "etc": true, "inc": true, "ltd": true,
	"e.g": true, "i.e": true, "viz": true, "al": true,
	"approx": true, "dept": true, "est": true,
	"fig": true, "no": true, "vol": true,
}

func isAbbreviation(text string, dotPos int) bool {
	start := dotPos
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:start])
		if !unicode.IsLetter(r) && r != '.' {
			break
		}
		start -= size
	}
	return abbreviations[strings.ToLower(text[start:dotPos])]
}

// isDecimalDot reports whether the dot at dotPos sits inside a number
// (3.14, $1.50).
func isDecimalDot(text string, dotPos int) bool {
	if dotPos == 0 || dotPos+1 >= len(text) {
		return false
	}
	prev, next := text[dotPos-1], text[dotPos+1]
	return prev >= '0' && prev <= '9' && next >= '0' && next <= '9'
}

// sentenceBoundaries returns byte positions where text may be split at
// sentence ends. Handles ASCII punctuation (.!?) with abbreviation and
// decimal awareness, plus CJK sentence-ending punctuation (。！？).
func sentenceBoundaries(text string) []int {
	var boundaries []int
	runes := []rune(text)
	n := len(runes)

	byteOffsets := make([]int, n+1)
	off := 0
	for i, r := range runes {
		byteOffsets[i] = off
		off += utf8.RuneLen(r)
	}
	byteOffsets[n] = off

	for i := 0; i < n; i++ {
		r := runes[i]

		if r == '。' || r == '！' || r == '？' {
			boundaries = append(boundaries, byteOffsets[i+1])
			continue
		}
		if r != '.' && r != '!' && r != '?' {
			continue
		}

		pos := byteOffsets[i]
		if r == '.' && (isDecimalDot(text, pos) || isAbbreviation(text, pos)) {
			continue
		}

		// Needs whitespace after the punctuation to count as an end.
		if i+1 < n && (runes[i+1] == ' ' || runes[i+1] == '\n') {
			switch {
			case runes[i+1] == '\n':
				boundaries = append(boundaries, byteOffsets[i+1])
			case i+2 < n && unicode.IsUpper(runes[i+2]):
				boundaries = append(boundaries, byteOffsets[i+2])
			case i+2 >= n:
				boundaries = append(boundaries, byteOffsets[n])
			}
		}
	}
	return boundaries
}

func splitOnWords(text string, maxChars int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var segments []string
	var current strings.Builder

	for _, word := range words {
		if len(word) > maxChars {
			if current.Len() > 0 {
				segments = append(segments, current.String())
				current.Reset()
			}
			// Hard character cut for a single oversized token.
			for i := 0; i < len(word); i += maxChars {
				end := min(i+maxChars, len(word))
				segments = append(segments, word[i:end])
			}
			continue
		}

		needed := len(word)
		if current.Len() > 0 {
			needed += current.Len() + 1
		}
		if needed > maxChars {
			segments = append(segments, current.String())
			current.Reset()
			current.WriteString(word)
			continue
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}

	if current.Len() > 0 {
		segments = append(segments, current.String())
	}
	return segments
}

// mergeWithOverlap packs segments into chunks of at most maxChars, carrying
// an overlap suffix from each finished chunk into the next.
func mergeWithOverlap(segments []string, maxChars, overlapChars int) []string {
	if len(segments) == 0 {
		return nil
	}

	var chunks []string
	var current strings.Builder

	for _, seg := range segments {
		needed := len(seg)
		if current.Len() > 0 {
			needed += current.Len() + 1
		}
		if needed <= maxChars {
			if current.Len() > 0 {
				current.WriteByte('\n')
			}
			current.WriteString(seg)
			continue
		}

		if current.Len() > 0 {
			chunk := current.String()
			chunks = append(chunks, chunk)

			overlap := overlapSuffix(chunk, overlapChars)
			current.Reset()
			if overlap != "" && len(overlap)+1+len(seg) <= maxChars {
				current.WriteString(overlap)
				current.WriteByte('\n')
			}
		}
		current.WriteString(seg)
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	out := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	return out
}

// overlapSuffix returns up to n trailing characters of text, trimmed to a
// word boundary.
func overlapSuffix(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(text) <= n {
		return text
	}
	suffix := text[len(text)-n:]
	if idx := strings.Index(suffix, " "); idx >= 0 {
		return strings.TrimSpace(suffix[idx+1:])
	}
	return strings.TrimSpace(suffix)
}
