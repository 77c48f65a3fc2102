package ingest

import (
	"strings"
	"testing"
)

func TestContentTypeFromExtension(t *testing.T) {
	cases := []struct {
		ext  string
		want ContentType
	}{
		{"pdf", TypePDF},
		{".PDF", TypePDF},
		{"html", TypeHTML},
		{"htm", TypeHTML},
		{"md", TypeMarkdown},
		{"markdown", TypeMarkdown},
		{"txt", TypePlainText},
		{"", TypePlainText},
		{"csv", TypePlainText},
	}
	for _, tc := range cases {
		if got := ContentTypeFromExtension(tc.ext); got != tc.want {
			t.Errorf("ContentTypeFromExtension(%q) = %q, want %q", tc.ext, got, tc.want)
		}
	}
}

func TestExtractFilePlainText(t *testing.T) {
	got, err := ExtractFile([]byte("  hello   \n\n\n\n  world  "), "notes.txt")
	if err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}
	if got != "hello\n\nworld" {
		t.Errorf("got %q", got)
	}
}

func TestCollapseWhitespacePreservesParagraphs(t *testing.T) {
	in := "para one line one\npara one line two\n\n\n\npara two"
	got := collapseWhitespace(in)
	want := "para one line one\npara one line two\n\npara two"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNormalizeNFC(t *testing.T) {
	// "é" as e + combining acute should normalize to the single code point.
	decomposed := "café"
	composed := "café"
	if got := Normalize(decomposed); got != composed {
		t.Errorf("got %q, want %q", got, composed)
	}
}

func TestStripTags(t *testing.T) {
	html := `<html><head><style>body { color: red; }</style>
<script>alert("hi");</script></head>
<body><h1>Title</h1><p>First <b>bold</b> paragraph.</p><p>Second.</p></body></html>`

	got := stripTags(html)
	if strings.Contains(got, "alert") || strings.Contains(got, "color") {
		t.Errorf("script/style content leaked: %q", got)
	}
	for _, want := range []string{"Title", "First bold paragraph.", "Second."} {
		if !strings.Contains(collapseWhitespace(got), want) {
			t.Errorf("missing %q in %q", want, got)
		}
	}
}

func TestExtractFileHTML(t *testing.T) {
	html := `<html><body><p>Quarterly results were strong.</p></body></html>`
	got, err := ExtractFile([]byte(html), "report.html")
	if err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}
	if !strings.Contains(got, "Quarterly results were strong.") {
		t.Errorf("got %q", got)
	}
	if strings.Contains(got, "<p>") {
		t.Errorf("tags leaked: %q", got)
	}
}

func TestExtractFileMarkdown(t *testing.T) {
	md := "# Heading\n\nSome *emphasized* text.\n\n```\ncode block\n```\n"
	got, err := ExtractFile([]byte(md), "doc.md")
	if err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}
	for _, want := range []string{"Heading", "emphasized", "code block"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in %q", want, got)
		}
	}
	if strings.Contains(got, "#") || strings.Contains(got, "*") || strings.Contains(got, "```") {
		t.Errorf("markdown syntax leaked: %q", got)
	}
}

func TestExtractFilePDFInvalid(t *testing.T) {
	if _, err := ExtractFile([]byte("not a pdf"), "broken.pdf"); err == nil {
		t.Fatal("expected error for invalid PDF content")
	}
}

func TestExtractFilePDFEmpty(t *testing.T) {
	if _, err := ExtractFile(nil, "empty.pdf"); err == nil {
		t.Fatal("expected error for empty PDF content")
	}
}
