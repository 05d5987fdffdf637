package deb

import (
	"io"
	"strings"
	"testing"
)

func TestParagraphReaderSingleField(t *testing.T) {
	text := "Package: foo\nVersion: 1.0\n"
	paras, err := ParseParagraphs(strings.NewReader(text))
	if err != nil {
		t.Fatalf("ParseParagraphs: %v", err)
	}
	if len(paras) != 1 {
		t.Fatalf("got %d paragraphs, want 1", len(paras))
	}
	p := paras[0]
	if got := p.Get("Package"); got != "foo" {
		t.Errorf("Package = %q, want foo", got)
	}
	if got := p.Get("Version"); got != "1.0" {
		t.Errorf("Version = %q, want 1.0", got)
	}
}

func TestParagraphReaderMultipleParagraphs(t *testing.T) {
	text := "Package: a\n\nPackage: b\n\nPackage: c\n"
	paras, err := ParseParagraphs(strings.NewReader(text))
	if err != nil {
		t.Fatalf("ParseParagraphs: %v", err)
	}
	if len(paras) != 3 {
		t.Fatalf("got %d paragraphs, want 3", len(paras))
	}
	for i, want := range []string{"a", "b", "c"} {
		if got := paras[i].Get("Package"); got != want {
			t.Errorf("paragraph %d Package = %q, want %q", i, got, want)
		}
	}
}

func TestParagraphReaderMultiLineField(t *testing.T) {
	text := "Source: foo\nFiles:\n aaa 111 foo_1.0.orig.tar.gz\n bbb 222 foo_1.0.diff.gz\n"
	paras, err := ParseParagraphs(strings.NewReader(text))
	if err != nil {
		t.Fatalf("ParseParagraphs: %v", err)
	}
	list := paras[0].List("Files")
	if len(list) != 2 {
		t.Fatalf("got %d Files entries, want 2", len(list))
	}
	if list[0] != "aaa 111 foo_1.0.orig.tar.gz" {
		t.Errorf("Files[0] = %q", list[0])
	}
}

func TestParagraphReaderCollapsesBlankLines(t *testing.T) {
	text := "Package: a\n\n\n\nPackage: b\n"
	paras, err := ParseParagraphs(strings.NewReader(text))
	if err != nil {
		t.Fatalf("ParseParagraphs: %v", err)
	}
	if len(paras) != 2 {
		t.Fatalf("got %d paragraphs, want 2", len(paras))
	}
}

func TestParagraphTextRoundTrip(t *testing.T) {
	text := "Package: foo\nDescription: short\n long line one\n long line two\n"
	pr := NewParagraphReader(strings.NewReader(text))
	p, err := pr.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if p.Text() != text {
		t.Errorf("Text() = %q, want %q", p.Text(), text)
	}
	if _, err := pr.Next(); err != io.EOF {
		t.Errorf("second Next() err = %v, want io.EOF", err)
	}
}

func TestParagraphSetOverwrites(t *testing.T) {
	p := newParagraph()
	p.Set("Package", "foo")
	p.Set("Package", "bar")
	if got := p.Get("Package"); got != "bar" {
		t.Errorf("Get(Package) = %q, want bar", got)
	}
	if len(p.Headings()) != 1 {
		t.Errorf("Headings() = %v, want single heading", p.Headings())
	}
}

func TestParagraphReaderEmptyInput(t *testing.T) {
	_, err := ParseParagraphs(strings.NewReader(""))
	if err != nil {
		t.Fatalf("ParseParagraphs on empty input: %v", err)
	}
}
