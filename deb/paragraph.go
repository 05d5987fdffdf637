package deb

import (
	"bufio"
	"io"
	"strings"
)

// Field is one (heading, value) entry of a Paragraph. Value holds either a
// single-line string (Multi == false) or the trimmed lines of a multi-line
// field (Multi == true), recognised when the text immediately following the
// heading's colon is empty and is followed by space-indented continuation
// lines.
//
// Reference: spec.md §4.1.
type Field struct {
	Heading string
	Value   string
	List    []string
	Multi   bool
}

// Paragraph is an ordered sequence of Fields, plus the verbatim source
// lines needed to reproduce the original text exactly (spec.md §8
// invariant 1, the round-trip property).
type Paragraph struct {
	order  []string
	fields map[string]*Field
	lines  []string
}

// newParagraph returns an empty, ready-to-use Paragraph.
func newParagraph() *Paragraph {
	return &Paragraph{fields: make(map[string]*Field)}
}

// Headings returns the field headings in first-occurrence order.
func (p *Paragraph) Headings() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Has reports whether heading is present in the paragraph.
func (p *Paragraph) Has(heading string) bool {
	_, ok := p.fields[heading]
	return ok
}

// Get returns the single-line value of heading, or "" if absent or
// multi-line. Use List for multi-line fields.
func (p *Paragraph) Get(heading string) string {
	f, ok := p.fields[heading]
	if !ok || f.Multi {
		return ""
	}
	return f.Value
}

// List returns the trimmed lines of a multi-line field, or nil if heading
// is absent or single-line.
func (p *Paragraph) List(heading string) []string {
	f, ok := p.fields[heading]
	if !ok || !f.Multi {
		return nil
	}
	out := make([]string, len(f.List))
	copy(out, f.List)
	return out
}

// Set assigns (or overwrites, per spec.md §4.1's "overwrite silently"
// clause) a single-line field value, recording the heading in
// first-occurrence order if new.
func (p *Paragraph) Set(heading, value string) {
	if f, ok := p.fields[heading]; ok {
		f.Value, f.Multi, f.List = value, false, nil
		return
	}
	p.order = append(p.order, heading)
	p.fields[heading] = &Field{Heading: heading, Value: value}
}

// SetList assigns a multi-line field.
func (p *Paragraph) SetList(heading string, lines []string) {
	if f, ok := p.fields[heading]; ok {
		f.List, f.Multi, f.Value = append([]string(nil), lines...), true, ""
		return
	}
	p.order = append(p.order, heading)
	p.fields[heading] = &Field{Heading: heading, Multi: true, List: append([]string(nil), lines...)}
}

// Text reproduces the paragraph's original source lines verbatim, each
// terminated by "\n" (spec.md §8 invariant 1).
func (p *Paragraph) Text() string {
	var b strings.Builder
	for _, l := range p.lines {
		b.WriteString(l)
		b.WriteString("\n")
	}
	return b.String()
}

// ParagraphReader reads a sequence of blank-line-delimited control
// paragraphs lazily, one at a time, matching spec.md §4.1's "lazy
// sequence" description.
type ParagraphReader struct {
	scanner *bufio.Scanner
	done    bool
}

// NewParagraphReader wraps r as a lazy paragraph source. The scanner buffer
// is enlarged up front since control-paragraph lines (extended
// descriptions, Files: lists) routinely exceed bufio.Scanner's 64KiB
// default.
func NewParagraphReader(r io.Reader) *ParagraphReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &ParagraphReader{scanner: s}
}

// Next returns the next paragraph, or (nil, io.EOF) once the input is
// exhausted. Consecutive blank lines collapse; a continuation line with no
// prior heading is dropped (spec.md §4.1).
func (r *ParagraphReader) Next() (*Paragraph, error) {
	if r.done {
		return nil, io.EOF
	}

	p := newParagraph()
	var current *Field
	sawContent := false

	for r.scanner.Scan() {
		line := r.scanner.Text()

		if strings.TrimSpace(line) == "" {
			if sawContent {
				return p, nil
			}
			continue
		}

		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			if current == nil {
				continue
			}
			p.lines = append(p.lines, line)
			trimmed := strings.TrimSpace(line)
			if current.Multi {
				current.List = append(current.List, trimmed)
			} else {
				current.Value = strings.TrimRight(current.Value+"\n"+line, " \t")
			}
			sawContent = true
			continue
		}

		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		heading := line[:idx]
		value := strings.TrimSpace(line[idx+1:])

		p.lines = append(p.lines, line)
		f := &Field{Heading: heading}
		if value == "" {
			f.Multi = true
		} else {
			f.Value = value
		}
		if _, exists := p.fields[heading]; !exists {
			p.order = append(p.order, heading)
		}
		p.fields[heading] = f
		current = f
		sawContent = true
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	r.done = true
	if !sawContent {
		return nil, io.EOF
	}
	return p, nil
}

// ParseParagraphs reads every paragraph from r into memory. Provided for
// callers that don't need the lazy form.
func ParseParagraphs(r io.Reader) ([]*Paragraph, error) {
	pr := NewParagraphReader(r)
	var out []*Paragraph
	for {
		p, err := pr.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
}
