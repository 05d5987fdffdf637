package deb

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PackageRecord represents one .deb file: its control paragraph plus the
// repository-relative Filename, Size and per-algorithm hashes that get
// written into a Packages index. Control data is fetched lazily on first
// access and cached, matching spec.md §4.2.
type PackageRecord struct {
	// Path is the on-disk location of the .deb. For a record reified from a
	// Packages catalogue entry it is the entry's Filename joined to the
	// repository root.
	Path string

	algorithms []HashAlgorithm
	inspector  DebInspector
	probe      HashProbe

	paragraph *Paragraph
	filename  string
	size      int64
	hashes    map[HashAlgorithm]string
	loaded    bool
}

// NewPackageRecord returns a PackageRecord for the .deb at path. Control
// data is not read until first access (Architecture, Section, Package,
// PackagesText, ...).
func NewPackageRecord(path string, cfg *Config) *PackageRecord {
	return &PackageRecord{
		Path:       path,
		algorithms: cfg.hashAlgorithms(),
		inspector:  cfg.debInspector(),
		probe:      cfg.hashProbe(),
	}
}

// load fetches control data, Filename, Size and hashes the first time any
// accessor is called. It is idempotent.
func (p *PackageRecord) load() error {
	if p.loaded {
		return nil
	}
	if p.Path == "" {
		return &DiagnosticError{Kind: ErrMalformed, Op: "package load", Err: fmt.Errorf("no on-disk path to load from")}
	}

	control, err := p.inspector.ControlParagraph(p.Path)
	if err != nil {
		return err
	}
	paras, err := ParseParagraphs(strings.NewReader(control))
	if err != nil {
		return fmt.Errorf("parsing control paragraph of %s: %w", p.Path, err)
	}
	if len(paras) == 0 {
		return &DiagnosticError{Kind: ErrMalformed, Op: "package load", Path: p.Path, Err: fmt.Errorf("empty control paragraph")}
	}
	p.paragraph = paras[0]

	abs, err := filepath.Abs(p.Path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", p.Path, err)
	}
	p.filename = lastNComponents(abs, 6)

	size, digests, err := p.probe.Probe(p.Path, p.algorithms)
	if err != nil {
		return err
	}
	p.size = size
	p.hashes = digests

	p.loaded = true
	return nil
}

// lastNComponents joins the last n slash-separated components of an
// absolute path with "/", matching spec.md §3's "Filename = join('/',
// last_six_components(path))".
func lastNComponents(path string, n int) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	var nonEmpty []string
	for _, part := range parts {
		if part != "" {
			nonEmpty = append(nonEmpty, part)
		}
	}
	if len(nonEmpty) > n {
		nonEmpty = nonEmpty[len(nonEmpty)-n:]
	}
	return strings.Join(nonEmpty, "/")
}

// Package returns the Package control field, the record's identity.
func (p *PackageRecord) Package() string {
	if err := p.load(); err != nil {
		return ""
	}
	return p.paragraph.Get("Package")
}

// Architecture returns the Architecture control field.
func (p *PackageRecord) Architecture() string {
	if err := p.load(); err != nil {
		return ""
	}
	return p.paragraph.Get("Architecture")
}

// Section returns the Section control field.
func (p *PackageRecord) Section() string {
	if err := p.load(); err != nil {
		return ""
	}
	return p.paragraph.Get("Section")
}

// Version returns the Version control field.
func (p *PackageRecord) Version() string {
	if err := p.load(); err != nil {
		return ""
	}
	return p.paragraph.Get("Version")
}

// SourceName returns the source package this binary was built from: the
// Source control field with any parenthesised version suffix stripped
// ("foo (1.0-1)" -> "foo"), or the Package field itself when Source is
// absent, matching Debian's convention that a binary with no separate
// Source: line is its own source package (spec.md §8 invariant 6).
func (p *PackageRecord) SourceName() string {
	if err := p.load(); err != nil {
		return ""
	}
	if src := p.paragraph.Get("Source"); src != "" {
		return strings.Fields(src)[0]
	}
	return p.paragraph.Get("Package")
}

// Filename returns the computed repository-relative Filename field.
func (p *PackageRecord) Filename() string {
	if err := p.load(); err != nil {
		return ""
	}
	return p.filename
}

// Size returns the file size in bytes.
func (p *PackageRecord) Size() int64 {
	if err := p.load(); err != nil {
		return 0
	}
	return p.size
}

// Hash returns the hex digest for algo, or "" if not configured.
func (p *PackageRecord) Hash(algo HashAlgorithm) string {
	if err := p.load(); err != nil {
		return ""
	}
	return p.hashes[algo]
}

// Ensure forces the lazy load and reports any error encountered, for
// callers (catalogue population) that need to surface a diagnostic rather
// than silently return zero values.
func (p *PackageRecord) Ensure() error {
	return p.load()
}

// PackagesText returns the exact text emitted into a Packages file for this
// record: the preserved control-paragraph lines, followed by Filename,
// Size and each configured hash field on its own line (spec.md §4.2, §6).
func (p *PackageRecord) PackagesText() (string, error) {
	if err := p.load(); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(p.paragraph.Text())
	fmt.Fprintf(&b, "Filename: %s\n", p.filename)
	fmt.Fprintf(&b, "Size: %d\n", p.size)
	for _, algo := range p.algorithms {
		if h, ok := p.hashes[algo]; ok {
			fmt.Fprintf(&b, "%s: %s\n", algo, h)
		}
	}
	return b.String(), nil
}

// packageRecordFromParagraph reifies a PackageRecord from a Packages-file
// paragraph already read from disk (catalogue.Read), resolving Path from
// the paragraph's Filename field relative to repoRoot, per spec.md §4.4.
func packageRecordFromParagraph(para *Paragraph, repoRoot string, cfg *Config) (*PackageRecord, error) {
	filename := para.Get("Filename")
	if filename == "" {
		return nil, &DiagnosticError{Kind: ErrMalformed, Op: "packages read", Err: fmt.Errorf("paragraph missing Filename")}
	}

	// Strip the index-only fields the writer appended so the cached
	// paragraph, if rewritten before a reload, doesn't duplicate them.
	core := stripTrailingIndexFields(para, append([]string{"Filename", "Size"}, hashHeadings()...))

	p := &PackageRecord{
		Path:       filepath.Join(repoRoot, filename),
		algorithms: cfg.hashAlgorithms(),
		inspector:  cfg.debInspector(),
		probe:      cfg.hashProbe(),
		paragraph:  core,
		filename:   filename,
		hashes:     make(map[HashAlgorithm]string),
	}
	if sizeStr := para.Get("Size"); sizeStr != "" {
		fmt.Sscanf(sizeStr, "%d", &p.size)
	}
	for _, algo := range p.algorithms {
		if v := para.Get(string(algo)); v != "" {
			p.hashes[algo] = v
		}
	}
	p.loaded = true
	return p, nil
}

func hashHeadings() []string {
	return []string{string(MD5), string(SHA1), string(SHA256)}
}

// stripTrailingIndexFields returns a copy of para with the named headings
// removed from the order/field set and their lines dropped from the
// preserved text, so round-tripping a catalogue entry doesn't grow
// duplicate Filename/Size/hash lines on repeated reads.
func stripTrailingIndexFields(para *Paragraph, headings []string) *Paragraph {
	drop := make(map[string]bool, len(headings))
	for _, h := range headings {
		drop[h] = true
	}

	out := newParagraph()
	for _, h := range para.order {
		if drop[h] {
			continue
		}
		f := para.fields[h]
		out.order = append(out.order, h)
		out.fields[h] = &Field{Heading: f.Heading, Value: f.Value, List: append([]string(nil), f.List...), Multi: f.Multi}
	}
	// inDropped tracks whether the line most recently seen started a
	// dropped field, so a continuation line is kept or skipped based on
	// the heading it actually belongs to rather than by scanning
	// backward over whatever was kept so far.
	inDropped := false
	for _, line := range para.lines {
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			if inDropped {
				continue
			}
			out.lines = append(out.lines, line)
			continue
		}
		heading := line
		if idx := strings.Index(line, ":"); idx >= 0 {
			heading = line[:idx]
		}
		if drop[heading] {
			inDropped = true
			continue
		}
		inDropped = false
		out.lines = append(out.lines, line)
	}
	return out
}

// removeIfExists is a small filesystem helper shared by the Layout Manager
// and the remove operation: it deletes path if present, treating "already
// gone" as success.
func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
