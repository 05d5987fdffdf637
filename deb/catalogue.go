package deb

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// PackagesCatalogue is the set of PackageRecords for one component/arch
// pair, keyed by Package name, matching spec.md §4.4.
type PackagesCatalogue struct {
	cfg      *Config
	repoRoot string
	byName   map[string]*PackageRecord
}

// NewPackagesCatalogue returns an empty catalogue.
func NewPackagesCatalogue(repoRoot string, cfg *Config) *PackagesCatalogue {
	return &PackagesCatalogue{cfg: cfg, repoRoot: repoRoot, byName: make(map[string]*PackageRecord)}
}

// Add inserts or replaces the record keyed by its Package name (spec.md
// §4.4's add_package: last write wins on a duplicate name).
func (c *PackagesCatalogue) Add(p *PackageRecord) error {
	if err := p.Ensure(); err != nil {
		return err
	}
	c.byName[p.Package()] = p
	return nil
}

// Find returns the record for name, or nil if absent.
func (c *PackagesCatalogue) Find(name string) *PackageRecord {
	return c.byName[name]
}

// Remove deletes the record keyed by name, reporting whether it was present.
func (c *PackagesCatalogue) Remove(name string) bool {
	if _, ok := c.byName[name]; !ok {
		return false
	}
	delete(c.byName, name)
	return true
}

// Names returns every Package name in the catalogue, sorted (spec.md §9's
// resolution of the "ordering within indices" Open Question: deterministic
// ordering by name).
func (c *PackagesCatalogue) Names() []string {
	out := make([]string, 0, len(c.byName))
	for name := range c.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len reports the number of records in the catalogue.
func (c *PackagesCatalogue) Len() int { return len(c.byName) }

// MergeMissing adds every record from other that isn't already present by
// name, without overwriting an existing entry. Used for the binary-all
// fan-out (spec.md §4.7: "every non-all Packages additionally includes the
// records from binary-all"; §8 invariant 5: "no duplicates by Package
// name").
func (c *PackagesCatalogue) MergeMissing(other *PackagesCatalogue) {
	for name, rec := range other.byName {
		if _, exists := c.byName[name]; !exists {
			c.byName[name] = rec
		}
	}
}

// ReadPackagesCatalogue parses an existing Packages file, reifying a
// PackageRecord per paragraph via its Filename field (spec.md §4.4).
func ReadPackagesCatalogue(r io.Reader, repoRoot string, cfg *Config) (*PackagesCatalogue, error) {
	paras, err := ParseParagraphs(r)
	if err != nil {
		return nil, err
	}
	cat := NewPackagesCatalogue(repoRoot, cfg)
	for _, para := range paras {
		rec, err := packageRecordFromParagraph(para, repoRoot, cfg)
		if err != nil {
			return nil, err
		}
		cat.byName[rec.Package()] = rec
	}
	return cat, nil
}

// WriteTo writes the catalogue as a Packages file: one paragraph per
// record in name order, each paragraph separated by a single blank line,
// with a trailing blank line after the last paragraph (spec.md §6's
// asymmetry note: Packages files end with an extra blank line, Sources
// files do not).
func (c *PackagesCatalogue) WriteTo(w io.Writer) error {
	names := c.Names()
	for _, name := range names {
		text, err := c.byName[name].PackagesText()
		if err != nil {
			return err
		}
		if _, err := io.WriteString(w, text); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
	}
	return nil
}

// SourcesCatalogue is the set of SourceRecords for one component, keyed by
// Source name, matching spec.md §4.4.
type SourcesCatalogue struct {
	cfg      *Config
	repoRoot string
	byName   map[string]*SourceRecord
}

// NewSourcesCatalogue returns an empty catalogue.
func NewSourcesCatalogue(repoRoot string, cfg *Config) *SourcesCatalogue {
	return &SourcesCatalogue{cfg: cfg, repoRoot: repoRoot, byName: make(map[string]*SourceRecord)}
}

// Add inserts or replaces the record keyed by its Source name.
func (c *SourcesCatalogue) Add(s *SourceRecord) error {
	if err := s.Ensure(); err != nil {
		return err
	}
	c.byName[s.Source()] = s
	return nil
}

// Find returns the record for name, or nil if absent.
func (c *SourcesCatalogue) Find(name string) *SourceRecord {
	return c.byName[name]
}

// Remove deletes the record keyed by name, reporting whether it was present.
func (c *SourcesCatalogue) Remove(name string) bool {
	if _, ok := c.byName[name]; !ok {
		return false
	}
	delete(c.byName, name)
	return true
}

// Names returns every Source name, sorted.
func (c *SourcesCatalogue) Names() []string {
	out := make([]string, 0, len(c.byName))
	for name := range c.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len reports the number of records in the catalogue.
func (c *SourcesCatalogue) Len() int { return len(c.byName) }

// ReadSourcesCatalogue parses an existing Sources file. Because the
// Package field was renamed from Source on write, the reified paragraph's
// identity field is read back from "Package".
func ReadSourcesCatalogue(r io.Reader, repoRoot string, cfg *Config) (*SourcesCatalogue, error) {
	paras, err := ParseParagraphs(r)
	if err != nil {
		return nil, err
	}
	cat := NewSourcesCatalogue(repoRoot, cfg)
	for _, para := range paras {
		name := para.Get("Package")
		if name == "" {
			return nil, &DiagnosticError{Kind: ErrMalformed, Op: "sources read", Err: fmt.Errorf("paragraph missing Package")}
		}
		dir := para.Get("Directory")
		dscPath := findDscPath(repoRoot, dir, para.List("Files"))
		rec := &SourceRecord{Path: dscPath, inspector: cfg.sourceInspector()}
		core := renameHeading(para, "Package", "Source")
		core = stripTrailingIndexFields(core, []string{"Directory"})
		rec.paragraph = core
		rec.loaded = true
		cat.byName[name] = rec
	}
	return cat, nil
}

// findDscPath reconstructs a .dsc's path from a Sources paragraph's Files:
// list and Directory field (spec.md §4.4): the .dsc is whichever Files
// entry's name ends in ".dsc", reified against
// "<repo_root>/<Directory>/<name>". Unlike scanning the directory itself,
// this can't pick the wrong file when multiple source versions of the same
// package share one Directory.
func findDscPath(repoRoot, directory string, files []string) string {
	entries, err := parseFileEntries(files)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if strings.HasSuffix(e.name, ".dsc") {
			return joinRepoPath(repoRoot, directory) + "/" + e.name
		}
	}
	return ""
}

func joinRepoPath(repoRoot, directory string) string {
	if directory == "" {
		return repoRoot
	}
	return repoRoot + "/" + directory
}

// renameHeading returns a copy of para with from renamed to to, preserving
// field order and position.
func renameHeading(para *Paragraph, from, to string) *Paragraph {
	out := newParagraph()
	for _, h := range para.order {
		f := para.fields[h]
		heading := h
		if h == from {
			heading = to
		}
		out.order = append(out.order, heading)
		out.fields[heading] = &Field{Heading: heading, Value: f.Value, List: append([]string(nil), f.List...), Multi: f.Multi}
	}
	for _, line := range para.lines {
		if strings.HasPrefix(line, from+":") {
			out.lines = append(out.lines, to+line[len(from):])
			continue
		}
		out.lines = append(out.lines, line)
	}
	return out
}

// WriteTo writes the catalogue as a Sources file: one paragraph per record
// in name order, each separated by a single blank line, with NO trailing
// blank line after the last paragraph (spec.md §6's asymmetry note).
func (c *SourcesCatalogue) WriteTo(w io.Writer, probe HashProbe) error {
	names := c.Names()
	for i, name := range names {
		text, err := c.byName[name].SourcesText(probe)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(w, text); err != nil {
			return err
		}
		if i < len(names)-1 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
	}
	return nil
}
