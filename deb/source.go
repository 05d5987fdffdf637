package deb

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp/clearsign"
)

// SourceInspector decodes a .dsc file, which is ordinarily PGP-clearsigned,
// into its plain control-paragraph text (spec.md §4.3).
type SourceInspector interface {
	ControlParagraph(path string) (string, error)
}

// clearsignSourceInspector decodes a clearsigned .dsc in-process using
// openpgp/clearsign. It makes no attempt to verify the signature: spec.md
// §4.3 only requires the plaintext, and signature verification is out of
// scope (no Non-goal lists key management, but nothing in the spec calls
// for verifying a .dsc's author either). If the file isn't clearsigned at
// all, its content is returned unchanged.
type clearsignSourceInspector struct{}

func (clearsignSourceInspector) ControlParagraph(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	block, _ := clearsign.Decode(data)
	if block == nil {
		return string(data), nil
	}
	return string(block.Plaintext), nil
}

// execSourceInspector shells out to `gpg --decrypt`, the literal external
// tool named in spec.md §4.3 and §6. gpg's exit status is ignored the same
// way dpkg-deb's is: a clearsigned file with no available public key still
// prints the plaintext to standard output with a warning on standard error.
type execSourceInspector struct{}

func (execSourceInspector) ControlParagraph(path string) (string, error) {
	cmd := exec.Command("gpg", "--decrypt", path)
	out, _ := cmd.Output()
	if len(out) == 0 {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", &DiagnosticError{Kind: ErrExternalTool, Op: "gpg", Path: path, Err: err}
		}
		return string(data), nil
	}
	return string(out), nil
}

// SourceRecord represents one .dsc file: its control paragraph plus the
// derived Directory, original-archive and diff-archive names that get
// written into a Sources index (spec.md §4.3).
type SourceRecord struct {
	Path string

	inspector SourceInspector

	paragraph *Paragraph
	loaded    bool
}

// NewSourceRecord returns a SourceRecord for the .dsc at path.
func NewSourceRecord(path string, cfg *Config) *SourceRecord {
	return &SourceRecord{Path: path, inspector: cfg.sourceInspector()}
}

func (s *SourceRecord) load() error {
	if s.loaded {
		return nil
	}
	if s.Path == "" {
		return &DiagnosticError{Kind: ErrMalformed, Op: "source load", Err: fmt.Errorf("no on-disk path to load from")}
	}

	text, err := s.inspector.ControlParagraph(s.Path)
	if err != nil {
		return err
	}
	paras, err := ParseParagraphs(strings.NewReader(text))
	if err != nil {
		return fmt.Errorf("parsing control paragraph of %s: %w", s.Path, err)
	}
	if len(paras) == 0 {
		return &DiagnosticError{Kind: ErrMalformed, Op: "source load", Path: s.Path, Err: fmt.Errorf("empty control paragraph")}
	}
	s.paragraph = paras[0]
	s.loaded = true
	return nil
}

// Source returns the Source control field, the record's identity.
func (s *SourceRecord) Source() string {
	if err := s.load(); err != nil {
		return ""
	}
	return s.paragraph.Get("Source")
}

// Version returns the Version control field.
func (s *SourceRecord) Version() string {
	if err := s.load(); err != nil {
		return ""
	}
	return s.paragraph.Get("Version")
}

// Ensure forces the lazy load and reports any error encountered.
func (s *SourceRecord) Ensure() error {
	return s.load()
}

// Directory returns the last five path components of the absolute path of
// the directory holding the .dsc, matching spec.md §3's "Directory = join('/',
// last_five_components(path))".
func (s *SourceRecord) Directory() (string, error) {
	abs, err := filepath.Abs(s.Path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", s.Path, err)
	}
	return lastNComponents(filepath.Dir(abs), 5), nil
}

// filesEntries parses the Files: multi-line field into (md5, size, name)
// triples, the canonical form in a .dsc (spec.md §4.3).
func (s *SourceRecord) filesEntries() ([]fileEntry, error) {
	if err := s.load(); err != nil {
		return nil, err
	}
	return parseFileEntries(s.paragraph.List("Files"))
}

type fileEntry struct {
	digest string
	size   string
	name   string
}

func parseFileEntries(lines []string) ([]fileEntry, error) {
	out := make([]fileEntry, 0, len(lines))
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, &DiagnosticError{Kind: ErrMalformed, Op: "parse Files", Err: fmt.Errorf("malformed Files entry %q", line)}
		}
		out = append(out, fileEntry{digest: fields[0], size: fields[1], name: fields[2]})
	}
	return out, nil
}

// OriginalArchiveNames returns the names of every file in Files: whose
// basename contains the substring ".orig.", the upstream tarball(s) a
// source package carries alongside its .diff/.debian.tar (spec.md §4.3).
func (s *SourceRecord) OriginalArchiveNames() ([]string, error) {
	entries, err := s.filesEntries()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if strings.Contains(e.name, ".orig.") {
			out = append(out, e.name)
		}
	}
	return out, nil
}

// DiffArchiveName returns the name of the file in Files: whose basename
// contains ".diff.", or "" if none (native or 3.0 (quilt) packages use
// .debian.tar instead).
func (s *SourceRecord) DiffArchiveName() (string, error) {
	entries, err := s.filesEntries()
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if strings.Contains(e.name, ".diff.") {
			return e.name, nil
		}
	}
	return "", nil
}

// SourcesText returns the exact text emitted into a Sources file for this
// record (spec.md §4.3, §6): the Source field is renamed Package, the
// Directory field is appended, and the .dsc itself is appended as a final
// synthetic entry to each checksum-table field present (Files,
// Checksums-Sha1, Checksums-Sha256), each keyed by its own hash algorithm.
func (s *SourceRecord) SourcesText(probe HashProbe) (string, error) {
	if err := s.load(); err != nil {
		return "", err
	}

	dir, err := s.Directory()
	if err != nil {
		return "", err
	}

	dscName := filepath.Base(s.Path)
	size, digests, err := probe.Probe(s.Path, []HashAlgorithm{MD5, SHA1, SHA256})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, heading := range s.paragraph.Headings() {
		f := s.paragraph.fields[heading]
		emitHeading := heading
		if heading == "Source" {
			emitHeading = "Package"
		}
		if f.Multi {
			fmt.Fprintf(&b, "%s:\n", emitHeading)
			for _, l := range f.List {
				fmt.Fprintf(&b, " %s\n", l)
			}
			if extra, ok := dscTableEntry(heading, dscName, size, digests); ok {
				fmt.Fprintf(&b, " %s\n", extra)
			}
		} else {
			fmt.Fprintf(&b, "%s: %s\n", emitHeading, f.Value)
		}
	}
	fmt.Fprintf(&b, "Directory: %s\n", dir)
	return b.String(), nil
}

// dscTableEntry builds the synthetic Files/Checksums-* line representing
// the .dsc file itself within its own checksum table.
func dscTableEntry(heading, name string, size int64, digests map[HashAlgorithm]string) (string, bool) {
	switch heading {
	case "Files":
		return fmt.Sprintf("%s %d %s", digests[MD5], size, name), true
	case "Checksums-Sha1":
		return fmt.Sprintf("%s %d %s", digests[SHA1], size, name), true
	case "Checksums-Sha256":
		return fmt.Sprintf("%s %d %s", digests[SHA256], size, name), true
	default:
		return "", false
	}
}

// stripEpoch removes a leading "N:" epoch prefix from a Debian version
// string, matching the reference implementation's find_section, which
// strips the epoch before glob-matching against binary filenames (those
// never embed the epoch).
func stripEpoch(version string) string {
	if idx := strings.Index(version, ":"); idx >= 0 {
		return version[idx+1:]
	}
	return version
}

// binaryNames splits a .dsc's comma-separated Binary: field into the
// individual package names it declares, trimming the per-entry whitespace
// deb822 allows around commas.
func binaryNames(p *Paragraph) []string {
	raw := p.Get("Binary")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if name := strings.TrimSpace(part); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// BinaryNames returns the package names declared in the .dsc's Binary:
// field, the set a removal must expand a source name to (spec.md §4.7's
// remove: "for each resulting source name include every Binary member").
func (s *SourceRecord) BinaryNames() ([]string, error) {
	if err := s.load(); err != nil {
		return nil, err
	}
	return binaryNames(s.paragraph), nil
}

// FindSection locates, under componentPath, the section directory holding
// the binaries this source package declares via its Binary: field,
// matching spec.md §4.3's find_section: each declared binary name is
// globbed for as "binary-*/*/<name>_<version-without-epoch>_*.deb",
// wildcarding across every architecture and section since a source
// doesn't pin either on its own. It returns ErrUnresolvedSection if none
// of the declared binaries have been staged yet (scenario S5: a source
// named "foo" whose binaries are "libfoo" and "foo-tools", neither
// sharing the source's own name).
func (s *SourceRecord) FindSection(componentPath string) (string, error) {
	if err := s.load(); err != nil {
		return "", err
	}
	version := stripEpoch(s.paragraph.Get("Version"))
	names, err := s.BinaryNames()
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		names = []string{s.Source()}
	}

	for _, name := range names {
		pattern := filepath.Join(componentPath, "binary-*", "*", fmt.Sprintf("%s_%s_*.deb", name, version))
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return "", fmt.Errorf("globbing %s: %w", pattern, err)
		}
		if len(matches) > 0 {
			return filepath.Base(filepath.Dir(matches[0])), nil
		}
	}
	return "", &DiagnosticError{Kind: ErrUnresolvedSection, Op: "find_section", Path: componentPath, Err: fmt.Errorf("no binaries staged for source %s %s (binaries: %v)", s.Source(), version, names)}
}

