package deb

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
)

// releaseDateFormat is the RFC 1123 variant Debian Release files use for
// their Date: field.
const releaseDateFormat = "Mon, 02 Jan 2006 15:04:05 MST"

// ComponentRelease writes a component-level Release file (dists/<suite>/
// <component>/binary-<arch>/Release or dists/<suite>/<component>/source/
// Release), a fixed six-line heading paragraph naming the
// repository's origin and the component/architecture it describes
// (spec.md §4.6).
type ComponentRelease struct {
	Origin       string
	Label        string
	Archive      string
	Component    string
	Architecture string
	Description  string
}

// WriteTo writes the six Release: heading lines in the fixed order
// spec.md §4.6 and §6 require: Archive, Component, Label, Origin,
// Architecture, Description.
func (c ComponentRelease) WriteTo(w io.Writer) error {
	lines := []string{
		fmt.Sprintf("Archive: %s", c.Archive),
		fmt.Sprintf("Component: %s", c.Component),
		fmt.Sprintf("Label: %s", c.Label),
		fmt.Sprintf("Origin: %s", c.Origin),
		fmt.Sprintf("Architecture: %s", c.Architecture),
		fmt.Sprintf("Description: %s", c.Description),
	}
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

// IndexFile is one file entry under a suite Release's hash blocks: a
// repository-relative path, size, and digest.
type IndexFile struct {
	Path   string
	Size   int64
	Digest string
}

// SuiteRelease writes the top-level dists/<suite>/Release file: an
// eight-line heading paragraph followed by one MD5Sum/SHA1/SHA256 block
// per configured hash algorithm, each entry right-aligned on size the way
// apt-ftparchive emits them (spec.md §4.6, §6, and the byte-alignment
// called out in invariant S6).
type SuiteRelease struct {
	Origin        string
	Label         string
	Suite         string
	Codename      string
	Architectures []string
	Components    []string
	Description   string
	Date          time.Time

	// Files maps each configured HashAlgorithm to the index files to list
	// under that algorithm's block.
	Files map[HashAlgorithm][]IndexFile
}

func (s SuiteRelease) WriteTo(w io.Writer, algorithms []HashAlgorithm) error {
	headings := []string{
		fmt.Sprintf("Architectures: %s", strings.Join(s.Architectures, " ")),
		fmt.Sprintf("Codename: %s", s.Codename),
		fmt.Sprintf("Components: %s", strings.Join(s.Components, " ")),
		fmt.Sprintf("Date: %s", s.Date.UTC().Format(releaseDateFormat)),
		fmt.Sprintf("Label: %s", s.Label),
		fmt.Sprintf("Origin: %s", s.Origin),
		fmt.Sprintf("Suite: %s", s.Suite),
		fmt.Sprintf("Description: %s", s.Description),
	}
	for _, l := range headings {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}

	width := maxSizeWidth(s.Files)
	for _, algo := range algorithms {
		entries := s.Files[algo]
		if entries == nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s:\n", algo); err != nil {
			return err
		}
		sorted := append([]IndexFile(nil), entries...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
		for _, e := range sorted {
			if _, err := fmt.Fprintf(w, " %s    %*d %s\n", e.Digest, width, e.Size, e.Path); err != nil {
				return err
			}
		}
	}
	return nil
}

// maxSizeWidth returns the widest decimal size across every listed file,
// so every hash block right-aligns its size column to the same width.
func maxSizeWidth(files map[HashAlgorithm][]IndexFile) int {
	width := 1
	for _, entries := range files {
		for _, e := range entries {
			w := len(fmt.Sprintf("%d", e.Size))
			if w > width {
				width = w
			}
		}
	}
	return width
}

// SignRelease produces a detached, ASCII-armored OpenPGP signature over
// release (the exact bytes of a suite Release file) using the private key
// material in armoredKey, matching spec.md §4.6A's in-process signing
// design: the production of dists/<suite>/Release.gpg without forking
// `gpg --detach-sign --armor`.
func SignRelease(release []byte, armoredKey string) ([]byte, error) {
	keyring, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armoredKey))
	if err != nil {
		return nil, fmt.Errorf("reading signing key: %w", err)
	}
	if len(keyring) == 0 {
		return nil, fmt.Errorf("signing key contains no entities")
	}

	var buf bytes.Buffer
	armorWriter, err := armor.Encode(&buf, openpgp.SignatureType, nil)
	if err != nil {
		return nil, fmt.Errorf("opening armor writer: %w", err)
	}

	if err := openpgp.DetachSign(armorWriter, keyring[0], bytes.NewReader(release), nil); err != nil {
		return nil, fmt.Errorf("signing release: %w", err)
	}
	if err := armorWriter.Close(); err != nil {
		return nil, fmt.Errorf("closing armor writer: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteSignedRelease writes releasePath and, when armoredKey is non-empty,
// its detached signature alongside it as releasePath+".gpg" (spec.md
// §4.6A, §4.7's sign operation).
func WriteSignedRelease(releasePath string, release []byte, armoredKey string) error {
	if err := os.WriteFile(releasePath, release, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", releasePath, err)
	}
	if armoredKey == "" {
		return nil
	}
	sig, err := SignRelease(release, armoredKey)
	if err != nil {
		return err
	}
	sigPath := releasePath + ".gpg"
	if err := os.WriteFile(sigPath, sig, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", sigPath, err)
	}
	return nil
}

// relativeIndexPath returns path relative to the suite root, using
// forward slashes regardless of platform, the form Release hash blocks
// list entries under (e.g. "main/binary-amd64/Packages").
func relativeIndexPath(suiteRoot, path string) (string, error) {
	rel, err := filepath.Rel(suiteRoot, path)
	if err != nil {
		return "", fmt.Errorf("relativizing %s against %s: %w", path, suiteRoot, err)
	}
	return filepath.ToSlash(rel), nil
}
