package deb

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
)

// writeCompressedIndex writes plainPath with the content writeFn produces,
// then an in-process gzip (.gz) sibling and an externally-compressed bzip2
// (.bz2) sibling (spec.md §1's "compression of index files, delegated to
// gzip/bzip2 libraries"; see DESIGN.md for why bzip2 specifically forks an
// external tool). Every variant's size and digests are recorded into files
// under its repository-relative path, for the suite Release's hash blocks.
func (r *Repository) writeCompressedIndex(ctx context.Context, plainPath string, writeFn func(io.Writer) error, files map[HashAlgorithm][]IndexFile) error {
	if err := r.layout.Mkdirs(filepath.Dir(plainPath)); err != nil {
		return err
	}

	f, err := os.Create(plainPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", plainPath, err)
	}
	if err := writeFn(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", plainPath, err)
	}

	if err := r.recordIndexFile(plainPath, files); err != nil {
		return err
	}

	gzPath := plainPath + ".gz"
	if err := gzipFile(plainPath, gzPath); err != nil {
		return err
	}
	if err := r.recordIndexFile(gzPath, files); err != nil {
		return err
	}

	bz2Path := plainPath + ".bz2"
	if err := bzip2File(ctx, plainPath, bz2Path); err != nil {
		return err
	}
	if err := r.recordIndexFile(bz2Path, files); err != nil {
		return err
	}

	return nil
}

// recordIndexFile hashes path under every configured algorithm and
// appends an IndexFile entry, keyed by that algorithm, for the suite
// Release's hash blocks.
func (r *Repository) recordIndexFile(path string, files map[HashAlgorithm][]IndexFile) error {
	probe := r.Config.hashProbe()
	size, digests, err := probe.Probe(path, r.Config.hashAlgorithms())
	if err != nil {
		return err
	}
	rel, err := relativeIndexPath(r.suiteRoot(), path)
	if err != nil {
		return err
	}
	for algo, digest := range digests {
		files[algo] = append(files[algo], IndexFile{Path: rel, Size: size, Digest: digest})
	}
	return nil
}

// gzipFile writes an in-process gzip-compressed copy of src at dst, using
// the standard library's compress/gzip (no ecosystem gzip encoder was
// found anywhere in the example corpus more idiomatic than the stdlib
// one, which the teacher itself does not use but every APT tool's own
// gzip-format output must match byte-for-byte with).
func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		return fmt.Errorf("gzipping %s: %w", src, err)
	}
	return gz.Close()
}

// bzip2File forks the external bzip2(1) tool to compress src to dst,
// matching spec.md §1's delegation of bzip2 compression to an external
// tool (the standard library's compress/bzip2 only decompresses).
func bzip2File(ctx context.Context, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	defer out.Close()

	cmd := exec.CommandContext(ctx, "bzip2", "-c")
	cmd.Stdin = in
	cmd.Stdout = out
	if err := cmd.Run(); err != nil {
		return &DiagnosticError{Kind: ErrExternalTool, Op: "bzip2", Path: src, Err: err}
	}
	return nil
}

// writeComponentRelease writes the Release file inside binDir, which is
// dists/<suite>/<component>/binary-<arch>/ or, with arch "source",
// dists/<suite>/<component>/source/.
func writeComponentRelease(r *Repository, component, arch, binDir string) error {
	cr := ComponentRelease{
		Origin:       r.Config.Origin,
		Label:        r.Config.Label,
		Archive:      r.Config.Suite,
		Component:    component,
		Architecture: arch,
		Description:  r.Config.Description,
	}
	f, err := os.Create(filepath.Join(binDir, "Release"))
	if err != nil {
		return fmt.Errorf("creating component Release: %w", err)
	}
	defer f.Close()
	return cr.WriteTo(f)
}

// writeSuiteRelease writes dists/<suite>/Release from the accumulated
// index file entries, then, if a signing key is configured, its detached
// signature (spec.md §4.6, §4.6A). architectures and components are the
// sets Update actually observed on disk, not merely configured (spec.md
// §4.7: "the components actually observed, and the architectures
// actually observed").
func (r *Repository) writeSuiteRelease(files map[HashAlgorithm][]IndexFile, architectures, components []string) error {
	sr := SuiteRelease{
		Origin:        r.Config.Origin,
		Label:         r.Config.Label,
		Suite:         r.Config.Suite,
		Codename:      r.Config.Codename,
		Architectures: architectures,
		Components:    components,
		Description:   r.Config.Description,
		Date:          r.Config.releaseDate(),
		Files:         files,
	}

	var buf bytes.Buffer
	if err := sr.WriteTo(&buf, r.Config.hashAlgorithms()); err != nil {
		return err
	}

	return WriteSignedRelease(filepath.Join(r.suiteRoot(), "Release"), buf.Bytes(), r.Config.SigningKey)
}
