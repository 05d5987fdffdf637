package deb

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileKind distinguishes the artefact types the Layout Manager walks for,
// matching spec.md §4.5.
type FileKind string

const (
	KindDeb FileKind = ".deb"
	KindDsc FileKind = ".dsc"
)

// Layout manages the canonical dists/<suite>/<component>/
// binary-<arch>/<section>/ and .../source/<section>/ directory tree of an
// APT repository on disk: idempotent directory creation, conflict-free
// file placement, and discovery of the .deb/.dsc files already staged
// under a root (spec.md §4.5).
type Layout struct {
	Root string
}

// NewLayout returns a Layout rooted at root.
func NewLayout(root string) *Layout {
	return &Layout{Root: root}
}

// Mkdir creates dir (and nothing above it) if it doesn't already exist.
// Matching spec.md §4.5's idempotency requirement, an already-existing
// directory is not an error.
func (l *Layout) Mkdir(dir string) error {
	if err := os.Mkdir(dir, 0o755); err != nil && !os.IsExist(err) {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	return nil
}

// Mkdirs creates dir and every missing parent, idempotently.
func (l *Layout) Mkdirs(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory tree %s: %w", dir, err)
	}
	return nil
}

// CopyFile copies src to dst, removing dst first if it already exists
// (spec.md §4.5 and §7: a pre-existing destination is overwritten, not
// treated as a conflict error).
func (l *Layout) CopyFile(dst, src string) error {
	if err := removeIfExists(dst); err != nil {
		return fmt.Errorf("removing existing %s: %w", dst, err)
	}
	if err := l.Mkdirs(filepath.Dir(dst)); err != nil {
		return err
	}

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

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copying %s to %s: %w", src, dst, err)
	}
	return nil
}

// LinkFile hard-links src at dst, removing dst first if present. Falls
// back to a copy if the link fails (e.g. src and dst are on different
// filesystems), since spec.md §4.5 only requires dst to end up with src's
// content, not that it share an inode.
func (l *Layout) LinkFile(dst, src string) error {
	if err := removeIfExists(dst); err != nil {
		return fmt.Errorf("removing existing %s: %w", dst, err)
	}
	if err := l.Mkdirs(filepath.Dir(dst)); err != nil {
		return err
	}

	if err := os.Link(src, dst); err != nil {
		return l.CopyFile(dst, src)
	}
	return nil
}

// FileIterator yields paths one at a time as a background walk discovers
// them, matching spec.md's supplemented "lazy file discovery" feature
// (original_source's generator-based find_files): callers that only need
// the first match, or want to stop early, never pay for a full directory
// walk before seeing anything.
type FileIterator struct {
	paths  chan string
	errCh  chan error
	stopCh chan struct{}
	err    error
	done   bool
}

// Next returns the next path and true, or ("", false) once exhausted. Call
// Err after Next returns false to distinguish "done" from "walk failed".
func (it *FileIterator) Next() (string, bool) {
	if it.done {
		return "", false
	}
	p, ok := <-it.paths
	if !ok {
		it.done = true
		it.err = <-it.errCh
		return "", false
	}
	return p, true
}

// Err returns any error encountered while walking.
func (it *FileIterator) Err() error { return it.err }

// Stop abandons the walk before it reaches the end, letting the background
// goroutine exit without the caller having to drain every remaining path.
// Safe to call after Next has already returned false.
func (it *FileIterator) Stop() {
	if it.done {
		return
	}
	it.done = true
	close(it.stopCh)
	for range it.paths {
	}
	it.err = <-it.errCh
}

// FindFiles returns a lazy iterator over every file under root whose name
// has the suffix named by kind, walked in lexical order (spec.md §4.5). The
// walk runs in a background goroutine and blocks on sending each match, so
// a match is handed to Next as soon as it's found rather than after the
// whole tree has been traversed.
func (l *Layout) FindFiles(root string, kind FileKind) *FileIterator {
	it := &FileIterator{
		paths:  make(chan string),
		errCh:  make(chan error, 1),
		stopCh: make(chan struct{}),
	}
	go func() {
		defer close(it.paths)
		walkErr := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			if !strings.HasSuffix(path, string(kind)) {
				return nil
			}
			select {
			case it.paths <- path:
				return nil
			case <-it.stopCh:
				return filepath.SkipAll
			}
		})
		if walkErr != nil && walkErr != filepath.SkipAll {
			it.errCh <- fmt.Errorf("walking %s: %w", root, walkErr)
		}
		close(it.errCh)
	}()
	return it
}

// FindFilesFromPattern returns every file matching the glob pattern whose
// name additionally has the suffix named by kind (spec.md §4.5's
// find_files_from_pattern). There is no glob library in the example
// corpus for either repository or archive discovery, so this is built on
// the standard library's path/filepath.Glob; see DESIGN.md.
func (l *Layout) FindFilesFromPattern(pattern string, kind FileKind) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("globbing %s: %w", pattern, err)
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if strings.HasSuffix(m, string(kind)) {
			out = append(out, m)
		}
	}
	return out, nil
}
