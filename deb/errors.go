package deb

import "fmt"

// ErrorKind names one of the abstract error categories from spec.md §7.
type ErrorKind int

const (
	// ErrNotFound: a .deb/.dsc glob resolved to nothing, or an original/diff
	// archive or Release file a caller expected is missing.
	ErrNotFound ErrorKind = iota
	// ErrUnresolvedSection: a source has no matching binary under the
	// component (find_section found nothing).
	ErrUnresolvedSection
	// ErrExternalTool: a forked tool (dpkg-deb, a *sum tool, gpg, bzip2)
	// exited nonzero or produced unusable output.
	ErrExternalTool
	// ErrMalformed: metadata is missing a required field (Filename in a
	// Packages paragraph, a .dsc entry in a Sources paragraph's Files list).
	ErrMalformed
	// ErrConflict: a filesystem destination already existed during a
	// copy/link and was overwritten (by design, per spec.md §7).
	ErrConflict
)

func (k ErrorKind) String() string {
	switch k {
	case ErrNotFound:
		return "not found"
	case ErrUnresolvedSection:
		return "unresolved section"
	case ErrExternalTool:
		return "external tool failure"
	case ErrMalformed:
		return "malformed metadata"
	case ErrConflict:
		return "filesystem conflict"
	default:
		return "unknown"
	}
}

// DiagnosticError is the error type that carries one of the abstract error
// kinds (spec.md §7). Add logs a per-item DiagnosticError, records it on
// that item's AddResult and continues with the next item. Other operations
// return it directly: Remove for a name found in no catalogue, Sign for a
// missing Release file, and Update when an external tool such as bzip2
// fails.
type DiagnosticError struct {
	Kind ErrorKind
	Op   string // e.g. "add", "remove", "find_section"
	Path string
	Err  error
}

func (e *DiagnosticError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (%s): %v", e.Op, e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *DiagnosticError) Unwrap() error { return e.Err }
