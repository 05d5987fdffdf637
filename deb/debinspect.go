package deb

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/blakesmith/ar"
)

// DebInspector extracts the raw control-paragraph text from a .deb file,
// matching spec.md §4.2's "lazily extracts its control paragraph via an
// external .deb-inspection tool".
type DebInspector interface {
	ControlParagraph(path string) (string, error)
}

// arDebInspector reads the .deb's ar(1) container in-process, decompresses
// control.tar(.gz) and returns the "control" member's content. This is the
// default DebInspector: for a .deb whose control member is control.tar.gz
// or an uncompressed control.tar its output is byte-identical to
// `dpkg-deb -I <deb> control`. Other control.tar compressions (such as .xz
// or .zst) are read as plain tar and fail. Grounded directly on the
// teacher repository's extractControlFromBytes.
type arDebInspector struct{}

func (arDebInspector) ControlParagraph(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	arR := ar.NewReader(f)
	for {
		header, err := arR.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("reading ar header in %s: %w", path, err)
		}

		if !strings.HasPrefix(header.Name, string(memberControlTar)) {
			continue
		}

		var tr *tar.Reader
		if strings.HasSuffix(header.Name, ".gz") {
			gzr, err := gzip.NewReader(arR)
			if err != nil {
				return "", fmt.Errorf("opening control.tar.gz in %s: %w", path, err)
			}
			defer gzr.Close()
			tr = tar.NewReader(gzr)
		} else {
			tr = tar.NewReader(arR)
		}

		for {
			th, err := tr.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return "", fmt.Errorf("reading control tar in %s: %w", path, err)
			}
			if filepath.Base(th.Name) == controlFileName {
				var buf bytes.Buffer
				if _, err := io.Copy(&buf, tr); err != nil {
					return "", fmt.Errorf("reading control member in %s: %w", path, err)
				}
				return buf.String(), nil
			}
		}
	}
	return "", &DiagnosticError{Kind: ErrMalformed, Op: "control extract", Path: path, Err: fmt.Errorf("control file not found")}
}

// execDebInspector forks `dpkg-deb -I <deb> control` as described verbatim
// in spec.md §6. Per spec.md §4.2's error handling note, a nonzero exit
// does not abort extraction: parsing proceeds on whatever was written to
// standard output.
type execDebInspector struct{}

func (execDebInspector) ControlParagraph(path string) (string, error) {
	cmd := exec.Command("dpkg-deb", "-I", path, "control")
	out, _ := cmd.Output()
	if len(out) == 0 {
		return "", &DiagnosticError{Kind: ErrExternalTool, Op: "dpkg-deb", Path: path, Err: fmt.Errorf("no output")}
	}
	return string(out), nil
}
