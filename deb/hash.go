package deb

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"os/exec"
	"strings"
)

// HashProbe computes file size and per-algorithm hex digests for arbitrary
// files on disk, matching spec.md §4.0's "Hash & Size Probe" component.
// Two implementations satisfy it: an in-process one (cryptoHashProbe) and
// an external-tool one (execHashProbe) that forks md5sum/sha1sum/sha256sum,
// matching spec.md §9's note that outputs must stay byte-identical between
// the two.
type HashProbe interface {
	// Probe returns the file size and, for each requested algorithm, the
	// lowercase hex digest of path's content.
	Probe(path string, algorithms []HashAlgorithm) (size int64, digests map[HashAlgorithm]string, err error)
}

// cryptoHashProbe computes digests in-process with the standard library's
// crypto packages. This is the default HashProbe: spec.md §9 explicitly
// permits an in-process digest library "provided outputs are
// byte-identical" to md5sum/sha1sum/sha256sum, which crypto/md5, crypto/sha1
// and crypto/sha256 are.
type cryptoHashProbe struct{}

func newHash(algo HashAlgorithm) hash.Hash {
	switch algo {
	case MD5:
		return md5.New()
	case SHA1:
		return sha1.New()
	case SHA256:
		return sha256.New()
	default:
		return nil
	}
}

func (cryptoHashProbe) Probe(path string, algorithms []HashAlgorithm) (int64, map[HashAlgorithm]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return 0, nil, fmt.Errorf("stat %s: %w", path, err)
	}

	hashes := make(map[HashAlgorithm]hash.Hash, len(algorithms))
	writers := make([]io.Writer, 0, len(algorithms))
	for _, a := range algorithms {
		h := newHash(a)
		if h == nil {
			return 0, nil, fmt.Errorf("unsupported hash algorithm %q", a)
		}
		hashes[a] = h
		writers = append(writers, h)
	}

	if _, err := io.Copy(io.MultiWriter(writers...), f); err != nil {
		return 0, nil, fmt.Errorf("hashing %s: %w", path, err)
	}

	digests := make(map[HashAlgorithm]string, len(algorithms))
	for a, h := range hashes {
		digests[a] = hex.EncodeToString(h.Sum(nil))
	}
	return stat.Size(), digests, nil
}

// execHashProbe shells out to the external digest tools named in spec.md
// §6 (md5sum, sha1sum, sha256sum), taking the first whitespace-delimited
// token of standard output as the digest, exactly as spec.md §4.2
// describes.
type execHashProbe struct{}

func toolFor(algo HashAlgorithm) (string, error) {
	switch algo {
	case MD5:
		return "md5sum", nil
	case SHA1:
		return "sha1sum", nil
	case SHA256:
		return "sha256sum", nil
	default:
		return "", fmt.Errorf("unsupported hash algorithm %q", algo)
	}
}

func (execHashProbe) Probe(path string, algorithms []HashAlgorithm) (int64, map[HashAlgorithm]string, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return 0, nil, fmt.Errorf("stat %s: %w", path, err)
	}

	digests := make(map[HashAlgorithm]string, len(algorithms))
	for _, a := range algorithms {
		tool, err := toolFor(a)
		if err != nil {
			return 0, nil, err
		}
		out, err := exec.Command(tool, path).Output()
		if err != nil {
			return 0, nil, &DiagnosticError{Kind: ErrExternalTool, Op: tool, Path: path, Err: err}
		}
		fields := strings.Fields(string(out))
		if len(fields) == 0 {
			return 0, nil, &DiagnosticError{Kind: ErrExternalTool, Op: tool, Path: path, Err: fmt.Errorf("empty output")}
		}
		digests[a] = fields[0]
	}
	return stat.Size(), digests, nil
}
