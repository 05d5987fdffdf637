package deb

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blakesmith/ar"
)

// writeMockDeb constructs a minimal but well-formed .deb at path: a
// debian-binary member and a control.tar.gz member containing the given
// control text.
func writeMockDeb(t *testing.T, path, controlContent string) {
	t.Helper()

	var cBuf bytes.Buffer
	gw := gzip.NewWriter(&cBuf)
	tw := tar.NewWriter(gw)
	hdr := &tar.Header{Name: "control", Mode: 0644, Size: int64(len(controlContent))}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatalf("tar WriteHeader: %v", err)
	}
	if _, err := tw.Write([]byte(controlContent)); err != nil {
		t.Fatalf("tar Write: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar Close: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("gzip Close: %v", err)
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer f.Close()

	arW := ar.NewWriter(f)
	if err := arW.WriteGlobalHeader(); err != nil {
		t.Fatalf("WriteGlobalHeader: %v", err)
	}
	writeArMember(t, arW, string(memberDebianBinary), []byte("2.0\n"))
	writeArMember(t, arW, string(memberControlTar)+".gz", cBuf.Bytes())
}

func writeArMember(t *testing.T, w *ar.Writer, name string, body []byte) {
	t.Helper()
	header := &ar.Header{Name: name, Size: int64(len(body)), Mode: 0644, ModTime: time.Now()}
	if err := w.WriteHeader(header); err != nil {
		t.Fatalf("ar WriteHeader: %v", err)
	}
	if _, err := w.Write(body); err != nil {
		t.Fatalf("ar Write: %v", err)
	}
}

func TestArDebInspectorControlParagraph(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.deb")
	control := "Package: test\nVersion: 1.0\nArchitecture: amd64\n"
	writeMockDeb(t, path, control)

	got, err := (arDebInspector{}).ControlParagraph(path)
	if err != nil {
		t.Fatalf("ControlParagraph: %v", err)
	}
	if got != control {
		t.Errorf("ControlParagraph = %q, want %q", got, control)
	}
}

func TestArDebInspectorMissingControl(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.deb")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	arW := ar.NewWriter(f)
	arW.WriteGlobalHeader()
	writeArMember(t, arW, string(memberDebianBinary), []byte("2.0\n"))
	f.Close()

	if _, err := (arDebInspector{}).ControlParagraph(path); err == nil {
		t.Fatal("expected error for .deb with no control.tar member")
	}
}
