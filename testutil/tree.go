// Package testutil holds helpers shared by the ndd tests.
package testutil

import (
	"archive/tar"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// SampleTree is a small directory tree with nesting,
// an empty file,
// and one file large enough to span several pipe buffers.
var SampleTree = map[string]string{
	"README":               "a sample tree\n",
	"empty":                "",
	"src/main.c":           "int main(void) { return 0; }\n",
	"src/lib/util.c":       "static int x;\n",
	"src/lib/util.h":       "extern int x;\n",
	"data/big.bin":         strings.Repeat("\x00\x01\x02\x03ndd\xff", 64<<10),
	"data/nested/a/b/c/d":  "deep\n",
	"data/nested/a/b/note": "shallower\n",
}

// WriteTree creates the files named by the slash-separated keys of files under dir.
func WriteTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()

	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// ReadTree returns the regular files under dir,
// keyed by slash-separated relative path.
func ReadTree(t *testing.T, dir string) map[string]string {
	t.Helper()

	result := make(map[string]string)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		result[filepath.ToSlash(rel)] = string(b)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return result
}

// SameTree fails the test if the regular files under want and got differ.
func SameTree(t *testing.T, want, got string) {
	t.Helper()

	if diff := cmp.Diff(ReadTree(t, want), ReadTree(t, got)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

// TarEntry is one entry for WriteTar.
// A zero Type means a regular file holding Content.
type TarEntry struct {
	Name     string
	Type     byte
	Mode     int64
	Linkname string
	Content  string
}

// WriteTar writes a tar stream holding entries, in order, to w.
func WriteTar(t *testing.T, w io.Writer, entries ...TarEntry) {
	t.Helper()

	tw := tar.NewWriter(w)
	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.Name,
			Typeflag: e.Type,
			Mode:     e.Mode,
			Linkname: e.Linkname,
		}
		if hdr.Typeflag == 0 {
			hdr.Typeflag = tar.TypeReg
		}
		if hdr.Mode == 0 {
			hdr.Mode = 0o644
		}
		if hdr.Typeflag == tar.TypeReg {
			hdr.Size = int64(len(e.Content))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := io.WriteString(tw, e.Content); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
}

// WriteTarEntry writes a one-entry tar stream holding a regular file to w.
func WriteTarEntry(t *testing.T, w io.Writer, name, content string) {
	t.Helper()
	WriteTar(t, w, TarEntry{Name: name, Content: content})
}
