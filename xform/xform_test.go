package xform

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"

	"github.com/bobg/ndd/testutil"
)

func TestArchiveCompressRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	testutil.WriteTree(t, src, testutil.SampleTree)

	var packed bytes.Buffer
	pr, pw := io.Pipe()
	go func() {
		_, err := TarCreate(ctx, pw, src, nil)
		pw.CloseWithError(err)
	}()
	if err := Gzip(&packed, pr); err != nil {
		t.Fatal(err)
	}

	var unzipped bytes.Buffer
	if err := Gunzip(&unzipped, &packed); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(t.TempDir(), "out")
	if _, err := TarExtract(ctx, &unzipped, dst); err != nil {
		t.Fatal(err)
	}

	testutil.SameTree(t, src, dst)
}

func TestExcludes(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	testutil.WriteTree(t, src, map[string]string{
		"keep.txt":         "a",
		"skip.tmp":         "b",
		"sub/keep.go":      "c",
		"sub/deep/x.tmp":   "d",
		".git/HEAD":        "e",
		"build/out/bin":    "f",
		"build/readme.txt": "g",
	})

	var buf bytes.Buffer
	if _, err := TarCreate(ctx, &buf, src, []string{"*.tmp", ".git", "build/out/**"}); err != nil {
		t.Fatal(err)
	}
	dst := t.TempDir()
	if _, err := TarExtract(ctx, &buf, dst); err != nil {
		t.Fatal(err)
	}

	got := testutil.ReadTree(t, dst)
	want := map[string]string{
		"keep.txt":         "a",
		"sub/keep.go":      "c",
		"build/readme.txt": "g",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractRejectsEscape(t *testing.T) {
	var buf bytes.Buffer
	testutil.WriteTarEntry(t, &buf, "../evil", "x")
	if _, err := TarExtract(context.Background(), &buf, t.TempDir()); err == nil {
		t.Error("got no error extracting ../evil")
	}
}

func TestExtractRejectsSymlinkParent(t *testing.T) {
	var (
		outside = t.TempDir()
		dir     = t.TempDir()
		buf     bytes.Buffer
	)
	testutil.WriteTar(t, &buf,
		testutil.TarEntry{Name: "a", Type: tar.TypeSymlink, Linkname: outside},
		testutil.TarEntry{Name: "a/pwned", Content: "x"},
	)
	if _, err := TarExtract(context.Background(), &buf, dir); err == nil {
		t.Error("got no error writing through a symlinked directory")
	}
	if _, err := os.Lstat(filepath.Join(outside, "pwned")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("file escaped to %s (err %v)", outside, err)
	}

	// A hard link may not reach through one either.
	buf.Reset()
	testutil.WriteTar(t, &buf,
		testutil.TarEntry{Name: "b", Type: tar.TypeSymlink, Linkname: outside},
		testutil.TarEntry{Name: "stolen", Type: tar.TypeLink, Linkname: "b/secret"},
	)
	if err := os.WriteFile(filepath.Join(outside, "secret"), []byte("s"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := TarExtract(context.Background(), &buf, t.TempDir()); err == nil {
		t.Error("got no error hard-linking through a symlinked directory")
	}
}

func TestExtractReplacesSymlinkedFile(t *testing.T) {
	var (
		outside = filepath.Join(t.TempDir(), "target")
		dir     = t.TempDir()
		buf     bytes.Buffer
	)
	if err := os.WriteFile(outside, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}
	testutil.WriteTar(t, &buf,
		testutil.TarEntry{Name: "f", Type: tar.TypeSymlink, Linkname: outside},
		testutil.TarEntry{Name: "f", Content: "new"},
	)
	if _, err := TarExtract(context.Background(), &buf, dir); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(outside)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "keep" {
		t.Errorf("file outside was overwritten with %q", got)
	}
	got, err = os.ReadFile(filepath.Join(dir, "f"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "new" {
		t.Errorf("got %q, want new", got)
	}
}

func TestReadOnlyDirRoundTrip(t *testing.T) {
	var (
		ctx = context.Background()
		src = t.TempDir()
		dst = t.TempDir()
		ro  = filepath.Join(src, "ro")
	)
	testutil.WriteTree(t, src, map[string]string{"ro/sub/f": "inner", "ro/g": "outer"})
	if err := os.Chmod(filepath.Join(ro, "sub"), 0o555); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(ro, 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		for _, d := range []string{ro, filepath.Join(ro, "sub"), filepath.Join(dst, "ro"), filepath.Join(dst, "ro", "sub")} {
			os.Chmod(d, 0o755)
		}
	})

	var packed bytes.Buffer
	if _, err := TarCreate(ctx, &packed, src, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := TarExtract(ctx, &packed, dst); err != nil {
		t.Fatal(err)
	}

	for _, d := range []string{"ro", "ro/sub"} {
		info, err := os.Stat(filepath.Join(dst, d))
		if err != nil {
			t.Fatal(err)
		}
		if got := info.Mode().Perm(); got != 0o555 {
			t.Errorf("%s: got mode %v, want %v", d, got, os.FileMode(0o555))
		}
	}
	for name, want := range map[string]string{"ro/sub/f": "inner", "ro/g": "outer"} {
		got, err := os.ReadFile(filepath.Join(dst, name))
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != want {
			t.Errorf("%s: got %q, want %q", name, got, want)
		}
	}
}

func TestBapplyNoChange(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	data := bytes.Repeat([]byte("0123456789abcdef"), 1000) // 16000 bytes, partial last block
	if err := os.WriteFile(out, data, 0o644); err != nil {
		t.Fatal(err)
	}
	before, err := os.Stat(out)
	if err != nil {
		t.Fatal(err)
	}

	st, err := Bapply(bytes.NewReader(data), out)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(PatchStats{Total: 4, Different: 0}, st); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("output changed")
	}
	after, err := os.Stat(out)
	if err != nil {
		t.Fatal(err)
	}
	if !after.ModTime().Equal(before.ModTime()) {
		t.Error("output was written to")
	}
}

func TestBapplyChanges(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	old := bytes.Repeat([]byte{'a'}, 3*PatchBlockSize+100)
	if err := os.WriteFile(out, old, 0o644); err != nil {
		t.Fatal(err)
	}

	// Change one byte in block 1 and one in the partial tail, and a shorter stream than the file.
	stream := append([]byte(nil), old[:3*PatchBlockSize+50]...)
	stream[PatchBlockSize+7] = 'b'
	stream[3*PatchBlockSize+10] = 'c'

	st, err := Bapply(bytes.NewReader(stream), out)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(PatchStats{Total: 4, Different: 2}, st); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	want := append(append([]byte(nil), stream...), old[len(stream):]...)
	if !bytes.Equal(got, want) {
		t.Error("output does not have the patched contents")
	}
}

func TestBapplyShortOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	if err := os.WriteFile(out, []byte("short"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Bapply(strings.NewReader("longer than the output"), out); err == nil {
		t.Error("got no error patching a shorter output")
	}
	if _, err := Bapply(strings.NewReader("x"), filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("got no error patching a missing output")
	}
}

func TestTee(t *testing.T) {
	input := strings.Repeat("tee me ", 500000) // several buffers' worth
	var a, b bytes.Buffer
	n, err := Tee(context.Background(), strings.NewReader(input), &a, &b)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(len(input)) {
		t.Errorf("got %d bytes, want %d", n, len(input))
	}
	if a.String() != input || b.String() != input {
		t.Error("outputs differ from input")
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, fmt.Errorf("broken pipe") }

func TestTeeWriteError(t *testing.T) {
	var a bytes.Buffer
	if _, err := Tee(context.Background(), strings.NewReader("data"), &a, failWriter{}); err == nil {
		t.Error("got no error from a failing output")
	}
}

func TestTeeFiles(t *testing.T) {
	var (
		ctx  = context.Background()
		dir  = t.TempDir()
		outs = []string{filepath.Join(dir, "a"), filepath.Join(dir, "b")}
		buf  bytes.Buffer
	)
	if err := teeMain(ctx, Env{Stdin: strings.NewReader("twice"), Stdout: &buf}, outs); err != nil {
		t.Fatal(err)
	}
	for _, out := range outs {
		got, err := os.ReadFile(out)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "twice" {
			t.Errorf("%s: got %q, want twice", out, got)
		}
	}

	// The first file is opened, then the second cannot be.
	bad := []string{filepath.Join(dir, "c"), filepath.Join(dir, "missing", "d")}
	if err := teeMain(ctx, Env{Stdin: strings.NewReader("x"), Stdout: &buf}, bad); err == nil {
		t.Error("got no error opening an output in a missing directory")
	}
}

func TestRun(t *testing.T) {
	var (
		ctx = context.Background()
		log = zaptest.NewLogger(t)
		out = filepath.Join(t.TempDir(), "copy")
		buf bytes.Buffer
	)
	err := Run(ctx, "tee", Env{Stdin: strings.NewReader("hello"), Stdout: &buf, Log: log}, []string{out})
	if err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if buf.String() != "hello" || string(got) != "hello" {
		t.Errorf("got %q and %q, want hello twice", buf.String(), got)
	}

	if err := Run(ctx, "nonesuch", Env{}, nil); err == nil {
		t.Error("got no error running an unknown program")
	}

	want := []string{"bapply", "gunzip", "gzip", "tar-create", "tar-extract", "tee"}
	if diff := cmp.Diff(want, Names()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
