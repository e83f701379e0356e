package xform

import (
	"archive/tar"
	"context"
	"flag"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func init() {
	Register("tar-create", tarCreateMain)
	Register("tar-extract", tarExtractMain)
}

type stringsFlag []string

func (s *stringsFlag) String() string     { return strings.Join(*s, ",") }
func (s *stringsFlag) Set(v string) error { *s = append(*s, v); return nil }

func tarCreateMain(ctx context.Context, env Env, args []string) error {
	var excludes stringsFlag
	flags := flag.NewFlagSet("tar-create", flag.ContinueOnError)
	flags.Var(&excludes, "exclude", "glob of paths to leave out (repeatable)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return errors.New("usage: tar-create [-exclude GLOB]... DIR")
	}
	n, err := TarCreate(ctx, env.Stdout, flags.Arg(0), excludes)
	if err != nil {
		return err
	}
	env.Log.Debug("archived", zap.String("dir", flags.Arg(0)), zap.Int("entries", n))
	return nil
}

func tarExtractMain(ctx context.Context, env Env, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: tar-extract DIR")
	}
	n, err := TarExtract(ctx, env.Stdin, args[0])
	if err != nil {
		return err
	}
	env.Log.Debug("extracted", zap.String("dir", args[0]), zap.Int("entries", n))
	return nil
}

// Excluded tells whether the slash-separated relative path rel
// matches any of the exclude patterns.
// A pattern with no slash is matched against every path component,
// the way tar --exclude does;
// others are matched against the whole path with ** support.
func Excluded(rel string, patterns []string) (bool, error) {
	for _, p := range patterns {
		if !strings.Contains(p, "/") {
			for _, part := range strings.Split(rel, "/") {
				ok, err := doublestar.Match(p, part)
				if err != nil {
					return false, errors.Wrapf(err, "bad exclude pattern %q", p)
				}
				if ok {
					return true, nil
				}
			}
			continue
		}
		ok, err := doublestar.Match(strings.TrimPrefix(p, "/"), rel)
		if err != nil {
			return false, errors.Wrapf(err, "bad exclude pattern %q", p)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// TarCreate writes the tree under dir to w as a tar stream,
// entries in lexical order,
// leaving out anything matching excludes.
// It returns the number of entries written.
func TarCreate(ctx context.Context, w io.Writer, dir string, excludes []string) (int, error) {
	for _, p := range excludes {
		if !doublestar.ValidatePattern(p) {
			return 0, errors.Errorf("bad exclude pattern %q", p)
		}
	}

	dir = filepath.Clean(dir)

	var (
		mu    sync.Mutex
		paths []string
	)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == dir {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		excluded, err := Excluded(rel, excludes)
		if err != nil {
			return err
		}
		if excluded {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		mu.Lock()
		paths = append(paths, rel)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return 0, errors.Wrapf(err, "walking %s", dir)
	}
	sort.Strings(paths)

	tw := tar.NewWriter(w)
	for _, rel := range paths {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := addEntry(tw, dir, rel); err != nil {
			return 0, err
		}
	}
	return len(paths), errors.Wrap(tw.Close(), "finishing tar stream")
}

func addEntry(tw *tar.Writer, dir, rel string) error {
	full := filepath.Join(dir, filepath.FromSlash(rel))
	info, err := os.Lstat(full)
	if err != nil {
		return errors.Wrapf(err, "statting %s", full)
	}

	var link string
	if info.Mode()&os.ModeSymlink != 0 {
		if link, err = os.Readlink(full); err != nil {
			return errors.Wrapf(err, "reading link %s", full)
		}
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return errors.Wrapf(err, "making header for %s", full)
	}
	hdr.Name = rel
	if info.IsDir() {
		hdr.Name += "/"
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return errors.Wrapf(err, "writing header for %s", rel)
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(full)
	if err != nil {
		return errors.Wrapf(err, "opening %s", full)
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return errors.Wrapf(err, "archiving %s", full)
}

// TarExtract unpacks the tar stream r under dir,
// creating dir if needed.
// Entries that would land outside dir are an error.
// It returns the number of entries extracted.
func TarExtract(ctx context.Context, r io.Reader, dir string) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, errors.Wrapf(err, "creating %s", dir)
	}

	var (
		tr   = tar.NewReader(r)
		n    int
		dirs []dirMode
	)
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return n, setDirModes(dirs)
		}
		if err != nil {
			return n, errors.Wrap(err, "reading tar stream")
		}

		name := path.Clean(hdr.Name)
		if name == "." {
			continue
		}
		if escapes(name) {
			return n, errors.Errorf("tar entry %s escapes %s", hdr.Name, dir)
		}
		if err := checkParents(dir, name); err != nil {
			return n, err
		}
		dest := filepath.Join(dir, filepath.FromSlash(name))
		mode := os.FileMode(hdr.Mode).Perm()

		switch hdr.Typeflag {
		case tar.TypeDir:
			if info, err := os.Lstat(dest); err == nil && info.Mode()&fs.ModeSymlink != 0 {
				return n, errors.Errorf("tar entry %s is a symlink on disk", hdr.Name)
			}
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return n, errors.Wrapf(err, "creating %s", dest)
			}
			// Applied at the end, so a read-only directory can still be filled.
			dirs = append(dirs, dirMode{name: name, path: dest, mode: mode})

		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return n, errors.Wrapf(err, "creating directory for %s", dest)
			}
			if err := removeSymlink(dest); err != nil {
				return n, err
			}
			if err := writeFile(dest, tr, mode); err != nil {
				return n, err
			}

		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return n, errors.Wrapf(err, "creating directory for %s", dest)
			}
			os.Remove(dest)
			if err := os.Symlink(hdr.Linkname, dest); err != nil {
				return n, errors.Wrapf(err, "linking %s", dest)
			}

		case tar.TypeLink:
			target := path.Clean(hdr.Linkname)
			if escapes(target) {
				return n, errors.Errorf("hard link %s -> %s escapes %s", hdr.Name, hdr.Linkname, dir)
			}
			if err := checkParents(dir, target); err != nil {
				return n, err
			}
			os.Remove(dest)
			if err := os.Link(filepath.Join(dir, filepath.FromSlash(target)), dest); err != nil {
				return n, errors.Wrapf(err, "linking %s", dest)
			}

		case tar.TypeXGlobalHeader:
			continue

		default:
			return n, errors.Errorf("unsupported tar entry type %q for %s", hdr.Typeflag, hdr.Name)
		}
		n++
	}
}

func escapes(name string) bool {
	return path.IsAbs(name) || name == ".." || strings.HasPrefix(name, "../")
}

// checkParents fails if any directory leading to name under dir
// is a symlink,
// which would let a later entry write outside dir.
// Components not yet created are fine.
func checkParents(dir, name string) error {
	parts := strings.Split(name, "/")
	p := dir
	for _, part := range parts[:len(parts)-1] {
		p = filepath.Join(p, part)
		info, err := os.Lstat(p)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "checking %s", p)
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return errors.Errorf("tar entry %s passes through symlink %s", name, p)
		}
	}
	return nil
}

func removeSymlink(dest string) error {
	info, err := os.Lstat(dest)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "checking %s", dest)
	}
	if info.Mode()&fs.ModeSymlink == 0 {
		return nil
	}
	return errors.Wrapf(os.Remove(dest), "removing symlink %s", dest)
}

type dirMode struct {
	name string
	path string
	mode os.FileMode
}

// setDirModes applies directory modes deepest first,
// so no directory is locked before its subdirectories are done.
func setDirModes(dirs []dirMode) error {
	sort.SliceStable(dirs, func(i, j int) bool {
		return strings.Count(dirs[i].name, "/") > strings.Count(dirs[j].name, "/")
	})
	for _, d := range dirs {
		if err := os.Chmod(d.path, d.mode); err != nil {
			return errors.Wrapf(err, "setting mode of %s", d.path)
		}
	}
	return nil
}

func writeFile(dest string, r io.Reader, mode os.FileMode) error {
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return errors.Wrapf(err, "creating %s", dest)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %s", dest)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", dest)
	}
	return errors.Wrapf(os.Chmod(dest, mode), "setting mode of %s", dest)
}
