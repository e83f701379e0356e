package xform

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

func init() {
	Register("tee", teeMain)
}

func teeMain(ctx context.Context, env Env, args []string) (err error) {
	var files []*os.File
	defer func() {
		for _, f := range files {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = errors.Wrapf(cerr, "closing %s", f.Name())
			}
		}
	}()

	ws := []io.Writer{env.Stdout}
	for _, path := range args {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return errors.Wrapf(err, "opening %s", path)
		}
		files = append(files, f)
		ws = append(ws, f)
	}
	_, err = Tee(ctx, env.Stdin, ws...)
	return err
}

const teeBufSize = 1 << 20

// Tee copies r to every one of ws,
// writing each chunk to all of them concurrently
// and waiting for every write before reading the next chunk.
// An error writing to any of them stops the copy.
func Tee(ctx context.Context, r io.Reader, ws ...io.Writer) (int64, error) {
	var (
		buf   = make([]byte, teeBufSize)
		total int64
	)
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, rerr := r.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			var g errgroup.Group
			for i, w := range ws {
				i, w := i, w
				g.Go(func() error {
					_, err := w.Write(chunk)
					return errors.Wrapf(err, "writing to output %d", i)
				})
			}
			if err := g.Wait(); err != nil {
				return total, err
			}
			total += int64(n)
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, errors.Wrap(rerr, "reading input")
		}
	}
}
