package xform

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// PatchBlockSize is the unit in which Bapply compares and rewrites.
const PatchBlockSize = 4096

func init() {
	Register("bapply", func(_ context.Context, env Env, args []string) error {
		if len(args) != 1 {
			return errors.New("usage: bapply OUTPUT")
		}
		st, err := Bapply(env.Stdin, args[0])
		if err != nil {
			return err
		}
		env.Log.Info("patch applied",
			zap.String("output", args[0]),
			zap.Int("block_size", PatchBlockSize),
			zap.Int64("total_blocks", st.Total),
			zap.Int64("different_blocks", st.Different))
		return nil
	})
}

// PatchStats counts the blocks Bapply examined.
type PatchStats struct {
	Total     int64
	Different int64
}

// Bapply writes the stream r into the existing file at output in place,
// rewriting only the blocks whose contents differ.
// The output must already be at least as long as the stream;
// it is never extended or truncated.
func Bapply(r io.Reader, output string) (PatchStats, error) {
	var st PatchStats

	f, err := os.OpenFile(output, os.O_RDWR, 0)
	if err != nil {
		return st, errors.Wrapf(err, "opening %s", output)
	}
	defer f.Close()

	var (
		nbuf = make([]byte, PatchBlockSize)
		obuf = make([]byte, PatchBlockSize)
		off  int64
	)
	for {
		n, rerr := io.ReadFull(r, nbuf)
		if n > 0 {
			o, oerr := f.ReadAt(obuf[:n], off)
			if o != n {
				if oerr == nil || oerr == io.EOF {
					return st, errors.Errorf("%s is shorter than the stream: read %d of %d bytes at offset %d", output, o, n, off)
				}
				return st, errors.Wrapf(oerr, "reading %s at offset %d", output, off)
			}
			st.Total++
			if !bytes.Equal(nbuf[:n], obuf[:n]) {
				st.Different++
				if _, err := f.WriteAt(nbuf[:n], off); err != nil {
					return st, errors.Wrapf(err, "writing %s at offset %d", output, off)
				}
			}
			off += int64(n)
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			return st, errors.Wrap(rerr, "reading patch stream")
		}
	}

	return st, errors.Wrapf(f.Close(), "closing %s", output)
}
