package xform

import (
	"context"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

func init() {
	Register("gzip", func(_ context.Context, env Env, _ []string) error {
		return Gzip(env.Stdout, env.Stdin)
	})
	Register("gunzip", func(_ context.Context, env Env, _ []string) error {
		return Gunzip(env.Stdout, env.Stdin)
	})
}

// Gzip compresses r onto w at the fastest level,
// the counterpart of pigz --fast.
func Gzip(w io.Writer, r io.Reader) error {
	zw, err := gzip.NewWriterLevel(w, gzip.BestSpeed)
	if err != nil {
		return errors.Wrap(err, "creating gzip writer")
	}
	if _, err := io.Copy(zw, r); err != nil {
		zw.Close()
		return errors.Wrap(err, "compressing")
	}
	return errors.Wrap(zw.Close(), "finishing gzip stream")
}

// Gunzip decompresses r onto w.
func Gunzip(w io.Writer, r io.Reader) error {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return errors.Wrap(err, "reading gzip header")
	}
	defer zr.Close()
	_, err = io.Copy(w, zr)
	return errors.Wrap(err, "decompressing")
}
