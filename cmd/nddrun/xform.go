package main

import (
	"context"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/bobg/ndd"
	"github.com/bobg/ndd/xform"
)

// xform runs one of the built-in stream programs
// with this process's stdin and stdout.
// Everything after NAME belongs to the program.
func (c maincmd) xform(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return ndd.Configf("usage: xform NAME [ARGS]; names are %s", strings.Join(xform.Names(), ", "))
	}
	env := xform.Env{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Log:    c.log.Named(args[0]),
	}
	err := xform.Run(ctx, args[0], env, args[1:])
	return errors.Wrapf(err, "xform %s", args[0])
}
