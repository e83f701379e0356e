// Package xform holds built-in stream programs
// that can stand in for tar, pigz, bapply and tee
// on hosts where those are missing.
// They run as `nddrun xform NAME ARGS...`,
// reading standard input and writing standard output
// like the programs they replace.
package xform

import (
	"context"
	"io"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Env is the I/O environment of a built-in program.
type Env struct {
	Stdin  io.Reader
	Stdout io.Writer
	Log    *zap.Logger
}

// Func is a built-in program.
type Func func(ctx context.Context, env Env, args []string) error

var registry = make(map[string]Func)

// Register adds a built-in program under name.
func Register(name string, f Func) {
	registry[name] = f
}

// Run runs the built-in program registered under name.
func Run(ctx context.Context, name string, env Env, args []string) error {
	f, ok := registry[name]
	if !ok {
		return errors.Errorf("no built-in program %s", name)
	}
	if env.Log == nil {
		env.Log = zap.NewNop()
	}
	return f(ctx, env, args)
}

// Names lists the registered programs.
func Names() []string {
	var names []string
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
