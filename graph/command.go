package graph

import (
	"strings"

	"github.com/bobg/ndd"
)

// Command is a program plus its ordered arguments.
// It is a value:
// copies share nothing mutable,
// and the launcher appends descriptor arguments to a copy of Argv,
// never to the Command itself.
type Command struct {
	Program string
	Args    []string
}

// Cmd is a convenience constructor for Command.
func Cmd(program string, args ...string) Command {
	return Command{Program: program, Args: append([]string(nil), args...)}
}

// FromArgv builds a Command from an argv slice,
// e.g. a configured program prefix like ["pigz", "--fast"],
// followed by extra arguments.
func FromArgv(prefix []string, args ...string) Command {
	if len(prefix) == 0 {
		return Command{Args: append([]string(nil), args...)}
	}
	all := make([]string, 0, len(prefix)-1+len(args))
	all = append(all, prefix[1:]...)
	all = append(all, args...)
	return Command{Program: prefix[0], Args: all}
}

// Validate checks that the command can be handed to the OS.
func (c Command) Validate() error {
	if c.Program == "" {
		return ndd.Configf("empty program name")
	}
	if strings.IndexByte(c.Program, 0) >= 0 {
		return ndd.Configf("program name %q contains a NUL byte", c.Program)
	}
	for _, a := range c.Args {
		if strings.IndexByte(a, 0) >= 0 {
			return ndd.Configf("argument %q of %s contains a NUL byte", a, c.Program)
		}
	}
	return nil
}

// Argv returns a fresh slice holding the program followed by its arguments.
func (c Command) Argv() []string {
	argv := make([]string, 0, 1+len(c.Args))
	argv = append(argv, c.Program)
	return append(argv, c.Args...)
}

// With returns a copy of c with extra arguments appended.
func (c Command) With(args ...string) Command {
	out := Command{Program: c.Program, Args: make([]string, 0, len(c.Args)+len(args))}
	out.Args = append(out.Args, c.Args...)
	out.Args = append(out.Args, args...)
	return out
}

func (c Command) String() string {
	return strings.Join(c.Argv(), " ")
}
