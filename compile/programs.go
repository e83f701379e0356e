package compile

import (
	"github.com/bobg/ndd/graph"
)

// Programs holds the argv prefix of each external program a graph may use.
type Programs struct {
	Transport    []string
	Archiver     []string
	Compressor   []string
	Decompressor []string
	Patcher      []string
	Tee          []string

	// Builtin selects the argument conventions of the xform subcommands
	// (see BuiltinPrograms) for the archiver,
	// instead of tar's.
	Builtin bool
}

// DefaultPrograms are the stock external tools.
func DefaultPrograms() Programs {
	return Programs{
		Transport:    []string{"ndd"},
		Archiver:     []string{"tar"},
		Compressor:   []string{"pigz", "--fast"},
		Decompressor: []string{"pigz", "-d"},
		Patcher:      []string{"bapply"},
		Tee:          []string{"tee"},
	}
}

// BuiltinPrograms re-invokes the binary at self
// for everything except the transport,
// using its xform subcommands.
// This removes the dependency on tar, pigz, bapply and tee being installed on every host.
func BuiltinPrograms(self string) Programs {
	x := func(name string) []string { return []string{self, "xform", name} }
	return Programs{
		Transport:    []string{"ndd"},
		Archiver:     []string{self, "xform"},
		Compressor:   x("gzip"),
		Decompressor: x("gunzip"),
		Patcher:      x("bapply"),
		Tee:          x("tee"),
		Builtin:      true,
	}
}

func (p Programs) pack(dir string, excludes []string) graph.Command {
	if p.Builtin {
		args := []string{"tar-create"}
		for _, e := range excludes {
			args = append(args, "-exclude", e)
		}
		return graph.FromArgv(p.Archiver, append(args, dir)...)
	}
	args := []string{"-C", dir, "-f", "-", "-c"}
	for _, e := range excludes {
		args = append(args, "--exclude="+e)
	}
	return graph.FromArgv(p.Archiver, append(args, ".")...)
}

func (p Programs) unpack(dir string) graph.Command {
	if p.Builtin {
		return graph.FromArgv(p.Archiver, "tar-extract", dir)
	}
	return graph.FromArgv(p.Archiver, "-C", dir, "-x", "-f", "-")
}
