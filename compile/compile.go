// Package compile turns a hop's role and transform flags into a process graph.
//
// There is one function per role.
// Source builds the pack side:
// archiver, compressor, transport.
// Destination builds both the relay and the terminal side:
// transport, optional tee and forwarder, then the local unpack chain
// of decompressor and unarchiver or patch applier.
// All conditional topology lives in these two functions.
package compile

import (
	"github.com/bobg/ndd"
	"github.com/bobg/ndd/graph"
	"github.com/bobg/ndd/topology"
)

// Node ids used in compiled graphs.
const (
	NodeArchive    = "archive"
	NodeCompress   = "compress"
	NodeTransport  = "transport"
	NodeTee        = "tee"
	NodeForward    = "forward"
	NodeStore      = "store"
	NodeDecompress = "decompress"
	NodeUnarchive  = "unarchive"
	NodePatch      = "patch"
)

// Params is everything a role needs to compile its graph.
type Params struct {
	Hop       topology.Hop
	Port      int
	Transform ndd.Transform
	Tuning    ndd.Tuning
	Programs  Programs

	// Input is the file or directory read at the source.
	Input string

	// Output is the file or directory written at each destination.
	Output string

	// Excludes are archiver exclude patterns.
	Excludes []string
}

func (p Params) check() error {
	if err := p.Transform.Validate(); err != nil {
		return err
	}
	if err := p.Tuning.Validate(); err != nil {
		return err
	}
	if p.Port <= 0 || p.Port > 65535 {
		return ndd.Configf("invalid port %d", p.Port)
	}
	if len(p.Programs.Transport) == 0 {
		return ndd.Configf("no transport program")
	}
	return nil
}

func (p Params) transport(args ...string) graph.Command {
	all := append(p.Tuning.Args(), args...)
	return graph.FromArgv(p.Programs.Transport, all...)
}

// Source compiles the source role:
// archiver → compressor → transport,
// where either or both of the first two may be absent.
// Whichever node comes first reads the input path.
// The transport listens on the source's own address for the first destination to connect.
func Source(p Params) (*graph.Graph, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	if !p.Hop.IsSource() {
		return nil, ndd.Configf("hop %s is not the source", p.Hop)
	}
	if p.Input == "" {
		return nil, ndd.Configf("no input path")
	}

	var (
		b    = graph.NewBuilder()
		prev string
	)

	if p.Transform.Archive {
		b.Node(graph.Node{ID: NodeArchive, Desc: "archiver", Cmd: p.Programs.pack(p.Input, p.Excludes)})
		prev = NodeArchive
	}

	if p.Transform.Compress {
		n := graph.Node{ID: NodeCompress, Desc: "compressor", Cmd: graph.FromArgv(p.Programs.Compressor)}
		if prev == "" {
			n.Stdin = p.Input
		}
		b.Node(n)
		if prev != "" {
			b.Pipe(prev, NodeCompress)
		}
		prev = NodeCompress
	}

	send := ndd.Addr(p.Hop.Self, p.Port)
	if prev == "" {
		b.Node(graph.Node{ID: NodeTransport, Desc: "transport", Cmd: p.transport("-i", p.Input, "-s", send)})
	} else {
		b.Node(graph.Node{ID: NodeTransport, Desc: "transport", Cmd: p.transport("-I", "/dev/stdin", "-s", send)})
		b.Pipe(prev, NodeTransport)
	}

	return b.Build()
}

// Destination compiles a destination role,
// relay or terminal according to p.Hop.
//
// The transport always receives from the upstream hop.
// On a relay it also listens on this hop's address for the next hop,
// either in the same process
// or, in tee mode,
// in a separate forward transport fed by a tee
// whose second output is passed as a descriptor argument
// into the local unpack chain.
// The tee flag has no effect on the terminal hop.
func Destination(p Params) (*graph.Graph, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	if p.Hop.IsSource() {
		return nil, ndd.Configf("hop %s is the source", p.Hop)
	}
	if p.Hop.From == "" {
		return nil, ndd.Configf("hop %s has no upstream host", p.Hop)
	}
	if p.Output == "" {
		return nil, ndd.Configf("no output path")
	}

	var (
		b     = graph.NewBuilder()
		recv  = ndd.Addr(p.Hop.From, p.Port)
		send  = ndd.Addr(p.Hop.Self, p.Port)
		relay = !p.Hop.IsTerminal()
		head  = unpackChain(b, p)
	)

	if relay && p.Transform.Tee {
		b.Node(graph.Node{ID: NodeTransport, Desc: "transport", Cmd: p.transport("-r", recv, "-O", "/dev/stdout")})
		b.Node(graph.Node{ID: NodeTee, Desc: "tee", Cmd: graph.FromArgv(p.Programs.Tee)})
		b.Node(graph.Node{ID: NodeForward, Desc: "forward transport", Cmd: p.transport("-I", "/dev/stdin", "-s", send)})
		b.Pipe(NodeTransport, NodeTee)
		b.Pipe(NodeTee, NodeForward)
		if head == "" {
			b.Node(graph.Node{ID: NodeStore, Desc: "store", Cmd: p.transport("-I", "/dev/stdin", "-o", p.Output)})
			head = NodeStore
		}
		b.Connect(graph.Fd(NodeTee, ""), graph.In(head))
		return b.Build()
	}

	args := []string{"-r", recv}
	if relay {
		args = append(args, "-s", send)
	}
	if head == "" {
		args = append(args, "-o", p.Output)
	} else {
		args = append(args, "-O", "/dev/stdout")
	}
	b.Node(graph.Node{ID: NodeTransport, Desc: "transport", Cmd: p.transport(args...)})
	if head != "" {
		b.Pipe(NodeTransport, head)
	}
	return b.Build()
}

// unpackChain adds decompressor → unarchiver or patch applier to b,
// as the flags call for,
// with the last element writing p.Output.
// It returns the id of the chain's first node,
// or "" if the chain is empty.
func unpackChain(b *graph.Builder, p Params) string {
	var last string
	switch {
	case p.Transform.Archive:
		b.Node(graph.Node{ID: NodeUnarchive, Desc: "unarchiver", Cmd: p.Programs.unpack(p.Output)})
		last = NodeUnarchive
	case p.Transform.Patch:
		b.Node(graph.Node{ID: NodePatch, Desc: "patch applier", Cmd: graph.FromArgv(p.Programs.Patcher, p.Output)})
		last = NodePatch
	}

	if !p.Transform.Compress {
		return last
	}

	n := graph.Node{ID: NodeDecompress, Desc: "decompressor", Cmd: graph.FromArgv(p.Programs.Decompressor)}
	if last == "" {
		n.Stdout = p.Output
	}
	b.Node(n)
	if last != "" {
		b.Pipe(NodeDecompress, last)
	}
	return NodeDecompress
}

// Compile dispatches on the hop's role.
func Compile(p Params) (*graph.Graph, error) {
	if p.Hop.IsSource() {
		return Source(p)
	}
	return Destination(p)
}
