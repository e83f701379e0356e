// Package graph describes the processes of one hop and the pipes between them.
//
// A Graph is built once with a Builder,
// validated as a whole,
// and never changes afterwards.
package graph

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/bobg/ndd"
)

// Kind says how one end of an edge attaches to its node.
type Kind int

const (
	// Stream attaches to the node's stdin (for the consuming end)
	// or stdout (for the producing end).
	// A node has one slot of each.
	Stream Kind = iota

	// Descriptor passes the pipe end as a /dev/fd/N argument
	// appended to the node's command line,
	// optionally preceded by a flag such as -I.
	Descriptor
)

func (k Kind) String() string {
	switch k {
	case Stream:
		return "stream"
	case Descriptor:
		return "descriptor"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Endpoint is one end of an edge.
type Endpoint struct {
	Node string
	Kind Kind

	// Flag, if set, precedes the /dev/fd/N argument of a Descriptor endpoint.
	Flag string
}

// Out is the Stream endpoint for node's stdout.
func Out(node string) Endpoint { return Endpoint{Node: node} }

// In is the Stream endpoint for node's stdin.
func In(node string) Endpoint { return Endpoint{Node: node} }

// Fd is a Descriptor endpoint on node with an optional preceding flag.
func Fd(node, flag string) Endpoint {
	return Endpoint{Node: node, Kind: Descriptor, Flag: flag}
}

// Edge is a pipe from a producer to a consumer.
type Edge struct {
	From, To Endpoint
}

func (e Edge) String() string {
	return fmt.Sprintf("%s(%s) -> %s(%s)", e.From.Node, e.From.Kind, e.To.Node, e.To.Kind)
}

// Node is one process in a graph.
type Node struct {
	ID   string
	Desc string
	Cmd  Command

	// Stdin, if set, is a file opened read-only as the node's standard input.
	Stdin string

	// Stdout, if set, is a file created or truncated as the node's standard output.
	Stdout string
}

// Graph is an immutable set of nodes and the edges connecting them.
type Graph struct {
	nodes []Node // insertion order
	index map[string]int
	edges []Edge
	in    map[string][]int
	out   map[string][]int
}

// Nodes returns the nodes in the order they were added.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	for i, n := range g.nodes {
		n.Cmd = n.Cmd.With()
		out[i] = n
	}
	return out
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	n := g.nodes[i]
	n.Cmd = n.Cmd.With()
	return n, true
}

// Edges returns every edge in the order it was added.
func (g *Graph) Edges() []Edge {
	return append([]Edge(nil), g.edges...)
}

// In returns the edges consumed by node id.
func (g *Graph) In(id string) []Edge {
	return g.pick(g.in[id])
}

// Out returns the edges produced by node id.
func (g *Graph) Out(id string) []Edge {
	return g.pick(g.out[id])
}

// Len is the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

func (g *Graph) pick(idxs []int) []Edge {
	if len(idxs) == 0 {
		return nil
	}
	out := make([]Edge, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, g.edges[i])
	}
	return out
}

// String renders the graph as a readable plan,
// one node per paragraph.
func (g *Graph) String() string {
	var b strings.Builder
	for i, n := range g.nodes {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s", n.ID)
		if n.Desc != "" {
			fmt.Fprintf(&b, " (%s)", n.Desc)
		}
		fmt.Fprintf(&b, ": %s\n", n.Cmd)
		if n.Stdin != "" {
			fmt.Fprintf(&b, "  stdin < %s\n", n.Stdin)
		}
		if n.Stdout != "" {
			fmt.Fprintf(&b, "  stdout > %s\n", n.Stdout)
		}
		for _, e := range g.In(n.ID) {
			fmt.Fprintf(&b, "  %s <- %s\n", describe(e.To), describe(e.From))
		}
		for _, e := range g.Out(n.ID) {
			fmt.Fprintf(&b, "  %s -> %s\n", describe(e.From), describe(e.To))
		}
	}
	return b.String()
}

func describe(ep Endpoint) string {
	if ep.Kind == Stream {
		return ep.Node
	}
	if ep.Flag != "" {
		return fmt.Sprintf("%s[%s /dev/fd/N]", ep.Node, ep.Flag)
	}
	return ep.Node + "[/dev/fd/N]"
}

// Builder accumulates nodes and edges for a Graph.
// The first error encountered is sticky:
// later calls are no-ops
// and Build reports it.
type Builder struct {
	nodes []Node
	index map[string]int
	edges []Edge
	err   error
}

// NewBuilder produces an empty Builder.
func NewBuilder() *Builder {
	return &Builder{index: make(map[string]int)}
}

// Node adds a node.
func (b *Builder) Node(n Node) {
	if b.err != nil {
		return
	}
	if n.ID == "" {
		b.err = ndd.Configf("node with empty id")
		return
	}
	if _, ok := b.index[n.ID]; ok {
		b.err = ndd.Configf("duplicate node id %s", n.ID)
		return
	}
	if err := n.Cmd.Validate(); err != nil {
		b.err = errors.Wrapf(err, "node %s", n.ID)
		return
	}
	n.Cmd = n.Cmd.With()
	b.index[n.ID] = len(b.nodes)
	b.nodes = append(b.nodes, n)
}

// Pipe connects from's stdout to to's stdin.
func (b *Builder) Pipe(from, to string) {
	b.Connect(Out(from), In(to))
}

// Connect adds an edge between two endpoints.
func (b *Builder) Connect(from, to Endpoint) {
	if b.err != nil {
		return
	}
	if from.Kind == Stream && from.Flag != "" || to.Kind == Stream && to.Flag != "" {
		b.err = ndd.Configf("edge %s -> %s: flag on a stream endpoint", from.Node, to.Node)
		return
	}
	b.edges = append(b.edges, Edge{From: from, To: to})
}

// Build validates what has been accumulated and produces the Graph.
//
// It rejects:
//   - an empty graph
//   - edges naming unknown nodes
//   - self-loops and cycles
//   - a node with more than one standard input or standard output,
//     counting fixed files and stream edges together
func (b *Builder) Build() (*Graph, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.nodes) == 0 {
		return nil, ndd.Configf("empty graph")
	}

	g := &Graph{
		nodes: append([]Node(nil), b.nodes...),
		index: make(map[string]int, len(b.index)),
		edges: append([]Edge(nil), b.edges...),
		in:    make(map[string][]int),
		out:   make(map[string][]int),
	}
	for id, i := range b.index {
		g.index[id] = i
	}

	stdins := make(map[string]int)
	stdouts := make(map[string]int)
	for _, n := range g.nodes {
		if n.Stdin != "" {
			stdins[n.ID]++
		}
		if n.Stdout != "" {
			stdouts[n.ID]++
		}
	}

	for i, e := range g.edges {
		if _, ok := g.index[e.From.Node]; !ok {
			return nil, ndd.Configf("edge %s references unknown node %s", e, e.From.Node)
		}
		if _, ok := g.index[e.To.Node]; !ok {
			return nil, ndd.Configf("edge %s references unknown node %s", e, e.To.Node)
		}
		if e.From.Node == e.To.Node {
			return nil, ndd.Configf("self-loop on node %s", e.From.Node)
		}
		if e.From.Kind == Stream {
			stdouts[e.From.Node]++
		}
		if e.To.Kind == Stream {
			stdins[e.To.Node]++
		}
		g.out[e.From.Node] = append(g.out[e.From.Node], i)
		g.in[e.To.Node] = append(g.in[e.To.Node], i)
	}

	for _, n := range g.nodes {
		if stdins[n.ID] > 1 {
			return nil, ndd.Configf("node %s has %d standard inputs", n.ID, stdins[n.ID])
		}
		if stdouts[n.ID] > 1 {
			return nil, ndd.Configf("node %s has %d standard outputs", n.ID, stdouts[n.ID])
		}
	}

	if _, err := g.order(); err != nil {
		return nil, err
	}
	return g, nil
}

// Order returns node ids in a topological order,
// producers before consumers,
// ties broken by insertion order.
func (g *Graph) Order() []string {
	order, _ := g.order() // validated acyclic in Build
	return order
}

func (g *Graph) order() ([]string, error) {
	indeg := make([]int, len(g.nodes))
	for _, e := range g.edges {
		indeg[g.index[e.To.Node]]++
	}

	var (
		queue []int
		order []string
	)
	for i := range g.nodes {
		if indeg[i] == 0 {
			queue = append(queue, i)
		}
	}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		id := g.nodes[i].ID
		order = append(order, id)
		for _, ei := range g.out[id] {
			j := g.index[g.edges[ei].To.Node]
			indeg[j]--
			if indeg[j] == 0 {
				queue = append(queue, j)
			}
		}
	}
	if len(order) != len(g.nodes) {
		var stuck []string
		for i, n := range g.nodes {
			if indeg[i] > 0 {
				stuck = append(stuck, n.ID)
			}
		}
		return nil, ndd.Configf("cycle among nodes %s", strings.Join(stuck, ", "))
	}
	return order, nil
}
