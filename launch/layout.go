package launch

import (
	"strconv"

	"github.com/bobg/ndd/graph"
)

// end is one end of an edge's pipe as seen by the node holding it.
type end struct {
	edge  int
	write bool
}

// nodeLayout is where each pipe end of one node goes.
type nodeLayout struct {
	node   graph.Node
	argv   []string
	stdin  *end
	stdout *end
	extra  []end // ExtraFiles, in order: extra[i] is /dev/fd/(3+i)
}

// layout assigns every edge end to a slot of its node
// and computes each node's final argv,
// without touching the OS.
// The result is in the graph's topological order.
func layout(g *graph.Graph) []*nodeLayout {
	var (
		order = g.Order()
		byID  = make(map[string]*nodeLayout, len(order))
		out   = make([]*nodeLayout, 0, len(order))
	)
	for _, id := range order {
		n, _ := g.Node(id)
		nl := &nodeLayout{node: n, argv: n.Cmd.Argv()}
		byID[id] = nl
		out = append(out, nl)
	}

	attach := func(nl *nodeLayout, ep graph.Endpoint, e end) {
		if ep.Kind == graph.Stream {
			if e.write {
				nl.stdout = &e
			} else {
				nl.stdin = &e
			}
			return
		}
		if ep.Flag != "" {
			nl.argv = append(nl.argv, ep.Flag)
		}
		nl.argv = append(nl.argv, "/dev/fd/"+strconv.Itoa(3+len(nl.extra)))
		nl.extra = append(nl.extra, e)
	}

	for i, e := range g.Edges() {
		attach(byID[e.From.Node], e.From, end{edge: i, write: true})
		attach(byID[e.To.Node], e.To, end{edge: i})
	}
	return out
}

// Argv reports the command line each node of g will be started with,
// descriptor arguments included.
func Argv(g *graph.Graph) map[string][]string {
	m := make(map[string][]string)
	for _, nl := range layout(g) {
		m[nl.node.ID] = nl.argv
	}
	return m
}
