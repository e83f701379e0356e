package remote

import (
	"fmt"

	"github.com/bobg/ndd"
	"github.com/bobg/ndd/graph"
	"github.com/bobg/ndd/topology"
)

// Master describes a whole transfer from the master's point of view.
type Master struct {
	Mode   Mode
	Source string
	Dests  []string

	// Local runs the source role on this host instead of over ssh.
	// It is implied in Slurm mode.
	Local bool

	SSH   SSH
	Slurm Slurm

	// Slave is the template for every slave invocation.
	// Plan fills in Source, Chain, Pos, FindSelf, and clears Input or Output by role.
	Slave Invocation
}

// IDs of the nodes in a master graph.
const (
	NodeSource = "source"
	NodeSlurm  = "destinations"
)

// DestNode is the id of the master-graph node for destination i in ssh mode.
func DestNode(i int) string { return fmt.Sprintf("dest%d", i) }

// Plan compiles the master's graph:
// one node starting the source role
// and, in ssh mode, one node per destination,
// or in Slurm mode one job step covering all destinations.
// The nodes are independent;
// the data flows between hosts, not through the master.
func Plan(m Master) (*graph.Graph, error) {
	if _, err := topology.Chain(m.Source, m.Dests); err != nil {
		return nil, err
	}
	if m.Mode != ModeSSH && m.Mode != ModeSlurm {
		return nil, ndd.Configf("unknown remote mode %s", m.Mode)
	}

	b := graph.NewBuilder()

	src := m.Slave
	src.Source = m.Source
	src.Chain = m.Dests
	src.Pos = topology.SourcePos
	src.FindSelf = false
	src.Output = ""
	srcArgv := SlaveArgs(src)

	if m.Local || m.Mode == ModeSlurm {
		b.Node(graph.Node{ID: NodeSource, Desc: "source on this host", Cmd: graph.FromArgv(srcArgv)})
	} else {
		b.Node(graph.Node{ID: NodeSource, Desc: "source on " + m.Source, Cmd: m.SSH.Wrap(m.Source, srcArgv)})
	}

	dst := m.Slave
	dst.Source = m.Source
	dst.Chain = m.Dests
	dst.Input = ""

	if m.Mode == ModeSlurm {
		dst.FindSelf = true
		b.Node(graph.Node{ID: NodeSlurm, Desc: fmt.Sprintf("destinations on %d node(s)", len(m.Dests)), Cmd: m.Slurm.Wrap(m.Dests, SlaveArgs(dst))})
		return b.Build()
	}

	dst.FindSelf = false
	for i, host := range m.Dests {
		dst.Pos = i
		b.Node(graph.Node{ID: DestNode(i), Desc: "destination on " + host, Cmd: m.SSH.Wrap(host, SlaveArgs(dst))})
	}
	return b.Build()
}
