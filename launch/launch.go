// Package launch starts the processes of a graph
// with their pipes and files in place.
//
// Every descriptor the launcher creates is handed to exactly one child
// and closed in the parent as soon as that child has started,
// so once Start returns
// the parent holds none of them.
package launch

import (
	"context"
	"os"
	"os/exec"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/bobg/ndd"
	"github.com/bobg/ndd/graph"
	"github.com/bobg/ndd/supervise"
)

// Options controls how nodes are started.
type Options struct {
	Log *zap.Logger

	// Dir is the working directory of every node.
	// Empty means the orchestrator's own.
	Dir string

	// Env is the environment of every node.
	// Nil means the orchestrator's own.
	Env []string
}

// Start launches every node of g and hands each to sup.
//
// Fixed input files are opened read-only
// and fixed output files are created or truncated
// before anything is spawned.
// Nodes with no standard input read /dev/null.
// Nodes with no standard output share the orchestrator's.
// Standard error is always the orchestrator's.
//
// If any node fails to start,
// no further nodes are started,
// every node already started is terminated and reaped through sup,
// and the result is a *ndd.LaunchError.
func Start(ctx context.Context, g *graph.Graph, sup *supervise.Supervisor, opts Options) error {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	nodes := layout(g)
	files, err := open(g, nodes)
	if err != nil {
		sup.Abort()
		return err
	}

	for i, nl := range nodes {
		owned := files[i]

		if err := ctx.Err(); err != nil {
			closeFrom(files, i)
			sup.Abort()
			return &ndd.LaunchError{Node: nl.node.ID, Err: err}
		}

		cmd := exec.Command(nl.argv[0], nl.argv[1:]...)
		cmd.Dir = opts.Dir
		cmd.Env = opts.Env
		if owned.stdin != nil {
			cmd.Stdin = owned.stdin
		}
		if owned.stdout != nil {
			cmd.Stdout = owned.stdout
		} else {
			cmd.Stdout = os.Stdout
		}
		cmd.Stderr = os.Stderr
		cmd.ExtraFiles = owned.extra

		err := cmd.Start()
		owned.close()
		if err != nil {
			closeFrom(files, i+1)
			log.Error("starting node", zap.String("node", nl.node.ID), zap.Strings("argv", nl.argv), zap.Error(err))
			sup.Abort()
			return &ndd.LaunchError{Node: nl.node.ID, Err: err}
		}

		log.Debug("launched node", zap.String("node", nl.node.ID), zap.Int("pid", cmd.Process.Pid), zap.Strings("argv", nl.argv))
		sup.Add(nl.node.ID, nl.node.Desc, cmd)
	}
	return nil
}

// nodeFiles are the descriptors allocated for one node.
// A nil stdin makes exec supply /dev/null.
type nodeFiles struct {
	stdin  *os.File
	stdout *os.File
	extra  []*os.File
}

func (f *nodeFiles) close() {
	if f.stdin != nil {
		f.stdin.Close()
		f.stdin = nil
	}
	if f.stdout != nil {
		f.stdout.Close()
		f.stdout = nil
	}
	for _, x := range f.extra {
		x.Close()
	}
	f.extra = nil
}

func closeFrom(files []*nodeFiles, i int) {
	for ; i < len(files); i++ {
		files[i].close()
	}
}

// open allocates every fixed file and every pipe of g,
// distributing them to the nodes that will own them.
// On error nothing is left open.
func open(g *graph.Graph, nodes []*nodeLayout) (_ []*nodeFiles, err error) {
	files := make([]*nodeFiles, len(nodes))
	for i := range files {
		files[i] = new(nodeFiles)
	}
	defer func() {
		if err != nil {
			closeFrom(files, 0)
		}
	}()

	var (
		edges = g.Edges()
		ends  = make([][2]*os.File, len(edges)) // read, write
	)
	for i := range edges {
		r, w, err := os.Pipe()
		if err != nil {
			for j := 0; j < i; j++ {
				ends[j][0].Close()
				ends[j][1].Close()
			}
			return nil, &ndd.LaunchError{Node: edges[i].From.Node, Err: errors.Wrapf(err, "creating pipe for %s", edges[i])}
		}
		ends[i] = [2]*os.File{r, w}
	}

	pick := func(e end) *os.File {
		if e.write {
			return ends[e.edge][1]
		}
		return ends[e.edge][0]
	}

	// Hand out every pipe end first so that a later failure
	// to open a fixed file closes them all through files.
	for i, nl := range nodes {
		f := files[i]
		if nl.stdin != nil {
			f.stdin = pick(*nl.stdin)
		}
		if nl.stdout != nil {
			f.stdout = pick(*nl.stdout)
		}
		for _, e := range nl.extra {
			f.extra = append(f.extra, pick(e))
		}
	}

	for i, nl := range nodes {
		f := files[i]
		if p := nl.node.Stdin; p != "" {
			in, err := os.Open(p)
			if err != nil {
				return nil, &ndd.LaunchError{Node: nl.node.ID, Err: errors.Wrapf(err, "opening %s", p)}
			}
			f.stdin = in
		}
		if p := nl.node.Stdout; p != "" {
			out, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
			if err != nil {
				return nil, &ndd.LaunchError{Node: nl.node.ID, Err: errors.Wrapf(err, "creating %s", p)}
			}
			f.stdout = out
		}
	}
	return files, nil
}
