package transfer

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bobg/ndd"
	"github.com/bobg/ndd/graph"
	"github.com/bobg/ndd/logging"
	"github.com/bobg/ndd/remote"
)

// Master drives a whole transfer from one host
// by starting a slave for every participant.
type Master struct {
	remote.Master

	// Partition, in Slurm mode with no destinations given,
	// supplies the destinations:
	// every idle node in it.
	Partition string

	// MaxNodes, if positive, caps the destinations taken from Partition.
	MaxNodes int

	KillAfter time.Duration
	StatsPath string
}

// Plan fills in any destinations discovered from the partition
// and compiles the master graph.
func (m *Master) Plan(ctx context.Context, log *zap.Logger) (*graph.Graph, error) {
	if m.Slave.TransferID == "" {
		m.Slave.TransferID = uuid.NewString()
	}
	if m.Mode == remote.ModeSlurm && len(m.Dests) == 0 {
		if m.Partition == "" {
			return nil, ndd.Configf("no destinations and no partition to find them in")
		}
		nodes, err := m.Slurm.IdleNodes(ctx, m.Partition)
		if err != nil {
			return nil, err
		}
		if m.MaxNodes > 0 && len(nodes) > m.MaxNodes {
			nodes = nodes[:m.MaxNodes]
		}
		log.Info("found idle nodes", zap.String("partition", m.Partition), zap.Strings("nodes", nodes))
		m.Dests = nodes
	}
	return remote.Plan(m.Master)
}

// Run starts the source and every destination and waits for all of them.
// A failure of any one terminates the rest.
func (m *Master) Run(ctx context.Context, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	g, err := m.Plan(ctx, log)
	if err != nil {
		return err
	}
	log = logging.WithTransfer(log, m.Slave.TransferID, RoleMaster)
	log.Info("transfer starting",
		zap.Stringer("mode", m.Mode),
		zap.String("source", m.Source),
		zap.String("chain", strings.Join(m.Dests, ",")),
		zap.Stringer("transform", m.Slave.Transform))
	log.Debug("process graph", zap.String("plan", g.String()))

	return run(ctx, g, runOpts{
		log:       log,
		id:        m.Slave.TransferID,
		role:      RoleMaster,
		killAfter: m.KillAfter,
		statsPath: m.StatsPath,
	})
}
