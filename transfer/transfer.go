// Package transfer runs one host's part in a transfer from start to finish.
//
// A Slave resolves its place in the chain,
// takes its lock,
// compiles its process graph,
// launches it
// and waits for it.
// A Master starts every slave on its host
// and waits for all of them.
package transfer

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bobg/ndd"
	"github.com/bobg/ndd/compile"
	"github.com/bobg/ndd/graph"
	"github.com/bobg/ndd/launch"
	"github.com/bobg/ndd/lock"
	"github.com/bobg/ndd/logging"
	"github.com/bobg/ndd/stats"
	"github.com/bobg/ndd/supervise"
	"github.com/bobg/ndd/topology"
)

// Roles, as they appear in logs and stats.
const (
	RoleMaster   = "master"
	RoleSource   = "source"
	RoleRelay    = "relay"
	RoleTerminal = "terminal"
)

// Role names the part a hop plays.
func Role(hop topology.Hop) string {
	switch {
	case hop.IsSource():
		return RoleSource
	case hop.IsTerminal():
		return RoleTerminal
	default:
		return RoleRelay
	}
}

// Slave is one host's role in a transfer.
type Slave struct {
	// ID identifies the transfer in logs and stats.
	// Run generates one if it is empty.
	ID string

	Source string
	Chain  []string

	// Pos is this host's position in Chain,
	// or topology.SourcePos.
	// It is ignored when FindSelf is set.
	Pos int

	// FindSelf looks this host's name up in Chain to find Pos.
	FindSelf    bool
	PrefixMatch bool

	// Hostname overrides the system host name for FindSelf.
	Hostname string

	Input  string
	Output string

	Transform ndd.Transform
	Port      int
	Tuning    ndd.Tuning
	Programs  compile.Programs
	Excludes  []string

	// LockDir holds default lock files;
	// InputLock and OutputLock override them.
	LockDir    string
	InputLock  string
	OutputLock string

	KillAfter time.Duration

	// StatsPath, if set, receives the transfer's statistics when it ends.
	StatsPath string
}

// Hop works out this host's hop in the chain.
func (s *Slave) Hop(log *zap.Logger) (topology.Hop, error) {
	pos := s.Pos
	if s.FindSelf {
		self := s.Hostname
		if self == "" {
			h, err := os.Hostname()
			if err != nil {
				return topology.Hop{}, ndd.Configf("getting host name: %s", err)
			}
			self = h
		}
		mode := topology.MatchExact
		if s.PrefixMatch {
			mode = topology.MatchPrefix
		}
		p, byPrefix, err := topology.Position(self, s.Chain, mode)
		if err != nil {
			return topology.Hop{}, err
		}
		if byPrefix {
			log.Warn("host found in chain by prefix match", zap.String("host", self), zap.Int("pos", p), zap.String("match", topology.Host(s.Chain[p])))
		}
		pos = p
	}
	return topology.Resolve(s.Source, s.Chain, pos)
}

// Params are the compiler inputs for hop.
func (s *Slave) Params(hop topology.Hop) compile.Params {
	return compile.Params{
		Hop:       hop,
		Port:      s.Port,
		Transform: s.Transform,
		Tuning:    s.Tuning,
		Programs:  s.Programs,
		Input:     s.Input,
		Output:    s.Output,
		Excludes:  s.Excludes,
	}
}

// Plan resolves the hop and compiles its graph without running anything.
func (s *Slave) Plan(log *zap.Logger) (topology.Hop, *graph.Graph, error) {
	hop, err := s.Hop(log)
	if err != nil {
		return hop, nil, err
	}
	g, err := compile.Compile(s.Params(hop))
	return hop, g, err
}

// Run performs this host's role.
// The source holds a shared lock on its input
// and each destination an exclusive lock on its output
// for as long as its processes run.
func (s *Slave) Run(ctx context.Context, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}

	hop, g, err := s.Plan(log)
	if err != nil {
		return err
	}
	role := Role(hop)
	log = logging.WithTransfer(log, s.ID, role)

	var l *lock.Lock
	if hop.IsSource() {
		l, err = lock.AcquireFor(s.LockDir, s.InputLock, s.Input, lock.Shared)
	} else {
		l, err = lock.AcquireFor(s.LockDir, s.OutputLock, s.Output, lock.Exclusive)
	}
	if err != nil {
		log.Error("locking", zap.Error(err))
		return err
	}
	defer func() {
		if err := l.Release(); err != nil {
			log.Warn("releasing lock", zap.String("lock", l.Path()), zap.Error(err))
		}
	}()

	log.Info("transfer starting",
		zap.Stringer("hop", hop),
		zap.Stringer("transform", s.Transform),
		zap.String("lock", l.Path()),
		zap.Int("nodes", g.Len()))
	log.Debug("process graph", zap.String("plan", g.String()))

	return run(ctx, g, runOpts{
		log:       log,
		id:        s.ID,
		role:      role,
		killAfter: s.KillAfter,
		statsPath: s.StatsPath,
	})
}

type runOpts struct {
	log       *zap.Logger
	id, role  string
	killAfter time.Duration
	statsPath string
}

// run launches g and supervises it to the end,
// recording statistics on the way out.
func run(ctx context.Context, g *graph.Graph, o runOpts) error {
	var (
		start = time.Now()
		sup   = supervise.New(o.log)
		rec   *stats.Recorder
	)
	sup.KillAfter = o.killAfter
	if o.statsPath != "" {
		rec = stats.New(o.id, o.role)
	}

	err := launch.Start(ctx, g, sup, launch.Options{Log: o.log})
	if err == nil {
		err = sup.Wait(ctx)
	}
	elapsed := time.Since(start)

	rec.Observe(sup.Results(), elapsed, err)
	if o.statsPath != "" {
		if werr := rec.WriteFile(o.statsPath); werr != nil {
			o.log.Warn("writing stats", zap.Error(werr))
		}
	}

	if err != nil {
		o.log.Error("transfer failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		return err
	}
	o.log.Info("transfer complete", zap.Duration("elapsed", elapsed))
	return nil
}
