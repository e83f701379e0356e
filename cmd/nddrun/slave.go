package main

import (
	"context"
	"flag"
	"strings"

	"github.com/bobg/ndd"
	"github.com/bobg/ndd/topology"
	"github.com/bobg/ndd/transfer"
)

// slaveFlags are the flags shared by slave and plan.
// They mirror remote.SlaveArgs.
type slaveFlags struct {
	source, chain     string
	pos               int
	findSelf          bool
	prefixMatch       bool
	hostname          string
	input, output     string
	archive, compress bool
	patch, tee        bool
	excludes          stringsFlag
	inputLock         string
	outputLock        string
	transferID        string
	statsPath         string
}

func (c maincmd) addSlaveFlags(fs *flag.FlagSet) *slaveFlags {
	f := new(slaveFlags)
	fs.StringVar(&f.source, "source", "", "source host")
	fs.StringVar(&f.chain, "chain", "", "comma-separated destination hosts, in relay order")
	fs.IntVar(&f.pos, "pos", topology.SourcePos, "this host's chain position (-1 for the source)")
	fs.BoolVar(&f.findSelf, "find-self", false, "find this host's position by looking up its name in the chain")
	fs.BoolVar(&f.prefixMatch, "prefix-match", false, "with -find-self, accept a unique prefix match")
	fs.StringVar(&f.hostname, "hostname", "", "with -find-self, use this instead of the system host name")
	fs.StringVar(&f.input, "i", "", "input file or directory (source)")
	fs.StringVar(&f.output, "o", "", "output file or directory (destinations)")
	fs.BoolVar(&f.archive, "archive", false, "transfer a directory tree")
	fs.BoolVar(&f.compress, "compress", false, "compress in flight")
	fs.BoolVar(&f.patch, "patch", false, "rewrite only the differing blocks of the existing output")
	fs.BoolVar(&f.tee, "tee", false, "keep a copy while forwarding (relays)")
	fs.Var(&f.excludes, "exclude", "archive: leave out paths matching this glob (repeatable)")
	fs.StringVar(&f.inputLock, "input-lock", "", "lock file for the input")
	fs.StringVar(&f.outputLock, "output-lock", "", "lock file for the output")
	fs.StringVar(&f.transferID, "transfer-id", "", "transfer id for logs and stats")
	fs.StringVar(&f.statsPath, "stats", "", "write transfer statistics to this file")
	c.cfg.AddFlags(fs)
	return f
}

func (c maincmd) slaveFromFlags(f *slaveFlags) (*transfer.Slave, error) {
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}
	var chain []string
	if f.chain != "" {
		chain = strings.Split(f.chain, ",")
	}
	return &transfer.Slave{
		ID:          f.transferID,
		Source:      f.source,
		Chain:       chain,
		Pos:         f.pos,
		FindSelf:    f.findSelf,
		PrefixMatch: f.prefixMatch,
		Hostname:    f.hostname,
		Input:       f.input,
		Output:      f.output,
		Transform:   ndd.Transform{Archive: f.archive, Compress: f.compress, Patch: f.patch, Tee: f.tee},
		Port:        c.cfg.Port,
		Tuning:      c.cfg.Tuning(),
		Programs:    c.cfg.Programs(self()),
		Excludes:    f.excludes,
		LockDir:     c.cfg.LockDir,
		InputLock:   f.inputLock,
		OutputLock:  f.outputLock,
		KillAfter:   c.cfg.KillAfter.Duration(),
		StatsPath:   f.statsPath,
	}, nil
}

func (c maincmd) slave(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("slave", flag.ContinueOnError)
	f := c.addSlaveFlags(fs)
	if err := fs.Parse(args); err != nil {
		return ndd.Configf("parsing args: %s", err)
	}
	s, err := c.slaveFromFlags(f)
	if err != nil {
		return err
	}
	return s.Run(ctx, c.log)
}
