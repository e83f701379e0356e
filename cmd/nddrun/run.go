package main

import (
	"context"
	"flag"
	"os"

	"github.com/pkg/errors"

	"github.com/bobg/ndd"
	"github.com/bobg/ndd/remote"
	"github.com/bobg/ndd/transfer"
)

func (c maincmd) run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	var (
		useSSH      = fs.Bool("ssh", false, "start slaves over ssh (the default)")
		useSlurm    = fs.Bool("slurm", false, "start destinations as a Slurm job step")
		partition   = fs.String("partition", "", "Slurm: take destinations from the idle nodes of this partition")
		maxNodes    = fs.Int("nodes", 0, "Slurm: use at most this many idle nodes")
		source      = fs.String("source", "", "source host (default: this host)")
		local       = fs.Bool("local", false, "ssh: run the source on this host")
		input       = fs.String("i", "", "input file or directory on the source")
		output      = fs.String("o", "", "output file or directory on each destination")
		archive     = fs.Bool("archive", false, "transfer a directory tree")
		compress    = fs.Bool("compress", false, "compress in flight")
		patch       = fs.Bool("patch", false, "rewrite only the differing blocks of an existing output file")
		tee         = fs.Bool("tee", false, "relays keep a copy while forwarding")
		prefixMatch = fs.Bool("prefix-match", false, "Slurm: let slaves find themselves by host name prefix")
		inputLock   = fs.String("input-lock", "", "lock file for the input (default: derived from -i)")
		outputLock  = fs.String("output-lock", "", "lock file for the output (default: derived from -o)")
		statsPath   = fs.String("stats", "", "write transfer statistics to this file")
		excludes    stringsFlag
	)
	fs.Var(&excludes, "exclude", "archive: leave out paths matching this glob (repeatable)")
	fs.StringVar(&c.cfg.Program, "remote-program", c.cfg.Program, "path of nddrun on the remote hosts")
	c.cfg.AddFlags(fs)
	if err := fs.Parse(args); err != nil {
		return ndd.Configf("parsing args: %s", err)
	}
	if err := c.cfg.Validate(); err != nil {
		return err
	}

	if *useSSH && *useSlurm {
		return ndd.Configf("-ssh and -slurm are mutually exclusive")
	}
	mode := remote.ModeSSH
	if *useSlurm {
		mode = remote.ModeSlurm
	}
	if *input == "" || *output == "" {
		return ndd.Configf("must supply -i and -o")
	}
	if *source == "" {
		h, err := os.Hostname()
		if err != nil {
			return errors.Wrap(err, "getting host name")
		}
		*source = h
		*local = true
	}
	transform := ndd.Transform{Archive: *archive, Compress: *compress, Patch: *patch, Tee: *tee}
	if err := transform.Validate(); err != nil {
		return err
	}

	killAfter := c.cfg.KillAfter.Duration()
	m := &transfer.Master{
		Master: remote.Master{
			Mode:   mode,
			Source: *source,
			Dests:  fs.Args(),
			Local:  *local,
			SSH:    c.cfg.SSHWrapper(),
			Slurm:  c.cfg.SlurmWrapper(),
			Slave: remote.Invocation{
				Program:     c.cfg.Program,
				LogLevel:    c.cfg.LogLevel,
				PrefixMatch: *prefixMatch,
				Input:       *input,
				Output:      *output,
				Transform:   transform,
				Port:        c.cfg.Port,
				Tuning:      c.cfg.Tuning(),
				Transport:   c.cfg.Transport,
				Builtin:     c.cfg.Builtin,
				Excludes:    excludes,
				KillAfter:   &killAfter,
				LockDir:     c.cfg.LockDir,
				InputLock:   *inputLock,
				OutputLock:  *outputLock,
			},
		},
		Partition: *partition,
		MaxNodes:  *maxNodes,
		KillAfter: killAfter,
		StatsPath: *statsPath,
	}
	return m.Run(ctx, c.log)
}
