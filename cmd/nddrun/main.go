// Command nddrun distributes a file or directory tree
// from one host along a chain of others,
// each host relaying the stream to the next.
//
// Usage:
//
//	nddrun [-config FILE] [-log-level L] [-log-dev] run [flags] DEST...
//	nddrun slave [flags]
//	nddrun plan [flags]
//	nddrun xform NAME [args]
//
// The run subcommand is the master:
// it starts a slave on every participating host,
// over ssh or as a Slurm job step.
// Each slave compiles and runs the processes for its hop.
//
// Exit status is 0 on success,
// 1 when a process of the transfer failed or a lock was held elsewhere,
// and 2 for configuration, launch and internal errors.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/bobg/subcmd"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/bobg/ndd"
	"github.com/bobg/ndd/config"
	"github.com/bobg/ndd/logging"
)

type maincmd struct {
	cfg *config.Config
	log *zap.Logger
}

func main() {
	var (
		configPath = flag.String("config", os.Getenv("NDD_CONFIG"), "path to TOML config file")
		logLevel   = flag.String("log-level", "", "log level: debug, info, warn, error")
		logDev     = flag.Bool("log-dev", false, "human-readable development logging")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nddrun: %s\n", err)
		os.Exit(ndd.ExitCode(err))
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logDev {
		cfg.LogDev = true
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Development: cfg.LogDev})
	if err != nil {
		fmt.Fprintf(os.Stderr, "nddrun: creating logger: %s\n", err)
		os.Exit(ndd.ExitInternal)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM, unix.SIGHUP)
	err = subcmd.Run(ctx, maincmd{cfg: cfg, log: logger.Logger}, flag.Args())
	stop()
	if err != nil {
		logger.Error("nddrun", zap.Error(err))
	}
	logger.Sync()
	os.Exit(ndd.ExitCode(err))
}

// Each subcommand parses its own flags,
// since repeatable and config-backed flags have no subcmd.Param type.
func (c maincmd) Subcmds() subcmd.Map {
	return subcmd.Commands(
		"run", c.run, nil,
		"slave", c.slave, nil,
		"plan", c.plan, nil,
		"xform", c.xform, nil,
	)
}

type stringsFlag []string

func (s *stringsFlag) String() string     { return fmt.Sprint(*s) }
func (s *stringsFlag) Set(v string) error { *s = append(*s, v); return nil }

// self is how this binary re-invokes itself for built-in programs.
func self() string {
	if p, err := os.Executable(); err == nil {
		return p
	}
	return os.Args[0]
}
