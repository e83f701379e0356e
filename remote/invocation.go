// Package remote starts transfer roles on other hosts.
//
// The master never runs a pipeline of its own
// (except a local source).
// Instead it re-invokes this program in slave mode on each participating host,
// with a command line carrying everything the slave needs,
// wrapped for either ssh or a Slurm job step.
package remote

import (
	"strconv"
	"strings"
	"time"

	"github.com/bobg/ndd"
)

// Invocation is everything a slave needs to run one role.
type Invocation struct {
	// Program is the path of this program on the remote host.
	Program string

	// LogLevel, if set, is passed through as the global -log-level flag.
	LogLevel string

	Source string
	Chain  []string

	// Pos is the slave's chain position,
	// -1 for the source.
	// It is ignored when FindSelf is set.
	Pos int

	// FindSelf makes the slave work out its own position
	// by looking up its host name in Chain.
	FindSelf    bool
	PrefixMatch bool

	Input  string
	Output string

	Transform ndd.Transform
	Port      int
	Tuning    ndd.Tuning

	Transport string
	Builtin   bool
	Excludes  []string

	// KillAfter, if non-nil, is the slave's grace period
	// between SIGTERM and SIGKILL.
	// Zero means never SIGKILL.
	KillAfter *time.Duration

	LockDir    string
	InputLock  string
	OutputLock string

	TransferID string
}

// SlaveArgs produces the argv that runs inv's role on a remote host.
func SlaveArgs(inv Invocation) []string {
	program := inv.Program
	if program == "" {
		program = "nddrun"
	}
	argv := []string{program}
	if inv.LogLevel != "" {
		argv = append(argv, "-log-level", inv.LogLevel)
	}
	argv = append(argv, "slave")

	str := func(flag, val string) {
		if val != "" {
			argv = append(argv, "-"+flag, val)
		}
	}
	boolean := func(flag string, val bool) {
		if val {
			argv = append(argv, "-"+flag)
		}
	}
	num := func(flag string, val int64) {
		if val != 0 {
			argv = append(argv, "-"+flag, strconv.FormatInt(val, 10))
		}
	}

	str("source", inv.Source)
	str("chain", strings.Join(inv.Chain, ","))
	if inv.FindSelf {
		boolean("find-self", true)
		boolean("prefix-match", inv.PrefixMatch)
	} else {
		argv = append(argv, "-pos", strconv.Itoa(inv.Pos))
	}
	str("i", inv.Input)
	str("o", inv.Output)

	boolean("archive", inv.Transform.Archive)
	boolean("compress", inv.Transform.Compress)
	boolean("patch", inv.Transform.Patch)
	boolean("tee", inv.Transform.Tee)

	num("port", int64(inv.Port))
	num("buffer", inv.Tuning.Buffer)
	num("block", inv.Tuning.Block)
	if inv.Tuning.Timeout > 0 {
		str("timeout", inv.Tuning.Timeout.String())
	}

	str("transport", inv.Transport)
	boolean("builtin", inv.Builtin)
	for _, e := range inv.Excludes {
		str("exclude", e)
	}
	if inv.KillAfter != nil {
		str("kill-after", inv.KillAfter.String())
	}

	str("lock-dir", inv.LockDir)
	str("input-lock", inv.InputLock)
	str("output-lock", inv.OutputLock)
	str("transfer-id", inv.TransferID)

	return argv
}
