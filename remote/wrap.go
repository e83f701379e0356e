package remote

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/pkg/errors"

	"github.com/bobg/ndd"
	"github.com/bobg/ndd/graph"
	"github.com/bobg/ndd/topology"
)

// Mode is how slaves are started on remote hosts.
type Mode int

const (
	ModeSSH Mode = iota
	ModeSlurm
)

func (m Mode) String() string {
	switch m {
	case ModeSSH:
		return "ssh"
	case ModeSlurm:
		return "slurm"
	}
	return "Mode(" + strconv.Itoa(int(m)) + ")"
}

// SSH starts a slave over ssh,
// with a remote pseudo-terminal
// (so that the remote side dies with the session)
// and key-based authentication only.
type SSH struct {
	// Program is the ssh client. Default "ssh".
	Program string

	// Options are extra raw arguments placed before the host.
	Options []string
}

// Wrap produces the command running argv on host.
// The host keeps any user@ prefix, for login.
// The remote sshd hands its command line to a shell,
// so argv travels as one shell-quoted word list.
func (s SSH) Wrap(host string, argv []string) graph.Command {
	program := s.Program
	if program == "" {
		program = "ssh"
	}
	args := []string{"-tt", "-o", "PasswordAuthentication=no"}
	args = append(args, s.Options...)
	args = append(args, host, shellquote.Join(argv...))
	return graph.Command{Program: program, Args: args}
}

// Slurm starts slaves as one srun job step across a host set.
type Slurm struct {
	// Srun and Sinfo are the scheduler clients. Defaults "srun" and "sinfo".
	Srun  string
	Sinfo string

	// Options are extra raw srun arguments.
	Options []string
}

// Wrap produces the command running argv once on each of hosts.
func (s Slurm) Wrap(hosts []string, argv []string) graph.Command {
	program := s.Srun
	if program == "" {
		program = "srun"
	}
	hosts = topology.Hosts(hosts)
	args := []string{"-D", "/", "-K", "-q", "-N", strconv.Itoa(len(hosts)), "-w", strings.Join(hosts, ",")}
	args = append(args, s.Options...)
	args = append(args, argv...)
	return graph.Command{Program: program, Args: args}
}

// IdleNodes lists the idle nodes of a Slurm partition.
func (s Slurm) IdleNodes(ctx context.Context, partition string) ([]string, error) {
	if partition == "" {
		return nil, ndd.Configf("no partition given")
	}
	program := s.Sinfo
	if program == "" {
		program = "sinfo"
	}

	cmd := exec.CommandContext(ctx, program, "-p", partition, "-t", "idle", "-h", "-o", "%n")
	out, err := cmd.Output()
	if err != nil {
		return nil, errors.Wrapf(err, "listing idle nodes of partition %s", partition)
	}

	var (
		nodes []string
		seen  = make(map[string]bool)
		sc    = bufio.NewScanner(bytes.NewReader(out))
	)
	for sc.Scan() {
		n := strings.TrimSpace(sc.Text())
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		nodes = append(nodes, n)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "reading sinfo output")
	}
	if len(nodes) == 0 {
		return nil, ndd.Configf("no idle nodes in partition %s", partition)
	}
	return nodes, nil
}
