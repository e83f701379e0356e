// Package supervise waits on the processes of one hop
// and tears them all down when any of them fails.
package supervise

import (
	"context"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/bobg/ndd"
)

// DefaultKillAfter is how long terminated processes get to exit
// before they are killed outright.
const DefaultKillAfter = 10 * time.Second

// Result is what became of one process.
type Result struct {
	ID   string
	Desc string
	Pid  int

	// Code is the exit status.
	// It is -1 when the process was killed by a signal.
	Code int

	// Signal is the signal that killed the process, if any.
	Signal syscall.Signal

	// Err is set when waiting on the process failed for a reason
	// other than an ordinary exit.
	Err error

	Duration time.Duration

	// Terminated is true when the supervisor itself signaled the process
	// as part of a failure cascade.
	Terminated bool
}

// Failed tells whether the result counts as a failure of its process.
func (r Result) Failed() bool {
	return r.Code != 0 || r.Signal != 0 || r.Err != nil
}

// Supervisor owns the set of running processes of one hop.
// Processes are added with Add after they have been started;
// then one call to Wait
// (or Abort)
// reaps them all.
type Supervisor struct {
	// KillAfter bounds the failure cascade:
	// processes still running this long after being sent SIGTERM
	// get SIGKILL.
	// Zero means never escalate.
	KillAfter time.Duration

	log    *zap.Logger
	events chan event
	eg     errgroup.Group

	mu      sync.Mutex // protects the fields below
	procs   []*proc
	pending int
}

type proc struct {
	id, desc   string
	cmd        *exec.Cmd
	start      time.Time
	done       bool
	terminated bool
	result     Result
}

type event struct {
	p   *proc
	err error
	at  time.Time
}

// New produces a Supervisor that logs to log.
func New(log *zap.Logger) *Supervisor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Supervisor{
		KillAfter: DefaultKillAfter,
		log:       log,
		events:    make(chan event),
	}
}

// Add puts a started process under supervision.
// A goroutine waits on it and reports its exit to the supervision loop.
func (s *Supervisor) Add(id, desc string, cmd *exec.Cmd) {
	p := &proc{id: id, desc: desc, cmd: cmd, start: time.Now()}

	s.mu.Lock()
	s.procs = append(s.procs, p)
	s.pending++
	s.mu.Unlock()

	s.log.Debug("node started", zap.String("node", id), zap.String("desc", desc), zap.Int("pid", cmd.Process.Pid))

	s.eg.Go(func() error {
		err := cmd.Wait()
		s.events <- event{p: p, err: err, at: time.Now()}
		return nil
	})
}

// Wait reaps every supervised process,
// in whatever order they exit.
// The first failure,
// or cancellation of ctx,
// sends SIGTERM to every process still running;
// Wait still reaps them all before returning.
//
// The result is nil only if every process exited with status 0.
// Otherwise it is a *ndd.NodeFailure describing the first failure.
func (s *Supervisor) Wait(ctx context.Context) error {
	return s.loop(ctx, false)
}

// Abort terminates every supervised process and reaps them,
// without there having been a failure.
// The launcher uses it when it cannot start the rest of a graph.
func (s *Supervisor) Abort() {
	s.loop(context.Background(), true)
}

func (s *Supervisor) loop(ctx context.Context, abort bool) error {
	var (
		first error
		kill  <-chan time.Time
		done  = ctx.Done()
	)

	cascade := func() {
		s.signalRunning(unix.SIGTERM)
		if s.KillAfter > 0 {
			kill = time.After(s.KillAfter)
		}
	}

	if abort {
		cascade()
	}

	for s.remaining() > 0 {
		select {
		case ev := <-s.events:
			res := s.reap(ev)
			if first == nil && !abort && res.Failed() {
				first = failure(res)
				s.log.Error("node failed, terminating peers", zap.String("node", res.ID), zap.String("desc", res.Desc), zap.Int("code", res.Code), zap.Stringer("signal", res.Signal))
				cascade()
			}

		case <-done:
			done = nil
			if first == nil && !abort {
				first = &ndd.NodeFailure{Node: "orchestrator", Desc: "transfer", Err: ctx.Err()}
				s.log.Warn("transfer canceled, terminating nodes", zap.Error(ctx.Err()))
				cascade()
			}

		case <-kill:
			kill = nil
			s.log.Warn("nodes did not exit after SIGTERM, killing", zap.Duration("after", s.KillAfter))
			s.signalRunning(unix.SIGKILL)
		}
	}

	_ = s.eg.Wait() // waiters always return nil
	return first
}

func (s *Supervisor) remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

func (s *Supervisor) signalRunning(sig syscall.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.procs {
		if p.done {
			continue
		}
		if err := p.cmd.Process.Signal(sig); err != nil {
			// Already exited but not yet reaped by this loop.
			s.log.Debug("signaling node", zap.String("node", p.id), zap.Stringer("signal", sig), zap.Error(err))
			continue
		}
		p.terminated = true
	}
}

func (s *Supervisor) reap(ev event) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := ev.p
	p.done = true
	s.pending--

	res := Result{
		ID:         p.id,
		Desc:       p.desc,
		Pid:        p.cmd.Process.Pid,
		Duration:   ev.at.Sub(p.start),
		Terminated: p.terminated,
	}
	classify(&res, ev.err)
	p.result = res

	fields := []zap.Field{
		zap.String("node", res.ID),
		zap.Int("pid", res.Pid),
		zap.Duration("duration", res.Duration),
	}
	switch {
	case res.Err != nil:
		s.log.Error("waiting for node", append(fields, zap.Error(res.Err))...)
	case res.Signal != 0:
		s.log.Info("node killed", append(fields, zap.Stringer("signal", res.Signal), zap.Bool("terminated", res.Terminated))...)
	case res.Code == 255 && isSSH(p.cmd):
		s.log.Error("remote invocation failed", append(fields, zap.Int("code", res.Code))...)
	default:
		s.log.Info("node exited", append(fields, zap.Int("code", res.Code))...)
	}
	return res
}

func classify(res *Result, err error) {
	if err == nil {
		return
	}
	if ee, ok := err.(*exec.ExitError); ok {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok {
			if ws.Signaled() {
				res.Code = -1
				res.Signal = ws.Signal()
				return
			}
			res.Code = ws.ExitStatus()
			return
		}
		res.Code = ee.ExitCode()
		return
	}
	res.Code = -1
	res.Err = err
}

func failure(res Result) *ndd.NodeFailure {
	return &ndd.NodeFailure{
		Node:   res.ID,
		Desc:   res.Desc,
		Code:   res.Code,
		Signal: res.Signal,
		Err:    res.Err,
	}
}

func isSSH(cmd *exec.Cmd) bool {
	return len(cmd.Args) > 0 && filepath.Base(cmd.Args[0]) == "ssh"
}

// Results reports every reaped process in the order it was added.
func (s *Supervisor) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Result
	for _, p := range s.procs {
		if p.done {
			out = append(out, p.result)
		}
	}
	return out
}
