package graph

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/bobg/ndd"
)

func TestBuild(t *testing.T) {
	b := NewBuilder()
	b.Node(Node{ID: "tar", Desc: "archiver", Cmd: Cmd("tar", "-C", "/data", "-f", "-", "-c", ".")})
	b.Node(Node{ID: "gzip", Desc: "compressor", Cmd: Cmd("pigz", "--fast")})
	b.Node(Node{ID: "send", Desc: "transport", Cmd: Cmd("ndd", "-s", "h1:3634")})
	b.Pipe("tar", "gzip")
	b.Connect(Out("gzip"), Fd("send", "-I"))

	g, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"tar", "gzip", "send"}, g.Order()); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	wantIn := []Edge{{From: Out("gzip"), To: Fd("send", "-I")}}
	if diff := cmp.Diff(wantIn, g.In("send")); diff != "" {
		t.Errorf("In(send) mismatch (-want +got):\n%s", diff)
	}
	if len(g.Out("send")) != 0 {
		t.Errorf("got %d edges out of send, want 0", len(g.Out("send")))
	}

	s := g.String()
	for _, want := range []string{"tar (archiver): tar -C /data -f - -c .", "gzip -> send[-I /dev/fd/N]"} {
		if !strings.Contains(s, want) {
			t.Errorf("plan lacks %q:\n%s", want, s)
		}
	}
}

func TestImmutable(t *testing.T) {
	args := []string{"-c"}
	b := NewBuilder()
	b.Node(Node{ID: "a", Cmd: Command{Program: "gzip", Args: args}})
	g, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	args[0] = "-d"
	n, _ := g.Node("a")
	n.Cmd.Args[0] = "-9"

	n, _ = g.Node("a")
	if diff := cmp.Diff([]string{"gzip", "-c"}, n.Cmd.Argv()); diff != "" {
		t.Errorf("graph changed (-want +got):\n%s", diff)
	}
}

func TestBuildErrors(t *testing.T) {
	cases := []struct {
		name  string
		build func(*Builder)
	}{
		{
			name:  "empty",
			build: func(b *Builder) {},
		},
		{
			name: "duplicate_id",
			build: func(b *Builder) {
				b.Node(Node{ID: "a", Cmd: Cmd("cat")})
				b.Node(Node{ID: "a", Cmd: Cmd("cat")})
			},
		},
		{
			name: "empty_program",
			build: func(b *Builder) {
				b.Node(Node{ID: "a"})
			},
		},
		{
			name: "nul_arg",
			build: func(b *Builder) {
				b.Node(Node{ID: "a", Cmd: Cmd("cat", "x\x00y")})
			},
		},
		{
			name: "unknown_node",
			build: func(b *Builder) {
				b.Node(Node{ID: "a", Cmd: Cmd("cat")})
				b.Pipe("a", "b")
			},
		},
		{
			name: "self_loop",
			build: func(b *Builder) {
				b.Node(Node{ID: "a", Cmd: Cmd("cat")})
				b.Connect(Fd("a", ""), In("a"))
			},
		},
		{
			name: "cycle",
			build: func(b *Builder) {
				b.Node(Node{ID: "a", Cmd: Cmd("cat")})
				b.Node(Node{ID: "b", Cmd: Cmd("cat")})
				b.Node(Node{ID: "c", Cmd: Cmd("cat")})
				b.Pipe("a", "b")
				b.Pipe("b", "c")
				b.Connect(Fd("c", ""), In("a"))
			},
		},
		{
			name: "double_stdin",
			build: func(b *Builder) {
				b.Node(Node{ID: "a", Cmd: Cmd("cat")})
				b.Node(Node{ID: "b", Cmd: Cmd("cat")})
				b.Node(Node{ID: "c", Cmd: Cmd("cat")})
				b.Pipe("a", "c")
				b.Pipe("b", "c")
			},
		},
		{
			name: "fixed_stdin_and_pipe",
			build: func(b *Builder) {
				b.Node(Node{ID: "a", Cmd: Cmd("cat")})
				b.Node(Node{ID: "b", Cmd: Cmd("cat"), Stdin: "/etc/hosts"})
				b.Pipe("a", "b")
			},
		},
		{
			name: "double_stdout",
			build: func(b *Builder) {
				b.Node(Node{ID: "a", Cmd: Cmd("cat"), Stdout: "/tmp/out"})
				b.Node(Node{ID: "b", Cmd: Cmd("cat")})
				b.Pipe("a", "b")
			},
		},
		{
			name: "flag_on_stream",
			build: func(b *Builder) {
				b.Node(Node{ID: "a", Cmd: Cmd("cat")})
				b.Node(Node{ID: "b", Cmd: Cmd("cat")})
				b.Connect(Out("a"), Endpoint{Node: "b", Flag: "-I"})
			},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b := NewBuilder()
			c.build(b)
			_, err := b.Build()
			if !errors.Is(err, ndd.ErrConfig) {
				t.Errorf("got %v, want configuration error", err)
			}
		})
	}
}

func TestDescriptorEdgesDoNotTakeSlots(t *testing.T) {
	b := NewBuilder()
	b.Node(Node{ID: "recv", Cmd: Cmd("ndd", "-O", "/dev/stdout")})
	b.Node(Node{ID: "tee", Cmd: Cmd("tee")})
	b.Node(Node{ID: "fwd", Cmd: Cmd("ndd", "-I", "/dev/stdin")})
	b.Node(Node{ID: "gunzip", Cmd: Cmd("pigz", "-d"), Stdout: "/tmp/out"})
	b.Pipe("recv", "tee")
	b.Pipe("tee", "fwd")
	b.Connect(Fd("tee", ""), In("gunzip"))
	if _, err := b.Build(); err != nil {
		t.Fatal(err)
	}
}

func TestFromArgv(t *testing.T) {
	cases := []struct {
		prefix []string
		args   []string
		want   []string
	}{
		{prefix: []string{"pigz", "--fast"}, want: []string{"pigz", "--fast"}},
		{prefix: []string{"pigz", "-d"}, args: []string{"-c"}, want: []string{"pigz", "-d", "-c"}},
		{prefix: []string{"/usr/bin/nddrun", "xform", "gzip"}, want: []string{"/usr/bin/nddrun", "xform", "gzip"}},
	}
	for i, c := range cases {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			got := FromArgv(c.prefix, c.args...).Argv()
			if diff := cmp.Diff(c.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
