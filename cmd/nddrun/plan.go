package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/bobg/ndd"
	"github.com/bobg/ndd/launch"
	"github.com/bobg/ndd/transfer"
)

// plan prints the process graph a slave would run, without running it.
func (c maincmd) plan(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	f := c.addSlaveFlags(fs)
	if err := fs.Parse(args); err != nil {
		return ndd.Configf("parsing args: %s", err)
	}
	s, err := c.slaveFromFlags(f)
	if err != nil {
		return err
	}
	hop, g, err := s.Plan(c.log)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "%s (%s, %s)\n\n", hop, transfer.Role(hop), s.Transform)
	fmt.Fprintln(os.Stdout, g)
	fmt.Fprintln(os.Stdout)

	argv := launch.Argv(g)
	for _, id := range g.Order() {
		fmt.Fprintf(os.Stdout, "%s: %s\n", id, strings.Join(argv[id], " "))
	}
	return nil
}
