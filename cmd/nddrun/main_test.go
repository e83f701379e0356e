package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bobg/subcmd"
	"go.uber.org/zap"

	"github.com/bobg/ndd"
	"github.com/bobg/ndd/config"
)

func TestSubcmds(t *testing.T) {
	cases := []struct {
		args     []string
		wantErr  error
		wantExit int
	}{
		{args: nil, wantErr: subcmd.ErrNoArgs, wantExit: ndd.ExitInternal},
		{args: []string{"nonesuch"}, wantErr: subcmd.ErrUnknown, wantExit: ndd.ExitInternal},
		{args: []string{"plan", "-source", "h0", "-chain", "h1", "-pos", "0", "-o", "/out"}, wantExit: ndd.ExitOK},
		{args: []string{"plan", "-nonesuch"}, wantErr: ndd.ErrConfig, wantExit: ndd.ExitInternal},
		{args: []string{"slave", "-source", "h0", "-chain", "h1", "-find-self", "-hostname", "elsewhere", "-o", "/out"}, wantErr: ndd.ErrConfig, wantExit: ndd.ExitInternal},
		{args: []string{"run", "-ssh", "-slurm", "-i", "/in", "-o", "/out", "h1"}, wantErr: ndd.ErrConfig, wantExit: ndd.ExitInternal},
		{args: []string{"run", "-i", "/in", "h1"}, wantErr: ndd.ErrConfig, wantExit: ndd.ExitInternal},
		{args: []string{"xform"}, wantErr: ndd.ErrConfig, wantExit: ndd.ExitInternal},
		{args: []string{"xform", "nonesuch"}, wantExit: ndd.ExitInternal},
	}

	for i, tc := range cases {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			c := maincmd{cfg: config.Default(), log: zap.NewNop()}
			err := subcmd.Run(context.Background(), c, tc.args)
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("got error %v, want %v", err, tc.wantErr)
			}
			if got := ndd.ExitCode(err); got != tc.wantExit {
				t.Errorf("got exit status %d, want %d (error %v)", got, tc.wantExit, err)
			}
		})
	}
}
