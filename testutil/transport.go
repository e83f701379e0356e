package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

const fakeTransport = `#!/bin/sh
net=%q
in= recv= send= outs=
while getopts "i:I:o:O:r:s:B:b:t:" opt; do
	case $opt in
	i|I) in=$OPTARG ;;
	o|O) outs="$outs $OPTARG" ;;
	r) recv=$OPTARG ;;
	s) send=$OPTARG ;;
	B|b|t) ;;
	*) exit 2 ;;
	esac
done
if [ -n "$recv" ]; then
	in="$net/$recv"
	n=0
	while [ ! -f "$in" ]; do
		n=$((n+1))
		[ $n -gt 600 ] && { echo "timed out waiting for $recv" >&2; exit 1; }
		sleep 0.05
	done
fi
[ -n "$in" ] || { echo "no input" >&2; exit 2; }
tmp="$net/.tmp.$$"
cat "$in" > "$tmp" || exit 1
for o in $outs; do
	cat "$tmp" > "$o" || exit 1
done
if [ -n "$send" ]; then
	mv "$tmp" "$net/$send"
else
	rm -f "$tmp"
fi
`

// FakeTransport writes a shell script that stands in for the network transport
// and returns its path.
// It accepts the transport's flags
// but moves the stream through files in a scratch directory:
// a sender publishes under its own -s address
// and a receiver waits for the file named by its -r address.
// Paths given to it must not contain spaces.
func FakeTransport(t *testing.T) string {
	t.Helper()

	var (
		dir  = t.TempDir()
		net  = filepath.Join(dir, "net")
		prog = filepath.Join(dir, "fake-ndd")
	)
	if err := os.Mkdir(net, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(prog, []byte(fmt.Sprintf(fakeTransport, net)), 0o755); err != nil {
		t.Fatal(err)
	}
	return prog
}
