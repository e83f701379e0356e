// Package topology computes the relay chain of a transfer:
// for each participant, which host it receives from and which host it sends to.
package topology

import (
	"fmt"
	"strings"

	"github.com/bobg/ndd"
)

// SourcePos is the chain position of the source host.
const SourcePos = -1

// Hop is one host's place in the relay chain.
// All three fields are normalized hosts (no user@ prefix).
type Hop struct {
	Pos  int
	Self string

	// From is the upstream host.
	// It is empty only for the source.
	From string

	// To is the downstream host.
	// It is empty only for the last destination.
	To string
}

// IsSource tells whether this is the source hop.
func (h Hop) IsSource() bool { return h.Pos == SourcePos }

// IsTerminal tells whether this hop has nothing downstream.
func (h Hop) IsTerminal() bool { return h.To == "" }

func (h Hop) String() string {
	from, to := h.From, h.To
	if from == "" {
		from = "-"
	}
	if to == "" {
		to = "-"
	}
	return fmt.Sprintf("%s[%d] %s -> %s", h.Self, h.Pos, from, to)
}

// Host strips any user@ prefix from a host identifier.
// The user part is for remote login only,
// never for a transport address.
func Host(id string) string {
	if i := strings.LastIndexByte(id, '@'); i >= 0 {
		return id[i+1:]
	}
	return id
}

// Hosts applies Host to each element of ids.
func Hosts(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, Host(id))
	}
	return out
}

// Resolve computes the hop for position pos
// in the chain from source through dests.
// Position SourcePos is the source itself.
func Resolve(source string, dests []string, pos int) (Hop, error) {
	if err := check(source, dests); err != nil {
		return Hop{}, err
	}
	if pos < SourcePos || pos >= len(dests) {
		return Hop{}, ndd.Configf("chain position %d out of range for %d destination(s)", pos, len(dests))
	}

	hosts := Hosts(dests)
	if pos == SourcePos {
		return Hop{Pos: pos, Self: Host(source), To: hosts[0]}, nil
	}

	hop := Hop{Pos: pos, Self: hosts[pos]}
	if pos == 0 {
		hop.From = Host(source)
	} else {
		hop.From = hosts[pos-1]
	}
	if pos < len(hosts)-1 {
		hop.To = hosts[pos+1]
	}
	return hop, nil
}

// Chain resolves every hop, source first.
func Chain(source string, dests []string) ([]Hop, error) {
	hops := make([]Hop, 0, len(dests)+1)
	for pos := SourcePos; pos < len(dests); pos++ {
		hop, err := Resolve(source, dests, pos)
		if err != nil {
			return nil, err
		}
		hops = append(hops, hop)
	}
	return hops, nil
}

func check(source string, dests []string) error {
	if Host(source) == "" {
		return ndd.Configf("empty source host")
	}
	if len(dests) == 0 {
		return ndd.Configf("no destination hosts")
	}
	for i, d := range dests {
		if Host(d) == "" {
			return ndd.Configf("empty destination host at position %d", i)
		}
	}
	return nil
}
