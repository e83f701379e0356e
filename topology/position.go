package topology

import (
	"strings"

	"github.com/bobg/ndd"
)

// MatchMode selects how Position finds a host in the destination list.
type MatchMode int

const (
	// MatchExact requires the host name to equal a destination exactly.
	MatchExact MatchMode = iota

	// MatchPrefix falls back to the unique destination
	// that is a prefix of the host name
	// when no destination matches exactly,
	// e.g. node7 for a host that calls itself node7.cluster.local.
	MatchPrefix
)

// Position finds self in dests and returns its chain position.
// The second result is true when the match was by prefix rather than exact,
// so callers can warn about it.
func Position(self string, dests []string, mode MatchMode) (int, bool, error) {
	self = Host(self)
	if self == "" {
		return 0, false, ndd.Configf("empty host name")
	}
	hosts := Hosts(dests)
	for i, h := range hosts {
		if h == self {
			return i, false, nil
		}
	}
	if mode != MatchPrefix {
		return 0, false, ndd.Configf("host %s not found in destinations %s", self, strings.Join(hosts, ","))
	}

	var found []int
	for i, h := range hosts {
		if strings.HasPrefix(self, h) {
			found = append(found, i)
		}
	}
	switch len(found) {
	case 0:
		return 0, false, ndd.Configf("host %s matches no destination in %s", self, strings.Join(hosts, ","))
	case 1:
		return found[0], true, nil
	default:
		return 0, false, ndd.Configf("host %s is an ambiguous prefix match in %s", self, strings.Join(hosts, ","))
	}
}
