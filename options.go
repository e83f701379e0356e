package ndd

import (
	"strconv"
	"strings"
	"time"
)

// Defaults for the network transport.
const (
	DefaultPort   = 3634
	DefaultBuffer = 16 << 20
	DefaultBlock  = 8 << 20
)

// Transform is the set of per-hop stream transforms requested for a transfer.
// The same flags apply at every hop.
type Transform struct {
	// Archive packs a directory tree at the source
	// and unpacks it at each destination.
	Archive bool

	// Compress compresses at the source
	// and decompresses at each destination.
	Compress bool

	// Patch applies the stream to an existing output file in place,
	// rewriting only the blocks that differ.
	// Patch and Archive are mutually exclusive.
	Patch bool

	// Tee makes a relay keep a local copy
	// in addition to forwarding the stream downstream.
	Tee bool
}

// Validate rejects illegal flag combinations.
func (t Transform) Validate() error {
	if t.Archive && t.Patch {
		return Configf("archive and patch modes are mutually exclusive")
	}
	return nil
}

// String renders the flags compactly for logs, e.g. "archive+compress".
func (t Transform) String() string {
	var parts []string
	if t.Archive {
		parts = append(parts, "archive")
	}
	if t.Compress {
		parts = append(parts, "compress")
	}
	if t.Patch {
		parts = append(parts, "patch")
	}
	if t.Tee {
		parts = append(parts, "tee")
	}
	if len(parts) == 0 {
		return "plain"
	}
	return strings.Join(parts, "+")
}

// Tuning holds the knobs passed through to every transport node.
// Zero values mean "use the transport's own default"
// and produce no flag.
type Tuning struct {
	Buffer  int64         // -B, total buffer size in bytes
	Block   int64         // -b, block size in bytes
	Timeout time.Duration // -t, network timeout, whole seconds
}

// Validate applies the transport's own sizing rules:
// both sizes positive,
// the buffer larger than a block
// and a whole multiple of it.
// A size left at zero is checked against the transport's default for it.
func (t Tuning) Validate() error {
	if t.Buffer < 0 || t.Block < 0 {
		return Configf("buffer and block sizes must be positive")
	}
	if t.Timeout < 0 {
		return Configf("timeout must not be negative")
	}
	if t.Buffer == 0 && t.Block == 0 {
		return nil
	}
	buf, blk := t.Buffer, t.Block
	if buf == 0 {
		buf = DefaultBuffer
	}
	if blk == 0 {
		blk = DefaultBlock
	}
	if buf <= blk {
		return Configf("buffer size %d must be larger than block size %d", buf, blk)
	}
	if buf%blk != 0 {
		return Configf("buffer size %d must be a multiple of block size %d", buf, blk)
	}
	return nil
}

// Args renders the tuning as transport flags.
func (t Tuning) Args() []string {
	var args []string
	if t.Buffer > 0 {
		args = append(args, "-B", strconv.FormatInt(t.Buffer, 10))
	}
	if t.Block > 0 {
		args = append(args, "-b", strconv.FormatInt(t.Block, 10))
	}
	if t.Timeout > 0 {
		secs := int64((t.Timeout + time.Second - 1) / time.Second)
		args = append(args, "-t", strconv.FormatInt(secs, 10))
	}
	return args
}

// Addr joins a host and port into a transport address.
func Addr(host string, port int) string {
	return host + ":" + strconv.Itoa(port)
}
