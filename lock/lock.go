// Package lock coordinates transfers that touch the same paths on a host.
//
// The source takes a shared lock while it packs its input;
// each destination takes an exclusive lock while it unpacks its output.
// Locks never wait:
// if one is held elsewhere,
// Acquire fails at once with ndd.ErrLocked.
package lock

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"

	"github.com/bobg/ndd"
)

// Mode is the kind of lock to take.
type Mode int

const (
	Shared Mode = iota
	Exclusive
)

func (m Mode) String() string {
	if m == Shared {
		return "shared"
	}
	return "exclusive"
}

// DefaultDir is where lock files live unless configured otherwise.
const DefaultDir = "/tmp/ndd"

// Lock is a held advisory lock.
type Lock struct {
	path string
	mode Mode

	once sync.Once
	fl   *flock.Flock
	err  error
}

// Acquire takes a non-blocking lock on path,
// creating the lock file (but not its directory) if necessary.
func Acquire(path string, mode Mode) (*Lock, error) {
	fl := flock.New(path)

	var (
		ok  bool
		err error
	)
	if mode == Shared {
		ok, err = fl.TryRLock()
	} else {
		ok, err = fl.TryLock()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "locking %s", path)
	}
	if !ok {
		return nil, ndd.Lockedf("%s lock on %s is held by another transfer", mode, path)
	}
	return &Lock{path: path, mode: mode, fl: fl}, nil
}

// Release drops the lock.
// It is safe to call more than once
// and on a nil *Lock.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	l.once.Do(func() {
		l.err = errors.Wrapf(l.fl.Unlock(), "unlocking %s", l.path)
		if cerr := l.fl.Close(); cerr != nil && l.err == nil {
			l.err = errors.Wrapf(cerr, "closing %s", l.path)
		}
	})
	return l.err
}

// Path is the lock file's path.
func (l *Lock) Path() string { return l.path }

// Mode is the lock's mode.
func (l *Lock) Mode() Mode { return l.mode }

// PathFor produces the default lock file for dataPath inside dir:
// the absolute data path with separators flattened,
// so /srv/data/x locks dir/_srv_data_x.lock.
func PathFor(dir, dataPath string) (string, error) {
	abs, err := filepath.Abs(dataPath)
	if err != nil {
		return "", errors.Wrapf(err, "resolving %s", dataPath)
	}
	if dir == "" {
		dir = DefaultDir
	}
	name := strings.ReplaceAll(abs, string(filepath.Separator), "_") + ".lock"
	return filepath.Join(dir, name), nil
}

// AcquireFor locks dataPath through its default lock file in dir,
// creating dir if needed.
// An explicit lockPath overrides the default.
func AcquireFor(dir, lockPath, dataPath string, mode Mode) (*Lock, error) {
	if lockPath == "" {
		var err error
		lockPath, err = PathFor(dir, dataPath)
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating lock directory for %s", lockPath)
	}
	return Acquire(lockPath, mode)
}
