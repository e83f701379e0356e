// Package config holds nddrun's settings.
//
// Settings are layered:
// Default,
// then an optional TOML file,
// then NDD_-prefixed environment variables,
// then command-line flags (see AddFlags).
package config

import (
	"bytes"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"

	"github.com/bobg/ndd"
	"github.com/bobg/ndd/compile"
	"github.com/bobg/ndd/lock"
	"github.com/bobg/ndd/remote"
	"github.com/bobg/ndd/supervise"
)

// EnvPrefix prefixes every environment variable Load reads.
const EnvPrefix = "NDD"

// Config holds all nddrun configuration.
type Config struct {
	Port      int      `toml:"port" envconfig:"PORT"`
	Transport string   `toml:"transport" envconfig:"TRANSPORT"`
	Buffer    int64    `toml:"buffer" envconfig:"BUFFER"`
	Block     int64    `toml:"block" envconfig:"BLOCK"`
	Timeout   Duration `toml:"timeout" envconfig:"TIMEOUT"`

	// Builtin runs the archiver, codec, patch applier and tee
	// as xform subcommands of Program instead of external tools.
	Builtin bool `toml:"builtin" envconfig:"BUILTIN"`

	// Program is how remote hosts invoke nddrun.
	Program string `toml:"program" envconfig:"PROGRAM"`

	LockDir   string   `toml:"lock_dir" envconfig:"LOCK_DIR"`
	KillAfter Duration `toml:"kill_after" envconfig:"KILL_AFTER"`

	SSH        string   `toml:"ssh" envconfig:"SSH"`
	SSHOptions []string `toml:"ssh_options" envconfig:"SSH_OPTIONS"`
	Srun       string   `toml:"srun" envconfig:"SRUN"`
	Sinfo      string   `toml:"sinfo" envconfig:"SINFO"`

	LogLevel string `toml:"log_level" envconfig:"LOG_LEVEL"`
	LogDev   bool   `toml:"log_dev" envconfig:"LOG_DEV"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:      ndd.DefaultPort,
		Transport: "ndd",
		Program:   "nddrun",
		LockDir:   lock.DefaultDir,
		KillAfter: Duration(supervise.DefaultKillAfter),
		SSH:       "ssh",
		Srun:      "srun",
		Sinfo:     "sinfo",
		LogLevel:  "info",
	}
}

// Load layers the TOML file at path (if path is non-empty)
// and then the environment over Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, ndd.Configf("reading config file: %s", err)
		}
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, ndd.Configf("parsing %s: %s", path, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, ndd.Configf("reading environment: %s", err)
	}
	return cfg, nil
}

// AddFlags registers flags on fs that override c's fields in place.
func (c *Config) AddFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.Port, "port", c.Port, "transport port")
	fs.StringVar(&c.Transport, "transport", c.Transport, "transport program")
	fs.Int64Var(&c.Buffer, "buffer", c.Buffer, "transport buffer size in bytes (0 for its default)")
	fs.Int64Var(&c.Block, "block", c.Block, "transport block size in bytes (0 for its default)")
	fs.Var(&c.Timeout, "timeout", "transport network timeout (0 for its default)")
	fs.BoolVar(&c.Builtin, "builtin", c.Builtin, "use built-in archiver, codec, patcher and tee")
	fs.StringVar(&c.LockDir, "lock-dir", c.LockDir, "directory for default lock files")
	fs.Var(&c.KillAfter, "kill-after", "grace period between SIGTERM and SIGKILL (0 to never SIGKILL)")
}

// Validate checks the settings that do not depend on a particular transfer.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return ndd.Configf("invalid port %d", c.Port)
	}
	if strings.TrimSpace(c.Transport) == "" {
		return ndd.Configf("no transport program")
	}
	if c.KillAfter < 0 {
		return ndd.Configf("negative kill-after %s", c.KillAfter)
	}
	return c.Tuning().Validate()
}

// Tuning is the transport tuning the config calls for.
func (c *Config) Tuning() ndd.Tuning {
	return ndd.Tuning{
		Buffer:  c.Buffer,
		Block:   c.Block,
		Timeout: c.Timeout.Duration(),
	}
}

// Programs is the program set a hop compiles against.
// Self is the path by which this binary re-invokes itself
// when Builtin is set.
func (c *Config) Programs(self string) compile.Programs {
	var p compile.Programs
	if c.Builtin {
		p = compile.BuiltinPrograms(self)
	} else {
		p = compile.DefaultPrograms()
	}
	p.Transport = strings.Fields(c.Transport)
	return p
}

// SSHWrapper is the ssh invocation the config calls for.
func (c *Config) SSHWrapper() remote.SSH {
	return remote.SSH{Program: c.SSH, Options: c.SSHOptions}
}

// SlurmWrapper is the srun/sinfo invocation the config calls for.
func (c *Config) SlurmWrapper() remote.Slurm {
	return remote.Slurm{Srun: c.Srun, Sinfo: c.Sinfo}
}

// Duration is a time.Duration that reads and writes itself as text,
// e.g. "10s",
// so it can appear in TOML, the environment and flags.
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

// Duration converts d to a time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// Set implements flag.Value.
func (d *Duration) Set(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error { return d.Set(string(text)) }
