package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobg/ndd"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 3634, cfg.Port)
	assert.Equal(t, "ndd", cfg.Transport)
	assert.Equal(t, "/tmp/ndd", cfg.LockDir)
	assert.Equal(t, 10*time.Second, time.Duration(cfg.KillAfter))
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Builtin)
	require.NoError(t, cfg.Validate())
}

func writeConfig(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ndd.toml")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
port = 4000
transport = "/opt/ndd/bin/ndd"
buffer = 33554432
block = 4194304
timeout = "30s"
builtin = true
kill_after = "2s"
ssh_options = ["-p", "2222"]
log_level = "debug"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Port)
	assert.Equal(t, "/opt/ndd/bin/ndd", cfg.Transport)
	assert.True(t, cfg.Builtin)
	assert.Equal(t, 2*time.Second, time.Duration(cfg.KillAfter))
	assert.Equal(t, []string{"-p", "2222"}, cfg.SSHOptions)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ndd.Tuning{Buffer: 32 << 20, Block: 4 << 20, Timeout: 30 * time.Second}, cfg.Tuning())

	// Unset keys keep their defaults.
	assert.Equal(t, "/tmp/ndd", cfg.LockDir)
	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "port = 4000\nlog_level = \"debug\"\n")

	t.Setenv("NDD_PORT", "5000")
	t.Setenv("NDD_KILL_AFTER", "1m")
	t.Setenv("NDD_SSH_OPTIONS", "-q,-4")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, time.Minute, time.Duration(cfg.KillAfter))
	assert.Equal(t, []string{"-q", "-4"}, cfg.SSHOptions)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
		env  map[string]string
	}{
		{name: "missing file", path: filepath.Join(t.TempDir(), "absent.toml")},
		{name: "unknown key", path: writeConfig(t, "colour = \"blue\"\n")},
		{name: "bad duration", path: writeConfig(t, "kill_after = \"soon\"\n")},
		{name: "bad env", env: map[string]string{"NDD_PORT": "many"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(tt.path)
			require.Error(t, err)
			assert.ErrorIs(t, err, ndd.ErrConfig)
		})
	}
}

func TestFlagsOverride(t *testing.T) {
	t.Setenv("NDD_PORT", "5000")
	cfg, err := Load("")
	require.NoError(t, err)

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg.AddFlags(fs)
	require.NoError(t, fs.Parse([]string{"-port", "6000", "-kill-after", "250ms", "-builtin"}))

	assert.Equal(t, 6000, cfg.Port)
	assert.Equal(t, 250*time.Millisecond, time.Duration(cfg.KillAfter))
	assert.True(t, cfg.Builtin)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Port = 0 }},
		{"huge port", func(c *Config) { c.Port = 70000 }},
		{"no transport", func(c *Config) { c.Transport = " " }},
		{"negative kill-after", func(c *Config) { c.KillAfter = -1 }},
		{"block too big", func(c *Config) { c.Buffer, c.Block = 4<<20, 8<<20 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ndd.ErrConfig)
		})
	}
}

func TestPrograms(t *testing.T) {
	cfg := Default()
	cfg.Transport = "/opt/ndd -v"

	p := cfg.Programs("/usr/bin/nddrun")
	assert.Equal(t, []string{"/opt/ndd", "-v"}, p.Transport)
	assert.Equal(t, []string{"tar"}, p.Archiver)
	assert.False(t, p.Builtin)

	cfg.Builtin = true
	p = cfg.Programs("/usr/bin/nddrun")
	assert.Equal(t, []string{"/opt/ndd", "-v"}, p.Transport)
	assert.Equal(t, []string{"/usr/bin/nddrun", "xform", "gzip"}, p.Compressor)
	assert.True(t, p.Builtin)
}
