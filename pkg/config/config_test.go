package config

import (
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txkernel/pkg/logging"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, filepath.Join("data", "txkernel.xid"), cfg.LedgerPath())
	assert.True(t, cfg.AbortOrphans)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = " " }},
		{"empty ledger name", func(c *Config) { c.LedgerName = "" }},
		{"ledger name with separator", func(c *Config) { c.LedgerName = filepath.Join("a", "b") }},
		{"negative cache", func(c *Config) { c.StatusCacheSize = -1 }},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestBindFlags(t *testing.T) {
	cfg := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.BindFlags(fs)

	err := fs.Parse([]string{
		"--data-dir", "/tmp/k",
		"--ledger", "main.xid",
		"--status-cache", "0",
		"--abort-orphans=false",
		"--log-level", "debug",
		"--log-format", "json",
	})
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/tmp/k", cfg.DataDir)
	assert.Equal(t, filepath.Join("/tmp/k", "main.xid"), cfg.LedgerPath())
	assert.Equal(t, int64(0), cfg.StatusCacheSize)
	assert.False(t, cfg.AbortOrphans)

	lc := cfg.Logging()
	assert.Equal(t, logging.LevelDebug, lc.Level)
	assert.Equal(t, "json", lc.Format)
}
