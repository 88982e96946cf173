// Package config holds the settings shared by the txkernel commands and the
// metrics exporter.
package config

import (
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"

	"txkernel/pkg/concurrency/transaction"
	"txkernel/pkg/logging"
)

type LogConfig struct {
	Level      string
	Format     string // "text" or "json"
	OutputPath string // empty for stderr, "-" for stdout
}

// Config describes where the ledger lives and how the kernel around it runs.
type Config struct {
	DataDir         string
	LedgerName      string
	StatusCacheSize int64

	// AbortOrphans aborts transactions a previous run left Active. Locks do
	// not survive a restart, so such transactions can never finish.
	AbortOrphans bool

	Log         LogConfig
	MetricsAddr string
}

func Default() Config {
	return Config{
		DataDir:         "data",
		LedgerName:      "txkernel",
		StatusCacheSize: transaction.DefaultStatusCacheSize,
		AbortOrphans:    true,
		Log: LogConfig{
			Level:  string(logging.LevelInfo),
			Format: "text",
		},
		MetricsAddr: ":9187",
	}
}

// BindFlags registers every field on fs with the current values as defaults.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.DataDir, "data-dir", c.DataDir, "directory holding the ledger file")
	fs.StringVar(&c.LedgerName, "ledger", c.LedgerName, "ledger file name (the .xid suffix is added)")
	fs.Int64Var(&c.StatusCacheSize, "status-cache", c.StatusCacheSize, "terminal statuses cached in memory, 0 disables")
	fs.BoolVar(&c.AbortOrphans, "abort-orphans", c.AbortOrphans, "abort transactions left active by a previous run")
	fs.StringVar(&c.Log.Level, "log-level", c.Log.Level, "DEBUG, INFO, WARN or ERROR")
	fs.StringVar(&c.Log.Format, "log-format", c.Log.Format, "text or json")
	fs.StringVar(&c.Log.OutputPath, "log-file", c.Log.OutputPath, "log destination, empty for stderr")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "listen address of the metrics exporter")
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("data directory must not be empty")
	}
	if strings.TrimSpace(c.LedgerName) == "" {
		return errors.New("ledger name must not be empty")
	}
	if strings.ContainsRune(c.LedgerName, filepath.Separator) {
		return errors.Newf("ledger name %q must not contain a path separator", c.LedgerName)
	}
	if c.StatusCacheSize < 0 {
		return errors.Newf("status cache size must not be negative, got %d", c.StatusCacheSize)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log level")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.Newf("log format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// LedgerPath is the full ledger file path, suffix included.
func (c Config) LedgerPath() string {
	return transaction.LedgerPath(filepath.Join(c.DataDir, c.LedgerName)).String()
}

// Logging converts the log section into a logging.Config.
func (c Config) Logging() logging.Config {
	level, _ := logging.ParseLevel(c.Log.Level)
	return logging.Config{
		Level:      level,
		Format:     c.Log.Format,
		OutputPath: c.Log.OutputPath,
	}
}
