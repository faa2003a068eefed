package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/liusync/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
//	-a string     sync service base URL
//	-d string     local database path
//	-l string     log file (empty logs to stderr only)
//	-t duration   request timeout
//
// Args are filtered with flagx.FilterArgs first so flags owned by other
// loaders do not cause parse errors.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-d", "-l", "-t"})

	fs := flag.NewFlagSet("liusync", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "sync service base URL")
	fs.StringVar(&cfg.DBPath, "d", cfg.DBPath, "local database path")
	fs.StringVar(&cfg.LogFile, "l", cfg.LogFile, "log file")
	fs.DurationVar(&cfg.RequestTimeout, "t", cfg.RequestTimeout, "request timeout")

	return fs.Parse(args)
}
