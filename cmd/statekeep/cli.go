package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/statekeep/internal/config"
	"git.home.luguber.info/inful/statekeep/internal/keeper"
	"git.home.luguber.info/inful/statekeep/internal/metrics"
)

// Global carries the streams commands read from and print to.
type Global struct {
	Out io.Writer
	In  io.Reader
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"${config_path}" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Init      InitCmd      `cmd:"" help:"Write a default configuration file"`
	Commit    CommitCmd    `cmd:"" help:"Atomically replace a state file under its resource lock"`
	Show      ShowCmd      `cmd:"" help:"Print a state file through the read cache"`
	Backup    BackupCmd    `cmd:"" help:"Back up every configured source that changed"`
	Snapshots SnapshotsCmd `cmd:"" help:"List snapshots taken before commits to a file"`
	Restore   RestoreCmd   `cmd:"" help:"Restore a file from one of its snapshots"`
	History   HistoryCmd   `cmd:"" help:"Show the audit history"`
	Locks     LocksCmd     `cmd:"" help:"List resource locks and whether they are held"`
	Daemon    DaemonCmd    `cmd:"" help:"Run scheduled backups and cache invalidation until interrupted"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	setLogger(level)
	return nil
}

func setLogger(level slog.Level) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// loadConfig reads the configuration and applies its log level unless -v
// already asked for debug output.
func (c *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	if !c.Verbose {
		setLogger(cfg.Logging.Level.SlogLevel())
	}
	return cfg, nil
}

// openKeeper loads the configuration and wires a keeper. The caller must Close it.
func (c *CLI) openKeeper(recorder metrics.Recorder) (*keeper.Keeper, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	return keeper.New(cfg, keeper.WithRecorder(recorder), keeper.WithLogger(slog.Default()))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
