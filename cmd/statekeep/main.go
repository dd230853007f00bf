package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/statekeep/internal/config"
	"git.home.luguber.info/inful/statekeep/internal/foundation/errors"
	"git.home.luguber.info/inful/statekeep/internal/version"
)

func main() {
	var cli CLI
	g := &Global{Out: os.Stdout, In: os.Stdin}

	ctx := kong.Parse(&cli,
		kong.Name("statekeep"),
		kong.Description("Lock-safe state commits, incremental backups and an audit trail for profile files."),
		kong.UsageOnError(),
		kong.Vars{
			"version":     version.String(),
			"config_path": config.DefaultConfigPath(),
		},
	)
	if err := ctx.Run(g, &cli); err != nil {
		errors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	}
}
