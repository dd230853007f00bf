package main

import (
	"fmt"
	"os"

	"git.home.luguber.info/inful/statekeep/internal/config"
	"git.home.luguber.info/inful/statekeep/internal/foundation/errors"
	"git.home.luguber.info/inful/statekeep/internal/state"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force bool `help:"Overwrite existing configuration file"`
}

func (i *InitCmd) Run(g *Global, root *CLI) error {
	return RunInit(g, root.Config, i.Force)
}

// RunInit writes the example configuration to configPath atomically.
func RunInit(g *Global, configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.ValidationError("configuration file already exists (use --force to overwrite)").
			WithContext("path", configPath).
			Build()
	}
	data, err := config.Marshal(config.Example())
	if err != nil {
		return err
	}
	if err := state.WriteFileAtomic(configPath, data); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(g.Out, "Wrote configuration to %s\n", configPath)
	return nil
}
