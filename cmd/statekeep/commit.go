package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"git.home.luguber.info/inful/statekeep/internal/foundation/errors"
	"git.home.luguber.info/inful/statekeep/internal/history"
	"git.home.luguber.info/inful/statekeep/internal/keeper"
)

// CommitCmd implements the 'commit' command.
type CommitCmd struct {
	Resource string `help:"Lock name guarding the file" default:"settings"`
	Path     string `required:"" help:"State file to replace" type:"path"`
	File     string `short:"f" help:"Read the new content from this file ('-' for stdin)" default:"-"`
	Op       string `help:"History operation kind" default:"update" enum:"switch,backup,restore,validate,update"`
	Tag      string `help:"Tag added to the pre-commit snapshot name"`
	From     string `help:"Profile being replaced, for the history entry"`
	To       string `help:"Profile being activated, for the history entry"`
	Notes    string `help:"Free-form note stored with the history entry"`
}

func (c *CommitCmd) Run(g *Global, root *CLI) error {
	data, err := c.read(g.In)
	if err != nil {
		return err
	}

	k, err := root.openKeeper(nil)
	if err != nil {
		return err
	}
	defer func() { _ = k.Close() }()

	res, err := k.Commit(context.Background(), keeper.CommitRequest{
		Resource:  c.Resource,
		Path:      c.Path,
		Data:      data,
		Operation: history.OperationKind(c.Op),
		Details:   history.Details{FromProfile: c.From, ToProfile: c.To},
		EnvOf:     keeper.ExtractEnv,
		Tag:       c.Tag,
		Notes:     c.Notes,
	})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(g.Out, "Committed %s (%d bytes)\n", res.Path, len(data))
	if res.SnapshotPath != "" {
		_, _ = fmt.Fprintf(g.Out, "Previous content saved to %s\n", res.SnapshotPath)
	}
	return nil
}

func (c *CommitCmd) read(stdin io.Reader) ([]byte, error) {
	if c.File == "-" || c.File == "" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, errors.FileSystemError("failed to read stdin").WithCause(err).Build()
		}
		return data, nil
	}
	data, err := os.ReadFile(c.File)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundError("input file not found").WithContext("path", c.File).Build()
		}
		return nil, errors.FileSystemError("failed to read input file").
			WithCause(err).
			WithContext("path", c.File).
			Build()
	}
	return data, nil
}
