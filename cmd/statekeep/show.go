package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"git.home.luguber.info/inful/statekeep/internal/foundation/errors"
)

// ShowCmd implements the 'show' command.
type ShowCmd struct {
	Resource string `help:"Lock name guarding the file" default:"settings"`
	Path     string `required:"" help:"State file to print" type:"path"`
	Raw      bool   `help:"Print the stored bytes without re-indenting"`
}

func (s *ShowCmd) Run(g *Global, root *CLI) error {
	k, err := root.openKeeper(nil)
	if err != nil {
		return err
	}
	defer func() { _ = k.Close() }()

	v, err := k.Document(s.Resource, s.Path).Load(context.Background())
	if err != nil {
		return err
	}
	if len(v) == 0 {
		return errors.NotFoundError("state file is missing or empty").WithContext("path", s.Path).Build()
	}
	if s.Raw {
		_, err = g.Out.Write(v)
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, v, "", "  "); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "state file is not valid JSON").
			WithContext("path", s.Path).
			Build()
	}
	_, err = fmt.Fprintln(g.Out, buf.String())
	return err
}
