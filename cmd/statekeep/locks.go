package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/statekeep/internal/lock"
)

// LocksCmd implements the 'locks' command.
type LocksCmd struct{}

func (l *LocksCmd) Run(g *Global, root *CLI) error {
	k, err := root.openKeeper(nil)
	if err != nil {
		return err
	}
	defer func() { _ = k.Close() }()

	var all []lock.Info
	for _, m := range []*lock.Manager{k.Locks(), k.Engine().Locks()} {
		infos, err := m.List()
		if err != nil {
			return err
		}
		all = append(all, infos...)
	}
	if len(all) == 0 {
		_, err = fmt.Fprintln(g.Out, "No lock files")
		return err
	}

	tw := tabwriter.NewWriter(g.Out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tHELD\tMODIFIED\tPATH")
	for _, info := range all {
		_, _ = fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", info.Name, info.Held, info.ModTime.Format(time.DateTime), info.Path)
	}
	return tw.Flush()
}
