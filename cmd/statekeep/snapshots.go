package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"
)

// SnapshotsCmd implements the 'snapshots' command.
type SnapshotsCmd struct {
	Path string `required:"" help:"State file whose snapshots to list" type:"path"`
}

func (s *SnapshotsCmd) Run(g *Global, root *CLI) error {
	k, err := root.openKeeper(nil)
	if err != nil {
		return err
	}
	defer func() { _ = k.Close() }()

	snaps, err := k.Snapshots().List(s.Path)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		_, err = fmt.Fprintf(g.Out, "No snapshots of %s\n", s.Path)
		return err
	}
	tw := tabwriter.NewWriter(g.Out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "MODIFIED\tSIZE\tPATH")
	for _, snap := range snaps {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\n", snap.ModTime.Format(time.DateTime), snap.Size, snap.Path)
	}
	return tw.Flush()
}

// RestoreCmd implements the 'restore' command.
type RestoreCmd struct {
	Resource string `help:"Lock name guarding the file" default:"settings"`
	Path     string `required:"" help:"State file to restore" type:"path"`
	Snapshot string `required:"" help:"Snapshot to restore from" type:"path"`
}

func (r *RestoreCmd) Run(g *Global, root *CLI) error {
	k, err := root.openKeeper(nil)
	if err != nil {
		return err
	}
	defer func() { _ = k.Close() }()

	res, err := k.Restore(context.Background(), r.Resource, r.Path, r.Snapshot)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(g.Out, "Restored %s from %s\n", res.Path, r.Snapshot)
	if res.SnapshotPath != "" {
		_, _ = fmt.Fprintf(g.Out, "Replaced content saved to %s\n", res.SnapshotPath)
	}
	return nil
}
