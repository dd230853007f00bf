package main

import (
	"context"
	"fmt"
	"text/tabwriter"
)

// BackupCmd implements the 'backup' command.
type BackupCmd struct {
	JSON bool `help:"Print the summary as JSON"`
}

func (b *BackupCmd) Run(g *Global, root *CLI) error {
	k, err := root.openKeeper(nil)
	if err != nil {
		return err
	}
	defer func() { _ = k.Close() }()

	summary, err := k.Backup(context.Background())
	if err != nil {
		return err
	}
	if b.JSON {
		return printJSON(g.Out, summary)
	}

	tw := tabwriter.NewWriter(g.Out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SOURCE\tCHANGED\tDIGEST\tTARGET")
	for _, it := range summary.Items {
		_, _ = fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", it.Name, it.Changed, shortDigest(it.Digest), it.TargetPath)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(g.Out, "%d of %d sources changed\n", summary.ChangedCount(), len(summary.Items))
	return err
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
