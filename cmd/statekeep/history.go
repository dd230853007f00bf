package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/statekeep/internal/foundation/errors"
	"git.home.luguber.info/inful/statekeep/internal/history"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit int    `short:"n" help:"Maximum number of entries to print" default:"10"`
	Kind  string `help:"Only show one operation kind (switch, backup, restore, validate, update)"`
	Stats bool   `help:"Print summary statistics instead of entries"`
	JSON  bool   `help:"Print as JSON"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	k, err := root.openKeeper(nil)
	if err != nil {
		return err
	}
	defer func() { _ = k.Close() }()

	if h.Kind != "" && !history.OperationKind(h.Kind).Valid() {
		return errors.ValidationError("unknown operation kind").WithContext("kind", h.Kind).Build()
	}

	log := k.History()
	if h.Stats {
		stats := log.Stats()
		if h.JSON {
			return printJSON(g.Out, stats)
		}
		return writeStats(g.Out, stats)
	}

	var entries []history.Entry
	if h.Kind != "" {
		entries = log.FilterByKind(history.OperationKind(h.Kind))
		if h.Limit > 0 && len(entries) > h.Limit {
			entries = entries[:h.Limit]
		}
	} else {
		entries = log.GetRecent(h.Limit)
	}
	if h.JSON {
		if entries == nil {
			entries = []history.Entry{}
		}
		return printJSON(g.Out, entries)
	}
	if len(entries) == 0 {
		_, err = fmt.Fprintln(g.Out, "No history entries")
		return err
	}

	tw := tabwriter.NewWriter(g.Out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TIME\tOPERATION\tRESULT\tACTOR\tDETAILS")
	for _, e := range entries {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format(time.DateTime),
			e.Operation,
			resultText(e.Result),
			e.Actor,
			detailsText(e))
	}
	return tw.Flush()
}

func resultText(r history.Result) string {
	if r.Message == "" {
		return string(r.Status)
	}
	return fmt.Sprintf("%s: %s", r.Status, r.Message)
}

func detailsText(e history.Entry) string {
	var parts []string
	if e.Details.FromProfile != "" || e.Details.ToProfile != "" {
		parts = append(parts, fmt.Sprintf("%s -> %s", e.Details.FromProfile, e.Details.ToProfile))
	}
	if e.Details.BackupPath != "" {
		parts = append(parts, "backup="+e.Details.BackupPath)
	}
	if e.Details.Extra != "" {
		parts = append(parts, e.Details.Extra)
	}
	if n := len(e.EnvChanges); n > 0 {
		parts = append(parts, fmt.Sprintf("%d env changes", n))
	}
	return strings.Join(parts, "; ")
}

func writeStats(w io.Writer, s history.Stats) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "Total\t%d\n", s.Total)
	_, _ = fmt.Fprintf(tw, "Success\t%d\n", s.Success)
	_, _ = fmt.Fprintf(tw, "Failure\t%d\n", s.Failure)
	_, _ = fmt.Fprintf(tw, "Warning\t%d\n", s.Warning)

	kinds := make([]string, 0, len(s.ByKind))
	for k := range s.ByKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		_, _ = fmt.Fprintf(tw, "  %s\t%d\n", k, s.ByKind[history.OperationKind(k)])
	}
	if s.Last != nil {
		_, _ = fmt.Fprintf(tw, "Last\t%s %s (%s)\n",
			s.Last.Timestamp.Local().Format(time.DateTime), s.Last.Operation, s.Last.Result.Status)
	}
	return tw.Flush()
}
