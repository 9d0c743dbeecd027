package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "List past review sessions",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "number of sessions to list")
	historyCmd.Flags().Bool("json", false, "output as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()
	if a.history == nil {
		return errors.New("review history is not available (history.path)")
	}
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		rec, err := a.history.Session(args[0])
		if err != nil {
			return err
		}
		steps, err := a.history.Transitions(rec.ID)
		if err != nil {
			return err
		}
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"session": rec, "transitions": steps})
		}
		fmt.Fprintf(out, "Session  %s\nTarget   %s\nState    %s\n", rec.ID, rec.TargetPath, rec.State)
		if rec.Reason != "" {
			fmt.Fprintf(out, "Reason   %s\n", rec.Reason)
		}
		if rec.Error != "" {
			fmt.Fprintf(out, "Error    %s (%s)\n", rec.Error, rec.ErrorCode)
		}
		fmt.Fprintln(out)
		for _, t := range steps {
			from := t.From
			if from == "" {
				from = "-"
			}
			fmt.Fprintf(out, "  %s  %-9s -> %s\n", t.At.Format("15:04:05.000"), from, t.To)
		}
		return nil
	}

	recs, err := a.history.Sessions(limit)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}
	if len(recs) == 0 {
		fmt.Fprintln(out, "No review sessions recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tTARGET\tUPDATED")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", shortID(r.ID), r.State, a.ws.Rel(r.TargetPath), humanize.Time(r.UpdatedAt))
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
