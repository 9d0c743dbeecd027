package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/sprite-ai/agstage/internal/model"
	"github.com/sprite-ai/agstage/internal/trace"
	"github.com/sprite-ai/agstage/internal/tui"
)

var replayCmd = &cobra.Command{
	Use:   "replay [trace-file]",
	Short: "Re-review the file changes recorded in an agent trace",
	Long: `Walk the write and edit steps of an agent session transcript and review each
one as a proposal, in order. Edits are applied to whatever the earlier
decisions left on disk.

Without a trace file the most recent Claude Code session for the project
is used. Supported formats: claude-code, generic (JSONL).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().String("format", "", "trace format (claude-code, generic); auto-detected if empty")
	replayCmd.Flags().Bool("dry-run", false, "list the changes without reviewing them")
}

func runReplay(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	a, err := newApp(!dryRun)
	if err != nil {
		return err
	}
	defer a.close()

	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		var detected string
		path, detected = trace.Detect(a.ws.Root())
		if path == "" {
			return errors.New("no agent trace found for this project; pass a trace file")
		}
		if format == "" {
			format = detected
		}
	}

	tr, err := trace.Load(path, format)
	if err != nil {
		return err
	}
	changes := tr.Changes()
	if len(changes) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No file changes in trace.")
		return nil
	}

	if dryRun {
		for i, step := range changes {
			fmt.Fprintf(cmd.OutOrStdout(), "%3d  %-6s %s\n", i+1, step.Type, a.ws.Rel(a.ws.Abs(step.FilePath)))
		}
		return nil
	}

	queue := make([]tui.Pending, len(changes))
	for i, step := range changes {
		queue[i] = func() (model.ChangeProposal, error) {
			return step.Proposal(a.ws.Abs(step.FilePath), a.ws.ReadText)
		}
	}
	return runTUIReview(cmd.OutOrStdout(), a, queue)
}
