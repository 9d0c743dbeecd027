package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/sprite-ai/agstage/internal/agent"
	"github.com/sprite-ai/agstage/internal/config"
	"github.com/sprite-ai/agstage/internal/model"
	"github.com/sprite-ai/agstage/internal/tui"
)

var errReviewerGone = errors.New("the review console has exited")

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Answer agent tool calls on stdin/stdout",
	Long: `Speak a JSON-lines tool protocol with a coding agent. Each line on stdin is
a call such as

  {"id":"1","tool":"modify_file","args":{"path":"main.go","content":"..."}}

and each answer is written to stdout as one line. modify_file proposals are
reviewed in the terminal, or over the API when review.presenter is web.`,
	RunE: runAgent,
}

func init() {
	agentCmd.Flags().Bool("list-tools", false, "print the tool list as JSON and exit")
}

func runAgent(cmd *cobra.Command, args []string) error {
	if list, _ := cmd.Flags().GetBool("list-tools"); list {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(agent.Tools())
	}

	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	if a.cfg.Review.Presenter == config.PresenterTUI {
		return runAgentTUI(cmd.Context(), a, cmd.InOrStdin(), cmd.OutOrStdout())
	}

	h := newHeadless(a)
	return h.run(context.Background(), func(ctx context.Context) error {
		ag := agent.New(a.ws, h.submit(ctx), a.log)
		if err := ag.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
			return err
		}
		return h.waitIdle(ctx)
	})
}

// runAgentTUI drives the review console from the agent's calls. The console
// owns the terminal, so it reads keys from the tty and draws on stderr.
func runAgentTUI(ctx context.Context, a *app, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	surface := tui.NewSurface(a.builder())
	ctrl := a.controller(surface)
	defer closeController(os.Stderr, a, ctrl)

	m := tui.New(tui.Options{
		Controller: ctrl,
		Bus:        a.bus,
		Surface:    surface,
		Keys:       a.keys(),
		MaxLines:   a.cfg.Review.MaxDiffLines,
	})
	prog := tui.NewProgram(m, tea.WithInputTTY(), tea.WithOutput(os.Stderr))

	exited := make(chan struct{})
	propose := func(p model.ChangeProposal) error {
		result := make(chan error, 1)
		go prog.Send(tui.ProposalMsg{Proposal: p, Result: result})
		select {
		case err := <-result:
			return err
		case <-exited:
			return errReviewerGone
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		ag := agent.New(a.ws, propose, a.log)
		err := ag.Serve(ctx, in, out)
		prog.Send(tui.DrainMsg{})
		serveErr <- err
	}()

	final, err := prog.Run()
	close(exited)
	cancel()
	if err != nil {
		return fmt.Errorf("running review console: %w", err)
	}

	fm := final.(tui.Model)
	if err := printOutcome(os.Stderr, fm.Finished(), fm.Skipped()); err != nil {
		a.log.Warn("agent session ended with failed reviews", "error", err.Error())
	}

	select {
	case err := <-serveErr:
		return err
	default:
		// The reviewer quit while the agent was still talking.
		return nil
	}
}
