package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sprite-ai/agstage/internal/config"
	"github.com/sprite-ai/agstage/internal/diff"
	"github.com/sprite-ai/agstage/internal/model"
	"github.com/sprite-ai/agstage/internal/review"
	"github.com/sprite-ai/agstage/internal/tui"
)

var proposeCmd = &cobra.Command{
	Use:   "propose <target> [content-file]",
	Short: "Review a full replacement for one file",
	Long: `Stage new content for <target> and review it before anything is written.

The content is read from [content-file], or from stdin with --from-stdin.
Accepting writes it over the target; rejecting leaves the target untouched.

Presenters:
  tui      review in the terminal (default)
  command  open review.diff_command and answer on the prompt
  web      hand the proposal to a running "agstage serve"`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPropose,
}

func init() {
	proposeCmd.Flags().Bool("from-stdin", false, "read the proposed content from stdin")
	proposeCmd.Flags().String("presenter", "", "override review.presenter (tui, command, web)")
}

func runPropose(cmd *cobra.Command, args []string) error {
	fromStdin, _ := cmd.Flags().GetBool("from-stdin")
	presenter, _ := cmd.Flags().GetString("presenter")

	content, err := readContent(afero.NewOsFs(), cmd.InOrStdin(), args[1:], fromStdin)
	if err != nil {
		return err
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if presenter != "" {
		cfg.Review.Presenter = presenter
		if errs := cfg.Validate(); len(errs) > 0 {
			return config.ValidationErrors(errs)
		}
	}

	if cfg.Review.Presenter == config.PresenterWeb {
		p := model.ChangeProposal{TargetPath: absPath(args[0]), Content: content}
		snap, err := postProposal(cmd.Context(), "http://"+cfg.Server.Listen(), p)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session %s %s for %s\n", snap.ID, snap.StateName, snap.TargetPath)
		return nil
	}

	a, err := newAppFrom(cfg, afero.NewOsFs(), cfg.Review.Presenter == config.PresenterTUI)
	if err != nil {
		return err
	}
	defer a.close()

	p := model.ChangeProposal{TargetPath: a.ws.Abs(args[0]), Content: content}

	switch cfg.Review.Presenter {
	case config.PresenterTUI:
		var opts []tea.ProgramOption
		if fromStdin {
			opts = append(opts, tea.WithInputTTY())
		}
		return runTUIReview(cmd.OutOrStdout(), a, tui.Proposals(p), opts...)

	case config.PresenterCommand:
		in := cmd.InOrStdin()
		if fromStdin {
			tty, err := os.Open("/dev/tty")
			if err != nil {
				return fmt.Errorf("opening terminal for the decision prompt: %w", err)
			}
			defer tty.Close()
			in = tty
		}
		return runCommandReview(cmd.OutOrStdout(), in, a, p)
	}
	return fmt.Errorf("unknown presenter %q", cfg.Review.Presenter)
}

// readContent returns the proposed content from the named file or stdin.
func readContent(fs afero.Fs, stdin io.Reader, files []string, fromStdin bool) (string, error) {
	switch {
	case fromStdin && len(files) > 0:
		return "", errors.New("give either a content file or --from-stdin, not both")
	case fromStdin:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	case len(files) == 1:
		data, err := afero.ReadFile(fs, files[0])
		if err != nil {
			return "", fmt.Errorf("reading content: %w", err)
		}
		return string(data), nil
	}
	return "", errors.New("no content: give a content file or --from-stdin")
}

// runTUIReview reviews queue in the terminal and reports the outcomes.
func runTUIReview(out io.Writer, a *app, queue []tui.Pending, opts ...tea.ProgramOption) error {
	builder := a.builder()
	surface := tui.NewSurface(builder)
	ctrl := a.controller(surface)
	defer closeController(out, a, ctrl)

	m := tui.New(tui.Options{
		Controller:   ctrl,
		Bus:          a.bus,
		Surface:      surface,
		Keys:         a.keys(),
		MaxLines:     a.cfg.Review.MaxDiffLines,
		Queue:        queue,
		ExitWhenIdle: true,
	})
	final, err := tui.NewProgram(m, opts...).Run()
	if err != nil {
		return fmt.Errorf("running review console: %w", err)
	}
	fm := final.(tui.Model)
	return printOutcome(out, fm.Finished(), fm.Skipped())
}

// runCommandReview presents p in the external diff tool and reads the
// decision from in.
func runCommandReview(out io.Writer, in io.Reader, a *app, p model.ChangeProposal) error {
	var done []review.Snapshot
	collect := review.ObserverFunc(func(ev review.Event) {
		if ev.Session.Terminal() && ev.From != ev.Session.State {
			done = append(done, ev.Session)
		}
	})
	ctrl := a.controller(diff.NewCommandPresenter(a.cfg.Review.DiffCommand), collect)
	defer closeController(out, a, ctrl)

	snap, err := ctrl.Begin(p)
	if err != nil {
		return printOutcome(out, done, nil)
	}
	fmt.Fprintf(out, "Reviewing %s in %s\n", a.ws.Rel(snap.TargetPath), a.cfg.Review.DiffCommand)

	d, err := promptDecision(in, out)
	if err != nil {
		ctrl.Cancel(err.Error())
		return printOutcome(out, done, nil)
	}
	a.bus.Fire(d)
	return printOutcome(out, done, nil)
}

// promptDecision asks until the answer parses as a decision. End of input
// is an error.
func promptDecision(in io.Reader, out io.Writer) (model.Decision, error) {
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "Accept this change? [y/n] ")
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return 0, err
			}
			return 0, errors.New("no decision given")
		}
		if strings.TrimSpace(sc.Text()) == "" {
			continue
		}
		d, err := model.ParseDecision(sc.Text())
		if err == nil {
			return d, nil
		}
		fmt.Fprintln(out, err)
	}
}

// printOutcome writes one line per finished session and fails if any
// review failed or could not start.
func printOutcome(w io.Writer, finished []review.Snapshot, skipped []error) error {
	failed := 0
	for _, s := range finished {
		switch s.State {
		case model.StateApplied:
			fmt.Fprintf(w, "applied    %s\n", s.TargetPath)
		case model.StateDiscarded:
			if s.Reason != "" {
				fmt.Fprintf(w, "discarded  %s (%s)\n", s.TargetPath, s.Reason)
			} else {
				fmt.Fprintf(w, "discarded  %s\n", s.TargetPath)
			}
		case model.StateFailed:
			failed++
			fmt.Fprintf(w, "failed     %s: %s\n", s.TargetPath, s.Error)
			if s.Retained {
				fmt.Fprintf(w, "           staged content was at %s\n", s.StagingPath)
			}
		}
	}
	for _, err := range skipped {
		failed++
		fmt.Fprintf(w, "skipped    %v\n", err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d reviews did not complete", failed, len(finished)+len(skipped))
	}
	return nil
}

// closeController releases retained artifacts once their paths have been
// reported.
func closeController(out io.Writer, a *app, ctrl *review.Controller) {
	if err := ctrl.Close(); err != nil {
		a.log.Warn("purging retained artifacts", "error", err.Error())
		fmt.Fprintf(out, "warning: %v\n", err)
	}
}

// postProposal hands p to a running server.
func postProposal(ctx context.Context, base string, p model.ChangeProposal) (review.Snapshot, error) {
	body, err := json.Marshal(map[string]string{"target": p.TargetPath, "content": p.Content})
	if err != nil {
		return review.Snapshot{}, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/proposals", bytes.NewReader(body))
	if err != nil {
		return review.Snapshot{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return review.Snapshot{}, fmt.Errorf("contacting agstage server at %s: %w", base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		var e struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Code != "" {
			return review.Snapshot{}, fmt.Errorf("server refused proposal (%s): %s", e.Code, e.Error)
		}
		return review.Snapshot{}, fmt.Errorf("server refused proposal: %s: %s", resp.Status, e.Error)
	}

	var snap review.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return review.Snapshot{}, fmt.Errorf("decoding server response: %w", err)
	}
	return snap, nil
}

// absPath makes p absolute against the working directory.
func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
