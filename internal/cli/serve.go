package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sprite-ai/agstage/internal/api"
	"github.com/sprite-ai/agstage/internal/config"
	"github.com/sprite-ai/agstage/internal/diff"
	"github.com/sprite-ai/agstage/internal/inbox"
	"github.com/sprite-ai/agstage/internal/loop"
	"github.com/sprite-ai/agstage/internal/model"
	"github.com/sprite-ai/agstage/internal/review"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Review proposals over HTTP and WebSocket",
	Long: `Run the review loop headless. Proposals arrive over HTTP or through the
inbox directory and are decided from a WebSocket client or the HTTP API.

Endpoints:
  GET    /health              liveness and connected clients
  POST   /api/proposals       begin reviewing {"target", "content"}
  GET    /api/session         the session awaiting a decision
  POST   /api/decision        {"decision": "accept"|"reject"}
  POST   /api/cancel          discard the pending session
  GET    /api/retained        staged artifacts kept after failed commits
  DELETE /api/retained/{id}   remove one retained artifact
  GET    /api/ws              WebSocket review channel`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("addr", "a", "", "address to listen on (default server.addr)")
	serveCmd.Flags().IntP("port", "p", 0, "port to listen on (default server.port)")
	serveCmd.Flags().String("inbox", "", "directory watched for proposal files (default inbox.dir)")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("inbox.dir", serveCmd.Flags().Lookup("inbox"))
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newHeadless(a).run(ctx, nil)
}

// idlePoll is how often a waiting caller checks for the end of a review.
var idlePoll = 250 * time.Millisecond

// headless runs the controller on a loop.Loop behind the API server.
type headless struct {
	*app
	loop   *loop.Loop
	hub    *api.Hub
	ctrl   *review.Controller
	server *api.Server
}

func newHeadless(a *app) *headless {
	h := &headless{
		app:  a,
		loop: loop.New(16),
		hub:  api.NewHub(a.builder(), a.log),
	}

	var presenter review.Presenter = h.hub
	if a.cfg.Review.Presenter == config.PresenterCommand {
		presenter = diff.NewCommandPresenter(a.cfg.Review.DiffCommand)
	}
	h.ctrl = a.controller(presenter, h.hub)

	h.server = api.New(api.Options{
		Addr:       a.cfg.Server.Listen(),
		Loop:       h.loop,
		Controller: h.ctrl,
		Bus:        a.bus,
		Hub:        h.hub,
		Resolve:    a.ws.Abs,
		Logger:     a.log,
	})
	return h
}

// submit returns a proposal sink that begins reviews on the loop.
func (h *headless) submit(ctx context.Context) func(model.ChangeProposal) error {
	return func(p model.ChangeProposal) error {
		p.TargetPath = h.ws.Abs(p.TargetPath)
		var runErr error
		if err := h.loop.Do(ctx, func() { _, runErr = h.ctrl.Begin(p) }); err != nil {
			return err
		}
		return runErr
	}
}

// enqueue returns a proposal sink that waits for the reviewer to finish the
// current review before beginning the next, so a burst of inbox files is
// reviewed in turn instead of each one superseding the last.
func (h *headless) enqueue(ctx context.Context) func(model.ChangeProposal) error {
	return func(p model.ChangeProposal) error {
		p.TargetPath = h.ws.Abs(p.TargetPath)
		ticker := time.NewTicker(idlePoll)
		defer ticker.Stop()
		for {
			var (
				began  bool
				runErr error
			)
			err := h.loop.Do(ctx, func() {
				if h.ctrl.Pending() {
					return
				}
				began = true
				_, runErr = h.ctrl.Begin(p)
			})
			if err != nil {
				return err
			}
			if began {
				return runErr
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}
}

// run serves until ctx is done or extra returns. extra, when set, runs
// alongside the server with a context cancelled on shutdown.
func (h *headless) run(ctx context.Context, extra func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.loop.Run(gctx) })
	g.Go(func() error { return h.server.ListenAndServe(gctx) })

	if dir := h.cfg.Inbox.Dir; dir != "" {
		w := inbox.New(h.fs, dir, h.enqueue(gctx), h.log)
		g.Go(func() error { return w.Run(gctx) })
	}
	if extra != nil {
		g.Go(func() error {
			defer cancel()
			return extra(gctx)
		})
	}

	fmt.Fprintf(os.Stderr, "agstage serving on http://%s\n", h.cfg.Server.Listen())
	err := g.Wait()

	// The loop has exited, so the controller is ours again.
	if cerr := h.ctrl.Close(); cerr != nil {
		h.log.Warn("purging retained artifacts", "error", cerr.Error())
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// waitIdle blocks until no review is pending.
func (h *headless) waitIdle(ctx context.Context) error {
	ticker := time.NewTicker(idlePoll)
	defer ticker.Stop()
	for {
		var pending bool
		if err := h.loop.Do(ctx, func() { pending = h.ctrl.Pending() }); err != nil {
			return err
		}
		if !pending {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
