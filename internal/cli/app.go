package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/sprite-ai/agstage/internal/config"
	"github.com/sprite-ai/agstage/internal/decision"
	"github.com/sprite-ai/agstage/internal/history"
	"github.com/sprite-ai/agstage/internal/host"
	"github.com/sprite-ai/agstage/internal/logging"
	"github.com/sprite-ai/agstage/internal/preview"
	"github.com/sprite-ai/agstage/internal/review"
	"github.com/sprite-ai/agstage/internal/stage"
)

// app holds what every command that reviews proposals shares.
type app struct {
	cfg     *config.Config
	log     *logging.Logger
	fs      afero.Fs
	ws      *host.Workspace
	stager  *stage.Stager
	bus     *decision.Bus
	history *history.Store
}

// newApp loads the configuration and opens the workspace. An interactive
// app never logs to stderr, which belongs to the terminal UI.
func newApp(interactive bool) (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	return newAppFrom(cfg, afero.NewOsFs(), interactive)
}

func newAppFrom(cfg *config.Config, fs afero.Fs, interactive bool) (*app, error) {
	root, err := filepath.Abs(cfg.Project.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}

	var log *logging.Logger
	switch {
	case cfg.Logging.Dir != "":
		log, err = logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
	case interactive:
		log = logging.NopLogger()
	default:
		log, _ = logging.NewLogger("", cfg.Logging.Level)
	}

	a := &app{
		cfg:    cfg,
		log:    log,
		fs:     fs,
		ws:     host.NewWorkspace(fs, root, cfg.Project.Ignore),
		stager: stage.New(fs, cfg.Staging.Dir),
		bus:    decision.NewBus(),
	}

	if cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path, log)
		if err != nil {
			log.Warn("review history disabled", "path", cfg.History.Path, "error", err.Error())
		} else {
			a.history = store
		}
	}

	log.Debug("workspace opened", "root", root, "staging", cfg.Staging.Dir)
	return a, nil
}

func (a *app) builder() *preview.Builder {
	return &preview.Builder{
		Reader:       a.ws,
		Rel:          a.ws.Rel,
		ContextLines: a.cfg.Review.ContextLines,
		MaxLines:     a.cfg.Review.MaxDiffLines,
	}
}

// controller builds a review controller presenting through p. The history
// store, when open, observes every transition.
func (a *app) controller(p review.Presenter, observers ...review.Observer) *review.Controller {
	if a.history != nil {
		observers = append(observers, a.history)
	}
	return review.New(review.Deps{
		Stager:    a.stager,
		Host:      a.ws,
		Presenter: p,
		Decisions: a.bus,
		Logger:    a.log,
		Observers: observers,
	})
}

func (a *app) keys() decision.KeyMap {
	return decision.NewKeyMap(a.cfg.Review.AcceptKeys, a.cfg.Review.RejectKeys)
}

func (a *app) close() {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.log.Warn("closing history", "error", err.Error())
		}
	}
	a.ws.Close()
	_ = a.log.Close()
}
