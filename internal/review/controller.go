// Package review runs the staging, presentation and commit/discard state
// machine for agent change proposals.
//
// A Controller is not safe for concurrent use. Every call, including the
// decision callbacks it arms, must come from the one goroutine that owns it:
// the Bubble Tea update loop or a loop.Loop.
package review

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sprite-ai/agstage/internal/decision"
	"github.com/sprite-ai/agstage/internal/logging"
	"github.com/sprite-ai/agstage/internal/model"
)

// Host is the document host that owns the original files.
type Host interface {
	ReadText(path string) (string, error)
	WriteText(path, text string) error
	IsOpen(path string) bool
	OpenOrFocus(path string) error
	CloseIfOpen(path string) error
}

// Presenter shows a read-only comparison of original against modified.
// Any error means the diff surface is unavailable.
type Presenter interface {
	Present(original, modified, title string) error
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(original, modified, title string) error

func (f PresenterFunc) Present(original, modified, title string) error {
	return f(original, modified, title)
}

// DecisionSource registers decision listeners with explicit handles.
type DecisionSource interface {
	Arm(onAccept, onReject func()) decision.Handle
	Disarm(h decision.Handle) bool
}

// Staging persists proposals between presentation and decision.
type Staging interface {
	Stage(p model.ChangeProposal) (model.StagedChange, error)
	Read(sc model.StagedChange) ([]byte, error)
	Remove(sc model.StagedChange) error
}

// Deps are the collaborators a Controller drives.
type Deps struct {
	Stager    Staging
	Host      Host
	Presenter Presenter
	Decisions DecisionSource
	Logger    *logging.Logger
	Observers []Observer
}

// Controller owns the active review session.
type Controller struct {
	stager    Staging
	host      Host
	presenter Presenter
	decisions DecisionSource
	committer *Committer
	log       *logging.Logger
	observers []Observer

	now   func() time.Time
	newID func() string

	active   *session
	retained map[string]*session
}

// New creates a Controller.
func New(d Deps) *Controller {
	log := d.Logger
	if log == nil {
		log = logging.NopLogger()
	}
	log = log.WithComponent("review")
	return &Controller{
		stager:    d.Stager,
		host:      d.Host,
		presenter: d.Presenter,
		decisions: d.Decisions,
		committer: NewCommitter(d.Host, d.Stager, log),
		log:       log,
		observers: d.Observers,
		now:       time.Now,
		newID:     uuid.NewString,
		retained:  make(map[string]*session),
	}
}

// AddObserver registers o for subsequent transitions.
func (c *Controller) AddObserver(o Observer) {
	c.observers = append(c.observers, o)
}

// Title returns the comparison title for a target.
func Title(target string) string {
	return "File Differences: " + filepath.Base(target)
}

// Begin stages p, presents it and arms a decision listener. It returns as
// soon as the listener is armed. A still-pending session is discarded first.
func (c *Controller) Begin(p model.ChangeProposal) (Snapshot, error) {
	if c.active != nil && !c.active.state.Terminal() {
		c.cancel(c.active, "superseded by a new proposal")
	}

	now := c.now()
	s := &session{
		id:        c.newID(),
		proposal:  p,
		state:     model.StateStaged,
		startedAt: now,
		updatedAt: now,
	}
	c.active = s
	log := c.log.WithSession(s.id)

	if p.TargetPath == "" {
		return c.fail(s, newError(model.KindNotFound, "", "no target path given", nil))
	}
	if _, err := c.host.ReadText(p.TargetPath); err != nil {
		return c.fail(s, hostError(p.TargetPath, err))
	}

	sc, err := c.stager.Stage(p)
	if err != nil {
		return c.fail(s, newError(model.KindStagingIO, p.TargetPath, "staging proposal", err))
	}
	s.staged = sc
	c.transition(s, model.StateStaged)

	if err := c.presenter.Present(p.TargetPath, sc.StagingPath, Title(p.TargetPath)); err != nil {
		c.release(s)
		return c.fail(s, newError(model.KindDiffUnavailable, p.TargetPath, "presenting diff", err))
	}

	s.handle = c.decisions.Arm(
		func() { c.decide(s, model.DecisionAccept) },
		func() { c.decide(s, model.DecisionReject) },
	)
	log.Debug("decision listener armed", "handle", uint64(s.handle))

	c.transition(s, model.StatePresented)
	return s.snapshot(), nil
}

// OnDecision applies d to the active session. It reports false when there
// is no presented session to act on.
func (c *Controller) OnDecision(d model.Decision) (Snapshot, bool) {
	if c.active == nil {
		return Snapshot{}, false
	}
	ok := c.decide(c.active, d)
	return c.active.snapshot(), ok
}

// Cancel discards the active session if it is still awaiting a decision.
func (c *Controller) Cancel(reason string) (Snapshot, bool) {
	if c.active == nil {
		return Snapshot{}, false
	}
	ok := c.cancel(c.active, reason)
	return c.active.snapshot(), ok
}

// Active returns the most recent session.
func (c *Controller) Active() (Snapshot, bool) {
	if c.active == nil {
		return Snapshot{}, false
	}
	return c.active.snapshot(), true
}

// Pending reports whether a session is waiting for a decision.
func (c *Controller) Pending() bool {
	return c.active != nil && c.active.state == model.StatePresented
}

// Retained lists sessions whose staged artifact survived a failed commit.
func (c *Controller) Retained() []Snapshot {
	out := make([]Snapshot, 0, len(c.retained))
	for _, s := range c.retained {
		out = append(out, s.snapshot())
	}
	return out
}

// Purge removes the artifact retained by a failed commit. It succeeds at
// most once per session.
func (c *Controller) Purge(id string) error {
	s, ok := c.retained[id]
	if !ok {
		return newError(model.KindNotFound, id, "no retained artifact for session", nil)
	}
	delete(c.retained, id)
	s.retained = false
	if err := c.stager.Remove(s.staged); err != nil {
		return newError(model.KindStagingIO, s.staged.StagingPath, "removing retained artifact", err)
	}
	c.log.WithSession(id).Info("retained artifact purged", "staging", s.staged.StagingPath)
	return nil
}

// Close discards any pending session and purges every retained artifact.
func (c *Controller) Close() error {
	if c.active != nil && !c.active.state.Terminal() {
		c.cancel(c.active, "controller closed")
	}
	var errs []error
	for id := range c.retained {
		if err := c.Purge(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Controller) decide(s *session, d model.Decision) bool {
	log := c.log.WithSession(s.id)
	if s.state != model.StatePresented {
		log.Debug("decision ignored", "decision", d.String(), "state", s.state.String())
		return false
	}
	c.disarm(s)

	switch d {
	case model.DecisionAccept:
		c.transition(s, model.StateAccepted)
		if err := c.committer.Accept(s.proposal.TargetPath, s.staged); err != nil {
			s.retained = true
			c.retained[s.id] = s
			_, _ = c.fail(s, err)
			return true
		}
		c.transition(s, model.StateApplied)
	case model.DecisionReject:
		c.transition(s, model.StateRejected)
		c.committer.Reject(s.staged)
		c.transition(s, model.StateDiscarded)
	default:
		c.release(s)
		_, _ = c.fail(s, newError(model.KindInvalidDecision, s.proposal.TargetPath, fmt.Sprintf("unknown decision %d", d), nil))
	}
	return true
}

func (c *Controller) cancel(s *session, reason string) bool {
	if s.state != model.StatePresented {
		return false
	}
	s.reason = reason
	c.log.WithSession(s.id).Info("cancelling pending review", "reason", reason)
	return c.decide(s, model.DecisionReject)
}

func (c *Controller) disarm(s *session) {
	if s.handle == 0 {
		return
	}
	c.decisions.Disarm(s.handle)
	s.handle = 0
}

// release removes the staged artifact outside the commit path.
func (c *Controller) release(s *session) {
	if s.staged.StagingPath == "" {
		return
	}
	if err := c.stager.Remove(s.staged); err != nil {
		c.log.WithSession(s.id).Warn("failed to remove staged artifact",
			"staging", s.staged.StagingPath, "error", err.Error())
	}
}

func (c *Controller) fail(s *session, e *Error) (Snapshot, error) {
	c.disarm(s)
	s.err = e
	c.log.WithSession(s.id).Error("review failed",
		"target", s.proposal.TargetPath, "code", e.Code(), "error", e.Error())
	c.transition(s, model.StateFailed)
	return s.snapshot(), e
}

func (c *Controller) transition(s *session, to model.SessionState) {
	from := s.state
	s.state = to
	s.updatedAt = c.now()

	c.log.WithSession(s.id).Info("session transition",
		"target", s.proposal.TargetPath,
		"from", from.String(),
		"state", to.String(),
	)

	ev := Event{Session: s.snapshot(), From: from}
	if to == model.StatePresented {
		p := s.proposal
		ev.Proposal = &p
	}
	for _, o := range c.observers {
		o.Observe(ev)
	}
}
