package review

import (
	"time"

	"github.com/sprite-ai/agstage/internal/decision"
	"github.com/sprite-ai/agstage/internal/model"
)

// session is the controller's private record of one proposal's review.
type session struct {
	id        string
	proposal  model.ChangeProposal
	staged    model.StagedChange
	state     model.SessionState
	err       *Error
	reason    string
	startedAt time.Time
	updatedAt time.Time

	handle   decision.Handle
	retained bool
}

// Snapshot is an immutable view of a session.
type Snapshot struct {
	ID          string             `json:"id"`
	TargetPath  string             `json:"target_path"`
	StagingPath string             `json:"staging_path,omitempty"`
	State       model.SessionState `json:"-"`
	StateName   string             `json:"state"`
	Reason      string             `json:"reason,omitempty"`
	ErrorCode   string             `json:"error_code,omitempty"`
	Error       string             `json:"error,omitempty"`
	Retained    bool               `json:"retained,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Terminal reports whether the session has finished.
func (s Snapshot) Terminal() bool {
	return s.State.Terminal()
}

func (s *session) snapshot() Snapshot {
	snap := Snapshot{
		ID:          s.id,
		TargetPath:  s.proposal.TargetPath,
		StagingPath: s.staged.StagingPath,
		State:       s.state,
		StateName:   s.state.String(),
		Reason:      s.reason,
		Retained:    s.retained,
		StartedAt:   s.startedAt,
		UpdatedAt:   s.updatedAt,
	}
	if s.err != nil {
		snap.ErrorCode = s.err.Code()
		snap.Error = s.err.Error()
	}
	return snap
}

// Event reports one state transition to observers.
type Event struct {
	Session Snapshot
	From    model.SessionState
	// Proposal is set on the transition into Presented so observers can
	// render the proposed content without touching the staging area.
	Proposal *model.ChangeProposal
}

// Observer receives every session transition on the controller's thread.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }
