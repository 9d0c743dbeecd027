package tui

import (
	"github.com/sprite-ai/agstage/internal/model"
	"github.com/sprite-ai/agstage/internal/preview"
	"github.com/sprite-ai/agstage/internal/review"
)

// Surface is the terminal diff presenter. Present runs inside the update
// loop, so the model reads the result straight after Begin returns.
type Surface struct {
	builder *preview.Builder
	current *preview.Preview
}

// NewSurface creates a Surface that renders previews built by b.
func NewSurface(b *preview.Builder) *Surface {
	return &Surface{builder: b}
}

// Present implements review.Presenter.
func (s *Surface) Present(original, modified, title string) error {
	p, err := s.builder.Build(original, modified, title)
	if err != nil {
		return err
	}
	s.current = p
	return nil
}

// Current returns the preview on screen, or nil.
func (s *Surface) Current() *preview.Preview {
	return s.current
}

// Clear takes the preview off screen.
func (s *Surface) Clear() {
	s.current = nil
}

// journal collects sessions as they finish.
type journal struct {
	done    []review.Snapshot
	skipped []error
}

func (j *journal) Observe(ev review.Event) {
	if ev.Session.Terminal() && ev.From != ev.Session.State {
		j.done = append(j.done, ev.Session)
	}
}

func (j *journal) last() (review.Snapshot, bool) {
	if len(j.done) == 0 {
		return review.Snapshot{}, false
	}
	return j.done[len(j.done)-1], true
}

func (j *journal) count(state model.SessionState) int {
	n := 0
	for _, s := range j.done {
		if s.State == state {
			n++
		}
	}
	return n
}
