// Package tui implements the Bubble Tea review console: it presents each
// staged proposal as a diff and turns key presses into decisions.
package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/sprite-ai/agstage/internal/decision"
	"github.com/sprite-ai/agstage/internal/diff"
	"github.com/sprite-ai/agstage/internal/model"
	"github.com/sprite-ai/agstage/internal/review"
)

// ProposalMsg asks the console to begin reviewing a proposal. Any review
// still waiting for a decision is superseded. When Result is set it receives
// the outcome of Begin and must have room for one value.
type ProposalMsg struct {
	Proposal model.ChangeProposal
	Result   chan<- error
}

// DrainMsg makes the console quit once nothing is pending or queued.
type DrainMsg struct{}

// nextMsg begins the next queued proposal.
type nextMsg struct{}

// Pending produces a queued proposal when its turn comes, so it can build
// on whatever earlier decisions left on disk.
type Pending func() (model.ChangeProposal, error)

// Proposals queues fixed proposals.
func Proposals(ps ...model.ChangeProposal) []Pending {
	out := make([]Pending, len(ps))
	for i, p := range ps {
		out[i] = func() (model.ChangeProposal, error) { return p, nil }
	}
	return out
}

// Options configures a Model.
type Options struct {
	Controller *review.Controller
	Bus        *decision.Bus
	Surface    *Surface
	Keys       decision.KeyMap
	MaxLines   int

	// Queue is reviewed in order, each proposal after the previous one
	// is decided.
	Queue []Pending
	// ExitWhenIdle quits once nothing is pending and the queue is empty.
	ExitWhenIdle bool
}

// Model is the top-level Bubble Tea model for agstage.
type Model struct {
	ctrl      *review.Controller
	bus       *decision.Bus
	surface   *Surface
	decisions decision.KeyMap
	journal   *journal
	maxLines  int

	queue        []Pending
	exitWhenIdle bool

	width  int
	height int

	scrollOffset int
	viewHeight   int
	lines        []renderedLine

	splitView bool
	showHelp  bool
	status    string
}

// New creates a Model and subscribes it to the controller's transitions.
func New(o Options) Model {
	j := &journal{}
	o.Controller.AddObserver(j)
	return Model{
		ctrl:         o.Controller,
		bus:          o.Bus,
		surface:      o.Surface,
		decisions:    o.Keys,
		journal:      j,
		maxLines:     o.MaxLines,
		queue:        append([]Pending(nil), o.Queue...),
		exitWhenIdle: o.ExitWhenIdle,
		viewHeight:   20,
	}
}

// Finished returns every session that reached a terminal state, in order.
func (m Model) Finished() []review.Snapshot {
	return m.journal.done
}

// Skipped returns queued proposals that could not be produced.
func (m Model) Skipped() []error {
	return m.journal.skipped
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	if len(m.queue) > 0 {
		return func() tea.Msg { return nextMsg{} }
	}
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewHeight = m.height - 8 // title, stats, status bar, borders
		if m.viewHeight < 1 {
			m.viewHeight = 1
		}
		return m, nil

	case ProposalMsg:
		ok := m.begin(msg.Proposal)
		if msg.Result != nil {
			var err error
			if !ok {
				snap, _ := m.ctrl.Active()
				err = errors.New(snap.Error)
			}
			msg.Result <- err
		}
		return m, m.idleCmd()

	case DrainMsg:
		m.exitWhenIdle = true
		return m, m.idleCmd()

	case nextMsg:
		m.advance()
		return m, m.idleCmd()

	case tea.KeyMsg:
		if d, ok := m.decisions.Match(msg); ok {
			if !m.ctrl.Pending() {
				return m, nil
			}
			m.bus.Fire(d)
			m.settle()
			if len(m.queue) > 0 {
				m.advance()
			}
			return m, m.idleCmd()
		}

		switch {
		case key.Matches(msg, keys.Quit):
			if m.ctrl.Pending() {
				m.ctrl.Cancel("reviewer quit")
				m.settle()
			}
			return m, tea.Quit

		case key.Matches(msg, keys.Down):
			if m.scrollOffset < len(m.lines)-1 {
				m.scrollOffset++
			}

		case key.Matches(msg, keys.Up):
			if m.scrollOffset > 0 {
				m.scrollOffset--
			}

		case key.Matches(msg, keys.PageDown):
			m.scrollOffset += m.viewHeight
			if m.scrollOffset > len(m.lines)-1 {
				m.scrollOffset = max(len(m.lines)-1, 0)
			}

		case key.Matches(msg, keys.PageUp):
			m.scrollOffset = max(m.scrollOffset-m.viewHeight, 0)

		case key.Matches(msg, keys.NextHunk):
			m.jumpToNextHunk()

		case key.Matches(msg, keys.PrevHunk):
			m.jumpToPrevHunk()

		case key.Matches(msg, keys.Toggle):
			m.splitView = !m.splitView

		case key.Matches(msg, keys.Help):
			m.showHelp = !m.showHelp
		}
	}

	return m, nil
}

// begin starts a review and loads its preview.
func (m *Model) begin(p model.ChangeProposal) bool {
	_, err := m.ctrl.Begin(p)
	m.scrollOffset = 0
	if err != nil {
		m.surface.Clear()
		m.lines = nil
		m.status = err.Error()
		return false
	}

	pv := m.surface.Current()
	hl := diff.HighlightProposal(pv.Original, pv.Before, pv.After)
	m.lines = renderFile(pv.File, hl, pv.Findings, m.maxLines)
	m.status = ""
	return true
}

// advance begins queued proposals until one is presented.
func (m *Model) advance() {
	for len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		p, err := next()
		if err != nil {
			m.journal.skipped = append(m.journal.skipped, err)
			m.status = "Skipped: " + err.Error()
			continue
		}
		if m.begin(p) {
			return
		}
	}
}

// settle clears the screen once the active session is finished.
func (m *Model) settle() {
	snap, ok := m.ctrl.Active()
	if !ok || !snap.Terminal() {
		return
	}
	m.surface.Clear()
	m.lines = nil
	m.scrollOffset = 0
	m.status = outcome(snap)
}

func (m Model) idleCmd() tea.Cmd {
	if m.exitWhenIdle && !m.ctrl.Pending() && len(m.queue) == 0 {
		return tea.Quit
	}
	return nil
}

func outcome(s review.Snapshot) string {
	switch s.State {
	case model.StateApplied:
		return "Applied " + s.TargetPath
	case model.StateDiscarded:
		if s.Reason != "" {
			return fmt.Sprintf("Discarded %s (%s)", s.TargetPath, s.Reason)
		}
		return "Discarded " + s.TargetPath
	case model.StateFailed:
		return fmt.Sprintf("Failed %s: %s", s.TargetPath, s.Error)
	}
	return s.StateName + " " + s.TargetPath
}

func (m *Model) jumpToNextHunk() {
	for i := m.scrollOffset + 1; i < len(m.lines); i++ {
		if m.lines[i].IsHunk {
			m.scrollOffset = i
			return
		}
	}
}

func (m *Model) jumpToPrevHunk() {
	for i := m.scrollOffset - 1; i >= 0; i-- {
		if m.lines[i].IsHunk {
			m.scrollOffset = i
			return
		}
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}

	var main string
	if pv := m.surface.Current(); pv != nil && m.ctrl.Pending() {
		main = lipgloss.JoinVertical(lipgloss.Left,
			m.renderHeader(),
			m.renderDiffView(m.width, m.height-3),
		)
	} else {
		main = m.renderIdle()
	}
	return lipgloss.JoinVertical(lipgloss.Left, main, m.renderStatusBar())
}

func (m Model) renderHeader() string {
	pv := m.surface.Current()
	title := titleStyle.Render(pv.Title)

	stats := fmt.Sprintf("%s  +%d -%d  %s → %s",
		pv.Name, pv.Added, pv.Deleted,
		humanize.Bytes(uint64(pv.BeforeBytes)), humanize.Bytes(uint64(pv.AfterBytes)))
	if pv.Truncated {
		stats += "  (truncated)"
	}
	if pv.Identical() {
		stats += "  (no changes)"
	}

	line := subtitleStyle.Render(stats)
	if pv.Results != nil && len(pv.Results.Findings) > 0 {
		line += "  " + findingStyle(pv.Results.MaxRisk()).Render(pv.Results.Summary())
	}

	var b strings.Builder
	b.WriteString(title)
	b.WriteByte('\n')
	b.WriteString(line)
	for _, f := range pv.Findings {
		if f.Line == 0 {
			b.WriteByte('\n')
			b.WriteString(findingStyle(f.Risk).Render("▲ " + f.Message))
		}
	}
	return b.String()
}

func (m Model) renderDiffView(width, height int) string {
	innerWidth := width - 4
	innerHeight := height - 2
	if innerHeight < 1 {
		innerHeight = 1
	}

	if len(m.lines) == 0 {
		return diffViewStyle.Width(width - 2).Height(innerHeight).Render("No changes")
	}

	visible := m.viewHeight
	if visible > innerHeight {
		visible = innerHeight
	}

	var b strings.Builder
	if m.splitView {
		m.renderSplitDiff(&b, innerWidth, visible)
	} else {
		m.renderUnifiedDiff(&b, innerWidth, visible)
	}
	return diffViewStyle.Width(width - 2).Height(innerHeight).Render(b.String())
}

func (m Model) renderUnifiedDiff(b *strings.Builder, width, visibleLines int) {
	end := min(m.scrollOffset+visibleLines, len(m.lines))
	for i := m.scrollOffset; i < end; i++ {
		b.WriteString(styleLine(m.lines[i], width))
		if i < end-1 {
			b.WriteByte('\n')
		}
	}
}

func (m Model) renderSplitDiff(b *strings.Builder, width, visibleLines int) {
	halfWidth := (width - 3) / 2

	end := min(m.scrollOffset+visibleLines, len(m.lines))
	for i := m.scrollOffset; i < end; i++ {
		left, right := styleLineSplit(m.lines[i], halfWidth)
		b.WriteString(left)
		b.WriteString(" │ ")
		b.WriteString(right)
		if i < end-1 {
			b.WriteByte('\n')
		}
	}
}

func (m Model) renderIdle() string {
	var b strings.Builder
	if len(m.queue) > 0 {
		b.WriteString(fmt.Sprintf("%d proposals queued\n", len(m.queue)))
	} else {
		b.WriteString("Waiting for proposals…\n")
	}

	done := m.journal.done
	if len(done) > 0 {
		b.WriteString(fmt.Sprintf("\n%d applied, %d discarded, %d failed\n\n",
			m.journal.count(model.StateApplied),
			m.journal.count(model.StateDiscarded),
			m.journal.count(model.StateFailed)))
	}

	start := max(len(done)-10, 0)
	for i := len(done) - 1; i >= start; i-- {
		s := done[i]
		var style lipgloss.Style
		switch s.State {
		case model.StateApplied:
			style = appliedStyle
		case model.StateDiscarded:
			style = discardedStyle
		default:
			style = failedStyle
		}
		b.WriteString(fmt.Sprintf("%s  %s  %s\n",
			style.Width(10).Render(s.StateName),
			s.TargetPath,
			helpBarStyle.Render(humanize.Time(s.UpdatedAt))))
	}

	return idleStyle.Width(m.width).Height(m.height - 3).Render(b.String())
}

func (m Model) renderStatusBar() string {
	var left string
	if m.ctrl.Pending() {
		left = statusKeyStyle.Render(m.decisions.Accept.Help().Key) + " accept  " +
			statusKeyStyle.Render(m.decisions.Reject.Help().Key) + " reject"
		if len(m.lines) > 0 {
			left += fmt.Sprintf("  Line %d/%d", m.scrollOffset+1, len(m.lines))
		}
	} else if m.status != "" {
		left = m.status
	}
	if last, ok := m.journal.last(); ok && m.ctrl.Pending() && m.status == "" {
		left += "  last: " + last.StateName
	}

	mode := "unified"
	if m.splitView {
		mode = "split"
	}
	right := fmt.Sprintf("%s  ? help  q quit", mode)

	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right)-2, 0)
	return statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) renderHelp() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("agstage: Keyboard Shortcuts"))
	b.WriteString("\n\n")

	helpItems := []struct{ key, desc string }{
		{m.decisions.Accept.Help().Key, "Accept the proposal"},
		{m.decisions.Reject.Help().Key, "Reject the proposal"},
		{"↑/k", "Scroll up"},
		{"↓/j", "Scroll down"},
		{"pgup/pgdn", "Page up/down"},
		{"]", "Next hunk"},
		{"[", "Previous hunk"},
		{"v", "Toggle unified/split view"},
		{"?", "Toggle this help"},
		{"q", "Discard any pending proposal and quit"},
	}
	for _, item := range helpItems {
		b.WriteString(fmt.Sprintf("  %s  %s\n",
			helpKeyStyle.Width(12).Render(item.key),
			item.desc,
		))
	}

	b.WriteString("\n")
	b.WriteString(helpBarStyle.Render("Press ? to close help"))
	return b.String()
}

// NewProgram wraps m in a full-screen Bubble Tea program.
func NewProgram(m Model, opts ...tea.ProgramOption) *tea.Program {
	return tea.NewProgram(m, append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)...)
}
