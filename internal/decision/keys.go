package decision

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sprite-ai/agstage/internal/model"
)

// KeyMap binds keys to decisions.
type KeyMap struct {
	Accept key.Binding
	Reject key.Binding
}

// DefaultKeyMap accepts on enter and rejects on backspace.
func DefaultKeyMap() KeyMap {
	return NewKeyMap([]string{"enter"}, []string{"backspace"})
}

// NewKeyMap builds bindings from key names as reported by tea.KeyMsg.String.
func NewKeyMap(accept, reject []string) KeyMap {
	return KeyMap{
		Accept: key.NewBinding(
			key.WithKeys(accept...),
			key.WithHelp(strings.Join(accept, "/"), "accept"),
		),
		Reject: key.NewBinding(
			key.WithKeys(reject...),
			key.WithHelp(strings.Join(reject, "/"), "reject"),
		),
	}
}

// Match maps a key press to a decision.
func (k KeyMap) Match(msg tea.KeyMsg) (model.Decision, bool) {
	switch {
	case key.Matches(msg, k.Accept):
		return model.DecisionAccept, true
	case key.Matches(msg, k.Reject):
		return model.DecisionReject, true
	}
	return 0, false
}
