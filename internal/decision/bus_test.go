package decision

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sprite-ai/agstage/internal/model"
)

func TestArmFireDisarm(t *testing.T) {
	b := NewBus()
	var accepts, rejects int

	h := b.Arm(func() { accepts++ }, func() { rejects++ })
	if h == 0 {
		t.Fatal("zero handle issued")
	}
	if b.Armed() != 1 {
		t.Fatalf("Armed() = %d, want 1", b.Armed())
	}

	if n := b.Fire(model.DecisionAccept); n != 1 {
		t.Errorf("Fire returned %d, want 1", n)
	}
	if accepts != 1 || rejects != 0 {
		t.Errorf("accepts=%d rejects=%d", accepts, rejects)
	}

	if !b.Disarm(h) {
		t.Error("Disarm of armed handle returned false")
	}
	if b.Disarm(h) {
		t.Error("second Disarm returned true")
	}
	if n := b.Fire(model.DecisionReject); n != 0 {
		t.Errorf("Fire after disarm invoked %d listeners", n)
	}
}

func TestHandlesNotReused(t *testing.T) {
	b := NewBus()
	h1 := b.Arm(nil, nil)
	b.Disarm(h1)
	h2 := b.Arm(nil, nil)
	if h1 == h2 {
		t.Errorf("handle %d reused", h1)
	}
}

func TestCallbackMayDisarm(t *testing.T) {
	b := NewBus()
	var h Handle
	calls := 0
	h = b.Arm(func() {
		calls++
		b.Disarm(h)
	}, nil)

	b.Fire(model.DecisionAccept)
	b.Fire(model.DecisionAccept)
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if b.Armed() != 0 {
		t.Errorf("Armed() = %d, want 0", b.Armed())
	}
}

func TestFireOrder(t *testing.T) {
	b := NewBus()
	var got []int
	b.Arm(func() { got = append(got, 1) }, nil)
	h2 := b.Arm(func() { got = append(got, 2) }, nil)
	b.Arm(func() { got = append(got, 3) }, nil)
	b.Disarm(h2)

	b.Fire(model.DecisionAccept)
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("fire order = %v, want [1 3]", got)
	}
}

func TestKeyMap(t *testing.T) {
	km := DefaultKeyMap()

	if d, ok := km.Match(tea.KeyMsg{Type: tea.KeyEnter}); !ok || d != model.DecisionAccept {
		t.Errorf("enter -> %v, %v", d, ok)
	}
	if d, ok := km.Match(tea.KeyMsg{Type: tea.KeyBackspace}); !ok || d != model.DecisionReject {
		t.Errorf("backspace -> %v, %v", d, ok)
	}
	if _, ok := km.Match(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}}); ok {
		t.Error("x should not match")
	}

	custom := NewKeyMap([]string{"y"}, []string{"n"})
	if d, ok := custom.Match(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'n'}}); !ok || d != model.DecisionReject {
		t.Errorf("n -> %v, %v", d, ok)
	}
}
