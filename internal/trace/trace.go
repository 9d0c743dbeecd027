// Package trace reads agent conversation transcripts and recovers the file
// changes the agent made, so they can be reviewed after the fact.
package trace

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sprite-ai/agstage/internal/model"
)

// StepType categorizes a step in the agent's workflow.
type StepType int

const (
	StepPlan StepType = iota
	StepReasoning
	StepFileRead
	StepFileWrite
	StepFileEdit
	StepBash
	StepUserMessage
)

func (s StepType) String() string {
	switch s {
	case StepPlan:
		return "plan"
	case StepReasoning:
		return "reasoning"
	case StepFileRead:
		return "read"
	case StepFileWrite:
		return "write"
	case StepFileEdit:
		return "edit"
	case StepBash:
		return "bash"
	case StepUserMessage:
		return "user"
	default:
		return "unknown"
	}
}

// Step is a single action in the agent's timeline.
type Step struct {
	Type      StepType
	Timestamp time.Time
	Summary   string
	FilePath  string
	Command   string

	// Content is the full file body of a write step.
	Content string
	// OldString and NewString describe an edit step.
	OldString  string
	NewString  string
	ReplaceAll bool
}

// Trace is the parsed representation of an agent conversation.
type Trace struct {
	Source       string // "claude-code" or "generic"
	SessionID    string
	StartTime    time.Time
	EndTime      time.Time
	Steps        []Step
	FilesChanged []string
}

// StepsOfType returns all steps of the given type.
func (t *Trace) StepsOfType(st StepType) []Step {
	var result []Step
	for _, s := range t.Steps {
		if s.Type == st {
			result = append(result, s)
		}
	}
	return result
}

// Changes returns the write and edit steps in the order they happened.
func (t *Trace) Changes() []Step {
	var result []Step
	for _, s := range t.Steps {
		if s.Type == StepFileWrite || s.Type == StepFileEdit {
			result = append(result, s)
		}
	}
	return result
}

// ErrEditNotApplicable is returned when an edit's old text is absent from
// the current file.
var ErrEditNotApplicable = errors.New("edit does not apply to current content")

// Apply returns the full content the step leaves behind when performed on
// current. Writes ignore current.
func (s Step) Apply(current string) (string, error) {
	switch s.Type {
	case StepFileWrite:
		return s.Content, nil
	case StepFileEdit:
		if s.OldString == "" {
			return "", fmt.Errorf("%s: empty old text: %w", s.FilePath, ErrEditNotApplicable)
		}
		if !strings.Contains(current, s.OldString) {
			return "", fmt.Errorf("%s: %w", s.FilePath, ErrEditNotApplicable)
		}
		if s.ReplaceAll {
			return strings.ReplaceAll(current, s.OldString, s.NewString), nil
		}
		return strings.Replace(current, s.OldString, s.NewString, 1), nil
	}
	return "", fmt.Errorf("step %s does not change a file", s.Type)
}

// Proposal turns a change step into a full-content proposal for target. Edits
// are applied to the content read returns at call time.
func (s Step) Proposal(target string, read func(string) (string, error)) (model.ChangeProposal, error) {
	var current string
	if s.Type == StepFileEdit {
		var err error
		if current, err = read(target); err != nil {
			return model.ChangeProposal{}, fmt.Errorf("reading %s: %w", target, err)
		}
	}
	content, err := s.Apply(current)
	if err != nil {
		return model.ChangeProposal{}, err
	}
	return model.ChangeProposal{TargetPath: target, Content: content}, nil
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, format := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000Z"} {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (t *Trace) observe(ts time.Time) {
	if ts.IsZero() {
		return
	}
	if t.StartTime.IsZero() {
		t.StartTime = ts
	}
	t.EndTime = ts
}

func truncateStr(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

func shortPath(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) <= 2 {
		return path
	}
	return strings.Join(parts[len(parts)-2:], "/")
}

func addFile(files *[]string, seen map[string]bool, path string) {
	if path == "" || seen[path] {
		return
	}
	seen[path] = true
	*files = append(*files, path)
}
