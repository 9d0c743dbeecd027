package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

type claudeEntry struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	SessionID string          `json:"sessionId"`
	Message   json.RawMessage `json:"message"`
}

type claudeMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// Content is either a string or a list of blocks.
type claudeContentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type writeInput struct {
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

type editInput struct {
	FilePath   string `json:"file_path"`
	OldString  string `json:"old_string"`
	NewString  string `json:"new_string"`
	ReplaceAll bool   `json:"replace_all"`
}

type multiEditInput struct {
	FilePath string      `json:"file_path"`
	Edits    []editInput `json:"edits"`
}

type readInput struct {
	FilePath string `json:"file_path"`
}

type bashInput struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

// ParseClaudeCode parses a Claude Code JSONL transcript.
func ParseClaudeCode(path string) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening trace: %w", err)
	}
	defer f.Close()

	return parseClaudeReader(f)
}

func parseClaudeReader(r io.Reader) (*Trace, error) {
	trace := &Trace{Source: "claude-code"}
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 32*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry claudeEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		if trace.SessionID == "" {
			trace.SessionID = entry.SessionID
		}
		ts := parseTimestamp(entry.Timestamp)
		trace.observe(ts)

		var msg claudeMessage
		if len(entry.Message) == 0 || json.Unmarshal(entry.Message, &msg) != nil {
			continue
		}

		var text string
		if err := json.Unmarshal(msg.Content, &text); err == nil {
			if text == "" {
				continue
			}
			st := StepReasoning
			if entry.Type == "user" {
				st = StepUserMessage
			}
			trace.Steps = append(trace.Steps, Step{Type: st, Timestamp: ts, Summary: truncateStr(text, 100)})
			continue
		}

		if entry.Type != "assistant" {
			continue
		}
		var blocks []claudeContentBlock
		if err := json.Unmarshal(msg.Content, &blocks); err != nil {
			continue
		}
		for _, block := range blocks {
			switch block.Type {
			case "text":
				if block.Text != "" {
					trace.Steps = append(trace.Steps, Step{Type: StepReasoning, Timestamp: ts, Summary: truncateStr(block.Text, 100)})
				}
			case "tool_use":
				for _, step := range toolSteps(block, ts) {
					if step.Type == StepFileWrite || step.Type == StepFileEdit {
						addFile(&trace.FilesChanged, seen, step.FilePath)
					}
					trace.Steps = append(trace.Steps, step)
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning trace: %w", err)
	}
	return trace, nil
}

func toolSteps(block claudeContentBlock, ts time.Time) []Step {
	switch block.Name {
	case "Write":
		var inp writeInput
		if json.Unmarshal(block.Input, &inp) == nil && inp.FilePath != "" {
			return []Step{{
				Type:      StepFileWrite,
				Timestamp: ts,
				FilePath:  inp.FilePath,
				Summary:   fmt.Sprintf("Write %s", shortPath(inp.FilePath)),
				Content:   inp.Content,
			}}
		}

	case "Edit":
		var inp editInput
		if json.Unmarshal(block.Input, &inp) == nil && inp.FilePath != "" {
			return []Step{editStep(inp, ts)}
		}

	case "MultiEdit":
		var inp multiEditInput
		if json.Unmarshal(block.Input, &inp) == nil && inp.FilePath != "" {
			steps := make([]Step, 0, len(inp.Edits))
			for _, e := range inp.Edits {
				e.FilePath = inp.FilePath
				steps = append(steps, editStep(e, ts))
			}
			return steps
		}

	case "Read":
		var inp readInput
		if json.Unmarshal(block.Input, &inp) == nil {
			return []Step{{
				Type:      StepFileRead,
				Timestamp: ts,
				FilePath:  inp.FilePath,
				Summary:   fmt.Sprintf("Read %s", shortPath(inp.FilePath)),
			}}
		}

	case "Bash":
		var inp bashInput
		if json.Unmarshal(block.Input, &inp) == nil {
			summary := inp.Description
			if summary == "" {
				summary = truncateStr(inp.Command, 80)
			}
			return []Step{{Type: StepBash, Timestamp: ts, Command: inp.Command, Summary: summary}}
		}

	default:
		return []Step{{Type: StepReasoning, Timestamp: ts, Summary: fmt.Sprintf("Tool: %s", block.Name)}}
	}
	return nil
}

func editStep(inp editInput, ts time.Time) Step {
	return Step{
		Type:       StepFileEdit,
		Timestamp:  ts,
		FilePath:   inp.FilePath,
		Summary:    fmt.Sprintf("Edit %s", shortPath(inp.FilePath)),
		OldString:  inp.OldString,
		NewString:  inp.NewString,
		ReplaceAll: inp.ReplaceAll,
	}
}
