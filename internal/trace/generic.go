package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Generic JSONL transcripts carry one action per line:
//
//	{"type": "plan", "content": "I'll add rate limiting..."}
//	{"type": "file_read", "path": "api/middleware.go"}
//	{"type": "file_write", "path": "api/limit.go", "content": "package api\n..."}
//	{"type": "file_edit", "path": "api/middleware.go", "old": "a", "new": "b"}
//	{"type": "bash", "command": "go test ./..."}
type genericEntry struct {
	Type        string `json:"type"`
	Content     string `json:"content"`
	Path        string `json:"path"`
	Description string `json:"description"`
	Old         string `json:"old"`
	New         string `json:"new"`
	ReplaceAll  bool   `json:"replace_all"`
	Command     string `json:"command"`
	Timestamp   string `json:"timestamp"`
}

// ParseGenericJSONL parses a generic JSONL transcript.
func ParseGenericJSONL(path string) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening trace: %w", err)
	}
	defer f.Close()

	return parseGenericReader(f)
}

func parseGenericReader(r io.Reader) (*Trace, error) {
	trace := &Trace{Source: "generic"}
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 32*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry genericEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		ts := parseTimestamp(entry.Timestamp)
		trace.observe(ts)

		step := Step{Timestamp: ts, FilePath: entry.Path}
		switch entry.Type {
		case "plan":
			step.Type = StepPlan
			step.Summary = truncateStr(entry.Content, 100)
		case "reasoning":
			step.Type = StepReasoning
			step.Summary = truncateStr(entry.Content, 100)
		case "file_read":
			step.Type = StepFileRead
			step.Summary = fmt.Sprintf("Read %s", shortPath(entry.Path))
		case "file_write":
			step.Type = StepFileWrite
			step.Content = entry.Content
			step.Summary = describe(entry, "Write")
		case "file_edit":
			step.Type = StepFileEdit
			step.OldString = entry.Old
			step.NewString = entry.New
			step.ReplaceAll = entry.ReplaceAll
			step.Summary = describe(entry, "Edit")
		case "bash":
			step.Type = StepBash
			step.Command = entry.Command
			step.Summary = truncateStr(entry.Command, 80)
		default:
			continue
		}

		if step.Type == StepFileWrite || step.Type == StepFileEdit {
			addFile(&trace.FilesChanged, seen, entry.Path)
		}
		trace.Steps = append(trace.Steps, step)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning trace: %w", err)
	}
	return trace, nil
}

func describe(e genericEntry, verb string) string {
	if e.Description != "" {
		return e.Description
	}
	return fmt.Sprintf("%s %s", verb, shortPath(e.Path))
}
