package trace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// GenericTraceName is the transcript file agstage looks for in a project.
const GenericTraceName = ".agstage-trace.jsonl"

// Load parses a trace file. An empty format sniffs the content.
func Load(path, format string) (*Trace, error) {
	switch format {
	case "claude-code":
		return ParseClaudeCode(path)
	case "generic":
		return ParseGenericJSONL(path)
	case "":
		return autoLoad(path)
	}
	return nil, fmt.Errorf("unknown trace format %q", format)
}

// Detect finds the most relevant transcript for projectDir: the newest
// Claude Code session for the project, then a generic trace in the project.
func Detect(projectDir string) (path, format string) {
	if home, err := os.UserHomeDir(); err == nil {
		if p := detectClaudeCode(filepath.Join(home, ".claude", "projects"), projectDir); p != "" {
			return p, "claude-code"
		}
	}

	generic := filepath.Join(projectDir, GenericTraceName)
	if _, err := os.Stat(generic); err == nil {
		return generic, "generic"
	}
	return "", ""
}

// detectClaudeCode looks for the session directory Claude Code names after
// the project path with separators replaced by dashes, walking up parents.
func detectClaudeCode(projectsDir, projectDir string) string {
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return ""
	}
	for dir := abs; ; dir = filepath.Dir(dir) {
		candidate := filepath.Join(projectsDir, strings.ReplaceAll(dir, string(filepath.Separator), "-"))
		if p := mostRecentJSONL(candidate); p != "" {
			return p
		}
		if parent := filepath.Dir(dir); parent == dir {
			return ""
		}
	}
}

func mostRecentJSONL(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	type candidate struct {
		path    string
		modTime int64
	}
	var files []candidate
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, candidate{filepath.Join(dir, e.Name()), info.ModTime().UnixNano()})
	}
	if len(files) == 0 {
		return ""
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime > files[j].modTime })
	return files[0].path
}

func autoLoad(path string) (*Trace, error) {
	if t, err := ParseClaudeCode(path); err == nil && len(t.Steps) > 0 {
		return t, nil
	}
	if t, err := ParseGenericJSONL(path); err == nil && len(t.Steps) > 0 {
		return t, nil
	}
	return nil, fmt.Errorf("unable to determine trace format for %s", path)
}
