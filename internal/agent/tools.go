package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// Tool describes one callable tool.
type Tool struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Params      map[string]string `json:"params,omitempty"`
}

// Tools lists the tools an Agent answers.
func Tools() []Tool {
	return []Tool{
		{
			Name:        "read_file",
			Description: "Read the currently focused file. Use this to gain context before changing it.",
		},
		{
			Name:        "read_all_files",
			Description: "Read every file in the project, each preceded by its full path.",
		},
		{
			Name:        "get_file_path",
			Description: "Find the full path of a file from its name. An empty name lists every file.",
			Params:      map[string]string{"name": "file name or path suffix"},
		},
		{
			Name:        "modify_file",
			Description: "Replace the entire content of a file. The change is shown to the user, who accepts or rejects it.",
			Params: map[string]string{
				"path":    "full path of the file to modify",
				"content": "complete new content of the file",
			},
		},
	}
}

// Call is one tool invocation read from the agent.
type Call struct {
	ID   string            `json:"id,omitempty"`
	Tool string            `json:"tool"`
	Args map[string]string `json:"args,omitempty"`
}

// Result answers a Call.
type Result struct {
	ID     string `json:"id,omitempty"`
	Tool   string `json:"tool"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Dispatch runs a single call.
func (a *Agent) Dispatch(c Call) Result {
	r := Result{ID: c.ID, Tool: c.Tool}
	switch c.Tool {
	case "read_file":
		r.Output = a.ReadCurrentContent()
	case "read_all_files":
		r.Output = a.ReadAllProjectContent()
	case "get_file_path":
		r.Output = a.ResolvePath(c.Args["name"])
	case "modify_file":
		path := c.Args["path"]
		if path == "" {
			path = c.Args["filepath"]
		}
		content, ok := c.Args["content"]
		if !ok {
			content = c.Args["code"]
		}
		r.Output = a.ProposeChange(path, content)
	case "list_tools":
		data, _ := json.Marshal(Tools())
		r.Output = string(data)
	default:
		r.Error = fmt.Sprintf("unknown tool %q", c.Tool)
	}
	return r
}

// Serve reads JSON-lines calls from r and writes one JSON-line result per
// call to w until r is exhausted or ctx is done.
func (a *Agent) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 32*1024*1024)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var c Call
		var res Result
		if err := json.Unmarshal(line, &c); err != nil {
			res = Result{Error: fmt.Sprintf("invalid call: %v", err)}
		} else {
			res = a.Dispatch(c)
		}
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("writing result: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading calls: %w", err)
	}
	return nil
}
