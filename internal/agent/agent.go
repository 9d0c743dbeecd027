// Package agent exposes the project to a coding agent as four tools: read the
// focused document, read every document, resolve a file name, and propose a
// full-content replacement for review.
package agent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sprite-ai/agstage/internal/logging"
	"github.com/sprite-ai/agstage/internal/model"
)

// DoneReply is returned to the agent once a proposal is under review.
const DoneReply = "All done \n//"

// Project is the read side of the document host the agent sees.
type Project interface {
	Abs(path string) string
	Active() string
	ReadText(path string) (string, error)
	Documents() ([]string, error)
	Resolve(name string) ([]string, error)
}

// ProposeFunc starts a review for a proposal. It returns once the proposal is
// presented, not when it is decided.
type ProposeFunc func(model.ChangeProposal) error

// Agent answers tool calls against a project.
type Agent struct {
	project Project
	propose ProposeFunc
	log     *logging.Logger
}

// New creates an Agent.
func New(project Project, propose ProposeFunc, log *logging.Logger) *Agent {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Agent{project: project, propose: propose, log: log.WithComponent("agent")}
}

// ProposeChange submits content as the new text of targetPath. The reply is
// plain text for the agent; failures are described rather than returned.
func (a *Agent) ProposeChange(targetPath, content string) string {
	if strings.TrimSpace(targetPath) == "" {
		return "Error: a file path is required. Use get_file_path first."
	}
	p := model.ChangeProposal{TargetPath: a.project.Abs(targetPath), Content: content}
	if err := a.propose(p); err != nil {
		a.log.Warn("proposal failed", "target", p.TargetPath, "error", err.Error())
		return "Error: " + err.Error()
	}
	a.log.Info("proposal submitted", "target", p.TargetPath, "bytes", len(content))
	return DoneReply
}

// ReadCurrentContent returns the text of the focused document.
func (a *Agent) ReadCurrentContent() string {
	active := a.project.Active()
	if active == "" {
		return "No document is open."
	}
	text, err := a.project.ReadText(active)
	if err != nil {
		return "Error: " + err.Error()
	}
	return text
}

// ReadAllProjectContent returns every text document in the project, each
// preceded by a header naming its full path. Binary files are skipped.
func (a *Agent) ReadAllProjectContent() string {
	docs, err := a.project.Documents()
	if err != nil {
		return "Error: " + err.Error()
	}

	var b strings.Builder
	for _, doc := range docs {
		text, err := a.project.ReadText(doc)
		if err != nil {
			if !errors.Is(err, model.ErrNotText) {
				a.log.Debug("skipping unreadable document", "path", doc, "error", err.Error())
			}
			continue
		}
		b.WriteString(fileHeader(doc))
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String()
}

// ResolvePath returns the full paths matching name, one per line. An empty
// name lists every document.
func (a *Agent) ResolvePath(name string) string {
	var (
		paths []string
		err   error
	)
	if strings.TrimSpace(name) == "" {
		paths, err = a.project.Documents()
	} else {
		paths, err = a.project.Resolve(name)
	}
	if err != nil {
		return "Error: " + err.Error()
	}
	if len(paths) == 0 {
		return fmt.Sprintf("No file named %q in the project.", name)
	}
	var b strings.Builder
	for _, p := range paths {
		b.WriteString(fileHeader(p))
	}
	return b.String()
}

func fileHeader(path string) string {
	return "FILE FULL PATH IS: { " + path + "} \n"
}
