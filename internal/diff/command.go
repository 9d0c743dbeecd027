package diff

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrUnavailable is returned when no diff surface can show a comparison.
var ErrUnavailable = errors.New("diff surface unavailable")

// CommandPresenter opens comparisons in an external tool such as
// "code --diff --wait" or "meld". Arguments may reference {original},
// {modified} and {title}; when neither path placeholder appears the two
// paths are appended.
type CommandPresenter struct {
	Command string

	lookPath func(string) (string, error)
	start    func(*exec.Cmd) error
}

// NewCommandPresenter creates a presenter for command.
func NewCommandPresenter(command string) *CommandPresenter {
	return &CommandPresenter{
		Command:  command,
		lookPath: exec.LookPath,
		start:    startDetached,
	}
}

// Present launches the tool without waiting for it to exit.
func (p *CommandPresenter) Present(original, modified, title string) error {
	argv, err := p.Args(original, modified, title)
	if err != nil {
		return err
	}
	bin, err := p.lookPath(argv[0])
	if err != nil {
		return fmt.Errorf("%s: %w", argv[0], ErrUnavailable)
	}
	cmd := exec.Command(bin, argv[1:]...)
	if err := p.start(cmd); err != nil {
		return fmt.Errorf("starting %s: %v: %w", argv[0], err, ErrUnavailable)
	}
	return nil
}

// Args expands the configured command line.
func (p *CommandPresenter) Args(original, modified, title string) ([]string, error) {
	fields := strings.Fields(p.Command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("no diff command configured: %w", ErrUnavailable)
	}

	replacer := strings.NewReplacer("{original}", original, "{modified}", modified, "{title}", title)
	hasPaths := strings.Contains(p.Command, "{original}") || strings.Contains(p.Command, "{modified}")

	argv := make([]string, 0, len(fields)+2)
	for _, f := range fields {
		argv = append(argv, replacer.Replace(f))
	}
	if !hasPaths {
		argv = append(argv, original, modified)
	}
	return argv, nil
}

func startDetached(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
