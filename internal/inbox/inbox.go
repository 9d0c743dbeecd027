// Package inbox watches a directory for proposal files dropped by agents
// and submits each one for review.
package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"github.com/sprite-ai/agstage/internal/logging"
	"github.com/sprite-ai/agstage/internal/model"
	"gopkg.in/yaml.v3"
)

// InvalidSuffix is appended to proposal files that cannot be decoded.
const InvalidSuffix = ".invalid"

const defaultDebounce = 100 * time.Millisecond

// ProposalFile is the on-disk shape of a dropped proposal.
type ProposalFile struct {
	Target  string `json:"target" yaml:"target"`
	Content string `json:"content" yaml:"content"`
}

// SubmitFunc hands a decoded proposal to the review controller. It may block
// until the reviewer is free; later files stay in the inbox meanwhile.
type SubmitFunc func(model.ChangeProposal) error

// Watcher consumes proposal files from a directory.
type Watcher struct {
	dir      string
	fs       afero.Fs
	submit   SubmitFunc
	log      *logging.Logger
	debounce time.Duration
}

// New creates a Watcher for dir. Files are read and removed through fs.
func New(fs afero.Fs, dir string, submit SubmitFunc, log *logging.Logger) *Watcher {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Watcher{
		dir:      dir,
		fs:       fs,
		submit:   submit,
		log:      log.WithComponent("inbox"),
		debounce: defaultDebounce,
	}
}

// IsProposalFile reports whether name has a proposal extension.
func IsProposalFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return !strings.HasPrefix(filepath.Base(name), ".")
	}
	return false
}

// Decode parses a proposal file, choosing the format from its extension.
func Decode(name string, data []byte) (model.ChangeProposal, error) {
	var pf ProposalFile
	var err error
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		err = json.Unmarshal(data, &pf)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &pf)
	default:
		return model.ChangeProposal{}, fmt.Errorf("%s: unsupported proposal format", name)
	}
	if err != nil {
		return model.ChangeProposal{}, fmt.Errorf("%s: %w", name, err)
	}
	if strings.TrimSpace(pf.Target) == "" {
		return model.ChangeProposal{}, fmt.Errorf("%s: missing target", name)
	}
	return model.ChangeProposal{TargetPath: pf.Target, Content: pf.Content}, nil
}

// Scan submits every proposal already in the directory, oldest name first.
func (w *Watcher) Scan() error {
	entries, err := afero.ReadDir(w.fs, w.dir)
	if err != nil {
		return fmt.Errorf("reading inbox: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && IsProposalFile(e.Name()) {
			names = append(names, filepath.Join(w.dir, e.Name()))
		}
	}
	sort.Strings(names)
	for _, name := range names {
		w.consume(name)
	}
	return nil
}

// Run scans the directory, then consumes new proposal files until ctx is
// done. Bursts of events for one file are debounced.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.fs.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating inbox: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.log.Info("watching inbox", "dir", w.dir)

	if err := w.Scan(); err != nil {
		return err
	}

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !IsProposalFile(ev.Name) {
				continue
			}
			pending[ev.Name] = true
			timer.Reset(w.debounce)

		case <-timer.C:
			names := make([]string, 0, len(pending))
			for name := range pending {
				names = append(names, name)
			}
			pending = make(map[string]bool)
			sort.Strings(names)
			for _, name := range names {
				w.consume(name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", "error", err.Error())
		}
	}
}

// consume decodes, removes and submits one proposal file.
func (w *Watcher) consume(path string) {
	data, err := afero.ReadFile(w.fs, path)
	if err != nil {
		// Already consumed by an earlier event.
		return
	}

	p, err := Decode(path, data)
	if err != nil {
		w.log.Warn("invalid proposal file", "path", path, "error", err.Error())
		if rerr := w.fs.Rename(path, path+InvalidSuffix); rerr != nil {
			w.log.Warn("failed to set aside invalid proposal", "path", path, "error", rerr.Error())
		}
		return
	}

	if err := w.fs.Remove(path); err != nil {
		w.log.Warn("failed to remove proposal file", "path", path, "error", err.Error())
		return
	}

	w.log.Info("proposal received", "path", path, "target", p.TargetPath)
	if err := w.submit(p); err != nil {
		var coded interface{ Code() string }
		code := ""
		if errors.As(err, &coded) {
			code = coded.Code()
		}
		w.log.Warn("proposal rejected by reviewer", "target", p.TargetPath, "code", code, "error", err.Error())
	}
}
