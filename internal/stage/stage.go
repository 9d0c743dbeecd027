// Package stage persists proposed file content to uniquely named staging
// artifacts that live until a review reaches a terminal state.
package stage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/sprite-ai/agstage/internal/model"
)

// Prefix marks every file the Stager creates.
const Prefix = "agstage-"

// MaxNameTail caps how much of the target's base name a staging name keeps.
const MaxNameTail = 64

// Stager writes proposals into a scratch directory.
type Stager struct {
	fs    afero.Fs
	dir   string
	now   func() time.Time
	newID func() string
}

// New creates a Stager that writes into dir on fs.
func New(fs afero.Fs, dir string) *Stager {
	return &Stager{
		fs:    fs,
		dir:   dir,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

// Dir returns the staging directory.
func (s *Stager) Dir() string {
	return s.dir
}

// Stage writes p's content to a fresh artifact. On any error the partial
// artifact is removed and no StagedChange is returned.
func (s *Stager) Stage(p model.ChangeProposal) (model.StagedChange, error) {
	if err := s.fs.MkdirAll(s.dir, 0o700); err != nil {
		return model.StagedChange{}, fmt.Errorf("creating staging dir %s: %w", s.dir, err)
	}

	// The tail of the target's name is kept so diff tools pick the right
	// syntax.
	name := Prefix + s.newID() + "-" + NameTail(filepath.Base(p.TargetPath), MaxNameTail)
	path := filepath.Join(s.dir, name)

	f, err := s.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return model.StagedChange{}, fmt.Errorf("creating staging file: %w", err)
	}

	if err := writeAll(f, []byte(p.Content)); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(path)
		return model.StagedChange{}, fmt.Errorf("writing staging file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(path)
		return model.StagedChange{}, fmt.Errorf("closing staging file: %w", err)
	}

	return model.StagedChange{
		TargetPath:  p.TargetPath,
		StagingPath: path,
		CreatedAt:   s.now(),
	}, nil
}

// NameTail returns at most max bytes from the end of name, cut on a rune
// boundary so the extension survives.
func NameTail(name string, max int) string {
	if len(name) <= max {
		return name
	}
	i := len(name) - max
	for i < len(name) && !utf8.RuneStart(name[i]) {
		i++
	}
	return name[i:]
}

func writeAll(f afero.File, data []byte) error {
	n, err := f.Write(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("short write: %d of %d bytes", n, len(data))
	}
	return f.Sync()
}

// Read returns the staged content.
func (s *Stager) Read(sc model.StagedChange) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, sc.StagingPath)
	if err != nil {
		return nil, fmt.Errorf("reading staging file: %w", err)
	}
	return data, nil
}

// Remove deletes the staging artifact.
func (s *Stager) Remove(sc model.StagedChange) error {
	if err := s.fs.Remove(sc.StagingPath); err != nil {
		return fmt.Errorf("removing staging file: %w", err)
	}
	return nil
}

// Exists reports whether the artifact is still on disk.
func (s *Stager) Exists(sc model.StagedChange) bool {
	ok, err := afero.Exists(s.fs, sc.StagingPath)
	return err == nil && ok
}

// Sweep removes artifacts older than maxAge left behind by crashed runs.
// It must not run while a review is live.
func (s *Stager) Sweep(maxAge time.Duration) (int, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("listing staging dir: %w", err)
	}

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), Prefix) {
			continue
		}
		if e.ModTime().After(cutoff) {
			continue
		}
		if err := s.fs.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			return removed, fmt.Errorf("removing %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}
