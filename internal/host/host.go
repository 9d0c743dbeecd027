// Package host implements the document host agstage reviews against: a
// project directory whose files can be read, written atomically, and held
// open as in-memory buffers the way an editor holds them.
package host

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/spf13/afero"
	"github.com/sprite-ai/agstage/internal/model"
)

var (
	ErrNotFound    = model.ErrNotFound
	ErrNotText     = model.ErrNotText
	ErrUnavailable = errors.New("document host unavailable")
)

// maxTempTail caps the part of a target's name reused in its temp file, so a
// target near the file name limit can still be written.
const maxTempTail = 64

// sniffLen is how much of a file is inspected for binary content.
const sniffLen = 8000

type buffer struct {
	text  string
	dirty bool
}

// Workspace is a filesystem-backed document host rooted at a project dir.
type Workspace struct {
	fs     afero.Fs
	root   string
	ignore map[string]bool

	mu      sync.Mutex
	buffers map[string]*buffer
	active  string
	closed  bool
}

// NewWorkspace creates a Workspace over fs rooted at root. Directories named
// in ignore are skipped when enumerating the project.
func NewWorkspace(fsys afero.Fs, root string, ignore []string) *Workspace {
	ig := make(map[string]bool, len(ignore))
	for _, name := range ignore {
		ig[name] = true
	}
	return &Workspace{
		fs:      fsys,
		root:    filepath.Clean(root),
		ignore:  ig,
		buffers: make(map[string]*buffer),
	}
}

// Root returns the project root.
func (w *Workspace) Root() string {
	return w.root
}

// Abs resolves path against the project root.
func (w *Workspace) Abs(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(w.root, path)
}

// Rel returns path relative to the project root when it is inside it.
func (w *Workspace) Rel(path string) string {
	rel, err := filepath.Rel(w.root, w.Abs(path))
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

// ReadText returns the current text of path. An open buffer wins over disk.
func (w *Workspace) ReadText(path string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return "", ErrUnavailable
	}
	abs := w.Abs(path)
	if b, ok := w.buffers[abs]; ok {
		return b.text, nil
	}
	return w.readDisk(abs)
}

func (w *Workspace) readDisk(abs string) (string, error) {
	info, err := w.fs.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s: %w", abs, ErrNotFound)
		}
		return "", fmt.Errorf("stat %s: %w", abs, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory: %w", abs, ErrNotText)
	}
	data, err := afero.ReadFile(w.fs, abs)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", abs, err)
	}
	if !IsText(data) {
		return "", fmt.Errorf("%s: %w", abs, ErrNotText)
	}
	return string(data), nil
}

// IsText reports whether data looks like plain text: no NUL byte in the
// leading window and valid UTF-8.
func IsText(data []byte) bool {
	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return false
	}
	return utf8.Valid(data)
}

// WriteText replaces the content of path atomically. An open buffer is
// refreshed and marked clean.
func (w *Workspace) WriteText(path, text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrUnavailable
	}
	abs := w.Abs(path)
	if err := w.atomicWrite(abs, []byte(text)); err != nil {
		return err
	}
	if b, ok := w.buffers[abs]; ok {
		b.text = text
		b.dirty = false
	}
	return nil
}

func nameTail(name string, max int) string {
	if len(name) <= max {
		return name
	}
	i := len(name) - max
	for i < len(name) && !utf8.RuneStart(name[i]) {
		i++
	}
	return name[i:]
}

func (w *Workspace) atomicWrite(abs string, data []byte) error {
	mode := os.FileMode(0o644)
	if info, err := w.fs.Stat(abs); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := afero.TempFile(w.fs, filepath.Dir(abs), "."+nameTail(filepath.Base(abs), maxTempTail)+".tmp-")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = w.fs.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = w.fs.Remove(tmpName)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = w.fs.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := w.fs.Chmod(tmpName, mode); err != nil {
		_ = w.fs.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := w.fs.Rename(tmpName, abs); err != nil {
		_ = w.fs.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", abs, err)
	}
	return nil
}

// IsOpen reports whether path has an open buffer.
func (w *Workspace) IsOpen(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.buffers[w.Abs(path)]
	return ok
}

// OpenOrFocus opens path into a buffer if needed and makes it active.
func (w *Workspace) OpenOrFocus(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrUnavailable
	}
	abs := w.Abs(path)
	if _, ok := w.buffers[abs]; !ok {
		text, err := w.readDisk(abs)
		if err != nil {
			return err
		}
		w.buffers[abs] = &buffer{text: text}
	}
	w.active = abs
	return nil
}

// CloseIfOpen drops the buffer for path, discarding unsaved edits.
func (w *Workspace) CloseIfOpen(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrUnavailable
	}
	abs := w.Abs(path)
	delete(w.buffers, abs)
	if w.active == abs {
		w.active = ""
	}
	return nil
}

// Edit replaces an open buffer's text without saving it.
func (w *Workspace) Edit(path, text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	b, ok := w.buffers[w.Abs(path)]
	if !ok {
		return fmt.Errorf("%s is not open: %w", path, ErrNotFound)
	}
	b.text = text
	b.dirty = true
	return nil
}

// Dirty reports whether an open buffer has unsaved edits.
func (w *Workspace) Dirty(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.buffers[w.Abs(path)]
	return ok && b.dirty
}

// Active returns the path of the focused document, or "".
func (w *Workspace) Active() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// Close makes every further call fail with ErrUnavailable.
func (w *Workspace) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.buffers = make(map[string]*buffer)
	w.active = ""
}

// Documents lists the text files under the project root, sorted.
func (w *Workspace) Documents() ([]string, error) {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return nil, ErrUnavailable
	}

	var docs []string
	err := afero.Walk(w.fs, w.root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if path != w.root && w.ignore[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		docs = append(docs, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", w.root, err)
	}
	sort.Strings(docs)
	return docs, nil
}

// Resolve finds project documents matching name: the document at that path,
// or every document whose relative path ends with name.
func (w *Workspace) Resolve(name string) ([]string, error) {
	docs, err := w.Documents()
	if err != nil {
		return nil, err
	}

	name = filepath.Clean(name)
	abs := w.Abs(name)
	var matches []string
	for _, d := range docs {
		if d == abs {
			return []string{d}, nil
		}
		rel := w.Rel(d)
		if rel == name || strings.HasSuffix(rel, string(filepath.Separator)+name) {
			matches = append(matches, d)
		}
	}
	return matches, nil
}
