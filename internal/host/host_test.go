package host

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func newTestWorkspace(t *testing.T) (*Workspace, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"/proj/a.txt":             "alpha\n",
		"/proj/src/main.go":       "package main\n",
		"/proj/src/util/a.txt":    "nested\n",
		"/proj/.git/config":       "[core]\n",
		"/proj/node_modules/x.js": "x\n",
	}
	for path, content := range files {
		if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	_ = afero.WriteFile(fs, "/proj/bin.dat", []byte{0x7f, 'E', 'L', 'F', 0, 1}, 0o644)
	return NewWorkspace(fs, "/proj", []string{".git", "node_modules"}), fs
}

func TestReadText(t *testing.T) {
	w, _ := newTestWorkspace(t)

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr error
	}{
		{"relative", "a.txt", "alpha\n", nil},
		{"absolute", "/proj/src/main.go", "package main\n", nil},
		{"missing", "nope.txt", "", ErrNotFound},
		{"binary", "bin.dat", "", ErrNotText},
		{"directory", "src", "", ErrNotText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := w.ReadText(tt.path)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsText(t *testing.T) {
	tests := []struct {
		data []byte
		want bool
	}{
		{[]byte("hello\n"), true},
		{[]byte(""), true},
		{[]byte("caf\xc3\xa9"), true},
		{[]byte("a\x00b"), false},
		{[]byte{0xff, 0xfe, 'a'}, false},
	}
	for _, tt := range tests {
		if got := IsText(tt.data); got != tt.want {
			t.Errorf("IsText(%q) = %v, want %v", tt.data, got, tt.want)
		}
	}
}

func TestWriteTextAtomic(t *testing.T) {
	w, fs := newTestWorkspace(t)
	_ = fs.Chmod("/proj/a.txt", 0o600)

	if err := w.WriteText("a.txt", "beta\n"); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	data, _ := afero.ReadFile(fs, "/proj/a.txt")
	if string(data) != "beta\n" {
		t.Errorf("content = %q", data)
	}
	info, _ := fs.Stat("/proj/a.txt")
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	entries, _ := afero.ReadDir(fs, "/proj")
	for _, e := range entries {
		if len(e.Name()) > 0 && e.Name()[0] == '.' && e.Name() != ".git" {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestWriteTextReadOnly(t *testing.T) {
	base := afero.NewMemMapFs()
	_ = afero.WriteFile(base, "/proj/a.txt", []byte("alpha\n"), 0o644)
	w := NewWorkspace(afero.NewReadOnlyFs(base), "/proj", nil)

	if err := w.WriteText("a.txt", "beta\n"); err == nil {
		t.Fatal("expected error on read-only fs")
	}
	data, _ := afero.ReadFile(base, "/proj/a.txt")
	if string(data) != "alpha\n" {
		t.Errorf("target modified: %q", data)
	}
}

func TestBuffers(t *testing.T) {
	w, _ := newTestWorkspace(t)

	if w.IsOpen("a.txt") {
		t.Fatal("a.txt open before OpenOrFocus")
	}
	if err := w.OpenOrFocus("a.txt"); err != nil {
		t.Fatalf("OpenOrFocus: %v", err)
	}
	if !w.IsOpen("/proj/a.txt") {
		t.Error("absolute path not recognised as open")
	}
	if w.Active() != "/proj/a.txt" {
		t.Errorf("Active = %q", w.Active())
	}

	if err := w.Edit("a.txt", "unsaved\n"); err != nil {
		t.Fatal(err)
	}
	if !w.Dirty("a.txt") {
		t.Error("buffer not dirty after Edit")
	}
	if got, _ := w.ReadText("a.txt"); got != "unsaved\n" {
		t.Errorf("ReadText = %q, want buffer text", got)
	}

	if err := w.WriteText("a.txt", "saved\n"); err != nil {
		t.Fatal(err)
	}
	if w.Dirty("a.txt") {
		t.Error("buffer dirty after WriteText")
	}

	if err := w.CloseIfOpen("a.txt"); err != nil {
		t.Fatal(err)
	}
	if w.IsOpen("a.txt") || w.Active() != "" {
		t.Error("buffer survived CloseIfOpen")
	}
	if err := w.CloseIfOpen("a.txt"); err != nil {
		t.Errorf("CloseIfOpen on closed buffer: %v", err)
	}

	if err := w.OpenOrFocus("missing.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("OpenOrFocus missing = %v", err)
	}
}

func TestClosedWorkspace(t *testing.T) {
	w, _ := newTestWorkspace(t)
	w.Close()

	if _, err := w.ReadText("a.txt"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("ReadText = %v", err)
	}
	if err := w.WriteText("a.txt", "x"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("WriteText = %v", err)
	}
	if _, err := w.Documents(); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Documents = %v", err)
	}
}

func TestDocumentsSkipsIgnored(t *testing.T) {
	w, _ := newTestWorkspace(t)

	docs, err := w.Documents()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"/proj/a.txt", "/proj/bin.dat", "/proj/src/main.go", "/proj/src/util/a.txt"}
	if len(docs) != len(want) {
		t.Fatalf("docs = %v, want %v", docs, want)
	}
	for i := range want {
		if docs[i] != want[i] {
			t.Errorf("docs[%d] = %q, want %q", i, docs[i], want[i])
		}
	}
}

func TestResolve(t *testing.T) {
	w, _ := newTestWorkspace(t)

	tests := []struct {
		name string
		want int
	}{
		{"a.txt", 1},
		{"util/a.txt", 1},
		{"main.go", 1},
		{"src/main.go", 1},
		{"missing.go", 0},
	}
	for _, tt := range tests {
		got, err := w.Resolve(tt.name)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", tt.name, err)
		}
		if len(got) != tt.want {
			t.Errorf("Resolve(%q) = %v, want %d matches", tt.name, got, tt.want)
		}
	}
}

func TestWriteTextLongName(t *testing.T) {
	dir := t.TempDir()
	name := strings.Repeat("b", 230) + ".go"
	if err := os.WriteFile(filepath.Join(dir, name), []byte("package b\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := NewWorkspace(afero.NewOsFs(), dir, nil)
	if err := w.WriteText(name, "package b // new\n"); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, name))
	if string(data) != "package b // new\n" {
		t.Errorf("content = %q", data)
	}
}
