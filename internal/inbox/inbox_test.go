package inbox

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/sprite-ai/agstage/internal/model"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		data    string
		want    model.ChangeProposal
		wantErr bool
	}{
		{"json", "p.json", `{"target":"a.go","content":"package a\n"}`, model.ChangeProposal{TargetPath: "a.go", Content: "package a\n"}, false},
		{"yaml", "p.yaml", "target: b.txt\ncontent: |\n  hello\n  world\n", model.ChangeProposal{TargetPath: "b.txt", Content: "hello\nworld\n"}, false},
		{"yml", "P.YML", "target: c.txt\ncontent: \"\"\n", model.ChangeProposal{TargetPath: "c.txt"}, false},
		{"missing target", "p.json", `{"content":"x"}`, model.ChangeProposal{}, true},
		{"bad json", "p.json", `{`, model.ChangeProposal{}, true},
		{"unknown ext", "p.txt", `target: x`, model.ChangeProposal{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.file, []byte(tt.data))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestIsProposalFile(t *testing.T) {
	tests := map[string]bool{
		"a.json":         true,
		"a.yaml":         true,
		"a.yml":          true,
		"a.json.invalid": false,
		".a.json":        false,
		"a.txt":          false,
	}
	for name, want := range tests {
		if got := IsProposalFile(name); got != want {
			t.Errorf("IsProposalFile(%q) = %v", name, got)
		}
	}
}

func TestScanConsumesInOrder(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/inbox/02.json", []byte(`{"target":"b","content":"2"}`), 0o644)
	_ = afero.WriteFile(fs, "/inbox/01.yaml", []byte("target: a\ncontent: \"1\"\n"), 0o644)
	_ = afero.WriteFile(fs, "/inbox/bad.json", []byte(`nope`), 0o644)
	_ = afero.WriteFile(fs, "/inbox/notes.txt", []byte(`ignored`), 0o644)

	var got []string
	w := New(fs, "/inbox", func(p model.ChangeProposal) error {
		got = append(got, p.TargetPath)
		return nil
	}, nil)

	if err := w.Scan(); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("submitted = %v", got)
	}
	for _, consumed := range []string{"/inbox/01.yaml", "/inbox/02.json", "/inbox/bad.json"} {
		if ok, _ := afero.Exists(fs, consumed); ok {
			t.Errorf("%s not consumed", consumed)
		}
	}
	if ok, _ := afero.Exists(fs, "/inbox/bad.json"+InvalidSuffix); !ok {
		t.Error("invalid proposal not set aside")
	}
	if ok, _ := afero.Exists(fs, "/inbox/notes.txt"); !ok {
		t.Error("unrelated file removed")
	}
}

func TestScanLeavesLaterFilesWhileSubmitBlocks(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/inbox/01.json", []byte(`{"target":"a","content":"1"}`), 0o644)
	_ = afero.WriteFile(fs, "/inbox/02.json", []byte(`{"target":"b","content":"2"}`), 0o644)

	started := make(chan string)
	release := make(chan struct{})
	w := New(fs, "/inbox", func(p model.ChangeProposal) error {
		started <- p.TargetPath
		<-release
		return nil
	}, nil)

	done := make(chan error, 1)
	go func() { done <- w.Scan() }()

	if got := <-started; got != "a" {
		t.Fatalf("first submitted = %q", got)
	}
	if ok, _ := afero.Exists(fs, "/inbox/02.json"); !ok {
		t.Error("second proposal consumed while the first was still under review")
	}
	release <- struct{}{}

	if got := <-started; got != "b" {
		t.Fatalf("second submitted = %q", got)
	}
	release <- struct{}{}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestRunPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	submitted := make(chan model.ChangeProposal, 4)
	w := New(afero.NewOsFs(), dir, func(p model.ChangeProposal) error {
		submitted <- p
		return nil
	}, nil)
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := w.Run(ctx); err != nil {
			t.Error(err)
		}
	}()
	defer func() { cancel(); wg.Wait() }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "drop.json")
	if err := os.WriteFile(path, []byte(`{"target":"x.go","content":"package x\n"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-submitted:
		if p.TargetPath != "x.go" || p.Content != "package x\n" {
			t.Errorf("proposal = %+v", p)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("proposal never submitted")
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("proposal file not removed")
	}
}
