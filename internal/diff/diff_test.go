package diff

import (
	"errors"
	"os/exec"
	"strings"
	"testing"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
)

const sampleDiff = `diff --git a/hello.go b/hello.go
new file mode 100644
index 0000000..e69de29
--- /dev/null
+++ b/hello.go
@@ -0,0 +1,11 @@
+package main
+
+import "fmt"
+
+func main() {
+	fmt.Println("hello")
+}
+
+func add(a, b int) int {
+	return a + b
+}
diff --git a/readme.md b/readme.md
index abc1234..def5678 100644
--- a/readme.md
+++ b/readme.md
@@ -1,3 +1,4 @@
 # Project

-Old description
+New description
+Added line
`

func TestParse(t *testing.T) {
	ds, err := Parse(sampleDiff)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(ds.Files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(ds.Files))
	}

	f0 := ds.Files[0]
	if !f0.IsNew {
		t.Error("expected hello.go to be new")
	}
	if f0.Name() != "hello.go" {
		t.Errorf("expected name 'hello.go', got %q", f0.Name())
	}
	if f0.AddedLines != 11 {
		t.Errorf("expected 11 added lines, got %d", f0.AddedLines)
	}

	f1 := ds.Files[1]
	if f1.AddedLines != 2 || f1.DeletedLines != 1 {
		t.Errorf("readme.md: +%d -%d, want +2 -1", f1.AddedLines, f1.DeletedLines)
	}

	files, added, deleted := ds.Stats()
	if files != 2 || added != 13 || deleted != 1 {
		t.Errorf("stats = %d files +%d -%d", files, added, deleted)
	}
}

func TestParseEmpty(t *testing.T) {
	ds, err := Parse("")
	if err != nil {
		t.Fatalf("Parse empty failed: %v", err)
	}
	if len(ds.Files) != 0 {
		t.Errorf("expected 0 files, got %d", len(ds.Files))
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name        string
		before      string
		after       string
		context     int
		wantAdded   int
		wantDeleted int
		wantFrags   int
	}{
		{"identical", "a\nb\n", "a\nb\n", 3, 0, 0, 0},
		{"single change", "a\nb\nc\n", "a\nB\nc\n", 3, 1, 1, 1},
		{"append", "a\n", "a\nb\n", 3, 1, 0, 1},
		{"empty original", "", "x\ny\n", 3, 2, 0, 1},
		{"empty replacement", "x\ny\n", "", 3, 0, 2, 1},
		{"missing trailing newline", "a\nb", "a\nc", 3, 1, 1, 1},
		{"adds trailing newline", "a", "a\n", 3, 1, 1, 1},
		{
			"distant changes split",
			"1\n2\n3\n4\n5\n6\n7\n8\n9\n10\n11\n12\n",
			"X\n2\n3\n4\n5\n6\n7\n8\n9\n10\n11\nY\n",
			2, 2, 2, 2,
		},
		{
			"close changes merge",
			"1\n2\n3\n4\n5\n6\n",
			"X\n2\n3\n4\n5\nY\n",
			2, 2, 2, 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := Compare("dir/file.txt", tt.before, tt.after, tt.context)
			if err != nil {
				t.Fatalf("Compare: %v", err)
			}
			if len(ds.Files) != 1 {
				t.Fatalf("got %d files", len(ds.Files))
			}
			f := ds.Files[0]
			if f.Name() != "dir/file.txt" {
				t.Errorf("name = %q", f.Name())
			}
			if f.AddedLines != tt.wantAdded || f.DeletedLines != tt.wantDeleted {
				t.Errorf("+%d -%d, want +%d -%d\n%s", f.AddedLines, f.DeletedLines, tt.wantAdded, tt.wantDeleted, ds.Raw)
			}
			if len(f.Fragments) != tt.wantFrags {
				t.Errorf("fragments = %d, want %d\n%s", len(f.Fragments), tt.wantFrags, ds.Raw)
			}
			if ds.Empty() != (tt.wantFrags == 0) {
				t.Errorf("Empty() = %v", ds.Empty())
			}
		})
	}
}

func TestCompareRoundTrip(t *testing.T) {
	before := "package main\n\nfunc a() {}\n\nfunc b() {}\n\nfunc c() {}\n"
	after := "package main\n\nfunc a() { return }\n\nfunc b() {}\n\nfunc d() {}\n"

	ds, err := Compare("main.go", before, after, 1)
	if err != nil {
		t.Fatal(err)
	}

	// Applying the parsed fragments must reproduce the proposal.
	files, _, err := gitdiff.Parse(strings.NewReader(ds.Raw))
	if err != nil {
		t.Fatal(err)
	}
	var out strings.Builder
	if err := gitdiff.Apply(&out, strings.NewReader(before), files[0]); err != nil {
		t.Fatalf("Apply: %v\n%s", err, ds.Raw)
	}
	if out.String() != after {
		t.Errorf("applied = %q, want %q", out.String(), after)
	}
}

func TestCompareNoNewlineMarker(t *testing.T) {
	ds, err := Compare("a.txt", "a\nb", "a\nc", 3)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(ds.Raw, noNewline) != 2 {
		t.Errorf("expected two no-newline markers:\n%s", ds.Raw)
	}
}

func TestHunkRange(t *testing.T) {
	tests := []struct {
		before, count int
		want          string
	}{
		{0, 0, "0,0"},
		{4, 0, "4,0"},
		{0, 1, "1"},
		{2, 3, "3,3"},
	}
	for _, tt := range tests {
		if got := hunkRange(tt.before, tt.count); got != tt.want {
			t.Errorf("hunkRange(%d, %d) = %q, want %q", tt.before, tt.count, got, tt.want)
		}
	}
}

func TestCommandPresenterArgs(t *testing.T) {
	tests := []struct {
		command string
		want    []string
	}{
		{"meld", []string{"meld", "/o", "/m"}},
		{"code --diff --wait", []string{"code", "--diff", "--wait", "/o", "/m"}},
		{"vimdiff {modified} {original}", []string{"vimdiff", "/m", "/o"}},
		{"tool --label={title} {original} {modified}", []string{"tool", "--label=T", "/o", "/m"}},
	}
	for _, tt := range tests {
		p := NewCommandPresenter(tt.command)
		got, err := p.Args("/o", "/m", "T")
		if err != nil {
			t.Fatalf("%q: %v", tt.command, err)
		}
		if strings.Join(got, " ") != strings.Join(tt.want, " ") {
			t.Errorf("%q: args = %v, want %v", tt.command, got, tt.want)
		}
	}
}

func TestCommandPresenterUnavailable(t *testing.T) {
	p := NewCommandPresenter("")
	if err := p.Present("/o", "/m", "T"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("empty command: %v", err)
	}

	p = NewCommandPresenter("no-such-diff-tool")
	p.lookPath = func(string) (string, error) { return "", exec.ErrNotFound }
	if err := p.Present("/o", "/m", "T"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("missing binary: %v", err)
	}

	var started *exec.Cmd
	p = NewCommandPresenter("meld")
	p.lookPath = func(name string) (string, error) { return "/usr/bin/" + name, nil }
	p.start = func(cmd *exec.Cmd) error { started = cmd; return nil }
	if err := p.Present("/o", "/m", "T"); err != nil {
		t.Fatalf("Present: %v", err)
	}
	if started == nil || started.Path != "/usr/bin/meld" {
		t.Errorf("started = %+v", started)
	}
}
