package analysis

import (
	"strings"
	"testing"

	"github.com/sprite-ai/agstage/internal/model"
)

func mustInput(t *testing.T, name, before, after string) Input {
	t.Helper()
	in, err := NewInput(name, before, after)
	if err != nil {
		t.Fatalf("NewInput: %v", err)
	}
	return in
}

func numbered(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		b.WriteString("line ")
		b.WriteString(strings.Repeat("x", i%7))
		b.WriteString("\n")
	}
	return b.String()
}

func passNames(fs []Finding) []string {
	var out []string
	for _, f := range fs {
		out = append(out, f.Pass)
	}
	return out
}

func TestEmptyReplacementPass(t *testing.T) {
	tests := []struct {
		name          string
		before, after string
		want          int
	}{
		{"blanked", "a\nb\n", "", 1},
		{"whitespace only", "a\n", "  \n\n", 1},
		{"already empty", "", "", 0},
		{"normal edit", "a\n", "b\n", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EmptyReplacementPass(mustInput(t, "f.txt", tt.before, tt.after))
			if len(got) != tt.want {
				t.Fatalf("findings = %v, want %d", got, tt.want)
			}
			if tt.want > 0 && got[0].Risk != model.RiskCritical {
				t.Errorf("risk = %v", got[0].Risk)
			}
		})
	}
}

func TestElisionPass(t *testing.T) {
	before := "package main\n\nfunc a() {}\n\nfunc b() {}\n"
	tests := []struct {
		name  string
		after string
		want  int
	}{
		{"go rest of code", "package main\n\n// ... rest of code unchanged\n", 1},
		{"python existing", "def a():\n    # ... existing code ...\n", 1},
		{"rest of file", "package main\n// rest of the file\n", 1},
		{"bare ellipsis", "package main\n...\n", 1},
		{"html", "<div>\n<!-- ... remaining markup ... -->\n", 1},
		{"ordinary comment", "package main\n\n// a helper\nfunc a() {}\n", 0},
		{"variadic", "package main\nfunc f(args ...int) {}\n", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ElisionPass(mustInput(t, "main.go", before, tt.after))
			if len(got) != tt.want {
				t.Errorf("findings = %v, want %d", got, tt.want)
			}
		})
	}
}

func TestElisionIgnoresUnchangedLines(t *testing.T) {
	before := "a\n// ... rest of code\nb\n"
	after := "a\n// ... rest of code\nc\n"
	if got := ElisionPass(mustInput(t, "f.go", before, after)); len(got) != 0 {
		t.Errorf("pre-existing placeholder flagged: %v", got)
	}
}

func TestShrinkagePass(t *testing.T) {
	tests := []struct {
		name          string
		before, after string
		want          int
	}{
		{"halved sizeable file", numbered(40), numbered(10), 1},
		{"small file", numbered(10), numbered(2), 0},
		{"modest trim", numbered(40), numbered(30), 0},
		{"emptied", numbered(40), "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShrinkagePass(Input{Before: tt.before, After: tt.after})
			if len(got) != tt.want {
				t.Errorf("findings = %v, want %d", got, tt.want)
			}
		})
	}
}

func TestConflictMarkerPass(t *testing.T) {
	after := "a\n<<<<<<< HEAD\nb\n=======\nc\n>>>>>>> branch\n"
	got := ConflictMarkerPass(mustInput(t, "f.txt", "a\n", after))
	if len(got) != 3 {
		t.Fatalf("findings = %v, want 3", got)
	}
	if got[0].Line != 2 {
		t.Errorf("first marker line = %d, want 2", got[0].Line)
	}
}

func TestNewDependencyPass(t *testing.T) {
	before := "module example.com/app\n\ngo 1.21\n\nrequire (\n\tgithub.com/existing/dep v1.0.0\n)\n"
	after := "module example.com/app\n\ngo 1.21\n\nrequire (\n\tgithub.com/existing/dep v1.0.0\n\tgithub.com/newdep/foo v1.2.3\n\tgithub.com/another/bar v0.1.0\n)\n"

	got := NewDependencyPass(mustInput(t, "go.mod", before, after))
	if len(got) != 2 {
		t.Fatalf("findings = %v, want 2", got)
	}
	if !strings.Contains(got[0].Message, "github.com/newdep/foo") {
		t.Errorf("message = %q", got[0].Message)
	}

	if got := NewDependencyPass(mustInput(t, "main.go", before, after)); len(got) != 0 {
		t.Errorf("non-manifest flagged: %v", got)
	}
}

func TestParseDepLine(t *testing.T) {
	tests := []struct {
		line, eco, want string
	}{
		{`"lodash": "^4.17.21",`, "npm", "lodash"},
		{`"dependencies": {`, "npm", ""},
		{`"name": "app",`, "npm", ""},
		{`requests>=2.0`, "pip", "requests"},
		{`# comment`, "pip", ""},
		{`serde = "1.0"`, "cargo", "serde"},
		{`[dependencies]`, "cargo", ""},
		{`gem 'rails', '~> 7.0'`, "gem", "rails"},
		{`require github.com/x/y v1.0.0`, "go", "github.com/x/y"},
		{`go 1.21`, "go", ""},
	}
	for _, tt := range tests {
		if got := parseDepLine(tt.line, tt.eco); got != tt.want {
			t.Errorf("parseDepLine(%q, %s) = %q, want %q", tt.line, tt.eco, got, tt.want)
		}
	}
}

func TestSecuritySurfacePass(t *testing.T) {
	after := strings.Join([]string{
		`package main`,
		`const apiKey = "sk-live-1234567890abcdef"`,
		`var cfg = tls.Config{InsecureSkipVerify: true}`,
		`cmd := exec.Command("sh", "-c", input)`,
		`// exec.Command in a comment`,
		`fmt.Println("hello")`,
	}, "\n") + "\n"

	got := SecuritySurfacePass(mustInput(t, "main.go", "package main\n", after))
	if len(got) != 3 {
		t.Fatalf("findings = %v, want 3", got)
	}
	if got[0].Risk != model.RiskCritical {
		t.Errorf("secret risk = %v", got[0].Risk)
	}
}

func TestAntiPatternPass(t *testing.T) {
	after := strings.Join([]string{
		`try:`,
		`    run()`,
		`except:`,
		`    pass`,
		`# TODO: handle errors`,
		`# def old_handler():`,
	}, "\n") + "\n"

	got := AntiPatternPass(mustInput(t, "app.py", "", after))
	if len(got) != 3 {
		t.Fatalf("findings = %v, want 3", got)
	}
}

func TestDuplicateBlock(t *testing.T) {
	block := "x := load()\ny := parse(x)\nz := check(y)\nsave(z)\n"
	after := block + "\n" + block

	got := checkDuplication(mustInput(t, "f.go", "", after))
	if len(got) != 1 {
		t.Fatalf("findings = %v, want 1", got)
	}
	if got[0].Line != 6 {
		t.Errorf("duplicate reported at line %d, want 6", got[0].Line)
	}
}

func TestRun(t *testing.T) {
	before := numbered(30)
	after := "// ... rest of code\n"

	res := Run(mustInput(t, "f.go", before, after), nil)
	names := passNames(res.Findings)
	if len(names) < 2 {
		t.Fatalf("findings = %v", res.Findings)
	}
	if res.MaxRisk() != model.RiskCritical {
		t.Errorf("MaxRisk = %v", res.MaxRisk())
	}
	if !strings.Contains(res.Summary(), "critical") {
		t.Errorf("Summary = %q", res.Summary())
	}

	skipped := Run(mustInput(t, "f.go", before, after), PassNames())
	if len(skipped.Findings) != 0 {
		t.Errorf("skipping every pass left %v", skipped.Findings)
	}
	if skipped.Summary() != "No issues found" {
		t.Errorf("Summary = %q", skipped.Summary())
	}
}
