// Package analysis inspects a proposed replacement before a human decides
// on it, flagging the ways agents tend to damage files they rewrite whole.
package analysis

import (
	"fmt"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
	"github.com/sprite-ai/agstage/internal/diff"
	"github.com/sprite-ai/agstage/internal/model"
)

// Finding is one observation about a proposal.
type Finding struct {
	Pass    string          `json:"pass"`
	Line    int             `json:"line,omitempty"` // line in the proposal, 0 if file-level
	Message string          `json:"message"`
	Risk    model.RiskLevel `json:"risk"`
}

func (f Finding) String() string {
	if f.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s", f.Pass, f.Line, f.Message)
	}
	return fmt.Sprintf("[%s] %s", f.Pass, f.Message)
}

// Input is what every pass sees: both versions and their diff.
type Input struct {
	Name   string
	Before string
	After  string
	Diff   *diff.File
}

// NewInput diffs before against after and wraps the result for the passes.
func NewInput(name, before, after string) (Input, error) {
	ds, err := diff.Compare(name, before, after, 0)
	if err != nil {
		return Input{}, err
	}
	return Input{Name: name, Before: before, After: after, Diff: ds.Files[0]}, nil
}

// Results holds all findings from running analysis passes.
type Results struct {
	Findings []Finding
}

// MaxRisk returns the highest risk level among all findings.
func (r *Results) MaxRisk() model.RiskLevel {
	max := model.RiskInfo
	for _, f := range r.Findings {
		if f.Risk > max {
			max = f.Risk
		}
	}
	return max
}

// ByRisk returns findings at or above minRisk.
func (r *Results) ByRisk(minRisk model.RiskLevel) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Risk >= minRisk {
			out = append(out, f)
		}
	}
	return out
}

// Summary returns a one-line summary of findings.
func (r *Results) Summary() string {
	if len(r.Findings) == 0 {
		return "No issues found"
	}

	counts := make(map[model.RiskLevel]int)
	for _, f := range r.Findings {
		counts[f.Risk]++
	}

	var parts []string
	for _, level := range []model.RiskLevel{model.RiskCritical, model.RiskHigh, model.RiskMedium, model.RiskLow, model.RiskInfo} {
		if c := counts[level]; c > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", c, level))
		}
	}
	return strings.Join(parts, ", ")
}

// Pass analyzes one proposal.
type Pass func(in Input) []Finding

type namedPass struct {
	name string
	run  Pass
}

var passes = []namedPass{
	{"empty", EmptyReplacementPass},
	{"elision", ElisionPass},
	{"shrinkage", ShrinkagePass},
	{"conflicts", ConflictMarkerPass},
	{"deps", NewDependencyPass},
	{"security", SecuritySurfacePass},
	{"anti_patterns", AntiPatternPass},
}

// PassNames lists the passes in the order Run executes them.
func PassNames() []string {
	names := make([]string, len(passes))
	for i, p := range passes {
		names[i] = p.name
	}
	return names
}

// Run executes every pass not named in skip.
func Run(in Input, skip []string) *Results {
	skipSet := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipSet[s] = true
	}

	results := &Results{}
	for _, p := range passes {
		if skipSet[p.name] {
			continue
		}
		results.Findings = append(results.Findings, p.run(in)...)
	}
	return results
}

type addedLine struct {
	text string
	line int
}

// added returns the lines the proposal introduces with their line numbers.
func added(f *diff.File) []addedLine {
	if f == nil {
		return nil
	}
	var out []addedLine
	for _, frag := range f.Fragments {
		n := int(frag.NewPosition)
		for _, l := range frag.Lines {
			switch l.Op {
			case gitdiff.OpAdd:
				out = append(out, addedLine{text: strings.TrimRight(l.Line, "\r\n"), line: n})
				n++
			case gitdiff.OpContext:
				n++
			}
		}
	}
	return out
}

// matchAdded reports each added line matched by check as a finding.
func matchAdded(in Input, pass string, risk model.RiskLevel, check func(string) string) []Finding {
	var findings []Finding
	for _, a := range added(in.Diff) {
		if msg := check(a.text); msg != "" {
			findings = append(findings, Finding{Pass: pass, Line: a.line, Message: msg, Risk: risk})
		}
	}
	return findings
}
