// Package preview builds what a reviewer sees for a staged proposal: the
// unified diff against the original and the analysis findings.
package preview

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sprite-ai/agstage/internal/analysis"
	"github.com/sprite-ai/agstage/internal/diff"
)

// Reader reads document text by path.
type Reader interface {
	ReadText(path string) (string, error)
}

// Preview is one rendered proposal.
type Preview struct {
	Title       string             `json:"title"`
	Name        string             `json:"name"`
	Original    string             `json:"original"`
	Modified    string             `json:"modified"`
	Unified     string             `json:"diff"`
	Added       int                `json:"added"`
	Deleted     int                `json:"deleted"`
	BeforeBytes int                `json:"before_bytes"`
	AfterBytes  int                `json:"after_bytes"`
	Truncated   bool               `json:"truncated,omitempty"`
	Risk        string             `json:"risk"`
	Findings    []analysis.Finding `json:"findings"`

	// Before and After are the compared texts.
	Before  string            `json:"-"`
	After   string            `json:"-"`
	File    *diff.File        `json:"-"`
	Results *analysis.Results `json:"-"`
}

// Identical reports whether the proposal changes nothing.
func (p *Preview) Identical() bool {
	return p.Added == 0 && p.Deleted == 0
}

// Builder reads both versions and produces a Preview.
type Builder struct {
	Reader       Reader
	Rel          func(string) string // display name for the original path
	ContextLines int
	MaxLines     int      // 0 means unlimited
	Skip         []string // analysis passes to skip
}

// Build diffs modified against original.
func (b *Builder) Build(original, modified, title string) (*Preview, error) {
	before, err := b.Reader.ReadText(original)
	if err != nil {
		return nil, fmt.Errorf("reading original: %w", err)
	}
	after, err := b.Reader.ReadText(modified)
	if err != nil {
		return nil, fmt.Errorf("reading proposal: %w", err)
	}

	name := filepath.Base(original)
	if b.Rel != nil {
		name = b.Rel(original)
	}

	ds, err := diff.Compare(name, before, after, b.ContextLines)
	if err != nil {
		return nil, fmt.Errorf("comparing: %w", err)
	}
	in, err := analysis.NewInput(name, before, after)
	if err != nil {
		return nil, fmt.Errorf("analyzing: %w", err)
	}
	results := analysis.Run(in, b.Skip)

	f := ds.Files[0]
	p := &Preview{
		Title:       title,
		Name:        name,
		Original:    original,
		Modified:    modified,
		Unified:     ds.Raw,
		Added:       f.AddedLines,
		Deleted:     f.DeletedLines,
		BeforeBytes: len(before),
		AfterBytes:  len(after),
		Risk:        results.MaxRisk().String(),
		Findings:    results.Findings,
		Before:      before,
		After:       after,
		File:        f,
		Results:     results,
	}
	if p.Findings == nil {
		p.Findings = []analysis.Finding{}
	}
	p.Unified, p.Truncated = limitLines(p.Unified, b.MaxLines)
	return p, nil
}

func limitLines(s string, max int) (string, bool) {
	if max <= 0 || strings.Count(s, "\n") <= max {
		return s, false
	}
	idx := 0
	for i := 0; i < max; i++ {
		idx += strings.IndexByte(s[idx:], '\n') + 1
	}
	return s[:idx], true
}
