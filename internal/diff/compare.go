package diff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DefaultContext is the number of unchanged lines shown around each change.
const DefaultContext = 3

const noNewline = "\\ No newline at end of file\n"

type lineOp struct {
	op   byte // ' ', '-' or '+'
	text string
}

// Compare diffs before against after line by line and returns the result as
// a single-file DiffSet. Identical inputs yield a file with no fragments.
func Compare(name, before, after string, context int) (*DiffSet, error) {
	if context < 0 {
		context = 0
	}
	name = strings.TrimPrefix(name, "/")

	ops := lineOps(before, after)
	raw := unified(name, ops, context)
	if raw == "" {
		return &DiffSet{Files: []*File{{OldName: name, NewName: name}}}, nil
	}

	ds, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if len(ds.Files) != 1 {
		return nil, fmt.Errorf("comparing %s: expected one file, got %d", name, len(ds.Files))
	}
	return ds, nil
}

// lineOps computes a line-level edit script with go-diff's line mode.
func lineOps(before, after string) []lineOp {
	dmp := diffmatchpatch.New()
	beforeChars, afterChars, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(beforeChars, afterChars, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var ops []lineOp
	for _, d := range diffs {
		var op byte
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			op = ' '
		case diffmatchpatch.DiffDelete:
			op = '-'
		case diffmatchpatch.DiffInsert:
			op = '+'
		}
		for _, line := range splitLines(d.Text) {
			ops = append(ops, lineOp{op: op, text: line})
		}
	}
	return ops
}

// splitLines splits s after each newline, keeping the terminators.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// unified renders ops as a git-style unified diff for name. It returns ""
// when ops contain no changes.
func unified(name string, ops []lineOp, context int) string {
	var changed []int
	for i, o := range ops {
		if o.op != ' ' {
			changed = append(changed, i)
		}
	}
	if len(changed) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "diff --git a/%s b/%s\n", name, name)
	fmt.Fprintf(&b, "--- a/%s\n", name)
	fmt.Fprintf(&b, "+++ b/%s\n", name)

	for _, h := range hunks(changed, len(ops), context) {
		writeHunk(&b, ops, h[0], h[1])
	}
	return b.String()
}

// hunks groups changed line indexes into [start, end) windows. Changes closer
// than two context windows share a hunk.
func hunks(changed []int, n, context int) [][2]int {
	var out [][2]int
	start := max(0, changed[0]-context)
	last := changed[0]
	for _, c := range changed[1:] {
		if c-last-1 > 2*context {
			out = append(out, [2]int{start, min(n, last+context+1)})
			start = c - context
		}
		last = c
	}
	return append(out, [2]int{start, min(n, last+context+1)})
}

func writeHunk(b *strings.Builder, ops []lineOp, start, end int) {
	var oldBefore, newBefore int
	for _, o := range ops[:start] {
		if o.op != '+' {
			oldBefore++
		}
		if o.op != '-' {
			newBefore++
		}
	}
	var oldCount, newCount int
	for _, o := range ops[start:end] {
		if o.op != '+' {
			oldCount++
		}
		if o.op != '-' {
			newCount++
		}
	}

	fmt.Fprintf(b, "@@ -%s +%s @@\n", hunkRange(oldBefore, oldCount), hunkRange(newBefore, newCount))
	for _, o := range ops[start:end] {
		b.WriteByte(o.op)
		b.WriteString(o.text)
		if !strings.HasSuffix(o.text, "\n") {
			b.WriteString("\n")
			b.WriteString(noNewline)
		}
	}
}

func hunkRange(before, count int) string {
	switch count {
	case 0:
		return fmt.Sprintf("%d,0", before)
	case 1:
		return fmt.Sprintf("%d", before+1)
	}
	return fmt.Sprintf("%d,%d", before+1, count)
}
