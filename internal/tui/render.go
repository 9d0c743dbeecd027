package tui

import (
	"fmt"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
	"github.com/charmbracelet/lipgloss"
	"github.com/sprite-ai/agstage/internal/analysis"
	"github.com/sprite-ai/agstage/internal/diff"
	"github.com/sprite-ai/agstage/internal/model"
)

// renderedLine is a single line of diff output ready for display.
type renderedLine struct {
	OldNum  int // 0 means not applicable (add-only)
	NewNum  int // 0 means not applicable (delete-only)
	Op      gitdiff.LineOp
	Content string
	IsHunk  bool

	Tokens []diff.Token

	IsFinding   bool
	FindingRisk model.RiskLevel
}

// renderFile produces renderedLines for a proposal's diff, with line-level
// findings placed under the line they refer to. Tokens come from hl, which
// colours whole documents. At most maxLines diff lines are produced when
// maxLines > 0.
func renderFile(f *diff.File, hl *diff.Highlighted, findings []analysis.Finding, maxLines int) []renderedLine {
	byLine := make(map[int][]analysis.Finding)
	for _, fd := range findings {
		if fd.Line > 0 {
			byLine[fd.Line] = append(byLine[fd.Line], fd)
		}
	}

	var lines []renderedLine
	count := 0
	for i, frag := range f.Fragments {
		lines = append(lines, renderedLine{IsHunk: true, Content: formatHunkHeader(frag)})

		oldLine := int(frag.OldPosition)
		newLine := int(frag.NewPosition)

		for _, line := range frag.Lines {
			if maxLines > 0 && count >= maxLines {
				return lines
			}
			count++

			rl := renderedLine{
				Op:      line.Op,
				Content: strings.TrimRight(line.Line, "\n\r"),
			}
			switch line.Op {
			case gitdiff.OpContext:
				rl.OldNum = oldLine
				rl.NewNum = newLine
				oldLine++
				newLine++
			case gitdiff.OpDelete:
				rl.OldNum = oldLine
				oldLine++
			case gitdiff.OpAdd:
				rl.NewNum = newLine
				newLine++
			}
			rl.Tokens = hl.Line(line.Op, rl.OldNum, rl.NewNum)
			lines = append(lines, rl)

			if line.Op == gitdiff.OpAdd {
				for _, fd := range byLine[rl.NewNum] {
					lines = append(lines, renderedLine{
						IsFinding:   true,
						FindingRisk: fd.Risk,
						Content:     fmt.Sprintf("          ▲ %s: %s", fd.Risk, fd.Message),
					})
				}
			}
		}

		if i < len(f.Fragments)-1 {
			lines = append(lines, renderedLine{})
		}
	}
	return lines
}

func formatHunkHeader(frag *gitdiff.TextFragment) string {
	old := fmt.Sprintf("-%d", frag.OldPosition)
	if frag.OldLines != 1 {
		old += fmt.Sprintf(",%d", frag.OldLines)
	}
	new := fmt.Sprintf("+%d", frag.NewPosition)
	if frag.NewLines != 1 {
		new += fmt.Sprintf(",%d", frag.NewLines)
	}

	header := fmt.Sprintf("@@ %s %s @@", old, new)
	if frag.Comment != "" {
		header += " " + frag.Comment
	}
	return header
}

// renderHighlightedContent renders line content with syntax tokens.
func renderHighlightedContent(rl renderedLine, prefix string) string {
	if len(rl.Tokens) == 0 {
		return prefix + rl.Content
	}

	var b strings.Builder
	b.WriteString(prefix)
	for _, tok := range rl.Tokens {
		if tok.Color != "" {
			b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(tok.Color)).Render(tok.Text))
		} else {
			b.WriteString(tok.Text)
		}
	}
	return b.String()
}

func findingStyle(risk model.RiskLevel) lipgloss.Style {
	switch {
	case risk >= model.RiskCritical:
		return findingCriticalStyle
	case risk >= model.RiskHigh:
		return findingHighStyle
	case risk >= model.RiskMedium:
		return findingMediumStyle
	default:
		return findingLowStyle
	}
}

func lineNumber(n int) string {
	if n > 0 {
		return fmt.Sprintf("%4d", n)
	}
	return "    "
}

// styleLine applies styling to a rendered line for unified view.
func styleLine(rl renderedLine, width int) string {
	if rl.IsFinding {
		return findingStyle(rl.FindingRisk).Render(truncate(rl.Content, width))
	}
	if rl.IsHunk {
		return hunkHeaderStyle.Width(width).Render(rl.Content)
	}

	lineNums := lineNumberStyle.Render(lineNumber(rl.OldNum)) + " " + lineNumberStyle.Render(lineNumber(rl.NewNum))

	var prefix string
	var style *lipgloss.Style
	switch rl.Op {
	case gitdiff.OpAdd:
		prefix, style = "+", &addedLineStyle
	case gitdiff.OpDelete:
		prefix, style = "-", &deletedLineStyle
	default:
		prefix = " "
	}

	maxContent := width - 12
	var content string
	if style == nil {
		content = renderHighlightedContent(rl, prefix)
		if maxContent > 0 && lipgloss.Width(content) > maxContent {
			content = truncate(prefix+rl.Content, maxContent)
		}
	} else {
		content = style.Render(truncate(prefix+rl.Content, maxContent))
	}
	return lineNums + " " + content
}

// styleLineSplit renders a line for side-by-side view.
func styleLineSplit(rl renderedLine, halfWidth int) (left, right string) {
	if rl.IsFinding {
		return findingStyle(rl.FindingRisk).Render(truncate(rl.Content, halfWidth*2)), ""
	}
	if rl.IsHunk {
		return hunkHeaderStyle.Width(halfWidth).Render(rl.Content), ""
	}

	maxContent := halfWidth - 7
	blank := strings.Repeat(" ", halfWidth)

	switch rl.Op {
	case gitdiff.OpDelete:
		left = lineNumberStyle.Render(lineNumber(rl.OldNum)) + " " + deletedLineStyle.Render("-"+truncate(rl.Content, maxContent))
		right = blank
	case gitdiff.OpAdd:
		left = blank
		right = lineNumberStyle.Render(lineNumber(rl.NewNum)) + " " + addedLineStyle.Render("+"+truncate(rl.Content, maxContent))
	default:
		content := truncate(rl.Content, maxContent)
		left = lineNumberStyle.Render(lineNumber(rl.OldNum)) + " " + contextLineStyle.Render(" "+content)
		right = lineNumberStyle.Render(lineNumber(rl.NewNum)) + " " + contextLineStyle.Render(" "+content)
	}
	return left, right
}

func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return s
}
