package analysis

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sprite-ai/agstage/internal/model"
)

// Placeholders agents write instead of reproducing unchanged code.
var elisionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(//|#|--|/\*|<!--|;)\s*\.{3}.*\b(rest|remaining|existing|unchanged|previous|same|other)\b`),
	regexp.MustCompile(`(?i)^\s*(//|#|--|/\*|<!--|;)\s*\b(rest|remainder) of (the )?(code|file|implementation|function|class)\b`),
	regexp.MustCompile(`(?i)^\s*(//|#|--|/\*|<!--|;)\s*\b(existing|unchanged|previous) (code|content|implementation|methods?)\b.*\b(here|unchanged|omitted)\b`),
	regexp.MustCompile(`^\s*(\.\.\.|…)\s*$`),
}

var conflictMarker = regexp.MustCompile(`^(<{7}|={7}|>{7}|\|{7})(\s|$)`)

// Shrinkage is only judged on files at least this long.
const minLinesForShrinkage = 20

// EmptyReplacementPass flags a proposal that blanks a non-empty file.
func EmptyReplacementPass(in Input) []Finding {
	if strings.TrimSpace(in.After) != "" || strings.TrimSpace(in.Before) == "" {
		return nil
	}
	return []Finding{{
		Pass:    "empty",
		Message: fmt.Sprintf("Proposal empties the file (%d lines removed)", countLines(in.Before)),
		Risk:    model.RiskCritical,
	}}
}

// ElisionPass flags placeholder comments standing in for omitted code.
func ElisionPass(in Input) []Finding {
	return matchAdded(in, "elision", model.RiskCritical, func(text string) string {
		for _, re := range elisionPatterns {
			if re.MatchString(text) {
				return fmt.Sprintf("Placeholder instead of content: %s", strings.TrimSpace(text))
			}
		}
		return ""
	})
}

// ShrinkagePass flags proposals that drop more than half of a sizeable file.
func ShrinkagePass(in Input) []Finding {
	before, after := countLines(in.Before), countLines(in.After)
	if before < minLinesForShrinkage || after == 0 || after*2 >= before {
		return nil
	}
	return []Finding{{
		Pass:    "shrinkage",
		Message: fmt.Sprintf("File shrinks from %d to %d lines", before, after),
		Risk:    model.RiskHigh,
	}}
}

// ConflictMarkerPass flags merge conflict markers.
func ConflictMarkerPass(in Input) []Finding {
	return matchAdded(in, "conflicts", model.RiskHigh, func(text string) string {
		if conflictMarker.MatchString(text) {
			return fmt.Sprintf("Merge conflict marker: %s", strings.TrimSpace(text))
		}
		return ""
	})
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
