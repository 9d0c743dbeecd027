package analysis

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"

	"github.com/sprite-ai/agstage/internal/model"
)

var (
	broadExceptPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)except\s*:`),
		regexp.MustCompile(`(?i)except\s+Exception\s*:`),
		regexp.MustCompile(`(?i)catch\s*\(\s*(Exception|Error|e)\s*\)`),
		regexp.MustCompile(`(?i)rescue\s*$`),
		regexp.MustCompile(`\.catch\(\s*(?:_|err|\(\s*\))\s*=>`),
	}

	commentedCodePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^\s*(?://|#)\s*(?:func |def |class |if |for |while |return |import |const |let |var )`),
		regexp.MustCompile(`^\s*(?://|#)\s*\w+\s*[({=]`),
	}

	todoPattern = regexp.MustCompile(`\b(TODO|FIXME|HACK|XXX)\b`)
)

// AntiPatternPass flags habits agents leave in rewritten files: swallowed
// exceptions, commented-out code, new TODO markers and pasted duplicates.
func AntiPatternPass(in Input) []Finding {
	var findings []Finding

	findings = append(findings, matchAdded(in, "anti_patterns", model.RiskMedium, func(text string) string {
		for _, re := range broadExceptPatterns {
			if re.MatchString(text) {
				return fmt.Sprintf("Broad exception handling: %s", strings.TrimSpace(text))
			}
		}
		return ""
	})...)

	findings = append(findings, matchAdded(in, "anti_patterns", model.RiskLow, func(text string) string {
		for _, re := range commentedCodePatterns {
			if re.MatchString(text) && !isElision(text) {
				return fmt.Sprintf("Commented-out code: %s", strings.TrimSpace(text))
			}
		}
		return ""
	})...)

	findings = append(findings, matchAdded(in, "anti_patterns", model.RiskLow, func(text string) string {
		if m := todoPattern.FindString(text); m != "" {
			return fmt.Sprintf("New %s marker: %s", m, strings.TrimSpace(text))
		}
		return ""
	})...)

	return append(findings, checkDuplication(in)...)
}

func isElision(text string) bool {
	for _, re := range elisionPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// checkDuplication slides a window over the added lines and reports any
// block that appears more than once.
func checkDuplication(in Input) []Finding {
	const windowSize = 4

	var lines []addedLine
	for _, a := range added(in.Diff) {
		trimmed := strings.TrimSpace(a.text)
		switch trimmed {
		case "", "{", "}", "(", ")", "};", "});":
			continue
		}
		lines = append(lines, addedLine{text: trimmed, line: a.line})
	}

	first := make(map[string]int)
	var findings []Finding
	for i := 0; i+windowSize <= len(lines); i++ {
		window := make([]string, windowSize)
		for j := range window {
			window[j] = lines[i+j].text
		}
		h := hashBlock(window)
		if at, ok := first[h]; ok {
			if lines[i].line >= at+windowSize {
				findings = append(findings, Finding{
					Pass:    "anti_patterns",
					Line:    lines[i].line,
					Message: fmt.Sprintf("Duplicate block (also at line %d)", at),
					Risk:    model.RiskMedium,
				})
			}
			continue
		}
		first[h] = lines[i].line
	}
	return findings
}

func hashBlock(lines []string) string {
	h := sha256.New()
	for _, l := range lines {
		h.Write([]byte(l))
		h.Write([]byte{'\n'})
	}
	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}
