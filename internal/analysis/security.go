package analysis

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sprite-ai/agstage/internal/model"
)

var securityPatterns = []struct {
	category string
	patterns []*regexp.Regexp
	risk     model.RiskLevel
}{
	{
		category: "secrets",
		patterns: compilePatterns(
			`(?i)(api.?key|secret|password|token)\s*[:=]\s*["'][^"']{8,}`,
			`-----BEGIN [A-Z ]*PRIVATE KEY-----`,
			`\bAKIA[0-9A-Z]{16}\b`,
		),
		risk: model.RiskCritical,
	},
	{
		category: "TLS",
		patterns: compilePatterns(
			`(?i)(InsecureSkipVerify\s*:\s*true|verify\s*=\s*False|rejectUnauthorized\s*:\s*false)`,
		),
		risk: model.RiskHigh,
	},
	{
		category: "subprocess/exec",
		patterns: compilePatterns(
			`(?i)(exec\.Command|os\.system|subprocess\.|child_process|shell_exec)`,
			`(?i)\beval\(`,
		),
		risk: model.RiskHigh,
	},
	{
		category: "destructive file operation",
		patterns: compilePatterns(
			`(?i)(os\.RemoveAll|shutil\.rmtree|rm\s+-rf|fs\.rmSync)`,
		),
		risk: model.RiskHigh,
	},
}

func compilePatterns(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

// SecuritySurfacePass flags added lines touching security-sensitive code.
func SecuritySurfacePass(in Input) []Finding {
	var findings []Finding
	for _, a := range added(in.Diff) {
		trimmed := strings.TrimSpace(a.text)
		if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#") {
			continue
		}
		for _, sp := range securityPatterns {
			for _, re := range sp.patterns {
				if re.MatchString(a.text) {
					findings = append(findings, Finding{
						Pass:    "security",
						Line:    a.line,
						Message: fmt.Sprintf("Security-sensitive change (%s): %s", sp.category, trimmed),
						Risk:    sp.risk,
					})
					break
				}
			}
		}
	}
	return findings
}
