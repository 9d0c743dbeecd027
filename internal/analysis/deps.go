package analysis

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sprite-ai/agstage/internal/model"
)

// Manifests whose edits add dependencies, by ecosystem.
var depFiles = map[string]string{
	"go.mod":           "go",
	"package.json":     "npm",
	"Cargo.toml":       "cargo",
	"requirements.txt": "pip",
	"Gemfile":          "gem",
}

// NewDependencyPass reports dependencies a manifest proposal introduces.
func NewDependencyPass(in Input) []Finding {
	eco, ok := depFiles[filepath.Base(in.Name)]
	if !ok {
		return nil
	}
	return matchAdded(in, "deps", model.RiskMedium, func(text string) string {
		if dep := parseDepLine(text, eco); dep != "" {
			return fmt.Sprintf("New %s dependency: %s", eco, dep)
		}
		return ""
	})
}

func parseDepLine(line, eco string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return ""
	}

	switch eco {
	case "go":
		parts := strings.Fields(strings.TrimPrefix(line, "require "))
		if len(parts) >= 2 && strings.Contains(parts[0], "/") && !strings.HasPrefix(parts[0], "//") &&
			strings.HasPrefix(parts[1], "v") {
			return parts[0]
		}

	case "npm":
		line = strings.TrimSuffix(line, ",")
		name, version, ok := strings.Cut(line, ":")
		if !ok {
			return ""
		}
		name = strings.Trim(name, `" `)
		version = strings.TrimSpace(version)
		if name == "" || strings.HasPrefix(version, "{") || strings.HasPrefix(version, "[") {
			return ""
		}
		switch name {
		case "name", "version", "description", "main", "license", "private", "type":
			return ""
		}
		return name

	case "cargo":
		if strings.HasPrefix(line, "[") || strings.HasPrefix(line, "#") {
			return ""
		}
		name, _, ok := strings.Cut(line, "=")
		if !ok {
			return ""
		}
		name = strings.TrimSpace(name)
		switch name {
		case "", "name", "version", "edition", "authors", "description", "license":
			return ""
		}
		if strings.Contains(name, ".") {
			return ""
		}
		return name

	case "pip":
		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			return ""
		}
		for _, sep := range []string{"==", ">=", "<=", "!=", "~=", ">", "<"} {
			if idx := strings.Index(line, sep); idx > 0 {
				return strings.TrimSpace(line[:idx])
			}
		}
		if !strings.Contains(line, " ") {
			return line
		}

	case "gem":
		if strings.HasPrefix(line, "gem ") {
			name, _, _ := strings.Cut(strings.TrimPrefix(line, "gem "), ",")
			return strings.Trim(name, `'" `)
		}
	}

	return ""
}
