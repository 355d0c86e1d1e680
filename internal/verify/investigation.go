package verify

import (
	"os"
	"regexp"
	"strings"
)

// requiredMetadata and requiredSections mirror the original Python
// validator's structural checks: the lightweight, cheap half of its
// two-layer design. The agent-driven claim verification half is out of
// scope here — this only checks that an investigation artifact declares
// the metadata and sections its type expects.
var requiredMetadata = []string{"Question", "Started", "Status", "Confidence"}

var requiredSectionsByType = map[string][]string{
	"default":       {"Findings", "Synthesis", "Recommendations"},
	"agent-failure": {"Summary", "Evidence", "Root Cause", "Resolution Plan"},
	"system":        {"Findings", "Synthesis"},
	"feasibility":   {"Analysis", "Recommendation"},
	"audit":         {"Findings", "Recommendations"},
	"performance":   {"Findings", "Analysis", "Recommendations"},
}

// sectionAliases lets a section requirement match any of several
// semantically equivalent headings, since investigation authors don't
// all spell a section the same way.
var sectionAliases = map[string][]string{
	"Summary":         {"Summary", "Quick Summary", "What Went Wrong"},
	"Root Cause":      {"Root Cause", "Analysis"},
	"Resolution Plan": {"Resolution Plan", "Recommendations", "Resolution"},
	"Analysis":        {"Analysis", "Evidence Gathered", "Options Considered", "Context"},
	"Recommendation":  {"Recommendation", "Recommendations"},
}

var metadataLinePattern = regexp.MustCompile(`^\*\*([^:]+):\*\*\s*(.+)$`)
var sectionHeadingPattern = regexp.MustCompile(`^#+\s+(.+)$`)

// investigationType returns the section/metadata profile to check an
// artifact against, inferred from its path (matching the Python
// validator's own path-based dispatch rather than a declared field).
func investigationType(path string) string {
	lower := strings.ToLower(path)
	for _, t := range []string{"agent-failure", "system", "feasibility", "audit", "performance"} {
		if strings.Contains(lower, t) {
			return t
		}
	}
	return "default"
}

// ValidateInvestigationStructure runs the cheap structural half of
// investigation validation: missing required metadata fields and
// missing required sections for the artifact's inferred type. It never
// fails verification outright — callers fold its output into the
// result's warnings only, since section-naming drift is common and
// shouldn't block completion on its own.
func ValidateInvestigationStructure(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	lines := strings.Split(string(data), "\n")

	metadata := map[string]string{}
	limit := len(lines)
	if limit > 50 {
		limit = 50
	}
	for _, line := range lines[:limit] {
		if m := metadataLinePattern.FindStringSubmatch(line); m != nil {
			metadata[strings.TrimSpace(m[1])] = strings.TrimSpace(m[2])
		}
	}

	sections := map[string]bool{}
	for _, line := range lines {
		if m := sectionHeadingPattern.FindStringSubmatch(line); m != nil {
			sections[strings.ToLower(strings.TrimSpace(m[1]))] = true
		}
	}

	var warnings []string

	var missingMetadata []string
	for _, field := range requiredMetadata {
		if _, ok := metadata[field]; !ok {
			missingMetadata = append(missingMetadata, field)
		}
	}
	if len(missingMetadata) > 0 {
		warnings = append(warnings, "missing required metadata fields: "+strings.Join(missingMetadata, ", "))
	}

	required := requiredSectionsByType[investigationType(path)]
	var missingSections []string
	for _, section := range required {
		aliases, ok := sectionAliases[section]
		if !ok {
			aliases = []string{section}
		}
		found := false
		for _, alias := range aliases {
			for s := range sections {
				if strings.Contains(s, strings.ToLower(alias)) {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			missingSections = append(missingSections, section)
		}
	}
	if len(missingSections) > 0 {
		warnings = append(warnings, "missing or non-standard sections: "+strings.Join(missingSections, ", "))
	}

	return warnings
}
