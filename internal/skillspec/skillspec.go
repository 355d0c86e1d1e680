// Package skillspec loads skill manifests and filters a skill's guidance
// document down to the marker-delimited sections relevant to a given
// phase list. The marker-extraction shape is grounded on the teacher's
// internal/agentmd parser (GeneratedStartMarker/GeneratedEndMarker
// delimited sections); the embed+YAML-manifest loading idiom is grounded
// on the teacher's internal/skills/loader.go. Both are adapted here for a
// different shape: instead of one generated section in an otherwise
// custom document, a skill document may contain many independently
// phase-tagged `SKILL-TEMPLATE: <phase>` / `/SKILL-TEMPLATE` blocks
// interleaved with header/footer prose (spec.md §4.1 "Skill phase
// filtering").
package skillspec

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DeliverableType enumerates the kinds of artifact a skill's deliverables
// may declare (spec.md §3 Deliverable).
type DeliverableType string

const (
	DeliverableWorkspace     DeliverableType = "workspace"
	DeliverableInvestigation DeliverableType = "investigation"
	DeliverableDecision      DeliverableType = "decision"
	DeliverableKnowledge     DeliverableType = "knowledge"
	DeliverableCommits       DeliverableType = "commits"
)

// Deliverable is a (type, path-template, required) triple attached to a
// skill. PathTemplate may contain `{name}` (agent id) or `{slug}`
// (workspace slug).
type Deliverable struct {
	Type         DeliverableType `yaml:"type"`
	PathTemplate string          `yaml:"path_template"`
	Required     bool            `yaml:"required"`
}

// ResolvePath substitutes {name} and {slug} into the deliverable's path
// template.
func (d Deliverable) ResolvePath(agentID, slug string) string {
	r := strings.NewReplacer("{name}", agentID, "{slug}", slug)
	return r.Replace(d.PathTemplate)
}

// Skill is a named policy attaching a filtered guidance document and a
// deliverable set to an agent.
type Skill struct {
	Name         string        `yaml:"name"`
	File         string        `yaml:"file"`
	Feature      bool          `yaml:"feature"`      // feature-style skill: selects tdd/direct variants
	Investigation bool         `yaml:"investigation"` // investigation-style skill
	Ephemeral    bool          `yaml:"ephemeral"` // workspace deleted after reap (spec.md §4.7 step 5)
	Deliverables []Deliverable `yaml:"deliverables"`
	Priority     int           `yaml:"priority"`
	PackagePath  string        `yaml:"package_path"` // monorepo package this skill's agents may modify; empty disables scope enforcement
}

// Manifest is the top-level skill manifest document.
type Manifest struct {
	Skills []Skill `yaml:"skills"`
}

// ParseManifest parses a YAML skill manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing skill manifest: %w", err)
	}
	sort.Slice(m.Skills, func(i, j int) bool { return m.Skills[i].Priority < m.Skills[j].Priority })
	return &m, nil
}

// Find returns the skill with the given name, if any.
func (m *Manifest) Find(name string) (Skill, bool) {
	for _, s := range m.Skills {
		if s.Name == name {
			return s, true
		}
	}
	return Skill{}, false
}

const (
	markerOpenPrefix  = "SKILL-TEMPLATE:"
	markerClose       = "/SKILL-TEMPLATE"
)

var markerOpenPattern = regexp.MustCompile(`(?m)^SKILL-TEMPLATE:\s*(\S+)\s*$`)
var markerClosePattern = regexp.MustCompile(`(?m)^/SKILL-TEMPLATE\s*$`)

// block is one marker-delimited section of a skill document.
type block struct {
	phase   string
	content string // full block including its opening/closing marker lines
}

// FilterForPhases returns the header (pre-first-marker), every marker
// block whose phase is in phases, and the footer (post-last-marker),
// concatenated. When phases is empty, all markers are kept. For the
// feature-style "implementation" phase, mode selects between the
// "implementation-tdd" and "implementation-direct" marker variants
// (spec.md §4.1).
func FilterForPhases(doc string, phases []string, mode string) string {
	blocks, header, footer := splitBlocks(doc)

	if len(phases) == 0 {
		var buf strings.Builder
		buf.WriteString(header)
		for _, b := range blocks {
			buf.WriteString(b.content)
		}
		buf.WriteString(footer)
		return buf.String()
	}

	wanted := make(map[string]bool, len(phases))
	for _, p := range phases {
		wanted[p] = true
	}
	if mode == "" {
		mode = "tdd"
	}

	var buf strings.Builder
	buf.WriteString(header)
	for _, b := range blocks {
		phase := b.phase
		if phase == "implementation-tdd" || phase == "implementation-direct" {
			want := "implementation-" + mode
			if phase != want {
				continue
			}
			if !wanted["implementation"] && !wanted[phase] {
				continue
			}
			buf.WriteString(b.content)
			continue
		}
		if wanted[phase] {
			buf.WriteString(b.content)
		}
	}
	buf.WriteString(footer)
	return buf.String()
}

// splitBlocks locates every SKILL-TEMPLATE marker pair in doc and returns
// the blocks in document order, plus the header (everything before the
// first open marker) and footer (everything after the last close marker).
// Header and footer are bit-identical slices of the original, per
// spec.md §8's testable property.
func splitBlocks(doc string) (blocks []block, header, footer string) {
	opens := markerOpenPattern.FindAllStringSubmatchIndex(doc, -1)
	if len(opens) == 0 {
		return nil, doc, ""
	}
	header = doc[:opens[0][0]]

	closes := markerClosePattern.FindAllStringIndex(doc, -1)

	lastEnd := opens[0][0]
	for i, open := range opens {
		phase := doc[open[2]:open[3]]
		start := open[0]

		// Find the first close marker after this open marker.
		var end int
		found := false
		for _, c := range closes {
			if c[0] > start {
				end = c[1]
				found = true
				break
			}
		}
		if !found {
			end = len(doc)
		}
		blocks = append(blocks, block{phase: phase, content: doc[start:end]})
		lastEnd = end
		_ = i
	}
	footer = doc[lastEnd:]
	return blocks, header, footer
}

// Phases lists the phase tags present in doc, in document order, without
// filtering.
func Phases(doc string) []string {
	blocks, _, _ := splitBlocks(doc)
	phases := make([]string, 0, len(blocks))
	for _, b := range blocks {
		phases = append(phases, b.phase)
	}
	return phases
}
