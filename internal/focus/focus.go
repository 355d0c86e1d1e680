// Package focus implements the daemon's ranking input: an optional
// ~/.orch/focus.json declaring priority projects, labels, and issue
// types used only to order the daemon's spawn queue (spec.md §6 "Focus
// input" — "consults this only as a ranking function... does not
// affect correctness"). Directly grounded on
// original_source/src/orch/work_daemon.py's FocusConfig and
// prioritize_issues.
package focus

import (
	"encoding/json"
	"os"
	"sort"
)

// Config mirrors work_daemon.py's FocusConfig dataclass.
type Config struct {
	PriorityProjects   []string `json:"priority_projects"`
	PriorityLabels     []string `json:"priority_labels"`
	PriorityIssueTypes []string `json:"priority_issue_types"`
	Enabled            bool     `json:"enabled"`
}

// Default returns an enabled, empty-priority configuration, matching the
// dataclass defaults used when focus.json is absent.
func Default() Config {
	return Config{Enabled: true}
}

// Load reads focus configuration from path. A missing file or malformed
// JSON yields Default(), not an error — focus is advisory only.
func Load(path string) Config {
	data, err := os.ReadFile(path)
	if err != nil {
		return Default()
	}
	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Default()
	}
	return cfg
}

// Candidate is the subset of a ready issue the ranking function needs.
type Candidate struct {
	Project   string
	IssueType string
	Labels    []string
}

// Prioritize reorders items so higher-scoring ones (by
// project/label/issue-type match count) come first. A stable sort
// preserves the daemon's original fetch order among ties, matching
// work_daemon.py's `sorted(..., reverse=True)` over a stable sort.
// items is never mutated. When ranking is disabled, no priorities are
// configured, or items is empty, items itself is returned; otherwise a
// freshly ordered slice is returned.
func Prioritize[T any](items []T, toCandidate func(T) Candidate, cfg Config) []T {
	if !cfg.Enabled || len(items) == 0 {
		return items
	}
	if len(cfg.PriorityProjects) == 0 && len(cfg.PriorityLabels) == 0 && len(cfg.PriorityIssueTypes) == 0 {
		return items
	}

	type ranked struct {
		item  T
		score int
	}
	rs := make([]ranked, len(items))
	for i, item := range items {
		rs[i] = ranked{item: item, score: score(toCandidate(item), cfg)}
	}
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].score > rs[j].score })

	out := make([]T, len(rs))
	for i, r := range rs {
		out[i] = r.item
	}
	return out
}

func score(c Candidate, cfg Config) int {
	s := 0
	if containsStr(cfg.PriorityProjects, c.Project) {
		s++
	}
	for _, l := range c.Labels {
		if containsStr(cfg.PriorityLabels, l) {
			s++
		}
	}
	if containsStr(cfg.PriorityIssueTypes, c.IssueType) {
		s++
	}
	return s
}

func containsStr(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
