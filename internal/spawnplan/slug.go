package spawnplan

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxSlugLength bounds the generated workspace name (spec.md §4.1
// "Workspace naming").
const maxSlugLength = 50

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]+`)

// asciiFold strips combining marks after NFD decomposition, folding
// accented Unicode letters to their ASCII base form (e.g. "café" ->
// "cafe"). Grounded on the standard golang.org/x/text transform chain
// for Unicode normalization used across the example corpus wherever
// diacritic folding is needed.
func asciiFold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Slugify derives a kebab-case workspace name from free text, per
// spec.md §4.1: Unicode folded to ASCII, apostrophes stripped (not
// hyphenated), runs of non-alphanumeric characters collapsed to a single
// hyphen, leading/trailing hyphens trimmed, and bounded to
// maxSlugLength with truncation at the last hyphen boundary. An empty
// result falls back to a timestamp-based name.
func Slugify(text string, now time.Time) string {
	folded := asciiFold(text)
	folded = strings.ReplaceAll(folded, "'", "")
	folded = strings.ReplaceAll(folded, "’", "")

	slug := nonAlnum.ReplaceAllString(folded, "-")
	slug = strings.ToLower(strings.Trim(slug, "-"))

	if slug == "" {
		return fallbackSlug(now)
	}

	if len(slug) > maxSlugLength {
		slug = truncateAtHyphen(slug, maxSlugLength)
	}
	if slug == "" {
		return fallbackSlug(now)
	}
	return slug
}

// truncateAtHyphen cuts slug to at most maxLen runes, backing up to the
// previous hyphen boundary so a word is never cut mid-token. If no
// hyphen boundary exists within the bound, the hard-truncated prefix is
// kept instead of falling back, so the skill/intent prefix survives.
func truncateAtHyphen(slug string, maxLen int) string {
	if len(slug) <= maxLen {
		return slug
	}
	cut := slug[:maxLen]
	if idx := strings.LastIndex(cut, "-"); idx > 0 {
		return strings.TrimRight(cut[:idx], "-")
	}
	return strings.TrimRight(cut, "-")
}

func fallbackSlug(now time.Time) string {
	return fmt.Sprintf("debug-bug-%s", now.UTC().Format("20060102-150405"))
}

// WithDatePrefix optionally prefixes a slug with YYYY-MM-DD-, truncating
// the slug portion so the combined name still respects maxSlugLength.
func WithDatePrefix(slug string, now time.Time, enabled bool) string {
	if !enabled {
		return slug
	}
	prefix := now.UTC().Format("2006-01-02") + "-"
	budget := maxSlugLength - len(prefix)
	if budget > 0 && len(slug) > budget {
		slug = truncateAtHyphen(slug, budget)
	}
	return prefix + slug
}
