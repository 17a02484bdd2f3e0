package masking

import (
	"fmt"
	"regexp"
	"strings"
)

// labelRe extracts the first bracketed token of a placeholder, e.g. AWS_KEY
// from "[AWS_KEY]" or USER from "postgres://[USER]:[PASS]@[HOST]".
var labelRe = regexp.MustCompile(`\[([^\[\]#]+)\]`)

// placeholderLabel derives the label of a replacement string: the first
// bracketed token, or the whole string when it contains none.
func placeholderLabel(replacement string) string {
	if m := labelRe.FindStringSubmatch(replacement); m != nil {
		return m[1]
	}
	return replacement
}

// numberPlaceholder injects a per-label occurrence index into the
// replacement's first bracketed token, turning "[PASS]" into "[PASS#2]".
// Replacements without a bracketed token get the index appended instead.
func numberPlaceholder(replacement, label string, n int) string {
	base := "[" + label + "]"
	if strings.Contains(replacement, base) {
		numbered := fmt.Sprintf("[%s#%d]", label, n)
		return strings.Replace(replacement, base, numbered, 1)
	}
	return fmt.Sprintf("%s#%d", replacement, n)
}

// applyMatches splices replacements into text. Matches arrive sorted
// ascending by start offset against the original text; the cursor walk
// keeps every later offset aligned with the evolving output regardless of
// how much each replacement grows or shrinks its span.
func applyMatches(text string, matches []Match, replacements []string) string {
	if len(matches) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for i, m := range matches {
		b.WriteString(text[last:m.Start])
		b.WriteString(replacements[i])
		last = m.End
	}
	b.WriteString(text[last:])
	return b.String()
}

// tally accumulates the per-category and per-custom-pattern counters of a
// match list. The engine returns these for the caller to persist; it keeps
// no counters of its own.
func tally(matches []Match) (map[Category]int, map[string]int) {
	if len(matches) == 0 {
		return nil, nil
	}
	categories := make(map[Category]int)
	var customs map[string]int
	for _, m := range matches {
		categories[m.Category]++
		if m.CustomID != "" {
			if customs == nil {
				customs = make(map[string]int)
			}
			customs[m.CustomID]++
		}
	}
	return categories, customs
}

// Mask detects secrets in text and replaces each with its base placeholder.
// The input is returned unchanged with a zero count when nothing matches.
// Pure function: no state survives the call.
func Mask(text string, cfg Config) MaskResult {
	matches := Detect(text, cfg)
	if len(matches) == 0 {
		return MaskResult{Masked: text}
	}
	replacements := make([]string, len(matches))
	for i, m := range matches {
		replacements[i] = m.Replacement
	}
	categories, customs := tally(matches)
	return MaskResult{
		Masked:         applyMatches(text, matches, replacements),
		Count:          len(matches),
		CategoryCounts: categories,
		CustomCounts:   customs,
		Matches:        matches,
	}
}

// MaskWithRestore masks like Mask but emits numbered placeholders and the
// restore map that reverses them. Numbering is per label, starts at 1, and
// follows text order, so placeholders sharing a label stay distinguishable
// and every numbered placeholder is unique within the returned text.
func MaskWithRestore(text string, cfg Config) RestoreResult {
	matches := Detect(text, cfg)
	if len(matches) == 0 {
		return RestoreResult{Masked: text, Map: RestoreMap{}}
	}

	counters := make(map[string]int)
	numbered := make([]string, len(matches))
	restoreMap := make(RestoreMap, 0, len(matches))
	for i, m := range matches {
		label := placeholderLabel(m.Replacement)
		counters[label]++
		numbered[i] = numberPlaceholder(m.Replacement, label, counters[label])
		restoreMap = append(restoreMap, RestoreEntry{
			Type:        m.Name,
			Original:    m.Original,
			Replacement: m.Replacement,
			Numbered:    numbered[i],
		})
	}

	categories, customs := tally(matches)
	return RestoreResult{
		Masked:         applyMatches(text, matches, numbered),
		Map:            restoreMap,
		Count:          len(matches),
		CategoryCounts: categories,
		CustomCounts:   customs,
		Matches:        matches,
	}
}
