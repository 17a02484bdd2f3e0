package masking

import (
	"regexp"
	"time"
)

// Category classifies a detection pattern and the matches it produces.
type Category string

const (
	CategoryCloudKeys   Category = "cloud-keys"
	CategoryAPITokens   Category = "api-tokens"
	CategoryPrivateKeys Category = "private-keys"
	CategoryPasswords   Category = "passwords"
	CategoryDatabase    Category = "database"
	CategoryNetwork     Category = "network"
	CategoryPII         Category = "pii"
	CategoryCustom      Category = "custom"
)

// Categories returns all categories in a fixed order.
func Categories() []Category {
	return []Category{
		CategoryCloudKeys,
		CategoryAPITokens,
		CategoryPrivateKeys,
		CategoryPasswords,
		CategoryDatabase,
		CategoryNetwork,
		CategoryPII,
		CategoryCustom,
	}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryCloudKeys, CategoryAPITokens, CategoryPrivateKeys,
		CategoryPasswords, CategoryDatabase, CategoryNetwork,
		CategoryPII, CategoryCustom:
		return true
	}
	return false
}

// DefaultEnabled reports whether the category participates in detection
// when the configuration does not mention it. Network and PII matching are
// opt-in because they are noisy on ordinary developer text.
func (c Category) DefaultEnabled() bool {
	switch c {
	case CategoryNetwork, CategoryPII:
		return false
	}
	return true
}

// Severity ranks how damaging a leaked match of a pattern would be.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Replacement produces the placeholder text for a match. Exactly one of the
// two fields is set: Text for a fixed placeholder, Func for a placeholder
// computed from the matched substring (used by rules that preserve
// surrounding separators or quote style). Func must be a pure function.
type Replacement struct {
	Text string
	Func func(match string) string
}

// Fixed returns a replacement that always produces text.
func Fixed(text string) Replacement {
	return Replacement{Text: text}
}

// Computed returns a replacement derived from the matched substring.
func Computed(fn func(match string) string) Replacement {
	return Replacement{Func: fn}
}

// For resolves the replacement for one matched substring.
func (r Replacement) For(match string) string {
	if r.Func != nil {
		return r.Func(match)
	}
	return r.Text
}

// Pattern is one detection rule in its compiled, matchable form. Built-in
// patterns are immutable process-wide data; custom patterns are translated
// into this shape by the registry.
type Pattern struct {
	ID          string
	Name        string
	Regexp      *regexp.Regexp
	Replacement Replacement
	// Label is the base placeholder label the replacement emits, used for
	// collision checks at custom-pattern registration time.
	Label    string
	Category Category
	Severity Severity
	// Priority orders evaluation: lower values run first and may claim a
	// text span before higher values see it. Built-ins carry explicit
	// priorities; custom patterns default to 0.
	Priority int
	// Inactive marks a built-in that is not part of the default active set
	// and must be re-enabled explicitly through Config.Include.
	Inactive bool
	// CustomID is set when the pattern was translated from a custom rule.
	CustomID string
}

// CustomPattern is a user-authored detection rule in its stored form.
type CustomPattern struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Pattern     string    `json:"pattern" db:"pattern"`
	Flags       string    `json:"flags" db:"flags"`
	Replacement string    `json:"replacement" db:"replacement"`
	Severity    Severity  `json:"severity" db:"severity"`
	Priority    int       `json:"priority" db:"priority"`
	Enabled     bool      `json:"enabled" db:"enabled"`
	UsageCount  int64     `json:"usage_count" db:"usage_count"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// CustomPatternSpec is the submission shape for creating or updating a
// custom pattern.
type CustomPatternSpec struct {
	Name        string   `json:"name" yaml:"name"`
	Pattern     string   `json:"pattern" yaml:"pattern"`
	Flags       string   `json:"flags,omitempty" yaml:"flags,omitempty"`
	Replacement string   `json:"replacement" yaml:"replacement"`
	Severity    Severity `json:"severity,omitempty" yaml:"severity,omitempty"`
	Priority    int      `json:"priority,omitempty" yaml:"priority,omitempty"`
	// Enabled defaults to true when omitted.
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// Match is one detected secret occurrence. Offsets are byte positions into
// the original text, closed-open. Matches are immutable once produced.
type Match struct {
	PatternID   string   `json:"pattern_id"`
	Name        string   `json:"name"`
	CustomID    string   `json:"custom_id,omitempty"`
	Category    Category `json:"category"`
	Severity    Severity `json:"severity"`
	Start       int      `json:"start"`
	End         int      `json:"end"`
	Original    string   `json:"-"` // Never serialize the secret itself
	Replacement string   `json:"replacement"`
}

// Config is the per-call detection filter. The zero value selects the
// default built-in set: category defaults apply, inactive built-ins stay
// off, and no custom patterns are merged. Readers treat Config as an
// immutable snapshot; the engine never mutates it.
type Config struct {
	// Categories overrides the per-category defaults. Absent keys fall
	// back to Category.DefaultEnabled.
	Categories map[Category]bool
	// Include re-enables built-ins that are inactive by default.
	Include []string
	// Exclude switches off individual built-ins by id.
	Exclude []string
	// Whitelist adds literal fixture values that are never reported.
	Whitelist []string
	// CustomPatterns is the ordered, already-enabled custom set to merge
	// after the built-ins.
	CustomPatterns []CustomPattern
}

// CategoryEnabled resolves the effective toggle for one category.
func (c Config) CategoryEnabled(cat Category) bool {
	if v, ok := c.Categories[cat]; ok {
		return v
	}
	return cat.DefaultEnabled()
}

// RestoreEntry links one numbered placeholder back to the secret it
// replaced.
type RestoreEntry struct {
	Type        string `json:"type"`
	Original    string `json:"original"`
	Replacement string `json:"replacement"`
	Numbered    string `json:"numbered"`
}

// RestoreMap records every substitution of one reversible masking call, in
// ascending text order. The engine never retains it; the caller owns its
// lifetime.
type RestoreMap []RestoreEntry

// MaskResult is the outcome of Mask.
type MaskResult struct {
	Masked         string           `json:"masked"`
	Count          int              `json:"count"`
	CategoryCounts map[Category]int `json:"category_counts,omitempty"`
	CustomCounts   map[string]int   `json:"custom_counts,omitempty"`
	Matches        []Match          `json:"matches,omitempty"`
}

// RestoreResult is the outcome of MaskWithRestore.
type RestoreResult struct {
	Masked         string           `json:"masked"`
	Map            RestoreMap       `json:"restore_map"`
	Count          int              `json:"count"`
	CategoryCounts map[Category]int `json:"category_counts,omitempty"`
	CustomCounts   map[string]int   `json:"custom_counts,omitempty"`
	Matches        []Match          `json:"matches,omitempty"`
}
