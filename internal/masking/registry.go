package masking

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"
	"time"
)

// ActivePatterns resolves the evaluation order for one detection call:
// built-ins filtered by category toggle and inactive flag, then the enabled
// custom patterns from cfg, stable-sorted ascending by priority. Ties keep
// registration order, built-ins ahead of customs.
func ActivePatterns(cfg Config) []Pattern {
	include := make(map[string]struct{}, len(cfg.Include))
	for _, id := range cfg.Include {
		include[id] = struct{}{}
	}
	exclude := make(map[string]struct{}, len(cfg.Exclude))
	for _, id := range cfg.Exclude {
		exclude[id] = struct{}{}
	}

	patterns := make([]Pattern, 0, len(builtinPatterns)+len(cfg.CustomPatterns))
	for _, p := range builtinPatterns {
		if _, off := exclude[p.ID]; off {
			continue
		}
		if !cfg.CategoryEnabled(p.Category) {
			continue
		}
		if p.Inactive {
			if _, on := include[p.ID]; !on {
				continue
			}
		}
		patterns = append(patterns, p)
	}

	for _, cp := range cfg.CustomPatterns {
		if !cp.Enabled {
			continue
		}
		p, err := compileCustom(cp)
		if err != nil {
			// Registration already rejected uncompilable rules; an entry
			// that still fails here is silently skipped rather than
			// failing the detection call.
			continue
		}
		patterns = append(patterns, p)
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		return patterns[i].Priority < patterns[j].Priority
	})
	return patterns
}

// normalizeFlags canonicalizes a custom pattern's flag string: the global
// flag is implicit in iterative matching and is dropped, i/m/s map to the
// engine's inline flags, anything else is rejected.
func normalizeFlags(flags string) (string, error) {
	var i, m, s bool
	for _, r := range flags {
		switch r {
		case 'g':
			// implicit
		case 'i':
			i = true
		case 'm':
			m = true
		case 's':
			s = true
		default:
			return "", fmt.Errorf("%w: unsupported flag %q", ErrInvalidPattern, string(r))
		}
	}
	var out strings.Builder
	if i {
		out.WriteByte('i')
	}
	if m {
		out.WriteByte('m')
	}
	if s {
		out.WriteByte('s')
	}
	return out.String(), nil
}

// compileCustom translates a custom pattern into the matchable Pattern
// shape. Compilation failures surface here so the registry can reject them
// at registration time; the matcher never compiles anything itself.
func compileCustom(cp CustomPattern) (Pattern, error) {
	flags, err := normalizeFlags(cp.Flags)
	if err != nil {
		return Pattern{}, err
	}
	source := cp.Pattern
	if flags != "" {
		source = "(?" + flags + ")" + source
	}
	re, err := regexp.Compile(source)
	if err != nil {
		return Pattern{}, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, cp.Pattern, err)
	}
	if re.MatchString("") {
		return Pattern{}, fmt.Errorf("%w: %q matches the empty string", ErrInvalidPattern, cp.Pattern)
	}
	return Pattern{
		ID:          cp.ID,
		Name:        cp.Name,
		Regexp:      re,
		Replacement: Fixed(cp.Replacement),
		Label:       placeholderLabel(cp.Replacement),
		Category:    CategoryCustom,
		Severity:    cp.Severity,
		Priority:    cp.Priority,
		CustomID:    cp.ID,
	}, nil
}

// Registry holds the mutable custom-pattern set. It does no locking of its
// own: mutations are expected to arrive through one serialized path, and
// readers take value snapshots via List or Enabled before matching.
type Registry struct {
	customs []CustomPattern
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register validates spec, assigns an id and timestamps, and adds the
// pattern. Rejections are ErrInvalidPattern or ErrDuplicatePattern.
func (r *Registry) Register(spec CustomPatternSpec) (CustomPattern, error) {
	cp, err := buildCustom(spec)
	if err != nil {
		return CustomPattern{}, err
	}
	cp.ID = newPatternID()
	now := time.Now().UTC()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	if err := r.Add(cp); err != nil {
		return CustomPattern{}, err
	}
	return cp, nil
}

// Add validates and appends an already-built pattern, keeping its id,
// timestamps, and usage count. Used by Register and when reloading stored
// patterns at startup.
func (r *Registry) Add(cp CustomPattern) error {
	if _, err := compileCustom(cp); err != nil {
		return err
	}
	if err := r.checkDuplicates(cp, cp.ID); err != nil {
		return err
	}
	r.customs = append(r.customs, cp)
	return nil
}

// Update replaces the pattern identified by id with a re-validated build of
// spec, preserving id, creation time, and usage count.
func (r *Registry) Update(id string, spec CustomPatternSpec) (CustomPattern, error) {
	idx := r.indexOf(id)
	if idx < 0 {
		return CustomPattern{}, fmt.Errorf("%w: %s", ErrPatternNotFound, id)
	}
	updated, err := buildCustom(spec)
	if err != nil {
		return CustomPattern{}, err
	}
	current := r.customs[idx]
	updated.ID = current.ID
	updated.UsageCount = current.UsageCount
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = time.Now().UTC()
	if _, err := compileCustom(updated); err != nil {
		return CustomPattern{}, err
	}
	if err := r.checkDuplicates(updated, id); err != nil {
		return CustomPattern{}, err
	}
	r.customs[idx] = updated
	return updated, nil
}

// Delete removes the pattern identified by id.
func (r *Registry) Delete(id string) error {
	idx := r.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrPatternNotFound, id)
	}
	r.customs = append(r.customs[:idx], r.customs[idx+1:]...)
	return nil
}

// SetEnabled toggles the pattern identified by id.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	idx := r.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrPatternNotFound, id)
	}
	r.customs[idx].Enabled = enabled
	r.customs[idx].UpdatedAt = time.Now().UTC()
	return nil
}

// Get returns the pattern identified by id.
func (r *Registry) Get(id string) (CustomPattern, error) {
	idx := r.indexOf(id)
	if idx < 0 {
		return CustomPattern{}, fmt.Errorf("%w: %s", ErrPatternNotFound, id)
	}
	return r.customs[idx], nil
}

// List returns a copy of all custom patterns in registration order.
func (r *Registry) List() []CustomPattern {
	out := make([]CustomPattern, len(r.customs))
	copy(out, r.customs)
	return out
}

// Enabled returns a copy of the enabled custom patterns in registration
// order, ready to merge into a Config.
func (r *Registry) Enabled() []CustomPattern {
	out := make([]CustomPattern, 0, len(r.customs))
	for _, cp := range r.customs {
		if cp.Enabled {
			out = append(out, cp)
		}
	}
	return out
}

// RecordUsage adds per-pattern fire counts from a masking call to the
// running usage counters. Unknown ids are ignored.
func (r *Registry) RecordUsage(counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	for i := range r.customs {
		if n, ok := counts[r.customs[i].ID]; ok && n > 0 {
			r.customs[i].UsageCount += int64(n)
		}
	}
}

func (r *Registry) indexOf(id string) int {
	for i, cp := range r.customs {
		if cp.ID == id {
			return i
		}
	}
	return -1
}

// checkDuplicates enforces the registry invariants: unique case-insensitive
// name, unique regex+flags pair, and unique replacement placeholder label
// (against both other customs and the built-in catalog). selfID exempts the
// pattern being updated from colliding with itself.
func (r *Registry) checkDuplicates(cp CustomPattern, selfID string) error {
	name := strings.ToLower(cp.Name)
	flags, err := normalizeFlags(cp.Flags)
	if err != nil {
		return err
	}
	label := placeholderLabel(cp.Replacement)

	if _, taken := builtinLabels()[label]; taken {
		return fmt.Errorf("%w: replacement %q collides with a built-in placeholder", ErrDuplicatePattern, cp.Replacement)
	}
	for _, existing := range r.customs {
		if existing.ID == selfID {
			continue
		}
		if strings.ToLower(existing.Name) == name {
			return fmt.Errorf("%w: name %q already exists", ErrDuplicatePattern, cp.Name)
		}
		existingFlags, _ := normalizeFlags(existing.Flags)
		if existing.Pattern == cp.Pattern && existingFlags == flags {
			return fmt.Errorf("%w: regex %q with flags %q already exists", ErrDuplicatePattern, cp.Pattern, cp.Flags)
		}
		if placeholderLabel(existing.Replacement) == label {
			return fmt.Errorf("%w: replacement %q already exists", ErrDuplicatePattern, cp.Replacement)
		}
	}
	return nil
}

// buildCustom turns a submission into a stored pattern, applying defaults
// and field validation. Regex compilation is checked separately by Add.
func buildCustom(spec CustomPatternSpec) (CustomPattern, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return CustomPattern{}, fmt.Errorf("%w: name is required", ErrInvalidPattern)
	}
	if strings.TrimSpace(spec.Pattern) == "" {
		return CustomPattern{}, fmt.Errorf("%w: regex source is required", ErrInvalidPattern)
	}
	if spec.Replacement == "" {
		return CustomPattern{}, fmt.Errorf("%w: replacement is required", ErrInvalidPattern)
	}
	flags, err := normalizeFlags(spec.Flags)
	if err != nil {
		return CustomPattern{}, err
	}
	severity := spec.Severity
	if severity == "" {
		severity = SeverityMedium
	}
	if !severity.Valid() {
		return CustomPattern{}, fmt.Errorf("%w: unknown severity %q", ErrInvalidPattern, spec.Severity)
	}
	enabled := true
	if spec.Enabled != nil {
		enabled = *spec.Enabled
	}
	return CustomPattern{
		Name:        name,
		Pattern:     spec.Pattern,
		Flags:       flags,
		Replacement: spec.Replacement,
		Severity:    severity,
		Priority:    spec.Priority,
		Enabled:     enabled,
	}, nil
}

var patternSeq uint64

func newPatternID() string {
	return fmt.Sprintf("custom_%d_%d", time.Now().UnixNano(), atomic.AddUint64(&patternSeq, 1))
}
