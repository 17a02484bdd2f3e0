package masking

import "errors"

// Registry mutation errors. Callers use errors.Is to map them to their own
// failure surfaces; the detection and masking operations never fail.
var (
	// ErrInvalidPattern reports a custom pattern whose regex source or
	// flags cannot be compiled.
	ErrInvalidPattern = errors.New("invalid pattern")

	// ErrDuplicatePattern reports a name, regex+flags, or replacement
	// label collision with an existing pattern.
	ErrDuplicatePattern = errors.New("duplicate pattern")

	// ErrPatternNotFound reports an unknown custom pattern id.
	ErrPatternNotFound = errors.New("pattern not found")
)
