package masking

import "strings"

// Restore replays a restore map against previously masked text, replacing
// every occurrence of each entry's numbered placeholder with the original
// secret. Entries are applied independently, so a fragment holding only a
// subset of the placeholders restores just those and leaves everything else
// untouched. An empty map makes Restore the identity.
//
// Placeholders are substituted as literal strings, which gives the same
// result as escaping them into a global regex without the escaping step.
func Restore(fragment string, restoreMap RestoreMap) string {
	if fragment == "" || len(restoreMap) == 0 {
		return fragment
	}
	restored := fragment
	for _, entry := range restoreMap {
		if entry.Numbered == "" {
			continue
		}
		restored = strings.ReplaceAll(restored, entry.Numbered, entry.Original)
	}
	return restored
}
