package reconcile

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// nameArtifacts are characters OCR leaves dangling at the edges of item names
const nameArtifacts = "-*_•·|:;,=~#>\"'`"

// CleanName normalizes an item name without changing its wording or casing
func CleanName(raw string) string {
	s := norm.NFC.String(raw)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, nameArtifacts+" ")
	s = strings.TrimLeft(s, ". ")
	return s
}

// nameKey is the comparison key used when matching corrections to items
func nameKey(name string) string {
	return strings.ToLower(CleanName(name))
}

// SameName reports whether two item names refer to the same row
func SameName(a, b string) bool {
	return nameKey(a) == nameKey(b)
}
