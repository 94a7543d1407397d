package model

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s and strips combining accents, so "Révision",
// "REVISION" and "revision" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// ContainsFold reports whether needle occurs in haystack ignoring case and
// accents.
func ContainsFold(haystack, needle string) bool {
	return strings.Contains(Fold(haystack), Fold(needle))
}

// NonTeachingMarkers flag timetable entries that are not real classes.
var NonTeachingMarkers = []string{"Révision", "VACANCES", "Férié"}

// IsNonTeaching reports whether title contains any non-teaching marker,
// ignoring case and accents.
func IsNonTeaching(title string) bool {
	f := Fold(title)
	for _, m := range NonTeachingMarkers {
		if strings.Contains(f, Fold(m)) {
			return true
		}
	}
	return false
}
