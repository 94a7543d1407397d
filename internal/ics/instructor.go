package ics

import (
	"regexp"
	"strings"
)

// UnknownInstructor is returned when no description line looks like an
// instructor name.
const UnknownInstructor = "Unknown"

// InstructorExtractor picks an instructor name out of a free-text event
// description. Implementations are heuristic and never fail; they return a
// default when nothing matches.
type InstructorExtractor interface {
	Extract(description string) string
}

// ExtractorFunc adapts a plain function to InstructorExtractor.
type ExtractorFunc func(description string) string

func (f ExtractorFunc) Extract(description string) string { return f(description) }

// DefaultKeywords are matched case-insensitively against description lines.
var DefaultKeywords = []string{"prof", "enseignant", "intervenant", "instructor", "teacher", "lecturer"}

// initialSurname matches short "J.DUPONT", "J. Dupont" or "J-P. Le Gall" tokens.
var initialSurname = regexp.MustCompile(`^\p{Lu}(?:-\p{Lu})?\.\s?\p{Lu}[\p{L}'\-]+(?:\s+\p{Lu}[\p{L}'\-]+){0,2}$`)

// KeywordExtractor scans description lines in order and returns the first
// line that either names an instructor keyword or looks like an
// "Initial.Surname" token.
type KeywordExtractor struct {
	Keywords []string
	Default  string
}

// NewKeywordExtractor returns an extractor using DefaultKeywords.
func NewKeywordExtractor() *KeywordExtractor {
	return &KeywordExtractor{Keywords: DefaultKeywords, Default: UnknownInstructor}
}

func (k *KeywordExtractor) Extract(description string) string {
	def := k.Default
	if def == "" {
		def = UnknownInstructor
	}

	for _, raw := range strings.Split(description, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if k.hasKeyword(line) {
			// "Enseignant : J. Martin" -> "J. Martin"
			if i := strings.Index(line, ":"); i >= 0 {
				if v := strings.TrimSpace(line[i+1:]); v != "" {
					return v
				}
			}
			return line
		}
		if initialSurname.MatchString(line) {
			return line
		}
	}
	return def
}

func (k *KeywordExtractor) hasKeyword(line string) bool {
	lower := strings.ToLower(line)
	for _, kw := range k.Keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
