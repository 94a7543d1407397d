package store

import (
	"strings"

	"edtassist/internal/model"
)

// DefaultColor is used for titles that match no subject.
const DefaultColor = "#3788d8"

// RevisionColor and RevisionTextColor are applied to new revision sessions.
const (
	RevisionColor     = "#10b981"
	RevisionTextColor = "#ffffff"
)

// Subject maps a family of course titles to a display color.
type Subject struct {
	Name     string
	Color    string
	Keywords []string // matched ignoring case and accents
}

// Subjects is checked in order; the first matching entry wins.
var Subjects = []Subject{
	{Name: "Mathématiques", Color: "#ff6b6b", Keywords: []string{"math"}},
	{Name: "Informatique", Color: "#4ecdc4", Keywords: []string{"informatique", "info", "computer", "programmation"}},
	{Name: "Physique", Color: "#45b7d1", Keywords: []string{"physique", "physics"}},
	{Name: "Chimie", Color: "#96ceb4", Keywords: []string{"chimie", "chemistry"}},
	{Name: "Anglais", Color: "#feca57", Keywords: []string{"anglais", "english"}},
	{Name: "Histoire", Color: "#ff9ff3", Keywords: []string{"histoire", "history"}},
	{Name: "Géographie", Color: "#54a0ff", Keywords: []string{"geographie", "geography"}},
}

// ColorFor returns the subject color for a course title.
func ColorFor(title string) string {
	f := model.Fold(title)
	for _, s := range Subjects {
		for _, kw := range s.Keywords {
			if strings.Contains(f, model.Fold(kw)) {
				return s.Color
			}
		}
	}
	return DefaultColor
}
