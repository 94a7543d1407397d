// Package model defines the on-disk schedule records and the canonical
// in-memory event the query layer works on.
package model

import (
	"encoding/json"
	"strings"
)

// Record is one stored timetable entry. Lectures written by the feed parser
// and revisions written by the mutation engine share this shape; revisions
// additionally carry Props.
//
// Records are written with the weekly timetable field names
// (nom_cours, début, fin, professeur) and read back from either those or the
// calendar-view names (title, start, end, instructor) that legacy flat files
// contain.
type Record struct {
	Title       string         `json:"nom_cours"`
	Start       string         `json:"début"`
	End         string         `json:"fin"`
	Instructor  string         `json:"professeur"`
	Location    string         `json:"location"`
	Description string         `json:"description"`
	Props       *RevisionProps `json:"extendedProps,omitempty"`
}

// RevisionProps marks a record as a study session added through the
// assistant, plus its presentation hints.
type RevisionProps struct {
	ID        string `json:"id,omitempty"`
	Type      string `json:"type"`
	AddedByAI bool   `json:"added_by_ai"`
	CreatedAt string `json:"created_at"`
	Color     string `json:"color,omitempty"`
	TextColor string `json:"textColor,omitempty"`
}

// recordWire lists every key a stored record has been seen with.
type recordWire struct {
	NomCours    string         `json:"nom_cours"`
	Title       string         `json:"title"`
	Debut       string         `json:"début"`
	Start       string         `json:"start"`
	Fin         string         `json:"fin"`
	End         string         `json:"end"`
	Professeur  string         `json:"professeur"`
	Instructor  string         `json:"instructor"`
	Location    string         `json:"location"`
	Description string         `json:"description"`
	Color       string         `json:"color"`
	AddedByAI   *bool          `json:"added_by_ai"`
	Props       *RevisionProps `json:"extendedProps"`
}

// UnmarshalJSON accepts both field namings. When both are present the
// timetable names win.
func (r *Record) UnmarshalJSON(b []byte) error {
	var w recordWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*r = Record{
		Title:       firstNonEmpty(w.NomCours, w.Title),
		Start:       firstNonEmpty(w.Debut, w.Start),
		End:         firstNonEmpty(w.Fin, w.End),
		Instructor:  firstNonEmpty(w.Professeur, w.Instructor),
		Location:    w.Location,
		Description: w.Description,
		Props:       w.Props,
	}
	// Some legacy flat files carry the marker at the top level.
	if r.Props == nil && w.AddedByAI != nil {
		r.Props = &RevisionProps{Type: KindRevision.String(), AddedByAI: *w.AddedByAI, Color: w.Color}
	}
	return nil
}

// AddedByAI reports whether the record was created by the assistant.
func (r Record) AddedByAI() bool {
	return r.Props != nil && r.Props.AddedByAI
}

// IsRevision reports whether the record is a revision session rather than a
// timetabled lecture.
func (r Record) IsRevision() bool {
	if r.Props == nil {
		return false
	}
	return r.Props.AddedByAI || strings.EqualFold(r.Props.Type, KindRevision.String())
}

// WeekBucket groups the lectures of one ISO week, ordered by start.
type WeekBucket struct {
	Week   int      `json:"semaine"`
	Year   int      `json:"annee,omitempty"`
	Events []Record `json:"evenements"`
}

// FeedStats counts calendar components seen during one feed run.
type FeedStats struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Errored   int `json:"errored"`
}

// Metadata describes the feed run that produced a structured document.
type Metadata struct {
	UserID    string    `json:"user_id"`
	FetchedAt string    `json:"fetched_at"`
	Timezone  string    `json:"timezone"`
	Source    string    `json:"source,omitempty"`
	Stats     FeedStats `json:"stats"`
}

// Document is the structured on-disk shape.
type Document struct {
	Weeks     []WeekBucket `json:"emploi_du_temps"`
	Revisions []Record     `json:"revisions"`
	Metadata  *Metadata    `json:"metadata,omitempty"`
}

// WeeksKey is the top-level key that identifies a structured document.
const WeeksKey = "emploi_du_temps"

// RevisionsKey is the top-level key holding revisions in a structured document.
const RevisionsKey = "revisions"

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
