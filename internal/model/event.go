package model

import (
	"encoding/json"
	"time"
)

// Kind distinguishes timetabled lectures from revision sessions.
type Kind string

const (
	KindLecture  Kind = "lecture"
	KindRevision Kind = "revision"
)

func (k Kind) String() string { return string(k) }

// Event is the canonical, shape-agnostic form of a stored record. Start and
// End are in the configured local zone.
type Event struct {
	Title       string
	Start       time.Time
	End         time.Time
	Instructor  string
	Location    string
	Description string
	Kind        Kind
	AddedByAI   bool
	CreatedAt   string
	ID          string
	Color       string
	TextColor   string
}

type eventJSON struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Instructor  string `json:"instructor"`
	Location    string `json:"location"`
	Description string `json:"description"`
	Kind        Kind   `json:"kind"`
	AddedByAI   bool   `json:"added_by_ai"`
	CreatedAt   string `json:"created_at,omitempty"`
	Color       string `json:"color"`
	TextColor   string `json:"textColor,omitempty"`
}

// MarshalJSON renders timestamps as local ISO-8601 without an offset.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{
		ID:          e.ID,
		Title:       e.Title,
		Start:       FormatISO(e.Start),
		End:         FormatISO(e.End),
		Instructor:  e.Instructor,
		Location:    e.Location,
		Description: e.Description,
		Kind:        e.Kind,
		AddedByAI:   e.AddedByAI,
		CreatedAt:   e.CreatedAt,
		Color:       e.Color,
		TextColor:   e.TextColor,
	})
}
