package store

import (
	"testing"

	"edtassist/internal/model"
)

const structuredDoc = `{
  "emploi_du_temps": [
    {"semaine": 10, "evenements": [
      {"nom_cours": "Mathématiques", "début": "2025-03-03 08:00", "fin": "2025-03-03 10:00", "professeur": "J. Martin", "location": "A1", "description": "CM"},
      {"nom_cours": "Broken", "début": "not a date", "fin": "2025-03-03 10:00"},
      {"nom_cours": "Anglais", "début": "2025-03-04 13:30", "fin": "2025-03-04 15:00", "professeur": "Unknown", "location": "B2", "description": ""}
    ]}
  ],
  "revisions": [
    {"nom_cours": "Révision Algèbre", "début": "2025-03-05 14:00", "fin": "2025-03-05 16:00", "professeur": "IA Assistant", "location": "", "description": "",
     "extendedProps": {"id": "r1", "type": "revision", "added_by_ai": true, "created_at": "2025-03-01T09:00:00", "color": "#10b981", "textColor": "#ffffff"}}
  ]
}`

const flatDoc = `[
  {"title": "Physique", "start": "2025-03-03T08:00:00", "end": "2025-03-03T10:00:00", "instructor": "P. Curie"},
  {"title": "Révision", "start": "2025-03-03T18:00:00", "end": "2025-03-03T19:00:00", "color": "#10b981", "extendedProps": {"type": "revision", "added_by_ai": true}}
]`

func TestLoadStructured(t *testing.T) {
	loc := noumea(t)
	st := New(t.TempDir())
	writeFile(t, st, "u", structuredDoc)

	events := NewReader(st, loc).Load("u")
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3 (bad record skipped)", len(events))
	}

	math := events[0]
	if math.Title != "Mathématiques" || math.Kind != model.KindLecture || math.AddedByAI {
		t.Fatalf("unexpected first event: %+v", math)
	}
	if math.Start.Location() != loc || math.Start.Hour() != 8 {
		t.Fatalf("start not in local zone: %v", math.Start)
	}
	if math.Color != "#ff6b6b" {
		t.Fatalf("math color = %q", math.Color)
	}

	rev := events[2]
	if rev.Kind != model.KindRevision || !rev.AddedByAI || rev.ID != "r1" || rev.Color != RevisionColor || rev.TextColor != RevisionTextColor {
		t.Fatalf("unexpected revision: %+v", rev)
	}
}

func TestLoadStructuredSkipsMistypedRecords(t *testing.T) {
	doc := `{
  "emploi_du_temps": [
    {"semaine": 10, "evenements": [
      {"nom_cours": "Mathématiques", "début": "2025-03-03 08:00", "fin": "2025-03-03 10:00"},
      {"nom_cours": "Broken", "début": 20250303, "fin": "2025-03-03 12:00"},
      {"nom_cours": "Props", "début": "2025-03-03 13:00", "fin": "2025-03-03 14:00", "extendedProps": "nope"},
      {"nom_cours": "Anglais", "début": "2025-03-04 13:30", "fin": "2025-03-04 15:00"}
    ]},
    "not a bucket",
    {"semaine": 11, "evenements": [
      {"nom_cours": "Physique", "début": "2025-03-10 08:00", "fin": "2025-03-10 10:00"}
    ]}
  ],
  "revisions": [
    {"nom_cours": "Révision Algèbre", "début": "2025-03-05 14:00", "fin": "2025-03-05 16:00", "extendedProps": {"added_by_ai": true}},
    {"nom_cours": "Bad revision", "début": ["2025-03-06 14:00"], "fin": "2025-03-06 16:00"},
    42
  ]
}`
	st := New(t.TempDir())
	writeFile(t, st, "u", doc)

	events := NewReader(st, noumea(t)).Load("u")
	want := []string{"Mathématiques", "Anglais", "Physique", "Révision Algèbre"}
	if len(events) != len(want) {
		t.Fatalf("len(events) = %d, want %d: %+v", len(events), len(want), events)
	}
	for i, title := range want {
		if events[i].Title != title {
			t.Errorf("events[%d] = %q, want %q", i, events[i].Title, title)
		}
	}
	if events[3].Kind != model.KindRevision {
		t.Fatalf("revision kind = %v", events[3].Kind)
	}
}

func TestLoadStructuredWithUnreadableWeeks(t *testing.T) {
	st := New(t.TempDir())
	writeFile(t, st, "u", `{"emploi_du_temps": {"semaine": 10}, "revisions": [
  {"nom_cours": "Study", "début": "2025-03-05 14:00", "fin": "2025-03-05 15:00", "extendedProps": {"added_by_ai": true}}
]}`)

	events := NewReader(st, noumea(t)).Load("u")
	if len(events) != 1 || events[0].Title != "Study" {
		t.Fatalf("events = %+v, want the revision only", events)
	}
}

func TestLoadFlat(t *testing.T) {
	st := New(t.TempDir())
	writeFile(t, st, "u", flatDoc)

	events := NewReader(st, noumea(t)).Load("u")
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Kind != model.KindLecture || events[0].Instructor != "P. Curie" || events[0].Color != "#45b7d1" {
		t.Fatalf("unexpected lecture: %+v", events[0])
	}
	if events[1].Kind != model.KindRevision || !events[1].AddedByAI {
		t.Fatalf("unexpected revision: %+v", events[1])
	}
}

func TestLoadMissingOrCorrupt(t *testing.T) {
	st := New(t.TempDir())
	r := NewReader(st, noumea(t))

	if got := r.Load("ghost"); got == nil || len(got) != 0 {
		t.Fatalf("missing file: got %v, want empty non-nil", got)
	}

	writeFile(t, st, "bad", `{"not": "a schedule"}`)
	if got := r.Load("bad"); len(got) != 0 {
		t.Fatalf("corrupt file: got %d events", len(got))
	}
}

func TestStats(t *testing.T) {
	st := New(t.TempDir())
	writeFile(t, st, "u", structuredDoc)

	got := NewReader(st, noumea(t)).Stats("u")
	want := Stats{UserID: "u", Exists: true, Total: 3, Courses: 2, AIEvents: 1}
	if got != want {
		t.Fatalf("Stats = %+v, want %+v", got, want)
	}
}

func TestColorFor(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Advanced Mathematics II", "#ff6b6b"},
		{"MATHÉMATIQUES DISCRÈTES", "#ff6b6b"},
		{"Informatique théorique", "#4ecdc4"},
		{"Physique quantique", "#45b7d1"},
		{"Chimie organique", "#96ceb4"},
		{"Anglais B2", "#feca57"},
		{"Histoire contemporaine", "#ff9ff3"},
		{"Géographie humaine", "#54a0ff"},
		{"Droit constitutionnel", DefaultColor},
		{"", DefaultColor},
	}
	for _, tt := range tests {
		if got := ColorFor(tt.title); got != tt.want {
			t.Errorf("ColorFor(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}
