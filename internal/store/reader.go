package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	appLog "edtassist/internal/log"
	"edtassist/internal/model"
)

// Reader turns either stored shape into canonical events.
type Reader struct {
	store *Store
	loc   *time.Location
}

// NewReader returns a reader interpreting stored wall-clock times in loc.
func NewReader(st *Store, loc *time.Location) *Reader {
	if loc == nil {
		loc = time.Local
	}
	return &Reader{store: st, loc: loc}
}

// Store returns the underlying store.
func (r *Reader) Store() *Store { return r.store }

// Location returns the zone events are interpreted in.
func (r *Reader) Location() *time.Location { return r.loc }

// Load returns every event of the user, lectures first in stored order then
// revisions. A missing or undecodable file yields an empty list; the decode
// failure is logged. Records that cannot be interpreted are skipped.
func (r *Reader) Load(userID string) []model.Event {
	events, err := r.load(userID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			appLog.Error("schedule load failed", err, "user", userID)
		}
		return []model.Event{}
	}
	return events
}

func (r *Reader) load(userID string) ([]model.Event, error) {
	raw, err := r.store.ReadRaw(userID)
	if err != nil {
		return nil, err
	}

	out := []model.Event{}
	switch raw.Shape {
	case ShapeFlat:
		for i, item := range raw.Items {
			ev, err := r.convert(item, false)
			if err != nil {
				appLog.Warn("stored event skipped", "user", userID, "index", i, "reason", err.Error())
				continue
			}
			out = append(out, ev)
		}
	default:
		weeks, err := raw.Weeks()
		if err != nil {
			// Revisions are still usable.
			appLog.Warn("weeks unreadable", "user", userID, "reason", err.Error())
		}
		for _, wk := range weeks {
			for i, item := range wk.Events {
				ev, err := r.convert(item, false)
				if err != nil {
					appLog.Warn("stored event skipped", "user", userID, "week", wk.Week, "index", i, "reason", err.Error())
					continue
				}
				out = append(out, ev)
			}
		}
		revs, err := raw.Revisions()
		if err != nil {
			// Lectures are still usable.
			appLog.Warn("revisions unreadable", "user", userID, "reason", err.Error())
			return out, nil
		}
		for i, item := range revs {
			ev, err := r.convert(item, true)
			if err != nil {
				appLog.Warn("stored revision skipped", "user", userID, "index", i, "reason", err.Error())
				continue
			}
			out = append(out, ev)
		}
	}
	return out, nil
}

func (r *Reader) convert(item json.RawMessage, revision bool) (model.Event, error) {
	var rec model.Record
	if err := json.Unmarshal(item, &rec); err != nil {
		return model.Event{}, err
	}
	return r.fromRecord(rec, revision)
}

// fromRecord builds an event. Records from the revisions list are always
// revisions; elsewhere the record's own markers decide.
func (r *Reader) fromRecord(rec model.Record, revision bool) (model.Event, error) {
	if rec.Title == "" {
		return model.Event{}, errors.New("missing title")
	}
	start, err := model.ParseLocal(rec.Start, r.loc)
	if err != nil {
		return model.Event{}, fmt.Errorf("start: %w", err)
	}
	end, err := model.ParseLocal(rec.End, r.loc)
	if err != nil {
		return model.Event{}, fmt.Errorf("end: %w", err)
	}
	if !end.After(start) {
		return model.Event{}, errors.New("end is not after start")
	}

	ev := model.Event{
		Title:       rec.Title,
		Start:       start,
		End:         end,
		Instructor:  rec.Instructor,
		Location:    rec.Location,
		Description: rec.Description,
		Kind:        model.KindLecture,
		AddedByAI:   rec.AddedByAI(),
		Color:       ColorFor(rec.Title),
	}
	if revision || rec.IsRevision() {
		ev.Kind = model.KindRevision
	}
	if p := rec.Props; p != nil {
		ev.ID = p.ID
		ev.CreatedAt = p.CreatedAt
		ev.TextColor = p.TextColor
		if p.Color != "" && ev.Kind == model.KindRevision {
			ev.Color = p.Color
		}
	}
	return ev, nil
}

// Stats summarizes a user's schedule.
type Stats struct {
	UserID   string `json:"user_id"`
	Exists   bool   `json:"exists"`
	Total    int    `json:"total"`
	Courses  int    `json:"courses"`
	AIEvents int    `json:"ai_events"`
}

// Stats counts the user's events, split into timetabled courses and
// assistant-added sessions.
func (r *Reader) Stats(userID string) Stats {
	st := Stats{UserID: userID, Exists: r.store.Exists(userID)}
	for _, ev := range r.Load(userID) {
		st.Total++
		if ev.AddedByAI {
			st.AIEvents++
		} else {
			st.Courses++
		}
	}
	return st
}
