// Package mutation adds and removes assistant-created revision sessions
// while keeping the on-disk shape of each schedule file.
package mutation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	appLog "edtassist/internal/log"
	"edtassist/internal/model"
	"edtassist/internal/store"
)

// AssistantInstructor is the instructor recorded on revision sessions.
const AssistantInstructor = "IA Assistant"

// maxDetailTitles bounds the titles listed in a removal summary.
const maxDetailTitles = 3

// Options configures an Engine.
type Options struct {
	Location *time.Location
	// Now returns the current instant; nil uses time.Now.
	Now func() time.Time
}

// Engine is the only writer of revision sessions.
type Engine struct {
	store *store.Store
	loc   *time.Location
	now   func() time.Time
}

// NewEngine returns an engine writing through st.
func NewEngine(st *store.Store, opts Options) *Engine {
	e := &Engine{store: st, loc: opts.Location, now: opts.Now}
	if e.loc == nil {
		e.loc = time.Local
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// AddResult answers AddRevision.
type AddResult struct {
	Success       bool         `json:"success"`
	Message       string       `json:"message"`
	Event         model.Record `json:"event"`
	TotalEvents   int          `json:"total_events"`
	DateAdded     string       `json:"date_added"`
	BackupCreated bool         `json:"backup_created"`
}

// AddRevision validates and appends one revision session to the user's
// schedule, creating a structured document when none exists. Flat files
// stay flat. Invalid input returns a *model.ValidationError before the
// file is touched.
func (e *Engine) AddRevision(rawUserID, title, start, end, description string) (AddResult, error) {
	userID, err := store.NormalizeUserID(rawUserID)
	if err != nil {
		return AddResult{}, err
	}

	title = strings.TrimSpace(title)
	if title == "" {
		return AddResult{}, model.Invalid("title", "must not be empty")
	}
	startAt, err := model.ParseLocal(start, e.loc)
	if err != nil {
		return AddResult{}, model.Invalid("start_date", "%q is not an ISO-8601 date", start)
	}
	endAt, err := model.ParseLocal(end, e.loc)
	if err != nil {
		return AddResult{}, model.Invalid("end_date", "%q is not an ISO-8601 date", end)
	}
	if !endAt.After(startAt) {
		return AddResult{}, model.Invalid("end_date", "end %s must be after start %s", end, start)
	}

	now := e.now().In(e.loc)
	rec := model.Record{
		Title:       title,
		Start:       model.FormatStore(startAt),
		End:         model.FormatStore(endAt),
		Instructor:  AssistantInstructor,
		Description: description,
		Props: &model.RevisionProps{
			ID:        uuid.NewString(),
			Type:      model.KindRevision.String(),
			AddedByAI: true,
			CreatedAt: model.FormatISO(now.Truncate(time.Second)),
			Color:     store.RevisionColor,
			TextColor: store.RevisionTextColor,
		},
	}
	item, err := json.Marshal(rec)
	if err != nil {
		return AddResult{}, err
	}

	unlock := e.store.Lock(userID)
	defer unlock()

	raw, err := e.store.ReadRaw(userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		raw = store.NewStructured()
	case err != nil:
		return AddResult{}, err
	}

	var total int
	switch raw.Shape {
	case store.ShapeFlat:
		raw.Items = append(raw.Items, item)
		total = len(raw.Items)
	default:
		revs, err := raw.Revisions()
		if err != nil {
			return AddResult{}, &store.DecodeError{Path: e.store.Path(userID), Err: err}
		}
		revs = append(revs, item)
		if err := raw.SetRevisions(revs); err != nil {
			return AddResult{}, err
		}
		total = len(revs)
	}

	backedUp, err := e.store.WriteRaw(userID, raw)
	if err != nil {
		return AddResult{}, fmt.Errorf("save revision: %w", err)
	}

	appLog.Info("revision added", "user", userID, "title", title, "start", rec.Start, "shape", raw.Shape.String(), "total", total)
	return AddResult{
		Success:       true,
		Message:       fmt.Sprintf("'%s' added for %s", title, startAt.Format("02/01/2006 at 15:04")),
		Event:         rec,
		TotalEvents:   total,
		DateAdded:     now.Format("02/01/2006 15:04"),
		BackupCreated: backedUp,
	}, nil
}

// RemoveResult answers RemoveAIRevisions.
type RemoveResult struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	RemovedCount  int    `json:"removed_count"`
	Details       string `json:"details"`
	BackupCreated bool   `json:"backup_created"`
}

// RemoveAIRevisions deletes assistant-created sessions. Structured files
// lose their whole revisions list; flat files lose every record marked
// added_by_ai. Otherwise the previous file is copied to the .backup
// sibling before the rewrite. A missing file, or one with nothing to
// remove, is a successful no-op: nothing is written and no backup is made,
// so the last backup still holds the state before the last real change.
func (e *Engine) RemoveAIRevisions(rawUserID string) (RemoveResult, error) {
	userID, err := store.NormalizeUserID(rawUserID)
	if err != nil {
		return RemoveResult{}, err
	}

	unlock := e.store.Lock(userID)
	defer unlock()

	raw, err := e.store.ReadRaw(userID)
	if errors.Is(err, store.ErrNotFound) {
		appLog.Info("no schedule, nothing to remove", "user", userID)
		return removeResult(nil, false), nil
	}
	if err != nil {
		return RemoveResult{}, err
	}

	var removed []string
	switch raw.Shape {
	case store.ShapeFlat:
		kept := make([]json.RawMessage, 0, len(raw.Items))
		for _, item := range raw.Items {
			var rec model.Record
			if err := json.Unmarshal(item, &rec); err != nil || !rec.AddedByAI() {
				kept = append(kept, item)
				continue
			}
			removed = append(removed, titleOrDefault(rec.Title))
		}
		raw.Items = kept
	default:
		revs, err := raw.Revisions()
		if err != nil {
			return RemoveResult{}, &store.DecodeError{Path: e.store.Path(userID), Err: err}
		}
		for _, item := range revs {
			var rec model.Record
			_ = json.Unmarshal(item, &rec)
			removed = append(removed, titleOrDefault(rec.Title))
		}
		if err := raw.SetRevisions(nil); err != nil {
			return RemoveResult{}, err
		}
	}

	if len(removed) == 0 {
		appLog.Info("no revision to remove", "user", userID, "shape", raw.Shape.String())
		return removeResult(nil, false), nil
	}

	backedUp, err := e.store.WriteRaw(userID, raw)
	if err != nil {
		return RemoveResult{}, fmt.Errorf("save schedule: %w", err)
	}

	appLog.Info("revisions removed", "user", userID, "shape", raw.Shape.String(), "count", len(removed))
	return removeResult(removed, backedUp), nil
}

func removeResult(removed []string, backedUp bool) RemoveResult {
	n := len(removed)
	res := RemoveResult{
		Success:       true,
		RemovedCount:  n,
		BackupCreated: backedUp,
		Message:       fmt.Sprintf("%d %s removed", n, pluralize(n, "revision")),
		Details:       "No revision to remove",
	}
	if n > 0 {
		shown := removed[:min(n, maxDetailTitles)]
		res.Details = "Removed: " + strings.Join(shown, ", ")
		if n > maxDetailTitles {
			res.Details += fmt.Sprintf(" (+%d more)", n-maxDetailTitles)
		}
	}
	return res
}

func titleOrDefault(t string) string {
	if strings.TrimSpace(t) == "" {
		return "Untitled"
	}
	return t
}

func pluralize(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
