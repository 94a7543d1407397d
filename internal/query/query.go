// Package query answers read-only questions about a user's timetable.
package query

import (
	"fmt"
	"sort"
	"strings"
	"time"

	appLog "edtassist/internal/log"
	"edtassist/internal/model"
	"edtassist/internal/store"
)

// Result status values.
const (
	StatusSuccess = "success"
	StatusInfo    = "info"
	StatusError   = "error"
)

const (
	defaultDayStart = "08:00"
	defaultDayEnd   = "18:00"
)

// Options configures an Engine.
type Options struct {
	// DayStart and DayEnd bound the working window ("HH:MM") used for free
	// slots. Zero or invalid values use 08:00 and 18:00.
	DayStart string
	DayEnd   string
	// Now returns the current instant; nil uses time.Now.
	Now func() time.Time
}

// Engine runs the query operations over a Reader.
type Engine struct {
	reader *store.Reader
	now    func() time.Time

	dayStart time.Duration // offset from midnight
	dayEnd   time.Duration
}

// NewEngine returns an engine reading through r.
func NewEngine(r *store.Reader, opts Options) *Engine {
	e := &Engine{reader: r, now: opts.Now}
	if e.now == nil {
		e.now = time.Now
	}

	start, errS := clockOffset(opts.DayStart)
	end, errE := clockOffset(opts.DayEnd)
	if errS != nil || errE != nil || end <= start {
		start, _ = clockOffset(defaultDayStart)
		end, _ = clockOffset(defaultDayEnd)
	}
	e.dayStart, e.dayEnd = start, end
	return e
}

func clockOffset(s string) (time.Duration, error) {
	h, m, err := model.ParseClock(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

// Course is one event as reported to the caller.
type Course struct {
	Title       string     `json:"title"`
	Start       string     `json:"start"`
	End         string     `json:"end"`
	Instructor  string     `json:"professeur"`
	Location    string     `json:"location"`
	Description string     `json:"description"`
	Kind        model.Kind `json:"kind"`
	Color       string     `json:"color"`
}

func toCourse(ev model.Event) Course {
	return Course{
		Title:       ev.Title,
		Start:       model.FormatISO(ev.Start),
		End:         model.FormatISO(ev.End),
		Instructor:  ev.Instructor,
		Location:    ev.Location,
		Description: ev.Description,
		Kind:        ev.Kind,
		Color:       ev.Color,
	}
}

// isCourse reports whether ev is a real class: a timetabled lecture whose
// title carries no non-teaching marker.
func isCourse(ev model.Event) bool {
	return ev.Kind == model.KindLecture && !model.IsNonTeaching(ev.Title)
}

// load normalizes the user and returns their events, or store.ErrNotFound
// when they have no schedule file.
func (e *Engine) load(rawUserID string) (string, []model.Event, error) {
	userID, err := store.NormalizeUserID(rawUserID)
	if err != nil {
		return "", nil, err
	}
	if !e.reader.Store().Exists(userID) {
		return userID, nil, store.ErrNotFound
	}
	return userID, e.reader.Load(userID), nil
}

func (e *Engine) loc() *time.Location { return e.reader.Location() }

// RangeResult answers CoursesByDateRange.
type RangeResult struct {
	Status  string   `json:"status"`
	Period  string   `json:"period"`
	Courses []Course `json:"courses"`
	Count   int      `json:"count"`
}

// CoursesByDateRange returns the courses starting between from and to,
// both inclusive. A to value at midnight is stretched to 23:59:59 so that
// date-only ranges cover whole days.
func (e *Engine) CoursesByDateRange(userID, from, to string) (RangeResult, error) {
	start, err := model.ParseLocal(from, e.loc())
	if err != nil {
		return RangeResult{}, model.Invalid("start_date", "%q is not an ISO-8601 date", from)
	}
	end, err := model.ParseLocal(to, e.loc())
	if err != nil {
		return RangeResult{}, model.Invalid("end_date", "%q is not an ISO-8601 date", to)
	}
	if end.Equal(model.DayStart(end)) {
		end = end.Add(24*time.Hour - time.Second)
	}
	if end.Before(start) {
		return RangeResult{}, model.Invalid("end_date", "%s is before %s", to, from)
	}

	user, events, err := e.load(userID)
	if err != nil {
		return RangeResult{}, err
	}

	courses := []Course{}
	for _, ev := range filterSorted(events, func(ev model.Event) bool {
		return isCourse(ev) && !ev.Start.Before(start) && !ev.Start.After(end)
	}) {
		courses = append(courses, toCourse(ev))
	}

	appLog.Info("courses by date range", "user", user, "from", model.FormatISO(start), "to", model.FormatISO(end), "count", len(courses))
	return RangeResult{
		Status:  StatusSuccess,
		Period:  fmt.Sprintf("%s to %s", from, to),
		Courses: courses,
		Count:   len(courses),
	}, nil
}

// SubjectResult answers CoursesBySubject.
type SubjectResult struct {
	Status  string   `json:"status"`
	Subject string   `json:"subject"`
	Courses []Course `json:"courses"`
	Count   int      `json:"count"`
}

// CoursesBySubject returns every event whose title contains subject,
// ignoring case and accents, in stored order.
func (e *Engine) CoursesBySubject(userID, subject string) (SubjectResult, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return SubjectResult{}, model.Invalid("subject", "must not be empty")
	}
	user, events, err := e.load(userID)
	if err != nil {
		return SubjectResult{}, err
	}

	needle := model.Fold(subject)
	courses := []Course{}
	for _, ev := range events {
		if strings.Contains(model.Fold(ev.Title), needle) {
			courses = append(courses, toCourse(ev))
		}
	}

	appLog.Info("courses by subject", "user", user, "subject", subject, "count", len(courses))
	return SubjectResult{Status: StatusSuccess, Subject: subject, Courses: courses, Count: len(courses)}, nil
}

// Slot is a free interval within the working window.
type Slot struct {
	Start       string `json:"start"`
	End         string `json:"end"`
	Description string `json:"description"`
}

// SlotsResult answers FreeTimeSlots.
type SlotsResult struct {
	Status string `json:"status"`
	Date   string `json:"date"`
	Slots  []Slot `json:"slots"`
	Count  int    `json:"count"`
}

// FreeTimeSlots lists the gaps between the courses of one day, clamped to
// the working window. Overlapping courses are merged.
func (e *Engine) FreeTimeSlots(userID, date string) (SlotsResult, error) {
	day, err := model.ParseLocal(date, e.loc())
	if err != nil {
		return SlotsResult{}, model.Invalid("date", "%q is not an ISO-8601 date", date)
	}
	day = model.DayStart(day)

	user, events, err := e.load(userID)
	if err != nil {
		return SlotsResult{}, err
	}

	open := day.Add(e.dayStart)
	closeAt := day.Add(e.dayEnd)

	todays := filterSorted(events, func(ev model.Event) bool {
		return isCourse(ev) && model.SameDay(day, ev.Start) && ev.End.After(open) && ev.Start.Before(closeAt)
	})

	slots := []Slot{}
	add := func(from, to time.Time, desc string) {
		slots = append(slots, Slot{Start: from.Format(model.ClockLayout), End: to.Format(model.ClockLayout), Description: desc})
	}

	if len(todays) == 0 {
		add(open, closeAt, "Free all day")
	} else {
		cursor := open
		// last names the course whose end set cursor.
		last := ""
		for _, ev := range todays {
			if ev.Start.After(cursor) {
				if last == "" {
					add(cursor, ev.Start, "Free before "+ev.Title)
				} else {
					add(cursor, ev.Start, fmt.Sprintf("Free between %s and %s", last, ev.Title))
				}
			}
			if ev.End.After(cursor) {
				cursor = ev.End
				last = ev.Title
			}
		}
		if cursor.Before(closeAt) {
			add(cursor, closeAt, "Free after "+last)
		}
	}

	appLog.Info("free time slots", "user", user, "date", day.Format(model.DateLayout), "courses", len(todays), "slots", len(slots))
	return SlotsResult{Status: StatusSuccess, Date: day.Format(model.DateLayout), Slots: slots, Count: len(slots)}, nil
}

// FollowingCourse is a short lookahead entry after the next course.
type FollowingCourse struct {
	Title      string `json:"title"`
	Start      string `json:"start"`
	Instructor string `json:"professeur"`
}

// NextCourse is the earliest upcoming course plus derived fields.
type NextCourse struct {
	Course
	TimeUntil  string            `json:"time_until"`
	IsToday    bool              `json:"is_today"`
	IsTomorrow bool              `json:"is_tomorrow"`
	Following  []FollowingCourse `json:"following_courses"`
}

// NextResult answers NextCourse. NextCourse is nil, and serialized as null,
// when nothing is upcoming.
type NextResult struct {
	Status        string      `json:"status"`
	Message       string      `json:"message,omitempty"`
	NextCourse    *NextCourse `json:"next_course"`
	TotalUpcoming int         `json:"total_upcoming"`
}

// maxFollowing bounds the lookahead list.
const maxFollowing = 3

// NextCourse returns the first course starting strictly after now.
func (e *Engine) NextCourse(userID string) (NextResult, error) {
	user, events, err := e.load(userID)
	if err != nil {
		return NextResult{}, err
	}
	now := e.now().In(e.loc())

	upcoming := filterSorted(events, func(ev model.Event) bool {
		return isCourse(ev) && ev.Start.After(now)
	})
	if len(upcoming) == 0 {
		appLog.Info("no upcoming course", "user", user)
		return NextResult{Status: StatusInfo, Message: "No upcoming course in the timetable"}, nil
	}

	first := upcoming[0]
	next := &NextCourse{
		Course:     toCourse(first),
		TimeUntil:  FormatTimeUntil(first.Start.Sub(now)),
		IsToday:    model.SameDay(now, first.Start),
		IsTomorrow: model.SameDay(model.DayStart(now).AddDate(0, 0, 1), first.Start),
		Following:  []FollowingCourse{},
	}
	for _, ev := range upcoming[1:min(len(upcoming), maxFollowing+1)] {
		next.Following = append(next.Following, FollowingCourse{
			Title:      ev.Title,
			Start:      model.FormatISO(ev.Start),
			Instructor: ev.Instructor,
		})
	}

	appLog.Info("next course", "user", user, "title", first.Title, "in", next.TimeUntil)
	return NextResult{Status: StatusSuccess, NextCourse: next, TotalUpcoming: len(upcoming)}, nil
}

// FormatTimeUntil renders a positive duration as "2 days and 3h05min",
// "3h05min" or "12 minutes". Seconds are dropped.
func FormatTimeUntil(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hours := int(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	minutes := int(d / time.Minute)

	switch {
	case days > 0:
		return fmt.Sprintf("%d %s and %dh%02dmin", days, plural(days, "day"), hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh%02dmin", hours, minutes)
	default:
		return fmt.Sprintf("%d %s", minutes, plural(minutes, "minute"))
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

// filterSorted keeps events matching keep, ordered by start. Ties keep
// stored order.
func filterSorted(events []model.Event, keep func(model.Event) bool) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if keep(ev) {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}
