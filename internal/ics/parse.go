package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "edtassist/internal/log"
	"edtassist/internal/model"
)

// Lecture is one parsed class occurrence, with Start/End already in the
// display zone.
type Lecture struct {
	UID         string
	Title       string
	Start       time.Time
	End         time.Time
	Instructor  string
	Location    string
	Description string
}

// ParseOptions controls feed normalization.
type ParseOptions struct {
	// Location is the zone every instant is converted to. Floating and
	// date-only values are interpreted in it as well.
	Location *time.Location

	// Instructors extracts the instructor name from the raw description.
	// Nil uses NewKeywordExtractor().
	Instructors InstructorExtractor
}

// ParseFeed parses a calendar payload into lectures.
//
//   - Every DTSTART/DTEND is converted from its own zone (TZID, UTC "Z" or
//     floating) into opts.Location.
//   - Titles and descriptions are cut at the first "(" and trimmed.
//   - A malformed VEVENT is logged and skipped; it is counted as errored.
//
// Only a payload the library cannot read at all is an error.
func ParseFeed(body []byte, opts ParseOptions) ([]Lecture, model.FeedStats, error) {
	var stats model.FeedStats
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, stats, errors.New("empty calendar body")
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Instructors == nil {
		opts.Instructors = NewKeywordExtractor()
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, stats, fmt.Errorf("parse calendar: %w", err)
	}

	events := cal.Events()
	stats.Total = len(events)
	out := make([]Lecture, 0, len(events))

	for _, ve := range events {
		lec, perr := parseVEvent(ve, opts)
		if perr != nil {
			stats.Errored++
			appLog.Warn("ics vevent skipped", "uid", propValue(ve, ical.ComponentPropertyUniqueId), "reason", perr.Error())
			continue
		}
		stats.Processed++
		out = append(out, lec)
	}

	appLog.Info("ics parse completed", "total", stats.Total, "processed", stats.Processed, "errored", stats.Errored)
	return out, stats, nil
}

func parseVEvent(ve *ical.VEvent, opts ParseOptions) (Lecture, error) {
	var out Lecture
	out.UID = propValue(ve, ical.ComponentPropertyUniqueId)

	summary := unescapeText(propValue(ve, ical.ComponentPropertySummary))
	out.Title = truncateAtParen(summary)
	if out.Title == "" {
		return out, errors.New("missing SUMMARY")
	}

	rawDesc := unescapeText(propValue(ve, ical.ComponentPropertyDescription))
	out.Description = truncateAtParen(rawDesc)
	out.Instructor = opts.Instructors.Extract(rawDesc)
	out.Location = strings.TrimSpace(unescapeText(propValue(ve, ical.ComponentPropertyLocation)))

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return out, errors.New("missing DTSTART")
	}
	start, err := parsePropTime(startProp.Value, startProp.ICalParameters, opts.Location)
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}

	endProp := ve.GetProperty(ical.ComponentPropertyDtEnd)
	if endProp == nil {
		return out, errors.New("missing DTEND")
	}
	end, err := parsePropTime(endProp.Value, endProp.ICalParameters, opts.Location)
	if err != nil {
		return out, fmt.Errorf("DTEND: %w", err)
	}

	out.Start = truncateMinute(start.In(opts.Location))
	out.End = truncateMinute(end.In(opts.Location))
	if !out.End.After(out.Start) {
		return out, fmt.Errorf("end %s is not after start %s", model.FormatStore(out.End), model.FormatStore(out.Start))
	}
	return out, nil
}

func propValue(ve *ical.VEvent, name ical.ComponentProperty) string {
	if p := ve.GetProperty(name); p != nil {
		return p.Value
	}
	return ""
}

// parsePropTime parses a DATE or DATE-TIME value.
//
//	20250303T080000Z            UTC
//	20250303T080000 + TZID      that zone (display zone if unknown)
//	20250303T080000             floating, display zone
//	20250303                    midnight, display zone
func parsePropTime(v string, params map[string][]string, display *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}

	loc := display
	if tzs, ok := params["TZID"]; ok && len(tzs) > 0 {
		tzid := strings.Trim(tzs[0], `"`)
		if l, err := time.LoadLocation(tzid); err == nil {
			loc = l
		} else {
			appLog.Debug("unknown TZID, using display zone", "tzid", tzid)
		}
	}

	if strings.Contains(v, "T") {
		if len(v) == len("20060102T1504") {
			return time.ParseInLocation("20060102T1504", v, loc)
		}
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}

// truncateAtParen keeps the text before the first "(".
//
//	"Analyse (CM) - Groupe 1" -> "Analyse"
func truncateAtParen(s string) string {
	if i := strings.Index(s, "("); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// unescapeText undoes RFC 5545 TEXT escaping. Values the library already
// unescaped pass through unchanged unless they contain a literal backslash.
func unescapeText(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	r := strings.NewReplacer(`\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";", `\\`, `\`)
	return r.Replace(s)
}

func truncateMinute(t time.Time) time.Time {
	return t.Truncate(time.Minute)
}
