package ics

import (
	"sort"

	"edtassist/internal/model"
)

type weekKey struct {
	year int
	week int
}

// GroupByWeek buckets lectures by the ISO week of their local start and
// orders each bucket by start. Buckets are keyed by ISO year as well, so a
// feed spanning New Year never merges week 1 of two different years.
func GroupByWeek(lectures []Lecture) []model.WeekBucket {
	groups := make(map[weekKey][]Lecture)
	for _, l := range lectures {
		y, w := l.Start.ISOWeek()
		k := weekKey{year: y, week: w}
		groups[k] = append(groups[k], l)
	}

	keys := make([]weekKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].year != keys[j].year {
			return keys[i].year < keys[j].year
		}
		return keys[i].week < keys[j].week
	})

	buckets := make([]model.WeekBucket, 0, len(keys))
	for _, k := range keys {
		lecs := groups[k]
		sort.SliceStable(lecs, func(i, j int) bool {
			return lecs[i].Start.Before(lecs[j].Start)
		})

		records := make([]model.Record, 0, len(lecs))
		for _, l := range lecs {
			records = append(records, l.Record())
		}
		buckets = append(buckets, model.WeekBucket{Week: k.week, Year: k.year, Events: records})
	}
	return buckets
}

// Record converts a lecture into its stored form.
func (l Lecture) Record() model.Record {
	return model.Record{
		Title:       l.Title,
		Start:       model.FormatStore(l.Start),
		End:         model.FormatStore(l.End),
		Instructor:  l.Instructor,
		Location:    l.Location,
		Description: l.Description,
	}
}
