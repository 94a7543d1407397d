package ics

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	appLog "edtassist/internal/log"
	"edtassist/internal/model"
	"edtassist/internal/store"
)

// UserPlaceholder is replaced by the query-escaped identifier in feed URL
// templates.
const UserPlaceholder = "{user}"

// ErrEmptyFeed is returned when a feed yields no lecture while the user's
// stored schedule still has some. The stored file is left untouched.
var ErrEmptyFeed = errors.New("feed returned no lecture; existing schedule kept")

// SyncerConfig configures a Syncer.
type SyncerConfig struct {
	// FeedURL is the calendar URL template containing UserPlaceholder.
	FeedURL string
	// CacheDir holds conditional-request metadata; empty disables it.
	CacheDir string
	Timeout  time.Duration
	Location *time.Location
	// Extractor overrides instructor extraction; nil uses the keyword
	// heuristic.
	Extractor InstructorExtractor
}

// SyncResult summarizes one feed run.
type SyncResult struct {
	UserID    string          `json:"user_id"`
	Weeks     int             `json:"weeks"`
	Events    int             `json:"events"`
	Stats     model.FeedStats `json:"stats"`
	Path      string          `json:"path"`
	FromCache bool            `json:"from_cache"`
	BackedUp  bool            `json:"backup_created"`
}

// Syncer downloads a user's feed and rewrites their schedule file.
type Syncer struct {
	cfg     SyncerConfig
	fetcher *Fetcher
	store   *store.Store
}

// NewSyncer wires a fetcher to st.
func NewSyncer(cfg SyncerConfig, st *store.Store) *Syncer {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Extractor == nil {
		cfg.Extractor = NewKeywordExtractor()
	}
	return &Syncer{
		cfg:     cfg,
		fetcher: NewFetcher(cfg.CacheDir, cfg.Timeout),
		store:   st,
	}
}

// FeedURL renders the feed URL for an already normalized user.
func (s *Syncer) FeedURL(userID string) string {
	return strings.ReplaceAll(s.cfg.FeedURL, UserPlaceholder, url.QueryEscape(userID))
}

// Sync fetches and parses the user's feed, groups lectures by ISO week and
// writes a fresh structured document. Revisions stored in the previous file
// are not carried over; the previous file is kept as the backup. A feed
// without any lecture never replaces a schedule that has some.
func (s *Syncer) Sync(ctx context.Context, rawUserID string) (SyncResult, error) {
	userID, err := store.NormalizeUserID(rawUserID)
	if err != nil {
		return SyncResult{}, err
	}
	res := SyncResult{UserID: userID, Path: s.store.Path(userID)}

	feedURL := s.FeedURL(userID)
	fr, err := s.fetcher.Fetch(ctx, userID, feedURL)
	if err != nil {
		return res, err
	}
	res.FromCache = fr.FromCache

	lectures, stats, err := ParseFeed(fr.Body, ParseOptions{Location: s.cfg.Location, Instructors: s.cfg.Extractor})
	if err != nil {
		return res, fmt.Errorf("parse feed for %q: %w", userID, err)
	}
	res.Stats = stats
	res.Events = len(lectures)

	weeks := GroupByWeek(lectures)
	res.Weeks = len(weeks)

	doc := model.Document{
		Weeks:     weeks,
		Revisions: []model.Record{},
		Metadata: &model.Metadata{
			UserID:    userID,
			FetchedAt: model.FormatISO(time.Now().In(s.cfg.Location).Truncate(time.Second)),
			Timezone:  s.cfg.Location.String(),
			Source:    redactURL(feedURL),
			Stats:     stats,
		},
	}

	unlock := s.store.Lock(userID)
	defer unlock()
	if len(lectures) == 0 && s.hasLectures(userID) {
		appLog.Warn("empty feed, schedule not replaced", "user", userID, "total", stats.Total, "errored", stats.Errored)
		return res, ErrEmptyFeed
	}
	backedUp, err := s.store.WriteDocument(userID, doc)
	if err != nil {
		return res, fmt.Errorf("write schedule for %q: %w", userID, err)
	}
	res.BackedUp = backedUp

	appLog.Info("schedule synced", "user", userID, "weeks", res.Weeks, "events", res.Events, "errored", stats.Errored, "from_cache", fr.FromCache)
	return res, nil
}

// hasLectures reports whether the stored schedule holds at least one
// timetabled record. Unreadable files count as empty.
func (s *Syncer) hasLectures(userID string) bool {
	raw, err := s.store.ReadRaw(userID)
	if err != nil {
		return false
	}
	if raw.Shape == store.ShapeFlat {
		return len(raw.Items) > 0
	}
	weeks, _ := raw.Weeks()
	for _, wk := range weeks {
		if len(wk.Events) > 0 {
			return true
		}
	}
	return false
}

// EnsureSynced runs Sync only when the user has no schedule file yet.
// It reports whether a sync happened.
func (s *Syncer) EnsureSynced(ctx context.Context, rawUserID string) (bool, error) {
	userID, err := store.NormalizeUserID(rawUserID)
	if err != nil {
		return false, err
	}
	if s.store.Exists(userID) {
		return false, nil
	}
	if _, err := s.Sync(ctx, userID); err != nil {
		return false, err
	}
	return true, nil
}
