// Package store owns the per-user schedule files: path layout, shape
// detection, backups and atomic writes.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	appLog "edtassist/internal/log"
	"edtassist/internal/model"
)

// FileSuffix is appended to the user identifier to name its schedule file.
const FileSuffix = "_edt.json"

// BackupSuffix names the single backup kept next to a schedule file.
const BackupSuffix = ".backup"

var (
	// ErrNotFound is returned when a user has no schedule file.
	ErrNotFound = errors.New("schedule file not found")
	// ErrEmptyUser is returned for a blank user identifier.
	ErrEmptyUser = errors.New("user identifier is empty")
	// ErrInvalidUser is returned for identifiers that would escape the
	// schedule directory.
	ErrInvalidUser = errors.New("user identifier contains a path separator")
)

// DecodeError reports a schedule file that exists but is not in either known
// shape.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// NormalizeUserID trims and lowercases a student identifier.
func NormalizeUserID(raw string) (string, error) {
	id := strings.ToLower(strings.TrimSpace(raw))
	if id == "" {
		return "", ErrEmptyUser
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." || strings.ContainsRune(id, 0) {
		return "", ErrInvalidUser
	}
	return id, nil
}

// Shape identifies which on-disk layout a schedule file uses.
type Shape int

const (
	// ShapeStructured is a mapping with week buckets and a revisions list.
	ShapeStructured Shape = iota
	// ShapeFlat is a bare list of records.
	ShapeFlat
)

func (s Shape) String() string {
	if s == ShapeFlat {
		return "flat"
	}
	return "structured"
}

// Raw is a schedule file decoded just far enough to edit it without losing
// fields this program does not know about.
type Raw struct {
	Shape  Shape
	Fields map[string]json.RawMessage // ShapeStructured
	Items  []json.RawMessage          // ShapeFlat
}

// NewStructured returns an empty structured document.
func NewStructured() *Raw {
	return &Raw{
		Shape: ShapeStructured,
		Fields: map[string]json.RawMessage{
			model.WeeksKey:     json.RawMessage("[]"),
			model.RevisionsKey: json.RawMessage("[]"),
		},
	}
}

// RawWeek is one stored week bucket with its records left undecoded, so
// that a malformed record only costs itself.
type RawWeek struct {
	Week   int               `json:"semaine"`
	Year   int               `json:"annee,omitempty"`
	Events []json.RawMessage `json:"evenements"`
}

// Weeks returns the week buckets of a structured document. A bucket that is
// not an object is skipped with a warning; an emploi_du_temps value that is
// not a list is an error.
func (r *Raw) Weeks() ([]RawWeek, error) {
	raw, ok := r.Fields[model.WeeksKey]
	if !ok || isNull(raw) {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%s: %w", model.WeeksKey, err)
	}
	weeks := make([]RawWeek, 0, len(items))
	for i, item := range items {
		var wk RawWeek
		if err := json.Unmarshal(item, &wk); err != nil {
			appLog.Warn("week bucket skipped", "index", i, "reason", err.Error())
			continue
		}
		weeks = append(weeks, wk)
	}
	return weeks, nil
}

// Revisions returns the raw revision records of a structured document. A
// missing key yields an empty list.
func (r *Raw) Revisions() ([]json.RawMessage, error) {
	raw, ok := r.Fields[model.RevisionsKey]
	if !ok || isNull(raw) {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%s: %w", model.RevisionsKey, err)
	}
	return items, nil
}

// SetRevisions replaces the revisions list of a structured document.
func (r *Raw) SetRevisions(items []json.RawMessage) error {
	if items == nil {
		items = []json.RawMessage{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return err
	}
	if r.Fields == nil {
		r.Fields = map[string]json.RawMessage{}
	}
	r.Fields[model.RevisionsKey] = b
	return nil
}

func isNull(b json.RawMessage) bool {
	return len(bytes.TrimSpace(b)) == 0 || string(bytes.TrimSpace(b)) == "null"
}

// Store reads and writes schedule files under one directory. Writers for the
// same user are serialized through Lock.
type Store struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns a store rooted at dir. The directory is created on first write.
func New(dir string) *Store {
	return &Store{dir: dir, locks: make(map[string]*sync.Mutex)}
}

// Dir returns the schedule directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the schedule file of an already normalized user.
func (s *Store) Path(userID string) string {
	return filepath.Join(s.dir, userID+FileSuffix)
}

// BackupPath returns the backup file of an already normalized user.
func (s *Store) BackupPath(userID string) string {
	return s.Path(userID) + BackupSuffix
}

// Exists reports whether the user has a schedule file.
func (s *Store) Exists(userID string) bool {
	st, err := os.Stat(s.Path(userID))
	return err == nil && !st.IsDir()
}

// Lock acquires the per-user write lock and returns its release function.
func (s *Store) Lock(userID string) func() {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// ReadRaw loads and shape-detects the user's schedule file. It returns
// ErrNotFound when there is no file and *DecodeError when the content is in
// neither shape.
func (s *Store) ReadRaw(userID string) (*Raw, error) {
	path := s.Path(userID)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	raw, err := decodeRaw(b)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	return raw, nil
}

func decodeRaw(b []byte) (*Raw, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 {
		return nil, errors.New("empty file")
	}
	switch trimmed[0] {
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return nil, err
		}
		if _, ok := fields[model.WeeksKey]; !ok {
			return nil, fmt.Errorf("mapping without %q key", model.WeeksKey)
		}
		return &Raw{Shape: ShapeStructured, Fields: fields}, nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		return &Raw{Shape: ShapeFlat, Items: items}, nil
	default:
		return nil, errors.New("neither a mapping nor a list")
	}
}

// WriteRaw backs up any existing file and atomically replaces it with raw.
// The caller must hold Lock. It reports whether a backup was made.
func (s *Store) WriteRaw(userID string, raw *Raw) (bool, error) {
	var v any
	switch raw.Shape {
	case ShapeFlat:
		items := raw.Items
		if items == nil {
			items = []json.RawMessage{}
		}
		v = items
	default:
		v = raw.Fields
	}
	b, err := encode(v)
	if err != nil {
		return false, err
	}
	return s.replace(userID, b)
}

// WriteDocument backs up any existing file and atomically replaces it with
// a freshly built structured document. The caller must hold Lock.
func (s *Store) WriteDocument(userID string, doc model.Document) (bool, error) {
	if doc.Weeks == nil {
		doc.Weeks = []model.WeekBucket{}
	}
	if doc.Revisions == nil {
		doc.Revisions = []model.Record{}
	}
	b, err := encode(doc)
	if err != nil {
		return false, err
	}
	return s.replace(userID, b)
}

func (s *Store) replace(userID string, b []byte) (bool, error) {
	backedUp, err := s.Backup(userID)
	if err != nil {
		return false, fmt.Errorf("backup: %w", err)
	}
	if err := writeAtomic(s.Path(userID), b); err != nil {
		return backedUp, err
	}
	appLog.Debug("schedule written", "user", userID, "bytes", len(b), "backup", backedUp)
	return backedUp, nil
}

// Backup copies the current schedule file to its backup path, replacing any
// previous backup. It is a no-op returning false when there is no file.
func (s *Store) Backup(userID string) (bool, error) {
	src := s.Path(userID)
	b, err := os.ReadFile(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := writeAtomic(s.BackupPath(userID), b); err != nil {
		return false, err
	}
	return true, nil
}

// encode renders v as two-space indented JSON, keeping non-ASCII and HTML
// characters literal.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeAtomic(path string, b []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*"+filepath.Ext(path))
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
