package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"edtassist/internal/model"
)

func noumea(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Pacific/Noumea")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func writeFile(t *testing.T, st *Store, user, content string) {
	t.Helper()
	if err := os.MkdirAll(st.Dir(), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(st.Path(user), []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestNormalizeUserID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{in: "  JDupont ", want: "jdupont"},
		{in: "abc123", want: "abc123"},
		{in: "", wantErr: ErrEmptyUser},
		{in: "   ", wantErr: ErrEmptyUser},
		{in: "../etc", wantErr: ErrInvalidUser},
		{in: `a\b`, wantErr: ErrInvalidUser},
		{in: "..", wantErr: ErrInvalidUser},
	}
	for _, tt := range tests {
		got, err := NormalizeUserID(tt.in)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NormalizeUserID(%q) err = %v, want %v", tt.in, err, tt.wantErr)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("NormalizeUserID(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestPathLayout(t *testing.T) {
	st := New("/data/json_schedules")
	if got, want := st.Path("jdupont"), filepath.Join("/data/json_schedules", "jdupont_edt.json"); got != want {
		t.Fatalf("Path = %q, want %q", got, want)
	}
	if got := st.BackupPath("jdupont"); !strings.HasSuffix(got, "jdupont_edt.json.backup") {
		t.Fatalf("BackupPath = %q", got)
	}
}

func TestReadRawShapes(t *testing.T) {
	st := New(t.TempDir())

	if _, err := st.ReadRaw("nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing file err = %v, want ErrNotFound", err)
	}

	writeFile(t, st, "s", `{"emploi_du_temps": [], "revisions": [], "extra": 1}`)
	raw, err := st.ReadRaw("s")
	if err != nil || raw.Shape != ShapeStructured {
		t.Fatalf("structured: shape=%v err=%v", raw, err)
	}

	writeFile(t, st, "f", `[{"title": "X"}]`)
	raw, err = st.ReadRaw("f")
	if err != nil || raw.Shape != ShapeFlat || len(raw.Items) != 1 {
		t.Fatalf("flat: raw=%+v err=%v", raw, err)
	}

	for name, content := range map[string]string{
		"nokey":  `{"foo": []}`,
		"scalar": `42`,
		"broken": `{"emploi_du_temps": [`,
		"empty":  ``,
	} {
		writeFile(t, st, name, content)
		_, err := st.ReadRaw(name)
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Errorf("%s: err = %v, want *DecodeError", name, err)
		}
	}
}

func TestWriteRawKeepsUnknownFieldsAndBacksUp(t *testing.T) {
	st := New(t.TempDir())
	original := `{"emploi_du_temps": [{"semaine": 10, "evenements": [], "note": "x"}], "revisions": [], "custom": {"a": 1}}`
	writeFile(t, st, "u", original)

	raw, err := st.ReadRaw("u")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := raw.SetRevisions([]json.RawMessage{json.RawMessage(`{"nom_cours":"R"}`)}); err != nil {
		t.Fatalf("set revisions: %v", err)
	}
	backedUp, err := st.WriteRaw("u", raw)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if !backedUp {
		t.Fatalf("expected backup of existing file")
	}

	backup, err := os.ReadFile(st.BackupPath("u"))
	if err != nil || string(backup) != original {
		t.Fatalf("backup = %q, %v", backup, err)
	}

	var out map[string]any
	b, _ := os.ReadFile(st.Path("u"))
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal written: %v", err)
	}
	if _, ok := out["custom"]; !ok {
		t.Fatalf("unknown top-level key dropped: %s", b)
	}
	weeks := out["emploi_du_temps"].([]any)
	if weeks[0].(map[string]any)["note"] != "x" {
		t.Fatalf("unknown bucket key dropped: %s", b)
	}
	if len(out["revisions"].([]any)) != 1 {
		t.Fatalf("revisions not replaced: %s", b)
	}
}

func TestWriteDocumentWithoutPriorFile(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "nested"))
	backedUp, err := st.WriteDocument("u", model.Document{})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if backedUp {
		t.Fatalf("no backup expected without a prior file")
	}
	if _, err := os.Stat(st.BackupPath("u")); !os.IsNotExist(err) {
		t.Fatalf("backup file should not exist, stat err = %v", err)
	}
	b, _ := os.ReadFile(st.Path("u"))
	if !strings.Contains(string(b), `"emploi_du_temps": []`) || !strings.Contains(string(b), `"revisions": []`) {
		t.Fatalf("unexpected document: %s", b)
	}
}

func TestWriteKeepsAccentsLiteral(t *testing.T) {
	st := New(t.TempDir())
	doc := model.Document{Revisions: []model.Record{{Title: "Révision <algèbre>"}}}
	if _, err := st.WriteDocument("u", doc); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, _ := os.ReadFile(st.Path("u"))
	if !strings.Contains(string(b), "Révision <algèbre>") || !strings.Contains(string(b), `"début"`) {
		t.Fatalf("expected literal text, got %s", b)
	}
}

func TestLockSerializesSameUser(t *testing.T) {
	st := New(t.TempDir())
	unlock := st.Lock("u")

	done := make(chan struct{})
	go func() {
		release := st.Lock("u")
		release()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second Lock acquired while first held")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second Lock never acquired")
	}

	// Other users are independent.
	release := st.Lock("other")
	release()
}
