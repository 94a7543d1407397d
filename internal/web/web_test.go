package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"edtassist/internal/config"
	"edtassist/internal/ics"
	"edtassist/internal/mutation"
	"edtassist/internal/query"
	"edtassist/internal/store"
)

var feed = strings.Join([]string{
	"BEGIN:VCALENDAR",
	"VERSION:2.0",
	"BEGIN:VEVENT",
	"UID:1",
	"SUMMARY:Mathématiques (CM)",
	"DTSTART;TZID=Pacific/Noumea:20250303T080000",
	"DTEND;TZID=Pacific/Noumea:20250303T100000",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:2",
	"SUMMARY:Anglais",
	"DTSTART:20250303T230000Z",
	"DTEND:20250304T010000Z",
	"END:VEVENT",
	"END:VCALENDAR",
}, "\r\n") + "\r\n"

type testEnv struct {
	srv   *Server
	st    *store.Store
	feeds *httptest.Server
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	feeds := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Query().Get("login"), "jdupont") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(feed))
	}))
	t.Cleanup(feeds.Close)

	cfg := config.DefaultConfig()
	cfg.ScheduleDir = t.TempDir()
	cfg.CacheDir = ""
	cfg.FeedURL = feeds.URL + "/edt?login={user}%2Fical"
	loc := cfg.Location()

	st := store.New(cfg.ScheduleDir)
	reader := store.NewReader(st, loc)
	now := func() time.Time { return time.Date(2025, 3, 3, 7, 0, 0, 0, loc) }
	srv := NewServer(cfg, Deps{
		Reader:   reader,
		Syncer:   ics.NewSyncer(ics.SyncerConfig{FeedURL: cfg.FeedURL, Location: loc}, st),
		Query:    query.NewEngine(reader, query.Options{Now: now}),
		Mutation: mutation.NewEngine(st, mutation.Options{Location: loc, Now: now}),
	})
	return testEnv{srv: srv, st: st, feeds: feeds}
}

func (e testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestTools(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/tools", "")
	var list []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 6 {
		t.Fatalf("len(tools) = %d, want 6", len(list))
	}
}

func TestRefreshThenEvents(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(t, http.MethodGet, "/api/users/jdupont/events", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("events before refresh = %d, want 404", rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/api/users/JDupont/refresh", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh = %d %s", rec.Code, rec.Body.String())
	}
	if got := decode(t, rec); got["user_id"] != "jdupont" || got["events"] != float64(2) {
		t.Fatalf("refresh body = %v", got)
	}

	rec = env.do(t, http.MethodGet, "/api/users/jdupont/events", "")
	body := decode(t, rec)
	if rec.Code != http.StatusOK || body["count"] != float64(2) {
		t.Fatalf("events = %d %v", rec.Code, body)
	}
	first := body["events"].([]any)[0].(map[string]any)
	if first["title"] != "Mathématiques" || first["start"] != "2025-03-03T08:00:00" || first["color"] != "#ff6b6b" {
		t.Fatalf("first event = %v", first)
	}

	rec = env.do(t, http.MethodGet, "/api/users/jdupont/stats", "")
	if stats := decode(t, rec); stats["total"] != float64(2) || stats["ai_events"] != float64(0) {
		t.Fatalf("stats = %v", stats)
	}
}

func TestEventsCacheInvalidatedByMutation(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(t, http.MethodPost, "/api/users/jdupont/refresh", ""); rec.Code != http.StatusOK {
		t.Fatalf("refresh = %d", rec.Code)
	}
	if got := decode(t, env.do(t, http.MethodGet, "/api/users/jdupont/events", "")); got["count"] != float64(2) {
		t.Fatalf("events = %v", got)
	}

	// A write behind the server's back is not seen while the entry is fresh.
	if err := os.WriteFile(env.st.Path("jdupont"), []byte(`[]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := decode(t, env.do(t, http.MethodGet, "/api/users/jdupont/events", "")); got["count"] != float64(2) {
		t.Fatalf("expected cached events, got %v", got)
	}

	rec := env.do(t, http.MethodPost, "/api/users/jdupont/tools/add_event_to_calendar",
		`{"title": "Study", "start_date": "2025-03-05T14:00:00", "end_date": "2025-03-05T15:00:00", "user_id": "mallory"}`)
	if res := decode(t, rec); rec.Code != http.StatusOK || res["success"] != true {
		t.Fatalf("add = %d %v", rec.Code, res)
	}

	got := decode(t, env.do(t, http.MethodGet, "/api/users/jdupont/events", ""))
	if got["count"] != float64(1) {
		t.Fatalf("events after mutation = %v", got)
	}
	if env.st.Exists("mallory") {
		t.Fatal("user_id argument must not select the store file")
	}
}

func TestToolCallQueryAndErrors(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/users/jdupont/refresh", "")

	rec := env.do(t, http.MethodPost, "/api/users/jdupont/tools/get_next_course", "")
	res := decode(t, rec)
	next, ok := res["next_course"].(map[string]any)
	if res["status"] != "success" || !ok || next["title"] != "Mathématiques" || next["time_until"] != "1h00min" {
		t.Fatalf("next course = %v", res)
	}

	rec = env.do(t, http.MethodPost, "/api/users/jdupont/tools/get_free_time_slots", `{"date": "nope"}`)
	if res := decode(t, rec); res["status"] != "error" {
		t.Fatalf("bad date = %v", res)
	}

	if rec := env.do(t, http.MethodPost, "/api/users/jdupont/tools/format_disk", "{}"); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown tool = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/users/%20/stats", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("blank user = %d", rec.Code)
	}
}

func TestRefreshFailure(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/users/ghost/refresh", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("refresh unknown user = %d", rec.Code)
	}
	if msg := decode(t, rec)["error"].(string); !strings.Contains(msg, "may be invalid") {
		t.Fatalf("error = %q", msg)
	}
}
