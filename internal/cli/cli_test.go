package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"edtassist/internal/config"
	"edtassist/internal/query"
)

func resetFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		configPath = ""
		logLevel = ""
	})
}

func TestGetConfigPath(t *testing.T) {
	resetFlags(t)

	t.Setenv("EDT_CONFIG", "")
	if got := getConfigPath(); got != config.DefaultPath {
		t.Fatalf("default = %q", got)
	}

	t.Setenv("EDT_CONFIG", "/etc/edt.yaml")
	if got := getConfigPath(); got != "/etc/edt.yaml" {
		t.Fatalf("env = %q", got)
	}

	configPath = "flag.yaml"
	if got := getConfigPath(); got != "flag.yaml" {
		t.Fatalf("flag = %q", got)
	}
}

func TestLoadConfigCreatesDefaults(t *testing.T) {
	resetFlags(t)
	for _, k := range []string{"EDT_SCHEDULE_DIR", "EDT_FEED_URL", "EDT_TIMEZONE", "EDT_LISTEN", "EDT_LOG_LEVEL", "EDT_USERS"} {
		t.Setenv(k, "")
	}
	configPath = filepath.Join(t.TempDir(), "conf", "edtassist.yaml")
	logLevel = "debug"

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if _, err := os.Stat(configPath); err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Timezone != config.DefaultTimezone {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestNewAppWiring(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ScheduleDir = t.TempDir()
	cfg.CacheDir = ""

	doc := `[{"title": "Chimie", "start": "2025-03-03T08:00:00", "end": "2025-03-03T10:00:00"}]`
	if err := os.WriteFile(filepath.Join(cfg.ScheduleDir, "u_edt.json"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	a := newApp(cfg)
	if a.store.Dir() != cfg.ScheduleDir || a.reader.Location().String() != cfg.Timezone {
		t.Fatalf("store/reader not built from config")
	}

	res, ok := a.dispatcher.CallJSON(context.Background(), "U", "get_courses_by_subject", []byte(`{"subject": "chimie"}`)).(query.SubjectResult)
	if !ok || res.Count != 1 {
		t.Fatalf("dispatcher result = %#v", res)
	}
	if got := a.syncer.FeedURL("u"); got != "http://applis.univ-nc.nc/cgi-bin/WebObjects/EdtWeb.woa/2/wa/default?login=u%2Fical" {
		t.Fatalf("feed url = %q", got)
	}
}

func TestServeStopsWithContext(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ScheduleDir = t.TempDir()
	cfg.CacheDir = ""
	cfg.Listen = "127.0.0.1:0"
	cfg.Users = []string{"u"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := serve(ctx, newApp(cfg)); err != nil {
		t.Fatalf("serve: %v", err)
	}

	cfg.RefreshCron = "whenever"
	if err := serve(ctx, newApp(cfg)); err == nil {
		t.Fatal("serve accepted an invalid refresh schedule")
	}
}
