// Package cli implements the edtassist commands.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"edtassist/internal/config"
	"edtassist/internal/ics"
	appLog "edtassist/internal/log"
	"edtassist/internal/mutation"
	"edtassist/internal/query"
	"edtassist/internal/store"
	"edtassist/internal/tools"
)

var (
	configPath string
	logLevel   string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "edtassist",
	Short: "University timetable assistant",
	Long: "Fetches university timetables from their calendar feed, answers questions about " +
		"courses and free time, and manages revision sessions added by an assistant.",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config path (default: $EDT_CONFIG or ./"+config.DefaultPath+")")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
}

func getConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if env := os.Getenv("EDT_CONFIG"); env != "" {
		return env
	}
	return config.DefaultPath
}

// app holds the collaborators built from one resolved configuration.
type app struct {
	cfg        *config.Config
	store      *store.Store
	reader     *store.Reader
	syncer     *ics.Syncer
	query      *query.Engine
	mutator    *mutation.Engine
	dispatcher *tools.Dispatcher
}

// loadConfig reads .env, the config file and the environment, then applies
// the log level.
func loadConfig() (*config.Config, error) {
	config.LoadEnv()
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

func newApp(cfg *config.Config) *app {
	loc := cfg.Location()
	st := store.New(cfg.ScheduleDir)
	reader := store.NewReader(st, loc)
	a := &app{
		cfg:    cfg,
		store:  st,
		reader: reader,
		syncer: ics.NewSyncer(ics.SyncerConfig{
			FeedURL:  cfg.FeedURL,
			CacheDir: cfg.CacheDir,
			Timeout:  cfg.FetchTimeout(),
			Location: loc,
		}, st),
		query: query.NewEngine(reader, query.Options{
			DayStart: cfg.WorkDay.Start,
			DayEnd:   cfg.WorkDay.End,
		}),
		mutator: mutation.NewEngine(st, mutation.Options{Location: loc}),
	}
	a.dispatcher = tools.NewDispatcher(a.query, a.mutator, tools.Hooks{})
	return a
}

func openApp() *app {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	return newApp(cfg)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		exitErr("encode output", err)
	}
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
