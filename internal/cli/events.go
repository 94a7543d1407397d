package cli

import (
	"github.com/spf13/cobra"

	"edtassist/internal/store"
)

func init() {
	events := &cobra.Command{
		Use:   "events <user>",
		Short: "Print a user's normalized events",
		Args:  cobra.ExactArgs(1),
		Run:   runEvents,
	}
	stats := &cobra.Command{
		Use:   "stats <user>",
		Short: "Count a user's courses and assistant-added sessions",
		Args:  cobra.ExactArgs(1),
		Run:   runStats,
	}

	RootCmd.AddCommand(events, stats)
}

func runEvents(cmd *cobra.Command, args []string) {
	a := openApp()
	user := userArg(args[0])
	if !a.store.Exists(user) {
		exitErr("events", store.ErrNotFound)
	}

	events := a.reader.Load(user)
	printJSON(map[string]any{
		"user_id":  user,
		"timezone": a.reader.Location().String(),
		"events":   events,
		"count":    len(events),
	})
}

func runStats(cmd *cobra.Command, args []string) {
	a := openApp()
	printJSON(a.reader.Stats(userArg(args[0])))
}
