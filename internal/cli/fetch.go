package cli

import (
	"github.com/spf13/cobra"

	"edtassist/internal/store"
)

var fetchIfMissing bool

func init() {
	cmd := &cobra.Command{
		Use:   "fetch <user>",
		Short: "Download a user's timetable feed and rewrite their schedule file",
		Args:  cobra.ExactArgs(1),
		Run:   runFetch,
	}
	cmd.Flags().BoolVar(&fetchIfMissing, "if-missing", false, "Only fetch when the user has no schedule file yet")

	RootCmd.AddCommand(cmd)
}

func runFetch(cmd *cobra.Command, args []string) {
	a := openApp()
	user := userArg(args[0])

	if fetchIfMissing {
		synced, err := a.syncer.EnsureSynced(cmd.Context(), user)
		if err != nil {
			exitErr("fetch", err)
		}
		printJSON(map[string]any{"user_id": user, "synced": synced, "path": a.store.Path(user)})
		return
	}

	res, err := a.syncer.Sync(cmd.Context(), user)
	if err != nil {
		exitErr("fetch", err)
	}
	printJSON(res)
}

// userArg normalizes a user identifier argument or exits.
func userArg(raw string) string {
	user, err := store.NormalizeUserID(raw)
	if err != nil {
		exitErr("user", err)
	}
	return user
}
