package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	appLog "edtassist/internal/log"
	"edtassist/internal/scheduler"
	"edtassist/internal/web"
)

var serveListen string

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and refresh configured users on schedule",
		Args:  cobra.NoArgs,
		Run:   runServe,
	}
	cmd.Flags().StringVar(&serveListen, "listen", "", "HTTP listen address (overrides config)")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	a := openApp()
	if serveListen != "" {
		a.cfg.Listen = serveListen
	}

	appLog.Info("effective config",
		"listen", a.cfg.Listen,
		"timezone", a.cfg.Timezone,
		"schedule_dir", a.cfg.ScheduleDir,
		"refresh", a.cfg.RefreshCron,
		"users", len(a.cfg.Users),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, a); err != nil {
		stop()
		exitErr("serve", err)
	}
	appLog.Info("edtassist exiting")
}

// serve runs the HTTP API, plus the refresh scheduler when users are
// configured, until ctx is cancelled.
func serve(ctx context.Context, a *app) error {
	srv := web.NewServer(a.cfg, web.Deps{
		Reader:   a.reader,
		Syncer:   a.syncer,
		Query:    a.query,
		Mutation: a.mutator,
	})

	if len(a.cfg.Users) > 0 {
		sched, err := scheduler.New(a.cfg.RefreshCron, a.cfg.Users, func(ctx context.Context, user string) error {
			_, err := srv.Refresh(ctx, user)
			return err
		})
		if err != nil {
			return err
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()
	}

	return srv.ListenAndServe(ctx)
}
