package cli

import (
	"github.com/spf13/cobra"
)

var (
	revTitle       string
	revStart       string
	revEnd         string
	revDescription string
)

func init() {
	add := &cobra.Command{
		Use:   "add-revision <user>",
		Short: "Add a revision session to a user's calendar",
		Args:  cobra.ExactArgs(1),
		Run:   runAddRevision,
	}
	add.Flags().StringVar(&revTitle, "title", "", "Session title")
	add.Flags().StringVar(&revStart, "start", "", "Start, YYYY-MM-DDTHH:MM:SS")
	add.Flags().StringVar(&revEnd, "end", "", "End, YYYY-MM-DDTHH:MM:SS")
	add.Flags().StringVar(&revDescription, "description", "", "Optional notes")
	_ = add.MarkFlagRequired("title")
	_ = add.MarkFlagRequired("start")
	_ = add.MarkFlagRequired("end")

	remove := &cobra.Command{
		Use:   "remove-revisions <user>",
		Short: "Remove every revision session added by the assistant",
		Args:  cobra.ExactArgs(1),
		Run:   runRemoveRevisions,
	}

	RootCmd.AddCommand(add, remove)
}

func runAddRevision(cmd *cobra.Command, args []string) {
	a := openApp()
	res, err := a.mutator.AddRevision(args[0], revTitle, revStart, revEnd, revDescription)
	if err != nil {
		exitErr("add revision", err)
	}
	printJSON(res)
}

func runRemoveRevisions(cmd *cobra.Command, args []string) {
	a := openApp()
	res, err := a.mutator.RemoveAIRevisions(args[0])
	if err != nil {
		exitErr("remove revisions", err)
	}
	printJSON(res)
}
